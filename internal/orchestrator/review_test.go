package orchestrator

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aixiv/backend/internal/agents"
	"github.com/aixiv/backend/internal/audit"
	"github.com/aixiv/backend/internal/lifecycle"
	"github.com/aixiv/backend/internal/storage/models"
	"github.com/aixiv/backend/internal/storage/sqlite"
)

type stubReviewer struct {
	review agents.PeerReview
	err    error
}

func (s *stubReviewer) Review(_ context.Context, _ agents.PaperContext) (agents.Result[agents.PeerReview], error) {
	if s.err != nil {
		return agents.Result[agents.PeerReview]{}, s.err
	}
	return agents.Result[agents.PeerReview]{Value: s.review, Raw: "{\"peer\":true}"}, nil
}

type stubRedTeam struct {
	report agents.RedTeamReport
	err    error
	delay  time.Duration
}

func (s *stubRedTeam) Audit(_ context.Context, _ agents.PaperContext) (agents.Result[agents.RedTeamReport], error) {
	if s.delay > 0 {
		time.Sleep(s.delay)
	}
	if s.err != nil {
		return agents.Result[agents.RedTeamReport]{}, s.err
	}
	return agents.Result[agents.RedTeamReport]{Value: s.report, Raw: "{\"red\":true}"}, nil
}

type stubMetaReviewer struct {
	meta    agents.MetaReview
	err     error
	peerRaw string
	redRaw  string
}

func (s *stubMetaReviewer) Synthesize(_ context.Context, _ agents.PaperContext, peerRaw, redRaw string) (agents.Result[agents.MetaReview], error) {
	s.peerRaw, s.redRaw = peerRaw, redRaw
	if s.err != nil {
		return agents.Result[agents.MetaReview]{}, s.err
	}
	return agents.Result[agents.MetaReview]{Value: s.meta, Raw: "{\"meta\":true}"}, nil
}

type stubRevisor struct {
	revision agents.Revision
	err      error
}

func (s *stubRevisor) Revise(_ context.Context, _ agents.PaperContext, _ string) (agents.Result[agents.Revision], error) {
	if s.err != nil {
		return agents.Result[agents.Revision]{}, s.err
	}
	return agents.Result[agents.Revision]{Value: s.revision, Raw: "{}"}, nil
}

type stubRail struct {
	eval agents.RailEvaluation
	err  error
}

func (s *stubRail) Evaluate(_ context.Context, _ agents.PaperContext) (agents.RailEvaluation, error) {
	return s.eval, s.err
}

func defaultPeer() agents.PeerReview {
	return agents.PeerReview{
		Soundness:       4,
		Novelty:         4,
		Clarity:         3,
		Significance:    3,
		Reproducibility: 3,
		OverallScore:    7,
		Recommendation:  "minor_revision",
		Summary:         "Solid contribution with minor gaps.",
		MaturityLevel:   "L2",
	}
}

func defaultMeta(recommendation string) agents.MetaReview {
	return agents.MetaReview{
		FinalRecommendation: recommendation,
		Confidence:          0.8,
		Justification:       "Synthesis of both review tracks.",
		MaturityLevel:       "L2",
	}
}

type engineFixture struct {
	engine *Engine
	db     *sqlite.Client
	audit  *audit.Recorder
	meta   *stubMetaReviewer
}

func newEngineFixture(t *testing.T, adapters Adapters) *engineFixture {
	t.Helper()
	db, err := sqlite.NewClient(filepath.Join(t.TempDir(), "engine.db"))
	require.NoError(t, err)
	require.NoError(t, db.InitSchema())
	t.Cleanup(func() { db.Close() })

	rec, err := audit.NewRecorder(t.TempDir())
	require.NoError(t, err)

	meta, _ := adapters.MetaReviewer.(*stubMetaReviewer)
	return &engineFixture{
		engine: NewEngine(db, rec, adapters, "test-model"),
		db:     db,
		audit:  rec,
		meta:   meta,
	}
}

func reviewAdapters(recommendation string) Adapters {
	return Adapters{
		Reviewer:     &stubReviewer{review: defaultPeer()},
		RedTeam:      &stubRedTeam{report: agents.RedTeamReport{OverallRisk: "low", Confidence: 0.9, Summary: "no critical findings"}},
		MetaReviewer: &stubMetaReviewer{meta: defaultMeta(recommendation)},
		Revisor:      &stubRevisor{revision: agents.Revision{ChangesSummary: "tightened claims", RevisedText: "revised body"}},
	}
}

func (f *engineFixture) insertPaper(t *testing.T, status string) string {
	t.Helper()
	paperID, err := f.db.GeneratePaperID()
	require.NoError(t, err)
	now := time.Now().UTC()
	require.NoError(t, f.db.InsertPaper(&models.Paper{
		PaperID:       paperID,
		Title:         "Engine Test Paper",
		Authors:       "AI Scientist",
		Abstract:      "Abstract.",
		FullText:      "Body.",
		Status:        status,
		MaturityLevel: "L0",
		Version:       1,
		CreatedAt:     now,
		UpdatedAt:     now,
	}))
	return paperID
}

func TestRunFullReviewHappyPath(t *testing.T) {
	f := newEngineFixture(t, reviewAdapters("minor_revision"))
	paperID := f.insertPaper(t, string(lifecycle.StatusSubmitted))

	outcome, err := f.engine.RunFullReview(context.Background(), paperID)
	require.NoError(t, err)

	assert.Equal(t, string(lifecycle.StatusRevision), outcome.NewStatus)
	assert.Equal(t, "L2", outcome.MaturityLevel)

	paper, err := f.db.GetPaper(paperID)
	require.NoError(t, err)
	assert.Equal(t, string(lifecycle.StatusRevision), paper.Status)
	assert.Equal(t, "L2", paper.MaturityLevel)

	reviews, err := f.db.GetReviews(paperID)
	require.NoError(t, err)
	require.Len(t, reviews, 1)
	assert.Equal(t, 7, reviews[0].OverallScore)

	redteam, err := f.db.GetLatestRedTeamReport(paperID)
	require.NoError(t, err)
	assert.Equal(t, "low", redteam.OverallRisk)

	meta, err := f.db.GetLatestMetaReview(paperID)
	require.NoError(t, err)
	assert.Equal(t, "minor_revision", meta.FinalRecommendation)

	// The meta-review sees both raw stage outputs.
	assert.Equal(t, "{\"peer\":true}", f.meta.peerRaw)
	assert.Equal(t, "{\"red\":true}", f.meta.redRaw)

	decisions, err := f.audit.Decisions(paperID)
	require.NoError(t, err)
	actions := make([]string, 0, len(decisions))
	for _, d := range decisions {
		actions = append(actions, d.ActionType)
	}
	assert.Contains(t, actions, "peer_review")
	assert.Contains(t, actions, "redteam")
	assert.Contains(t, actions, "meta_review")
}

func TestRunFullReviewRecommendationMapping(t *testing.T) {
	cases := map[string]string{
		"accept":         string(lifecycle.StatusAccepted),
		"reject":         string(lifecycle.StatusRejected),
		"minor_revision": string(lifecycle.StatusRevision),
		"major_revision": string(lifecycle.StatusRevision),
	}
	for rec, want := range cases {
		f := newEngineFixture(t, reviewAdapters(rec))
		paperID := f.insertPaper(t, string(lifecycle.StatusSubmitted))

		outcome, err := f.engine.RunFullReview(context.Background(), paperID)
		require.NoError(t, err, rec)
		assert.Equal(t, want, outcome.NewStatus, rec)
	}
}

func TestRunFullReviewPartialFailureKeepsCompletedStage(t *testing.T) {
	adapters := reviewAdapters("accept")
	adapters.RedTeam = &stubRedTeam{err: errors.New("redteam backend unavailable"), delay: 50 * time.Millisecond}
	f := newEngineFixture(t, adapters)
	paperID := f.insertPaper(t, string(lifecycle.StatusSubmitted))

	_, err := f.engine.RunFullReview(context.Background(), paperID)
	require.Error(t, err)

	var stageErr *StageError
	require.ErrorAs(t, err, &stageErr)
	assert.Equal(t, "redteam", stageErr.Stage)

	// The peer review completed before the failing sibling joined, so its
	// row and decision record survive.
	reviews, dbErr := f.db.GetReviews(paperID)
	require.NoError(t, dbErr)
	assert.Len(t, reviews, 1)

	decisions, dbErr := f.audit.Decisions(paperID)
	require.NoError(t, dbErr)
	var sawPeer bool
	for _, d := range decisions {
		if d.ActionType == "peer_review" {
			sawPeer = true
		}
	}
	assert.True(t, sawPeer)

	// No synthesis ran and the paper stays under review.
	_, dbErr = f.db.GetLatestMetaReview(paperID)
	assert.ErrorIs(t, dbErr, models.ErrNotFound)

	paper, dbErr := f.db.GetPaper(paperID)
	require.NoError(t, dbErr)
	assert.Equal(t, string(lifecycle.StatusUnderReview), paper.Status)
}

func TestRunFullReviewEntryTransitions(t *testing.T) {
	t.Run("revision enters re_review", func(t *testing.T) {
		f := newEngineFixture(t, reviewAdapters("accept"))
		paperID := f.insertPaper(t, string(lifecycle.StatusRevision))

		outcome, err := f.engine.RunFullReview(context.Background(), paperID)
		require.NoError(t, err)
		assert.Equal(t, string(lifecycle.StatusAccepted), outcome.NewStatus)
	})

	t.Run("already under_review proceeds", func(t *testing.T) {
		f := newEngineFixture(t, reviewAdapters("accept"))
		paperID := f.insertPaper(t, string(lifecycle.StatusUnderReview))

		_, err := f.engine.RunFullReview(context.Background(), paperID)
		require.NoError(t, err)
	})

	t.Run("accepted paper re-enters review", func(t *testing.T) {
		f := newEngineFixture(t, reviewAdapters("accept"))
		paperID := f.insertPaper(t, string(lifecycle.StatusAccepted))

		outcome, err := f.engine.RunFullReview(context.Background(), paperID)
		require.NoError(t, err)
		assert.Equal(t, string(lifecycle.StatusAccepted), outcome.NewStatus)

		reviews, dbErr := f.db.GetReviews(paperID)
		require.NoError(t, dbErr)
		assert.Len(t, reviews, 1)

		// Re-running appends a second round rather than failing.
		_, err = f.engine.RunFullReview(context.Background(), paperID)
		require.NoError(t, err)
		reviews, dbErr = f.db.GetReviews(paperID)
		require.NoError(t, dbErr)
		assert.Len(t, reviews, 2)
	})

	t.Run("published paper re-enters review", func(t *testing.T) {
		f := newEngineFixture(t, reviewAdapters("reject"))
		paperID := f.insertPaper(t, string(lifecycle.StatusPublishedArena))

		outcome, err := f.engine.RunFullReview(context.Background(), paperID)
		require.NoError(t, err)
		assert.Equal(t, string(lifecycle.StatusRejected), outcome.NewStatus)
	})
}

func TestRunFullReviewUnknownPaper(t *testing.T) {
	f := newEngineFixture(t, reviewAdapters("accept"))

	_, err := f.engine.RunFullReview(context.Background(), "aiXiv:2508.404")
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestStatusForRecommendation(t *testing.T) {
	assert.Equal(t, string(lifecycle.StatusAccepted), statusForRecommendation("accept"))
	assert.Equal(t, string(lifecycle.StatusRejected), statusForRecommendation("reject"))
	assert.Equal(t, string(lifecycle.StatusRevision), statusForRecommendation("minor_revision"))
	assert.Equal(t, string(lifecycle.StatusRevision), statusForRecommendation(""))
}

func TestRunRailEvaluationPersistsPerScenario(t *testing.T) {
	adapters := reviewAdapters("accept")
	adapters.Rail = &stubRail{eval: agents.RailEvaluation{
		Scenarios: []agents.ScenarioEval{
			{Scenario: "ideal", Score: 8, Assessment: "clean"},
			{Scenario: "noisy", Score: 6, Assessment: "degrades gracefully"},
			{Scenario: "mismatch", Score: 5, Assessment: "holds"},
			{Scenario: "adversarial", Score: 5, Assessment: "holds"},
		},
		OverallRobustness: 6,
		Summary:           "Claims hold across conditions with minor degradation under noise.",
	}}
	f := newEngineFixture(t, adapters)
	paperID := f.insertPaper(t, string(lifecycle.StatusAccepted))

	outcome, err := f.engine.RunRailEvaluation(context.Background(), paperID)
	require.NoError(t, err)
	assert.True(t, outcome.Compliant)
	assert.Equal(t, 6, outcome.OverallRobustness)
	assert.Equal(t, "Claims hold across conditions with minor degradation under noise.", outcome.Summary)

	rows, err := f.db.GetEvalResults(paperID)
	require.NoError(t, err)
	assert.Len(t, rows, 4)

	summary, err := f.db.GetLatestRailSummary(paperID)
	require.NoError(t, err)
	assert.Equal(t, 6, summary.OverallRobustness)
	assert.True(t, summary.Compliant)
	assert.Equal(t, outcome.Summary, summary.Summary)
}

func TestRunRailEvaluationNonCompliant(t *testing.T) {
	adapters := reviewAdapters("accept")
	adapters.Rail = &stubRail{eval: agents.RailEvaluation{
		Scenarios: []agents.ScenarioEval{
			{Scenario: "ideal", Score: 8},
			{Scenario: "adversarial", Score: 2},
		},
		OverallRobustness: 5,
		Summary:           "Collapses under adversarial perturbation.",
	}}
	f := newEngineFixture(t, adapters)
	paperID := f.insertPaper(t, string(lifecycle.StatusAccepted))

	outcome, err := f.engine.RunRailEvaluation(context.Background(), paperID)
	require.NoError(t, err)
	assert.False(t, outcome.Compliant)

	summary, err := f.db.GetLatestRailSummary(paperID)
	require.NoError(t, err)
	assert.False(t, summary.Compliant)
}

func TestRunRailEvaluationRecordsVerdictSummary(t *testing.T) {
	adapters := reviewAdapters("accept")
	adapters.Rail = &stubRail{eval: agents.RailEvaluation{
		Scenarios: []agents.ScenarioEval{
			{Scenario: "ideal", Score: 7},
			{Scenario: "noisy", Score: 6},
			{Scenario: "mismatch", Score: 6},
			{Scenario: "adversarial", Score: 5},
		},
		OverallRobustness: 6,
		Summary:           "Robust under realistic noise, weakest under adversarial perturbation.",
	}}
	f := newEngineFixture(t, adapters)
	paperID := f.insertPaper(t, string(lifecycle.StatusAccepted))

	_, err := f.engine.RunRailEvaluation(context.Background(), paperID)
	require.NoError(t, err)

	// The decision record carries the model's verdict, not a synthetic
	// count of scenarios.
	decisions, err := f.audit.Decisions(paperID)
	require.NoError(t, err)
	require.Len(t, decisions, 1)
	assert.Equal(t, "rail_evaluation", decisions[0].ActionType)
	assert.Equal(t, "Robust under realistic noise, weakest under adversarial perturbation.", decisions[0].OutputSummary)
}

func TestGenerateRevisionDraftsAgainstLatestMetaReview(t *testing.T) {
	f := newEngineFixture(t, reviewAdapters("minor_revision"))
	paperID := f.insertPaper(t, string(lifecycle.StatusSubmitted))

	_, err := f.engine.RunFullReview(context.Background(), paperID)
	require.NoError(t, err)

	rev, err := f.engine.GenerateRevision(context.Background(), paperID)
	require.NoError(t, err)
	assert.Equal(t, "draft", rev.Status)
	assert.Equal(t, 2, rev.Version)
	assert.Equal(t, "tightened claims", rev.ChangesSummary)
	assert.NotZero(t, rev.ID)

	// The draft does not touch the paper until applied.
	paper, err := f.db.GetPaper(paperID)
	require.NoError(t, err)
	assert.Equal(t, "Body.", paper.FullText)
	assert.Equal(t, 1, paper.Version)

	require.NoError(t, f.engine.ApplyRevision(paperID, rev.ID))
	paper, err = f.db.GetPaper(paperID)
	require.NoError(t, err)
	assert.Equal(t, "revised body", paper.FullText)
	assert.Equal(t, 2, paper.Version)
}

func TestGenerateRevisionWithoutMetaReview(t *testing.T) {
	f := newEngineFixture(t, reviewAdapters("accept"))
	paperID := f.insertPaper(t, string(lifecycle.StatusSubmitted))

	_, err := f.engine.GenerateRevision(context.Background(), paperID)
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestTransitionGuardsLifecycle(t *testing.T) {
	f := newEngineFixture(t, reviewAdapters("accept"))
	paperID := f.insertPaper(t, string(lifecycle.StatusSubmitted))

	status, err := f.engine.Transition(paperID, lifecycle.StatusUnderReview)
	require.NoError(t, err)
	assert.Equal(t, lifecycle.StatusUnderReview, status)

	_, err = f.engine.Transition(paperID, lifecycle.StatusPublishedArena)
	assert.ErrorIs(t, err, lifecycle.ErrInvalidTransition)
}
