package arena

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aixiv/backend/internal/audit"
	"github.com/aixiv/backend/internal/lifecycle"
	"github.com/aixiv/backend/internal/storage/models"
	"github.com/aixiv/backend/internal/storage/sqlite"
)

type countingInvalidator struct {
	calls int
}

func (c *countingInvalidator) InvalidateArena() { c.calls++ }

func newTestService(t *testing.T) (*Service, *sqlite.Client, *countingInvalidator) {
	t.Helper()
	db, err := sqlite.NewClient(filepath.Join(t.TempDir(), "arena.db"))
	require.NoError(t, err)
	require.NoError(t, db.InitSchema())
	t.Cleanup(func() { db.Close() })

	rec, err := audit.NewRecorder(t.TempDir())
	require.NoError(t, err)

	inv := &countingInvalidator{}
	return NewService(db, rec, inv), db, inv
}

func insertAcceptedPaper(t *testing.T, db *sqlite.Client, maturity string) string {
	t.Helper()
	paperID, err := db.GeneratePaperID()
	require.NoError(t, err)

	now := time.Now().UTC()
	require.NoError(t, db.InsertPaper(&models.Paper{
		PaperID:       paperID,
		Title:         "Arena Candidate",
		Authors:       "AI Scientist",
		Abstract:      "An abstract.",
		Status:        string(lifecycle.StatusAccepted),
		MaturityLevel: maturity,
		Version:       1,
		CreatedAt:     now,
		UpdatedAt:     now,
	}))
	return paperID
}

func insertReviewScores(t *testing.T, db *sqlite.Client, paperID string, scores ...int) {
	t.Helper()
	for _, s := range scores {
		require.NoError(t, db.InsertReview(&models.Review{
			PaperID:      paperID,
			ReviewerType: "ai",
			OverallScore: s,
			Soundness:    3,
			Novelty:      3,
			CreatedAt:    time.Now().UTC(),
		}))
	}
}

func TestCompositeScore(t *testing.T) {
	reviews := []models.Review{{OverallScore: 6}, {OverallScore: 8}}

	// mean 7 plus the L3 bonus of 1.5
	assert.Equal(t, 8.5, CompositeScore(reviews, "L3"))
	assert.Equal(t, 7.0, CompositeScore(reviews, "L0"))
	assert.Equal(t, 9.5, CompositeScore(reviews, "L5"))
	assert.Equal(t, 7.0, CompositeScore(reviews, "unknown"), "unknown level gets no bonus")
	assert.Equal(t, 0.0, CompositeScore(nil, "L5"))
}

func TestCompositeScoreRounding(t *testing.T) {
	reviews := []models.Review{{OverallScore: 7}, {OverallScore: 6}, {OverallScore: 7}}
	// mean 6.666... + 0.5 rounds to 7.17
	assert.Equal(t, 7.17, CompositeScore(reviews, "L1"))
}

func TestPromoteRequiresReview(t *testing.T) {
	svc, db, inv := newTestService(t)
	paperID := insertAcceptedPaper(t, db, "L2")

	_, err := svc.Promote(paperID)
	assert.ErrorIs(t, err, ErrNotReviewed)
	assert.Zero(t, inv.calls)

	// Paper untouched.
	paper, err := db.GetPaper(paperID)
	require.NoError(t, err)
	assert.Equal(t, string(lifecycle.StatusAccepted), paper.Status)
}

func TestPromoteUnknownPaper(t *testing.T) {
	svc, _, _ := newTestService(t)

	_, err := svc.Promote("aiXiv:2508.404")
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestPromoteComputesScoreAndBadges(t *testing.T) {
	svc, db, inv := newTestService(t)
	paperID := insertAcceptedPaper(t, db, "L3")
	insertReviewScores(t, db, paperID, 6, 8)

	require.NoError(t, db.InsertReview(&models.Review{
		PaperID:      paperID,
		OverallScore: 7,
		Soundness:    5,
		Novelty:      4,
		CreatedAt:    time.Now().UTC(),
	}))

	require.NoError(t, db.InsertRedTeamReport(&models.RedTeamReport{
		PaperID:     paperID,
		OverallRisk: "low",
		Confidence:  0.9,
		CreatedAt:   time.Now().UTC(),
	}))

	for _, scenario := range []string{"ideal", "noisy", "mismatch", "adversarial"} {
		require.NoError(t, db.InsertEvalResult(&models.EvalResult{
			PaperID:   paperID,
			Scenario:  scenario,
			Score:     6,
			GapsJSON:  "[]",
			CreatedAt: time.Now().UTC(),
		}))
	}

	promotion, err := svc.Promote(paperID)
	require.NoError(t, err)

	// mean(6,8,7)=7 plus L3 bonus 1.5
	assert.Equal(t, 8.5, promotion.ReviewScore)
	assert.Equal(t, "L3", promotion.MaturityLevel)
	assert.Equal(t, 3, promotion.ReviewCount)
	assert.True(t, promotion.RailCompliant)
	assert.Contains(t, promotion.Badges, "L3 Certified")
	assert.NotContains(t, promotion.Badges, "L4 Certified")
	assert.Contains(t, promotion.Badges, "Red-Team Cleared")
	assert.Contains(t, promotion.Badges, "Rail Compliant")
	assert.Contains(t, promotion.Badges, "High Soundness")
	assert.Contains(t, promotion.Badges, "High Novelty")

	paper, err := db.GetPaper(paperID)
	require.NoError(t, err)
	assert.Equal(t, string(lifecycle.StatusPublishedArena), paper.Status)

	assert.Equal(t, 1, inv.calls, "promotion must invalidate caches")
}

func TestPromoteBadgesWithheld(t *testing.T) {
	svc, db, _ := newTestService(t)
	paperID := insertAcceptedPaper(t, db, "L1")
	insertReviewScores(t, db, paperID, 5)

	require.NoError(t, db.InsertRedTeamReport(&models.RedTeamReport{
		PaperID:     paperID,
		OverallRisk: "high",
		CreatedAt:   time.Now().UTC(),
	}))
	// One scenario below the threshold blocks rail compliance.
	for _, s := range []struct {
		name  string
		score float64
	}{{"ideal", 8}, {"noisy", 7}, {"mismatch", 6}, {"adversarial", 4}} {
		require.NoError(t, db.InsertEvalResult(&models.EvalResult{
			PaperID:   paperID,
			Scenario:  s.name,
			Score:     s.score,
			GapsJSON:  "[]",
			CreatedAt: time.Now().UTC(),
		}))
	}

	promotion, err := svc.Promote(paperID)
	require.NoError(t, err)

	assert.False(t, promotion.RailCompliant)
	assert.NotContains(t, promotion.Badges, "Rail Compliant")
	assert.NotContains(t, promotion.Badges, "Red-Team Cleared")
	assert.NotContains(t, promotion.Badges, "L3 Certified")
	assert.NotContains(t, promotion.Badges, "High Soundness")
}

func TestRepromotionRecomputes(t *testing.T) {
	svc, db, _ := newTestService(t)
	paperID := insertAcceptedPaper(t, db, "L2")
	insertReviewScores(t, db, paperID, 6)

	first, err := svc.Promote(paperID)
	require.NoError(t, err)
	assert.Equal(t, 7.0, first.ReviewScore)

	insertReviewScores(t, db, paperID, 8)
	second, err := svc.Promote(paperID)
	require.NoError(t, err)
	assert.Equal(t, 8.0, second.ReviewScore)
	assert.Equal(t, 2, second.ReviewCount)

	board, err := svc.Leaderboard("", "", 10)
	require.NoError(t, err)
	require.Len(t, board, 1, "re-promotion replaces, never duplicates")
	assert.Equal(t, 8.0, board[0].ReviewScore)
}
