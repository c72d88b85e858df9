package sqlite

import (
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aixiv/backend/internal/storage/models"
)

func newTestClient(t *testing.T) *Client {
	t.Helper()
	client, err := NewClient(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	require.NoError(t, client.InitSchema())
	t.Cleanup(func() { client.Close() })
	return client
}

func insertTestPaper(t *testing.T, c *Client, status string) string {
	t.Helper()
	paperID, err := c.GeneratePaperID()
	require.NoError(t, err)

	now := time.Now().UTC()
	err = c.InsertPaper(&models.Paper{
		PaperID:       paperID,
		Title:         "Test Paper",
		Authors:       "AI Scientist",
		Abstract:      "An abstract.",
		FullText:      "Full text v1.",
		Status:        status,
		MaturityLevel: "L1",
		Version:       1,
		CreatedAt:     now,
		UpdatedAt:     now,
	})
	require.NoError(t, err)
	return paperID
}

func TestGeneratePaperIDSequence(t *testing.T) {
	client := newTestClient(t)

	prefix := fmt.Sprintf("aiXiv:%s", time.Now().UTC().Format("0601"))

	first, err := client.GeneratePaperID()
	require.NoError(t, err)
	assert.Equal(t, prefix+".001", first)

	// Unused ids do not consume sequence numbers.
	again, err := client.GeneratePaperID()
	require.NoError(t, err)
	assert.Equal(t, first, again)

	insertTestPaper(t, client, "submitted")
	second, err := client.GeneratePaperID()
	require.NoError(t, err)
	assert.Equal(t, prefix+".002", second)
}

func TestGetPaperNotFound(t *testing.T) {
	client := newTestClient(t)

	_, err := client.GetPaper("aiXiv:2508.404")
	assert.ErrorIs(t, err, models.ErrNotFound)

	_, err = client.GetPaperStatus("aiXiv:2508.404")
	assert.ErrorIs(t, err, models.ErrNotFound)

	err = client.UpdatePaperStatus("aiXiv:2508.404", "under_review")
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestPaperRoundTrip(t *testing.T) {
	client := newTestClient(t)
	paperID := insertTestPaper(t, client, "submitted")

	paper, err := client.GetPaper(paperID)
	require.NoError(t, err)
	assert.Equal(t, "Test Paper", paper.Title)
	assert.Equal(t, "submitted", paper.Status)
	assert.Equal(t, "L1", paper.MaturityLevel)
	assert.Equal(t, 1, paper.Version)
}

func TestUpdatePaperOutcome(t *testing.T) {
	client := newTestClient(t)
	paperID := insertTestPaper(t, client, "under_review")

	require.NoError(t, client.UpdatePaperOutcome(paperID, "L3", "accepted"))

	paper, err := client.GetPaper(paperID)
	require.NoError(t, err)
	assert.Equal(t, "accepted", paper.Status)
	assert.Equal(t, "L3", paper.MaturityLevel)
}

func TestListPapersFiltersByStatus(t *testing.T) {
	client := newTestClient(t)
	insertTestPaper(t, client, "submitted")
	insertTestPaper(t, client, "accepted")
	insertTestPaper(t, client, "accepted")

	accepted, err := client.ListPapers("accepted", 10)
	require.NoError(t, err)
	assert.Len(t, accepted, 2)

	all, err := client.ListPapers("", 10)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestReviewsAppendOnly(t *testing.T) {
	client := newTestClient(t)
	paperID := insertTestPaper(t, client, "under_review")

	for i, score := range []int{6, 8} {
		err := client.InsertReview(&models.Review{
			PaperID:      paperID,
			ReviewerType: "ai",
			ReviewLayer:  "full",
			OverallScore: score,
			Soundness:    3 + i,
			CreatedAt:    time.Now().UTC(),
		})
		require.NoError(t, err)
	}

	reviews, err := client.GetReviews(paperID)
	require.NoError(t, err)
	require.Len(t, reviews, 2)

	count, err := client.CountReviews(paperID)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestApplyRevisionBumpsVersion(t *testing.T) {
	client := newTestClient(t)
	paperID := insertTestPaper(t, client, "revision")

	revID, err := client.InsertRevision(&models.Revision{
		PaperID:        paperID,
		Version:        2,
		ChangesSummary: "tightened claims",
		RevisedText:    "Full text v2.",
		Status:         "draft",
		CreatedAt:      time.Now().UTC(),
	})
	require.NoError(t, err)

	require.NoError(t, client.ApplyRevision(paperID, revID))

	paper, err := client.GetPaper(paperID)
	require.NoError(t, err)
	assert.Equal(t, "Full text v2.", paper.FullText)
	assert.Equal(t, 2, paper.Version)

	revisions, err := client.GetRevisions(paperID)
	require.NoError(t, err)
	require.Len(t, revisions, 1)
	assert.Equal(t, "applied", revisions[0].Status)
}

func TestApplyRevisionUnknownRevision(t *testing.T) {
	client := newTestClient(t)
	paperID := insertTestPaper(t, client, "revision")

	err := client.ApplyRevision(paperID, 999)
	assert.ErrorIs(t, err, models.ErrNotFound)

	// Paper untouched.
	paper, err := client.GetPaper(paperID)
	require.NoError(t, err)
	assert.Equal(t, 1, paper.Version)
}

func TestUpsertArenaPaperReplaces(t *testing.T) {
	client := newTestClient(t)
	paperID := insertTestPaper(t, client, "accepted")

	first := &models.ArenaPaper{
		PaperID:       paperID,
		Title:         "Test Paper",
		ReviewScore:   7.5,
		MaturityLevel: "L2",
		ReviewCount:   1,
		BadgesJSON:    `["High Soundness"]`,
		PromotedAt:    time.Now().UTC(),
	}
	require.NoError(t, client.UpsertArenaPaper(first))

	second := *first
	second.ReviewScore = 8.5
	second.MaturityLevel = "L3"
	second.ReviewCount = 2
	require.NoError(t, client.UpsertArenaPaper(&second))

	entry, err := client.GetArenaPaper(paperID)
	require.NoError(t, err)
	assert.Equal(t, 8.5, entry.ReviewScore)
	assert.Equal(t, "L3", entry.MaturityLevel)
	assert.Equal(t, 2, entry.ReviewCount)

	board, err := client.GetArenaLeaderboard("", "", 10)
	require.NoError(t, err)
	assert.Len(t, board, 1, "upsert must not duplicate leaderboard rows")
}

func TestLeaderboardOrderAndFilters(t *testing.T) {
	client := newTestClient(t)

	for i, score := range []float64{6.0, 9.0, 7.5} {
		paperID := insertTestPaper(t, client, "accepted")
		level := "L2"
		if i == 1 {
			level = "L4"
		}
		require.NoError(t, client.UpsertArenaPaper(&models.ArenaPaper{
			PaperID:       paperID,
			Title:         "Paper",
			Categories:    "cs.LG",
			ReviewScore:   score,
			MaturityLevel: level,
			BadgesJSON:    "[]",
			PromotedAt:    time.Now().UTC(),
		}))
	}

	board, err := client.GetArenaLeaderboard("", "", 10)
	require.NoError(t, err)
	require.Len(t, board, 3)
	assert.Equal(t, 9.0, board[0].ReviewScore)
	assert.Equal(t, 7.5, board[1].ReviewScore)
	assert.Equal(t, 6.0, board[2].ReviewScore)

	l4, err := client.GetArenaLeaderboard("", "L4", 10)
	require.NoError(t, err)
	require.Len(t, l4, 1)
	assert.Equal(t, 9.0, l4[0].ReviewScore)

	cat, err := client.GetArenaLeaderboard("cs.LG", "", 10)
	require.NoError(t, err)
	assert.Len(t, cat, 3)
}

func TestPipelineStats(t *testing.T) {
	client := newTestClient(t)

	p1 := insertTestPaper(t, client, "submitted")
	insertTestPaper(t, client, "accepted")

	require.NoError(t, client.InsertReview(&models.Review{
		PaperID:      p1,
		OverallScore: 7,
		Soundness:    4,
		Novelty:      3,
		CreatedAt:    time.Now().UTC(),
	}))

	stats, err := client.GetPipelineStats(
		[]string{"submitted", "accepted", "rejected"},
		[]string{"L0", "L1"},
	)
	require.NoError(t, err)

	assert.Equal(t, 1, stats.StatusCounts["submitted"])
	assert.Equal(t, 1, stats.StatusCounts["accepted"])
	assert.Equal(t, 0, stats.StatusCounts["rejected"])
	assert.Equal(t, 2, stats.Total)
	assert.Equal(t, 2, stats.MaturityDistribution["L1"])
	assert.Equal(t, 1, stats.TotalReviews)
	assert.Equal(t, 7.0, stats.ReviewScoreAvg)
	assert.Equal(t, 4.0, stats.ReviewDimensions["soundness"])
}

func TestArenaStats(t *testing.T) {
	client := newTestClient(t)
	paperID := insertTestPaper(t, client, "accepted")

	require.NoError(t, client.UpsertArenaPaper(&models.ArenaPaper{
		PaperID:       paperID,
		ReviewScore:   8.0,
		MaturityLevel: "L3",
		RailCompliant: true,
		BadgesJSON:    "[]",
		PromotedAt:    time.Now().UTC(),
	}))

	stats, err := client.GetArenaStats([]string{"L0", "L3"})
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Total)
	assert.Equal(t, 8.0, stats.AvgScore)
	assert.Equal(t, 1, stats.RailCompliant)
	assert.Equal(t, 1, stats.MaturityDistribution["L3"])
}

func TestEvalResultsRoundTrip(t *testing.T) {
	client := newTestClient(t)
	paperID := insertTestPaper(t, client, "accepted")

	for _, scenario := range []string{"ideal", "noisy", "mismatch", "adversarial"} {
		require.NoError(t, client.InsertEvalResult(&models.EvalResult{
			PaperID:   paperID,
			Scenario:  scenario,
			Score:     6,
			GapsJSON:  "[]",
			CreatedAt: time.Now().UTC(),
		}))
	}

	results, err := client.GetEvalResults(paperID)
	require.NoError(t, err)
	require.Len(t, results, 4)
	assert.Equal(t, "ideal", results[0].Scenario)
}

func TestRailSummaryRoundTrip(t *testing.T) {
	client := newTestClient(t)
	paperID := insertTestPaper(t, client, "accepted")

	_, err := client.GetLatestRailSummary(paperID)
	assert.ErrorIs(t, err, models.ErrNotFound)

	require.NoError(t, client.InsertRailSummary(&models.RailSummary{
		PaperID:           paperID,
		OverallRobustness: 7,
		Compliant:         true,
		Summary:           "Holds up across conditions.",
		CreatedAt:         time.Now().UTC(),
	}))

	got, err := client.GetLatestRailSummary(paperID)
	require.NoError(t, err)
	assert.Equal(t, 7, got.OverallRobustness)
	assert.True(t, got.Compliant)
	assert.Equal(t, "Holds up across conditions.", got.Summary)
}
