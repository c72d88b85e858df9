package audit

import (
	"encoding/hex"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRecorder(t *testing.T) *Recorder {
	t.Helper()
	rec, err := NewRecorder(t.TempDir())
	require.NoError(t, err)
	return rec
}

func TestRecordAndReplay(t *testing.T) {
	rec := newTestRecorder(t)

	actions := []string{"peer_review", "redteam", "meta_review"}
	for _, action := range actions {
		_, err := rec.Record("aiXiv:2508.001", action, "gpt-4", "system prompt", "Title: Test", "summary for "+action)
		require.NoError(t, err)
	}

	records, err := rec.Decisions("aiXiv:2508.001")
	require.NoError(t, err)
	require.Len(t, records, 3)

	// Append order is preserved.
	for i, action := range actions {
		assert.Equal(t, action, records[i].ActionType)
		assert.Equal(t, "aiXiv:2508.001", records[i].PaperID)
		assert.Equal(t, "gpt-4", records[i].ModelUsed)
		assert.NotEmpty(t, records[i].ID)
	}
}

func TestRecordIDContentDerived(t *testing.T) {
	rec := newTestRecorder(t)

	record, err := rec.Record("aiXiv:2508.005", "peer_review", "gpt-4", "", "in", "out")
	require.NoError(t, err)

	// Ids are digests of paper, action, and time.
	require.Len(t, record.ID, 16)
	_, err = hex.DecodeString(record.ID)
	assert.NoError(t, err, "record id is a truncated hex digest")

	second, err := rec.Record("aiXiv:2508.005", "redteam", "gpt-4", "", "in", "out")
	require.NoError(t, err)
	assert.NotEqual(t, record.ID, second.ID)
}

func TestPromptNeverStored(t *testing.T) {
	rec := newTestRecorder(t)

	prompt := "HIGHLY SENSITIVE SYSTEM PROMPT CONTENT"
	record, err := rec.Record("aiXiv:2508.002", "peer_review", "gpt-4", prompt, "in", "out")
	require.NoError(t, err)

	assert.NotContains(t, record.PromptHash, "SENSITIVE")
	assert.Len(t, record.PromptHash, 16)

	raw, err := os.ReadFile(filepath.Join(rec.dir, "aiXiv_2508_002.jsonl"))
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "SENSITIVE")
}

func TestSummariesTruncated(t *testing.T) {
	rec := newTestRecorder(t)

	long := strings.Repeat("x", 5000)
	record, err := rec.Record("aiXiv:2508.003", "meta_review", "gpt-4", "", long, long)
	require.NoError(t, err)

	assert.Len(t, record.InputSummary, maxSummaryLen)
	assert.Len(t, record.OutputSummary, maxSummaryLen)
}

func TestDecisionsSkipsMalformedLines(t *testing.T) {
	rec := newTestRecorder(t)

	_, err := rec.Record("aiXiv:2508.004", "peer_review", "gpt-4", "", "in", "first")
	require.NoError(t, err)

	// Simulate a torn write.
	path := filepath.Join(rec.dir, "aiXiv_2508_004.jsonl")
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	_, err = f.WriteString(`{"paper_id": "aiXiv:2508.00`)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	records, err := rec.Decisions("aiXiv:2508.004")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "first", records[0].OutputSummary)

	// The stream stays appendable after corruption.
	_, err = rec.Record("aiXiv:2508.004", "redteam", "gpt-4", "", "in", "second")
	require.NoError(t, err)

	records, err = rec.Decisions("aiXiv:2508.004")
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "second", records[1].OutputSummary)
}

func TestDecisionsMissingPaper(t *testing.T) {
	rec := newTestRecorder(t)

	records, err := rec.Decisions("aiXiv:2508.404")
	require.NoError(t, err)
	assert.Nil(t, records)
}

func TestRecentOrdersNewestFirst(t *testing.T) {
	rec := newTestRecorder(t)

	papers := []string{"aiXiv:2508.010", "aiXiv:2508.011", "aiXiv:2508.012"}
	for _, p := range papers {
		_, err := rec.Record(p, "peer_review", "gpt-4", "", "in", "out")
		require.NoError(t, err)
	}

	records, err := rec.Recent(2)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.GreaterOrEqual(t, records[0].Timestamp, records[1].Timestamp)
}

func TestLogPathSanitizesPaperID(t *testing.T) {
	rec := newTestRecorder(t)

	path := rec.logPath("aiXiv:2508.001")
	assert.Equal(t, filepath.Join(rec.dir, "aiXiv_2508_001.jsonl"), path)
	assert.NotContains(t, filepath.Base(path), ":")
}
