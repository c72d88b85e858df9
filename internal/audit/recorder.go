// Package audit implements the immutable decision-record log: one
// append-only JSONL stream per paper. Records are never updated or
// deleted; a failed write is a hard error because the log is the
// compliance trail for every AI-driven action.
package audit

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/aixiv/backend/internal/metrics"
	"github.com/aixiv/backend/internal/storage/models"
	"github.com/aixiv/backend/pkg/logger"
	"github.com/aixiv/backend/pkg/utils"
)

const maxSummaryLen = 1000

type Recorder struct {
	dir string
	mu  sync.Mutex
}

func NewRecorder(dir string) (*Recorder, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create audit log dir: %w", err)
	}
	return &Recorder{dir: dir}, nil
}

// Record appends one decision entry to the paper's stream. The record id
// is a digest of paper, action, and time; the prompt is digested, never
// stored; summaries are truncated to a fixed bound.
func (r *Recorder) Record(paperID, actionType, modelUsed, promptText, inputSummary, outputSummary string) (*models.DecisionRecord, error) {
	now := time.Now().UTC()

	record := &models.DecisionRecord{
		ID:            utils.ShortHash(fmt.Sprintf("%s%s%d", paperID, actionType, now.UnixNano())),
		PaperID:       paperID,
		ActionType:    actionType,
		ModelUsed:     modelUsed,
		PromptHash:    utils.ShortHash(promptText),
		InputSummary:  utils.Truncate(inputSummary, maxSummaryLen),
		OutputSummary: utils.Truncate(outputSummary, maxSummaryLen),
		Timestamp:     float64(now.UnixNano()) / 1e9,
		ISOTime:       now.Format("2006-01-02T15:04:05Z"),
	}

	data, err := json.Marshal(record)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal decision record: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	f, err := os.OpenFile(r.logPath(paperID), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open audit log: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(append(data, '\n')); err != nil {
		return nil, fmt.Errorf("failed to append decision record: %w", err)
	}
	metrics.DecisionRecords.WithLabelValues(actionType).Inc()

	logger.Debug("Decision recorded",
		zap.String("paper_id", paperID),
		zap.String("action_type", actionType),
		zap.String("record_id", record.ID),
	)

	return record, nil
}

// Decisions replays the full stream for a paper in append order.
// Malformed lines (torn writes, corruption) are skipped rather than
// failing the read.
func (r *Recorder) Decisions(paperID string) ([]models.DecisionRecord, error) {
	f, err := os.Open(r.logPath(paperID))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open audit log: %w", err)
	}
	defer f.Close()

	return r.readStream(f, paperID)
}

// Recent returns the most recent records across all papers, newest first.
func (r *Recorder) Recent(limit int) ([]models.DecisionRecord, error) {
	files, err := filepath.Glob(filepath.Join(r.dir, "*.jsonl"))
	if err != nil {
		return nil, fmt.Errorf("failed to list audit logs: %w", err)
	}

	var all []models.DecisionRecord
	for _, path := range files {
		f, err := os.Open(path)
		if err != nil {
			logger.Warn("Failed to open audit log", zap.String("path", path), zap.Error(err))
			continue
		}
		records, err := r.readStream(f, path)
		f.Close()
		if err != nil {
			return nil, err
		}
		all = append(all, records...)
	}

	sort.Slice(all, func(i, j int) bool { return all[i].Timestamp > all[j].Timestamp })
	if limit > 0 && len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}

func (r *Recorder) readStream(f *os.File, name string) ([]models.DecisionRecord, error) {
	var records []models.DecisionRecord
	skipped := 0

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var rec models.DecisionRecord
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			skipped++
			continue
		}
		records = append(records, rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read audit log: %w", err)
	}

	if skipped > 0 {
		logger.Warn("Skipped malformed audit entries",
			zap.String("stream", name),
			zap.Int("skipped", skipped),
		)
	}

	return records, nil
}

func (r *Recorder) logPath(paperID string) string {
	safe := strings.NewReplacer(":", "_", ".", "_", "/", "_").Replace(paperID)
	return filepath.Join(r.dir, safe+".jsonl")
}
