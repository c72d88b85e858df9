// Package arena promotes accepted papers into the ranked Tier 2 arena
// and serves its leaderboard.
package arena

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/aixiv/backend/internal/audit"
	"github.com/aixiv/backend/internal/lifecycle"
	"github.com/aixiv/backend/internal/metrics"
	"github.com/aixiv/backend/internal/storage/models"
	"github.com/aixiv/backend/internal/storage/sqlite"
	"github.com/aixiv/backend/pkg/logger"
)

// ErrNotReviewed rejects promotion of papers with no review on record.
var ErrNotReviewed = errors.New("paper must be reviewed before promotion")

// maturityBonus feeds the composite score: higher maturity levels add a
// flat bonus on top of the review average.
var maturityBonus = map[string]float64{
	"L0": 0, "L1": 0.5, "L2": 1.0, "L3": 1.5, "L4": 2.0, "L5": 2.5,
}

const railComplianceThreshold = 5

// badgeInputs is everything a badge rule may inspect.
type badgeInputs struct {
	paper   *models.Paper
	reviews []models.Review
	redteam *models.RedTeamReport
	evals   []models.EvalResult
}

type badgeRule struct {
	name string
	test func(in badgeInputs) bool
}

var badgeRules = []badgeRule{
	{"L3 Certified", func(in badgeInputs) bool {
		return in.paper.MaturityLevel == "L3" || in.paper.MaturityLevel == "L4" || in.paper.MaturityLevel == "L5"
	}},
	{"L4 Certified", func(in badgeInputs) bool {
		return in.paper.MaturityLevel == "L4" || in.paper.MaturityLevel == "L5"
	}},
	{"L5 Certified", func(in badgeInputs) bool {
		return in.paper.MaturityLevel == "L5"
	}},
	{"Red-Team Cleared", func(in badgeInputs) bool {
		return in.redteam != nil && in.redteam.OverallRisk == "low"
	}},
	{"Rail Compliant", func(in badgeInputs) bool {
		if len(in.evals) == 0 {
			return false
		}
		for _, e := range in.evals {
			if e.Score < railComplianceThreshold {
				return false
			}
		}
		return true
	}},
	{"High Soundness", func(in badgeInputs) bool {
		for _, r := range in.reviews {
			if r.Soundness >= 4 {
				return true
			}
		}
		return false
	}},
	{"High Novelty", func(in badgeInputs) bool {
		for _, r := range in.reviews {
			if r.Novelty >= 4 {
				return true
			}
		}
		return false
	}},
}

// Promotion summarizes one promotion run.
type Promotion struct {
	PaperID       string   `json:"paper_id"`
	ReviewScore   float64  `json:"review_score"`
	MaturityLevel string   `json:"maturity_level"`
	Badges        []string `json:"badges"`
	RailCompliant bool     `json:"rail_compliant"`
	ReviewCount   int      `json:"review_count"`
}

// Invalidator is notified after each promotion so cached leaderboards
// can be dropped.
type Invalidator interface {
	InvalidateArena()
}

type Service struct {
	db          *sqlite.Client
	audit       *audit.Recorder
	invalidator Invalidator
}

func NewService(db *sqlite.Client, rec *audit.Recorder, inv Invalidator) *Service {
	return &Service{db: db, audit: rec, invalidator: inv}
}

// Promote computes the composite score and badges from everything on
// record, upserts the arena projection, and marks the paper published.
// Promotion requires at least one review; re-promotion recomputes and
// replaces the projection.
func (s *Service) Promote(paperID string) (*Promotion, error) {
	paper, err := s.db.GetPaper(paperID)
	if err != nil {
		return nil, err
	}

	reviews, err := s.db.GetReviews(paperID)
	if err != nil {
		return nil, err
	}
	if len(reviews) == 0 {
		return nil, ErrNotReviewed
	}

	redteam, err := s.db.GetLatestRedTeamReport(paperID)
	if err != nil && !errors.Is(err, models.ErrNotFound) {
		return nil, err
	}
	evals, err := s.db.GetEvalResults(paperID)
	if err != nil {
		return nil, err
	}

	maturity := paper.MaturityLevel
	if maturity == "" {
		maturity = "L0"
	}

	score := CompositeScore(reviews, maturity)
	badges := computeBadges(badgeInputs{paper: paper, reviews: reviews, redteam: redteam, evals: evals})
	railCompliant := contains(badges, "Rail Compliant")

	badgesJSON, err := json.Marshal(badges)
	if err != nil {
		return nil, fmt.Errorf("failed to encode badges: %w", err)
	}

	entry := &models.ArenaPaper{
		PaperID:       paperID,
		Title:         paper.Title,
		Authors:       paper.Authors,
		Abstract:      paper.Abstract,
		Categories:    paper.Categories,
		ReviewScore:   score,
		MaturityLevel: maturity,
		RailCompliant: railCompliant,
		ReviewCount:   len(reviews),
		BadgesJSON:    string(badgesJSON),
		PromotedAt:    time.Now().UTC(),
	}
	if err := s.db.UpsertArenaPaper(entry); err != nil {
		return nil, err
	}
	if err := s.db.UpdatePaperStatus(paperID, string(lifecycle.StatusPublishedArena)); err != nil {
		return nil, err
	}
	metrics.ArenaPromotions.Inc()
	metrics.StatusTransitions.WithLabelValues(string(lifecycle.StatusPublishedArena)).Inc()

	if _, err := s.audit.Record(paperID, "arena_promotion", "system", "",
		"Title: "+paper.Title,
		fmt.Sprintf("promoted with score %.2f, %d badges", score, len(badges))); err != nil {
		return nil, err
	}

	if s.invalidator != nil {
		s.invalidator.InvalidateArena()
	}

	logger.Info("Paper promoted to arena",
		zap.String("paper_id", paperID),
		zap.Float64("score", score),
		zap.Strings("badges", badges))

	return &Promotion{
		PaperID:       paperID,
		ReviewScore:   score,
		MaturityLevel: maturity,
		Badges:        badges,
		RailCompliant: railCompliant,
		ReviewCount:   len(reviews),
	}, nil
}

// CompositeScore is the mean review score plus the maturity bonus,
// rounded to two decimals.
func CompositeScore(reviews []models.Review, maturityLevel string) float64 {
	if len(reviews) == 0 {
		return 0
	}
	var sum float64
	for _, r := range reviews {
		sum += float64(r.OverallScore)
	}
	avg := sum / float64(len(reviews))
	return math.Round((avg+maturityBonus[maturityLevel])*100) / 100
}

func computeBadges(in badgeInputs) []string {
	badges := []string{}
	for _, rule := range badgeRules {
		if rule.test(in) {
			badges = append(badges, rule.name)
		}
	}
	return badges
}

// Leaderboard returns arena entries sorted by composite score with
// optional category and maturity filters.
func (s *Service) Leaderboard(category, maturity string, limit int) ([]models.ArenaPaper, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	return s.db.GetArenaLeaderboard(category, maturity, limit)
}

// Stats returns aggregate arena statistics.
func (s *Service) Stats() (*models.ArenaStats, error) {
	return s.db.GetArenaStats([]string{"L0", "L1", "L2", "L3", "L4", "L5"})
}

// Entry returns one paper's arena projection.
func (s *Service) Entry(paperID string) (*models.ArenaPaper, error) {
	return s.db.GetArenaPaper(paperID)
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
