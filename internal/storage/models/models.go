package models

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a referenced record does not exist.
var ErrNotFound = errors.New("record not found")

// Paper is the central entity. Status is owned by the orchestrator;
// Version only ever increases; MaturityLevel is L0..L5.
type Paper struct {
	ID            int64
	PaperID       string
	Title         string
	Authors       string
	Affiliation   string
	Abstract      string
	Keywords      string
	Categories    string
	FullText      string
	Status        string
	MaturityLevel string
	Version       int
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Review is one peer-review record. Reviews are append-only per paper.
type Review struct {
	ID               int64
	PaperID          string
	ReviewerType     string
	ReviewLayer      string
	OverallScore     int
	Soundness        int
	Novelty          int
	Clarity          int
	Significance     int
	Reproducibility  int
	Summary          string
	Strengths        string
	Weaknesses       string
	Questions        string
	Recommendation   string
	DetailedFeedback string
	MaturityLevel    string
	GateAnalysis     string
	RawReview        string
	CreatedAt        time.Time
}

// RedTeamReport stores one adversarial analysis run. Findings and
// attack scenarios are kept as JSON blobs, matching the review tables.
type RedTeamReport struct {
	ID              int64
	PaperID         string
	OverallRisk     string
	Confidence      float64
	FindingsJSON    string
	AttackScenarios string
	Summary         string
	RawReport       string
	CreatedAt       time.Time
}

type MetaReview struct {
	ID                     int64
	PaperID                string
	FinalRecommendation    string
	Confidence             float64
	Justification          string
	MaturityLevel          string
	RequiredChangesJSON    string
	SuggestedChangesJSON   string
	SummaryForAuthors      string
	ArenaEligible          bool
	ArenaEligibilityReason string
	RawReview              string
	CreatedAt              time.Time
}

type Revision struct {
	ID             int64
	PaperID        string
	Version        int
	ChangesSummary string
	RevisionLetter string
	RevisedText    string
	Status         string // draft, submitted, applied
	CreatedAt      time.Time
}

// EvalResult is one scenario row of a rail evaluation run.
type EvalResult struct {
	ID         int64
	PaperID    string
	Scenario   string
	Score      float64
	Assessment string
	GapsJSON   string
	CreatedAt  time.Time
}

// RailSummary is the cross-scenario verdict of a rail evaluation run.
type RailSummary struct {
	ID                int64
	PaperID           string
	OverallRobustness int
	Compliant         bool
	Summary           string
	CreatedAt         time.Time
}

// ArenaPaper is the denormalized promotion projection. Unlike reviews it
// is upserted: re-promotion recomputes and replaces the row.
type ArenaPaper struct {
	ID            int64
	PaperID       string
	Title         string
	Authors       string
	Abstract      string
	Categories    string
	ReviewScore   float64
	MaturityLevel string
	RailCompliant bool
	ReviewCount   int
	BadgesJSON    string
	PromotedAt    time.Time
}

// DecisionRecord is one immutable audit entry. The prompt itself is never
// stored, only its digest.
type DecisionRecord struct {
	ID            string         `json:"id"`
	PaperID       string         `json:"paper_id"`
	ActionType    string         `json:"action_type"`
	ModelUsed     string         `json:"model_used"`
	PromptHash    string         `json:"prompt_hash"`
	InputSummary  string         `json:"input_summary"`
	OutputSummary string         `json:"output_summary"`
	Metadata      map[string]any `json:"metadata,omitempty"`
	Timestamp     float64        `json:"timestamp"`
	ISOTime       string         `json:"iso_time"`
}

// ArenaStats aggregates the arena projection.
type ArenaStats struct {
	Total                int            `json:"total"`
	AvgScore             float64        `json:"avg_score"`
	RailCompliant        int            `json:"rail_compliant"`
	MaturityDistribution map[string]int `json:"maturity_distribution"`
}

// PipelineStats aggregates dashboard counters.
type PipelineStats struct {
	StatusCounts         map[string]int
	Total                int
	MaturityDistribution map[string]int
	ArenaCount           int
	ArenaAvgScore        float64
	TotalReviews         int
	ReviewScoreAvg       float64
	ReviewScoreMin       int
	ReviewScoreMax       int
	ReviewDimensions     map[string]float64
}
