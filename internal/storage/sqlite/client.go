package sqlite

import (
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/aixiv/backend/internal/storage/models"
	"github.com/aixiv/backend/pkg/logger"
)

type Client struct {
	db *sql.DB
}

func NewClient(dbPath string) (*Client, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	_, err = db.Exec("PRAGMA foreign_keys = ON")
	if err != nil {
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	_, err = db.Exec("PRAGMA journal_mode = WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	logger.Info("SQLite client initialized", zap.String("path", dbPath))

	return &Client{db: db}, nil
}

func (c *Client) Close() error {
	return c.db.Close()
}

func (c *Client) InitSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS papers (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		paper_id TEXT UNIQUE NOT NULL,
		title TEXT NOT NULL,
		authors TEXT NOT NULL,
		affiliation TEXT DEFAULT '',
		abstract TEXT NOT NULL,
		keywords TEXT DEFAULT '',
		categories TEXT DEFAULT '',
		full_text TEXT DEFAULT '',
		status TEXT DEFAULT 'submitted',
		maturity_level TEXT DEFAULT 'L0',
		version INTEGER DEFAULT 1,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_papers_status ON papers(status);
	CREATE INDEX IF NOT EXISTS idx_papers_created ON papers(created_at);

	CREATE TABLE IF NOT EXISTS reviews (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		paper_id TEXT NOT NULL,
		reviewer_type TEXT DEFAULT 'ai',
		review_layer TEXT DEFAULT 'full',
		overall_score INTEGER DEFAULT 0,
		soundness INTEGER DEFAULT 0,
		novelty INTEGER DEFAULT 0,
		clarity INTEGER DEFAULT 0,
		significance INTEGER DEFAULT 0,
		reproducibility INTEGER DEFAULT 0,
		summary TEXT DEFAULT '',
		strengths TEXT DEFAULT '',
		weaknesses TEXT DEFAULT '',
		questions TEXT DEFAULT '',
		recommendation TEXT DEFAULT '',
		detailed_feedback TEXT DEFAULT '',
		maturity_level TEXT DEFAULT 'L0',
		gate_analysis TEXT DEFAULT '',
		raw_review TEXT DEFAULT '',
		created_at INTEGER NOT NULL,
		FOREIGN KEY (paper_id) REFERENCES papers(paper_id)
	);
	CREATE INDEX IF NOT EXISTS idx_reviews_paper ON reviews(paper_id);
	CREATE INDEX IF NOT EXISTS idx_reviews_created ON reviews(created_at);

	CREATE TABLE IF NOT EXISTS redteam_reports (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		paper_id TEXT NOT NULL,
		overall_risk TEXT DEFAULT 'medium',
		confidence REAL DEFAULT 0.5,
		findings TEXT DEFAULT '[]',
		attack_scenarios TEXT DEFAULT '[]',
		summary TEXT DEFAULT '',
		raw_report TEXT DEFAULT '',
		created_at INTEGER NOT NULL,
		FOREIGN KEY (paper_id) REFERENCES papers(paper_id)
	);
	CREATE INDEX IF NOT EXISTS idx_redteam_paper ON redteam_reports(paper_id);

	CREATE TABLE IF NOT EXISTS meta_reviews (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		paper_id TEXT NOT NULL,
		final_recommendation TEXT DEFAULT '',
		confidence REAL DEFAULT 0.5,
		justification TEXT DEFAULT '',
		maturity_level TEXT DEFAULT 'L0',
		required_changes TEXT DEFAULT '[]',
		suggested_changes TEXT DEFAULT '[]',
		summary_for_authors TEXT DEFAULT '',
		arena_eligible INTEGER DEFAULT 0,
		arena_eligibility_reason TEXT DEFAULT '',
		raw_review TEXT DEFAULT '',
		created_at INTEGER NOT NULL,
		FOREIGN KEY (paper_id) REFERENCES papers(paper_id)
	);
	CREATE INDEX IF NOT EXISTS idx_meta_paper ON meta_reviews(paper_id);

	CREATE TABLE IF NOT EXISTS revisions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		paper_id TEXT NOT NULL,
		version INTEGER DEFAULT 1,
		changes_summary TEXT DEFAULT '',
		revision_letter TEXT DEFAULT '',
		revised_text TEXT DEFAULT '',
		status TEXT DEFAULT 'draft',
		created_at INTEGER NOT NULL,
		FOREIGN KEY (paper_id) REFERENCES papers(paper_id)
	);
	CREATE INDEX IF NOT EXISTS idx_revisions_paper ON revisions(paper_id);

	CREATE TABLE IF NOT EXISTS eval_results (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		paper_id TEXT NOT NULL,
		scenario TEXT NOT NULL,
		score REAL DEFAULT 0,
		assessment TEXT DEFAULT '',
		gaps TEXT DEFAULT '[]',
		created_at INTEGER NOT NULL,
		FOREIGN KEY (paper_id) REFERENCES papers(paper_id)
	);
	CREATE INDEX IF NOT EXISTS idx_eval_paper ON eval_results(paper_id);

	CREATE TABLE IF NOT EXISTS rail_summaries (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		paper_id TEXT NOT NULL,
		overall_robustness INTEGER DEFAULT 0,
		compliant INTEGER DEFAULT 0,
		summary TEXT DEFAULT '',
		created_at INTEGER NOT NULL,
		FOREIGN KEY (paper_id) REFERENCES papers(paper_id)
	);
	CREATE INDEX IF NOT EXISTS idx_rail_summaries_paper ON rail_summaries(paper_id);

	CREATE TABLE IF NOT EXISTS arena_papers (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		paper_id TEXT UNIQUE NOT NULL,
		title TEXT NOT NULL,
		authors TEXT NOT NULL,
		abstract TEXT NOT NULL,
		categories TEXT DEFAULT '',
		review_score REAL DEFAULT 0,
		maturity_level TEXT DEFAULT 'L0',
		rail_compliant INTEGER DEFAULT 0,
		review_count INTEGER DEFAULT 0,
		badges TEXT DEFAULT '[]',
		promoted_at INTEGER NOT NULL,
		FOREIGN KEY (paper_id) REFERENCES papers(paper_id)
	);
	CREATE INDEX IF NOT EXISTS idx_arena_score ON arena_papers(review_score);
	`

	_, err := c.db.Exec(schema)
	if err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	logger.Info("SQLite schema initialized")
	return nil
}

// GeneratePaperID produces the next id in the current monthly bucket,
// e.g. "aiXiv:2608.001". Callers holding the submission path serialize
// through the unique constraint on paper_id.
func (c *Client) GeneratePaperID() (string, error) {
	now := time.Now().UTC()
	prefix := fmt.Sprintf("aiXiv:%s", now.Format("0601"))

	var last string
	err := c.db.QueryRow(
		`SELECT paper_id FROM papers WHERE paper_id LIKE ? ORDER BY id DESC LIMIT 1`,
		prefix+"%",
	).Scan(&last)

	next := 1
	if err == nil {
		parts := strings.Split(last, ".")
		n, convErr := strconv.Atoi(parts[len(parts)-1])
		if convErr == nil {
			next = n + 1
		}
	} else if !errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("failed to find last paper id: %w", err)
	}

	return fmt.Sprintf("%s.%03d", prefix, next), nil
}

func (c *Client) InsertPaper(p *models.Paper) error {
	query := `
		INSERT INTO papers (paper_id, title, authors, affiliation, abstract, keywords,
			categories, full_text, status, maturity_level, version, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := c.db.Exec(
		query,
		p.PaperID,
		p.Title,
		p.Authors,
		p.Affiliation,
		p.Abstract,
		p.Keywords,
		p.Categories,
		p.FullText,
		p.Status,
		p.MaturityLevel,
		p.Version,
		p.CreatedAt.Unix(),
		p.UpdatedAt.Unix(),
	)

	if err != nil {
		return fmt.Errorf("failed to insert paper: %w", err)
	}

	logger.Info("Paper inserted", zap.String("paper_id", p.PaperID), zap.String("title", p.Title))
	return nil
}

func (c *Client) GetPaper(paperID string) (*models.Paper, error) {
	query := `SELECT id, paper_id, title, authors, affiliation, abstract, keywords, categories,
		full_text, status, maturity_level, version, created_at, updated_at
		FROM papers WHERE paper_id = ?`

	var p models.Paper
	var createdAt, updatedAt int64

	err := c.db.QueryRow(query, paperID).Scan(
		&p.ID,
		&p.PaperID,
		&p.Title,
		&p.Authors,
		&p.Affiliation,
		&p.Abstract,
		&p.Keywords,
		&p.Categories,
		&p.FullText,
		&p.Status,
		&p.MaturityLevel,
		&p.Version,
		&createdAt,
		&updatedAt,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("paper %s: %w", paperID, models.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get paper: %w", err)
	}

	p.CreatedAt = time.Unix(createdAt, 0)
	p.UpdatedAt = time.Unix(updatedAt, 0)

	return &p, nil
}

func (c *Client) ListPapers(status string, limit int) ([]models.Paper, error) {
	query := `SELECT paper_id, title, authors, abstract, status, maturity_level, version, created_at
		FROM papers`
	args := []any{}
	if status != "" {
		query += ` WHERE status = ?`
		args = append(args, status)
	}
	query += ` ORDER BY created_at DESC LIMIT ?`
	args = append(args, limit)

	rows, err := c.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list papers: %w", err)
	}
	defer rows.Close()

	var papers []models.Paper
	for rows.Next() {
		var p models.Paper
		var createdAt int64

		err := rows.Scan(&p.PaperID, &p.Title, &p.Authors, &p.Abstract,
			&p.Status, &p.MaturityLevel, &p.Version, &createdAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}

		p.CreatedAt = time.Unix(createdAt, 0)
		papers = append(papers, p)
	}

	return papers, nil
}

func (c *Client) GetPaperStatus(paperID string) (string, error) {
	var status string
	err := c.db.QueryRow(`SELECT status FROM papers WHERE paper_id = ?`, paperID).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("paper %s: %w", paperID, models.ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("failed to get paper status: %w", err)
	}
	return status, nil
}

// UpdatePaperStatus persists a new status and updated_at in one statement.
func (c *Client) UpdatePaperStatus(paperID, status string) error {
	res, err := c.db.Exec(
		`UPDATE papers SET status = ?, updated_at = ? WHERE paper_id = ?`,
		status, time.Now().Unix(), paperID,
	)
	if err != nil {
		return fmt.Errorf("failed to update paper status: %w", err)
	}

	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("paper %s: %w", paperID, models.ErrNotFound)
	}

	logger.Debug("Paper status updated", zap.String("paper_id", paperID), zap.String("status", status))
	return nil
}

// UpdatePaperOutcome sets maturity level and status together, the single
// atomic write that ends a review run.
func (c *Client) UpdatePaperOutcome(paperID, maturityLevel, status string) error {
	res, err := c.db.Exec(
		`UPDATE papers SET maturity_level = ?, status = ?, updated_at = ? WHERE paper_id = ?`,
		maturityLevel, status, time.Now().Unix(), paperID,
	)
	if err != nil {
		return fmt.Errorf("failed to update paper outcome: %w", err)
	}

	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("paper %s: %w", paperID, models.ErrNotFound)
	}

	return nil
}

func (c *Client) InsertReview(r *models.Review) error {
	query := `
		INSERT INTO reviews (paper_id, reviewer_type, review_layer, overall_score,
			soundness, novelty, clarity, significance, reproducibility,
			summary, strengths, weaknesses, questions, recommendation,
			detailed_feedback, maturity_level, gate_analysis, raw_review, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := c.db.Exec(
		query,
		r.PaperID,
		r.ReviewerType,
		r.ReviewLayer,
		r.OverallScore,
		r.Soundness,
		r.Novelty,
		r.Clarity,
		r.Significance,
		r.Reproducibility,
		r.Summary,
		r.Strengths,
		r.Weaknesses,
		r.Questions,
		r.Recommendation,
		r.DetailedFeedback,
		r.MaturityLevel,
		r.GateAnalysis,
		r.RawReview,
		r.CreatedAt.Unix(),
	)

	if err != nil {
		return fmt.Errorf("failed to insert review: %w", err)
	}

	logger.Debug("Review inserted", zap.String("paper_id", r.PaperID), zap.Int("overall_score", r.OverallScore))
	return nil
}

func (c *Client) GetReviews(paperID string) ([]models.Review, error) {
	query := `SELECT id, paper_id, reviewer_type, review_layer, overall_score, soundness,
		novelty, clarity, significance, reproducibility, summary, strengths, weaknesses,
		questions, recommendation, detailed_feedback, maturity_level, created_at
		FROM reviews WHERE paper_id = ? ORDER BY created_at ASC, id ASC`

	rows, err := c.db.Query(query, paperID)
	if err != nil {
		return nil, fmt.Errorf("failed to get reviews: %w", err)
	}
	defer rows.Close()

	var reviews []models.Review
	for rows.Next() {
		var r models.Review
		var createdAt int64

		err := rows.Scan(&r.ID, &r.PaperID, &r.ReviewerType, &r.ReviewLayer, &r.OverallScore,
			&r.Soundness, &r.Novelty, &r.Clarity, &r.Significance, &r.Reproducibility,
			&r.Summary, &r.Strengths, &r.Weaknesses, &r.Questions, &r.Recommendation,
			&r.DetailedFeedback, &r.MaturityLevel, &createdAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}

		r.CreatedAt = time.Unix(createdAt, 0)
		reviews = append(reviews, r)
	}

	return reviews, nil
}

func (c *Client) CountReviews(paperID string) (int, error) {
	var count int
	err := c.db.QueryRow(`SELECT COUNT(*) FROM reviews WHERE paper_id = ?`, paperID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count reviews: %w", err)
	}
	return count, nil
}

func (c *Client) InsertRedTeamReport(r *models.RedTeamReport) error {
	query := `
		INSERT INTO redteam_reports (paper_id, overall_risk, confidence, findings,
			attack_scenarios, summary, raw_report, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := c.db.Exec(
		query,
		r.PaperID,
		r.OverallRisk,
		r.Confidence,
		r.FindingsJSON,
		r.AttackScenarios,
		r.Summary,
		r.RawReport,
		r.CreatedAt.Unix(),
	)

	if err != nil {
		return fmt.Errorf("failed to insert redteam report: %w", err)
	}

	logger.Debug("Red team report inserted", zap.String("paper_id", r.PaperID), zap.String("risk", r.OverallRisk))
	return nil
}

func (c *Client) GetLatestRedTeamReport(paperID string) (*models.RedTeamReport, error) {
	query := `SELECT id, paper_id, overall_risk, confidence, findings, attack_scenarios,
		summary, created_at
		FROM redteam_reports WHERE paper_id = ? ORDER BY created_at DESC, id DESC LIMIT 1`

	var r models.RedTeamReport
	var createdAt int64

	err := c.db.QueryRow(query, paperID).Scan(&r.ID, &r.PaperID, &r.OverallRisk,
		&r.Confidence, &r.FindingsJSON, &r.AttackScenarios, &r.Summary, &createdAt)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("redteam report for %s: %w", paperID, models.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get redteam report: %w", err)
	}

	r.CreatedAt = time.Unix(createdAt, 0)
	return &r, nil
}

func (c *Client) CountRedTeamReports(paperID string) (int, error) {
	var count int
	err := c.db.QueryRow(`SELECT COUNT(*) FROM redteam_reports WHERE paper_id = ?`, paperID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count redteam reports: %w", err)
	}
	return count, nil
}

func (c *Client) InsertMetaReview(m *models.MetaReview) error {
	query := `
		INSERT INTO meta_reviews (paper_id, final_recommendation, confidence, justification,
			maturity_level, required_changes, suggested_changes, summary_for_authors,
			arena_eligible, arena_eligibility_reason, raw_review, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	eligible := 0
	if m.ArenaEligible {
		eligible = 1
	}

	_, err := c.db.Exec(
		query,
		m.PaperID,
		m.FinalRecommendation,
		m.Confidence,
		m.Justification,
		m.MaturityLevel,
		m.RequiredChangesJSON,
		m.SuggestedChangesJSON,
		m.SummaryForAuthors,
		eligible,
		m.ArenaEligibilityReason,
		m.RawReview,
		m.CreatedAt.Unix(),
	)

	if err != nil {
		return fmt.Errorf("failed to insert meta review: %w", err)
	}

	return nil
}

func (c *Client) GetLatestMetaReview(paperID string) (*models.MetaReview, error) {
	query := `
		SELECT id, paper_id, final_recommendation, confidence, justification,
			maturity_level, required_changes, suggested_changes, summary_for_authors,
			arena_eligible, arena_eligibility_reason, raw_review, created_at
		FROM meta_reviews WHERE paper_id = ? ORDER BY created_at DESC, id DESC LIMIT 1
	`

	var m models.MetaReview
	var eligible int
	var createdAt int64
	err := c.db.QueryRow(query, paperID).Scan(
		&m.ID, &m.PaperID, &m.FinalRecommendation, &m.Confidence, &m.Justification,
		&m.MaturityLevel, &m.RequiredChangesJSON, &m.SuggestedChangesJSON,
		&m.SummaryForAuthors, &eligible, &m.ArenaEligibilityReason, &m.RawReview, &createdAt,
	)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("meta review for %s: %w", paperID, models.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get meta review: %w", err)
	}
	m.ArenaEligible = eligible == 1
	m.CreatedAt = time.Unix(createdAt, 0)
	return &m, nil
}

func (c *Client) CountMetaReviews(paperID string) (int, error) {
	var count int
	err := c.db.QueryRow(`SELECT COUNT(*) FROM meta_reviews WHERE paper_id = ?`, paperID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count meta reviews: %w", err)
	}
	return count, nil
}

func (c *Client) InsertRevision(r *models.Revision) (int64, error) {
	query := `
		INSERT INTO revisions (paper_id, version, changes_summary, revision_letter,
			revised_text, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	res, err := c.db.Exec(
		query,
		r.PaperID,
		r.Version,
		r.ChangesSummary,
		r.RevisionLetter,
		r.RevisedText,
		r.Status,
		r.CreatedAt.Unix(),
	)

	if err != nil {
		return 0, fmt.Errorf("failed to insert revision: %w", err)
	}

	id, _ := res.LastInsertId()
	return id, nil
}

func (c *Client) GetRevisions(paperID string) ([]models.Revision, error) {
	query := `SELECT id, paper_id, version, changes_summary, revision_letter, revised_text,
		status, created_at
		FROM revisions WHERE paper_id = ? ORDER BY created_at DESC, id DESC`

	rows, err := c.db.Query(query, paperID)
	if err != nil {
		return nil, fmt.Errorf("failed to get revisions: %w", err)
	}
	defer rows.Close()

	var revisions []models.Revision
	for rows.Next() {
		var r models.Revision
		var createdAt int64

		err := rows.Scan(&r.ID, &r.PaperID, &r.Version, &r.ChangesSummary,
			&r.RevisionLetter, &r.RevisedText, &r.Status, &createdAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}

		r.CreatedAt = time.Unix(createdAt, 0)
		revisions = append(revisions, r)
	}

	return revisions, nil
}

// ApplyRevision marks the revision applied and bumps the paper version,
// replacing the full text, in one transaction.
func (c *Client) ApplyRevision(paperID string, revisionID int64) error {
	tx, err := c.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var revisedText string
	err = tx.QueryRow(
		`SELECT revised_text FROM revisions WHERE id = ? AND paper_id = ?`,
		revisionID, paperID,
	).Scan(&revisedText)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("revision %d for paper %s: %w", revisionID, paperID, models.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("failed to get revision: %w", err)
	}

	now := time.Now().Unix()

	res, err := tx.Exec(
		`UPDATE papers SET full_text = ?, version = version + 1, updated_at = ? WHERE paper_id = ?`,
		revisedText, now, paperID,
	)
	if err != nil {
		return fmt.Errorf("failed to update paper text: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("paper %s: %w", paperID, models.ErrNotFound)
	}

	_, err = tx.Exec(`UPDATE revisions SET status = 'applied' WHERE id = ?`, revisionID)
	if err != nil {
		return fmt.Errorf("failed to mark revision applied: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit revision: %w", err)
	}

	logger.Info("Revision applied", zap.String("paper_id", paperID), zap.Int64("revision_id", revisionID))
	return nil
}

func (c *Client) InsertEvalResult(e *models.EvalResult) error {
	query := `
		INSERT INTO eval_results (paper_id, scenario, score, assessment, gaps, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`

	_, err := c.db.Exec(query, e.PaperID, e.Scenario, e.Score, e.Assessment, e.GapsJSON, e.CreatedAt.Unix())
	if err != nil {
		return fmt.Errorf("failed to insert eval result: %w", err)
	}

	return nil
}

func (c *Client) GetEvalResults(paperID string) ([]models.EvalResult, error) {
	query := `SELECT id, paper_id, scenario, score, assessment, gaps, created_at
		FROM eval_results WHERE paper_id = ? ORDER BY created_at ASC, id ASC`

	rows, err := c.db.Query(query, paperID)
	if err != nil {
		return nil, fmt.Errorf("failed to get eval results: %w", err)
	}
	defer rows.Close()

	var results []models.EvalResult
	for rows.Next() {
		var e models.EvalResult
		var createdAt int64

		err := rows.Scan(&e.ID, &e.PaperID, &e.Scenario, &e.Score, &e.Assessment, &e.GapsJSON, &createdAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}

		e.CreatedAt = time.Unix(createdAt, 0)
		results = append(results, e)
	}

	return results, nil
}

func (c *Client) InsertRailSummary(s *models.RailSummary) error {
	query := `
		INSERT INTO rail_summaries (paper_id, overall_robustness, compliant, summary, created_at)
		VALUES (?, ?, ?, ?, ?)
	`

	compliant := 0
	if s.Compliant {
		compliant = 1
	}

	_, err := c.db.Exec(query, s.PaperID, s.OverallRobustness, compliant, s.Summary, s.CreatedAt.Unix())
	if err != nil {
		return fmt.Errorf("failed to insert rail summary: %w", err)
	}

	return nil
}

func (c *Client) GetLatestRailSummary(paperID string) (*models.RailSummary, error) {
	query := `SELECT id, paper_id, overall_robustness, compliant, summary, created_at
		FROM rail_summaries WHERE paper_id = ? ORDER BY created_at DESC, id DESC LIMIT 1`

	var s models.RailSummary
	var compliant int
	var createdAt int64
	err := c.db.QueryRow(query, paperID).Scan(&s.ID, &s.PaperID, &s.OverallRobustness, &compliant, &s.Summary, &createdAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("rail summary for %s: %w", paperID, models.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get rail summary: %w", err)
	}
	s.Compliant = compliant == 1
	s.CreatedAt = time.Unix(createdAt, 0)
	return &s, nil
}

// UpsertArenaPaper replaces the arena projection row for the paper.
func (c *Client) UpsertArenaPaper(a *models.ArenaPaper) error {
	query := `
		INSERT INTO arena_papers (paper_id, title, authors, abstract, categories,
			review_score, maturity_level, rail_compliant, review_count, badges, promoted_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(paper_id) DO UPDATE SET
			title = excluded.title,
			authors = excluded.authors,
			abstract = excluded.abstract,
			categories = excluded.categories,
			review_score = excluded.review_score,
			maturity_level = excluded.maturity_level,
			rail_compliant = excluded.rail_compliant,
			review_count = excluded.review_count,
			badges = excluded.badges,
			promoted_at = excluded.promoted_at
	`

	compliant := 0
	if a.RailCompliant {
		compliant = 1
	}

	_, err := c.db.Exec(
		query,
		a.PaperID,
		a.Title,
		a.Authors,
		a.Abstract,
		a.Categories,
		a.ReviewScore,
		a.MaturityLevel,
		compliant,
		a.ReviewCount,
		a.BadgesJSON,
		a.PromotedAt.Unix(),
	)

	if err != nil {
		return fmt.Errorf("failed to upsert arena paper: %w", err)
	}

	logger.Info("Arena projection written",
		zap.String("paper_id", a.PaperID),
		zap.Float64("review_score", a.ReviewScore),
	)

	return nil
}

func (c *Client) GetArenaPaper(paperID string) (*models.ArenaPaper, error) {
	query := `SELECT id, paper_id, title, authors, abstract, categories, review_score,
		maturity_level, rail_compliant, review_count, badges, promoted_at
		FROM arena_papers WHERE paper_id = ?`

	var a models.ArenaPaper
	var compliant int
	var promotedAt int64

	err := c.db.QueryRow(query, paperID).Scan(&a.ID, &a.PaperID, &a.Title, &a.Authors,
		&a.Abstract, &a.Categories, &a.ReviewScore, &a.MaturityLevel, &compliant,
		&a.ReviewCount, &a.BadgesJSON, &promotedAt)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("arena paper %s: %w", paperID, models.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get arena paper: %w", err)
	}

	a.RailCompliant = compliant == 1
	a.PromotedAt = time.Unix(promotedAt, 0)
	return &a, nil
}

func (c *Client) GetArenaLeaderboard(category, maturity string, limit int) ([]models.ArenaPaper, error) {
	query := `SELECT paper_id, title, authors, abstract, categories, review_score,
		maturity_level, rail_compliant, review_count, badges, promoted_at
		FROM arena_papers`
	args := []any{}
	conditions := []string{}

	if category != "" {
		conditions = append(conditions, "categories LIKE ?")
		args = append(args, "%"+category+"%")
	}
	if maturity != "" {
		conditions = append(conditions, "maturity_level = ?")
		args = append(args, maturity)
	}

	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}

	query += ` ORDER BY review_score DESC, promoted_at DESC LIMIT ?`
	args = append(args, limit)

	rows, err := c.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to get leaderboard: %w", err)
	}
	defer rows.Close()

	var papers []models.ArenaPaper
	for rows.Next() {
		var a models.ArenaPaper
		var compliant int
		var promotedAt int64

		err := rows.Scan(&a.PaperID, &a.Title, &a.Authors, &a.Abstract, &a.Categories,
			&a.ReviewScore, &a.MaturityLevel, &compliant, &a.ReviewCount, &a.BadgesJSON, &promotedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}

		a.RailCompliant = compliant == 1
		a.PromotedAt = time.Unix(promotedAt, 0)
		papers = append(papers, a)
	}

	return papers, nil
}

func (c *Client) GetArenaStats(maturityLevels []string) (*models.ArenaStats, error) {
	stats := &models.ArenaStats{
		MaturityDistribution: make(map[string]int),
	}

	if err := c.db.QueryRow(`SELECT COUNT(*) FROM arena_papers`).Scan(&stats.Total); err != nil {
		return nil, fmt.Errorf("failed to count arena papers: %w", err)
	}

	var avg sql.NullFloat64
	if err := c.db.QueryRow(`SELECT AVG(review_score) FROM arena_papers`).Scan(&avg); err != nil {
		return nil, fmt.Errorf("failed to average arena score: %w", err)
	}
	if avg.Valid {
		stats.AvgScore = avg.Float64
	}

	err := c.db.QueryRow(`SELECT COUNT(*) FROM arena_papers WHERE rail_compliant = 1`).Scan(&stats.RailCompliant)
	if err != nil {
		return nil, fmt.Errorf("failed to count rail compliant papers: %w", err)
	}

	for _, level := range maturityLevels {
		var count int
		err := c.db.QueryRow(`SELECT COUNT(*) FROM arena_papers WHERE maturity_level = ?`, level).Scan(&count)
		if err != nil {
			return nil, fmt.Errorf("failed to count arena maturity %s: %w", level, err)
		}
		stats.MaturityDistribution[level] = count
	}

	return stats, nil
}

func (c *Client) GetPipelineStats(statuses, maturityLevels []string) (*models.PipelineStats, error) {
	stats := &models.PipelineStats{
		StatusCounts:         make(map[string]int),
		MaturityDistribution: make(map[string]int),
		ReviewDimensions:     make(map[string]float64),
	}

	for _, status := range statuses {
		var count int
		err := c.db.QueryRow(`SELECT COUNT(*) FROM papers WHERE status = ?`, status).Scan(&count)
		if err != nil {
			return nil, fmt.Errorf("failed to count status %s: %w", status, err)
		}
		stats.StatusCounts[status] = count
		stats.Total += count
	}

	for _, level := range maturityLevels {
		var count int
		err := c.db.QueryRow(`SELECT COUNT(*) FROM papers WHERE maturity_level = ?`, level).Scan(&count)
		if err != nil {
			return nil, fmt.Errorf("failed to count maturity %s: %w", level, err)
		}
		stats.MaturityDistribution[level] = count
	}

	if err := c.db.QueryRow(`SELECT COUNT(*) FROM arena_papers`).Scan(&stats.ArenaCount); err != nil {
		return nil, fmt.Errorf("failed to count arena papers: %w", err)
	}

	var avg sql.NullFloat64
	if err := c.db.QueryRow(`SELECT AVG(review_score) FROM arena_papers`).Scan(&avg); err != nil {
		return nil, fmt.Errorf("failed to average arena score: %w", err)
	}
	if avg.Valid {
		stats.ArenaAvgScore = avg.Float64
	}

	if err := c.db.QueryRow(`SELECT COUNT(*) FROM reviews`).Scan(&stats.TotalReviews); err != nil {
		return nil, fmt.Errorf("failed to count reviews: %w", err)
	}

	var scoreAvg sql.NullFloat64
	var scoreMin, scoreMax sql.NullInt64
	err := c.db.QueryRow(
		`SELECT AVG(overall_score), MIN(overall_score), MAX(overall_score)
		FROM reviews WHERE overall_score > 0`,
	).Scan(&scoreAvg, &scoreMin, &scoreMax)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate review scores: %w", err)
	}
	if scoreAvg.Valid {
		stats.ReviewScoreAvg = scoreAvg.Float64
		stats.ReviewScoreMin = int(scoreMin.Int64)
		stats.ReviewScoreMax = int(scoreMax.Int64)
	}

	for _, dim := range []string{"soundness", "novelty", "clarity", "significance", "reproducibility"} {
		var dimAvg sql.NullFloat64
		err := c.db.QueryRow(
			fmt.Sprintf(`SELECT AVG(%s) FROM reviews WHERE %s > 0`, dim, dim),
		).Scan(&dimAvg)
		if err != nil {
			return nil, fmt.Errorf("failed to average %s: %w", dim, err)
		}
		if dimAvg.Valid {
			stats.ReviewDimensions[dim] = dimAvg.Float64
		}
	}

	return stats, nil
}
