package sqlite

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/math-professor/backend/internal/storage/models"
	"github.com/math-professor/backend/pkg/logger"
)

type Client struct {
	db *sql.DB
}

func NewClient(dbPath string) (*Client, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
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
	CREATE TABLE IF NOT EXISTS responses (
		query_id TEXT NOT NULL,
		version INTEGER NOT NULL,
		question TEXT NOT NULL,
		answer TEXT NOT NULL,
		explanation TEXT,
		route TEXT NOT NULL,
		confidence REAL,
		sources TEXT,
		created_at INTEGER NOT NULL,
		PRIMARY KEY (query_id, version)
	);
	CREATE INDEX IF NOT EXISTS idx_responses_created ON responses(created_at);

	CREATE TABLE IF NOT EXISTS feedback (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		query_id TEXT NOT NULL,
		rating INTEGER NOT NULL,
		is_correct INTEGER NOT NULL,
		comment TEXT,
		suggested_answer TEXT,
		route_used TEXT NOT NULL,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_feedback_query ON feedback(query_id);
	CREATE INDEX IF NOT EXISTS idx_feedback_created ON feedback(created_at);

	CREATE TABLE IF NOT EXISTS knowledge_records (
		id TEXT PRIMARY KEY,
		question TEXT NOT NULL,
		gold_answer TEXT NOT NULL,
		subject TEXT,
		question_type TEXT,
		description TEXT,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_knowledge_subject ON knowledge_records(subject);
	`

	if _, err := c.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	logger.Info("SQLite schema initialized")
	return nil
}

func (c *Client) InsertResponse(resp *models.Response) error {
	sourcesJSON, _ := json.Marshal(resp.Sources)

	query := `
		INSERT INTO responses (query_id, version, question, answer, explanation, route, confidence, sources, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := c.db.Exec(
		query,
		resp.QueryID,
		resp.Version,
		resp.Question,
		resp.Answer,
		resp.Explanation,
		resp.Route,
		resp.Confidence,
		string(sourcesJSON),
		resp.CreatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert response: %w", err)
	}

	logger.Debug("Response recorded",
		zap.String("query_id", resp.QueryID),
		zap.Int("version", resp.Version),
	)
	return nil
}

func (c *Client) ResponseVersions(queryID string) ([]models.Response, error) {
	query := `
		SELECT query_id, version, question, answer, explanation, route, confidence, sources, created_at
		FROM responses
		WHERE query_id = ?
		ORDER BY version ASC
	`

	rows, err := c.db.Query(query, queryID)
	if err != nil {
		return nil, fmt.Errorf("failed to query response versions: %w", err)
	}
	defer rows.Close()

	var responses []models.Response
	for rows.Next() {
		var r models.Response
		var sourcesJSON string
		var createdAt int64

		err := rows.Scan(&r.QueryID, &r.Version, &r.Question, &r.Answer, &r.Explanation, &r.Route, &r.Confidence, &sourcesJSON, &createdAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}

		json.Unmarshal([]byte(sourcesJSON), &r.Sources)
		r.CreatedAt = time.Unix(createdAt, 0)
		responses = append(responses, r)
	}

	return responses, rows.Err()
}

// AppendFeedback implements feedback.Log. The table is append-only: nothing
// in this codebase updates or deletes feedback rows.
func (c *Client) AppendFeedback(record *models.FeedbackRecord) error {
	query := `
		INSERT INTO feedback (query_id, rating, is_correct, comment, suggested_answer, route_used, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	isCorrect := 0
	if record.IsCorrect {
		isCorrect = 1
	}

	_, err := c.db.Exec(
		query,
		record.QueryID,
		record.Rating,
		isCorrect,
		record.Comment,
		record.SuggestedAnswer,
		record.RouteUsed,
		record.CreatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to append feedback: %w", err)
	}

	return nil
}

// ScanFeedback implements feedback.Log, streaming every record in insertion
// order for statistics rebuild.
func (c *Client) ScanFeedback(fn func(record *models.FeedbackRecord) error) error {
	query := `
		SELECT query_id, rating, is_correct, comment, suggested_answer, route_used, created_at
		FROM feedback
		ORDER BY id ASC
	`

	rows, err := c.db.Query(query)
	if err != nil {
		return fmt.Errorf("failed to scan feedback: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var record models.FeedbackRecord
		var isCorrect int
		var createdAt int64

		err := rows.Scan(&record.QueryID, &record.Rating, &isCorrect, &record.Comment, &record.SuggestedAnswer, &record.RouteUsed, &createdAt)
		if err != nil {
			return fmt.Errorf("failed to scan row: %w", err)
		}

		record.IsCorrect = isCorrect == 1
		record.CreatedAt = time.Unix(createdAt, 0)

		if err := fn(&record); err != nil {
			return err
		}
	}

	return rows.Err()
}

func (c *Client) InsertKnowledgeRecords(records []models.KnowledgeRecord) error {
	if len(records) == 0 {
		return nil
	}

	tx, err := c.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT INTO knowledge_records (id, question, gold_answer, subject, question_type, description, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			question = excluded.question,
			gold_answer = excluded.gold_answer,
			subject = excluded.subject,
			question_type = excluded.question_type,
			description = excluded.description
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, rec := range records {
		_, err := stmt.Exec(
			rec.ID,
			rec.Question,
			rec.GoldAnswer,
			rec.Subject,
			rec.QuestionType,
			rec.Description,
			rec.CreatedAt.Unix(),
		)
		if err != nil {
			return fmt.Errorf("failed to insert knowledge record: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	logger.Info("Knowledge records stored", zap.Int("count", len(records)))
	return nil
}
