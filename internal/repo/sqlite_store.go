package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/taskio/ticket-classifier/internal/models"
)

// SQLiteStore owns the ticket and feedback-log tables. It is the only
// component that writes ticket rows; corrections serialize on the row via
// the store's transaction.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) the database at path and applies the
// schema. Pass ":memory:" for an ephemeral store.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path+"?_fk=1")
	if err != nil {
		return nil, err
	}
	if path == ":memory:" {
		// Each pooled connection would otherwise open its own empty
		// in-memory database.
		db.SetMaxOpenConns(1)
	}

	schema := `
	CREATE TABLE IF NOT EXISTS tickets (
		id                 TEXT PRIMARY KEY,
		title              TEXT NOT NULL,
		description        TEXT NOT NULL,
		predicted_category TEXT DEFAULT '',
		actual_category    TEXT DEFAULT '',
		confidence_score   REAL DEFAULT 0,
		reasoning          TEXT DEFAULT '',
		status             TEXT NOT NULL DEFAULT 'open',
		created_at         DATETIME NOT NULL,
		updated_at         DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_tickets_status ON tickets(status);
	CREATE INDEX IF NOT EXISTS idx_tickets_predicted ON tickets(predicted_category);
	CREATE INDEX IF NOT EXISTS idx_tickets_created_at ON tickets(created_at);

	CREATE TABLE IF NOT EXISTS feedback_logs (
		id         INTEGER PRIMARY KEY AUTOINCREMENT,
		ticket_id  TEXT NOT NULL REFERENCES tickets(id) ON DELETE CASCADE,
		old_label  TEXT DEFAULT '',
		new_label  TEXT NOT NULL,
		feedback   TEXT DEFAULT '',
		created_at DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_feedback_ticket ON feedback_logs(ticket_id);
	CREATE INDEX IF NOT EXISTS idx_feedback_created_at ON feedback_logs(created_at);
	`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Close releases the underlying database handle.
func (s *SQLiteStore) Close() error { return s.db.Close() }

// InsertTicket persists a newly classified ticket and returns the stored
// record. An empty title defaults to a description prefix.
func (s *SQLiteStore) InsertTicket(ctx context.Context, title, description string, result models.ClassificationResult) (models.Ticket, error) {
	if strings.TrimSpace(title) == "" {
		title = description
		if len(title) > 100 {
			title = title[:100]
		}
	}

	now := time.Now().UTC()
	ticket := models.Ticket{
		ID:                uuid.NewString(),
		Title:             title,
		Description:       description,
		PredictedCategory: result.Category,
		ConfidenceScore:   result.Confidence,
		Reasoning:         result.Reasoning,
		Status:            models.StatusClassified,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if ticket.PredictedCategory == "" {
		ticket.Status = models.StatusOpen
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO tickets (id, title, description, predicted_category, actual_category, confidence_score, reasoning, status, created_at, updated_at)
		 VALUES (?, ?, ?, ?, '', ?, ?, ?, ?, ?)`,
		ticket.ID, ticket.Title, ticket.Description, string(ticket.PredictedCategory),
		ticket.ConfidenceScore, ticket.Reasoning, string(ticket.Status), ticket.CreatedAt, ticket.UpdatedAt,
	)
	if err != nil {
		return models.Ticket{}, fmt.Errorf("insert ticket: %w", err)
	}
	return ticket, nil
}

// GetTicket returns the ticket or models.ErrNotFound.
func (s *SQLiteStore) GetTicket(ctx context.Context, id string) (models.Ticket, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, title, description, predicted_category, actual_category, confidence_score, reasoning, status, created_at, updated_at
		 FROM tickets WHERE id = ?`, id)
	return scanTicket(row)
}

// ListTickets returns a page of tickets, newest first, with optional status
// and category filters.
func (s *SQLiteStore) ListTickets(ctx context.Context, req models.ListTicketsRequest) (models.ListTicketsResponse, error) {
	page := req.Page
	if page < 1 {
		page = 1
	}
	limit := req.Limit
	if limit < 1 || limit > 100 {
		limit = 20
	}

	where := make([]string, 0, 2)
	args := make([]any, 0, 2)
	if req.Status != "" {
		where = append(where, "status = ?")
		args = append(args, string(req.Status))
	}
	if req.Category != "" {
		where = append(where, "predicted_category = ?")
		args = append(args, string(req.Category))
	}
	clause := ""
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}

	var total int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM tickets"+clause, args...).Scan(&total); err != nil {
		return models.ListTicketsResponse{}, fmt.Errorf("count tickets: %w", err)
	}

	query := `SELECT id, title, description, predicted_category, actual_category, confidence_score, reasoning, status, created_at, updated_at
		 FROM tickets` + clause + ` ORDER BY created_at DESC LIMIT ? OFFSET ?`
	rows, err := s.db.QueryContext(ctx, query, append(args, limit, (page-1)*limit)...)
	if err != nil {
		return models.ListTicketsResponse{}, fmt.Errorf("list tickets: %w", err)
	}
	defer rows.Close()

	tickets := make([]models.Ticket, 0, limit)
	for rows.Next() {
		ticket, err := scanTicket(rows)
		if err != nil {
			return models.ListTicketsResponse{}, err
		}
		tickets = append(tickets, ticket)
	}
	if err := rows.Err(); err != nil {
		return models.ListTicketsResponse{}, err
	}

	pages := (total + limit - 1) / limit
	if pages < 1 {
		pages = 1
	}
	return models.ListTicketsResponse{
		Tickets: tickets,
		Total:   total,
		Page:    page,
		Limit:   limit,
		Pages:   pages,
	}, nil
}

// CorrectTicket applies a human correction in one transaction: the ticket's
// actual category and status are updated and a feedback log entry is
// appended with the old and new labels. Returns models.ErrNotFound for an
// unknown id; the ticket is left unmodified on any failure.
func (s *SQLiteStore) CorrectTicket(ctx context.Context, id string, category models.Category, feedback string) (models.Ticket, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return models.Ticket{}, err
	}
	defer tx.Rollback()

	row := tx.QueryRowContext(ctx,
		`SELECT id, title, description, predicted_category, actual_category, confidence_score, reasoning, status, created_at, updated_at
		 FROM tickets WHERE id = ?`, id)
	ticket, err := scanTicket(row)
	if err != nil {
		return models.Ticket{}, err
	}

	now := time.Now().UTC()
	oldLabel := ticket.PredictedCategory

	if _, err := tx.ExecContext(ctx,
		`UPDATE tickets SET actual_category = ?, status = ?, updated_at = ? WHERE id = ?`,
		string(category), string(models.StatusCorrected), now, id,
	); err != nil {
		return models.Ticket{}, fmt.Errorf("update ticket: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO feedback_logs (ticket_id, old_label, new_label, feedback, created_at) VALUES (?, ?, ?, ?, ?)`,
		id, string(oldLabel), string(category), feedback, now,
	); err != nil {
		return models.Ticket{}, fmt.Errorf("append feedback log: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return models.Ticket{}, err
	}

	ticket.ActualCategory = category
	ticket.Status = models.StatusCorrected
	ticket.UpdatedAt = now
	return ticket, nil
}

// FeedbackEntries returns the most recent feedback log entries, newest
// first, capped at limit.
func (s *SQLiteStore) FeedbackEntries(ctx context.Context, limit int) ([]models.FeedbackLogEntry, error) {
	if limit <= 0 {
		limit = 200
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, ticket_id, old_label, new_label, feedback, created_at
		 FROM feedback_logs ORDER BY created_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list feedback: %w", err)
	}
	defer rows.Close()

	entries := make([]models.FeedbackLogEntry, 0, limit)
	for rows.Next() {
		var entry models.FeedbackLogEntry
		var oldLabel, newLabel string
		if err := rows.Scan(&entry.ID, &entry.TicketID, &oldLabel, &newLabel, &entry.Feedback, &entry.CreatedAt); err != nil {
			return nil, err
		}
		entry.OldLabel = models.Category(oldLabel)
		entry.NewLabel = models.Category(newLabel)
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// Analytics computes the read-only aggregates the dashboard consumes:
// totals, accuracy over reviewed tickets, category distribution, and mean
// confidence.
func (s *SQLiteStore) Analytics(ctx context.Context) (models.AnalyticsOverview, error) {
	var overview models.AnalyticsOverview

	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM tickets`).Scan(&overview.TotalTickets); err != nil {
		return overview, fmt.Errorf("total tickets: %w", err)
	}

	var reviewed, correct int
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM tickets WHERE actual_category != ''`).Scan(&reviewed); err != nil {
		return overview, fmt.Errorf("reviewed tickets: %w", err)
	}
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM tickets WHERE actual_category != '' AND predicted_category = actual_category`).Scan(&correct); err != nil {
		return overview, fmt.Errorf("correct predictions: %w", err)
	}
	overview.Accuracy = models.AccuracyStats{TotalReviewed: reviewed, CorrectPredictions: correct}
	if reviewed > 0 {
		overview.Accuracy.AccuracyPercent = float64(correct) / float64(reviewed) * 100
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT predicted_category, COUNT(*) FROM tickets WHERE predicted_category != '' GROUP BY predicted_category`)
	if err != nil {
		return overview, fmt.Errorf("category distribution: %w", err)
	}
	defer rows.Close()

	total := overview.TotalTickets
	if total == 0 {
		total = 1
	}
	for rows.Next() {
		var stat models.CategoryStat
		var category string
		if err := rows.Scan(&category, &stat.Count); err != nil {
			return overview, err
		}
		stat.Category = models.Category(category)
		stat.Percent = float64(stat.Count) / float64(total) * 100
		overview.CategoryDistribution = append(overview.CategoryDistribution, stat)
	}
	if err := rows.Err(); err != nil {
		return overview, err
	}

	var avg sql.NullFloat64
	if err := s.db.QueryRowContext(ctx,
		`SELECT AVG(confidence_score) FROM tickets WHERE confidence_score > 0`).Scan(&avg); err != nil {
		return overview, fmt.Errorf("avg confidence: %w", err)
	}
	if avg.Valid {
		overview.AvgConfidence = avg.Float64
	}

	return overview, nil
}

// Healthy reports whether the database answers a trivial query.
func (s *SQLiteStore) Healthy(ctx context.Context) bool {
	var one int
	return s.db.QueryRowContext(ctx, `SELECT 1`).Scan(&one) == nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTicket(row rowScanner) (models.Ticket, error) {
	var ticket models.Ticket
	var predicted, actual, status string
	err := row.Scan(
		&ticket.ID, &ticket.Title, &ticket.Description, &predicted, &actual,
		&ticket.ConfidenceScore, &ticket.Reasoning, &status, &ticket.CreatedAt, &ticket.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Ticket{}, models.ErrNotFound
	}
	if err != nil {
		return models.Ticket{}, err
	}
	ticket.PredictedCategory = models.Category(predicted)
	ticket.ActualCategory = models.Category(actual)
	ticket.Status = models.Status(status)
	return ticket, nil
}
