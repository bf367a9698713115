// internal/store/journal.go

// Package store persists an audit trail of mandate status transitions.
package store

import (
	"context"
	"database/sql"
	"time"

	"flowcoach/internal/common/errors"
	"flowcoach/internal/common/logger"
)

// Entry is one observed mandate transition.
type Entry struct {
	ID          int64     `json:"id"`
	MandateID   string    `json:"mandateId"`
	ProductSlug string    `json:"productSlug"`
	Status      string    `json:"status"`
	Detail      string    `json:"detail,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
}

// Journal appends mandate transitions to Postgres. Write failures are
// reported but callers treat them as non-fatal.
type Journal struct {
	db     *sql.DB
	logger logger.Logger
}

func NewJournal(db *sql.DB, log logger.Logger) *Journal {
	return &Journal{
		db:     db,
		logger: log.WithFields(map[string]interface{}{"component": "mandate-journal"}),
	}
}

// Record appends one transition.
func (j *Journal) Record(ctx context.Context, mandateID, productSlug, status, detail string) error {
	query := `INSERT INTO mandate_journal (mandate_id, product_slug, status, detail, created_at)
		VALUES ($1, $2, $3, $4, $5)`

	_, err := j.db.ExecContext(ctx, query, mandateID, productSlug, status, detail, time.Now().UTC())
	if err != nil {
		j.logger.Warn("journal write failed", map[string]interface{}{
			"mandateId": mandateID,
			"status":    status,
			"error":     err.Error(),
		})
		return errors.NewJournalWriteFailedError(err)
	}
	return nil
}

// History returns the transitions recorded for one mandate, oldest first.
func (j *Journal) History(ctx context.Context, mandateID string) ([]Entry, error) {
	query := `SELECT id, mandate_id, product_slug, status, detail, created_at
		FROM mandate_journal WHERE mandate_id = $1 ORDER BY created_at ASC, id ASC`

	rows, err := j.db.QueryContext(ctx, query, mandateID)
	if err != nil {
		return nil, errors.NewJournalWriteFailedError(err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.MandateID, &e.ProductSlug, &e.Status, &e.Detail, &e.CreatedAt); err != nil {
			return nil, errors.NewJournalWriteFailedError(err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewJournalWriteFailedError(err)
	}
	return entries, nil
}
