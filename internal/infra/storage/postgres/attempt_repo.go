package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/vietddude/bulwark/internal/core/domain"
)

// AttemptRepo persists attempt records to PostgreSQL.
type AttemptRepo struct {
	db *DB
}

// NewAttemptRepo creates a new PostgreSQL attempt repository.
func NewAttemptRepo(db *DB) *AttemptRepo {
	return &AttemptRepo{db: db}
}

// SaveBatch saves multiple attempt records in one transaction.
func (r *AttemptRepo) SaveBatch(ctx context.Context, recs []domain.AttemptRecord) error {
	if len(recs) == 0 {
		return nil
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	query := `
		INSERT INTO attempts (
			ts, attempt, destination, strategy, kind, error_text, category, cumulative_delay_ms, success, elapsed_ms
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, rec := range recs {
		_, err := stmt.ExecContext(ctx,
			rec.Timestamp, rec.Attempt, rec.DestinationKey,
			rec.StrategyLabel, string(rec.Kind), rec.ErrorText,
			string(rec.Category), rec.CumulativeDelay.Milliseconds(),
			rec.Success, rec.Elapsed.Milliseconds(),
		)
		if err != nil {
			return err
		}
	}

	return tx.Commit()
}

type attemptRow struct {
	Timestamp       time.Time `db:"ts"`
	Attempt         int       `db:"attempt"`
	Destination     string    `db:"destination"`
	Strategy        string    `db:"strategy"`
	Kind            string    `db:"kind"`
	ErrorText       string    `db:"error_text"`
	Category        string    `db:"category"`
	CumulativeDelay int64     `db:"cumulative_delay_ms"`
	Success         bool      `db:"success"`
	Elapsed         int64     `db:"elapsed_ms"`
}

func (a *attemptRow) toDomain() domain.AttemptRecord {
	return domain.AttemptRecord{
		Timestamp:       a.Timestamp,
		Attempt:         a.Attempt,
		DestinationKey:  a.Destination,
		StrategyLabel:   a.Strategy,
		Kind:            domain.OperationKind(a.Kind),
		ErrorText:       a.ErrorText,
		Category:        domain.ErrorCategory(a.Category),
		CumulativeDelay: time.Duration(a.CumulativeDelay) * time.Millisecond,
		Success:         a.Success,
		Elapsed:         time.Duration(a.Elapsed) * time.Millisecond,
	}
}

// Recent retrieves the most recent attempt records, newest first.
func (r *AttemptRepo) Recent(ctx context.Context, limit int) ([]domain.AttemptRecord, error) {
	query := `
		SELECT ts, attempt, destination, strategy, kind, error_text, category, cumulative_delay_ms, success, elapsed_ms
		FROM attempts
		ORDER BY ts DESC
		LIMIT $1
	`

	var rows []attemptRow
	err := r.db.SelectContext(ctx, &rows, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get attempts: %w", err)
	}

	recs := make([]domain.AttemptRecord, 0, len(rows))
	for i := range rows {
		recs = append(recs, rows[i].toDomain())
	}
	return recs, nil
}

// DestinationSummary aggregates archived attempts for one destination.
type DestinationSummary struct {
	Destination string    `db:"destination"`
	Attempts    int64     `db:"attempts"`
	Successes   int64     `db:"successes"`
	LastAttempt time.Time `db:"last_attempt"`
}

// FailureRate returns the fraction of archived attempts that failed.
func (s DestinationSummary) FailureRate() float64 {
	if s.Attempts == 0 {
		return 0
	}
	return float64(s.Attempts-s.Successes) / float64(s.Attempts)
}

// Summarize aggregates archived attempts per destination, busiest first.
func (r *AttemptRepo) Summarize(ctx context.Context) ([]DestinationSummary, error) {
	query := `
		SELECT destination,
		       COUNT(*) AS attempts,
		       COUNT(*) FILTER (WHERE success) AS successes,
		       MAX(ts) AS last_attempt
		FROM attempts
		GROUP BY destination
		ORDER BY attempts DESC
	`

	var rows []DestinationSummary
	err := r.db.SelectContext(ctx, &rows, query)
	if err != nil {
		return nil, fmt.Errorf("failed to summarize attempts: %w", err)
	}
	return rows, nil
}

// PruneOlderThan deletes archived attempts older than the given age.
func (r *AttemptRepo) PruneOlderThan(ctx context.Context, age time.Duration) (int64, error) {
	query := `DELETE FROM attempts WHERE ts < $1`
	res, err := r.db.ExecContext(ctx, query, time.Now().Add(-age))
	if err != nil {
		return 0, fmt.Errorf("failed to prune attempts: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, nil
	}
	return n, nil
}
