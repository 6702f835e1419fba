package sync

import (
	"context"
	"database/sql"
	"fmt"
)

// Recorder persists and queries reconciliation run outcomes
type Recorder struct {
	db *sql.DB
}

// NewRecorder creates a new outcome recorder
func NewRecorder(db *sql.DB) *Recorder {
	return &Recorder{db: db}
}

const outcomeColumns = `id, run_id, total_sponsors, matched_count, unmatched_count,
	added_count, removed_count, success, error_message, details, created_at`

// Record inserts a new outcome row and returns it with its assigned id and
// timestamp
func (r *Recorder) Record(ctx context.Context, outcome *Outcome) (*Outcome, error) {
	query := `
		INSERT INTO sync_outcomes
			(run_id, total_sponsors, matched_count, unmatched_count,
			 added_count, removed_count, success, error_message, details)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id, created_at
	`

	err := r.db.QueryRowContext(ctx, query,
		outcome.RunID,
		outcome.TotalSponsors,
		outcome.MatchedCount,
		outcome.UnmatchedCount,
		outcome.AddedCount,
		outcome.RemovedCount,
		outcome.Success,
		outcome.ErrorMessage,
		outcome.Details,
	).Scan(&outcome.ID, &outcome.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to record sync outcome: %w", err)
	}

	return outcome, nil
}

// Cleanup deletes outcomes older than the retention horizon and returns the
// number deleted
func (r *Recorder) Cleanup(ctx context.Context, retentionDays int) (int64, error) {
	query := `DELETE FROM sync_outcomes WHERE created_at < NOW() - ($1 * INTERVAL '1 day')`

	result, err := r.db.ExecContext(ctx, query, retentionDays)
	if err != nil {
		return 0, fmt.Errorf("failed to clean up sync outcomes: %w", err)
	}

	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return deleted, nil
}

// Recent returns the n most recent outcomes, newest first. n defaults to 10.
func (r *Recorder) Recent(ctx context.Context, n int) ([]*Outcome, error) {
	if n <= 0 {
		n = 10
	}
	query := fmt.Sprintf(`
		SELECT %s FROM sync_outcomes
		ORDER BY created_at DESC
		LIMIT $1
	`, outcomeColumns)
	return r.queryOutcomes(ctx, query, n)
}

// Successful returns all successful outcomes, newest first
func (r *Recorder) Successful(ctx context.Context) ([]*Outcome, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM sync_outcomes
		WHERE success = TRUE
		ORDER BY created_at DESC
	`, outcomeColumns)
	return r.queryOutcomes(ctx, query)
}

// Failed returns all failed outcomes, newest first
func (r *Recorder) Failed(ctx context.Context) ([]*Outcome, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM sync_outcomes
		WHERE success = FALSE
		ORDER BY created_at DESC
	`, outcomeColumns)
	return r.queryOutcomes(ctx, query)
}

func (r *Recorder) queryOutcomes(ctx context.Context, query string, args ...any) ([]*Outcome, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query sync outcomes: %w", err)
	}
	defer rows.Close()

	var outcomes []*Outcome
	for rows.Next() {
		o := &Outcome{}
		if err := rows.Scan(
			&o.ID,
			&o.RunID,
			&o.TotalSponsors,
			&o.MatchedCount,
			&o.UnmatchedCount,
			&o.AddedCount,
			&o.RemovedCount,
			&o.Success,
			&o.ErrorMessage,
			&o.Details,
			&o.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan sync outcome: %w", err)
		}
		outcomes = append(outcomes, o)
	}

	return outcomes, rows.Err()
}
