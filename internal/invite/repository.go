package invite

import (
	"context"
	"database/sql"
	"fmt"
)

// Repository handles invite persistence
type Repository struct {
	db *sql.DB
}

// NewRepository creates a new invite repository
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

const inviteColumns = `id, user_id, external_username, discord_username, invite_code,
	created_at, expires_at, used_at, expired_flag`

// Create inserts a new invite row. The invite code is globally unique.
func (r *Repository) Create(ctx context.Context, inv *Invite) (*Invite, error) {
	query := `
		INSERT INTO invites (user_id, external_username, discord_username, invite_code, expires_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at
	`

	err := r.db.QueryRowContext(ctx, query,
		inv.UserID,
		inv.ExternalUsername,
		inv.DiscordUsername,
		inv.Code,
		inv.ExpiresAt,
	).Scan(&inv.ID, &inv.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create invite: %w", err)
	}

	return inv, nil
}

// GetByCode retrieves an invite by its code
func (r *Repository) GetByCode(ctx context.Context, code string) (*Invite, error) {
	query := fmt.Sprintf(`SELECT %s FROM invites WHERE invite_code = $1`, inviteColumns)

	inv := &Invite{}
	err := r.db.QueryRowContext(ctx, query, code).Scan(
		&inv.ID,
		&inv.UserID,
		&inv.ExternalUsername,
		&inv.DiscordUsername,
		&inv.Code,
		&inv.CreatedAt,
		&inv.ExpiresAt,
		&inv.UsedAt,
		&inv.ExpiredFlag,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get invite: %w", err)
	}

	return inv, nil
}

// ActiveByUser returns the user's newest live invite (unused, unflagged, not
// yet past expiry), or nil
func (r *Repository) ActiveByUser(ctx context.Context, userID int64) (*Invite, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM invites
		WHERE user_id = $1
		  AND used_at IS NULL
		  AND expired_flag = FALSE
		  AND expires_at > NOW()
		ORDER BY created_at DESC
		LIMIT 1
	`, inviteColumns)

	inv := &Invite{}
	err := r.db.QueryRowContext(ctx, query, userID).Scan(
		&inv.ID,
		&inv.UserID,
		&inv.ExternalUsername,
		&inv.DiscordUsername,
		&inv.Code,
		&inv.CreatedAt,
		&inv.ExpiresAt,
		&inv.UsedAt,
		&inv.ExpiredFlag,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get active invite: %w", err)
	}

	return inv, nil
}

// ListByUser returns all of a user's invites, newest first
func (r *Repository) ListByUser(ctx context.Context, userID int64) ([]*Invite, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM invites
		WHERE user_id = $1
		ORDER BY created_at DESC
	`, inviteColumns)

	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list invites: %w", err)
	}
	defer rows.Close()

	var invites []*Invite
	for rows.Next() {
		inv := &Invite{}
		if err := rows.Scan(
			&inv.ID,
			&inv.UserID,
			&inv.ExternalUsername,
			&inv.DiscordUsername,
			&inv.Code,
			&inv.CreatedAt,
			&inv.ExpiresAt,
			&inv.UsedAt,
			&inv.ExpiredFlag,
		); err != nil {
			return nil, fmt.Errorf("failed to scan invite: %w", err)
		}
		invites = append(invites, inv)
	}

	return invites, rows.Err()
}

// MarkUsed stamps usedAt on an invite exactly once. Returns nil when the
// code is unknown or already used.
func (r *Repository) MarkUsed(ctx context.Context, code string) (*Invite, error) {
	query := fmt.Sprintf(`
		UPDATE invites
		SET used_at = NOW()
		WHERE invite_code = $1 AND used_at IS NULL
		RETURNING %s
	`, inviteColumns)

	inv := &Invite{}
	err := r.db.QueryRowContext(ctx, query, code).Scan(
		&inv.ID,
		&inv.UserID,
		&inv.ExternalUsername,
		&inv.DiscordUsername,
		&inv.Code,
		&inv.CreatedAt,
		&inv.ExpiresAt,
		&inv.UsedAt,
		&inv.ExpiredFlag,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to mark invite used: %w", err)
	}

	return inv, nil
}

// ExpireStale flags every unflagged invite past its expiry. Re-running
// changes nothing for already-flagged rows.
func (r *Repository) ExpireStale(ctx context.Context) (int64, error) {
	query := `
		UPDATE invites
		SET expired_flag = TRUE
		WHERE expired_flag = FALSE AND expires_at < NOW()
	`

	result, err := r.db.ExecContext(ctx, query)
	if err != nil {
		return 0, fmt.Errorf("failed to expire stale invites: %w", err)
	}

	expired, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return expired, nil
}

// Cleanup deletes invites older than the retention horizon regardless of
// status and returns the number deleted
func (r *Repository) Cleanup(ctx context.Context, retentionDays int) (int64, error) {
	query := `DELETE FROM invites WHERE created_at < NOW() - ($1 * INTERVAL '1 day')`

	result, err := r.db.ExecContext(ctx, query, retentionDays)
	if err != nil {
		return 0, fmt.Errorf("failed to clean up invites: %w", err)
	}

	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return deleted, nil
}
