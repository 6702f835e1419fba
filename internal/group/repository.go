package group

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// ErrGroupNotFound indicates the named group does not exist
var ErrGroupNotFound = errors.New("group not found")

// Repository manages privileged-group membership state. Membership is
// mutated only through the reconciler's apply step.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a new group repository
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) groupID(ctx context.Context, name string) (int64, error) {
	var id int64
	err := r.db.QueryRowContext(ctx, `SELECT id FROM groups WHERE name = $1`, name).Scan(&id)
	if err != nil {
		if err == sql.ErrNoRows {
			return 0, ErrGroupNotFound
		}
		return 0, fmt.Errorf("failed to look up group: %w", err)
	}
	return id, nil
}

// Members returns the current members of the named group
func (r *Repository) Members(ctx context.Context, name string) ([]Member, error) {
	groupID, err := r.groupID(ctx, name)
	if err != nil {
		return nil, err
	}

	query := `
		SELECT u.id, u.username
		FROM group_members gm
		JOIN users u ON gm.user_id = u.id
		WHERE gm.group_id = $1
		ORDER BY u.id
	`

	rows, err := r.db.QueryContext(ctx, query, groupID)
	if err != nil {
		return nil, fmt.Errorf("failed to list group members: %w", err)
	}
	defer rows.Close()

	var members []Member
	for rows.Next() {
		var m Member
		if err := rows.Scan(&m.UserID, &m.Username); err != nil {
			return nil, fmt.Errorf("failed to scan group member: %w", err)
		}
		members = append(members, m)
	}

	return members, rows.Err()
}

// IsMember reports whether the user is currently in the named group
func (r *Repository) IsMember(ctx context.Context, name string, userID int64) (bool, error) {
	groupID, err := r.groupID(ctx, name)
	if err != nil {
		return false, err
	}

	var exists bool
	query := `SELECT EXISTS(SELECT 1 FROM group_members WHERE group_id = $1 AND user_id = $2)`
	if err := r.db.QueryRowContext(ctx, query, groupID, userID).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check group membership: %w", err)
	}
	return exists, nil
}

// AddMember inserts the user into the named group, applying the title and
// primary-group side effects only where the user has neither set
func (r *Repository) AddMember(ctx context.Context, name string, userID int64, opts AddOptions) error {
	groupID, err := r.groupID(ctx, name)
	if err != nil {
		return err
	}

	insert := `
		INSERT INTO group_members (group_id, user_id)
		VALUES ($1, $2)
		ON CONFLICT (group_id, user_id) DO NOTHING
	`
	if _, err := r.db.ExecContext(ctx, insert, groupID, userID); err != nil {
		return fmt.Errorf("failed to add group member: %w", err)
	}

	if opts.Title != "" {
		setTitle := `
			UPDATE users
			SET title = $1
			WHERE id = $2 AND (title IS NULL OR title = '')
		`
		if _, err := r.db.ExecContext(ctx, setTitle, opts.Title, userID); err != nil {
			return fmt.Errorf("failed to set member title: %w", err)
		}
	}

	if opts.SetPrimary {
		setPrimary := `
			UPDATE users
			SET primary_group_id = $1
			WHERE id = $2 AND primary_group_id IS NULL
		`
		if _, err := r.db.ExecContext(ctx, setPrimary, groupID, userID); err != nil {
			return fmt.Errorf("failed to set primary group: %w", err)
		}
	}

	return nil
}

// RemoveMember removes the user from the named group, clearing the primary
// group pointer when it pointed here
func (r *Repository) RemoveMember(ctx context.Context, name string, userID int64) error {
	groupID, err := r.groupID(ctx, name)
	if err != nil {
		return err
	}

	if _, err := r.db.ExecContext(ctx,
		`DELETE FROM group_members WHERE group_id = $1 AND user_id = $2`, groupID, userID); err != nil {
		return fmt.Errorf("failed to remove group member: %w", err)
	}

	clearPrimary := `
		UPDATE users
		SET primary_group_id = NULL
		WHERE id = $1 AND primary_group_id = $2
	`
	if _, err := r.db.ExecContext(ctx, clearPrimary, userID, groupID); err != nil {
		return fmt.Errorf("failed to clear primary group: %w", err)
	}

	return nil
}

// GrantBadgeToMembers grants the named badge to every current group member
// who does not already hold it, returning the number granted
func (r *Repository) GrantBadgeToMembers(ctx context.Context, name, badgeName string) (int64, error) {
	groupID, err := r.groupID(ctx, name)
	if err != nil {
		return 0, err
	}

	query := `
		INSERT INTO user_badges (user_id, badge_name, granted_at)
		SELECT gm.user_id, $2, NOW()
		FROM group_members gm
		WHERE gm.group_id = $1
		  AND NOT EXISTS (
			SELECT 1 FROM user_badges ub
			WHERE ub.user_id = gm.user_id AND ub.badge_name = $2
		  )
	`

	result, err := r.db.ExecContext(ctx, query, groupID, badgeName)
	if err != nil {
		return 0, fmt.Errorf("failed to grant badges: %w", err)
	}

	granted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return granted, nil
}
