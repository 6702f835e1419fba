package identity

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// Repository reads identity links. The links themselves are owned by the
// identity-linking subsystem; this package never writes them.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a new identity link repository
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// MapByLogin returns all linked users for a provider keyed by lowercase
// external login
func (r *Repository) MapByLogin(ctx context.Context, provider string) (map[string]LinkedUser, error) {
	query := `
		SELECT il.user_id, u.username, il.external_login
		FROM identity_links il
		JOIN users u ON il.user_id = u.id
		WHERE il.provider = $1
	`

	rows, err := r.db.QueryContext(ctx, query, provider)
	if err != nil {
		return nil, fmt.Errorf("failed to load identity links: %w", err)
	}
	defer rows.Close()

	links := make(map[string]LinkedUser)
	for rows.Next() {
		var link LinkedUser
		if err := rows.Scan(&link.UserID, &link.Username, &link.ExternalLogin); err != nil {
			return nil, fmt.Errorf("failed to scan identity link: %w", err)
		}
		links[strings.ToLower(link.ExternalLogin)] = link
	}

	return links, rows.Err()
}

// LoginsByUserID returns each linked user's external login for a provider
func (r *Repository) LoginsByUserID(ctx context.Context, provider string) (map[int64]string, error) {
	query := `
		SELECT user_id, external_login
		FROM identity_links
		WHERE provider = $1
	`

	rows, err := r.db.QueryContext(ctx, query, provider)
	if err != nil {
		return nil, fmt.Errorf("failed to load identity links: %w", err)
	}
	defer rows.Close()

	logins := make(map[int64]string)
	for rows.Next() {
		var userID int64
		var login string
		if err := rows.Scan(&userID, &login); err != nil {
			return nil, fmt.Errorf("failed to scan identity link: %w", err)
		}
		logins[userID] = login
	}

	return logins, rows.Err()
}

// LoginByUserID returns a single user's external login for a provider, or
// empty when no link exists
func (r *Repository) LoginByUserID(ctx context.Context, provider string, userID int64) (string, error) {
	query := `
		SELECT external_login
		FROM identity_links
		WHERE provider = $1 AND user_id = $2
	`

	var login string
	err := r.db.QueryRowContext(ctx, query, provider, userID).Scan(&login)
	if err != nil {
		if err == sql.ErrNoRows {
			return "", nil
		}
		return "", fmt.Errorf("failed to get identity link: %w", err)
	}
	return login, nil
}
