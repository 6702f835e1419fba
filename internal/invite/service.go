package invite

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/roots/discourse-github-sponsors/internal/discord"
	"github.com/roots/discourse-github-sponsors/internal/identity"
)

// Common errors
var (
	ErrNotSponsor         = errors.New("user is not in the sponsor group")
	ErrAlreadyGuildMember = errors.New("user is already a guild member")
	ErrInviteNotFound     = errors.New("invite not found")
)

// Store persists invites
type Store interface {
	Create(ctx context.Context, inv *Invite) (*Invite, error)
	GetByCode(ctx context.Context, code string) (*Invite, error)
	ActiveByUser(ctx context.Context, userID int64) (*Invite, error)
	ListByUser(ctx context.Context, userID int64) ([]*Invite, error)
	MarkUsed(ctx context.Context, code string) (*Invite, error)
	ExpireStale(ctx context.Context) (int64, error)
	Cleanup(ctx context.Context, retentionDays int) (int64, error)
}

// Gateway is the Discord-facing surface the invite flow needs
type Gateway interface {
	MemberExists(ctx context.Context, username string) bool
	CreateInvite(ctx context.Context, ttl time.Duration) (*discord.Invite, error)
	Notify(ctx context.Context, message string) bool
}

// GroupChecker gates invite issuance on sponsor-group membership
type GroupChecker interface {
	IsMember(ctx context.Context, name string, userID int64) (bool, error)
}

// IdentityReader resolves a user's external login for the invite log
type IdentityReader interface {
	LoginByUserID(ctx context.Context, provider string, userID int64) (string, error)
}

// Options configures the invite service
type Options struct {
	GroupName     string
	TTL           time.Duration
	RetentionDays int
}

// Service handles invite issuance and lifecycle
type Service struct {
	opts       Options
	repo       Store
	gateway    Gateway
	groups     GroupChecker
	identities IdentityReader
	logger     *slog.Logger
}

// NewService creates a new invite service
func NewService(opts Options, repo Store, gateway Gateway, groups GroupChecker, identities IdentityReader, logger *slog.Logger) *Service {
	if opts.TTL <= 0 {
		opts.TTL = time.Hour
	}
	if opts.RetentionDays <= 0 {
		opts.RetentionDays = 30
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		opts:       opts,
		repo:       repo,
		gateway:    gateway,
		groups:     groups,
		identities: identities,
		logger:     logger,
	}
}

// JoinURL builds the user-facing join link for an invite code
func JoinURL(code string) string {
	return "https://discord.gg/" + code
}

// Create issues a single-use invite for a sponsor. A still-live invite is
// returned as-is rather than minting a second one; users already present in
// the guild are rejected.
func (s *Service) Create(ctx context.Context, userID int64, discordUsername string) (*Invite, error) {
	isSponsor, err := s.groups.IsMember(ctx, s.opts.GroupName, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to check sponsor group membership: %w", err)
	}
	if !isSponsor {
		return nil, ErrNotSponsor
	}

	if existing, err := s.repo.ActiveByUser(ctx, userID); err != nil {
		return nil, err
	} else if existing != nil {
		return existing, nil
	}

	if s.gateway.MemberExists(ctx, discordUsername) {
		return nil, ErrAlreadyGuildMember
	}

	minted, err := s.gateway.CreateInvite(ctx, s.opts.TTL)
	if err != nil {
		return nil, err
	}

	externalLogin, err := s.identities.LoginByUserID(ctx, identity.ProviderGitHub, userID)
	if err != nil {
		s.logger.Warn("failed to resolve external login for invite log", "user_id", userID, "error", err)
		externalLogin = ""
	}

	inv := &Invite{
		UserID:           userID,
		ExternalUsername: externalLogin,
		DiscordUsername:  discordUsername,
		Code:             minted.Code,
		ExpiresAt:        minted.ExpiresAt,
	}
	if _, err := s.repo.Create(ctx, inv); err != nil {
		return nil, err
	}

	s.gateway.Notify(ctx, fmt.Sprintf("Sponsor %s claimed a server invite", discordUsername))
	s.logger.Info("issued sponsor invite", "user_id", userID, "discord_username", discordUsername)

	return inv, nil
}

// ListByUser returns all of a user's invites, newest first
func (s *Service) ListByUser(ctx context.Context, userID int64) ([]*Invite, error) {
	return s.repo.ListByUser(ctx, userID)
}

// MarkUsed records that an invite was consumed. Marking an already-used
// invite is a no-op returning its current state.
func (s *Service) MarkUsed(ctx context.Context, code string) (*Invite, error) {
	inv, err := s.repo.MarkUsed(ctx, code)
	if err != nil {
		return nil, err
	}
	if inv == nil {
		existing, err := s.repo.GetByCode(ctx, code)
		if err != nil {
			return nil, err
		}
		if existing == nil {
			return nil, ErrInviteNotFound
		}
		return existing, nil
	}
	return inv, nil
}

// Sweep flags all invites past their expiry and returns the number flagged
func (s *Service) Sweep(ctx context.Context) (int64, error) {
	return s.repo.ExpireStale(ctx)
}

// Cleanup deletes invites past the configured retention horizon
func (s *Service) Cleanup(ctx context.Context) (int64, error) {
	return s.repo.Cleanup(ctx, s.opts.RetentionDays)
}
