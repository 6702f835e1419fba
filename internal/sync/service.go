package sync

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/roots/discourse-github-sponsors/internal/group"
	"github.com/roots/discourse-github-sponsors/internal/identity"
)

// Common errors
var (
	ErrSyncDisabled   = errors.New("sponsor sync is disabled")
	ErrSyncInProgress = errors.New("a sync run is already in progress")
	// ErrRosterFetch is the only failure detail exposed for a failed roster
	// fetch; the underlying cause stays in the logs
	ErrRosterFetch = errors.New("failed to fetch roster")
	ErrApply       = errors.New("failed to apply membership changes")
)

// RosterFetcher produces the external roster of active sponsor logins
type RosterFetcher interface {
	FetchRoster(ctx context.Context, account string) ([]string, error)
}

// IdentityStore reads identity links for the provider
type IdentityStore interface {
	MapByLogin(ctx context.Context, provider string) (map[string]identity.LinkedUser, error)
	LoginsByUserID(ctx context.Context, provider string) (map[int64]string, error)
}

// GroupStore reads and mutates privileged-group membership
type GroupStore interface {
	Members(ctx context.Context, name string) ([]group.Member, error)
	AddMember(ctx context.Context, name string, userID int64, opts group.AddOptions) error
	RemoveMember(ctx context.Context, name string, userID int64) error
	GrantBadgeToMembers(ctx context.Context, name, badgeName string) (int64, error)
}

// OutcomeStore persists run outcomes
type OutcomeStore interface {
	Record(ctx context.Context, outcome *Outcome) (*Outcome, error)
	Cleanup(ctx context.Context, retentionDays int) (int64, error)
	Recent(ctx context.Context, n int) ([]*Outcome, error)
	Successful(ctx context.Context) ([]*Outcome, error)
	Failed(ctx context.Context) ([]*Outcome, error)
}

// Options configures the sync service
type Options struct {
	Enabled       bool
	Account       string
	GroupName     string
	SponsorTitle  string
	BadgeName     string
	RetentionDays int
}

// RunReport is the outcome shape returned to the caller of a run
type RunReport struct {
	RunID             string   `json:"run_id"`
	TotalSponsors     int      `json:"total_sponsors"`
	MatchedSponsors   []string `json:"matched_sponsors"`
	UnmatchedSponsors []string `json:"unmatched_sponsors"`
	AddedUsers        []string `json:"added_users"`
	RemovedUsers      []string `json:"removed_users"`
	AlreadyInGroup    []string `json:"already_in_group"`
	CurrentGroupSize  int      `json:"current_group_size"`
	BadgesGranted     int64    `json:"badges_granted"`
}

// Service orchestrates reconciliation runs. Runs are single-flight: the
// external scheduler is expected to not overlap invocations, and the mutex
// makes that explicit.
type Service struct {
	opts       Options
	fetcher    RosterFetcher
	identities IdentityStore
	groups     GroupStore
	outcomes   OutcomeStore
	logger     *slog.Logger

	mu sync.Mutex
}

// NewService creates a new sync service
func NewService(opts Options, fetcher RosterFetcher, identities IdentityStore, groups GroupStore, outcomes OutcomeStore, logger *slog.Logger) *Service {
	if opts.BadgeName == "" {
		opts.BadgeName = opts.SponsorTitle
	}
	if opts.RetentionDays <= 0 {
		opts.RetentionDays = 90
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		opts:       opts,
		fetcher:    fetcher,
		identities: identities,
		groups:     groups,
		outcomes:   outcomes,
		logger:     logger,
	}
}

// Run executes one full reconciliation: fetch the roster, diff it against
// local state, apply the diff, and record the outcome. A failed roster fetch
// aborts the run and is recorded as a single generic failure.
func (s *Service) Run(ctx context.Context) (*RunReport, error) {
	if !s.opts.Enabled {
		return nil, ErrSyncDisabled
	}
	if !s.mu.TryLock() {
		return nil, ErrSyncInProgress
	}
	defer s.mu.Unlock()

	runID := uuid.NewString()
	logger := s.logger.With("run_id", runID)
	logger.Info("starting sponsor sync", "account", s.opts.Account)

	roster, err := s.fetcher.FetchRoster(ctx, s.opts.Account)
	if err != nil {
		logger.Error("roster fetch failed", "error", err)
		s.recordFailure(ctx, runID, ErrRosterFetch.Error())
		return nil, ErrRosterFetch
	}

	linksByLogin, err := s.identities.MapByLogin(ctx, identity.ProviderGitHub)
	if err != nil {
		logger.Error("identity link load failed", "error", err)
		s.recordFailure(ctx, runID, ErrApply.Error())
		return nil, ErrApply
	}
	loginsByUserID, err := s.identities.LoginsByUserID(ctx, identity.ProviderGitHub)
	if err != nil {
		logger.Error("identity link load failed", "error", err)
		s.recordFailure(ctx, runID, ErrApply.Error())
		return nil, ErrApply
	}
	currentMembers, err := s.groups.Members(ctx, s.opts.GroupName)
	if err != nil {
		logger.Error("group member load failed", "error", err)
		s.recordFailure(ctx, runID, ErrApply.Error())
		return nil, ErrApply
	}

	rec := Reconcile(roster, linksByLogin, currentMembers, loginsByUserID)

	for _, sponsor := range rec.Added {
		err := s.groups.AddMember(ctx, s.opts.GroupName, sponsor.UserID, group.AddOptions{
			Title:      s.opts.SponsorTitle,
			SetPrimary: true,
		})
		if err != nil {
			logger.Error("failed to add member", "user_id", sponsor.UserID, "error", err)
			s.recordFailure(ctx, runID, ErrApply.Error())
			return nil, ErrApply
		}
		logger.Debug("added sponsor to group", "username", sponsor.Username, "login", sponsor.Login)
	}

	for _, member := range rec.Removed {
		if err := s.groups.RemoveMember(ctx, s.opts.GroupName, member.UserID); err != nil {
			logger.Error("failed to remove member", "user_id", member.UserID, "error", err)
			s.recordFailure(ctx, runID, ErrApply.Error())
			return nil, ErrApply
		}
		logger.Debug("removed lapsed sponsor from group", "username", member.Username)
	}

	var badgesGranted int64
	if len(rec.Added) > 0 {
		// Badge backfill is best-effort; a failure never fails the run.
		badgesGranted, err = s.groups.GrantBadgeToMembers(ctx, s.opts.GroupName, s.opts.BadgeName)
		if err != nil {
			logger.Warn("badge backfill failed", "error", err)
		}
	}

	outcome := &Outcome{
		RunID:          runID,
		TotalSponsors:  len(rec.Matched) + len(rec.Unmatched),
		MatchedCount:   len(rec.Matched),
		UnmatchedCount: len(rec.Unmatched),
		AddedCount:     len(rec.Added),
		RemovedCount:   len(rec.Removed),
		Success:        true,
		Details:        buildDetails(roster, &rec),
	}
	if _, err := s.outcomes.Record(ctx, outcome); err != nil {
		logger.Error("failed to record sync outcome", "error", err)
	}

	report := buildReport(runID, &rec, badgesGranted)
	logger.Info("sponsor sync finished",
		"total", report.TotalSponsors,
		"matched", len(report.MatchedSponsors),
		"unmatched", len(report.UnmatchedSponsors),
		"added", len(report.AddedUsers),
		"removed", len(report.RemovedUsers),
		"group_size", report.CurrentGroupSize,
	)
	return report, nil
}

func (s *Service) recordFailure(ctx context.Context, runID, message string) {
	outcome := &Outcome{
		RunID:        runID,
		Success:      false,
		ErrorMessage: &message,
	}
	if _, err := s.outcomes.Record(ctx, outcome); err != nil {
		s.logger.Error("failed to record sync outcome", "run_id", runID, "error", err)
	}
}

func buildReport(runID string, rec *Reconciliation, badgesGranted int64) *RunReport {
	report := &RunReport{
		RunID:             runID,
		TotalSponsors:     len(rec.Matched) + len(rec.Unmatched),
		MatchedSponsors:   make([]string, 0, len(rec.Matched)),
		UnmatchedSponsors: rec.Unmatched,
		AddedUsers:        make([]string, 0, len(rec.Added)),
		RemovedUsers:      make([]string, 0, len(rec.Removed)),
		AlreadyInGroup:    make([]string, 0, len(rec.AlreadyInGroup)),
		CurrentGroupSize:  rec.FinalGroupSize,
		BadgesGranted:     badgesGranted,
	}
	if report.UnmatchedSponsors == nil {
		report.UnmatchedSponsors = []string{}
	}
	for _, s := range rec.Matched {
		report.MatchedSponsors = append(report.MatchedSponsors, s.Login)
	}
	for _, s := range rec.Added {
		report.AddedUsers = append(report.AddedUsers, s.Username)
	}
	for _, m := range rec.Removed {
		report.RemovedUsers = append(report.RemovedUsers, m.Username)
	}
	for _, s := range rec.AlreadyInGroup {
		report.AlreadyInGroup = append(report.AlreadyInGroup, s.Username)
	}
	return report
}

// Cleanup deletes outcomes past the configured retention horizon
func (s *Service) Cleanup(ctx context.Context) (int64, error) {
	return s.outcomes.Cleanup(ctx, s.opts.RetentionDays)
}

// Recent returns the most recent outcomes
func (s *Service) Recent(ctx context.Context, n int) ([]*Outcome, error) {
	return s.outcomes.Recent(ctx, n)
}

// Successful returns all successful outcomes
func (s *Service) Successful(ctx context.Context) ([]*Outcome, error) {
	return s.outcomes.Successful(ctx)
}

// Failed returns all failed outcomes
func (s *Service) Failed(ctx context.Context) ([]*Outcome, error) {
	return s.outcomes.Failed(ctx)
}
