package sync

import (
	"strings"

	"github.com/roots/discourse-github-sponsors/internal/group"
	"github.com/roots/discourse-github-sponsors/internal/identity"
)

// MatchedSponsor pairs a roster login (original casing) with the linked
// local user
type MatchedSponsor struct {
	Login    string
	UserID   int64
	Username string
}

// Reconciliation is the diff between the external roster and local group
// state
type Reconciliation struct {
	// Matched and Unmatched partition the deduplicated roster
	Matched   []MatchedSponsor
	Unmatched []string

	Added          []MatchedSponsor
	AlreadyInGroup []MatchedSponsor
	Removed        []group.Member

	FinalGroupSize int
}

// Reconcile computes the membership diff converging local group state to the
// roster. Logins are deduplicated case-insensitively, keeping the first
// casing seen. Current members with no identity link are never removed;
// stale or manually added members persist by policy.
//
// Reconciling twice against unchanged inputs yields empty Added and Removed
// on the second pass.
func Reconcile(
	roster []string,
	linksByLogin map[string]identity.LinkedUser,
	currentMembers []group.Member,
	loginsByUserID map[int64]string,
) Reconciliation {
	var rec Reconciliation

	rosterSet := make(map[string]bool, len(roster))
	for _, login := range roster {
		key := strings.ToLower(login)
		if rosterSet[key] {
			continue
		}
		rosterSet[key] = true

		if link, ok := linksByLogin[key]; ok {
			rec.Matched = append(rec.Matched, MatchedSponsor{
				Login:    login,
				UserID:   link.UserID,
				Username: link.Username,
			})
		} else {
			rec.Unmatched = append(rec.Unmatched, login)
		}
	}

	memberSet := make(map[int64]bool, len(currentMembers))
	for _, m := range currentMembers {
		memberSet[m.UserID] = true
	}

	for _, sponsor := range rec.Matched {
		if memberSet[sponsor.UserID] {
			rec.AlreadyInGroup = append(rec.AlreadyInGroup, sponsor)
		} else {
			rec.Added = append(rec.Added, sponsor)
		}
	}

	for _, m := range currentMembers {
		login, linked := loginsByUserID[m.UserID]
		if !linked {
			continue
		}
		if !rosterSet[strings.ToLower(login)] {
			rec.Removed = append(rec.Removed, m)
		}
	}

	rec.FinalGroupSize = len(currentMembers) + len(rec.Added) - len(rec.Removed)
	return rec
}
