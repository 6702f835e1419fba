package sync

import (
	"encoding/json"
	"time"
)

// unmatchedDetailCap bounds the unmatched-sponsor list stored in the details
// blob; the stored counts stay authoritative for large rosters
const unmatchedDetailCap = 100

// Outcome is the persisted record of one reconciliation run. Immutable after
// creation; deleted only by retention cleanup.
type Outcome struct {
	ID             int64           `json:"id"`
	RunID          string          `json:"run_id"`
	TotalSponsors  int             `json:"total_sponsors"`
	MatchedCount   int             `json:"matched_count"`
	UnmatchedCount int             `json:"unmatched_count"`
	AddedCount     int             `json:"added_count"`
	RemovedCount   int             `json:"removed_count"`
	Success        bool            `json:"success"`
	ErrorMessage   *string         `json:"error_message,omitempty"`
	Details        json.RawMessage `json:"details,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
}

// OutcomeDetails is the audit blob stored alongside an outcome's counts
type OutcomeDetails struct {
	Roster    []string `json:"roster,omitempty"`
	Added     []string `json:"added,omitempty"`
	Removed   []string `json:"removed,omitempty"`
	Unmatched []string `json:"unmatched,omitempty"`
}

// buildDetails assembles the capped audit blob for a completed
// reconciliation
func buildDetails(roster []string, rec *Reconciliation) json.RawMessage {
	if rec == nil {
		return nil
	}

	details := OutcomeDetails{Roster: roster}
	for _, s := range rec.Added {
		details.Added = append(details.Added, s.Username)
	}
	for _, m := range rec.Removed {
		details.Removed = append(details.Removed, m.Username)
	}
	unmatched := rec.Unmatched
	if len(unmatched) > unmatchedDetailCap {
		unmatched = unmatched[:unmatchedDetailCap]
	}
	details.Unmatched = unmatched

	blob, err := json.Marshal(details)
	if err != nil {
		return nil
	}
	return blob
}
