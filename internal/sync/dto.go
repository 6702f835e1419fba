package sync

import "encoding/json"

// OutcomeResponse represents a recorded run outcome
type OutcomeResponse struct {
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
	CreatedAt      string          `json:"created_at"`
}

// CleanupResponse reports how many records a retention cleanup removed
type CleanupResponse struct {
	Deleted int64 `json:"deleted"`
}

// ToResponse converts an Outcome model to an OutcomeResponse DTO
func (o *Outcome) ToResponse() *OutcomeResponse {
	return &OutcomeResponse{
		ID:             o.ID,
		RunID:          o.RunID,
		TotalSponsors:  o.TotalSponsors,
		MatchedCount:   o.MatchedCount,
		UnmatchedCount: o.UnmatchedCount,
		AddedCount:     o.AddedCount,
		RemovedCount:   o.RemovedCount,
		Success:        o.Success,
		ErrorMessage:   o.ErrorMessage,
		Details:        o.Details,
		CreatedAt:      o.CreatedAt.Format("2006-01-02T15:04:05Z"),
	}
}
