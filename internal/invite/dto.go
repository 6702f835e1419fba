package invite

// CreateInviteRequest represents the request to issue an invite
type CreateInviteRequest struct {
	DiscordUsername string `json:"discord_username" validate:"required,min=2,max=32"`
}

// InviteResponse represents an issued invite with its derived status
type InviteResponse struct {
	ID              int64  `json:"id"`
	Code            string `json:"invite_code"`
	JoinURL         string `json:"join_url"`
	DiscordUsername string `json:"discord_username"`
	Status          Status `json:"status"`
	CreatedAt       string `json:"created_at"`
	ExpiresAt       string `json:"expires_at"`
	UsedAt          string `json:"used_at,omitempty"`
}

// MarkUsedRequest reports a consumed invite code
type MarkUsedRequest struct {
	Code string `json:"invite_code" validate:"required"`
}

// SweepResponse reports how many invites an expiry sweep flagged
type SweepResponse struct {
	Expired int64 `json:"expired"`
}

// CleanupResponse reports how many invites a retention cleanup removed
type CleanupResponse struct {
	Deleted int64 `json:"deleted"`
}

// ToResponse converts an Invite model to an InviteResponse DTO
func (i *Invite) ToResponse() *InviteResponse {
	resp := &InviteResponse{
		ID:              i.ID,
		Code:            i.Code,
		JoinURL:         JoinURL(i.Code),
		DiscordUsername: i.DiscordUsername,
		Status:          i.Status(),
		CreatedAt:       i.CreatedAt.Format("2006-01-02T15:04:05Z"),
		ExpiresAt:       i.ExpiresAt.Format("2006-01-02T15:04:05Z"),
	}
	if i.UsedAt != nil {
		resp.UsedAt = i.UsedAt.Format("2006-01-02T15:04:05Z")
	}
	return resp
}
