package invite

import "time"

// Status is the derived lifecycle state of an invite. It is never stored;
// it is computed from usedAt, the expired flag, and the clock.
type Status string

const (
	StatusActive  Status = "active"
	StatusUsed    Status = "used"
	StatusExpired Status = "expired"
)

// Invite is a single-use, time-bound invitation token issued to a sponsor.
// UsedAt and ExpiredFlag are each set at most once; rows are deleted only by
// retention cleanup.
type Invite struct {
	ID               int64      `json:"id"`
	UserID           int64      `json:"user_id"`
	ExternalUsername string     `json:"external_username"`
	DiscordUsername  string     `json:"discord_username"`
	Code             string     `json:"invite_code"`
	CreatedAt        time.Time  `json:"created_at"`
	ExpiresAt        time.Time  `json:"expires_at"`
	UsedAt           *time.Time `json:"used_at,omitempty"`
	ExpiredFlag      bool       `json:"expired_flag"`
}

// StatusAt derives the invite's status at a given instant. A set usedAt
// always wins, even past expiry.
func (i *Invite) StatusAt(now time.Time) Status {
	if i.UsedAt != nil {
		return StatusUsed
	}
	if i.ExpiredFlag || now.After(i.ExpiresAt) {
		return StatusExpired
	}
	return StatusActive
}

// Status derives the invite's status now
func (i *Invite) Status() Status {
	return i.StatusAt(time.Now())
}
