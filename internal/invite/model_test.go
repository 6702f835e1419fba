package invite

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestStatusDerivation(t *testing.T) {
	issued := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	expiry := issued.Add(time.Hour)
	used := issued.Add(100 * time.Second)

	tests := []struct {
		name   string
		invite Invite
		at     time.Time
		want   Status
	}{
		{
			name:   "fresh invite is active",
			invite: Invite{CreatedAt: issued, ExpiresAt: expiry},
			at:     issued.Add(time.Minute),
			want:   StatusActive,
		},
		{
			name:   "past expiry without usedAt is expired",
			invite: Invite{CreatedAt: issued, ExpiresAt: expiry},
			at:     expiry.Add(time.Second),
			want:   StatusExpired,
		},
		{
			name:   "usedAt wins even past expiry",
			invite: Invite{CreatedAt: issued, ExpiresAt: expiry, UsedAt: &used},
			at:     expiry.Add(time.Second),
			want:   StatusUsed,
		},
		{
			name:   "expired flag without clock expiry is expired",
			invite: Invite{CreatedAt: issued, ExpiresAt: expiry, ExpiredFlag: true},
			at:     issued.Add(time.Minute),
			want:   StatusExpired,
		},
		{
			name:   "usedAt wins over expired flag",
			invite: Invite{CreatedAt: issued, ExpiresAt: expiry, UsedAt: &used, ExpiredFlag: true},
			at:     expiry.Add(time.Hour),
			want:   StatusUsed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.invite.StatusAt(tt.at))
		})
	}
}
