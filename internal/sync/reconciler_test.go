package sync

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/roots/discourse-github-sponsors/internal/group"
	"github.com/roots/discourse-github-sponsors/internal/identity"
)

func linked(userID int64, username, login string) identity.LinkedUser {
	return identity.LinkedUser{UserID: userID, Username: username, ExternalLogin: login}
}

func TestReconcileMatchesAndAdds(t *testing.T) {
	rec := Reconcile(
		[]string{"alice", "bob"},
		map[string]identity.LinkedUser{"alice": linked(1, "u1", "alice")},
		nil,
		map[int64]string{1: "alice"},
	)

	assert.Len(t, rec.Matched, 1)
	assert.Equal(t, "alice", rec.Matched[0].Login)
	assert.Equal(t, []string{"bob"}, rec.Unmatched)
	assert.Len(t, rec.Added, 1)
	assert.EqualValues(t, 1, rec.Added[0].UserID)
	assert.Empty(t, rec.Removed)
	assert.Equal(t, 1, rec.FinalGroupSize)
}

func TestReconcileRemovesLapsedSponsors(t *testing.T) {
	members := []group.Member{{UserID: 1, Username: "u1"}, {UserID: 2, Username: "u2"}}

	rec := Reconcile(
		[]string{"alice"},
		map[string]identity.LinkedUser{
			"alice": linked(1, "u1", "alice"),
			"bob":   linked(2, "u2", "bob"),
		},
		members,
		map[int64]string{1: "alice", 2: "bob"},
	)

	assert.Len(t, rec.Removed, 1)
	assert.EqualValues(t, 2, rec.Removed[0].UserID)
	assert.Empty(t, rec.Added)
	assert.Len(t, rec.AlreadyInGroup, 1)
	assert.Equal(t, 1, rec.FinalGroupSize)
}

func TestReconcileDeduplicatesCaseInsensitively(t *testing.T) {
	rec := Reconcile(
		[]string{"Alice", "ALICE", "alice"},
		map[string]identity.LinkedUser{"alice": linked(1, "u1", "alice")},
		nil,
		nil,
	)

	assert.Len(t, rec.Matched, 1)
	assert.Equal(t, "Alice", rec.Matched[0].Login, "first casing seen must be kept")
	assert.Empty(t, rec.Unmatched)
}

func TestReconcilePartitionsRosterCompletely(t *testing.T) {
	roster := []string{"alice", "Bob", "carol", "dave", "BOB"}
	rec := Reconcile(
		roster,
		map[string]identity.LinkedUser{
			"alice": linked(1, "u1", "alice"),
			"carol": linked(3, "u3", "carol"),
		},
		nil,
		nil,
	)

	// every deduplicated login lands in exactly one partition
	assert.Equal(t, 4, len(rec.Matched)+len(rec.Unmatched))
	seen := make(map[string]int)
	for _, m := range rec.Matched {
		seen[m.Login]++
	}
	for _, u := range rec.Unmatched {
		seen[u]++
	}
	for login, count := range seen {
		assert.Equal(t, 1, count, "login %s appeared in both partitions", login)
	}
}

func TestReconcileNeverRemovesUnlinkedMembers(t *testing.T) {
	members := []group.Member{{UserID: 9, Username: "manual"}}

	rec := Reconcile(nil, nil, members, map[int64]string{})

	assert.Empty(t, rec.Removed, "members without identity links persist by policy")
	assert.Equal(t, 1, rec.FinalGroupSize)
}

func TestReconcileIsIdempotent(t *testing.T) {
	links := map[string]identity.LinkedUser{
		"alice": linked(1, "u1", "alice"),
		"bob":   linked(2, "u2", "bob"),
	}
	logins := map[int64]string{1: "alice", 2: "bob", 3: "carol"}
	roster := []string{"Alice", "bob"}
	members := []group.Member{{UserID: 3, Username: "u3"}}

	first := Reconcile(roster, links, members, logins)
	assert.Len(t, first.Added, 2)
	assert.Len(t, first.Removed, 1)

	// apply the diff to local state and reconcile again
	applied := []group.Member{
		{UserID: 1, Username: "u1"},
		{UserID: 2, Username: "u2"},
	}
	second := Reconcile(roster, links, applied, logins)
	assert.Empty(t, second.Added)
	assert.Empty(t, second.Removed)
	assert.Equal(t, first.FinalGroupSize, second.FinalGroupSize)
}
