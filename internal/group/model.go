package group

// Member is a user currently in the privileged group
type Member struct {
	UserID   int64  `json:"user_id"`
	Username string `json:"username"`
}

// AddOptions carries the side effects applied when a sponsor joins the
// group: a display title when the user has none, and the group as primary
// when the user has no primary group yet. Existing values are never
// overwritten.
type AddOptions struct {
	Title      string
	SetPrimary bool
}
