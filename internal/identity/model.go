package identity

// ProviderGitHub is the provider tag for GitHub identity links
const ProviderGitHub = "github"

// LinkedUser is a local user joined with their external login for one
// provider. At most one link exists per (user, provider); login matching is
// case-insensitive.
type LinkedUser struct {
	UserID        int64
	Username      string
	ExternalLogin string
}
