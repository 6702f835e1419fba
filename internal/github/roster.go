package github

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/roots/discourse-github-sponsors/internal/apiclient"
)

const (
	pageSize = 100
	// rosterHardCap guards against a misbehaving or adversarial paginator
	rosterHardCap = 10000

	classificationTTL = 24 * time.Hour
)

// AccountType distinguishes organization accounts from personal ones
type AccountType string

const (
	AccountOrganization AccountType = "organization"
	AccountUser         AccountType = "user"
)

// ClassifyAccount determines whether name is an organization or a personal
// account. The probe result is cached for 24 hours. A GraphQL-level failure
// (the probe reports NOT_FOUND through the errors array for personal
// accounts) defaults to a user account and is never propagated; transport
// and rate-limit failures are.
func (c *Client) ClassifyAccount(ctx context.Context, name string) (AccountType, error) {
	const q = `query($login: String!) {
		organization(login: $login) { login }
	}`

	cacheKey := "github:account-type:" + strings.ToLower(name)
	data, err := c.query(ctx, q, map[string]any{"login": name}, cacheKey, classificationTTL)
	if err != nil {
		if apiclient.IsKind(err, apiclient.KindAPI) || apiclient.IsKind(err, apiclient.KindNotFound) {
			c.logger.Debug("account classification probe failed, assuming user", "account", name, "error", err)
			return AccountUser, nil
		}
		return "", err
	}

	var payload struct {
		Organization *struct {
			Login string `json:"login"`
		} `json:"organization"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return "", &apiclient.Error{Kind: apiclient.KindMalformed, Message: "failed to parse classification probe", Cause: err}
	}
	if payload.Organization != nil {
		return AccountOrganization, nil
	}
	return AccountUser, nil
}

type sponsorshipPage struct {
	Nodes []struct {
		IsActive      bool `json:"isActive"`
		SponsorEntity *struct {
			Login string `json:"login"`
		} `json:"sponsorEntity"`
	} `json:"nodes"`
	PageInfo *struct {
		HasNextPage bool   `json:"hasNextPage"`
		EndCursor   string `json:"endCursor"`
	} `json:"pageInfo"`
}

// FetchRoster returns the logins of all active sponsors of account, in API
// order. Any failure aborts the whole fetch; partial pages are never
// returned.
func (c *Client) FetchRoster(ctx context.Context, account string) ([]string, error) {
	accountType, err := c.ClassifyAccount(ctx, account)
	if err != nil {
		return nil, err
	}

	queryRoot := "user"
	if accountType == AccountOrganization {
		queryRoot = "organization"
	}
	q := fmt.Sprintf(`query($login: String!, $pageSize: Int!, $cursor: String) {
		%s(login: $login) {
			sponsorshipsAsMaintainer(first: $pageSize, after: $cursor, includePrivate: true) {
				nodes {
					isActive
					sponsorEntity {
						... on User { login }
						... on Organization { login }
					}
				}
				pageInfo { hasNextPage endCursor }
			}
		}
		rateLimit { remaining resetAt }
	}`, queryRoot)

	var roster []string
	cursor := ""

	for {
		variables := map[string]any{
			"login":    account,
			"pageSize": pageSize,
		}
		if cursor != "" {
			variables["cursor"] = cursor
		}

		data, err := c.query(ctx, q, variables, "", 0)
		if err != nil {
			return nil, err
		}

		page, rl, err := parseRosterPage(data, queryRoot)
		if err != nil {
			return nil, err
		}
		c.updateRateLimit(rl)

		for _, node := range page.Nodes {
			if node.IsActive && node.SponsorEntity != nil && node.SponsorEntity.Login != "" {
				roster = append(roster, node.SponsorEntity.Login)
			}
		}

		if len(roster) > rosterHardCap {
			c.logger.Warn("roster exceeded hard cap, stopping pagination", "cap", rosterHardCap)
			break
		}
		if page.PageInfo == nil || !page.PageInfo.HasNextPage || page.PageInfo.EndCursor == "" {
			break
		}
		cursor = page.PageInfo.EndCursor
	}

	return roster, nil
}

func parseRosterPage(data json.RawMessage, queryRoot string) (*sponsorshipPage, *rateLimitInfo, error) {
	var payload map[string]json.RawMessage
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, nil, &apiclient.Error{Kind: apiclient.KindMalformed, Message: "failed to parse roster page", Cause: err}
	}

	var rl *rateLimitInfo
	if raw, ok := payload["rateLimit"]; ok {
		_ = json.Unmarshal(raw, &rl)
	}

	root, ok := payload[queryRoot]
	if !ok || string(root) == "null" {
		return nil, rl, &apiclient.Error{Kind: apiclient.KindNotFound, Message: "sponsored account not found"}
	}

	var account struct {
		SponsorshipsAsMaintainer *sponsorshipPage `json:"sponsorshipsAsMaintainer"`
	}
	if err := json.Unmarshal(root, &account); err != nil {
		return nil, rl, &apiclient.Error{Kind: apiclient.KindMalformed, Message: "failed to parse roster page", Cause: err}
	}
	if account.SponsorshipsAsMaintainer == nil {
		return nil, rl, &apiclient.Error{Kind: apiclient.KindMalformed, Message: "roster page missing sponsorships"}
	}
	return account.SponsorshipsAsMaintainer, rl, nil
}
