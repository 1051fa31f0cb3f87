// Package graphclient implements the directory contract against the
// Microsoft Graph REST API. Token acquisition is delegated to a
// TokenProvider so the client stays transport-only.
package graphclient

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"sptrace/domain/contracts"
	"sptrace/domain/sharepoint"
	"sptrace/infrastructure/retry"
	"sptrace/logging"
)

const defaultBaseURL = "https://graph.microsoft.com/v1.0"

// TokenProvider supplies a bearer token for Graph requests.
type TokenProvider interface {
	Token(ctx context.Context) (string, error)
}

// Client calls the Graph API for group and membership lookups.
type Client struct {
	httpClient *http.Client
	tokens     TokenProvider
	baseURL    string
	policy     retry.Policy
	logger     *logging.Logger
}

// New creates a Graph client with the given token provider and retry policy.
func New(tokens TokenProvider, policy retry.Policy) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: 90 * time.Second},
		tokens:     tokens,
		baseURL:    defaultBaseURL,
		policy:     policy,
		logger:     logging.Default().WithComponent("directory_client"),
	}
}

type groupJSON struct {
	ID              string   `json:"id"`
	DisplayName     string   `json:"displayName"`
	Mail            string   `json:"mail"`
	GroupTypes      []string `json:"groupTypes"`
	SecurityEnabled bool     `json:"securityEnabled"`
}

type memberJSON struct {
	ODataType         string   `json:"@odata.type"`
	ID                string   `json:"id"`
	DisplayName       string   `json:"displayName"`
	Mail              string   `json:"mail"`
	UserPrincipalName string   `json:"userPrincipalName"`
	GroupTypes        []string `json:"groupTypes"`
}

type membersPageJSON struct {
	Value    []memberJSON `json:"value"`
	NextLink string       `json:"@odata.nextLink"`
}

// GetGroup fetches a directory group by object ID. Unified groups are
// reported as Microsoft 365 groups, everything else as security groups.
func (c *Client) GetGroup(ctx context.Context, objectID string) (*contracts.DirectoryGroup, error) {
	endpoint := fmt.Sprintf("%s/groups/%s?$select=id,displayName,mail,groupTypes,securityEnabled",
		c.baseURL, url.PathEscape(objectID))

	var g groupJSON
	if err := c.getJSON(ctx, endpoint, &g); err != nil {
		return nil, fmt.Errorf("get directory group %s: %w", objectID, err)
	}

	return &contracts.DirectoryGroup{
		ObjectID:    g.ID,
		DisplayName: g.DisplayName,
		Mail:        g.Mail,
		Kind:        groupKind(g.GroupTypes),
	}, nil
}

// GetGroupMembers fetches the direct members of a directory group, following
// nextLink pages until exhausted. Member kinds come from the typed response,
// so a group member is never mistaken for a user.
func (c *Client) GetGroupMembers(ctx context.Context, objectID string) ([]*contracts.DirectoryMember, error) {
	endpoint := fmt.Sprintf("%s/groups/%s/members?$top=999", c.baseURL, url.PathEscape(objectID))

	var members []*contracts.DirectoryMember
	for endpoint != "" {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("context canceled during member pagination: %w", ctx.Err())
		}

		var page membersPageJSON
		if err := c.getJSON(ctx, endpoint, &page); err != nil {
			return nil, fmt.Errorf("get directory group members %s: %w", objectID, err)
		}

		for _, m := range page.Value {
			kind := memberKind(m)
			if kind == sharepoint.PrincipalUnknown {
				c.logger.Debug("Skipping untyped directory member",
					"group_object_id", objectID,
					"member_object_id", m.ID,
					"odata_type", m.ODataType)
				continue
			}
			members = append(members, &contracts.DirectoryMember{
				ObjectID:          m.ID,
				DisplayName:       m.DisplayName,
				Email:             m.Mail,
				UserPrincipalName: m.UserPrincipalName,
				Kind:              kind,
			})
		}

		endpoint = page.NextLink
	}

	return members, nil
}

// getJSON performs a GET with bearer auth and decodes the body, retrying
// transient failures under the policy.
func (c *Client) getJSON(ctx context.Context, endpoint string, out any) error {
	return retry.Do(ctx, c.policy, func(ctx context.Context) error {
		token, err := c.tokens.Token(ctx)
		if err != nil {
			return fmt.Errorf("acquire token: %w", err)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return retry.Permanent(fmt.Errorf("build request: %w", err))
		}
		req.Header.Set("Authorization", "Bearer "+token)
		req.Header.Set("Accept", "application/json")

		res, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("execute request: %w", err)
		}
		defer res.Body.Close()

		body, err := io.ReadAll(res.Body)
		if err != nil {
			return fmt.Errorf("read response: %w", err)
		}

		switch {
		case res.StatusCode == http.StatusOK:
			if err := json.Unmarshal(body, out); err != nil {
				return retry.Permanent(fmt.Errorf("decode response: %w", err))
			}
			return nil
		case res.StatusCode == http.StatusNotFound:
			return contracts.ErrNotFound
		case res.StatusCode == http.StatusUnauthorized, res.StatusCode == http.StatusForbidden:
			return contracts.ErrUnauthorized
		case res.StatusCode == http.StatusTooManyRequests, res.StatusCode >= 500:
			return fmt.Errorf("graph request failed: status %d", res.StatusCode)
		default:
			return retry.Permanent(fmt.Errorf("graph request failed: status %d: %s", res.StatusCode, string(body)))
		}
	})
}

func groupKind(groupTypes []string) sharepoint.PrincipalKind {
	for _, t := range groupTypes {
		if t == "Unified" {
			return sharepoint.PrincipalM365Group
		}
	}
	return sharepoint.PrincipalSecurityGroup
}

func memberKind(m memberJSON) sharepoint.PrincipalKind {
	switch m.ODataType {
	case "#microsoft.graph.user":
		return sharepoint.PrincipalUser
	case "#microsoft.graph.group":
		return groupKind(m.GroupTypes)
	default:
		return sharepoint.PrincipalUnknown
	}
}
