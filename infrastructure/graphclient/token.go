package graphclient

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"
)

// ClientCredentialsTokenProvider acquires app-only Graph tokens with the
// client credentials flow and caches them until shortly before expiry.
type ClientCredentialsTokenProvider struct {
	TenantID     string
	ClientID     string
	ClientSecret string

	httpClient *http.Client

	mu      sync.Mutex
	token   string
	expires time.Time
}

// TokenProviderFromEnv builds a token provider from GRAPH_* environment
// variables, falling back to the SP_* tenant/client pair when the Graph
// ones are unset.
func TokenProviderFromEnv() (*ClientCredentialsTokenProvider, error) {
	tenantID := firstEnv("GRAPH_TENANT_ID", "SP_TENANT_ID")
	clientID := firstEnv("GRAPH_CLIENT_ID", "SP_CLIENT_ID")
	secret := os.Getenv("GRAPH_CLIENT_SECRET")

	if tenantID == "" || clientID == "" || secret == "" {
		return nil, fmt.Errorf("missing required configuration: GRAPH_TENANT_ID, GRAPH_CLIENT_ID, GRAPH_CLIENT_SECRET")
	}

	return &ClientCredentialsTokenProvider{
		TenantID:     tenantID,
		ClientID:     clientID,
		ClientSecret: secret,
		httpClient:   &http.Client{Timeout: 30 * time.Second},
	}, nil
}

// Token returns a cached token or fetches a fresh one.
func (p *ClientCredentialsTokenProvider) Token(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.token != "" && time.Now().Before(p.expires) {
		return p.token, nil
	}

	endpoint := fmt.Sprintf("https://login.microsoftonline.com/%s/oauth2/v2.0/token", p.TenantID)
	form := url.Values{
		"grant_type":    {"client_credentials"},
		"client_id":     {p.ClientID},
		"client_secret": {p.ClientSecret},
		"scope":         {"https://graph.microsoft.com/.default"},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("build token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	client := p.httpClient
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	res, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("execute token request: %w", err)
	}
	defer res.Body.Close()

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return "", fmt.Errorf("read token response: %w", err)
	}
	if res.StatusCode != http.StatusOK {
		return "", fmt.Errorf("token request failed: status %d: %s", res.StatusCode, string(body))
	}

	var payload struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return "", fmt.Errorf("decode token response: %w", err)
	}
	if payload.AccessToken == "" {
		return "", fmt.Errorf("token response contained no access token")
	}

	p.token = payload.AccessToken
	// Renew a minute early so in-flight requests never carry a stale token.
	p.expires = time.Now().Add(time.Duration(payload.ExpiresIn)*time.Second - time.Minute)
	return p.token, nil
}

func firstEnv(keys ...string) string {
	for _, key := range keys {
		if v := os.Getenv(key); v != "" {
			return v
		}
	}
	return ""
}
