package oauth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sitepulse/tokenvault/internal/errors"
)

// DefaultTokenURL is Google's OAuth 2.0 token endpoint, shared by GA4,
// Search Console and Business Profile credentials.
const DefaultTokenURL = "https://oauth2.googleapis.com/token"

// RefreshResponse is the provider's answer to a refresh_token grant.
type RefreshResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"`
	TokenType   string `json:"token_type"`
	Scope       string `json:"scope,omitempty"`
}

type providerError struct {
	Code        string `json:"error"`
	Description string `json:"error_description,omitempty"`
}

// ProviderClient performs the refresh exchange against the identity
// provider's token endpoint.
type ProviderClient interface {
	Refresh(ctx context.Context, refreshToken string) (*RefreshResponse, error)
}

// TokenEndpoint is the HTTP ProviderClient. One Refresh call makes exactly
// one network request; retry policy belongs to the caller.
type TokenEndpoint struct {
	tokenURL     string
	clientID     string
	clientSecret string
	httpClient   *http.Client
}

// EndpointOption configures a TokenEndpoint.
type EndpointOption func(*TokenEndpoint)

// WithTokenURL overrides the token endpoint URL (tests, non-Google setups).
func WithTokenURL(tokenURL string) EndpointOption {
	return func(e *TokenEndpoint) {
		e.tokenURL = tokenURL
	}
}

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(client *http.Client) EndpointOption {
	return func(e *TokenEndpoint) {
		e.httpClient = client
	}
}

// NewTokenEndpoint creates a provider client for the given OAuth app.
func NewTokenEndpoint(clientID, clientSecret string, opts ...EndpointOption) *TokenEndpoint {
	e := &TokenEndpoint{
		tokenURL:     DefaultTokenURL,
		clientID:     clientID,
		clientSecret: clientSecret,
		httpClient:   &http.Client{Timeout: 15 * time.Second},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// authErrorCodes are the provider error codes that mean "this refresh token
// will never work again"; everything else non-2xx is treated as transient.
var authErrorCodes = map[string]bool{
	"invalid_grant":       true,
	"invalid_client":      true,
	"unauthorized_client": true,
	"access_denied":       true,
}

// Refresh exchanges a refresh token for a new access token.
// The exchange is allowed to complete even when the caller's context is
// cancelled mid-flight, bounded by the HTTP client's own timeout, so a
// minted token is never orphaned by a caller deadline.
func (e *TokenEndpoint) Refresh(ctx context.Context, refreshToken string) (*RefreshResponse, error) {
	form := url.Values{}
	form.Set("client_id", e.clientID)
	if e.clientSecret != "" {
		form.Set("client_secret", e.clientSecret)
	}
	form.Set("refresh_token", refreshToken)
	form.Set("grant_type", "refresh_token")

	req, err := http.NewRequestWithContext(
		context.WithoutCancel(ctx),
		http.MethodPost,
		e.tokenURL,
		strings.NewReader(form.Encode()),
	)
	if err != nil {
		return nil, &errors.ErrProviderTransient{Err: err}
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return nil, &errors.ErrProviderTransient{Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, &errors.ErrProviderTransient{StatusCode: resp.StatusCode, Err: err}
	}

	if resp.StatusCode != http.StatusOK {
		return nil, classifyFailure(resp.StatusCode, body)
	}

	var parsed RefreshResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, &errors.ErrProviderTransient{StatusCode: resp.StatusCode, Err: err}
	}
	if parsed.AccessToken == "" {
		return nil, &errors.ErrProviderTransient{
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("refresh response missing access_token"),
		}
	}
	if parsed.ExpiresIn <= 0 {
		return nil, &errors.ErrProviderTransient{
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("refresh response missing expires_in"),
		}
	}
	return &parsed, nil
}

// classifyFailure separates "this token is dead" from "try again later".
// An unparseable 4xx body is treated as transient: prompting a user to
// reconnect over a proxy hiccup is the failure mode this subsystem exists
// to avoid.
func classifyFailure(statusCode int, body []byte) error {
	if statusCode == http.StatusBadRequest || statusCode == http.StatusUnauthorized || statusCode == http.StatusForbidden {
		var perr providerError
		if err := json.Unmarshal(body, &perr); err == nil && authErrorCodes[perr.Code] {
			return &errors.ErrRefreshRejected{
				StatusCode:  statusCode,
				Code:        perr.Code,
				Description: perr.Description,
			}
		}
	}
	return &errors.ErrProviderTransient{
		StatusCode: statusCode,
		Err:        fmt.Errorf("token endpoint status %d", statusCode),
	}
}
