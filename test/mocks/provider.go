// Package mocks provides a fake OAuth token endpoint for integration tests.
package mocks

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
)

// ProviderServer simulates the provider's OAuth token endpoint. It answers
// refresh_token grants with configurable responses and records every
// exchange it sees.
type ProviderServer struct {
	server *httptest.Server

	mu            sync.Mutex
	calls         int
	refreshTokens []string

	accessToken string
	expiresIn   int64
	failStatus  int
	failCode    string
}

// NewProviderServer starts a fake token endpoint that mints "minted-token"
// valid for one hour. Close it when the test finishes.
func NewProviderServer() *ProviderServer {
	p := &ProviderServer{
		accessToken: "minted-token",
		expiresIn:   3600,
	}
	p.server = httptest.NewServer(http.HandlerFunc(p.handleToken))
	return p
}

// URL returns the token endpoint URL.
func (p *ProviderServer) URL() string {
	return p.server.URL
}

// Close shuts down the fake endpoint.
func (p *ProviderServer) Close() {
	p.server.Close()
}

// RespondWith sets the token returned by subsequent exchanges.
func (p *ProviderServer) RespondWith(accessToken string, expiresIn int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.accessToken = accessToken
	p.expiresIn = expiresIn
	p.failStatus = 0
	p.failCode = ""
}

// FailWith makes subsequent exchanges fail with the given HTTP status and
// OAuth error code. An empty code produces a body without a parseable error.
func (p *ProviderServer) FailWith(status int, code string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failStatus = status
	p.failCode = code
}

// Calls returns how many exchanges the endpoint has served.
func (p *ProviderServer) Calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

// RefreshTokens returns the refresh tokens presented so far, in order.
func (p *ProviderServer) RefreshTokens() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.refreshTokens...)
}

func (p *ProviderServer) handleToken(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, "bad form", http.StatusBadRequest)
		return
	}

	p.mu.Lock()
	p.calls++
	p.refreshTokens = append(p.refreshTokens, r.PostFormValue("refresh_token"))
	failStatus, failCode := p.failStatus, p.failCode
	accessToken, expiresIn := p.accessToken, p.expiresIn
	p.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")

	if failStatus != 0 {
		w.WriteHeader(failStatus)
		if failCode != "" {
			json.NewEncoder(w).Encode(map[string]string{
				"error":             failCode,
				"error_description": "simulated failure",
			})
		} else {
			w.Write([]byte("upstream unavailable"))
		}
		return
	}

	json.NewEncoder(w).Encode(map[string]interface{}{
		"access_token": accessToken,
		"expires_in":   expiresIn,
		"token_type":   "Bearer",
	})
}
