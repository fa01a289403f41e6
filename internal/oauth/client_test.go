package oauth

import (
	"context"
	stderrors "errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/sitepulse/tokenvault/internal/errors"
)

func TestRefreshSuccess(t *testing.T) {
	var gotForm map[string]string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "application/x-www-form-urlencoded", r.Header.Get("Content-Type"))
		require.NoError(t, r.ParseForm())
		gotForm = map[string]string{
			"grant_type":    r.PostFormValue("grant_type"),
			"refresh_token": r.PostFormValue("refresh_token"),
			"client_id":     r.PostFormValue("client_id"),
			"client_secret": r.PostFormValue("client_secret"),
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"access_token":"ya29.fresh","expires_in":3599,"token_type":"Bearer","scope":"https://www.googleapis.com/auth/analytics.readonly"}`))
	}))
	defer server.Close()

	endpoint := NewTokenEndpoint("client-id", "client-secret", WithTokenURL(server.URL))
	resp, err := endpoint.Refresh(context.Background(), "refresh-1")
	require.NoError(t, err)
	require.Equal(t, "ya29.fresh", resp.AccessToken)
	require.Equal(t, int64(3599), resp.ExpiresIn)

	require.Equal(t, "refresh_token", gotForm["grant_type"])
	require.Equal(t, "refresh-1", gotForm["refresh_token"])
	require.Equal(t, "client-id", gotForm["client_id"])
	require.Equal(t, "client-secret", gotForm["client_secret"])
}

func TestRefreshInvalidGrant(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":"invalid_grant","error_description":"Token has been expired or revoked."}`))
	}))
	defer server.Close()

	endpoint := NewTokenEndpoint("client-id", "", WithTokenURL(server.URL))
	_, err := endpoint.Refresh(context.Background(), "revoked")
	var rejected *errors.ErrRefreshRejected
	require.ErrorAs(t, err, &rejected)
	require.Equal(t, "invalid_grant", rejected.Code)
	require.Equal(t, http.StatusBadRequest, rejected.StatusCode)
}

func TestRefreshServerErrorIsTransient(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	endpoint := NewTokenEndpoint("client-id", "", WithTokenURL(server.URL))
	_, err := endpoint.Refresh(context.Background(), "refresh-1")
	var transient *errors.ErrProviderTransient
	require.ErrorAs(t, err, &transient)
	require.Equal(t, http.StatusBadGateway, transient.StatusCode)
}

func TestRefreshUnparseable400IsTransient(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte("<html>blocked by proxy</html>"))
	}))
	defer server.Close()

	endpoint := NewTokenEndpoint("client-id", "", WithTokenURL(server.URL))
	_, err := endpoint.Refresh(context.Background(), "refresh-1")
	var transient *errors.ErrProviderTransient
	require.ErrorAs(t, err, &transient)
	var rejected *errors.ErrRefreshRejected
	require.False(t, stderrors.As(err, &rejected))
}

func TestRefreshUnknown400CodeIsTransient(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":"temporarily_unavailable"}`))
	}))
	defer server.Close()

	endpoint := NewTokenEndpoint("client-id", "", WithTokenURL(server.URL))
	_, err := endpoint.Refresh(context.Background(), "refresh-1")
	var transient *errors.ErrProviderTransient
	require.ErrorAs(t, err, &transient)
}

func TestRefreshMissingFieldsAreTransient(t *testing.T) {
	cases := []struct {
		name string
		body string
	}{
		{"missing access_token", `{"expires_in":3599}`},
		{"missing expires_in", `{"access_token":"ya29.fresh"}`},
		{"not json", `ok`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(tc.body))
			}))
			defer server.Close()

			endpoint := NewTokenEndpoint("client-id", "", WithTokenURL(server.URL))
			_, err := endpoint.Refresh(context.Background(), "refresh-1")
			var transient *errors.ErrProviderTransient
			require.ErrorAs(t, err, &transient)
		})
	}
}

func TestRefreshNetworkFailureIsTransient(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close()

	endpoint := NewTokenEndpoint("client-id", "", WithTokenURL(server.URL))
	_, err := endpoint.Refresh(context.Background(), "refresh-1")
	var transient *errors.ErrProviderTransient
	require.ErrorAs(t, err, &transient)
}

func TestRefreshCompletesDespiteCancelledCaller(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(50 * time.Millisecond)
		w.Write([]byte(`{"access_token":"ya29.fresh","expires_in":3599,"token_type":"Bearer"}`))
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	endpoint := NewTokenEndpoint("client-id", "", WithTokenURL(server.URL))

	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	resp, err := endpoint.Refresh(ctx, "refresh-1")
	require.NoError(t, err)
	require.Equal(t, "ya29.fresh", resp.AccessToken)
}
