package api

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"github.com/sitepulse/tokenvault/internal/logging"
)

func authTestRouter(apiKeys []string, headerName string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(APIKeyAuth(apiKeys, headerName, logging.NewLogger()))
	r.GET("/protected", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})
	return r
}

func TestAPIKeyAuth(t *testing.T) {
	tests := []struct {
		name       string
		apiKeys    []string
		headerName string
		sendHeader string
		sendValue  string
		wantStatus int
	}{
		{
			name:       "no keys configured bypasses auth",
			apiKeys:    nil,
			wantStatus: http.StatusOK,
		},
		{
			name:       "valid key",
			apiKeys:    []string{"secret-key"},
			sendHeader: DefaultAPIKeyHeader,
			sendValue:  "secret-key",
			wantStatus: http.StatusOK,
		},
		{
			name:       "missing key",
			apiKeys:    []string{"secret-key"},
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "invalid key",
			apiKeys:    []string{"secret-key"},
			sendHeader: DefaultAPIKeyHeader,
			sendValue:  "wrong",
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "custom header name",
			apiKeys:    []string{"secret-key"},
			headerName: "X-Vault-Key",
			sendHeader: "X-Vault-Key",
			sendValue:  "secret-key",
			wantStatus: http.StatusOK,
		},
		{
			name:       "second configured key works",
			apiKeys:    []string{"first", "second"},
			sendHeader: DefaultAPIKeyHeader,
			sendValue:  "second",
			wantStatus: http.StatusOK,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := authTestRouter(tt.apiKeys, tt.headerName)

			w := httptest.NewRecorder()
			req, _ := http.NewRequest("GET", "/protected", nil)
			if tt.sendHeader != "" {
				req.Header.Set(tt.sendHeader, tt.sendValue)
			}
			r.ServeHTTP(w, req)

			assert.Equal(t, tt.wantStatus, w.Code)
		})
	}
}
