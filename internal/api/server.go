package api

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/sitepulse/tokenvault/internal/config"
	"github.com/sitepulse/tokenvault/internal/errors"
	"github.com/sitepulse/tokenvault/internal/logging"
	"github.com/sitepulse/tokenvault/internal/metrics"
	"github.com/sitepulse/tokenvault/internal/models"
	"github.com/sitepulse/tokenvault/internal/oauth"
	"github.com/sitepulse/tokenvault/internal/store"
	"github.com/sitepulse/tokenvault/internal/vault"
)

// Server represents the HTTP API server
type Server struct {
	router       *gin.Engine
	config       config.ServerConfig
	apiConfig    config.APIConfig
	vault        *vault.Vault
	orchestrator *oauth.Orchestrator
	store        store.RecordStore
	metrics      *metrics.Metrics
	logger       *logging.Logger
	rateLimiter  *IPRateLimiter
	httpServer   *http.Server
	tlsConfig    config.TLSConfig
}

// Router returns the gin router for testing purposes
func (s *Server) Router() *gin.Engine {
	return s.router
}

// NewServer creates a new API server
func NewServer(cfg config.ServerConfig, apiCfg config.APIConfig, v *vault.Vault, orch *oauth.Orchestrator, recordStore store.RecordStore, m *metrics.Metrics) *Server {
	gin.SetMode(gin.ReleaseMode)

	if m == nil {
		m = metrics.NewMetrics("tokenvault")
	}
	logger := logging.NewLogger()

	requestsPerMinute := apiCfg.RateLimit.RequestsPerMinute
	if requestsPerMinute <= 0 {
		requestsPerMinute = 1000
	}
	burst := apiCfg.RateLimit.Burst
	if burst <= 0 {
		burst = 100
	}
	rateLimiter := newIPRateLimiter(time.Minute/time.Duration(requestsPerMinute), burst)

	server := &Server{
		router:       gin.New(),
		config:       cfg,
		apiConfig:    apiCfg,
		vault:        v,
		orchestrator: orch,
		store:        recordStore,
		metrics:      m,
		logger:       logger,
		rateLimiter:  rateLimiter,
		tlsConfig:    cfg.TLS,
	}
	server.router.HandleMethodNotAllowed = true

	server.router.Use(gin.Recovery())
	server.router.Use(rateLimitMiddleware(rateLimiter))
	server.router.Use(bodyLimitMiddleware(1 << 20))
	server.router.Use(metrics.Middleware(m, logger))
	server.router.Use(loggingMiddleware(logger))

	server.setupRoutes()
	return server
}

// loggingMiddleware provides structured logging for all requests
func loggingMiddleware(logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		correlationID := c.GetHeader("X-Correlation-ID")
		if correlationID == "" {
			correlationID = logging.GenerateCorrelationID()
		}

		ctx := logging.WithCorrelationID(c.Request.Context(), correlationID)
		c.Request = c.Request.WithContext(ctx)
		c.Header("X-Correlation-ID", correlationID)

		c.Next()

		duration := time.Since(start).Seconds()
		logger.InfoWithContext(ctx, "request completed",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration_seconds", duration,
		)
	}
}

// setupRoutes configures all API routes
func (s *Server) setupRoutes() {
	// Prometheus metrics endpoint - NO authentication required
	s.router.GET("/metrics", gin.WrapH(s.metrics.Handler()))

	// Health check - NO authentication required
	s.router.GET("/health", s.handleHealth)

	authMiddleware := APIKeyAuth(s.apiConfig.Auth.APIKeys, s.apiConfig.Auth.HeaderName, s.logger)

	v1 := s.router.Group(s.apiConfig.BasePath)
	v1.Use(authMiddleware)
	{
		v1.GET("/tokens/:user_id", s.handleGetToken)
		v1.PUT("/credentials/:user_id", s.handlePutCredential)
		v1.DELETE("/credentials/:user_id", s.handleDeleteCredential)
		v1.GET("/credentials", s.handleListCredentials)
		v1.GET("/audit", s.handleListAudit)
	}
}

// Run starts the HTTP or HTTPS server based on TLS configuration
func (s *Server) Run() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.HTTPPort)

	if s.tlsConfig.Enabled {
		return s.RunTLS()
	}

	if s.httpServer == nil {
		s.httpServer = NewHTTPServer(addr, s.router)
	}

	s.logger.Info("starting HTTP server", "addr", addr)
	return s.httpServer.ListenAndServe()
}

// RunTLS starts the HTTPS server with TLS configuration
func (s *Server) RunTLS() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.HTTPPort)

	s.logger.Info("starting HTTPS server", "addr", addr, "cert_file", s.tlsConfig.CertFile, "min_version", s.tlsConfig.MinVersion)

	srv, err := NewHTTPSServerWithConfig(addr, s.tlsConfig.CertFile, s.tlsConfig.KeyFile, s.tlsConfig.MinVersion, s.router)
	if err != nil {
		return &errors.ErrServerStart{Addr: addr, Err: err}
	}
	s.httpServer = srv

	return s.httpServer.ListenAndServeTLS("", "")
}

// Shutdown gracefully shuts down the server and its store
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("initiating graceful shutdown")

	var wg sync.WaitGroup
	errs := make(chan error, 2)

	if s.httpServer != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.logger.Info("shutting down HTTP server")
			if err := s.httpServer.Shutdown(ctx); err != nil {
				errs <- &errors.ErrServerShutdown{Err: err}
			}
		}()
	}

	if s.store != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := s.store.Close(); err != nil {
				errs <- fmt.Errorf("store close: %w", err)
			}
		}()
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}

	close(errs)
	var errList []error
	for err := range errs {
		if err != nil {
			errList = append(errList, err)
		}
	}
	if len(errList) > 0 {
		return fmt.Errorf("shutdown errors: %v", errList)
	}

	s.logger.Info("graceful shutdown completed")
	return nil
}

// handleHealth returns health status
func (s *Server) handleHealth(c *gin.Context) {
	stats := s.store.Stats()
	c.JSON(http.StatusOK, gin.H{
		"status":      "healthy",
		"timestamp":   time.Now().UTC(),
		"credentials": stats.CredentialCount,
	})
}

// TokenResponse carries a usable access token to an internal caller.
type TokenResponse struct {
	UserID      string    `json:"user_id"`
	AccessToken string    `json:"access_token"`
	Expiry      time.Time `json:"expiry"`
	// Persisted is false when the token was minted this request but could
	// not be cached; the caller should use it and expect another refresh
	// next time.
	Persisted bool `json:"persisted"`
}

// handleGetToken returns a currently-valid access token for the user,
// refreshing it against the provider when the cached one is stale.
func (s *Server) handleGetToken(c *gin.Context) {
	userID := c.Param("user_id")
	ctx := c.Request.Context()

	token, err := s.orchestrator.ValidAccessToken(ctx, userID)
	if err != nil {
		var persistErr *errors.ErrPersistFailedAfterRefresh
		if stderrors.As(err, &persistErr) {
			// Degraded success: the token works, the cache write did not.
			c.JSON(http.StatusOK, TokenResponse{
				UserID:      userID,
				AccessToken: persistErr.AccessToken,
				Expiry:      persistErr.Expiry,
				Persisted:   false,
			})
			return
		}

		var noCred *errors.ErrNoCredential
		if stderrors.As(err, &noCred) {
			c.JSON(http.StatusNotFound, gin.H{
				"error":   "no_credential",
				"message": "user has not connected this integration",
				"user_id": userID,
			})
			return
		}

		var reconnect *errors.ErrReconnectRequired
		if stderrors.As(err, &reconnect) {
			c.JSON(http.StatusConflict, gin.H{
				"error":   "reconnect_required",
				"message": reconnect.Reason,
				"user_id": userID,
			})
			return
		}

		var transient *errors.ErrProviderTransient
		if stderrors.As(err, &transient) {
			s.metrics.RecordError("provider_transient", c.FullPath(), c.Request.Method)
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"error":   "provider_unavailable",
				"message": "temporary failure talking to the identity provider, retry later",
			})
			return
		}

		s.logger.ErrorWithContext(ctx, "token lookup failed", "user_id", userID, "error", err.Error())
		s.metrics.RecordError("internal", c.FullPath(), c.Request.Method)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal"})
		return
	}

	c.JSON(http.StatusOK, TokenResponse{
		UserID:      userID,
		AccessToken: token.Token,
		Expiry:      token.Expiry,
		Persisted:   true,
	})
}

// CredentialRequest is the payload stored after a completed consent flow.
type CredentialRequest struct {
	AccessToken  string    `json:"access_token" binding:"required"`
	RefreshToken string    `json:"refresh_token" binding:"required"`
	Expiry       time.Time `json:"expiry" binding:"required"`
	Scope        []string  `json:"scope,omitempty"`
}

// handlePutCredential stores a freshly consented token pair.
func (s *Server) handlePutCredential(c *gin.Context) {
	userID := c.Param("user_id")
	ctx := c.Request.Context()

	var req CredentialRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad_request", "message": err.Error()})
		return
	}

	pair := models.TokenPair{
		AccessToken:  req.AccessToken,
		RefreshToken: req.RefreshToken,
		Expiry:       req.Expiry,
		Scope:        req.Scope,
	}
	if err := s.vault.Persist(ctx, userID, pair); err != nil {
		s.logger.ErrorWithContext(ctx, "credential persist failed", "user_id", userID, "error", err.Error())
		s.metrics.RecordError("persist", c.FullPath(), c.Request.Method)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal"})
		return
	}

	s.saveAudit(ctx, logging.CredentialPersist, "store credential pair", userID)
	s.metrics.SetStoredCredentials(s.store.Stats().CredentialCount)

	c.JSON(http.StatusCreated, gin.H{
		"user_id": userID,
		"status":  "stored",
		"expiry":  req.Expiry.UTC(),
	})
}

// handleDeleteCredential removes a user's stored credential (disconnect).
func (s *Server) handleDeleteCredential(c *gin.Context) {
	userID := c.Param("user_id")
	ctx := c.Request.Context()

	if err := s.vault.Delete(ctx, userID); err != nil {
		s.logger.ErrorWithContext(ctx, "credential delete failed", "user_id", userID, "error", err.Error())
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal"})
		return
	}

	s.saveAudit(ctx, logging.CredentialDelete, "disconnect integration", userID)
	s.metrics.SetStoredCredentials(s.store.Stats().CredentialCount)

	c.Status(http.StatusNoContent)
}

// CredentialSummary describes a stored credential without any secret material.
type CredentialSummary struct {
	UserID    string    `json:"user_id"`
	Expiry    time.Time `json:"expiry"`
	Scope     []string  `json:"scope,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

// handleListCredentials lists stored credentials for operator tooling.
// Token material never leaves the vault here.
func (s *Server) handleListCredentials(c *gin.Context) {
	records, err := s.store.List(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal"})
		return
	}

	summaries := make([]CredentialSummary, 0, len(records))
	for _, r := range records {
		summaries = append(summaries, CredentialSummary{
			UserID:    r.UserID,
			Expiry:    r.Expiry,
			Scope:     r.Scope,
			UpdatedAt: r.UpdatedAt,
		})
	}
	c.JSON(http.StatusOK, gin.H{"credentials": summaries, "count": len(summaries)})
}

// handleListAudit returns recent audit events, newest first.
func (s *Server) handleListAudit(c *gin.Context) {
	limit := 100
	if raw := c.Query("limit"); raw != "" {
		if _, err := fmt.Sscanf(raw, "%d", &limit); err != nil || limit <= 0 || limit > 1000 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "bad_request", "message": "limit must be between 1 and 1000"})
			return
		}
	}

	events, err := s.store.ListAuditEvents(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"events": events, "count": len(events)})
}

func (s *Server) saveAudit(ctx context.Context, eventType logging.AuditEventType, action, userID string) {
	event := logging.NewAuditEvent(eventType, action, logging.StatusSuccess).
		WithUserID(userID).
		WithCorrelationID(logging.GetCorrelationID(ctx))
	if err := s.store.SaveAuditEvent(event); err != nil {
		s.logger.Error("failed to save audit event", "error", err.Error())
	}
}
