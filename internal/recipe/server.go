package recipe

import (
	"context"
	"encoding/base64"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/time/rate"
)

// Server handles HTTP requests for recipes
type Server struct {
	service   *Service
	basicAuth BasicAuth
	mux       *http.ServeMux
	aiLimiter *rate.Limiter
}

// BasicAuth holds basic authentication credentials
type BasicAuth struct {
	Username string
	Password string
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithAILimiter limits how often the scan and structure endpoints may call
// out to an AI provider.
func WithAILimiter(l *rate.Limiter) ServerOption {
	return func(s *Server) { s.aiLimiter = l }
}

// NewServer creates a new Server with default mux
func NewServer(service *Service, basicAuth BasicAuth, opts ...ServerOption) *Server {
	return NewServerWithMux(service, basicAuth, http.NewServeMux(), opts...)
}

// NewServerWithMux creates a new Server with a custom mux for testing
func NewServerWithMux(service *Service, basicAuth BasicAuth, mux *http.ServeMux, opts ...ServerOption) *Server {
	s := &Server{
		service:   service,
		basicAuth: basicAuth,
		mux:       mux,
		aiLimiter: rate.NewLimiter(rate.Inf, 0),
	}
	for _, o := range opts {
		o(s)
	}
	s.registerRoutes()
	return s
}

// authenticate checks basic auth credentials
func (s *Server) authenticate(r *http.Request) bool {
	if s.basicAuth.Username == "" && s.basicAuth.Password == "" {
		return true // No auth required if not configured
	}

	auth := r.Header.Get("Authorization")
	if !strings.HasPrefix(auth, "Basic ") {
		return false
	}

	decoded, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(auth, "Basic "))
	if err != nil {
		return false
	}

	credentials := strings.SplitN(string(decoded), ":", 2)
	if len(credentials) != 2 {
		return false
	}

	return credentials[0] == s.basicAuth.Username && credentials[1] == s.basicAuth.Password
}

// corsMiddleware adds CORS headers to responses
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		setCORSHeaders(w)

		// Handle preflight OPTIONS requests
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// requireAuth middleware
func (s *Server) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !s.authenticate(r) {
			w.Header().Set("WWW-Authenticate", `Basic realm="Recipe Scanner"`)
			corsError(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next(w, r)
	}
}

// limitAI rejects requests once the AI call budget is spent
func (s *Server) limitAI(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !s.aiLimiter.Allow() {
			slog.Warn("AI request rate limited", "path", r.URL.Path)
			jsonError(w, "Too many AI requests, please wait a moment and try again", http.StatusTooManyRequests)
			return
		}
		next(w, r)
	}
}

// registerRoutes registers all API routes on the server's mux
func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /health", s.handleHealth)

	// Scan pipeline
	s.mux.HandleFunc("POST /api/scans", s.requireAuth(s.limitAI(s.handleScan)))
	s.mux.HandleFunc("POST /api/structure", s.requireAuth(s.limitAI(s.handleStructure)))
	s.mux.HandleFunc("POST /api/images/rotate", s.requireAuth(s.handleRotateImage))

	// Recipes
	s.mux.HandleFunc("GET /api/recipes/{id}", s.requireAuth(s.handleGetRecipe))
	s.mux.HandleFunc("PUT /api/recipes/{id}", s.requireAuth(s.handleUpdateRecipe))
	s.mux.HandleFunc("DELETE /api/recipes/{id}", s.requireAuth(s.handleDeleteRecipe))
	s.mux.HandleFunc("GET /api/recipes", s.requireAuth(s.handleListRecipes))
	s.mux.HandleFunc("POST /api/recipes", s.requireAuth(s.handleCreateRecipe))
	s.mux.HandleFunc("POST /api/shopping-list", s.requireAuth(s.handleShoppingList))

	// Backup
	s.mux.HandleFunc("GET /api/export", s.requireAuth(s.handleExport))
	s.mux.HandleFunc("POST /api/import", s.requireAuth(s.handleImport))
}

// Handler returns the mux wrapped with request IDs, real client IPs, panic
// recovery and CORS handling
func (s *Server) Handler() http.Handler {
	return middleware.RequestID(
		middleware.RealIP(
			middleware.Recoverer(
				s.corsMiddleware(s.mux),
			),
		),
	)
}

// Run serves HTTP on addr until ctx is cancelled, then shuts down gracefully
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("Starting server", "address", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	slog.Info("Shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// ServeHTTP implements http.Handler for testing
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}
