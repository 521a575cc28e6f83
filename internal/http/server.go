package http

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"spendtrack/internal/auth"
	"spendtrack/internal/middleware/ratelimit"
	"spendtrack/internal/middleware/security"
	"spendtrack/internal/middleware/trace"
	"spendtrack/internal/services"
)

// Pinger reports whether the backing store is reachable. The readiness
// probe uses it so a deployment only receives traffic once the database
// answers.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Server struct {
	http.Server

	identity *services.IdentityService
	expenses *services.ExpenseService
	tokens   *auth.TokenIssuer
	store    Pinger

	limiter  *ratelimit.Limiter
	detector *security.Detector

	shutdownOnce sync.Once
}

// NewServer configures routes and middleware, returning a ready-to-run
// http.Server. Auth endpoints are rate limited per client IP; every
// expense route requires a valid bearer token.
func NewServer(addr string, identity *services.IdentityService, expenses *services.ExpenseService, tokens *auth.TokenIssuer, store Pinger, authRequestsPerMinute int) *Server {
	mux := http.NewServeMux()

	s := &Server{
		Server: http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       15 * time.Second,
			WriteTimeout:      15 * time.Second,
			IdleTimeout:       60 * time.Second,
		},
		identity: identity,
		expenses: expenses,
		tokens:   tokens,
		store:    store,
		limiter: ratelimit.NewLimiter(ratelimit.Config{
			RequestsPerMinute: authRequestsPerMinute,
		}),
		detector: security.NewDetector(),
	}

	limited := s.limiter.Middleware(s.detector.ExtractClientIP, onRateLimited)

	mux.Handle("POST /auth/register", limited(http.HandlerFunc(s.handleRegister)))
	mux.Handle("POST /auth/login", limited(http.HandlerFunc(s.handleLogin)))

	mux.HandleFunc("GET /expenses", s.requireAuth(s.handleListExpenses))
	mux.HandleFunc("POST /expenses", s.requireAuth(s.handleCreateExpense))
	mux.HandleFunc("GET /expenses/filter", s.requireAuth(s.handleFilterExpenses))
	mux.HandleFunc("GET /expenses/summary", s.requireAuth(s.handleExpenseSummary))
	mux.HandleFunc("GET /expenses/{id}", s.requireAuth(s.handleGetExpense))
	mux.HandleFunc("PUT /expenses/{id}", s.requireAuth(s.handleReplaceExpense))
	mux.HandleFunc("PATCH /expenses/{id}", s.requireAuth(s.handlePatchExpense))
	mux.HandleFunc("DELETE /expenses/{id}", s.requireAuth(s.handleDeleteExpense))

	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)

	traced := trace.NewMiddleware(s.detector.ExtractClientIP)
	headers := security.NewHeadersMiddleware(security.DefaultHeadersConfig())
	s.Server.Handler = traced.Middleware(headers.Middleware(mux))

	return s
}

// Shutdown stops the listener and the rate limiter's cleanup goroutine.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		if s.limiter != nil {
			s.limiter.Stop()
		}
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}

func onRateLimited(w http.ResponseWriter, r *http.Request) {
	NewResponse().
		Status(http.StatusTooManyRequests).
		Header("Retry-After", "60").
		Error("too many requests").
		Write(w)
}

type contextKey string

const userIDKey contextKey = "user_id"

// requireAuth verifies the Authorization bearer token and stores the
// authenticated user id in the request context. Handlers behind it never
// run without a verified identity.
func (s *Server) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		scheme, token, found := strings.Cut(header, " ")
		if !found || !strings.EqualFold(scheme, "Bearer") || token == "" {
			UnauthorizedError("missing bearer token").Write(w)
			return
		}

		userID, _, err := s.tokens.Verify(strings.TrimSpace(token))
		if err != nil {
			FromError(err).Write(w)
			return
		}

		ctx := context.WithValue(r.Context(), userIDKey, userID)
		next(w, r.WithContext(ctx))
	}
}

// userFromContext returns the authenticated user id set by requireAuth.
func userFromContext(ctx context.Context) int64 {
	id, _ := ctx.Value(userIDKey).(int64)
	return id
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	NewResponse().JSON(map[string]string{"status": "ok"}).Write(w)
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if s.store != nil {
		if err := s.store.Ping(ctx); err != nil {
			NewResponse().
				Status(http.StatusServiceUnavailable).
				Error("database unavailable").
				Write(w)
			return
		}
	}
	NewResponse().JSON(map[string]string{"status": "ready"}).Write(w)
}
