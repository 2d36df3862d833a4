// Package httpapi exposes the session service and user administration over
// HTTP.
package httpapi

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/example/authcore/internal/credentials"
	"github.com/example/authcore/internal/mirror"
	"github.com/example/authcore/internal/session"
)

// Pinger reports whether a backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Deps struct {
	Sessions    *session.Service
	Credentials *credentials.Store
	Mirror      *mirror.Reconciler
	// Ready is checked by /ready; each must answer Ping.
	Ready   []Pinger
	Logger  *slog.Logger
	Limiter *RateLimiter
	Now     func() time.Time
}

type Server struct {
	sessions *session.Service
	creds    *credentials.Store
	mirror   *mirror.Reconciler
	ready    []Pinger
	log      *slog.Logger
	limiter  *RateLimiter
	now      func() time.Time
}

func NewServer(d Deps) *Server {
	s := &Server{
		sessions: d.Sessions,
		creds:    d.Credentials,
		mirror:   d.Mirror,
		ready:    d.Ready,
		log:      d.Logger,
		limiter:  d.Limiter,
		now:      d.Now,
	}
	if s.log == nil {
		s.log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if s.limiter == nil {
		s.limiter = NewRateLimiter(30)
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// Router builds the HTTP handler with all routes and middleware.
func (s *Server) Router() http.Handler {
	r := mux.NewRouter()

	r.Use(SecurityHeaders)
	r.Use(RequestID)
	r.Use(s.Logging)
	r.Use(s.Recover)

	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/ready", s.handleReady).Methods(http.MethodGet)

	v1 := r.PathPrefix("/api/v1").Subrouter()

	v1.Handle("/auth/logout-all", s.RequireAuth(http.HandlerFunc(s.handleLogoutAll))).Methods(http.MethodPost)
	v1.Handle("/auth/introspect", s.RequireAuth(http.HandlerFunc(s.handleIntrospect))).Methods(http.MethodPost)
	v1.Handle("/auth/me", s.RequireAuth(http.HandlerFunc(s.handleMe))).Methods(http.MethodGet)

	// Unauthenticated session endpoints share the per-client limiter.
	public := v1.PathPrefix("/auth").Subrouter()
	public.Use(s.limiter.Middleware)
	public.HandleFunc("/login", s.handleLogin).Methods(http.MethodPost)
	public.HandleFunc("/refresh", s.handleRefresh).Methods(http.MethodPost)
	public.HandleFunc("/logout", s.handleLogout).Methods(http.MethodPost)

	admin := v1.PathPrefix("/admin").Subrouter()
	admin.Use(s.RequireAuth)
	admin.Use(s.RequireAdmin)
	admin.HandleFunc("/users", s.handleListUsers).Methods(http.MethodGet)
	admin.HandleFunc("/users", s.handleCreateUser).Methods(http.MethodPost)
	admin.HandleFunc("/users/export", s.handleExportUsers).Methods(http.MethodGet)
	admin.HandleFunc("/users/import", s.handleImportUsers).Methods(http.MethodPost)
	admin.HandleFunc("/users/{id:[0-9]+}", s.handleUpdateUser).Methods(http.MethodPatch)

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	for _, p := range s.ready {
		if err := p.Ping(ctx); err != nil {
			s.log.WarnContext(ctx, "readiness check failed", "error", err)
			writeJSON(w, http.StatusServiceUnavailable, map[string]bool{"ready": false})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ready": true})
}
