// Package api serves the live estimator state, trajectory exports and
// debug captures over HTTP.
package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/banshee-data/navfusion/internal/db"
	"github.com/banshee-data/navfusion/internal/monitoring"
	"github.com/banshee-data/navfusion/internal/session"
)

// RunStore is the read side of the trajectory store.
type RunStore interface {
	ListRuns() ([]db.RunSummary, error)
	RunPoints(runID string) ([]session.Point, error)
}

// AdminRouter is implemented by stores that can mount debug consoles.
type AdminRouter interface {
	AttachAdminRoutes(mux *http.ServeMux) error
}

// Server exposes a session over HTTP. store may be nil, in which case
// only the live session is served.
type Server struct {
	session *session.Session
	store   RunStore
}

// NewServer returns a server for s.
func NewServer(s *session.Session, store RunStore) *Server {
	return &Server{session: s, store: store}
}

// ServeMux returns the API routes.
func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/state", s.handleState)
	mux.HandleFunc("/api/step", s.handleStep)
	mux.HandleFunc("/api/reset", s.handleReset)
	mux.HandleFunc("/api/trajectory.csv", s.handleTrajectoryCSV)
	mux.HandleFunc("/api/trajectory/chart", s.handleTrajectoryChart)
	mux.HandleFunc("/api/debug/steps", s.handleDebugSteps)
	mux.HandleFunc("/api/runs", s.handleRuns)
	mux.HandleFunc("/api/version", s.handleVersion)

	if admin, ok := s.store.(AdminRouter); ok {
		if err := admin.AttachAdminRoutes(mux); err != nil {
			monitoring.Logf("admin routes disabled: %v", err)
		}
	}
	return mux
}

// Handler returns the routes wrapped in request logging.
func (s *Server) Handler() http.Handler {
	return LoggingMiddleware(s.ServeMux())
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		monitoring.Logf("monitor API listening on %s", addr)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errc; err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}
