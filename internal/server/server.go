// Package server exposes the read path over HTTP.
//
//	GET /healthz
//	GET /tables[?schema=gis]
//	GET /tables/{table}
//	GET /tables/{table}/rows?fields=a,b&geom=false&srid=3857&limit=100
//
// Requests share one database handle, so they are served one at a time.
package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/koustreak/geori/internal/config"
	"github.com/koustreak/geori/internal/errs"
	"github.com/koustreak/geori/internal/logger"
	"github.com/koustreak/geori/internal/postgis"
	"golang.org/x/sync/errgroup"
)

// Server is the HTTP API over a postgis.Database.
type Server struct {
	mu      sync.Mutex
	db      *postgis.Database
	log     *logger.Logger
	addr    string
	maxRows int
}

// New creates a server. A nil log uses the global logger.
func New(db *postgis.Database, cfg config.ServerConfig, log *logger.Logger) *Server {
	if log == nil {
		log = logger.Global()
	}
	if cfg.MaxRows <= 0 {
		cfg.MaxRows = config.DefaultRowLimit
	}
	return &Server{db: db, log: log, addr: cfg.Addr, maxRows: cfg.MaxRows}
}

// Routes returns the router with all endpoints registered.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.RequestID,
		s.requestLogger,
		middleware.Recoverer,
	)

	r.Get("/healthz", s.health)
	r.Route("/tables", func(r chi.Router) {
		r.Get("/", s.listTables)
		r.Get("/{table}", s.describeTable)
		r.Get("/{table}/rows", s.tableRows)
	})
	return r
}

// Serve listens on the configured address until ctx is cancelled.
func (s *Server) Serve(ctx context.Context) error {
	eg, egctx := errgroup.WithContext(ctx)

	srv := &http.Server{
		Addr:    s.addr,
		Handler: s.Routes(),
		BaseContext: func(_ net.Listener) context.Context {
			return egctx
		},
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.log.With().Str("addr", s.addr).Logger().Info("starting http server")

	eg.Go(func() error {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return errs.Wrap(errs.ErrKindConnectionFailed, "http server failed", err)
		}
		return nil
	})

	eg.Go(func() error {
		<-egctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		s.log.Debug("shutting down http server")
		return srv.Shutdown(shutdownCtx)
	})

	return eg.Wait()
}

// requestLogger attaches a request-scoped logger to the context and logs
// each request once it completes.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		reqLog := s.log.With().
			Str("request_id", middleware.GetReqID(r.Context())).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Logger()

		next.ServeHTTP(ww, r.WithContext(reqLog.WithContext(r.Context())))

		reqLog.InfoWith("request", map[string]interface{}{
			"status":      ww.Status(),
			"duration_ms": time.Since(start).Milliseconds(),
		})
	})
}
