// Package mirrorhttp serves a read-only JSON view of the local mirror. It
// never talks to the device.
package mirrorhttp

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/koltyakov/fbxos/internal/domain"
	"github.com/koltyakov/fbxos/internal/entity"
)

const (
	readHeaderTimeout = 5 * time.Second
	shutdownTimeout   = 5 * time.Second
)

// Reader is the part of the mirror store used by the server.
type Reader interface {
	LoadCollection(ctx context.Context, kind *entity.Kind) (*entity.Collection, error)
	SelectByID(ctx context.Context, kind *entity.Kind, id string) (*entity.Entity, error)
	Count(ctx context.Context, kind *entity.Kind) (int, error)
}

// Server is the mirror HTTP view.
type Server struct {
	store    Reader
	log      *slog.Logger
	profiler bool
}

// New returns a Server reading from store.
func New(store Reader, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{store: store, log: logger}
}

// WithProfiler mounts the pprof handlers under /debug.
func (s *Server) WithProfiler() *Server {
	s.profiler = true
	return s
}

type errorBody struct {
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type kindInfo struct {
	Name    string   `json:"name"`
	URI     string   `json:"uri,omitempty"`
	Columns []string `json:"columns"`
	Rows    int      `json:"rows"`
}

// Handler returns the routes:
//
//	GET /api/kinds
//	GET /api/{kind}[?column=value...]
//	GET /api/{kind}/{id}
//
// plus /debug/pprof/ when the profiler is enabled.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(s.logRequests)
	r.Use(middleware.Recoverer)

	r.Route("/api", func(r chi.Router) {
		r.Get("/kinds", s.handleKinds)
		r.Get("/{kind}", s.handleList)
		r.Get("/{kind}/{id}", s.handleGet)
	})
	if s.profiler {
		r.Mount("/debug", middleware.Profiler())
	}
	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "not_found", "no such route")
	})
	return r
}

// ListenAndServe serves on addr until ctx is done.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is done, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: readHeaderTimeout,
	}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()
	s.log.Info("mirror view listening", "addr", ln.Addr().String())

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return nil
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.log.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

func (s *Server) handleKinds(w http.ResponseWriter, r *http.Request) {
	kinds := entity.Kinds()
	out := make([]kindInfo, 0, len(kinds))
	for _, k := range kinds {
		n, err := s.store.Count(r.Context(), k)
		if err != nil {
			s.log.Error("count failed", "kind", k.Name, "err", err)
			writeError(w, http.StatusInternalServerError, "internal_error", "failed to read mirror")
			return
		}
		cols := make([]string, 0, len(k.Columns))
		for _, c := range k.Columns {
			cols = append(cols, c.Name)
		}
		out = append(out, kindInfo{Name: k.Name, URI: k.URI, Columns: cols, Rows: n})
	}
	writeJSON(w, http.StatusOK, map[string]any{"kinds": out, "count": len(out)})
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	kind, ok := s.kind(w, r)
	if !ok {
		return
	}
	col, err := s.store.LoadCollection(r.Context(), kind)
	if err != nil {
		s.log.Error("load failed", "kind", kind.Name, "err", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to read mirror")
		return
	}
	items := col.All()
	for name, values := range r.URL.Query() {
		if _, known := kind.Column(name); !known {
			writeError(w, http.StatusBadRequest, "bad_request", "unknown column "+name)
			return
		}
		col = entity.NewCollection(kind, items...)
		items = col.ByAttr(name, values[0])
	}
	if items == nil {
		items = []*entity.Entity{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"kind": kind.Name, "items": items, "count": len(items)})
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	kind, ok := s.kind(w, r)
	if !ok {
		return
	}
	id := chi.URLParam(r, "id")
	e, err := s.store.SelectByID(r.Context(), kind, id)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", kind.Name+" "+id+" not found")
		return
	case err != nil:
		if _, perr := kind.ParseID(id); perr != nil {
			writeError(w, http.StatusBadRequest, "bad_request", perr.Error())
			return
		}
		s.log.Error("select failed", "kind", kind.Name, "id", id, "err", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to read mirror")
		return
	}
	writeJSON(w, http.StatusOK, e)
}

func (s *Server) kind(w http.ResponseWriter, r *http.Request) (*entity.Kind, bool) {
	name := chi.URLParam(r, "kind")
	kind, ok := entity.Resolve(name)
	if !ok {
		writeError(w, http.StatusNotFound, "not_found", "unknown kind "+name)
		return nil, false
	}
	return kind, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorBody{Status: status, Code: code, Message: message})
}
