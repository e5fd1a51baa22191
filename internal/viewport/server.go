// Package viewport serves the filtered crash map to a local browser and
// accepts filter changes from it.
package viewport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"crashmap/internal/filter"
	"crashmap/internal/render"
	"crashmap/internal/session"
	"crashmap/internal/types"
)

// Server is the map viewport.
type Server struct {
	session *session.Session
	view    render.View
	logger  *slog.Logger
	router  chi.Router
}

// New builds the router for s.
func New(s *session.Session, view render.View, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	srv := &Server{session: s, view: view, logger: logger, router: chi.NewRouter()}
	srv.mountRoutes()
	return srv
}

func (s *Server) mountRoutes() {
	s.router.Use(middleware.Recoverer)
	s.router.Use(requestLogger(s.logger))

	s.router.Get("/", s.handleDocument)
	s.router.Get("/payload.json", s.handlePayload)
	s.router.Get("/payload.geojson", s.handleGeoJSON)
	s.router.Get("/generation", s.handleGeneration)
	s.router.Route("/filters", func(r chi.Router) {
		r.Get("/", s.handleFilters)
		r.Post("/toggle", s.handleToggle)
	})
	s.router.Post("/filter", s.handleApply)
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Serve listens on addr until ctx ends, then shuts down gracefully. ready,
// when non-nil, receives the bound address once the listener is open.
func (s *Server) Serve(ctx context.Context, addr string, ready func(net.Addr)) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}

	httpServer := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		s.logger.Info("viewport listening", "addr", ln.Addr().String())
		if err := httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()
	if ready != nil {
		ready(ln.Addr())
	}

	select {
	case <-ctx.Done():
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("viewport: %w", err)
		}
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("viewport shutdown: %w", err)
	}
	s.logger.Info("viewport stopped")
	return nil
}

func (s *Server) handleDocument(w http.ResponseWriter, r *http.Request) {
	payload, gen := s.session.Current()
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	err := render.Document(w, payload, render.DocumentOptions{
		View:       s.view,
		Generation: gen,
		PollURL:    "/generation",
		FiltersURL: "/filters",
		ApplyURL:   "/filter",
	})
	if err != nil {
		s.logger.Error("render document", "error", err)
	}
}

func (s *Server) handlePayload(w http.ResponseWriter, r *http.Request) {
	payload, gen := s.session.Current()
	w.Header().Set("X-Generation", fmt.Sprint(gen))
	writeJSON(w, http.StatusOK, payload)
}

func (s *Server) handleGeoJSON(w http.ResponseWriter, r *http.Request) {
	payload, gen := s.session.Current()
	fc := render.GeoJSON(payload)
	if r.URL.Query().Get("buckets") == "1" {
		fc = render.BucketsGeoJSON(payload)
	}
	raw, err := fc.MarshalJSON()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.Header().Set("Content-Type", "application/geo+json")
	w.Header().Set("X-Generation", fmt.Sprint(gen))
	w.Write(raw)
}

func (s *Server) handleGeneration(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]uint64{"generation": s.session.Generation()})
}

// filterGroup is one attribute's checkbox group.
type filterGroup struct {
	Attribute types.Attribute `json:"attribute"`
	Title     string          `json:"title"`
	Values    []filterValue   `json:"values"`
}

type filterValue struct {
	Value  string `json:"value"`
	Active bool   `json:"active"`
}

type filtersResponse struct {
	Groups  []filterGroup `json:"groups"`
	Pending bool          `json:"pending"`
}

func (s *Server) filters() filtersResponse {
	sel := s.session.Selection()
	return filtersResponse{Groups: groups(sel), Pending: s.session.Pending()}
}

func groups(sel filter.Selection) []filterGroup {
	d := sel.Domains()
	out := make([]filterGroup, 0, len(d.Attributes()))
	for _, attr := range d.Attributes() {
		g := filterGroup{Attribute: attr, Title: attr.Title()}
		for _, v := range d.Values(attr) {
			g.Values = append(g.Values, filterValue{Value: v, Active: sel.IsActive(attr, v)})
		}
		out = append(out, g)
	}
	return out
}

func (s *Server) handleFilters(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.filters())
}

type toggleRequest struct {
	Attribute types.Attribute `json:"attribute"`
	Value     string          `json:"value"`
}

// handleToggle answers 409 when the page names a value or attribute the
// store does not know, which means the page predates the loaded data.
func (s *Server) handleToggle(w http.ResponseWriter, r *http.Request) {
	var req toggleRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return
	}
	if req.Attribute == "" {
		writeError(w, http.StatusBadRequest, "attribute is required")
		return
	}

	if _, err := s.session.Toggle(req.Attribute, req.Value); err != nil {
		if errors.Is(err, types.ErrInvalidFilterValue) || errors.Is(err, types.ErrSchemaMismatch) {
			s.logger.Warn("stale toggle rejected", "attribute", req.Attribute, "value", req.Value, "error", err)
			writeError(w, http.StatusConflict, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, s.filters())
}

func (s *Server) handleApply(w http.ResponseWriter, r *http.Request) {
	res, err := s.session.Apply()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func requestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			logger.Debug("request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"took", time.Since(start))
		})
	}
}
