// Package session owns the filter selection shared by the terminal panel and
// the map viewport, and the payload last rendered from it.
package session

import (
	"log/slog"
	"sync"
	"time"

	"crashmap/internal/filter"
	"crashmap/internal/render"
	"crashmap/internal/types"
)

// Source is a loaded record store.
type Source interface {
	filter.Source
	Domains() filter.Domains
}

// Result summarises one Apply.
type Result struct {
	Generation uint64      `json:"generation"`
	Records    int         `json:"records"`
	Tier       render.Tier `json:"tier"`
}

// Session serialises every selection change and re-render behind one mutex.
type Session struct {
	src     Source
	builder render.Builder
	logger  *slog.Logger

	mu         sync.Mutex
	selection  filter.Selection
	applied    filter.Selection
	filtered   []types.CrashRecord
	payload    render.Payload
	generation uint64
}

// New starts with every value active and renders once, so generation 1 is
// the unfiltered map.
func New(src Source, builder render.Builder, logger *slog.Logger) (*Session, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	s := &Session{
		src:       src,
		builder:   builder,
		logger:    logger,
		selection: filter.Initial(src.Domains()),
	}
	if _, err := s.Apply(); err != nil {
		return nil, err
	}
	return s, nil
}

// Toggle flips one value in the pending selection. Nothing is re-rendered
// until Apply. On error the selection is unchanged.
func (s *Session) Toggle(attr types.Attribute, value string) (filter.Selection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next, err := s.selection.Toggle(attr, value)
	if err != nil {
		return s.selection, err
	}
	s.selection = next
	return next, nil
}

// Selection returns the pending selection.
func (s *Session) Selection() filter.Selection {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.selection
}

// Pending reports whether the selection changed since the last Apply.
func (s *Session) Pending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.selection.Equal(s.applied)
}

// Domains returns the store's filter domains.
func (s *Session) Domains() filter.Domains {
	return s.src.Domains()
}

// Apply filters the store with the pending selection, rebuilds the payload
// and bumps the generation.
func (s *Session) Apply() (Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	start := time.Now()
	recs, err := filter.Records(s.src, s.selection)
	if err != nil {
		return Result{}, err
	}
	s.filtered = recs
	s.payload = s.builder.Build(recs)
	s.applied = s.selection
	s.generation++

	res := Result{Generation: s.generation, Records: len(recs), Tier: s.payload.Tier}
	s.logger.Info("filter applied",
		"generation", res.Generation,
		"records", res.Records,
		"tier", res.Tier.String(),
		"took", time.Since(start).Truncate(time.Microsecond))
	return res, nil
}

// Current returns the last rendered payload and its generation.
func (s *Session) Current() (render.Payload, uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.payload, s.generation
}

// Generation returns the generation of the last Apply.
func (s *Session) Generation() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.generation
}

// Filtered returns the records behind the current payload. The slice must
// not be modified.
func (s *Session) Filtered() []types.CrashRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.filtered
}
