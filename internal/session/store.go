// Package session keeps the mounted listing pipelines of live browser
// sessions. It is the only place pipelines outlive a single request.
package session

import (
	"container/list"
	"context"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/utafrali/storefront/internal/listing"
	apperrors "github.com/utafrali/storefront/pkg/errors"
)

var (
	liveSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "storefront_listing_sessions",
		Help: "Mounted listing sessions",
	})

	evictedSessions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storefront_listing_sessions_evicted_total",
			Help: "Listing sessions closed without an explicit unmount",
		},
		[]string{"reason"},
	)
)

// Factory builds an unmounted pipeline for a profile.
type Factory func(profile listing.Profile) *listing.Pipeline

type entry struct {
	id       uuid.UUID
	pipeline *listing.Pipeline
	lastSeen time.Time
	elem     *list.Element
}

// Store owns mounted pipelines keyed by session id. Sessions idle longer
// than the TTL are closed by Run; when MaxSessions is reached the least
// recently used session is closed to make room.
type Store struct {
	factory Factory
	ttl     time.Duration
	max     int
	logger  *slog.Logger

	mu       sync.Mutex
	sessions map[uuid.UUID]*entry
	lru      *list.List
	closed   bool
	nowFunc  func() time.Time
}

// NewStore returns an empty store. maxSessions <= 0 means unbounded.
func NewStore(factory Factory, ttl time.Duration, maxSessions int, logger *slog.Logger) *Store {
	return &Store{
		factory:  factory,
		ttl:      ttl,
		max:      maxSessions,
		logger:   logger,
		sessions: make(map[uuid.UUID]*entry),
		lru:      list.New(),
		nowFunc:  time.Now,
	}
}

// Mount creates a pipeline for profile, mounts it with q and stores it
// under a new session id. A pipeline whose mount fails is closed and not
// stored.
func (s *Store) Mount(ctx context.Context, profile listing.Profile, q url.Values) (uuid.UUID, listing.View, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return uuid.Nil, listing.View{}, apperrors.Unavailable("listing sessions are shutting down")
	}
	s.mu.Unlock()

	p := s.factory(profile)
	view, err := p.Mount(ctx, q)
	if err != nil {
		p.Close()
		return uuid.Nil, listing.View{}, err
	}

	id := uuid.New()

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		p.Close()
		return uuid.Nil, listing.View{}, apperrors.Unavailable("listing sessions are shutting down")
	}
	var victim *listing.Pipeline
	if s.max > 0 && len(s.sessions) >= s.max {
		if oldest := s.lru.Back(); oldest != nil {
			e := oldest.Value.(*entry)
			s.removeLocked(e)
			victim = e.pipeline
			evictedSessions.WithLabelValues("capacity").Inc()
		}
	}
	e := &entry{id: id, pipeline: p, lastSeen: s.nowFunc()}
	e.elem = s.lru.PushFront(e)
	s.sessions[id] = e
	liveSessions.Inc()
	s.mu.Unlock()

	if victim != nil {
		victim.Close()
	}

	s.logger.DebugContext(ctx, "listing session mounted",
		slog.String("session_id", id.String()),
		slog.String("profile", profile.Name),
	)
	return id, view, nil
}

// Get returns the pipeline of session id and marks it as used.
func (s *Store) Get(id uuid.UUID) (*listing.Pipeline, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.sessions[id]
	if !ok {
		return nil, apperrors.NotFound("listing session", id.String())
	}
	e.lastSeen = s.nowFunc()
	s.lru.MoveToFront(e.elem)
	return e.pipeline, nil
}

// Unmount closes and forgets session id.
func (s *Store) Unmount(id uuid.UUID) error {
	s.mu.Lock()
	e, ok := s.sessions[id]
	if !ok {
		s.mu.Unlock()
		return apperrors.NotFound("listing session", id.String())
	}
	s.removeLocked(e)
	s.mu.Unlock()

	e.pipeline.Close()
	return nil
}

// Len returns the number of mounted sessions.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// Run closes idle sessions every TTL until ctx is canceled.
func (s *Store) Run(ctx context.Context) {
	if s.ttl <= 0 {
		return
	}
	ticker := time.NewTicker(s.ttl)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := s.sweep(); n > 0 {
				s.logger.Info("evicted idle listing sessions", slog.Int("count", n))
			}
		}
	}
}

// sweep closes every session not used within the TTL.
func (s *Store) sweep() int {
	now := s.nowFunc()

	s.mu.Lock()
	var idle []*listing.Pipeline
	for el := s.lru.Back(); el != nil; {
		e := el.Value.(*entry)
		if now.Sub(e.lastSeen) <= s.ttl {
			break
		}
		prev := el.Prev()
		s.removeLocked(e)
		idle = append(idle, e.pipeline)
		el = prev
	}
	s.mu.Unlock()

	for _, p := range idle {
		p.Close()
	}
	evictedSessions.WithLabelValues("idle").Add(float64(len(idle)))
	return len(idle)
}

// Close unmounts every session and rejects new mounts.
func (s *Store) Close() {
	s.mu.Lock()
	s.closed = true
	all := make([]*listing.Pipeline, 0, len(s.sessions))
	for _, e := range s.sessions {
		all = append(all, e.pipeline)
		s.removeLocked(e)
	}
	s.mu.Unlock()

	for _, p := range all {
		p.Close()
	}
}

func (s *Store) removeLocked(e *entry) {
	delete(s.sessions, e.id)
	s.lru.Remove(e.elem)
	liveSessions.Dec()
}
