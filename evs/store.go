package evs

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	logger "github.com/Financial-Times/go-logger"
	metrics "github.com/rcrowley/go-metrics"
	"golang.org/x/sync/semaphore"
	"golang.org/x/sync/singleflight"
)

// Lookaside is a persistent cache of raw concept payloads consulted before the
// remote service.
type Lookaside interface {
	Get(ctx context.Context, code string) ([]byte, bool, error)
	Put(ctx context.Context, code string, data []byte) error
}

type StoreOptions struct {
	// MaxConcurrentFetches caps simultaneous remote reads. 0 means no limit.
	MaxConcurrentFetches int64
	Lookaside            Lookaside
	Registry             metrics.Registry
}

type StoreStats struct {
	RemoteReads   int64
	CacheHits     int64
	LookasideHits int64
	NotFound      int64
	Errors        int64
}

// Store resolves concept codes, reading each code from the remote service at most
// once. Successes and failures are both remembered for the life of the Store, and
// concurrent callers asking for the same code share a single read.
type Store struct {
	client    Client
	lookaside Lookaside
	sem       *semaphore.Weighted

	mu       sync.Mutex
	concepts map[string]*Concept
	failures map[string]error
	waiting  map[string]*flight
	flights  singleflight.Group

	cacheHits     metrics.Counter
	lookasideHits metrics.Counter
	notFound      metrics.Counter
	errors        metrics.Counter
	remote        metrics.Timer
}

func NewStore(client Client, opts StoreOptions) *Store {
	registry := opts.Registry
	if registry == nil {
		registry = metrics.NewRegistry()
	}
	s := &Store{
		client:        client,
		lookaside:     opts.Lookaside,
		concepts:      map[string]*Concept{},
		failures:      map[string]error{},
		waiting:       map[string]*flight{},
		cacheHits:     metrics.GetOrRegisterCounter("evs.cache.hits", registry),
		lookasideHits: metrics.GetOrRegisterCounter("evs.lookaside.hits", registry),
		notFound:      metrics.GetOrRegisterCounter("evs.fetch.notfound", registry),
		errors:        metrics.GetOrRegisterCounter("evs.fetch.errors", registry),
		remote:        metrics.GetOrRegisterTimer("evs.fetch.remote", registry),
	}
	if opts.MaxConcurrentFetches > 0 {
		s.sem = semaphore.NewWeighted(opts.MaxConcurrentFetches)
	}
	return s
}

// flight carries the context of one remote read. It is cancelled only once every
// caller waiting on the read has given up.
type flight struct {
	ctx     context.Context
	cancel  context.CancelFunc
	waiters int
}

// Fetch returns the concept for code. A code that failed before fails again with
// the same error without touching the network.
func (s *Store) Fetch(ctx context.Context, code string) (*Concept, error) {
	for {
		if c, ok, err := s.cached(code); ok {
			s.cacheHits.Inc(1)
			return c, err
		}

		f := s.join(code)
		ch := s.flights.DoChan(code, func() (interface{}, error) {
			return s.resolve(f.ctx, code)
		})

		select {
		case res := <-ch:
			s.leave(code, f)
			// a flight abandoned by all of its earlier callers; start a new one
			if res.Err == context.Canceled && ctx.Err() == nil {
				continue
			}
			c, _ := res.Val.(*Concept)
			return c, res.Err
		case <-ctx.Done():
			s.leave(code, f)
			return nil, ctx.Err()
		}
	}
}

func (s *Store) join(code string) *flight {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.waiting[code]
	if !ok {
		ctx, cancel := context.WithCancel(context.Background())
		f = &flight{ctx: ctx, cancel: cancel}
		s.waiting[code] = f
	}
	f.waiters++
	return f
}

func (s *Store) leave(code string, f *flight) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f.waiters--
	if f.waiters > 0 {
		return
	}
	f.cancel()
	if s.waiting[code] == f {
		delete(s.waiting, code)
	}
}

func (s *Store) cached(code string) (*Concept, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.concepts[code]; ok {
		return c, true, nil
	}
	if err, ok := s.failures[code]; ok {
		return nil, true, err
	}
	return nil, false, nil
}

// resolve runs inside a flight, so only one goroutine per code is ever here.
func (s *Store) resolve(ctx context.Context, code string) (*Concept, error) {
	// an earlier flight may have finished between the caller's cache check and
	// this flight starting
	if c, ok, err := s.cached(code); ok {
		return c, err
	}

	c, err := s.load(ctx, code)

	if err != nil && ctx.Err() != nil {
		return nil, ctx.Err()
	}

	s.mu.Lock()
	if err != nil {
		s.failures[code] = err
	} else {
		s.concepts[code] = c
	}
	s.mu.Unlock()

	if err != nil {
		if IsNotFound(err) {
			s.notFound.Inc(1)
		} else {
			s.errors.Inc(1)
		}
	}
	return c, err
}

func (s *Store) load(ctx context.Context, code string) (*Concept, error) {
	if c := s.fromLookaside(ctx, code); c != nil {
		s.lookasideHits.Inc(1)
		return c, nil
	}

	if s.sem != nil {
		if err := s.sem.Acquire(ctx, 1); err != nil {
			return nil, err
		}
		defer s.sem.Release(1)
	}

	start := time.Now()
	c, err := s.client.GetConcept(ctx, code)
	s.remote.UpdateSince(start)
	if err != nil {
		return nil, err
	}

	s.toLookaside(ctx, c)
	return c, nil
}

func (s *Store) fromLookaside(ctx context.Context, code string) *Concept {
	if s.lookaside == nil {
		return nil
	}
	data, found, err := s.lookaside.Get(ctx, code)
	if err != nil {
		logger.WithError(err).WithField("code", code).Warn("Could not read concept from lookaside cache")
		return nil
	}
	if !found {
		return nil
	}
	c := &Concept{}
	if err := json.Unmarshal(data, c); err != nil {
		logger.WithError(err).WithField("code", code).Warn("Ignoring corrupt lookaside cache entry")
		return nil
	}
	if c.Code != code {
		logger.WithField("code", code).WithField("cachedCode", c.Code).Warn("Ignoring lookaside cache entry for another concept")
		return nil
	}
	return c
}

func (s *Store) toLookaside(ctx context.Context, c *Concept) {
	if s.lookaside == nil {
		return
	}
	data, err := json.Marshal(c)
	if err != nil {
		logger.WithError(err).WithField("code", c.Code).Warn("Could not encode concept for lookaside cache")
		return
	}
	if err := s.lookaside.Put(ctx, c.Code, data); err != nil {
		logger.WithError(err).WithField("code", c.Code).Warn("Could not write concept to lookaside cache")
	}
}

func (s *Store) Stats() StoreStats {
	return StoreStats{
		RemoteReads:   s.remote.Count(),
		CacheHits:     s.cacheHits.Count(),
		LookasideHits: s.lookasideHits.Count(),
		NotFound:      s.notFound.Count(),
		Errors:        s.errors.Count(),
	}
}
