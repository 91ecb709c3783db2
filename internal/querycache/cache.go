// Package querycache is a key-addressed cache of query results with stale
// times, in-flight de-duplication, prefix invalidation and a JSON snapshot
// format for carrying prefetched data into a rendered page.
package querycache

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

const (
	DefaultStaleTime = 60 * time.Second
	DefaultGCTime    = 5 * time.Minute
)

type Options struct {
	StaleTime  time.Duration
	GCTime     time.Duration
	Registerer prometheus.Registerer
	// Now is overridden in tests.
	Now func() time.Time
}

type entry struct {
	key       Key
	data      any
	updatedAt time.Time
	usedAt    time.Time
	stale     bool
}

// flight is one running fn call. An invalidation that covers its key while
// it runs turns its result away.
type flight struct {
	key         Key
	invalidated bool
}

type Cache struct {
	mu       sync.Mutex
	entries  map[string]*entry
	inflight map[string]*flight
	group    singleflight.Group

	staleTime time.Duration
	gcTime    time.Duration
	now       func() time.Time

	metrics *metrics
	log     zerolog.Logger
}

func New(opts Options, log zerolog.Logger) (*Cache, error) {
	if opts.StaleTime <= 0 {
		opts.StaleTime = DefaultStaleTime
	}
	if opts.GCTime <= 0 {
		opts.GCTime = DefaultGCTime
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	m, err := newMetrics(opts.Registerer)
	if err != nil {
		return nil, fmt.Errorf("register cache metrics: %w", err)
	}
	return &Cache{
		entries:   make(map[string]*entry),
		inflight:  make(map[string]*flight),
		staleTime: opts.StaleTime,
		gcTime:    opts.GCTime,
		now:       opts.Now,
		metrics:   m,
		log:       log.With().Str("component", "querycache").Logger(),
	}, nil
}

// Fetch returns the cached result for key while it is fresh, otherwise it
// runs fn. Concurrent fetches of one key share a single fn call. Errors are
// returned to every waiter and never cached. A result whose key was
// invalidated while fn ran is returned to its waiters but not stored.
func Fetch[T any](ctx context.Context, c *Cache, key Key, fn func(context.Context) (T, error)) (T, error) {
	if v, ok, _ := lookup[T](c, key, true); ok {
		c.metrics.hits.Inc()
		return v, nil
	}

	k := key.String()
	res, err, shared := c.group.Do(k, func() (any, error) {
		c.metrics.misses.Inc()
		f := c.begin(k, key)
		v, err := fn(ctx)
		if err != nil {
			c.finish(k, f, nil)
			return nil, err
		}
		c.finish(k, f, v)
		return v, nil
	})
	if shared {
		c.metrics.shared.Inc()
	}
	if err != nil {
		var zero T
		return zero, err
	}
	v, ok := res.(T)
	if !ok {
		var zero T
		return zero, fmt.Errorf("querycache: %s holds %T", k, res)
	}
	return v, nil
}

// Prefetch warms key. Failures are logged and left for the page to render.
func Prefetch[T any](ctx context.Context, c *Cache, key Key, fn func(context.Context) (T, error)) {
	if _, err := Fetch(ctx, c, key, fn); err != nil {
		c.log.Warn().Err(err).Str("key", key.String()).Msg("prefetch failed")
	}
}

// Previous returns the most recently updated data under prefix. Pages use it
// as placeholder data while a refetch for a new key fails.
func Previous[T any](c *Cache, prefix Key) (T, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var best *entry
	for _, e := range c.entries {
		if !e.key.HasPrefix(prefix) {
			continue
		}
		if best == nil || e.updatedAt.After(best.updatedAt) {
			best = e
		}
	}
	var zero T
	if best == nil {
		return zero, false
	}
	v, err := decode[T](best)
	if err != nil {
		return zero, false
	}
	return v, true
}

// Invalidate marks every entry under prefix stale and returns how many were
// hit. Fetches running under prefix are detached: their results are not
// stored and later fetches of the same key start a new call.
func (c *Cache) Invalidate(prefix Key) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	for k, f := range c.inflight {
		if f.key.HasPrefix(prefix) {
			f.invalidated = true
			delete(c.inflight, k)
			c.group.Forget(k)
		}
	}

	n := 0
	for _, e := range c.entries {
		if e.key.HasPrefix(prefix) && !e.stale {
			e.stale = true
			n++
		}
	}
	c.metrics.invalidations.Add(float64(n))
	return n
}

// Sweep evicts entries that have not been read or written for gcTime.
func (c *Cache) Sweep() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	cutoff := c.now().Add(-c.gcTime)
	n := 0
	for k, e := range c.entries {
		if e.usedAt.Before(cutoff) {
			delete(c.entries, k)
			n++
		}
	}
	c.metrics.evictions.Add(float64(n))
	return n
}

// RunGC sweeps every interval until ctx is done.
func (c *Cache) RunGC(ctx context.Context, interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if n := c.Sweep(); n > 0 {
				c.log.Debug().Int("evicted", n).Msg("cache sweep")
			}
		}
	}
}

// Len reports the number of entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *Cache) begin(k string, key Key) *flight {
	c.mu.Lock()
	defer c.mu.Unlock()
	f := &flight{key: append(Key(nil), key...)}
	c.inflight[k] = f
	return f
}

// finish stores v unless the flight was invalidated. A nil v only ends the flight.
func (c *Cache) finish(k string, f *flight, v any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.inflight[k] == f {
		delete(c.inflight, k)
	}
	if v == nil || f.invalidated {
		return
	}
	now := c.now()
	c.entries[k] = &entry{key: f.key, data: v, updatedAt: now, usedAt: now}
}

func lookup[T any](c *Cache, key Key, freshOnly bool) (T, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero T
	e, ok := c.entries[key.String()]
	if !ok {
		return zero, false, nil
	}
	now := c.now()
	if freshOnly && (e.stale || now.Sub(e.updatedAt) >= c.staleTime) {
		return zero, false, nil
	}
	v, err := decode[T](e)
	if err != nil {
		return zero, false, err
	}
	e.usedAt = now
	return v, true, nil
}

// decode turns hydrated raw JSON into a T on first typed access.
func decode[T any](e *entry) (T, error) {
	var zero T
	switch d := e.data.(type) {
	case T:
		return d, nil
	case json.RawMessage:
		var v T
		if err := json.Unmarshal(d, &v); err != nil {
			return zero, fmt.Errorf("querycache: decode %s: %w", e.key, err)
		}
		e.data = v
		return v, nil
	default:
		return zero, fmt.Errorf("querycache: %s holds %T, want %T", e.key, e.data, zero)
	}
}

// DehydratedQuery is one successful entry in a snapshot.
type DehydratedQuery struct {
	Key       Key             `json:"queryKey"`
	Data      json.RawMessage `json:"data"`
	UpdatedAt time.Time       `json:"dataUpdatedAt"`
}

// State is the serializable snapshot produced by Dehydrate.
type State struct {
	Queries []DehydratedQuery `json:"queries"`
}

// Dehydrate snapshots the given keys, or every entry when none are given.
// Missing keys are skipped.
func (c *Cache) Dehydrate(keys ...Key) (State, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var picked []*entry
	if len(keys) == 0 {
		for _, e := range c.entries {
			picked = append(picked, e)
		}
	} else {
		for _, k := range keys {
			if e, ok := c.entries[k.String()]; ok {
				picked = append(picked, e)
			}
		}
	}
	sort.Slice(picked, func(i, j int) bool { return picked[i].key.String() < picked[j].key.String() })

	st := State{Queries: make([]DehydratedQuery, 0, len(picked))}
	for _, e := range picked {
		b, err := json.Marshal(e.data)
		if err != nil {
			return State{}, fmt.Errorf("querycache: encode %s: %w", e.key, err)
		}
		st.Queries = append(st.Queries, DehydratedQuery{Key: e.key, Data: b, UpdatedAt: e.updatedAt})
	}
	return st, nil
}

// Hydrate loads a snapshot. Entries already cached with newer data win.
func (c *Cache) Hydrate(st State) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	for _, q := range st.Queries {
		k := q.Key.String()
		if cur, ok := c.entries[k]; ok && !cur.updatedAt.Before(q.UpdatedAt) {
			continue
		}
		c.entries[k] = &entry{
			key:       append(Key(nil), q.Key...),
			data:      append(json.RawMessage(nil), q.Data...),
			updatedAt: q.UpdatedAt,
			usedAt:    now,
		}
	}
}
