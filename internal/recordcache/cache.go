// Package recordcache keeps recently fetched record list pages so the
// dashboard and exports do not hit the clinic API for every request. Pages
// expire after a short TTL and are dropped and refetched after an import
// creates records.
package recordcache

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rpattn/clinicleads/internal/auth"
	"github.com/rpattn/clinicleads/internal/domain"
	"github.com/rpattn/clinicleads/internal/logger"

	"github.com/graph-gophers/dataloader"
	gocache "github.com/patrickmn/go-cache"
)

const (
	defaultRefetchLimit = 4
	defaultTTL          = 30 * time.Second
	maxTrackedKeys      = 32
)

// Lister fetches a single page from the clinic API.
type Lister interface {
	ListRecords(ctx context.Context, pipeline domain.Pipeline, filter domain.RecordFilter) (domain.RecordPage, error)
}

// Cache wraps a dataloader keyed by credential scope, pipeline and filter.
type Cache struct {
	lister       Lister
	loader       *dataloader.Loader
	pages        *pageStore
	refetchLimit int
	ttl          time.Duration
	defaultToken string

	mu     sync.Mutex
	recent map[string][]string // scope|pipeline -> keys, most recent last
}

// Option customizes a Cache.
type Option func(*Cache)

// WithRefetchLimit bounds how many recently used pages are reloaded on invalidation.
func WithRefetchLimit(limit int) Option {
	return func(c *Cache) {
		if limit >= 0 {
			c.refetchLimit = limit
		}
	}
}

// WithTTL sets how long a page is served before it is fetched again. Zero
// or less disables caching.
func WithTTL(ttl time.Duration) Option {
	return func(c *Cache) {
		c.ttl = ttl
	}
}

// WithDefaultToken is the API token used when a request forwards none.
func WithDefaultToken(token string) Option {
	return func(c *Cache) {
		c.defaultToken = strings.TrimSpace(token)
	}
}

// New creates a cache in front of the lister.
func New(lister Lister, opts ...Option) *Cache {
	c := &Cache{
		lister:       lister,
		refetchLimit: defaultRefetchLimit,
		ttl:          defaultTTL,
		recent:       make(map[string][]string),
	}
	for _, opt := range opts {
		opt(c)
	}

	cleanup := 2 * c.ttl
	if cleanup < time.Minute {
		cleanup = time.Minute
	}
	c.pages = &pageStore{items: gocache.New(c.ttl, cleanup)}

	// Capacity 1 runs every load with the caller's own context, so the API
	// call carries the caller's token.
	c.loader = dataloader.NewBatchedLoader(c.batch,
		dataloader.WithBatchCapacity(1),
		dataloader.WithWait(time.Millisecond),
		dataloader.WithCache(c.pages),
	)
	return c
}

// Page returns a cached page, loading it on a miss. Callers without an API
// token, or a cache with no TTL, always go to the API.
func (c *Cache) Page(ctx context.Context, pipeline domain.Pipeline, filter domain.RecordFilter) (domain.RecordPage, error) {
	scope, ok := c.scope(ctx)
	if !ok || c.ttl <= 0 {
		return c.lister.ListRecords(ctx, pipeline, filter)
	}

	key := dataloader.StringKey(scope + "|" + string(pipeline) + "|" + filter.Key())
	c.track(scope+"|"+string(pipeline), key.String())

	value, err := c.loader.Load(ctx, key)()
	if err != nil {
		// Failed loads must not stick in the cache.
		c.loader.Clear(ctx, key)
		return domain.RecordPage{}, err
	}
	page, ok := value.(domain.RecordPage)
	if !ok {
		return domain.RecordPage{}, fmt.Errorf("unexpected cache value %T", value)
	}
	return page, nil
}

// Invalidate drops every cached page of the pipeline, whoever fetched it,
// then reloads the caller's most recently used ones.
func (c *Cache) Invalidate(ctx context.Context, pipeline domain.Pipeline) {
	dropped := c.pages.deleteWhere(func(key string) bool {
		parts := strings.SplitN(key, "|", 3)
		return len(parts) == 3 && parts[1] == string(pipeline)
	})

	scope, ok := c.scope(ctx)
	if !ok || c.ttl <= 0 {
		logger.Debug(ctx, "record list invalidated", "pipeline", pipeline, "pages", dropped)
		return
	}

	c.mu.Lock()
	keys := append([]string(nil), c.recent[scope+"|"+string(pipeline)]...)
	c.mu.Unlock()

	start := len(keys) - c.refetchLimit
	if start < 0 {
		start = 0
	}
	for _, key := range keys[start:] {
		if _, err := c.loader.Load(ctx, dataloader.StringKey(key))(); err != nil {
			c.loader.Clear(ctx, dataloader.StringKey(key))
			logger.Warn(ctx, "record list refetch failed", "pipeline", pipeline, "error", err)
		}
	}
	logger.Debug(ctx, "record list invalidated", "pipeline", pipeline, "pages", dropped)
}

func (c *Cache) scope(ctx context.Context) (string, bool) {
	token, ok := auth.APITokenFromContext(ctx)
	if !ok {
		token = c.defaultToken
	}
	return auth.ScopeKey(ctx, token)
}

func (c *Cache) track(group, key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	keys := c.recent[group]
	for idx, existing := range keys {
		if existing == key {
			keys = append(keys[:idx], keys[idx+1:]...)
			break
		}
	}
	keys = append(keys, key)
	if len(keys) > maxTrackedKeys {
		keys = keys[len(keys)-maxTrackedKeys:]
	}
	c.recent[group] = keys
}

func (c *Cache) batch(ctx context.Context, keys dataloader.Keys) []*dataloader.Result {
	results := make([]*dataloader.Result, len(keys))
	for i, key := range keys {
		pipeline, filter, err := decodeKey(key.String())
		if err != nil {
			results[i] = &dataloader.Result{Error: err}
			continue
		}
		page, err := c.lister.ListRecords(ctx, pipeline, filter)
		if err != nil {
			results[i] = &dataloader.Result{Error: err}
			continue
		}
		results[i] = &dataloader.Result{Data: page}
	}
	return results
}

// decodeKey reverses the "scope|pipeline|query" key layout.
func decodeKey(key string) (domain.Pipeline, domain.RecordFilter, error) {
	parts := strings.SplitN(key, "|", 3)
	if len(parts) != 3 {
		return "", domain.RecordFilter{}, fmt.Errorf("malformed cache key %q", key)
	}
	pipeline, err := domain.ParsePipeline(parts[1])
	if err != nil {
		return "", domain.RecordFilter{}, err
	}
	values, err := url.ParseQuery(parts[2])
	if err != nil {
		return "", domain.RecordFilter{}, fmt.Errorf("malformed cache key %q: %w", key, err)
	}
	return pipeline, domain.RecordFilterFromValues(values), nil
}

// pageStore adapts go-cache to dataloader.Cache so pages expire.
type pageStore struct {
	items *gocache.Cache
}

func (s *pageStore) Get(_ context.Context, key dataloader.Key) (dataloader.Thunk, bool) {
	v, ok := s.items.Get(key.String())
	if !ok {
		return nil, false
	}
	thunk, ok := v.(dataloader.Thunk)
	return thunk, ok
}

func (s *pageStore) Set(_ context.Context, key dataloader.Key, value dataloader.Thunk) {
	s.items.Set(key.String(), value, gocache.DefaultExpiration)
}

func (s *pageStore) Delete(_ context.Context, key dataloader.Key) bool {
	if _, found := s.items.Get(key.String()); found {
		s.items.Delete(key.String())
		return true
	}
	return false
}

func (s *pageStore) Clear() {
	s.items.Flush()
}

func (s *pageStore) deleteWhere(match func(key string) bool) int {
	dropped := 0
	for key := range s.items.Items() {
		if match(key) {
			s.items.Delete(key)
			dropped++
		}
	}
	return dropped
}
