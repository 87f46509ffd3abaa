package embedding

import (
	"container/list"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/cloudwego/eino/components/embedding"
	"github.com/redis/go-redis/v9"

	logx "github.com/salescode-agent/server/pkg/logger"
)

// Cache stores vectors by key. Implementations treat failures as misses.
type Cache interface {
	Get(ctx context.Context, key string) ([]float64, bool)
	Set(ctx context.Context, key string, vec []float64)
}

// CacheKey namespaces a text hash by model so switching models never serves stale vectors.
func CacheKey(model, text string) string {
	sum := sha256.Sum256([]byte(text))
	return "embedding:" + model + ":" + hex.EncodeToString(sum[:])
}

// MemoryCache is a process-local LRU.
type MemoryCache struct {
	capacity int
	items    map[string]*list.Element
	lru      *list.List
	mu       sync.Mutex
}

type memoryEntry struct {
	key string
	vec []float64
}

func NewMemoryCache(capacity int) *MemoryCache {
	if capacity <= 0 {
		capacity = 1
	}
	return &MemoryCache{
		capacity: capacity,
		items:    make(map[string]*list.Element),
		lru:      list.New(),
	}
}

func (c *MemoryCache) Get(_ context.Context, key string) ([]float64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.items[key]; ok {
		c.lru.MoveToFront(elem)
		return elem.Value.(*memoryEntry).vec, true
	}
	return nil, false
}

func (c *MemoryCache) Set(_ context.Context, key string, vec []float64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.items[key]; ok {
		c.lru.MoveToFront(elem)
		elem.Value.(*memoryEntry).vec = vec
		return
	}

	c.items[key] = c.lru.PushFront(&memoryEntry{key: key, vec: vec})
	if c.lru.Len() > c.capacity {
		if oldest := c.lru.Back(); oldest != nil {
			c.lru.Remove(oldest)
			delete(c.items, oldest.Value.(*memoryEntry).key)
		}
	}
}

// Len returns the number of cached vectors.
func (c *MemoryCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len()
}

// RedisCache shares vectors between processes.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisCache(client *redis.Client, ttl time.Duration) *RedisCache {
	return &RedisCache{client: client, ttl: ttl}
}

func (c *RedisCache) Get(ctx context.Context, key string) ([]float64, bool) {
	data, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			logx.Warn().Err(err).Str("key", key).Msg("embedding cache read failed")
		}
		return nil, false
	}
	var vec []float64
	if err := json.Unmarshal(data, &vec); err != nil || len(vec) == 0 {
		return nil, false
	}
	return vec, true
}

func (c *RedisCache) Set(ctx context.Context, key string, vec []float64) {
	data, err := json.Marshal(vec)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, key, data, c.ttl).Err(); err != nil {
		logx.Warn().Err(err).Str("key", key).Msg("embedding cache write failed")
	}
}

// TieredCache reads through its layers in order and backfills the faster ones on a hit.
type TieredCache []Cache

func (t TieredCache) Get(ctx context.Context, key string) ([]float64, bool) {
	for i, c := range t {
		if v, ok := c.Get(ctx, key); ok {
			for j := 0; j < i; j++ {
				t[j].Set(ctx, key, v)
			}
			return v, true
		}
	}
	return nil, false
}

func (t TieredCache) Set(ctx context.Context, key string, vec []float64) {
	for _, c := range t {
		c.Set(ctx, key, vec)
	}
}

// Cached wraps an Embedder and only forwards texts missing from the cache.
type Cached struct {
	inner embedding.Embedder
	cache Cache
	model string
}

func NewCached(inner embedding.Embedder, cache Cache, model string) *Cached {
	return &Cached{inner: inner, cache: cache, model: model}
}

// EmbedStrings implements embedding.Embedder.
func (c *Cached) EmbedStrings(ctx context.Context, texts []string, opts ...embedding.Option) ([][]float64, error) {
	out := make([][]float64, len(texts))
	var (
		missTexts []string
		missIdx   []int
	)
	for i, t := range texts {
		if v, ok := c.cache.Get(ctx, CacheKey(c.model, t)); ok {
			out[i] = v
			continue
		}
		missTexts = append(missTexts, t)
		missIdx = append(missIdx, i)
	}
	if len(missTexts) == 0 {
		return out, checkVectors(texts, out)
	}

	vecs, err := c.inner.EmbedStrings(ctx, missTexts, opts...)
	if err != nil {
		return nil, err
	}
	if err := checkVectors(missTexts, vecs); err != nil {
		return nil, err
	}
	for j, v := range vecs {
		out[missIdx[j]] = v
		c.cache.Set(ctx, CacheKey(c.model, missTexts[j]), v)
	}
	logx.Debug().Int("hits", len(texts)-len(missTexts)).Int("misses", len(missTexts)).Msg("embedded texts")
	// Cached vectors from another dimensionality must not reach the index.
	if err := checkVectors(texts, out); err != nil {
		return nil, err
	}
	return out, nil
}

var (
	_ embedding.Embedder = (*Cached)(nil)
	_ Cache              = (*MemoryCache)(nil)
	_ Cache              = (*RedisCache)(nil)
	_ Cache              = TieredCache(nil)
)
