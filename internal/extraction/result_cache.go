package extraction

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/doculens/extraction-engine/internal/cache"
	"github.com/doculens/extraction-engine/internal/domain"
	"github.com/doculens/extraction-engine/internal/observability"
)

// ResultCache stores completed extraction results keyed by content and
// options. The key is derived from the document bytes, never from a
// filename, so renamed copies of the same file share an entry.
type ResultCache struct {
	client cache.Client
	ttl    time.Duration
	log    *observability.Logger
}

// NewResultCache wraps a cache client for result storage.
func NewResultCache(client cache.Client, ttl time.Duration, log *observability.Logger) *ResultCache {
	if log == nil {
		log = observability.Nop()
	}
	return &ResultCache{client: client, ttl: ttl, log: log}
}

// Key builds the cache key from the document content hash and the
// options hash. Two jobs with the same bytes but different options
// never collide.
func Key(doc domain.Document, opts domain.Options) string {
	content := sha256.Sum256(doc.Content)

	optBytes, err := json.Marshal(opts)
	if err != nil {
		// Options is a plain struct; this cannot fail in practice.
		optBytes = []byte(fmt.Sprintf("%+v", opts))
	}
	options := sha256.Sum256(optBytes)

	return "result:" + hex.EncodeToString(content[:]) + ":" + hex.EncodeToString(options[:])
}

// Lookup returns a cached result, or nil on miss. Cache failures are
// logged and treated as misses; the pipeline never fails on the cache.
func (c *ResultCache) Lookup(ctx context.Context, key string) *domain.ExtractionResult {
	data, err := c.client.Get(ctx, key)
	if err != nil {
		if err != cache.ErrCacheMiss {
			c.log.Warn().Err(err).Str("key", key).Msg("result cache lookup failed")
		}
		return nil
	}

	var result domain.ExtractionResult
	if err := json.Unmarshal(data, &result); err != nil {
		c.log.Warn().Err(err).Str("key", key).Msg("discarding corrupt cache entry")
		_ = c.client.Delete(ctx, key)
		return nil
	}

	result.FromCache = true
	return &result
}

// Store writes a completed result. Failures are absorbed; a cache that
// cannot be written costs recomputation, not correctness.
func (c *ResultCache) Store(ctx context.Context, key string, result *domain.ExtractionResult) {
	data, err := json.Marshal(result)
	if err != nil {
		c.log.Warn().Err(err).Msg("result not cacheable")
		return
	}

	if err := c.client.Set(ctx, key, data, c.ttl); err != nil {
		c.log.Warn().Err(err).Str("key", key).Msg("result cache write failed")
	}
}

// Stats exposes the underlying cache statistics.
func (c *ResultCache) Stats(ctx context.Context) (cache.Stats, error) {
	return c.client.Stats(ctx)
}
