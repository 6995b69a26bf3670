package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/taskio/ticket-classifier/internal/models"
)

const keyPrefix = "classify:"

// Fingerprint derives the deterministic cache key for a ticket's text. The
// title and description are joined, case-folded, and whitespace-collapsed so
// trivially reformatted resubmissions collapse to the same key; a SHA-256
// digest (truncated to 32 hex chars) keeps keys short and collision-resistant
// for the ticket-text domain.
func Fingerprint(title, description string) string {
	text := description
	if strings.TrimSpace(title) != "" {
		text = title + ". " + description
	}
	normalized := strings.Join(strings.Fields(strings.ToLower(text)), " ")
	sum := sha256.Sum256([]byte(normalized))
	return keyPrefix + hex.EncodeToString(sum[:])[:32]
}

// ResultCache stores ClassificationResult snapshots keyed by text
// fingerprint. Provider failures are logged and treated as misses so a
// degraded cache backend never fails a classification request.
type ResultCache struct {
	provider Provider
	ttl      time.Duration
	logger   *slog.Logger
}

// NewResultCache wraps a Provider with result marshalling and TTL policy.
func NewResultCache(provider Provider, ttl time.Duration, logger *slog.Logger) *ResultCache {
	if provider == nil {
		provider = NoopProvider{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ResultCache{provider: provider, ttl: ttl, logger: logger}
}

// Lookup returns a previously stored result for the ticket text. The second
// return value reports whether the lookup hit. Hits come back with
// Cached=true and RAGUsed=false; no model or index call happened.
func (c *ResultCache) Lookup(ctx context.Context, title, description string) (models.ClassificationResult, bool) {
	key := Fingerprint(title, description)
	data, err := c.provider.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, ErrCacheMiss) {
			c.logger.Warn("cache lookup degraded to miss", slog.Any("error", err))
		}
		return models.ClassificationResult{}, false
	}

	var result models.ClassificationResult
	if err := json.Unmarshal(data, &result); err != nil {
		c.logger.Warn("cache entry unreadable, treating as miss", slog.Any("error", err))
		return models.ClassificationResult{}, false
	}

	result.Cached = true
	result.RAGUsed = false
	return result, true
}

// Store writes a result snapshot through to the cache. Failures are logged
// and swallowed; the caller already has the result.
func (c *ResultCache) Store(ctx context.Context, title, description string, result models.ClassificationResult) {
	snapshot := result
	snapshot.Cached = false
	snapshot.LatencyMs = 0

	payload, err := json.Marshal(snapshot)
	if err != nil {
		c.logger.Warn("cache store skipped", slog.Any("error", err))
		return
	}
	if err := c.provider.Set(ctx, Fingerprint(title, description), payload, c.ttl); err != nil {
		c.logger.Warn("cache store failed", slog.Any("error", err))
	}
}

// Invalidate removes the cached entry for the ticket text so a future
// identical submission reflects a corrected label rather than the stale
// prediction. Best-effort.
func (c *ResultCache) Invalidate(ctx context.Context, title, description string) {
	if err := c.provider.Del(ctx, Fingerprint(title, description)); err != nil {
		c.logger.Warn("cache invalidation failed", slog.Any("error", err))
	}
}
