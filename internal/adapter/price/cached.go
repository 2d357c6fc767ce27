package price

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/iho/chainledger/internal/domain"
	"github.com/iho/chainledger/internal/infrastructure/metrics"
	"github.com/iho/chainledger/internal/usecase"
)

// CachedPriceSource decorates a PriceSource with a cache keyed by
// currency and date span. Historical quotes never change, so long TTLs
// are safe; cache trouble degrades to a direct lookup.
type CachedPriceSource struct {
	next    usecase.PriceSource
	cache   usecase.Cache
	ttl     time.Duration
	logger  zerolog.Logger
	metrics *metrics.Metrics
}

// NewCachedPriceSource wraps next with cache.
func NewCachedPriceSource(next usecase.PriceSource, cache usecase.Cache, ttl time.Duration, logger zerolog.Logger) *CachedPriceSource {
	return &CachedPriceSource{next: next, cache: cache, ttl: ttl, logger: logger}
}

// WithMetrics enables hit counting; m may be nil.
func (s *CachedPriceSource) WithMetrics(m *metrics.Metrics) *CachedPriceSource {
	s.metrics = m
	return s
}

// PriceHistory serves the span from cache when present, otherwise asks
// the underlying source and stores the answer.
func (s *CachedPriceSource) PriceHistory(ctx context.Context, currency string, start, end time.Time) (usecase.PriceTable, error) {
	key := fmt.Sprintf("prices:%s:%s:%s", currency, usecase.DayKey(start), usecase.DayKey(end))

	raw, err := s.cache.Get(ctx, key)
	if err == nil {
		var table usecase.PriceTable
		if uerr := json.Unmarshal([]byte(raw), &table); uerr == nil {
			if s.metrics != nil {
				s.metrics.PriceCacheHits.WithLabelValues(currency).Inc()
			}
			return table, nil
		}
		// Unreadable payload: treat as a miss and overwrite below.
		s.logger.Warn().Str("key", key).Msg("discarding corrupt cached price table")
	} else if !errors.Is(err, domain.ErrCacheMiss) {
		s.logger.Warn().Err(err).Str("key", key).Msg("price cache unavailable, querying source directly")
	}

	table, err := s.next.PriceHistory(ctx, currency, start, end)
	if err != nil {
		return nil, err
	}

	if encoded, merr := json.Marshal(table); merr == nil {
		if serr := s.cache.Set(ctx, key, string(encoded), s.ttl); serr != nil {
			s.logger.Warn().Err(serr).Str("key", key).Msg("failed to cache price table")
		}
	}

	return table, nil
}
