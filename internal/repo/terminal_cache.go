package repo

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/lifetrack/slawatch/internal/cache"
	"github.com/lifetrack/slawatch/internal/models"
)

// TimerFetcher is the timer half of the dispatch API.
type TimerFetcher interface {
	FetchTimer(ctx context.Context, session models.Session, occurrenceID string) (models.Snapshot, error)
}

// TerminalCache remembers timer snapshots once the unit is back at base. A
// terminal snapshot never changes, so reopening a finished occurrence is
// served without an upstream call.
type TerminalCache struct {
	next   TimerFetcher
	cache  cache.Provider
	ttl    time.Duration
	logger *slog.Logger
}

// NewTerminalCache wraps next. A nil provider disables caching.
func NewTerminalCache(next TimerFetcher, provider cache.Provider, ttl time.Duration, logger *slog.Logger) *TerminalCache {
	if provider == nil {
		provider = cache.NoopProvider{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &TerminalCache{next: next, cache: provider, ttl: ttl, logger: logger}
}

// FetchTimer serves a cached terminal snapshot or delegates to the wrapped fetcher.
func (t *TerminalCache) FetchTimer(ctx context.Context, session models.Session, occurrenceID string) (models.Snapshot, error) {
	key := terminalKey(occurrenceID)

	if data, err := t.cache.Get(ctx, key); err == nil {
		var snap models.Snapshot
		if err := json.Unmarshal(data, &snap); err == nil && snap.Terminal() {
			return snap, nil
		}
		t.logger.Warn("discarding unreadable cached timer", slog.String("occurrence_id", occurrenceID))
		_ = t.cache.Del(ctx, key)
	} else if !errors.Is(err, cache.ErrCacheMiss) {
		t.logger.Warn("timer cache read failed", slog.String("occurrence_id", occurrenceID), slog.Any("error", err))
	}

	snap, err := t.next.FetchTimer(ctx, session, occurrenceID)
	if err != nil {
		return snap, err
	}
	if snap.Terminal() {
		data, err := json.Marshal(snap)
		if err == nil {
			err = t.cache.Set(ctx, key, data, t.ttl)
		}
		if err != nil {
			t.logger.Warn("timer cache write failed", slog.String("occurrence_id", occurrenceID), slog.Any("error", err))
		}
	}
	return snap, nil
}

func terminalKey(occurrenceID string) string {
	return "slawatch:timer:terminal:" + occurrenceID
}
