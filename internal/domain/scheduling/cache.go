package scheduling

import (
	"context"
	"errors"
	"time"

	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const cacheKeyPrefix = "schedule:fhir:"

func cacheKey(fhirID string) string { return cacheKeyPrefix + fhirID }

// CachedRepository is a read-through Redis cache in front of another
// repository. Only lookups by fhir_id alone are cached. Writes evict the keys
// they touch once their transaction commits, so a read racing the commit
// cannot leave the old row cached. Redis failures are logged and the call
// falls through to the wrapped repository.
type CachedRepository struct {
	next   ScheduleRepository
	client redis.Cmdable
	ttl    time.Duration
	logger zerolog.Logger
}

func NewCachedRepository(next ScheduleRepository, client redis.Cmdable, ttl time.Duration, logger zerolog.Logger) *CachedRepository {
	return &CachedRepository{next: next, client: client, ttl: ttl, logger: logger}
}

func (r *CachedRepository) SaveSchedule(ctx context.Context, doc *ScheduleDocument) error {
	return r.next.SaveSchedule(ctx, doc)
}

func (r *CachedRepository) UpdateSchedule(ctx context.Context, filter map[string]string, data map[string]interface{}) (int64, error) {
	keys, err := r.affectedKeys(ctx, filter)
	if err != nil {
		return 0, err
	}
	n, err := r.next.UpdateSchedule(ctx, filter, data)
	if err == nil && n > 0 {
		afterCommit(ctx, func(ctx context.Context) { r.evict(ctx, keys) })
	}
	return n, err
}

func (r *CachedRepository) DeactivateSchedule(ctx context.Context, filter map[string]string) (int64, error) {
	keys, err := r.affectedKeys(ctx, filter)
	if err != nil {
		return 0, err
	}
	n, err := r.next.DeactivateSchedule(ctx, filter)
	if err == nil && n > 0 {
		afterCommit(ctx, func(ctx context.Context) { r.evict(ctx, keys) })
	}
	return n, err
}

func (r *CachedRepository) FindSchedule(ctx context.Context, filter map[string]string) (*ScheduleDocument, error) {
	fhirID, ok := filter[FilterFHIRID]
	if !ok || len(filter) != 1 {
		return r.next.FindSchedule(ctx, filter)
	}

	key := cacheKey(fhirID)
	raw, err := r.client.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var doc ScheduleDocument
		if err := json.Unmarshal(raw, &doc); err == nil {
			return &doc, nil
		}
		r.logger.Warn().Err(err).Str("key", key).Msg("discarding undecodable cache entry")
	case !errors.Is(err, redis.Nil):
		r.logger.Warn().Err(err).Str("key", key).Msg("schedule cache read failed")
	}

	doc, err := r.next.FindSchedule(ctx, filter)
	if err != nil {
		return nil, err
	}
	if b, err := json.Marshal(doc); err != nil {
		r.logger.Warn().Err(err).Str("key", key).Msg("encode schedule for cache")
	} else if err := r.client.Set(ctx, key, b, r.ttl).Err(); err != nil {
		r.logger.Warn().Err(err).Str("key", key).Msg("schedule cache write failed")
	}
	return doc, nil
}

func (r *CachedRepository) SearchSchedules(ctx context.Context, filter map[string]string, limit, offset int) ([]*ScheduleDocument, int, error) {
	return r.next.SearchSchedules(ctx, filter, limit, offset)
}

// affectedKeys returns the cache keys a write with filter may touch.
func (r *CachedRepository) affectedKeys(ctx context.Context, filter map[string]string) ([]string, error) {
	if fhirID, ok := filter[FilterFHIRID]; ok {
		return []string{cacheKey(fhirID)}, nil
	}
	docs, _, err := r.next.SearchSchedules(ctx, filter, 0, 0)
	if err != nil {
		return nil, err
	}
	keys := make([]string, 0, len(docs))
	for _, d := range docs {
		keys = append(keys, cacheKey(d.FHIRID))
	}
	return keys, nil
}

func (r *CachedRepository) evict(ctx context.Context, keys []string) {
	if len(keys) == 0 {
		return
	}
	if err := r.client.Del(ctx, keys...).Err(); err != nil {
		r.logger.Warn().Err(err).Strs("keys", keys).Msg("schedule cache eviction failed")
	}
}
