package scheduling

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryRepository keeps documents in process. Used in development and tests.
type MemoryRepository struct {
	mu      sync.RWMutex
	docs    map[uuid.UUID]*ScheduleDocument
	nowFunc func() time.Time
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		docs:    make(map[uuid.UUID]*ScheduleDocument),
		nowFunc: time.Now,
	}
}

func (r *MemoryRepository) SaveSchedule(_ context.Context, doc *ScheduleDocument) error {
	now := r.nowFunc().UTC()
	if doc.ID == uuid.Nil {
		doc.ID = uuid.New()
	}
	if doc.FHIRID == "" {
		doc.FHIRID = doc.ID.String()
	}
	if doc.VersionID == 0 {
		doc.VersionID = 1
	}
	doc.CreatedAt = now
	doc.UpdatedAt = now

	r.mu.Lock()
	defer r.mu.Unlock()
	r.docs[doc.ID] = doc.clone()
	return nil
}

func (r *MemoryRepository) UpdateSchedule(_ context.Context, filter map[string]string, data map[string]interface{}) (int64, error) {
	f, err := parseFilter(filter)
	if err != nil {
		return 0, err
	}
	u, err := parseUpdate(data)
	if err != nil {
		return 0, err
	}
	return r.mutate(f, u.apply), nil
}

func (r *MemoryRepository) DeactivateSchedule(_ context.Context, filter map[string]string) (int64, error) {
	f, err := parseFilter(filter)
	if err != nil {
		return 0, err
	}
	return r.mutate(f, func(d *ScheduleDocument) { d.Active = false }), nil
}

func (r *MemoryRepository) mutate(f scheduleFilter, fn func(*ScheduleDocument)) int64 {
	now := r.nowFunc().UTC()
	r.mu.Lock()
	defer r.mu.Unlock()

	var n int64
	for _, d := range r.docs {
		if !f.matches(d) {
			continue
		}
		fn(d)
		d.VersionID++
		d.UpdatedAt = now
		n++
	}
	return n
}

func (r *MemoryRepository) FindSchedule(_ context.Context, filter map[string]string) (*ScheduleDocument, error) {
	f, err := parseFilter(filter)
	if err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, d := range r.docs {
		if f.matches(d) {
			return d.clone(), nil
		}
	}
	return nil, ErrScheduleNotFound
}

func (r *MemoryRepository) SearchSchedules(_ context.Context, filter map[string]string, limit, offset int) ([]*ScheduleDocument, int, error) {
	f, err := parseFilter(filter)
	if err != nil {
		return nil, 0, err
	}
	r.mu.RLock()
	var matched []*ScheduleDocument
	for _, d := range r.docs {
		if f.matches(d) {
			matched = append(matched, d.clone())
		}
	}
	r.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		if matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].ID.String() < matched[j].ID.String()
		}
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	total := len(matched)
	if offset >= total {
		return []*ScheduleDocument{}, total, nil
	}
	end := total
	if limit > 0 && offset+limit < total {
		end = offset + limit
	}
	return matched[offset:end], total, nil
}
