package repository

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/RigelNana/media-service/models"
	"github.com/google/uuid"
)

// MemoryMediaRepository is a process-local MediaRepository for development
// and tests. Records are copied in and out.
type MemoryMediaRepository struct {
	mu      sync.RWMutex
	records map[uuid.UUID]*memoryEntry
	seq     int64
	now     func() time.Time
}

type memoryEntry struct {
	rec *models.MediaRecord
	seq int64
}

func NewMemoryMediaRepository() *MemoryMediaRepository {
	return &MemoryMediaRepository{records: make(map[uuid.UUID]*memoryEntry), now: time.Now}
}

func clone(rec *models.MediaRecord) *models.MediaRecord {
	c := *rec
	if rec.Asset.Attributes != nil {
		c.Asset.Attributes = make(map[string]interface{}, len(rec.Asset.Attributes))
		for k, v := range rec.Asset.Attributes {
			c.Asset.Attributes[k] = v
		}
	}
	return &c
}

func (r *MemoryMediaRepository) keyTaken(key string, except uuid.UUID) bool {
	if key == "" {
		return false
	}
	for id, e := range r.records {
		if id != except && e.rec.Asset.Key == key {
			return true
		}
	}
	return false
}

func (r *MemoryMediaRepository) Create(ctx context.Context, rec *models.MediaRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	if _, ok := r.records[rec.ID]; ok || r.keyTaken(rec.Asset.Key, rec.ID) {
		return ErrDuplicateAsset
	}
	now := r.now()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	rec.UpdatedAt = now
	r.seq++
	r.records[rec.ID] = &memoryEntry{rec: clone(rec), seq: r.seq}
	return nil
}

func (r *MemoryMediaRepository) GetByID(ctx context.Context, kind models.Kind, id uuid.UUID) (*models.MediaRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.records[id]
	if !ok || e.rec.Kind != kind {
		return nil, ErrNotFound
	}
	return clone(e.rec), nil
}

func (r *MemoryMediaRepository) Update(ctx context.Context, rec *models.MediaRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.records[rec.ID]
	if !ok || e.rec.Kind != rec.Kind {
		return ErrNotFound
	}
	if !e.rec.UpdatedAt.Equal(rec.UpdatedAt) {
		return ErrStaleRecord
	}
	if r.keyTaken(rec.Asset.Key, rec.ID) {
		return ErrDuplicateAsset
	}
	rec.CreatedAt = e.rec.CreatedAt
	rec.UpdatedAt = r.now()
	e.rec = clone(rec)
	return nil
}

func (r *MemoryMediaRepository) Delete(ctx context.Context, kind models.Kind, id uuid.UUID) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.records[id]
	if !ok || e.rec.Kind != kind {
		return ErrNotFound
	}
	delete(r.records, id)
	return nil
}

func (r *MemoryMediaRepository) List(ctx context.Context, kind models.Kind, f models.Filter, p models.Page) ([]*models.MediaRecord, int64, error) {
	all, err := r.FindAll(ctx, kind, f)
	if err != nil {
		return nil, 0, err
	}
	total := int64(len(all))
	start := min(p.Offset(), len(all))
	if start < 0 {
		start = len(all)
	}
	end := min(start+max(p.Limit, 0), len(all))
	return all[start:end], total, nil
}

func (r *MemoryMediaRepository) FindAll(ctx context.Context, kind models.Kind, f models.Filter) ([]*models.MediaRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	var matched []*memoryEntry
	for _, e := range r.records {
		if e.rec.Kind == kind && matches(e.rec, f) {
			matched = append(matched, e)
		}
	}
	// newest first; insertion order breaks timestamp ties
	sort.Slice(matched, func(i, j int) bool {
		a, b := matched[i], matched[j]
		if !a.rec.CreatedAt.Equal(b.rec.CreatedAt) {
			return a.rec.CreatedAt.After(b.rec.CreatedAt)
		}
		return a.seq > b.seq
	})

	out := make([]*models.MediaRecord, 0, len(matched))
	for _, e := range matched {
		out = append(out, clone(e.rec))
	}
	return out, nil
}

func (r *MemoryMediaRepository) DeleteByIDs(ctx context.Context, kind models.Kind, ids []uuid.UUID) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	var n int64
	for _, id := range ids {
		if e, ok := r.records[id]; ok && e.rec.Kind == kind {
			delete(r.records, id)
			n++
		}
	}
	return n, nil
}

func (r *MemoryMediaRepository) Ping(ctx context.Context) error {
	return ctx.Err()
}

func matches(rec *models.MediaRecord, f models.Filter) bool {
	if f.Category != "" && rec.Category != f.Category {
		return false
	}
	if f.Section != "" && rec.Section != f.Section {
		return false
	}
	if f.Year != "" && rec.Year != f.Year {
		return false
	}
	if f.Search != "" {
		q := strings.ToLower(f.Search)
		return strings.Contains(strings.ToLower(rec.Title), q) ||
			strings.Contains(strings.ToLower(rec.Description), q)
	}
	return true
}
