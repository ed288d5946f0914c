package healthrecord

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

type MemoryRepository struct {
	mu      sync.RWMutex
	records map[uuid.UUID]*Record
	now     func() time.Time
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		records: make(map[uuid.UUID]*Record),
		now:     time.Now,
	}
}

func (r *MemoryRepository) Create(_ context.Context, in NewRecord) (*Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	for _, rec := range r.records {
		if !now.After(rec.CreatedAt) {
			now = rec.CreatedAt.Add(time.Microsecond)
		}
	}

	rec := &Record{
		ID:            uuid.New(),
		UserID:        in.UserID,
		Date:          in.Date,
		Weight:        in.Weight,
		Height:        in.Height,
		BloodPressure: in.BloodPressure,
		HeartRate:     in.HeartRate,
		Diagnosis:     in.Diagnosis,
		Notes:         in.Notes,
		CreatedAt:     now,
	}
	r.records[rec.ID] = rec

	c := *rec
	return &c, nil
}

func (r *MemoryRepository) ListByUser(_ context.Context, userID uuid.UUID) ([]Record, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []Record
	for _, rec := range r.records {
		if rec.UserID == userID {
			out = append(out, *rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (r *MemoryRepository) Delete(_ context.Context, id, userID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.records[id]
	if !ok || rec.UserID != userID {
		return ErrRecordNotFound
	}
	delete(r.records, id)
	return nil
}

func (r *MemoryRepository) MarkRead(_ context.Context, userID uuid.UUID, ids []uuid.UUID) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var n int64
	for _, id := range ids {
		if rec, ok := r.records[id]; ok && rec.UserID == userID && !rec.Read {
			rec.Read = true
			n++
		}
	}
	return n, nil
}
