package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/tendant/simple-image/pkg/simpleimage"
)

// Repository implements simpleimage.Repository using in-memory storage
type Repository struct {
	mu      sync.RWMutex
	records map[string]*simpleimage.ImageRecord
	byOwner map[string][]*simpleimage.ImageRecord // kept in listing order
}

// New creates a new in-memory repository
func New() *Repository {
	return &Repository{
		records: make(map[string]*simpleimage.ImageRecord),
		byOwner: make(map[string][]*simpleimage.ImageRecord),
	}
}

var _ simpleimage.Repository = (*Repository)(nil)

func (r *Repository) PutRecord(ctx context.Context, record *simpleimage.ImageRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.records[record.ImageID]; exists {
		return simpleimage.ErrRecordExists
	}

	// Create a copy to avoid external modifications
	rec := copyRecord(record)
	r.records[rec.ImageID] = rec

	idx := r.byOwner[rec.OwnerID]
	key := rec.SortKey()
	pos := sort.Search(len(idx), func(i int) bool {
		return !idx[i].SortKey().Before(key)
	})
	idx = append(idx, nil)
	copy(idx[pos+1:], idx[pos:])
	idx[pos] = rec
	r.byOwner[rec.OwnerID] = idx

	return nil
}

func (r *Repository) GetRecord(ctx context.Context, imageID string) (*simpleimage.ImageRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	rec, exists := r.records[imageID]
	if !exists {
		return nil, simpleimage.ErrRecordNotFound
	}
	// Return a copy to prevent external modifications
	return copyRecord(rec), nil
}

func (r *Repository) DeleteRecord(ctx context.Context, imageID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, exists := r.records[imageID]
	if !exists {
		return simpleimage.ErrRecordNotFound
	}
	delete(r.records, imageID)

	idx := r.byOwner[rec.OwnerID]
	for i, candidate := range idx {
		if candidate.ImageID == imageID {
			idx = append(idx[:i], idx[i+1:]...)
			break
		}
	}
	if len(idx) == 0 {
		delete(r.byOwner, rec.OwnerID)
	} else {
		r.byOwner[rec.OwnerID] = idx
	}
	return nil
}

func (r *Repository) QueryByOwner(ctx context.Context, q simpleimage.OwnerQuery) (*simpleimage.RecordPage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	idx := r.byOwner[q.OwnerID]
	start := 0
	if q.After != nil {
		after := *q.After
		start = sort.Search(len(idx), func(i int) bool {
			return after.Before(idx[i].SortKey())
		})
	}

	page := &simpleimage.RecordPage{Records: []*simpleimage.ImageRecord{}}
	for i := start; i < len(idx); i++ {
		rec := idx[i]
		if !q.Range.Contains(rec.CreatedAt) {
			// Records older than From can never match again.
			if q.Range.From != nil && rec.CreatedAt.Before(*q.Range.From) {
				break
			}
			continue
		}
		if q.Limit > 0 && len(page.Records) == q.Limit {
			last := page.Records[len(page.Records)-1].SortKey()
			page.Next = &last
			break
		}
		page.Records = append(page.Records, copyRecord(rec))
	}
	return page, nil
}

// Len returns the number of stored records
func (r *Repository) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.records)
}

func copyRecord(rec *simpleimage.ImageRecord) *simpleimage.ImageRecord {
	c := *rec
	c.Tags = append([]string{}, rec.Tags...)
	return &c
}
