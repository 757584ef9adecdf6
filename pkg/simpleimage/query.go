package simpleimage

import (
	"context"
	"strings"

	"go.uber.org/zap"
)

// List returns one page of the owner's images in listing order.
//
// Owner, date range, and resume position are pushed into the repository.
// Tag and substring filters are applied here, so when any is set the
// repository is asked for widening batches until the page fills, the index
// is exhausted, or maxQueryAttempts calls have been made. In the last case
// the cursor points at the last scanned record so the caller can continue
// without skipping or repeating anything.
func (s *service) List(ctx context.Context, filter QueryFilter) (*ListResult, error) {
	limit, rng, err := validateFilter(filter)
	if err != nil {
		return nil, err
	}

	var after *SortKey
	if filter.Cursor != "" {
		k, err := DecodeCursor(filter.Cursor)
		if err != nil {
			return nil, err
		}
		after = &k
	}

	m := newMatcher(filter)
	batch := limit
	if m.active() {
		batch = 2 * limit
	}

	items := make([]*ImageRecord, 0, limit)
	var lastScanned *SortKey

	for attempt := 1; attempt <= s.maxQueryAttempts; attempt++ {
		size := batch
		if !m.active() {
			size = limit - len(items)
		}
		page, err := s.queryPage(ctx, OwnerQuery{
			OwnerID: filter.OwnerID,
			Range:   rng,
			Limit:   size,
			After:   after,
		})
		if err != nil {
			return nil, err
		}

		for i, r := range page.Records {
			k := r.SortKey()
			lastScanned = &k
			if !rng.Contains(r.CreatedAt) || !m.match(r) {
				continue
			}
			items = append(items, r)
			if len(items) == limit {
				result := &ListResult{Items: items}
				if i < len(page.Records)-1 || page.Next != nil {
					result.NextCursor = EncodeCursor(k)
				}
				return result, nil
			}
		}

		if page.Next == nil {
			return &ListResult{Items: items}, nil
		}
		after = page.Next
		batch *= 2
		if batch > maxBatchSize {
			batch = maxBatchSize
		}
	}

	s.logger.Debug("query attempt cap reached",
		zap.String("owner_id", filter.OwnerID),
		zap.Int("attempts", s.maxQueryAttempts),
		zap.Int("matched", len(items)))

	resume := after
	if lastScanned != nil {
		resume = lastScanned
	}
	result := &ListResult{Items: items}
	if resume != nil {
		result.NextCursor = EncodeCursor(*resume)
	}
	return result, nil
}

func (s *service) queryPage(ctx context.Context, q OwnerQuery) (*RecordPage, error) {
	qCtx, cancel := s.adapterContext(ctx)
	defer cancel()

	page, err := s.repository.QueryByOwner(qCtx, q)
	if err != nil {
		s.logger.Error("owner query failed",
			zap.String("owner_id", q.OwnerID),
			zap.String("store", StoreMetadata),
			zap.Error(err))
		return nil, &StorageReadError{Store: StoreMetadata, Err: err}
	}
	if page == nil {
		return &RecordPage{}, nil
	}
	return page, nil
}

// matcher applies the filters the repository cannot evaluate.
type matcher struct {
	tags        []string
	filename    string
	description string
}

func newMatcher(f QueryFilter) matcher {
	return matcher{
		tags:        NormalizeTags(f.Tags),
		filename:    strings.ToLower(strings.TrimSpace(f.FilenameContains)),
		description: strings.ToLower(strings.TrimSpace(f.DescriptionContains)),
	}
}

func (m matcher) active() bool {
	return len(m.tags) > 0 || m.filename != "" || m.description != ""
}

func (m matcher) match(r *ImageRecord) bool {
	if !r.HasTags(m.tags) {
		return false
	}
	if m.filename != "" && !strings.Contains(strings.ToLower(r.Filename), m.filename) {
		return false
	}
	if m.description != "" && !strings.Contains(strings.ToLower(r.Description), m.description) {
		return false
	}
	return true
}
