package simpleimage

import (
	"time"
)

// ImageRecord is the metadata persisted for every uploaded image.
type ImageRecord struct {
	ImageID     string    `json:"image_id"`
	OwnerID     string    `json:"owner_id"`
	ObjectKey   string    `json:"object_key"`
	Filename    string    `json:"filename"`
	ContentType string    `json:"content_type"`
	SizeBytes   int64     `json:"size_bytes"`
	Tags        []string  `json:"tags"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// SortKey returns the position of the record in listing order.
func (r *ImageRecord) SortKey() SortKey {
	return SortKey{CreatedAt: r.CreatedAt, ImageID: r.ImageID}
}

// HasTags reports whether the record carries every tag in want.
func (r *ImageRecord) HasTags(want []string) bool {
	if len(want) == 0 {
		return true
	}
	have := make(map[string]struct{}, len(r.Tags))
	for _, t := range r.Tags {
		have[t] = struct{}{}
	}
	for _, t := range want {
		if _, ok := have[t]; !ok {
			return false
		}
	}
	return true
}

// SortKey identifies a position in listing order: CreatedAt descending,
// ImageID ascending.
type SortKey struct {
	CreatedAt time.Time
	ImageID   string
}

// Before reports whether k sorts strictly before other in listing order.
func (k SortKey) Before(other SortKey) bool {
	if !k.CreatedAt.Equal(other.CreatedAt) {
		return k.CreatedAt.After(other.CreatedAt)
	}
	return k.ImageID < other.ImageID
}

// DateRange bounds CreatedAt. Both ends are inclusive; a nil end is open.
type DateRange struct {
	From *time.Time
	To   *time.Time
}

// Contains reports whether t falls inside the range.
func (d DateRange) Contains(t time.Time) bool {
	if d.From != nil && t.Before(*d.From) {
		return false
	}
	if d.To != nil && t.After(*d.To) {
		return false
	}
	return true
}

// IsZero reports whether the range is unbounded on both ends.
func (d DateRange) IsZero() bool {
	return d.From == nil && d.To == nil
}

// OwnerQuery is the owner-indexed query pushed down to a Repository.
type OwnerQuery struct {
	OwnerID string
	Range   DateRange
	// Limit is the maximum number of records in the page.
	Limit int
	// After resumes strictly after this position when set.
	After *SortKey
}

// RecordPage is one page of an owner-indexed query. Next is set to the sort
// key of the last record when more records may follow, and is nil once the
// index is exhausted.
type RecordPage struct {
	Records []*ImageRecord
	Next    *SortKey
}

// AccessDescriptor is a time-limited reference to an object's bytes.
type AccessDescriptor struct {
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Retrieval is the result of Get. Exactly one of Data and Descriptor is set.
type Retrieval struct {
	Record       *ImageRecord
	Data         []byte
	Descriptor   *AccessDescriptor
	AsAttachment bool
}

// ListResult is one page of a filtered listing.
type ListResult struct {
	Items      []*ImageRecord `json:"items"`
	NextCursor string         `json:"next_cursor,omitempty"`
}

// OrphanKind names which store holds the orphaned half of an image.
type OrphanKind string

const (
	// OrphanObject is an object with no metadata record.
	OrphanObject OrphanKind = "object"
	// OrphanRecord is a metadata record whose object is gone.
	OrphanRecord OrphanKind = "record"
)

// Orphan describes an inconsistency left behind by a partial operation.
type Orphan struct {
	Kind      OrphanKind `json:"kind"`
	ImageID   string     `json:"image_id"`
	OwnerID   string     `json:"owner_id,omitempty"`
	ObjectKey string     `json:"object_key"`
	Reason    string     `json:"reason"`
	At        time.Time  `json:"at"`
}
