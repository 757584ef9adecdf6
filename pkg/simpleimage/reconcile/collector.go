package reconcile

import (
	"context"
	"sync"

	"github.com/tendant/simple-image/pkg/simpleimage"
)

// DefaultCollectorCapacity bounds the orphans a Collector holds between drains
const DefaultCollectorCapacity = 10000

// Collector is an EventSink that keeps reported orphans until drained.
// When full, the oldest orphan is dropped. Upload and delete events are
// ignored.
type Collector struct {
	mu       sync.Mutex
	orphans  []simpleimage.Orphan
	capacity int
	dropped  int64
}

var _ simpleimage.EventSink = (*Collector)(nil)

// CollectorOption configures a Collector
type CollectorOption func(*Collector)

// WithCapacity sets the maximum number of pending orphans
func WithCapacity(n int) CollectorOption {
	return func(c *Collector) {
		if n > 0 {
			c.capacity = n
		}
	}
}

// NewCollector creates an empty collector
func NewCollector(opts ...CollectorOption) *Collector {
	c := &Collector{capacity: DefaultCollectorCapacity}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Collector) ImageUploaded(ctx context.Context, record *simpleimage.ImageRecord) error {
	return nil
}

func (c *Collector) ImageDeleted(ctx context.Context, record *simpleimage.ImageRecord) error {
	return nil
}

func (c *Collector) OrphanDetected(ctx context.Context, orphan simpleimage.Orphan) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.orphans) >= c.capacity {
		n := len(c.orphans) - c.capacity + 1
		c.orphans = append(c.orphans[:0], c.orphans[n:]...)
		c.dropped += int64(n)
	}
	c.orphans = append(c.orphans, orphan)
	return nil
}

// Orphans returns a copy of the collected orphans
func (c *Collector) Orphans() []simpleimage.Orphan {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]simpleimage.Orphan(nil), c.orphans...)
}

// Drain returns the collected orphans and resets the collector
func (c *Collector) Drain() []simpleimage.Orphan {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := c.orphans
	c.orphans = nil
	return out
}

// Len returns the number of pending orphans
func (c *Collector) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.orphans)
}

// Dropped returns how many orphans were discarded because the collector
// was full
func (c *Collector) Dropped() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dropped
}
