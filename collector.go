package xrayz

import (
	"sync"
	"sync/atomic"
)

// Collector is an in-memory Client that buffers sent documents.
// Safe for concurrent use by multiple goroutines.
//
//nolint:govet // Field alignment optimized for readability over memory efficiency
type Collector struct {
	docs         []*Subsegment
	limit        int
	droppedCount atomic.Int64
	sendErr      atomic.Pointer[error]
	mu           sync.Mutex
}

// NewCollector creates a collector holding at most limit documents.
// A limit of zero or less means unbounded.
func NewCollector(limit int) *Collector {
	return &Collector{
		docs:  make([]*Subsegment, 0, 8), // Start with small capacity.
		limit: limit,
	}
}

// Send validates and buffers a deep copy of doc.
// When the collector is full the document is dropped and counted.
func (c *Collector) Send(doc *Subsegment) error {
	if errp := c.sendErr.Load(); errp != nil {
		c.droppedCount.Add(1)
		return *errp
	}
	if err := doc.Validate(); err != nil {
		c.droppedCount.Add(1)
		return err
	}

	docCopy := doc.Clone()

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.limit > 0 && len(c.docs) >= c.limit {
		c.droppedCount.Add(1)
		return nil
	}

	// Check if buffer needs to grow.
	if len(c.docs) >= cap(c.docs) {
		currentCap := cap(c.docs)
		var newCap int
		if currentCap < 1024 {
			// Double capacity for small buffers.
			newCap = currentCap * 2
		} else {
			// Grow by 50% for large buffers to avoid excessive memory usage.
			newCap = currentCap + currentCap/2
		}
		if newCap < 32 {
			newCap = 32
		}
		grown := make([]*Subsegment, len(c.docs), newCap)
		copy(grown, c.docs)
		c.docs = grown
	}
	c.docs = append(c.docs, docCopy)
	return nil
}

// FailWith makes every later Send return err. Pass nil to recover.
// Used to simulate transport failures.
func (c *Collector) FailWith(err error) {
	if err == nil {
		c.sendErr.Store(nil)
		return
	}
	c.sendErr.Store(&err)
}

// Export returns deep copies of all buffered documents and clears the buffer.
func (c *Collector) Export() []*Subsegment {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.docs) == 0 {
		return nil
	}

	result := make([]*Subsegment, len(c.docs))
	for i, doc := range c.docs {
		result[i] = doc.Clone()
	}

	// Only shrink if buffer is very oversized to avoid allocation churn.
	if cap(c.docs) > 256 && len(c.docs) < cap(c.docs)/8 {
		newCap := cap(c.docs) / 4
		if newCap < 32 {
			newCap = 32
		}
		c.docs = make([]*Subsegment, 0, newCap)
	} else {
		clear(c.docs)
		c.docs = c.docs[:0]
	}

	return result
}

// Count returns the current number of buffered documents.
func (c *Collector) Count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.docs)
}

// DroppedCount returns the number of documents rejected or dropped.
func (c *Collector) DroppedCount() int64 {
	return c.droppedCount.Load()
}

// Reset clears all buffered documents and the drop counter.
func (c *Collector) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()

	clear(c.docs)
	c.docs = c.docs[:0]
	c.droppedCount.Store(0)
}
