// Package dedupe detects exact repeats of raw items inside an ingest batch.
package dedupe

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"sync"

	"github.com/agiraud1/radar-fr/internal/domain/model"
)

// Deduper records item fingerprints so a batch writes each notice once.
type Deduper interface {
	// SeenAndRecord atomically checks if key was seen and records it if not.
	// Returns true if key was already seen, false if it was newly recorded.
	SeenAndRecord(ctx context.Context, key string) bool

	// Unrecord forgets key so a later identical item is retried. Used when
	// the first occurrence failed to ingest.
	Unrecord(ctx context.Context, key string)

	Size() int64
}

// Fingerprint identifies an item by url, calendar date and whitespace-folded text.
func Fingerprint(item model.RawItem) string {
	h := sha256.New()
	h.Write([]byte(strings.TrimSpace(item.URL)))
	h.Write([]byte{0})
	h.Write([]byte(model.FormatDate(item.Date)))
	h.Write([]byte{0})
	h.Write([]byte(strings.Join(strings.Fields(item.Text), " ")))
	return hex.EncodeToString(h.Sum(nil))
}

// inMemoryDeduper keeps fingerprints in a map. When bounded, the oldest
// entry is evicted first, tracked by a ring of insertion order.
type inMemoryDeduper struct {
	mu      sync.Mutex
	seen    map[string]int // key -> slot in order, -1 when unbounded
	order   []string       // ring of keys, bounded mode only
	next    int            // next ring slot to write
	maxSize int            // 0 or negative means unbounded
}

// NewInMemoryDeduper creates a new in-memory deduper with configuration options.
func NewInMemoryDeduper(opts ...Option) Deduper {
	d := &inMemoryDeduper{}
	for _, opt := range opts {
		opt(d)
	}
	d.seen = make(map[string]int)
	if d.maxSize > 0 {
		d.order = make([]string, d.maxSize)
	}
	return d
}

func (d *inMemoryDeduper) SeenAndRecord(_ context.Context, key string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.seen[key]; ok {
		return true
	}
	if d.maxSize <= 0 {
		d.seen[key] = -1
		return false
	}

	if old := d.order[d.next]; old != "" {
		delete(d.seen, old)
	}
	d.order[d.next] = key
	d.seen[key] = d.next
	d.next = (d.next + 1) % d.maxSize
	return false
}

func (d *inMemoryDeduper) Unrecord(_ context.Context, key string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	slot, ok := d.seen[key]
	if !ok {
		return
	}
	delete(d.seen, key)
	if slot >= 0 {
		d.order[slot] = ""
	}
}

// Size returns the current number of entries in the deduper.
func (d *inMemoryDeduper) Size() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return int64(len(d.seen))
}
