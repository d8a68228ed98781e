package xrayz

import (
	"crypto/rand"
	"encoding/binary"
	"encoding/hex"
	"io"
	"sync"

	"github.com/zoobzio/clockz"
)

// defaultIDs backs NewSegmentID and NewTraceID.
var defaultIDs = NewIDPool(64, clockz.RealClock)

// IDPool hands out segment ids from random bytes read in batches to
// amortize crypto/rand overhead. It starts no goroutines.
// Safe for concurrent use.
type IDPool struct {
	source io.Reader
	clock  clockz.Clock
	buf    []byte
	off    int
	mu     sync.Mutex
}

// NewIDPool creates a pool that refills batch ids at a time.
func NewIDPool(batch int, clock clockz.Clock) *IDPool {
	if batch <= 0 {
		batch = 1
	}
	if clock == nil {
		clock = clockz.RealClock
	}
	buf := make([]byte, batch*8)
	return &IDPool{
		source: rand.Reader,
		clock:  clock,
		buf:    buf,
		off:    len(buf), // Empty until first use.
	}
}

// Get returns a fresh 16 hex digit id.
func (p *IDPool) Get() string {
	var raw [8]byte
	p.fill(raw[:])
	return hex.EncodeToString(raw[:])
}

// fill copies random bytes into dst, refilling the batch as needed.
func (p *IDPool) fill(dst []byte) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for len(dst) > 0 {
		if p.off >= len(p.buf) {
			if _, err := io.ReadFull(p.source, p.buf); err != nil {
				// Fallback to time-based bytes if crypto/rand fails.
				p.fallbackFill()
			}
			p.off = 0
		}
		n := copy(dst, p.buf[p.off:])
		p.off += n
		dst = dst[n:]
	}
}

func (p *IDPool) fallbackFill() {
	seed := uint64(p.clock.Now().UnixNano())
	for i := 0; i+8 <= len(p.buf); i += 8 {
		// splitmix64 step so consecutive ids differ.
		seed += 0x9e3779b97f4a7c15
		z := seed
		z = (z ^ (z >> 30)) * 0xbf58476d1ce4e5b9
		z = (z ^ (z >> 27)) * 0x94d049bb133111eb
		binary.BigEndian.PutUint64(p.buf[i:], z^(z>>31))
	}
}
