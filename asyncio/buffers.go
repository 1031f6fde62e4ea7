package asyncio

import (
	"sync"

	"github.com/cockroachdb/errors"

	"github.com/xPOURY4/monad-sub013/metrics"
)

const (
	// ReadBufferSize is the fixed size of every registered read buffer.
	ReadBufferSize = 4096
	// WriteBufferSize is the fixed size of every registered write buffer.
	WriteBufferSize = 64 * 1024
)

// ErrBufferExhausted is fatal: it means a caller issued a read or
// write without pacing against the registered pool's capacity, which is a
// programming error rather than something the reactor can recover from.
type ErrBufferExhausted struct{ Kind string }

func (e ErrBufferExhausted) Error() string {
	return "asyncio: " + e.Kind + " buffer pool exhausted"
}

// bufferPool is a fixed-size stack of pre-allocated, same-sized buffers
// registered with the reactor up front, mirroring io_uring's pinned,
// kernel-registered buffer model -- acquire/release is LIFO so recently
// used (and so still-warm) buffers are handed out first.
type bufferPool struct {
	mu      sync.Mutex
	kind    string
	bufSize int
	free    [][]byte
	metric  func()
}

func newBufferPool(kind string, count, size int, onExhaustion func()) *bufferPool {
	p := &bufferPool{kind: kind, bufSize: size, metric: onExhaustion}
	p.free = make([][]byte, count)
	for i := range p.free {
		p.free[i] = make([]byte, size)
	}
	return p
}

// acquire and release are called from the goroutines the reactor spawns
// to dispatch individual pread/pwrite syscalls, so unlike the reactor
// itself the pool needs its own lock even though no single caller holds
// more than one buffer at a time.
func (p *bufferPool) acquire() ([]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.free) == 0 {
		if p.metric != nil {
			p.metric()
		}
		return nil, ErrBufferExhausted{Kind: p.kind}
	}
	n := len(p.free) - 1
	b := p.free[n]
	p.free = p.free[:n]
	return b, nil
}

func (p *bufferPool) release(b []byte) {
	if len(b) != p.bufSize {
		panic(errors.Newf("asyncio: released buffer size %d does not match pool size %d", len(b), p.bufSize))
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.free = append(p.free, b)
}

func (p *bufferPool) available() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.free)
}

func newReadBufferPool(count int) *bufferPool {
	return newBufferPool("read", count, ReadBufferSize, func() { metrics.ReadBufferExhaustion.Inc() })
}

func newWriteBufferPool(count int) *bufferPool {
	return newBufferPool("write", count, WriteBufferSize, func() { metrics.WriteBufferExhaustion.Inc() })
}
