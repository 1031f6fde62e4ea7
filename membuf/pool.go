package membuf

import (
	"sync"

	"github.com/cockroachdb/errors"
)

// ErrExhausted is a fatal condition on the hot path: the caller asked for
// a buffer after every slot was already checked out.
type ErrExhausted struct{ Pool string }

func (e ErrExhausted) Error() string { return "membuf: pool " + e.Pool + " exhausted" }

// BufferPool slices a HugeMem region into count fixed-size buffers and
// hands them out LIFO, mirroring asyncio's registered buffer pools. It is
// a standalone pool: none of the module's other packages draws from it.
type BufferPool struct {
	mu      sync.Mutex
	name    string
	mem     *HugeMem
	bufSize int
	free    []int // stack of free buffer indices
}

// NewBufferPool carves count buffers of bufSize bytes each out of a
// freshly allocated HugeMem.
func NewBufferPool(name string, count, bufSize int) (*BufferPool, error) {
	mem, err := NewHugeMem(count*bufSize, nil)
	if err != nil {
		return nil, errors.Wrapf(err, "membuf: allocating backing store for pool %s", name)
	}
	if len(mem.Bytes()) < count*bufSize {
		return nil, errors.Newf("membuf: huge-page region too small for pool %s (%d < %d)", name, len(mem.Bytes()), count*bufSize)
	}
	p := &BufferPool{name: name, mem: mem, bufSize: bufSize}
	p.free = make([]int, count)
	for i := range p.free {
		p.free[i] = count - 1 - i
	}
	return p, nil
}

// Acquire pops the top of the free stack and returns the buffer slice
// backing it. It is fatal (returns ErrExhausted) to call this with no
// free buffers; callers on the hot path are expected to pace themselves
// against Available beforehand.
func (p *BufferPool) Acquire() ([]byte, int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.free) == 0 {
		return nil, 0, ErrExhausted{Pool: p.name}
	}
	idx := p.free[len(p.free)-1]
	p.free = p.free[:len(p.free)-1]
	start := idx * p.bufSize
	return p.mem.Bytes()[start : start+p.bufSize], idx, nil
}

// Release returns a buffer, identified by the index Acquire returned, to
// the top of the stack.
func (p *BufferPool) Release(idx int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.free = append(p.free, idx)
}

// Available reports how many buffers are currently free.
func (p *BufferPool) Available() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.free)
}

// Close releases the underlying HugeMem region.
func (p *BufferPool) Close() error {
	return p.mem.Release()
}
