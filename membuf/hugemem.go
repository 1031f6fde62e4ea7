// Package membuf implements the huge-page memory allocator and fixed-size
// buffer pool stack. No other package in this module imports it: asyncio
// allocates its own read/write buffers, and the writers and cache use
// ordinary heap slices.
package membuf

import (
	"os"
	"sync"
	"unsafe"

	"github.com/cockroachdb/errors"
	"golang.org/x/sys/unix"

	"github.com/xPOURY4/monad-sub013/log"
)

const hugePageSize = 2 << 20 // 2 MiB

// HugeMem is a single scoped mapping backed by huge pages when the host
// supports them, falling back to a double-sized anonymous mapping with an
// aligned window carved out of it when they are not (CI environments).
// Release is idempotent and safe to defer unconditionally.
type HugeMem struct {
	mu       sync.Mutex
	raw      []byte // the full mmap region, including any fallback padding
	region   []byte // the usable, huge-page-aligned window within raw
	hugePage bool
	mlocked  bool
	released bool
	log      *log.Logger
}

// onCI reports whether huge pages should be assumed unavailable. There is
// no portable syscall to query hugetlbfs availability cheaply; the CI
// environment variable convention used across the Go ecosystem's test
// suites is the pragmatic signal here, same as other example repos in
// this pack gate platform-specific behavior on it.
func onCI() bool {
	return os.Getenv("CI") != ""
}

// NewHugeMem allocates at least size bytes, rounded up to a multiple of
// the 2 MiB huge page size.
func NewHugeMem(size int, lg *log.Logger) (*HugeMem, error) {
	if lg == nil {
		lg = log.Default()
	}
	rounded := roundUpHuge(size)

	h := &HugeMem{log: lg.Module("membuf")}

	if !onCI() {
		raw, err := unix.Mmap(-1, 0, rounded, unix.PROT_READ|unix.PROT_WRITE,
			unix.MAP_PRIVATE|unix.MAP_ANONYMOUS|unix.MAP_HUGETLB)
		if err == nil {
			h.raw = raw
			h.region = raw
			h.hugePage = true
			if lockErr := unix.Mlock(raw); lockErr == nil {
				h.mlocked = true
			} else {
				h.log.Warn("mlock failed on huge-page mapping", "err", lockErr.Error())
			}
			return h, nil
		}
		h.log.Debug("huge pages unavailable, falling back to aligned window", "err", err.Error())
	}

	// Fallback: reserve a mapping twice the requested size and carve out
	// a huge-page-aligned window inside it, the same trick used by
	// allocators that need alignment guarantees mmap itself doesn't make.
	raw, err := unix.Mmap(-1, 0, rounded*2, unix.PROT_READ|unix.PROT_WRITE,
		unix.MAP_PRIVATE|unix.MAP_ANONYMOUS)
	if err != nil {
		return nil, errors.Wrap(err, "membuf: anonymous fallback mapping failed")
	}
	h.raw = raw
	h.region = alignWindow(raw, rounded)
	if !onCI() {
		if lockErr := unix.Mlock(h.region); lockErr == nil {
			h.mlocked = true
		}
	}
	return h, nil
}

func roundUpHuge(size int) int {
	if size <= 0 {
		size = hugePageSize
	}
	return ((size + hugePageSize - 1) / hugePageSize) * hugePageSize
}

func alignWindow(raw []byte, size int) []byte {
	base := uintptr(unsafe.Pointer(&raw[0]))
	aligned := (base + hugePageSize - 1) &^ (hugePageSize - 1)
	start := int(aligned - base)
	return raw[start : start+size]
}

// Bytes returns the usable, aligned memory window.
func (h *HugeMem) Bytes() []byte {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.region
}

// Release unmaps the backing region. It is safe to call more than once.
func (h *HugeMem) Release() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.released || h.raw == nil {
		h.released = true
		return nil
	}
	if h.mlocked {
		_ = unix.Munlock(h.raw)
	}
	err := unix.Munmap(h.raw)
	h.released = true
	h.raw, h.region = nil, nil
	return err
}
