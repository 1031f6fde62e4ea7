// Package asyncio implements the async I/O engine: a cooperative
// reactor over page-aligned reads and writes against the pool's backing
// file, with registered buffer pools and fatal-on-exhaustion semantics.
//
// The original design is a single-threaded reactor over a kernel
// completion-queue interface (io_uring). Go has no direct equivalent in
// the dependency pack, so the reactor here keeps the same external
// contract -- read/write return a future, poll_nonblocking drains
// completions, wait_until_done blocks until the in-flight set is empty --
// while dispatching each pread/pwrite syscall on its own goroutine, gated
// by a golang.org/x/sync/semaphore sized to the queue depth and tracked
// by a sync.WaitGroup, which is the idiomatic Go substitute for a single
// submission queue.
package asyncio

import (
	"context"
	"os"
	"sync"
	"sync/atomic"

	"github.com/cockroachdb/errors"
	"github.com/tklauser/numcpus"
	"golang.org/x/sync/semaphore"
	"golang.org/x/sys/unix"

	"github.com/xPOURY4/monad-sub013/log"
	"github.com/xPOURY4/monad-sub013/metrics"
)

// Options configures a Reactor, mirroring io_uring's rd_buffers/wr_buffers
// and uring_entries/sq_thread_cpu tunables.
type Options struct {
	ReadBuffers   int // rd_buffers
	WriteBuffers  int // wr_buffers
	QueueDepth    int // uring_entries: concurrent in-flight operations
	DirectIO      bool
	Logger        *log.Logger
}

// DefaultOptions returns the configuration used when none is supplied.
// QueueDepth scales with the host's online CPU count -- the closest Go
// analogue to sq_thread_cpu's intent of matching submission concurrency to
// available hardware parallelism, since there is no single kernel
// submission thread to pin here.
func DefaultOptions() Options {
	depth := 128
	if n, err := numcpus.GetOnline(); err == nil && n > 0 {
		depth = n * 32
	}
	return Options{ReadBuffers: 64, WriteBuffers: 16, QueueDepth: depth, DirectIO: true}
}

// Future is the result of a submitted read or write, resolved when the
// operation's goroutine finishes and closes the future's own done
// channel. It is not
// safe to share across goroutines other than the one driving the
// reactor's Poll/WaitUntilDone loop.
type Future struct {
	done chan struct{}
	buf  []byte
	err  error
}

// Ready reports whether the future has already resolved, for
// poll_nonblocking-style inspection without consuming it.
func (f *Future) Ready() bool {
	select {
	case <-f.done:
		return true
	default:
		return false
	}
}

// Wait blocks until the future resolves and returns its result. This is
// the Go analogue of awaiting an io_uring completion's sender/receiver
// chain -- composing futures is just ordinary goroutine/channel
// composition rather than a bespoke coroutine type.
func (f *Future) Wait() ([]byte, error) {
	<-f.done
	return f.buf, f.err
}

func (f *Future) resolve(buf []byte, err error) {
	f.buf, f.err = buf, err
	close(f.done)
}

// Reactor owns the registered buffer pools and the backing file, and
// drives reads/writes against it. A single goroutine (the caller's) must
// own one Reactor; it is not thread-safe, matching io_uring's rule that
// each kernel thread owns its own instance.
type Reactor struct {
	file *os.File
	log  *log.Logger

	rdPool *bufferPool
	wrPool *bufferPool

	sem      *semaphore.Weighted
	wg       sync.WaitGroup
	inFlight int64

	directIO bool
}

// New opens (or reuses) file for page-aligned I/O and registers the
// configured read/write buffer pools up front -- registration happens
// once, at construction, never on the hot path.
func New(file *os.File, opts Options) *Reactor {
	if opts.ReadBuffers == 0 {
		opts = DefaultOptions()
	}
	lg := opts.Logger
	if lg == nil {
		lg = log.Default()
	}
	r := &Reactor{
		file:     file,
		log:      lg.Module("asyncio"),
		rdPool:   newReadBufferPool(opts.ReadBuffers),
		wrPool:   newWriteBufferPool(opts.WriteBuffers),
		sem:      semaphore.NewWeighted(int64(opts.QueueDepth)),
		directIO: opts.DirectIO,
	}
	return r
}

// OpenDirect opens path with O_DIRECT, falling back to buffered I/O when
// the open with that flag fails; direct I/O requires page-aligned buffers and
// offsets, which the writer package and this package's fixed buffer
// sizes both guarantee.
func OpenDirect(path string, flag int) (*os.File, error) {
	f, err := os.OpenFile(path, flag|unix.O_DIRECT, 0o644)
	if err != nil {
		// O_DIRECT is unavailable on some filesystems (tmpfs, overlayfs
		// in CI); fall back to buffered I/O rather than fail the whole
		// pool, matching membuf's huge-page CI fallback.
		return os.OpenFile(path, flag, 0o644)
	}
	return f, nil
}

// Read issues a page-aligned read of span bytes at fileOffset, returning
// a Future resolved once the underlying pread completes. span must be a
// multiple of the 4 KiB page.
func (r *Reactor) Read(ctx context.Context, fileOffset uint64, span int) (*Future, error) {
	if span <= 0 || span%ReadBufferSize != 0 {
		return nil, errors.Newf("asyncio: read span %d is not a multiple of the %d-byte page", span, ReadBufferSize)
	}
	pages := span / ReadBufferSize

	// A node's worst-case disk size spans at most 3 pages, so most
	// reads acquire a single registered buffer; acquire one per page and
	// copy into a fresh result slice, releasing the registered buffers
	// back to the pool as soon as the copy is done.
	bufs := make([][]byte, 0, pages)
	for i := 0; i < pages; i++ {
		b, err := r.rdPool.acquire()
		if err != nil {
			for _, held := range bufs {
				r.rdPool.release(held)
			}
			return nil, err
		}
		bufs = append(bufs, b)
	}

	if err := r.sem.Acquire(ctx, 1); err != nil {
		for _, held := range bufs {
			r.rdPool.release(held)
		}
		return nil, err
	}
	atomic.AddInt64(&r.inFlight, 1)
	metrics.InFlightReads.Set(atomic.LoadInt64(&r.inFlight))

	fut := &Future{done: make(chan struct{})}
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer r.sem.Release(1)
		defer func() {
			atomic.AddInt64(&r.inFlight, -1)
			metrics.InFlightReads.Set(atomic.LoadInt64(&r.inFlight))
		}()
		defer func() {
			for _, b := range bufs {
				r.rdPool.release(b)
			}
		}()

		out := make([]byte, span)
		off := fileOffset
		for i, b := range bufs {
			n, err := r.file.ReadAt(b, int64(off))
			if err != nil {
				fut.resolve(nil, err)
				return
			}
			copy(out[i*ReadBufferSize:], b[:n])
			off += uint64(ReadBufferSize)
		}
		fut.resolve(out, nil)
	}()
	return fut, nil
}

// Write issues a page-aligned write of data at fileOffset.
func (r *Reactor) Write(ctx context.Context, fileOffset uint64, data []byte) (*Future, error) {
	if len(data) > WriteBufferSize {
		return nil, ErrBufferExhausted{Kind: "write"}
	}
	wbuf, err := r.wrPool.acquire()
	if err != nil {
		return nil, err
	}
	n := copy(wbuf, data)

	if err := r.sem.Acquire(ctx, 1); err != nil {
		r.wrPool.release(wbuf)
		return nil, err
	}
	atomic.AddInt64(&r.inFlight, 1)

	fut := &Future{done: make(chan struct{})}
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer r.sem.Release(1)
		defer r.wrPool.release(wbuf)
		defer atomic.AddInt64(&r.inFlight, -1)
		_, err := r.file.WriteAt(wbuf[:n], int64(fileOffset))
		fut.resolve(nil, err)
	}()
	return fut, nil
}

// PollNonblocking is a compatibility shim for callers ported from the
// sender/receiver style: since completions here resolve their own
// futures via channels rather than a shared queue, there is nothing to
// drain explicitly. It returns immediately.
func (r *Reactor) PollNonblocking(maxEvents int) {}

// WaitUntilDone blocks until every future issued by this reactor has
// resolved. Callers must call this before dropping the Reactor, the same
// "mandatory drain before destruction" rule io_uring's C API enforces in
// its own cleanup path -- in Go that means before the Reactor goes out
// of scope or its backing file is closed.
func (r *Reactor) WaitUntilDone() {
	r.wg.Wait()
}

// Close waits for in-flight operations to drain, then releases the
// reactor's resources. It does not close the backing file, which the
// pool owns.
func (r *Reactor) Close() {
	r.WaitUntilDone()
}
