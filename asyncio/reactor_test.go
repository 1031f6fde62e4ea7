package asyncio

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func openTestFile(t *testing.T) *os.File {
	t.Helper()
	path := filepath.Join(t.TempDir(), "reactor.dat")
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := f.Truncate(1 << 20); err != nil {
		t.Fatalf("truncate: %v", err)
	}
	t.Cleanup(func() { f.Close() })
	return f
}

func TestWriteThenReadRoundTrips(t *testing.T) {
	f := openTestFile(t)
	r := New(f, Options{ReadBuffers: 4, WriteBuffers: 4, QueueDepth: 4, DirectIO: false})
	defer r.Close()

	payload := make([]byte, ReadBufferSize)
	for i := range payload {
		payload[i] = byte(i)
	}

	wf, err := r.Write(context.Background(), 0, payload)
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	if _, err := wf.Wait(); err != nil {
		t.Fatalf("write future: %v", err)
	}

	rf, err := r.Read(context.Background(), 0, ReadBufferSize)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	got, err := rf.Wait()
	if err != nil {
		t.Fatalf("read future: %v", err)
	}
	for i := range payload {
		if got[i] != payload[i] {
			t.Fatalf("byte %d mismatch: got %d want %d", i, got[i], payload[i])
		}
	}
}

func TestReadBufferExhaustionIsFatal(t *testing.T) {
	f := openTestFile(t)
	r := New(f, Options{ReadBuffers: 1, WriteBuffers: 1, QueueDepth: 8, DirectIO: false})
	defer r.Close()

	fut, err := r.Read(context.Background(), 0, ReadBufferSize)
	if err != nil {
		t.Fatalf("first read should succeed: %v", err)
	}

	if _, err := r.Read(context.Background(), ReadBufferSize, ReadBufferSize); err == nil {
		t.Fatalf("expected buffer exhaustion error")
	} else if _, ok := err.(ErrBufferExhausted); !ok {
		t.Fatalf("expected ErrBufferExhausted, got %T: %v", err, err)
	}

	fut.Wait()
}

func TestWaitUntilDoneDrainsInFlight(t *testing.T) {
	f := openTestFile(t)
	r := New(f, Options{ReadBuffers: 8, WriteBuffers: 8, QueueDepth: 8, DirectIO: false})

	for i := 0; i < 4; i++ {
		if _, err := r.Write(context.Background(), uint64(i*WriteBufferSize), make([]byte, WriteBufferSize)); err != nil {
			t.Fatalf("Write: %v", err)
		}
	}
	r.WaitUntilDone()
}
