package engine

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/xPOURY4/monad-sub013/asyncio"
	"github.com/xPOURY4/monad-sub013/cache"
	"github.com/xPOURY4/monad-sub013/nibbles"
	"github.com/xPOURY4/monad-sub013/pool"
	"github.com/xPOURY4/monad-sub013/writer"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	dir := t.TempDir()
	p, err := pool.Open(pool.Options{Paths: []string{filepath.Join(dir, "pool.dat")}, Create: true, ChunkCount: 8})
	if err != nil {
		t.Fatalf("pool.Open: %v", err)
	}
	t.Cleanup(func() { p.Close() })
	if err := p.File().Truncate(int64(pool.ChunkSize) * 16); err != nil {
		t.Fatalf("truncate: %v", err)
	}

	r := asyncio.New(p.File(), asyncio.Options{ReadBuffers: 8, WriteBuffers: 8, QueueDepth: 8, DirectIO: false})
	t.Cleanup(r.Close)

	fast := writer.NewFast(r, p)
	slow := writer.NewSlow(r, p)
	c := cache.New(1<<20, 1<<20)

	return New(p, r, fast, slow, c, DefaultConfig(), nil)
}

func keyOf(s string) nibbles.View {
	return nibbles.FromKeyBytes([]byte(s))
}

func TestCommitEmptyUpdatesIsNoOp(t *testing.T) {
	e := newTestEngine(t)
	root, err := e.Commit(context.Background(), 0, false, nil, 1)
	if err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if !root.IsZero() {
		t.Fatalf("expected zero root for a no-op commit, got %v", root)
	}
}

func TestCommitThenFindSingleKey(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	updates := UpdateList{
		{Key: keyOf("alpha"), Value: []byte("v1"), Version: 1},
	}
	root, err := e.Commit(ctx, 0, false, updates, 1)
	if err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if root.IsZero() {
		t.Fatalf("expected a non-zero root after inserting a key")
	}

	got, found, err := e.Find(ctx, root, true, keyOf("alpha"))
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if !found || string(got) != "v1" {
		t.Fatalf("expected to find v1, got %q found=%v", got, found)
	}

	_, found, err = e.Find(ctx, root, true, keyOf("missing"))
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if found {
		t.Fatalf("expected missing key to not be found")
	}
}

func TestCommitManyKeysAllResolve(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	keys := []string{"aa", "ab", "ac", "ba", "bb", "cccc", "dddd", "ee"}
	updates := make(UpdateList, 0, len(keys))
	for _, k := range keys {
		updates = append(updates, &Update{Key: keyOf(k), Value: []byte(k), Version: 1})
	}
	root, err := e.Commit(ctx, 0, false, updates, 1)
	if err != nil {
		t.Fatalf("Commit: %v", err)
	}

	for _, k := range keys {
		got, found, err := e.Find(ctx, root, true, keyOf(k))
		if err != nil {
			t.Fatalf("Find(%s): %v", k, err)
		}
		if !found || string(got) != k {
			t.Fatalf("Find(%s): expected %q, got %q found=%v", k, k, got, found)
		}
	}
}

func TestCommitDeleteRemovesKey(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	root, err := e.Commit(ctx, 0, false, UpdateList{
		{Key: keyOf("alpha"), Value: []byte("v1"), Version: 1},
		{Key: keyOf("beta"), Value: []byte("v2"), Version: 1},
	}, 1)
	if err != nil {
		t.Fatalf("Commit: %v", err)
	}

	root2, err := e.Commit(ctx, root, true, UpdateList{
		{Key: keyOf("alpha"), Value: nil, Version: 2},
	}, 2)
	if err != nil {
		t.Fatalf("Commit (delete): %v", err)
	}

	_, found, err := e.Find(ctx, root2, true, keyOf("alpha"))
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if found {
		t.Fatalf("expected alpha to be deleted")
	}

	got, found, err := e.Find(ctx, root2, true, keyOf("beta"))
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if !found || string(got) != "v2" {
		t.Fatalf("expected beta to survive the delete, got %q found=%v", got, found)
	}
}

func TestCommitDeletingEverythingYieldsEmptyRoot(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	root, err := e.Commit(ctx, 0, false, UpdateList{
		{Key: keyOf("only"), Value: []byte("v1"), Version: 1},
	}, 1)
	if err != nil {
		t.Fatalf("Commit: %v", err)
	}

	root2, err := e.Commit(ctx, root, true, UpdateList{
		{Key: keyOf("only"), Value: nil, Version: 2},
	}, 2)
	if err != nil {
		t.Fatalf("Commit (delete): %v", err)
	}
	if !root2.IsZero() {
		t.Fatalf("expected an empty trie after deleting the only key, got %v", root2)
	}
}

func TestFindOnAbsentRootReturnsNotFound(t *testing.T) {
	e := newTestEngine(t)
	_, found, err := e.Find(context.Background(), 0, false, keyOf("anything"))
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if found {
		t.Fatalf("expected not found against an absent root")
	}
}
