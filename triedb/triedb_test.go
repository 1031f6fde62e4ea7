package triedb

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/xPOURY4/monad-sub013/engine"
	"github.com/xPOURY4/monad-sub013/nibbles"
	"github.com/xPOURY4/monad-sub013/types"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	dir := t.TempDir()
	db, err := Open(Options{
		DBNamePaths:   []string{filepath.Join(dir, "pool.dat")},
		Create:        true,
		ChunkCount:    8,
		HistoryLength: 16,
	})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func key(s string) nibbles.View { return nibbles.FromKeyBytes([]byte(s)) }

func TestCommitAndFindAcrossVersions(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	if _, err := db.Commit(ctx, engine.UpdateList{
		{Key: key("alpha"), Value: []byte("v1"), Version: 1},
	}, 1); err != nil {
		t.Fatalf("Commit(1): %v", err)
	}

	if _, err := db.Commit(ctx, engine.UpdateList{
		{Key: key("alpha"), Value: []byte("v2"), Version: 2},
	}, 2); err != nil {
		t.Fatalf("Commit(2): %v", err)
	}

	got, err := db.Find(ctx, 2, key("alpha"))
	if err != nil {
		t.Fatalf("Find(2): %v", err)
	}
	if string(got) != "v2" {
		t.Fatalf("expected v2 at version 2, got %q", got)
	}

	got, err = db.Find(ctx, 1, key("alpha"))
	if err != nil {
		t.Fatalf("Find(1): %v", err)
	}
	if string(got) != "v1" {
		t.Fatalf("expected v1 at version 1, got %q", got)
	}
}

func TestFindAsyncResolves(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	if _, err := db.Commit(ctx, engine.UpdateList{
		{Key: key("beta"), Value: []byte("v1"), Version: 1},
	}, 1); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	res := <-db.FindAsync(ctx, 1, key("beta"))
	if res.Err != nil {
		t.Fatalf("FindAsync: %v", res.Err)
	}
	if string(res.Value) != "v1" {
		t.Fatalf("expected v1, got %q", res.Value)
	}
}

func TestRewindNarrowsValidWindow(t *testing.T) {
	dir := t.TempDir()
	db, err := Open(Options{
		DBNamePaths:   []string{filepath.Join(dir, "pool.dat")},
		Create:        true,
		ChunkCount:    8,
		HistoryLength: 2,
	})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	ctx := context.Background()

	for v := uint64(1); v <= 5; v++ {
		if _, err := db.Commit(ctx, engine.UpdateList{
			{Key: key("gamma"), Value: []byte{byte(v)}, Version: v},
		}, v); err != nil {
			t.Fatalf("Commit(%d): %v", v, err)
		}
	}

	// Rewind(3) with a 2-version-deep history window: versions below 2
	// fall out the bottom (pruned), versions above 3 are no longer valid
	// (rewound away), and only [2,3] still resolve.
	if err := db.Rewind(3); err != nil {
		t.Fatalf("Rewind: %v", err)
	}

	if _, err := db.Find(ctx, 1, key("gamma")); err != ErrPrunedVersion {
		t.Fatalf("expected ErrPrunedVersion for a version below the retained window, got %v", err)
	}

	got, err := db.Find(ctx, 4, key("gamma"))
	if err != nil {
		t.Fatalf("Find(4): %v", err)
	}
	if got != nil {
		t.Fatalf("expected no value for a version past the rewind target, got %v", got)
	}

	got, err = db.Find(ctx, 3, key("gamma"))
	if err != nil {
		t.Fatalf("Find(3): %v", err)
	}
	if len(got) != 1 || got[0] != 3 {
		t.Fatalf("expected the version-3 value to survive the rewind, got %v", got)
	}
}

func TestRootHashMatchesEmptyTrieBeforeAnyCommit(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	got, err := db.RootHash(ctx, 1)
	if err != nil {
		t.Fatalf("RootHash: %v", err)
	}
	if got != types.EmptyRootHash {
		t.Fatalf("expected the empty-trie hash before any commit, got %s", got.Hex())
	}

	if _, err := db.Commit(ctx, engine.UpdateList{
		{Key: key("eps"), Value: []byte("v1"), Version: 1},
	}, 1); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	got, err = db.RootHash(ctx, 1)
	if err != nil {
		t.Fatalf("RootHash: %v", err)
	}
	if got.IsZero() || got == types.EmptyRootHash {
		t.Fatalf("expected a non-empty root hash after a commit, got %s", got.Hex())
	}
}

func TestLatestAndMinValidVersion(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	if _, _, ok := db.LatestVersion(); ok {
		t.Fatalf("expected no latest version on a fresh db")
	}

	for v := uint64(1); v <= 3; v++ {
		if _, err := db.Commit(ctx, engine.UpdateList{
			{Key: key("delta"), Value: []byte{byte(v)}, Version: v},
		}, v); err != nil {
			t.Fatalf("Commit(%d): %v", v, err)
		}
	}

	latest, _, ok := db.LatestVersion()
	if !ok || latest != 3 {
		t.Fatalf("expected latest version 3, got %d ok=%v", latest, ok)
	}
	if db.MinValidVersion() != 1 {
		t.Fatalf("expected min valid version 1, got %d", db.MinValidVersion())
	}
}

func TestPrometheusCollectorCollectsCommitMetrics(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	if _, err := db.Commit(ctx, engine.UpdateList{
		{Key: key("zeta"), Value: []byte("v1"), Version: 1},
	}, 1); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	collector := db.PrometheusCollector("triedb")
	ch := make(chan prometheus.Metric, 64)
	collector.Collect(ch)
	close(ch)

	if len(ch) == 0 {
		t.Fatalf("expected the collector to emit at least one metric after a commit")
	}
}
