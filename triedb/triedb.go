// Package triedb exposes the pool-handle API: commit, find, rewind, and
// the exhaustive configuration surface, wiring together the storage
// pool, async reactor, writers, node cache, history index, compactor,
// and update engine into the one object callers hold.
package triedb

import (
	"context"
	"path/filepath"
	"sync"

	"github.com/cockroachdb/errors"

	"github.com/xPOURY4/monad-sub013/asyncio"
	"github.com/xPOURY4/monad-sub013/cache"
	"github.com/xPOURY4/monad-sub013/compact"
	"github.com/xPOURY4/monad-sub013/engine"
	"github.com/xPOURY4/monad-sub013/history"
	"github.com/xPOURY4/monad-sub013/log"
	"github.com/xPOURY4/monad-sub013/metrics"
	"github.com/xPOURY4/monad-sub013/nibbles"
	"github.com/xPOURY4/monad-sub013/node"
	"github.com/xPOURY4/monad-sub013/pool"
	"github.com/xPOURY4/monad-sub013/types"
	"github.com/xPOURY4/monad-sub013/writer"
)

// ErrPrunedVersion is returned by Find/Rewind when the requested version
// fell out of the retained history window.
var ErrPrunedVersion = errors.New("triedb: version pruned")

// compactionFreeThreshold triggers a compaction cycle once the free list
// drops below this fraction of the pool's total chunk count.
const compactionFreeThreshold = 0.1

// Options is the exhaustive configuration surface for Open.
type Options struct {
	DBNamePaths             []string // dbname_paths
	Append                  bool
	Create                  bool
	Compaction              bool
	RewindToLatestFinalized bool
	ChunkCount              uint32
	RdBuffers               int
	WrBuffers               int
	UringEntries            int
	HistoryLength           uint64
	Logger                  *log.Logger
}

// DB is a writable pool handle: `Closed -> Open(writable) -> Closed`.
// Only one may exist per pool at a time, enforced transitively by
// pool.Open's advisory lock.
type DB struct {
	mu sync.Mutex

	pool      *pool.Pool
	reactor   *asyncio.Reactor
	fast      *writer.Writer
	slow      *writer.Writer
	cache     *cache.Cache
	history   *history.Ring
	redirect  *compact.RedirectStore
	compactor *compact.Compactor
	engine    *engine.Engine

	historyLength uint64
	compaction    bool
	log           *log.Logger
}

// Open implements `Closed -> Open(writable)`.
func Open(opts Options) (*DB, error) {
	if len(opts.DBNamePaths) == 0 {
		return nil, errors.New("triedb: no backing paths supplied")
	}
	lg := opts.Logger
	if lg == nil {
		lg = log.Default()
	}

	p, err := pool.Open(pool.Options{
		Paths: opts.DBNamePaths, Append: opts.Append, Create: opts.Create,
		ChunkCount: opts.ChunkCount, Logger: lg,
	})
	if err != nil {
		return nil, errors.Wrap(err, "triedb: opening pool")
	}

	aOpts := asyncio.DefaultOptions()
	if opts.RdBuffers > 0 {
		aOpts.ReadBuffers = opts.RdBuffers
	}
	if opts.WrBuffers > 0 {
		aOpts.WriteBuffers = opts.WrBuffers
	}
	if opts.UringEntries > 0 {
		aOpts.QueueDepth = opts.UringEntries
	}
	aOpts.Logger = lg
	reactor := asyncio.New(p.File(), aOpts)

	fast := writer.NewFast(reactor, p)
	slow := writer.NewSlow(reactor, p)
	c := cache.New(256<<20, 256<<20)
	ring := history.Open(p.File(), 0)

	historyLength := opts.HistoryLength
	if historyLength == 0 {
		historyLength = uint64(pool.HistoryRingBytes()) / 24
	}

	redirectPath := filepath.Join(filepath.Dir(opts.DBNamePaths[0]), filepath.Base(opts.DBNamePaths[0])+".redirect")
	rs, err := compact.OpenRedirectStore(redirectPath)
	if err != nil {
		p.Close()
		return nil, errors.Wrap(err, "triedb: opening redirect store")
	}

	eng := engine.New(p, reactor, fast, slow, c, engine.DefaultConfig(), lg)

	comp, err := compact.New(p, slow, c, rs, eng, lg)
	if err != nil {
		rs.Close()
		p.Close()
		return nil, errors.Wrap(err, "triedb: constructing compactor")
	}

	db := &DB{
		pool: p, reactor: reactor, fast: fast, slow: slow, cache: c,
		history: ring, redirect: rs, compactor: comp, engine: eng,
		historyLength: historyLength, compaction: opts.Compaction,
		log: lg.Module("triedb"),
	}

	fastDurable, slowDurable := p.DurableHeads()
	ring.Reconcile(fastDurable, slowDurable, func(root node.FileOffset) bool {
		return p.ChunkList(pool.ChunkID(root.ChunkID())) == pool.ListFast
	})

	if opts.RewindToLatestFinalized {
		if latest, ok := ring.Latest(); ok {
			if err := ring.Rewind(latest.Version, historyLength); err != nil {
				db.Close()
				return nil, errors.Wrap(err, "triedb: rewinding to latest finalized version on open")
			}
		}
	}

	return db, nil
}

// Commit applies updates as version.
func (db *DB) Commit(ctx context.Context, updates engine.UpdateList, version uint64) (node.FileOffset, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	var root node.FileOffset
	hasRoot := false
	if latest, ok := db.history.Latest(); ok {
		root, hasRoot = latest.RootOffset, true
	}

	newRoot, err := db.engine.Commit(ctx, root, hasRoot, updates, version)
	if err != nil {
		return 0, err
	}

	fastOff, _ := db.fast.AbsoluteOffset()
	slowOff, _ := db.slow.AbsoluteOffset()
	if err := db.pool.AdvanceHeads(fastOff, slowOff); err != nil {
		return 0, errors.Wrap(err, "triedb: advancing durable heads")
	}

	if err := db.history.Record(version, newRoot); err != nil {
		return 0, errors.Wrap(err, "triedb: recording version")
	}
	metrics.ChunksFree.Set(int64(db.pool.Stats().Free))

	if db.compaction {
		db.maybeCompact(ctx)
	}
	return newRoot, nil
}

// Find resolves key against the root recorded for version -- version is
// resolved to a root through the history index first.
func (db *DB) Find(ctx context.Context, version uint64, key nibbles.View) ([]byte, error) {
	if version < db.history.MinValidVersion() {
		return nil, ErrPrunedVersion
	}
	rec, ok := db.history.Lookup(version)
	if !ok {
		return nil, nil
	}
	val, found, err := db.engine.Find(ctx, rec.RootOffset, true, key)
	if err != nil || !found {
		return nil, err
	}
	return val, nil
}

// RootHash returns the Merkle commitment of version's root -- the
// cryptographic value callers compare for equality, as distinct from the
// storage-address FileOffset the rest of this API deals in. A version
// below MinValidVersion fails with ErrPrunedVersion, as in Find; a version
// in range with no committed root reports the canonical empty-trie hash,
// matching how Find treats an absent root as "nothing stored" rather
// than an error.
func (db *DB) RootHash(ctx context.Context, version uint64) (types.Hash, error) {
	if version < db.history.MinValidVersion() {
		return types.Hash{}, ErrPrunedVersion
	}
	rec, ok := db.history.Lookup(version)
	ref, err := db.engine.RootHash(ctx, rec.RootOffset, ok)
	if err != nil {
		return types.Hash{}, errors.Wrap(err, "triedb: resolving root hash")
	}
	return types.BytesToHash(ref), nil
}

// FindResult is the resolved value of an asynchronous find.
type FindResult struct {
	Value []byte
	Err   error
}

// FindAsync is the Future-returning variant of Find.
func (db *DB) FindAsync(ctx context.Context, version uint64, key nibbles.View) <-chan FindResult {
	ch := make(chan FindResult, 1)
	go func() {
		v, err := db.Find(ctx, version, key)
		ch <- FindResult{Value: v, Err: err}
	}()
	return ch
}

// Rewind narrows the valid version window to [..., target].
func (db *DB) Rewind(target uint64) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	if err := db.history.Rewind(target, db.historyLength); err != nil {
		return errors.Wrap(err, "triedb: rewind")
	}
	return nil
}

// LatestVersion reports the highest currently-valid version and its root.
func (db *DB) LatestVersion() (version uint64, root node.FileOffset, ok bool) {
	rec, ok := db.history.Latest()
	return rec.Version, rec.RootOffset, ok
}

// MinValidVersion reports the oldest version Find will still resolve.
func (db *DB) MinValidVersion() uint64 { return db.history.MinValidVersion() }

// PrometheusCollector adapts metrics.DefaultRegistry, which every handle
// in the process shares, onto the standard prometheus.Collector interface
// under namespace, for callers that want to
// register it with their own prometheus.Registry rather than consume
// metrics.DefaultRegistry directly.
func (db *DB) PrometheusCollector(namespace string) *metrics.PrometheusCollector {
	return metrics.NewPrometheusCollector(metrics.DefaultRegistry, namespace)
}

// maybeCompact runs one compaction cycle when the free list is running
// low, reclaiming the oldest fast or slow chunk. Errors are logged
// rather than propagated: compaction never blocks a commit.
func (db *DB) maybeCompact(ctx context.Context) {
	stats := db.pool.Stats()
	if stats.Total == 0 || float64(stats.Free)/float64(stats.Total) > compactionFreeThreshold {
		return
	}

	target, ok := db.pool.ListHead(pool.ListFast)
	if !ok {
		target, ok = db.pool.ListHead(pool.ListSlow)
	}
	if !ok {
		return
	}

	roots := db.history.LiveRoots()
	if err := db.compactor.RunCycle(ctx, target, roots); err != nil {
		db.log.Error("compaction cycle failed", "chunk", target, "err", err.Error())
	}
}

// Close releases every resource this handle owns.
func (db *DB) Close() error {
	db.mu.Lock()
	defer db.mu.Unlock()

	db.reactor.Close()
	if err := db.redirect.Close(); err != nil {
		db.log.Warn("closing redirect store", "err", err.Error())
	}
	return db.pool.Close()
}
