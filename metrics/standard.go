package metrics

// Pre-defined metrics for the trie storage engine. All metrics live in
// DefaultRegistry so they are globally accessible without passing a
// registry around. The packages that record metrics (asyncio, cache,
// compact, engine, triedb) update these package-level variables directly;
// none of them takes an injected *Registry.

var (
	// ---- Commit / find path ----

	// CommitLatency records end-to-end commit() duration in microseconds.
	CommitLatency = DefaultRegistry.Histogram("trie.commit_latency_us")
	// CommitsTotal counts completed commits.
	CommitsTotal = DefaultRegistry.Counter("trie.commits_total")
	// FindLatency records find() duration in microseconds.
	FindLatency = DefaultRegistry.Histogram("trie.find_latency_us")
	// NodesWritten counts node.Node values appended by either writer.
	NodesWritten = DefaultRegistry.Counter("trie.nodes_written")

	// ---- Node cache ----

	// CacheHits counts node cache hits.
	CacheHits = DefaultRegistry.Counter("trie.cache_hits")
	// CacheMisses counts node cache misses.
	CacheMisses = DefaultRegistry.Counter("trie.cache_misses")
	// CacheBytes tracks current cache occupancy in bytes.
	CacheBytes = DefaultRegistry.Gauge("trie.cache_bytes")

	// ---- Storage pool ----

	// ChunksFree tracks the size of the pool's free chunk list.
	ChunksFree = DefaultRegistry.Gauge("pool.chunks_free")
	// ChunksFast tracks the size of the fast (hot) chunk list.
	ChunksFast = DefaultRegistry.Gauge("pool.chunks_fast")
	// ChunksSlow tracks the size of the slow (compacted) chunk list.
	ChunksSlow = DefaultRegistry.Gauge("pool.chunks_slow")
	// MetadataFlushes counts pool metadata flush operations.
	MetadataFlushes = DefaultRegistry.Counter("pool.metadata_flushes")

	// ---- Async I/O ----

	// ReadBufferExhaustion counts fatal read-buffer exhaustion events.
	ReadBufferExhaustion = DefaultRegistry.Counter("asyncio.read_buffer_exhaustion")
	// WriteBufferExhaustion counts fatal write-buffer exhaustion events.
	WriteBufferExhaustion = DefaultRegistry.Counter("asyncio.write_buffer_exhaustion")
	// InFlightReads tracks reads submitted but not yet completed.
	InFlightReads = DefaultRegistry.Gauge("asyncio.in_flight_reads")

	// ---- Compaction ----

	// CompactionsTotal counts completed compaction cycles.
	CompactionsTotal = DefaultRegistry.Counter("compactor.cycles_total")
	// NodesRelocated counts nodes copied forward by the compactor.
	NodesRelocated = DefaultRegistry.Counter("compactor.nodes_relocated")
)
