// Package table holds table descriptors: the Master-side registry of
// tables a run can target, and the typed accessor kernels use to read and
// write a shard's contents without a dynamic downcast.
//
// The Piccolo source this package is modeled on represents every table as
// a TableBase pointer and has kernel code downcast it to a concrete
// TypedTable<K,V> at the call site. Go has no safe equivalent of that
// downcast, so Typed takes its place: a table is created once with its
// key/value types fixed, and a Descriptor returned by Registry.Lookup is
// type-asserted to the *Typed[K,V] the caller expects.
package table

import (
	"fmt"
	"sync"
)

// Helper is the Master-side context a table descriptor can call back
// into. The Master satisfies it; a descriptor learns which worker
// currently owns a given shard index, e.g. to decide where a remote
// write should be routed.
type Helper interface {
	// ShardOwner returns the rank currently serving shard, or false if no
	// worker has been assigned it yet.
	ShardOwner(shard int) (rank int, ok bool)
}

// Descriptor is the control-plane view of a table: identity, shard count,
// and the partition metadata completed tasks report. The work-stealer and
// dispatcher do not read that metadata. It implements shardrun.TableRef.
type Descriptor interface {
	ID() int
	NumShards() int
	// UpdatePartitions records partition metadata reported by a completed
	// task. The control plane never inspects the values itself; it is a
	// passthrough to whatever typed table is registered under this id.
	UpdatePartitions(shard int, size int64, info map[string]interface{})
	// SetHelper wires the Master's shard-ownership context into this
	// descriptor. The Master calls it once per run, registering itself
	// with every table it knows about.
	SetHelper(h Helper)
}

// Typed is a Descriptor specialized to a concrete key/value type. Kernel
// code that needs to read or write table contents fetches its tables by
// id through Lookup and type-asserts the registry entry to the
// *Typed[K, V] it expects; a mismatched type assertion fails loudly at
// the call site instead of silently misinterpreting memory, which is the
// failure mode a C++ downcast risks.
type Typed[K comparable, V any] struct {
	id        int
	numShards int

	mu         sync.Mutex
	partitions map[int]partition
	shards     []map[K]V
	helper     Helper
}

type partition struct {
	size int64
	info map[string]interface{}
}

// New constructs a Typed table with id and numShards fixed for its
// lifetime.
func New[K comparable, V any](id, numShards int) *Typed[K, V] {
	shards := make([]map[K]V, numShards)
	for i := range shards {
		shards[i] = map[K]V{}
	}
	return &Typed[K, V]{
		id:         id,
		numShards:  numShards,
		partitions: map[int]partition{},
		shards:     shards,
	}
}

func (t *Typed[K, V]) ID() int        { return t.id }
func (t *Typed[K, V]) NumShards() int { return t.numShards }

func (t *Typed[K, V]) UpdatePartitions(shard int, size int64, info map[string]interface{}) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.partitions[shard] = partition{size: size, info: info}
}

// SetHelper records h so Owner can answer shard-ownership queries.
func (t *Typed[K, V]) SetHelper(h Helper) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.helper = h
}

// Owner returns the rank currently serving shard, consulting the Master
// helper wired in by SetHelper. It reports ok=false before the first run
// has registered a helper.
func (t *Typed[K, V]) Owner(shard int) (rank int, ok bool) {
	t.mu.Lock()
	h := t.helper
	t.mu.Unlock()
	if h == nil {
		return 0, false
	}
	return h.ShardOwner(shard)
}

// PartitionSize returns the last reported size for shard, or 0 if no task
// has completed for it yet.
func (t *Typed[K, V]) PartitionSize(shard int) int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.partitions[shard].size
}

// Put writes key/value into shard's local map. Kernels call this from
// within a Method to populate a table's contents; it does no partitioning
// of its own, the caller must already know which shard key belongs to.
func (t *Typed[K, V]) Put(shard int, key K, value V) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.shards[shard][key] = value
}

// Get reads key from shard's local map.
func (t *Typed[K, V]) Get(shard int, key K) (V, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	v, ok := t.shards[shard][key]
	return v, ok
}

// Iter calls fn for every key/value pair currently stored in shard. fn
// must not mutate the table.
func (t *Typed[K, V]) Iter(shard int, fn func(K, V)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for k, v := range t.shards[shard] {
		fn(k, v)
	}
}

// Registry is the Master-side set of tables a run can address by id.
type Registry struct {
	mu     sync.Mutex
	tables map[int]Descriptor
	next   int
}

// NewRegistry returns an empty table registry.
func NewRegistry() *Registry {
	return &Registry{tables: map[int]Descriptor{}}
}

// Add assigns the next free table id to d and returns it.
func (r *Registry) Add(d Descriptor) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := r.next
	r.next++
	r.tables[id] = d
	return id
}

// Lookup returns the descriptor registered under id.
func (r *Registry) Lookup(id int) (Descriptor, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.tables[id]
	return d, ok
}

// MustLookup is Lookup but panics if id is unregistered; used at call
// sites where an unknown table id indicates a programming error in the
// run descriptor rather than a runtime condition to recover from.
func (r *Registry) MustLookup(id int) Descriptor {
	d, ok := r.Lookup(id)
	if !ok {
		panic(fmt.Sprintf("table: unknown table id %d", id))
	}
	return d
}
