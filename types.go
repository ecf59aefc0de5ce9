package shardrun

import "fmt"

// TaskID names a single (table, shard) unit of work. TaskIDs are totally
// ordered lexicographically by (Table, Shard).
type TaskID struct {
	Table int
	Shard int
}

// Less reports whether t sorts before o.
func (t TaskID) Less(o TaskID) bool {
	return t.Table < o.Table || (t.Table == o.Table && t.Shard < o.Shard)
}

// String returns a canonical representation of the task id.
func (t TaskID) String() string {
	return fmt.Sprintf("%d:%d", t.Table, t.Shard)
}

// TableRef is the caller-supplied handle to a table that a run targets. It
// is intentionally minimal: the table's own semantics (accumulators,
// partitioning functions) are opaque to the control plane.
type TableRef interface {
	// ID is the table's registry id.
	ID() int
	// NumShards is the total number of shards the table is divided into.
	NumShards() int
}

// RunDescriptor describes a single invocation of a kernel method over a
// subset of a table's shards. It is immutable for the duration of the run.
type RunDescriptor struct {
	Kernel string
	Method string
	Table  TableRef
	Shards []int

	// Epoch is stamped by the Master when the run begins; it is not
	// caller-supplied. See Fingerprint.
	Epoch int
}

// StatsKey returns the process-wide MethodStats key for a (kernel, method)
// pair.
func StatsKey(kernel, method string) string {
	return kernel + ":" + method
}

// ShardInfo carries partition ownership/size metadata produced by a kernel
// run, forwarded to a table descriptor's UpdatePartitions after a task
// completes. The contents beyond Table/Shard are opaque to the control
// plane; kernels and table descriptors agree on what Info holds.
type ShardInfo struct {
	Table int
	Shard int
	// Size is an advisory count (records, bytes, whatever the table
	// descriptor wants to track) recorded by UpdatePartitions. Task
	// scheduling weights are not refreshed from it.
	Size int64
	// Info carries additional table-specific partition metadata. The core
	// never inspects it.
	Info map[string]interface{}
}
