package shardrun

import (
	"encoding/binary"

	"github.com/spaolacci/murmur3"
)

// Fingerprint stamps a (table, shard, epoch) triple so that a worker's
// reply can be matched against the run it was issued for. Reaping a reply
// whose fingerprint doesn't match the Master's current epoch is a stale
// completion from a prior or abandoned run and is discarded rather than
// applied.
func Fingerprint(table, shard, epoch int) uint32 {
	var buf [12]byte
	binary.BigEndian.PutUint32(buf[0:4], uint32(table))
	binary.BigEndian.PutUint32(buf[4:8], uint32(shard))
	binary.BigEndian.PutUint32(buf[8:12], uint32(epoch))
	return murmur3.Sum32(buf[:])
}

// RegisterWorker is sent by a worker to the Master immediately after
// transport handshake completes. Rank is the peer's transport-assigned
// rank; Addr is advisory, used only for status display.
type RegisterWorker struct {
	Rank int
	Addr string
}

// ShardAssignment carries the authoritative worker assignment for every
// shard of one table, identical for every recipient: the Master
// broadcasts it at the start of every run and again after each steal,
// and each worker keeps only the entry for its own rank.
type ShardAssignment struct {
	Table  int
	ByRank map[int][]int // worker rank -> shards of Table it serves
}

// KernelRequest dispatches one task to the worker that owns it.
type KernelRequest struct {
	Epoch       int
	Fingerprint uint32
	Kernel      string
	Method      string
	Table       int
	Shard       int
	// Stolen is true if this shard was reassigned from another worker
	// mid-run; the receiving worker should not assume it already has any
	// local state for the shard.
	Stolen bool
}

// KernelDone reports task completion back to the Master. Shards is a
// list, not a single value, because one kernel completion may report
// partition metadata for more than one shard (the original's
// repeated-field protobuf contract); the reaper forwards every entry to
// its table descriptor's UpdatePartitions.
type KernelDone struct {
	Epoch       int
	Fingerprint uint32
	Table       int
	Shard       int
	Shards      []ShardInfo
	Err         string
}

// FlushRequest asks a worker to propagate its buffered cross-shard table
// updates without yet making them visible to readers.
type FlushRequest struct {
	Epoch int
}

// FlushResponse reports a worker's flush completion. UpdatesDone is the
// count of cross-shard updates the worker propagated during this round;
// a flush round is quiescent only once every worker reports zero.
type FlushResponse struct {
	Epoch       int
	Fingerprint uint32
	UpdatesDone int
	Err         string
}

// ApplyRequest asks a worker to make a prior flush's writes visible. The
// Master only issues ApplyRequest once every worker has acknowledged
// FlushResponse for the same epoch.
type ApplyRequest struct {
	Epoch int
}

// ApplyResponse reports a worker's apply completion.
type ApplyResponse struct {
	Epoch       int
	Fingerprint uint32
	Err         string
}

// ShutdownRequest tells a worker the run is over and it should exit.
type ShutdownRequest struct{}

// Heartbeat is sent periodically by a worker, whether or not the
// Master's heartbeat timeout is configured. When the timeout is above
// zero, a worker silent for more than twice the timeout is marked dead.
type Heartbeat struct {
	Rank  int
	Epoch int
}
