// Package transport provides the ranked, tag-filtered messaging facade
// the exec package schedules over. A Transport names peers by small
// integer rank (0 is always the Master) and delivers messages tagged by
// kind, so the dispatcher's non-blocking poll-then-sleep loop never has
// to know whether a reply travels over an in-process channel or an RPC
// round trip to a remote machine.
package transport

import "context"

// Tag identifies the kind of message carried by an envelope. The control
// plane polls for specific tags (KernelDone, FlushResponse, ...); a
// Transport implementation is free to carry them however it likes
// underneath, as long as TryRead/Read only ever return envelopes
// addressed to the requested tag.
type Tag int

const (
	// TagRegisterWorker carries shardrun.RegisterWorker, worker to master.
	TagRegisterWorker Tag = iota
	// TagShardAssignment carries shardrun.ShardAssignment, master to worker.
	TagShardAssignment
	// TagKernelRequest carries shardrun.KernelRequest, master to worker.
	TagKernelRequest
	// TagKernelDone carries shardrun.KernelDone, worker to master.
	TagKernelDone
	// TagFlushRequest carries shardrun.FlushRequest, master to worker.
	TagFlushRequest
	// TagFlushResponse carries shardrun.FlushResponse, worker to master.
	TagFlushResponse
	// TagApplyRequest carries shardrun.ApplyRequest, master to worker.
	TagApplyRequest
	// TagApplyResponse carries shardrun.ApplyResponse, worker to master.
	TagApplyResponse
	// TagHeartbeat carries shardrun.Heartbeat, worker to master.
	TagHeartbeat
	// TagShutdown carries shardrun.ShutdownRequest, master to all workers.
	TagShutdown
)

// Envelope is a received message together with the rank that sent it.
type Envelope struct {
	Tag  Tag
	Rank int
	Msg  interface{}
}

// Transport is the messaging contract the exec package schedules its
// dispatch, reap, and barrier loops over.
type Transport interface {
	// Rank returns this peer's own rank. The master is always rank 0.
	Rank() int
	// Size returns the number of peers in the run, master included.
	Size() int

	// Send delivers msg to dest, tagged as tag. It does not wait for any
	// reply; the caller polls for one separately via TryRead/Read on the
	// appropriate tag.
	Send(ctx context.Context, dest int, tag Tag, msg interface{}) error

	// Broadcast delivers msg to every peer other than self, tagged as
	// tag, without waiting for replies.
	Broadcast(ctx context.Context, tag Tag, msg interface{}) error

	// SyncBroadcast delivers msg to every peer other than self and blocks
	// until every peer has been sent it successfully or ctx is done. It
	// does not wait for application-level replies; callers that need
	// acknowledgement still poll for those separately. The Master uses it
	// for shard assignments, which every peer must have before dispatch
	// proceeds.
	SyncBroadcast(ctx context.Context, tag Tag, msg interface{}) error

	// TryRead returns the next pending envelope for tag without
	// blocking. ok is false if none is available yet. This is the
	// primitive the completion reaper and heartbeat drain poll with.
	TryRead(tag Tag) (Envelope, bool)

	// Read blocks until an envelope for tag is available or ctx is done.
	Read(ctx context.Context, tag Tag) (Envelope, error)

	// Close releases any resources held by the transport and wakes any
	// readers blocked in Read.
	Close() error
}
