package transport

import (
	"context"
	"fmt"
	"sync"

	"github.com/shardrun/shardrun/ctxsync"
)

// local is an in-process Transport backed by per-tag queues, one set per
// peer. It requires no network and is used for tests and single-process
// runs where every worker is a goroutine rather than a separate machine.
type local struct {
	rank int
	hub  *localHub
}

// localHub is the shared state every peer in a local run holds a
// reference to. Queues are keyed by (destination rank, tag).
type localHub struct {
	mu      sync.Mutex
	cond    *ctxsync.Cond
	size    int
	closed  bool
	queues  map[int]map[Tag][]Envelope
}

// NewLocalCluster returns size Transports, one per rank, that deliver
// messages to each other in-process. Rank 0 is conventionally the
// master.
func NewLocalCluster(size int) []Transport {
	hub := &localHub{size: size, queues: map[int]map[Tag][]Envelope{}}
	hub.cond = ctxsync.NewCond(&hub.mu)
	for r := 0; r < size; r++ {
		hub.queues[r] = map[Tag][]Envelope{}
	}
	peers := make([]Transport, size)
	for r := 0; r < size; r++ {
		peers[r] = &local{rank: r, hub: hub}
	}
	return peers
}

func (l *local) Rank() int { return l.rank }
func (l *local) Size() int { return l.hub.size }

func (l *local) Send(ctx context.Context, dest int, tag Tag, msg interface{}) error {
	h := l.hub
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return fmt.Errorf("transport: closed")
	}
	if dest < 0 || dest >= h.size {
		return fmt.Errorf("transport: rank %d out of range [0,%d)", dest, h.size)
	}
	h.queues[dest][tag] = append(h.queues[dest][tag], Envelope{Tag: tag, Rank: l.rank, Msg: msg})
	h.cond.Broadcast()
	return nil
}

func (l *local) Broadcast(ctx context.Context, tag Tag, msg interface{}) error {
	for r := 0; r < l.hub.size; r++ {
		if r == l.rank {
			continue
		}
		if err := l.Send(ctx, r, tag, msg); err != nil {
			return err
		}
	}
	return nil
}

func (l *local) SyncBroadcast(ctx context.Context, tag Tag, msg interface{}) error {
	// Delivery into the hub's queues is synchronous under the hub lock,
	// so there is nothing further to wait for here; Broadcast has
	// already completed once every peer's queue holds the message.
	return l.Broadcast(ctx, tag, msg)
}

func (l *local) TryRead(tag Tag) (Envelope, bool) {
	h := l.hub
	h.mu.Lock()
	defer h.mu.Unlock()
	q := h.queues[l.rank][tag]
	if len(q) == 0 {
		return Envelope{}, false
	}
	e := q[0]
	h.queues[l.rank][tag] = q[1:]
	return e, true
}

func (l *local) Read(ctx context.Context, tag Tag) (Envelope, error) {
	h := l.hub
	h.mu.Lock()
	defer h.mu.Unlock()
	for {
		q := h.queues[l.rank][tag]
		if len(q) > 0 {
			e := q[0]
			h.queues[l.rank][tag] = q[1:]
			return e, nil
		}
		if h.closed {
			return Envelope{}, fmt.Errorf("transport: closed")
		}
		if err := h.cond.Wait(ctx); err != nil {
			return Envelope{}, err
		}
	}
}

func (l *local) Close() error {
	h := l.hub
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	h.cond.Broadcast()
	return nil
}
