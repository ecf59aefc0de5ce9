package transport

import (
	"context"
	"encoding/gob"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/limiter"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/retry"
	"github.com/grailbio/bigmachine"
	"github.com/shardrun/shardrun/ctxsync"
	"golang.org/x/sync/errgroup"
)

func init() {
	gob.Register(Envelope{})
}

// retryPolicy governs delivery retries against a machine that is
// temporarily unreachable; it is the same shape of backoff the teacher
// uses for its own machine calls.
var retryPolicy = retry.Backoff(200*time.Millisecond, 5*time.Second, 1.5)

var fatalErr = errors.E(errors.Fatal)

// bigmachineTransport is the production Transport: every peer (master and
// workers alike) runs a bigmachine.B, the master dials every worker
// machine once at startup, and messages travel as RetryCall invocations
// against a small Worker RPC service whose only method enqueues the
// delivered envelope for the local peer's TryRead/Read to drain. This
// turns bigmachine's call/reply RPC model into the suspend-point,
// poll-don't-block model the dispatcher and reaper are written against.
type bigmachineTransport struct {
	rank int
	size int
	b    *bigmachine.B

	// machines[r] is the dialed handle for peer r. machines[rank] is nil;
	// a peer never calls itself over RPC.
	machines []*bigmachine.Machine

	lim *limiter.Limiter

	mu     sync.Mutex
	cond   *ctxsync.Cond
	closed bool
	queues map[Tag][]Envelope
}

// StartBigmachineCluster starts a bigmachine system, waits for size-1
// worker machines to come up, and returns the Transport for rank 0, the
// calling process. It always returns rank 0; it does not produce a
// Transport for any worker rank.
func StartBigmachineCluster(ctx context.Context, system bigmachine.System, size int) (Transport, error) {
	b := bigmachine.Start(system)
	t := &bigmachineTransport{
		rank:     0,
		size:     size,
		b:        b,
		machines: make([]*bigmachine.Machine, size),
		lim:      limiter.New(),
		queues:   map[Tag][]Envelope{},
	}
	t.cond = ctxsync.NewCond(&t.mu)
	t.lim.Release(32)

	machines, err := b.Start(ctx, size-1, bigmachine.Services{
		"Worker": &workerService{t: t},
	})
	if err != nil {
		return nil, errors.E(errors.Fatal, "transport: start cluster", err)
	}
	for i, m := range machines {
		t.machines[i+1] = m
	}
	return t, nil
}

// workerService is the RPC surface every machine in the cluster exposes.
// Deliver is its only method: it enqueues the envelope for local
// consumption by whichever peer this machine is running as.
type workerService struct {
	t *bigmachineTransport
}

func (w *workerService) Deliver(ctx context.Context, env Envelope, _ *struct{}) error {
	w.t.mu.Lock()
	defer w.t.mu.Unlock()
	if w.t.closed {
		return fmt.Errorf("transport: closed")
	}
	w.t.queues[env.Tag] = append(w.t.queues[env.Tag], env)
	w.t.cond.Broadcast()
	return nil
}

func (t *bigmachineTransport) Rank() int { return t.rank }
func (t *bigmachineTransport) Size() int { return t.size }

func (t *bigmachineTransport) Send(ctx context.Context, dest int, tag Tag, msg interface{}) error {
	if dest == t.rank {
		return fmt.Errorf("transport: cannot send to self")
	}
	m := t.machines[dest]
	if m == nil {
		return fmt.Errorf("transport: rank %d not dialed", dest)
	}
	if err := t.lim.Acquire(ctx, 1); err != nil {
		return err
	}
	defer t.lim.Release(1)

	env := Envelope{Tag: tag, Rank: t.rank, Msg: msg}
	var retries int
	for {
		err := m.RetryCall(ctx, "Worker.Deliver", env, nil)
		if err == nil {
			return nil
		}
		if errors.Is(errors.Fatal, err) || errors.Match(fatalErr, err) {
			return err
		}
		if retryErr := retry.Wait(ctx, retryPolicy, retries); retryErr != nil {
			return err
		}
		retries++
		log.Error.Printf("transport: retrying delivery to rank %d: %v", dest, err)
	}
}

func (t *bigmachineTransport) Broadcast(ctx context.Context, tag Tag, msg interface{}) error {
	for r := 0; r < t.size; r++ {
		if r == t.rank {
			continue
		}
		if err := t.Send(ctx, r, tag, msg); err != nil {
			return err
		}
	}
	return nil
}

// SyncBroadcast fans the send out across all peers concurrently and
// waits for every delivery to be acknowledged by the remote Worker.Deliver
// call before returning, the all-delivered guarantee the Master's shard
// assignment broadcast depends on.
func (t *bigmachineTransport) SyncBroadcast(ctx context.Context, tag Tag, msg interface{}) error {
	g, ctx := errgroup.WithContext(ctx)
	for r := 0; r < t.size; r++ {
		r := r
		if r == t.rank {
			continue
		}
		g.Go(func() error {
			return t.Send(ctx, r, tag, msg)
		})
	}
	return g.Wait()
}

func (t *bigmachineTransport) TryRead(tag Tag) (Envelope, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	q := t.queues[tag]
	if len(q) == 0 {
		return Envelope{}, false
	}
	e := q[0]
	t.queues[tag] = q[1:]
	return e, true
}

func (t *bigmachineTransport) Read(ctx context.Context, tag Tag) (Envelope, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for {
		q := t.queues[tag]
		if len(q) > 0 {
			e := q[0]
			t.queues[tag] = q[1:]
			return e, nil
		}
		if t.closed {
			return Envelope{}, fmt.Errorf("transport: closed")
		}
		if err := t.cond.Wait(ctx); err != nil {
			return Envelope{}, err
		}
	}
}

// HandleDebug installs bigmachine's debug endpoints (machine list,
// profiles) onto mux, mirroring the status/debug surface the teacher
// exposes from its own executor.
func (t *bigmachineTransport) HandleDebug(mux *http.ServeMux) {
	t.b.HandleDebug(mux)
}

func (t *bigmachineTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	t.cond.Broadcast()
	return nil
}
