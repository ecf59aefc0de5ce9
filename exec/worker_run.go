package exec

import (
	"context"
	"time"

	"github.com/grailbio/base/log"
	"github.com/shardrun/shardrun"
	"github.com/shardrun/shardrun/kernel"
	"github.com/shardrun/shardrun/transport"
)

// Bind constructs the kernel instance that should run method on
// (tableID, shard): user code supplies one so that shard-local state
// (the slice of input a shard owns, the typed table handle it writes
// through) can be wired into a freshly registered kernel, something the
// control plane cannot do generically since table and kernel contents
// are opaque to it.
type Bind func(kernelName string, tableID, shard int) interface{}

// heartbeatInterval is how often RunWorker sends a liveness heartbeat.
// The Master only acts on these when HeartbeatTimeout is configured
// above zero, but a worker always sends them so the feature works end
// to end as soon as a caller opts in on the Master side.
const heartbeatInterval = 2 * time.Second

// RunWorker drives the worker side of the protocol on peer: register
// with the Master, then service RunKernel/Flush/Apply/Shutdown requests
// until a Shutdown arrives or ctx is done. bind supplies the concrete
// kernel instance for each dispatched request.
//
// Like the Master, a worker is single-threaded cooperative: it polls its
// tags in a fixed order and sleeps briefly between rounds rather than
// blocking on any one of them, so a flush/apply request arriving while a
// kernel request is also pending is never starved.
func RunWorker(ctx context.Context, peer transport.Transport, addr string, bind Bind) error {
	if err := peer.Send(ctx, 0, transport.TagRegisterWorker, shardrun.RegisterWorker{Rank: peer.Rank(), Addr: addr}); err != nil {
		return err
	}

	lastHeartbeat := time.Now()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if time.Since(lastHeartbeat) >= heartbeatInterval {
			if err := peer.Send(ctx, 0, transport.TagHeartbeat, shardrun.Heartbeat{Rank: peer.Rank()}); err != nil {
				return err
			}
			lastHeartbeat = time.Now()
		}

		if env, ok := peer.TryRead(transport.TagKernelRequest); ok {
			if err := handleKernelRequest(ctx, peer, env, bind); err != nil {
				log.Error.Printf("exec: worker %d: kernel request: %v", peer.Rank(), err)
			}
			continue
		}
		if env, ok := peer.TryRead(transport.TagFlushRequest); ok {
			req := env.Msg.(shardrun.FlushRequest)
			resp := shardrun.FlushResponse{Epoch: req.Epoch, UpdatesDone: 0}
			if err := peer.Send(ctx, 0, transport.TagFlushResponse, resp); err != nil {
				return err
			}
			continue
		}
		if _, ok := peer.TryRead(transport.TagApplyRequest); ok {
			continue
		}
		if _, ok := peer.TryRead(transport.TagShutdown); ok {
			return nil
		}
		time.Sleep(time.Millisecond)
	}
}

func handleKernelRequest(ctx context.Context, peer transport.Transport, env transport.Envelope, bind Bind) error {
	req := env.Msg.(shardrun.KernelRequest)

	info, ok := kernel.Lookup(req.Kernel)
	if !ok {
		log.Panicf("exec: worker %d: unknown kernel %q", peer.Rank(), req.Kernel)
	}
	method, ok := info.Method(req.Method)
	if !ok {
		log.Panicf("exec: worker %d: kernel %q has no method %q", peer.Rank(), req.Kernel, req.Method)
	}

	instance := bind(req.Kernel, req.Table, req.Shard)
	var errStr string
	if err := method(instance, req.Table, req.Shard); err != nil {
		errStr = err.Error()
	}

	done := shardrun.KernelDone{
		Epoch:       req.Epoch,
		Fingerprint: shardrun.Fingerprint(req.Table, req.Shard, req.Epoch),
		Table:       req.Table,
		Shard:       req.Shard,
		Shards:      []shardrun.ShardInfo{{Table: req.Table, Shard: req.Shard}},
		Err:         errStr,
	}
	return peer.Send(ctx, 0, transport.TagKernelDone, done)
}
