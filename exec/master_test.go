package exec

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shardrun/shardrun"
	"github.com/shardrun/shardrun/kernel"
	"github.com/shardrun/shardrun/table"
	"github.com/shardrun/shardrun/transport"
)

// noopKernel backs the "K"/"M" RunDescriptor used throughout this file:
// Run now validates the kernel and method exist before dispatching, so
// the fake end-to-end runs below need a real registration even though
// fakeWorker answers every KernelRequest itself without ever
// constructing or calling this kernel.
type noopKernel struct{}

func init() {
	info := kernel.Register("K", func() interface{} { return &noopKernel{} })
	kernel.RegisterMethod(info, "M", func(k interface{}, table, shard int) error { return nil })
}

// fakeWorker simulates a worker peer end to end: it registers, answers
// every KernelRequest with an immediate KernelDone, answers every
// FlushRequest with a FlushResponse carrying updatesDone() (zero when
// updatesDone is nil, so the barrier's quiescence test passes on the
// first round), and returns once an ApplyRequest arrives.
func fakeWorker(t *testing.T, ctx context.Context, peer transport.Transport, addr string, updatesDone func() int) {
	t.Helper()
	if err := peer.Send(ctx, 0, transport.TagRegisterWorker, shardrun.RegisterWorker{Rank: peer.Rank(), Addr: addr}); err != nil {
		t.Errorf("register: %v", err)
		return
	}
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		if env, ok := peer.TryRead(transport.TagKernelRequest); ok {
			req := env.Msg.(shardrun.KernelRequest)
			done := shardrun.KernelDone{
				Epoch:       req.Epoch,
				Fingerprint: shardrun.Fingerprint(req.Table, req.Shard, req.Epoch),
				Table:       req.Table,
				Shard:       req.Shard,
				Shards:      []shardrun.ShardInfo{{Table: req.Table, Shard: req.Shard, Size: 1}},
			}
			if err := peer.Send(ctx, 0, transport.TagKernelDone, done); err != nil {
				return
			}
			continue
		}
		if env, ok := peer.TryRead(transport.TagFlushRequest); ok {
			req := env.Msg.(shardrun.FlushRequest)
			n := 0
			if updatesDone != nil {
				n = updatesDone()
			}
			resp := shardrun.FlushResponse{Epoch: req.Epoch, UpdatesDone: n}
			if err := peer.Send(ctx, 0, transport.TagFlushResponse, resp); err != nil {
				return
			}
			continue
		}
		if _, ok := peer.TryRead(transport.TagApplyRequest); ok {
			return
		}
		time.Sleep(time.Millisecond)
	}
}

// TestRunPanicsWhenAlreadyRunning covers the re-entrancy invariant: Run
// must never overlap a prior Run whose barrier has not yet returned.
func TestRunPanicsWhenAlreadyRunning(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatalf("expected Run to panic while a prior run is still in flight")
		}
	}()

	m := newTestMaster()
	m.running = true
	tbl := table.New[string, int](0, 1)
	run := shardrun.RunDescriptor{Kernel: "K", Method: "M", Table: tbl, Shards: []int{0}}
	m.Run(context.Background(), run)
}

func TestTrivialRun(t *testing.T) {
	peers := transport.NewLocalCluster(2)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		fakeWorker(t, ctx, peers[1], "worker-1", nil)
	}()

	tbl := table.New[string, int](0, 1)
	m, err := New(ctx, map[int]table.Descriptor{0: tbl}, Transport(peers[0]), SleepTime(1))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	run := shardrun.RunDescriptor{Kernel: "K", Method: "M", Table: tbl, Shards: []int{0}}
	if err := m.Run(ctx, run); err != nil {
		t.Fatalf("Run: %v", err)
	}
	wg.Wait()

	if got, want := tbl.PartitionSize(0), int64(1); got != want {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestBalancedPlacement(t *testing.T) {
	peers := transport.NewLocalCluster(4)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var wg sync.WaitGroup
	for r := 1; r < 4; r++ {
		r := r
		wg.Add(1)
		go func() {
			defer wg.Done()
			fakeWorker(t, ctx, peers[r], "worker", nil)
		}()
	}

	tbl := table.New[string, int](0, 9)
	m, err := New(ctx, map[int]table.Descriptor{0: tbl}, Transport(peers[0]), SleepTime(1))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	for _, w := range m.workersByRank() {
		if got, want := len(w.served), 3; got != want {
			t.Errorf("rank %d served %v, want %v", w.Rank, got, want)
		}
	}

	shards := make([]int, 9)
	for i := range shards {
		shards[i] = i
	}
	run := shardrun.RunDescriptor{Kernel: "K", Method: "M", Table: tbl, Shards: shards}
	if err := m.Run(ctx, run); err != nil {
		t.Fatalf("Run: %v", err)
	}
	wg.Wait()
}

func TestFlushRequiresTwoRounds(t *testing.T) {
	peers := transport.NewLocalCluster(3)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var mu sync.Mutex
	calls := map[int]int{}
	updatesFor := func(rank int, sequence []int) func() int {
		return func() int {
			mu.Lock()
			defer mu.Unlock()
			i := calls[rank]
			calls[rank]++
			if i < len(sequence) {
				return sequence[i]
			}
			return 0
		}
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		fakeWorker(t, ctx, peers[1], "w1", updatesFor(1, []int{5, 0}))
	}()
	go func() {
		defer wg.Done()
		fakeWorker(t, ctx, peers[2], "w2", updatesFor(2, []int{3, 0}))
	}()

	tbl := table.New[string, int](0, 2)
	m, err := New(ctx, map[int]table.Descriptor{0: tbl}, Transport(peers[0]), SleepTime(1))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	run := shardrun.RunDescriptor{Kernel: "K", Method: "M", Table: tbl, Shards: []int{0, 1}}
	if err := m.Run(ctx, run); err != nil {
		t.Fatalf("Run: %v", err)
	}
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	if got, want := calls[1], 2; got != want {
		t.Errorf("got %v flush rounds, want %v", got, want)
	}
}
