// Package exec implements the Master control plane: worker registration,
// shard placement, task dispatch, completion reaping, work stealing, and
// the flush/apply barrier that concludes a run.
//
// The Master is single-threaded cooperative: every state transition
// happens on the goroutine driving Run, synchronized with remote workers
// solely through tagged transport messages. There are no mutexes in the
// control plane itself.
package exec

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/status"
	"github.com/shardrun/shardrun"
	"github.com/shardrun/shardrun/internal/trace"
	"github.com/shardrun/shardrun/kernel"
	"github.com/shardrun/shardrun/stats"
	"github.com/shardrun/shardrun/table"
	"github.com/shardrun/shardrun/transport"
)

// methodStat bundles the four cumulative counters a method accumulates
// across every run: calls, shard_calls, shard_time, total_time.
type methodStat struct {
	calls      *stats.Int
	shardCalls *stats.Int
	shardTime  *stats.Float
	totalTime  *stats.Float
}

// Master is the control-plane root. It owns worker state, table
// registrations, and the current run's progress; it is constructed once
// per process via New and driven by repeated calls to Run.
type Master struct {
	transport transport.Transport
	tables    map[int]table.Descriptor

	workers map[int]*WorkerState
	dead    map[int]bool

	shardsAssigned bool
	epoch          int
	running        bool

	statsMap *stats.Map

	// options
	workStealing       bool
	sleepTimeMS        int
	heartbeatTimeoutMS int
	profileIntervalSec int
	status             *status.Group

	// nowFn overrides nowMS's clock in tests; nil means time.Now.
	nowFn func() int64
}

// New constructs a Master, registers the transport's Size()-1 remote
// peers by waiting for their RegisterWorker messages, and assigns every
// registered table's shards before returning.
//
// tables is the set of tables this Master's runs may target, keyed by
// the id the caller's table.Registry assigned them.
func New(ctx context.Context, tables map[int]table.Descriptor, opts ...Option) (*Master, error) {
	m := &Master{
		tables:      tables,
		workers:     map[int]*WorkerState{},
		dead:        map[int]bool{},
		statsMap:    stats.NewMap(),
		workStealing: true,
		sleepTimeMS:  5,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.transport == nil {
		log.Panicf("exec: New: no transport configured")
	}
	if m.transport.Size() <= 1 {
		log.Panicf("exec: New: transport reports %d peers, need more than 1", m.transport.Size())
	}

	if err := m.bootstrap(ctx); err != nil {
		return nil, err
	}
	m.assignTables()
	return m, nil
}

// bootstrap waits for exactly Size()-1 RegisterWorker messages, one from
// each remote rank, before the Master begins normal operation.
func (m *Master) bootstrap(ctx context.Context) error {
	want := m.transport.Size() - 1
	for len(m.workers) < want {
		env, err := m.transport.Read(ctx, transport.TagRegisterWorker)
		if err != nil {
			return err
		}
		reg := env.Msg.(shardrun.RegisterWorker)
		m.workers[reg.Rank] = newWorkerState(reg.Rank, reg.Addr)
		log.Printf("exec: registered worker rank %d (%s)", reg.Rank, reg.Addr)
	}
	return nil
}

// workersByRank returns every worker in ascending rank order. Iterating
// in rank order is what makes dispatchWork's "iterate workers in rank
// order" description and the placer's first-seen tie-break well defined.
func (m *Master) workersByRank() []*WorkerState {
	out := make([]*WorkerState, 0, len(m.workers))
	for _, w := range m.workers {
		out = append(out, w)
	}
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j].Rank < out[j-1].Rank; j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	return out
}

func (m *Master) methodStats(key string) methodStat {
	return methodStat{
		calls:      m.statsMap.Int(key + ":calls"),
		shardCalls: m.statsMap.Int(key + ":shard_calls"),
		shardTime:  m.statsMap.Float(key + ":shard_time"),
		totalTime:  m.statsMap.Float(key + ":total_time"),
	}
}

// ShardOwner implements table.Helper: it reports the rank currently
// serving shard, consulting each worker's served set.
func (m *Master) ShardOwner(shard int) (rank int, ok bool) {
	for _, w := range m.workersByRank() {
		if w.served[shard] {
			return w.Rank, true
		}
	}
	return 0, false
}

func (m *Master) nowMS() int64 {
	if m.nowFn != nil {
		return m.nowFn()
	}
	return time.Now().UnixMilli()
}

// Run dispatches and drives run to completion: it assigns one task per
// requested shard to the worker serving that shard (placement itself
// happens once, in New), re-broadcasts shard assignments, dispatches the
// initial wave, and then
// runs the barrier loop (reap, opportunistic steal, re-dispatch) until
// every shard is finished, followed by the flush/apply quiescence
// handshake.
//
// A run cannot begin before the prior run has fully finished; calling
// Run while a previous run's barrier has not returned is a programming
// error.
func (m *Master) Run(ctx context.Context, run shardrun.RunDescriptor) error {
	if err := validateRun(run); err != nil {
		return err
	}
	// Register this Master with every known table before anything else:
	// a table descriptor registered ahead of the Master (or carried over
	// from a prior process) otherwise has no way to look up shard
	// ownership.
	for _, desc := range m.tables {
		desc.SetHelper(m)
	}
	if m.running {
		log.Panicf("exec: Run: a prior run's barrier has not finished")
	}
	m.running = true
	defer func() { m.running = false }()

	kernelTask := m.statusTask(run)
	defer func() {
		if kernelTask != nil {
			kernelTask.Printf("finished")
		}
	}()

	m.epoch++
	run.Epoch = m.epoch

	m.assignTasks(run)
	m.sendTableAssignments(ctx)

	key := shardrun.StatsKey(run.Kernel, run.Method)
	m.methodStats(key).calls.Add(1)

	dispatched := m.dispatchWork(ctx, run)
	return m.runBarrier(ctx, run, dispatched)
}

// validateRun checks the parts of a RunDescriptor the Master can verify
// locally: the table must be non-nil, and kernel and method must name a
// registered kernel and one of its registered methods.
// It runs before any task is assigned or dispatched, so a bad run never
// reaches a worker as a KernelRequest.
func validateRun(run shardrun.RunDescriptor) error {
	if run.Table == nil {
		return errors.E(errors.Invalid, "exec: Run: nil table")
	}
	info, ok := kernel.Lookup(run.Kernel)
	if !ok {
		return errors.E(errors.Invalid, fmt.Sprintf("exec: Run: unknown kernel %q", run.Kernel))
	}
	if _, ok := info.Method(run.Method); !ok {
		return errors.E(errors.Invalid, fmt.Sprintf("exec: Run: kernel %q has no method %q", run.Kernel, run.Method))
	}
	return nil
}

func (m *Master) statusTask(run shardrun.RunDescriptor) *status.Task {
	if m.status == nil {
		return nil
	}
	return m.status.Start(run.Kernel + "." + run.Method)
}

// Shutdown broadcasts WORKER_SHUTDOWN to every worker and closes the
// transport.
func (m *Master) Shutdown(ctx context.Context) error {
	if err := m.transport.Broadcast(ctx, transport.TagShutdown, shardrun.ShutdownRequest{}); err != nil {
		log.Error.Printf("exec: Shutdown: broadcast: %v", err)
	}
	return m.transport.Close()
}

// dumpProfile builds one Chrome-tracing-format counter event per worker
// describing its current pending/active task counts, the periodic
// profile the barrier takes every profileIntervalSec seconds. It encodes
// the trace and logs the encoded size; the encoded trace itself is not
// written anywhere.
func (m *Master) dumpProfile(run shardrun.RunDescriptor) {
	if m.profileIntervalSec <= 0 {
		return
	}
	t := trace.T{}
	now := m.nowMS() * 1000 // microseconds, as Chrome tracing expects
	for _, w := range m.workersByRank() {
		t.Events = append(t.Events, trace.Event{
			Pid:  0,
			Tid:  w.Rank,
			Ts:   now,
			Ph:   "C",
			Name: "tasks",
			Args: map[string]interface{}{
				"pending":          len(w.pending()),
				"active":           len(w.active()),
				"avg_completion_s": w.avgCompletionTime(),
			},
		})
	}
	var buf bytes.Buffer
	if err := t.Encode(&buf); err != nil {
		log.Error.Printf("exec: dumpProfile: encode: %v", err)
		return
	}
	log.Printf("exec: profile epoch=%d workers=%d bytes=%d", m.epoch, len(m.workers), buf.Len())
}
