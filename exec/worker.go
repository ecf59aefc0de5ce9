package exec

import (
	"sort"

	"github.com/google/btree"
	"github.com/shardrun/shardrun"
)

// WorkerState is the Master's bookkeeping for one connected worker: the
// tasks it currently holds, the shard indices it serves across every
// table (used to place a shard on the worker that already serves it),
// and the liveness/timing counters the dispatcher and work-stealer read.
type WorkerState struct {
	Rank  int
	Addr  string
	Alive bool

	arena taskArena
	tasks map[shardrun.TaskID]int // -> arena index

	// pendingIdx holds every task currently in Pending state, ordered by
	// the dispatcher's weight rule, so dispatchWork and stealWork can
	// find the heaviest pending task in O(log n) instead of rescanning
	// tasks on every call.
	pendingIdx *btree.BTree

	// served is the set of shard indices this worker owns, shared across
	// every table: Piccolo co-partitions tables, so shard index s is
	// always routed to the same worker regardless of which table it
	// belongs to. assignWorker consults it both to keep that invariant
	// and, via its size, to balance placement across workers.
	served map[int]bool

	// lastHeartbeatMS is the wall-clock millisecond of the worker's last
	// heartbeat or reaped completion. The liveness check reads it only
	// when the master's heartbeat timeout is enabled; the work-stealer's
	// idle-time measure reads it always.
	lastHeartbeatMS int64

	// totalTasks and totalTimeSec accumulate across runs to produce this
	// worker's average per-task completion time, reported in progress
	// logs and profiles. The work-stealer's cost model does not use it;
	// its C̄ comes from the method-wide statistics.
	totalTasks   int64
	totalTimeSec float64
}

func newWorkerState(rank int, addr string) *WorkerState {
	return &WorkerState{
		Rank:       rank,
		Addr:       addr,
		Alive:      true,
		tasks:      map[shardrun.TaskID]int{},
		served:     map[int]bool{},
		pendingIdx: newPendingIndex(),
	}
}

// addTask inserts a new task in Pending state, returning its arena index.
func (w *WorkerState) addTask(id shardrun.TaskID, size int64) int {
	idx := w.arena.alloc(TaskState{ID: id, State: Pending, Size: size})
	w.tasks[id] = idx
	w.served[id.Shard] = true
	w.indexPending(idx)
	return idx
}

// task returns the TaskState for id, or nil if this worker does not hold
// it.
func (w *WorkerState) task(id shardrun.TaskID) *TaskState {
	idx, ok := w.tasks[id]
	if !ok {
		return nil
	}
	return w.arena.get(idx)
}

// removeTask releases id's slot and drops it from this worker's task
// map, e.g. because it was stolen onto another worker.
func (w *WorkerState) removeTask(id shardrun.TaskID) {
	idx, ok := w.tasks[id]
	if !ok {
		return
	}
	w.unindexPending(idx)
	w.arena.release(idx)
	delete(w.tasks, id)
}

// pending returns every task currently in Pending state, ordered by
// TaskID so that callers see deterministic behavior regardless of the
// underlying map's iteration order.
func (w *WorkerState) pending() []*TaskState {
	return w.byState(Pending)
}

// active returns every task currently in Active state, ordered by
// TaskID.
func (w *WorkerState) active() []*TaskState {
	return w.byState(Active)
}

func (w *WorkerState) byState(state State) []*TaskState {
	var out []*TaskState
	for _, idx := range w.tasks {
		ts := w.arena.get(idx)
		if ts.State == state {
			out = append(out, ts)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID.Less(out[j].ID) })
	return out
}

// clearTasks drops every task this worker holds, returning their slots to
// the arena's free list rather than leaking them.
func (w *WorkerState) clearTasks() {
	w.tasks = map[shardrun.TaskID]int{}
	w.arena.clear()
	w.pendingIdx = newPendingIndex()
}

// avgCompletionTime returns the mean wall-clock time a task has taken to
// complete on this worker so far. It returns 0 before any task has
// completed.
func (w *WorkerState) avgCompletionTime() float64 {
	if w.totalTasks == 0 {
		return 0
	}
	return w.totalTimeSec / float64(w.totalTasks)
}

// recordCompletion folds a finished task's elapsed time into the
// worker's running average.
func (w *WorkerState) recordCompletion(elapsedSec float64) {
	w.totalTasks++
	w.totalTimeSec += elapsedSec
}
