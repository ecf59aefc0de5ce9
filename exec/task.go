package exec

import "github.com/shardrun/shardrun"

// State is a task's place in its lifecycle. Tasks move strictly forward:
// Pending -> Active -> Finished. Only Pending tasks are stolen, and a
// stolen task stays Pending on its new worker.
type State int

const (
	Pending State = iota
	Active
	Finished
)

func (s State) String() string {
	switch s {
	case Pending:
		return "pending"
	case Active:
		return "active"
	case Finished:
		return "finished"
	default:
		return "unknown"
	}
}

// TaskState is the Master's view of one (table, shard) unit of work
// within the current run. It holds no reference to the worker it is
// assigned to; that association lives in WorkerState.tasks so that a
// steal can copy the small value into another worker's arena without
// fixing up back-pointers.
type TaskState struct {
	ID     shardrun.TaskID
	State  State
	Size   int64
	Stolen bool

	// dispatchedAtMS is the wall-clock millisecond the task was last
	// dispatched, used to compute per-task elapsed time for the
	// work-stealing cost model.
	dispatchedAtMS int64
}

// taskArena owns TaskState storage for one worker. Slots are referenced
// by stable index rather than pointer so that a steal can hand a task to
// another worker's arena without the source arena ever deallocating the
// backing array out from under a live reference; freed slots are
// returned to a free list and reused rather than leaked, which is what a
// clear_tasks() that never released slot memory would otherwise do.
type taskArena struct {
	slots []TaskState
	free  []int
}

// alloc returns the index of a slot initialized to ts, reusing a freed
// slot if one is available.
func (a *taskArena) alloc(ts TaskState) int {
	if n := len(a.free); n > 0 {
		idx := a.free[n-1]
		a.free = a.free[:n-1]
		a.slots[idx] = ts
		return idx
	}
	a.slots = append(a.slots, ts)
	return len(a.slots) - 1
}

// get returns a pointer to the slot at idx. The pointer is only valid
// until release is called for the same idx, or until a later alloc grows
// the backing slice.
func (a *taskArena) get(idx int) *TaskState {
	return &a.slots[idx]
}

// release returns idx's slot to the free list. It does not shrink slots,
// so indices handed out earlier elsewhere remain valid.
func (a *taskArena) release(idx int) {
	a.free = append(a.free, idx)
}

// clear resets the arena to empty, returning every slot to the free
// list instead of discarding the backing array; a subsequent run reuses
// the same allocation.
func (a *taskArena) clear() {
	a.free = a.free[:0]
	for i := range a.slots {
		a.free = append(a.free, i)
	}
}
