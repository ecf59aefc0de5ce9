package exec

import "github.com/google/btree"

// weightItem orders TaskStates by the dispatcher's weight rule: stolen
// tasks outrank non-stolen, and within a class larger size outranks
// smaller. It backs each worker's pending-task index so the heaviest
// pending task can be found in O(log n) instead of a full rescan, and so
// a steal can pop the exact task the cost model chose without having to
// resort the whole set.
//
// It stores the owning worker and the task's arena slot, not a bare
// *TaskState: the arena's backing slice can grow and reallocate on a
// later alloc (taskArena.alloc's append), which would silently invalidate
// any pointer cached across that reallocation. Resolving through
// arena.get(idx) on every access means the index never holds a pointer
// that can go stale.
type weightItem struct {
	w   *WorkerState
	idx int
}

func (i weightItem) task() *TaskState {
	return i.w.arena.get(i.idx)
}

// Less must be a strict total order for btree to treat distinct tasks as
// distinct keys, so ties in weightLess fall through to TaskID. The
// dispatcher doesn't care which equal-weight task wins; the index does
// care that it never silently merges two of them.
func (i weightItem) Less(than btree.Item) bool {
	o := than.(weightItem)
	a, b := i.task(), o.task()
	if weightLess(a, b) {
		return true
	}
	if weightLess(b, a) {
		return false
	}
	// Equal weight: match heaviest()'s tie-break, which scans tasks in
	// ascending TaskID order and keeps the first (stable sort), so the
	// lowest TaskID wins. Inverted here since Max() returns the greatest
	// element.
	return b.ID.Less(a.ID)
}

func newPendingIndex() *btree.BTree {
	return btree.New(32)
}

func (w *WorkerState) indexPending(idx int) {
	w.pendingIdx.ReplaceOrInsert(weightItem{w: w, idx: idx})
}

func (w *WorkerState) unindexPending(idx int) {
	w.pendingIdx.Delete(weightItem{w: w, idx: idx})
}

// heaviestIndexed returns the heaviest pending task in the index without
// removing it, or nil if none is pending.
func (w *WorkerState) heaviestIndexed() *TaskState {
	item := w.pendingIdx.Max()
	if item == nil {
		return nil
	}
	return item.(weightItem).task()
}
