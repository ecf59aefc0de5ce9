package exec

import (
	"testing"

	"github.com/shardrun/shardrun"
)

func TestWorkerStateAddAndRemoveTask(t *testing.T) {
	w := newWorkerState(1, "addr")
	id := shardrun.TaskID{Table: 0, Shard: 3}
	w.addTask(id, 7)

	if ts := w.task(id); ts == nil || ts.Size != 7 {
		t.Fatalf("task missing or wrong size: %+v", ts)
	}
	if !w.served[3] {
		t.Errorf("expected shard 3 in served set")
	}
	w.removeTask(id)
	if ts := w.task(id); ts != nil {
		t.Errorf("expected task removed, got %+v", ts)
	}
}

func TestWorkerStatePendingActiveSeparation(t *testing.T) {
	w := newWorkerState(1, "addr")
	a := shardrun.TaskID{Table: 0, Shard: 0}
	b := shardrun.TaskID{Table: 0, Shard: 1}
	w.addTask(a, 1)
	w.addTask(b, 1)
	w.task(a).State = Active

	if got, want := len(w.pending()), 1; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
	if got, want := len(w.active()), 1; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestWorkerStateClearTasksReleasesArena(t *testing.T) {
	w := newWorkerState(1, "addr")
	w.addTask(shardrun.TaskID{Shard: 0}, 1)
	w.addTask(shardrun.TaskID{Shard: 1}, 1)
	w.clearTasks()
	if got, want := len(w.tasks), 0; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
	if got, want := len(w.arena.free), 2; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
}

// TestHeaviestIndexedSurvivesArenaGrowth guards against the pendingIdx
// btree caching a *TaskState that the arena's backing slice has since
// reallocated out from under: addTask keeps appending well past the
// slice's initial capacity, which forces at least one grow-and-copy
// between the first addTask and the last.
func TestHeaviestIndexedSurvivesArenaGrowth(t *testing.T) {
	w := newWorkerState(1, "addr")
	first := shardrun.TaskID{Shard: 0}
	w.addTask(first, 1)

	for i := 1; i < 64; i++ {
		w.addTask(shardrun.TaskID{Shard: i}, 1)
	}

	got := w.heaviestIndexed()
	if got == nil || got.ID != first {
		t.Fatalf("got %+v, want task %s (lowest TaskID wins equal-weight ties)", got, first)
	}
	// A stale pointer would write this through to an orphaned copy of the
	// slot instead of the one task()/dispatchWork/reapOneTask see.
	got.State = Active
	if canon := w.task(first); canon.State != Active {
		t.Errorf("heaviestIndexed returned a stale pointer: canonical task state = %s, want active", canon.State)
	}
}

func TestWorkerStateAvgCompletionTime(t *testing.T) {
	w := newWorkerState(1, "addr")
	if got, want := w.avgCompletionTime(), 0.0; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
	w.recordCompletion(1.0)
	w.recordCompletion(3.0)
	if got, want := w.avgCompletionTime(), 2.0; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
}
