package exec

import (
	"testing"

	"github.com/shardrun/shardrun"
)

func TestTaskArenaReusesFreedSlots(t *testing.T) {
	var a taskArena
	idx0 := a.alloc(TaskState{ID: shardrun.TaskID{Shard: 0}})
	idx1 := a.alloc(TaskState{ID: shardrun.TaskID{Shard: 1}})
	a.release(idx0)
	idx2 := a.alloc(TaskState{ID: shardrun.TaskID{Shard: 2}})
	if got, want := idx2, idx0; got != want {
		t.Errorf("got %v, want %v (expected slot reuse)", got, want)
	}
	if got, want := len(a.slots), 2; got != want {
		t.Errorf("got %v, want %v (expected no growth on reuse)", got, want)
	}
	if got, want := a.get(idx1).ID.Shard, 1; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestTaskArenaClearReturnsAllSlots(t *testing.T) {
	var a taskArena
	a.alloc(TaskState{})
	a.alloc(TaskState{})
	a.alloc(TaskState{})
	a.clear()
	if got, want := len(a.free), 3; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
	idx := a.alloc(TaskState{ID: shardrun.TaskID{Shard: 9}})
	if got, want := len(a.slots), 3; got != want {
		t.Errorf("got %v, want %v (clear must not grow backing array)", got, want)
	}
	if got, want := a.get(idx).ID.Shard, 9; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestStateString(t *testing.T) {
	for state, want := range map[State]string{Pending: "pending", Active: "active", Finished: "finished"} {
		if got := state.String(); got != want {
			t.Errorf("got %v, want %v", got, want)
		}
	}
}
