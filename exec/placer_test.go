package exec

import (
	"context"
	"testing"
	"time"

	"github.com/shardrun/shardrun"
	"github.com/shardrun/shardrun/table"
	"github.com/shardrun/shardrun/transport"
)

func newPlacerTestMaster(numShards int) (*Master, table.Descriptor) {
	m := newTestMaster()
	m.workers[0] = newWorkerState(0, "w0")
	m.workers[1] = newWorkerState(1, "w1")
	m.workers[2] = newWorkerState(2, "w2")
	tbl := table.New[string, int](0, numShards)
	m.tables = map[int]table.Descriptor{0: tbl}
	return m, tbl
}

func TestAssignTablesCoversEveryShardExactlyOnce(t *testing.T) {
	m, _ := newPlacerTestMaster(9)
	m.assignTables()

	seen := map[int]int{}
	for _, w := range m.workersByRank() {
		for id := range w.tasks {
			seen[id.Shard]++
		}
	}
	if got, want := len(seen), 9; got != want {
		t.Fatalf("got %v distinct shards placed, want %v", got, want)
	}
	for shard, count := range seen {
		if count != 1 {
			t.Errorf("shard %d placed on %d workers, want 1", shard, count)
		}
	}
}

func TestAssignTablesBalancesAcrossWorkers(t *testing.T) {
	m, _ := newPlacerTestMaster(9)
	m.assignTables()
	for _, w := range m.workersByRank() {
		if got, want := len(w.served), 3; got != want {
			t.Errorf("rank %d served %v shards, want %v", w.Rank, got, want)
		}
	}
}

func TestAssignTablesIsIdempotent(t *testing.T) {
	m, _ := newPlacerTestMaster(4)
	m.assignTables()
	first := len(m.workers[0].tasks) + len(m.workers[1].tasks) + len(m.workers[2].tasks)
	m.assignTables()
	second := len(m.workers[0].tasks) + len(m.workers[1].tasks) + len(m.workers[2].tasks)
	if first != second {
		t.Errorf("second assignTables call changed task counts: %v -> %v", first, second)
	}
}

func TestAssignTablesSkipsDeadWorkers(t *testing.T) {
	m, _ := newPlacerTestMaster(3)
	m.workers[1].Alive = false
	m.workers[2].Alive = false
	m.assignTables()
	if got, want := len(m.workers[0].tasks), 3; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
	if got, want := len(m.workers[1].tasks), 0; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
}

// TestSendTableAssignmentsCoversFullServedSet guards against deriving the
// broadcast from the current run's tasks queue: a run over a shard
// subset, or a second registered table the run never touches, must still
// show up, since served (not tasks) is the worker's durable placement.
func TestSendTableAssignmentsCoversFullServedSet(t *testing.T) {
	peers := transport.NewLocalCluster(3)
	m := newTestMaster()
	m.transport = peers[0]
	m.workers[1] = newWorkerState(1, "w1")
	m.workers[2] = newWorkerState(2, "w2")

	tblA := table.New[string, int](0, 4)
	tblB := table.New[string, int](1, 2)
	m.tables = map[int]table.Descriptor{0: tblA, 1: tblB}
	m.assignTables()

	// A run over only one shard of table A must not shrink what gets
	// broadcast: assignTasks clears and rebuilds `tasks` to just this
	// run's subset, but `served` keeps every shard of every table this
	// worker owns.
	run := shardrun.RunDescriptor{Table: tblA, Shards: []int{0}}
	m.assignTasks(run)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	m.sendTableAssignments(ctx)

	seen := map[int]map[int]bool{0: {}, 1: {}}
	for _, rank := range []int{1, 2} {
		for {
			env, ok := peers[rank].TryRead(transport.TagShardAssignment)
			if !ok {
				break
			}
			msg := env.Msg.(shardrun.ShardAssignment)
			for _, shard := range msg.ByRank[rank] {
				seen[msg.Table][shard] = true
			}
		}
	}
	if got, want := len(seen[0]), 4; got != want {
		t.Errorf("table A: got %d distinct shards broadcast, want %d (partial run must not drop untouched shards)", got, want)
	}
	if got, want := len(seen[1]), 2; got != want {
		t.Errorf("table B: got %d distinct shards broadcast, want %d (second table must not be dropped)", got, want)
	}
}
