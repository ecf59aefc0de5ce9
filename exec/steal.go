package exec

import (
	"context"

	"github.com/grailbio/base/log"
	"github.com/shardrun/shardrun"
)

const (
	stealMinShardCalls  = 10
	stealMinAvgTime     = 0.2 // seconds
	stealMinIdleTime    = 0.5 // seconds
	sBar                = 1.0 // degenerate average-size normalizer; see stealWork.
)

// idleTime reports how long dest has been idle: 0 unless every task it
// holds is Finished, in which case it is the time since its last
// heartbeat/completion.
func (m *Master) idleTime(w *WorkerState) float64 {
	for _, idx := range w.tasks {
		if w.arena.get(idx).State != Finished {
			return 0
		}
	}
	if w.lastHeartbeatMS == 0 {
		return 0
	}
	return float64(m.nowMS()-w.lastHeartbeatMS) / 1000
}

// stealEligible reports whether dest should even be considered for a
// steal this barrier iteration: enough samples exist for C̄ to be
// meaningful, the method is slow enough for migration to matter, and
// dest has actually been sitting idle.
func (m *Master) stealEligible(key string, w *WorkerState) bool {
	stat := m.methodStats(key)
	if stat.shardCalls.Get() <= stealMinShardCalls {
		return false
	}
	cBar := stat.shardTime.Get() / float64(stat.shardCalls.Get())
	if cBar <= stealMinAvgTime {
		return false
	}
	return m.idleTime(w) > stealMinIdleTime
}

// stealWork attempts to migrate one pending task from the busiest
// worker onto dest, using the cost/benefit model from the source's
// average completion time. It returns the migrated task id and true if a
// steal committed.
func (m *Master) stealWork(run shardrun.RunDescriptor, dest *WorkerState) (shardrun.TaskID, bool) {
	if !dest.Alive {
		return shardrun.TaskID{}, false
	}

	var source *WorkerState
	most := 0
	for _, w := range m.workersByRank() {
		if w == dest {
			continue
		}
		n := len(w.pending())
		if n > most {
			most = n
			source = w
		}
	}
	if source == nil || most == 0 {
		return shardrun.TaskID{}, false
	}

	task := source.heaviestIndexed()
	if task == nil || task.Stolen {
		return shardrun.TaskID{}, false
	}

	key := shardrun.StatsKey(run.Kernel, run.Method)
	stat := m.methodStats(key)
	cBar := stat.shardTime.Get() / float64(stat.shardCalls.Get())

	moveCost := max1(2 * float64(task.Size) * cBar / sBar)
	var eta float64
	for _, p := range source.pending() {
		eta += max1(float64(p.Size) * cBar / sBar)
	}
	if eta <= moveCost {
		return shardrun.TaskID{}, false
	}

	// unindexPending must run before the Stolen flip: the index orders by
	// weight, and flipping Stolen first would make the delete key no
	// longer match the key the task was inserted under.
	id := task.ID
	idx := source.tasks[id]
	source.unindexPending(idx)
	task.Stolen = true
	moved := *task
	source.arena.release(idx)
	delete(source.tasks, id)

	newIdx := dest.arena.alloc(moved)
	dest.tasks[id] = newIdx
	dest.served[id.Shard] = true
	delete(source.served, id.Shard)
	dest.indexPending(newIdx)

	log.Printf("exec: stole task %s from rank %d to rank %d (moveCost=%.2f eta=%.2f)", id, source.Rank, dest.Rank, moveCost, eta)
	return id, true
}

func max1(v float64) float64 {
	if v < 1 {
		return 1
	}
	return v
}

// maybeSteal runs stealWork for dest if it is eligible this iteration,
// and if it commits, re-broadcasts shard assignments so workers update
// their routing for the migrated shard.
func (m *Master) maybeSteal(ctx context.Context, run shardrun.RunDescriptor, dest *WorkerState) {
	if !m.workStealing {
		return
	}
	key := shardrun.StatsKey(run.Kernel, run.Method)
	if !m.stealEligible(key, dest) {
		return
	}
	if _, ok := m.stealWork(run, dest); ok {
		m.sendTableAssignments(ctx)
	}
}
