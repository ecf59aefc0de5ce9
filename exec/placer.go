package exec

import (
	"context"

	"github.com/grailbio/base/log"
	"github.com/shardrun/shardrun"
	"github.com/shardrun/shardrun/transport"
)

// assignTables runs at most once per Master lifetime, from New, before
// any run is dispatched. For every registered table and every
// shard in [0, numShards), it picks an owning worker and allocates a
// TaskState there.
func (m *Master) assignTables() {
	if m.shardsAssigned {
		return
	}
	m.shardsAssigned = true

	for tableID, desc := range m.tables {
		for shard := 0; shard < desc.NumShards(); shard++ {
			m.assignWorker(tableID, shard)
		}
	}
}

// assignWorker places shard of table on a worker: one that already
// serves that shard index on some other table if any does (tables are
// co-partitioned, so a shard index is always owned by one worker across
// every table), otherwise the alive worker with the fewest served shards
// overall, ties broken by lowest rank.
func (m *Master) assignWorker(tableID, shard int) {
	id := shardrun.TaskID{Table: tableID, Shard: shard}

	for _, w := range m.workersByRank() {
		if w.served[shard] {
			w.addTask(id, 1)
			return
		}
	}

	var chosen *WorkerState
	best := -1
	for _, w := range m.workersByRank() {
		if !w.Alive {
			continue
		}
		if best == -1 || len(w.served) < best {
			chosen = w
			best = len(w.served)
		}
	}
	if chosen == nil {
		log.Panicf("exec: assignWorker: no alive worker available for table %d shard %d", tableID, shard)
	}

	chosen.served[shard] = true
	chosen.addTask(id, 1)
}

// sendTableAssignments broadcasts one ShardAssignment per registered
// table, built from each worker's full served set rather than its
// current run's task queue: served persists across runs and covers
// every co-partitioned table, while tasks holds only the shards the
// active run touches. A run over a subset of a table's shards, or a
// second registered table untouched by the current run, must still show
// up here. SyncBroadcast delivers the same message to every worker and
// blocks until every peer has it, giving the all-acknowledged guarantee
// the barrier requires before it may proceed to dispatch.
func (m *Master) sendTableAssignments(ctx context.Context) {
	for tableID, desc := range m.tables {
		byRank := map[int][]int{}
		for _, w := range m.workersByRank() {
			var shards []int
			for shard := 0; shard < desc.NumShards(); shard++ {
				if w.served[shard] {
					shards = append(shards, shard)
				}
			}
			if len(shards) > 0 {
				byRank[w.Rank] = shards
			}
		}
		if len(byRank) == 0 {
			continue
		}
		msg := shardrun.ShardAssignment{Table: tableID, ByRank: byRank}
		if err := m.transport.SyncBroadcast(ctx, transport.TagShardAssignment, msg); err != nil {
			log.Panicf("exec: sendTableAssignments: table %d: %v", tableID, err)
		}
	}
}

// assignTasks clears every worker's task map (releasing arena slots
// rather than leaking them) and reassigns one TaskState per requested
// shard of run.Table.
func (m *Master) assignTasks(run shardrun.RunDescriptor) {
	for _, w := range m.workersByRank() {
		w.clearTasks()
	}
	for _, shard := range run.Shards {
		m.assignWorker(run.Table.ID(), shard)
	}
}
