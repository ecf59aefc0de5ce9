package exec

import (
	"context"
	"sort"

	"github.com/grailbio/base/log"
	"github.com/shardrun/shardrun"
	"github.com/shardrun/shardrun/transport"
)

// weightLess orders two pending tasks on the same worker: stolen tasks
// rank above non-stolen, and within a class larger size ranks higher.
// dispatchWork and stealWork both pick the maximum under this ordering.
func weightLess(a, b *TaskState) bool {
	if a.Stolen != b.Stolen {
		return !a.Stolen // b (stolen) outranks a (not stolen)
	}
	return a.Size < b.Size
}

// heaviest returns the pending task with the greatest weight, or nil if
// pending is empty.
func heaviest(pending []*TaskState) *TaskState {
	if len(pending) == 0 {
		return nil
	}
	sort.SliceStable(pending, func(i, j int) bool { return weightLess(pending[j], pending[i]) })
	return pending[0]
}

// dispatchWork issues one KernelRequest to every worker that has pending
// work and no task currently active, and returns how many requests were
// issued. Repeated calls against unchanged state dispatch nothing.
func (m *Master) dispatchWork(ctx context.Context, run shardrun.RunDescriptor) int {
	dispatched := 0
	for _, w := range m.workersByRank() {
		if len(w.active()) > 0 {
			continue
		}
		task := w.heaviestIndexed()
		if task == nil {
			continue
		}

		req := shardrun.KernelRequest{
			Epoch:       m.epoch,
			Fingerprint: shardrun.Fingerprint(run.Table.ID(), task.ID.Shard, m.epoch),
			Kernel:      run.Kernel,
			Method:      run.Method,
			Table:       run.Table.ID(),
			Shard:       task.ID.Shard,
			Stolen:      task.Stolen,
		}
		if err := m.transport.Send(ctx, w.Rank, transport.TagKernelRequest, req); err != nil {
			log.Panicf("exec: dispatchWork: rank %d: %v", w.Rank, err)
		}
		w.unindexPending(w.tasks[task.ID])
		task.State = Active
		task.dispatchedAtMS = m.nowMS()
		dispatched++
	}
	return dispatched
}
