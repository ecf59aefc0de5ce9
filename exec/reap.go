package exec

import (
	"time"

	"github.com/grailbio/base/log"
	"github.com/shardrun/shardrun"
	"github.com/shardrun/shardrun/transport"
)

// noTaskReaped is returned by reapOneTask when the non-blocking probe
// found nothing and the sleep elapsed, or when the completion it found
// was stale and was discarded.
const noTaskReaped = -1

// reapOneTask polls the transport once for a pending KernelDone. If none
// is available it sleeps sleepTimeMS and returns noTaskReaped; otherwise
// it applies the completion to the owning worker's task and returns that
// worker's rank.
func (m *Master) reapOneTask(run shardrun.RunDescriptor) int {
	env, ok := m.transport.TryRead(transport.TagKernelDone)
	if !ok {
		time.Sleep(time.Duration(m.sleepTimeMS) * time.Millisecond)
		return noTaskReaped
	}

	done := env.Msg.(shardrun.KernelDone)
	if done.Epoch != m.epoch || done.Fingerprint != shardrun.Fingerprint(done.Table, done.Shard, done.Epoch) {
		log.Printf("exec: reapOneTask: discarding stale completion from rank %d (epoch %d, want %d)", env.Rank, done.Epoch, m.epoch)
		return noTaskReaped
	}

	w, ok := m.workers[env.Rank]
	if !ok {
		log.Panicf("exec: reapOneTask: unknown rank %d", env.Rank)
	}

	id := shardrun.TaskID{Table: done.Table, Shard: done.Shard}
	task := w.task(id)
	if task == nil {
		log.Panicf("exec: reapOneTask: rank %d has no task %s", env.Rank, id)
	}
	if task.State != Active {
		log.Panicf("exec: reapOneTask: task %s on rank %d is %s, want active", id, env.Rank, task.State)
	}

	if done.Err != "" {
		log.Error.Printf("exec: task %s on rank %d failed: %s", id, env.Rank, done.Err)
	}

	if desc, ok := m.tables[done.Table]; ok {
		for _, si := range done.Shards {
			desc.UpdatePartitions(si.Shard, si.Size, si.Info)
		}
	}

	task.State = Finished
	elapsedSec := float64(m.nowMS()-task.dispatchedAtMS) / 1000
	w.recordCompletion(elapsedSec)
	w.lastHeartbeatMS = m.nowMS()

	key := shardrun.StatsKey(run.Kernel, run.Method)
	stat := m.methodStats(key)
	stat.shardCalls.Add(1)
	stat.shardTime.Add(elapsedSec)

	return env.Rank
}
