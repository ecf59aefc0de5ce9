package exec

import (
	"context"
	"time"

	"github.com/grailbio/base/log"
	"github.com/shardrun/shardrun"
	"github.com/shardrun/shardrun/transport"
)

const bookkeepingInterval = 10 * time.Second

// runBarrier drives one run to completion: it assumes dispatchWork has
// already been called once to seed the pipeline, then alternates
// reaping completions, opportunistic stealing, and re-dispatch until
// every requested shard is Finished, before handing off to the
// flush/apply phase.
func (m *Master) runBarrier(ctx context.Context, run shardrun.RunDescriptor, dispatched int) error {
	finished := 0
	lastBookkeeping := time.Now()
	lastProfile := time.Now()

	for finished < len(run.Shards) {
		if time.Since(lastBookkeeping) >= bookkeepingInterval {
			m.logProgress(run, finished)
			lastBookkeeping = time.Now()
		}
		if m.profileIntervalSec > 0 && time.Since(lastProfile) >= time.Duration(m.profileIntervalSec)*time.Second {
			m.dumpProfile(run)
			lastProfile = time.Now()
		}
		m.drainHeartbeats()
		m.checkLiveness()

		rank := m.reapOneTask(run)
		if rank == noTaskReaped {
			continue
		}
		finished++

		for _, w := range m.workersByRank() {
			m.maybeSteal(ctx, run, w)
		}

		if dispatched < len(run.Shards) {
			dispatched += m.dispatchWork(ctx, run)
		}
	}

	return m.flushApply(ctx, run)
}

// flushApply realizes the intended two-phase quiescence protocol: repeat
// flush rounds while any worker reports outstanding cross-shard updates,
// then broadcast apply once a round reports zero from everyone.
//
// The Piccolo source this is modeled on wrote the final round as
// `do { ...flush round... } while (1);`, an unconditional loop that can
// never fall through to apply. That is realized here as the loop the
// comment plainly intends: repeat while not quiescent, then apply.
func (m *Master) flushApply(ctx context.Context, run shardrun.RunDescriptor) error {
	for {
		quiescent, err := m.flushRound(ctx, run)
		if err != nil {
			return err
		}
		if quiescent {
			break
		}
	}
	return m.transport.Broadcast(ctx, transport.TagApplyRequest, shardrun.ApplyRequest{Epoch: m.epoch})
}

// flushRound broadcasts a flush request and collects exactly one
// FlushResponse per worker, returning whether the round was quiescent
// (every worker reported zero updates propagated).
func (m *Master) flushRound(ctx context.Context, run shardrun.RunDescriptor) (bool, error) {
	if err := m.transport.Broadcast(ctx, transport.TagFlushRequest, shardrun.FlushRequest{Epoch: m.epoch}); err != nil {
		return false, err
	}

	quiescent := true
	remaining := map[int]bool{}
	for _, w := range m.workersByRank() {
		remaining[w.Rank] = true
	}
	for len(remaining) > 0 {
		env, err := m.transport.Read(ctx, transport.TagFlushResponse)
		if err != nil {
			return false, err
		}
		resp := env.Msg.(shardrun.FlushResponse)
		if resp.Epoch != m.epoch {
			log.Printf("exec: flushRound: discarding stale flush response from rank %d", env.Rank)
			continue
		}
		if !remaining[env.Rank] {
			log.Panicf("exec: flushRound: duplicate flush response from rank %d", env.Rank)
		}
		delete(remaining, env.Rank)
		if resp.UpdatesDone > 0 {
			quiescent = false
		}
	}
	return quiescent, nil
}

func (m *Master) logProgress(run shardrun.RunDescriptor, finished int) {
	log.Printf("exec: run %s:%s epoch %d: %d/%d shards finished", run.Kernel, run.Method, m.epoch, finished, len(run.Shards))
	for _, w := range m.workersByRank() {
		log.Printf("exec: rank %d: pending=%d active=%d avg_completion=%.2fs", w.Rank, len(w.pending()), len(w.active()), w.avgCompletionTime())
	}
}
