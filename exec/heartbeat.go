package exec

import (
	"github.com/grailbio/base/log"
	"github.com/shardrun/shardrun"
	"github.com/shardrun/shardrun/transport"
)

// drainHeartbeats consumes every pending Heartbeat message, refreshing
// the sender's lastHeartbeatMS. It always drains the queue, regardless
// of whether HeartbeatTimeout is configured: a worker sends heartbeats
// unconditionally, and a Master that never read them would otherwise
// accumulate them for the lifetime of the run. checkLiveness is the
// opt-in half of the feature — it is the only thing that acts on the
// timestamps this refreshes.
func (m *Master) drainHeartbeats() {
	for {
		env, ok := m.transport.TryRead(transport.TagHeartbeat)
		if !ok {
			return
		}
		hb := env.Msg.(shardrun.Heartbeat)
		if w, ok := m.workers[hb.Rank]; ok {
			w.lastHeartbeatMS = m.nowMS()
		}
	}
}

// checkLiveness marks any worker dead whose last heartbeat is more than
// twice HeartbeatTimeout stale. Dead workers are skipped by placement and
// stealing but are never removed from the rank list.
func (m *Master) checkLiveness() {
	if m.heartbeatTimeoutMS <= 0 {
		return
	}
	now := m.nowMS()
	limit := int64(2 * m.heartbeatTimeoutMS)
	for _, w := range m.workersByRank() {
		if !w.Alive || w.lastHeartbeatMS == 0 {
			continue
		}
		if now-w.lastHeartbeatMS > limit {
			w.Alive = false
			m.dead[w.Rank] = true
			log.Error.Printf("exec: rank %d missed heartbeat deadline, marking dead", w.Rank)
		}
	}
}
