package exec

import (
	"github.com/grailbio/base/status"
	"github.com/shardrun/shardrun/transport"
)

// Option configures a Master at construction time.
type Option func(m *Master)

// Transport supplies the peer transport the master schedules dispatch,
// reap, and barrier traffic over. Required.
func Transport(t transport.Transport) Option {
	return func(m *Master) { m.transport = t }
}

// WorkStealing enables or disables the cost/benefit work-stealing pass
// the barrier runs after each reaped completion. It defaults to enabled.
func WorkStealing(enabled bool) Option {
	return func(m *Master) { m.workStealing = enabled }
}

// SleepTime sets the duration the dispatch loop sleeps when it finds no
// completed tasks to reap, in milliseconds. The Piccolo source sleeps a
// fixed 5ms; this is exposed as a knob rather than a constant so tests
// can run without it.
func SleepTime(ms int) Option {
	return func(m *Master) { m.sleepTimeMS = ms }
}

// HeartbeatTimeout enables liveness tracking, in milliseconds: a worker
// that misses two consecutive intervals of this duration is marked dead,
// so placement and stealing skip it. Its shards and tasks are not moved
// to another worker. A zero duration (the default) disables heartbeat
// tracking entirely, matching the source's behavior of never detecting a
// hung worker.
func HeartbeatTimeout(d int) Option {
	return func(m *Master) { m.heartbeatTimeoutMS = d }
}

// ProfileInterval sets how often the barrier dumps a trace profile of
// worker load, in seconds. Zero disables profile dumps.
func ProfileInterval(seconds int) Option {
	return func(m *Master) { m.profileIntervalSec = seconds }
}

// Status attaches a status.Group the master publishes per-worker task
// counts and run progress to.
func Status(group *status.Group) Option {
	return func(m *Master) { m.status = group }
}
