package exec

import (
	"github.com/grailbio/base/config"
	"github.com/grailbio/bigmachine"
	"github.com/shardrun/shardrun/transport"
)

// Config bundles the options an exec.Master is constructed with. It is
// the value the "shardrun" config.Register profile produces; Options
// turns it into constructor Options for New. cmd/shardmaster does not
// use it and reads the shardflags flags instead.
type Config struct {
	NumWorkers      int
	WorkStealing    bool
	SleepTimeMS     int
	HeartbeatMS     int
	ProfileInterval int
	System          bigmachine.System
}

func init() {
	config.Register("shardrun", func(inst *config.Instance) {
		cfg := &Config{WorkStealing: true, SleepTimeMS: 5}
		inst.IntVar(&cfg.NumWorkers, "num-workers", 1, "number of worker peers to wait for at startup")
		inst.BoolVar(&cfg.WorkStealing, "work-stealing", true, "enable cost/benefit work stealing between idle and busy workers")
		inst.IntVar(&cfg.SleepTimeMS, "sleep-time-ms", 5, "dispatcher sleep interval, in milliseconds, when no completion is pending")
		inst.IntVar(&cfg.HeartbeatMS, "heartbeat-ms", 0, "heartbeat timeout in milliseconds; a worker silent for twice this long is marked dead; 0 disables liveness tracking")
		inst.IntVar(&cfg.ProfileInterval, "profile-interval-sec", 10, "how often the barrier dumps a load profile, in seconds; 0 disables it")
		inst.InstanceVar(&cfg.System, "system", "", "the bigmachine system used to start worker machines")
		inst.Doc = "shardrun configures the shard-run control plane"
		inst.New = func() (interface{}, error) {
			return cfg, nil
		}
	})
}

// Options translates a resolved Config into Master constructor Options
// bound to t.
func (c *Config) Options(t transport.Transport) []Option {
	return []Option{
		Transport(t),
		WorkStealing(c.WorkStealing),
		SleepTime(c.SleepTimeMS),
		HeartbeatTimeout(c.HeartbeatMS),
		ProfileInterval(c.ProfileInterval),
	}
}
