// Package shardflags provides the command-line flags cmd/shardmaster
// registers: transport selection, dispatcher
// tuning, and the HTTP status address, mirroring the flag surface the
// teacher's own command line tools expose.
package shardflags

import (
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/grailbio/base/cmdutil"
)

// System selects which Transport a shardrun process starts. "local" runs
// every peer as a goroutine in the calling process, useful for tests and
// single-machine demos; "bigmachine" starts a real cluster via
// grailbio/bigmachine.
type System string

const (
	SystemLocal      System = "local"
	SystemBigmachine System = "bigmachine"
)

// Flags holds every flag shardmaster registers.
type Flags struct {
	System          string
	HTTPAddress     cmdutil.NetworkAddressFlag
	NumWorkers      int
	WorkStealing    bool
	SleepTimeMS     int
	HeartbeatMS     int
	ProfileInterval int

	fs *flag.FlagSet
}

// Output returns an appropriate io.Writer for help/usage messages.
func (f *Flags) Output() io.Writer {
	if f.fs == nil {
		return os.Stderr
	}
	if w := f.fs.Output(); w != nil {
		return w
	}
	return os.Stderr
}

// Defaults represents default values for the supported flags.
type Defaults struct {
	System          string
	HTTPAddress     string
	NumWorkers      int
	WorkStealing    bool
	SleepTimeMS     int
	HeartbeatMS     int
	ProfileInterval int
}

// RegisterFlags registers the shardrun command line flags with fs,
// prefixed by prefix.
func RegisterFlags(fs *flag.FlagSet, sf *Flags, prefix string) {
	RegisterFlagsWithDefaults(fs, sf, prefix, Defaults{
		System:          string(SystemLocal),
		HTTPAddress:     ":3333",
		NumWorkers:      1,
		WorkStealing:    true,
		SleepTimeMS:     5,
		HeartbeatMS:     0,
		ProfileInterval: 10,
	})
}

// RegisterFlagsWithDefaults registers the shardrun command line flags
// with fs using the supplied defaults, prefixed by prefix.
func RegisterFlagsWithDefaults(fs *flag.FlagSet, sf *Flags, prefix string, defaults Defaults) {
	fs.StringVar(&sf.System, prefix+"system", defaults.System, `transport to start: "local" or "bigmachine"`)
	fs.Var(&sf.HTTPAddress, prefix+"http", "address of the http status server")
	sf.HTTPAddress.Set(defaults.HTTPAddress)
	fs.IntVar(&sf.NumWorkers, prefix+"num-workers", defaults.NumWorkers, "number of worker peers to wait for at startup")
	fs.BoolVar(&sf.WorkStealing, prefix+"work-stealing", defaults.WorkStealing, "enable cost/benefit work stealing")
	fs.IntVar(&sf.SleepTimeMS, prefix+"sleep-time-ms", defaults.SleepTimeMS, "dispatcher sleep interval in milliseconds")
	fs.IntVar(&sf.HeartbeatMS, prefix+"heartbeat-ms", defaults.HeartbeatMS, "heartbeat timeout in milliseconds; a worker silent for twice this long is marked dead; 0 disables liveness tracking")
	fs.IntVar(&sf.ProfileInterval, prefix+"profile-interval-sec", defaults.ProfileInterval, "how often the barrier dumps a load profile, in seconds; 0 disables it")
	sf.fs = fs
}

// Validate checks that System names a transport shardrun actually
// implements.
func (f *Flags) Validate() error {
	switch System(f.System) {
	case SystemLocal, SystemBigmachine:
		return nil
	default:
		return fmt.Errorf("shardflags: unknown system %q", f.System)
	}
}
