// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Command shardmaster starts a shardrun Master against a local,
// in-process cluster of workers running the wordcount sample kernel,
// runs one Count pass, and prints the resulting word counts. Any system
// other than "local" exits with a fatal error.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"

	"github.com/grailbio/base/log"
	"github.com/grailbio/base/must"
	"github.com/grailbio/base/status"
	"github.com/shardrun/shardrun"
	"github.com/shardrun/shardrun/example/wordcount"
	"github.com/shardrun/shardrun/exec"
	"github.com/shardrun/shardrun/shardflags"
	"github.com/shardrun/shardrun/table"
	"github.com/shardrun/shardrun/transport"
)

var docs = []string{
	"the quick brown fox",
	"the slow brown dog",
	"the quick dog runs",
}

func main() {
	log.AddFlags()
	log.SetFlags(0)
	log.SetPrefix("shardmaster: ")
	must.Func = log.Fatal
	flag.Usage = usage

	var flags shardflags.Flags
	shardflags.RegisterFlags(flag.CommandLine, &flags, "")
	flag.Parse()
	must.True(flags.Validate() == nil, "invalid flags")

	ctx := context.Background()
	numShards := len(docs)
	tbl := table.New[string, int64](0, numShards)

	var peer transport.Transport
	switch shardflags.System(flags.System) {
	case shardflags.SystemLocal:
		peers := transport.NewLocalCluster(1 + flags.NumWorkers)
		peer = peers[0]
		for r := 1; r <= flags.NumWorkers; r++ {
			go runLocalWorker(ctx, peers[r], tbl, numShards)
		}
	default:
		log.Fatal("bigmachine system requires a configured bigmachine.System; see exec.Config")
	}

	var statusGroup status.Group
	mux := http.NewServeMux()
	go func() {
		log.Error.Printf("status server: %v", http.ListenAndServe(flags.HTTPAddress.String(), mux))
	}()

	m, err := exec.New(ctx, map[int]table.Descriptor{0: tbl},
		exec.Transport(peer),
		exec.WorkStealing(flags.WorkStealing),
		exec.SleepTime(flags.SleepTimeMS),
		exec.HeartbeatTimeout(flags.HeartbeatMS),
		exec.ProfileInterval(flags.ProfileInterval),
		exec.Status(&statusGroup),
	)
	must.Nil(err, "exec.New")

	run := shardrun.RunDescriptor{Kernel: "WordCount", Method: "Count", Table: tbl, Shards: shardRange(numShards)}
	must.Nil(m.Run(ctx, run), "run")
	must.Nil(m.Shutdown(ctx), "shutdown")

	for shard := 0; shard < numShards; shard++ {
		tbl.Iter(shard, func(word string, count int64) {
			fmt.Printf("%s\t%d\n", word, count)
		})
	}
}

func runLocalWorker(ctx context.Context, peer transport.Transport, tbl *table.Typed[string, int64], numShards int) {
	bind := func(kernelName string, tableID, shard int) interface{} {
		return &wordcount.Counter{Docs: []string{docs[shard]}, Counts: tbl}
	}
	if err := exec.RunWorker(ctx, peer, fmt.Sprintf("local-%d", peer.Rank()), bind); err != nil {
		log.Error.Printf("worker %d: %v", peer.Rank(), err)
	}
}

func shardRange(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i
	}
	return out
}

func usage() {
	fmt.Fprintf(os.Stderr, `shardmaster runs one pass of the wordcount sample kernel over a
local, in-process worker cluster.

Usage:

	shardmaster [flags]

Flags:
`)
	flag.PrintDefaults()
	os.Exit(2)
}
