// Package wordcount is a sample kernel demonstrating the registration
// surface user code is expected to provide: a kernel constructor and one
// method per pass, bound to shard-local table state through a typed
// table handle.
package wordcount

import (
	"strings"

	"github.com/shardrun/shardrun/kernel"
	"github.com/shardrun/shardrun/table"
)

// Counter is the kernel instance a worker runs one copy of per shard it
// owns. Docs is the shard's slice of input lines; Counts is the typed
// table the Count method writes word frequencies into.
type Counter struct {
	Docs   []string
	Counts *table.Typed[string, int64]
}

var info = kernel.Register("WordCount", func() interface{} {
	return &Counter{}
})

func init() {
	kernel.RegisterMethod(info, "Count", func(k interface{}, tableID, shard int) error {
		c := k.(*Counter)
		for _, doc := range c.Docs {
			for _, word := range strings.Fields(doc) {
				word = strings.ToLower(word)
				n, _ := c.Counts.Get(shard, word)
				c.Counts.Put(shard, word, n+1)
			}
		}
		return nil
	})
}
