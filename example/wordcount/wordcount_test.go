package wordcount

import (
	"testing"

	"github.com/shardrun/shardrun/kernel"
	"github.com/shardrun/shardrun/table"
)

func TestCount(t *testing.T) {
	info, ok := kernel.Lookup("WordCount")
	if !ok {
		t.Fatalf("WordCount not registered")
	}
	method, ok := info.Method("Count")
	if !ok {
		t.Fatalf("Count method not registered")
	}

	counts := table.New[string, int64](0, 1)
	c := &Counter{
		Docs:   []string{"the quick fox", "the slow fox"},
		Counts: counts,
	}
	if err := method(c, 0, 0); err != nil {
		t.Fatalf("method: %v", err)
	}
	got, _ := counts.Get(0, "fox")
	if want := int64(2); got != want {
		t.Errorf("got %v, want %v", got, want)
	}
	got, _ = counts.Get(0, "the")
	if want := int64(2); got != want {
		t.Errorf("got %v, want %v", got, want)
	}
}
