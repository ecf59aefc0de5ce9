package table

import "testing"

func TestTypedPutGet(t *testing.T) {
	tbl := New[string, int](0, 4)
	tbl.Put(1, "a", 7)
	v, ok := tbl.Get(1, "a")
	if !ok {
		t.Fatalf("expected key present")
	}
	if got, want := v, 7; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
	if _, ok := tbl.Get(2, "a"); ok {
		t.Errorf("key leaked across shards")
	}
}

func TestTypedUpdatePartitions(t *testing.T) {
	tbl := New[string, int](0, 2)
	tbl.UpdatePartitions(0, 42, map[string]interface{}{"k": "v"})
	if got, want := tbl.PartitionSize(0), int64(42); got != want {
		t.Errorf("got %v, want %v", got, want)
	}
	if got, want := tbl.PartitionSize(1), int64(0); got != want {
		t.Errorf("got %v, want %v", got, want)
	}
}

type fakeHelper struct {
	rank int
	ok   bool
}

func (f fakeHelper) ShardOwner(shard int) (int, bool) { return f.rank, f.ok }

func TestTypedOwnerConsultsHelper(t *testing.T) {
	tbl := New[string, int](0, 2)
	if _, ok := tbl.Owner(0); ok {
		t.Fatalf("expected no owner before SetHelper")
	}
	tbl.SetHelper(fakeHelper{rank: 3, ok: true})
	rank, ok := tbl.Owner(0)
	if !ok || rank != 3 {
		t.Errorf("got (%v, %v), want (3, true)", rank, ok)
	}
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	tbl := New[string, int](0, 4)
	id := r.Add(tbl)
	got, ok := r.Lookup(id)
	if !ok {
		t.Fatalf("lookup failed")
	}
	if got.NumShards() != 4 {
		t.Errorf("got %v, want 4", got.NumShards())
	}
}

func TestRegistryMustLookupPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatalf("expected panic on unknown id")
		}
	}()
	NewRegistry().MustLookup(99)
}
