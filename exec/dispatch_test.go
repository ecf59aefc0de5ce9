package exec

import "testing"

func TestWeightOrder(t *testing.T) {
	cases := []struct {
		a, b *TaskState
		less bool
	}{
		{&TaskState{Stolen: false, Size: 10}, &TaskState{Stolen: true, Size: 1}, true},
		{&TaskState{Stolen: true, Size: 1}, &TaskState{Stolen: false, Size: 10}, false},
		{&TaskState{Stolen: false, Size: 2}, &TaskState{Stolen: false, Size: 5}, true},
		{&TaskState{Stolen: true, Size: 5}, &TaskState{Stolen: true, Size: 2}, false},
	}
	for _, c := range cases {
		if got := weightLess(c.a, c.b); got != c.less {
			t.Errorf("weightLess(%+v, %+v) = %v, want %v", c.a, c.b, got, c.less)
		}
	}
}

func TestHeaviestPicksStolenOverLarger(t *testing.T) {
	pending := []*TaskState{
		{Stolen: false, Size: 100},
		{Stolen: true, Size: 1},
	}
	got := heaviest(pending)
	if !got.Stolen {
		t.Errorf("expected stolen task to rank highest regardless of size")
	}
}

func TestHeaviestPicksLargerWithinClass(t *testing.T) {
	pending := []*TaskState{
		{Stolen: false, Size: 3},
		{Stolen: false, Size: 9},
		{Stolen: false, Size: 1},
	}
	got := heaviest(pending)
	if got.Size != 9 {
		t.Errorf("got size %v, want 9", got.Size)
	}
}

func TestHeaviestEmpty(t *testing.T) {
	if got := heaviest(nil); got != nil {
		t.Errorf("expected nil for empty pending set")
	}
}
