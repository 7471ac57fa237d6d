package actgraph

import (
	"testing"

	"github.com/flowimprove/planimprove/pkg/plan"
)

func TestFixtureActCountFromAddNode(t *testing.T) {
	f := NewFixture()
	f.AddNode(ActNode{ActorID: 1})
	f.AddNode(ActNode{ActorID: 1})
	f.AddNode(ActNode{ActorID: 2})

	if got := f.ActCount(1); got != 2 {
		t.Fatalf("ActCount(1) = %d, want 2", got)
	}
	if got := f.ActCount(2); got != 1 {
		t.Fatalf("ActCount(2) = %d, want 1", got)
	}
}

func TestFixtureSetActCountOverrides(t *testing.T) {
	f := NewFixture()
	f.AddNode(ActNode{ActorID: 1})
	f.SetActCount(1, 50)
	if got := f.ActCount(1); got != 50 {
		t.Fatalf("ActCount(1) = %d, want 50", got)
	}
}

func TestFixtureTaskProtoLookup(t *testing.T) {
	f := NewFixture()
	want := plan.TaskProto{TaskID: 7}
	f.SetTaskProto(7, want)

	got, ok := f.TaskProto(7)
	if !ok || got.TaskID != 7 {
		t.Fatalf("TaskProto(7) = %v,%v want %v,true", got, ok, want)
	}
	if _, ok := f.TaskProto(99); ok {
		t.Fatal("expected TaskProto(99) to report not-ok")
	}
}

func TestFixtureForEachPath(t *testing.T) {
	f := NewFixture()
	f.AddPathDuration(1, 10, 2.5)
	f.AddPathDuration(1, 11, 3.5)
	f.AddPathIIScale(1, 10, 1.0)

	var durs []float64
	f.ForEachRegstDescConsumerPathMeanDuration(func(regstDescID, consumerActorID int64, d float64) {
		if regstDescID != 1 {
			t.Fatalf("unexpected regstDescID %d", regstDescID)
		}
		durs = append(durs, d)
	})
	if len(durs) != 2 {
		t.Fatalf("expected 2 duration entries, got %d", len(durs))
	}

	var scales []float64
	f.ForEachRegstDescConsumerPathIIScale(func(regstDescID, consumerActorID int64, s float64) {
		scales = append(scales, s)
	})
	if len(scales) != 1 || scales[0] != 1.0 {
		t.Fatalf("expected one ii-scale entry of 1.0, got %v", scales)
	}
}

func TestFixtureForEachNodeOrder(t *testing.T) {
	f := NewFixture()
	f.AddNode(ActNode{ActorID: 1, Duration: 1})
	f.AddNode(ActNode{ActorID: 2, Duration: 2})

	var seen []int64
	f.ForEachNode(func(n ActNode) { seen = append(seen, n.ActorID) })
	if len(seen) != 2 || seen[0] != 1 || seen[1] != 2 {
		t.Fatalf("unexpected node visit order: %v", seen)
	}
}
