package sharing

import (
	"testing"

	"github.com/flowimprove/planimprove/pkg/plan"
	"github.com/flowimprove/planimprove/pkg/plantaskgraph"
	"github.com/flowimprove/planimprove/pkg/regstset"
)

func TestGraphLifetimesSequentialRegstsDoNotIntersect(t *testing.T) {
	// Chain 0: t1(order 0) -> t2(order 1) -> t3(order 2) -> t4(order 3).
	// r1 runs from t1 to t2 (orders [0,1]); r2 runs from t3 to t4 (orders
	// [2,3]). r1's last consumer's order is strictly below r2's producer's
	// order, so r1 is fully retired before r2 starts and the two lifetime
	// sets share no task. (Had r2 been produced by t2, both sets would
	// contain t2 and overlap at that boundary task.)
	t1 := &plan.TaskProto{TaskID: 1, ChainID: 0, OrderInGraph: 0, ProducedRegstDescs: map[string]*plan.RegstDesc{}}
	t2 := &plan.TaskProto{TaskID: 2, ChainID: 0, OrderInGraph: 1, ProducedRegstDescs: map[string]*plan.RegstDesc{}}
	t3 := &plan.TaskProto{TaskID: 3, ChainID: 0, OrderInGraph: 2, ProducedRegstDescs: map[string]*plan.RegstDesc{}}
	t4 := &plan.TaskProto{TaskID: 4, ChainID: 0, OrderInGraph: 3, ProducedRegstDescs: map[string]*plan.RegstDesc{}}

	r1 := &plan.RegstDesc{ID: 1, ProducerTaskID: 1, ConsumerTaskIDs: regstset.Of(2)}
	r2 := &plan.RegstDesc{ID: 2, ProducerTaskID: 3, ConsumerTaskIDs: regstset.Of(4)}
	t1.ProducedRegstDescs["out"] = r1
	t3.ProducedRegstDescs["out"] = r2

	p := plan.NewPlan([]*plan.TaskProto{t1, t2, t3, t4})
	g := plantaskgraph.NewBuilder(p).Build()
	lt := GraphLifetimes{G: g}

	l1, l2 := lt.Lifetime(p, 1), lt.Lifetime(p, 2)
	for actorID := range l1 {
		if l2[actorID] {
			t.Fatalf("expected r1 (orders [0,1]) and r2 (orders [2,3]) to share no actor, both cover %d", actorID)
		}
	}
}

func TestGraphLifetimesConcurrentRegstsIntersect(t *testing.T) {
	// t1 and t2 both feed t3 independently, all on chain 0: their order
	// ranges both include t3's order, so their lifetime sets overlap.
	t1 := &plan.TaskProto{TaskID: 1, ChainID: 0, OrderInGraph: 0, ProducedRegstDescs: map[string]*plan.RegstDesc{}}
	t2 := &plan.TaskProto{TaskID: 2, ChainID: 0, OrderInGraph: 1, ProducedRegstDescs: map[string]*plan.RegstDesc{}}
	t3 := &plan.TaskProto{TaskID: 3, ChainID: 0, OrderInGraph: 2, ProducedRegstDescs: map[string]*plan.RegstDesc{}}

	r1 := &plan.RegstDesc{ID: 1, ProducerTaskID: 1, ConsumerTaskIDs: regstset.Of(3)}
	r2 := &plan.RegstDesc{ID: 2, ProducerTaskID: 2, ConsumerTaskIDs: regstset.Of(3)}
	t1.ProducedRegstDescs["out"] = r1
	t2.ProducedRegstDescs["out"] = r2

	p := plan.NewPlan([]*plan.TaskProto{t1, t2, t3})
	g := plantaskgraph.NewBuilder(p).Build()
	lt := GraphLifetimes{G: g}

	l1, l2 := lt.Lifetime(p, 1), lt.Lifetime(p, 2)
	if !l1[3] || !l2[3] {
		t.Fatalf("expected both lifetimes to cover task 3 (order 2), got %v and %v", l1, l2)
	}
}
