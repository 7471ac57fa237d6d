package sharing

import (
	"testing"

	"github.com/flowimprove/planimprove/pkg/plan"
	"github.com/flowimprove/planimprove/pkg/regstset"
)

// mkTask builds a single-regst-desc task with the given id, used by tests
// that don't care about chain/stream grouping.
func mkTask(id int64, name string, r *plan.RegstDesc) *plan.TaskProto {
	return &plan.TaskProto{
		TaskID:             id,
		ProducedRegstDescs: map[string]*plan.RegstDesc{name: r},
	}
}

func TestSelectPoolsGroupsNoConsumerByWorkStream(t *testing.T) {
	r1 := &plan.RegstDesc{ID: 1, EnableMemSharing: true, ConsumerTaskIDs: regstset.New()}
	r2 := &plan.RegstDesc{ID: 2, EnableMemSharing: true, ConsumerTaskIDs: regstset.New()}
	r3 := &plan.RegstDesc{ID: 3, EnableMemSharing: true, ConsumerTaskIDs: regstset.New()}
	r4 := &plan.RegstDesc{ID: 4, EnableMemSharing: false, ConsumerTaskIDs: regstset.New()}

	t1 := &plan.TaskProto{TaskID: 1, WorkStreamID: 0, ChainID: 0, ProducedRegstDescs: map[string]*plan.RegstDesc{"out": r1}}
	t2 := &plan.TaskProto{TaskID: 2, WorkStreamID: 0, ChainID: 1, ProducedRegstDescs: map[string]*plan.RegstDesc{"out": r2}}
	t3 := &plan.TaskProto{TaskID: 3, WorkStreamID: 1, ChainID: 2, ProducedRegstDescs: map[string]*plan.RegstDesc{"out": r3}}
	t4 := &plan.TaskProto{TaskID: 4, WorkStreamID: 0, ChainID: 3, ProducedRegstDescs: map[string]*plan.RegstDesc{"out": r4}}

	p := plan.NewPlan([]*plan.TaskProto{t1, t2, t3, t4})
	noConsumer, withConsumer := SelectPools(p)

	if len(withConsumer) != 0 {
		t.Fatalf("expected no with-consumer pools, got %+v", withConsumer)
	}
	if len(noConsumer) != 2 {
		t.Fatalf("expected 2 no-consumer pools (one per work-stream), got %d: %+v", len(noConsumer), noConsumer)
	}
	if len(noConsumer[0].RegstDescIDs) != 2 || noConsumer[0].RegstDescIDs[0] != 1 || noConsumer[0].RegstDescIDs[1] != 2 {
		t.Fatalf("expected stream 0's pool to contain regst-descs 1 and 2, got %+v", noConsumer[0])
	}
	if len(noConsumer[1].RegstDescIDs) != 1 || noConsumer[1].RegstDescIDs[0] != 3 {
		t.Fatalf("expected stream 1's pool to contain regst-desc 3 only, got %+v", noConsumer[1])
	}
}

func TestSelectPoolsGroupsWithConsumerByChain(t *testing.T) {
	// Chain 0 has 3 tasks: t1 and t2 both produce regst-descs consumed
	// only within chain 0; both already hold exactly one register.
	r1 := &plan.RegstDesc{ID: 1, EnableMemSharing: true, RegisterNum: 1, ConsumerTaskIDs: regstset.Of(3)}
	r2 := &plan.RegstDesc{ID: 2, EnableMemSharing: true, RegisterNum: 1, ConsumerTaskIDs: regstset.Of(3)}
	t1 := &plan.TaskProto{TaskID: 1, ChainID: 0, ProducedRegstDescs: map[string]*plan.RegstDesc{"out": r1}}
	t2 := &plan.TaskProto{TaskID: 2, ChainID: 0, ProducedRegstDescs: map[string]*plan.RegstDesc{"out": r2}}
	t3 := &plan.TaskProto{TaskID: 3, ChainID: 0, ProducedRegstDescs: map[string]*plan.RegstDesc{}}

	p := plan.NewPlan([]*plan.TaskProto{t1, t2, t3})
	noConsumer, withConsumer := SelectPools(p)

	if len(noConsumer) != 0 {
		t.Fatalf("expected no no-consumer pools, got %+v", noConsumer)
	}
	if len(withConsumer) != 1 {
		t.Fatalf("expected 1 with-consumer pool (chain 0), got %d: %+v", len(withConsumer), withConsumer)
	}
	if len(withConsumer[0].RegstDescIDs) != 2 {
		t.Fatalf("expected both regst-descs pooled under chain 0, got %+v", withConsumer[0])
	}
}

func TestSelectPoolsExcludesMultiRegisterFromWithConsumerPool(t *testing.T) {
	r1 := &plan.RegstDesc{ID: 1, EnableMemSharing: true, RegisterNum: 2, ConsumerTaskIDs: regstset.Of(2)}
	t1 := &plan.TaskProto{TaskID: 1, ChainID: 0, ProducedRegstDescs: map[string]*plan.RegstDesc{"out": r1}}
	t2 := &plan.TaskProto{TaskID: 2, ChainID: 0, ProducedRegstDescs: map[string]*plan.RegstDesc{}}

	p := plan.NewPlan([]*plan.TaskProto{t1, t2})
	_, withConsumer := SelectPools(p)
	if len(withConsumer) != 0 {
		t.Fatalf("expected regst-desc with RegisterNum != 1 to be excluded, got %+v", withConsumer)
	}
}

func TestSelectPoolsExcludesCrossChainConsumer(t *testing.T) {
	r1 := &plan.RegstDesc{ID: 1, EnableMemSharing: true, RegisterNum: 1, ConsumerTaskIDs: regstset.Of(2)}
	t1 := &plan.TaskProto{TaskID: 1, ChainID: 0, ProducedRegstDescs: map[string]*plan.RegstDesc{"out": r1}}
	t2 := &plan.TaskProto{TaskID: 2, ChainID: 1, ProducedRegstDescs: map[string]*plan.RegstDesc{}}
	t3 := &plan.TaskProto{TaskID: 3, ChainID: 0, ProducedRegstDescs: map[string]*plan.RegstDesc{}}

	p := plan.NewPlan([]*plan.TaskProto{t1, t2, t3})
	_, withConsumer := SelectPools(p)
	if len(withConsumer) != 0 {
		t.Fatalf("expected a regst-desc with a cross-chain consumer to be excluded, got %+v", withConsumer)
	}
}

func TestSelectPoolsExcludesSingleTaskChains(t *testing.T) {
	r1 := &plan.RegstDesc{ID: 1, EnableMemSharing: true, RegisterNum: 1, ConsumerTaskIDs: regstset.Of(1)}
	t1 := &plan.TaskProto{TaskID: 1, ChainID: 0, ProducedRegstDescs: map[string]*plan.RegstDesc{"out": r1}}

	p := plan.NewPlan([]*plan.TaskProto{t1})
	_, withConsumer := SelectPools(p)
	if len(withConsumer) != 0 {
		t.Fatalf("expected a single-task chain to be excluded from with-consumer pooling, got %+v", withConsumer)
	}
}
