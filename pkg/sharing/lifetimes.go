package sharing

import (
	"github.com/flowimprove/planimprove/pkg/plan"
	"github.com/flowimprove/planimprove/pkg/plantaskgraph"
)

// GraphLifetimes computes a regst-desc's lifetime as the set of actor ids
// it spans, over a plan-task-graph: a regst-desc is live from the order
// its producer runs at through the order of its last consumer, and
// ComputeLifetimeSameChainActorIDs resolves that order range to the
// concrete same-chain task ids it covers. Two regst-descs can never alias
// the same buffer if their lifetime sets share an actor id.
type GraphLifetimes struct {
	G plantaskgraph.Graph
}

// Lifetime implements Lifetimes.
func (l GraphLifetimes) Lifetime(p *plan.Plan, regstID int64) map[int64]bool {
	r := p.RegstDescByID(regstID)
	if r == nil {
		return nil
	}
	producer := p.TaskByID(r.ProducerTaskID)
	if producer == nil {
		return nil
	}

	fromOrder, toOrder := producer.OrderInGraph, producer.OrderInGraph
	for _, consumerID := range r.ConsumerTaskIDs.Slice() {
		consumer := p.TaskByID(consumerID)
		if consumer == nil {
			continue
		}
		if consumer.OrderInGraph > toOrder {
			toOrder = consumer.OrderInGraph
		}
	}

	ids := l.G.ComputeLifetimeSameChainActorIDs(producer.ChainID, fromOrder, toOrder)
	set := make(map[int64]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	return set
}
