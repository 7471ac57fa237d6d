// Package sharing implements mem-sharing candidate selection (C2),
// lifetime-graph-driven color assignment into mem-shared-ids (C3), and the
// critical-section control-edge guard that keeps aliased buffers safe
// (C4).
package sharing

import (
	"sort"

	"github.com/flowimprove/planimprove/pkg/plan"
)

// Pool is a candidate set of regst-desc ids eligible to share a buffer,
// subject to lifetime-intersection checks.
type Pool struct {
	RegstDescIDs []int64
}

// SelectPools groups every mem-sharing-enabled regst-desc in the plan into
// two families of candidate pools (C2). A regst-desc with no consumers is
// pooled by its producing task's global work-stream id: a consumerless
// buffer never has a read window to overlap with anything else's, so
// every such regst-desc on the same stream is always safe to coalesce
// with no lifetime check. A regst-desc with at least one consumer is
// pooled by chain id instead, subject to isSharableWithConsumer's
// eligibility filters, since aliasing across chains or across a chain's
// own regenerating loop needs the lifetime-intersection pass (C1) to rule
// out unsafe overlaps.
func SelectPools(p *plan.Plan) (noConsumer, withConsumer []Pool) {
	chainTaskCount := make(map[int64]int)
	for _, t := range p.Tasks {
		chainTaskCount[t.ChainID]++
	}

	noConsumerByStream := make(map[int64][]int64)
	var streamOrder []int64
	withConsumerByChain := make(map[int64][]int64)
	var chainOrder []int64

	p.ForEachRegstDesc(func(task *plan.TaskProto, r *plan.RegstDesc) {
		if !r.EnableMemSharing {
			return
		}
		if len(r.ConsumerTaskIDs) == 0 {
			streamID := task.WorkStreamID
			if _, ok := noConsumerByStream[streamID]; !ok {
				streamOrder = append(streamOrder, streamID)
			}
			noConsumerByStream[streamID] = append(noConsumerByStream[streamID], r.ID)
			return
		}
		if !isSharableWithConsumer(p, task, r, chainTaskCount) {
			return
		}
		chainID := task.ChainID
		if _, ok := withConsumerByChain[chainID]; !ok {
			chainOrder = append(chainOrder, chainID)
		}
		withConsumerByChain[chainID] = append(withConsumerByChain[chainID], r.ID)
	})

	sort.Slice(streamOrder, func(i, j int) bool { return streamOrder[i] < streamOrder[j] })
	for _, streamID := range streamOrder {
		ids := noConsumerByStream[streamID]
		sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
		noConsumer = append(noConsumer, Pool{RegstDescIDs: ids})
	}

	sort.Slice(chainOrder, func(i, j int) bool { return chainOrder[i] < chainOrder[j] })
	for _, chainID := range chainOrder {
		ids := withConsumerByChain[chainID]
		sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
		withConsumer = append(withConsumer, Pool{RegstDescIDs: ids})
	}
	return noConsumer, withConsumer
}

// isSharableWithConsumer applies C2's eligibility filters to a regst-desc
// that has at least one consumer. It must already hold exactly one
// register: an aliased buffer is a single physical allocation, so a
// regst-desc that still needs more than one register can never join it.
// Every one of its consumers must be on the same chain as its producer:
// a cross-chain alias could be overwritten by another chain's own
// regenerating loop before its rightful consumer runs. And its chain must
// contain more than one task: a single-task chain never regenerates, so
// there is no second lifetime for a shared buffer to ever protect against
// in it.
func isSharableWithConsumer(p *plan.Plan, producer *plan.TaskProto, r *plan.RegstDesc, chainTaskCount map[int64]int) bool {
	if r.RegisterNum != 1 {
		return false
	}
	if chainTaskCount[producer.ChainID] <= 1 {
		return false
	}
	for _, consumerID := range r.ConsumerTaskIDs.Slice() {
		consumer := p.TaskByID(consumerID)
		if consumer == nil || consumer.ChainID != producer.ChainID {
			return false
		}
	}
	return true
}
