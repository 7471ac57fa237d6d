package sharing

import (
	"sort"

	"github.com/flowimprove/planimprove/pkg/plan"
)

// Reachability is the subset of the plan-task-graph collaborator (§6) the
// critical-section guard needs: whether dst is reachable from src without
// leaving src's originating area (machine).
type Reachability interface {
	IsReachableInSameArea(src, dst int64) bool
}

// InsertCriticalSectionGuards scans the plan for every mem-shared-id group
// (re-discovered directly from each regst-desc's MemSharedID field, not
// from the color classes that produced it, so this pass is independently
// correct even if mem-shared-ids were assigned by some other means) and,
// for each group with at least one consumer, serializes reuse of the
// shared buffer: group members are ordered by their producing task's
// OrderInGraph (a total order; duplicates are a caller precondition
// enforced upstream), the first member is the head, the rest are the
// tail. The union of the tail's consumer task-ids is pruned to its sinks
// under reach (a task is a sink iff no other task in the set is reachable
// from it), and one control edge is added from the head's producer to
// each sink: a dedicated control regst-desc tagged
// "out_ctrl_shared_mem_safe_guard" on the producer side and "in_ctrl" on
// the consumer side, created lazily and reused, with each
// (producer, consumer) pair recorded at most once. A single edge per sink
// suffices because sinks post-dominate the rest of the tail-consumer set
// in the reachability DAG.
func InsertCriticalSectionGuards(p *plan.Plan, reach Reachability) {
	groups := make(map[int32][]*plan.RegstDesc)
	var ids []int32
	p.ForEachRegstDesc(func(task *plan.TaskProto, r *plan.RegstDesc) {
		if r.MemSharedID == plan.UnsharedMemID {
			return
		}
		if _, ok := groups[r.MemSharedID]; !ok {
			ids = append(ids, r.MemSharedID)
		}
		groups[r.MemSharedID] = append(groups[r.MemSharedID], r)
	})
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	for _, id := range ids {
		members := groups[id]
		sort.Slice(members, func(i, j int) bool {
			ti := p.TaskByID(members[i].ProducerTaskID)
			tj := p.TaskByID(members[j].ProducerTaskID)
			return ti.OrderInGraph < tj.OrderInGraph
		})
		guardGroup(p, reach, members)
	}
}

func guardGroup(p *plan.Plan, reach Reachability, members []*plan.RegstDesc) {
	if len(members) < 2 {
		return
	}
	head := members[0]
	tail := members[1:]

	tailConsumers := make(map[int64]bool)
	var order []int64
	for _, r := range tail {
		for _, c := range r.ConsumerTaskIDs.Slice() {
			if !tailConsumers[c] {
				order = append(order, c)
			}
			tailConsumers[c] = true
		}
	}
	if len(tailConsumers) == 0 {
		return
	}
	sort.Slice(order, func(i, j int) bool { return order[i] < order[j] })

	sinks := sinksOf(order, reach)
	if len(sinks) == 0 {
		return
	}

	headProducer := p.TaskByID(head.ProducerTaskID)
	for _, sinkID := range sinks {
		sinkTask := p.TaskByID(sinkID)
		if sinkTask == nil {
			continue
		}
		outCtrl := p.FindOrCreateProducedCtrlRegstDesc(headProducer, plan.OutCtrlName)
		if outCtrl.ConsumerTaskIDs.Contains(sinkID) {
			continue
		}
		outCtrl.ConsumerTaskIDs.Add(sinkID)
		inCtrl := plan.FindOrCreateConsumedCtrlRegstDescIDSet(sinkTask, plan.InCtrlName)
		inCtrl.Add(outCtrl.ID)
	}
}

// sinksOf prunes candidates to those with no other candidate reachable
// from them, using reach. Order is preserved from candidates.
func sinksOf(candidates []int64, reach Reachability) []int64 {
	var sinks []int64
	for _, t := range candidates {
		isSink := true
		for _, other := range candidates {
			if other == t {
				continue
			}
			if reach.IsReachableInSameArea(t, other) {
				isSink = false
				break
			}
		}
		if isSink {
			sinks = append(sinks, t)
		}
	}
	return sinks
}
