// Package plantaskgraph defines the plan-task-graph collaborator interface
// (§6): the reachability query the critical-section guard (C4) needs and
// the same-chain lifetime query pkg/sharing's GraphLifetimes uses to build
// the lifetime-intersection graph (C1), plus a concrete Build
// implementation over a plan's control/data edges.
package plantaskgraph

import (
	"sort"

	"github.com/flowimprove/planimprove/pkg/plan"
)

// Graph is the plan-task-graph collaborator interface.
type Graph interface {
	// TaskProto looks up a task by id.
	TaskProto(taskID int64) (plan.TaskProto, bool)
	// ComputeLifetimeSameChainActorIDs returns the ids of every task on the
	// same chain whose OrderInGraph falls within [fromOrder, toOrder], the
	// conservative same-chain lifetime window pkg/sharing's GraphLifetimes
	// uses as a regst-desc's lifetime set.
	ComputeLifetimeSameChainActorIDs(chainID, fromOrder, toOrder int64) []int64
	// IsReachableInSameArea reports whether toTaskID is reachable from
	// fromTaskID by following data/control edges without leaving the
	// originating task's machine.
	IsReachableInSameArea(fromTaskID, toTaskID int64) bool
}

// edge is a directed data or control dependency: producer -> consumer.
type edge struct {
	from, to int64
}

// Builder builds a Graph over a Plan's data and control edges.
type Builder struct {
	p *plan.Plan
}

// NewBuilder wraps a plan for graph construction.
func NewBuilder(p *plan.Plan) *Builder {
	return &Builder{p: p}
}

// Build walks the plan's regst-desc producer/consumer relationships
// (including control regst-descs) into a queryable Graph.
func (b *Builder) Build() Graph {
	g := &builtGraph{
		tasks:   make(map[int64]plan.TaskProto),
		outEdge: make(map[int64][]int64),
		byChain: make(map[int64][]*plan.TaskProto),
	}
	for _, t := range b.p.Tasks {
		g.tasks[t.TaskID] = *t
		g.byChain[t.ChainID] = append(g.byChain[t.ChainID], t)
	}
	for chain := range g.byChain {
		sort.Slice(g.byChain[chain], func(i, j int) bool {
			return g.byChain[chain][i].OrderInGraph < g.byChain[chain][j].OrderInGraph
		})
	}

	for _, t := range b.p.Tasks {
		for _, r := range t.ProducedRegstDescs {
			for _, consumerID := range r.ConsumerTaskIDs.Slice() {
				g.addEdge(t.TaskID, consumerID)
			}
		}
	}
	return g
}

type builtGraph struct {
	tasks   map[int64]plan.TaskProto
	outEdge map[int64][]int64
	byChain map[int64][]*plan.TaskProto
}

func (g *builtGraph) addEdge(from, to int64) {
	g.outEdge[from] = append(g.outEdge[from], to)
}

// TaskProto implements Graph.
func (g *builtGraph) TaskProto(taskID int64) (plan.TaskProto, bool) {
	t, ok := g.tasks[taskID]
	return t, ok
}

// ComputeLifetimeSameChainActorIDs implements Graph.
func (g *builtGraph) ComputeLifetimeSameChainActorIDs(chainID, fromOrder, toOrder int64) []int64 {
	var ids []int64
	for _, t := range g.byChain[chainID] {
		if t.OrderInGraph >= fromOrder && t.OrderInGraph <= toOrder {
			ids = append(ids, t.TaskID)
		}
	}
	return ids
}

// IsReachableInSameArea implements Graph: BFS over out-edges restricted to
// tasks on the same machine as fromTaskID.
func (g *builtGraph) IsReachableInSameArea(fromTaskID, toTaskID int64) bool {
	from, ok := g.tasks[fromTaskID]
	if !ok {
		return false
	}
	if fromTaskID == toTaskID {
		return true
	}
	visited := map[int64]bool{fromTaskID: true}
	queue := []int64{fromTaskID}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, next := range g.outEdge[cur] {
			if visited[next] {
				continue
			}
			nextTask, ok := g.tasks[next]
			if !ok || nextTask.MachineID != from.MachineID {
				continue
			}
			if next == toTaskID {
				return true
			}
			visited[next] = true
			queue = append(queue, next)
		}
	}
	return false
}
