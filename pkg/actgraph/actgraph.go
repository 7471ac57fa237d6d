// Package actgraph defines the activity-graph collaborator interface (§6)
// and an in-memory fixture implementation. Parsing real profile events and
// constructing the production activity graph from them is explicitly out
// of scope for the improver core; this package's Fixture exists only so
// that pkg/improver, its tests, and the CLI have something concrete to run
// against.
package actgraph

import "github.com/flowimprove/planimprove/pkg/plan"

// ActNode is one activation of an actor recorded by the profiler.
type ActNode struct {
	ActorID      int64
	WorkStreamID int64
	Duration     float64
}

// Graph is the activity-graph collaborator interface the improver consults
// for per-actor activation counts, durations, and per-regst-desc path
// duration/II-scale data.
type Graph interface {
	// ForEachNode visits every activity node, in a deterministic order.
	ForEachNode(fn func(node ActNode))
	// ActCount returns the activation count of the given actor.
	ActCount(actorID int64) int64
	// TaskProto looks up the TaskProto for the given actor id.
	TaskProto(actorID int64) (plan.TaskProto, bool)
	// ForEachRegstDescConsumerPathMeanDuration visits every
	// (regst_desc_id, consumer_actor_id, mean_duration) triple.
	ForEachRegstDescConsumerPathMeanDuration(fn func(regstDescID, consumerActorID int64, meanDuration float64))
	// ForEachRegstDescConsumerPathIIScale visits every
	// (regst_desc_id, consumer_actor_id, ii_scale) triple.
	ForEachRegstDescConsumerPathIIScale(fn func(regstDescID, consumerActorID int64, iiScale float64))
}

// Fixture is an in-memory Graph, built incrementally via its Add* methods.
type Fixture struct {
	nodes       []ActNode
	actCount    map[int64]int64
	taskProtos  map[int64]plan.TaskProto
	pathDur     []pathEntry
	pathIIScale []pathEntry
}

type pathEntry struct {
	regstDescID     int64
	consumerActorID int64
	value           float64
}

// NewFixture creates an empty activity-graph fixture.
func NewFixture() *Fixture {
	return &Fixture{
		actCount:   make(map[int64]int64),
		taskProtos: make(map[int64]plan.TaskProto),
	}
}

// AddNode records an activation of an actor. Also builds up ActCount as a
// convenience, so a fixture can be populated purely from raw activations
// if the caller does not need to override actor activation counts.
func (f *Fixture) AddNode(node ActNode) *Fixture {
	f.nodes = append(f.nodes, node)
	f.actCount[node.ActorID]++
	return f
}

// SetActCount overrides the activation count for an actor.
func (f *Fixture) SetActCount(actorID, count int64) *Fixture {
	f.actCount[actorID] = count
	return f
}

// SetTaskProto registers the TaskProto for an actor id.
func (f *Fixture) SetTaskProto(actorID int64, t plan.TaskProto) *Fixture {
	f.taskProtos[actorID] = t
	return f
}

// AddPathDuration records the mean path duration from a regst-desc to one
// of its consumer actors.
func (f *Fixture) AddPathDuration(regstDescID, consumerActorID int64, meanDuration float64) *Fixture {
	f.pathDur = append(f.pathDur, pathEntry{regstDescID, consumerActorID, meanDuration})
	return f
}

// AddPathIIScale records the II-scale of the path from a regst-desc to one
// of its consumer actors.
func (f *Fixture) AddPathIIScale(regstDescID, consumerActorID int64, iiScale float64) *Fixture {
	f.pathIIScale = append(f.pathIIScale, pathEntry{regstDescID, consumerActorID, iiScale})
	return f
}

// ForEachNode implements Graph.
func (f *Fixture) ForEachNode(fn func(node ActNode)) {
	for _, n := range f.nodes {
		fn(n)
	}
}

// ActCount implements Graph.
func (f *Fixture) ActCount(actorID int64) int64 {
	return f.actCount[actorID]
}

// TaskProto implements Graph.
func (f *Fixture) TaskProto(actorID int64) (plan.TaskProto, bool) {
	t, ok := f.taskProtos[actorID]
	return t, ok
}

// ForEachRegstDescConsumerPathMeanDuration implements Graph.
func (f *Fixture) ForEachRegstDescConsumerPathMeanDuration(fn func(regstDescID, consumerActorID int64, meanDuration float64)) {
	for _, e := range f.pathDur {
		fn(e.regstDescID, e.consumerActorID, e.value)
	}
}

// ForEachRegstDescConsumerPathIIScale implements Graph.
func (f *Fixture) ForEachRegstDescConsumerPathIIScale(fn func(regstDescID, consumerActorID int64, iiScale float64)) {
	for _, e := range f.pathIIScale {
		fn(e.regstDescID, e.consumerActorID, e.value)
	}
}
