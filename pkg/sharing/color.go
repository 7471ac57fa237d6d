package sharing

import (
	"sort"
	"sync"

	"github.com/flowimprove/planimprove/pkg/lifetime"
	"github.com/flowimprove/planimprove/pkg/plan"
)

// Lifetimes answers a regst-desc's lifetime as the set of actor ids it
// spans: two regst-descs' lifetimes intersect iff their sets share an
// actor id.
type Lifetimes interface {
	// Lifetime returns the set of actor ids the given regst-desc's
	// lifetime spans.
	Lifetime(p *plan.Plan, regstID int64) map[int64]bool
}

// BuildLifetimeGraph constructs the C1 lifetime-intersection graph over
// one pool's regst-desc ids using an inverted index: rather than
// pairwise-intersecting every pair of lifetime sets, it buckets every
// regst-desc id by each actor id its lifetime spans, then connects every
// pair of ids that land in the same bucket. Two regst-descs land in a
// shared bucket iff their lifetime sets intersect, so this produces
// exactly the adjacency pairwise intersection would, without re-walking
// every set pair.
func BuildLifetimeGraph(p *plan.Plan, ids []int64, lt Lifetimes) *lifetime.Graph {
	g := lifetime.New()
	for _, id := range ids {
		g.AddNode(id)
	}

	byActor := make(map[int64][]int64)
	var actorOrder []int64
	for _, id := range ids {
		for actorID := range lt.Lifetime(p, id) {
			if _, ok := byActor[actorID]; !ok {
				actorOrder = append(actorOrder, actorID)
			}
			byActor[actorID] = append(byActor[actorID], id)
		}
	}

	sort.Slice(actorOrder, func(i, j int) bool { return actorOrder[i] < actorOrder[j] })
	for _, actorID := range actorOrder {
		members := byActor[actorID]
		sort.Slice(members, func(i, j int) bool { return members[i] < members[j] })
		for i := 0; i < len(members); i++ {
			for j := i + 1; j < len(members); j++ {
				g.AddEdge(members[i], members[j])
			}
		}
	}
	return g
}

// ColorClass is a group of regst-desc ids that a single coloring pass
// determined are pairwise non-intersecting, from one originating pool.
type ColorClass struct {
	RegstIDs []int64
}

// ColorPools runs the lifetime-graph build-and-color pass over every pool
// and returns the resulting color classes, grouped per pool in the order
// the pools were given. Singleton classes are included: a regst-desc that
// ends up alone in its class (for example because its lifetime intersects
// every other member of its pool) still gets assigned a mem-shared-id by
// AssignMemSharedIDs, it just has no critical-section edge to guard. The per-pool work is
// independent, so it runs over a bounded worker pool sized workers (at
// least 1); results are collected back into deterministic,
// pool-order-then-class-order slices regardless of goroutine completion
// order.
func ColorPools(p *plan.Plan, pools []Pool, lt Lifetimes, workers int) []ColorClass {
	if workers < 1 {
		workers = 1
	}

	results := make([][]ColorClass, len(pools))
	jobs := make(chan int)
	var wg sync.WaitGroup

	worker := func() {
		defer wg.Done()
		for i := range jobs {
			pool := pools[i]
			g := BuildLifetimeGraph(p, pool.RegstDescIDs, lt)
			classes := g.Color()
			out := make([]ColorClass, 0, len(classes))
			for _, c := range classes {
				out = append(out, ColorClass{RegstIDs: c})
			}
			results[i] = out
		}
	}

	n := workers
	if n > len(pools) {
		n = len(pools)
	}
	if n < 1 {
		n = 1
	}
	wg.Add(n)
	for w := 0; w < n; w++ {
		go worker()
	}
	for i := range pools {
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	var all []ColorClass
	for _, r := range results {
		all = append(all, r...)
	}
	return all
}

// AssignMemSharedIDs writes a fresh mem-shared-id into every regst-desc in
// each color class, including singletons, and forces RegisterNum to 1 on
// them (an aliased buffer is a single physical allocation sized for
// exactly one register, regardless of how many other regst-descs ended up
// sharing its class in this run). Classes are processed in a fixed order
// (sorted by their lowest member id) so repeated runs over the same input
// assign ids identically modulo the IDManager's own starting counter.
func AssignMemSharedIDs(p *plan.Plan, classes []ColorClass, newMemSharedID func() int64) {
	sort.Slice(classes, func(i, j int) bool {
		return classes[i].RegstIDs[0] < classes[j].RegstIDs[0]
	})
	for _, class := range classes {
		if len(class.RegstIDs) == 0 {
			continue
		}
		id := int32(newMemSharedID())
		for _, regstID := range class.RegstIDs {
			r := p.RegstDescByID(regstID)
			if r == nil {
				continue
			}
			r.MemSharedID = id
			r.RegisterNum = 1
		}
	}
}
