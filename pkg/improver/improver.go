// Package improver implements the driver (C9): it runs the plan through
// Phase A (unlimited-memory register assignment, establishing the fastest
// achievable initiation interval), Phase B (mem-sharing candidate
// selection, color assignment, and critical-section control edges), and
// Phase C (a binary search over initiation interval against the
// now-reduced memory footprint, with a final register-count recompute).
// Each phase writes into a fresh clone of the previous phase's plan, never
// mutating it in place, which is what makes two Improve runs over
// identically-constructed fresh inputs (including a fresh IDManager)
// produce the same output.
package improver

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/flowimprove/planimprove/pkg/actgraph"
	"github.com/flowimprove/planimprove/pkg/iimodel"
	"github.com/flowimprove/planimprove/pkg/jobconf"
	"github.com/flowimprove/planimprove/pkg/memcheck"
	"github.com/flowimprove/planimprove/pkg/plan"
	"github.com/flowimprove/planimprove/pkg/plantaskgraph"
	"github.com/flowimprove/planimprove/pkg/sharing"
)

// FatalError wraps a precondition violation the caller's input plan or
// configuration triggered, as opposed to a bug in the improver itself
// (which still panics). Callers can errors.Is against the sentinels below
// to distinguish which precondition failed.
type FatalError struct {
	Err error
}

func (e *FatalError) Error() string { return fmt.Sprintf("improver: %v", e.Err) }
func (e *FatalError) Unwrap() error { return e.Err }

// Sentinel preconditions a FatalError may wrap.
var (
	ErrMemSharedIDWithMultiRegisters = memcheck.ErrMemSharedIDWithMultiRegisters
	ErrNotMemSharingEnabled          = errors.New("regst-desc carries a mem-shared-id but is not enabled for mem sharing")
	ErrDuplicateOrderInGraph         = errors.New("duplicate order_in_graph within one chain")
	ErrZoneNotPositive               = memcheck.ErrZoneNotPositive
	ErrInfeasibleAtMaxDuration       = memcheck.ErrInfeasibleAtMaxDuration
	ErrUnknownRegstDescID            = errors.New("activity graph references an unknown regst-desc id")
)

// Config carries the improver's external collaborators and tuning knobs.
type Config struct {
	JobDesc          *jobconf.JobDesc
	AvailableMemDesc *jobconf.AvailableMemDesc
	IDManager        jobconf.IDManager
	ActGraph         actgraph.Graph
	PlanTaskGraph    plantaskgraph.Graph

	// Workers bounds the concurrency of the mem-sharing color-assignment
	// pass. Defaults to 4 if zero or negative.
	Workers int
	// IIThreshold is the binary-search convergence threshold for Phase C.
	// Defaults to 1.0 (one time unit) if zero or negative.
	IIThreshold float64
}

func (c *Config) workers() int {
	if c.Workers > 0 {
		return c.Workers
	}
	return 4
}

func (c *Config) iiThreshold() float64 {
	if c.IIThreshold > 0 {
		return c.IIThreshold
	}
	return 1.0
}

// Improve runs the full three-phase pipeline over naivePlan and returns the
// improved plan. ctx is checked between phases; the improver's own
// computation is synchronous and never blocks, so cancellation only takes
// effect at a phase boundary.
func Improve(ctx context.Context, cfg *Config, naivePlan *plan.Plan) (*plan.Plan, error) {
	if err := validateOrderInGraph(naivePlan); err != nil {
		return nil, &FatalError{Err: err}
	}
	if err := validateMemSharingFlags(naivePlan); err != nil {
		return nil, &FatalError{Err: err}
	}

	stats := collectPathStats(cfg.ActGraph, cfg.JobDesc)
	if err := validateStatsKnown(naivePlan, stats); err != nil {
		return nil, &FatalError{Err: err}
	}

	phaseA := naivePlan.Clone()
	baseII := estimateBaseII(cfg.ActGraph, cfg.JobDesc)
	if err := applyRegstNums(phaseA, stats, baseII, false); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	phaseB := phaseA.Clone()
	if err := runMemSharing(phaseB, cfg); err != nil {
		return nil, err
	}
	sharing.InsertCriticalSectionGuards(phaseB, cfg.PlanTaskGraph)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	return runMemoryLimitedII(phaseB, cfg, stats, baseII)
}

func validateOrderInGraph(p *plan.Plan) error {
	seen := make(map[int64]map[int64]bool)
	for _, t := range p.Tasks {
		if seen[t.ChainID] == nil {
			seen[t.ChainID] = make(map[int64]bool)
		}
		if seen[t.ChainID][t.OrderInGraph] {
			return ErrDuplicateOrderInGraph
		}
		seen[t.ChainID][t.OrderInGraph] = true
	}
	return nil
}

func validateMemSharingFlags(p *plan.Plan) error {
	var err error
	p.ForEachRegstDesc(func(task *plan.TaskProto, r *plan.RegstDesc) {
		if err != nil || r.MemSharedID == plan.UnsharedMemID || r.EnableMemSharing {
			return
		}
		err = ErrNotMemSharingEnabled
	})
	return err
}

func validateStatsKnown(p *plan.Plan, stats map[int64]*pathStats) error {
	for id := range stats {
		if p.RegstDescByID(id) == nil {
			return ErrUnknownRegstDescID
		}
	}
	return nil
}

// pathStats is the per-regst-desc summary of its activity-graph data: the
// longest recorded consumer-path mean duration and II-scale.
type pathStats struct {
	maxDuration float64
	maxIIScale  float64
	has         bool
}

// collectPathStats summarizes, per regst-desc, the longest recorded
// consumer-path mean duration and II-scale. A consumer path into a
// model-save task has its recorded II-scale replaced with the job's
// pieces-per-snapshot count (§4.6, §8 S5): a model-save task only runs
// once per snapshot, so from the pipelining model's perspective it
// behaves like an ordinary consumer whose II is scaled up by however many
// ordinary pieces fit in that snapshot window.
func collectPathStats(ag actgraph.Graph, jobDesc *jobconf.JobDesc) map[int64]*pathStats {
	m := make(map[int64]*pathStats)
	get := func(id int64) *pathStats {
		s, ok := m[id]
		if !ok {
			s = &pathStats{maxIIScale: 1}
			m[id] = s
		}
		return s
	}
	ag.ForEachRegstDescConsumerPathMeanDuration(func(regstDescID, consumerActorID int64, d float64) {
		s := get(regstDescID)
		s.has = true
		if d > s.maxDuration {
			s.maxDuration = d
		}
	})
	ag.ForEachRegstDescConsumerPathIIScale(func(regstDescID, consumerActorID int64, scale float64) {
		s := get(regstDescID)
		if t, ok := ag.TaskProto(consumerActorID); ok && t.TaskType == plan.TaskTypeModelSave {
			scale = float64(jobDesc.NumOfPiecesInSnapshot())
		}
		if scale > s.maxIIScale {
			s.maxIIScale = scale
		}
	})
	return m
}

// estimateBaseII computes the base initiation interval (C6) directly from
// the activity graph's profiled activations: the floor on II set by the
// busiest work stream's accumulated per-activation compute time, with
// model-save activations amortized over the snapshot period they actually
// run on.
func estimateBaseII(ag actgraph.Graph, jobDesc *jobconf.JobDesc) float64 {
	var stats []iimodel.ActivationStat
	ag.ForEachNode(func(node actgraph.ActNode) {
		isModelSave := false
		if t, ok := ag.TaskProto(node.ActorID); ok {
			isModelSave = t.TaskType == plan.TaskTypeModelSave
		}
		stats = append(stats, iimodel.ActivationStat{
			ActorID:      node.ActorID,
			WorkStreamID: node.WorkStreamID,
			Duration:     node.Duration,
			IsModelSave:  isModelSave,
		})
	})

	actCount := make(map[int64]int64)
	seen := make(map[int64]bool)
	for _, s := range stats {
		if seen[s.ActorID] {
			continue
		}
		seen[s.ActorID] = true
		actCount[s.ActorID] = ag.ActCount(s.ActorID)
	}

	return iimodel.EstimateBaseII(stats, actCount, jobDesc.NumOfPiecesInSnapshot())
}

// applyRegstNums writes each regst-desc's register count for initiation
// interval ii. When memoryLimited is true, regst-descs already assigned a
// mem-shared-id are left untouched: they were already forced to a single
// register by the mem-sharing pass.
func applyRegstNums(p *plan.Plan, stats map[int64]*pathStats, ii float64, memoryLimited bool) error {
	if ii <= 0 {
		return fmt.Errorf("improver: non-positive initiation interval %v", ii)
	}
	p.ForEachRegstDesc(func(task *plan.TaskProto, r *plan.RegstDesc) {
		if memoryLimited && r.MemSharedID != plan.UnsharedMemID {
			return
		}
		duration, iiScale, has := 0.0, 1.0, false
		if s, ok := stats[r.ID]; ok {
			duration, iiScale, has = s.maxDuration, s.maxIIScale, s.has
		}
		minN := r.MinRegisterNum
		if minN == 0 {
			minN = 1
		}
		r.RegisterNum = iimodel.RegstNumForDesc(duration, ii, iiScale, has, minN, r.MaxRegisterNum)
	})
	return nil
}

func runMemSharing(p *plan.Plan, cfg *Config) error {
	noConsumer, withConsumer := sharing.SelectPools(p)

	lt := sharing.GraphLifetimes{G: cfg.PlanTaskGraph}
	classes := sharing.ColorPools(p, withConsumer, lt, cfg.workers())

	// No-consumer pools never have an overlapping read window (there is
	// nothing to read), so every member of a work-stream's no-consumer
	// pool is always safe to coalesce into one class without running the
	// lifetime-intersection pass.
	for _, pool := range noConsumer {
		classes = append(classes, sharing.ColorClass{RegstIDs: pool.RegstDescIDs})
	}

	sharing.AssignMemSharedIDs(p, classes, cfg.IDManager.NewMemSharedID)
	return nil
}

func zoneKey(machineID, zoneID int64) string {
	return fmt.Sprintf("%d:%d", machineID, zoneID)
}

func buildZoneRegstDescs(p *plan.Plan, cfg *Config) []memcheck.ZoneRegstDescs {
	byZone := make(map[string]*memcheck.ZoneRegstDescs)
	var order []string

	p.ForEachRegstDesc(func(task *plan.TaskProto, r *plan.RegstDesc) {
		machineID := cfg.IDManager.MachineID(task.TaskID)
		zoneID := jobconf.ZoneIDForMemCase(r.MemCase, cfg.JobDesc)
		key := zoneKey(machineID, zoneID)
		z, ok := byZone[key]
		if !ok {
			z = &memcheck.ZoneRegstDescs{MachineID: machineID, ZoneID: zoneID}
			byZone[key] = z
			order = append(order, key)
		}
		z.Entries = append(z.Entries, memcheck.RegstEntry{
			RegstDescID: r.ID,
			MemSharedID: r.MemSharedID,
			RegisterNum: r.RegisterNum,
			ByteSize:    r.ByteSize,
		})
	})

	sort.Strings(order)
	zones := make([]memcheck.ZoneRegstDescs, 0, len(order))
	for _, k := range order {
		zones = append(zones, *byZone[k])
	}
	return zones
}

// buildAvailableByZone computes each (machine, memory_zone)'s available
// capacity after reservations. The host zone's reservation additionally
// scales the persistence buffer by how many record-load tasks run on that
// machine (§4.7, §4.9 step 1): each record-load task keeps its own
// persistence buffer resident on the host throughout the run, so the host
// zone's reservation must account for all of them, not just one.
func buildAvailableByZone(cfg *Config, p *plan.Plan) (map[string]uint64, error) {
	recordLoadTaskNum := make(map[int64]uint64)
	for _, t := range p.Tasks {
		if t.TaskType == plan.TaskTypeRecordLoad {
			recordLoadTaskNum[t.MachineID]++
		}
	}

	avail := make(map[string]uint64)
	for machineID := int64(0); machineID < cfg.JobDesc.TotalMachineNum; machineID++ {
		for zoneID := int64(0); zoneID <= cfg.JobDesc.GPUDeviceNum; zoneID++ {
			raw, ok := cfg.AvailableMemDesc.ZoneSize(machineID, zoneID)
			if !ok {
				continue
			}
			reserved := cfg.JobDesc.ReservedDeviceMemByte
			if zoneID == cfg.JobDesc.HostZoneID() {
				reserved = cfg.JobDesc.ReservedHostMemByte + cfg.JobDesc.PersistenceBufByte*recordLoadTaskNum[machineID]
			}
			size, err := memcheck.AvailableMemSize(raw, reserved)
			if err != nil {
				return nil, err
			}
			avail[zoneKey(machineID, zoneID)] = size
		}
	}
	return avail, nil
}

func runMemoryLimitedII(p *plan.Plan, cfg *Config, stats map[int64]*pathStats, baseII float64) (*plan.Plan, error) {
	avail, err := buildAvailableByZone(cfg, p)
	if err != nil {
		return nil, &FatalError{Err: err}
	}

	var durations []float64
	for _, s := range stats {
		durations = append(durations, s.maxDuration)
	}
	maxDuration := memcheck.MaxPathDuration(durations)
	if maxDuration < baseII {
		maxDuration = baseII
	}

	feasible := func(ii float64) (bool, error) {
		candidate := p.Clone()
		if err := applyRegstNums(candidate, stats, ii, true); err != nil {
			return false, err
		}
		zones := buildZoneRegstDescs(candidate, cfg)
		overflow, err := memcheck.IsAnyZoneOverflow(zones, plan.UnsharedMemID, avail, zoneKey)
		if err != nil {
			return false, err
		}
		return !overflow, nil
	}

	finalII, err := memcheck.BinarySearchII(baseII, maxDuration, cfg.iiThreshold(), feasible)
	if err != nil {
		if errors.Is(err, memcheck.ErrMemSharedIDWithMultiRegisters) || errors.Is(err, memcheck.ErrInfeasibleAtMaxDuration) {
			return nil, &FatalError{Err: err}
		}
		return nil, err
	}

	final := p.Clone()
	if err := applyRegstNums(final, stats, finalII, true); err != nil {
		return nil, err
	}
	return final, nil
}
