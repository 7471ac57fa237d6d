// Package iimodel implements the initiation-interval/register-count
// formulas (C5, C6): converting between a regst-desc's steady-state
// duration and the register count needed to pipeline it at a given II,
// and the reverse. The formulas are lifted directly from the dataflow
// scheduling model this improver descends from; they are pure functions
// over floats and carry no state.
package iimodel

import "math"

// CalcRegstNum returns the minimum register count needed so a regst-desc
// with the given steady-state duration can be pipelined at initiation
// interval ii, when the consumer path scales the interval by iiScale
// (iiScale == 1 for an ordinary consumer; > 1 for e.g. a model-save task
// that only needs to run once per snapshot).
func CalcRegstNum(duration, ii, iiScale float64) float64 {
	return ((iiScale-1)*ii + duration) / (iiScale * ii)
}

// CalcII is the inverse of CalcRegstNum: the initiation interval a
// regst-desc with the given duration achieves with regstNum registers.
func CalcII(duration float64, regstNum uint64, iiScale float64) float64 {
	return duration / (float64(regstNum-1)*iiScale + 1)
}

// RegstNumForDesc returns the register count a regst-desc needs at
// initiation interval ii, given the longest per-consumer path duration and
// largest per-consumer II-scale recorded for it (an empty consumer-path
// set, meaning the regst-desc has no recorded consumer paths, resolves
// directly to minRegstNum), clamped to [minRegstNum, maxRegstNum].
func RegstNumForDesc(duration, ii, iiScale float64, hasConsumerPaths bool, minRegstNum, maxRegstNum uint64) uint64 {
	if !hasConsumerPaths {
		return clamp(minRegstNum, minRegstNum, maxRegstNum)
	}
	n := uint64(math.Ceil(CalcRegstNum(duration, ii, iiScale)))
	return clamp(n, minRegstNum, maxRegstNum)
}

func clamp(n, lo, hi uint64) uint64 {
	if n < lo {
		return lo
	}
	if hi > 0 && n > hi {
		return hi
	}
	return n
}

// ActivationStat is one profiled activity node: which actor produced it,
// which work stream the actor executes on, its recorded duration, and
// whether the actor is a model-save task. Model-save activations are
// amortized over the snapshot period rather than counted at face value,
// since model-save runs far less often than ordinary training pieces.
type ActivationStat struct {
	ActorID      int64
	WorkStreamID int64
	Duration     float64
	IsModelSave  bool
}

// EstimateBaseII computes the base initiation interval (C6): the lower
// bound on II set by the busiest work stream's per-activation compute
// time. actCount maps each actor to its activation count; M is the
// largest such count over all actors, and freq(a) = actCount(a)/M. Every
// activation's "formal" duration is its recorded duration, except a
// model-save activation's duration is divided by its own freq(a) and
// then by piecesInSnapshot, amortizing its infrequent, expensive
// activations over the snapshot period it actually runs on. Formal
// durations are accumulated per work stream, and the base II is the
// busiest stream's total divided by M.
func EstimateBaseII(stats []ActivationStat, actCount map[int64]int64, piecesInSnapshot uint64) float64 {
	var m int64
	for _, c := range actCount {
		if c > m {
			m = c
		}
	}
	if m == 0 {
		return 0
	}

	totalByStream := make(map[int64]float64)
	for _, s := range stats {
		formal := s.Duration
		if s.IsModelSave && piecesInSnapshot > 0 {
			freq := float64(actCount[s.ActorID]) / float64(m)
			if freq > 0 {
				formal = (s.Duration / freq) / float64(piecesInSnapshot)
			}
		}
		totalByStream[s.WorkStreamID] += formal
	}

	var maxTotal float64
	for _, total := range totalByStream {
		if total > maxTotal {
			maxTotal = total
		}
	}
	return maxTotal / float64(m)
}
