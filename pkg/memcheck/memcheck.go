// Package memcheck implements the memory-feasibility checks (C7, C8): how
// much memory a candidate register assignment consumes per zone, whether
// that fits the fleet's available capacity, and the binary search over
// initiation interval that the memory-limited phase of the improver runs
// against this oracle.
package memcheck

import (
	"errors"
	"fmt"
)

// ErrZoneNotPositive is returned when a memory zone's available capacity is
// zero or negative after reservations are subtracted.
var ErrZoneNotPositive = errors.New("memcheck: available memory zone size is not positive")

// ErrMemSharedIDWithMultiRegisters is returned when a regst-desc that
// carries a mem-shared-id has a register count other than one: aliasing
// only makes sense when every regst-desc in a shared group occupies exactly
// one register, since a shared buffer is a single physical allocation.
var ErrMemSharedIDWithMultiRegisters = errors.New("memcheck: mem-shared-id group contains a regst-desc with more than one register")

// ErrInfeasibleAtMaxDuration is returned when even the loosest candidate II
// (the longest path duration in the plan) does not fit available memory:
// no binary search over II can help, since increasing II only ever
// decreases or holds memory consumption steady.
var ErrInfeasibleAtMaxDuration = errors.New("memcheck: plan does not fit available memory even at the longest path duration")

// RegstEntry is one regst-desc's contribution to a memory zone: its
// mem-shared-id (UnsharedMemID sentinel if not shared), register count,
// and per-register byte size.
type RegstEntry struct {
	RegstDescID int64
	MemSharedID int32
	RegisterNum uint64
	ByteSize    uint64
}

// ZoneRegstDescs is every regst-desc entry assigned to one (machine,
// memory_zone) pair.
type ZoneRegstDescs struct {
	MachineID int64
	ZoneID    int64
	Entries   []RegstEntry
}

// CalcMemoryConsumed returns the total bytes this zone's regst-descs would
// consume: each shared-id group counts once, at the largest byte size among
// its members (they alias one buffer), and every shared member must hold
// exactly one register or ErrMemSharedIDWithMultiRegisters is returned;
// unshared regst-descs count RegisterNum * ByteSize each.
func CalcMemoryConsumed(zone ZoneRegstDescs, unsharedMemID int32) (uint64, error) {
	var total uint64
	sharedSize := make(map[int32]uint64)
	for _, e := range zone.Entries {
		if e.MemSharedID == unsharedMemID {
			total += e.RegisterNum * e.ByteSize
			continue
		}
		if e.RegisterNum != 1 {
			return 0, fmt.Errorf("regst-desc %d in mem-shared-id group %d: %w", e.RegstDescID, e.MemSharedID, ErrMemSharedIDWithMultiRegisters)
		}
		if e.ByteSize > sharedSize[e.MemSharedID] {
			sharedSize[e.MemSharedID] = e.ByteSize
		}
	}
	for _, size := range sharedSize {
		total += size
	}
	return total, nil
}

// AvailableMemSize returns rawSize minus reserved, erroring with
// ErrZoneNotPositive if the result would be zero or negative.
func AvailableMemSize(rawSize, reserved uint64) (uint64, error) {
	if reserved >= rawSize {
		return 0, ErrZoneNotPositive
	}
	return rawSize - reserved, nil
}

// IsAnyZoneOverflow reports whether any zone's consumption exceeds its
// available capacity. availableByZone is keyed the same way zones are
// identified by the caller (typically "machineID:zoneID").
func IsAnyZoneOverflow(zones []ZoneRegstDescs, unsharedMemID int32, availableByZone map[string]uint64, zoneKey func(machineID, zoneID int64) string) (bool, error) {
	for _, z := range zones {
		consumed, err := CalcMemoryConsumed(z, unsharedMemID)
		if err != nil {
			return false, err
		}
		avail, ok := availableByZone[zoneKey(z.MachineID, z.ZoneID)]
		if !ok {
			continue
		}
		if consumed > avail {
			return true, nil
		}
	}
	return false, nil
}

// MaxPathDuration returns the largest duration in durations, or 0 if empty.
func MaxPathDuration(durations []float64) float64 {
	var max float64
	for _, d := range durations {
		if d > max {
			max = d
		}
	}
	return max
}

// Feasible is the memory-feasibility oracle BinarySearchII consults: given
// a candidate II, it must return whether that II fits available memory.
// Larger II never increases memory consumption, so the search only needs
// this oracle to be monotone, not exact.
type Feasible func(ii float64) (bool, error)

// BinarySearchII finds the smallest initiation interval, within
// threshold of the true boundary, at which feasible reports true,
// searching the range [minII, maxII]. It first checks maxII (typically the
// longest path duration in the plan) and returns ErrInfeasibleAtMaxDuration
// if even that is not feasible.
func BinarySearchII(minII, maxII, threshold float64, feasible Feasible) (float64, error) {
	ok, err := feasible(maxII)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, ErrInfeasibleAtMaxDuration
	}

	lo, hi := minII, maxII
	for hi-lo > threshold {
		mid := lo + (hi-lo)/2
		ok, err := feasible(mid)
		if err != nil {
			return 0, err
		}
		if ok {
			hi = mid
		} else {
			lo = mid
		}
	}
	return hi, nil
}
