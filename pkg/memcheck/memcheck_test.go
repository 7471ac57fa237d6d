package memcheck

import (
	"errors"
	"math"
	"testing"
)

const unshared int32 = -1

func TestCalcMemoryConsumedUnsharedSumsAll(t *testing.T) {
	zone := ZoneRegstDescs{Entries: []RegstEntry{
		{RegstDescID: 1, MemSharedID: unshared, RegisterNum: 2, ByteSize: 100},
		{RegstDescID: 2, MemSharedID: unshared, RegisterNum: 1, ByteSize: 50},
	}}
	got, err := CalcMemoryConsumed(zone, unshared)
	if err != nil {
		t.Fatal(err)
	}
	if got != 250 {
		t.Fatalf("consumed = %d, want 250", got)
	}
}

func TestCalcMemoryConsumedSharedCountsOnce(t *testing.T) {
	zone := ZoneRegstDescs{Entries: []RegstEntry{
		{RegstDescID: 1, MemSharedID: 7, RegisterNum: 1, ByteSize: 100},
		{RegstDescID: 2, MemSharedID: 7, RegisterNum: 1, ByteSize: 100},
	}}
	got, err := CalcMemoryConsumed(zone, unshared)
	if err != nil {
		t.Fatal(err)
	}
	if got != 100 {
		t.Fatalf("consumed = %d, want 100 (shared group counted once)", got)
	}
}

func TestCalcMemoryConsumedMultiRegisterSharedIsFatal(t *testing.T) {
	zone := ZoneRegstDescs{Entries: []RegstEntry{
		{RegstDescID: 1, MemSharedID: 7, RegisterNum: 2, ByteSize: 100},
	}}
	_, err := CalcMemoryConsumed(zone, unshared)
	if !errors.Is(err, ErrMemSharedIDWithMultiRegisters) {
		t.Fatalf("expected ErrMemSharedIDWithMultiRegisters, got %v", err)
	}
}

func TestAvailableMemSize(t *testing.T) {
	got, err := AvailableMemSize(1000, 200)
	if err != nil || got != 800 {
		t.Fatalf("AvailableMemSize(1000,200) = %d,%v want 800,nil", got, err)
	}
	if _, err := AvailableMemSize(100, 100); !errors.Is(err, ErrZoneNotPositive) {
		t.Fatalf("expected ErrZoneNotPositive, got %v", err)
	}
	if _, err := AvailableMemSize(100, 200); !errors.Is(err, ErrZoneNotPositive) {
		t.Fatalf("expected ErrZoneNotPositive for over-reserved zone, got %v", err)
	}
}

func TestMaxPathDuration(t *testing.T) {
	if got := MaxPathDuration([]float64{1, 9, 3}); got != 9 {
		t.Fatalf("MaxPathDuration = %v, want 9", got)
	}
	if got := MaxPathDuration(nil); got != 0 {
		t.Fatalf("MaxPathDuration(nil) = %v, want 0", got)
	}
}

func TestBinarySearchIIConverges(t *testing.T) {
	// Feasible once ii >= 10.
	feasible := func(ii float64) (bool, error) { return ii >= 10, nil }
	got, err := BinarySearchII(0, 100, 0.01, feasible)
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(got-10) > 0.02 {
		t.Fatalf("BinarySearchII = %v, want ~10", got)
	}
}

func TestBinarySearchIIInfeasibleAtMax(t *testing.T) {
	feasible := func(ii float64) (bool, error) { return false, nil }
	_, err := BinarySearchII(0, 100, 0.01, feasible)
	if !errors.Is(err, ErrInfeasibleAtMaxDuration) {
		t.Fatalf("expected ErrInfeasibleAtMaxDuration, got %v", err)
	}
}

func TestIsAnyZoneOverflow(t *testing.T) {
	zones := []ZoneRegstDescs{
		{MachineID: 0, ZoneID: 0, Entries: []RegstEntry{
			{RegstDescID: 1, MemSharedID: unshared, RegisterNum: 1, ByteSize: 1000},
		}},
	}
	key := func(m, z int64) string { return "k" }
	avail := map[string]uint64{"k": 500}
	overflow, err := IsAnyZoneOverflow(zones, unshared, avail, key)
	if err != nil {
		t.Fatal(err)
	}
	if !overflow {
		t.Fatal("expected overflow to be detected")
	}

	avail["k"] = 5000
	overflow, err = IsAnyZoneOverflow(zones, unshared, avail, key)
	if err != nil {
		t.Fatal(err)
	}
	if overflow {
		t.Fatal("expected no overflow with ample capacity")
	}
}
