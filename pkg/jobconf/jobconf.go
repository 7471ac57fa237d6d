// Package jobconf models the process-wide, read-only configuration the
// improver consults: the identifier manager (fresh mem-shared-ids, stream
// and machine lookups), the job descriptor (memory reservations and
// snapshot sizing), and the available-memory descriptor (raw per-zone
// capacity). Per spec these are best threaded as explicit dependencies
// rather than global singletons; callers construct one of each and pass
// them into pkg/improver.
package jobconf

import "github.com/flowimprove/planimprove/pkg/plan"

// IDManager is the identifier-manager collaborator: fresh mem-shared-ids,
// and task-id to work-stream/machine lookups.
type IDManager interface {
	// NewMemSharedID returns a fresh, monotonically increasing id, never
	// reused within one improver run.
	NewMemSharedID() int64
	// GlobalWorkStreamID returns the work-stream id of the given task.
	GlobalWorkStreamID(taskID int64) int64
	// MachineID returns the machine id of the given task.
	MachineID(taskID int64) int64
}

// PlanIDManager is an IDManager backed directly by a plan: work-stream and
// machine lookups come from the plan's TaskProto fields, and mem-shared-ids
// come from a simple monotonic counter.
type PlanIDManager struct {
	p            *plan.Plan
	nextMemShare int64
}

// NewPlanIDManager builds an IDManager over p, with mem-shared-id
// allocation starting at 0.
func NewPlanIDManager(p *plan.Plan) *PlanIDManager {
	return &PlanIDManager{p: p}
}

// NewMemSharedID implements IDManager.
func (m *PlanIDManager) NewMemSharedID() int64 {
	id := m.nextMemShare
	m.nextMemShare++
	return id
}

// GlobalWorkStreamID implements IDManager.
func (m *PlanIDManager) GlobalWorkStreamID(taskID int64) int64 {
	if t := m.p.TaskByID(taskID); t != nil {
		return t.WorkStreamID
	}
	return 0
}

// MachineID implements IDManager.
func (m *PlanIDManager) MachineID(taskID int64) int64 {
	if t := m.p.TaskByID(taskID); t != nil {
		return t.MachineID
	}
	return 0
}

// JobDesc carries memory reservation and snapshot-sizing configuration for
// a training job.
type JobDesc struct {
	ReservedHostMemByte   uint64 `yaml:"reserved_host_mem_byte"`
	ReservedDeviceMemByte uint64 `yaml:"reserved_device_mem_byte"`
	PersistenceBufByte    uint64 `yaml:"persistence_buf_byte"`
	NumOfBatchesInSnapshot uint64 `yaml:"num_of_batches_in_snapshot"`
	NumOfPiecesInBatch    uint64 `yaml:"num_of_pieces_in_batch"`
	TotalMachineNum       int64  `yaml:"total_machine_num"`
	GPUDeviceNum          int64  `yaml:"gpu_device_num"`
}

// NumOfPiecesInSnapshot is the product of batches-per-snapshot and
// pieces-per-batch: the amortization period model-save tasks run on.
func (j *JobDesc) NumOfPiecesInSnapshot() uint64 {
	return j.NumOfBatchesInSnapshot * j.NumOfPiecesInBatch
}

// HostZoneID is the conventional index of the host memory zone: one past
// the last device zone.
func (j *JobDesc) HostZoneID() int64 {
	return j.GPUDeviceNum
}

// MachineMemDesc is the raw capacity of every memory zone on one machine,
// indexed by zone id (device zones 0..GPUDeviceNum-1, then the host zone).
type MachineMemDesc struct {
	ZoneSizeByte []uint64 `yaml:"zone_size_byte"`
}

// AvailableMemDesc is the raw, unreserved capacity of every
// (machine, memory_zone) pair in the fleet.
type AvailableMemDesc struct {
	Machines []MachineMemDesc `yaml:"machines"`
}

// ZoneSize returns the raw capacity of the given zone, and false if the
// machine or zone id is out of range.
func (a *AvailableMemDesc) ZoneSize(machineID, zoneID int64) (uint64, bool) {
	if machineID < 0 || int(machineID) >= len(a.Machines) {
		return 0, false
	}
	zones := a.Machines[machineID].ZoneSizeByte
	if zoneID < 0 || int(zoneID) >= len(zones) {
		return 0, false
	}
	return zones[zoneID], true
}

// ZoneIDForMemCase maps a regst-desc's memory case to a memory-zone id: a
// device zone is its device id, the host zone is the conventional index
// equal to GPUDeviceNum.
func ZoneIDForMemCase(mc plan.MemCase, jobDesc *JobDesc) int64 {
	if mc.Kind == plan.MemZoneHost {
		return jobDesc.HostZoneID()
	}
	return mc.DeviceID
}
