// Package plan defines the RegstDesc/TaskProto data model that the
// improver reads and mutates, plus the Plan container and the small set of
// mutation helpers (control-regst lookup/creation, cloning) the improver's
// components need. Construction of a Plan from an actual job graph is an
// external collaborator's job; this package
// only models the data and its invariants.
package plan

import (
	"sort"

	"github.com/flowimprove/planimprove/pkg/regstset"
)

// UnsharedMemID is the sentinel MemSharedID value meaning "not shared".
const UnsharedMemID int32 = -1

// OutCtrlName and InCtrlName are the bit-exact control regst-desc naming
// tokens the critical-section guard (C4) uses to create auxiliary control
// edges: OutCtrlName on the producer side, InCtrlName on the consumer side.
const (
	OutCtrlName = "out_ctrl_shared_mem_safe_guard"
	InCtrlName  = "in_ctrl"
)

// TaskType distinguishes the handful of task kinds the improver's formulas
// care about. Real plans carry many more kinds; everything else behaves as
// TaskTypeNormal for improver purposes.
type TaskType int

const (
	TaskTypeNormal TaskType = iota
	TaskTypeRecordLoad
	TaskTypeModelSave
)

// MemZoneKind distinguishes the host memory zone from device zones.
type MemZoneKind int

const (
	MemZoneDevice MemZoneKind = iota
	MemZoneHost
)

// MemCase tags the memory zone a regst-desc's registers are allocated in.
type MemCase struct {
	Kind     MemZoneKind
	DeviceID int64 // meaningful only when Kind == MemZoneDevice
}

// RegstDesc describes a register descriptor: a descriptor for a memory
// buffer passed between tasks, possibly replicated into several registers
// for pipelining.
type RegstDesc struct {
	ID               int64
	ProducerTaskID   int64
	ConsumerTaskIDs  regstset.Set
	EnableMemSharing bool
	RegisterNum      uint64
	MinRegisterNum   uint64
	MaxRegisterNum   uint64
	MemSharedID      int32 // UnsharedMemID (-1) if not shared
	MemCase          MemCase
	ByteSize         uint64 // size of one packed instance
}

// Clone returns a deep copy of r.
func (r *RegstDesc) Clone() *RegstDesc {
	clone := *r
	clone.ConsumerTaskIDs = r.ConsumerTaskIDs.Copy()
	return &clone
}

// TaskProto describes a plan task (actor).
type TaskProto struct {
	TaskID       int64
	MachineID    int64
	TaskType     TaskType
	ChainID      int64
	OrderInGraph int64
	WorkStreamID int64

	// ProducedRegstDescs maps a descriptor name (e.g. "out" for a payload
	// regst, or OutCtrlName for the guard's control regst) to the
	// descriptor produced by this task.
	ProducedRegstDescs map[string]*RegstDesc

	// ConsumedCtrlRegstDescIDs maps a consumed-control-set name (e.g.
	// InCtrlName) to the set of control regst-desc ids this task consumes.
	ConsumedCtrlRegstDescIDs map[string]regstset.Set
}

// Clone returns a deep copy of t.
func (t *TaskProto) Clone() *TaskProto {
	clone := &TaskProto{
		TaskID:                   t.TaskID,
		MachineID:                t.MachineID,
		TaskType:                 t.TaskType,
		ChainID:                  t.ChainID,
		OrderInGraph:             t.OrderInGraph,
		WorkStreamID:             t.WorkStreamID,
		ProducedRegstDescs:       make(map[string]*RegstDesc, len(t.ProducedRegstDescs)),
		ConsumedCtrlRegstDescIDs: make(map[string]regstset.Set, len(t.ConsumedCtrlRegstDescIDs)),
	}
	for name, r := range t.ProducedRegstDescs {
		clone.ProducedRegstDescs[name] = r.Clone()
	}
	for name, ids := range t.ConsumedCtrlRegstDescIDs {
		clone.ConsumedCtrlRegstDescIDs[name] = ids.Copy()
	}
	return clone
}

// Plan is the full set of tasks the improver operates on.
type Plan struct {
	Tasks []*TaskProto

	taskByID    map[int64]*TaskProto
	regstByID   map[int64]*RegstDesc
	nextRegstID int64
}

// NewPlan builds a Plan from a task list and indexes it.
func NewPlan(tasks []*TaskProto) *Plan {
	p := &Plan{Tasks: tasks}
	p.reindex()
	return p
}

func (p *Plan) reindex() {
	p.taskByID = make(map[int64]*TaskProto, len(p.Tasks))
	p.regstByID = make(map[int64]*RegstDesc)
	var maxID int64 = -1
	for _, t := range p.Tasks {
		p.taskByID[t.TaskID] = t
		for _, r := range t.ProducedRegstDescs {
			p.regstByID[r.ID] = r
			if r.ID > maxID {
				maxID = r.ID
			}
		}
	}
	p.nextRegstID = maxID + 1
}

// TaskByID returns the task with the given id, or nil if absent.
func (p *Plan) TaskByID(taskID int64) *TaskProto {
	return p.taskByID[taskID]
}

// RegstDescByID returns the regst-desc with the given id, or nil if absent.
func (p *Plan) RegstDescByID(regstDescID int64) *RegstDesc {
	return p.regstByID[regstDescID]
}

// NewRegstDescID allocates a fresh regst-desc id, monotonic within this
// plan's lifetime (including any ids already present when the plan was
// built or indexed).
func (p *Plan) NewRegstDescID() int64 {
	id := p.nextRegstID
	p.nextRegstID++
	return id
}

// ForEachRegstDesc visits every produced regst-desc in the plan, in a
// deterministic order (tasks sorted by TaskID, then produced-desc names
// sorted lexically within a task).
func (p *Plan) ForEachRegstDesc(fn func(task *TaskProto, r *RegstDesc)) {
	tasks := make([]*TaskProto, len(p.Tasks))
	copy(tasks, p.Tasks)
	sort.Slice(tasks, func(i, j int) bool { return tasks[i].TaskID < tasks[j].TaskID })
	for _, t := range tasks {
		names := make([]string, 0, len(t.ProducedRegstDescs))
		for name := range t.ProducedRegstDescs {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			fn(t, t.ProducedRegstDescs[name])
		}
	}
}

// Clone returns a deep copy of the plan, independently mutable.
func (p *Plan) Clone() *Plan {
	tasks := make([]*TaskProto, len(p.Tasks))
	for i, t := range p.Tasks {
		tasks[i] = t.Clone()
	}
	clone := NewPlan(tasks)
	return clone
}

// FindOrCreateProducedCtrlRegstDesc returns the named control regst-desc
// produced by task, creating it (with a fresh id, no consumers yet, memory
// sharing disabled, one register) if it does not already exist.
func (p *Plan) FindOrCreateProducedCtrlRegstDesc(task *TaskProto, name string) *RegstDesc {
	if task.ProducedRegstDescs == nil {
		task.ProducedRegstDescs = make(map[string]*RegstDesc)
	}
	if r, ok := task.ProducedRegstDescs[name]; ok {
		return r
	}
	r := &RegstDesc{
		ID:              p.NewRegstDescID(),
		ProducerTaskID:  task.TaskID,
		ConsumerTaskIDs: regstset.New(),
		MemSharedID:     UnsharedMemID,
		MinRegisterNum:  1,
		MaxRegisterNum:  1,
		RegisterNum:     1,
	}
	task.ProducedRegstDescs[name] = r
	p.regstByID[r.ID] = r
	return r
}

// FindOrCreateConsumedCtrlRegstDescIDSet returns the named consumed-control
// id set for task, creating an empty one if absent.
func FindOrCreateConsumedCtrlRegstDescIDSet(task *TaskProto, name string) regstset.Set {
	if task.ConsumedCtrlRegstDescIDs == nil {
		task.ConsumedCtrlRegstDescIDs = make(map[string]regstset.Set)
	}
	s, ok := task.ConsumedCtrlRegstDescIDs[name]
	if !ok {
		s = regstset.New()
		task.ConsumedCtrlRegstDescIDs[name] = s
	}
	return s
}
