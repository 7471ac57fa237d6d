package main

import (
	"os"

	"gopkg.in/yaml.v3"

	"github.com/flowimprove/planimprove/pkg/actgraph"
	"github.com/flowimprove/planimprove/pkg/jobconf"
	"github.com/flowimprove/planimprove/pkg/plan"
	"github.com/flowimprove/planimprove/pkg/regstset"
)

func regstsetOf(ids []int64) regstset.Set {
	return regstset.Of(ids...)
}

// memCaseYAML is the YAML-facing form of plan.MemCase.
type memCaseYAML struct {
	Kind     string `yaml:"kind"` // "device" or "host"
	DeviceID int64  `yaml:"device_id,omitempty"`
}

func (m memCaseYAML) toMemCase() plan.MemCase {
	if m.Kind == "host" {
		return plan.MemCase{Kind: plan.MemZoneHost}
	}
	return plan.MemCase{Kind: plan.MemZoneDevice, DeviceID: m.DeviceID}
}

type regstDescYAML struct {
	ID               int64       `yaml:"id"`
	ConsumerTaskIDs  []int64     `yaml:"consumer_task_ids"`
	EnableMemSharing bool        `yaml:"enable_mem_sharing"`
	MinRegisterNum   uint64      `yaml:"min_register_num"`
	MaxRegisterNum   uint64      `yaml:"max_register_num"`
	MemCase          memCaseYAML `yaml:"mem_case"`
	ByteSize         uint64      `yaml:"byte_size"`
}

type taskYAML struct {
	TaskID                   int64                    `yaml:"task_id"`
	MachineID                int64                    `yaml:"machine_id"`
	TaskType                 string                   `yaml:"task_type"`
	ChainID                  int64                    `yaml:"chain_id"`
	OrderInGraph             int64                    `yaml:"order_in_graph"`
	WorkStreamID             int64                    `yaml:"work_stream_id"`
	ProducedRegstDescs       map[string]regstDescYAML `yaml:"produced_regst_descs"`
	ConsumedCtrlRegstDescIDs map[string][]int64       `yaml:"consumed_ctrl_regst_desc_ids"`
}

func taskTypeFromYAML(s string) plan.TaskType {
	switch s {
	case "record_load":
		return plan.TaskTypeRecordLoad
	case "model_save":
		return plan.TaskTypeModelSave
	default:
		return plan.TaskTypeNormal
	}
}

type pathDurationYAML struct {
	RegstDescID     int64   `yaml:"regst_desc_id"`
	ConsumerActorID int64   `yaml:"consumer_actor_id"`
	MeanDuration    float64 `yaml:"mean_duration"`
}

type pathIIScaleYAML struct {
	RegstDescID     int64   `yaml:"regst_desc_id"`
	ConsumerActorID int64   `yaml:"consumer_actor_id"`
	IIScale         float64 `yaml:"ii_scale"`
}

type actNodeYAML struct {
	ActorID      int64   `yaml:"actor_id"`
	WorkStreamID int64   `yaml:"work_stream_id"`
	Duration     float64 `yaml:"duration"`
}

type actEventsYAML struct {
	PathDurations []pathDurationYAML `yaml:"path_durations"`
	PathIIScales  []pathIIScaleYAML  `yaml:"path_ii_scales"`
	ActNodes      []actNodeYAML      `yaml:"act_nodes"`
}

// fixtureFile is the top-level shape of a planimprove input file: a naive
// plan plus the job descriptor, available-memory descriptor, and recorded
// activity-graph statistics the improver needs as external collaborators.
type fixtureFile struct {
	JobDesc      jobconf.JobDesc          `yaml:"job_desc"`
	AvailableMem jobconf.AvailableMemDesc `yaml:"available_mem"`
	Tasks        []taskYAML               `yaml:"tasks"`
	ActEvents    actEventsYAML            `yaml:"act_events"`
}

func loadFixture(path string) (*fixtureFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var f fixtureFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, err
	}
	return &f, nil
}

func (f *fixtureFile) buildPlan() *plan.Plan {
	tasks := make([]*plan.TaskProto, 0, len(f.Tasks))
	for _, ty := range f.Tasks {
		t := &plan.TaskProto{
			TaskID:                   ty.TaskID,
			MachineID:                ty.MachineID,
			TaskType:                 taskTypeFromYAML(ty.TaskType),
			ChainID:                  ty.ChainID,
			OrderInGraph:             ty.OrderInGraph,
			WorkStreamID:             ty.WorkStreamID,
			ProducedRegstDescs: make(map[string]*plan.RegstDesc, len(ty.ProducedRegstDescs)),
		}
		for name, ry := range ty.ProducedRegstDescs {
			t.ProducedRegstDescs[name] = &plan.RegstDesc{
				ID:               ry.ID,
				ProducerTaskID:   ty.TaskID,
				ConsumerTaskIDs:  regstsetOf(ry.ConsumerTaskIDs),
				EnableMemSharing: ry.EnableMemSharing,
				MinRegisterNum:   ry.MinRegisterNum,
				MaxRegisterNum:   ry.MaxRegisterNum,
				MemSharedID:      plan.UnsharedMemID,
				MemCase:          ry.MemCase.toMemCase(),
				ByteSize:         ry.ByteSize,
			}
		}
		for name, ids := range ty.ConsumedCtrlRegstDescIDs {
			set := plan.FindOrCreateConsumedCtrlRegstDescIDSet(t, name)
			for _, id := range ids {
				set.Add(id)
			}
		}
		tasks = append(tasks, t)
	}
	return plan.NewPlan(tasks)
}

func (f *fixtureFile) buildActGraph() actgraph.Graph {
	ag := actgraph.NewFixture()
	for _, d := range f.ActEvents.PathDurations {
		ag.AddPathDuration(d.RegstDescID, d.ConsumerActorID, d.MeanDuration)
	}
	for _, s := range f.ActEvents.PathIIScales {
		ag.AddPathIIScale(s.RegstDescID, s.ConsumerActorID, s.IIScale)
	}
	for _, n := range f.ActEvents.ActNodes {
		ag.AddNode(actgraph.ActNode{ActorID: n.ActorID, WorkStreamID: n.WorkStreamID, Duration: n.Duration})
	}
	for _, ty := range f.Tasks {
		ag.SetTaskProto(ty.TaskID, plan.TaskProto{
			TaskID:       ty.TaskID,
			MachineID:    ty.MachineID,
			TaskType:     taskTypeFromYAML(ty.TaskType),
			ChainID:      ty.ChainID,
			OrderInGraph: ty.OrderInGraph,
			WorkStreamID: ty.WorkStreamID,
		})
	}
	return ag
}
