package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/flowimprove/planimprove/pkg/improver"
	"github.com/flowimprove/planimprove/pkg/jobconf"
	"github.com/flowimprove/planimprove/pkg/plan"
	"github.com/flowimprove/planimprove/pkg/plantaskgraph"
)

var version = "0.1.0"

// Command-line flags (two dump flags and the worker-pool size), bound in
// newRootCmd.
var (
	dumpPlan      bool
	dumpRegstNums bool
	workers       int
)

func main() {
	os.Exit(run())
}

func run() int {
	rootCmd := newRootCmd(os.Stdout, os.Stderr)
	if err := rootCmd.Execute(); err != nil {
		return 1
	}
	return 0
}

func newRootCmd(out, errOut io.Writer) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "planimprove fixture.yaml",
		Short:         "planimprove assigns register counts and memory-sharing groups to a dataflow plan",
		Long: `planimprove reads a naive dataflow plan plus its recorded activity-graph
statistics and produces an improved plan: one with a register count chosen
per regst-desc to minimize the pipeline initiation interval under the
fleet's available memory, and mem-shared-ids assigned wherever two
regst-descs can safely alias the same buffer.`,
		Version:       version,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runImprove(cmd.Context(), args[0], out, errOut)
		},
	}
	rootCmd.SetOut(out)
	rootCmd.SetErr(errOut)

	rootCmd.Flags().BoolVar(&dumpPlan, "dump-plan", false, "dump the full improved plan as YAML")
	rootCmd.Flags().BoolVar(&dumpRegstNums, "dump-regst-nums", false, "dump each regst-desc's final register count and mem-shared-id")
	rootCmd.Flags().IntVar(&workers, "workers", 0, "worker-pool size for the mem-sharing color pass (0 = default)")

	return rootCmd
}

func runImprove(ctx context.Context, fixturePath string, out, errOut io.Writer) error {
	f, err := loadFixture(fixturePath)
	if err != nil {
		fmt.Fprintf(errOut, "planimprove: error reading %s: %v\n", fixturePath, err)
		return err
	}

	naivePlan := f.buildPlan()
	ag := f.buildActGraph()
	ptg := plantaskgraph.NewBuilder(naivePlan).Build()

	jobDesc := f.JobDesc
	amd := f.AvailableMem

	cfg := &improver.Config{
		JobDesc:          &jobDesc,
		AvailableMemDesc: &amd,
		IDManager:        jobconf.NewPlanIDManager(naivePlan),
		ActGraph:         ag,
		PlanTaskGraph:    ptg,
		Workers:          workers,
	}

	result, err := improver.Improve(ctx, cfg, naivePlan)
	if err != nil {
		fmt.Fprintf(errOut, "planimprove: improve failed: %v\n", err)
		return err
	}

	if dumpPlan {
		return dumpPlanYAML(result, out)
	}
	if dumpRegstNums {
		dumpRegstNumsTable(result, out)
		return nil
	}

	fmt.Fprintf(out, "planimprove: improved %d tasks\n", len(result.Tasks))
	return nil
}

type regstDumpEntry struct {
	TaskID      int64  `yaml:"task_id"`
	Name        string `yaml:"name"`
	RegstDescID int64  `yaml:"regst_desc_id"`
	RegisterNum uint64 `yaml:"register_num"`
	MemSharedID int32  `yaml:"mem_shared_id"`
}

func dumpPlanYAML(p *plan.Plan, out io.Writer) error {
	enc := yaml.NewEncoder(out)
	defer enc.Close()
	return enc.Encode(p.Tasks)
}

func dumpRegstNumsTable(p *plan.Plan, out io.Writer) {
	var entries []regstDumpEntry
	p.ForEachRegstDesc(func(task *plan.TaskProto, r *plan.RegstDesc) {
		for name, rr := range task.ProducedRegstDescs {
			if rr.ID == r.ID {
				entries = append(entries, regstDumpEntry{
					TaskID: task.TaskID, Name: name, RegstDescID: r.ID,
					RegisterNum: r.RegisterNum, MemSharedID: r.MemSharedID,
				})
				break
			}
		}
	})
	enc := yaml.NewEncoder(out)
	defer enc.Close()
	enc.Encode(entries)
}
