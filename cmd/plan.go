package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/armanbolatov/associative-recurrent-memory-transformer/pkg/database"
	"github.com/armanbolatov/associative-recurrent-memory-transformer/pkg/orchestrator"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var planJSON bool

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Print the resolved run table without launching",
	Long:  `Resolve the experiment sweep into run configurations and print them without launching anything`,
	Run:   runPlan,
}

func init() {
	planCmd.Flags().BoolVarP(&planJSON, "json", "j", false, "print the plan in JSONL(ines) format")
	planCmd.Flags().IntVar(&runsOverride, "runs", 0, "override the number of repeat runs per setting")
	rootCmd.AddCommand(planCmd)
}

func runPlan(cmd *cobra.Command, args []string) {
	Verbose = verbose

	if verbose {
		setDebugLogFunctions()
	}

	orch, err := orchestrator.NewOrchestrator(experimentFile)
	if err != nil {
		color.Red("Failed to initialize launcher: %v", err)
		os.Exit(1)
	}

	if err := applyOverrides(orch); err != nil {
		color.Red("Invalid override: %v", err)
		os.Exit(1)
	}

	plan, err := orch.BuildPlan()
	if err != nil {
		color.Red("Failed to resolve experiment: %v", err)
		os.Exit(1)
	}

	if planJSON {
		for _, rc := range plan.Runs {
			record := orchestrator.RunRecord{
				Run:    rc.ID(),
				Task:   rc.Task,
				Model:  rc.Model,
				Seed:   rc.Seed,
				Status: database.StatusQueued,
			}
			jsonBytes, err := json.Marshal(record)
			if err != nil {
				color.Red("Failed to marshal run record: %v", err)
				os.Exit(1)
			}
			fmt.Println(string(jsonBytes))
		}
		return
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, color.CyanString("#\tRUN\tLR\tSCHED\tSEQ\tSEG\tMEM\tBS\tACC\tSEED"))
	fmt.Fprintln(w, strings.Repeat("-", 110))

	for i, rc := range plan.Runs {
		fmt.Fprintf(w, "%d\t%s\t%g\t%s\t%d\t%d\t%d\t%d\t%d\t%d\n",
			i+1,
			rc.ID(),
			rc.LearningRate,
			rc.Scheduler,
			rc.InputSeqLen,
			rc.SegmentCount,
			rc.MemorySize,
			rc.BatchSize,
			rc.GradAccumSteps,
			rc.Seed,
		)
	}
	w.Flush()

	color.Green("\nTotal runs: %d", len(plan.Runs))
	DebugLog("output base: %s", plan.OutputBase)
}
