package cmd

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/armanbolatov/associative-recurrent-memory-transformer/pkg/config"
	"github.com/armanbolatov/associative-recurrent-memory-transformer/pkg/database"
	"github.com/armanbolatov/associative-recurrent-memory-transformer/pkg/orchestrator"
	"github.com/armanbolatov/associative-recurrent-memory-transformer/pkg/session"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var (
	experimentFile  string
	dryRun          bool
	jsonFormat      bool
	silent          bool
	stats           bool
	verbose         bool
	runsOverride    int
	backendOverride string
	devicesOverride string
	outputOverride  string
	skipPreflight   bool
	exportES        bool
)

var Verbose bool

var rootCmd = &cobra.Command{
	Use:   "armt-launch",
	Short: "hyperparameter sweep launcher for recurrent memory transformers",
	Long:  `resolves hyperparameter sweeps into run configurations and launches distributed fine-tuning of recurrent memory transformers`,
	Run:   runLaunch,
}

func Execute() {
	hasSilentFlag := false
	for i, arg := range os.Args {
		if arg == "-experiment" {
			os.Args[i] = "--experiment"
		}
		if arg == "-dry-run" {
			os.Args[i] = "--dry-run"
		}
		if arg == "-silent" || arg == "--silent" {
			os.Args[i] = "--silent"
			hasSilentFlag = true
		}
		if arg == "-stats" {
			os.Args[i] = "--stats"
		}
		if arg == "-runs" {
			os.Args[i] = "--runs"
		}
		if arg == "-backend" {
			os.Args[i] = "--backend"
		}
		if arg == "-devices" {
			os.Args[i] = "--devices"
		}
		if arg == "-skip-preflight" {
			os.Args[i] = "--skip-preflight"
		}
		if arg == "-es" {
			os.Args[i] = "--es"
		}
		if arg == "-status" {
			os.Args[i] = "--status"
		}
		if arg == "-all" {
			os.Args[i] = "--all"
		}
		if arg == "-export" {
			os.Args[i] = "--export"
		}
	}

	if !hasSilentFlag {
		printBanner()
	}

	if err := rootCmd.Execute(); err != nil {
		color.Red("Error: %v", err)
		os.Exit(1)
	}
}

func DebugLog(format string, args ...interface{}) {
	if Verbose {
		fmt.Printf("[DBG] "+format+"\n", args...)
	}
}

func setDebugLogFunctions() {
	config.DebugLog = DebugLog
	orchestrator.DebugLog = DebugLog
	session.DebugLog = DebugLog
	database.DebugLog = DebugLog
}

func init() {
	rootCmd.SetHelpTemplate(`Usage:
  {{.UseLine}}{{if .HasAvailableSubCommands}}
  {{.CommandPath}} [command]{{end}}

{{if .HasAvailableSubCommands}}Commands:{{range .Commands}}{{if (or .IsAvailableCommand (eq .Name "help"))}}
  {{rpad .Name .NamePadding }} {{.Short}}{{end}}{{end}}

{{end}}Flags:
EXPERIMENT:
   -e, -experiment string   experiment file path (default: experiment.yaml)
   -runs int                override the number of repeat runs per setting
   -dry-run                 resolve the sweep and print run identifiers without launching

LAUNCH:
   -backend string          override the launch backend (horovod, accelerate)
   -devices string          override the CUDA device list (e.g., '0,1,2,3')
   -o, -output string       override the base directory for run checkpoints
   -skip-preflight          skip the python environment check before launching

TRACK:
   -status string           filter by status (QUEUED, RUNNING, COMPLETED, FAILED)
   -all                     query runs across every task
   -export string           index a session record file into elasticsearch ('latest' for the most recent)

OUTPUT:
   -j, -json                print per-run records in JSONL(ines) format
   -silent                  silent mode - no banner or extra output
   -stats                   display per-run statistics after the session
   -es                      export run records to elasticsearch after the session

OPTIMIZATION:
   -v, -verbose             enable verbose/debug output
{{if .HasAvailableSubCommands}}
Use "{{.CommandPath}} [command] --help" for more information about a command.{{end}}
`)

	rootCmd.PersistentFlags().StringVarP(&experimentFile, "experiment", "e", "", "experiment file path (default: experiment.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose/debug output")

	rootCmd.Flags().BoolVar(&dryRun, "dry-run", false, "resolve the sweep and print run identifiers without launching")
	rootCmd.Flags().BoolVarP(&jsonFormat, "json", "j", false, "print per-run records in JSONL(ines) format")
	rootCmd.Flags().BoolVar(&silent, "silent", false, "silent mode - no banner or extra output")
	rootCmd.Flags().BoolVar(&stats, "stats", false, "display per-run statistics after the session")
	rootCmd.Flags().IntVar(&runsOverride, "runs", 0, "override the number of repeat runs per setting")
	rootCmd.Flags().StringVar(&backendOverride, "backend", "", "override the launch backend (horovod, accelerate)")
	rootCmd.Flags().StringVar(&devicesOverride, "devices", "", "override the CUDA device list (e.g., '0,1,2,3')")
	rootCmd.Flags().StringVarP(&outputOverride, "output", "o", "", "override the base directory for run checkpoints")
	rootCmd.Flags().BoolVar(&skipPreflight, "skip-preflight", false, "skip the python environment check before launching")
	rootCmd.Flags().BoolVar(&exportES, "es", false, "export run records to elasticsearch after the session")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(updateCmd)
}

func applyOverrides(orch *orchestrator.Orchestrator) error {
	manager := orch.GetConfigManager()

	if runsOverride > 0 {
		if err := manager.Override("runs", fmt.Sprintf("%d", runsOverride)); err != nil {
			return err
		}
	}
	if backendOverride != "" {
		if err := manager.Override("backend", backendOverride); err != nil {
			return err
		}
	}
	if devicesOverride != "" {
		if err := manager.Override("devices", devicesOverride); err != nil {
			return err
		}
	}
	if outputOverride != "" {
		if err := manager.Override("output", outputOverride); err != nil {
			return err
		}
	}

	return nil
}

func runLaunch(cmd *cobra.Command, args []string) {
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

	launchOptions := orchestrator.LaunchOptions{
		DryRun:        dryRun,
		JSONFormat:    jsonFormat,
		Stats:         stats,
		SkipPreflight: skipPreflight,
		ExportES:      exportES,
	}

	result, err := orch.RunLaunch(launchOptions)
	if err != nil {
		color.Red("Launch failed: %v", err)
		os.Exit(1)
	}

	if !silent && !dryRun {
		displayLaunchSummary(result)
	}

	if stats && !silent {
		displayRunStatistics(result)
	}

	if result.Success {
		os.Exit(0)
	}
	os.Exit(failureExitCode(result))
}

// failureExitCode propagates the training process exit code when one is
// known, so shell pipelines see the same code the trainer returned.
func failureExitCode(result *orchestrator.LaunchResult) int {
	for _, stat := range result.RunStats {
		if stat.Status == database.StatusFailed && stat.ExitCode > 0 {
			return stat.ExitCode
		}
	}
	return 1
}

func printBanner() {
	banner := color.CyanString(`
┌─┐┬─┐┌┬┐┌┬┐  ┬  ┌─┐┬ ┬┌┐┌┌─┐┬ ┬
├─┤├┬┘│││ │   │  ├─┤│ │││││  ├─┤
┴ ┴┴└─┴ ┴ ┴   ┴─┘┴ ┴└─┘┘└┘└─┘┴ ┴  @armanbolatov
`)
	info := color.HiBlackString("sweep resolver & distributed launcher for recurrent memory transformer fine-tuning")
	fmt.Println(banner)
	fmt.Println(info)
	fmt.Println()
}

func displayLaunchSummary(result *orchestrator.LaunchResult) {
	if result.Success {
		color.Green("\nSession %s completed: %d/%d runs finished in %v",
			result.SessionID, result.Completed, result.TotalRuns, result.Duration.Round(time.Second))
	} else {
		color.Red("\nSession %s aborted: %d completed, %d failed, %d never started (in %v)",
			result.SessionID, result.Completed, result.Failed, result.Skipped, result.Duration.Round(time.Second))
		for _, err := range result.Errors {
			color.Red("  %v", err)
		}
	}

	if result.RecordFile != "" && Verbose {
		fmt.Printf("[DBG] run records: %s\n", result.RecordFile)
	}
}

func displayRunStatistics(result *orchestrator.LaunchResult) {
	fmt.Println()

	color.Cyan("[INF] Printing run statistics for session %s", result.SessionID)
	fmt.Println()

	fmt.Printf(" %-72s %-12s %-12s %-6s\n", "Run", "Duration", "Status", "Exit")
	color.Cyan(strings.Repeat("─", 104))

	for _, stat := range result.RunStats {
		duration := fmt.Sprintf("%.0fms", stat.Duration.Seconds()*1000)
		if stat.Duration.Seconds() >= 1 {
			duration = fmt.Sprintf("%.1fs", stat.Duration.Seconds())
		}

		fmt.Printf(" %-72s %-12s %-12s %-6d\n",
			stat.RunPath,
			duration,
			stat.Status,
			stat.ExitCode,
		)
	}

	fmt.Println()
}
