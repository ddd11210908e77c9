package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/armanbolatov/associative-recurrent-memory-transformer/pkg/database"
	"github.com/armanbolatov/associative-recurrent-memory-transformer/pkg/elastic"
	"github.com/armanbolatov/associative-recurrent-memory-transformer/pkg/orchestrator"
	"github.com/armanbolatov/associative-recurrent-memory-transformer/pkg/session"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var (
	trackStatus string
	trackAll    bool
	trackExport string
)

var trackCmd = &cobra.Command{
	Use:   "track [task]",
	Short: "Query the run tracking database",
	Long:  `Query the run tracking database for a specific task or all tasks, or index a session record file into elasticsearch`,
	Run:   runTrack,
}

func init() {
	trackCmd.Flags().StringVar(&trackStatus, "status", "", "filter by status (QUEUED, RUNNING, COMPLETED, FAILED)")
	trackCmd.Flags().BoolVar(&trackAll, "all", false, "query runs across every task")
	trackCmd.Flags().StringVar(&trackExport, "export", "", "index a session record file into elasticsearch ('latest' for the most recent)")
	rootCmd.AddCommand(trackCmd)
}

func runTrack(cmd *cobra.Command, args []string) {
	Verbose = verbose

	if verbose {
		setDebugLogFunctions()
	}

	if trackExport != "" {
		exportRecordFile(trackExport)
		return
	}

	if !trackAll && len(args) == 0 {
		color.Red("Error: either provide a task or use --all flag")
		cmd.Help()
		os.Exit(1)
	}

	if trackAll && len(args) > 0 {
		color.Red("Error: cannot use both task and --all flag together")
		cmd.Help()
		os.Exit(1)
	}

	orch, err := orchestrator.NewOrchestrator(experimentFile)
	if err != nil {
		color.Red("Failed to initialize launcher: %v", err)
		os.Exit(1)
	}

	db := orch.GetDB()
	if db == nil || !db.IsEnabled() {
		color.Red("Error: Database is not enabled. Please enable it in experiment.yaml")
		os.Exit(1)
	}

	if trackStatus != "" {
		trackStatus = strings.ToUpper(trackStatus)
	}

	var results []database.RunRecord

	if trackAll {
		results, err = db.QueryAllRuns(trackStatus)
		if err != nil {
			color.Red("Failed to query database: %v", err)
			os.Exit(1)
		}
	} else {
		task := args[0]
		results, err = db.QueryRuns(task, trackStatus)
		if err != nil {
			color.Red("Failed to query database: %v", err)
			os.Exit(1)
		}

		if len(results) == 0 {
			color.Yellow("[INF] Task %s not found in database.", task)
			os.Exit(0)
		}
	}

	var records []struct {
		Task     string
		RunPath  string
		Status   string
		Exit     string
		Started  string
		Finished string
	}

	for _, r := range results {
		exit := "-"
		if r.ExitCode.Valid {
			exit = fmt.Sprintf("%d", r.ExitCode.Int64)
		}
		started := "-"
		if r.StartedAt.Valid {
			started = r.StartedAt.Time.Format("2006-01-02 15:04:05")
		}
		finished := "-"
		if r.FinishedAt.Valid {
			finished = r.FinishedAt.Time.Format("2006-01-02 15:04:05")
		}

		records = append(records, struct {
			Task     string
			RunPath  string
			Status   string
			Exit     string
			Started  string
			Finished string
		}{
			Task:     r.Task,
			RunPath:  r.RunPath,
			Status:   r.Status,
			Exit:     exit,
			Started:  started,
			Finished: finished,
		})
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, color.CyanString("TASK\tRUN\tSTATUS\tEXIT\tSTARTED\tFINISHED"))
	fmt.Fprintln(w, strings.Repeat("-", 120))

	for _, r := range records {
		statusColor := color.GreenString
		if r.Status == database.StatusFailed {
			statusColor = color.RedString
		} else if r.Status == database.StatusRunning {
			statusColor = color.YellowString
		} else if r.Status == database.StatusQueued {
			statusColor = color.HiBlackString
		}

		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			r.Task,
			r.RunPath,
			statusColor(r.Status),
			r.Exit,
			r.Started,
			r.Finished,
		)
	}
	w.Flush()

	color.Green("\nTotal records: %d", len(records))
}

func exportRecordFile(filename string) {
	if filename == "latest" {
		latest, err := session.Latest()
		if err != nil {
			color.Red("Failed to locate latest session: %v", err)
			os.Exit(1)
		}
		filename = latest
		DebugLog("latest session record file: %s", filename)
	}

	orch, err := orchestrator.NewOrchestrator(experimentFile)
	if err != nil {
		color.Red("Failed to initialize launcher: %v", err)
		os.Exit(1)
	}

	cfg := orch.GetConfig()
	if cfg.Elastic.URL == "" {
		color.Red("Error: Elasticsearch is not configured. Set elastic.url in experiment.yaml")
		os.Exit(1)
	}

	client, err := elastic.New(elastic.Config{
		URL:      cfg.Elastic.URL,
		Username: cfg.Elastic.Username,
		Password: cfg.Elastic.Password,
		Index:    cfg.Elastic.Index,
	})
	if err != nil {
		color.Red("Failed to connect to elasticsearch: %v", err)
		os.Exit(1)
	}

	if err := client.IndexJSONLinesFile(context.Background(), filename); err != nil {
		color.Red("Failed to index record file: %v", err)
		os.Exit(1)
	}

	color.Green("Indexed run records from %s into elasticsearch", filename)
}
