package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/armanbolatov/associative-recurrent-memory-transformer/pkg/config"
	"github.com/armanbolatov/associative-recurrent-memory-transformer/pkg/database"
	"github.com/armanbolatov/associative-recurrent-memory-transformer/pkg/elastic"
	"github.com/armanbolatov/associative-recurrent-memory-transformer/pkg/launcher"
	"github.com/armanbolatov/associative-recurrent-memory-transformer/pkg/session"
	"github.com/armanbolatov/associative-recurrent-memory-transformer/pkg/sweep"
	"github.com/armanbolatov/associative-recurrent-memory-transformer/pkg/tasks"

	"github.com/sirupsen/logrus"
)

var DebugLog func(string, ...interface{})

type Orchestrator struct {
	config        *config.Config
	configManager *config.Manager
	logger        *logrus.Logger
	db            *database.DB
}

// Plan is a fully resolved experiment: the task, every run config in launch
// order, and the absolute output base all run directories live under.
type Plan struct {
	Task       tasks.Task
	Runs       []sweep.RunConfig
	OutputBase string
}

type LaunchOptions struct {
	DryRun        bool
	JSONFormat    bool
	Stats         bool
	SkipPreflight bool
	ExportES      bool
}

type RunStat struct {
	RunPath  string
	Status   string
	ExitCode int
	Start    time.Time
	Duration time.Duration
}

type LaunchResult struct {
	SessionID  string
	Task       string
	StartTime  time.Time
	EndTime    time.Time
	Duration   time.Duration
	TotalRuns  int
	Completed  int
	Failed     int
	Skipped    int
	Success    bool
	Errors     []error
	RunStats   []RunStat
	RecordFile string
}

type customFormatter struct{}

func (f *customFormatter) Format(entry *logrus.Entry) ([]byte, error) {
	var levelText string
	switch entry.Level {
	case logrus.InfoLevel:
		levelText = "[INF]"
	case logrus.WarnLevel:
		levelText = "[WARN]"
	case logrus.ErrorLevel:
		levelText = "[ERR]"
	case logrus.DebugLevel:
		levelText = "[DBG]"
	default:
		levelText = "[???]"
	}
	return []byte(fmt.Sprintf("%s %s\n", levelText, entry.Message)), nil
}

func NewOrchestrator(configPath string) (*Orchestrator, error) {
	logger := logrus.New()
	logger.SetLevel(logrus.InfoLevel)
	logger.SetFormatter(&customFormatter{})

	configManager := config.NewManager(configPath)
	if err := configManager.LoadConfig(); err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	cfg := configManager.GetConfig()

	db, err := database.New(&cfg.Database)
	if err != nil {
		logger.Warnf("Database initialization failed: %v", err)
	}

	return &Orchestrator{
		config:        cfg,
		configManager: configManager,
		logger:        logger,
		db:            db,
	}, nil
}

// BuildPlan resolves the experiment into its launch-ordered run list.
// Everything that can fail here is a configuration error: no external
// process has been started yet.
func (o *Orchestrator) BuildPlan() (*Plan, error) {
	task, err := o.config.ResolveTask()
	if err != nil {
		return nil, err
	}

	runs, err := o.config.BuildSweep().Resolve()
	if err != nil {
		return nil, err
	}

	outputBase, err := filepath.Abs(o.config.Output.BaseDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve output base directory: %w", err)
	}

	return &Plan{
		Task:       task,
		Runs:       runs,
		OutputBase: outputBase,
	}, nil
}

// RunRecord is the per-run outcome line streamed in JSON mode.
type RunRecord struct {
	Run      string `json:"run"`
	Task     string `json:"task"`
	Model    string `json:"model"`
	Seed     int    `json:"seed"`
	Status   string `json:"status"`
	ExitCode int    `json:"exit_code"`
}

// RunLaunch executes the resolved plan sequentially. The first run that
// exits non-zero aborts the whole session; remaining runs stay QUEUED.
func (o *Orchestrator) RunLaunch(options LaunchOptions) (*LaunchResult, error) {
	startTime := time.Now()

	plan, err := o.BuildPlan()
	if err != nil {
		return nil, err
	}

	sess := session.New()
	sessionID := sess.ID
	result := &LaunchResult{
		SessionID: sessionID,
		Task:      plan.Task.Name,
		StartTime: startTime,
		TotalRuns: len(plan.Runs),
		Errors:    []error{},
	}

	s := o.config.BuildSweep()
	o.logger.Infof("Resolved %d runs for task %s (%d models x %d settings x %d repeats)",
		len(plan.Runs), plan.Task.Name, len(s.Models), s.PairWidth(), s.Runs)

	if options.DryRun {
		for _, rc := range plan.Runs {
			if options.JSONFormat {
				record := RunRecord{
					Run:    rc.ID(),
					Task:   rc.Task,
					Model:  rc.Model,
					Seed:   rc.Seed,
					Status: database.StatusQueued,
				}
				jsonBytes, _ := json.Marshal(record)
				fmt.Println(string(jsonBytes))
			} else {
				fmt.Println(rc.ID())
			}
		}
		result.Skipped = result.TotalRuns
		result.Success = true
		result.EndTime = time.Now()
		result.Duration = result.EndTime.Sub(startTime)
		return result, nil
	}

	backend, err := launcher.NewBackend(o.config.Backend.Name)
	if err != nil {
		return nil, err
	}

	if !options.SkipPreflight {
		if err := launcher.CheckPythonEnv(o.config.Backend.Python, backend.Name(), DebugLog != nil); err != nil {
			return nil, fmt.Errorf("python environment check failed: %w", err)
		}
	}

	if o.db != nil && o.db.IsEnabled() {
		if err := o.db.RecordPlanned(sessionID, plan.Runs); err != nil {
			o.logger.Warnf("Failed to record planned runs in database: %v", err)
		}
	}

	ctx := context.Background()

	for i, rc := range plan.Runs {
		runPath := rc.ID()
		o.logger.Infof("Run %d/%d: %s", i+1, len(plan.Runs), runPath)

		runDir := filepath.Join(plan.OutputBase, filepath.FromSlash(runPath))
		stat := RunStat{RunPath: runPath, Start: time.Now()}

		if err := os.MkdirAll(runDir, 0755); err != nil {
			err = fmt.Errorf("failed to create run directory: %w", err)
			o.recordFailure(result, &stat, sessionID, err)
			break
		}

		if o.db != nil && o.db.IsEnabled() {
			if err := o.db.MarkRunning(sessionID, runPath); err != nil {
				o.logger.Warnf("Failed to mark run as running in database: %v", err)
			}
		}

		job := o.buildJob(plan, rc, runDir)
		err := launcher.Launch(ctx, backend, job, DebugLog != nil)
		stat.Duration = time.Since(stat.Start)

		if err != nil {
			o.recordFailure(result, &stat, sessionID, err)
			if options.JSONFormat {
				o.printRunRecord(rc, stat)
			}
			break
		}

		stat.Status = database.StatusCompleted
		result.Completed++
		result.RunStats = append(result.RunStats, stat)
		o.logger.Infof("Run %s completed in %v", runPath, stat.Duration.Round(time.Second))

		if o.db != nil && o.db.IsEnabled() {
			if err := o.db.MarkFinished(sessionID, runPath, database.StatusCompleted, 0); err != nil {
				o.logger.Warnf("Failed to mark run as completed in database: %v", err)
			}
		}
		if options.JSONFormat {
			o.printRunRecord(rc, stat)
		}
	}

	endTime := time.Now()
	result.EndTime = endTime
	result.Duration = endTime.Sub(startTime)
	result.Skipped = result.TotalRuns - result.Completed - result.Failed
	result.Success = result.Failed == 0 && result.Completed == result.TotalRuns

	docs := o.buildRunDocuments(plan, result)

	if recordFile, err := sess.WriteRecords(docs); err != nil {
		o.logger.Warnf("Failed to write session run records: %v", err)
	} else {
		result.RecordFile = recordFile
	}

	if options.ExportES && o.config.Elastic.URL != "" {
		if err := o.exportRunDocuments(ctx, docs); err != nil {
			o.logger.Warnf("Failed to export run records to elasticsearch: %v", err)
		} else {
			o.logger.Infof("Exported %d run records to elasticsearch", len(docs))
		}
	}

	return result, nil
}

func (o *Orchestrator) recordFailure(result *LaunchResult, stat *RunStat, sessionID string, err error) {
	stat.Status = database.StatusFailed
	stat.ExitCode = launcher.ExitCode(err)
	if stat.Duration == 0 {
		stat.Duration = time.Since(stat.Start)
	}
	result.Failed++
	result.RunStats = append(result.RunStats, *stat)
	result.Errors = append(result.Errors, fmt.Errorf("run %s failed: %w", stat.RunPath, err))
	o.logger.Errorf("Run %s failed after %v: %v", stat.RunPath, stat.Duration.Round(time.Second), err)

	if o.db != nil && o.db.IsEnabled() {
		if dbErr := o.db.MarkFinished(sessionID, stat.RunPath, database.StatusFailed, stat.ExitCode); dbErr != nil {
			o.logger.Warnf("Failed to mark run as failed in database: %v", dbErr)
		}
	}
}

func (o *Orchestrator) printRunRecord(rc sweep.RunConfig, stat RunStat) {
	record := RunRecord{
		Run:      stat.RunPath,
		Task:     rc.Task,
		Model:    rc.Model,
		Seed:     rc.Seed,
		Status:   stat.Status,
		ExitCode: stat.ExitCode,
	}
	jsonBytes, _ := json.Marshal(record)
	fmt.Println(string(jsonBytes))
}

func (o *Orchestrator) buildJob(plan *Plan, rc sweep.RunConfig, runDir string) *launcher.Job {
	initCheckpoint := o.config.Training.InitCheckpoint
	if rc.InitCheckpoint != "" {
		initCheckpoint = filepath.Join(plan.OutputBase, filepath.FromSlash(rc.InitCheckpoint))
	}

	return &launcher.Job{
		Run:            rc,
		Task:           plan.Task,
		Model:          o.config.Model,
		Training:       o.config.Training,
		Launch:         o.config.Backend,
		OutputDir:      runDir,
		InitCheckpoint: initCheckpoint,
	}
}

// buildRunDocuments assembles one export document per resolved run. Runs
// the session never reached stay QUEUED with no timestamps.
func (o *Orchestrator) buildRunDocuments(plan *Plan, result *LaunchResult) []elastic.RunDocument {
	stats := make(map[string]RunStat)
	for _, stat := range result.RunStats {
		stats[stat.RunPath] = stat
	}

	docs := make([]elastic.RunDocument, 0, len(plan.Runs))
	for _, rc := range plan.Runs {
		doc := elastic.RunDocument{
			SessionID:       result.SessionID,
			RunPath:         rc.ID(),
			Task:            rc.Task,
			Model:           rc.Model,
			LearningRate:    rc.LearningRate,
			Scheduler:       rc.Scheduler,
			InputSeqLen:     rc.InputSeqLen,
			SegmentCount:    rc.SegmentCount,
			MemorySize:      rc.MemorySize,
			BatchSize:       rc.BatchSize,
			TargetBatchSize: rc.TargetBatchSize,
			Seed:            rc.Seed,
			Status:          database.StatusQueued,
		}

		if stat, ok := stats[doc.RunPath]; ok {
			doc.Status = stat.Status
			doc.ExitCode = stat.ExitCode
			started := stat.Start
			finished := stat.Start.Add(stat.Duration)
			doc.StartedAt = &started
			doc.FinishedAt = &finished
			doc.DurationSeconds = stat.Duration.Seconds()
		}

		docs = append(docs, doc)
	}

	return docs
}

func (o *Orchestrator) exportRunDocuments(ctx context.Context, docs []elastic.RunDocument) error {
	client, err := elastic.New(elastic.Config{
		URL:      o.config.Elastic.URL,
		Username: o.config.Elastic.Username,
		Password: o.config.Elastic.Password,
		Index:    o.config.Elastic.Index,
	})
	if err != nil {
		return err
	}

	return client.IndexRunDocuments(ctx, docs)
}

func (o *Orchestrator) GetConfig() *config.Config {
	return o.config
}

func (o *Orchestrator) GetConfigManager() *config.Manager {
	return o.configManager
}

func (o *Orchestrator) GetDB() *database.DB {
	return o.db
}
