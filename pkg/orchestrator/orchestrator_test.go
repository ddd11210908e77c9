package orchestrator

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/armanbolatov/associative-recurrent-memory-transformer/pkg/database"

	"github.com/sirupsen/logrus"
)

const experimentYAML = `
task: wikitext-2-v1

model:
  tokenizer: gpt2
  backbone_cls: transformers:GPT2LMHeadModel
  model_cls: modeling_amt:AssociativeMemoryCell

sweep:
  models: [gpt2]
  runs: 2
  learning_rates: [1e-04, 3e-05]
  schedulers: [linear]
  segment_counts: [2, 4]
  input_sizes: [128]
  memory_sizes: [16]
  batch_sizes: [8]
  target_batch_sizes: [32]

training:
  iters: 10000
  weight_decay: 1e-03
  clip_grad_norm: 1.0

backend:
  name: horovod
  devices: [0, 1]

output:
  base_dir: runs
`

func newTestOrchestrator(t *testing.T) *Orchestrator {
	t.Helper()

	path := filepath.Join(t.TempDir(), "experiment.yaml")
	if err := os.WriteFile(path, []byte(experimentYAML), 0644); err != nil {
		t.Fatalf("failed to write experiment file: %v", err)
	}

	orch, err := NewOrchestrator(path)
	if err != nil {
		t.Fatalf("NewOrchestrator failed: %v", err)
	}
	return orch
}

func TestCustomFormatter(t *testing.T) {
	f := &customFormatter{}

	cases := []struct {
		level  logrus.Level
		prefix string
	}{
		{logrus.InfoLevel, "[INF]"},
		{logrus.WarnLevel, "[WARN]"},
		{logrus.ErrorLevel, "[ERR]"},
		{logrus.DebugLevel, "[DBG]"},
	}

	for _, tc := range cases {
		out, err := f.Format(&logrus.Entry{Level: tc.level, Message: "hello"})
		if err != nil {
			t.Fatalf("Format failed: %v", err)
		}
		want := tc.prefix + " hello\n"
		if string(out) != want {
			t.Fatalf("expected %q, got %q", want, string(out))
		}
	}
}

func TestNewOrchestratorLoadsExperiment(t *testing.T) {
	orch := newTestOrchestrator(t)

	cfg := orch.GetConfig()
	if cfg.Task != "wikitext-2-v1" {
		t.Fatalf("expected task wikitext-2-v1, got %s", cfg.Task)
	}
	if db := orch.GetDB(); db == nil || db.IsEnabled() {
		t.Fatal("expected a disabled database handle")
	}
}

func TestBuildPlan(t *testing.T) {
	orch := newTestOrchestrator(t)

	plan, err := orch.BuildPlan()
	if err != nil {
		t.Fatalf("BuildPlan failed: %v", err)
	}

	if plan.Task.Name != "wikitext-2-v1" {
		t.Fatalf("expected task wikitext-2-v1, got %s", plan.Task.Name)
	}
	if len(plan.Runs) != 4 {
		t.Fatalf("expected 4 runs (2 settings x 2 repeats), got %d", len(plan.Runs))
	}
	if !filepath.IsAbs(plan.OutputBase) {
		t.Fatalf("expected absolute output base, got %s", plan.OutputBase)
	}
}

func TestRunLaunchDryRun(t *testing.T) {
	orch := newTestOrchestrator(t)

	result, err := orch.RunLaunch(LaunchOptions{DryRun: true})
	if err != nil {
		t.Fatalf("RunLaunch failed: %v", err)
	}

	if !result.Success {
		t.Fatal("expected dry run to succeed")
	}
	if result.TotalRuns != 4 || result.Skipped != 4 {
		t.Fatalf("expected 4 runs all skipped, got total=%d skipped=%d", result.TotalRuns, result.Skipped)
	}
	if result.Completed != 0 || result.Failed != 0 {
		t.Fatalf("expected no launched runs, got completed=%d failed=%d", result.Completed, result.Failed)
	}
	if result.SessionID == "" {
		t.Fatal("expected a session id")
	}
}

func TestBuildRunDocuments(t *testing.T) {
	orch := newTestOrchestrator(t)

	plan, err := orch.BuildPlan()
	if err != nil {
		t.Fatalf("BuildPlan failed: %v", err)
	}

	started := time.Date(2026, 8, 15, 12, 0, 0, 0, time.UTC)
	result := &LaunchResult{
		SessionID: "test-session",
		RunStats: []RunStat{
			{
				RunPath:  plan.Runs[0].ID(),
				Status:   database.StatusCompleted,
				Start:    started,
				Duration: 90 * time.Second,
			},
		},
	}

	docs := orch.buildRunDocuments(plan, result)
	if len(docs) != len(plan.Runs) {
		t.Fatalf("expected %d documents, got %d", len(plan.Runs), len(docs))
	}

	first := docs[0]
	if first.Status != database.StatusCompleted {
		t.Fatalf("expected first document COMPLETED, got %s", first.Status)
	}
	if first.StartedAt == nil || !first.StartedAt.Equal(started) {
		t.Fatalf("expected started_at %v, got %v", started, first.StartedAt)
	}
	if first.FinishedAt == nil || !first.FinishedAt.Equal(started.Add(90*time.Second)) {
		t.Fatalf("expected finished_at %v, got %v", started.Add(90*time.Second), first.FinishedAt)
	}
	if first.DurationSeconds != 90 {
		t.Fatalf("expected 90 duration seconds, got %v", first.DurationSeconds)
	}

	for i, doc := range docs[1:] {
		if doc.Status != database.StatusQueued {
			t.Fatalf("expected document %d QUEUED, got %s", i+1, doc.Status)
		}
		if doc.StartedAt != nil || doc.FinishedAt != nil {
			t.Fatalf("expected document %d without timestamps", i+1)
		}
	}

	if docs[0].SessionID != "test-session" {
		t.Fatalf("expected session id stamped on documents, got %s", docs[0].SessionID)
	}
}

func TestBuildJobChainsCheckpoint(t *testing.T) {
	orch := newTestOrchestrator(t)

	plan, err := orch.BuildPlan()
	if err != nil {
		t.Fatalf("BuildPlan failed: %v", err)
	}

	rc := plan.Runs[0]
	runDir := filepath.Join(plan.OutputBase, filepath.FromSlash(rc.ID()))

	job := orch.buildJob(plan, rc, runDir)
	if job.InitCheckpoint != "" {
		t.Fatalf("expected no init checkpoint, got %s", job.InitCheckpoint)
	}
	if job.OutputDir != runDir {
		t.Fatalf("expected output dir %s, got %s", runDir, job.OutputDir)
	}

	rc.InitCheckpoint = plan.Runs[0].ID() + "/model_best.pth"
	job = orch.buildJob(plan, rc, runDir)

	want := filepath.Join(plan.OutputBase, filepath.FromSlash(rc.InitCheckpoint))
	if job.InitCheckpoint != want {
		t.Fatalf("expected chained init checkpoint %s, got %s", want, job.InitCheckpoint)
	}
	if !strings.HasPrefix(job.InitCheckpoint, plan.OutputBase) {
		t.Fatalf("expected checkpoint under output base, got %s", job.InitCheckpoint)
	}
}
