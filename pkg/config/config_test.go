package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
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
  num_warmup_steps: 100
  log_interval: 50
  valid_interval: 500
  save_best: true
  clip_grad_norm: 1.0

backend:
  name: horovod
  devices: [0, 1]
  deterministic: true

output:
  base_dir: runs
`

func writeExperiment(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "experiment.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write experiment file: %v", err)
	}
	return path
}

func loadExperiment(t *testing.T, content string) *Manager {
	t.Helper()
	m := NewManager(writeExperiment(t, content))
	if err := m.LoadConfig(); err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	return m
}

func TestLoadConfig(t *testing.T) {
	m := loadExperiment(t, experimentYAML)
	cfg := m.GetConfig()

	if cfg.Task != "wikitext-2-v1" {
		t.Fatalf("task = %q", cfg.Task)
	}
	if cfg.Backend.Processes() != 2 {
		t.Fatalf("processes = %d, want 2 (one per device)", cfg.Backend.Processes())
	}
	if cfg.Training.Optimizer != "AdamW" {
		t.Fatalf("optimizer default not applied: %q", cfg.Training.Optimizer)
	}
	if cfg.Sweep.MemoryLayout != "plain" {
		t.Fatalf("memory layout default not applied: %q", cfg.Sweep.MemoryLayout)
	}
	if cfg.Elastic.Index != "armt_runs" {
		t.Fatalf("elastic index default not applied: %q", cfg.Elastic.Index)
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	m := NewManager(filepath.Join(t.TempDir(), "nope.yaml"))
	if err := m.LoadConfig(); err == nil {
		t.Fatal("expected error for missing experiment file")
	}
}

func TestLoadConfigRejectsInvalid(t *testing.T) {
	cases := []struct {
		name    string
		mutate  string
		wantErr string
	}{
		{
			"unknown_task",
			strings.Replace(experimentYAML, "task: wikitext-2-v1", "task: enwik8", 1),
			"unknown task",
		},
		{
			"both_clip_flags",
			strings.Replace(experimentYAML, "clip_grad_norm: 1.0", "clip_grad_norm: 1.0\n  clip_grad_value: 0.5", 1),
			"mutually exclusive",
		},
		{
			"scheduler_without_lr",
			strings.Replace(experimentYAML, "learning_rates: [1e-04, 3e-05]", "learning_rates: []", 1),
			"no learning_rates",
		},
		{
			"unknown_backend",
			strings.Replace(experimentYAML, "name: horovod", "name: slurm", 1),
			"unknown backend",
		},
		{
			"mismatched_pairing",
			strings.Replace(experimentYAML, "segment_counts: [2, 4]", "segment_counts: [2, 4, 8]", 1),
			"learning_rates",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			m := NewManager(writeExperiment(t, tc.mutate))
			err := m.LoadConfig()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tc.wantErr) {
				t.Fatalf("error %q does not mention %q", err, tc.wantErr)
			}
		})
	}
}

func TestBuildSweep(t *testing.T) {
	m := loadExperiment(t, experimentYAML)
	s := m.GetConfig().BuildSweep()

	if s.Task != "wikitext-2-v1" {
		t.Fatalf("sweep task = %q", s.Task)
	}
	if s.NumProcesses != 2 {
		t.Fatalf("sweep processes = %d", s.NumProcesses)
	}
	if s.Optimizer != "AdamW" {
		t.Fatalf("sweep optimizer = %q", s.Optimizer)
	}
	runs, err := s.Resolve()
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if len(runs) != 4 {
		t.Fatalf("resolved %d runs, want 4 (2 settings x 2 runs)", len(runs))
	}
}

func TestResolveTaskCustom(t *testing.T) {
	custom := experimentYAML + `
custom_task:
  name: enwik8
  script: run_finetuning_lm_armt.py
  dataset_args: [--data_dir, data/enwik8]
  metric: bpc
  mode: min
`
	m := loadExperiment(t, custom)
	task, err := m.GetConfig().ResolveTask()
	if err != nil {
		t.Fatalf("ResolveTask failed: %v", err)
	}
	if task.Name != "enwik8" || task.Metric != "bpc" {
		t.Fatalf("custom task not resolved: %+v", task)
	}
}

func TestOverride(t *testing.T) {
	m := loadExperiment(t, experimentYAML)

	if err := m.Override("runs", "5"); err != nil {
		t.Fatalf("runs override failed: %v", err)
	}
	if m.GetConfig().Sweep.Runs != 5 {
		t.Fatalf("runs = %d", m.GetConfig().Sweep.Runs)
	}

	if err := m.Override("backend", "accelerate"); err != nil {
		t.Fatalf("backend override failed: %v", err)
	}
	if err := m.Override("backend", "slurm"); err == nil {
		t.Fatal("expected error for unknown backend")
	}

	if err := m.Override("devices", "2,3"); err != nil {
		t.Fatalf("devices override failed: %v", err)
	}
	if m.GetConfig().Backend.Processes() != 2 {
		t.Fatalf("processes after devices override = %d", m.GetConfig().Backend.Processes())
	}

	if err := m.Override("runs", "zero"); err == nil {
		t.Fatal("expected error for non-numeric runs")
	}
	if err := m.Override("gpus", "1"); err == nil {
		t.Fatal("expected error for unknown setting")
	}
}
