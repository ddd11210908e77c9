package tasks

import (
	"fmt"
	"sort"
	"strings"
)

// Task binds a task name to the trainer entry point and the dataset flags
// that entry point needs. Metric and Mode are the defaults for best-model
// selection; experiment files may override both.
type Task struct {
	Name        string
	Script      string
	DatasetArgs []string
	Metric      string
	Mode        string
	Description string
}

// builtins is the task catalog. Keys are the names accepted in experiment
// files.
var builtins = map[string]Task{
	"arxiv": {
		Name:        "arxiv",
		Script:      "run_finetuning_arxiv_armt.py",
		DatasetArgs: []string{"--data_dir", "data/arxiv"},
		Metric:      "loss",
		Mode:        "min",
		Description: "language modeling on the arXiv dump",
	},
	"wikitext-2-v1": {
		Name:        "wikitext-2-v1",
		Script:      "run_finetuning_lm_armt.py",
		DatasetArgs: []string{"--dataset_name", "wikitext", "--dataset_config_name", "wikitext-2-v1"},
		Metric:      "loss",
		Mode:        "min",
		Description: "language modeling on wikitext-2",
	},
	"wikitext-103-v1": {
		Name:        "wikitext-103-v1",
		Script:      "run_finetuning_lm_armt.py",
		DatasetArgs: []string{"--dataset_name", "wikitext", "--dataset_config_name", "wikitext-103-v1"},
		Metric:      "loss",
		Mode:        "min",
		Description: "language modeling on wikitext-103",
	},
	"ca": {
		Name:        "ca",
		Script:      "run_finetuning_ca_armt.py",
		DatasetArgs: []string{"--data_dir", "data/ca"},
		Metric:      "bit_accuracy",
		Mode:        "max",
		Description: "next-state prediction for elementary cellular automata",
	},
}

// Lookup resolves a task name against the built-in catalog.
func Lookup(name string) (Task, error) {
	t, ok := builtins[name]
	if !ok {
		return Task{}, fmt.Errorf("unknown task %q, available tasks: %s", name, strings.Join(Names(), ", "))
	}
	return t, nil
}

// Names returns the built-in task names in sorted order.
func Names() []string {
	names := make([]string, 0, len(builtins))
	for name := range builtins {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Custom builds a task declared inline in an experiment file. The script is
// required; metric and mode fall back to loss minimization.
func Custom(name, script string, datasetArgs []string, metric, mode string) (Task, error) {
	if name == "" {
		return Task{}, fmt.Errorf("custom task has no name")
	}
	if script == "" {
		return Task{}, fmt.Errorf("custom task %s has no entry script", name)
	}
	if metric == "" {
		metric = "loss"
	}
	if mode == "" {
		mode = "min"
	}
	if mode != "min" && mode != "max" {
		return Task{}, fmt.Errorf("custom task %s: optimize mode must be min or max, got %q", name, mode)
	}
	return Task{
		Name:        name,
		Script:      script,
		DatasetArgs: datasetArgs,
		Metric:      metric,
		Mode:        mode,
		Description: "custom task",
	}, nil
}
