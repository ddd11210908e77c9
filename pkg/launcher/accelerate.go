package launcher

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
)

// Accelerate launches training through `accelerate launch`, which spawns
// the worker processes itself using its own interpreter.
type Accelerate struct{}

func (a *Accelerate) Name() string {
	return "accelerate"
}

func getAcceleratePath() (string, error) {
	if path, err := exec.LookPath("accelerate"); err == nil {
		return path, nil
	}

	binPaths := []string{}

	if venv := os.Getenv("VIRTUAL_ENV"); venv != "" {
		binPaths = append(binPaths, filepath.Join(venv, "bin", "accelerate"))
	}

	if home := os.Getenv("HOME"); home != "" {
		binPaths = append(binPaths, filepath.Join(home, ".local", "bin", "accelerate"))
	}

	for _, path := range binPaths {
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}

	return "", fmt.Errorf("accelerate not found")
}

func (a *Accelerate) Resolve() (string, error) {
	return getAcceleratePath()
}

func (a *Accelerate) BuildArgs(job *Job) []string {
	args := []string{
		"launch",
		"--num_processes", strconv.Itoa(job.Launch.Processes()),
	}
	if job.Launch.AccelerateConfig != "" {
		args = append(args, "--config_file", job.Launch.AccelerateConfig)
	}
	if job.Training.FP16 {
		args = append(args, "--mixed_precision", "fp16")
	}
	args = append(args, job.EntryScript())
	return append(args, BuildTrainerArgs(job)...)
}
