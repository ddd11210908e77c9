package launcher

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
)

// Horovod launches training through horovodrun with the gloo controller,
// one worker process per device.
type Horovod struct{}

func (h *Horovod) Name() string {
	return "horovod"
}

func getHorovodrunPath() (string, error) {
	if path, err := exec.LookPath("horovodrun"); err == nil {
		return path, nil
	}

	binPaths := []string{}

	if venv := os.Getenv("VIRTUAL_ENV"); venv != "" {
		binPaths = append(binPaths, filepath.Join(venv, "bin", "horovodrun"))
	}

	if home := os.Getenv("HOME"); home != "" {
		binPaths = append(binPaths, filepath.Join(home, ".local", "bin", "horovodrun"))
	}

	for _, path := range binPaths {
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}

	return "", fmt.Errorf("horovodrun not found")
}

func (h *Horovod) Resolve() (string, error) {
	return getHorovodrunPath()
}

func (h *Horovod) BuildArgs(job *Job) []string {
	args := []string{
		"--gloo",
		"-np", strconv.Itoa(job.Launch.Processes()),
		job.Launch.Python,
		job.EntryScript(),
	}
	return append(args, BuildTrainerArgs(job)...)
}
