package launcher

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/armanbolatov/associative-recurrent-memory-transformer/pkg/config"
	"github.com/armanbolatov/associative-recurrent-memory-transformer/pkg/sweep"
	"github.com/armanbolatov/associative-recurrent-memory-transformer/pkg/tasks"
)

// Job is one resolved training run ready to launch: the run config, its
// task, the fixed model and trainer settings, and the backend block from
// the experiment file. OutputDir and InitCheckpoint are absolute paths
// resolved by the caller.
type Job struct {
	Run            sweep.RunConfig
	Task           tasks.Task
	Model          config.Model
	Training       config.Training
	Launch         config.Backend
	OutputDir      string
	InitCheckpoint string
}

// EntryScript returns the trainer entry point: the experiment override when
// set, otherwise the task's own script.
func (j *Job) EntryScript() string {
	if j.Launch.Script != "" {
		return j.Launch.Script
	}
	return j.Task.Script
}

// Backend turns a job into an external launcher invocation.
type Backend interface {
	Name() string

	// Resolve locates the launcher binary.
	Resolve() (string, error)

	// BuildArgs returns the full argument list after the binary itself.
	BuildArgs(job *Job) []string
}

func NewBackend(name string) (Backend, error) {
	switch name {
	case "horovod":
		return &Horovod{}, nil
	case "accelerate":
		return &Accelerate{}, nil
	default:
		return nil, fmt.Errorf("unknown backend %q, available backends: horovod, accelerate", name)
	}
}

// ProcessError is a training process that exited non-zero. ExitCode is -1
// when the process was killed before exiting on its own.
type ProcessError struct {
	Backend  string
	ExitCode int
	Err      error
}

func (e *ProcessError) Error() string {
	return fmt.Sprintf("%s failed with exit code %d: %v", e.Backend, e.ExitCode, e.Err)
}

func (e *ProcessError) Unwrap() error {
	return e.Err
}

// ExitCode extracts the training process exit code from a launch error,
// or -1 when the error carries none.
func ExitCode(err error) int {
	var perr *ProcessError
	if errors.As(err, &perr) {
		return perr.ExitCode
	}
	return -1
}

// Launch runs one training job to completion, streaming trainer output to
// the terminal. A non-zero exit comes back as a ProcessError; there is no
// retry at this layer.
func Launch(ctx context.Context, backend Backend, job *Job, verbose bool) error {
	binPath, err := backend.Resolve()
	if err != nil {
		return fmt.Errorf("%s executable not found: %w", backend.Name(), err)
	}

	args := backend.BuildArgs(job)

	if verbose {
		fmt.Printf("[DBG] executing: %s %s\n", binPath, strings.Join(args, " "))
	}

	cmd := exec.CommandContext(ctx, binPath, args...)
	cmd.Dir = job.Launch.WorkDir
	cmd.Env = append(os.Environ(), BuildEnv(&job.Launch)...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	if err := cmd.Run(); err != nil {
		code := -1
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			code = exitErr.ExitCode()
		}
		return &ProcessError{Backend: backend.Name(), ExitCode: code, Err: err}
	}

	return nil
}
