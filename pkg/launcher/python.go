package launcher

import (
	"bytes"
	"fmt"
	"os/exec"
	"strings"
)

// TrainingPackages are required before any backend is considered.
var TrainingPackages = []string{"torch", "transformers", "datasets"}

// backendPackages returns the python package a backend needs on top of the
// training stack.
func backendPackages(backend string) []string {
	switch backend {
	case "horovod":
		return []string{"horovod"}
	case "accelerate":
		return []string{"accelerate"}
	default:
		return nil
	}
}

func runPython(command string, args []string, verbose bool) (string, error) {
	cmd := exec.Command(command, args...)
	var stdoutBuf, stderrBuf bytes.Buffer
	cmd.Stdout = &stdoutBuf
	cmd.Stderr = &stderrBuf

	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("%s %s failed: %v, stderr: %s", command, strings.Join(args, " "), err, stderrBuf.String())
	}

	if verbose {
		fmt.Printf("[DBG] %s %s\n", command, strings.Join(args, " "))
	}

	return stdoutBuf.String(), nil
}

// CheckPythonEnv verifies the interpreter is usable and every required
// package is installed, installing missing ones through pip. Run before the
// first launch so a broken environment fails the session up front instead
// of mid-sweep.
func CheckPythonEnv(python, backend string, verbose bool) error {
	if python == "" {
		python = "python3"
	}

	out, err := runPython(python, []string{"--version"}, verbose)
	if err != nil {
		return fmt.Errorf("python interpreter check failed: %w", err)
	}
	if verbose {
		fmt.Printf("[DBG] using %s\n", strings.TrimSpace(out))
	}

	if _, err := runPython(python, []string{"-m", "pip", "--version"}, verbose); err != nil {
		return fmt.Errorf("pip check failed: %w", err)
	}

	required := append([]string{}, TrainingPackages...)
	required = append(required, backendPackages(backend)...)

	for _, packageName := range required {
		if _, err := runPython(python, []string{"-m", "pip", "show", packageName}, verbose); err != nil {
			fmt.Printf("[LAUNCH] package %s not found, installing...\n", packageName)
			if _, err := runPython(python, []string{"-m", "pip", "install", packageName}, verbose); err != nil {
				return fmt.Errorf("failed to install %s: %w", packageName, err)
			}
		}
	}

	return nil
}
