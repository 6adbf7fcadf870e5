// Package process runs external helper programs and turns non-zero exits into
// classified ProcessErrors carrying the captured output.
package process

import (
	"bytes"
	"context"
	stderrors "errors"
	"log/slog"
	"os/exec"
	"strings"
	"time"

	"git.home.luguber.info/inful/harnesscache/internal/foundation/errors"
	"git.home.luguber.info/inful/harnesscache/internal/logfields"
)

// maxCapturedOutput bounds the stdout/stderr copied into error context.
const maxCapturedOutput = 8 * 1024

// Result is the captured outcome of a finished command.
type Result struct {
	Stdout   []byte
	Stderr   []byte
	ExitCode int
	Duration time.Duration
}

// Runner executes an external program and waits for it to exit.
type Runner interface {
	Run(ctx context.Context, dir, name string, args ...string) (Result, error)
}

// ExecRunner is the os/exec backed Runner.
type ExecRunner struct{}

// Run executes name with args in dir. A non-zero exit, or failure to start,
// yields a ProcessError with command, exit_code, stdout and stderr context.
func (ExecRunner) Run(ctx context.Context, dir, name string, args ...string) (Result, error) {
	start := time.Now()
	// #nosec G204 -- command and arguments are assembled by the caller from configuration
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	res := Result{
		Stdout:   stdout.Bytes(),
		Stderr:   stderr.Bytes(),
		ExitCode: exitCode(cmd, err),
		Duration: time.Since(start),
	}

	commandLine := strings.Join(append([]string{name}, args...), " ")
	slog.Debug("Command finished",
		logfields.Command(commandLine),
		slog.Int("exit_code", res.ExitCode),
		logfields.DurationMS(float64(res.Duration.Milliseconds())))

	if err != nil {
		return res, NewError(commandLine, res, err)
	}
	return res, nil
}

// NewError builds the ProcessError for a failed command. It is exported so
// alternative Runners report failures identically.
func NewError(commandLine string, res Result, cause error) *errors.ClassifiedError {
	return errors.WrapError(cause, errors.CategoryProcess, "command failed: "+commandLine).
		WithContext("command", commandLine).
		WithContext("exit_code", res.ExitCode).
		WithContext("stdout", truncate(res.Stdout)).
		WithContext("stderr", truncate(res.Stderr)).
		Build()
}

func exitCode(cmd *exec.Cmd, err error) int {
	if err == nil {
		return 0
	}
	var ee *exec.ExitError
	if stderrors.As(err, &ee) {
		return ee.ExitCode()
	}
	if cmd.ProcessState != nil {
		return cmd.ProcessState.ExitCode()
	}
	return -1
}

func truncate(b []byte) string {
	if len(b) > maxCapturedOutput {
		return string(b[len(b)-maxCapturedOutput:])
	}
	return string(b)
}
