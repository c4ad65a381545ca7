// Thin abstraction over the external command line tools (yt-dlp, mp3gain)
// that the pipeline shells out to. Both tools are invoked through the same
// Runner capability so that orchestration logic can be tested without
// spawning real subprocesses.
package tool

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/fjmorton/trackforge/pkg/logger"
)

var log = logger.Get("Tool")

type (
	// Runner executes an external binary to completion, returning the
	// captured standard output. A non-zero exit status is surfaced as an
	// *Error carrying the tools stderr output.
	Runner interface {
		Run(ctx context.Context, binary string, args ...string) (string, error)
	}

	// Error describes a failed invocation of an external tool.
	Error struct {
		Binary   string
		ExitCode int
		Stderr   string
		cause    error
	}

	execRunner struct{}
)

func (e *Error) Error() string {
	if e.Stderr != "" {
		return fmt.Sprintf("%s failed (exit code %d): %s", e.Binary, e.ExitCode, e.Stderr)
	}

	return fmt.Sprintf("%s failed (exit code %d): %v", e.Binary, e.ExitCode, e.cause)
}

func (e *Error) Unwrap() error { return e.cause }

// NewRunner returns a Runner which executes commands on the host machine.
func NewRunner() Runner { return &execRunner{} }

func (r *execRunner) Run(ctx context.Context, binary string, args ...string) (string, error) {
	log.Emit(logger.DEBUG, "Executing %s with args %v\n", binary, args)

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, binary, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		// Cancellation of the run context takes priority over whatever
		// exit status the killed process reported.
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}

		exitCode := -1
		if exitErr, ok := err.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
		}

		return "", &Error{
			Binary:   binary,
			ExitCode: exitCode,
			Stderr:   lastOutputLines(stderr.String(), 5),
			cause:    err,
		}
	}

	return stdout.String(), nil
}

// lastOutputLines trims a tools stderr dump down to it's final lines, which
// is where yt-dlp and mp3gain report the actual cause of a failure.
func lastOutputLines(output string, limit int) string {
	lines := strings.Split(strings.TrimSpace(output), "\n")
	if len(lines) > limit {
		lines = lines[len(lines)-limit:]
	}

	return strings.Join(lines, "\n")
}
