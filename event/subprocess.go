// Copyright 2015 trivago GmbH
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package event

import (
	"bytes"
	"context"
	"os/exec"
	"time"
)

// SubprocessResult is the outcome of a command run through
// SubprocessRunner: its captured stdout, stderr and exit code.
type SubprocessResult struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// SubprocessTimeoutError reports that a command exceeded its configured
// timeout; surfaced to templates as a RendererRuntime error.
type SubprocessTimeoutError struct {
	Command string
	Timeout time.Duration
}

func (e *SubprocessTimeoutError) Error() string {
	return "subprocess timed out after " + e.Timeout.String() + ": " + e.Command
}

// SubprocessRunner invokes shell commands on behalf of a template, with
// an optional working directory, environment and timeout.
type SubprocessRunner struct{}

// NewSubprocessRunner builds a subprocess runner.
func NewSubprocessRunner() *SubprocessRunner {
	return &SubprocessRunner{}
}

// Run executes command through the shell (`sh -c`), waiting for
// completion. A zero timeout means no deadline.
func (r *SubprocessRunner) Run(command, cwd string, env []string, timeout time.Duration) (*SubprocessResult, error) {
	ctx := context.Background()
	var cancel context.CancelFunc
	if timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, "sh", "-c", command)
	cmd.Dir = cwd
	if env != nil {
		cmd.Env = env
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if ctx.Err() == context.DeadlineExceeded {
		return nil, &SubprocessTimeoutError{Command: command, Timeout: timeout}
	}

	exitCode := 0
	if exitErr, ok := err.(*exec.ExitError); ok {
		exitCode = exitErr.ExitCode()
	} else if err != nil {
		return nil, err
	}

	return &SubprocessResult{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		ExitCode: exitCode,
	}, nil
}
