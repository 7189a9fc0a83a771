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
	"strings"
	"testing"
	"time"
)

func TestSubprocessRunnerCapturesStdout(t *testing.T) {
	r := NewSubprocessRunner()
	res, err := r.Run("echo hello", "", nil, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if strings.TrimSpace(res.Stdout) != "hello" {
		t.Fatalf("expected stdout %q, got %q", "hello", res.Stdout)
	}
	if res.ExitCode != 0 {
		t.Fatalf("expected exit code 0, got %d", res.ExitCode)
	}
}

func TestSubprocessRunnerCapturesNonZeroExit(t *testing.T) {
	r := NewSubprocessRunner()
	res, err := r.Run("exit 3", "", nil, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.ExitCode != 3 {
		t.Fatalf("expected exit code 3, got %d", res.ExitCode)
	}
}

func TestSubprocessRunnerCapturesStderr(t *testing.T) {
	r := NewSubprocessRunner()
	res, err := r.Run("echo oops 1>&2", "", nil, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if strings.TrimSpace(res.Stderr) != "oops" {
		t.Fatalf("expected stderr %q, got %q", "oops", res.Stderr)
	}
}

func TestSubprocessRunnerEnforcesTimeout(t *testing.T) {
	r := NewSubprocessRunner()
	_, err := r.Run("sleep 2", "", nil, 10*time.Millisecond)
	if err == nil {
		t.Fatal("expected a timeout error")
	}
	if _, ok := err.(*SubprocessTimeoutError); !ok {
		t.Fatalf("expected *SubprocessTimeoutError, got %T: %v", err, err)
	}
}

func TestSubprocessRunnerRespectsWorkingDirectory(t *testing.T) {
	dir := t.TempDir()
	r := NewSubprocessRunner()
	res, err := r.Run("pwd", dir, nil, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if strings.TrimSpace(res.Stdout) != dir {
		t.Fatalf("expected pwd to report %q, got %q", dir, strings.TrimSpace(res.Stdout))
	}
}
