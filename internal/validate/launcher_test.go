package validate

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
)

func writeScript(t *testing.T, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell scripts are not executable on windows")
	}
	path := filepath.Join(t.TempDir(), "fake-cfn-lint")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0755); err != nil {
		t.Fatalf("write script: %v", err)
	}
	return path
}

func TestExecLauncherCapturesStreams(t *testing.T) {
	script := writeScript(t, "echo \"$4\" >&2\nprintf '[]'\nexit 2\n")

	proc, err := ExecLauncher{}.Launch(context.Background(), script, Settings{}.Args("/work/t.yaml"))
	if err != nil {
		t.Fatalf("launch: %v", err)
	}
	stdout, err := io.ReadAll(proc.Stdout)
	if err != nil {
		t.Fatalf("read stdout: %v", err)
	}
	stderr, err := io.ReadAll(proc.Stderr)
	if err != nil {
		t.Fatalf("read stderr: %v", err)
	}
	code, err := proc.Wait()
	if err != nil {
		t.Fatalf("wait: %v", err)
	}
	if string(stdout) != "[]" {
		t.Fatalf("unexpected stdout %q", stdout)
	}
	if strings.TrimSpace(string(stderr)) != "/work/t.yaml" {
		t.Fatalf("template path must be the fourth argument, stderr %q", stderr)
	}
	if code != 2 {
		t.Fatalf("expected exit code 2, got %d", code)
	}
}

func TestExecLauncherMissingCommand(t *testing.T) {
	_, err := ExecLauncher{}.Launch(context.Background(), filepath.Join(t.TempDir(), "missing"), nil)
	if err == nil {
		t.Fatal("expected start failure")
	}
}

func TestRunWithRealProcess(t *testing.T) {
	script := writeScript(t, "printf '%s' '"+badRefOutput+"'\n")
	pub := &recordingPublisher{}
	c := NewCoordinator(pub, Options{
		Launcher: ExecLauncher{},
		Settings: Settings{Path: script},
		Logf:     func(string, ...any) {},
	})

	c.Open(context.Background(), templateDoc("a.yaml"))
	c.Wait()

	batches := pub.published()
	if len(batches) != 1 || len(batches[0].Diagnostics) != 1 {
		t.Fatalf("unexpected batches %+v", batches)
	}
	if batches[0].Diagnostics[0].Range.End.Character != 4 {
		t.Fatalf("unexpected range %+v", batches[0].Diagnostics[0].Range)
	}
}
