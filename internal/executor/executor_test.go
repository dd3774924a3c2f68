package executor

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"runtime"
	"strings"
	"testing"

	"github.com/any-hub/any-cli/internal/logging"
	"github.com/any-hub/any-cli/pkg/command"
)

func writeScript(t *testing.T, dir, name, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell script fixture")
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0o755); err != nil {
		t.Fatalf("write script: %v", err)
	}
	return path
}

func newTestExecutor(stdout *bytes.Buffer, opts Options) *Executor {
	opts.Stdout = stdout
	opts.Stderr = &bytes.Buffer{}
	opts.Stdin = strings.NewReader("")
	opts.Logger = logging.Discard()
	return New(opts)
}

func TestRunMissingEntry(t *testing.T) {
	exec := newTestExecutor(&bytes.Buffer{}, Options{})
	code, err := exec.Run(context.Background(), filepath.ToSlash(filepath.Join(t.TempDir(), "lib", "index.js")), command.Request{})
	if !errors.Is(err, ErrSpawnFailed) {
		t.Fatalf("expected ErrSpawnFailed, got %v", err)
	}
	if code != 1 {
		t.Fatalf("expected exit code 1, got %d", code)
	}
}

func TestRunPropagatesExitCodeAndRequest(t *testing.T) {
	dir := t.TempDir()
	entry := writeScript(t, dir, "cli", `printf '%s' "$ANY_CLI_REQUEST"
[ -n "$ANY_CLI_DISPATCH_ID" ] || exit 99
exit 7
`)

	var stdout bytes.Buffer
	exec := newTestExecutor(&stdout, Options{})
	req := command.Request{Args: []string{"my-app"}, Options: map[string]interface{}{"force": true}}
	code, err := exec.Run(context.Background(), filepath.ToSlash(entry), req)
	if err != nil {
		t.Fatalf("run error: %v", err)
	}
	if code != 7 {
		t.Fatalf("expected child exit code 7, got %d", code)
	}
	if stdout.String() != `["my-app",{"force":true}]` {
		t.Fatalf("request not forwarded: %q", stdout.String())
	}
}

func TestRunSuccess(t *testing.T) {
	entry := writeScript(t, t.TempDir(), "ok", "exit 0\n")
	code, err := newTestExecutor(&bytes.Buffer{}, Options{}).Run(context.Background(), entry, command.Request{})
	if err != nil || code != 0 {
		t.Fatalf("expected clean exit, got %d %v", code, err)
	}
}

func TestRunScriptEntryUsesNode(t *testing.T) {
	dir := t.TempDir()
	node := writeScript(t, dir, "fake-node", `for a in "$@"; do printf '%s\n' "$a"; done
exit 3
`)
	entry := filepath.Join(dir, "lib", "index.js")
	if err := os.MkdirAll(filepath.Dir(entry), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(entry, []byte("module.exports = function () {}"), 0o644); err != nil {
		t.Fatalf("write entry: %v", err)
	}

	var stdout bytes.Buffer
	exec := newTestExecutor(&stdout, Options{NodePath: node})
	code, err := exec.Run(context.Background(), filepath.ToSlash(entry), command.Request{Args: []string{"a"}})
	if err != nil {
		t.Fatalf("run error: %v", err)
	}
	if code != 3 {
		t.Fatalf("expected exit 3, got %d", code)
	}
	lines := strings.Split(strings.TrimSpace(stdout.String()), "\n")
	want := []string{"-e", `require("` + filepath.ToSlash(entry) + `").call(null, ["a",{}])`}
	if !reflect.DeepEqual(lines, want) {
		t.Fatalf("unexpected argv %q", lines)
	}
}

func TestRunMissingInterpreter(t *testing.T) {
	dir := t.TempDir()
	entry := filepath.Join(dir, "index.js")
	if err := os.WriteFile(entry, []byte(""), 0o644); err != nil {
		t.Fatalf("write entry: %v", err)
	}
	exec := newTestExecutor(&bytes.Buffer{}, Options{NodePath: filepath.Join(dir, "no-such-node")})
	code, err := exec.Run(context.Background(), entry, command.Request{})
	if !errors.Is(err, ErrSpawnFailed) || code != 1 {
		t.Fatalf("expected spawn failure with code 1, got %d %v", code, err)
	}
}

func TestRunCanceledContextDoesNotSpawn(t *testing.T) {
	entry := writeScript(t, t.TempDir(), "never", "touch \"$0.ran\"\n")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	code, err := newTestExecutor(&bytes.Buffer{}, Options{}).Run(ctx, entry, command.Request{})
	if !errors.Is(err, ErrSpawnFailed) || code != 1 {
		t.Fatalf("expected spawn failure, got %d %v", code, err)
	}
	if _, statErr := os.Stat(entry + ".ran"); !os.IsNotExist(statErr) {
		t.Fatalf("child must not run")
	}
}

func TestShellCommandLineEscapesCmdMeta(t *testing.T) {
	got := shellCommandLine([]string{"node", "-e", "a&b %PATH%"})
	want := `cmd /c node -e ^"a^&b ^%PATH^%^"`
	if got != want {
		t.Fatalf("unexpected command line:\n got %s\nwant %s", got, want)
	}

	payload := `require("C:/x/index.js").call(null, ["a&b|c>d<e",{"n":"^!"}])`
	line := strings.TrimPrefix(shellCommandLine([]string{`C:\Program Files\nodejs\node.exe`, "-e", payload}), "cmd /c ")
	for i := 0; i < len(line); i++ {
		if strings.IndexByte(cmdMeta, line[i]) < 0 || line[i] == '^' {
			continue
		}
		if i == 0 || line[i-1] != '^' {
			t.Fatalf("metacharacter %q at %d is not escaped: %s", line[i], i, line)
		}
	}
}

func TestQuoteArg(t *testing.T) {
	cases := map[string]string{
		"":            `""`,
		"node":        "node",
		"a b":         `"a b"`,
		`a\"b`:        `"a\\\"b"`,
		`c:\my dir\`:  `"c:\my dir\\"`,
		`say "hi"`:    `"say \"hi\""`,
	}
	for in, want := range cases {
		if got := quoteArg(in); got != want {
			t.Fatalf("quoteArg(%q) = %s, want %s", in, got, want)
		}
	}
}

func TestExitUsesSingleExitPoint(t *testing.T) {
	var got int
	prev := osExit
	osExit = func(code int) { got = code }
	t.Cleanup(func() { osExit = prev })

	Exit(42)
	if got != 42 {
		t.Fatalf("expected 42, got %d", got)
	}
}
