package main

import (
	"bytes"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
)

var repoRoot string

func init() {
	_, file, _, ok := runtime.Caller(0)
	if !ok {
		return
	}
	dir := filepath.Dir(file)
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			repoRoot = dir
			return
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return
		}
		dir = parent
	}
}

func projectRoot(t *testing.T) string {
	t.Helper()
	if repoRoot == "" {
		t.Fatal("无法定位项目根目录")
	}
	return repoRoot
}

func configFixture(t *testing.T, name string) string {
	t.Helper()
	return filepath.Join(projectRoot(t), "internal", "config", "testdata", name)
}

// useBufferWriters swaps stdOut/stdErr with in-memory buffers for the duration
// of a test, allowing assertions on CLI output without polluting test logs.
func useBufferWriters(t *testing.T) (*bytes.Buffer, *bytes.Buffer) {
	t.Helper()

	outBuf := &bytes.Buffer{}
	errBuf := &bytes.Buffer{}

	prevIn, prevOut, prevErr := stdIn, stdOut, stdErr
	stdIn = strings.NewReader("")
	stdOut = outBuf
	stdErr = errBuf

	t.Cleanup(func() {
		stdIn, stdOut, stdErr = prevIn, prevOut, prevErr
	})
	return outBuf, errBuf
}

// isolateHome 将 CLI 主目录指向临时目录，并清理会影响配置加载的环境变量。
func isolateHome(t *testing.T) string {
	t.Helper()
	home := filepath.Join(t.TempDir(), ".any-cli")
	t.Setenv("CLI_HOME_PATH", home)
	t.Setenv("CLI_TARGET_PATH", "")
	t.Setenv("ANY_CLI_CONFIG", "")
	t.Setenv("ANY_CLI_REGISTRYURL", "")
	return home
}

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	file := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(file, []byte(strings.TrimSpace(content)), 0o600); err != nil {
		t.Fatalf("写入配置失败: %v", err)
	}
	return file
}
