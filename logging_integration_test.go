package main

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
)

func TestLoggingFallbackToConsole(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("root 可以写入只读目录")
	}
	isolateHome(t)
	dir := t.TempDir()
	blocked := filepath.Join(dir, "blocked")
	if err := os.Mkdir(blocked, 0o755); err != nil {
		t.Fatalf("创建目录失败: %v", err)
	}
	if err := os.Chmod(blocked, 0o000); err != nil {
		t.Fatalf("设置目录权限失败: %v", err)
	}
	t.Cleanup(func() { _ = os.Chmod(blocked, 0o755) })

	logPath := filepath.Join(blocked, "sub", "any-cli.log")
	configPath := writeConfigFile(t, fmt.Sprintf(`
LogLevel = "info"
LogFilePath = "%s"
StoreDir = "%s"
`, filepath.ToSlash(logPath), filepath.ToSlash(filepath.Join(dir, "store"))))

	_, errOut := useBufferWriters(t)
	code := run([]string{"--config", configPath, "cache", "ls"})
	if code != 0 {
		t.Fatalf("日志 fallback 不应导致失败，得到 %d: %s", code, errOut.String())
	}
}
