// Package executor runs a resolved command entry in a child process with the
// host's standard streams and reports the child's exit status.
package executor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/any-hub/any-cli/pkg/command"
)

// ErrSpawnFailed 表示子进程无法启动（入口不存在、解释器缺失等）。
var ErrSpawnFailed = errors.New("spawn failed")

// SpawnError 携带入口路径与原因，可通过 errors.Is 匹配 ErrSpawnFailed。
type SpawnError struct {
	Entry string
	Err   error
}

func (e *SpawnError) Error() string {
	return fmt.Sprintf("%s: %s: %v", ErrSpawnFailed, e.Entry, e.Err)
}

func (e *SpawnError) Unwrap() []error {
	return []error{ErrSpawnFailed, e.Err}
}

// scriptExtensions 由 node 以 require(entry).call(null, request) 方式执行。
var scriptExtensions = map[string]struct{}{
	".js":  {},
	".cjs": {},
	".mjs": {},
}

// Options 控制子进程的启动方式。
type Options struct {
	// NodePath 为执行 JS 入口的解释器。
	NodePath string
	// MinRuntime 透传给 Go 命令包做运行时校验。
	MinRuntime string
	// Env 追加到继承的环境变量之后。
	Env    []string
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
	Logger *logrus.Logger
}

// Executor 是唯一负责等待子进程并决定退出码的组件。
type Executor struct {
	opts Options
	goos string
}

// New 创建执行器，未设置的标准流使用当前进程的标准流。
func New(opts Options) *Executor {
	if opts.NodePath == "" {
		opts.NodePath = "node"
	}
	if opts.Stdin == nil {
		opts.Stdin = os.Stdin
	}
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}
	return &Executor{opts: opts, goos: runtime.GOOS}
}

// Run 启动 entryPath 并等待结束，返回子进程退出码。
// 子进程无法启动时返回 (1, *SpawnError)，此时不会等待。
func (e *Executor) Run(ctx context.Context, entryPath string, req command.Request) (int, error) {
	if err := ctx.Err(); err != nil {
		return 1, &SpawnError{Entry: entryPath, Err: err}
	}
	native := filepath.FromSlash(entryPath)
	info, err := os.Stat(native)
	if err != nil {
		return 1, &SpawnError{Entry: entryPath, Err: err}
	}
	if info.IsDir() {
		return 1, &SpawnError{Entry: entryPath, Err: errors.New("entry is a directory")}
	}

	payload, err := req.Encode()
	if err != nil {
		return 1, &SpawnError{Entry: entryPath, Err: err}
	}

	argv, err := e.buildArgv(entryPath, payload)
	if err != nil {
		return 1, &SpawnError{Entry: entryPath, Err: err}
	}

	dispatchID := uuid.NewString()
	// 不绑定 ctx：子进程一旦启动就运行到结束，中断信号通过终端直接送达子进程。
	var cmd *exec.Cmd
	if e.goos == "windows" {
		cmd = exec.Command("cmd")
		useCommandLine(cmd, shellCommandLine(argv))
	} else {
		cmd = exec.Command(argv[0], argv[1:]...)
	}
	cmd.Dir, _ = os.Getwd()
	cmd.Stdin = e.opts.Stdin
	cmd.Stdout = e.opts.Stdout
	cmd.Stderr = e.opts.Stderr
	cmd.Env = append(os.Environ(),
		command.EnvRequest+"="+payload,
		command.EnvDispatchID+"="+dispatchID,
	)
	if e.opts.MinRuntime != "" {
		cmd.Env = append(cmd.Env, command.EnvMinRuntime+"="+e.opts.MinRuntime)
	}
	cmd.Env = append(cmd.Env, e.opts.Env...)

	fields := logrus.Fields{
		"action":      "spawn",
		"entry":       entryPath,
		"dispatch_id": dispatchID,
	}
	e.opts.Logger.WithFields(fields).WithField("argv", argv[0]).Debug("启动命令进程")

	if err := cmd.Start(); err != nil {
		return 1, &SpawnError{Entry: entryPath, Err: err}
	}

	// 等待期间吞掉中断，由子进程自行处理并决定退出码。
	interrupts := make(chan os.Signal, 1)
	signal.Notify(interrupts, os.Interrupt)
	defer signal.Stop(interrupts)

	err = cmd.Wait()
	code := 0
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			code = exitErr.ExitCode()
			if code < 0 {
				code = 1
			}
		} else {
			e.opts.Logger.WithFields(fields).WithError(err).Warn("等待命令进程失败")
			return 1, err
		}
	}
	fields["exit_code"] = code
	e.opts.Logger.WithFields(fields).Debug("命令进程结束")
	return code, nil
}

// buildArgv 生成一次性调用：脚本入口交给 node，其余入口直接执行。
func (e *Executor) buildArgv(entryPath, payload string) ([]string, error) {
	ext := strings.ToLower(filepath.Ext(entryPath))
	if _, ok := scriptExtensions[ext]; !ok {
		return []string{filepath.FromSlash(entryPath)}, nil
	}
	quoted, err := json.Marshal(entryPath)
	if err != nil {
		return nil, err
	}
	code := fmt.Sprintf("require(%s).call(null, %s)", quoted, payload)
	return []string{e.opts.NodePath, "-e", code}, nil
}
