package command

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
)

// 宿主进程传给子进程的环境变量。
const (
	// EnvRequest 携带线上格式的请求数组。
	EnvRequest = "ANY_CLI_REQUEST"
	// EnvDispatchID 为本次调度的唯一标识。
	EnvDispatchID = "ANY_CLI_DISPATCH_ID"
	// EnvMinRuntime 为宿主配置的最低运行时版本。
	EnvMinRuntime = "ANY_CLI_MIN_RUNTIME"
	// EnvTargetPath 与 EnvHomePath 透传宿主的目录设置。
	EnvTargetPath = "CLI_TARGET_PATH"
	EnvHomePath   = "CLI_HOME_PATH"
)

var (
	stdErr  io.Writer = os.Stderr
	getenv            = os.Getenv
	cmdArgs           = func() []string { return os.Args[1:] }
)

// Main 是 Go 命令包的入口：从 ANY_CLI_REQUEST（或第一个参数）读取请求，跑完生命周期并返回退出码。
func Main(cmd Command) int {
	raw := getenv(EnvRequest)
	if raw == "" {
		if args := cmdArgs(); len(args) > 0 {
			raw = args[0]
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	base := &Base{MinRuntime: getenv(EnvMinRuntime)}
	if err := base.Run(ctx, cmd, []byte(raw)); err != nil {
		fmt.Fprintln(stdErr, err.Error())
		var coded interface{ ExitCode() int }
		if errors.As(err, &coded) && coded.ExitCode() != 0 {
			return coded.ExitCode()
		}
		return 1
	}
	return 0
}

// ExitError 允许命令指定非 1 的退出码。
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("exit status %d", e.Code)
	}
	return e.Err.Error()
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// ExitCode 返回命令指定的退出码。
func (e *ExitError) ExitCode() int {
	return e.Code
}
