package main

import (
	"context"
	"io"
	"os"

	"github.com/any-hub/any-cli/internal/cli"
	"github.com/any-hub/any-cli/internal/dispatch"
	"github.com/any-hub/any-cli/internal/executor"
)

var (
	stdIn  io.Reader = os.Stdin
	stdOut io.Writer = os.Stdout
	stdErr io.Writer = os.Stderr
)

func main() {
	executor.Exit(run(os.Args[1:]))
}

// run 执行一次 CLI 调用并返回退出码，方便测试；进程只在 main 中退出。
func run(args []string) int {
	return cli.Run(context.Background(), args, dispatch.Stdio{In: stdIn, Out: stdOut, Err: stdErr})
}
