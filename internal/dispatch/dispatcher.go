// Package dispatch 把命令名转换为一次执行：内置命令在进程内运行，
// 其余命令经过版本解析、缓存安装、入口定位后交给 executor 启动子进程。
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/any-hub/any-cli/internal/builtin"
	"github.com/any-hub/any-cli/internal/cache"
	"github.com/any-hub/any-cli/internal/config"
	"github.com/any-hub/any-cli/internal/entry"
	"github.com/any-hub/any-cli/internal/logging"
	"github.com/any-hub/any-cli/internal/resolver"
	"github.com/any-hub/any-cli/pkg/command"
)

// ErrUnknownCommand 表示配置中没有该命令。
var ErrUnknownCommand = errors.New("unknown command")

// Runner 启动入口文件并返回退出码，由 executor.Executor 实现。
type Runner interface {
	Run(ctx context.Context, entryPath string, req command.Request) (int, error)
}

// Error 包装调度链路中的失败，可通过 errors.Is 匹配 command.ErrDispatchFailed。
type Error struct {
	Command string
	Stage   string
	Err     error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s (%s): %v", command.ErrDispatchFailed, e.Command, e.Stage, e.Err)
}

func (e *Error) Unwrap() []error {
	return []error{command.ErrDispatchFailed, e.Err}
}

// Options 汇总 Dispatcher 的协作者。
type Options struct {
	Store  cache.Store
	Runner Runner
	Logger *logrus.Logger
	// WorkDir 与 Stdout 传给内置命令。
	WorkDir string
	Stdout  io.Writer
}

// Dispatcher 按配置调度命令，每次 CLI 调用复用一个实例。
type Dispatcher struct {
	cfg     *config.Config
	store   cache.Store
	runner  Runner
	logger  *logrus.Logger
	workDir string
	stdout  io.Writer
}

// New 构建 Dispatcher。
func New(cfg *config.Config, opts Options) *Dispatcher {
	logger := opts.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	stdout := opts.Stdout
	if stdout == nil {
		stdout = os.Stdout
	}
	return &Dispatcher{
		cfg:     cfg,
		store:   opts.Store,
		runner:  opts.Runner,
		logger:  logger,
		workDir: opts.WorkDir,
		stdout:  stdout,
	}
}

// Dispatch 执行命令 name 并返回应作为进程退出码的值。
// 子进程的退出码原样返回；启动前的任何失败返回 1 与 *Error。
func (d *Dispatcher) Dispatch(ctx context.Context, name string, req command.Request) (int, error) {
	cmdCfg, ok := d.cfg.Command(name)
	if !ok {
		return 1, &Error{Command: name, Stage: "lookup", Err: ErrUnknownCommand}
	}
	if cmdCfg.Builtin() {
		return d.runBuiltin(ctx, cmdCfg, req)
	}
	return d.runPackage(ctx, cmdCfg, req)
}

func (d *Dispatcher) runBuiltin(ctx context.Context, cmdCfg config.CommandConfig, req command.Request) (int, error) {
	meta, ok := builtin.Resolve(cmdCfg.Name)
	if !ok {
		return 1, &Error{Command: cmdCfg.Name, Stage: "lookup", Err: fmt.Errorf("%w: %s has no package and no builtin implementation", ErrUnknownCommand, cmdCfg.Name)}
	}
	d.logger.WithFields(logrus.Fields{"action": "dispatch", "command": cmdCfg.Name, "builtin": true}).Debug("执行内置命令")

	base := command.Base{MinRuntime: d.cfg.Global.MinRuntime, Logger: d.logger}
	cmd := meta.New(builtin.Env{WorkDir: d.workDir, Stdout: d.stdout, Logger: d.logger})
	if err := base.RunRequest(ctx, cmd, req); err != nil {
		return 1, err
	}
	return 0, nil
}

func (d *Dispatcher) runPackage(ctx context.Context, cmdCfg config.CommandConfig, req command.Request) (int, error) {
	layout := d.cfg.Global.Layout()
	desc := &cache.Descriptor{
		Name:             cmdCfg.Package,
		RequestedVersion: cmdCfg.Version,
		TargetPath:       layout.TargetPath,
		StoreDir:         layout.StoreDir,
	}

	cached, err := d.prepare(ctx, desc)
	if err != nil {
		return 1, &Error{Command: cmdCfg.Name, Stage: "install", Err: err}
	}
	d.logger.WithFields(logging.PackageFields(cmdCfg.Name, desc.Name, desc.ResolvedVersion, cached)).
		WithField("mode", desc.Mode().String()).
		Debug("命令包已就绪")

	root := d.store.PackageRoot(desc)
	entryPath, err := entry.Resolve(root)
	if err != nil {
		return 1, &Error{Command: cmdCfg.Name, Stage: "entry", Err: err}
	}
	if entryPath == "" {
		d.logger.WithFields(logrus.Fields{"action": "dispatch", "command": cmdCfg.Name, "root": root}).
			Warn("命令包未声明入口文件，跳过执行")
		return 0, nil
	}

	code, err := d.runner.Run(ctx, entryPath, req)
	if err != nil {
		return code, &Error{Command: cmdCfg.Name, Stage: "spawn", Err: err}
	}
	return code, nil
}

// prepare 确保命令包可用，返回是否命中已有缓存。
// 直连模式只检查 TargetPath；缓存命中且请求 latest 时更新到最新版本，
// 固定版本与范围已在 Exists 中解析完毕。
func (d *Dispatcher) prepare(ctx context.Context, desc *cache.Descriptor) (bool, error) {
	exists, err := d.store.Exists(ctx, desc)
	if err != nil {
		return false, err
	}
	if desc.Mode() == cache.ModeDirect {
		return exists, nil
	}
	if !exists {
		_, err := d.store.Install(ctx, desc)
		return false, err
	}
	if !tracksLatest(desc.RequestedVersion) {
		return true, nil
	}
	_, err = d.store.Update(ctx, desc)
	return true, err
}

func tracksLatest(requested string) bool {
	requested = strings.TrimSpace(requested)
	return requested == "" || requested == resolver.Latest
}
