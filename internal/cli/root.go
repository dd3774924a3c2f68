// Package cli 构建 any-cli 的 cobra 命令树：配置中的每个 [[Command]] 对应一个子命令，
// 另有 cache、serve、version 等静态子命令。
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	_ "github.com/any-hub/any-cli/internal/builtin/initcmd"
	"github.com/any-hub/any-cli/internal/config"
	"github.com/any-hub/any-cli/internal/dispatch"
	"github.com/any-hub/any-cli/internal/logging"
)

// 全局标志名，与 config.ReservedFlags 保持一致。
const (
	flagDebug      = "debug"
	flagTargetPath = "target-path"
	flagConfig     = "config"
	flagRegistry   = "registry"
	flagStoreDir   = "store-dir"
)

// App 保存一次 CLI 调用的状态。
type App struct {
	cfg        *config.Config
	configPath string
	stdio      dispatch.Stdio
	logger     *logrus.Logger
	exitCode   int
}

// Run 解析 args 并执行对应命令，返回进程退出码。
func Run(ctx context.Context, args []string, stdio dispatch.Stdio) int {
	if stdio.In == nil {
		stdio.In = os.Stdin
	}
	if stdio.Out == nil {
		stdio.Out = os.Stdout
	}
	if stdio.Err == nil {
		stdio.Err = os.Stderr
	}

	configPath := scanConfigPath(args)
	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(stdio.Err, "加载配置失败: %v\n", err)
		return 1
	}

	app := &App{cfg: cfg, configPath: configPath, stdio: stdio, logger: logging.Discard()}
	root := app.rootCommand()
	root.SetArgs(args)
	root.SetIn(stdio.In)
	root.SetOut(stdio.Out)
	root.SetErr(stdio.Err)

	if err := root.ExecuteContext(ctx); err != nil {
		var reported reportedError
		if !errors.As(err, &reported) {
			fmt.Fprintf(stdio.Err, "%v\n", err)
		}
		if app.exitCode != 0 {
			return app.exitCode
		}
		return 1
	}
	return app.exitCode
}

func (a *App) rootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "any-cli",
		Short:         "按需安装并执行命令包的脚手架工具",
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) > 0 {
				return a.unknownCommand(args[0])
			}
			return cmd.Help()
		},
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.prepare(cmd)
		},
	}
	root.CompletionOptions.DisableDefaultCmd = true

	flags := root.PersistentFlags()
	flags.BoolP(flagDebug, "d", false, "是否开启调试模式")
	flags.StringP(flagTargetPath, "t", "", "是否指定本地调试文件路径")
	flags.String(flagConfig, "", "配置文件路径（默认 <Home>/config.toml，可被 "+config.EnvConfig+" 覆盖）")
	flags.String(flagRegistry, "", "覆盖 registry 地址")
	flags.String(flagStoreDir, "", "覆盖缓存根目录")

	for _, cmdCfg := range a.cfg.Commands {
		root.AddCommand(a.configuredCommand(cmdCfg))
	}
	root.AddCommand(a.cacheCommand(), a.serveCommand(), a.versionCommand())
	return root
}

func (a *App) unknownCommand(name string) error {
	available := append(a.cfg.CommandNames(), "cache", "serve", "version")
	return fmt.Errorf("未知的命令 %q，可用命令: %s", name, strings.Join(available, ", "))
}

// prepare 应用全局标志、初始化日志、检查主目录并做一次新版本提示。
func (a *App) prepare(cmd *cobra.Command) error {
	flags := cmd.Flags()
	var o config.Overrides
	o.Debug, _ = flags.GetBool(flagDebug)
	o.TargetPath, _ = flags.GetString(flagTargetPath)
	o.RegistryURL, _ = flags.GetString(flagRegistry)
	o.StoreDir, _ = flags.GetString(flagStoreDir)
	if err := a.cfg.Apply(o); err != nil {
		return err
	}

	logger, err := logging.InitLogger(a.cfg.Global)
	if err != nil {
		return err
	}
	if a.cfg.Global.LogFilePath == "" {
		logger.SetOutput(a.stdio.Err)
	}
	a.logger = logger

	fields := logging.BaseFields("prepare", a.configPath)
	fields["home"] = a.cfg.Global.Home
	fields["target_path"] = a.cfg.Global.TargetPath
	a.logger.WithFields(fields).Debug("配置加载完成")

	if err := checkUserHome(); err != nil {
		return err
	}
	if err := os.MkdirAll(a.cfg.Global.Home, 0o755); err != nil {
		return fmt.Errorf("创建主目录失败: %w", err)
	}
	a.checkSelfUpdate(cmd.Context())
	return nil
}

// userHomeDir 可在测试中替换。
var userHomeDir = os.UserHomeDir

func checkUserHome() error {
	home, err := userHomeDir()
	if err != nil || strings.TrimSpace(home) == "" {
		return errors.New("当前登录用户主目录不存在")
	}
	if _, err := os.Stat(home); err != nil {
		return fmt.Errorf("当前登录用户主目录不存在: %w", err)
	}
	return nil
}

// scanConfigPath 在 cobra 解析之前取出 --config，命令树依赖配置内容。
func scanConfigPath(args []string) string {
	for i := 0; i < len(args); i++ {
		arg := args[i]
		if arg == "--" {
			break
		}
		if value, ok := strings.CutPrefix(arg, "--"+flagConfig+"="); ok {
			return value
		}
		if arg == "--"+flagConfig && i+1 < len(args) {
			return args[i+1]
		}
	}
	return os.Getenv(config.EnvConfig)
}

// writer 返回 cobra 输出，测试中为缓冲区。
func writer(cmd *cobra.Command) io.Writer {
	return cmd.OutOrStdout()
}
