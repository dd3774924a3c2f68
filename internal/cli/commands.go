package cli

import (
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/any-hub/any-cli/internal/config"
	"github.com/any-hub/any-cli/internal/dispatch"
	"github.com/any-hub/any-cli/pkg/command"
)

// configuredCommand 把一条 [[Command]] 配置转换为 cobra 子命令。
func (a *App) configuredCommand(cmdCfg config.CommandConfig) *cobra.Command {
	use := cmdCfg.Name
	if args := strings.TrimSpace(cmdCfg.Args); args != "" {
		use += " " + args
	}
	cmd := &cobra.Command{
		Use:   use,
		Short: cmdCfg.Description,
		Args:  cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runConfigured(cmd, cmdCfg, args)
		},
	}
	for _, flag := range cmdCfg.Flags {
		addFlag(cmd.Flags(), flag)
	}
	return cmd
}

func (a *App) runConfigured(cmd *cobra.Command, cmdCfg config.CommandConfig, args []string) error {
	req := command.Request{
		Args:    append([]string{}, args...),
		Options: collectOptions(cmd.Flags(), cmdCfg.Flags),
	}

	d, _, err := dispatch.Build(a.cfg, a.logger, a.stdio)
	if err != nil {
		return err
	}
	code, err := d.Dispatch(cmd.Context(), cmdCfg.Name, req)
	a.exitCode = code
	if err != nil {
		a.logger.WithFields(logrus.Fields{
			"action":  "dispatch",
			"command": cmdCfg.Name,
			"package": cmdCfg.Package,
		}).WithError(err).Error("命令执行失败")
		return reportedError{err}
	}
	return nil
}

// reportedError 表示错误已写入日志，Run 不再重复输出。
type reportedError struct{ error }

func (e reportedError) Unwrap() error { return e.error }

// addFlag 按声明类型注册标志，默认值类型不符时退化为零值。
func addFlag(fs *pflag.FlagSet, f config.FlagConfig) {
	switch f.Type {
	case config.FlagBool:
		v, _ := f.Default.(bool)
		fs.BoolP(f.Name, f.Shorthand, v, f.Usage)
	case config.FlagInt:
		fs.Int64P(f.Name, f.Shorthand, toInt64(f.Default), f.Usage)
	case config.FlagFloat:
		fs.Float64P(f.Name, f.Shorthand, toFloat64(f.Default), f.Usage)
	default:
		v := ""
		if f.Default != nil {
			v = fmt.Sprint(f.Default)
		}
		fs.StringP(f.Name, f.Shorthand, v, f.Usage)
	}
}

// collectOptions 汇总命令声明的标志值；全局标志不会出现在请求中。
func collectOptions(fs *pflag.FlagSet, declared []config.FlagConfig) map[string]interface{} {
	opts := make(map[string]interface{}, len(declared))
	for _, f := range declared {
		if config.IsReservedFlag(f.Name) {
			continue
		}
		var (
			v   interface{}
			err error
		)
		switch f.Type {
		case config.FlagBool:
			v, err = fs.GetBool(f.Name)
		case config.FlagInt:
			v, err = fs.GetInt64(f.Name)
		case config.FlagFloat:
			v, err = fs.GetFloat64(f.Name)
		default:
			var s string
			s, err = fs.GetString(f.Name)
			if err == nil && s == "" && !fs.Changed(f.Name) {
				continue
			}
			v = s
		}
		if err != nil {
			continue
		}
		opts[f.Name] = v
	}
	return opts
}

func toInt64(v interface{}) int64 {
	switch n := v.(type) {
	case int:
		return int64(n)
	case int64:
		return n
	case float64:
		return int64(n)
	}
	return 0
}

func toFloat64(v interface{}) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case int:
		return float64(n)
	case int64:
		return float64(n)
	}
	return 0
}
