package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Duration 提供更灵活的反序列化能力，同时兼容纯秒整数与 Go Duration 字符串。
type Duration time.Duration

// UnmarshalText 使 Viper 可以识别诸如 "30s"、"5m" 或纯数字秒值等配置写法。
func (d *Duration) UnmarshalText(text []byte) error {
	raw := strings.TrimSpace(string(text))
	if raw == "" {
		*d = Duration(0)
		return nil
	}

	if parsed, err := time.ParseDuration(raw); err == nil {
		*d = Duration(parsed)
		return nil
	}

	if intVal, err := parseInt(raw); err == nil {
		*d = Duration(time.Duration(intVal) * time.Second)
		return nil
	}

	return fmt.Errorf("invalid duration value: %s", raw)
}

// DurationValue 返回真实的 time.Duration，便于调用方计算。
func (d Duration) DurationValue() time.Duration {
	return time.Duration(d)
}

func parseInt(value string) (int64, error) {
	if strings.HasPrefix(value, "0x") || strings.HasPrefix(value, "0X") {
		return strconv.ParseInt(value, 0, 64)
	}
	return strconv.ParseInt(value, 10, 64)
}

// 安装器类型。
const (
	InstallerTarball = "tarball"
	InstallerNPM     = "npm"
)

// Flag 类型，决定 CLI 标志的解析方式以及转发给子进程时的 JSON 类型。
const (
	FlagBool   = "bool"
	FlagString = "string"
	FlagInt    = "int"
	FlagFloat  = "float"
)

// GlobalConfig 描述所有命令共享的运行参数。
type GlobalConfig struct {
	Home            string   `mapstructure:"Home"`
	TargetPath      string   `mapstructure:"TargetPath"`
	StoreDir        string   `mapstructure:"StoreDir"`
	RegistryURL     string   `mapstructure:"RegistryURL"`
	RegistryToken   string   `mapstructure:"RegistryToken"`
	RegistryTimeout Duration `mapstructure:"RegistryTimeout"`
	Installer       string   `mapstructure:"Installer"`
	NPMPath         string   `mapstructure:"NPMPath"`
	NodePath        string   `mapstructure:"NodePath"`
	MinRuntime      string   `mapstructure:"MinRuntime"`
	SelfPackage     string   `mapstructure:"SelfPackage"`
	LogLevel        string   `mapstructure:"LogLevel"`
	LogFilePath     string   `mapstructure:"LogFilePath"`
	LogMaxSize      int      `mapstructure:"LogMaxSize"`
	LogMaxBackups   int      `mapstructure:"LogMaxBackups"`
	LogCompress     bool     `mapstructure:"LogCompress"`
}

// ServeConfig 控制 `serve` 子命令的本地镜像服务。
type ServeConfig struct {
	ListenPort int    `mapstructure:"ListenPort"`
	Upstream   string `mapstructure:"Upstream"`
	Watch      bool   `mapstructure:"Watch"`
}

// FlagConfig 声明命令接受的单个选项。
type FlagConfig struct {
	Name      string      `mapstructure:"Name"`
	Shorthand string      `mapstructure:"Shorthand"`
	Type      string      `mapstructure:"Type"`
	Default   interface{} `mapstructure:"Default"`
	Usage     string      `mapstructure:"Usage"`
}

// CommandConfig 把命令名映射到命令包；Package 为空表示内置命令。
type CommandConfig struct {
	Name        string       `mapstructure:"Name"`
	Package     string       `mapstructure:"Package"`
	Version     string       `mapstructure:"Version"`
	Description string       `mapstructure:"Description"`
	Args        string       `mapstructure:"Args"`
	Flags       []FlagConfig `mapstructure:"Flag"`
}

// Builtin 表示该命令由二进制内置实现，不经过缓存与子进程。
func (c CommandConfig) Builtin() bool {
	return strings.TrimSpace(c.Package) == ""
}

// Config 是 TOML 文件映射的整体结构。
type Config struct {
	Global   GlobalConfig    `mapstructure:",squash"`
	Serve    ServeConfig     `mapstructure:"Serve"`
	Commands []CommandConfig `mapstructure:"Command"`
}

// Command 按名称查找命令配置。
func (c *Config) Command(name string) (CommandConfig, bool) {
	if c == nil {
		return CommandConfig{}, false
	}
	for _, cmd := range c.Commands {
		if cmd.Name == name {
			return cmd, true
		}
	}
	return CommandConfig{}, false
}

// CommandNames 返回全部命令名，保持配置顺序。
func (c *Config) CommandNames() []string {
	if c == nil || len(c.Commands) == 0 {
		return nil
	}
	names := make([]string, len(c.Commands))
	for i, cmd := range c.Commands {
		names[i] = cmd.Name
	}
	return names
}

// defaultCommands 在配置文件未声明任何命令时生效。
func defaultCommands() []CommandConfig {
	return []CommandConfig{
		{
			Name:        "init",
			Description: "初始化项目",
			Args:        "[projectName]",
			Flags: []FlagConfig{
				{Name: "force", Shorthand: "f", Type: FlagBool, Default: false, Usage: "是否强制初始化项目"},
				{Name: "type", Type: FlagString, Default: "project", Usage: "项目类型 project|component"},
			},
		},
	}
}
