package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

const (
	// EnvHomePath 覆盖 CLI 主目录，相对路径基于用户主目录解析。
	EnvHomePath = "CLI_HOME_PATH"
	// EnvTargetPath 指向本地命令包目录，设置后跳过缓存直接执行。
	EnvTargetPath = "CLI_TARGET_PATH"
	// EnvPrefix 为其余配置项的环境变量前缀，例如 ANY_CLI_REGISTRYURL。
	EnvPrefix = "ANY_CLI"
	// EnvConfig 指定配置文件路径。
	EnvConfig = "ANY_CLI_CONFIG"

	defaultHomeDir    = ".any-cli"
	defaultConfigName = "config.toml"
)

// userHomeDir 可在测试中替换。
var userHomeDir = os.UserHomeDir

// Load 读取配置：显式路径必须存在；为空时尝试 <Home>/config.toml，缺失则只使用默认值与环境变量。
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("toml")
	setDefaults(v)
	if err := bindEnv(v); err != nil {
		return nil, err
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("读取配置失败: %w", err)
		}
	} else {
		home, err := resolveHome(v.GetString("Home"))
		if err != nil {
			return nil, err
		}
		candidate := filepath.Join(home, defaultConfigName)
		if _, statErr := os.Stat(candidate); statErr == nil {
			v.SetConfigFile(candidate)
			if err := v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("读取配置失败: %w", err)
			}
		} else if !errors.Is(statErr, fs.ErrNotExist) {
			return nil, fmt.Errorf("读取配置失败: %w", statErr)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(durationDecodeHook())); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}

	if err := applyGlobalDefaults(&cfg.Global); err != nil {
		return nil, err
	}
	applyServeDefaults(&cfg.Serve)
	if len(cfg.Commands) == 0 {
		cfg.Commands = defaultCommands()
	}
	for i := range cfg.Commands {
		applyCommandDefaults(&cfg.Commands[i])
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("Home", defaultHomeDir)
	v.SetDefault("TargetPath", "")
	v.SetDefault("StoreDir", "")
	v.SetDefault("RegistryURL", "https://registry.npmjs.org")
	v.SetDefault("RegistryToken", "")
	v.SetDefault("RegistryTimeout", "30s")
	v.SetDefault("Installer", InstallerTarball)
	v.SetDefault("NPMPath", "npm")
	v.SetDefault("NodePath", "node")
	v.SetDefault("MinRuntime", "1.21.0")
	v.SetDefault("SelfPackage", "")
	v.SetDefault("LogLevel", "info")
	v.SetDefault("LogFilePath", "")
	v.SetDefault("LogMaxSize", 100)
	v.SetDefault("LogMaxBackups", 10)
	v.SetDefault("LogCompress", true)
	v.SetDefault("Serve.ListenPort", 4873)
	v.SetDefault("Serve.Upstream", "")
	v.SetDefault("Serve.Watch", true)
}

// bindEnv 注册环境变量映射；Home/TargetPath 沿用历史变量名。
func bindEnv(v *viper.Viper) error {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := v.BindEnv("Home", EnvHomePath, EnvPrefix+"_HOME"); err != nil {
		return fmt.Errorf("绑定环境变量失败: %w", err)
	}
	if err := v.BindEnv("TargetPath", EnvTargetPath, EnvPrefix+"_TARGETPATH"); err != nil {
		return fmt.Errorf("绑定环境变量失败: %w", err)
	}
	return nil
}

func applyGlobalDefaults(g *GlobalConfig) error {
	home, err := resolveHome(g.Home)
	if err != nil {
		return err
	}
	g.Home = home

	if g.TargetPath != "" {
		abs, err := filepath.Abs(g.TargetPath)
		if err != nil {
			return fmt.Errorf("无法解析 TargetPath: %w", err)
		}
		g.TargetPath = abs
	}
	if g.StoreDir != "" {
		abs, err := filepath.Abs(g.StoreDir)
		if err != nil {
			return fmt.Errorf("无法解析 StoreDir: %w", err)
		}
		g.StoreDir = abs
	}
	if g.RegistryTimeout.DurationValue() == 0 {
		g.RegistryTimeout = Duration(30 * time.Second)
	}
	g.RegistryURL = strings.TrimRight(strings.TrimSpace(g.RegistryURL), "/")
	g.Installer = strings.ToLower(strings.TrimSpace(g.Installer))
	if g.Installer == "" {
		g.Installer = InstallerTarball
	}
	if g.NPMPath == "" {
		g.NPMPath = "npm"
	}
	if g.NodePath == "" {
		g.NodePath = "node"
	}
	return nil
}

func applyServeDefaults(s *ServeConfig) {
	if s.ListenPort == 0 {
		s.ListenPort = 4873
	}
	s.Upstream = strings.TrimRight(strings.TrimSpace(s.Upstream), "/")
}

func applyCommandDefaults(c *CommandConfig) {
	c.Name = strings.TrimSpace(c.Name)
	c.Package = strings.TrimSpace(c.Package)
	if c.Version == "" {
		c.Version = "latest"
	}
	for i := range c.Flags {
		f := &c.Flags[i]
		f.Name = strings.TrimSpace(f.Name)
		f.Type = strings.ToLower(strings.TrimSpace(f.Type))
		if f.Type == "" {
			f.Type = FlagString
		}
	}
}

// resolveHome 将相对主目录挂到用户主目录下。
func resolveHome(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		raw = defaultHomeDir
	}
	if filepath.IsAbs(raw) {
		return filepath.Clean(raw), nil
	}
	userHome, err := userHomeDir()
	if err != nil || userHome == "" {
		return "", newFieldError("Home", "无法获取用户主目录")
	}
	return filepath.Join(userHome, raw), nil
}

func durationDecodeHook() mapstructure.DecodeHookFunc {
	targetType := reflect.TypeOf(Duration(0))

	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != targetType {
			return data, nil
		}

		switch v := data.(type) {
		case string:
			if v == "" {
				return Duration(0), nil
			}
			if parsed, err := time.ParseDuration(v); err == nil {
				return Duration(parsed), nil
			}
			if seconds, err := strconv.ParseFloat(v, 64); err == nil {
				return Duration(time.Duration(seconds * float64(time.Second))), nil
			}
			return nil, fmt.Errorf("无法解析 Duration 字段: %s", v)
		case int:
			return Duration(time.Duration(v) * time.Second), nil
		case int64:
			return Duration(time.Duration(v) * time.Second), nil
		case float64:
			return Duration(time.Duration(v * float64(time.Second))), nil
		case time.Duration:
			return Duration(v), nil
		case Duration:
			return v, nil
		default:
			return nil, fmt.Errorf("不支持的 Duration 类型: %T", v)
		}
	}
}
