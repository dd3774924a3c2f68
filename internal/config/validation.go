package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/Masterminds/semver/v3"
)

// ReservedCommands 为静态子命令名，配置中的命令不得占用。
var ReservedCommands = map[string]struct{}{
	"cache":      {},
	"serve":      {},
	"version":    {},
	"help":       {},
	"completion": {},
}

// ReservedFlags 为全局标志，既不能被命令重复声明，也不会转发给子进程。
var ReservedFlags = map[string]struct{}{
	"debug":       {},
	"target-path": {},
	"config":      {},
	"registry":    {},
	"store-dir":   {},
	"help":        {},
}

// IsReservedFlag 判断标志名是否为全局保留标志。
func IsReservedFlag(name string) bool {
	_, ok := ReservedFlags[name]
	return ok
}

var reservedShorthands = map[string]struct{}{
	"d": {},
	"t": {},
	"h": {},
}

var supportedFlagTypes = map[string]struct{}{
	FlagBool:   {},
	FlagString: {},
	FlagInt:    {},
	FlagFloat:  {},
}

// Validate 针对语义级别做进一步校验，防止非法配置进入调度流程。
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("配置为空")
	}

	g := c.Global
	if g.Home == "" {
		return newFieldError("Home", "不能为空")
	}
	if err := validateUpstream(g.RegistryURL); err != nil {
		return fmt.Errorf("RegistryURL: %w", err)
	}
	if g.RegistryTimeout.DurationValue() <= 0 {
		return newFieldError("RegistryTimeout", "必须大于 0")
	}
	switch g.Installer {
	case InstallerTarball, InstallerNPM:
	default:
		return newFieldError("Installer", "仅支持 tarball|npm")
	}
	if _, err := semver.NewVersion(g.MinRuntime); err != nil {
		return newFieldError("MinRuntime", fmt.Sprintf("不是合法的版本号: %s", g.MinRuntime))
	}
	if g.LogMaxSize < 0 || g.LogMaxBackups < 0 {
		return newFieldError("LogMaxSize/LogMaxBackups", "不能为负数")
	}

	if c.Serve.ListenPort <= 0 || c.Serve.ListenPort > 65535 {
		return newFieldError("Serve.ListenPort", "必须在 1-65535")
	}
	if c.Serve.Upstream != "" {
		if err := validateUpstream(c.Serve.Upstream); err != nil {
			return fmt.Errorf("Serve.Upstream: %w", err)
		}
	}

	seen := map[string]struct{}{}
	for i := range c.Commands {
		cmd := c.Commands[i]
		if cmd.Name == "" {
			return newFieldError("Command[].Name", "不能为空")
		}
		if strings.ContainsAny(cmd.Name, " /\\") {
			return newFieldError(commandField(cmd.Name, "Name"), "不允许包含空格或路径分隔符")
		}
		if _, ok := ReservedCommands[cmd.Name]; ok {
			return newFieldError(commandField(cmd.Name, "Name"), "与内置子命令冲突")
		}
		if _, exists := seen[cmd.Name]; exists {
			return newFieldError(commandField(cmd.Name, "Name"), "重复")
		}
		seen[cmd.Name] = struct{}{}

		if err := validateVersionSpec(cmd.Version); err != nil {
			return fmt.Errorf("%s: %w", commandField(cmd.Name, "Version"), err)
		}
		if err := validateFlags(cmd); err != nil {
			return err
		}
	}

	return nil
}

func validateFlags(cmd CommandConfig) error {
	names := map[string]struct{}{}
	shorts := map[string]struct{}{}
	for _, f := range cmd.Flags {
		field := commandField(cmd.Name, "Flag["+f.Name+"]")
		if f.Name == "" {
			return newFieldError(commandField(cmd.Name, "Flag[].Name"), "不能为空")
		}
		if _, ok := ReservedFlags[f.Name]; ok {
			return newFieldError(field, "与全局标志冲突")
		}
		if _, ok := names[f.Name]; ok {
			return newFieldError(field, "重复")
		}
		names[f.Name] = struct{}{}
		if _, ok := supportedFlagTypes[f.Type]; !ok {
			return newFieldError(field+".Type", "仅支持 bool|string|int|float")
		}
		if f.Shorthand != "" {
			if len(f.Shorthand) != 1 {
				return newFieldError(field+".Shorthand", "必须是单个字符")
			}
			if _, ok := reservedShorthands[f.Shorthand]; ok {
				return newFieldError(field+".Shorthand", "与全局标志冲突")
			}
			if _, ok := shorts[f.Shorthand]; ok {
				return newFieldError(field+".Shorthand", "重复")
			}
			shorts[f.Shorthand] = struct{}{}
		}
	}
	return nil
}

// validateVersionSpec 接受 latest、具体版本或 semver 范围。
func validateVersionSpec(raw string) error {
	raw = strings.TrimSpace(raw)
	if raw == "" || raw == "latest" {
		return nil
	}
	if _, err := semver.NewVersion(raw); err == nil {
		return nil
	}
	if _, err := semver.NewConstraint(raw); err != nil {
		return fmt.Errorf("无法解析版本: %s", raw)
	}
	return nil
}

func validateUpstream(raw string) error {
	if raw == "" {
		return errors.New("缺少地址")
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("仅支持 http/https: %s", raw)
	}
	if parsed.Host == "" {
		return fmt.Errorf("缺少 Host: %s", raw)
	}
	return nil
}
