package config

import (
	"path/filepath"
	"strings"
)

// Overrides 承载命令行标志对配置的覆盖，空值表示不覆盖。
type Overrides struct {
	Debug       bool
	TargetPath  string
	RegistryURL string
	StoreDir    string
}

// Apply 将命令行覆盖写回配置；路径统一转为绝对路径。
func (c *Config) Apply(o Overrides) error {
	if o.Debug {
		c.Global.LogLevel = "debug"
	}
	if o.TargetPath != "" {
		abs, err := filepath.Abs(o.TargetPath)
		if err != nil {
			return newFieldError("TargetPath", err.Error())
		}
		c.Global.TargetPath = abs
	}
	if o.StoreDir != "" {
		abs, err := filepath.Abs(o.StoreDir)
		if err != nil {
			return newFieldError("StoreDir", err.Error())
		}
		c.Global.StoreDir = abs
	}
	if o.RegistryURL != "" {
		c.Global.RegistryURL = strings.TrimRight(strings.TrimSpace(o.RegistryURL), "/")
	}
	return c.Validate()
}

// DependencyLayout 描述命令包在磁盘上的位置。
type DependencyLayout struct {
	// TargetPath 为命令包可被引用的工作目录。
	TargetPath string
	// StoreDir 为缓存根目录；为空表示直接使用 TargetPath 中的本地包。
	StoreDir string
}

// Direct 表示未启用缓存，命令包直接来自 TargetPath。
func (l DependencyLayout) Direct() bool {
	return l.StoreDir == ""
}

// Layout 计算本次调度使用的目录：
// 指定 TargetPath 时直接使用本地包；否则落在 <Home>/dependencies，缓存位于其 node_modules 下，
// StoreDir 可单独覆盖缓存根目录。
func (g GlobalConfig) Layout() DependencyLayout {
	if g.TargetPath != "" {
		return DependencyLayout{TargetPath: g.TargetPath}
	}
	target := filepath.Join(g.Home, "dependencies")
	store := g.StoreDir
	if store == "" {
		store = filepath.Join(target, "node_modules")
	}
	return DependencyLayout{TargetPath: target, StoreDir: store}
}

// CacheRoot 返回缓存根目录，不受 TargetPath 影响，供 cache/serve 子命令使用。
func (g GlobalConfig) CacheRoot() string {
	if g.StoreDir != "" {
		return g.StoreDir
	}
	return filepath.Join(g.Home, "dependencies", "node_modules")
}
