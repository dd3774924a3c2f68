package cache

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Mode 区分缓存模式与直连模式，每个 Descriptor 只能处于其中一种。
type Mode int

const (
	// ModeCache 表示包位于 StoreDir 下按 Key 命名的目录。
	ModeCache Mode = iota
	// ModeDirect 表示包直接位于 TargetPath，不经过缓存。
	ModeDirect
)

func (m Mode) String() string {
	if m == ModeDirect {
		return "direct"
	}
	return "cache"
}

// Descriptor 描述一次调度要使用的命令包。
type Descriptor struct {
	// Name 为 registry 中的包名，可带 @scope/。
	Name string
	// RequestedVersion 可以是 latest、具体版本或 semver 范围。
	RequestedVersion string
	// ResolvedVersion 在解析后写入；Update 不会让它变小。
	ResolvedVersion string
	// TargetPath 为包需要可被引用的工作目录。
	TargetPath string
	// StoreDir 为缓存根目录，为空时进入直连模式。
	StoreDir string
}

// Mode 根据 StoreDir 是否存在判定模式。
func (d *Descriptor) Mode() Mode {
	if d.StoreDir == "" {
		return ModeDirect
	}
	return ModeCache
}

// Entry 表示一个已安装的缓存条目。
type Entry struct {
	Name    string    `json:"name"`
	Version string    `json:"version"`
	Key     string    `json:"key"`
	Path    string    `json:"path"`
	ModTime time.Time `json:"mod_time"`
}

// Store 负责缓存条目的存在性判断与安装/更新。
type Store interface {
	// Exists 在缓存模式下先解析版本（会写入 ResolvedVersion）再检查磁盘；直连模式只检查 TargetPath。
	Exists(ctx context.Context, d *Descriptor) (bool, error)

	// Install 解析版本并安装到缓存，失败时返回 InstallError，缓存根目录保留。
	Install(ctx context.Context, d *Descriptor) (*Entry, error)

	// Update 解析最新版本；对应条目缺失时安装，已存在时仅采用该版本，不访问 registry 下载或写盘。
	Update(ctx context.Context, d *Descriptor) (*Entry, error)

	// PackageRoot 返回包根目录：缓存模式为条目目录，直连模式为 TargetPath。
	PackageRoot(d *Descriptor) string
}

var (
	// ErrInstallFailed 表示安装器执行失败。
	ErrInstallFailed = errors.New("install failed")
	// ErrDirectMode 表示在直连模式下调用了需要缓存的操作。
	ErrDirectMode = errors.New("descriptor has no store directory")
	// ErrUnresolved 表示尚未解析出具体版本。
	ErrUnresolved = errors.New("descriptor version is not resolved")
)

// InstallError 包装安装器错误，可通过 errors.Is 匹配 ErrInstallFailed。
type InstallError struct {
	Package string
	Version string
	Err     error
}

func (e *InstallError) Error() string {
	return fmt.Sprintf("%s: %s@%s: %v", ErrInstallFailed, e.Package, e.Version, e.Err)
}

func (e *InstallError) Unwrap() []error {
	return []error{ErrInstallFailed, e.Err}
}
