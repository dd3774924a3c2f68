// Package resolver turns requested version specifiers into concrete versions
// published on the registry. Ordering and range matching follow npm semver
// rules via Masterminds/semver; nothing here touches the disk.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Masterminds/semver/v3"
)

// Latest 为“最新版本”的请求标记。
const Latest = "latest"

// ErrNoVersionsAvailable 表示 registry 没有任何可用（或满足范围）的版本。
var ErrNoVersionsAvailable = errors.New("no versions available")

// NoVersionError 携带包名与约束，可通过 errors.Is 匹配 ErrNoVersionsAvailable。
type NoVersionError struct {
	Package    string
	Constraint string
}

func (e *NoVersionError) Error() string {
	if e.Constraint == "" {
		return fmt.Sprintf("%s: %s", ErrNoVersionsAvailable, e.Package)
	}
	return fmt.Sprintf("%s: %s@%s", ErrNoVersionsAvailable, e.Package, e.Constraint)
}

func (e *NoVersionError) Unwrap() error {
	return ErrNoVersionsAvailable
}

// VersionLister 返回包的全部已发布版本，由 registry.Client 实现。
type VersionLister interface {
	ListVersions(ctx context.Context, name string) ([]string, error)
}

// Resolver 在同一版本集合上的结果是确定的。
type Resolver struct {
	versions VersionLister
}

// New 创建解析器。
func New(versions VersionLister) *Resolver {
	return &Resolver{versions: versions}
}

// ResolveLatest 返回语义版本最大的已发布版本。
func (r *Resolver) ResolveLatest(ctx context.Context, name string) (string, error) {
	all, err := r.versions.ListVersions(ctx, name)
	if err != nil {
		return "", err
	}
	v, ok := Max(all)
	if !ok {
		return "", &NoVersionError{Package: name}
	}
	return v, nil
}

// ResolveSatisfying 返回与 ^base 兼容的最高版本；没有匹配时 ok 为 false，不视为错误。
func (r *Resolver) ResolveSatisfying(ctx context.Context, name, base string) (string, bool, error) {
	base = strings.TrimSpace(base)
	if _, err := semver.NewVersion(base); err != nil {
		return "", false, fmt.Errorf("invalid base version %q: %w", base, err)
	}
	return r.ResolveConstraint(ctx, name, "^"+base)
}

// ResolveConstraint 返回满足任意 semver 范围的最高版本。
func (r *Resolver) ResolveConstraint(ctx context.Context, name, expr string) (string, bool, error) {
	constraint, err := semver.NewConstraint(expr)
	if err != nil {
		return "", false, fmt.Errorf("invalid version range %q: %w", expr, err)
	}
	all, err := r.versions.ListVersions(ctx, name)
	if err != nil {
		return "", false, err
	}
	v, ok := MaxSatisfying(all, constraint)
	return v, ok, nil
}

// Resolve 按请求类型分派：latest 查询最新版；具体版本原样返回且不访问网络；其余视为范围。
func (r *Resolver) Resolve(ctx context.Context, name, requested string) (string, error) {
	requested = strings.TrimSpace(requested)
	if requested == "" || requested == Latest {
		return r.ResolveLatest(ctx, name)
	}
	if IsExact(requested) {
		return requested, nil
	}
	v, ok, err := r.ResolveConstraint(ctx, name, requested)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", &NoVersionError{Package: name, Constraint: requested}
	}
	return v, nil
}

// IsExact 判断是否为完整的具体版本号（不含范围运算符）。
func IsExact(v string) bool {
	_, err := semver.StrictNewVersion(strings.TrimSpace(v))
	return err == nil
}

// Max 返回集合中语义版本最大的条目，忽略无法解析的版本。
func Max(versions []string) (string, bool) {
	var (
		best    *semver.Version
		bestRaw string
	)
	for _, raw := range versions {
		v, err := semver.NewVersion(raw)
		if err != nil {
			continue
		}
		if best == nil || v.GreaterThan(best) {
			best, bestRaw = v, raw
		}
	}
	return bestRaw, best != nil
}

// MaxSatisfying 返回满足约束的最高版本。
func MaxSatisfying(versions []string, c *semver.Constraints) (string, bool) {
	var (
		best    *semver.Version
		bestRaw string
	)
	for _, raw := range versions {
		v, err := semver.NewVersion(raw)
		if err != nil || !c.Check(v) {
			continue
		}
		if best == nil || v.GreaterThan(best) {
			best, bestRaw = v, raw
		}
	}
	return bestRaw, best != nil
}

// Newer 判断 candidate 是否严格高于 current；任一无法解析时返回 false。
func Newer(candidate, current string) bool {
	c, err := semver.NewVersion(candidate)
	if err != nil {
		return false
	}
	cur, err := semver.NewVersion(current)
	if err != nil {
		return false
	}
	return c.GreaterThan(cur)
}
