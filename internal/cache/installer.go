package cache

import (
	"bytes"
	"context"
	"crypto/sha1"
	"crypto/sha512"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/any-hub/any-cli/internal/registry"
)

// ErrIntegrity 表示下载内容与 registry 公布的摘要不一致。
var ErrIntegrity = errors.New("integrity mismatch")

// PackageSource 提供版本元数据与 tarball 下载，由 registry.Client 实现。
type PackageSource interface {
	Manifest(ctx context.Context, name, version string) (*registry.Manifest, error)
	Download(ctx context.Context, name, tarballURL string) (io.ReadCloser, error)
}

// TarballInstaller 直接下载 dist.tarball 并解压，不依赖本机 npm。
type TarballInstaller struct {
	Source PackageSource
}

// Install 下载并校验 tarball，然后解压到 req.Dir。
func (t *TarballInstaller) Install(ctx context.Context, req InstallRequest) error {
	manifest, err := t.Source.Manifest(ctx, req.Name, req.Version)
	if err != nil {
		return err
	}
	if manifest.Dist.Tarball == "" {
		return fmt.Errorf("%s@%s has no dist.tarball", req.Name, req.Version)
	}

	body, err := t.Source.Download(ctx, req.Name, manifest.Dist.Tarball)
	if err != nil {
		return err
	}
	defer body.Close()

	sha512sum := sha512.New()
	sha1sum := sha1.New()
	tee := io.TeeReader(body, io.MultiWriter(sha512sum, sha1sum))
	if err := Extract(tee, req.Dir); err != nil {
		return err
	}
	// gzip 尾部可能还有未读字节，摘要需覆盖完整响应体。
	if _, err := io.Copy(io.Discard, tee); err != nil {
		return err
	}
	return verifyDist(manifest.Dist, sha512sum, sha1sum)
}

// verifyDist 在 registry 提供 integrity 或 shasum 时校验摘要，均未提供时跳过。
func verifyDist(dist registry.Dist, sha512sum, sha1sum hash.Hash) error {
	if dist.Integrity != "" {
		for _, item := range strings.Fields(dist.Integrity) {
			algo, digest, ok := strings.Cut(item, "-")
			if !ok {
				continue
			}
			var sum []byte
			switch algo {
			case "sha512":
				sum = sha512sum.Sum(nil)
			case "sha1":
				sum = sha1sum.Sum(nil)
			default:
				continue
			}
			want, err := base64.StdEncoding.DecodeString(digest)
			if err != nil {
				return fmt.Errorf("%w: malformed integrity %q", ErrIntegrity, item)
			}
			if !bytes.Equal(sum, want) {
				return fmt.Errorf("%w: %s", ErrIntegrity, algo)
			}
			return nil
		}
	}
	if dist.Shasum != "" {
		if hex.EncodeToString(sha1sum.Sum(nil)) != strings.ToLower(dist.Shasum) {
			return fmt.Errorf("%w: shasum", ErrIntegrity)
		}
	}
	return nil
}

// NPMInstaller 调用本机 npm 安装，适合需要 install 脚本或私有鉴权配置的场景。
type NPMInstaller struct {
	NPMPath  string
	Registry string
	Stdout   io.Writer
	Stderr   io.Writer
}

// Install 执行 npm install --prefix <tmp> name@version，再把包目录移到 req.Dir，
// 依赖放入 req.Dir/node_modules。
func (n *NPMInstaller) Install(ctx context.Context, req InstallRequest) error {
	prefix, err := os.MkdirTemp(filepath.Dir(req.Dir), ".npm-*")
	if err != nil {
		return err
	}
	defer os.RemoveAll(prefix)

	bin := n.NPMPath
	if bin == "" {
		bin = "npm"
	}
	args := []string{"install", "--prefix", prefix, "--no-save", "--no-package-lock", "--no-audit", "--no-fund"}
	if n.Registry != "" {
		args = append(args, "--registry", n.Registry)
	}
	spec := req.Name + "@" + req.Version
	args = append(args, spec)

	cmd := exec.CommandContext(ctx, bin, args...)
	cmd.Stdout = n.Stdout
	cmd.Stderr = n.Stderr
	if cmd.Stderr == nil {
		cmd.Stderr = os.Stderr
	}
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("npm install %s: %w", spec, err)
	}

	modules := filepath.Join(prefix, "node_modules")
	pkgDir := filepath.Join(modules, filepath.FromSlash(req.Name))
	if _, err := os.Stat(filepath.Join(pkgDir, "package.json")); err != nil {
		return fmt.Errorf("npm install %s: package not found in %s", spec, modules)
	}

	if err := os.Remove(req.Dir); err != nil {
		return err
	}
	if err := os.Rename(pkgDir, req.Dir); err != nil {
		return err
	}
	return moveDependencies(modules, filepath.Join(req.Dir, "node_modules"))
}

// moveDependencies 把 npm 平铺的依赖移到包自身的 node_modules 下。
func moveDependencies(from, to string) error {
	items, err := os.ReadDir(from)
	if err != nil {
		return err
	}
	for _, item := range items {
		src := filepath.Join(from, item.Name())
		if strings.HasPrefix(item.Name(), "@") && item.IsDir() {
			scoped, err := os.ReadDir(src)
			if err != nil {
				return err
			}
			if len(scoped) == 0 {
				continue
			}
			if err := moveDependencies(src, filepath.Join(to, item.Name())); err != nil {
				return err
			}
			continue
		}
		if err := os.MkdirAll(to, 0o755); err != nil {
			return err
		}
		dst := filepath.Join(to, item.Name())
		if _, err := os.Lstat(dst); err == nil {
			continue
		}
		if err := os.Rename(src, dst); err != nil {
			return err
		}
	}
	return nil
}
