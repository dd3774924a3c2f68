// Package entry locates the executable entry file of an installed command package.
package entry

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// ManifestName 为包清单文件名。
const ManifestName = "package.json"

// Manifest 只保留调度需要的 main 字段。
type Manifest struct {
	Name    string `json:"name"`
	Version string `json:"version"`
	Main    string `json:"main"`
}

// ManifestError 表示清单存在但无法解析。
type ManifestError struct {
	Path string
	Err  error
}

func (e *ManifestError) Error() string {
	return fmt.Sprintf("invalid manifest %s: %v", e.Path, e.Err)
}

func (e *ManifestError) Unwrap() error {
	return e.Err
}

// Resolve 从 root 向上查找最近的 package.json，返回其 main 指向文件的绝对路径（统一为正斜杠）。
// root 不存在、找不到清单或 main 为空时返回空字符串而不是错误。
func Resolve(root string) (string, error) {
	if root == "" {
		return "", nil
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return "", err
	}
	if _, err := os.Stat(abs); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", nil
		}
		return "", err
	}

	dir, ok := FindPackageDir(abs)
	if !ok {
		return "", nil
	}
	manifest, err := ReadManifest(dir)
	if err != nil {
		return "", err
	}
	main := strings.TrimSpace(manifest.Main)
	if main == "" {
		return "", nil
	}
	return FormatPath(filepath.Join(dir, filepath.FromSlash(main))), nil
}

// FindPackageDir 返回 start 及其祖先目录中第一个包含 package.json 的目录。
func FindPackageDir(start string) (string, bool) {
	dir := filepath.Clean(start)
	if info, err := os.Stat(dir); err == nil && !info.IsDir() {
		dir = filepath.Dir(dir)
	}
	for {
		if info, err := os.Stat(filepath.Join(dir, ManifestName)); err == nil && !info.IsDir() {
			return dir, true
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", false
		}
		dir = parent
	}
}

// ReadManifest 解析 dir/package.json。
func ReadManifest(dir string) (*Manifest, error) {
	path := filepath.Join(dir, ManifestName)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, &ManifestError{Path: path, Err: err}
	}
	return &m, nil
}

// FormatPath 把路径分隔符统一为正斜杠，Windows 与 POSIX 输出一致。
func FormatPath(p string) string {
	if p == "" {
		return ""
	}
	return strings.ReplaceAll(filepath.ToSlash(p), "\\", "/")
}
