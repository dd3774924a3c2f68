package cache

import (
	"context"
	"crypto/sha1"
	"crypto/sha512"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/any-hub/any-cli/internal/logging"
	"github.com/any-hub/any-cli/internal/registry"
)

// newTarballRegistry 启动一个只发布 demo-cmd@1.2.0 的 registry，integrity 由 mutate 决定。
func newTarballRegistry(t *testing.T, mutate func(tarball []byte) (integrity, shasum string)) *registry.Client {
	t.Helper()
	tarball := buildTarball(t, map[string]string{
		"package/package.json": `{"name":"demo-cmd","version":"1.2.0","main":"lib/index.js"}`,
		"package/lib/index.js": "module.exports = function () {}",
	})
	integrity, shasum := mutate(tarball)

	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	mux.HandleFunc("/demo-cmd", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{"name":"demo-cmd","versions":{"1.2.0":{"dist":{"tarball":"%s/demo-cmd/-/demo-cmd-1.2.0.tgz","integrity":"%s","shasum":"%s"}}}}`,
			srv.URL, integrity, shasum)
	})
	mux.HandleFunc("/demo-cmd/-/demo-cmd-1.2.0.tgz", func(w http.ResponseWriter, r *http.Request) {
		w.Write(tarball)
	})
	return registry.NewClient(srv.URL, registry.Options{Logger: logging.Discard()})
}

func TestTarballInstallerVerifiesIntegrity(t *testing.T) {
	client := newTarballRegistry(t, func(tarball []byte) (string, string) {
		sum := sha512.Sum512(tarball)
		return "sha512-" + base64.StdEncoding.EncodeToString(sum[:]), ""
	})

	dir := t.TempDir()
	installer := &TarballInstaller{Source: client}
	if err := installer.Install(context.Background(), InstallRequest{Name: "demo-cmd", Version: "1.2.0", Dir: dir}); err != nil {
		t.Fatalf("install error: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "lib", "index.js")); err != nil {
		t.Fatalf("entry file missing: %v", err)
	}
}

func TestTarballInstallerVerifiesShasum(t *testing.T) {
	client := newTarballRegistry(t, func(tarball []byte) (string, string) {
		sum := sha1.Sum(tarball)
		return "", hex.EncodeToString(sum[:])
	})
	installer := &TarballInstaller{Source: client}
	if err := installer.Install(context.Background(), InstallRequest{Name: "demo-cmd", Version: "1.2.0", Dir: t.TempDir()}); err != nil {
		t.Fatalf("install error: %v", err)
	}
}

func TestTarballInstallerRejectsMismatch(t *testing.T) {
	client := newTarballRegistry(t, func(tarball []byte) (string, string) {
		sum := sha512.Sum512([]byte("something else"))
		return "sha512-" + base64.StdEncoding.EncodeToString(sum[:]), ""
	})
	installer := &TarballInstaller{Source: client}
	err := installer.Install(context.Background(), InstallRequest{Name: "demo-cmd", Version: "1.2.0", Dir: t.TempDir()})
	if !errors.Is(err, ErrIntegrity) {
		t.Fatalf("expected ErrIntegrity, got %v", err)
	}
}

func TestTarballInstallerMissingVersion(t *testing.T) {
	client := newTarballRegistry(t, func([]byte) (string, string) { return "", "" })
	installer := &TarballInstaller{Source: client}
	err := installer.Install(context.Background(), InstallRequest{Name: "demo-cmd", Version: "9.9.9", Dir: t.TempDir()})
	if !errors.Is(err, registry.ErrPackageNotFound) {
		t.Fatalf("expected ErrPackageNotFound, got %v", err)
	}
}

// fakeNPM 写出一个模拟 npm 的脚本：按 npm 的平铺布局安装目标包和一个依赖。
func fakeNPM(t *testing.T, exitCode int) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell script fixture")
	}
	script := `#!/bin/sh
prefix=""
spec=""
while [ $# -gt 0 ]; do
  case "$1" in
    --prefix) prefix="$2"; shift 2 ;;
    --registry) shift 2 ;;
    --*) shift ;;
    install) shift ;;
    *) spec="$1"; shift ;;
  esac
done
if [ "` + fmt.Sprint(exitCode) + `" != "0" ]; then
  echo "npm ERR! 404" >&2
  exit ` + fmt.Sprint(exitCode) + `
fi
name="${spec%@*}"
version="${spec##*@}"
mkdir -p "$prefix/node_modules/$name/lib" "$prefix/node_modules/left-pad"
printf '{"name":"%s","version":"%s","main":"lib/index.js"}' "$name" "$version" > "$prefix/node_modules/$name/package.json"
echo "module.exports = require('left-pad')" > "$prefix/node_modules/$name/lib/index.js"
echo "module.exports = 1" > "$prefix/node_modules/left-pad/index.js"
`
	path := filepath.Join(t.TempDir(), "npm")
	if err := os.WriteFile(path, []byte(script), 0o755); err != nil {
		t.Fatalf("write fake npm: %v", err)
	}
	return path
}

func TestNPMInstallerLayout(t *testing.T) {
	npm := fakeNPM(t, 0)
	root := t.TempDir()
	stage, err := os.MkdirTemp(root, stagingPrefix+"*")
	if err != nil {
		t.Fatalf("mkdir stage: %v", err)
	}

	installer := &NPMInstaller{NPMPath: npm, Registry: "http://127.0.0.1:1"}
	for _, name := range []string{"demo-cmd", "@any-cli/init"} {
		dir := stage + "-" + strings.ReplaceAll(name, "/", "_")
		if err := os.Mkdir(dir, 0o755); err != nil {
			t.Fatalf("mkdir: %v", err)
		}
		if err := installer.Install(context.Background(), InstallRequest{Name: name, Version: "1.0.0", Dir: dir}); err != nil {
			t.Fatalf("install %s: %v", name, err)
		}
		if _, err := os.Stat(filepath.Join(dir, "package.json")); err != nil {
			t.Fatalf("%s: package.json should be at the entry root: %v", name, err)
		}
		if _, err := os.Stat(filepath.Join(dir, "node_modules", "left-pad", "index.js")); err != nil {
			t.Fatalf("%s: dependencies should move under node_modules: %v", name, err)
		}
	}

	leftovers, _ := filepath.Glob(filepath.Join(root, ".npm-*"))
	if len(leftovers) != 0 {
		t.Fatalf("npm prefix should be removed: %v", leftovers)
	}
}

func TestNPMInstallerFailure(t *testing.T) {
	npm := fakeNPM(t, 1)
	dir := filepath.Join(t.TempDir(), "stage")
	if err := os.Mkdir(dir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	installer := &NPMInstaller{NPMPath: npm, Stderr: &strings.Builder{}}
	if err := installer.Install(context.Background(), InstallRequest{Name: "demo-cmd", Version: "1.0.0", Dir: dir}); err == nil {
		t.Fatalf("npm failure should be reported")
	}
}
