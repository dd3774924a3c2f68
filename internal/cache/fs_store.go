package cache

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"

	"github.com/Masterminds/semver/v3"
	"github.com/sirupsen/logrus"

	"github.com/any-hub/any-cli/internal/resolver"
)

const stagingPrefix = ".staging-"

// VersionResolver 为缓存提供版本解析，由 resolver.Resolver 实现。
type VersionResolver interface {
	Resolve(ctx context.Context, name, requested string) (string, error)
	ResolveLatest(ctx context.Context, name string) (string, error)
}

// InstallRequest 描述一次安装：把 Name@Version 的包内容写入空目录 Dir。
type InstallRequest struct {
	Name    string
	Version string
	Dir     string
}

// Installer 将包内容写入指定目录，package.json 位于 Dir 根部，依赖位于 Dir/node_modules。
type Installer interface {
	Install(ctx context.Context, req InstallRequest) error
}

// Options 控制 FileStore 的可选行为。
type Options struct {
	Logger *logrus.Logger
	// SkipLink 关闭 <TargetPath>/node_modules/<name> 链接的创建。
	SkipLink bool
}

// FileStore 通过 entryLock 避免同一 Key 在进程内并发安装，跨进程依靠 staging + rename。
type FileStore struct {
	resolver  VersionResolver
	installer Installer
	logger    *logrus.Logger
	link      bool

	mu    sync.Mutex
	locks map[string]*entryLock
}

type entryLock struct {
	mu   sync.Mutex
	refs int
}

// NewStore 构建磁盘缓存，整个进程复用一份实例。
func NewStore(versions VersionResolver, installer Installer, opts Options) *FileStore {
	logger := opts.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &FileStore{
		resolver:  versions,
		installer: installer,
		logger:    logger,
		link:      !opts.SkipLink && runtime.GOOS != "windows",
		locks:     make(map[string]*entryLock),
	}
}

var _ Store = (*FileStore)(nil)

func (s *FileStore) Exists(ctx context.Context, d *Descriptor) (bool, error) {
	if d.Mode() == ModeDirect {
		return pathExists(d.TargetPath), nil
	}
	version, err := s.resolver.Resolve(ctx, d.Name, d.RequestedVersion)
	if err != nil {
		return false, err
	}
	d.ResolvedVersion = version
	return isDir(s.PackageRoot(d)), nil
}

func (s *FileStore) Install(ctx context.Context, d *Descriptor) (*Entry, error) {
	if d.Mode() == ModeDirect {
		return nil, ErrDirectMode
	}
	if err := os.MkdirAll(d.StoreDir, 0o755); err != nil {
		return nil, fmt.Errorf("create store dir: %w", err)
	}
	version, err := s.resolver.Resolve(ctx, d.Name, d.RequestedVersion)
	if err != nil {
		return nil, err
	}
	d.ResolvedVersion = version
	return s.ensure(ctx, d)
}

func (s *FileStore) Update(ctx context.Context, d *Descriptor) (*Entry, error) {
	if d.Mode() == ModeDirect {
		return nil, ErrDirectMode
	}
	latest, err := s.resolver.ResolveLatest(ctx, d.Name)
	if err != nil {
		return nil, err
	}
	if d.ResolvedVersion == "" || resolver.Newer(latest, d.ResolvedVersion) {
		d.ResolvedVersion = latest
	}

	entry, err := s.lookup(d)
	if err == nil {
		s.linkEntry(d, entry)
		return entry, nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}
	if err := os.MkdirAll(d.StoreDir, 0o755); err != nil {
		return nil, fmt.Errorf("create store dir: %w", err)
	}
	return s.ensure(ctx, d)
}

func (s *FileStore) PackageRoot(d *Descriptor) string {
	if d.Mode() == ModeDirect {
		return d.TargetPath
	}
	if d.ResolvedVersion == "" {
		return ""
	}
	return filepath.Join(d.StoreDir, Key(d.Name, d.ResolvedVersion))
}

// ensure 在持有 Key 锁的情况下安装；他人已发布同一条目时直接采用。
func (s *FileStore) ensure(ctx context.Context, d *Descriptor) (*Entry, error) {
	key := Key(d.Name, d.ResolvedVersion)
	unlock := s.lockEntry(key)
	defer unlock()

	if entry, err := s.lookup(d); err == nil {
		s.linkEntry(d, entry)
		return entry, nil
	}

	fields := logrus.Fields{
		"action":  "cache_install",
		"package": d.Name,
		"version": d.ResolvedVersion,
		"key":     key,
	}
	s.logger.WithFields(fields).Debug("开始安装命令包")

	stage, err := os.MkdirTemp(d.StoreDir, stagingPrefix+"*")
	if err != nil {
		return nil, &InstallError{Package: d.Name, Version: d.ResolvedVersion, Err: err}
	}

	if err := s.installer.Install(ctx, InstallRequest{Name: d.Name, Version: d.ResolvedVersion, Dir: stage}); err != nil {
		os.RemoveAll(stage)
		s.logger.WithFields(fields).WithError(err).Warn("命令包安装失败")
		return nil, &InstallError{Package: d.Name, Version: d.ResolvedVersion, Err: err}
	}

	target := filepath.Join(d.StoreDir, key)
	if err := os.Rename(stage, target); err != nil {
		os.RemoveAll(stage)
		// 其他进程抢先发布了同一条目。
		if !isDir(target) {
			return nil, &InstallError{Package: d.Name, Version: d.ResolvedVersion, Err: err}
		}
		fields["race"] = true
	}

	entry, err := s.lookup(d)
	if err != nil {
		return nil, &InstallError{Package: d.Name, Version: d.ResolvedVersion, Err: err}
	}
	s.logger.WithFields(fields).Info("命令包安装完成")
	s.linkEntry(d, entry)
	return entry, nil
}

func (s *FileStore) lookup(d *Descriptor) (*Entry, error) {
	if d.ResolvedVersion == "" {
		return nil, ErrUnresolved
	}
	key := Key(d.Name, d.ResolvedVersion)
	path := filepath.Join(d.StoreDir, key)
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("cache entry %s is not a directory: %w", key, fs.ErrNotExist)
	}
	return &Entry{
		Name:    d.Name,
		Version: d.ResolvedVersion,
		Key:     key,
		Path:    path,
		ModTime: info.ModTime(),
	}, nil
}

// linkEntry 让 <TargetPath>/node_modules/<name> 指向当前条目；失败只记录日志。
func (s *FileStore) linkEntry(d *Descriptor, entry *Entry) {
	if !s.link || d.TargetPath == "" {
		return
	}
	linkPath := filepath.Join(d.TargetPath, "node_modules", filepath.FromSlash(d.Name))
	if linkPath == entry.Path {
		return
	}
	if info, err := os.Lstat(linkPath); err == nil {
		if info.Mode()&os.ModeSymlink == 0 {
			return
		}
		if current, err := os.Readlink(linkPath); err == nil && current == entry.Path {
			return
		}
		if err := os.Remove(linkPath); err != nil {
			s.logger.WithError(err).WithField("path", linkPath).Debug("移除旧链接失败")
			return
		}
	}
	if err := os.MkdirAll(filepath.Dir(linkPath), 0o755); err != nil {
		s.logger.WithError(err).WithField("path", linkPath).Debug("创建链接目录失败")
		return
	}
	if err := os.Symlink(entry.Path, linkPath); err != nil {
		s.logger.WithError(err).WithField("path", linkPath).Debug("创建链接失败")
	}
}

func (s *FileStore) lockEntry(key string) func() {
	s.mu.Lock()
	lock := s.locks[key]
	if lock == nil {
		lock = &entryLock{}
		s.locks[key] = lock
	}
	lock.refs++
	s.mu.Unlock()

	lock.mu.Lock()
	return func() {
		lock.mu.Unlock()
		s.mu.Lock()
		lock.refs--
		if lock.refs == 0 {
			delete(s.locks, key)
		}
		s.mu.Unlock()
	}
}

// ListEntries 列出 root 下全部缓存条目，按包名、版本排序；staging 目录与无法解析的目录被忽略。
func ListEntries(root string) ([]Entry, error) {
	items, err := os.ReadDir(root)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}

	entries := make([]Entry, 0, len(items))
	for _, item := range items {
		if !item.IsDir() || strings.HasPrefix(item.Name(), ".") {
			continue
		}
		name, version, ok := ParseKey(item.Name())
		if !ok {
			continue
		}
		info, err := item.Info()
		if err != nil {
			continue
		}
		entries = append(entries, Entry{
			Name:    name,
			Version: version,
			Key:     item.Name(),
			Path:    filepath.Join(root, item.Name()),
			ModTime: info.ModTime(),
		})
	}

	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].Name != entries[j].Name {
			return entries[i].Name < entries[j].Name
		}
		return versionLess(entries[i].Version, entries[j].Version)
	})
	return entries, nil
}

func versionLess(a, b string) bool {
	va, errA := semver.NewVersion(a)
	vb, errB := semver.NewVersion(b)
	if errA != nil || errB != nil {
		return a < b
	}
	return va.LessThan(vb)
}

func pathExists(p string) bool {
	if p == "" {
		return false
	}
	_, err := os.Stat(p)
	return err == nil
}

func isDir(p string) bool {
	if p == "" {
		return false
	}
	info, err := os.Stat(p)
	return err == nil && info.IsDir()
}
