package server

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/any-hub/any-cli/internal/cache"
	"github.com/any-hub/any-cli/internal/entry"
	"github.com/any-hub/any-cli/internal/resolver"
)

// manifestReaders 限制重建索引时并发读取 package.json 的数量。
const manifestReaders = 8

// IndexedVersion 为镜像中一个可下载的版本。
type IndexedVersion struct {
	Entry cache.Entry
	Main  string
}

// IndexedPackage 汇总同一包名的全部缓存条目。
type IndexedPackage struct {
	Name     string
	Latest   string
	Versions map[string]IndexedVersion
}

// VersionList 返回按 semver 升序排列的版本号。
func (p *IndexedPackage) VersionList() []string {
	out := make([]string, 0, len(p.Versions))
	for v := range p.Versions {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return resolver.Newer(out[j], out[i]) })
	return out
}

// Index 是缓存根目录的内存视图；Invalidate 后的首次读取触发重建，并发重建合并为一次。
type Index struct {
	root   string
	logger *logrus.Logger

	mu       sync.RWMutex
	packages map[string]*IndexedPackage
	builtGen uint64
	gen      atomic.Uint64
	builds   atomic.Int64

	sf singleflight.Group
}

// NewIndex 创建索引，首次读取时才扫描磁盘。
func NewIndex(root string, logger *logrus.Logger) *Index {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	idx := &Index{root: root, logger: logger}
	idx.gen.Store(1)
	return idx
}

// Root 返回被索引的缓存根目录。
func (i *Index) Root() string {
	return i.root
}

// Invalidate 标记索引过期。
func (i *Index) Invalidate() {
	i.gen.Add(1)
}

// Lookup 返回指定包名的索引。
func (i *Index) Lookup(ctx context.Context, name string) (*IndexedPackage, bool, error) {
	pkgs, err := i.Packages(ctx)
	if err != nil {
		return nil, false, err
	}
	pkg, ok := pkgs[name]
	return pkg, ok, nil
}

// Packages 返回当前索引快照，调用方不得修改。
func (i *Index) Packages(ctx context.Context) (map[string]*IndexedPackage, error) {
	want := i.gen.Load()
	i.mu.RLock()
	if i.builtGen == want {
		pkgs := i.packages
		i.mu.RUnlock()
		return pkgs, nil
	}
	i.mu.RUnlock()

	shared := context.WithoutCancel(ctx)
	ch := i.sf.DoChan("index", func() (interface{}, error) {
		return i.rebuild(shared)
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(map[string]*IndexedPackage), nil
	}
}

func (i *Index) rebuild(ctx context.Context) (map[string]*IndexedPackage, error) {
	gen := i.gen.Load()
	i.builds.Add(1)

	entries, err := cache.ListEntries(i.root)
	if err != nil {
		return nil, err
	}

	mains := make([]string, len(entries))
	ok := make([]bool, len(entries))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(manifestReaders)
	for n, e := range entries {
		n, e := n, e
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			manifest, err := entry.ReadManifest(e.Path)
			if err != nil {
				i.logger.WithFields(logrus.Fields{"action": "mirror_index", "key": e.Key}).
					WithError(err).Warn("跳过无法读取清单的缓存条目")
				return nil
			}
			mains[n] = manifest.Main
			ok[n] = true
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	pkgs := make(map[string]*IndexedPackage)
	for n, e := range entries {
		if !ok[n] {
			continue
		}
		pkg := pkgs[e.Name]
		if pkg == nil {
			pkg = &IndexedPackage{Name: e.Name, Versions: make(map[string]IndexedVersion)}
			pkgs[e.Name] = pkg
		}
		pkg.Versions[e.Version] = IndexedVersion{Entry: e, Main: mains[n]}
	}
	for _, pkg := range pkgs {
		pkg.Latest, _ = resolver.Max(pkg.VersionList())
	}

	i.mu.Lock()
	i.packages = pkgs
	i.builtGen = gen
	i.mu.Unlock()

	i.logger.WithFields(logrus.Fields{
		"action":   "mirror_index",
		"root":     i.root,
		"packages": len(pkgs),
		"entries":  len(entries),
	}).Debug("镜像索引已重建")
	return pkgs, nil
}
