package server

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
)

// WatchIndex 监听缓存根目录，条目新增、删除或改名时使索引过期，ctx 结束后停止。
func WatchIndex(ctx context.Context, idx *Index, logger *logrus.Logger) error {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	if err := os.MkdirAll(idx.Root(), 0o755); err != nil {
		return err
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := w.Add(idx.Root()); err != nil {
		w.Close()
		return err
	}

	go func() {
		defer w.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if !affectsIndex(ev) {
					continue
				}
				idx.Invalidate()
				logger.WithFields(logrus.Fields{
					"action": "mirror_watch",
					"path":   ev.Name,
					"op":     ev.Op.String(),
				}).Debug("缓存目录变化，索引已失效")
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				logger.WithField("action", "mirror_watch").WithError(err).Warn("监听缓存目录失败")
			}
		}
	}()
	return nil
}

// affectsIndex 忽略 staging 等隐藏目录与纯写入事件。
func affectsIndex(ev fsnotify.Event) bool {
	if strings.HasPrefix(filepath.Base(ev.Name), ".") {
		return false
	}
	return ev.Op&(fsnotify.Create|fsnotify.Remove|fsnotify.Rename) != 0
}
