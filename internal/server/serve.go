package server

import (
	"context"
	"fmt"

	"github.com/gofiber/fiber/v3"
	"github.com/sirupsen/logrus"

	"github.com/any-hub/any-cli/internal/config"
)

// Options 描述 serve 子命令启动镜像所需的依赖。
type Options struct {
	Config *config.Config
	Logger *logrus.Logger
	// Register 在包路由之前挂载额外路由（诊断接口等）。
	Register func(app *fiber.App, index *Index)
}

// Build 依据配置创建镜像应用与索引，尚未监听端口。
func Build(ctx context.Context, opts Options) (*fiber.App, *Index, error) {
	cfg := opts.Config
	logger := opts.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	index := NewIndex(cfg.Global.CacheRoot(), logger)
	if cfg.Serve.Watch {
		if err := WatchIndex(ctx, index, logger); err != nil {
			logger.WithField("action", "mirror_watch").WithError(err).Warn("无法监听缓存目录，索引不会自动刷新")
		}
	}

	mirror, err := NewMirror(index, cfg.Serve.Upstream, NewUpstreamClient(cfg), logger)
	if err != nil {
		return nil, nil, err
	}
	appOpts := AppOptions{Logger: logger, Handler: mirror, ListenPort: cfg.Serve.ListenPort}
	app, err := NewApp(appOpts)
	if err != nil {
		return nil, nil, err
	}
	if opts.Register != nil {
		opts.Register(app, index)
	}
	RegisterPackageRoutes(app, appOpts)
	return app, index, nil
}

// Serve 启动镜像并阻塞，ctx 结束时优雅关闭。
func Serve(ctx context.Context, opts Options) error {
	app, _, err := Build(ctx, opts)
	if err != nil {
		return err
	}
	port := opts.Config.Serve.ListenPort
	logger := opts.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- app.Listen(fmt.Sprintf(":%d", port), fiber.ListenConfig{DisableStartupMessage: true})
	}()
	logger.WithFields(logrus.Fields{
		"action": "listen",
		"port":   port,
		"root":   opts.Config.Global.CacheRoot(),
	}).Info("镜像服务启动")

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		return app.ShutdownWithContext(context.Background())
	}
}
