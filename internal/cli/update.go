package cli

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/any-hub/any-cli/internal/registry"
	"github.com/any-hub/any-cli/internal/resolver"
	"github.com/any-hub/any-cli/internal/version"
)

const updateCheckTimeout = 5 * time.Second

// checkSelfUpdate 查询 SelfPackage 在当前主版本内是否有更新的发布，只提示不安装，失败时静默。
func (a *App) checkSelfUpdate(ctx context.Context) {
	pkg := a.cfg.Global.SelfPackage
	current := version.Version
	if pkg == "" || !resolver.IsExact(current) {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}
	timeout := a.cfg.Global.RegistryTimeout.DurationValue()
	if timeout <= 0 || timeout > updateCheckTimeout {
		timeout = updateCheckTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	client := registry.NewClient(a.cfg.Global.RegistryURL, registry.Options{
		Token:      a.cfg.Global.RegistryToken,
		HTTPClient: registry.NewHTTPClient(timeout),
		Logger:     a.logger,
	})
	latest, ok, err := resolver.New(client).ResolveSatisfying(ctx, pkg, current)
	fields := logrus.Fields{"action": "self_update", "package": pkg, "current": current}
	if err != nil {
		a.logger.WithFields(fields).WithError(err).Debug("检查新版本失败")
		return
	}
	if !ok || !resolver.Newer(latest, current) {
		return
	}
	fields["latest"] = latest
	a.logger.WithFields(fields).Warnf("请手动更新 %s，当前版本 %s，最新版本 %s", pkg, current, latest)
}
