package dispatch

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"

	"github.com/any-hub/any-cli/internal/cache"
	"github.com/any-hub/any-cli/internal/config"
	"github.com/any-hub/any-cli/internal/executor"
	"github.com/any-hub/any-cli/internal/registry"
	"github.com/any-hub/any-cli/internal/resolver"
	"github.com/any-hub/any-cli/pkg/command"
)

// Stdio 为子进程与内置命令使用的标准流。
type Stdio struct {
	In  io.Reader
	Out io.Writer
	Err io.Writer
}

// Components 为按配置装配出的协作者，供 CLI 的其他子命令复用。
type Components struct {
	Registry *registry.Client
	Resolver *resolver.Resolver
	Store    *cache.FileStore
	Executor *executor.Executor
}

// Build 依据配置装配 registry → resolver → store → executor，并返回 Dispatcher。
func Build(cfg *config.Config, logger *logrus.Logger, stdio Stdio) (*Dispatcher, *Components, error) {
	g := cfg.Global
	client := registry.NewClient(g.RegistryURL, registry.Options{
		Token:      g.RegistryToken,
		HTTPClient: registry.NewHTTPClient(g.RegistryTimeout.DurationValue()),
		Logger:     logger,
	})
	versions := resolver.New(client)

	var installer cache.Installer
	switch g.Installer {
	case config.InstallerNPM:
		installer = &cache.NPMInstaller{
			NPMPath:  g.NPMPath,
			Registry: client.BaseURL(),
			Stdout:   stdio.Err,
			Stderr:   stdio.Err,
		}
	default:
		installer = &cache.TarballInstaller{Source: client}
	}

	store := cache.NewStore(versions, installer, cache.Options{Logger: logger})
	env := []string{command.EnvHomePath + "=" + g.Home}
	if g.TargetPath != "" {
		env = append(env, command.EnvTargetPath+"="+g.TargetPath)
	}
	exec := executor.New(executor.Options{
		NodePath:   g.NodePath,
		MinRuntime: g.MinRuntime,
		Env:        env,
		Stdin:      stdio.In,
		Stdout:     stdio.Out,
		Stderr:     stdio.Err,
		Logger:     logger,
	})

	wd, err := os.Getwd()
	if err != nil {
		return nil, nil, err
	}
	d := New(cfg, Options{
		Store:   store,
		Runner:  exec,
		Logger:  logger,
		WorkDir: wd,
		Stdout:  stdio.Out,
	})
	return d, &Components{Registry: client, Resolver: versions, Store: store, Executor: exec}, nil
}
