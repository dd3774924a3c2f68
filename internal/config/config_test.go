package config

import (
	"path/filepath"
	"testing"
	"time"
)

func TestValidateEnforcesListenPortRange(t *testing.T) {
	cfg := validConfig()
	cfg.Serve.ListenPort = 70000
	if err := cfg.Validate(); err == nil {
		t.Fatalf("ListenPort 超出范围应当报错")
	}
}

func TestValidateRegistryURL(t *testing.T) {
	cfg := validConfig()
	cfg.Global.RegistryURL = "ftp://registry.local"
	if err := cfg.Validate(); err == nil {
		t.Fatalf("非 http/https registry 应报错")
	}
}

func TestValidateVersionSpec(t *testing.T) {
	testCases := []struct {
		name      string
		version   string
		shouldErr bool
	}{
		{"latest", "latest", false},
		{"exact", "1.2.0", false},
		{"caret", "^1.2.0", false},
		{"range", ">=1.0.0 <2.0.0", false},
		{"garbage", "not a version", true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := validConfig()
			cfg.Commands[1].Version = tc.version
			err := cfg.Validate()
			if tc.shouldErr && err == nil {
				t.Fatalf("expected error for version %s", tc.version)
			}
			if !tc.shouldErr && err != nil {
				t.Fatalf("unexpected error for version %s: %v", tc.version, err)
			}
		})
	}
}

func TestValidateFlags(t *testing.T) {
	testCases := []struct {
		name string
		flag FlagConfig
	}{
		{"reserved name", FlagConfig{Name: "debug", Type: FlagBool}},
		{"reserved shorthand", FlagConfig{Name: "dry", Shorthand: "d", Type: FlagBool}},
		{"bad type", FlagConfig{Name: "count", Type: "list"}},
		{"long shorthand", FlagConfig{Name: "count", Shorthand: "cc", Type: FlagInt}},
		{"duplicate", FlagConfig{Name: "force", Type: FlagBool}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := validConfig()
			cfg.Commands[0].Flags = append(cfg.Commands[0].Flags, tc.flag)
			if err := cfg.Validate(); err == nil {
				t.Fatalf("flag %+v 应被拒绝", tc.flag)
			}
		})
	}
}

func TestValidateDuplicateCommand(t *testing.T) {
	cfg := validConfig()
	cfg.Commands = append(cfg.Commands, CommandConfig{Name: "init"})
	if err := cfg.Validate(); err == nil {
		t.Fatalf("重复命令应报错")
	}
}

func TestLayout(t *testing.T) {
	g := GlobalConfig{Home: filepath.FromSlash("/home/u/.any-cli")}
	layout := g.Layout()
	if layout.Direct() {
		t.Fatalf("未指定 TargetPath 时应使用缓存")
	}
	if layout.TargetPath != filepath.FromSlash("/home/u/.any-cli/dependencies") {
		t.Fatalf("TargetPath 不正确: %s", layout.TargetPath)
	}
	if layout.StoreDir != filepath.FromSlash("/home/u/.any-cli/dependencies/node_modules") {
		t.Fatalf("StoreDir 不正确: %s", layout.StoreDir)
	}

	g.StoreDir = filepath.FromSlash("/var/cache/any-cli")
	if got := g.Layout().StoreDir; got != g.StoreDir {
		t.Fatalf("StoreDir 覆盖未生效: %s", got)
	}
	if g.CacheRoot() != g.StoreDir {
		t.Fatalf("CacheRoot 应返回覆盖后的目录")
	}
}

func TestApplyOverrides(t *testing.T) {
	cfg := validConfig()
	target := t.TempDir()
	if err := cfg.Apply(Overrides{Debug: true, TargetPath: target, RegistryURL: "http://localhost:4873/"}); err != nil {
		t.Fatalf("Apply 返回错误: %v", err)
	}
	if cfg.Global.LogLevel != "debug" {
		t.Fatalf("--debug 应将日志级别设为 debug")
	}
	if cfg.Global.TargetPath != target {
		t.Fatalf("TargetPath 覆盖未生效")
	}
	if cfg.Global.RegistryURL != "http://localhost:4873" {
		t.Fatalf("RegistryURL 覆盖未生效: %s", cfg.Global.RegistryURL)
	}

	if err := cfg.Apply(Overrides{RegistryURL: "nope"}); err == nil {
		t.Fatalf("非法 registry 覆盖应报错")
	}
}

func TestDurationUnmarshalText(t *testing.T) {
	var d Duration
	if err := d.UnmarshalText([]byte("2m")); err != nil || d.DurationValue() != 2*time.Minute {
		t.Fatalf("应解析 Go duration，得到 %v (%v)", d.DurationValue(), err)
	}
	if err := d.UnmarshalText([]byte("45")); err != nil || d.DurationValue() != 45*time.Second {
		t.Fatalf("纯数字应按秒解析，得到 %v (%v)", d.DurationValue(), err)
	}
	if err := d.UnmarshalText([]byte("soon")); err == nil {
		t.Fatalf("非法值应报错")
	}
}

func validConfig() *Config {
	return &Config{
		Global: GlobalConfig{
			Home:            filepath.FromSlash("/tmp/any-cli"),
			RegistryURL:     "https://registry.npmjs.org",
			RegistryTimeout: Duration(30 * time.Second),
			Installer:       InstallerTarball,
			MinRuntime:      "1.21.0",
			LogLevel:        "info",
		},
		Serve: ServeConfig{ListenPort: 4873},
		Commands: []CommandConfig{
			{
				Name: "init",
				Flags: []FlagConfig{
					{Name: "force", Shorthand: "f", Type: FlagBool},
				},
			},
			{Name: "add", Package: "@any-cli/add", Version: "latest"},
		},
	}
}
