// Package initcmd 实现内置的 init 命令：检查工作目录并写入项目描述文件。
package initcmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/any-hub/any-cli/internal/builtin"
	"github.com/any-hub/any-cli/pkg/command"
)

// ProjectFile 为 init 在工作目录写入的描述文件名。
const ProjectFile = ".any-cli.json"

// 项目类型。
const (
	TypeProject   = "project"
	TypeComponent = "component"
)

const defaultVersion = "1.0.0"

// ErrDirNotEmpty 表示工作目录非空且未指定 --force。
var ErrDirNotEmpty = errors.New("current directory is not empty")

func init() {
	builtin.MustRegister(builtin.Metadata{
		Key:         "init",
		Description: "初始化项目",
		New:         New,
	})
}

// Project 为写入 ProjectFile 的内容。
type Project struct {
	Name    string `json:"name"`
	Type    string `json:"type"`
	Version string `json:"version"`
}

// Command 为 init 的一次执行实例。
type Command struct {
	env         builtin.Env
	projectName string
	projectType string
	force       bool
}

// New 创建 init 命令，符合 builtin.Factory 签名。
func New(env builtin.Env) command.Command {
	return &Command{env: env}
}

// Init 捕获项目名与 force 选项。
func (c *Command) Init(_ context.Context, req *command.Request) error {
	if c.env.WorkDir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return err
		}
		c.env.WorkDir = wd
	}

	c.projectName = strings.TrimSpace(req.Arg(0))
	if c.projectName == "" {
		c.projectName = filepath.Base(c.env.WorkDir)
	}
	c.force = req.Bool("force")

	c.projectType = strings.TrimSpace(req.String("type"))
	if c.projectType == "" {
		c.projectType = TypeProject
	}
	if c.projectType != TypeProject && c.projectType != TypeComponent {
		return fmt.Errorf("unsupported project type %q", c.projectType)
	}

	c.logger().WithFields(logrus.Fields{
		"action":  "init",
		"project": c.projectName,
		"force":   c.force,
	}).Debug("参数已解析")
	return nil
}

// Exec 校验工作目录，必要时清空，再写入 ProjectFile。
func (c *Command) Exec(_ context.Context, _ *command.Request) error {
	dir := c.env.WorkDir
	empty, err := isDirEmpty(dir)
	if err != nil {
		return err
	}
	if !empty {
		if !c.force {
			return fmt.Errorf("%w: %s (use --force to overwrite)", ErrDirNotEmpty, dir)
		}
		c.logger().WithField("dir", dir).Warn("清空当前目录")
		if err := emptyDir(dir); err != nil {
			return err
		}
	}

	data, err := json.MarshalIndent(Project{
		Name:    c.projectName,
		Type:    c.projectType,
		Version: defaultVersion,
	}, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(dir, ProjectFile), append(data, '\n'), 0o644); err != nil {
		return err
	}

	if c.env.Stdout != nil {
		fmt.Fprintf(c.env.Stdout, "项目 %s 初始化完成\n", c.projectName)
	}
	return nil
}

func (c *Command) logger() *logrus.Logger {
	if c.env.Logger != nil {
		return c.env.Logger
	}
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

// ignored 报告判断目录是否为空时跳过的条目：以 . 开头的文件与 node_modules。
func ignored(name string) bool {
	return strings.HasPrefix(name, ".") || name == "node_modules"
}

func isDirEmpty(dir string) (bool, error) {
	items, err := os.ReadDir(dir)
	if err != nil {
		return false, err
	}
	for _, item := range items {
		if !ignored(item.Name()) {
			return false, nil
		}
	}
	return true, nil
}

// emptyDir 只删除 isDirEmpty 会计入的条目，.git 等隐藏文件与 node_modules 保留。
func emptyDir(dir string) error {
	items, err := os.ReadDir(dir)
	if err != nil {
		return err
	}
	for _, item := range items {
		if ignored(item.Name()) {
			continue
		}
		if err := os.RemoveAll(filepath.Join(dir, item.Name())); err != nil {
			return err
		}
	}
	return nil
}
