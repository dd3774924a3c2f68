package command

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"runtime"
	"strings"

	"github.com/Masterminds/semver/v3"
	"github.com/sirupsen/logrus"
)

// DefaultMinRuntime 为未配置时要求的最低 Go 运行时版本。
const DefaultMinRuntime = "1.21.0"

var (
	// ErrDispatchFailed 标记调度链路中的任意失败。
	ErrDispatchFailed = errors.New("dispatch failed")
	// ErrUnsupportedRuntime 表示运行时版本低于要求。
	ErrUnsupportedRuntime = errors.New("unsupported runtime")
	// ErrEmptyArguments 表示请求数组为空。
	ErrEmptyArguments = errors.New("arguments must not be empty")
)

// Phase 为生命周期状态。
type Phase int

const (
	PhaseValidating Phase = iota
	PhaseParsingArgs
	PhaseInitializing
	PhaseExecuting
	PhaseDone
	PhaseFailed
)

var phaseNames = [...]string{"validating", "parsing_args", "initializing", "executing", "done", "failed"}

func (p Phase) String() string {
	if int(p) < len(phaseNames) {
		return phaseNames[p]
	}
	return fmt.Sprintf("phase(%d)", int(p))
}

// Command 由具体命令实现；Init 捕获参数，Exec 完成实际工作。
type Command interface {
	Init(ctx context.Context, req *Request) error
	Exec(ctx context.Context, req *Request) error
}

// PhaseError 记录失败发生的阶段，可通过 errors.Is 匹配 ErrDispatchFailed 与原始错误。
type PhaseError struct {
	Phase Phase
	Err   error
}

func (e *PhaseError) Error() string {
	return fmt.Sprintf("%s during %s: %v", ErrDispatchFailed, e.Phase, e.Err)
}

func (e *PhaseError) Unwrap() []error {
	return []error{ErrDispatchFailed, e.Err}
}

// RuntimeError 描述运行时版本不满足要求。
type RuntimeError struct {
	Have string
	Want string
}

func (e *RuntimeError) Error() string {
	return fmt.Sprintf("%s: need go >= %s, have %s", ErrUnsupportedRuntime, e.Want, e.Have)
}

func (e *RuntimeError) Unwrap() error {
	return ErrUnsupportedRuntime
}

// Base 驱动 Command 走完 validateRuntime → parseArguments → initialize → execute。
type Base struct {
	// MinRuntime 为最低 Go 版本，例如 1.21.0。
	MinRuntime string
	// RuntimeVersion 返回当前运行时版本，默认 runtime.Version。
	RuntimeVersion func() string
	Logger         *logrus.Logger

	phase Phase
}

// Phase 返回当前（或终止时的）状态。
func (b *Base) Phase() Phase {
	return b.phase
}

// Run 执行完整生命周期，raw 为线上格式的请求数组。
func (b *Base) Run(ctx context.Context, cmd Command, raw []byte) error {
	b.enter(PhaseValidating)
	if err := b.validateRuntime(); err != nil {
		return b.fail(err)
	}

	b.enter(PhaseParsingArgs)
	req, err := parseArguments(raw)
	if err != nil {
		return b.fail(err)
	}

	b.enter(PhaseInitializing)
	if err := cmd.Init(ctx, req); err != nil {
		return b.fail(err)
	}

	b.enter(PhaseExecuting)
	if err := cmd.Exec(ctx, req); err != nil {
		return b.fail(err)
	}

	b.enter(PhaseDone)
	return nil
}

// RunRequest 编码 req 后执行生命周期，供进程内命令使用。
func (b *Base) RunRequest(ctx context.Context, cmd Command, req Request) error {
	raw, err := json.Marshal(req)
	if err != nil {
		b.phase = PhaseParsingArgs
		return b.fail(err)
	}
	return b.Run(ctx, cmd, raw)
}

func (b *Base) enter(p Phase) {
	b.phase = p
	if b.Logger != nil {
		b.Logger.WithFields(logrus.Fields{"action": "lifecycle", "phase": p.String()}).Debug("进入阶段")
	}
}

func (b *Base) fail(err error) error {
	failed := b.phase
	b.phase = PhaseFailed
	return &PhaseError{Phase: failed, Err: err}
}

func (b *Base) validateRuntime() error {
	want := strings.TrimSpace(b.MinRuntime)
	if want == "" {
		want = DefaultMinRuntime
	}
	minVer, err := semver.NewVersion(want)
	if err != nil {
		return fmt.Errorf("invalid minimum runtime %q: %w", want, err)
	}

	versionFn := b.RuntimeVersion
	if versionFn == nil {
		versionFn = runtime.Version
	}
	have := strings.TrimSpace(versionFn())
	// 开发版工具链无法比较，直接放行。
	if strings.HasPrefix(have, "devel") {
		return nil
	}
	current, err := semver.NewVersion(goVersion(have))
	if err != nil || current.LessThan(minVer) {
		return &RuntimeError{Have: have, Want: want}
	}
	return nil
}

// goVersion 从 go1.22.3、go1.23rc1 等形式中取出数字部分。
func goVersion(raw string) string {
	raw = strings.TrimPrefix(raw, "go")
	end := 0
	for end < len(raw) && (raw[end] == '.' || (raw[end] >= '0' && raw[end] <= '9')) {
		end++
	}
	return strings.TrimSuffix(raw[:end], ".")
}

func parseArguments(raw []byte) (*Request, error) {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || trimmed == "null" || trimmed == "[]" {
		return nil, ErrEmptyArguments
	}
	var req Request
	if err := json.Unmarshal([]byte(trimmed), &req); err != nil {
		return nil, fmt.Errorf("parse arguments: %w", err)
	}
	return &req, nil
}
