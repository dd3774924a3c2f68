package command

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"reflect"
	"testing"
)

type recordingCommand struct {
	initErr error
	execErr error
	calls   []string
	req     *Request
}

func (c *recordingCommand) Init(ctx context.Context, req *Request) error {
	c.calls = append(c.calls, "init")
	c.req = req
	return c.initErr
}

func (c *recordingCommand) Exec(ctx context.Context, req *Request) error {
	c.calls = append(c.calls, "exec")
	return c.execErr
}

func fixedRuntime(v string) func() string {
	return func() string { return v }
}

func TestRequestWireFormat(t *testing.T) {
	req := Request{Args: []string{"my-app"}, Options: map[string]interface{}{
		"force": true, "count": 3, "ratio": 0.5, "scale": 2.0, "big": int64(1) << 60,
		"limits": []interface{}{1.0, int64(4)}, "name": "x",
	}}
	data, err := json.Marshal(req)
	if err != nil {
		t.Fatalf("marshal error: %v", err)
	}
	if !bytes.HasPrefix(data, []byte(`["my-app",{`)) {
		t.Fatalf("unexpected wire format %s", data)
	}

	var decoded Request
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal error: %v", err)
	}
	if !bytes.Contains(data, []byte(`"scale":2.0`)) {
		t.Fatalf("整数值的浮点选项应带小数部分: %s", data)
	}
	want := map[string]interface{}{
		"force": true, "count": int64(3), "ratio": 0.5, "scale": 2.0, "big": int64(1) << 60,
		"limits": []interface{}{1.0, int64(4)}, "name": "x",
	}
	if !reflect.DeepEqual(decoded.Options, want) {
		t.Fatalf("options changed type: %#v", decoded.Options)
	}
	if !reflect.DeepEqual(decoded.Args, []string{"my-app"}) {
		t.Fatalf("args mismatch: %v", decoded.Args)
	}
}

func TestRequestRejectsMalformed(t *testing.T) {
	for _, raw := range []string{`[]`, `["a", "b"]`, `[1, {}]`, `{"a":1}`} {
		var r Request
		if err := json.Unmarshal([]byte(raw), &r); err == nil {
			t.Fatalf("%s should be rejected", raw)
		}
	}
}

func TestRunCallsPhasesInOrder(t *testing.T) {
	cmd := &recordingCommand{}
	base := &Base{RuntimeVersion: fixedRuntime("go1.22.3")}

	if err := base.Run(context.Background(), cmd, []byte(`["my-app",{"force":true}]`)); err != nil {
		t.Fatalf("run error: %v", err)
	}
	if !reflect.DeepEqual(cmd.calls, []string{"init", "exec"}) {
		t.Fatalf("unexpected call order %v", cmd.calls)
	}
	if base.Phase() != PhaseDone {
		t.Fatalf("expected done, got %s", base.Phase())
	}
	if cmd.req.Arg(0) != "my-app" || !cmd.req.Bool("force") {
		t.Fatalf("request not parsed: %+v", cmd.req)
	}
}

func TestRunStopsAtFirstFailure(t *testing.T) {
	boom := errors.New("boom")
	testCases := []struct {
		name  string
		cmd   *recordingCommand
		raw   string
		rt    string
		phase Phase
		calls int
	}{
		{"old runtime", &recordingCommand{}, `[{}]`, "go1.18.2", PhaseValidating, 0},
		{"empty args", &recordingCommand{}, `[]`, "go1.22.0", PhaseParsingArgs, 0},
		{"null args", &recordingCommand{}, `null`, "go1.22.0", PhaseParsingArgs, 0},
		{"init fails", &recordingCommand{initErr: boom}, `[{}]`, "go1.22.0", PhaseInitializing, 1},
		{"exec fails", &recordingCommand{execErr: boom}, `[{}]`, "go1.22.0", PhaseExecuting, 2},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			base := &Base{RuntimeVersion: fixedRuntime(tc.rt)}
			err := base.Run(context.Background(), tc.cmd, []byte(tc.raw))
			var phaseErr *PhaseError
			if !errors.As(err, &phaseErr) {
				t.Fatalf("expected PhaseError, got %v", err)
			}
			if phaseErr.Phase != tc.phase {
				t.Fatalf("expected failure in %s, got %s", tc.phase, phaseErr.Phase)
			}
			if !errors.Is(err, ErrDispatchFailed) {
				t.Fatalf("PhaseError should match ErrDispatchFailed")
			}
			if base.Phase() != PhaseFailed {
				t.Fatalf("terminal state should be failed, got %s", base.Phase())
			}
			if len(tc.cmd.calls) != tc.calls {
				t.Fatalf("expected %d calls, got %v", tc.calls, tc.cmd.calls)
			}
		})
	}
}

func TestValidateRuntime(t *testing.T) {
	testCases := []struct {
		have string
		min  string
		ok   bool
	}{
		{"go1.21.0", "1.21.0", true},
		{"go1.23rc1", "1.21.0", true},
		{"go1.20.14", "1.21.0", false},
		{"devel go1.24-abcdef", "1.21.0", true},
		{"go1.22.1", "", true},
		{"garbage", "1.21.0", false},
	}
	for _, tc := range testCases {
		base := &Base{MinRuntime: tc.min, RuntimeVersion: fixedRuntime(tc.have)}
		err := base.validateRuntime()
		if tc.ok && err != nil {
			t.Fatalf("%s >= %s should pass: %v", tc.have, tc.min, err)
		}
		if !tc.ok && !errors.Is(err, ErrUnsupportedRuntime) {
			t.Fatalf("%s < %s should fail with ErrUnsupportedRuntime, got %v", tc.have, tc.min, err)
		}
	}
}

func TestRunRequest(t *testing.T) {
	cmd := &recordingCommand{}
	base := &Base{RuntimeVersion: fixedRuntime("go1.22.0")}
	req := Request{Args: []string{"demo"}, Options: map[string]interface{}{"force": false}}
	if err := base.RunRequest(context.Background(), cmd, req); err != nil {
		t.Fatalf("run error: %v", err)
	}
	if cmd.req.Arg(0) != "demo" || cmd.req.Bool("force") {
		t.Fatalf("unexpected request %+v", cmd.req)
	}
}

func TestMainReadsRequestFromEnv(t *testing.T) {
	var stderr bytes.Buffer
	prevErr, prevEnv, prevArgs := stdErr, getenv, cmdArgs
	t.Cleanup(func() { stdErr, getenv, cmdArgs = prevErr, prevEnv, prevArgs })
	stdErr = &stderr
	cmdArgs = func() []string { return nil }

	getenv = func(key string) string {
		if key == EnvRequest {
			return `["x",{}]`
		}
		return ""
	}
	cmd := &recordingCommand{}
	if code := Main(cmd); code != 0 {
		t.Fatalf("expected exit 0, got %d (%s)", code, stderr.String())
	}

	cmd = &recordingCommand{execErr: &ExitError{Code: 3}}
	if code := Main(cmd); code != 3 {
		t.Fatalf("expected custom exit code 3, got %d", code)
	}

	getenv = func(string) string { return "" }
	if code := Main(&recordingCommand{}); code != 1 {
		t.Fatalf("missing request should exit 1, got %d", code)
	}
}
