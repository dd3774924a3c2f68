package command

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Request 是一次调度转发给命令的参数：位置参数加一个选项对象。
// 线上格式为 JSON 数组，最后一个元素是选项对象，例如 ["my-app", {"force": true}]。
type Request struct {
	Args    []string
	Options map[string]interface{}
}

// MarshalJSON 输出 [args..., options]。
func (r Request) MarshalJSON() ([]byte, error) {
	items := make([]interface{}, 0, len(r.Args)+1)
	for _, a := range r.Args {
		items = append(items, a)
	}
	opts := make(map[string]interface{}, len(r.Options))
	for k, v := range r.Options {
		opts[k] = wireNumber(v)
	}
	items = append(items, opts)
	return json.Marshal(items)
}

// wireFloat 保证整数值的浮点数带小数部分输出，解码端据此还原为 float64。
type wireFloat float64

func (f wireFloat) MarshalJSON() ([]byte, error) {
	v := float64(f)
	if math.IsInf(v, 0) || math.IsNaN(v) || v != math.Trunc(v) || math.Abs(v) >= 1e21 {
		return json.Marshal(v)
	}
	return []byte(strconv.FormatFloat(v, 'f', -1, 64) + ".0"), nil
}

func wireNumber(v interface{}) interface{} {
	switch n := v.(type) {
	case float64:
		return wireFloat(n)
	case float32:
		return wireFloat(n)
	case []interface{}:
		out := make([]interface{}, len(n))
		for i := range n {
			out[i] = wireNumber(n[i])
		}
		return out
	case map[string]interface{}:
		out := make(map[string]interface{}, len(n))
		for k := range n {
			out[k] = wireNumber(n[k])
		}
		return out
	default:
		return v
	}
}

// UnmarshalJSON 解析 [args..., options]；不含小数点与指数的数字还原为 int64，其余为 float64。
func (r *Request) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var items []interface{}
	if err := dec.Decode(&items); err != nil {
		return err
	}
	if len(items) == 0 {
		return errors.New("request must contain at least the options object")
	}

	last, ok := items[len(items)-1].(map[string]interface{})
	if !ok {
		return fmt.Errorf("last request element must be an object, got %T", items[len(items)-1])
	}
	args := make([]string, 0, len(items)-1)
	for i, item := range items[:len(items)-1] {
		s, ok := item.(string)
		if !ok {
			return fmt.Errorf("argument %d must be a string, got %T", i, item)
		}
		args = append(args, s)
	}

	opts := make(map[string]interface{}, len(last))
	for k, v := range last {
		opts[k] = normalizeNumber(v)
	}
	r.Args = args
	r.Options = opts
	return nil
}

func normalizeNumber(v interface{}) interface{} {
	switch n := v.(type) {
	case json.Number:
		if !strings.ContainsAny(n.String(), ".eE") {
			if i, err := n.Int64(); err == nil {
				return i
			}
		}
		if f, err := n.Float64(); err == nil {
			return f
		}
		return n.String()
	case []interface{}:
		for i := range n {
			n[i] = normalizeNumber(n[i])
		}
		return n
	case map[string]interface{}:
		for k := range n {
			n[k] = normalizeNumber(n[k])
		}
		return n
	default:
		return v
	}
}

// Encode 返回线上格式的字符串。
func (r Request) Encode() (string, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// Bool 读取布尔选项，缺失或类型不符时返回 false。
func (r Request) Bool(name string) bool {
	v, _ := r.Options[name].(bool)
	return v
}

// String 读取字符串选项。
func (r Request) String(name string) string {
	v, _ := r.Options[name].(string)
	return v
}

// Arg 返回第 i 个位置参数，越界时返回空字符串。
func (r Request) Arg(i int) string {
	if i < 0 || i >= len(r.Args) {
		return ""
	}
	return r.Args[i]
}
