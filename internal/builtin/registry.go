// Package builtin 维护编译进二进制的命令，它们在进程内执行，不经过缓存与子进程。
package builtin

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/any-hub/any-cli/pkg/command"
)

// Env 为内置命令提供运行环境。
type Env struct {
	// WorkDir 为命令的工作目录，通常是进程当前目录。
	WorkDir string
	Stdout  io.Writer
	Logger  *logrus.Logger
}

// Factory 为每次调度创建新的命令实例。
type Factory func(env Env) command.Command

// Metadata 描述一个内置命令。
type Metadata struct {
	Key         string
	Description string
	New         Factory
}

var globalRegistry = newRegistry()

type registry struct {
	mu       sync.RWMutex
	commands map[string]Metadata
}

func newRegistry() *registry {
	return &registry{commands: make(map[string]Metadata)}
}

// Register 将内置命令加入全局注册表，重复键会返回错误。
func Register(meta Metadata) error {
	return globalRegistry.register(meta)
}

// MustRegister 在注册失败时 panic，适合在 init() 中调用。
func MustRegister(meta Metadata) {
	if err := Register(meta); err != nil {
		panic(err)
	}
}

// Resolve 返回指定键的内置命令。
func Resolve(key string) (Metadata, bool) {
	return globalRegistry.resolve(key)
}

// List 返回按键排序的内置命令列表。
func List() []Metadata {
	return globalRegistry.list()
}

// Keys 返回所有内置命令名。
func Keys() []string {
	items := List()
	result := make([]string, len(items))
	for i, meta := range items {
		result[i] = meta.Key
	}
	return result
}

func (r *registry) normalizeKey(key string) string {
	return strings.ToLower(strings.TrimSpace(key))
}

func (r *registry) register(meta Metadata) error {
	key := r.normalizeKey(meta.Key)
	if key == "" {
		return fmt.Errorf("builtin command key is required")
	}
	if meta.New == nil {
		return fmt.Errorf("builtin command %s has no factory", key)
	}
	meta.Key = key

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.commands[key]; exists {
		return fmt.Errorf("builtin command %s already registered", key)
	}
	r.commands[key] = meta
	return nil
}

func (r *registry) resolve(key string) (Metadata, bool) {
	if key == "" {
		return Metadata{}, false
	}
	normalized := r.normalizeKey(key)

	r.mu.RLock()
	defer r.mu.RUnlock()

	meta, ok := r.commands[normalized]
	return meta, ok
}

func (r *registry) list() []Metadata {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if len(r.commands) == 0 {
		return nil
	}

	keys := make([]string, 0, len(r.commands))
	for key := range r.commands {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	result := make([]Metadata, 0, len(keys))
	for _, key := range keys {
		result = append(result, r.commands[key])
	}
	return result
}
