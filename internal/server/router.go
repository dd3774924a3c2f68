package server

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/recover"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// PackageHandler 处理解析后的包请求，测试中可注入假实现。
type PackageHandler interface {
	Handle(fiber.Ctx, *PackageRoute) error
}

// PackageHandlerFunc adapts a function to the PackageHandler interface.
type PackageHandlerFunc func(fiber.Ctx, *PackageRoute) error

// Handle makes PackageHandlerFunc satisfy PackageHandler.
func (f PackageHandlerFunc) Handle(c fiber.Ctx, route *PackageRoute) error {
	return f(c, route)
}

// PackageRoute 为从请求路径解析出的包文档或 tarball 请求。
type PackageRoute struct {
	// Name 为包名，scoped 包形如 @scope/name。
	Name string
	// File 为 tarball 文件名，包文档请求时为空。
	File string
	// Version 为 tarball 对应的版本。
	Version string
	// RawPath 为原始请求路径，回源时原样使用。
	RawPath string
}

// Tarball 表示请求的是发布产物而不是包文档。
func (r *PackageRoute) Tarball() bool {
	return r.File != ""
}

// AppOptions controls how the Fiber application should behave.
type AppOptions struct {
	Logger     *logrus.Logger
	Handler    PackageHandler
	ListenPort int
}

const (
	contextKeyRoute     = "_anycli_route"
	contextKeyRequestID = "_anycli_request_id"
)

var errInvalidPackagePath = errors.New("invalid package path")

// NewApp builds a Fiber application with request-id middleware and npm-style
// package path routing. Diagnostics under /-/ are registered separately.
func NewApp(opts AppOptions) (*fiber.App, error) {
	if opts.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if opts.Handler == nil {
		return nil, errors.New("package handler is required")
	}
	if opts.ListenPort <= 0 {
		return nil, fmt.Errorf("invalid listen port: %d", opts.ListenPort)
	}

	app := fiber.New(fiber.Config{
		CaseSensitive: true,
	})

	app.Use(recover.New())
	app.Use(requestContextMiddleware(opts))

	return app, nil
}

// RegisterPackageRoutes 挂载包文档与 tarball 路由，必须在诊断路由之后调用。
func RegisterPackageRoutes(app *fiber.App, opts AppOptions) {
	app.Get("/*", func(c fiber.Ctx) error {
		route, ok := getRouteFromContext(c)
		if !ok {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "not_found"})
		}
		return opts.Handler.Handle(c, route)
	})
	app.All("/*", func(c fiber.Ctx) error {
		return c.Status(fiber.StatusMethodNotAllowed).JSON(fiber.Map{"error": "read_only"})
	})
}

// requestContextMiddleware 负责生成请求 ID，并解析包路径。
func requestContextMiddleware(opts AppOptions) fiber.Handler {
	return func(c fiber.Ctx) error {
		reqID := uuid.NewString()
		c.Locals(contextKeyRequestID, reqID)
		c.Set("X-Request-ID", reqID)

		rawPath := string(c.Request().URI().PathOriginal())
		if isDiagnosticsPath(rawPath) {
			return c.Next()
		}

		route, err := ParsePackagePath(rawPath)
		if err != nil {
			opts.Logger.WithFields(logrus.Fields{
				"action":     "route",
				"path":       rawPath,
				"request_id": reqID,
			}).Debug("无法解析包路径")
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_package_path"})
		}
		c.Locals(contextKeyRoute, route)
		return c.Next()
	}
}

// ParsePackagePath 解析 /<name>、/@scope/<name>、/@scope%2f<name> 与
// /<name>/-/<file>.tgz 形式的路径。
func ParsePackagePath(rawPath string) (*PackageRoute, error) {
	if i := strings.IndexByte(rawPath, '?'); i >= 0 {
		rawPath = rawPath[:i]
	}
	decoded, err := url.PathUnescape(rawPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errInvalidPackagePath, err)
	}
	p := strings.Trim(decoded, "/")
	if p == "" {
		return nil, errInvalidPackagePath
	}

	name, file, tarball := strings.Cut(p, "/-/")
	if !validPackageName(name) {
		return nil, fmt.Errorf("%w: %s", errInvalidPackagePath, name)
	}
	route := &PackageRoute{Name: name, RawPath: rawPath}
	if !tarball {
		return route, nil
	}

	base := name
	if i := strings.IndexByte(name, '/'); i >= 0 {
		base = name[i+1:]
	}
	prefix := base + "-"
	if strings.Contains(file, "/") || !strings.HasPrefix(file, prefix) || !strings.HasSuffix(file, ".tgz") {
		return nil, fmt.Errorf("%w: %s", errInvalidPackagePath, file)
	}
	version := strings.TrimSuffix(strings.TrimPrefix(file, prefix), ".tgz")
	if version == "" {
		return nil, fmt.Errorf("%w: %s", errInvalidPackagePath, file)
	}
	route.File = file
	route.Version = version
	return route, nil
}

func validPackageName(name string) bool {
	if name == "" || strings.HasPrefix(name, ".") {
		return false
	}
	if strings.HasPrefix(name, "@") {
		scope, pkg, ok := strings.Cut(name[1:], "/")
		return ok && scope != "" && pkg != "" && !strings.Contains(pkg, "/")
	}
	return !strings.Contains(name, "/")
}

func getRouteFromContext(c fiber.Ctx) (*PackageRoute, bool) {
	if value := c.Locals(contextKeyRoute); value != nil {
		if route, ok := value.(*PackageRoute); ok {
			return route, true
		}
	}
	return nil, false
}

// RequestID returns the request identifier stored by the router middleware.
func RequestID(c fiber.Ctx) string {
	if value := c.Locals(contextKeyRequestID); value != nil {
		if reqID, ok := value.(string); ok {
			return reqID
		}
	}
	return ""
}

func isDiagnosticsPath(path string) bool {
	return strings.HasPrefix(path, "/-/")
}
