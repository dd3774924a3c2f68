package server

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/sirupsen/logrus"

	"github.com/any-hub/any-cli/internal/cache"
	"github.com/any-hub/any-cli/internal/registry"
)

// Mirror 从本地索引应答包请求，未命中时按需回源。
type Mirror struct {
	index    *Index
	upstream *url.URL
	client   *http.Client
	logger   *logrus.Logger
}

// NewMirror 创建 Mirror；upstream 为空时未命中直接返回 404。
func NewMirror(index *Index, upstream string, client *http.Client, logger *logrus.Logger) (*Mirror, error) {
	m := &Mirror{index: index, client: client, logger: logger}
	if m.logger == nil {
		m.logger = logrus.StandardLogger()
	}
	if m.client == nil {
		m.client = registry.NewHTTPClient(0)
	}
	if strings.TrimSpace(upstream) != "" {
		parsed, err := url.Parse(strings.TrimRight(strings.TrimSpace(upstream), "/"))
		if err != nil {
			return nil, fmt.Errorf("invalid upstream: %w", err)
		}
		m.upstream = parsed
	}
	return m, nil
}

var _ PackageHandler = (*Mirror)(nil)

// Handle 实现 PackageHandler。
func (m *Mirror) Handle(c fiber.Ctx, route *PackageRoute) error {
	started := time.Now()
	requestID := RequestID(c)
	ctx := c.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	pkg, ok, err := m.index.Lookup(ctx, route.Name)
	if err != nil {
		m.logResult(route, requestID, fiber.StatusInternalServerError, "local", started, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "index_failed"})
	}
	if ok && !route.Tarball() {
		m.logResult(route, requestID, fiber.StatusOK, "local", started, nil)
		return c.JSON(buildPackument(pkg, c.BaseURL()))
	}
	if ok {
		if version, found := pkg.Versions[route.Version]; found {
			return m.serveTarball(c, route, version, requestID, started)
		}
	}

	if m.upstream == nil {
		m.logResult(route, requestID, fiber.StatusNotFound, "local", started, nil)
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "not_found"})
	}
	return m.forward(c, ctx, route, requestID, started)
}

func (m *Mirror) serveTarball(c fiber.Ctx, route *PackageRoute, version IndexedVersion, requestID string, started time.Time) error {
	var buf bytes.Buffer
	if err := cache.Pack(version.Entry.Path, &buf); err != nil {
		m.logResult(route, requestID, fiber.StatusInternalServerError, "local", started, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "pack_failed"})
	}
	m.logResult(route, requestID, fiber.StatusOK, "local", started, nil)
	c.Set(fiber.HeaderContentType, "application/octet-stream")
	return c.Send(buf.Bytes())
}

func (m *Mirror) forward(c fiber.Ctx, ctx context.Context, route *PackageRoute, requestID string, started time.Time) error {
	target := m.upstream.String() + route.RawPath
	if qs := c.Request().URI().QueryString(); len(qs) > 0 {
		target += "?" + string(qs)
	}
	req, err := http.NewRequestWithContext(ctx, c.Method(), target, http.NoBody)
	if err != nil {
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"error": "upstream_failed"})
	}
	CopyHeaders(req.Header, fiberHeadersAsHTTP(c))
	req.Header.Del("Accept-Encoding")
	req.Host = m.upstream.Host
	req.Header.Set("Host", m.upstream.Host)

	resp, err := m.client.Do(req)
	if err != nil {
		m.logResult(route, requestID, fiber.StatusBadGateway, target, started, err)
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"error": "upstream_failed"})
	}
	defer resp.Body.Close()

	copyResponseHeaders(c, resp.Header)
	c.Set("X-Any-Cli-Upstream", target)
	if requestID != "" {
		c.Set("X-Request-ID", requestID)
	}
	c.Status(resp.StatusCode)

	if c.Method() == http.MethodHead {
		m.logResult(route, requestID, resp.StatusCode, target, started, nil)
		return nil
	}
	_, err = io.Copy(c.Response().BodyWriter(), resp.Body)
	m.logResult(route, requestID, resp.StatusCode, target, started, err)
	if err != nil {
		return fiber.NewError(fiber.StatusBadGateway, fmt.Sprintf("proxy stream failed: %v", err))
	}
	return nil
}

// buildPackument 生成 npm 风格的包文档，tarball 地址指向本镜像。
func buildPackument(pkg *IndexedPackage, baseURL string) registry.Packument {
	doc := registry.Packument{
		Name:     pkg.Name,
		Versions: make(map[string]registry.Manifest, len(pkg.Versions)),
	}
	if pkg.Latest != "" {
		doc.DistTags = map[string]string{"latest": pkg.Latest}
	}
	for v, item := range pkg.Versions {
		doc.Versions[v] = registry.Manifest{
			Name:    pkg.Name,
			Version: v,
			Main:    item.Main,
			Dist:    registry.Dist{Tarball: TarballURL(baseURL, pkg.Name, v)},
		}
	}
	return doc
}

// TarballURL 返回 <base>/<name>/-/<basename>-<version>.tgz。
func TarballURL(baseURL, name, version string) string {
	base := name
	if i := strings.IndexByte(name, '/'); i >= 0 {
		base = name[i+1:]
	}
	return strings.TrimRight(baseURL, "/") + "/" + name + "/-/" + base + "-" + version + ".tgz"
}

func (m *Mirror) logResult(route *PackageRoute, requestID string, status int, source string, started time.Time, err error) {
	fields := logrus.Fields{
		"action":     "mirror",
		"package":    route.Name,
		"tarball":    route.Tarball(),
		"source":     source,
		"status":     status,
		"request_id": requestID,
		"elapsed_ms": time.Since(started).Milliseconds(),
	}
	if err != nil {
		m.logger.WithFields(fields).WithError(err).Warn("镜像请求失败")
		return
	}
	m.logger.WithFields(fields).Debug("镜像请求完成")
}

func fiberHeadersAsHTTP(c fiber.Ctx) http.Header {
	header := http.Header{}
	c.Request().Header.VisitAll(func(key, value []byte) {
		header.Add(string(key), string(value))
	})
	return header
}

func copyResponseHeaders(c fiber.Ctx, headers http.Header) {
	for key, values := range headers {
		if IsHopByHopHeader(key) {
			continue
		}
		for _, value := range values {
			c.Set(key, value)
		}
	}
}
