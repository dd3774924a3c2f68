package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"

	"github.com/Masterminds/semver/v3"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"
)

const (
	// DefaultURL 为 npm 官方 registry。
	DefaultURL = "https://registry.npmjs.org"

	acceptHeader = "application/vnd.npm.install-v1+json; q=1.0, application/json; q=0.8, */*"
	maxDocBytes  = 64 << 20
)

// Dist 描述某个版本的发布产物。
type Dist struct {
	Tarball   string `json:"tarball"`
	Integrity string `json:"integrity,omitempty"`
	Shasum    string `json:"shasum,omitempty"`
}

// Manifest 为单个版本的元数据，仅保留调度需要的字段。
type Manifest struct {
	Name    string `json:"name"`
	Version string `json:"version"`
	Main    string `json:"main,omitempty"`
	Dist    Dist   `json:"dist"`
}

// Packument 为 GET <registry>/<name> 返回的包文档。
type Packument struct {
	Name     string              `json:"name"`
	DistTags map[string]string   `json:"dist-tags,omitempty"`
	Versions map[string]Manifest `json:"versions"`
}

// Options 控制 Client 的可选行为。
type Options struct {
	Token      string
	HTTPClient *http.Client
	Logger     *logrus.Logger
}

// Client 查询 npm 风格 registry；同名并发请求会合并为一次。
type Client struct {
	base   string
	token  string
	http   *http.Client
	logger *logrus.Logger
	sf     singleflight.Group
}

// NewClient 创建 registry 客户端，baseURL 为空时使用 npm 官方地址。
func NewClient(baseURL string, opts Options) *Client {
	base := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if base == "" {
		base = DefaultURL
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = NewHTTPClient(0)
	}
	logger := opts.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Client{
		base:   base,
		token:  strings.TrimSpace(opts.Token),
		http:   httpClient,
		logger: logger,
	}
}

// BaseURL 返回 registry 根地址。
func (c *Client) BaseURL() string {
	return c.base
}

// PackageURL 返回包文档地址，scoped 包的斜杠编码为 %2f。
func (c *Client) PackageURL(name string) string {
	return c.base + "/" + EscapeName(name)
}

// EscapeName 将 @scope/name 转为 registry 路径段 @scope%2fname。
func EscapeName(name string) string {
	if strings.HasPrefix(name, "@") {
		return strings.Replace(name, "/", "%2f", 1)
	}
	return name
}

// Packument 拉取完整包文档。404 返回 ErrPackageNotFound，其余失败返回 ErrRegistryUnavailable，不做重试。
func (c *Client) Packument(ctx context.Context, name string) (*Packument, error) {
	if strings.TrimSpace(name) == "" {
		return nil, errors.New("package name required")
	}
	// 合并后的请求不随首个调用方取消，超时由 http.Client 控制；每个调用方只等待自己的 ctx。
	shared := context.WithoutCancel(ctx)
	ch := c.sf.DoChan(name, func() (interface{}, error) {
		return c.fetch(shared, name)
	})
	select {
	case <-ctx.Done():
		return nil, unavailable(name, c.PackageURL(name), 0, ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*Packument), nil
	}
}

func (c *Client) fetch(ctx context.Context, name string) (*Packument, error) {
	target := c.PackageURL(name)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, http.NoBody)
	if err != nil {
		return nil, unavailable(name, target, 0, err)
	}
	req.Header.Set("Accept", acceptHeader)
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, unavailable(name, target, 0, err)
	}
	defer resp.Body.Close()

	c.logger.WithFields(logrus.Fields{
		"action":  "registry_fetch",
		"package": name,
		"url":     target,
		"status":  resp.StatusCode,
	}).Debug("registry 请求完成")

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, notFound(name, target)
	default:
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, unavailable(name, target, resp.StatusCode, nil)
	}

	var doc Packument
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxDocBytes)).Decode(&doc); err != nil {
		return nil, unavailable(name, target, resp.StatusCode, fmt.Errorf("decode packument: %w", err))
	}
	if doc.Name == "" {
		doc.Name = name
	}
	return &doc, nil
}

// ListVersions 返回全部已发布版本，按 semver 升序，无法解析的版本被丢弃。
func (c *Client) ListVersions(ctx context.Context, name string) ([]string, error) {
	doc, err := c.Packument(ctx, name)
	if err != nil {
		return nil, err
	}
	return SortVersions(keys(doc.Versions)), nil
}

// Manifest 返回指定版本的元数据；版本不存在时返回 ErrPackageNotFound。
func (c *Client) Manifest(ctx context.Context, name, version string) (*Manifest, error) {
	doc, err := c.Packument(ctx, name)
	if err != nil {
		return nil, err
	}
	m, ok := doc.Versions[version]
	if !ok {
		return nil, &RequestError{
			Package: name + "@" + version,
			URL:     c.PackageURL(name),
			Kind:    ErrPackageNotFound,
		}
	}
	if m.Name == "" {
		m.Name = name
	}
	if m.Version == "" {
		m.Version = version
	}
	return &m, nil
}

// Download 打开发布产物的响应体，调用方负责关闭。
func (c *Client) Download(ctx context.Context, name, tarballURL string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, tarballURL, http.NoBody)
	if err != nil {
		return nil, unavailable(name, tarballURL, 0, err)
	}
	if c.token != "" && strings.HasPrefix(tarballURL, c.base) {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, unavailable(name, tarballURL, 0, err)
	}
	switch resp.StatusCode {
	case http.StatusOK:
		return resp.Body, nil
	case http.StatusNotFound:
		resp.Body.Close()
		return nil, notFound(name, tarballURL)
	default:
		resp.Body.Close()
		return nil, unavailable(name, tarballURL, resp.StatusCode, nil)
	}
}

// SortVersions 过滤非法版本并按 semver 升序排列。
func SortVersions(raw []string) []string {
	type pair struct {
		raw string
		ver *semver.Version
	}
	parsed := make([]pair, 0, len(raw))
	for _, v := range raw {
		sv, err := semver.StrictNewVersion(strings.TrimSpace(v))
		if err != nil {
			continue
		}
		parsed = append(parsed, pair{raw: v, ver: sv})
	}
	sort.SliceStable(parsed, func(i, j int) bool {
		return parsed[i].ver.LessThan(parsed[j].ver)
	})
	out := make([]string, len(parsed))
	for i, p := range parsed {
		out[i] = p.raw
	}
	return out
}

func keys(m map[string]Manifest) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}
