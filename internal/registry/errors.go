package registry

import (
	"errors"
	"fmt"
)

var (
	// ErrRegistryUnavailable 表示网络失败或 registry 返回了非预期状态码。
	ErrRegistryUnavailable = errors.New("registry unavailable")
	// ErrPackageNotFound 表示 registry 上不存在该包（或指定版本）。
	ErrPackageNotFound = errors.New("package not found")
)

// RequestError 记录一次失败的 registry 请求，可通过 errors.Is 匹配上面的哨兵错误。
type RequestError struct {
	Package string
	URL     string
	Status  int
	Kind    error
	Err     error
}

func (e *RequestError) Error() string {
	switch {
	case e.Status != 0 && e.Err != nil:
		return fmt.Sprintf("%s: %s (status %d): %v", e.Kind, e.Package, e.Status, e.Err)
	case e.Status != 0:
		return fmt.Sprintf("%s: %s (status %d)", e.Kind, e.Package, e.Status)
	case e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Package, e.Err)
	default:
		return fmt.Sprintf("%s: %s", e.Kind, e.Package)
	}
}

func (e *RequestError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

func unavailable(pkg, url string, status int, cause error) error {
	return &RequestError{Package: pkg, URL: url, Status: status, Kind: ErrRegistryUnavailable, Err: cause}
}

func notFound(pkg, url string) error {
	return &RequestError{Package: pkg, URL: url, Status: 404, Kind: ErrPackageNotFound}
}
