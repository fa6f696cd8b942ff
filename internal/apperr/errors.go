// Package apperr holds the error taxonomy shared by the pipeline services.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrAuth 凭证无效或过期，需要重新授权
	ErrAuth = errors.New("auth error")
	// ErrPermission 授权范围不足
	ErrPermission = errors.New("permission error")
	// ErrTransport 网络 / broker / 存储不可达
	ErrTransport = errors.New("transport error")
	// ErrValidation 外部 payload 格式错误或非法向量 id
	ErrValidation = errors.New("validation error")
	// ErrNotFound 引用的邮件或凭证不存在
	ErrNotFound = errors.New("not found")
)

// ErrReAuthRequired is returned when no usable credential remains for an owner.
// It matches ErrAuth as well.
var ErrReAuthRequired = fmt.Errorf("re-authorization required: %w", ErrAuth)

// Kind returns a short label for logs and metrics.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrReAuthRequired):
		return "reauth_required"
	case errors.Is(err, ErrAuth):
		return "auth"
	case errors.Is(err, ErrPermission):
		return "permission"
	case errors.Is(err, ErrTransport):
		return "transport"
	case errors.Is(err, ErrValidation):
		return "validation"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	default:
		return "internal"
	}
}

// HTTPStatus maps an error to the status code handlers respond with.
func HTTPStatus(err error) int {
	switch Kind(err) {
	case "reauth_required", "auth":
		return http.StatusUnauthorized
	case "permission":
		return http.StatusForbidden
	case "validation":
		return http.StatusBadRequest
	case "not_found":
		return http.StatusNotFound
	case "transport":
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// NeedsReAuth reports whether the caller should run the authorization flow again.
func NeedsReAuth(err error) bool {
	return errors.Is(err, ErrAuth)
}
