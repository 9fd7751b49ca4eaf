package partner

import (
	"errors"
	"fmt"
)

// AuthError 认证被上游拒绝（账号密码错误、强刷后仍 401），属于永久性错误，
// 上层不应继续重试
type AuthError struct {
	Msg string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("partner auth failed: %s", e.Msg)
}

// TransientError 网络、超时、5xx 等临时性错误，可按退避策略重试
type TransientError struct {
	Op  string
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("partner %s transient error: %v", e.Op, e.Err)
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

// UpstreamError 上游返回 2xx 但业务 code 非 200，原样携带上游信息
type UpstreamError struct {
	Code int
	Msg  string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("partner api error: code=%d msg=%s", e.Code, e.Msg)
}

func IsAuthError(err error) bool {
	var ae *AuthError
	return errors.As(err, &ae)
}

func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}
