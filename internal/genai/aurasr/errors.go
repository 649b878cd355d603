package aurasr

import (
	"context"
	"errors"
	"fmt"
)

// Sentinel errors for AuraSR client failures.
var (
	ErrBackendUnavailable = errors.New("the image enhancement API is temporarily unavailable (502 Bad Gateway), please try again later")
	ErrRequestRejected    = errors.New("aurasr api request failed")
	ErrMalformedResponse  = errors.New("aurasr malformed response")
	ErrTransport          = errors.New("aurasr transport failure")
)

// APIError 服务端返回了非成功状态码
type APIError struct {
	Kind       error
	StatusCode int
	Message    string
	Body       string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%v (status %d)", e.Kind, e.StatusCode)
	}
	return fmt.Sprintf("%v (%d): %s", e.Kind, e.StatusCode, e.Message)
}

func (e *APIError) Unwrap() error {
	return e.Kind
}

// classifyError 将网络层错误统一包装为 ErrTransport
func classifyError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: request timed out: %v", ErrTransport, err)
	}
	return fmt.Errorf("%w: %v", ErrTransport, err)
}
