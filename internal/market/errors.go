package market

import (
	"errors"
	"fmt"
	"time"
)

// NotFoundError 表示数据源不认识该证券代码。调用方按单票跳过处理。
type NotFoundError struct {
	Code string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("market: code %s not found", e.Code)
}

// RateLimitError 表示数据源限流。RetryAfter 为 0 时由调用方自行退避。
type RateLimitError struct {
	Code       string
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("market: rate limited on %s, retry after %s", e.Code, e.RetryAfter)
	}
	return fmt.Sprintf("market: rate limited on %s", e.Code)
}

// UnavailableError 表示数据源暂时不可用：熔断开启或持续性故障。
type UnavailableError struct {
	Source string
	Err    error
}

func (e *UnavailableError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("market: source %s unavailable: %v", e.Source, e.Err)
	}
	return fmt.Sprintf("market: source %s unavailable", e.Source)
}

func (e *UnavailableError) Unwrap() error { return e.Err }

// IsSkippable 判断该错误是否属于"跳过本票、不中断整轮"的类别。
func IsSkippable(err error) bool {
	var nf *NotFoundError
	var rl *RateLimitError
	var ua *UnavailableError
	return errors.As(err, &nf) || errors.As(err, &rl) || errors.As(err, &ua)
}
