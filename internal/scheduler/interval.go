package scheduler

import (
	"strconv"
	"strings"
	"time"
)

// ParseIntervalDuration 把 "30s"、"15m"、"1h"、"1d"、"1w" 解析成 time.Duration。
// 非法输入返回 (0, false)。
func ParseIntervalDuration(interval string) (time.Duration, bool) {
	interval = strings.ToLower(strings.TrimSpace(interval))
	if interval == "" {
		return 0, false
	}
	unit := interval[len(interval)-1]
	numStr := strings.TrimSpace(interval[:len(interval)-1])
	if numStr == "" {
		return 0, false
	}
	n, err := strconv.Atoi(numStr)
	if err != nil || n <= 0 {
		return 0, false
	}
	switch unit {
	case 's':
		return time.Duration(n) * time.Second, true
	case 'm':
		return time.Duration(n) * time.Minute, true
	case 'h':
		return time.Duration(n) * time.Hour, true
	case 'd':
		return time.Duration(n) * 24 * time.Hour, true
	case 'w':
		return time.Duration(n) * 7 * 24 * time.Hour, true
	default:
		return 0, false
	}
}

// ParseOffsetDuration 解析偏移量，空串视为 0。除 Go 原生写法（"6h10m"）外，
// 也接受 ParseIntervalDuration 的单位。
func ParseOffsetDuration(offset string) (time.Duration, bool) {
	offset = strings.TrimSpace(offset)
	if offset == "" {
		return 0, true
	}
	if d, err := time.ParseDuration(offset); err == nil && d >= 0 {
		return d, true
	}
	if d, ok := ParseIntervalDuration(offset); ok {
		return d, true
	}
	return 0, false
}
