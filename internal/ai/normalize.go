package ai

import "strings"

// 风险枚举。除这四个值外一律按 high 处理，避免对无法解读的回复发通知。
const (
	RiskNone   = "none"
	RiskLow    = "low"
	RiskMedium = "medium"
	RiskHigh   = "high"
)

// NormalizeRisk 统一风险标签：大小写不敏感，未知值视为 high。
func NormalizeRisk(s string) string {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case RiskNone:
		return RiskNone
	case RiskLow:
		return RiskLow
	case RiskMedium:
		return RiskMedium
	case RiskHigh:
		return RiskHigh
	default:
		return RiskHigh
	}
}
