package ai

import (
	"fmt"
	"time"

	"kabuto/internal/analysis/indicator"
)

// 中文说明：
// 本文件定义 AI 顾问的输入输出结构与错误类型，供分析管线与反馈回路使用。

// ServiceError 表示一次 AI 调用失败：超时、响应损坏或校验不通过。
// 调用方按「可恢复」处理：结果照常落库（无 rationale）或跳过本条调参建议。
type ServiceError struct {
	Op     string // rationale / tuning
	Reason string
	Err    error
}

func (e *ServiceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("ai %s 调用失败: %s: %v", e.Op, e.Reason, e.Err)
	}
	return fmt.Sprintf("ai %s 调用失败: %s", e.Op, e.Reason)
}

func (e *ServiceError) Unwrap() error { return e.Err }

// RationaleInput 汇总一次论证请求需要的候选上下文。
// 形态两项是纯文本摘要，由管线的形态识别填充，可为空。
type RationaleInput struct {
	Ticker     string
	Name       string
	Indicators indicator.Snapshot
	Signals    map[string]string
	BuyScore   int
	ShortScore int
	Pattern    string
	Trend      string
	News       string
}

// RationaleResult 是论证回复：根拠文本 + 已归一化的风险枚举。
type RationaleResult struct {
	Rationale string
	Risk      string
	Raw       string // 原始模型输出，便于排查
}

// TuningDecision 描述被复盘的历史判断。
type TuningDecision struct {
	Ticker     string
	AnalyzedAt time.Time
	Side       string // buy / short
	BuyScore   int
	ShortScore int
	EntryPrice float64
	Signals    map[string]string
}

// TuningOutcome 描述该判断之后的实际走势。
type TuningOutcome struct {
	CurrentPrice float64
	OutcomePct   float64
	TargetPct    float64
	Hit          bool
}

// ParamState 描述一个可调参数的当前值与允许范围。
type ParamState struct {
	Name        string
	Value       float64
	Min         float64
	Max         float64
	Description string
}

// TuningAdjustment 是模型建议的单个参数修改。
type TuningAdjustment struct {
	Name   string  `json:"name"`
	Value  float64 `json:"value"`
	Reason string  `json:"reason,omitempty"`
}
