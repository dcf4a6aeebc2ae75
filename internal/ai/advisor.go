package ai

import (
	"context"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"kabuto/internal/gateway/provider"
	"kabuto/internal/logger"
)

// 中文说明：
// Advisor 封装两类模型调用：
// - Rationale：对达到门槛的候选生成判断根拠与风险评估；
// - SuggestTuning：根据历史判断的实际结果提出参数修改建议。
// 响应格式损坏一律视为调用失败（ServiceError），由调用方按条跳过，不中断批次。

type Advisor struct {
	Provider       provider.ModelProvider
	TimeoutSeconds int
}

func New(p provider.ModelProvider, timeoutSeconds int) *Advisor {
	return &Advisor{Provider: p, TimeoutSeconds: timeoutSeconds}
}

// Enabled 判断是否配置了可用的模型。
func (a *Advisor) Enabled() bool {
	return a != nil && a.Provider != nil && a.Provider.Enabled()
}

// Rationale 请求判断根拠与风险分类。
func (a *Advisor) Rationale(ctx context.Context, input RationaleInput) (RationaleResult, error) {
	if !a.Enabled() {
		return RationaleResult{}, &ServiceError{Op: "rationale", Reason: "未配置模型"}
	}
	raw, err := a.call(ctx, "rationale", rationaleSystemPrompt, buildRationaleUser(input))
	if err != nil {
		return RationaleResult{}, &ServiceError{Op: "rationale", Reason: "模型调用失败", Err: err}
	}
	obj, ok := ExtractJSONObject(raw)
	if !ok {
		logger.Warnf("模型 %s 论证响应未包含 JSON 对象，片段: %q", a.Provider.ID(), snippet(raw))
		return RationaleResult{}, &ServiceError{Op: "rationale", Reason: "响应缺少 JSON 对象"}
	}
	rationale := strings.TrimSpace(gjson.Get(obj, "rationale").String())
	if rationale == "" {
		return RationaleResult{}, &ServiceError{Op: "rationale", Reason: "响应缺少 rationale 字段"}
	}
	return RationaleResult{
		Rationale: rationale,
		Risk:      NormalizeRisk(gjson.Get(obj, "risk").String()),
		Raw:       raw,
	}, nil
}

// SuggestTuning 请求调参建议。回复先过 JSON Schema 再转结构体；空建议是合法回复。
func (a *Advisor) SuggestTuning(ctx context.Context, decision TuningDecision, outcome TuningOutcome, states []ParamState) ([]TuningAdjustment, error) {
	if !a.Enabled() {
		return nil, &ServiceError{Op: "tuning", Reason: "未配置模型"}
	}
	raw, err := a.call(ctx, "tuning", tuningSystemPrompt, buildTuningUser(decision, outcome, states))
	if err != nil {
		return nil, &ServiceError{Op: "tuning", Reason: "模型调用失败", Err: err}
	}
	obj, ok := ExtractJSONObject(raw)
	if !ok {
		logger.Warnf("模型 %s 调参响应未包含 JSON 对象，片段: %q", a.Provider.ID(), snippet(raw))
		return nil, &ServiceError{Op: "tuning", Reason: "响应缺少 JSON 对象"}
	}
	adjustments, err := decodeTuningReply(obj)
	if err != nil {
		return nil, &ServiceError{Op: "tuning", Reason: "响应未通过校验", Err: err}
	}
	return adjustments, nil
}

// call 调用模型并记录 LLM 往返日志，带可选超时。
func (a *Advisor) call(ctx context.Context, purpose, sys, usr string) (string, error) {
	cctx := ctx
	if a.TimeoutSeconds > 0 {
		var cancel context.CancelFunc
		cctx, cancel = context.WithTimeout(ctx, time.Duration(a.TimeoutSeconds)*time.Second)
		defer cancel()
	}
	logger.Debugf("调用模型: %s (%s)", a.Provider.ID(), purpose)
	logger.LogLLMRequest("advisor", a.Provider.ID(), purpose, sys, usr, "")
	raw, err := a.Provider.Call(cctx, provider.ChatPayload{System: sys, User: usr, ExpectJSON: true})
	if err != nil {
		return "", err
	}
	logger.LogLLMResponse("advisor", a.Provider.ID(), purpose, raw)
	return raw, nil
}

func snippet(s string) string {
	if len(s) > 160 {
		return s[:160] + "..."
	}
	return s
}
