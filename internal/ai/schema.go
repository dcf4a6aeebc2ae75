package ai

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// tuningReplySchema 约束调参回复的结构，不符合的回复直接判调用失败。
var tuningReplySchema = jsonschema.MustCompileString("tuning_reply.json", `{
	"type": "object",
	"required": ["adjustments"],
	"properties": {
		"adjustments": {
			"type": "array",
			"items": {
				"type": "object",
				"required": ["name", "value"],
				"properties": {
					"name": {"type": "string", "minLength": 1},
					"value": {"type": "number"},
					"reason": {"type": "string"}
				}
			}
		}
	}
}`)

// decodeTuningReply 解析并校验调参回复。
// 模型偶尔把 value 写成 "28" 这样的字符串，先纠偏再过 Schema。
func decodeTuningReply(objText string) ([]TuningAdjustment, error) {
	var doc any
	if err := json.Unmarshal([]byte(objText), &doc); err != nil {
		return nil, err
	}
	coerceAdjustmentValues(doc)
	if err := tuningReplySchema.Validate(doc); err != nil {
		return nil, err
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, err
	}
	var reply struct {
		Adjustments []TuningAdjustment `json:"adjustments"`
	}
	if err := json.Unmarshal(raw, &reply); err != nil {
		return nil, err
	}
	return reply.Adjustments, nil
}

func coerceAdjustmentValues(doc any) {
	m, ok := doc.(map[string]any)
	if !ok {
		return
	}
	arr, ok := m["adjustments"].([]any)
	if !ok {
		return
	}
	for _, item := range arr {
		obj, ok := item.(map[string]any)
		if !ok {
			continue
		}
		if s, ok := obj["value"].(string); ok {
			if f, err := strconv.ParseFloat(strings.TrimSpace(s), 64); err == nil {
				obj["value"] = f
			}
		}
	}
}
