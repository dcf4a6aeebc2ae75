package provider

import (
	"fmt"
	"strings"
	"time"

	"kabuto/internal/logger"
)

// ModelCfg 是单个模型的装配参数，由 app 层从配置映射而来。
type ModelCfg struct {
	ID, Provider, APIURL, APIKey, Model string
	Enabled                             bool
	Headers                             map[string]string
	ExpectJSON                          bool
}

// BuildProvider 按配置装配一个 ModelProvider。未启用时返回 nil。
func BuildProvider(cfg ModelCfg, timeout time.Duration) ModelProvider {
	if !cfg.Enabled {
		return nil
	}
	id := strings.TrimSpace(cfg.ID)
	if id == "" {
		base := strings.TrimSpace(cfg.Provider)
		if base == "" {
			base = "provider"
		}
		if model := strings.TrimSpace(cfg.Model); model != "" {
			id = fmt.Sprintf("%s:%s", base, model)
		} else {
			id = base
		}
		logger.Warnf("未配置 ai.id，已为 %q 生成 ID: %s", cfg.Provider, id)
	}
	client := &OpenAIChatClient{
		BaseURL:      cfg.APIURL,
		APIKey:       cfg.APIKey,
		Model:        cfg.Model,
		ExtraHeaders: cfg.Headers,
	}
	if timeout > 0 {
		client.Timeout = timeout
	}
	return NewOpenAIModelProvider(id, true, cfg.ExpectJSON, client)
}
