package provider

import "context"

// ChatPayload 是一次对话补全请求。
type ChatPayload struct {
	System     string
	User       string
	ExpectJSON bool
	MaxTokens  int
}

// ModelProvider 抽象一个可调用的生成式模型。
type ModelProvider interface {
	ID() string
	Enabled() bool
	ExpectsJSON() bool

	Call(ctx context.Context, payload ChatPayload) (string, error)
}
