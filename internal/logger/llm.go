package logger

import (
	"io"
	"log"
	"strings"
	"sync"
)

var (
	llmMu      sync.Mutex
	llmOut     *log.Logger
	llmPayload bool
)

// SetLLMWriter 设置 LLM 往返日志的输出；传 nil 关闭。
func SetLLMWriter(w io.Writer) {
	llmMu.Lock()
	defer llmMu.Unlock()
	if w == nil {
		llmOut = nil
		return
	}
	llmOut = log.New(w, "", log.LstdFlags)
}

// EnableLLMPayloadDump 控制 LogLLMRequest 是否连请求 payload 一起落盘。
func EnableLLMPayloadDump(enabled bool) {
	llmMu.Lock()
	llmPayload = enabled
	llmMu.Unlock()
}

type dumpPart struct {
	Label string
	Text  string
}

func dumpLLM(tags []string, parts []dumpPart) {
	llmMu.Lock()
	sink := llmOut
	llmMu.Unlock()
	if sink == nil {
		return
	}
	var b strings.Builder
	b.WriteString("[LLM]")
	for _, tag := range tags {
		if tag == "" {
			continue
		}
		b.WriteString("[")
		b.WriteString(tag)
		b.WriteString("]")
	}
	b.WriteString("\n")
	for _, part := range parts {
		label := strings.TrimSpace(part.Label)
		if label == "" {
			label = "CONTENT"
		}
		b.WriteString("--- ")
		b.WriteString(label)
		b.WriteString(" ---\n")
		b.WriteString(part.Text)
		if !strings.HasSuffix(part.Text, "\n") {
			b.WriteString("\n")
		}
	}
	b.WriteString("=====\n")
	sink.Print(b.String())
}

// LogLLMRequest 记录一次模型请求的提示词（payload 受 EnableLLMPayloadDump 控制）。
func LogLLMRequest(kind, provider, purpose, systemPrompt, userPrompt, payload string) {
	parts := []dumpPart{
		{Label: "SYSTEM", Text: systemPrompt},
		{Label: "USER", Text: userPrompt},
	}
	llmMu.Lock()
	withPayload := llmPayload
	llmMu.Unlock()
	if withPayload && strings.TrimSpace(payload) != "" {
		parts = append(parts, dumpPart{Label: "PAYLOAD", Text: payload})
	}
	dumpLLM([]string{kind + "-request", provider, purpose}, parts)
}

// LogLLMResponse 记录模型原始回复。
func LogLLMResponse(kind, provider, purpose, raw string) {
	dumpLLM([]string{kind + "-response", provider, purpose}, []dumpPart{{Label: "RAW", Text: raw}})
}
