package notifier

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRenderText(t *testing.T) {
	msg := StructuredMessage{
		Title: "買い候補 2 件",
		Sections: []MessageSection{
			{Title: "7203 トヨタ自動車", Lines: []string{"buy=6 short=0", "RSI: 28.4（売られすぎ）", ""}},
			{Title: "空段落", Lines: []string{"   ", ""}},
			{Title: "6758 ソニーグループ", Lines: []string{"buy=5 short=1"}},
		},
		Footer:    "risk=none のみ通知対象",
		Timestamp: time.Date(2025, 7, 1, 15, 5, 0, 0, time.UTC),
	}

	out := msg.RenderText()
	assert.True(t, strings.HasPrefix(out, "買い候補 2 件\n\n"))
	assert.Contains(t, out, "【7203 トヨタ自動車】\n- buy=6 short=0\n- RSI: 28.4（売られすぎ）")
	assert.NotContains(t, out, "空段落")
	assert.Contains(t, out, "【6758 ソニーグループ】")
	assert.Contains(t, out, "risk=none のみ通知対象")
	assert.Contains(t, out, "时间：2025-07-01 15:05:00 UTC")
}

func TestRenderTextEmpty(t *testing.T) {
	assert.Equal(t, "", StructuredMessage{}.RenderText())
}

func TestRenderTextClampsLongBody(t *testing.T) {
	long := strings.Repeat("x", 7000)
	out := StructuredMessage{Title: "t", Sections: []MessageSection{{Lines: []string{long}}}}.RenderText()
	assert.LessOrEqual(t, len(out), maxStructuredMessageLen+3)
	assert.True(t, strings.HasSuffix(out, "..."))
}
