package ai

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractJSONObject(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
		ok   bool
	}{
		{"裸のオブジェクト", `{"a":1}`, `{"a":1}`, true},
		{"前置きとフェンス付き", "説明です。\n```json\n{\"a\":1}\n```", `{"a":1}`, true},
		{"ネスト", `{"a":{"b":2}}`, `{"a":{"b":2}}`, true},
		{"文字列内の括弧を無視", `{"rationale":"日経{平均}の}動き","risk":"low"}`, `{"rationale":"日経{平均}の}動き","risk":"low"}`, true},
		{"エスケープ付き文字列", `{"a":"he said \"}\""}`, `{"a":"he said \"}\""}`, true},
		{"オブジェクトなし", "ただのテキスト", "", false},
		{"閉じ括弧不足", `{"a":1`, "", false},
	}
	for _, tc := range cases {
		got, ok := ExtractJSONObject(tc.in)
		assert.Equal(t, tc.ok, ok, tc.name)
		assert.Equal(t, tc.want, got, tc.name)
	}
}
