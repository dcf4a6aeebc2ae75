package ai

import "strings"

// ExtractJSONObject 提取首个完整的 JSON 对象，返回对象文本与是否成功。
// 模型输出可能带 Markdown 围栏或前置说明，这里按括号深度扫描；
// rationale 等自由文本里可能出现花括号，字符串内部的括号不计深度。
func ExtractJSONObject(s string) (string, bool) {
	start := strings.Index(s, "{")
	if start == -1 {
		return "", false
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return strings.TrimSpace(s[start : i+1]), true
			}
		}
	}
	return "", false
}
