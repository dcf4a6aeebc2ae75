package ai

import (
	"fmt"
	"sort"
	"strings"
)

// 中文说明：
// 提示词模板与 User 摘要构建。模板面向模型用日语书写（与落库的信号标签一致），
// 要求仅输出 JSON，便于后续提取与校验。

const rationaleSystemPrompt = `あなたは日本株のテクニカル分析を支援するアナリストです。
与えられた指標・シグナル・直近ニュースをもとに、判断の根拠とリスク評価を日本語で簡潔にまとめてください。
出力は JSON オブジェクトのみ: {"rationale": "...", "risk": "none|low|medium|high"}。
rationale は3文以内。リスクが判断できない場合は "high" としてください。`

const tuningSystemPrompt = `あなたは株式スクリーニングのパラメータ調整を行うクオンツです。
過去の判断と実際の値動きを読み、改善が見込めるパラメータだけを提案してください。
出力は JSON オブジェクトのみ: {"adjustments":[{"name":"...","value":数値,"reason":"..."}]}。
変更不要なら adjustments は空配列にしてください。値は必ず各パラメータの許容範囲内に収めること。`

// buildRationaleUser 把候选的指标、信号、分数与新闻拼成数据摘要。
func buildRationaleUser(in RationaleInput) string {
	var b strings.Builder
	b.WriteString("# 銘柄\n")
	if name := strings.TrimSpace(in.Name); name != "" {
		fmt.Fprintf(&b, "%s（%s）\n\n", in.Ticker, name)
	} else {
		b.WriteString(in.Ticker + "\n\n")
	}

	ind := in.Indicators
	b.WriteString("# テクニカル指標\n")
	fmt.Fprintf(&b, "価格=%.2f RSI=%.2f 乖離率=%.2f%% MACD=%.4f シグナル=%.4f\n",
		ind.Price, ind.RSI, ind.Deviation, ind.MACDLine, ind.MACDSignal)
	fmt.Fprintf(&b, "+DI=%.2f -DI=%.2f ADX=%.2f 出来高=%.0f トレンド=%s\n\n",
		ind.PlusDI, ind.MinusDI, ind.ADX, ind.Volume, ind.Trend)

	if len(in.Signals) > 0 {
		b.WriteString("# シグナル\n")
		b.WriteString(formatPairs(in.Signals))
		b.WriteString("\n\n")
	}
	fmt.Fprintf(&b, "# スコア\nbuy_score=%d short_score=%d\n\n", in.BuyScore, in.ShortScore)

	if pat := strings.TrimSpace(in.Pattern); pat != "" {
		b.WriteString("# チャート形状\n")
		b.WriteString(pat + "\n")
		if trend := strings.TrimSpace(in.Trend); trend != "" {
			b.WriteString(trend + "\n")
		}
		b.WriteString("\n")
	}

	b.WriteString("# 直近ニュース\n")
	news := strings.TrimSpace(in.News)
	if news == "" {
		news = "(直近のニュースはありません)"
	}
	b.WriteString(news + "\n")
	return b.String()
}

// buildTuningUser 把历史判断、实际结果与当前参数表拼成复盘摘要。
func buildTuningUser(d TuningDecision, o TuningOutcome, states []ParamState) string {
	var b strings.Builder
	b.WriteString("# 過去の判断\n")
	fmt.Fprintf(&b, "銘柄=%s 判断日=%s 方向=%s buy_score=%d short_score=%d 判断時価格=%.2f\n",
		d.Ticker, d.AnalyzedAt.Format("2006-01-02"), d.Side, d.BuyScore, d.ShortScore, d.EntryPrice)
	if len(d.Signals) > 0 {
		b.WriteString(formatPairs(d.Signals))
		b.WriteString("\n")
	}

	b.WriteString("\n# 実際の結果\n")
	fmt.Fprintf(&b, "現在価格=%.2f 実現損益=%+.2f%% 目標=%.2f%% 達成=%v\n",
		o.CurrentPrice, o.OutcomePct, o.TargetPct, o.Hit)

	b.WriteString("\n# 現在のパラメータ（許容範囲）\n")
	for _, s := range states {
		fmt.Fprintf(&b, "- %s=%.4g 範囲[%.4g, %.4g]", s.Name, s.Value, s.Min, s.Max)
		if desc := strings.TrimSpace(s.Description); desc != "" {
			b.WriteString(" " + desc)
		}
		b.WriteString("\n")
	}
	return b.String()
}

func formatPairs(m map[string]string) string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"="+m[k])
	}
	return strings.Join(parts, " ")
}
