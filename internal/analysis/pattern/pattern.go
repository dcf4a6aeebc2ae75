package pattern

import (
	"fmt"
	"math"
	"strings"

	"kabuto/internal/market"
)

// 中文说明：
// 在日线序列上做轻量形态识别：双底/双顶、三角收敛、波动压缩，外加
// 线性回归趋势描述。结果只作为 AI 论证的补充上下文，不参与打分。
// 摘要文案用日语书写，与提示词语言一致。

// Result 是单票的形态识别结论。
type Result struct {
	PatternSummary string   `json:"pattern_summary"`
	TrendSummary   string   `json:"trend_summary"`
	Bias           string   `json:"bias"` // bullish / bearish / balanced
	Signals        []string `json:"signals"`
}

// Analyze 扫描整段日线。序列太短时各检测器各自放弃，不报错。
func Analyze(bars []market.Bar) Result {
	if len(bars) == 0 {
		return Result{PatternSummary: "データ不足で形状判定不可", TrendSummary: "トレンド不明"}
	}
	closes := make([]float64, len(bars))
	highs := make([]float64, len(bars))
	lows := make([]float64, len(bars))
	for i, b := range bars {
		closes[i] = b.Close
		highs[i] = b.High
		lows[i] = b.Low
	}

	slope, intercept := linearFit(closes)

	signals := make([]string, 0, 4)
	if desc, ok := detectDoubleBottom(lows); ok {
		signals = append(signals, desc)
	}
	if desc, ok := detectDoubleTop(highs); ok {
		signals = append(signals, desc)
	}
	if desc, ok := detectTriangle(highs, lows); ok {
		signals = append(signals, desc)
	}
	if desc, ok := detectCompression(highs, lows); ok {
		signals = append(signals, desc)
	}

	summary := "顕著なチャートパターンなし"
	if len(signals) > 0 {
		summary = strings.Join(signals, "、")
	}
	return Result{
		PatternSummary: summary,
		TrendSummary:   describeTrend(slope, intercept, closes),
		Bias:           classifySlope(slope),
		Signals:        signals,
	}
}

// linearFit 对收盘序列做最小二乘直线拟合（x 取下标）。
func linearFit(series []float64) (slope, intercept float64) {
	n := len(series)
	if n == 0 {
		return 0, 0
	}
	meanX := float64(n-1) / 2
	var meanY float64
	for _, y := range series {
		meanY += y
	}
	meanY /= float64(n)
	var sxy, sxx float64
	for i, y := range series {
		dx := float64(i) - meanX
		sxy += dx * (y - meanY)
		sxx += dx * dx
	}
	if sxx == 0 {
		return 0, series[n-1]
	}
	slope = sxy / sxx
	intercept = meanY - slope*meanX
	return
}

func classifySlope(slope float64) string {
	const threshold = 0.0001
	switch {
	case slope > threshold:
		return "bullish"
	case slope < -threshold:
		return "bearish"
	default:
		return "balanced"
	}
}

func describeTrend(slope, intercept float64, closes []float64) string {
	last := closes[len(closes)-1]
	ref := intercept + slope*float64(len(closes)-1)
	angle := math.Atan(slope) * 180 / math.Pi
	if ref == 0 {
		return fmt.Sprintf("線形回帰の傾き=%.6f(%.2f°)", slope, angle)
	}
	return fmt.Sprintf("線形回帰の傾き=%.6f(%.2f°)、終値は基準線から%+.2f%%乖離",
		slope, angle, (last-ref)/ref*100)
}

// detectDoubleBottom 在后半段找两个相近的低点。两低点价差在 0.4% 以内、
// 且第二个低点与第一个间隔至少 3 根时判定成立。
func detectDoubleBottom(lows []float64) (string, bool) {
	if len(lows) < 20 {
		return "", false
	}
	window := lows[len(lows)/2:]
	first, firstIdx := minAt(window)
	masked := append([]float64(nil), window...)
	for i := firstIdx - 2; i <= firstIdx+2; i++ {
		if i >= 0 && i < len(masked) {
			masked[i] = math.MaxFloat64
		}
	}
	second, secondIdx := minAt(masked)
	diff := math.Abs(first-second) / math.Max(first, 1)
	if diff <= 0.004 && secondIdx >= 3 {
		return fmt.Sprintf("直近レンジでダブルボトム形成、支持線は約%.2f", (first+second)/2), true
	}
	return "", false
}

// detectDoubleTop 与 detectDoubleBottom 对称，找后半段的两个相近高点。
func detectDoubleTop(highs []float64) (string, bool) {
	if len(highs) < 20 {
		return "", false
	}
	window := highs[len(highs)/2:]
	first, firstIdx := maxAt(window)
	masked := append([]float64(nil), window...)
	for i := firstIdx - 2; i <= firstIdx+2; i++ {
		if i >= 0 && i < len(masked) {
			masked[i] = -math.MaxFloat64
		}
	}
	second, secondIdx := maxAt(masked)
	diff := math.Abs(first-second) / math.Max(first, 1)
	if diff <= 0.004 && secondIdx >= 3 {
		return fmt.Sprintf("%.2f付近のダブルトップが上値を抑制", (first+second)/2), true
	}
	return "", false
}

// detectTriangle 前后两半对比：高点走低且低点走高、区间宽度收窄超过 5%
// 视作三角保ち合い。
func detectTriangle(highs, lows []float64) (string, bool) {
	if len(highs) < 30 {
		return "", false
	}
	half := len(highs) / 2
	firstHigh := maxOf(highs[:half])
	lastHigh := maxOf(highs[half:])
	firstLow := minOf(lows[:half])
	lastLow := minOf(lows[half:])
	if lastHigh < firstHigh && lastLow > firstLow {
		widthDelta := (firstHigh - firstLow) - (lastHigh - lastLow)
		if widthDelta/firstHigh > 0.05 {
			return "高値と安値が収斂、三角保ち合いの疑い", true
		}
	}
	return "", false
}

// detectCompression 后半段振幅收缩到前半段 65% 以下时提示突破待ち。
func detectCompression(highs, lows []float64) (string, bool) {
	if len(highs) < 40 {
		return "", false
	}
	half := len(highs) / 2
	first := (maxOf(highs[:half]) - minOf(lows[:half])) / maxOf(highs[:half])
	second := (maxOf(highs[half:]) - minOf(lows[half:])) / maxOf(highs[half:])
	if second < first*0.65 {
		return "ボラティリティが急速に収縮、ブレイク方向に注目", true
	}
	return "", false
}

func minOf(values []float64) float64 {
	v, _ := minAt(values)
	return v
}

func maxOf(values []float64) float64 {
	v, _ := maxAt(values)
	return v
}

// minAt / maxAt 要求非空序列，各检测器的长度门槛保证了这一点。
func minAt(values []float64) (float64, int) {
	best, at := values[0], 0
	for i := 1; i < len(values); i++ {
		if values[i] < best {
			best, at = values[i], i
		}
	}
	return best, at
}

func maxAt(values []float64) (float64, int) {
	best, at := values[0], 0
	for i := 1; i < len(values); i++ {
		if values[i] > best {
			best, at = values[i], i
		}
	}
	return best, at
}
