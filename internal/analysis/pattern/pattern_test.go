package pattern

import (
	"testing"
	"time"

	"kabuto/internal/market"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// patternBars 用高低价序列构造日线，收盘取区间中点。
func patternBars(highs, lows []float64) []market.Bar {
	base := time.Date(2025, 8, 1, 0, 0, 0, 0, time.UTC)
	bars := make([]market.Bar, len(highs))
	for i := range highs {
		mid := (highs[i] + lows[i]) / 2
		bars[i] = market.Bar{
			Date: base.AddDate(0, 0, i), Open: mid,
			High: highs[i], Low: lows[i], Close: mid, Volume: 1000,
		}
	}
	return bars
}

// trendBars 用收盘序列构造日线，高低各留 1 的固定振幅。
func trendBars(closes []float64) []market.Bar {
	base := time.Date(2025, 8, 1, 0, 0, 0, 0, time.UTC)
	bars := make([]market.Bar, len(closes))
	for i, c := range closes {
		bars[i] = market.Bar{
			Date: base.AddDate(0, 0, i), Open: c,
			High: c + 1, Low: c - 1, Close: c, Volume: 1000,
		}
	}
	return bars
}

func TestAnalyze_DoubleBottom(t *testing.T) {
	// 后半段两个几乎等深的低点（100.0 与 100.2，间隔 10 根），
	// 其余低点都明显更高。
	highs := []float64{
		113.0, 112.6, 113.4, 112.9, 113.1, 112.7, 113.3, 112.8, 113.2, 113.0,
		112.9, 113.1, 112.6, 113.4, 112.8, 113.0, 113.2, 112.7, 113.1, 112.9,
		106.2, 106.8, 106.1, 106.5, 107.5, 106.4, 106.0, 106.6, 106.9, 106.3,
		106.7, 106.2, 106.5, 106.1, 106.8, 106.4, 106.6, 106.0, 106.3, 106.5,
	}
	lows := []float64{
		110.2, 109.8, 110.4, 110.0, 110.3, 109.9, 110.1, 110.2, 109.8, 110.0,
		110.3, 110.1, 109.9, 110.2, 110.0, 110.4, 109.8, 110.1, 110.3, 110.0,
		105.0, 104.5, 104.8, 104.2, 104.6, 100.0, 104.4, 104.9, 105.1, 104.3,
		104.7, 105.2, 104.1, 104.8, 104.5, 100.2, 104.6, 104.9, 105.0, 104.4,
	}
	res := Analyze(patternBars(highs, lows))

	require.Len(t, res.Signals, 1)
	assert.Contains(t, res.Signals[0], "ダブルボトム")
	assert.Contains(t, res.Signals[0], "100.10")
	assert.Equal(t, res.Signals[0], res.PatternSummary)
}

func TestAnalyze_DoubleTop(t *testing.T) {
	// 后半段 120.0 与 120.3 两个几乎等高的峰，其余高点都压在 119 以下。
	highs := []float64{
		118.0, 117.6, 118.4, 117.9, 118.1, 117.7, 118.3, 117.8, 118.2, 118.0,
		117.9, 118.1, 117.6, 118.4, 117.8, 118.0, 118.2, 117.7, 118.1, 117.9,
		118.5, 118.2, 118.6, 118.3, 118.4, 120.0, 118.1, 118.6, 118.9, 118.3,
		118.7, 118.2, 118.5, 118.1, 118.8, 120.3, 118.6, 118.0, 118.3, 118.5,
	}
	lows := []float64{
		113.2, 112.8, 113.4, 113.0, 113.3, 112.9, 113.1, 113.2, 112.8, 113.0,
		113.3, 113.1, 112.9, 113.2, 113.0, 113.4, 112.8, 113.1, 113.3, 113.0,
		114.5, 114.9, 114.4, 114.8, 114.6, 115.0, 114.3, 114.7, 115.1, 114.5,
		114.8, 114.2, 114.6, 115.0, 114.4, 114.9, 113.5, 114.7, 114.5, 114.8,
	}
	res := Analyze(patternBars(highs, lows))

	require.Len(t, res.Signals, 1)
	assert.Contains(t, res.Signals[0], "ダブルトップ")
	assert.Contains(t, res.Signals[0], "120.15")
}

func TestAnalyze_TriangleWithCompression(t *testing.T) {
	// 前半段高低振幅 30，后半段收敛到 10：三角与波动收缩同时成立。
	highs := []float64{
		128.0, 126.5, 130.0, 127.2, 125.8, 129.1, 126.3, 128.7, 127.5, 125.2,
		129.5, 126.8, 128.2, 127.0, 125.5, 129.8, 126.1, 128.4, 127.8, 125.9,
		118.5, 117.8, 119.0, 118.2, 117.5, 120.0, 118.8, 117.9, 119.2, 118.0,
		117.6, 119.4, 118.3, 117.7, 118.9, 118.1, 119.3, 117.8, 118.6, 118.0,
	}
	lows := []float64{
		103.0, 105.2, 100.0, 104.1, 106.3, 101.5, 105.8, 102.2, 104.6, 106.0,
		101.0, 105.4, 103.3, 104.8, 106.1, 100.8, 105.0, 102.9, 104.2, 106.2,
		112.5, 113.2, 111.8, 112.9, 113.5, 110.0, 112.2, 113.0, 111.5, 112.8,
		113.3, 110.7, 112.4, 113.1, 111.9, 112.6, 113.4, 111.2, 112.7, 113.0,
	}
	res := Analyze(patternBars(highs, lows))

	require.Len(t, res.Signals, 2)
	assert.Contains(t, res.PatternSummary, "三角保ち合い")
	assert.Contains(t, res.PatternSummary, "収縮")
}

func TestAnalyze_TrendBias(t *testing.T) {
	rising := make([]float64, 40)
	falling := make([]float64, 40)
	for i := range rising {
		rising[i] = 100 + float64(i)
		falling[i] = 140 - float64(i)
	}
	flat := make([]float64, 10)
	for i := range flat {
		flat[i] = 100
	}

	cases := []struct {
		name   string
		closes []float64
		bias   string
	}{
		{"rising closes", rising, "bullish"},
		{"falling closes", falling, "bearish"},
		{"flat closes", flat, "balanced"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res := Analyze(trendBars(tc.closes))
			assert.Equal(t, tc.bias, res.Bias)
			assert.Empty(t, res.Signals)
			assert.Equal(t, "顕著なチャートパターンなし", res.PatternSummary)
			assert.Contains(t, res.TrendSummary, "線形回帰")
		})
	}
}

func TestAnalyze_EmptySeries(t *testing.T) {
	res := Analyze(nil)
	assert.Equal(t, "データ不足で形状判定不可", res.PatternSummary)
	assert.Equal(t, "トレンド不明", res.TrendSummary)
	assert.Empty(t, res.Bias)
	assert.Empty(t, res.Signals)
}
