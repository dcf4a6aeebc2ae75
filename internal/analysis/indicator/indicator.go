package indicator

import (
	"math"

	"github.com/markcheno/go-talib"

	"kabuto/internal/market"
)

// Trend 是 SMA 趋势方向。字符串值直接落库，保持与既有数据兼容。
type Trend string

const (
	TrendUpward   Trend = "Upward"
	TrendDownward Trend = "Downward"
	TrendFlat     Trend = "No change"
)

// Snapshot 是单只股票最近交易日的指标值合集，打分引擎的唯一输入。
type Snapshot struct {
	Code       string  `json:"code"`
	Price      float64 `json:"price"`
	RSI        float64 `json:"rsi"`
	Deviation  float64 `json:"deviation_rate"`
	Trend      Trend   `json:"trend"`
	MACDLine   float64 `json:"macd_line"`
	MACDSignal float64 `json:"macd_signal"`
	PlusDI     float64 `json:"dmi_dmp"`
	MinusDI    float64 `json:"dmi_dmn"`
	ADX        float64 `json:"adx"`
	Volume     float64 `json:"volume"`
}

// Compute 由日线序列计算指标快照。bars 必须升序，且最后一根的收盘价
// 已由调用方替换为收盘快照时刻的价格。
func Compute(code string, bars []market.Bar, p Params) (Snapshot, error) {
	need := p.MinBars()
	if len(bars) < need {
		return Snapshot{}, &InsufficientHistoryError{Code: code, Need: need, Have: len(bars)}
	}

	closes := make([]float64, len(bars))
	highs := make([]float64, len(bars))
	lows := make([]float64, len(bars))
	for i, b := range bars {
		closes[i] = b.Close
		highs[i] = b.High
		lows[i] = b.Low
	}
	price := closes[len(closes)-1]

	rsi := lastValid(talib.Rsi(closes, p.RSIPeriod))

	devSMA := lastValid(talib.Sma(closes, p.DeviationPeriod))
	deviation := 0.0
	if devSMA != 0 {
		deviation = (price - devSMA) / devSMA * 100
	}

	trendSeries := talib.Sma(closes, p.TrendPeriod)
	cur := trendSeries[len(trendSeries)-1]
	prev := trendSeries[len(trendSeries)-2]
	trend := TrendFlat
	switch {
	case cur > prev:
		trend = TrendUpward
	case cur < prev:
		trend = TrendDownward
	}

	macdLine, macdSignal, _ := talib.Macd(closes, p.MACDFast, p.MACDSlow, p.MACDSignal)

	plusDI := lastValid(talib.PlusDI(highs, lows, closes, p.DMIPeriod))
	minusDI := lastValid(talib.MinusDI(highs, lows, closes, p.DMIPeriod))
	adx := lastValid(talib.Adx(highs, lows, closes, p.DMIPeriod))

	return Snapshot{
		Code:       code,
		Price:      round4(price),
		RSI:        round4(rsi),
		Deviation:  round4(deviation),
		Trend:      trend,
		MACDLine:   round4(lastValid(macdLine)),
		MACDSignal: round4(lastValid(macdSignal)),
		PlusDI:     round4(plusDI),
		MinusDI:    round4(minusDI),
		ADX:        round4(adx),
		Volume:     bars[len(bars)-1].Volume,
	}, nil
}

func lastValid(series []float64) float64 {
	for i := len(series) - 1; i >= 0; i-- {
		if !math.IsNaN(series[i]) && !math.IsInf(series[i], 0) {
			return series[i]
		}
	}
	return 0
}

func round4(v float64) float64 {
	return math.Round(v*10000) / 10000
}
