package scoring

import (
	"testing"
	"time"

	"kabuto/internal/analysis/indicator"
	"kabuto/internal/params"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func defaultConfig() Config {
	return Config{
		RSIOversold:        25,
		RSIBuySetup:        40,
		RSIOverbought:      75,
		RSIShortSetup:      60,
		RSIStrongWeight:    2,
		RSISetupWeight:     1,
		DeviationBuyLevel:  -5,
		DeviationSellLevel: 5,
		DeviationWeight:    2,
		TrendWeight:        1,
		MACDWeight:         2,
		DMIWeight:          2,
		ADXTrendLevel:      25,
		ADXWeight:          1,
	}
}

func TestEvaluate_AllBullish(t *testing.T) {
	snap := indicator.Snapshot{
		Code:       "7203",
		RSI:        20,
		Deviation:  -6.5,
		Trend:      indicator.TrendUpward,
		MACDLine:   12.5,
		MACDSignal: 10.1,
		PlusDI:     30,
		MinusDI:    12,
		ADX:        32,
	}
	res := Evaluate(snap, defaultConfig())

	assert.Equal(t, 10, res.BuyScore)
	assert.Equal(t, 0, res.ShortScore)
	assert.Equal(t, LabelBuy, res.Signals[SignalRSI])
	assert.Equal(t, LabelBuy, res.Signals[SignalDeviation])
	assert.Equal(t, "Upward", res.Signals[SignalTrend])
	assert.Equal(t, LabelBuy, res.Signals[SignalMACD])
	assert.Equal(t, LabelGoldenCross, res.Signals[SignalDMI])
	assert.Equal(t, LabelStrongUp, res.Signals[SignalADX])

	side, score := res.Dominant()
	assert.Equal(t, "buy", side)
	assert.Equal(t, 10, score)
}

func TestEvaluate_AllBearish(t *testing.T) {
	snap := indicator.Snapshot{
		Code:       "9984",
		RSI:        80,
		Deviation:  7.2,
		Trend:      indicator.TrendDownward,
		MACDLine:   -3.4,
		MACDSignal: -1.2,
		PlusDI:     10,
		MinusDI:    28,
		ADX:        30,
	}
	res := Evaluate(snap, defaultConfig())

	assert.Equal(t, 0, res.BuyScore)
	assert.Equal(t, 10, res.ShortScore)
	assert.Equal(t, LabelSell, res.Signals[SignalRSI])
	assert.Equal(t, LabelSell, res.Signals[SignalDeviation])
	assert.Equal(t, LabelDeadCross, res.Signals[SignalDMI])
	assert.Equal(t, LabelStrongDown, res.Signals[SignalADX])

	side, score := res.Dominant()
	assert.Equal(t, "short", side)
	assert.Equal(t, 10, score)
}

func TestEvaluate_RSIBands(t *testing.T) {
	cases := []struct {
		name       string
		rsi        float64
		label      string
		buyDelta   int
		shortDelta int
	}{
		{"strong buy below oversold", 20, LabelBuy, 2, 0},
		{"setup band above oversold", 30, LabelBuySetup, 1, 0},
		{"neutral middle", 50, LabelNeutral, 0, 0},
		{"sell setup band", 65, LabelSellSetup, 0, 1},
		{"sell setup at overbought edge", 75, LabelSellSetup, 0, 1},
		{"strong sell above overbought", 80, LabelSell, 0, 2},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			// 只让 RSI 动，其余信号固定：かい離率中性、趋势持平、
			// MACD 与 DMI 落在空方、ADX 低于门槛。
			snap := indicator.Snapshot{
				RSI:        tc.rsi,
				Deviation:  0,
				Trend:      indicator.TrendFlat,
				MACDLine:   1,
				MACDSignal: 2,
				PlusDI:     10,
				MinusDI:    20,
				ADX:        10,
			}
			res := Evaluate(snap, defaultConfig())
			assert.Equal(t, tc.label, res.Signals[SignalRSI])
			assert.Equal(t, tc.buyDelta, res.BuyScore)
			assert.Equal(t, 4+tc.shortDelta, res.ShortScore) // MACD+DMI 固定贡献 4
		})
	}
}

func TestEvaluate_TunedThresholdGatesRun(t *testing.T) {
	// 门槛与权重全部来自参数：把超卖线调到 30、强权重调到 6 后，
	// RSI=25 单凭一个信号即可过 5 分门槛。
	cfg := defaultConfig()
	cfg.RSIOversold = 30
	cfg.RSIStrongWeight = 6

	snap := indicator.Snapshot{
		RSI:        25,
		Deviation:  0,
		Trend:      indicator.TrendFlat,
		MACDLine:   1,
		MACDSignal: 2,
		PlusDI:     10,
		MinusDI:    20,
		ADX:        10,
	}
	res := Evaluate(snap, cfg)
	assert.Equal(t, 6, res.BuyScore)
	assert.True(t, res.Reaches(5))
}

func TestEvaluate_ADXNeedsDirection(t *testing.T) {
	// ADX 过线但 +DI 与 -DI 持平时不给任何方向加成。
	snap := indicator.Snapshot{
		RSI:        50,
		Trend:      indicator.TrendFlat,
		MACDLine:   2,
		MACDSignal: 1,
		PlusDI:     20,
		MinusDI:    20,
		ADX:        40,
	}
	res := Evaluate(snap, defaultConfig())
	assert.Equal(t, LabelTrendless, res.Signals[SignalADX])
}

func TestEvaluate_Deterministic(t *testing.T) {
	snap := indicator.Snapshot{
		RSI:        33,
		Deviation:  -5,
		Trend:      indicator.TrendUpward,
		MACDLine:   1.5,
		MACDSignal: 1.2,
		PlusDI:     22,
		MinusDI:    18,
		ADX:        26,
	}
	first := Evaluate(snap, defaultConfig())
	second := Evaluate(snap, defaultConfig())
	assert.Equal(t, first, second)
}

func scoringSnapshotValues() map[string]float64 {
	return map[string]float64{
		params.RSIOversold:        25,
		params.RSIBuySetup:        40,
		params.RSIOverbought:      75,
		params.RSIShortSetup:      60,
		params.RSIStrongWeight:    2,
		params.RSISetupWeight:     1,
		params.DeviationBuyLevel:  -5,
		params.DeviationSellLevel: 5,
		params.DeviationWeight:    2,
		params.TrendWeight:        1,
		params.MACDWeight:         2,
		params.DMIWeight:          2,
		params.ADXTrendLevel:      25,
		params.ADXWeight:          1,
	}
}

func TestConfigFromSnapshot(t *testing.T) {
	snap := params.Snapshot{AsOf: time.Now(), Values: scoringSnapshotValues()}

	cfg, err := ConfigFromSnapshot(snap)
	require.NoError(t, err)
	assert.Equal(t, defaultConfig(), cfg)
}

func TestConfigFromSnapshot_MissingName(t *testing.T) {
	values := scoringSnapshotValues()
	delete(values, params.ADXWeight)
	snap := params.Snapshot{AsOf: time.Now(), Values: values}

	_, err := ConfigFromSnapshot(snap)
	require.Error(t, err)
	assert.Contains(t, err.Error(), params.ADXWeight)
}
