package scoring

import (
	"fmt"
	"strings"

	"kabuto/internal/analysis/indicator"
	"kabuto/internal/params"
)

// 信号键。与既有落库数据保持一致，周期改为可调后名字仍沿用历史写法。
const (
	SignalRSI       = "RSI"
	SignalDeviation = "Divergence_25d"
	SignalTrend     = "MA75_Trend"
	SignalMACD      = "MACD"
	SignalDMI       = "DMI"
	SignalADX       = "ADX"
)

// 信号标签。下游展示与既有消费方依赖这些字面量。
const (
	LabelBuy         = "買い"
	LabelBuySetup    = "買い準備"
	LabelSell        = "売り"
	LabelSellSetup   = "売り準備"
	LabelNeutral     = "中立"
	LabelGoldenCross = "ゴールデンクロス"
	LabelDeadCross   = "デッドクロス"
	LabelStrongUp    = "強い上昇トレンド"
	LabelStrongDown  = "強い下降トレンド"
	LabelTrendless   = "トレンドレス"
)

// Config 是打分决策表：全部阈值与权重取自参数快照，代码里没有魔法数字。
type Config struct {
	RSIOversold     float64
	RSIBuySetup     float64
	RSIOverbought   float64
	RSIShortSetup   float64
	RSIStrongWeight int
	RSISetupWeight  int

	DeviationBuyLevel  float64
	DeviationSellLevel float64
	DeviationWeight    int

	TrendWeight int
	MACDWeight  int
	DMIWeight   int

	ADXTrendLevel float64
	ADXWeight     int
}

// ConfigFromSnapshot 从参数快照提取决策表。缺名直接报错，不补默认值。
func ConfigFromSnapshot(snap params.Snapshot) (Config, error) {
	var missing []string
	floatOf := func(name string) float64 {
		v, ok := snap.Float(name)
		if !ok {
			missing = append(missing, name)
			return 0
		}
		return v
	}
	intOf := func(name string) int {
		v, ok := snap.Int(name)
		if !ok {
			missing = append(missing, name)
			return 0
		}
		return v
	}
	cfg := Config{
		RSIOversold:        floatOf(params.RSIOversold),
		RSIBuySetup:        floatOf(params.RSIBuySetup),
		RSIOverbought:      floatOf(params.RSIOverbought),
		RSIShortSetup:      floatOf(params.RSIShortSetup),
		RSIStrongWeight:    intOf(params.RSIStrongWeight),
		RSISetupWeight:     intOf(params.RSISetupWeight),
		DeviationBuyLevel:  floatOf(params.DeviationBuyLevel),
		DeviationSellLevel: floatOf(params.DeviationSellLevel),
		DeviationWeight:    intOf(params.DeviationWeight),
		TrendWeight:        intOf(params.TrendWeight),
		MACDWeight:         intOf(params.MACDWeight),
		DMIWeight:          intOf(params.DMIWeight),
		ADXTrendLevel:      floatOf(params.ADXTrendLevel),
		ADXWeight:          intOf(params.ADXWeight),
	}
	if len(missing) > 0 {
		return Config{}, fmt.Errorf("scoring config missing from snapshot: %s", strings.Join(missing, ", "))
	}
	return cfg, nil
}

// Result 是单票的打分结论。两个分数独立累积，互不抵扣。
type Result struct {
	BuyScore   int               `json:"buy_score"`
	ShortScore int               `json:"short_score"`
	Signals    map[string]string `json:"signals"`
}

// Dominant 返回占优方向及其分数。买空同分时买方优先。
func (r Result) Dominant() (string, int) {
	if r.ShortScore > r.BuyScore {
		return "short", r.ShortScore
	}
	return "buy", r.BuyScore
}

// Reaches 判断任一方向分数是否达到门槛。
func (r Result) Reaches(threshold int) bool {
	return r.BuyScore >= threshold || r.ShortScore >= threshold
}

// Evaluate 按决策表将指标快照折算成整数分。相同输入恒得相同输出。
func Evaluate(snap indicator.Snapshot, cfg Config) Result {
	res := Result{Signals: make(map[string]string, 6)}

	// RSI：超卖/超买两档，各自带预备区间。
	switch {
	case snap.RSI < cfg.RSIOversold:
		res.Signals[SignalRSI] = LabelBuy
		res.BuyScore += cfg.RSIStrongWeight
	case snap.RSI < cfg.RSIBuySetup:
		res.Signals[SignalRSI] = LabelBuySetup
		res.BuyScore += cfg.RSISetupWeight
	case snap.RSI > cfg.RSIOverbought:
		res.Signals[SignalRSI] = LabelSell
		res.ShortScore += cfg.RSIStrongWeight
	case snap.RSI >= cfg.RSIShortSetup:
		res.Signals[SignalRSI] = LabelSellSetup
		res.ShortScore += cfg.RSISetupWeight
	default:
		res.Signals[SignalRSI] = LabelNeutral
	}

	// 移动平均かい離率：过度下偏视为反弹候选，过度上偏视为回落候选。
	switch {
	case snap.Deviation <= cfg.DeviationBuyLevel:
		res.Signals[SignalDeviation] = LabelBuy
		res.BuyScore += cfg.DeviationWeight
	case snap.Deviation >= cfg.DeviationSellLevel:
		res.Signals[SignalDeviation] = LabelSell
		res.ShortScore += cfg.DeviationWeight
	default:
		res.Signals[SignalDeviation] = LabelNeutral
	}

	// 长期均线趋势方向。
	res.Signals[SignalTrend] = string(snap.Trend)
	switch snap.Trend {
	case indicator.TrendUpward:
		res.BuyScore += cfg.TrendWeight
	case indicator.TrendDownward:
		res.ShortScore += cfg.TrendWeight
	}

	// MACD：线在信号线上方为多，否则为空。
	if snap.MACDLine > snap.MACDSignal {
		res.Signals[SignalMACD] = LabelBuy
		res.BuyScore += cfg.MACDWeight
	} else {
		res.Signals[SignalMACD] = LabelSell
		res.ShortScore += cfg.MACDWeight
	}

	// DMI：+DI 与 -DI 的相对位置。
	if snap.PlusDI > snap.MinusDI {
		res.Signals[SignalDMI] = LabelGoldenCross
		res.BuyScore += cfg.DMIWeight
	} else {
		res.Signals[SignalDMI] = LabelDeadCross
		res.ShortScore += cfg.DMIWeight
	}

	// ADX：只有趋势强度过线时才给方向加成。
	switch {
	case snap.ADX > cfg.ADXTrendLevel && snap.PlusDI > snap.MinusDI:
		res.Signals[SignalADX] = LabelStrongUp
		res.BuyScore += cfg.ADXWeight
	case snap.ADX > cfg.ADXTrendLevel && snap.PlusDI < snap.MinusDI:
		res.Signals[SignalADX] = LabelStrongDown
		res.ShortScore += cfg.ADXWeight
	default:
		res.Signals[SignalADX] = LabelTrendless
	}

	return res
}
