package params

// 调优参数的规范名。目录文件必须覆盖这里的全部名字，
// 打分与反馈两侧都通过常量引用，避免字符串漂移。
const (
	RSIPeriod          = "rsi_period"
	RSIOversold        = "rsi_oversold_threshold"
	RSIBuySetup        = "rsi_buy_setup_threshold"
	RSIOverbought      = "rsi_overbought_threshold"
	RSIShortSetup      = "rsi_short_setup_threshold"
	RSIStrongWeight    = "rsi_strong_weight"
	RSISetupWeight     = "rsi_setup_weight"
	DeviationPeriod    = "deviation_period"
	DeviationBuyLevel  = "deviation_buy_threshold"
	DeviationSellLevel = "deviation_short_threshold"
	DeviationWeight    = "deviation_weight"
	TrendPeriod        = "trend_period"
	TrendWeight        = "trend_weight"
	MACDFastPeriod     = "macd_fast_period"
	MACDSlowPeriod     = "macd_slow_period"
	MACDSignalPeriod   = "macd_signal_period"
	MACDWeight         = "macd_weight"
	DMIPeriod          = "dmi_period"
	DMIWeight          = "dmi_weight"
	ADXTrendLevel      = "adx_trend_threshold"
	ADXWeight          = "adx_weight"
	ScoreThreshold     = "score_threshold"
	ReevalMinAgeDays   = "reeval_min_age_days"
	ReevalBatchLimit   = "reeval_batch_limit"
	OutcomeTargetPct   = "outcome_target_pct"
)
