package runstore

import (
	"gorm.io/datatypes"
)

// analysisRunModel 对应 analysis_runs 表：一次流水线运行的不可变快照头。
type analysisRunModel struct {
	ID             string         `gorm:"column:id;primaryKey"`
	AnalyzedAt     int64          `gorm:"column:analyzed_at;index"`
	ParametersUsed datatypes.JSON `gorm:"column:parameters_used;type:TEXT"`
	TickerTotal    int            `gorm:"column:ticker_total"`
	TickerSkipped  int            `gorm:"column:ticker_skipped"`
	CreatedAtUnix  int64          `gorm:"column:created_at"`
}

func (analysisRunModel) TableName() string { return "analysis_runs" }

// analysisResultModel 对应 analysis_results 表：单只股票在一次运行里的完整结果行。
// 列名沿用历史库的命名（deviation_rate_25、dmi_dmp 等），便于旧数据直接迁移。
type analysisResultModel struct {
	ID              int64          `gorm:"column:id;primaryKey"`
	RunID           string         `gorm:"column:analysis_run_id;index"`
	Ticker          string         `gorm:"column:ticker;index"`
	Price           float64        `gorm:"column:price"`
	RSI             float64        `gorm:"column:rsi"`
	DeviationRate   float64        `gorm:"column:deviation_rate_25"`
	Trend           string         `gorm:"column:trend"`
	MACDLine        float64        `gorm:"column:macd_line"`
	MACDSignal      float64        `gorm:"column:macd_signal"`
	DMIPlus         float64        `gorm:"column:dmi_dmp"`
	DMIMinus        float64        `gorm:"column:dmi_dmn"`
	ADX             float64        `gorm:"column:adx"`
	Volume          float64        `gorm:"column:volume"`
	Signals         datatypes.JSON `gorm:"column:signals;type:TEXT"`
	BuyScore        int            `gorm:"column:buy_score;index"`
	ShortScore      int            `gorm:"column:short_score;index"`
	Rationale       string         `gorm:"column:rationale"`
	Risk            string         `gorm:"column:risk"`
	EvaluatedAtUnix *int64         `gorm:"column:evaluated_at;index"`
	Evaluation      datatypes.JSON `gorm:"column:evaluation;type:TEXT"`
	CreatedAtUnix   int64          `gorm:"column:created_at"`
}

func (analysisResultModel) TableName() string { return "analysis_results" }
