package apihttp

import (
	"context"
	"time"

	"kabuto/internal/logger"
	"kabuto/internal/market"
	"kabuto/internal/store/runstore"
)

// resultPayload 是结果行的响应形态，列名与存储层保持一致。
// analyzed_at / parameters_used / info 为查询期附加，不落库。
type resultPayload struct {
	ID            int64             `json:"id"`
	RunID         string            `json:"analysis_run_id"`
	Ticker        string            `json:"ticker"`
	Price         float64           `json:"price"`
	RSI           float64           `json:"rsi"`
	DeviationRate float64           `json:"deviation_rate_25"`
	Trend         string            `json:"trend"`
	MACDLine      float64           `json:"macd_line"`
	MACDSignal    float64           `json:"macd_signal"`
	DMIPlus       float64           `json:"dmi_dmp"`
	DMIMinus      float64           `json:"dmi_dmn"`
	ADX           float64           `json:"adx"`
	Volume        float64           `json:"volume"`
	Signals       map[string]string `json:"signals"`
	BuyScore      int               `json:"buy_score"`
	ShortScore    int               `json:"short_score"`
	Rationale     string            `json:"rationale,omitempty"`
	Risk          string            `json:"risk,omitempty"`
	EvaluatedAt   *time.Time        `json:"evaluated_at,omitempty"`
	Evaluation    *evalPayload      `json:"evaluation,omitempty"`

	AnalyzedAt     *time.Time         `json:"analyzed_at,omitempty"`
	ParametersUsed map[string]float64 `json:"parameters_used,omitempty"`
	Info           map[string]string  `json:"info"`
}

type evalPayload struct {
	Price      float64 `json:"price"`
	OutcomePct float64 `json:"outcome_pct"`
	Side       string  `json:"side"`
	Hit        bool    `json:"hit"`
}

type runPayload struct {
	ID             string             `json:"id"`
	AnalyzedAt     time.Time          `json:"analyzed_at"`
	ParametersUsed map[string]float64 `json:"parameters_used"`
	TickerTotal    int                `json:"ticker_total"`
	TickerSkipped  int                `json:"ticker_skipped"`
}

func newRunPayload(run runstore.RunRecord) runPayload {
	return runPayload{
		ID:             run.ID,
		AnalyzedAt:     run.AnalyzedAt,
		ParametersUsed: run.ParametersUsed,
		TickerTotal:    run.TickerTotal,
		TickerSkipped:  run.TickerSkipped,
	}
}

func newResultPayload(rec runstore.ResultRecord) resultPayload {
	p := resultPayload{
		ID:            rec.ID,
		RunID:         rec.RunID,
		Ticker:        rec.Ticker,
		Price:         rec.Price,
		RSI:           rec.RSI,
		DeviationRate: rec.DeviationRate,
		Trend:         rec.Trend,
		MACDLine:      rec.MACDLine,
		MACDSignal:    rec.MACDSignal,
		DMIPlus:       rec.DMIPlus,
		DMIMinus:      rec.DMIMinus,
		ADX:           rec.ADX,
		Volume:        rec.Volume,
		Signals:       rec.Signals,
		BuyScore:      rec.BuyScore,
		ShortScore:    rec.ShortScore,
		Rationale:     rec.Rationale,
		Risk:          rec.Risk,
		EvaluatedAt:   rec.EvaluatedAt,
	}
	if p.Signals == nil {
		p.Signals = map[string]string{}
	}
	p.Info = map[string]string{}
	if rec.Evaluation != nil {
		p.Evaluation = &evalPayload{
			Price:      rec.Evaluation.Price,
			OutcomePct: rec.Evaluation.OutcomePct,
			Side:       rec.Evaluation.Side,
			Hit:        rec.Evaluation.Hit,
		}
	}
	return p
}

func resultPayloads(records []runstore.ResultRecord) []resultPayload {
	out := make([]resultPayload, 0, len(records))
	for _, rec := range records {
		out = append(out, newResultPayload(rec))
	}
	return out
}

// enrichResults 为结果行附加运行信息与公司基础信息。
// 指数代码与查询失败的行保留空 info，行本身不丢弃。
func (r *Router) enrichResults(ctx context.Context, run runstore.RunRecord, records []runstore.ResultRecord, withInfo bool) []resultPayload {
	out := make([]resultPayload, 0, len(records))
	for _, rec := range records {
		p := newResultPayload(rec)
		at := run.AnalyzedAt
		p.AnalyzedAt = &at
		p.ParametersUsed = run.ParametersUsed
		if withInfo && r.Market != nil && !market.IsIndex(rec.Ticker) {
			infoCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
			info, err := r.Market.CompanyInfo(infoCtx, rec.Ticker)
			cancel()
			if err != nil {
				logger.Warnf("[api] 公司信息查询失败 ticker=%s err=%v", rec.Ticker, err)
			} else {
				p.Info = infoPayload(info)
			}
		}
		out = append(out, p)
	}
	return out
}

func infoPayload(info market.CompanyInfo) map[string]string {
	out := map[string]string{}
	if info.Name != "" {
		out["name"] = info.Name
	}
	if info.NameEnglish != "" {
		out["name_english"] = info.NameEnglish
	}
	if info.Sector != "" {
		out["sector"] = info.Sector
	}
	if info.Market != "" {
		out["market"] = info.Market
	}
	return out
}
