package pipeline

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"kabuto/internal/analysis/indicator"
	"kabuto/internal/analysis/pattern"
	"kabuto/internal/analysis/scoring"
	"kabuto/internal/logger"
	"kabuto/internal/params"
	"kabuto/internal/store/runstore"
)

// draft 是单票从打分到落库之间的中间结果。
type draft struct {
	idx       int
	code      string
	ind       indicator.Snapshot
	score     scoring.Result
	pat       pattern.Result
	gated     bool
	rationale string
	risk      string
	mailed    bool
	name      string // 公司名，门控阶段填充
}

// Run 执行一轮完整分析。返回批次报告；只有配置级失败与落库失败会返回错误。
func (p *Pipeline) Run(ctx context.Context) (Report, error) {
	start := time.Now()
	report := Report{RunID: uuid.NewString(), State: StateStarted, AnalyzedAt: start}
	logger.Infof("分析运行 %s: %s", report.RunID, report.State)

	snap, err := p.store.Current(ctx, start, p.catalog.Snapshot().Names())
	if err != nil {
		return report, &ConfigurationError{Err: err}
	}
	indParams, err := indicator.ParamsFromSnapshot(snap)
	if err != nil {
		return report, &ConfigurationError{Err: err}
	}
	scoreCfg, err := scoring.ConfigFromSnapshot(snap)
	if err != nil {
		return report, &ConfigurationError{Err: err}
	}
	threshold, ok := snap.Int(params.ScoreThreshold)
	if !ok {
		return report, &ConfigurationError{Err: fmt.Errorf("快照缺少 %s", params.ScoreThreshold)}
	}
	report.State = StateParametersResolved
	logger.Infof("分析运行 %s: %s，冻结 %d 个参数", report.RunID, report.State, len(snap.Values))

	tickers := p.universe.Snapshot().Tickers
	report.Total = len(tickers)

	drafts := p.scoreAll(ctx, tickers, start, indParams, scoreCfg, &report)
	report.State = StateScored
	report.Scored = len(drafts)
	logger.Infof("分析运行 %s: %s，成功 %d 票，跳过 %d 票", report.RunID, report.State, report.Scored, len(report.Skips))

	p.gateAll(ctx, drafts, threshold, &report)
	report.State = StateGated
	logger.Infof("分析运行 %s: %s，门控 %d 票，论证 %d 票", report.RunID, report.State, report.Gated, report.WithRationale)

	if err := p.persist(ctx, report.RunID, start, snap, drafts, &report); err != nil {
		return report, fmt.Errorf("保存分析结果失败: %w", err)
	}
	report.State = StatePersisted

	report.State = StateDone
	report.Duration = time.Since(start)
	p.logSummary(report)
	return report, nil
}

// persist 把整轮结果写成一条 run + 批量 result，由存储层保证单事务提交。
func (p *Pipeline) persist(ctx context.Context, runID string, analyzedAt time.Time, snap params.Snapshot, drafts []*draft, report *Report) error {
	run := runstore.RunRecord{
		ID:             runID,
		AnalyzedAt:     analyzedAt,
		ParametersUsed: snap.Clone(),
		TickerTotal:    report.Total,
		TickerSkipped:  len(report.Skips),
	}
	results := make([]runstore.ResultRecord, 0, len(drafts))
	for _, d := range drafts {
		results = append(results, runstore.ResultRecord{
			RunID:         runID,
			Ticker:        d.code,
			Price:         d.ind.Price,
			RSI:           d.ind.RSI,
			DeviationRate: d.ind.Deviation,
			Trend:         string(d.ind.Trend),
			MACDLine:      d.ind.MACDLine,
			MACDSignal:    d.ind.MACDSignal,
			DMIPlus:       d.ind.PlusDI,
			DMIMinus:      d.ind.MinusDI,
			ADX:           d.ind.ADX,
			Volume:        d.ind.Volume,
			Signals:       d.score.Signals,
			BuyScore:      d.score.BuyScore,
			ShortScore:    d.score.ShortScore,
			Rationale:     d.rationale,
			Risk:          d.risk,
		})
	}
	return p.runs.SaveRun(ctx, run, results)
}

func (p *Pipeline) logSummary(r Report) {
	var b strings.Builder
	fmt.Fprintf(&b, "分析运行 %s 完成\n", r.RunID)
	fmt.Fprintf(&b, "状态=%s 耗时=%s\n", r.State, r.Duration.Round(time.Millisecond))
	fmt.Fprintf(&b, "标的=%d 打分=%d 跳过=%d 门控=%d 论证=%d 邮件=%d",
		r.Total, r.Scored, len(r.Skips), r.Gated, r.WithRationale, r.Mailed)
	logger.InfoBlock(b.String())
}
