package feedback

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"kabuto/internal/ai"
	"kabuto/internal/logger"
	"kabuto/internal/market"
	"kabuto/internal/params"
	"kabuto/internal/store/runstore"
)

// 中文说明：
// 反馈回路把"过去的判断"和"之后的实际走势"对账：
// 到期未复盘的决策 → 用现价算实现损益 → 请模型提调参建议 → 按目录边界写入新参数版本。
// 参数存储只追加，同日同名保留先写入的值；决策靠 evaluated_at 盖章保证幂等。

// ConfigurationError 表示回路启动所需的参数解析失败，本轮中止，未做任何复盘。
type ConfigurationError struct {
	Err error
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("feedback: configuration error: %v", e.Err)
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

// QuoteSource 是回路需要的行情子集。
type QuoteSource interface {
	LatestQuote(ctx context.Context, code string) (market.Quote, error)
}

// Advisor 是调参建议的模型端口。
type Advisor interface {
	Enabled() bool
	SuggestTuning(ctx context.Context, decision ai.TuningDecision, outcome ai.TuningOutcome, states []ai.ParamState) ([]ai.TuningAdjustment, error)
}

// ResultStore 提供待复盘决策的读取与盖章。
type ResultStore interface {
	MatureUnevaluated(ctx context.Context, cutoff time.Time, limit int) ([]runstore.ResultRecord, error)
	StampEvaluated(ctx context.Context, resultID int64, eval runstore.Evaluation, at time.Time) error
}

// Skip 记录一条被跳过的决策及原因。
type Skip struct {
	ResultID int64
	Ticker   string
	Reason   string
}

// Report 是一次回路执行的批次报告。
type Report struct {
	Cutoff     time.Time
	Total      int
	Evaluated  int
	Hits       int
	Written    int
	Conflicted int
	Rejected   int
	Skips      []Skip
	Duration   time.Duration
}

// Config 列出回路的全部依赖与可调项。
type Config struct {
	Store   params.Store
	Catalog *params.Catalog
	Results ResultStore
	Quotes  QuoteSource
	Advisor Advisor

	// Concurrency 限制并发复盘的决策数，默认 2。
	Concurrency int
	// Timezone 决定"今天"落在哪个日历日，默认 Asia/Tokyo。
	Timezone string
}

// Loop 实现对历史判断的复盘与参数回写。
type Loop struct {
	store       params.Store
	catalog     *params.Catalog
	results     ResultStore
	quotes      QuoteSource
	advisor     Advisor
	concurrency int
	loc         *time.Location
}

// New 校验依赖并构造回路。
func New(cfg Config) (*Loop, error) {
	switch {
	case cfg.Store == nil:
		return nil, fmt.Errorf("feedback 需要参数存储")
	case cfg.Catalog == nil:
		return nil, fmt.Errorf("feedback 需要参数目录")
	case cfg.Results == nil:
		return nil, fmt.Errorf("feedback 需要结果存储")
	case cfg.Quotes == nil:
		return nil, fmt.Errorf("feedback 需要行情来源")
	}
	tz := cfg.Timezone
	if tz == "" {
		tz = "Asia/Tokyo"
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("无法加载时区 %s: %w", tz, err)
	}
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 2
	}
	return &Loop{
		store:       cfg.Store,
		catalog:     cfg.Catalog,
		results:     cfg.Results,
		quotes:      cfg.Quotes,
		advisor:     cfg.Advisor,
		concurrency: concurrency,
		loc:         loc,
	}, nil
}

// Run 执行一轮复盘。返回批次报告；只有配置级失败与选取失败会返回错误，
// 单条决策的失败进入报告的跳过列表。
func (l *Loop) Run(ctx context.Context) (Report, error) {
	start := time.Now()
	report := Report{}

	catSnap := l.catalog.Snapshot()
	snap, err := l.store.Current(ctx, start, catSnap.Names())
	if err != nil {
		return report, &ConfigurationError{Err: err}
	}
	minAge, ok1 := snap.Int(params.ReevalMinAgeDays)
	limit, ok2 := snap.Int(params.ReevalBatchLimit)
	target, ok3 := snap.Float(params.OutcomeTargetPct)
	if !ok1 || !ok2 || !ok3 {
		return report, &ConfigurationError{Err: fmt.Errorf("快照缺少反馈回路参数")}
	}

	report.Cutoff = start.AddDate(0, 0, -minAge)
	records, err := l.results.MatureUnevaluated(ctx, report.Cutoff, limit)
	if err != nil {
		return report, fmt.Errorf("查询待复盘决策失败: %w", err)
	}
	report.Total = len(records)
	if len(records) == 0 {
		logger.Infof("反馈回路: 没有到期未复盘的决策（截止 %s）", report.Cutoff.Format("2006-01-02"))
		report.Duration = time.Since(start)
		return report, nil
	}
	logger.Infof("反馈回路: %d 条决策到期待复盘（截止 %s）", len(records), report.Cutoff.Format("2006-01-02"))

	states := buildStates(catSnap, snap)
	today := start.In(l.loc)

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(l.concurrency)
	for _, rec := range records {
		rec := rec
		g.Go(func() error {
			c, skip := l.evaluateOne(gctx, rec, target, states, catSnap, today)
			mu.Lock()
			defer mu.Unlock()
			if skip != "" {
				report.Skips = append(report.Skips, Skip{ResultID: rec.ID, Ticker: rec.Ticker, Reason: skip})
			}
			if c.evaluated {
				report.Evaluated++
				if c.hit {
					report.Hits++
				}
			}
			report.Written += c.written
			report.Conflicted += c.conflicted
			report.Rejected += c.rejected
			return nil
		})
	}
	_ = g.Wait()

	report.Duration = time.Since(start)
	l.logSummary(report)
	return report, nil
}

func (l *Loop) logSummary(r Report) {
	var b strings.Builder
	b.WriteString("反馈回路完成\n")
	fmt.Fprintf(&b, "耗时=%s 截止=%s\n", r.Duration.Round(time.Millisecond), r.Cutoff.Format("2006-01-02"))
	fmt.Fprintf(&b, "到期=%d 复盘=%d 达标=%d 写入=%d 冲突=%d 拒绝=%d 跳过=%d",
		r.Total, r.Evaluated, r.Hits, r.Written, r.Conflicted, r.Rejected, len(r.Skips))
	logger.InfoBlock(b.String())
}
