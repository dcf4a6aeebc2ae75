package pipeline

import (
	"context"
	"fmt"
	"strings"
	"time"

	"kabuto/internal/ai"
	"kabuto/internal/gateway/news"
	"kabuto/internal/market"
	"kabuto/internal/params"
	"kabuto/internal/store/runstore"
	"kabuto/internal/universe"
)

// 中文说明：
// DecisionPipeline：一次定时分析的全流程编排。
// 每轮运行走固定状态机 STARTED → PARAMETERS_RESOLVED → SCORED → GATED →
// PERSISTED → DONE。参数解析失败整轮中止；单票失败只记入批次报告。

// State 是一轮运行在状态机中的位置，用于日志与报告。
type State string

const (
	StateStarted            State = "STARTED"
	StateParametersResolved State = "PARAMETERS_RESOLVED"
	StateScored             State = "SCORED"
	StateGated              State = "GATED"
	StatePersisted          State = "PERSISTED"
	StateDone               State = "DONE"
)

// ConfigurationError 表示运行前置条件不满足（参数解析整体失败）。
// 这是唯一会中止整轮的错误类别。
type ConfigurationError struct {
	Err error
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("pipeline: configuration error: %v", e.Err)
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

// NewsProvider 检索个股相关新闻。空列表是合法结果，与检索失败严格区分。
type NewsProvider interface {
	Recent(ctx context.Context, query string) ([]news.Article, error)
}

// Advisor 生成论证与风险分类。
type Advisor interface {
	Enabled() bool
	Rationale(ctx context.Context, input ai.RationaleInput) (ai.RationaleResult, error)
}

// Notifier 发送候选通知。失败只记日志，永不向上传播。
type Notifier interface {
	Send(subject, body string) error
}

// RunStore 持久化一轮分析：run 行与全部 result 行在一个事务里落库。
type RunStore interface {
	SaveRun(ctx context.Context, run runstore.RunRecord, results []runstore.ResultRecord) error
}

// Skip 记录一只被跳过的股票及原因。
type Skip struct {
	Ticker string
	Reason string
}

// Report 是一轮运行的批次报告。单票失败以跳过记录收集，不中断整轮。
type Report struct {
	RunID         string
	State         State
	AnalyzedAt    time.Time
	Total         int
	Scored        int
	Gated         int
	WithRationale int
	Mailed        int
	Skips         []Skip
	Duration      time.Duration
}

// Config 是管线的全部依赖与运行配置，由装配层显式传入。
type Config struct {
	Store    params.Store
	Catalog  *params.Catalog
	Universe *universe.Universe
	Market   market.Source
	News     NewsProvider
	Advisor  Advisor
	Mailer   Notifier
	Runs     RunStore

	LookbackDays int
	Concurrency  int
	TargetTime   string // "15:04" 格式，收盘快照时刻
	Timezone     string
}

type Pipeline struct {
	store    params.Store
	catalog  *params.Catalog
	universe *universe.Universe
	market   market.Source
	news     NewsProvider
	advisor  Advisor
	mailer   Notifier
	runs     RunStore

	lookbackDays int
	concurrency  int
	targetHour   int
	targetMin    int
	loc          *time.Location
}

func New(cfg Config) (*Pipeline, error) {
	switch {
	case cfg.Store == nil:
		return nil, fmt.Errorf("pipeline 需要参数存储")
	case cfg.Catalog == nil:
		return nil, fmt.Errorf("pipeline 需要参数目录")
	case cfg.Universe == nil:
		return nil, fmt.Errorf("pipeline 需要股票清单")
	case cfg.Market == nil:
		return nil, fmt.Errorf("pipeline 需要行情数据源")
	case cfg.Runs == nil:
		return nil, fmt.Errorf("pipeline 需要运行存储")
	}

	tz := strings.TrimSpace(cfg.Timezone)
	if tz == "" {
		tz = "Asia/Tokyo"
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("加载时区 %s 失败: %w", tz, err)
	}

	target := strings.TrimSpace(cfg.TargetTime)
	if target == "" {
		target = "15:00"
	}
	clock, err := time.Parse("15:04", target)
	if err != nil {
		return nil, fmt.Errorf("收盘快照时刻 %q 无效: %w", cfg.TargetTime, err)
	}

	lookback := cfg.LookbackDays
	if lookback <= 0 {
		lookback = 150
	}
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 4
	}

	return &Pipeline{
		store:        cfg.Store,
		catalog:      cfg.Catalog,
		universe:     cfg.Universe,
		market:       cfg.Market,
		news:         cfg.News,
		advisor:      cfg.Advisor,
		mailer:       cfg.Mailer,
		runs:         cfg.Runs,
		lookbackDays: lookback,
		concurrency:  concurrency,
		targetHour:   clock.Hour(),
		targetMin:    clock.Minute(),
		loc:          loc,
	}, nil
}

// targetAt 返回 asOf 当天的收盘快照时刻（管线所在时区）。
func (p *Pipeline) targetAt(asOf time.Time) time.Time {
	local := asOf.In(p.loc)
	return time.Date(local.Year(), local.Month(), local.Day(), p.targetHour, p.targetMin, 0, 0, p.loc)
}
