package app

import (
	"context"
	"fmt"
	"time"

	"kabuto/internal/ai"
	"kabuto/internal/config"
	"kabuto/internal/feedback"
	"kabuto/internal/gateway/jquants"
	"kabuto/internal/gateway/news"
	"kabuto/internal/gateway/notifier"
	"kabuto/internal/gateway/provider"
	"kabuto/internal/logger"
	"kabuto/internal/market"
	"kabuto/internal/params"
	"kabuto/internal/pipeline"
	"kabuto/internal/scheduler"
	"kabuto/internal/store/paramstore"
	"kabuto/internal/store/runstore"
	apihttp "kabuto/internal/transport/http/api"
	"kabuto/internal/universe"
)

// AppBuilder 逐步装配应用依赖。外部 IO（行情/AI/邮件）可在测试里替换。
type AppBuilder struct {
	cfg *config.Config

	marketFn  func(config.MarketSource) market.Source
	advisorFn func(config.AIConfig) *ai.Advisor
	mailerFn  func(config.MailConfig) *notifier.Mailer
}

type AppBuilderOption func(*AppBuilder)

// WithMarketSource 替换行情数据源（测试用）。
func WithMarketSource(src market.Source) AppBuilderOption {
	return func(b *AppBuilder) {
		b.marketFn = func(config.MarketSource) market.Source { return src }
	}
}

// WithAdvisor 替换 AI 顾问（测试用）。
func WithAdvisor(adv *ai.Advisor) AppBuilderOption {
	return func(b *AppBuilder) {
		b.advisorFn = func(config.AIConfig) *ai.Advisor { return adv }
	}
}

func NewAppBuilder(cfg *config.Config, opts ...AppBuilderOption) *AppBuilder {
	b := &AppBuilder{
		cfg:       cfg,
		marketFn:  buildMarketSource,
		advisorFn: buildAdvisor,
		mailerFn:  buildMailer,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(b)
		}
	}
	return b
}

func buildMarketSource(src config.MarketSource) market.Source {
	return jquants.New(jquants.Config{
		BaseURL:        src.RESTBaseURL,
		APIKey:         src.APIKey,
		TimeoutSeconds: src.TimeoutSeconds,
		RatePerMinute:  src.RatePerMinute,
	})
}

func buildAdvisor(cfg config.AIConfig) *ai.Advisor {
	p := provider.BuildProvider(provider.ModelCfg{
		Provider:   cfg.Provider,
		APIURL:     cfg.APIURL,
		APIKey:     cfg.APIKey,
		Model:      cfg.Model,
		Enabled:    cfg.Enabled,
		Headers:    cfg.Headers,
		ExpectJSON: cfg.ExpectJSON,
	}, time.Duration(cfg.TimeoutSeconds)*time.Second)
	return ai.New(p, cfg.TimeoutSeconds)
}

func buildMailer(cfg config.MailConfig) *notifier.Mailer {
	if !cfg.Enabled {
		return nil
	}
	m := notifier.NewMailer(cfg.Host, cfg.Port, cfg.Username, cfg.Password, cfg.From, cfg.To)
	m.SubjectPrefix = cfg.SubjectPrefix
	return m
}

func (b *AppBuilder) Build(ctx context.Context) (*App, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if b.cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	cfg := b.cfg
	logger.SetLevel(cfg.App.LogLevel)

	paramDB, err := paramstore.Open(cfg.Store.ParamsPath)
	if err != nil {
		return nil, fmt.Errorf("初始化参数存储失败: %w", err)
	}
	runDB, err := runstore.Open(cfg.Store.RunsPath)
	if err != nil {
		return nil, fmt.Errorf("初始化结果存储失败: %w", err)
	}

	catalog, err := params.NewCatalog(cfg.Params.CatalogPath, true)
	if err != nil {
		return nil, fmt.Errorf("加载参数目录失败: %w", err)
	}
	catSnap := catalog.Snapshot()
	logger.Infof("✓ 参数目录就绪: %d 个参数 (epoch=%s)", len(catSnap.Defs), catSnap.Epoch.Format("2006-01-02"))

	seeded := 0
	if cfg.Params.Seed {
		seeded, err = paramDB.Seed(ctx, catSnap.Definitions(), catSnap.Epoch)
		if err != nil {
			return nil, fmt.Errorf("写入参数种子失败: %w", err)
		}
		if seeded > 0 {
			logger.Infof("✓ 参数种子写入 %d 条 (epoch=%s)", seeded, catSnap.Epoch.Format("2006-01-02"))
		}
		// 目录热更新后为新增参数补种子，保证下一轮快照解析不缺参
		catalog.Subscribe(func(snap params.CatalogSnapshot) {
			n, err := paramDB.Seed(context.Background(), snap.Definitions(), snap.Epoch)
			if err != nil {
				logger.Errorf("目录更新后补写种子失败: %v", err)
				return
			}
			if n > 0 {
				logger.Infof("目录更新，补写参数种子 %d 条", n)
			}
		})
	}

	uni, err := universe.Load(cfg.Universe.Path, cfg.Universe.Watch)
	if err != nil {
		return nil, fmt.Errorf("加载股票清单失败: %w", err)
	}
	uniSnap := uni.Snapshot()
	logger.Infof("✓ 已加载 %d 只标的: %v", len(uniSnap.Tickers), uniSnap.Tickers)

	activeSrc := cfg.Market.ResolveActiveSource()
	marketSrc := b.marketFn(activeSrc)
	if marketSrc == nil {
		return nil, fmt.Errorf("行情数据源 %q 不可用", activeSrc.Name)
	}
	logger.Infof("✓ 行情数据源就绪: %s", activeSrc.Name)

	advisor := b.advisorFn(cfg.AI)
	if advisor.Enabled() {
		logger.Infof("✓ AI 审查已启用: %s", cfg.AI.Model)
	} else {
		logger.Warnf("AI 审查未启用，达到门槛的候选只保留分数")
	}

	var newsProvider pipeline.NewsProvider
	if cfg.News.Enabled {
		newsProvider = news.New(news.Config{
			BaseURL:        cfg.News.BaseURL,
			APIKey:         cfg.News.APIKey,
			TimeoutSeconds: cfg.News.TimeoutSeconds,
			MaxItems:       cfg.News.MaxItems,
		})
		logger.Infof("✓ 新闻检索已启用")
	}

	var mailer pipeline.Notifier
	if m := b.mailerFn(cfg.Notify.Mail); m != nil {
		mailer = m
		logger.Infof("✓ 邮件通知已启用: %d 个收件人", len(cfg.Notify.Mail.To))
	}

	pipe, err := pipeline.New(pipeline.Config{
		Store:        paramDB,
		Catalog:      catalog,
		Universe:     uni,
		Market:       marketSrc,
		News:         newsProvider,
		Advisor:      advisor,
		Mailer:       mailer,
		Runs:         runDB,
		LookbackDays: cfg.Analysis.LookbackDays,
		Concurrency:  cfg.Analysis.Concurrency,
		TargetTime:   cfg.Analysis.TargetTime,
		Timezone:     cfg.Analysis.Timezone,
	})
	if err != nil {
		return nil, fmt.Errorf("装配分析管线失败: %w", err)
	}

	loop, err := feedback.New(feedback.Config{
		Store:       paramDB,
		Catalog:     catalog,
		Results:     runDB,
		Quotes:      marketSrc,
		Advisor:     advisor,
		Concurrency: cfg.Analysis.Concurrency,
		Timezone:    cfg.Analysis.Timezone,
	})
	if err != nil {
		return nil, fmt.Errorf("装配反馈回路失败: %w", err)
	}

	a := &App{
		cfg:     cfg,
		rootCtx: context.Background(),
		pipe:    pipe,
		loop:    loop,
		paramDB: paramDB,
		runDB:   runDB,
		market:  marketSrc,
	}

	router := &apihttp.Router{
		Runs:         runDB,
		Params:       paramDB,
		Catalog:      catalog,
		Market:       marketSrc,
		OnAnalyze:    a.runAnalysis,
		OnReevaluate: a.runReevaluation,
	}
	httpSrv, err := apihttp.NewServer(apihttp.ServerConfig{Addr: cfg.App.HTTPAddr, Router: router})
	if err != nil {
		return nil, fmt.Errorf("装配 HTTP 服务失败: %w", err)
	}
	a.httpSrv = httpSrv

	if cfg.Schedule.Enabled {
		a.analysisEvery, a.analysisOffset, err = parseCadence("analysis", cfg.Schedule.AnalysisInterval, cfg.Schedule.AnalysisOffset)
		if err != nil {
			return nil, err
		}
		a.reevalEvery, a.reevalOffset, err = parseCadence("reeval", cfg.Schedule.ReevalInterval, cfg.Schedule.ReevalOffset)
		if err != nil {
			return nil, err
		}
	}

	a.Summary = &StartupSummary{
		Universe: UniverseSummary{
			Path:    cfg.Universe.Path,
			Tickers: uniSnap.Tickers,
			Indexes: indexTickers(uniSnap.Tickers),
		},
		Catalog: CatalogSummary{
			Path:   cfg.Params.CatalogPath,
			Epoch:  catSnap.Epoch.Format("2006-01-02"),
			Params: len(catSnap.Defs),
			Seeded: seeded,
		},
		Stores: StoreSummary{
			ParamsPath: cfg.Store.ParamsPath,
			RunsPath:   cfg.Store.RunsPath,
		},
		Gateways: GatewaySummary{
			MarketSource: activeSrc.Name,
			AIEnabled:    advisor.Enabled(),
			AIModel:      cfg.AI.Model,
			NewsEnabled:  cfg.News.Enabled,
			MailEnabled:  mailer != nil,
			Recipients:   len(cfg.Notify.Mail.To),
		},
		Schedule: ScheduleSummary{
			Enabled:          cfg.Schedule.Enabled,
			AnalysisInterval: cfg.Schedule.AnalysisInterval,
			AnalysisOffset:   cfg.Schedule.AnalysisOffset,
			ReevalInterval:   cfg.Schedule.ReevalInterval,
			ReevalOffset:     cfg.Schedule.ReevalOffset,
			RunImmediately:   cfg.Schedule.RunImmediately,
		},
	}
	return a, nil
}

func parseCadence(name, interval, offset string) (time.Duration, time.Duration, error) {
	every, ok := scheduler.ParseIntervalDuration(interval)
	if !ok {
		return 0, 0, fmt.Errorf("schedule.%s_interval 无效: %q", name, interval)
	}
	off, ok := scheduler.ParseOffsetDuration(offset)
	if !ok {
		return 0, 0, fmt.Errorf("schedule.%s_offset 无效: %q", name, offset)
	}
	return every, off, nil
}

func indexTickers(tickers []string) []string {
	out := make([]string, 0, 1)
	for _, t := range tickers {
		if market.IsIndex(t) {
			out = append(out, t)
		}
	}
	return out
}
