package app

import (
	"context"
	"fmt"
	"time"

	"kabuto/internal/config"
	"kabuto/internal/feedback"
	"kabuto/internal/logger"
	"kabuto/internal/market"
	"kabuto/internal/pipeline"
	"kabuto/internal/scheduler"
	"kabuto/internal/store/paramstore"
	"kabuto/internal/store/runstore"
	apihttp "kabuto/internal/transport/http/api"

	"golang.org/x/sync/errgroup"
)

// App 负责应用级编排：初始化依赖→启动 HTTP 服务与两条调度循环。
type App struct {
	cfg     *config.Config
	pipe    *pipeline.Pipeline
	loop    *feedback.Loop
	httpSrv *apihttp.Server

	paramDB *paramstore.Store
	runDB   *runstore.Store
	market  market.Source

	// rootCtx 供后台任务使用：HTTP 触发的运行不能挂在请求 ctx 上，
	// 否则响应返回即被取消。Run 启动前替换为进程级 ctx。
	rootCtx context.Context

	analysisEvery, analysisOffset time.Duration
	reevalEvery, reevalOffset     time.Duration

	Summary *StartupSummary
}

// NewApp 根据配置构建应用对象（不启动）。
func NewApp(cfg *config.Config) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	logger.SetLevel(cfg.App.LogLevel)
	return NewAppBuilder(cfg).Build(context.Background())
}

// Run 启动 HTTP 服务与调度循环，直到 ctx 取消或出现错误。
func (a *App) Run(ctx context.Context) error {
	if a == nil || a.cfg == nil {
		return fmt.Errorf("app not initialized")
	}
	if a.Summary != nil {
		a.Summary.Print()
	}

	group, ctx := errgroup.WithContext(ctx)
	a.rootCtx = ctx

	if a.httpSrv != nil {
		group.Go(func() error {
			logger.Infof("HTTP 服务监听 %s", a.httpSrv.Addr())
			if err := a.httpSrv.Start(ctx); err != nil {
				return fmt.Errorf("http server error: %w", err)
			}
			return nil
		})
	}

	if a.cfg.Schedule.Enabled {
		analysisSched := scheduler.NewAlignedScheduler(ctx, a.analysisEvery, a.analysisOffset)
		analysisSched.Name = "analysis"
		analysisSched.RunImmediately = a.cfg.Schedule.RunImmediately
		group.Go(func() error {
			analysisSched.Start(a.runAnalysis)
			return nil
		})

		reevalSched := scheduler.NewAlignedOnceScheduler(ctx, 24*time.Hour, a.reevalEvery, a.reevalOffset)
		reevalSched.Name = "reeval"
		reevalSched.RunImmediately = a.cfg.Schedule.RunImmediately
		group.Go(func() error {
			reevalSched.Start(a.runReevaluation)
			return nil
		})
	}

	err := group.Wait()
	a.Close()
	return err
}

// Close 释放存储与行情连接。
func (a *App) Close() {
	if a == nil {
		return
	}
	if a.market != nil {
		_ = a.market.Close()
	}
	if a.runDB != nil {
		_ = a.runDB.Close()
	}
	if a.paramDB != nil {
		_ = a.paramDB.Close()
	}
}

// runAnalysis 执行一轮分析。调度器与 HTTP 触发共用此入口。
func (a *App) runAnalysis() {
	if _, err := a.pipe.Run(a.rootCtx); err != nil {
		logger.Errorf("分析运行失败: %v", err)
	}
}

// runReevaluation 执行一轮反馈复盘。
func (a *App) runReevaluation() {
	if _, err := a.loop.Run(a.rootCtx); err != nil {
		logger.Errorf("反馈复盘失败: %v", err)
	}
}
