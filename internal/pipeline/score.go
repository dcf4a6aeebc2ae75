package pipeline

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"kabuto/internal/analysis/indicator"
	"kabuto/internal/analysis/pattern"
	"kabuto/internal/analysis/scoring"
	"kabuto/internal/logger"
	"kabuto/internal/market"
)

// scoreAll 并发给全部标的打分。worker 永远返回 nil：单票失败写进报告
// 的跳过列表，不会让 errgroup 取消其余标的。
func (p *Pipeline) scoreAll(ctx context.Context, tickers []string, asOf time.Time, ip indicator.Params, sc scoring.Config, report *Report) []*draft {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.concurrency)

	var mu sync.Mutex
	drafts := make([]*draft, 0, len(tickers))
	for i, code := range tickers {
		i, code := i, code
		g.Go(func() error {
			d, skip := p.scoreTicker(gctx, i, code, asOf, ip, sc)
			mu.Lock()
			defer mu.Unlock()
			if skip != "" {
				report.Skips = append(report.Skips, Skip{Ticker: code, Reason: skip})
				return nil
			}
			drafts = append(drafts, d)
			return nil
		})
	}
	_ = g.Wait()

	// 并发完成顺序不确定，恢复清单文件里的顺序
	sort.Slice(drafts, func(a, b int) bool { return drafts[a].idx < drafts[b].idx })
	return drafts
}

// scoreTicker 处理单票：取日线、替换收盘快照时刻价格、算指标、打分。
// 第二个返回值非空表示跳过及原因。
func (p *Pipeline) scoreTicker(ctx context.Context, idx int, code string, asOf time.Time, ip indicator.Params, sc scoring.Config) (*draft, string) {
	from := asOf.AddDate(0, 0, -p.lookbackDays)
	bars, err := p.market.FetchDailyBars(ctx, code, from, asOf)
	if err != nil {
		if market.IsSkippable(err) {
			logger.Warnf("跳过 %s: %v", code, err)
		} else {
			logger.Errorf("跳过 %s: %v", code, err)
		}
		return nil, fmt.Sprintf("取数失败: %v", err)
	}

	minutes, err := p.market.FetchIntradayBars(ctx, code, asOf)
	if err != nil {
		// 分钟线拿不到不致命，维持日线收盘价
		logger.Debugf("%s 分钟线不可用: %v", code, err)
		minutes = nil
	}
	bars = patchClose(bars, minutes, p.targetAt(asOf))

	snap, err := indicator.Compute(code, bars, ip)
	if err != nil {
		logger.Warnf("跳过 %s: %v", code, err)
		return nil, fmt.Sprintf("指标计算失败: %v", err)
	}
	return &draft{
		idx:   idx,
		code:  code,
		ind:   snap,
		score: scoring.Evaluate(snap, sc),
		pat:   pattern.Analyze(bars),
	}, ""
}

// patchClose 把最后一根日线的收盘价替换为 target 时刻的分钟收盘价。
// 恰好该时刻的分钟线优先，否则取其之前最近一根；当天没有分钟线则维持原价。
func patchClose(daily, minutes []market.Bar, target time.Time) []market.Bar {
	if len(daily) == 0 || len(minutes) == 0 {
		return daily
	}
	price := 0.0
	found := false
	for _, m := range minutes {
		if m.Date.After(target) {
			break
		}
		price = m.Close
		found = true
	}
	if !found {
		return daily
	}
	out := make([]market.Bar, len(daily))
	copy(out, daily)
	out[len(out)-1].Close = price
	return out
}
