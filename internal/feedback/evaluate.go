package feedback

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"kabuto/internal/ai"
	"kabuto/internal/analysis/scoring"
	"kabuto/internal/logger"
	"kabuto/internal/market"
	"kabuto/internal/params"
	"kabuto/internal/store/runstore"
)

// evalCounters 汇总单条决策复盘的产出。
type evalCounters struct {
	evaluated  bool
	hit        bool
	written    int
	conflicted int
	rejected   int
}

// evaluateOne 复盘一条决策：现价 → 实现损益 → 调参建议 → 盖章 → 落库建议。
// 第二个返回值非空表示跳过及原因。盖章先于建议落库：只有抢到盖章的执行
// 才会写参数，重复执行不会对同一决策调参两次。
func (l *Loop) evaluateOne(ctx context.Context, rec runstore.ResultRecord, target float64, states []ai.ParamState, cat params.CatalogSnapshot, today time.Time) (evalCounters, string) {
	if rec.Price <= 0 {
		logger.Errorf("复盘 %s(#%d): 入场价 %v 无效", rec.Ticker, rec.ID, rec.Price)
		return evalCounters{}, "入场价无效"
	}
	quote, err := l.quotes.LatestQuote(ctx, rec.Ticker)
	if err != nil {
		if market.IsSkippable(err) {
			logger.Warnf("复盘 %s(#%d): 取现价失败: %v", rec.Ticker, rec.ID, err)
		} else {
			logger.Errorf("复盘 %s(#%d): 取现价失败: %v", rec.Ticker, rec.ID, err)
		}
		return evalCounters{}, fmt.Sprintf("取现价失败: %v", err)
	}

	side, _ := scoring.Result{BuyScore: rec.BuyScore, ShortScore: rec.ShortScore}.Dominant()
	pct := outcomePct(side, rec.Price, quote.Price)
	outPct, _ := pct.Float64()
	hit := pct.GreaterThanOrEqual(decimal.NewFromFloat(target))
	hitLabel := "未达标"
	if hit {
		hitLabel = "达标"
	}
	logger.Infof("复盘 %s(#%d): %s 入场 %.2f 现价 %.2f 实现 %+.2f%% 目标 %.1f%% %s",
		rec.Ticker, rec.ID, side, rec.Price, quote.Price, outPct, target, hitLabel)

	var adjustments []ai.TuningAdjustment
	if l.advisor != nil && l.advisor.Enabled() {
		adjustments, err = l.advisor.SuggestTuning(ctx,
			ai.TuningDecision{
				Ticker:     rec.Ticker,
				AnalyzedAt: rec.AnalyzedAt,
				Side:       side,
				BuyScore:   rec.BuyScore,
				ShortScore: rec.ShortScore,
				EntryPrice: rec.Price,
				Signals:    rec.Signals,
			},
			ai.TuningOutcome{CurrentPrice: quote.Price, OutcomePct: outPct, TargetPct: target, Hit: hit},
			states)
		if err != nil {
			// 不盖章，下一轮重试
			logger.Warnf("复盘 %s(#%d): 调参建议失败: %v", rec.Ticker, rec.ID, err)
			return evalCounters{}, fmt.Sprintf("调参建议失败: %v", err)
		}
	}

	eval := runstore.Evaluation{Price: quote.Price, OutcomePct: outPct, Side: side, Hit: hit}
	if err := l.results.StampEvaluated(ctx, rec.ID, eval, time.Now()); err != nil {
		if errors.Is(err, runstore.ErrAlreadyEvaluated) {
			logger.Infof("复盘 %s(#%d): 已被其他执行盖章，放弃本次建议", rec.Ticker, rec.ID)
			return evalCounters{}, "已被其他执行盖章"
		}
		logger.Errorf("复盘 %s(#%d): 盖章失败: %v", rec.Ticker, rec.ID, err)
		return evalCounters{}, fmt.Sprintf("盖章失败: %v", err)
	}

	c := l.apply(ctx, rec, adjustments, cat, today)
	c.evaluated = true
	c.hit = hit
	return c, ""
}

// apply 校验并落库建议。越界与未知名字拒绝；同日同名保留先写入的值。
func (l *Loop) apply(ctx context.Context, rec runstore.ResultRecord, adjustments []ai.TuningAdjustment, cat params.CatalogSnapshot, today time.Time) evalCounters {
	var c evalCounters
	for _, adj := range adjustments {
		if err := cat.Validate(adj.Name, adj.Value); err != nil {
			logger.Warnf("复盘 %s(#%d): 建议被拒绝: %v", rec.Ticker, rec.ID, err)
			c.rejected++
			continue
		}
		v := params.Version{
			Date:        today,
			Name:        adj.Name,
			Value:       adj.Value,
			Description: tuneDescription(rec, adj),
		}
		if err := l.store.WriteVersion(ctx, v); err != nil {
			var dup *params.DuplicateVersionError
			if errors.As(err, &dup) {
				logger.Infof("复盘 %s(#%d): %s 当日已有版本，保留先写入的值", rec.Ticker, rec.ID, adj.Name)
				c.conflicted++
				continue
			}
			logger.Errorf("复盘 %s(#%d): 写入 %s 失败: %v", rec.Ticker, rec.ID, adj.Name, err)
			continue
		}
		c.written++
		logger.Infof("复盘 %s(#%d): 参数 %s 更新为 %v，自 %s 起生效",
			rec.Ticker, rec.ID, adj.Name, adj.Value, today.Format("2006-01-02"))
	}
	return c
}

// outcomePct 计算带方向的实现损益百分比：做多看涨幅，做空看跌幅，保留两位小数。
func outcomePct(side string, entry, current float64) decimal.Decimal {
	e := decimal.NewFromFloat(entry)
	diff := decimal.NewFromFloat(current).Sub(e)
	if side == "short" {
		diff = diff.Neg()
	}
	return diff.Div(e).Mul(decimal.NewFromInt(100)).Round(2)
}

// buildStates 把目录定义与当前快照拼成模型输入的参数清单。
func buildStates(cat params.CatalogSnapshot, snap params.Snapshot) []ai.ParamState {
	defs := cat.Definitions()
	out := make([]ai.ParamState, 0, len(defs))
	for _, def := range defs {
		value, ok := snap.Float(def.Name)
		if !ok {
			value = def.Default
		}
		out = append(out, ai.ParamState{
			Name:        def.Name,
			Value:       value,
			Min:         def.Min,
			Max:         def.Max,
			Description: def.Description,
		})
	}
	return out
}

func tuneDescription(rec runstore.ResultRecord, adj ai.TuningAdjustment) string {
	reason := strings.TrimSpace(adj.Reason)
	if reason == "" {
		reason = "自動チューニング"
	}
	return fmt.Sprintf("%s（%s の判断より）", reason, rec.Ticker)
}
