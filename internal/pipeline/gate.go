package pipeline

import (
	"context"
	"fmt"
	"time"

	"kabuto/internal/ai"
	"kabuto/internal/analysis/scoring"
	"kabuto/internal/gateway/news"
	"kabuto/internal/gateway/notifier"
	"kabuto/internal/logger"
	"kabuto/internal/market"
)

// gateAll 对达到门槛的标的做新闻检索与 AI 论证。模型调用受外部限流，
// 顺序执行；任何一票的失败都只影响该票的 rationale，分数照常落库。
func (p *Pipeline) gateAll(ctx context.Context, drafts []*draft, threshold int, report *Report) {
	for _, d := range drafts {
		if market.IsIndex(d.code) {
			// 指数参与打分，不参与 AI 审查与通知
			continue
		}
		if !d.score.Reaches(threshold) {
			continue
		}
		d.gated = true
		report.Gated++

		p.gateOne(ctx, d)
		if d.rationale != "" {
			report.WithRationale++
		}
		if d.mailed {
			report.Mailed++
		}
	}
}

// gateOne 按「新闻 → 论证 → 通知」的顺序处理一票。
// 新闻检索失败时不调用模型（论证需要新闻上下文）；空新闻是合法输入。
func (p *Pipeline) gateOne(ctx context.Context, d *draft) {
	if p.advisor == nil || !p.advisor.Enabled() {
		logger.Debugf("%s 达到门槛但未配置 AI，仅保留分数", d.code)
		return
	}

	// 公司名用于新闻检索与通知，拿不到就用代码，不影响流程
	if info, err := p.market.CompanyInfo(ctx, d.code); err == nil {
		d.name = info.Name
	} else {
		logger.Debugf("%s 公司信息不可用: %v", d.code, err)
	}

	newsText := ""
	if p.news != nil {
		query := d.name
		if query == "" {
			query = d.code
		}
		articles, err := p.news.Recent(ctx, query)
		if err != nil {
			logger.Warnf("%s 新闻检索失败，结果只留分数: %v", d.code, err)
			return
		}
		newsText = news.Render(articles)
	}

	res, err := p.advisor.Rationale(ctx, ai.RationaleInput{
		Ticker:     d.code,
		Name:       d.name,
		Indicators: d.ind,
		Signals:    d.score.Signals,
		BuyScore:   d.score.BuyScore,
		ShortScore: d.score.ShortScore,
		Pattern:    d.pat.PatternSummary,
		Trend:      d.pat.TrendSummary,
		News:       newsText,
	})
	if err != nil {
		logger.Warnf("%s 论证失败，结果只留分数: %v", d.code, err)
		return
	}
	d.rationale = res.Rationale
	d.risk = res.Risk

	if res.Risk == ai.RiskNone {
		p.notify(d)
	}
}

// notify 发送候选邮件。失败只记日志，绝不阻断落库。
func (p *Pipeline) notify(d *draft) {
	if p.mailer == nil {
		return
	}
	side, score := d.score.Dominant()
	sideLabel := "買い"
	if side == "short" {
		sideLabel = "売り"
	}

	title := fmt.Sprintf("%s %s候補", d.code, sideLabel)
	if d.name != "" {
		title = fmt.Sprintf("%s %s %s候補", d.code, d.name, sideLabel)
	}
	msg := notifier.StructuredMessage{
		Title: title,
		Sections: []notifier.MessageSection{
			{Title: "スコア", Lines: []string{
				fmt.Sprintf("buy_score=%d short_score=%d", d.score.BuyScore, d.score.ShortScore),
				fmt.Sprintf("価格=%.2f RSI=%.2f 乖離率=%.2f%%", d.ind.Price, d.ind.RSI, d.ind.Deviation),
			}},
			{Title: "シグナル", Lines: signalLines(d.score.Signals)},
			{Title: "判断根拠", Lines: []string{d.rationale, "リスク評価: " + d.risk}},
		},
		Timestamp: time.Now().In(p.loc),
	}

	subject := fmt.Sprintf("%s (score=%d)", title, score)
	if err := p.mailer.Send(subject, msg.RenderText()); err != nil {
		logger.Errorf("%s 通知发送失败（不影响落库）: %v", d.code, err)
		return
	}
	d.mailed = true
	logger.Infof("%s 候选通知已发送", d.code)
}

func signalLines(signals map[string]string) []string {
	order := []string{
		scoring.SignalRSI, scoring.SignalDeviation, scoring.SignalTrend,
		scoring.SignalMACD, scoring.SignalDMI, scoring.SignalADX,
	}
	lines := make([]string, 0, len(order))
	for _, key := range order {
		if v, ok := signals[key]; ok {
			lines = append(lines, key+": "+v)
		}
	}
	return lines
}
