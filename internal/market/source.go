package market

import (
	"context"
	"time"
)

// Source 抽象日线行情来源。code 为不带市场后缀的证券代码（如 "7203"），
// 指数代码以 "^" 开头（如 "^N225"）。
type Source interface {
	// FetchDailyBars 返回 [from, to] 闭区间内的日线，升序。
	FetchDailyBars(ctx context.Context, code string, from, to time.Time) ([]Bar, error)

	// FetchIntradayBars 返回指定交易日的分钟线，升序。用于收盘快照时刻的价格选取。
	FetchIntradayBars(ctx context.Context, code string, day time.Time) ([]Bar, error)

	// LatestQuote 返回最新成交价。
	LatestQuote(ctx context.Context, code string) (Quote, error)

	// CompanyInfo 返回公司基础信息，仅用于展示增强，失败不应中断调用方。
	CompanyInfo(ctx context.Context, code string) (CompanyInfo, error)

	Close() error
}

// IsIndex 判断代码是否为指数（指数参与打分但不参与 AI 审查与邮件通知）。
func IsIndex(code string) bool {
	return len(code) > 0 && code[0] == '^'
}
