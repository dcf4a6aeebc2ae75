package jquants

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"kabuto/internal/logger"
	"kabuto/internal/market"
	"kabuto/internal/pkg/circuit"

	"golang.org/x/time/rate"
)

// Config 是 J-Quants 客户端配置。APIKey 为已换取的 idToken，
// 刷新流程由使用者在外部完成。
type Config struct {
	BaseURL        string
	APIKey         string
	TimeoutSeconds int
	RatePerMinute  int
	MaxRetries     int
}

// Client 基于 J-Quants REST 接口（/prices/daily_quotes 等）的行情客户端。
// 所有请求经过共享限速器，429/5xx 做有限重试；连续失败触发熔断，
// 冷却期内的请求直接按 UnavailableError 快速失败。
type Client struct {
	baseURL    string
	token      string
	httpc      *http.Client
	limiter    *rate.Limiter
	breaker    *circuit.Breaker
	maxRetries int
}

var _ market.Source = (*Client)(nil)

// New 构造客户端。零值配置回落到公共服务的默认限额。
func New(cfg Config) *Client {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		base = "https://api.jquants.com/v1"
	}
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	perMin := cfg.RatePerMinute
	if perMin <= 0 {
		perMin = 120
	}
	maxRetries := cfg.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 2
	}
	return &Client{
		baseURL:    base,
		token:      strings.TrimSpace(cfg.APIKey),
		httpc:      &http.Client{Timeout: timeout},
		limiter:    rate.NewLimiter(rate.Limit(float64(perMin)/60.0), 10),
		breaker:    circuit.NewBreaker("jquants", 5, 2*time.Minute),
		maxRetries: maxRetries,
	}
}

// Close 释放空闲连接。
func (c *Client) Close() error {
	c.httpc.CloseIdleConnections()
	return nil
}

type dailyQuoteRow struct {
	Date   string   `json:"Date"`
	Open   *float64 `json:"Open"`
	High   *float64 `json:"High"`
	Low    *float64 `json:"Low"`
	Close  *float64 `json:"Close"`
	Volume *float64 `json:"Volume"`
}

type dailyQuotesResponse struct {
	DailyQuotes   []dailyQuoteRow `json:"daily_quotes"`
	PaginationKey string          `json:"pagination_key"`
}

// FetchDailyBars 返回 [from, to] 闭区间内的日线，升序。跟随 pagination_key 取完整段。
func (c *Client) FetchDailyBars(ctx context.Context, code string, from, to time.Time) ([]market.Bar, error) {
	if strings.TrimSpace(code) == "" {
		return nil, fmt.Errorf("jquants: code 不能为空")
	}
	q := url.Values{}
	q.Set("code", normalizeCode(code))
	q.Set("from", from.Format("2006-01-02"))
	q.Set("to", to.Format("2006-01-02"))

	bars := make([]market.Bar, 0, 256)
	for {
		var resp dailyQuotesResponse
		if err := c.getJSON(ctx, "/prices/daily_quotes", q, code, &resp); err != nil {
			return nil, err
		}
		for _, row := range resp.DailyQuotes {
			bar, ok := rowToBar(row)
			if !ok {
				continue // 停牌日等无值行
			}
			bars = append(bars, bar)
		}
		if resp.PaginationKey == "" {
			break
		}
		q.Set("pagination_key", resp.PaginationKey)
	}
	if len(bars) == 0 {
		return nil, &market.NotFoundError{Code: code}
	}
	sort.Slice(bars, func(i, j int) bool { return bars[i].Date.Before(bars[j].Date) })
	return bars, nil
}

type intradayQuoteRow struct {
	Time   string   `json:"Time"`
	Open   *float64 `json:"Open"`
	High   *float64 `json:"High"`
	Low    *float64 `json:"Low"`
	Close  *float64 `json:"Close"`
	Volume *float64 `json:"Volume"`
}

type intradayQuotesResponse struct {
	IntradayQuotes []intradayQuoteRow `json:"intraday_quotes"`
	PaginationKey  string             `json:"pagination_key"`
}

// FetchIntradayBars 返回指定交易日的分钟线，升序。
// 套餐不含分钟数据（403/404）时返回空切片而非错误，调用方按"当日无分钟线"处理。
func (c *Client) FetchIntradayBars(ctx context.Context, code string, day time.Time) ([]market.Bar, error) {
	if strings.TrimSpace(code) == "" {
		return nil, fmt.Errorf("jquants: code 不能为空")
	}
	q := url.Values{}
	q.Set("code", normalizeCode(code))
	q.Set("date", day.Format("2006-01-02"))

	bars := make([]market.Bar, 0, 360)
	for {
		var resp intradayQuotesResponse
		err := c.getJSON(ctx, "/prices/intraday_quotes", q, code, &resp)
		if err != nil {
			var notFound *market.NotFoundError
			if isForbidden(err) || errors.As(err, &notFound) {
				logger.Debugf("[jquants] %s 无分钟线数据: %v", code, err)
				return nil, nil
			}
			return nil, err
		}
		for _, row := range resp.IntradayQuotes {
			ts, err := parseIntradayTime(row.Time, day)
			if err != nil || row.Close == nil {
				continue
			}
			bars = append(bars, market.Bar{
				Date:   ts,
				Open:   deref(row.Open),
				High:   deref(row.High),
				Low:    deref(row.Low),
				Close:  deref(row.Close),
				Volume: deref(row.Volume),
			})
		}
		if resp.PaginationKey == "" {
			break
		}
		q.Set("pagination_key", resp.PaginationKey)
	}
	sort.Slice(bars, func(i, j int) bool { return bars[i].Date.Before(bars[j].Date) })
	return bars, nil
}

// LatestQuote 用最近十个自然日的日线收盘价作为最新报价。
func (c *Client) LatestQuote(ctx context.Context, code string) (market.Quote, error) {
	to := time.Now()
	bars, err := c.FetchDailyBars(ctx, code, to.AddDate(0, 0, -10), to)
	if err != nil {
		return market.Quote{}, err
	}
	last := bars[len(bars)-1]
	return market.Quote{Code: code, Price: last.Close, AsOf: last.Date}, nil
}

type listedInfoRow struct {
	Code             string `json:"Code"`
	CompanyName      string `json:"CompanyName"`
	CompanyNameEn    string `json:"CompanyNameEnglish"`
	Sector33CodeName string `json:"Sector33CodeName"`
	MarketCodeName   string `json:"MarketCodeName"`
}

type listedInfoResponse struct {
	Info []listedInfoRow `json:"info"`
}

// CompanyInfo 返回公司基础信息。指数代码没有对应条目，直接返回空信息。
func (c *Client) CompanyInfo(ctx context.Context, code string) (market.CompanyInfo, error) {
	if market.IsIndex(code) {
		return market.CompanyInfo{Code: code}, nil
	}
	q := url.Values{}
	q.Set("code", normalizeCode(code))
	var resp listedInfoResponse
	if err := c.getJSON(ctx, "/listed/info", q, code, &resp); err != nil {
		return market.CompanyInfo{}, err
	}
	if len(resp.Info) == 0 {
		return market.CompanyInfo{}, &market.NotFoundError{Code: code}
	}
	row := resp.Info[0]
	return market.CompanyInfo{
		Code:        code,
		Name:        row.CompanyName,
		NameEnglish: row.CompanyNameEn,
		Sector:      row.Sector33CodeName,
		Market:      row.MarketCodeName,
	}, nil
}

// getJSON 执行一次 GET 并解码。429/5xx 按 Retry-After 或指数退避重试，
// 重试耗尽后 429 映射为 RateLimitError，404 映射为 NotFoundError。
// 熔断计数以整次调用为单位：重试中途不计，最终结局记一次。
func (c *Client) getJSON(ctx context.Context, path string, query url.Values, code string, out any) error {
	if !c.breaker.Allow() {
		return &market.UnavailableError{Source: "jquants"}
	}
	u := c.baseURL + path + "?" + query.Encode()
	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
		if err != nil {
			return err
		}
		if c.token != "" {
			req.Header.Set("Authorization", "Bearer "+c.token)
		}
		resp, err := c.httpc.Do(req)
		if err != nil {
			lastErr = err
			break
		}
		if resp.StatusCode/100 == 2 {
			c.breaker.RecordSuccess()
			derr := json.NewDecoder(resp.Body).Decode(out)
			resp.Body.Close()
			if derr != nil {
				return fmt.Errorf("jquants: 解析 %s 响应失败: %w", path, derr)
			}
			return nil
		}
		msg := readErrorMessage(resp.Body)
		resp.Body.Close()
		// 404/403 是单票层面的回答，服务本身是健康的
		switch resp.StatusCode {
		case http.StatusNotFound:
			c.breaker.RecordSuccess()
			return &market.NotFoundError{Code: code}
		case http.StatusForbidden:
			c.breaker.RecordSuccess()
			return fmt.Errorf("jquants: %s 返回 403: %s", path, msg)
		}
		retryable := resp.StatusCode == 429 || resp.StatusCode >= 500
		if retryable && attempt < c.maxRetries {
			wait := retryAfter(resp.Header.Get("Retry-After"))
			if wait == 0 {
				// 基本指数退避：0.8s, 1.6s, 3.2s ...
				wait = 800 * time.Millisecond << attempt
				if wait > 8*time.Second {
					wait = 8 * time.Second
				}
			}
			logger.Debugf("[jquants] %s 状态码 %d，%s 后重试", path, resp.StatusCode, wait)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(wait):
			}
			lastErr = fmt.Errorf("jquants: status=%d: %s", resp.StatusCode, msg)
			continue
		}
		c.breaker.RecordFailure()
		if resp.StatusCode == 429 {
			return &market.RateLimitError{Code: code, RetryAfter: retryAfter(resp.Header.Get("Retry-After"))}
		}
		return fmt.Errorf("jquants: status=%d: %s", resp.StatusCode, msg)
	}
	if lastErr != nil {
		c.breaker.RecordFailure()
		if strings.Contains(lastErr.Error(), "status=429") {
			return &market.RateLimitError{Code: code}
		}
		return lastErr
	}
	return fmt.Errorf("jquants: %s 请求失败", path)
}

func readErrorMessage(body io.Reader) string {
	var eresp struct {
		Message string `json:"message"`
	}
	raw, _ := io.ReadAll(io.LimitReader(body, 4096))
	if err := json.Unmarshal(raw, &eresp); err == nil && eresp.Message != "" {
		return eresp.Message
	}
	return strings.TrimSpace(string(raw))
}

func retryAfter(header string) time.Duration {
	if header == "" {
		return 0
	}
	secs, err := strconv.Atoi(header)
	if err != nil || secs <= 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}

// normalizeCode 把常见的四位代码补成 J-Quants 的五位格式；指数代码原样传递。
func normalizeCode(code string) string {
	code = strings.TrimSpace(code)
	if market.IsIndex(code) {
		return code
	}
	if len(code) == 4 {
		return code + "0"
	}
	return code
}

func rowToBar(row dailyQuoteRow) (market.Bar, bool) {
	if row.Close == nil {
		return market.Bar{}, false
	}
	date, err := time.Parse("2006-01-02", row.Date)
	if err != nil {
		return market.Bar{}, false
	}
	return market.Bar{
		Date:   date,
		Open:   deref(row.Open),
		High:   deref(row.High),
		Low:    deref(row.Low),
		Close:  deref(row.Close),
		Volume: deref(row.Volume),
	}, true
}

func parseIntradayTime(raw string, day time.Time) (time.Time, error) {
	if ts, err := time.Parse(time.RFC3339, raw); err == nil {
		return ts, nil
	}
	if ts, err := time.Parse("15:04", raw); err == nil {
		return time.Date(day.Year(), day.Month(), day.Day(), ts.Hour(), ts.Minute(), 0, 0, day.Location()), nil
	}
	return time.Time{}, fmt.Errorf("jquants: 无法解析时间 %q", raw)
}

func deref(v *float64) float64 {
	if v == nil {
		return 0
	}
	return *v
}

func isForbidden(err error) bool {
	return err != nil && strings.Contains(err.Error(), "返回 403")
}
