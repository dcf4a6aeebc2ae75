package news

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Article 是一条新闻摘要，供 AI 审查时作为上下文。
type Article struct {
	Title       string    `json:"title"`
	Summary     string    `json:"summary"`
	Source      string    `json:"source"`
	PublishedAt time.Time `json:"published_at"`
}

// Config 是新闻客户端配置。
type Config struct {
	BaseURL        string
	APIKey         string
	TimeoutSeconds int
	MaxItems       int
}

// Client 调用 NewsAPI 风格的 /v2/everything 接口检索近期新闻。
// 返回空列表是正常结果，不是错误。
type Client struct {
	baseURL  string
	apiKey   string
	httpc    *http.Client
	maxItems int
}

// New 构造客户端。
func New(cfg Config) *Client {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		base = "https://newsapi.org"
	}
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	maxItems := cfg.MaxItems
	if maxItems <= 0 || maxItems > 20 {
		maxItems = 5
	}
	return &Client{
		baseURL:  base,
		apiKey:   strings.TrimSpace(cfg.APIKey),
		httpc:    &http.Client{Timeout: timeout},
		maxItems: maxItems,
	}
}

type articleRow struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	PublishedAt string `json:"publishedAt"`
	Source      struct {
		Name string `json:"name"`
	} `json:"source"`
}

type everythingResponse struct {
	Status   string       `json:"status"`
	Message  string       `json:"message"`
	Articles []articleRow `json:"articles"`
}

// Recent 按关键词检索最近七天的新闻，按发布时间倒序，最多 maxItems 条。
func (c *Client) Recent(ctx context.Context, query string) ([]Article, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("news: 检索词不能为空")
	}
	q := url.Values{}
	q.Set("q", query)
	q.Set("sortBy", "publishedAt")
	q.Set("pageSize", strconv.Itoa(c.maxItems))
	q.Set("from", time.Now().AddDate(0, 0, -7).Format("2006-01-02"))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v2/everything?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	if c.apiKey != "" {
		req.Header.Set("X-Api-Key", c.apiKey)
	}
	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var body everythingResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("news: 解析响应失败: %w", err)
	}
	if resp.StatusCode/100 != 2 {
		msg := body.Message
		if msg == "" {
			msg = resp.Status
		}
		return nil, fmt.Errorf("news: status=%d: %s", resp.StatusCode, msg)
	}
	out := make([]Article, 0, len(body.Articles))
	for _, row := range body.Articles {
		published, _ := time.Parse(time.RFC3339, row.PublishedAt)
		out = append(out, Article{
			Title:       strings.TrimSpace(row.Title),
			Summary:     strings.TrimSpace(row.Description),
			Source:      strings.TrimSpace(row.Source.Name),
			PublishedAt: published,
		})
	}
	return out, nil
}

// Render 把文章列表拼成给 AI 的纯文本段落。空列表返回固定提示语。
func Render(articles []Article) string {
	if len(articles) == 0 {
		return "(直近のニュースはありません)"
	}
	var b strings.Builder
	for i, a := range articles {
		if i > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "- [%s] %s", a.Source, a.Title)
		if a.Summary != "" {
			fmt.Fprintf(&b, ": %s", a.Summary)
		}
	}
	return b.String()
}
