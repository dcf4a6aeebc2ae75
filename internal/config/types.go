package config

import "strings"

// Config 是 Kabuto 的主配置载体。
type Config struct {
	App      AppConfig      `toml:"app"`
	Market   MarketConfig   `toml:"market"`
	Universe UniverseConfig `toml:"universe"`
	Params   ParamsConfig   `toml:"params"`
	Store    StoreConfig    `toml:"store"`
	Analysis AnalysisConfig `toml:"analysis"`
	AI       AIConfig       `toml:"ai"`
	News     NewsConfig     `toml:"news"`
	Notify   NotifyConfig   `toml:"notify"`
	Schedule ScheduleConfig `toml:"schedule"`
}

type AppConfig struct {
	Env      string `toml:"env"`
	LogLevel string `toml:"log_level"`
	HTTPAddr string `toml:"http_addr"`
	LogPath  string `toml:"log_path"`
	LLMLog   string `toml:"llm_log_path"`
	LLMDump  bool   `toml:"llm_dump_payload"`
}

// MarketConfig 描述行情数据源。active_source 为空时取第一个启用项。
type MarketConfig struct {
	ActiveSource string         `toml:"active_source"`
	Sources      []MarketSource `toml:"sources"`
}

type MarketSource struct {
	Name           string `toml:"name"`
	Enabled        bool   `toml:"enabled"`
	RESTBaseURL    string `toml:"rest_base_url"`
	APIKey         string `toml:"api_key"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
	RatePerMinute  int    `toml:"rate_per_minute"`
}

func (m MarketConfig) ResolveActiveSource() MarketSource {
	if len(m.Sources) == 0 {
		return MarketSource{
			Name:        defaultMarketName,
			Enabled:     true,
			RESTBaseURL: defaultMarketREST,
		}
	}
	active := strings.ToLower(strings.TrimSpace(m.ActiveSource))
	var fallback MarketSource
	for _, src := range m.Sources {
		if fallback.Name == "" {
			fallback = src
		}
		if !src.Enabled {
			continue
		}
		if active == "" || strings.ToLower(src.Name) == active {
			return src
		}
	}
	return fallback
}

// UniverseConfig 指定待分析的股票清单文件。
type UniverseConfig struct {
	Path  string `toml:"path"`
	Watch bool   `toml:"watch"`
}

// ParamsConfig 指定调优参数目录文件与种子开关。
type ParamsConfig struct {
	CatalogPath string `toml:"catalog_path"`
	Seed        bool   `toml:"seed"`
}

// StoreConfig 指定两个 sqlite 存储文件的位置。
type StoreConfig struct {
	ParamsPath string `toml:"params_path"`
	RunsPath   string `toml:"runs_path"`
}

// AnalysisConfig 控制每轮分析的取数窗口与并发度。
type AnalysisConfig struct {
	LookbackDays int    `toml:"lookback_days"`
	Concurrency  int    `toml:"concurrency"`
	TargetTime   string `toml:"target_time"` // "15:04" 格式，收盘快照时刻
	Timezone     string `toml:"timezone"`
}

// AIConfig 描述论证/调参所用的文本模型接入方式。
type AIConfig struct {
	Enabled        bool              `toml:"enabled"`
	Provider       string            `toml:"provider"`
	APIURL         string            `toml:"api_url"`
	APIKey         string            `toml:"api_key"`
	Model          string            `toml:"model"`
	TimeoutSeconds int               `toml:"timeout_seconds"`
	Headers        map[string]string `toml:"headers"`
	ExpectJSON     bool              `toml:"expect_json"`
}

// NewsConfig 描述新闻检索服务。
type NewsConfig struct {
	Enabled        bool   `toml:"enabled"`
	BaseURL        string `toml:"base_url"`
	APIKey         string `toml:"api_key"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
	MaxItems       int    `toml:"max_items"`
}

type NotifyConfig struct {
	Mail MailConfig `toml:"mail"`
}

// MailConfig 描述 SMTP 邮件通知。
type MailConfig struct {
	Enabled       bool     `toml:"enabled"`
	Host          string   `toml:"host"`
	Port          int      `toml:"port"`
	Username      string   `toml:"username"`
	Password      string   `toml:"password"`
	From          string   `toml:"from"`
	To            []string `toml:"to"`
	SubjectPrefix string   `toml:"subject_prefix"`
}

// ScheduleConfig 控制两条调度循环的周期与对齐偏移。
// offset 叠加在周期对齐点之后，例如 interval=1d offset=6h10m
// 表示每天 06:10 UTC（东京 15:10）触发。
type ScheduleConfig struct {
	Enabled          bool   `toml:"enabled"`
	AnalysisInterval string `toml:"analysis_interval"`
	AnalysisOffset   string `toml:"analysis_offset"`
	ReevalInterval   string `toml:"reeval_interval"`
	ReevalOffset     string `toml:"reeval_offset"`
	RunImmediately   bool   `toml:"run_immediately"`
}

// keySet 用于追踪配置文件中显式设置的字段路径。
type keySet map[string]struct{}

func (k keySet) mark(path string) {
	path = strings.ToLower(strings.TrimSpace(path))
	if path == "" {
		return
	}
	k[path] = struct{}{}
}

func (k keySet) isSet(path string) bool {
	if len(k) == 0 {
		return false
	}
	path = strings.ToLower(strings.TrimSpace(path))
	if path == "" {
		return false
	}
	_, ok := k[path]
	return ok
}

// fieldDefault 描述单个字段的默认值设置规则。
type fieldDefault struct {
	key   string
	need  func() bool
	apply func()
}
