package config

import (
	"fmt"
	"strings"
)

// 默认值常量
const (
	defaultAppEnv            = "dev"
	defaultAppLogLevel       = "info"
	defaultAppHTTPAddr       = ":9991"
	defaultAppLogPath        = "/data/logs/kabuto.log"
	defaultAppLLMLogPath     = "/data/logs/kabuto-llm.log"
	defaultMarketName        = "jquants"
	defaultMarketREST        = "https://api.jquants.com/v1"
	defaultMarketTimeout     = 20
	defaultMarketRate        = 120
	defaultUniversePath      = "configs/tickers.yaml"
	defaultCatalogPath       = "configs/parameters.yaml"
	defaultStoreParamsPath   = "/data/db/params.db"
	defaultStoreRunsPath     = "/data/db/analysis.db"
	defaultAnalysisLookback  = 200
	defaultAnalysisWorkers   = 4
	defaultAnalysisTargetAt  = "15:00"
	defaultAnalysisTimezone  = "Asia/Tokyo"
	defaultAITimeout         = 60
	defaultNewsTimeout       = 15
	defaultNewsMaxItems      = 5
	defaultMailPort          = 587
	defaultMailSubjectPrefix = "[kabuto]"
	defaultAnalysisInterval  = "1d"
	defaultAnalysisOffset    = "6h10m" // 东京 15:10，收盘后十分钟
	defaultReevalInterval    = "1d"
	defaultReevalOffset      = "7h"
)

// applyDefaults 为所有子配置应用默认值。
func (c *Config) applyDefaults(keys keySet) {
	c.App.applyDefaults(keys)
	c.Market.applyDefaults(keys)
	c.Universe.applyDefaults(keys)
	c.Params.applyDefaults(keys)
	c.Store.applyDefaults(keys)
	c.Analysis.applyDefaults(keys)
	c.AI.applyDefaults(keys)
	c.News.applyDefaults(keys)
	c.Notify.applyDefaults(keys)
	c.Schedule.applyDefaults(keys)
}

func (a *AppConfig) applyDefaults(keys keySet) {
	if a == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("app.env", &a.Env, defaultAppEnv),
		stringFieldDefault("app.log_level", &a.LogLevel, defaultAppLogLevel),
		stringFieldDefault("app.http_addr", &a.HTTPAddr, defaultAppHTTPAddr),
		stringFieldDefault("app.log_path", &a.LogPath, defaultAppLogPath),
		stringFieldDefault("app.llm_log_path", &a.LLMLog, defaultAppLLMLogPath),
	)
}

func (m *MarketConfig) applyDefaults(keys keySet) {
	if m == nil {
		return
	}
	if len(m.Sources) == 0 {
		m.Sources = []MarketSource{{
			Name:        defaultMarketName,
			Enabled:     true,
			RESTBaseURL: defaultMarketREST,
		}}
	}
	for i := range m.Sources {
		src := &m.Sources[i]
		if strings.TrimSpace(src.Name) == "" {
			if i == 0 {
				src.Name = defaultMarketName
			} else {
				src.Name = fmt.Sprintf("market_%d", i)
			}
		}
		if src.RESTBaseURL == "" {
			src.RESTBaseURL = defaultMarketREST
		}
		if src.TimeoutSeconds <= 0 {
			src.TimeoutSeconds = defaultMarketTimeout
		}
		if src.RatePerMinute <= 0 {
			src.RatePerMinute = defaultMarketRate
		}
	}
	if strings.TrimSpace(m.ActiveSource) == "" {
		m.ActiveSource = firstEnabledMarket(m.Sources)
	}
}

func (u *UniverseConfig) applyDefaults(keys keySet) {
	if u == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("universe.path", &u.Path, defaultUniversePath),
		boolFieldDefault("universe.watch", &u.Watch, true),
	)
}

func (p *ParamsConfig) applyDefaults(keys keySet) {
	if p == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("params.catalog_path", &p.CatalogPath, defaultCatalogPath),
		boolFieldDefault("params.seed", &p.Seed, true),
	)
}

func (s *StoreConfig) applyDefaults(keys keySet) {
	if s == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("store.params_path", &s.ParamsPath, defaultStoreParamsPath),
		stringFieldDefault("store.runs_path", &s.RunsPath, defaultStoreRunsPath),
	)
}

func (a *AnalysisConfig) applyDefaults(keys keySet) {
	if a == nil {
		return
	}
	applyFieldDefaults(keys,
		fieldDefault{
			key:   "analysis.lookback_days",
			need:  func() bool { return a.LookbackDays <= 0 },
			apply: func() { a.LookbackDays = defaultAnalysisLookback },
		},
		fieldDefault{
			key:   "analysis.concurrency",
			need:  func() bool { return a.Concurrency <= 0 },
			apply: func() { a.Concurrency = defaultAnalysisWorkers },
		},
		stringFieldDefault("analysis.target_time", &a.TargetTime, defaultAnalysisTargetAt),
		stringFieldDefault("analysis.timezone", &a.Timezone, defaultAnalysisTimezone),
	)
}

func (a *AIConfig) applyDefaults(keys keySet) {
	if a == nil {
		return
	}
	applyFieldDefaults(keys,
		boolFieldDefault("ai.enabled", &a.Enabled, true),
		stringFieldDefault("ai.provider", &a.Provider, "openai"),
		boolFieldDefault("ai.expect_json", &a.ExpectJSON, true),
		fieldDefault{
			key:   "ai.timeout_seconds",
			need:  func() bool { return a.TimeoutSeconds <= 0 },
			apply: func() { a.TimeoutSeconds = defaultAITimeout },
		},
	)
}

func (n *NewsConfig) applyDefaults(keys keySet) {
	if n == nil {
		return
	}
	applyFieldDefaults(keys,
		fieldDefault{
			key:   "news.timeout_seconds",
			need:  func() bool { return n.TimeoutSeconds <= 0 },
			apply: func() { n.TimeoutSeconds = defaultNewsTimeout },
		},
		fieldDefault{
			key:   "news.max_items",
			need:  func() bool { return n.MaxItems <= 0 },
			apply: func() { n.MaxItems = defaultNewsMaxItems },
		},
	)
}

func (n *NotifyConfig) applyDefaults(keys keySet) {
	if n == nil {
		return
	}
	applyFieldDefaults(keys,
		fieldDefault{
			key:   "notify.mail.port",
			need:  func() bool { return n.Mail.Port <= 0 },
			apply: func() { n.Mail.Port = defaultMailPort },
		},
		stringFieldDefault("notify.mail.subject_prefix", &n.Mail.SubjectPrefix, defaultMailSubjectPrefix),
	)
}

func (s *ScheduleConfig) applyDefaults(keys keySet) {
	if s == nil {
		return
	}
	applyFieldDefaults(keys,
		boolFieldDefault("schedule.enabled", &s.Enabled, true),
		stringFieldDefault("schedule.analysis_interval", &s.AnalysisInterval, defaultAnalysisInterval),
		stringFieldDefault("schedule.analysis_offset", &s.AnalysisOffset, defaultAnalysisOffset),
		stringFieldDefault("schedule.reeval_interval", &s.ReevalInterval, defaultReevalInterval),
		stringFieldDefault("schedule.reeval_offset", &s.ReevalOffset, defaultReevalOffset),
		boolFieldDefault("schedule.run_immediately", &s.RunImmediately, true),
	)
}

// Helper functions

func applyFieldDefaults(keys keySet, defs ...fieldDefault) {
	for _, def := range defs {
		if def.apply == nil {
			continue
		}
		if def.key != "" && keys.isSet(def.key) {
			continue
		}
		if def.need != nil && !def.need() {
			continue
		}
		def.apply()
	}
}

func stringFieldDefault(key string, target *string, def string) fieldDefault {
	return fieldDefault{
		key: key,
		need: func() bool {
			return target != nil && strings.TrimSpace(*target) == ""
		},
		apply: func() {
			if target != nil {
				*target = def
			}
		},
	}
}

func boolFieldDefault(key string, target *bool, def bool) fieldDefault {
	return fieldDefault{
		key:  key,
		need: func() bool { return target != nil },
		apply: func() {
			if target != nil {
				*target = def
			}
		},
	}
}

func firstEnabledMarket(sources []MarketSource) string {
	for _, src := range sources {
		name := strings.TrimSpace(src.Name)
		if src.Enabled && name != "" {
			return name
		}
	}
	if len(sources) > 0 {
		if name := strings.TrimSpace(sources[0].Name); name != "" {
			return name
		}
	}
	return defaultMarketName
}
