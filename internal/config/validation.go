package config

import (
	"fmt"
	"strings"
	"time"
)

// validate 对配置进行基础校验。校验失败视为致命错误，进程不应继续。
func validate(c *Config) error {
	if err := c.Market.validate(); err != nil {
		return err
	}
	if err := c.Universe.validate(); err != nil {
		return err
	}
	if err := c.Params.validate(); err != nil {
		return err
	}
	if err := c.Store.validate(); err != nil {
		return err
	}
	if err := c.Analysis.validate(); err != nil {
		return err
	}
	if err := c.AI.validate(); err != nil {
		return err
	}
	if err := c.News.validate(); err != nil {
		return err
	}
	if err := c.Notify.validate(); err != nil {
		return err
	}
	if err := c.Schedule.validate(); err != nil {
		return err
	}
	return nil
}

func (m *MarketConfig) validate() error {
	if len(m.Sources) == 0 {
		return fmt.Errorf("market.sources requires at least one source")
	}
	activeName := strings.ToLower(strings.TrimSpace(m.ActiveSource))
	enabled := 0
	activeFound := false
	for _, src := range m.Sources {
		if !src.Enabled {
			continue
		}
		enabled++
		if strings.TrimSpace(src.RESTBaseURL) == "" {
			return fmt.Errorf("market source %s missing rest_base_url", src.Name)
		}
		name := strings.ToLower(strings.TrimSpace(src.Name))
		if activeName == "" || name == activeName {
			activeFound = true
		}
	}
	if enabled == 0 {
		return fmt.Errorf("market.sources requires at least one enabled source")
	}
	if !activeFound {
		return fmt.Errorf("enabled market.active_source=%s not found", m.ActiveSource)
	}
	return nil
}

func (u *UniverseConfig) validate() error {
	if strings.TrimSpace(u.Path) == "" {
		return fmt.Errorf("universe.path cannot be empty")
	}
	return nil
}

func (p *ParamsConfig) validate() error {
	if strings.TrimSpace(p.CatalogPath) == "" {
		return fmt.Errorf("params.catalog_path cannot be empty")
	}
	return nil
}

func (s *StoreConfig) validate() error {
	if strings.TrimSpace(s.ParamsPath) == "" {
		return fmt.Errorf("store.params_path cannot be empty")
	}
	if strings.TrimSpace(s.RunsPath) == "" {
		return fmt.Errorf("store.runs_path cannot be empty")
	}
	return nil
}

func (a *AnalysisConfig) validate() error {
	if a.LookbackDays < 100 || a.LookbackDays > 2000 {
		return fmt.Errorf("analysis.lookback_days must be in [100,2000]")
	}
	if a.Concurrency < 1 || a.Concurrency > 32 {
		return fmt.Errorf("analysis.concurrency must be in [1,32]")
	}
	if _, err := time.Parse("15:04", strings.TrimSpace(a.TargetTime)); err != nil {
		return fmt.Errorf("analysis.target_time must use HH:MM format: %w", err)
	}
	if strings.TrimSpace(a.Timezone) == "" {
		return fmt.Errorf("analysis.timezone cannot be empty")
	}
	return nil
}

func (a *AIConfig) validate() error {
	if !a.Enabled {
		return nil
	}
	if strings.TrimSpace(a.APIURL) == "" {
		return fmt.Errorf("ai.api_url cannot be empty when ai.enabled=true")
	}
	if strings.TrimSpace(a.Model) == "" {
		return fmt.Errorf("ai.model cannot be empty when ai.enabled=true")
	}
	return nil
}

func (n *NewsConfig) validate() error {
	if !n.Enabled {
		return nil
	}
	if strings.TrimSpace(n.BaseURL) == "" {
		return fmt.Errorf("news.base_url cannot be empty when news.enabled=true")
	}
	return nil
}

func (n *NotifyConfig) validate() error {
	mail := n.Mail
	if !mail.Enabled {
		return nil
	}
	if strings.TrimSpace(mail.Host) == "" {
		return fmt.Errorf("mail notification enabled but missing host")
	}
	if strings.TrimSpace(mail.From) == "" {
		return fmt.Errorf("mail notification enabled but missing from")
	}
	if len(mail.To) == 0 {
		return fmt.Errorf("mail notification enabled but missing recipients")
	}
	return nil
}

func (s *ScheduleConfig) validate() error {
	if !s.Enabled {
		return nil
	}
	if norm := strings.ToLower(strings.TrimSpace(s.AnalysisInterval)); !IsValidInterval(norm) {
		return fmt.Errorf("schedule.analysis_interval is invalid: %s", s.AnalysisInterval)
	}
	if norm := strings.ToLower(strings.TrimSpace(s.ReevalInterval)); !IsValidInterval(norm) {
		return fmt.Errorf("schedule.reeval_interval is invalid: %s", s.ReevalInterval)
	}
	return nil
}

// IsValidInterval 简易校验：以数字开头，以 s/m/h/d/w 结尾
func IsValidInterval(s string) bool {
	if s == "" {
		return false
	}
	suf := s[len(s)-1]
	if suf != 's' && suf != 'm' && suf != 'h' && suf != 'd' && suf != 'w' {
		return false
	}
	for i := 0; i < len(s)-1; i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
