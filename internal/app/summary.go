package app

import (
	"fmt"
	"strings"
)

// StartupSummary 汇总启动时的装配结果，在日志开头打印一次。
type StartupSummary struct {
	Universe UniverseSummary
	Catalog  CatalogSummary
	Stores   StoreSummary
	Gateways GatewaySummary
	Schedule ScheduleSummary
}

type UniverseSummary struct {
	Path    string
	Tickers []string
	Indexes []string
}

type CatalogSummary struct {
	Path   string
	Epoch  string
	Params int
	Seeded int
}

type StoreSummary struct {
	ParamsPath string
	RunsPath   string
}

type GatewaySummary struct {
	MarketSource string
	AIEnabled    bool
	AIModel      string
	NewsEnabled  bool
	MailEnabled  bool
	Recipients   int
}

type ScheduleSummary struct {
	Enabled          bool
	AnalysisInterval string
	AnalysisOffset   string
	ReevalInterval   string
	ReevalOffset     string
	RunImmediately   bool
}

func (s *StartupSummary) Print() {
	fmt.Println(strings.Repeat("=", 80))
	fmt.Printf("%*s\n", 40+len("启动配置摘要 (STARTUP SUMMARY)")/2, "启动配置摘要 (STARTUP SUMMARY)")
	fmt.Println(strings.Repeat("=", 80))

	fmt.Println("[股票清单 (UNIVERSE)]")
	fmt.Printf("  清单文件: %s\n", s.Universe.Path)
	fmt.Printf("  标的数量: %d\n", len(s.Universe.Tickers))
	fmt.Printf("  标的列表: %s\n", formatList(s.Universe.Tickers))
	fmt.Printf("  指数代码: %s\n", formatList(s.Universe.Indexes))
	fmt.Println()

	fmt.Println("[调优参数 (TUNING PARAMETERS)]")
	fmt.Printf("  目录文件: %s\n", s.Catalog.Path)
	fmt.Printf("  参数个数: %d (epoch=%s)\n", s.Catalog.Params, s.Catalog.Epoch)
	fmt.Printf("  本次种子: %d 条\n", s.Catalog.Seeded)
	fmt.Println()

	fmt.Println("[存储 (STORES)]")
	fmt.Printf("  参数库: %s\n", s.Stores.ParamsPath)
	fmt.Printf("  结果库: %s\n", s.Stores.RunsPath)
	fmt.Println()

	fmt.Println("[外部服务 (GATEWAYS)]")
	fmt.Printf("  行情数据源: %s\n", s.Gateways.MarketSource)
	fmt.Printf("  AI 审查: %s\n", enabledWith(s.Gateways.AIEnabled, s.Gateways.AIModel))
	fmt.Printf("  新闻检索: %s\n", enabledWith(s.Gateways.NewsEnabled, ""))
	if s.Gateways.MailEnabled {
		fmt.Printf("  邮件通知: 已启用 (%d 个收件人)\n", s.Gateways.Recipients)
	} else {
		fmt.Println("  邮件通知: 未启用")
	}
	fmt.Println()

	fmt.Println("[调度 (SCHEDULE)]")
	if !s.Schedule.Enabled {
		fmt.Println("  未启用，仅响应 HTTP 触发")
	} else {
		fmt.Printf("  分析循环: 周期=%s 偏移=%s\n", s.Schedule.AnalysisInterval, orDash(s.Schedule.AnalysisOffset))
		fmt.Printf("  复盘循环: 周期=%s 偏移=%s\n", s.Schedule.ReevalInterval, orDash(s.Schedule.ReevalOffset))
		fmt.Printf("  启动即跑: %v\n", s.Schedule.RunImmediately)
	}
	fmt.Println(strings.Repeat("=", 80))
}

func formatList(items []string) string {
	if len(items) == 0 {
		return "-"
	}
	return strings.Join(items, ", ")
}

func enabledWith(enabled bool, detail string) string {
	if !enabled {
		return "未启用"
	}
	if detail == "" {
		return "已启用"
	}
	return "已启用 (" + detail + ")"
}

func orDash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return s
}
