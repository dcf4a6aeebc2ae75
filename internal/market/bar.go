package market

import "time"

// Bar 是一根 OHLCV K线。日线的 Date 归一到交易日零点，分钟线保留到分钟。
type Bar struct {
	Date   time.Time `json:"date"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume float64   `json:"volume"`
}

// Quote 是某只股票的最新报价快照。
type Quote struct {
	Code  string    `json:"code"`
	Price float64   `json:"price"`
	AsOf  time.Time `json:"as_of"`
}

// CompanyInfo 是用于结果增强展示的公司基础信息。
type CompanyInfo struct {
	Code        string `json:"code"`
	Name        string `json:"name"`
	NameEnglish string `json:"name_english,omitempty"`
	Sector      string `json:"sector,omitempty"`
	Market      string `json:"market,omitempty"`
}
