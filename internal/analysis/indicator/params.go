package indicator

import (
	"fmt"
	"strings"

	"kabuto/internal/params"
)

// Params 描述全部指标计算周期。取值来自参数快照，不允许硬编码。
type Params struct {
	RSIPeriod       int
	DeviationPeriod int
	TrendPeriod     int
	MACDFast        int
	MACDSlow        int
	MACDSignal      int
	DMIPeriod       int
}

// ParamsFromSnapshot 从参数快照提取指标周期。快照按目录解析而来，
// 缺名意味着目录与代码脱节，直接报错而不是给默认值。
func ParamsFromSnapshot(snap params.Snapshot) (Params, error) {
	var missing []string
	intOf := func(name string) int {
		v, ok := snap.Int(name)
		if !ok {
			missing = append(missing, name)
			return 0
		}
		return v
	}
	p := Params{
		RSIPeriod:       intOf(params.RSIPeriod),
		DeviationPeriod: intOf(params.DeviationPeriod),
		TrendPeriod:     intOf(params.TrendPeriod),
		MACDFast:        intOf(params.MACDFastPeriod),
		MACDSlow:        intOf(params.MACDSlowPeriod),
		MACDSignal:      intOf(params.MACDSignalPeriod),
		DMIPeriod:       intOf(params.DMIPeriod),
	}
	if len(missing) > 0 {
		return Params{}, fmt.Errorf("indicator params missing from snapshot: %s", strings.Join(missing, ", "))
	}
	if err := p.validate(); err != nil {
		return Params{}, err
	}
	return p, nil
}

func (p Params) validate() error {
	if p.RSIPeriod < 2 {
		return fmt.Errorf("rsi period must be >= 2, got %d", p.RSIPeriod)
	}
	if p.DeviationPeriod < 2 {
		return fmt.Errorf("deviation period must be >= 2, got %d", p.DeviationPeriod)
	}
	if p.TrendPeriod < 2 {
		return fmt.Errorf("trend period must be >= 2, got %d", p.TrendPeriod)
	}
	if p.MACDFast < 2 || p.MACDSlow <= p.MACDFast || p.MACDSignal < 1 {
		return fmt.Errorf("macd periods invalid: fast=%d slow=%d signal=%d", p.MACDFast, p.MACDSlow, p.MACDSignal)
	}
	if p.DMIPeriod < 2 {
		return fmt.Errorf("dmi period must be >= 2, got %d", p.DMIPeriod)
	}
	return nil
}

// MinBars 返回可靠计算全部指标所需的最少日线根数。
// 趋势方向要用到最近两个 SMA 值，所以趋势周期额外加一。
func (p Params) MinBars() int {
	need := p.TrendPeriod + 1
	if v := p.MACDSlow + p.MACDSignal; v > need {
		need = v
	}
	if v := 2 * p.DMIPeriod; v > need {
		need = v
	}
	if v := p.RSIPeriod + 1; v > need {
		need = v
	}
	if v := p.DeviationPeriod; v > need {
		need = v
	}
	return need
}
