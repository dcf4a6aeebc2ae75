package indicator

import "fmt"

// InsufficientHistoryError 表示历史数据短于指标所需窗口。单票跳过，不中断整轮。
type InsufficientHistoryError struct {
	Code string
	Need int
	Have int
}

func (e *InsufficientHistoryError) Error() string {
	return fmt.Sprintf("indicator: %s has %d bars, need %d", e.Code, e.Have, e.Need)
}
