package params

import (
	"fmt"
	"strings"
	"time"
)

// MissingParameterError 表示在 as-of 日期之前找不到某些参数的任何版本。
// 解析是全有或全无的：任一缺失即整体失败，不允许隐式默认值。
type MissingParameterError struct {
	AsOf  time.Time
	Names []string
}

func (e *MissingParameterError) Error() string {
	return fmt.Sprintf("params: no version at or before %s for: %s",
		e.AsOf.Format("2006-01-02"), strings.Join(e.Names, ", "))
}

// DuplicateVersionError 表示 (date, name) 已存在版本。既不覆盖也不合并。
type DuplicateVersionError struct {
	Date time.Time
	Name string
}

func (e *DuplicateVersionError) Error() string {
	return fmt.Sprintf("params: version already exists for %s on %s",
		e.Name, e.Date.Format("2006-01-02"))
}

// InvalidTuningValueError 表示建议值超出目录定义的边界，写入被拒绝。
type InvalidTuningValueError struct {
	Name  string
	Value float64
	Min   float64
	Max   float64
}

func (e *InvalidTuningValueError) Error() string {
	return fmt.Sprintf("params: value %v for %s outside bounds [%v, %v]",
		e.Value, e.Name, e.Min, e.Max)
}

// UnknownParameterError 表示名字不在目录里，拒绝写入。
type UnknownParameterError struct {
	Name string
}

func (e *UnknownParameterError) Error() string {
	return fmt.Sprintf("params: %s is not a cataloged parameter", e.Name)
}
