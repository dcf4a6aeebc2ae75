package params

import (
	"context"
	"time"
)

// Version 是参数的一个版本：同一 (date, name) 至多一行，只追加不修改。
type Version struct {
	Date        time.Time
	Name        string
	Value       float64
	Description string
	CreatedAt   time.Time
}

// Snapshot 是某个 as-of 日期解析出的完整参数集。
// 构造成功即保证所需名字全部就位，运行期不再缺参。
type Snapshot struct {
	AsOf   time.Time
	Values map[string]float64
}

// Float 返回参数值。ok=false 表示名字不在快照里（调用方的名字拼错了）。
func (s Snapshot) Float(name string) (float64, bool) {
	v, ok := s.Values[name]
	return v, ok
}

// Int 返回四舍五入后的整数参数值。
func (s Snapshot) Int(name string) (int, bool) {
	v, ok := s.Values[name]
	if !ok {
		return 0, false
	}
	if v >= 0 {
		return int(v + 0.5), true
	}
	return int(v - 0.5), true
}

// Clone 返回值表的深拷贝，供落库冻结使用。
func (s Snapshot) Clone() map[string]float64 {
	out := make(map[string]float64, len(s.Values))
	for k, v := range s.Values {
		out[k] = v
	}
	return out
}

// Store 是仅追加的版本化参数存储。
type Store interface {
	// Current 解析 names 中每个名字在 asOf 当日或之前的最新版本。
	// 任一名字缺失返回 *MissingParameterError。
	Current(ctx context.Context, asOf time.Time, names []string) (Snapshot, error)

	// WriteVersion 追加一个新版本。(date, name) 冲突返回 *DuplicateVersionError。
	WriteVersion(ctx context.Context, v Version) error

	// History 返回某参数按日期倒序的版本明细。
	History(ctx context.Context, name string, limit int) ([]Version, error)

	// Seed 为 defs 中尚无任何版本的参数在 epoch 日期写入默认值，返回写入条数。
	Seed(ctx context.Context, defs []Definition, epoch time.Time) (int, error)

	Close() error
}
