package paramstore

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"kabuto/internal/params"

	_ "modernc.org/sqlite"
)

// Store 是基于 sqlite 的只追加参数版本库。
// 同一 (date, name) 至多一行，由唯一索引保证；历史版本永不覆盖、永不删除。
type Store struct {
	mu     sync.Mutex
	db     *sql.DB
	closed bool
}

var _ params.Store = (*Store)(nil)

// Open 打开（必要时创建）参数数据库并初始化表结构。
func Open(path string) (*Store, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("param store: 数据库路径不能为空")
	}
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("param store: 创建数据目录失败: %w", err)
		}
	}
	dsn := fmt.Sprintf("file:%s?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&cache=shared", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("param store: 打开数据库失败: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	s := &Store{db: db}
	if err := s.ensureSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) ensureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS tuning_parameters (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			date TEXT NOT NULL,
			name TEXT NOT NULL,
			value REAL NOT NULL,
			description TEXT,
			created_at INTEGER NOT NULL,
			UNIQUE(date, name)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_tuning_parameters_name_date ON tuning_parameters(name, date)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("param store: 初始化表结构失败: %w", err)
		}
	}
	return nil
}

// Close 关闭底层数据库连接。重复调用安全。
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.db == nil {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

// Current 解析 names 中每个名字在 asOf 当日或之前的最新版本。
// 解析是全有或全无的：任一名字缺失即返回 *params.MissingParameterError。
func (s *Store) Current(ctx context.Context, asOf time.Time, names []string) (params.Snapshot, error) {
	snap := params.Snapshot{AsOf: asOf, Values: make(map[string]float64, len(names))}
	if len(names) == 0 {
		return snap, nil
	}
	wanted := make(map[string]struct{}, len(names))
	for _, name := range names {
		wanted[name] = struct{}{}
	}
	// ISO 日期文本可以直接按字典序比较，date 升序遍历让较新的版本覆盖较旧的。
	rows, err := s.db.QueryContext(ctx,
		`SELECT name, value FROM tuning_parameters WHERE date <= ? ORDER BY date ASC, id ASC`,
		dateKey(asOf))
	if err != nil {
		return params.Snapshot{}, fmt.Errorf("param store: 查询参数失败: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			name  string
			value float64
		)
		if err := rows.Scan(&name, &value); err != nil {
			return params.Snapshot{}, fmt.Errorf("param store: 读取参数行失败: %w", err)
		}
		if _, ok := wanted[name]; !ok {
			continue
		}
		snap.Values[name] = value
	}
	if err := rows.Err(); err != nil {
		return params.Snapshot{}, err
	}
	if len(snap.Values) < len(wanted) {
		missing := make([]string, 0, len(wanted)-len(snap.Values))
		for name := range wanted {
			if _, ok := snap.Values[name]; !ok {
				missing = append(missing, name)
			}
		}
		sort.Strings(missing)
		return params.Snapshot{}, &params.MissingParameterError{AsOf: asOf, Names: missing}
	}
	return snap, nil
}

// WriteVersion 追加一条参数版本。(date, name) 已存在时返回 *params.DuplicateVersionError，
// 原有行保持不变。
func (s *Store) WriteVersion(ctx context.Context, v params.Version) error {
	name := strings.TrimSpace(v.Name)
	if name == "" {
		return fmt.Errorf("param store: 参数名不能为空")
	}
	if v.Date.IsZero() {
		return fmt.Errorf("param store: 参数 %s 缺少生效日期", name)
	}
	createdAt := v.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	day := dateKey(v.Date)
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO tuning_parameters (date, name, value, description, created_at) VALUES (?, ?, ?, ?, ?)`,
		day, name, v.Value, nullIfEmpty(v.Description), createdAt.UnixMilli())
	if err != nil {
		if isUniqueViolation(err) {
			return &params.DuplicateVersionError{Date: dateOf(day), Name: name}
		}
		return fmt.Errorf("param store: 写入参数版本失败: %w", err)
	}
	return nil
}

// History 返回某参数按日期倒序的版本明细。limit<=0 时取默认上限。
func (s *Store) History(ctx context.Context, name string, limit int) ([]params.Version, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("param store: 参数名不能为空")
	}
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT date, name, value, COALESCE(description, ''), created_at
		 FROM tuning_parameters WHERE name = ? ORDER BY date DESC, id DESC LIMIT ?`,
		name, limit)
	if err != nil {
		return nil, fmt.Errorf("param store: 查询历史版本失败: %w", err)
	}
	defer rows.Close()
	out := make([]params.Version, 0, limit)
	for rows.Next() {
		v, err := scanVersion(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// Seed 为 defs 中尚无任何版本的参数在 epoch 日期写入默认值，返回写入条数。
// 已有任何版本的参数一概跳过，重复调用不产生新行。
func (s *Store) Seed(ctx context.Context, defs []params.Definition, epoch time.Time) (int, error) {
	if epoch.IsZero() {
		return 0, fmt.Errorf("param store: seed 缺少 epoch 日期")
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("param store: 开启事务失败: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	day := dateKey(epoch)
	now := time.Now().UnixMilli()
	inserted := 0
	for _, def := range defs {
		name := strings.TrimSpace(def.Name)
		if name == "" {
			continue
		}
		var count int
		if err := tx.QueryRowContext(ctx,
			`SELECT COUNT(1) FROM tuning_parameters WHERE name = ?`, name).Scan(&count); err != nil {
			return 0, fmt.Errorf("param store: 检查参数 %s 失败: %w", name, err)
		}
		if count > 0 {
			continue
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO tuning_parameters (date, name, value, description, created_at) VALUES (?, ?, ?, ?, ?)`,
			day, name, def.Default, nullIfEmpty(def.Description), now); err != nil {
			return 0, fmt.Errorf("param store: 写入默认参数 %s 失败: %w", name, err)
		}
		inserted++
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("param store: 提交事务失败: %w", err)
	}
	return inserted, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanVersion(row scanner) (params.Version, error) {
	var (
		day       string
		name      string
		value     float64
		desc      string
		createdAt int64
	)
	if err := row.Scan(&day, &name, &value, &desc, &createdAt); err != nil {
		return params.Version{}, fmt.Errorf("param store: 读取版本行失败: %w", err)
	}
	return params.Version{
		Date:        dateOf(day),
		Name:        name,
		Value:       value,
		Description: desc,
		CreatedAt:   time.UnixMilli(createdAt),
	}, nil
}

func dateKey(t time.Time) string {
	return t.Format("2006-01-02")
}

func dateOf(key string) time.Time {
	t, _ := time.Parse("2006-01-02", key)
	return t
}

func nullIfEmpty(s string) any {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return s
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
