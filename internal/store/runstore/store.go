package runstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// ErrAlreadyEvaluated 表示结果行已被盖章（或不存在），本次评估不再生效。
var ErrAlreadyEvaluated = errors.New("run store: result already evaluated")

// RunRecord 是一次分析运行的头信息，参数快照在创建时冻结。
type RunRecord struct {
	ID             string
	AnalyzedAt     time.Time
	ParametersUsed map[string]float64
	TickerTotal    int
	TickerSkipped  int
}

// ResultRecord 是单只股票的分析结果行。
// Rationale/Risk 仅在过门槛并成功调用 AI 后才有值；EvaluatedAt 由反馈回路盖章，
// 已盖章的行不会被再次评估。
type ResultRecord struct {
	ID            int64
	RunID         string
	Ticker        string
	Price         float64
	RSI           float64
	DeviationRate float64
	Trend         string
	MACDLine      float64
	MACDSignal    float64
	DMIPlus       float64
	DMIMinus      float64
	ADX           float64
	Volume        float64
	Signals       map[string]string
	BuyScore      int
	ShortScore    int
	Rationale     string
	Risk          string
	EvaluatedAt   *time.Time
	Evaluation    *Evaluation

	// AnalyzedAt 来自所属运行，仅在带 JOIN 的查询里回填。
	AnalyzedAt time.Time
}

// Evaluation 是反馈回路对一条决策的兑现结果，随 evaluated_at 一起落库。
type Evaluation struct {
	Price      float64 `json:"price"`
	OutcomePct float64 `json:"outcome_pct"`
	Side       string  `json:"side"`
	Hit        bool    `json:"hit"`
}

// SearchQuery 是最新一次运行内的检索条件。零值字段不参与过滤。
type SearchQuery struct {
	MinBuyScore   int
	MinShortScore int
	SortBy        string // buy_score | short_score
	SortOrder     string // asc | desc
	Limit         int
}

// Store 用 Gorm + SQLite 保存分析运行与结果行。
type Store struct {
	db *gorm.DB
}

// Open 打开（必要时创建）运行结果数据库并完成迁移。
func Open(path string) (*Store, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("run store: 数据库路径不能为空")
	}
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("run store: 创建数据目录失败: %w", err)
		}
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&cache=shared", path)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:                                   logger.Default.LogMode(logger.Silent),
		DisableForeignKeyConstraintWhenMigrating: true,
	})
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(&analysisRunModel{}, &analysisResultModel{}); err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	// SQLite + WAL: allow a small amount of parallelism for concurrent HTTP reads
	// while keeping lock contention low.
	sqlDB.SetMaxOpenConns(2)
	sqlDB.SetMaxIdleConns(2)
	return &Store{db: db}, nil
}

// Close 关闭底层数据库连接。
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// SaveRun 以单个事务写入运行头和全部结果行：要么全部可见，要么全部不可见。
func (s *Store) SaveRun(ctx context.Context, run RunRecord, results []ResultRecord) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("run store 未初始化")
	}
	if strings.TrimSpace(run.ID) == "" {
		return fmt.Errorf("run store: run id 不能为空")
	}
	if run.AnalyzedAt.IsZero() {
		run.AnalyzedAt = time.Now()
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		runModel := newRunModel(run)
		if err := tx.Create(&runModel).Error; err != nil {
			return err
		}
		if len(results) == 0 {
			return nil
		}
		models := make([]analysisResultModel, 0, len(results))
		for _, rec := range results {
			rec.RunID = run.ID
			models = append(models, newResultModel(rec))
		}
		return tx.Create(&models).Error
	})
}

// LatestRun 返回最近一次运行的头信息。没有任何运行时 ok=false。
func (s *Store) LatestRun(ctx context.Context) (RunRecord, bool, error) {
	if s == nil || s.db == nil {
		return RunRecord{}, false, fmt.Errorf("run store 未初始化")
	}
	var model analysisRunModel
	err := s.db.WithContext(ctx).Order("analyzed_at DESC, created_at DESC").First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return RunRecord{}, false, nil
		}
		return RunRecord{}, false, err
	}
	return runModelToRecord(model), true, nil
}

// GetRun 按 id 查询运行头信息。
func (s *Store) GetRun(ctx context.Context, id string) (RunRecord, bool, error) {
	if s == nil || s.db == nil {
		return RunRecord{}, false, fmt.Errorf("run store 未初始化")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return RunRecord{}, false, fmt.Errorf("run store: run id 不能为空")
	}
	var model analysisRunModel
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return RunRecord{}, false, nil
		}
		return RunRecord{}, false, err
	}
	return runModelToRecord(model), true, nil
}

// ResultsForRun 返回某次运行的全部结果行，按股票代码排序。
func (s *Store) ResultsForRun(ctx context.Context, runID string) ([]ResultRecord, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("run store 未初始化")
	}
	var models []analysisResultModel
	if err := s.db.WithContext(ctx).
		Where("analysis_run_id = ?", runID).
		Order("ticker ASC").
		Find(&models).Error; err != nil {
		return nil, err
	}
	out := make([]ResultRecord, 0, len(models))
	for _, m := range models {
		out = append(out, resultModelToRecord(m))
	}
	return out, nil
}

// SearchResults 在指定运行内按分数过滤并排序。
func (s *Store) SearchResults(ctx context.Context, runID string, q SearchQuery) ([]ResultRecord, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("run store 未初始化")
	}
	limit := q.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	sortColumn := "buy_score"
	if q.SortBy == "short_score" {
		sortColumn = "short_score"
	}
	direction := "DESC"
	if strings.EqualFold(q.SortOrder, "asc") {
		direction = "ASC"
	}
	query := s.db.WithContext(ctx).Model(&analysisResultModel{}).Where("analysis_run_id = ?", runID)
	if q.MinBuyScore > 0 {
		query = query.Where("buy_score >= ?", q.MinBuyScore)
	}
	if q.MinShortScore > 0 {
		query = query.Where("short_score >= ?", q.MinShortScore)
	}
	var models []analysisResultModel
	if err := query.
		Order(fmt.Sprintf("%s %s, id ASC", sortColumn, direction)).
		Limit(limit).
		Find(&models).Error; err != nil {
		return nil, err
	}
	out := make([]ResultRecord, 0, len(models))
	for _, m := range models {
		out = append(out, resultModelToRecord(m))
	}
	return out, nil
}

// MatureUnevaluated 返回所属运行早于 cutoff 且尚未盖章的结果行，老的在前。
// 运行时间批量回填，避免逐行查询。
func (s *Store) MatureUnevaluated(ctx context.Context, cutoff time.Time, limit int) ([]ResultRecord, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("run store 未初始化")
	}
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	var models []analysisResultModel
	err := s.db.WithContext(ctx).
		Model(&analysisResultModel{}).
		Joins("JOIN analysis_runs ON analysis_runs.id = analysis_results.analysis_run_id").
		Where("analysis_results.evaluated_at IS NULL").
		Where("analysis_runs.analyzed_at <= ?", cutoff.UnixMilli()).
		Order("analysis_runs.analyzed_at ASC, analysis_results.id ASC").
		Limit(limit).
		Find(&models).Error
	if err != nil {
		return nil, err
	}
	analyzedAt, err := s.runTimesByID(ctx, models)
	if err != nil {
		return nil, err
	}
	out := make([]ResultRecord, 0, len(models))
	for _, m := range models {
		rec := resultModelToRecord(m)
		rec.AnalyzedAt = analyzedAt[m.RunID]
		out = append(out, rec)
	}
	return out, nil
}

// runTimesByID 一次性查出结果行涉及的所有运行时间。
func (s *Store) runTimesByID(ctx context.Context, models []analysisResultModel) (map[string]time.Time, error) {
	ids := make([]string, 0, len(models))
	seen := make(map[string]struct{}, len(models))
	for _, m := range models {
		if _, ok := seen[m.RunID]; ok {
			continue
		}
		seen[m.RunID] = struct{}{}
		ids = append(ids, m.RunID)
	}
	out := make(map[string]time.Time, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var runs []analysisRunModel
	if err := s.db.WithContext(ctx).Where("id IN ?", ids).Find(&runs).Error; err != nil {
		return nil, err
	}
	for _, r := range runs {
		out[r.ID] = millisToTime(r.AnalyzedAt)
	}
	return out, nil
}

// StampEvaluated 把兑现结果和评估时间写到结果行上。只有尚未盖章的行会被更新，
// 行已盖章或不存在时返回 ErrAlreadyEvaluated，调用方按已处理跳过。
func (s *Store) StampEvaluated(ctx context.Context, resultID int64, eval Evaluation, at time.Time) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("run store 未初始化")
	}
	if at.IsZero() {
		at = time.Now()
	}
	payload, err := json.Marshal(eval)
	if err != nil {
		return fmt.Errorf("run store: 序列化评估结果失败: %w", err)
	}
	ts := at.UnixMilli()
	res := s.db.WithContext(ctx).Model(&analysisResultModel{}).
		Where("id = ? AND evaluated_at IS NULL", resultID).
		Updates(map[string]interface{}{
			"evaluated_at": ts,
			"evaluation":   datatypes.JSON(payload),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrAlreadyEvaluated
	}
	return nil
}

// --------------------------- Model Helpers ------------------------------

func newRunModel(rec RunRecord) analysisRunModel {
	paramsJSON, _ := json.Marshal(rec.ParametersUsed)
	if rec.ParametersUsed == nil {
		paramsJSON = []byte("{}")
	}
	return analysisRunModel{
		ID:             strings.TrimSpace(rec.ID),
		AnalyzedAt:     rec.AnalyzedAt.UnixMilli(),
		ParametersUsed: datatypes.JSON(paramsJSON),
		TickerTotal:    rec.TickerTotal,
		TickerSkipped:  rec.TickerSkipped,
		CreatedAtUnix:  time.Now().UnixMilli(),
	}
}

func runModelToRecord(m analysisRunModel) RunRecord {
	rec := RunRecord{
		ID:            m.ID,
		AnalyzedAt:    millisToTime(m.AnalyzedAt),
		TickerTotal:   m.TickerTotal,
		TickerSkipped: m.TickerSkipped,
	}
	if len(m.ParametersUsed) > 0 {
		_ = json.Unmarshal(m.ParametersUsed, &rec.ParametersUsed)
	}
	return rec
}

func newResultModel(rec ResultRecord) analysisResultModel {
	signalsJSON, _ := json.Marshal(rec.Signals)
	if rec.Signals == nil {
		signalsJSON = []byte("{}")
	}
	model := analysisResultModel{
		RunID:         strings.TrimSpace(rec.RunID),
		Ticker:        strings.TrimSpace(rec.Ticker),
		Price:         rec.Price,
		RSI:           rec.RSI,
		DeviationRate: rec.DeviationRate,
		Trend:         rec.Trend,
		MACDLine:      rec.MACDLine,
		MACDSignal:    rec.MACDSignal,
		DMIPlus:       rec.DMIPlus,
		DMIMinus:      rec.DMIMinus,
		ADX:           rec.ADX,
		Volume:        rec.Volume,
		Signals:       datatypes.JSON(signalsJSON),
		BuyScore:      rec.BuyScore,
		ShortScore:    rec.ShortScore,
		Rationale:     rec.Rationale,
		Risk:          rec.Risk,
		CreatedAtUnix: time.Now().UnixMilli(),
	}
	if rec.EvaluatedAt != nil && !rec.EvaluatedAt.IsZero() {
		ts := rec.EvaluatedAt.UnixMilli()
		model.EvaluatedAtUnix = &ts
	}
	if rec.Evaluation != nil {
		payload, _ := json.Marshal(rec.Evaluation)
		model.Evaluation = datatypes.JSON(payload)
	}
	return model
}

func resultModelToRecord(m analysisResultModel) ResultRecord {
	rec := ResultRecord{
		ID:            m.ID,
		RunID:         m.RunID,
		Ticker:        m.Ticker,
		Price:         m.Price,
		RSI:           m.RSI,
		DeviationRate: m.DeviationRate,
		Trend:         m.Trend,
		MACDLine:      m.MACDLine,
		MACDSignal:    m.MACDSignal,
		DMIPlus:       m.DMIPlus,
		DMIMinus:      m.DMIMinus,
		ADX:           m.ADX,
		Volume:        m.Volume,
		BuyScore:      m.BuyScore,
		ShortScore:    m.ShortScore,
		Rationale:     m.Rationale,
		Risk:          m.Risk,
	}
	if len(m.Signals) > 0 {
		_ = json.Unmarshal(m.Signals, &rec.Signals)
	}
	if m.EvaluatedAtUnix != nil && *m.EvaluatedAtUnix > 0 {
		ts := millisToTime(*m.EvaluatedAtUnix)
		rec.EvaluatedAt = &ts
	}
	if len(m.Evaluation) > 0 {
		var eval Evaluation
		if err := json.Unmarshal(m.Evaluation, &eval); err == nil {
			rec.Evaluation = &eval
		}
	}
	return rec
}

func millisToTime(v int64) time.Time {
	if v <= 0 {
		return time.Time{}
	}
	return time.UnixMilli(v)
}
