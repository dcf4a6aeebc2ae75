package scheduler

import (
	"context"
	"time"

	"kabuto/internal/logger"
)

// AlignedOnceScheduler 只在第一次执行时对齐到 AlignInterval 的边界（加偏移），
// 之后以首次执行时刻为锚点按固定 Interval 跑。适合"每天先对齐一次、
// 之后每 N 小时复盘一轮"这类节奏。
type AlignedOnceScheduler struct {
	Name           string
	AlignInterval  time.Duration
	Interval       time.Duration
	Offset         time.Duration
	RunImmediately bool

	ctx   context.Context
	nowFn func() time.Time
}

func NewAlignedOnceScheduler(ctx context.Context, alignInterval, interval, offset time.Duration) *AlignedOnceScheduler {
	if ctx == nil {
		ctx = context.Background()
	}
	return &AlignedOnceScheduler{
		AlignInterval: alignInterval,
		Interval:      interval,
		Offset:        offset,
		ctx:           ctx,
		nowFn:         time.Now,
	}
}

// Start 阻塞运行调度循环，直到 ctx 被取消。
func (s *AlignedOnceScheduler) Start(task func()) {
	if s == nil {
		return
	}
	prefix := s.logPrefix()
	if task == nil {
		logger.Warnf("%s: 任务为空，退出", prefix)
		return
	}
	if s.AlignInterval <= 0 || s.Interval <= 0 {
		logger.Warnf("%s: 周期非法 align_interval=%s interval=%s，退出", prefix, s.AlignInterval, s.Interval)
		return
	}
	if s.Offset < 0 {
		logger.Warnf("%s: 偏移为负（%s），按 0 处理", prefix, s.Offset)
		s.Offset = 0
	}
	if s.ctx == nil {
		s.ctx = context.Background()
	}
	if s.nowFn == nil {
		s.nowFn = time.Now
	}

	startAt := s.nowFn().UTC()
	logger.Infof("%s: 启动 align_interval=%s interval=%s offset=%s run_immediately=%v",
		prefix, s.AlignInterval, s.Interval, s.Offset, s.RunImmediately)

	if s.RunImmediately {
		logger.Infof("%s: run_immediately=true，先执行一轮", prefix)
		task()
	}

	now := s.nowFn().UTC()
	anchor := now.Truncate(s.AlignInterval).Add(s.AlignInterval).Add(s.Offset)
	logger.Infof("%s: 首轮对齐 %s（in %s），之后每 %s 一轮",
		prefix, anchor.Format(time.RFC3339), anchor.Sub(now).Truncate(time.Second), s.Interval)
	if !sleepUntil(s.ctx, s.nowFn, anchor, prefix) {
		return
	}
	task()

	for {
		now := s.nowFn().UTC()
		nextAt := nextFixedTimeAfter(anchor, s.Interval, now)
		logger.Infof("%s: 下次执行 %s（in %s）| 运行时长 %s",
			prefix,
			nextAt.Format(time.RFC3339),
			nextAt.Sub(now).Truncate(time.Second),
			now.Sub(startAt).Truncate(time.Second),
		)
		if !sleepUntil(s.ctx, s.nowFn, nextAt, prefix) {
			return
		}
		task()
	}
}

func (s *AlignedOnceScheduler) logPrefix() string {
	if s.Name != "" {
		return "AlignedOnceScheduler[" + s.Name + "]"
	}
	return "AlignedOnceScheduler"
}

// nextFixedTimeAfter 返回锚点之后、晚于 now 的下一个整周期时刻。
func nextFixedTimeAfter(anchor time.Time, interval time.Duration, now time.Time) time.Time {
	anchor = anchor.UTC()
	now = now.UTC()
	if interval <= 0 {
		return now
	}
	if now.Before(anchor) {
		return anchor
	}
	elapsed := now.Sub(anchor)
	return anchor.Add(interval * (elapsed/interval + 1))
}
