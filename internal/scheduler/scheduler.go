package scheduler

import (
	"context"
	"time"

	"kabuto/internal/logger"
)

// AlignedScheduler 把任务执行对齐到 UTC 的整周期边界，再加一个固定偏移。
// 例：Interval=24h、Offset=6h10m 时每天在 06:10 UTC（15:10 JST）执行一次，
// 正好落在东证收盘快照之后。
type AlignedScheduler struct {
	Name           string
	Interval       time.Duration
	Offset         time.Duration
	RunImmediately bool

	ctx   context.Context
	nowFn func() time.Time
}

func NewAlignedScheduler(ctx context.Context, interval, offset time.Duration) *AlignedScheduler {
	if ctx == nil {
		ctx = context.Background()
	}
	return &AlignedScheduler{
		Interval: interval,
		Offset:   offset,
		ctx:      ctx,
		nowFn:    time.Now,
	}
}

// Start 阻塞运行调度循环，直到 ctx 被取消。
func (s *AlignedScheduler) Start(task func()) {
	if s == nil {
		return
	}
	prefix := s.logPrefix()
	if task == nil {
		logger.Warnf("%s: 任务为空，退出", prefix)
		return
	}
	if s.Interval <= 0 {
		logger.Warnf("%s: 周期非法 interval=%s，退出", prefix, s.Interval)
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
	logger.Infof("%s: 启动 interval=%s offset=%s run_immediately=%v",
		prefix, s.Interval, s.Offset, s.RunImmediately)

	if s.RunImmediately {
		logger.Infof("%s: run_immediately=true，先执行一轮", prefix)
		task()
	}

	for {
		now := s.nowFn().UTC()
		boundary, wakeAt, untilBoundary, wait := s.nextTimes(now)
		logger.Infof("%s: 对齐点=%s（in %s）下一轮=%s（in %s）| 运行时长 %s",
			prefix,
			boundary.Format(time.RFC3339),
			untilBoundary.Truncate(time.Second),
			wakeAt.Format(time.RFC3339),
			wait.Truncate(time.Second),
			now.Sub(startAt).Truncate(time.Second),
		)
		if !sleepUntil(s.ctx, s.nowFn, wakeAt, prefix) {
			return
		}
		task()
	}
}

func (s *AlignedScheduler) logPrefix() string {
	if s.Name != "" {
		return "AlignedScheduler[" + s.Name + "]"
	}
	return "AlignedScheduler"
}

func (s *AlignedScheduler) nextTimes(now time.Time) (boundary time.Time, wakeAt time.Time, untilBoundary time.Duration, wait time.Duration) {
	now = now.UTC()
	boundary = now.Truncate(s.Interval).Add(s.Interval)
	wakeAt = boundary.Add(s.Offset)
	untilBoundary = boundary.Sub(now)
	wait = wakeAt.Sub(now)
	return boundary, wakeAt, untilBoundary, wait
}

// sleepUntil 等待到 target；ctx 先取消则返回 false。target 已过直接放行。
func sleepUntil(ctx context.Context, nowFn func() time.Time, target time.Time, prefix string) bool {
	select {
	case <-ctx.Done():
		logger.Infof("%s: 上下文取消，调度结束", prefix)
		return false
	default:
	}
	wait := target.Sub(nowFn().UTC())
	if wait <= 0 {
		return true
	}
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		logger.Infof("%s: 上下文取消，调度结束", prefix)
		return false
	case <-timer.C:
		return true
	}
}
