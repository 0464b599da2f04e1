package scheduler

import (
	"context"
	"errors"
	"time"

	"spotguard/internal/logger"
)

// ErrStop 由任务返回，表示正常结束调度（例如 kill switch 触发）。
var ErrStop = errors.New("scheduler: stop requested")

// AlignedScheduler 在每根 K 线收盘后 Offset 时刻执行任务；
// Fixed=true 时退化为固定间隔轮询。任务串行执行，从不重叠。
type AlignedScheduler struct {
	Interval       time.Duration
	Offset         time.Duration
	Fixed          bool
	RunImmediately bool

	nowFn func() time.Time
}

func NewAlignedScheduler(interval, offset time.Duration) *AlignedScheduler {
	return &AlignedScheduler{
		Interval: interval,
		Offset:   offset,
		nowFn:    time.Now,
	}
}

// Run 阻塞直到 ctx 结束或任务返回 ErrStop；ctx 结束与 ErrStop 都返回 nil。
// 任务返回的其他错误只记录日志，不终止调度。
func (s *AlignedScheduler) Run(ctx context.Context, task func(context.Context) error) error {
	if s == nil || task == nil {
		return errors.New("scheduler: nil scheduler or task")
	}
	if s.Interval <= 0 {
		return errors.New("scheduler: interval must be > 0")
	}
	if s.Offset < 0 {
		logger.Warnf("AlignedScheduler: negative offset=%s, clamp to 0", s.Offset)
		s.Offset = 0
	}
	if s.nowFn == nil {
		s.nowFn = time.Now
	}

	startAt := s.nowFn().UTC()
	logger.Infof("AlignedScheduler: started interval=%s offset=%s fixed=%v run_immediately=%v at=%s",
		s.Interval, s.Offset, s.Fixed, s.RunImmediately, startAt.Format(time.RFC3339))

	if s.RunImmediately {
		if stop := s.runTask(ctx, task); stop {
			return nil
		}
	}

	for {
		now := s.nowFn().UTC()
		nextClose, wakeAt, untilClose, wait := s.nextTimes(now)
		if s.Fixed {
			wakeAt = now.Add(s.Interval)
			wait = s.Interval
		}
		logger.Debugf("AlignedScheduler: until candle close=%s (close=%s) next run=%s (in %s) | uptime=%s",
			untilClose.Truncate(time.Second),
			nextClose.Format(time.RFC3339),
			wakeAt.Format(time.RFC3339),
			wait.Truncate(time.Second),
			now.Sub(startAt).Truncate(time.Second),
		)

		if wait > 0 {
			timer := time.NewTimer(wait)
			select {
			case <-ctx.Done():
				timer.Stop()
				logger.Infof("AlignedScheduler: ctx done, exit")
				return nil
			case <-timer.C:
			}
		}
		if stop := s.runTask(ctx, task); stop {
			return nil
		}
	}
}

func (s *AlignedScheduler) runTask(ctx context.Context, task func(context.Context) error) bool {
	if ctx.Err() != nil {
		return true
	}
	err := task(ctx)
	switch {
	case err == nil:
		return false
	case errors.Is(err, ErrStop):
		logger.Infof("AlignedScheduler: stop requested by task")
		return true
	default:
		logger.Errorf("AlignedScheduler: task failed: %v", err)
		return false
	}
}

func (s *AlignedScheduler) nextTimes(now time.Time) (nextClose time.Time, wakeAt time.Time, untilClose time.Duration, wait time.Duration) {
	now = now.UTC()
	nextClose = now.Truncate(s.Interval).Add(s.Interval)
	wakeAt = nextClose.Add(s.Offset)
	untilClose = nextClose.Sub(now)
	wait = wakeAt.Sub(now)
	return nextClose, wakeAt, untilClose, wait
}
