package tasks

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/cherrypy/magicbus"
)

// CronTask calls a callback whenever a cron schedule comes due. Due-ness is
// checked against nowFunc (time.Now by default) on every tick of an
// internal poll ticker, not against the ticker's own timestamp, so tests
// can inject a controlled clock without needing cron-boundary-aligned
// wall-clock waits.
type CronTask struct {
	schedule cron.Schedule
	callback func()
	nowFunc  func() time.Time
	poll     time.Duration

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// Option customizes CronTask construction.
type Option func(*CronTask)

// WithNowFunc overrides the clock CronTask checks schedules against.
func WithNowFunc(now func() time.Time) Option {
	return func(t *CronTask) { t.nowFunc = now }
}

// WithPollInterval overrides how often CronTask checks whether its schedule
// is due (default 1s, matching standard cron minute-granularity scheduling).
func WithPollInterval(d time.Duration) Option {
	return func(t *CronTask) { t.poll = d }
}

// NewCronTask parses spec as a standard five-field cron expression
// (minute hour dom month dow).
func NewCronTask(spec string, callback func(), opts ...Option) (*CronTask, error) {
	schedule, err := cron.ParseStandard(spec)
	if err != nil {
		return nil, err
	}
	t := &CronTask{
		schedule: schedule,
		callback: callback,
		nowFunc:  time.Now,
		poll:     time.Second,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t, nil
}

// Start begins polling on a background goroutine derived from ctx.
func (t *CronTask) Start(ctx context.Context) {
	t.Stop()

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	t.mu.Lock()
	t.cancel = cancel
	t.done = done
	t.mu.Unlock()

	go t.run(runCtx, done)
}

func (t *CronTask) run(ctx context.Context, done chan struct{}) {
	defer close(done)
	next := t.schedule.Next(t.nowFunc())
	ticker := time.NewTicker(t.poll)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			now := t.nowFunc()
			if !now.Before(next) {
				t.callback()
				next = t.schedule.Next(now)
			}
		case <-ctx.Done():
			return
		}
	}
}

// Stop cancels the running goroutine, if any, and waits for it to exit.
func (t *CronTask) Stop() {
	t.mu.Lock()
	cancel, done := t.cancel, t.done
	t.cancel, t.done = nil, nil
	t.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// StartListener returns a ProcessBus listener (subscribe to START) that
// starts the CronTask running under a background context.
func (t *CronTask) StartListener() magicbus.ListenerFunc {
	return func(args ...any) (any, error) {
		t.Start(context.Background())
		return nil, nil
	}
}

// StopListener returns a ProcessBus listener (subscribe to STOP) that stops
// the CronTask, blocking until its goroutine has exited.
func (t *CronTask) StopListener() magicbus.ListenerFunc {
	return func(args ...any) (any, error) {
		t.Stop()
		return nil, nil
	}
}
