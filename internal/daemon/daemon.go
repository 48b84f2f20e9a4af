// Package daemon keeps the holiday cache warm by refreshing it on an interval.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// DefaultInterval is used when NewDaemon is given a non-positive interval
const DefaultInterval = 3 * time.Hour

// ErrAlreadyRunning is returned by RunOnce while another refresh is in flight
var ErrAlreadyRunning = errors.New("refresh already in progress")

// Refresher reloads one school's holidays into the cache
type Refresher interface {
	Refresh(ctx context.Context, schoolID string) (int, error)
}

// Daemon represents the cache warming process
type Daemon struct {
	refresher Refresher
	schoolID  string
	interval  time.Duration  // interval mode
	schedule  string         // scheduled mode: cron expression, wins over interval
	location  *time.Location // schedule time zone
	logger    *zap.Logger
	ctx       context.Context
	cancel    context.CancelFunc

	mu          sync.Mutex
	running     bool
	lastRunTime time.Time
	lastCount   int
	lastErr     error
	runs        int
}

// Status is a snapshot of the daemon's last refresh
type Status struct {
	Interval    time.Duration
	Schedule    string
	Runs        int
	LastRunTime time.Time
	LastCount   int
	LastError   error
}

// NewDaemon creates a daemon refreshing schoolID every interval.
// A non-positive interval means DefaultInterval.
func NewDaemon(refresher Refresher, schoolID string, interval time.Duration, logger *zap.Logger) *Daemon {
	if interval <= 0 {
		interval = DefaultInterval
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Daemon{
		refresher: refresher,
		schoolID:  schoolID,
		interval:  interval,
		logger:    logger,
		ctx:       ctx,
		cancel:    cancel,
	}
}

// NewScheduledDaemon creates a daemon refreshing schoolID on a standard
// five-field cron schedule (or a descriptor such as "@daily") evaluated in loc
func NewScheduledDaemon(refresher Refresher, schoolID, schedule string, loc *time.Location, logger *zap.Logger) (*Daemon, error) {
	if _, err := cron.ParseStandard(schedule); err != nil {
		return nil, fmt.Errorf("invalid schedule %q: %w", schedule, err)
	}
	if loc == nil {
		loc = time.Local
	}

	d := NewDaemon(refresher, schoolID, 0, logger)
	d.interval = 0
	d.schedule = schedule
	d.location = loc
	return d, nil
}

// Start refreshes immediately, then on every tick or scheduled run, until Stop or SIGINT/SIGTERM
func (d *Daemon) Start() error {
	if d.schedule != "" {
		return d.startScheduledMode()
	}
	return d.startIntervalMode()
}

func (d *Daemon) startIntervalMode() error {
	d.logger.Info("Daemon started in interval mode",
		zap.String("school_id", d.schoolID),
		zap.Duration("interval", d.interval))

	d.runCheck()

	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	return d.wait(ticker.C)
}

func (d *Daemon) startScheduledMode() error {
	c := cron.New(
		cron.WithLocation(d.location),
		cron.WithChain(cron.SkipIfStillRunning(cronLogger{d.logger.Sugar()})),
	)
	if _, err := c.AddFunc(d.schedule, d.runCheck); err != nil {
		return fmt.Errorf("invalid schedule %q: %w", d.schedule, err)
	}

	d.logger.Info("Daemon started in scheduled mode",
		zap.String("school_id", d.schoolID),
		zap.String("schedule", d.schedule),
		zap.String("timezone", d.location.String()))

	d.runCheck()

	c.Start()
	defer func() { <-c.Stop().Done() }()

	return d.wait(nil)
}

// wait runs a refresh on every tick until the daemon is stopped or signalled.
// A nil tick channel never fires.
func (d *Daemon) wait(tick <-chan time.Time) error {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	for {
		select {
		case <-d.ctx.Done():
			d.logger.Info("Daemon stopped")
			return nil

		case sig := <-sigChan:
			d.logger.Info("Received signal, shutting down",
				zap.String("signal", sig.String()))
			d.Stop()
			return nil

		case <-tick:
			d.runCheck()
		}
	}
}

// Stop stops the daemon
func (d *Daemon) Stop() {
	d.cancel()
}

func (d *Daemon) runCheck() {
	if _, err := d.RunOnce(d.ctx); err != nil && !errors.Is(err, context.Canceled) {
		d.logger.Error("Holiday refresh failed",
			zap.String("school_id", d.schoolID),
			zap.Error(err))
	}
}

// RunOnce performs a single refresh. Concurrent calls are rejected with ErrAlreadyRunning.
func (d *Daemon) RunOnce(ctx context.Context) (int, error) {
	d.mu.Lock()
	if d.running {
		d.mu.Unlock()
		d.logger.Warn("Refresh already running, skipping concurrent execution")
		return 0, ErrAlreadyRunning
	}
	d.running = true
	d.mu.Unlock()

	count, err := d.refresher.Refresh(ctx, d.schoolID)

	d.mu.Lock()
	defer d.mu.Unlock()
	d.running = false
	d.runs++
	d.lastRunTime = time.Now()
	d.lastErr = err
	if err != nil {
		return 0, err
	}
	d.lastCount = count

	d.logger.Info("Holiday cache refreshed",
		zap.String("school_id", d.schoolID),
		zap.Int("holidays", count))

	return count, nil
}

// GetStatus returns daemon status
func (d *Daemon) GetStatus() Status {
	d.mu.Lock()
	defer d.mu.Unlock()

	return Status{
		Interval:    d.interval,
		Schedule:    d.schedule,
		Runs:        d.runs,
		LastRunTime: d.lastRunTime,
		LastCount:   d.lastCount,
		LastError:   d.lastErr,
	}
}

// cronLogger routes cron's own messages (skipped overlapping runs) to zap
type cronLogger struct {
	sugar *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.sugar.Infow(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.sugar.Errorw(msg, append(keysAndValues, "error", err)...)
}
