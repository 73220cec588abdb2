package scheduler

import (
	"time"

	"github.com/go-co-op/gocron"
	"go.uber.org/zap"
)

// Purger drops expired entries and reports how many were removed.
type Purger interface {
	Purge() int
}

// Janitor periodically purges expired fetch-cache entries and sessions.
// It never touches a session's canonical frame.
type Janitor struct {
	scheduler *gocron.Scheduler
	targets   map[string]Purger
	interval  time.Duration
	logger    *zap.Logger
}

// New creates a new Janitor over the named targets.
func New(targets map[string]Purger, interval time.Duration, logger *zap.Logger) *Janitor {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := gocron.NewScheduler(time.UTC)
	s.SingletonModeAll()
	return &Janitor{
		scheduler: s,
		targets:   targets,
		interval:  interval,
		logger:    logger,
	}
}

// Start schedules the periodic job and starts the underlying scheduler.
func (j *Janitor) Start() error {
	if len(j.targets) == 0 {
		j.logger.Info("janitor: nothing to purge; not scheduling")
		return nil
	}

	interval := j.interval
	if interval <= 0 {
		interval = 5 * time.Minute
	}

	if _, err := j.scheduler.Every(interval).WaitForSchedule().Do(func() { j.Sweep() }); err != nil {
		return err
	}

	j.scheduler.StartAsync()
	return nil
}

// Sweep purges every target once and returns the removed counts by name.
func (j *Janitor) Sweep() map[string]int {
	removed := make(map[string]int, len(j.targets))
	for name, t := range j.targets {
		n := t.Purge()
		removed[name] = n
		if n > 0 {
			j.logger.Debug("janitor: purged expired entries",
				zap.String("target", name),
				zap.Int("removed", n))
		}
	}
	return removed
}

// Stop stops the scheduler and cancels any future jobs.
func (j *Janitor) Stop() {
	if j.scheduler != nil {
		j.scheduler.Stop()
	}
}
