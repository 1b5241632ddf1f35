// scheduler.go - In-process periodic trigger
//
// PURPOSE:
//   Drives the same Runner contract as the HTTP triggers on a cron schedule,
//   so transactions keep materializing even when nobody opens the dashboard
//   and no external cron invoker is configured.
//
// RETRY POLICY:
//   Implicit re-invocation. A rule that fails or is missed in one tick
//   remains due and is recovered on the next tick, never sooner. Operators
//   sizing the schedule interval should assume exactly that recovery latency.
//
// USAGE:
//   trig := NewCronTrigger(runner, store, logger, "*/15 * * * *")
//   trig.Start()
//   // ... later
//   trig.Stop()
package api

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/warp/recurrence-engine/recur"
	"github.com/warp/recurrence-engine/store/sqlite"
)

// CronTrigger runs the scheduler on a fixed cron schedule.
type CronTrigger struct {
	Runner   *recur.Runner
	Store    *sqlite.Store
	Log      *logrus.Logger
	Schedule string

	cron *cron.Cron
}

func NewCronTrigger(runner *recur.Runner, store *sqlite.Store, log *logrus.Logger, schedule string) *CronTrigger {
	return &CronTrigger{
		Runner:   runner,
		Store:    store,
		Log:      log,
		Schedule: schedule,
	}
}

// Start begins the periodic trigger.
func (t *CronTrigger) Start() error {
	t.cron = cron.New()
	if _, err := t.cron.AddFunc(t.Schedule, t.runOnce); err != nil {
		return err
	}
	t.cron.Start()
	t.Log.WithField("schedule", t.Schedule).Info("cron trigger started")
	return nil
}

// Stop stops the trigger and waits for an in-flight run to finish.
func (t *CronTrigger) Stop() {
	if t.cron == nil {
		return
	}
	ctx := t.cron.Stop()
	<-ctx.Done()
	t.Log.Info("cron trigger stopped")
}

func (t *CronTrigger) runOnce() {
	ctx := context.Background()
	now := time.Now().UTC()

	summary, err := t.Runner.Run(ctx, now, "")
	RecordRun(ctx, t.Store, t.Log, TriggerCron, now, summary, err)
	if err != nil {
		t.Log.WithError(err).Error("scheduled run failed")
	}
}
