/*
runner.go - Top-level scheduler run

PURPOSE:
  The single entry point both triggers share: fetch all due rules, run the
  per-rule generator for each, and aggregate a summary. One rule's failure
  never aborts the run; it becomes an entry in the summary's error list.

CLOCK:
  Run takes "now" explicitly so catch-up behavior is deterministic under
  test. Only RunNow defaults to wall-clock time.

RETRY POLICY:
  Implicit re-invocation. There is no backoff or retry inside a run; a
  failed or unprocessed rule stays due and is picked up by the next
  interactive or cron invocation.

CANCELLATION:
  A caller may bound the run with a context deadline. Once the context is
  done, no further rules are scheduled; unprocessed rules remain due.
*/
package recur

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
)

// RunSummary is the aggregate outcome of one scheduler run.
type RunSummary struct {
	Processed   int         `json:"processed"`
	Generated   int         `json:"generated"`
	Skipped     int         `json:"skipped"`
	Deactivated int         `json:"deactivated"`
	Errors      []RuleError `json:"errors"`
}

// Runner executes scheduler runs over a store.
type Runner struct {
	store Store
	log   *logrus.Logger
}

func NewRunner(store Store, log *logrus.Logger) *Runner {
	return &Runner{store: store, log: log}
}

// RunNow runs the scheduler for all users at the current wall-clock time.
func (r *Runner) RunNow(ctx context.Context) (RunSummary, error) {
	return r.Run(ctx, time.Now().UTC(), "")
}

// Run fetches all rules due at now (optionally scoped to one user) and
// processes each independently. The returned error is non-nil only when the
// due-rule fetch itself fails; per-rule failures are reported in the
// summary and never abort the run.
func (r *Runner) Run(ctx context.Context, now time.Time, user UserID) (RunSummary, error) {
	summary := RunSummary{Errors: []RuleError{}}

	rules, err := r.store.FetchDueRules(ctx, now, user)
	if err != nil {
		return summary, fmt.Errorf("fetch due rules: %w", err)
	}

	gen := &Generator{Store: r.store, Log: r.log}
	for _, rule := range rules {
		if ctx.Err() != nil {
			// Out of budget. Whatever is left stays due for the next run.
			break
		}

		res, err := gen.Process(ctx, rule, now)
		summary.Processed++
		summary.Generated += res.Generated
		summary.Skipped += res.Skipped
		if res.Deactivated {
			summary.Deactivated++
		}
		if err != nil {
			summary.Errors = append(summary.Errors, RuleError{RuleID: rule.ID, Message: err.Error()})
			r.log.WithFields(logrus.Fields{
				"rule_id": rule.ID,
			}).WithError(err).Warn("rule processing failed")
		}
	}

	r.log.WithFields(logrus.Fields{
		"processed":   summary.Processed,
		"generated":   summary.Generated,
		"skipped":     summary.Skipped,
		"deactivated": summary.Deactivated,
		"errors":      len(summary.Errors),
	}).Info("scheduler run completed")

	return summary, nil
}
