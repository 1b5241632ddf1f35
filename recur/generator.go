/*
generator.go - Per-rule catch-up loop

PURPOSE:
  Walks one rule's cursor from next_run_at up to "now", materializing a
  transaction for every period that doesn't have one yet, and deactivating
  the rule when its occurrence limit or end date is reached.

LOOP ORDER (per period):
  1. Limit check      - occurrences_created >= limit: deactivate, stop
  2. End-date check   - cursor past the inclusive end date: deactivate, stop
  3. Idempotency      - instance already exists: skip, still advance
  4. Materialize      - insert instance, base_amount = amount * rate
  5. Advance          - cursor = NextOccurrence(cursor)

  A limit or end date hit mid catch-up therefore materializes every period
  up to and including the terminating one: the terminating instance is
  created by the iteration before the check fires.

FAILURE RULE:
  A storage error stops the loop without advancing past the failing period.
  Progress already made is still persisted; the failing period remains due
  and is retried verbatim on the next run.

SEE ALSO:
  - runner.go: runs this for every due rule
*/
package recur

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
)

// GenerateResult summarizes one rule's pass.
type GenerateResult struct {
	Generated   int  // instances newly materialized
	Skipped     int  // periods already covered (idempotency)
	Deactivated bool // rule hit its limit or end date
	Advanced    bool // cursor moved; bookkeeping was persisted
	NextRunAt   Date // new cursor when Advanced
}

// Generator processes a single rule against a store.
type Generator struct {
	Store Store
	Log   *logrus.Logger
}

// Process runs the catch-up loop for one rule. The returned error is the
// per-rule failure (storage or data); partial progress before the failure
// is already persisted and reflected in the result.
func (g *Generator) Process(ctx context.Context, rule RecurrenceRule, now time.Time) (GenerateResult, error) {
	var res GenerateResult

	if err := rule.Validate(); err != nil {
		return res, err
	}

	cursor := rule.NextRunAt
	created := rule.OccurrencesCreated
	advanced := 0
	deactivate := false
	var runErr error

	for !cursor.Time.After(now) {
		if rule.OccurrencesLimit != nil && created >= *rule.OccurrencesLimit {
			deactivate = true
			break
		}
		if rule.EndDate != nil && cursor.After(*rule.EndDate) {
			deactivate = true
			break
		}

		exists, err := g.Store.ExistsInstanceOn(ctx, rule.ID, cursor)
		if err != nil {
			runErr = fmt.Errorf("existence check for %s: %w", cursor, err)
			break
		}

		switch {
		case exists:
			res.Skipped++
		default:
			inst := rule.InstanceOn(cursor, now)
			err := g.Store.InsertInstance(ctx, inst)
			switch {
			case err == nil:
				res.Generated++
				created++
			case errors.Is(err, ErrDuplicateInstance):
				// A concurrent run won the race for this period. Covered
				// either way, so treat it exactly like an existence hit.
				res.Skipped++
			default:
				runErr = fmt.Errorf("insert instance for %s: %w", cursor, err)
			}
		}
		if runErr != nil {
			break
		}

		next, err := NextOccurrence(cursor, rule.Frequency, rule.Interval)
		if err != nil {
			runErr = err
			break
		}
		cursor = next
		advanced++
	}

	if advanced > 0 {
		if err := g.Store.AdvanceRule(ctx, rule.ID, cursor, now, created); err != nil {
			if runErr == nil {
				runErr = fmt.Errorf("advance rule: %w", err)
			}
		} else {
			res.Advanced = true
			res.NextRunAt = cursor
		}
	}

	if deactivate && runErr == nil {
		if err := g.Store.DeactivateRule(ctx, rule.ID); err != nil {
			runErr = fmt.Errorf("deactivate rule: %w", err)
		} else {
			res.Deactivated = true
		}
	}

	if g.Log != nil && (res.Generated > 0 || res.Deactivated) {
		g.Log.WithFields(logrus.Fields{
			"rule_id":     rule.ID,
			"generated":   res.Generated,
			"skipped":     res.Skipped,
			"deactivated": res.Deactivated,
		}).Debug("rule processed")
	}

	return res, runErr
}
