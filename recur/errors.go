/*
errors.go - Error types for the recurrence engine

PURPOSE:
  Sentinel errors plus the structured per-rule error carried in run
  summaries. The engine distinguishes two failure classes:

  1. Storage/transient errors - retryable; the rule's cursor is not
     advanced past the failing period, so the next run retries it verbatim
  2. Data errors - a rule with an invalid frequency/interval slipped
     through upstream validation; treated like a storage error for that
     rule (skipped, reported, run continues)

  Termination conditions (limit reached, end date passed) are NOT errors;
  they deactivate the rule and show up in the deactivated counter.

USAGE:
  if errors.Is(err, recur.ErrDuplicateInstance) {
      // lost a race with a concurrent run; the period is already covered
  }
*/
package recur

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrDuplicateInstance is returned by a store when an instance already
	// exists for a (rule, date) pair. Expected under concurrent runs; the
	// generator treats it as an idempotency skip, not a failure.
	ErrDuplicateInstance = errors.New("instance already exists for period")

	// ErrUnsupportedFrequency is returned for a frequency outside
	// daily/weekly/monthly/yearly.
	ErrUnsupportedFrequency = errors.New("unsupported frequency")

	// ErrInvalidInterval is returned for an interval below 1.
	ErrInvalidInterval = errors.New("interval must be a positive integer")

	// ErrRuleNotFound is returned when a referenced rule doesn't exist.
	ErrRuleNotFound = errors.New("rule not found")
)

// =============================================================================
// STRUCTURED ERRORS
// =============================================================================

// DataError marks a rule whose schedule fields are unusable. The rule is
// skipped for the run and reported in the summary.
type DataError struct {
	RuleID RuleID
	Err    error
	Detail string
}

func (e *DataError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("rule %s: %v: %s", e.RuleID, e.Err, e.Detail)
	}
	return fmt.Sprintf("rule %s: %v", e.RuleID, e.Err)
}

func (e *DataError) Unwrap() error { return e.Err }

// RuleError is one entry in a run summary's error list.
type RuleError struct {
	RuleID  RuleID `json:"rule_id"`
	Message string `json:"message"`
}

func (e RuleError) Error() string {
	return fmt.Sprintf("rule %s: %s", e.RuleID, e.Message)
}

// IsDataError reports whether err is a rule-data problem rather than a
// transient storage failure.
func IsDataError(err error) bool {
	return errors.Is(err, ErrUnsupportedFrequency) || errors.Is(err, ErrInvalidInterval)
}
