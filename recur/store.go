/*
store.go - Persistence boundary consumed by the engine

PURPOSE:
  The narrow contract between the catch-up algorithm and whatever holds the
  data. The surrounding application owns the rule/transaction CRUD; the
  engine only needs the five operations below.

DURABILITY REQUIREMENT:
  ExistsInstanceOn MUST be answered from durable storage, not an in-memory
  cache. Two independent triggers (a browser session and the cron job) may
  race, and this check is the authoritative defense against materializing
  the same period twice.

IMPLEMENTATIONS:
  - store/sqlite/sqlite.go: production store
  - recur/store/memory.go: in-memory store for tests
*/
package recur

import (
	"context"
	"time"
)

// Store is the persistence boundary for the engine. An empty user scopes
// FetchDueRules across all users (the cron-triggered variant); a non-empty
// user restricts it to that user's rules (the interactive variant).
type Store interface {
	// FetchDueRules returns rules with is_active = true and
	// next_run_at <= now.
	FetchDueRules(ctx context.Context, now time.Time, user UserID) ([]RecurrenceRule, error)

	// ExistsInstanceOn reports whether an instance already exists for the
	// (rule, date) idempotency key. Evaluated against durable storage.
	ExistsInstanceOn(ctx context.Context, ruleID RuleID, date Date) (bool, error)

	// InsertInstance persists a generated instance. Returns
	// ErrDuplicateInstance if the (rule, date) pair is already covered;
	// any other error is treated as transient and retried on the next run.
	InsertInstance(ctx context.Context, inst Instance) error

	// AdvanceRule persists a rule's cursor and bookkeeping after a pass:
	// the new next_run_at, last_run_at = the run's now, and the updated
	// occurrences_created total.
	AdvanceRule(ctx context.Context, ruleID RuleID, nextRunAt Date, lastRunAt time.Time, occurrencesCreated int) error

	// DeactivateRule sets is_active = false. The engine never reactivates
	// a rule; that is an explicit user action in the CRUD layer.
	DeactivateRule(ctx context.Context, ruleID RuleID) error
}
