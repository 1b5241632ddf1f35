/*
Package recur implements the recurring-transaction generation engine.

PURPOSE:
  Given user-defined recurrence rules ("pay rent monthly on day 3"), the
  engine deterministically materializes one concrete transaction per due
  calendar period, catching up over any number of missed periods, and is
  safe to invoke redundantly from both an interactive session and a
  server-side cron trigger.

KEY CONCEPTS IN THIS FILE (types.go):
  - RecurrenceRule: a rule's template fields, schedule, and engine cursor
  - Instance: a generated transaction tied to exactly one (rule, date) pair
  - Frequency: daily/weekly/monthly/yearly with "every N units" intervals

DESIGN PRINCIPLES:
  1. Idempotency: (rule id, occurrence date) is the uniqueness key; a period
     is materialized at most once no matter how many runs observe it
  2. Precision: decimal.Decimal for money, never float64
  3. Explicit clock: "now" is threaded as a parameter so catch-up behavior
     is deterministic under test

SEE ALSO:
  - dates.go: next-occurrence arithmetic with month-end clamping
  - generator.go: the per-rule catch-up loop
  - runner.go: the run-all-due-rules entry point
*/
package recur

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type RuleID string
type UserID string
type InstanceID string

// NewInstanceID generates a random identifier for a materialized instance.
func NewInstanceID() InstanceID {
	return InstanceID(uuid.NewString())
}

// =============================================================================
// FREQUENCY - How often a rule recurs
// =============================================================================

// Frequency is the calendar unit of a rule's schedule.
type Frequency string

const (
	FreqDaily   Frequency = "daily"
	FreqWeekly  Frequency = "weekly"
	FreqMonthly Frequency = "monthly"
	FreqYearly  Frequency = "yearly"
)

// Valid reports whether f is one of the supported frequencies.
func (f Frequency) Valid() bool {
	switch f {
	case FreqDaily, FreqWeekly, FreqMonthly, FreqYearly:
		return true
	}
	return false
}

// FlowType distinguishes income from expense instances.
type FlowType string

const (
	FlowIncome  FlowType = "income"
	FlowExpense FlowType = "expense"
)

// =============================================================================
// RECURRENCE RULE
// =============================================================================

// RecurrenceRule is a user-defined schedule for generating transactions.
// Template fields are copied verbatim onto every generated instance.
// Cursor fields are mutated only by this engine.
type RecurrenceRule struct {
	ID     RuleID
	UserID UserID

	// Template fields.
	Title        string
	Flow         FlowType
	Amount       decimal.Decimal
	CurrencyCode string
	ExchangeRate decimal.Decimal
	Tags         []string
	CategoryID   *string

	// Schedule fields.
	Frequency Frequency
	Interval  int // every N frequency units, >= 1
	StartDate Date
	EndDate   *Date // inclusive
	// OccurrencesLimit caps how many instances the rule may ever create.
	OccurrencesLimit *int

	// Cursor/bookkeeping fields.
	NextRunAt          Date // next not-yet-materialized occurrence
	LastRunAt          *time.Time
	OccurrencesCreated int
	IsActive           bool
}

// Validate checks the schedule fields this engine depends on. Rules are
// created by the CRUD layer, so a failure here is a data error that slipped
// through validation elsewhere.
func (r *RecurrenceRule) Validate() error {
	if !r.Frequency.Valid() {
		return &DataError{RuleID: r.ID, Err: ErrUnsupportedFrequency, Detail: string(r.Frequency)}
	}
	if r.Interval < 1 {
		return &DataError{RuleID: r.ID, Err: ErrInvalidInterval}
	}
	return nil
}

// InstanceOn builds the transaction instance this rule materializes for a
// given occurrence date. BaseAmount is amount converted through the rule's
// exchange rate.
func (r *RecurrenceRule) InstanceOn(date Date, now time.Time) Instance {
	return Instance{
		ID:           NewInstanceID(),
		RuleID:       r.ID,
		UserID:       r.UserID,
		Title:        r.Title,
		Flow:         r.Flow,
		Amount:       r.Amount,
		CurrencyCode: r.CurrencyCode,
		ExchangeRate: r.ExchangeRate,
		BaseAmount:   r.Amount.Mul(r.ExchangeRate),
		Tags:         append([]string(nil), r.Tags...),
		CategoryID:   r.CategoryID,
		Date:         date,
		CreatedAt:    now,
	}
}

// =============================================================================
// INSTANCE - A generated transaction
// =============================================================================

// Instance is a concrete transaction materialized from a rule for exactly
// one calendar date. The engine creates instances and never mutates or
// deletes them; later user edits go through the transaction CRUD layer and
// do not affect the rule's cursor.
type Instance struct {
	ID           InstanceID
	RuleID       RuleID
	UserID       UserID
	Title        string
	Flow         FlowType
	Amount       decimal.Decimal
	CurrencyCode string
	ExchangeRate decimal.Decimal
	BaseAmount   decimal.Decimal
	Tags         []string
	CategoryID   *string
	Date         Date // the calendar period this instance represents
	CreatedAt    time.Time
}
