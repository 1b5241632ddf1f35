/*
Package sqlite provides the SQLite-backed implementation of recur.Store.

PURPOSE:
  Durable persistence for recurrence rules, generated transactions, and
  scheduler-run audit rows. In production the same patterns apply to
  PostgreSQL - only minor SQL dialect differences.

IDEMPOTENCY BACKSTOP:
  The generated_transactions table carries a UNIQUE(rule_id, occurrence_date)
  index. Even if two overlapping runs both pass the existence check, the
  second insert fails with a constraint violation, which is mapped to
  recur.ErrDuplicateInstance and treated by the generator as a skip. The
  durable check plus this index is what makes redundant invocation safe.

KEY TABLES:
  recurrence_rules:       rule templates, schedules, and engine cursors
  generated_transactions: materialized instances (one per rule+date)
  scheduler_runs:         audit rows, one per engine run

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging) for better concurrency:
  multiple readers don't block, single writer at a time.

SEE ALSO:
  - recur/store.go: the interface this implements
  - recur/store/memory.go: in-memory implementation for tests
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/warp/recurrence-engine/recur"
)

// Store implements recur.Store plus the rule/instance/run queries the API
// layer and tests need.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New creates a SQLite store at the given path. Use ":memory:" for an
// in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS recurrence_rules (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		title TEXT NOT NULL,
		flow TEXT NOT NULL,
		amount TEXT NOT NULL,
		currency_code TEXT NOT NULL,
		exchange_rate TEXT NOT NULL,
		tags_json TEXT,
		category_id TEXT,
		frequency TEXT NOT NULL,
		interval INTEGER NOT NULL,
		start_date TEXT NOT NULL,
		end_date TEXT,
		occurrences_limit INTEGER,
		next_run_at TEXT NOT NULL,
		last_run_at TEXT,
		occurrences_created INTEGER NOT NULL DEFAULT 0,
		is_active INTEGER NOT NULL DEFAULT 1
	);

	-- Due-rule fetch is the hot path of every run.
	CREATE INDEX IF NOT EXISTS idx_rules_due
		ON recurrence_rules(is_active, next_run_at);
	CREATE INDEX IF NOT EXISTS idx_rules_user
		ON recurrence_rules(user_id);

	CREATE TABLE IF NOT EXISTS generated_transactions (
		id TEXT PRIMARY KEY,
		rule_id TEXT NOT NULL REFERENCES recurrence_rules(id),
		user_id TEXT NOT NULL,
		title TEXT NOT NULL,
		flow TEXT NOT NULL,
		amount TEXT NOT NULL,
		currency_code TEXT NOT NULL,
		exchange_rate TEXT NOT NULL,
		base_amount TEXT NOT NULL,
		tags_json TEXT,
		category_id TEXT,
		occurrence_date TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	-- CRITICAL: one instance per (rule, date). Concurrent runs that both
	-- pass the existence check collide here instead of double-creating.
	CREATE UNIQUE INDEX IF NOT EXISTS idx_unique_rule_period
		ON generated_transactions(rule_id, occurrence_date);
	CREATE INDEX IF NOT EXISTS idx_instances_rule
		ON generated_transactions(rule_id, occurrence_date);

	CREATE TABLE IF NOT EXISTS scheduler_runs (
		id TEXT PRIMARY KEY,
		trigger_source TEXT NOT NULL,
		started_at TEXT NOT NULL,
		completed_at TEXT,
		processed INTEGER NOT NULL DEFAULT 0,
		generated INTEGER NOT NULL DEFAULT 0,
		skipped INTEGER NOT NULL DEFAULT 0,
		deactivated INTEGER NOT NULL DEFAULT 0,
		error_count INTEGER NOT NULL DEFAULT 0,
		status TEXT NOT NULL,
		error TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_runs_started
		ON scheduler_runs(started_at DESC);
	`
	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// RULES
// =============================================================================

// CreateRule inserts a rule. Rules normally arrive through the dashboard's
// CRUD layer; this exists for seeding and tests.
func (s *Store) CreateRule(ctx context.Context, rule recur.RecurrenceRule) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tags, err := marshalTags(rule.Tags)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO recurrence_rules (id, user_id, title, flow, amount, currency_code,
			exchange_rate, tags_json, category_id, frequency, interval, start_date,
			end_date, occurrences_limit, next_run_at, last_run_at, occurrences_created, is_active)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err = s.db.ExecContext(ctx, query,
		string(rule.ID), string(rule.UserID), rule.Title, string(rule.Flow),
		rule.Amount.String(), rule.CurrencyCode, rule.ExchangeRate.String(),
		tags, rule.CategoryID, string(rule.Frequency), rule.Interval,
		rule.StartDate.String(), nullDate(rule.EndDate), rule.OccurrencesLimit,
		rule.NextRunAt.String(), nullTime(rule.LastRunAt), rule.OccurrencesCreated,
		boolToInt(rule.IsActive),
	)
	if err != nil {
		return fmt.Errorf("create rule: %w", err)
	}
	return nil
}

// GetRule returns a rule by id.
func (s *Store) GetRule(ctx context.Context, id recur.RuleID) (recur.RecurrenceRule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, ruleSelect+` WHERE id = ?`, string(id))
	rule, err := scanRule(row)
	if errors.Is(err, sql.ErrNoRows) {
		return recur.RecurrenceRule{}, recur.ErrRuleNotFound
	}
	return rule, err
}

const ruleSelect = `
	SELECT id, user_id, title, flow, amount, currency_code, exchange_rate,
		tags_json, category_id, frequency, interval, start_date, end_date,
		occurrences_limit, next_run_at, last_run_at, occurrences_created, is_active
	FROM recurrence_rules`

func (s *Store) FetchDueRules(ctx context.Context, now time.Time, user recur.UserID) ([]recur.RecurrenceRule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := ruleSelect + ` WHERE is_active = 1 AND next_run_at <= ?`
	args := []any{recur.DateOf(now).String()}
	if user != "" {
		query += ` AND user_id = ?`
		args = append(args, string(user))
	}
	query += ` ORDER BY id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("fetch due rules: %w", err)
	}
	defer rows.Close()

	var rules []recur.RecurrenceRule
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, err
		}
		rules = append(rules, rule)
	}
	return rules, rows.Err()
}

func (s *Store) AdvanceRule(ctx context.Context, ruleID recur.RuleID, nextRunAt recur.Date, lastRunAt time.Time, occurrencesCreated int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		UPDATE recurrence_rules
		SET next_run_at = ?, last_run_at = ?, occurrences_created = ?
		WHERE id = ?
	`
	res, err := s.db.ExecContext(ctx, query,
		nextRunAt.String(), lastRunAt.UTC().Format(time.RFC3339), occurrencesCreated, string(ruleID))
	if err != nil {
		return fmt.Errorf("advance rule: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return recur.ErrRuleNotFound
	}
	return nil
}

func (s *Store) DeactivateRule(ctx context.Context, ruleID recur.RuleID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx,
		`UPDATE recurrence_rules SET is_active = 0 WHERE id = ?`, string(ruleID))
	if err != nil {
		return fmt.Errorf("deactivate rule: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return recur.ErrRuleNotFound
	}
	return nil
}

// =============================================================================
// GENERATED TRANSACTIONS
// =============================================================================

func (s *Store) ExistsInstanceOn(ctx context.Context, ruleID recur.RuleID, date recur.Date) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM generated_transactions WHERE rule_id = ? AND occurrence_date = ?`,
		string(ruleID), date.String()).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("existence check: %w", err)
	}
	return count > 0, nil
}

func (s *Store) InsertInstance(ctx context.Context, inst recur.Instance) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tags, err := marshalTags(inst.Tags)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO generated_transactions (id, rule_id, user_id, title, flow, amount,
			currency_code, exchange_rate, base_amount, tags_json, category_id,
			occurrence_date, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err = s.db.ExecContext(ctx, query,
		string(inst.ID), string(inst.RuleID), string(inst.UserID), inst.Title,
		string(inst.Flow), inst.Amount.String(), inst.CurrencyCode,
		inst.ExchangeRate.String(), inst.BaseAmount.String(), tags, inst.CategoryID,
		inst.Date.String(), inst.CreatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		var sqliteErr sqlite3.Error
		if errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique {
			return recur.ErrDuplicateInstance
		}
		return fmt.Errorf("insert instance: %w", err)
	}
	return nil
}

// ListInstancesForRule returns a rule's instances ordered by occurrence date.
func (s *Store) ListInstancesForRule(ctx context.Context, ruleID recur.RuleID) ([]recur.Instance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `
		SELECT id, rule_id, user_id, title, flow, amount, currency_code,
			exchange_rate, base_amount, tags_json, category_id, occurrence_date, created_at
		FROM generated_transactions
		WHERE rule_id = ?
		ORDER BY occurrence_date
	`
	rows, err := s.db.QueryContext(ctx, query, string(ruleID))
	if err != nil {
		return nil, fmt.Errorf("list instances: %w", err)
	}
	defer rows.Close()

	var instances []recur.Instance
	for rows.Next() {
		var inst recur.Instance
		var id, ruleID, userID, flow, amount, rate, base, date, createdAt string
		var tags, categoryID sql.NullString
		if err := rows.Scan(&id, &ruleID, &userID, &inst.Title, &flow, &amount,
			&inst.CurrencyCode, &rate, &base, &tags, &categoryID, &date, &createdAt); err != nil {
			return nil, err
		}

		inst.ID = recur.InstanceID(id)
		inst.RuleID = recur.RuleID(ruleID)
		inst.UserID = recur.UserID(userID)
		inst.Flow = recur.FlowType(flow)
		if inst.Amount, err = decimal.NewFromString(amount); err != nil {
			return nil, fmt.Errorf("parse amount: %w", err)
		}
		if inst.ExchangeRate, err = decimal.NewFromString(rate); err != nil {
			return nil, fmt.Errorf("parse exchange rate: %w", err)
		}
		if inst.BaseAmount, err = decimal.NewFromString(base); err != nil {
			return nil, fmt.Errorf("parse base amount: %w", err)
		}
		if inst.Tags, err = unmarshalTags(tags); err != nil {
			return nil, err
		}
		if categoryID.Valid {
			c := categoryID.String
			inst.CategoryID = &c
		}
		if inst.Date, err = recur.ParseDate(date); err != nil {
			return nil, err
		}
		inst.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)

		instances = append(instances, inst)
	}
	return instances, rows.Err()
}

// =============================================================================
// SCHEDULER RUNS (audit)
// =============================================================================

// SchedulerRun is one recorded engine run. Informational only; not part of
// the idempotency mechanism.
type SchedulerRun struct {
	ID          string
	Trigger     string // interactive, cron
	StartedAt   time.Time
	CompletedAt *time.Time
	Processed   int
	Generated   int
	Skipped     int
	Deactivated int
	ErrorCount  int
	Status      string // completed, failed
	Error       string
}

// SaveRun records a scheduler run.
func (s *Store) SaveRun(ctx context.Context, r SchedulerRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO scheduler_runs (id, trigger_source, started_at, completed_at,
			processed, generated, skipped, deactivated, error_count, status, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			completed_at = excluded.completed_at,
			processed = excluded.processed,
			generated = excluded.generated,
			skipped = excluded.skipped,
			deactivated = excluded.deactivated,
			error_count = excluded.error_count,
			status = excluded.status,
			error = excluded.error
	`
	var completedAt *string
	if r.CompletedAt != nil {
		c := r.CompletedAt.UTC().Format(time.RFC3339)
		completedAt = &c
	}
	_, err := s.db.ExecContext(ctx, query,
		r.ID, r.Trigger, r.StartedAt.UTC().Format(time.RFC3339), completedAt,
		r.Processed, r.Generated, r.Skipped, r.Deactivated, r.ErrorCount,
		r.Status, r.Error,
	)
	return err
}

// ListRuns returns recorded runs, most recent first.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]SchedulerRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = 50
	}
	query := `
		SELECT id, trigger_source, started_at, completed_at, processed, generated,
			skipped, deactivated, error_count, status, error
		FROM scheduler_runs
		ORDER BY started_at DESC
		LIMIT ?
	`
	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []SchedulerRun
	for rows.Next() {
		var r SchedulerRun
		var startedAt string
		var completedAt, errMsg sql.NullString
		if err := rows.Scan(&r.ID, &r.Trigger, &startedAt, &completedAt,
			&r.Processed, &r.Generated, &r.Skipped, &r.Deactivated,
			&r.ErrorCount, &r.Status, &errMsg); err != nil {
			return nil, err
		}
		r.StartedAt, _ = time.Parse(time.RFC3339, startedAt)
		if completedAt.Valid {
			t, _ := time.Parse(time.RFC3339, completedAt.String)
			r.CompletedAt = &t
		}
		r.Error = errMsg.String
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// =============================================================================
// SCAN / SERIALIZATION HELPERS
// =============================================================================

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRule(row rowScanner) (recur.RecurrenceRule, error) {
	var rule recur.RecurrenceRule
	var id, userID, flow, amount, rate, frequency, startDate, nextRunAt string
	var tags, categoryID, endDate, lastRunAt sql.NullString
	var limit sql.NullInt64
	var isActive int

	err := row.Scan(&id, &userID, &rule.Title, &flow, &amount, &rule.CurrencyCode,
		&rate, &tags, &categoryID, &frequency, &rule.Interval, &startDate,
		&endDate, &limit, &nextRunAt, &lastRunAt, &rule.OccurrencesCreated, &isActive)
	if err != nil {
		return rule, err
	}

	rule.ID = recur.RuleID(id)
	rule.UserID = recur.UserID(userID)
	rule.Flow = recur.FlowType(flow)
	rule.Frequency = recur.Frequency(frequency)
	rule.IsActive = isActive != 0

	if rule.Amount, err = decimal.NewFromString(amount); err != nil {
		return rule, fmt.Errorf("parse amount: %w", err)
	}
	if rule.ExchangeRate, err = decimal.NewFromString(rate); err != nil {
		return rule, fmt.Errorf("parse exchange rate: %w", err)
	}
	if rule.Tags, err = unmarshalTags(tags); err != nil {
		return rule, err
	}
	if categoryID.Valid {
		c := categoryID.String
		rule.CategoryID = &c
	}
	if rule.StartDate, err = recur.ParseDate(startDate); err != nil {
		return rule, err
	}
	if endDate.Valid {
		d, err := recur.ParseDate(endDate.String)
		if err != nil {
			return rule, err
		}
		rule.EndDate = &d
	}
	if limit.Valid {
		n := int(limit.Int64)
		rule.OccurrencesLimit = &n
	}
	if rule.NextRunAt, err = recur.ParseDate(nextRunAt); err != nil {
		return rule, err
	}
	if lastRunAt.Valid {
		t, err := time.Parse(time.RFC3339, lastRunAt.String)
		if err != nil {
			return rule, fmt.Errorf("parse last_run_at: %w", err)
		}
		rule.LastRunAt = &t
	}
	return rule, nil
}

func marshalTags(tags []string) (sql.NullString, error) {
	if len(tags) == 0 {
		return sql.NullString{}, nil
	}
	b, err := json.Marshal(tags)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("marshal tags: %w", err)
	}
	return sql.NullString{String: string(b), Valid: true}, nil
}

func unmarshalTags(s sql.NullString) ([]string, error) {
	if !s.Valid || s.String == "" {
		return nil, nil
	}
	var tags []string
	if err := json.Unmarshal([]byte(s.String), &tags); err != nil {
		return nil, fmt.Errorf("unmarshal tags: %w", err)
	}
	return tags, nil
}

func nullDate(d *recur.Date) any {
	if d == nil {
		return nil
	}
	return d.String()
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().Format(time.RFC3339)
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
