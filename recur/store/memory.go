// Package store provides an in-memory recur.Store for tests and local dev.
package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/warp/recurrence-engine/recur"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu        sync.RWMutex
	rules     map[recur.RuleID]*recur.RecurrenceRule
	instances map[instanceKey]recur.Instance
	order     []instanceKey

	// InsertErr injects a failure for a rule's InsertInstance calls.
	// Used by tests exercising per-rule error isolation.
	InsertErr map[recur.RuleID]error
}

type instanceKey struct {
	RuleID recur.RuleID
	Date   string
}

func NewMemory() *Memory {
	return &Memory{
		rules:     make(map[recur.RuleID]*recur.RecurrenceRule),
		instances: make(map[instanceKey]recur.Instance),
		InsertErr: make(map[recur.RuleID]error),
	}
}

// PutRule seeds or replaces a rule.
func (m *Memory) PutRule(rule recur.RecurrenceRule) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r := rule
	m.rules[rule.ID] = &r
}

// Rule returns a copy of a stored rule.
func (m *Memory) Rule(id recur.RuleID) (recur.RecurrenceRule, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.rules[id]
	if !ok {
		return recur.RecurrenceRule{}, false
	}
	return *r, true
}

// InstancesForRule returns a rule's instances in insertion order.
func (m *Memory) InstancesForRule(id recur.RuleID) []recur.Instance {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []recur.Instance
	for _, k := range m.order {
		if k.RuleID == id {
			out = append(out, m.instances[k])
		}
	}
	return out
}

func (m *Memory) FetchDueRules(_ context.Context, now time.Time, user recur.UserID) ([]recur.RecurrenceRule, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var due []recur.RecurrenceRule
	for _, r := range m.rules {
		if !r.IsActive || r.NextRunAt.Time.After(now) {
			continue
		}
		if user != "" && r.UserID != user {
			continue
		}
		due = append(due, *r)
	}
	// Map iteration order is random; keep runs deterministic.
	sort.Slice(due, func(i, j int) bool { return due[i].ID < due[j].ID })
	return due, nil
}

func (m *Memory) ExistsInstanceOn(_ context.Context, ruleID recur.RuleID, date recur.Date) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.instances[instanceKey{RuleID: ruleID, Date: date.String()}]
	return ok, nil
}

func (m *Memory) InsertInstance(_ context.Context, inst recur.Instance) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.InsertErr[inst.RuleID]; err != nil {
		return err
	}

	k := instanceKey{RuleID: inst.RuleID, Date: inst.Date.String()}
	if _, ok := m.instances[k]; ok {
		return recur.ErrDuplicateInstance
	}
	m.instances[k] = inst
	m.order = append(m.order, k)
	return nil
}

func (m *Memory) AdvanceRule(_ context.Context, ruleID recur.RuleID, nextRunAt recur.Date, lastRunAt time.Time, occurrencesCreated int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.rules[ruleID]
	if !ok {
		return recur.ErrRuleNotFound
	}
	r.NextRunAt = nextRunAt
	t := lastRunAt
	r.LastRunAt = &t
	r.OccurrencesCreated = occurrencesCreated
	return nil
}

func (m *Memory) DeactivateRule(_ context.Context, ruleID recur.RuleID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.rules[ruleID]
	if !ok {
		return recur.ErrRuleNotFound
	}
	r.IsActive = false
	return nil
}
