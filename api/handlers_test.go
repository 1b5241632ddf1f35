package api_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/recurrence-engine/api"
	"github.com/warp/recurrence-engine/recur"
	"github.com/warp/recurrence-engine/store/sqlite"
)

// =============================================================================
// TEST SETUP
// =============================================================================

const testCronSecret = "test-secret"

func newTestServer(t *testing.T) (*httptest.Server, *sqlite.Store) {
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)

	runner := recur.NewRunner(store, log)
	handler := api.NewHandler(runner, store, log, testCronSecret)
	handler.Now = func() time.Time {
		return time.Date(2024, time.April, 15, 9, 0, 0, 0, time.UTC)
	}

	srv := httptest.NewServer(api.NewRouter(handler))
	t.Cleanup(srv.Close)
	return srv, store
}

func seedMonthlyRule(t *testing.T, store *sqlite.Store, id string) {
	rule := recur.RecurrenceRule{
		ID:           recur.RuleID(id),
		UserID:       "user-1",
		Title:        "Rent",
		Flow:         recur.FlowExpense,
		Amount:       decimal.NewFromInt(1200),
		CurrencyCode: "USD",
		ExchangeRate: decimal.NewFromInt(1),
		Frequency:    recur.FreqMonthly,
		Interval:     1,
		StartDate:    recur.NewDate(2024, time.January, 1),
		NextRunAt:    recur.NewDate(2024, time.January, 1),
		IsActive:     true,
	}
	require.NoError(t, store.CreateRule(context.Background(), rule))
}

func decodeSummary(t *testing.T, resp *http.Response) api.RunSummaryDTO {
	t.Helper()
	defer resp.Body.Close()
	var dto api.RunSummaryDTO
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&dto))
	return dto
}

// =============================================================================
// INTERACTIVE TRIGGER
// =============================================================================

func TestRunScheduler_GeneratesAndReportsSummary(t *testing.T) {
	// GIVEN: A rule four months overdue
	// WHEN: POSTing the interactive trigger
	// THEN: 200 with a summary the client can render as a toast

	srv, store := newTestServer(t)
	seedMonthlyRule(t, store, "rule-1")

	resp, err := http.Post(srv.URL+"/api/scheduler/run", "application/json", nil)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	summary := decodeSummary(t, resp)
	assert.Equal(t, 1, summary.Processed)
	assert.Equal(t, 4, summary.Generated)
	assert.Empty(t, summary.Errors)

	instances, err := store.ListInstancesForRule(context.Background(), "rule-1")
	require.NoError(t, err)
	assert.Len(t, instances, 4)
}

func TestRunScheduler_TwiceIsIdempotent(t *testing.T) {
	srv, store := newTestServer(t)
	seedMonthlyRule(t, store, "rule-1")

	resp, err := http.Post(srv.URL+"/api/scheduler/run", "application/json", nil)
	require.NoError(t, err)
	first := decodeSummary(t, resp)
	require.Equal(t, 4, first.Generated)

	resp, err = http.Post(srv.URL+"/api/scheduler/run", "application/json", nil)
	require.NoError(t, err)
	second := decodeSummary(t, resp)
	assert.Equal(t, 0, second.Generated)

	instances, err := store.ListInstancesForRule(context.Background(), "rule-1")
	require.NoError(t, err)
	assert.Len(t, instances, 4)
}

func TestRunScheduler_UserScope(t *testing.T) {
	srv, store := newTestServer(t)
	seedMonthlyRule(t, store, "rule-1")

	resp, err := http.Post(srv.URL+"/api/scheduler/run?user_id=someone-else", "application/json", nil)
	require.NoError(t, err)
	summary := decodeSummary(t, resp)
	assert.Equal(t, 0, summary.Processed)
}

// =============================================================================
// CRON TRIGGER
// =============================================================================

func TestRunSchedulerCron_RequiresSecret(t *testing.T) {
	srv, store := newTestServer(t)
	seedMonthlyRule(t, store, "rule-1")

	// No header.
	resp, err := http.Post(srv.URL+"/api/cron/run", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	// Wrong secret.
	req, _ := http.NewRequest(http.MethodPost, srv.URL+"/api/cron/run", nil)
	req.Header.Set("X-Cron-Secret", "wrong")
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	// Nothing was generated by the rejected calls.
	instances, err := store.ListInstancesForRule(context.Background(), "rule-1")
	require.NoError(t, err)
	assert.Empty(t, instances)

	// Correct secret.
	req, _ = http.NewRequest(http.MethodPost, srv.URL+"/api/cron/run", nil)
	req.Header.Set("X-Cron-Secret", testCronSecret)
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	summary := decodeSummary(t, resp)
	assert.Equal(t, 4, summary.Generated)
}

// =============================================================================
// RUN HISTORY & INSTANCES
// =============================================================================

func TestListRuns_RecordsTriggeredRuns(t *testing.T) {
	srv, store := newTestServer(t)
	seedMonthlyRule(t, store, "rule-1")

	resp, err := http.Post(srv.URL+"/api/scheduler/run", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()

	resp, err = http.Get(srv.URL + "/api/scheduler/runs")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var runs []api.RunRecordDTO
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&runs))
	require.Len(t, runs, 1)
	assert.Equal(t, "interactive", runs[0].Trigger)
	assert.Equal(t, "completed", runs[0].Status)
	assert.Equal(t, 4, runs[0].Generated)
}

func TestListRuleInstances(t *testing.T) {
	srv, store := newTestServer(t)
	seedMonthlyRule(t, store, "rule-1")

	resp, err := http.Post(srv.URL+"/api/scheduler/run", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()

	resp, err = http.Get(srv.URL + "/api/rules/rule-1/instances")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var instances []api.InstanceDTO
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&instances))
	require.Len(t, instances, 4)
	assert.Equal(t, "2024-01-01", instances[0].OccurrenceDate)
	assert.Equal(t, "1200", instances[0].BaseAmount)

	resp, err = http.Get(srv.URL + "/api/rules/unknown/instances")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestHealthz(t *testing.T) {
	srv, _ := newTestServer(t)
	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
