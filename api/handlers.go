/*
handlers.go - HTTP handlers for the scheduler trigger surface

PURPOSE:
  Exposes the engine's single entry point over HTTP for its two callers:

  POST /api/scheduler/run   Interactive trigger (client session on load).
                            Optional ?user_id= scopes the run to one user.
  POST /api/cron/run        External cron trigger, guarded by the
                            X-Cron-Secret pre-shared header. Runs across
                            all users.
  GET  /api/scheduler/runs  Run history (audit rows).
  GET  /api/rules/{id}/instances
                            Generated transactions for a rule.

AUTHENTICATION:
  Who may call the interactive endpoint is the surrounding application's
  concern; the engine assumes it is invoked already authorized. The cron
  endpoint compares the shared secret in constant time and rejects with
  401 on mismatch or when no secret is configured.

SEE ALSO:
  - server.go: router wiring
  - scheduler.go: in-process periodic trigger
*/
package api

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/warp/recurrence-engine/recur"
	"github.com/warp/recurrence-engine/store/sqlite"
)

// Handler holds the dependencies of the HTTP surface.
type Handler struct {
	Runner     *recur.Runner
	Store      *sqlite.Store
	Log        *logrus.Logger
	CronSecret string

	// Now is the clock used for triggered runs. Defaults to time.Now;
	// tests override it to pin catch-up behavior.
	Now func() time.Time
}

func NewHandler(runner *recur.Runner, store *sqlite.Store, log *logrus.Logger, cronSecret string) *Handler {
	return &Handler{
		Runner:     runner,
		Store:      store,
		Log:        log,
		CronSecret: cronSecret,
		Now:        func() time.Time { return time.Now().UTC() },
	}
}

// RunScheduler handles the interactive trigger.
func (h *Handler) RunScheduler(w http.ResponseWriter, r *http.Request) {
	user := recur.UserID(r.URL.Query().Get("user_id"))
	h.triggerRun(w, r, TriggerInteractive, user)
}

// RunSchedulerCron handles the external cron trigger.
func (h *Handler) RunSchedulerCron(w http.ResponseWriter, r *http.Request) {
	secret := r.Header.Get("X-Cron-Secret")
	if h.CronSecret == "" ||
		subtle.ConstantTimeCompare([]byte(secret), []byte(h.CronSecret)) != 1 {
		respondError(w, http.StatusUnauthorized, "invalid cron secret")
		return
	}
	h.triggerRun(w, r, TriggerCron, "")
}

func (h *Handler) triggerRun(w http.ResponseWriter, r *http.Request, trigger string, user recur.UserID) {
	now := h.Now()
	summary, err := h.Runner.Run(r.Context(), now, user)
	RecordRun(r.Context(), h.Store, h.Log, trigger, now, summary, err)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, toRunSummaryDTO(summary))
}

// ListRuns returns the run history, most recent first.
func (h *Handler) ListRuns(w http.ResponseWriter, r *http.Request) {
	runs, err := h.Store.ListRuns(r.Context(), 50)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	dtos := []RunRecordDTO{}
	for _, run := range runs {
		dtos = append(dtos, toRunRecordDTO(run))
	}
	respondJSON(w, http.StatusOK, dtos)
}

// ListRuleInstances returns the transactions generated for one rule.
func (h *Handler) ListRuleInstances(w http.ResponseWriter, r *http.Request) {
	ruleID := recur.RuleID(chi.URLParam(r, "id"))
	if _, err := h.Store.GetRule(r.Context(), ruleID); err != nil {
		respondError(w, http.StatusNotFound, "rule not found")
		return
	}

	instances, err := h.Store.ListInstancesForRule(r.Context(), ruleID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	dtos := []InstanceDTO{}
	for _, inst := range instances {
		dtos = append(dtos, toInstanceDTO(inst))
	}
	respondJSON(w, http.StatusOK, dtos)
}

// Health is a liveness probe.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Trigger sources recorded on audit rows.
const (
	TriggerInteractive = "interactive"
	TriggerCron        = "cron"
)

// RecordRun persists an audit row for a completed run. Audit failures are
// logged and swallowed; they must not turn a successful run into an error.
func RecordRun(ctx context.Context, store *sqlite.Store, log *logrus.Logger, trigger string, startedAt time.Time, summary recur.RunSummary, runErr error) {
	completed := time.Now().UTC()
	run := sqlite.SchedulerRun{
		ID:          uuid.NewString(),
		Trigger:     trigger,
		StartedAt:   startedAt,
		CompletedAt: &completed,
		Processed:   summary.Processed,
		Generated:   summary.Generated,
		Skipped:     summary.Skipped,
		Deactivated: summary.Deactivated,
		ErrorCount:  len(summary.Errors),
		Status:      "completed",
	}
	if runErr != nil {
		run.Status = "failed"
		run.Error = runErr.Error()
	}
	if err := store.SaveRun(ctx, run); err != nil {
		log.WithError(err).Warn("failed to record scheduler run")
	}
}

// =============================================================================
// RESPONSE HELPERS
// =============================================================================

func respondJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
