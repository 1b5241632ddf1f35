/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  JSON structures for API communication, decoupling the engine's internal
  types from the external contract.

NAMING CONVENTION:
  - *DTO: Response types returned to clients

SEE ALSO:
  - handlers.go: Uses these types
*/
package api

import (
	"time"

	"github.com/warp/recurrence-engine/recur"
	"github.com/warp/recurrence-engine/store/sqlite"
)

// RunSummaryDTO is the response of a scheduler-run trigger. An interactive
// client may surface a "N new transactions" toast when generated > 0 and
// otherwise stay silent.
type RunSummaryDTO struct {
	Processed   int            `json:"processed"`
	Generated   int            `json:"generated"`
	Skipped     int            `json:"skipped"`
	Deactivated int            `json:"deactivated"`
	Errors      []RuleErrorDTO `json:"errors"`
}

type RuleErrorDTO struct {
	RuleID  string `json:"rule_id"`
	Message string `json:"message"`
}

func toRunSummaryDTO(s recur.RunSummary) RunSummaryDTO {
	dto := RunSummaryDTO{
		Processed:   s.Processed,
		Generated:   s.Generated,
		Skipped:     s.Skipped,
		Deactivated: s.Deactivated,
		Errors:      []RuleErrorDTO{},
	}
	for _, e := range s.Errors {
		dto.Errors = append(dto.Errors, RuleErrorDTO{RuleID: string(e.RuleID), Message: e.Message})
	}
	return dto
}

// RunRecordDTO is one audit row in the run history.
type RunRecordDTO struct {
	ID          string  `json:"id"`
	Trigger     string  `json:"trigger"`
	StartedAt   string  `json:"started_at"`
	CompletedAt *string `json:"completed_at,omitempty"`
	Processed   int     `json:"processed"`
	Generated   int     `json:"generated"`
	Skipped     int     `json:"skipped"`
	Deactivated int     `json:"deactivated"`
	ErrorCount  int     `json:"error_count"`
	Status      string  `json:"status"`
	Error       string  `json:"error,omitempty"`
}

func toRunRecordDTO(r sqlite.SchedulerRun) RunRecordDTO {
	dto := RunRecordDTO{
		ID:          r.ID,
		Trigger:     r.Trigger,
		StartedAt:   r.StartedAt.Format(time.RFC3339),
		Processed:   r.Processed,
		Generated:   r.Generated,
		Skipped:     r.Skipped,
		Deactivated: r.Deactivated,
		ErrorCount:  r.ErrorCount,
		Status:      r.Status,
		Error:       r.Error,
	}
	if r.CompletedAt != nil {
		c := r.CompletedAt.Format(time.RFC3339)
		dto.CompletedAt = &c
	}
	return dto
}

// InstanceDTO is a generated transaction in API responses.
type InstanceDTO struct {
	ID             string   `json:"id"`
	RuleID         string   `json:"rule_id"`
	UserID         string   `json:"user_id"`
	Title          string   `json:"title"`
	Flow           string   `json:"flow"`
	Amount         string   `json:"amount"`
	CurrencyCode   string   `json:"currency_code"`
	ExchangeRate   string   `json:"exchange_rate"`
	BaseAmount     string   `json:"base_amount"`
	Tags           []string `json:"tags,omitempty"`
	CategoryID     *string  `json:"category_id,omitempty"`
	OccurrenceDate string   `json:"occurrence_date"`
	CreatedAt      string   `json:"created_at"`
}

func toInstanceDTO(inst recur.Instance) InstanceDTO {
	return InstanceDTO{
		ID:             string(inst.ID),
		RuleID:         string(inst.RuleID),
		UserID:         string(inst.UserID),
		Title:          inst.Title,
		Flow:           string(inst.Flow),
		Amount:         inst.Amount.String(),
		CurrencyCode:   inst.CurrencyCode,
		ExchangeRate:   inst.ExchangeRate.String(),
		BaseAmount:     inst.BaseAmount.String(),
		Tags:           inst.Tags,
		CategoryID:     inst.CategoryID,
		OccurrenceDate: inst.Date.String(),
		CreatedAt:      inst.CreatedAt.Format(time.RFC3339),
	}
}
