/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for the chat front-end API. These types
  decouple the timeoff domain model from the wire contract, so the stored
  shape can change without breaking the bot.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients
  - *Response: Wrappers (errors, outcomes)

AMOUNTS:
  Day counts are shopspring/decimal values. They are rendered as JSON
  strings ("2.5") and accepted as strings or numbers.

DATES:
  Dates are rendered YYYY-MM-DD. Requests accept YYYY-MM-DD or the chat
  format DD-MM-YYYY.

SEE ALSO:
  - handlers.go: Uses these types
  - timeoff/types.go: Domain types
*/
package api

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/leave-engine/timeoff"
)

// =============================================================================
// INTERNS
// =============================================================================

// CreateInternRequest registers an intern with per-category entitlements.
// Entitlement keys are category codes ("annual") or display names.
type CreateInternRequest struct {
	Handle          string                     `json:"handle"`
	Name            string                     `json:"name"`
	SupervisorEmail string                     `json:"supervisor_email"`
	StartDate       string                     `json:"start_date"`
	EndDate         string                     `json:"end_date"`
	Entitlements    map[string]decimal.Decimal `json:"entitlements"`
}

// InternDTO represents an intern in API responses.
type InternDTO struct {
	Handle          string       `json:"handle"`
	Name            string       `json:"name"`
	SupervisorEmail string       `json:"supervisor_email"`
	StartDate       string       `json:"start_date"`
	EndDate         string       `json:"end_date"`
	Accounts        []AccountDTO `json:"accounts"`
	CreatedAt       string       `json:"created_at,omitempty"`
}

// AccountDTO is one category of an intern's ledger.
type AccountDTO struct {
	LeaveType   string          `json:"leave_type"`
	Name        string          `json:"name"`
	Entitlement decimal.Decimal `json:"entitlement"`
	Taken       decimal.Decimal `json:"taken"`
	Balance     decimal.Decimal `json:"balance"`
	Capped      bool            `json:"capped"`
}

// BalanceDTO is the balance summary shown by the bot's /balance command.
type BalanceDTO struct {
	Handle   string       `json:"handle"`
	Accounts []AccountDTO `json:"accounts"`
}

// =============================================================================
// APPLICATIONS
// =============================================================================

// SubmitApplicationRequest is a leave request collected by the chat flow.
type SubmitApplicationRequest struct {
	ChatID     string `json:"chat_id"`
	LeaveType  string `json:"leave_type"`
	StartDate  string `json:"start_date"`
	EndDate    string `json:"end_date,omitempty"`
	DayPortion string `json:"day_portion,omitempty"`
}

// ApplicationDTO represents a leave application in API responses.
type ApplicationDTO struct {
	ID                  string           `json:"id"`
	Handle              string           `json:"handle"`
	InternName          string           `json:"intern_name"`
	ChatID              string           `json:"chat_id,omitempty"`
	LeaveType           string           `json:"leave_type"`
	LeaveTypeName       string           `json:"leave_type_name"`
	StartDate           string           `json:"start_date"`
	EndDate             string           `json:"end_date"`
	DayPortion          string           `json:"day_portion"`
	Duration            decimal.Decimal  `json:"duration"`
	Status              string           `json:"status"`
	SubmittedAt         string           `json:"submitted_at"`
	DecidedAt           *string          `json:"decided_at,omitempty"`
	Remarks             string           `json:"remarks,omitempty"`
	BalanceAtSubmission *decimal.Decimal `json:"balance_at_submission,omitempty"`
}

// OutcomeResponse wraps an application after a lifecycle call.
type OutcomeResponse struct {
	Application        ApplicationDTO `json:"application"`
	Reason             string         `json:"reason,omitempty"`
	SupervisorNotified bool           `json:"supervisor_notified"`
	InternNotified     bool           `json:"intern_notified"`
}

// ErrorResponse is the body of every non-2xx JSON response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Field   string `json:"field,omitempty"`
	Details string `json:"details,omitempty"`
}

// WebhookError is the JSON body the decision link returns on failure.
type WebhookError struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// =============================================================================
// CONVERSIONS
// =============================================================================

func toInternDTO(i *timeoff.Intern) InternDTO {
	dto := InternDTO{
		Handle:          i.Handle,
		Name:            i.Name,
		SupervisorEmail: i.SupervisorEmail,
		StartDate:       i.StartDate.String(),
		EndDate:         i.EndDate.String(),
		Accounts:        toAccountDTOs(i),
	}
	if !i.CreatedAt.IsZero() {
		dto.CreatedAt = i.CreatedAt.Format(time.RFC3339)
	}
	return dto
}

func toAccountDTOs(i *timeoff.Intern) []AccountDTO {
	out := make([]AccountDTO, 0, len(timeoff.Categories))
	for _, c := range timeoff.Categories {
		a := i.Account(c)
		out = append(out, AccountDTO{
			LeaveType:   string(c),
			Name:        c.String(),
			Entitlement: a.Entitlement,
			Taken:       a.Taken,
			Balance:     a.Balance,
			Capped:      c.Capped(),
		})
	}
	return out
}

func toApplicationDTO(a *timeoff.Application) ApplicationDTO {
	dto := ApplicationDTO{
		ID:                  a.ID,
		Handle:              a.InternHandle,
		InternName:          a.InternName,
		ChatID:              a.ChatID,
		LeaveType:           string(a.Category),
		LeaveTypeName:       a.Category.String(),
		StartDate:           a.Start.String(),
		EndDate:             a.End.String(),
		DayPortion:          string(a.Portion),
		Duration:            a.Duration,
		Status:              string(a.Status),
		SubmittedAt:         a.SubmittedAt.Format(time.RFC3339),
		Remarks:             a.Remarks,
		BalanceAtSubmission: a.BalanceAtSubmission,
	}
	if a.DecidedAt != nil {
		s := a.DecidedAt.Format(time.RFC3339)
		dto.DecidedAt = &s
	}
	return dto
}

func toApplicationDTOs(apps []*timeoff.Application) []ApplicationDTO {
	out := make([]ApplicationDTO, len(apps))
	for i, a := range apps {
		out[i] = toApplicationDTO(a)
	}
	return out
}

func toOutcomeResponse(o *timeoff.Outcome) OutcomeResponse {
	return OutcomeResponse{
		Application:        toApplicationDTO(o.Application),
		Reason:             o.Reason,
		SupervisorNotified: o.SupervisorNotified,
		InternNotified:     o.InternNotified,
	}
}
