/*
handlers.go - HTTP handlers for the decision webhook and the chat API

PURPOSE:
  Exposes the lifecycle engine over HTTP. Handles request parsing, JSON
  serialization and error mapping, and delegates every state change to
  timeoff.Engine.

ENDPOINTS:
  Decision webhook (links emailed to supervisors):
    GET    /leave-response?id=&action=approve|reject   HTML confirmation

  Interns:
    POST   /api/interns                        Register intern
    GET    /api/interns/{handle}               Intern details
    DELETE /api/interns/{handle}               Remove intern and applications
    GET    /api/interns/{handle}/balance       Balance summary

  Applications:
    POST   /api/interns/{handle}/applications              Submit leave
    GET    /api/interns/{handle}/applications/upcoming     Cancellable leave
    POST   /api/interns/{handle}/applications/{id}/cancel  Cancel leave
    GET    /api/applications/{id}                          Application details

ERROR HANDLING:
  JSON API:
  - 400: Validation errors, insufficient balance
  - 404: Unknown intern or application
  - 409: Already resolved, duplicate handle
  - 500: Storage failures
  Webhook:
  - 400: Unknown, expired or already resolved application; invalid action
  - 500: Storage failures

SECURITY NOTE:
  No authentication. The webhook trusts whoever holds the emailed link.

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/warp/leave-engine/generic"
	"github.com/warp/leave-engine/timeoff"
	"go.uber.org/zap"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Engine *timeoff.Engine
	Logger *zap.Logger

	// Ping reports store health for /healthz. Nil means always healthy.
	Ping func(ctx context.Context) error
}

// NewHandler creates a handler over engine.
func NewHandler(engine *timeoff.Engine, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{Engine: engine, Logger: logger}
}

// =============================================================================
// DECISION WEBHOOK
// =============================================================================

const (
	msgInvalidApplication = "Invalid or expired application"
	msgInvalidAction      = "Invalid action"
)

// LeaveResponse resolves a Pending application from a supervisor's link.
func (h *Handler) LeaveResponse(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("id")
	log := h.Logger.With(zap.String("application_id", id))

	app, err := h.Engine.Application(r.Context(), id)
	switch {
	case generic.IsNotFound(err):
		writeWebhookError(w, http.StatusBadRequest, msgInvalidApplication)
		return
	case err != nil:
		log.Error("webhook lookup failed", zap.Error(err))
		writeWebhookError(w, http.StatusInternalServerError, "Internal error")
		return
	case app.Status != timeoff.StatusPending:
		writeWebhookError(w, http.StatusBadRequest, msgInvalidApplication)
		return
	}

	action, err := timeoff.ParseAction(r.URL.Query().Get("action"))
	if err != nil {
		writeWebhookError(w, http.StatusBadRequest, msgInvalidAction)
		return
	}

	out, err := h.Engine.Decide(r.Context(), id, action)
	if err != nil {
		// lost the race against the timer or a second click
		if generic.IsConflict(err) || generic.IsNotFound(err) {
			writeWebhookError(w, http.StatusBadRequest, msgInvalidApplication)
			return
		}
		log.Error("webhook decision failed", zap.Error(err))
		writeWebhookError(w, http.StatusInternalServerError, "Internal error")
		return
	}

	writeHTML(w, http.StatusOK, decisionMessage(out))
}

// decisionMessage is the confirmation fragment shown in the supervisor's browser.
func decisionMessage(out *timeoff.Outcome) string {
	app := out.Application
	what := fmt.Sprintf("%s for %s to be taken from %s to %s. Duration: %s days.",
		html.EscapeString(app.Category.String()),
		html.EscapeString(app.InternName),
		app.Start.ChatString(), app.End.ChatString(),
		generic.FormatDays(app.Duration))

	switch {
	case app.Status == timeoff.StatusRejected && out.Reason != "":
		return fmt.Sprintf("The leave could <b>not be approved</b> (%s) and has been rejected: %s The candidate has been notified.",
			html.EscapeString(out.Reason), what)
	case app.Status == timeoff.StatusRejected:
		return "You have <b>rejected</b> " + what + " The candidate has been notified."
	default:
		return "You have <b>approved</b> " + what + " The candidate has been notified."
	}
}

// =============================================================================
// INTERN HANDLERS
// =============================================================================

// CreateIntern registers an intern.
func (h *Handler) CreateIntern(w http.ResponseWriter, r *http.Request) {
	var req CreateInternRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	start, err := generic.ParseDate(req.StartDate)
	if err != nil {
		h.writeDomainError(w, generic.Invalid("start_date", "use YYYY-MM-DD or DD-MM-YYYY"))
		return
	}
	end, err := generic.ParseDate(req.EndDate)
	if err != nil {
		h.writeDomainError(w, generic.Invalid("end_date", "use YYYY-MM-DD or DD-MM-YYYY"))
		return
	}

	ent := make(timeoff.Entitlements, len(req.Entitlements))
	for key, days := range req.Entitlements {
		c, err := timeoff.ParseCategory(key)
		if err != nil {
			h.writeDomainError(w, err)
			return
		}
		ent[c] = days
	}

	intern := timeoff.NewIntern(strings.TrimSpace(req.Handle), req.Name, req.SupervisorEmail, start, end, ent)
	if err := h.Engine.RegisterIntern(r.Context(), intern); err != nil {
		h.writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, toInternDTO(intern))
}

// GetIntern returns a single intern with accounts.
func (h *Handler) GetIntern(w http.ResponseWriter, r *http.Request) {
	intern, err := h.Engine.Intern(r.Context(), handleParam(r))
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toInternDTO(intern))
}

// DeleteIntern removes an intern and every application they own.
func (h *Handler) DeleteIntern(w http.ResponseWriter, r *http.Request) {
	if err := h.Engine.RemoveIntern(r.Context(), handleParam(r)); err != nil {
		h.writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetBalance returns the per-category balance summary.
func (h *Handler) GetBalance(w http.ResponseWriter, r *http.Request) {
	intern, err := h.Engine.Intern(r.Context(), handleParam(r))
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, BalanceDTO{Handle: intern.Handle, Accounts: toAccountDTOs(intern)})
}

// =============================================================================
// APPLICATION HANDLERS
// =============================================================================

// SubmitApplication files a leave application for the intern in the path.
func (h *Handler) SubmitApplication(w http.ResponseWriter, r *http.Request) {
	var req SubmitApplicationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	sub := timeoff.SubmitRequest{Handle: handleParam(r), ChatID: req.ChatID}

	var err error
	if sub.Category, err = timeoff.ParseCategory(req.LeaveType); err != nil {
		h.writeDomainError(w, err)
		return
	}
	if req.DayPortion != "" {
		if sub.Portion, err = timeoff.ParsePortion(req.DayPortion); err != nil {
			h.writeDomainError(w, err)
			return
		}
	}
	if req.StartDate != "" {
		if sub.Start, err = generic.ParseDate(req.StartDate); err != nil {
			h.writeDomainError(w, generic.Invalid("start_date", "use DD-MM-YYYY"))
			return
		}
	}
	if req.EndDate != "" {
		if sub.End, err = generic.ParseDate(req.EndDate); err != nil {
			h.writeDomainError(w, generic.Invalid("end_date", "use DD-MM-YYYY"))
			return
		}
	}

	out, err := h.Engine.Submit(r.Context(), sub)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toOutcomeResponse(out))
}

// ListUpcoming returns granted leave that can still be cancelled.
func (h *Handler) ListUpcoming(w http.ResponseWriter, r *http.Request) {
	apps, err := h.Engine.UpcomingApproved(r.Context(), handleParam(r))
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toApplicationDTOs(apps))
}

// CancelApplication withdraws upcoming granted leave.
func (h *Handler) CancelApplication(w http.ResponseWriter, r *http.Request) {
	out, err := h.Engine.Cancel(r.Context(), chi.URLParam(r, "id"), handleParam(r))
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toOutcomeResponse(out))
}

// GetApplication returns one application.
func (h *Handler) GetApplication(w http.ResponseWriter, r *http.Request) {
	app, err := h.Engine.Application(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toApplicationDTO(app))
}

// Healthz reports whether the store answers.
func (h *Handler) Healthz(w http.ResponseWriter, r *http.Request) {
	if h.Ping != nil {
		if err := h.Ping(r.Context()); err != nil {
			writeError(w, http.StatusServiceUnavailable, "Store unavailable", err)
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// =============================================================================
// HELPERS
// =============================================================================

// handleParam unescapes the {handle} segment so "%40alice" and "@alice" match.
func handleParam(r *http.Request) string {
	raw := chi.URLParam(r, "handle")
	if h, err := url.PathUnescape(raw); err == nil {
		return h
	}
	return raw
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeHTML(w http.ResponseWriter, status int, fragment string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	w.Write([]byte(fragment))
}

func writeWebhookError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, WebhookError{Status: "error", Message: message})
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// writeDomainError maps the generic error taxonomy onto status codes.
func (h *Handler) writeDomainError(w http.ResponseWriter, err error) {
	var (
		verr *generic.ValidationError
		berr *generic.InsufficientBalanceError
		cerr *generic.ConflictError
	)
	switch {
	case errors.As(err, &verr):
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: verr.Reason, Field: verr.Field})
	case errors.As(err, &berr):
		writeJSON(w, http.StatusBadRequest, ErrorResponse{
			Error:   "Insufficient leave balance",
			Field:   "leave_type",
			Details: shortfall(berr),
		})
	case errors.As(err, &cerr):
		writeError(w, http.StatusConflict, "Application already resolved", err)
	case errors.Is(err, generic.ErrDuplicate):
		writeError(w, http.StatusConflict, "Already exists", err)
	case generic.IsNotFound(err):
		writeError(w, http.StatusNotFound, "Not found", err)
	default:
		h.Logger.Error("request failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Internal error", nil)
	}
}

func shortfall(e *generic.InsufficientBalanceError) string {
	return fmt.Sprintf("You have %s days of %s remaining but requested %s (short by %s).",
		generic.FormatDays(e.Available), e.Category, generic.FormatDays(e.Requested),
		generic.FormatDays(decimal.Max(e.Shortfall(), decimal.Zero)))
}
