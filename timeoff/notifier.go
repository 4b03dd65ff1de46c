package timeoff

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/warp/leave-engine/generic"
)

// =============================================================================
// NOTIFIER - Outbound delivery boundary
// =============================================================================

// Event says which lifecycle step a supervisor notice is about.
type Event string

const (
	EventSubmitted    Event = "submitted"
	EventApproved     Event = "approved"
	EventAutoApproved Event = "auto_approved"
	EventRejected     Event = "rejected"
	EventCancelled    Event = "cancelled"
)

// DecisionLinks are the approve/reject URLs emailed to the supervisor.
type DecisionLinks struct {
	Approve string
	Reject  string
}

// BuildDecisionLinks renders the webhook links for application id.
func BuildDecisionLinks(baseURL, id string) DecisionLinks {
	base := strings.TrimRight(baseURL, "/") + "/leave-response"
	link := func(action Action) string {
		q := url.Values{}
		q.Set("id", id)
		q.Set("action", string(action))
		return base + "?" + q.Encode()
	}
	return DecisionLinks{Approve: link(ActionApprove), Reject: link(ActionReject)}
}

// SupervisorNotice is everything a supervisor-facing message needs.
type SupervisorNotice struct {
	Event           Event
	ApplicationID   string
	Application     Application // snapshot after the transition
	SupervisorEmail string
	Links           *DecisionLinks // only for EventSubmitted
	AutoApproveIn   time.Duration
	Reason          string
}

// Notifier delivers messages. Delivery is advisory: implementations log
// failures and report them as false, they never return errors that would
// roll back a committed transition.
type Notifier interface {
	NotifySupervisor(ctx context.Context, notice SupervisorNotice) bool
	NotifyIntern(ctx context.Context, chatID, text string) bool
}

// NopNotifier accepts every message and delivers none.
type NopNotifier struct{}

func (NopNotifier) NotifySupervisor(context.Context, SupervisorNotice) bool { return true }
func (NopNotifier) NotifyIntern(context.Context, string, string) bool       { return true }

// =============================================================================
// INTERN MESSAGES
// =============================================================================

// InternMessage is the chat text sent to the intern after a transition.
func InternMessage(app *Application, autoApproveAfter time.Duration, reason string) string {
	window := HumanizeWindow(autoApproveAfter)
	switch app.Status {
	case StatusApproved:
		return fmt.Sprintf("Your %s from %s to %s has been approved by your supervisor.",
			app.Category, app.Start.ChatString(), app.End.ChatString())
	case StatusAutoApproved:
		return fmt.Sprintf("Your %s from %s to %s (ID: %s) has been automatically approved as your supervisor did not respond within %s.",
			app.Category, app.Start.ChatString(), app.End.ChatString(), ShortID(app.ID), window)
	case StatusRejected:
		if reason != "" {
			return fmt.Sprintf("Your %s from %s to %s has been rejected: %s.",
				app.Category, app.Start.ChatString(), app.End.ChatString(), reason)
		}
		return fmt.Sprintf("Your %s from %s to %s has been rejected by your supervisor.",
			app.Category, app.Start.ChatString(), app.End.ChatString())
	case StatusCancelled:
		return fmt.Sprintf("Your %s from %s to %s has been cancelled and your leave balance has been restored.",
			app.Category, app.Start.ChatString(), app.End.ChatString())
	}
	return fmt.Sprintf("Your %s is %s.", app.Summary(), strings.ToLower(string(app.Status)))
}

// HumanizeWindow renders whole-day windows as "3 days" and anything else
// with time.Duration formatting.
func HumanizeWindow(d time.Duration) string {
	day := 24 * time.Hour
	if d > 0 && d%day == 0 {
		n := int(d / day)
		if n == 1 {
			return "1 day"
		}
		return fmt.Sprintf("%d days", n)
	}
	return d.String()
}

// ShortID is the prefix of an application id shown to interns.
func ShortID(id string) string {
	if len(id) <= 8 {
		return id
	}
	return id[:8]
}

// DurationLabel renders "1 day" / "2.5 days".
func DurationLabel(app *Application) string {
	if app.Duration.Equal(generic.OneDay) || app.Duration.LessThan(generic.OneDay) {
		return generic.FormatDays(app.Duration) + " day"
	}
	return generic.FormatDays(app.Duration) + " days"
}
