package notify

import (
	"fmt"
	"strings"

	"github.com/warp/leave-engine/timeoff"
)

// =============================================================================
// SUPERVISOR EMAILS
// =============================================================================

// SupervisorEmail renders the subject and plain-text body for a notice.
func SupervisorEmail(n timeoff.SupervisorNotice) (subject, body string) {
	app := n.Application
	name := app.InternName
	if name == "" {
		name = app.InternHandle
	}

	var b strings.Builder
	b.WriteString("Dear Supervisor,\n\n")

	switch n.Event {
	case timeoff.EventSubmitted:
		subject = fmt.Sprintf("Leave Application from %s", name)
		b.WriteString("A leave application requires your approval:\n\n")
		writeDetails(&b, &app, name)
		if n.Links != nil {
			b.WriteString("\nPlease click one of the following links to respond:\n\n")
			fmt.Fprintf(&b, "APPROVE: %s\n", n.Links.Approve)
			fmt.Fprintf(&b, "REJECT: %s\n", n.Links.Reject)
		}
		fmt.Fprintf(&b, "\nIf no action is taken within %s, this leave application will be automatically approved.\n",
			timeoff.HumanizeWindow(n.AutoApproveIn))

	case timeoff.EventAutoApproved:
		subject = fmt.Sprintf("Leave Application from %s (Auto-Approved)", name)
		fmt.Fprintf(&b, "The following leave application has been automatically approved due to no response within %s:\n\n",
			timeoff.HumanizeWindow(n.AutoApproveIn))
		writeDetails(&b, &app, name)

	case timeoff.EventCancelled:
		subject = fmt.Sprintf("Leave Cancellation Notice - %s", name)
		fmt.Fprintf(&b, "This is to inform you that %s has cancelled the following leave:\n\n", name)
		writeDetails(&b, &app, name)
		b.WriteString("\nThe leave entitlements have been restored to the intern's balance.\n")

	case timeoff.EventApproved:
		subject = fmt.Sprintf("Leave Approved - %s", name)
		b.WriteString("You have approved the following leave. The intern has been notified.\n\n")
		writeDetails(&b, &app, name)

	case timeoff.EventRejected:
		subject = fmt.Sprintf("Leave Rejected - %s", name)
		if n.Reason != "" {
			fmt.Fprintf(&b, "The following leave could not be approved: %s. The intern has been notified.\n\n", n.Reason)
		} else {
			b.WriteString("You have rejected the following leave. The intern has been notified.\n\n")
		}
		writeDetails(&b, &app, name)

	default:
		subject = fmt.Sprintf("Leave Update - %s", name)
		writeDetails(&b, &app, name)
	}

	b.WriteString("\nThank you,\nLeave Management System\n")
	return subject, b.String()
}

func writeDetails(b *strings.Builder, app *timeoff.Application, name string) {
	fmt.Fprintf(b, "Intern: %s\n", name)
	fmt.Fprintf(b, "Leave Type: %s\n", app.Category)
	fmt.Fprintf(b, "Start Date: %s\n", app.Start.ChatString())
	fmt.Fprintf(b, "End Date: %s\n", app.End.ChatString())
	fmt.Fprintf(b, "Day Portion: %s\n", app.Portion)
	fmt.Fprintf(b, "Duration: %s\n", timeoff.DurationLabel(app))
	if app.BalanceAtSubmission != nil {
		fmt.Fprintf(b, "Balance at submission: %s\n", app.BalanceAtSubmission.String())
	}
	fmt.Fprintf(b, "Reference: %s\n", app.ID)
}
