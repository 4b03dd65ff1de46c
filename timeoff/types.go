// Package timeoff implements the intern leave workflow on top of the generic
// ledger arithmetic: leave categories, the duration rule, the balance ledger,
// the application lifecycle engine and its auto-approval scheduler.
package timeoff

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/leave-engine/generic"
)

// =============================================================================
// LEAVE CATEGORY - Closed set, each mapped explicitly to a ledger operation
// =============================================================================

// Category identifies a leave category. The set is closed; use Categories.
type Category string

const (
	CategoryAnnual        Category = "annual"
	CategoryMedical       Category = "medical"
	CategoryNoPay         Category = "no_pay"
	CategoryCompassionate Category = "compassionate"
	CategoryOffInLieu     Category = "off_in_lieu"
)

// Categories lists every category in display order.
var Categories = []Category{
	CategoryAnnual,
	CategoryMedical,
	CategoryNoPay,
	CategoryCompassionate,
	CategoryOffInLieu,
}

var categoryNames = map[Category]string{
	CategoryAnnual:        "Annual Leave",
	CategoryMedical:       "Medical Leave",
	CategoryNoPay:         "No Pay Leave",
	CategoryCompassionate: "Compassionate Leave",
	CategoryOffInLieu:     "Off in Lieu",
}

// ParseCategory accepts the wire code ("annual") or the display name
// ("Annual Leave"), case-insensitively.
func ParseCategory(s string) (Category, error) {
	s = strings.TrimSpace(s)
	for _, c := range Categories {
		if strings.EqualFold(s, string(c)) || strings.EqualFold(s, categoryNames[c]) {
			return c, nil
		}
	}
	return "", generic.Invalid("leave_type", "unknown leave type %q", s)
}

// Valid reports whether c is one of the five categories.
func (c Category) Valid() bool {
	_, ok := categoryNames[c]
	return ok
}

// String returns the display name.
func (c Category) String() string {
	if name, ok := categoryNames[c]; ok {
		return name
	}
	return string(c)
}

// Capped reports whether the category has an entitlement ceiling.
// No Pay Leave is the only uncapped category.
func (c Category) Capped() bool { return c != CategoryNoPay }

// ConsumeDelta is the ledger change applied when leave of this category is approved.
func (c Category) ConsumeDelta(d decimal.Decimal) generic.Delta {
	if c.Capped() {
		return generic.Debit(d)
	}
	return generic.Record(d)
}

// ReleaseDelta is the ledger change applied when approved leave is cancelled.
func (c Category) ReleaseDelta(d decimal.Decimal) generic.Delta {
	if c.Capped() {
		return generic.Credit(d)
	}
	return generic.Unrecord(d)
}

// =============================================================================
// DAY PORTION
// =============================================================================

type DayPortion string

const (
	PortionFullDay DayPortion = "Full Day"
	PortionHalfAM  DayPortion = "Half Day (AM)"
	PortionHalfPM  DayPortion = "Half Day (PM)"
)

// ParsePortion accepts the display names plus the short codes "full", "am", "pm".
// An empty string means a full day.
func ParsePortion(s string) (DayPortion, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "full", "full day":
		return PortionFullDay, nil
	case "am", "half day (am)":
		return PortionHalfAM, nil
	case "pm", "half day (pm)":
		return PortionHalfPM, nil
	}
	return "", generic.Invalid("day_portion", "unknown day portion %q", s)
}

// IsHalfDay reports whether the portion is AM or PM.
func (p DayPortion) IsHalfDay() bool { return p == PortionHalfAM || p == PortionHalfPM }

// =============================================================================
// APPLICATION STATUS
// =============================================================================

type Status string

const (
	StatusPending      Status = "Pending"
	StatusApproved     Status = "Approved"
	StatusRejected     Status = "Rejected"
	StatusCancelled    Status = "Cancelled"
	StatusAutoApproved Status = "Auto-Approved"
)

// Granted reports whether the status consumed ledger days.
func (s Status) Granted() bool { return s == StatusApproved || s == StatusAutoApproved }

// CanTransition reports whether from -> to is an edge of the lifecycle.
//
//	Pending -> Approved | Rejected | Auto-Approved | Cancelled
//	Approved | Auto-Approved -> Cancelled
func CanTransition(from, to Status) bool {
	switch from {
	case StatusPending:
		return to == StatusApproved || to == StatusRejected ||
			to == StatusAutoApproved || to == StatusCancelled
	case StatusApproved, StatusAutoApproved:
		return to == StatusCancelled
	}
	return false
}

// =============================================================================
// INTERN
// =============================================================================

// Intern is a roster entry with one ledger account per category.
type Intern struct {
	Handle          string
	Name            string
	SupervisorEmail string
	StartDate       generic.Date
	EndDate         generic.Date
	Accounts        map[Category]generic.Account
	CreatedAt       time.Time
}

// Period is the internship term.
func (i *Intern) Period() generic.DateRange {
	return generic.DateRange{Start: i.StartDate, End: i.EndDate}
}

// Account returns the ledger account for c (zero account if absent).
func (i *Intern) Account(c Category) generic.Account {
	if a, ok := i.Accounts[c]; ok {
		return a
	}
	return generic.NewAccount(decimal.Zero)
}

// Entitlements is the roster input for a new intern. Nil entries default to
// zero, except compassionate leave which defaults to three days.
type Entitlements map[Category]decimal.Decimal

// NewIntern builds an intern with fresh accounts for every category.
func NewIntern(handle, name, supervisorEmail string, start, end generic.Date, ent Entitlements) *Intern {
	accounts := make(map[Category]generic.Account, len(Categories))
	for _, c := range Categories {
		e, ok := ent[c]
		if !ok && c == CategoryCompassionate {
			e = generic.DefaultCompassionateEntitlement
		}
		if !c.Capped() {
			e = decimal.Zero
		}
		accounts[c] = generic.NewAccount(e)
	}
	return &Intern{
		Handle:          handle,
		Name:            name,
		SupervisorEmail: supervisorEmail,
		StartDate:       start,
		EndDate:         end,
		Accounts:        accounts,
	}
}

// Validate checks the roster fields the engine relies on.
func (i *Intern) Validate() error {
	if strings.TrimSpace(i.Handle) == "" {
		return generic.Invalid("handle", "is required")
	}
	if i.StartDate.IsZero() || i.EndDate.IsZero() {
		return generic.Invalid("period", "start and end dates are required")
	}
	if !i.Period().Valid() {
		return generic.Invalid("period", "internship end date %s is before start date %s", i.EndDate, i.StartDate)
	}
	for c, a := range i.Accounts {
		if !c.Valid() {
			return generic.Invalid("accounts", "unknown leave type %q", c)
		}
		if a.Entitlement.IsNegative() || a.Taken.IsNegative() {
			return generic.Invalid("accounts", "%s entitlement and taken must not be negative", c)
		}
	}
	return nil
}

// =============================================================================
// LEAVE APPLICATION
// =============================================================================

// Application is one leave request and its resolution.
type Application struct {
	ID           string
	InternHandle string
	InternName   string
	ChatID       string
	Category     Category
	Start        generic.Date
	End          generic.Date
	Portion      DayPortion
	Duration     decimal.Decimal
	Status       Status
	SubmittedAt  time.Time
	DecidedAt    *time.Time
	Remarks      string

	// BalanceAtSubmission is the balance seen when the intern submitted.
	// Only set for capped categories. Never used to write the ledger.
	BalanceAtSubmission *decimal.Decimal
}

// Range is the inclusive leave period.
func (a *Application) Range() generic.DateRange {
	return generic.DateRange{Start: a.Start, End: a.End}
}

// Summary is a one-line description used in notifications and logs.
func (a *Application) Summary() string {
	return fmt.Sprintf("%s from %s to %s (%s, %s day(s))",
		a.Category, a.Start.ChatString(), a.End.ChatString(), a.Portion, generic.FormatDays(a.Duration))
}

// StatusUpdate carries the fields written together with a status change.
// Nil fields are left untouched.
type StatusUpdate struct {
	DecidedAt *time.Time
	Remarks   *string
}
