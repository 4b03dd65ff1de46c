package generic

import (
	"fmt"
	"time"
)

// =============================================================================
// DATE - Calendar day without a time component
// =============================================================================

// Date is a calendar day normalized to midnight UTC.
type Date struct {
	Time time.Time
}

// DateLayout is the wire format used by the API and the stores.
const DateLayout = "2006-01-02"

// ChatDateLayout is the format interns type into the chat front-end.
const ChatDateLayout = "02-01-2006"

// Constructors
func NewDate(year int, month time.Month, day int) Date {
	return Date{Time: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

func DateOf(t time.Time) Date {
	return NewDate(t.Year(), t.Month(), t.Day())
}

// ParseDate accepts either YYYY-MM-DD or DD-MM-YYYY.
func ParseDate(s string) (Date, error) {
	for _, layout := range []string{DateLayout, ChatDateLayout} {
		if t, err := time.Parse(layout, s); err == nil {
			return DateOf(t), nil
		}
	}
	return Date{}, fmt.Errorf("invalid date %q: use YYYY-MM-DD or DD-MM-YYYY", s)
}

// Comparison
func (d Date) Before(other Date) bool        { return d.Time.Before(other.Time) }
func (d Date) After(other Date) bool         { return d.Time.After(other.Time) }
func (d Date) Equal(other Date) bool         { return d.Time.Equal(other.Time) }
func (d Date) BeforeOrEqual(other Date) bool { return !d.After(other) }
func (d Date) AfterOrEqual(other Date) bool  { return !d.Before(other) }

// Arithmetic
func (d Date) AddDays(n int) Date { return Date{Time: d.Time.AddDate(0, 0, n)} }

// Properties
func (d Date) Year() int             { return d.Time.Year() }
func (d Date) Month() time.Month     { return d.Time.Month() }
func (d Date) Weekday() time.Weekday { return d.Time.Weekday() }
func (d Date) IsWeekend() bool       { wd := d.Weekday(); return wd == time.Saturday || wd == time.Sunday }
func (d Date) IsWorkday() bool       { return !d.IsWeekend() }
func (d Date) IsZero() bool          { return d.Time.IsZero() }

func (d Date) String() string { return d.Time.Format(DateLayout) }

// ChatString renders the date the way interns typed it.
func (d Date) ChatString() string { return d.Time.Format(ChatDateLayout) }

// =============================================================================
// DATE RANGE
// =============================================================================

// DateRange is an inclusive [Start, End] span of calendar days.
type DateRange struct {
	Start Date
	End   Date
}

// Valid reports whether End is not before Start.
func (r DateRange) Valid() bool { return !r.End.Before(r.Start) }

// Contains reports whether d lies inside the range.
func (r DateRange) Contains(d Date) bool {
	return d.AfterOrEqual(r.Start) && d.BeforeOrEqual(r.End)
}

// Covers reports whether other lies entirely inside r.
func (r DateRange) Covers(other DateRange) bool {
	return r.Contains(other.Start) && r.Contains(other.End)
}

// SingleDay reports whether the range is exactly one day.
func (r DateRange) SingleDay() bool { return r.Start.Equal(r.End) }

// Days returns every calendar day in the range, in order.
func (r DateRange) Days() []Date {
	if !r.Valid() {
		return nil
	}
	var days []Date
	for d := r.Start; !d.After(r.End); d = d.AddDays(1) {
		days = append(days, d)
	}
	return days
}

// Workdays returns the Monday-Friday days of the range.
func (r DateRange) Workdays() []Date {
	var out []Date
	for _, d := range r.Days() {
		if d.IsWorkday() {
			out = append(out, d)
		}
	}
	return out
}

func (r DateRange) String() string {
	return fmt.Sprintf("%s to %s", r.Start, r.End)
}
