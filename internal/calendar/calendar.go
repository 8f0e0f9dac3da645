package calendar

import (
	"fmt"
	"time"
)

// Calendar answers business-day and reporting-period questions in a single
// exchange time zone.
type Calendar struct {
	loc      *time.Location
	holidays map[string]struct{}
}

// New builds a calendar for the named IANA zone. An empty or unknown zone
// falls back to UTC. Holidays are YYYY-MM-DD dates.
func New(zone string, holidays []string) (*Calendar, error) {
	loc := time.UTC
	if zone != "" {
		l, err := time.LoadLocation(zone)
		if err != nil {
			return nil, fmt.Errorf("load time zone %q: %w", zone, err)
		}
		loc = l
	}

	c := &Calendar{loc: loc, holidays: make(map[string]struct{}, len(holidays))}
	for _, h := range holidays {
		d, err := time.ParseInLocation(time.DateOnly, h, loc)
		if err != nil {
			return nil, fmt.Errorf("parse holiday %q: %w", h, err)
		}
		c.holidays[d.Format(time.DateOnly)] = struct{}{}
	}
	return c, nil
}

// UTC is a weekday-only calendar in UTC.
func UTC() *Calendar {
	return &Calendar{loc: time.UTC, holidays: map[string]struct{}{}}
}

// Location returns the calendar's time zone.
func (c *Calendar) Location() *time.Location {
	return c.loc
}

// Date truncates t to midnight in the calendar zone.
func (c *Calendar) Date(t time.Time) time.Time {
	t = t.In(c.loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, c.loc)
}

// IsBusinessDay reports whether t falls on a trading weekday.
func (c *Calendar) IsBusinessDay(t time.Time) bool {
	d := c.Date(t)
	switch d.Weekday() {
	case time.Saturday, time.Sunday:
		return false
	}
	_, holiday := c.holidays[d.Format(time.DateOnly)]
	return !holiday
}

// BusinessDaysBetween counts business days after from up to and including to.
// It is zero when to is not after from.
func (c *Calendar) BusinessDaysBetween(from, to time.Time) int {
	start, end := c.Date(from), c.Date(to)
	n := 0
	for d := start.AddDate(0, 0, 1); !d.After(end); d = d.AddDate(0, 0, 1) {
		if c.IsBusinessDay(d) {
			n++
		}
	}
	return n
}

// AddBusinessDays returns the date n business days after t.
func (c *Calendar) AddBusinessDays(t time.Time, n int) time.Time {
	d := c.Date(t)
	for n > 0 {
		d = d.AddDate(0, 0, 1)
		if c.IsBusinessDay(d) {
			n--
		}
	}
	return d
}

// Periods identifies the day, ISO week and month containing a moment.
type Periods struct {
	Day   string `json:"day"`
	Week  string `json:"week"`
	Month string `json:"month"`
}

// PeriodsOf returns the reporting periods for t.
func (c *Calendar) PeriodsOf(t time.Time) Periods {
	t = t.In(c.loc)
	year, week := t.ISOWeek()
	return Periods{
		Day:   t.Format(time.DateOnly),
		Week:  fmt.Sprintf("%04d-W%02d", year, week),
		Month: t.Format("2006-01"),
	}
}
