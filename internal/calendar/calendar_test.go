package calendar

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func day(s string) time.Time {
	t, _ := time.Parse(time.DateOnly, s)
	return t
}

func TestBusinessDaysBetween(t *testing.T) {
	c := UTC()

	tests := []struct {
		name     string
		from, to string
		want     int
	}{
		{"same day", "2026-03-02", "2026-03-02", 0},
		{"next day", "2026-03-02", "2026-03-03", 1},
		{"over weekend", "2026-03-06", "2026-03-09", 1},
		{"full week", "2026-03-02", "2026-03-09", 5},
		{"reversed", "2026-03-09", "2026-03-02", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, c.BusinessDaysBetween(day(tt.from), day(tt.to)))
		})
	}
}

func TestAddBusinessDays(t *testing.T) {
	c := UTC()
	// Thursday + 5 business days skips the weekend.
	assert.Equal(t, day("2026-03-12"), c.AddBusinessDays(day("2026-03-05"), 5))
	assert.Equal(t, day("2026-03-05"), c.AddBusinessDays(day("2026-03-05"), 0))
}

func TestHolidays(t *testing.T) {
	c, err := New("America/New_York", []string{"2026-07-03"})
	require.NoError(t, err)

	loc := c.Location()
	thu := time.Date(2026, 7, 2, 15, 0, 0, 0, loc)
	mon := time.Date(2026, 7, 6, 10, 0, 0, 0, loc)
	assert.False(t, c.IsBusinessDay(time.Date(2026, 7, 3, 12, 0, 0, 0, loc)))
	assert.Equal(t, 1, c.BusinessDaysBetween(thu, mon))

	_, err = New("Not/AZone", nil)
	assert.Error(t, err)
	_, err = New("UTC", []string{"07/03/2026"})
	assert.Error(t, err)
}

func TestPeriodsOf(t *testing.T) {
	c := UTC()
	p := c.PeriodsOf(time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC))
	assert.Equal(t, "2026-01-01", p.Day)
	assert.Equal(t, "2026-W01", p.Week)
	assert.Equal(t, "2026-01", p.Month)

	// Dec 31 2024 belongs to ISO week 1 of 2025.
	p = c.PeriodsOf(time.Date(2024, 12, 31, 12, 0, 0, 0, time.UTC))
	assert.Equal(t, "2025-W01", p.Week)
	assert.Equal(t, "2024-12", p.Month)
}
