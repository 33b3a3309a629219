package eir

import (
	"testing"
	"time"

	"github.com/mcclellann/fredEIR/pkg/models"
	"github.com/stretchr/testify/assert"
)

func TestDate_AddMonthsRollsOver(t *testing.T) {
	assert.Equal(t, NewDate(2026, time.January, 3), NewDate(2025, time.November, 3).AddMonths(2))
	assert.Equal(t, NewDate(2025, time.March, 3), NewDate(2025, time.January, 31).AddMonths(1))
	assert.Equal(t, NewDate(2028, time.January, 3), NewDate(2025, time.February, 3).AddMonths(35))
}

func TestDate_MonthBoundaries(t *testing.T) {
	d := NewDate(2024, time.February, 10)
	assert.Equal(t, NewDate(2024, time.February, 1), d.StartOfMonth())
	assert.Equal(t, NewDate(2024, time.February, 29), d.EndOfMonth())
	assert.Equal(t, 29, d.DaysInMonth())
	assert.Equal(t, 31, NewDate(2025, time.December, 31).DaysInMonth())
}

func TestDate_DaysUntilIsAbsolute(t *testing.T) {
	a := NewDate(2025, time.January, 15)
	b := NewDate(2025, time.February, 3)
	assert.Equal(t, 19, a.DaysUntil(b))
	assert.Equal(t, 19, b.DaysUntil(a))
	assert.Equal(t, 0, a.DaysUntil(a))
}

func TestDate_DateOfDropsClockAndZone(t *testing.T) {
	ist := time.FixedZone("IST", 5*3600+1800)
	got := DateOf(time.Date(2025, time.March, 31, 23, 45, 0, 0, ist))
	assert.Equal(t, NewDate(2025, time.March, 31), got)
}

func TestDate_Formatting(t *testing.T) {
	d := NewDate(2025, time.January, 5)
	assert.Equal(t, "Jan-25", d.MonthLabel())
	assert.Equal(t, "Dec-09", NewDate(2009, time.December, 1).MonthLabel())
	assert.Equal(t, "05/01/2025", d.String())
}

func TestFirstInstallmentDate(t *testing.T) {
	tests := []struct {
		name      string
		disbursed Date
		product   models.ProductType
		want      Date
	}{
		{"other before cutoff", NewDate(2025, time.January, 15), models.ProductOther, NewDate(2025, time.February, 3)},
		{"other on cutoff", NewDate(2025, time.January, 20), models.ProductOther, NewDate(2025, time.March, 3)},
		{"tractor after cutoff", NewDate(2025, time.February, 20), models.ProductTractor, NewDate(2025, time.April, 5)},
		{"tractor before cutoff", NewDate(2025, time.March, 10), models.ProductTractor, NewDate(2025, time.April, 5)},
		{"year rollover", NewDate(2025, time.December, 25), models.ProductOther, NewDate(2026, time.February, 3)},
		{"last day of month", NewDate(2025, time.November, 30), models.ProductTractor, NewDate(2026, time.January, 5)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FirstInstallmentDate(tt.disbursed, tt.product))
		})
	}
}
