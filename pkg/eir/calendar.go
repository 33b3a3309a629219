package eir

import (
	"time"
)

// Date is a calendar day. All arithmetic happens on UTC midnight so day
// counts never see a daylight-saving hour.
type Date struct {
	t time.Time
}

func NewDate(year int, month time.Month, day int) Date {
	return Date{t: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// DateOf drops the clock and location of t, keeping its calendar day.
func DateOf(t time.Time) Date {
	return NewDate(t.Year(), t.Month(), t.Day())
}

func (d Date) Time() time.Time     { return d.t }
func (d Date) Year() int           { return d.t.Year() }
func (d Date) Month() time.Month   { return d.t.Month() }
func (d Date) Day() int            { return d.t.Day() }
func (d Date) IsZero() bool        { return d.t.IsZero() }
func (d Date) Before(o Date) bool  { return d.t.Before(o.t) }
func (d Date) Equal(o Date) bool   { return d.t.Equal(o.t) }
func (d Date) SameMonth(o Date) bool {
	return d.Year() == o.Year() && d.Month() == o.Month()
}

// AddMonths moves by whole calendar months. Day overflow rolls into the
// following month (Jan 31 + 1 month = Mar 3 in a non-leap year).
func (d Date) AddMonths(n int) Date { return Date{t: d.t.AddDate(0, n, 0)} }

func (d Date) StartOfMonth() Date { return NewDate(d.Year(), d.Month(), 1) }

func (d Date) EndOfMonth() Date { return NewDate(d.Year(), d.Month()+1, 0) }

func (d Date) DaysInMonth() int { return d.EndOfMonth().Day() }

// DaysUntil returns the absolute number of whole days between d and o.
func (d Date) DaysUntil(o Date) int {
	days := int(o.t.Sub(d.t).Hours() / 24)
	if days < 0 {
		return -days
	}
	return days
}

var monthAbbrev = [...]string{"Jan", "Feb", "Mar", "Apr", "May", "Jun", "Jul", "Aug", "Sep", "Oct", "Nov", "Dec"}

// MonthLabel formats the month as "Jan-25".
func (d Date) MonthLabel() string {
	return monthAbbrev[d.Month()-1] + "-" + d.t.Format("06")
}

// String formats the date as dd/mm/yyyy.
func (d Date) String() string { return d.t.Format("02/01/2006") }
