package eir

import (
	"math"
	"time"

	"github.com/mcclellann/fredEIR/pkg/models"
)

const (
	// Disbursements on or after this day skip a billing cycle.
	cutoffDay = 20

	// maxInstallments caps a schedule against inconsistent tenure/frequency input.
	maxInstallments = 100

	// Closing balances smaller than this are treated as fully repaid.
	balanceEpsilon = 1e-4

	// firstInstallmentRow is the row index of the first installment in a schedule.
	firstInstallmentRow = 2
)

// ScheduleRow is one line of an amortization table. Month 0 is the
// disbursement, month 1 the stub accrual to the end of the disbursement month
// and months 2.. the installments. Days is the day count since the previous
// row's date and is zero on the disbursement row.
type ScheduleRow struct {
	Month          int
	EMIDate        Date
	OpeningBalance float64
	Interest       float64
	EMI            float64 // negative outflow on the disbursement row
	ClosingBalance float64
	Days           int
}

// Principal is the part of the installment that reduced the balance.
func (r ScheduleRow) Principal() float64 {
	return r.EMI - r.Interest
}

// FirstInstallmentDate applies the billing-cycle cutoff: disbursements before
// the 20th pay on the product's EMI day of the next month, later ones a month
// after that.
func FirstInstallmentDate(disbursed Date, product models.ProductType) Date {
	months := 1
	if disbursed.Day() >= cutoffDay {
		months = 2
	}
	return NewDate(disbursed.Year(), disbursed.Month()+time.Month(months), product.EMIDay())
}

func disbursementRow(disbursed Date, amount float64) ScheduleRow {
	return ScheduleRow{Month: 0, EMIDate: disbursed, EMI: -amount}
}

// stubRow accrues interest from the disbursement date to the end of its month.
func stubRow(disbursed Date, opening, annualRate float64) ScheduleRow {
	end := disbursed.EndOfMonth()
	days := disbursed.DaysUntil(end)
	interest := accrue(opening, annualRate, days)
	return ScheduleRow{
		Month:          1,
		EMIDate:        end,
		OpeningBalance: opening,
		Interest:       interest,
		ClosingBalance: opening + interest,
		Days:           days,
	}
}

// ContractualSchedule builds the IGAAP amortization table (Step A). The stub
// row is informational: installment interest accrues on the net principal
// from the disbursement date.
func ContractualSchedule(t Terms) []ScheduleRow {
	principal := t.NetPrincipal()
	payment := Installment(periodicRate(t.AnnualRate, t.MonthsPerInstallment), t.Installments, principal)

	rows := make([]ScheduleRow, 0, t.Installments+2)
	rows = append(rows,
		disbursementRow(t.Disbursed, principal),
		stubRow(t.Disbursed, principal, t.AnnualRate),
	)

	prev := ScheduleRow{EMIDate: t.Disbursed, ClosingBalance: principal}
	due := FirstInstallmentDate(t.Disbursed, t.Product)
	for count := 1; count <= t.Installments && count <= maxInstallments; count++ {
		row := contractualRow(prev, due, t.AnnualRate, payment, count == t.Installments)
		row.Month = count + 1
		rows = append(rows, row)
		if row.ClosingBalance <= 0 {
			break
		}
		prev = row
		due = due.AddMonths(t.MonthsPerInstallment)
	}
	return rows
}

// contractualRow accrues the period from prev to due. The final installment
// absorbs the rounding residue so the loan closes at exactly zero.
func contractualRow(prev ScheduleRow, due Date, annualRate, payment float64, final bool) ScheduleRow {
	days := prev.EMIDate.DaysUntil(due)
	opening := prev.ClosingBalance
	interest := accrue(opening, annualRate, days)

	emi := payment
	if final {
		emi = opening + interest
	}
	closing := opening + interest - emi
	if math.Abs(closing) < balanceEpsilon {
		closing = 0
	}
	return ScheduleRow{
		EMIDate:        due,
		OpeningBalance: opening,
		Interest:       interest,
		EMI:            emi,
		ClosingBalance: closing,
		Days:           days,
	}
}

// Installments returns the installment rows of a schedule.
func Installments(rows []ScheduleRow) []ScheduleRow {
	if len(rows) <= firstInstallmentRow {
		return nil
	}
	return rows[firstInstallmentRow:]
}
