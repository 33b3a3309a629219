package eir

import "github.com/mcclellann/fredEIR/pkg/models"

// MonthlyRow is the reported income of one calendar month (Step D).
//
// ColA recognizes the installment period ending in the month, net of what was
// already accrued for it. ColB accrues the part of the next period that falls
// in the month. ColC = ColA + ColB is the month's EIR income.
type MonthlyRow struct {
	Month          Date // first day of the month
	StepCIncome    float64
	HasStepCIncome bool
	ColA           float64
	ColB           float64
	ColC           float64
}

// installmentIncome is a recognized Step C row.
type installmentIncome struct {
	row    int
	date   Date
	income float64
	days   int
}

func (i installmentIncome) daily() float64 {
	return i.income / float64(i.days)
}

// forward is the part of the period ending on this installment that lies
// after the EMI day of the preceding month.
func (i installmentIncome) forward(emiDay int) float64 {
	return i.daily() * float64(i.days-emiDay)
}

func recognized(rows []IncomeRow) []installmentIncome {
	var out []installmentIncome
	for idx, r := range rows {
		if !r.Recognized {
			continue
		}
		out = append(out, installmentIncome{row: idx, date: r.EMIDate, income: r.Income, days: r.Days})
	}
	return out
}

func installmentIn(installments []installmentIncome, month Date) (installmentIncome, bool) {
	for _, inst := range installments {
		if inst.date.SameMonth(month) {
			return inst, true
		}
	}
	return installmentIncome{}, false
}

// MonthlySplit spreads each installment period's income over the calendar
// months it covers. Monthly loans get one row per month from disbursement to
// the last installment; other frequencies get the disbursement month, any
// months before the first installment, and one row per installment.
func MonthlySplit(t Terms, income []IncomeRow) []MonthlyRow {
	installments := recognized(income)
	if len(installments) == 0 {
		return nil
	}
	emiDay := t.Product.EMIDay()
	if t.Frequency == models.FrequencyMonthly {
		return splitMonthly(t.Disbursed, emiDay, installments)
	}
	return splitPeriodic(t.Disbursed, emiDay, installments)
}

func splitMonthly(disbursed Date, emiDay int, installments []installmentIncome) []MonthlyRow {
	postCutoff := disbursed.Day() >= cutoffDay
	first := installments[0]
	end := installments[len(installments)-1].date.StartOfMonth().AddMonths(1)

	var (
		rows    []MonthlyRow
		prevB   float64
		accrued float64 // sum of ColB over the months already emitted
	)
	for month, idx := disbursed.StartOfMonth(), 0; month.Before(end); month, idx = month.AddMonths(1), idx+1 {
		row := MonthlyRow{Month: month}
		due, hasDue := installmentIn(installments, month)
		if hasDue {
			row.StepCIncome, row.HasStepCIncome = due.income, true
		}

		switch {
		case idx == 0:
			row.ColB = first.daily() * float64(disbursed.DaysUntil(month.EndOfMonth()))
		case idx == 1 && postCutoff:
			row.ColB = first.daily() * float64(month.DaysInMonth())
		default:
			if next, ok := installmentIn(installments, month.AddMonths(1)); ok {
				row.ColB = next.forward(emiDay)
			}
		}

		if hasDue && idx > 0 {
			if postCutoff && due.row == firstInstallmentRow {
				row.ColA = due.income - accrued
			} else {
				row.ColA = due.income - prevB
			}
		}
		row.ColC = row.ColA + row.ColB

		rows = append(rows, row)
		prevB = row.ColB
		accrued += row.ColB
	}
	return rows
}

func splitPeriodic(disbursed Date, emiDay int, installments []installmentIncome) []MonthlyRow {
	first := installments[0]
	daily := first.daily()
	month := disbursed.StartOfMonth()

	stub := daily * float64(disbursed.DaysUntil(month.EndOfMonth()))
	rows := []MonthlyRow{{Month: month, ColB: stub, ColC: stub}}
	accrued := stub

	if disbursed.Day() >= cutoffDay {
		firstMonth := first.date.StartOfMonth()
		for m := month.AddMonths(1); m.Before(firstMonth); m = m.AddMonths(1) {
			colB := daily * float64(m.DaysInMonth())
			rows = append(rows, MonthlyRow{Month: m, ColB: colB, ColC: colB})
			accrued += colB
		}
	}

	for i, due := range installments {
		row := MonthlyRow{
			Month:          due.date.StartOfMonth(),
			StepCIncome:    due.income,
			HasStepCIncome: true,
			ColA:           due.income - accrued,
		}
		if i < len(installments)-1 {
			row.ColB = installments[i+1].forward(emiDay)
		}
		row.ColC = row.ColA + row.ColB
		rows = append(rows, row)
		accrued = row.ColB
	}
	return rows
}
