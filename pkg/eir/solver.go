package eir

import "math"

// Goal-seek bracket and stopping rule for the effective rate.
const (
	rateFloor      = 0.10
	rateCeiling    = 0.60
	maxBisections  = 100
	solveTolerance = 1e-8
)

// Solution is the outcome of the effective-rate goal seek.
type Solution struct {
	Rate       float64 // nominal annual rate, 0.139 for 13.9%
	Iterations int
	Residual   float64 // terminal balance at Rate
	Converged  bool    // false when the bracket was exhausted without reaching tolerance
}

// TerminalBalance replays the installment cashflows from opening at the
// given nominal rate and returns the balance left after the last one. It
// increases with rate.
func TerminalBalance(opening, rate float64, cashflows []ScheduleRow) float64 {
	if len(cashflows) == 0 {
		return 0
	}
	balance := opening
	for _, cf := range cashflows {
		balance = balance + accrue(balance, rate, cf.Days) - cf.EMI
	}
	return balance
}

// SolveEffectiveRate bisects [0.10, 0.60] for the rate at which the revised
// loan value is exactly repaid by the contractual cashflows. When the
// tolerance is not met the last midpoint is returned with Converged unset.
func SolveEffectiveRate(revisedLoanValue float64, cashflows []ScheduleRow) Solution {
	low, high := rateFloor, rateCeiling
	var sol Solution
	for iter := 1; iter <= maxBisections; iter++ {
		mid := (low + high) / 2
		residual := TerminalBalance(revisedLoanValue, mid, cashflows)
		sol = Solution{Rate: mid, Iterations: iter, Residual: residual}
		if math.Abs(residual) < solveTolerance {
			sol.Converged = true
			return sol
		}
		if residual > 0 {
			high = mid
		} else {
			low = mid
		}
	}
	return sol
}

// EffectiveSchedule builds the Step B table: the revised loan value accrued
// at rate over the contractual schedule's dates and cashflows.
func EffectiveSchedule(t Terms, rate float64, contractual []ScheduleRow) []ScheduleRow {
	rlv := t.RevisedLoanValue()
	installments := Installments(contractual)

	rows := make([]ScheduleRow, 0, len(installments)+2)
	rows = append(rows,
		disbursementRow(t.Disbursed, rlv),
		stubRow(t.Disbursed, rlv, rate),
	)

	opening := rlv
	for _, cf := range installments {
		interest := accrue(opening, rate, cf.Days)
		closing := opening + interest - cf.EMI
		rows = append(rows, ScheduleRow{
			Month:          cf.Month,
			EMIDate:        cf.EMIDate,
			OpeningBalance: opening,
			Interest:       interest,
			EMI:            cf.EMI,
			ClosingBalance: closing,
			Days:           cf.Days,
		})
		opening = closing
	}
	return rows
}
