package eir

// IncomeRow is one Step C line: the gap between the contractual and
// effective balances and the income recognized as that gap closes.
type IncomeRow struct {
	Month       int
	EMIDate     Date
	Days        int
	Unamortized float64
	Income      float64
	Recognized  bool // Income is defined; false for the disbursement and stub rows
}

// IncomeDifference derives Step C from the two schedules. The unamortized
// amount at disbursement is the net fee and advance effect, and it is fully
// recognized by the last installment.
func IncomeDifference(contractual, effective []ScheduleRow) []IncomeRow {
	n := min(len(contractual), len(effective))
	rows := make([]IncomeRow, 0, n)

	var atDisbursement, prev float64
	for i := 0; i < n; i++ {
		a, b := contractual[i], effective[i]
		row := IncomeRow{Month: a.Month, EMIDate: a.EMIDate, Days: a.Days}

		if i == 0 {
			row.Unamortized = -(a.EMI - b.EMI)
			atDisbursement = row.Unamortized
		} else {
			row.Unamortized = a.ClosingBalance - b.ClosingBalance
		}

		// The stub row is skipped: the first installment recognizes income
		// from disbursement onwards.
		switch {
		case i == firstInstallmentRow:
			row.Income, row.Recognized = atDisbursement-row.Unamortized, true
		case i > firstInstallmentRow:
			row.Income, row.Recognized = prev-row.Unamortized, true
		}

		rows = append(rows, row)
		prev = row.Unamortized
	}
	return rows
}
