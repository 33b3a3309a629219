package eir

import "math"

// Installment returns the level payment that amortizes principal over n
// periods at the periodic rate:
//
//	payment = r * P * (1+r)^n / ((1+r)^n - 1)
//
// A zero rate splits the principal evenly.
func Installment(rate float64, n int, principal float64) float64 {
	if rate == 0 {
		return principal / float64(n)
	}
	factor := math.Pow(1+rate, float64(n))
	return rate * principal * factor / (factor - 1)
}

// periodicRate converts a nominal annual rate to the rate of one installment period.
func periodicRate(annual float64, monthsPerInstallment int) float64 {
	return annual * float64(monthsPerInstallment) / 12
}

// accrue is simple interest on balance for the given days on a 365-day year.
func accrue(balance, annualRate float64, days int) float64 {
	return balance * annualRate * (float64(days) / daysInYear)
}

const daysInYear = 365.0
