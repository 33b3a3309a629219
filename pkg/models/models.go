package models

import (
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type ProductType string

const (
	ProductOther   ProductType = "Other Products"
	ProductTractor ProductType = "Tractor"
)

// EMIDay is the day of the month installments fall due for the product.
func (p ProductType) EMIDay() int {
	if p == ProductTractor {
		return 5
	}
	return 3
}

func (p ProductType) Valid() bool {
	return p == ProductOther || p == ProductTractor
}

// ParseProductType maps free-form product names onto a ProductType. An empty
// value returns fallback.
func ParseProductType(s string, fallback ProductType) (ProductType, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "":
		return fallback, true
	case "other products", "other product", "other":
		return ProductOther, true
	case "tractor":
		return ProductTractor, true
	}
	return "", false
}

type Frequency string

const (
	FrequencyMonthly    Frequency = "Monthly"
	FrequencyBimonthly  Frequency = "Bimonthly"
	FrequencyQuarterly  Frequency = "Quarterly"
	FrequencyHalfyearly Frequency = "Halfyearly"
)

// MonthsPerInstallment returns the calendar months between two installments.
func (f Frequency) MonthsPerInstallment() int {
	switch f {
	case FrequencyBimonthly:
		return 2
	case FrequencyQuarterly:
		return 3
	case FrequencyHalfyearly:
		return 6
	default:
		return 1
	}
}

func (f Frequency) Valid() bool {
	switch f {
	case FrequencyMonthly, FrequencyBimonthly, FrequencyQuarterly, FrequencyHalfyearly:
		return true
	}
	return false
}

// ParseFrequency accepts the frequency names case-insensitively; empty means Monthly.
func ParseFrequency(s string) (Frequency, bool) {
	switch strings.ToLower(strings.ReplaceAll(strings.TrimSpace(s), "-", "")) {
	case "", "monthly":
		return FrequencyMonthly, true
	case "bimonthly":
		return FrequencyBimonthly, true
	case "quarterly":
		return FrequencyQuarterly, true
	case "halfyearly", "half yearly":
		return FrequencyHalfyearly, true
	}
	return "", false
}

// LoanCase is one normalized input loan.
type LoanCase struct {
	AgreementID        string          `json:"agreement_id"`
	AmountFinanced     decimal.Decimal `json:"amount_financed"`
	TenureMonths       int             `json:"tenure_months"`
	ProductType        ProductType     `json:"product_type"`
	RepaymentFrequency Frequency       `json:"repayment_frequency"`
	DisbursementDate   time.Time       `json:"disbursement_date"`
	AmortIRR           decimal.Decimal `json:"amort_irr"` // nominal annual percent, e.g. 12.5
	UpfrontIncome      decimal.Decimal `json:"upfront_income"`
	UpfrontExpense     decimal.Decimal `json:"upfront_expense"`
	AdvanceEMI         decimal.Decimal `json:"advance_emi"`
}

// NumberOfInstallments rounds tenure / months-per-installment half up.
func (l LoanCase) NumberOfInstallments() int {
	mpi := l.RepaymentFrequency.MonthsPerInstallment()
	return int(math.Floor(float64(l.TenureMonths)/float64(mpi) + 0.5))
}

// ProjectionRecord is one flat output row per loan and calendar month.
// LoanSeq numbers the loans of a run so loans sharing an agreement number stay apart.
type ProjectionRecord struct {
	LoanSeq              int                 `json:"loan_seq"`
	AgreementID          string              `json:"agreement_id"`
	ProductType          ProductType         `json:"product_type"`
	AmountFinanced       decimal.Decimal     `json:"amount_financed"`
	TenureMonths         int                 `json:"tenure_months"`
	RepaymentFrequency   Frequency           `json:"repayment_frequency"`
	NumberOfInstallments int                 `json:"number_of_installments"`
	Disbursement         string              `json:"disbursement"` // dd/mm/yyyy
	FirstEMI             string              `json:"first_emi"`
	LastEMI              string              `json:"last_emi"`
	AmortIRR             decimal.Decimal     `json:"amort_irr"`
	AdvanceEMI           decimal.Decimal     `json:"advance_emi"`
	UpfrontIncome        decimal.Decimal     `json:"upfront_income"`
	UpfrontExpense       decimal.Decimal     `json:"upfront_expense"`
	Month                string              `json:"month"` // e.g. Jan-25
	StepCEIRIncome       decimal.NullDecimal `json:"step_c_eir_income"`
	EIRIncome            decimal.Decimal     `json:"eir_income"`
}

// ProjectionRun is the result of projecting one batch of loans.
type ProjectionRun struct {
	ID        uuid.UUID          `json:"id"`
	CreatedAt time.Time          `json:"created_at"`
	Total     int                `json:"total"`
	Succeeded int                `json:"succeeded"`
	Failed    int                `json:"failed"`
	Errors    []string           `json:"errors"`
	Records   []ProjectionRecord `json:"records,omitempty"`
}
