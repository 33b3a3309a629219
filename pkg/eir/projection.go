package eir

import (
	"fmt"
	"math"

	"github.com/mcclellann/fredEIR/pkg/models"
	"github.com/shopspring/decimal"
)

// Terms are the validated numeric inputs of one loan.
type Terms struct {
	AgreementID          string
	AmountFinanced       float64
	AdvanceEMI           float64
	UpfrontIncome        float64
	UpfrontExpense       float64
	AmortIRR             float64 // percent, after fraction scaling
	AnnualRate           float64 // AmortIRR / 100
	Product              models.ProductType
	Frequency            models.Frequency
	MonthsPerInstallment int
	Installments         int
	Disbursed            Date
}

// NetPrincipal is the amount actually lent once the advance installment is kept back.
func (t Terms) NetPrincipal() float64 {
	return t.AmountFinanced - t.AdvanceEMI
}

// RevisedLoanValue is the principal base once fees and the advance are folded in.
func (t Terms) RevisedLoanValue() float64 {
	return t.AmountFinanced - t.UpfrontIncome + t.UpfrontExpense - t.AdvanceEMI
}

// ScaleAmortIRR reads rates below 1 as fractions and converts them to percent.
func ScaleAmortIRR(rate float64) float64 {
	if rate < 1 {
		return rate * 100
	}
	return rate
}

// NewTerms validates a loan and converts it to the float arithmetic of the pipeline.
func NewTerms(loan models.LoanCase) (Terms, error) {
	id := loan.AgreementID
	if loan.DisbursementDate.IsZero() {
		return Terms{}, &InputError{AgreementID: id, Reason: "invalid disbursement date"}
	}
	if !loan.ProductType.Valid() {
		return Terms{}, invalid(id, "product type", fmt.Sprintf("unknown product %q", loan.ProductType))
	}
	if !loan.RepaymentFrequency.Valid() {
		return Terms{}, invalid(id, "repayment frequency", fmt.Sprintf("unknown frequency %q", loan.RepaymentFrequency))
	}
	if loan.TenureMonths <= 0 {
		return Terms{}, invalid(id, "tenure", "must be positive")
	}

	t := Terms{
		AgreementID:          id,
		AmountFinanced:       loan.AmountFinanced.InexactFloat64(),
		AdvanceEMI:           loan.AdvanceEMI.InexactFloat64(),
		UpfrontIncome:        loan.UpfrontIncome.InexactFloat64(),
		UpfrontExpense:       loan.UpfrontExpense.InexactFloat64(),
		AmortIRR:             ScaleAmortIRR(loan.AmortIRR.InexactFloat64()),
		Product:              loan.ProductType,
		Frequency:            loan.RepaymentFrequency,
		MonthsPerInstallment: loan.RepaymentFrequency.MonthsPerInstallment(),
		Installments:         loan.NumberOfInstallments(),
		Disbursed:            DateOf(loan.DisbursementDate),
	}
	t.AnnualRate = t.AmortIRR / 100

	switch {
	case t.Installments <= 0:
		return Terms{}, invalid(id, "tenure", fmt.Sprintf("%d months yields no %s installments", loan.TenureMonths, loan.RepaymentFrequency))
	case !(t.AmountFinanced > 0):
		return Terms{}, invalid(id, "amount financed", "must be positive")
	case t.AmortIRR < 0:
		return Terms{}, invalid(id, "amort IRR", "must not be negative")
	case t.AdvanceEMI < 0, t.UpfrontIncome < 0, t.UpfrontExpense < 0:
		return Terms{}, invalid(id, "fees", "advance EMI, upfront income and upfront expense must not be negative")
	case t.NetPrincipal() <= 0:
		return Terms{}, invalid(id, "advance EMI", "must be less than the amount financed")
	case t.RevisedLoanValue() <= 0:
		return Terms{}, invalid(id, "upfront income", "revised loan value must be positive")
	}
	return t, nil
}

// Projection holds every stage of the EIR computation for one loan.
type Projection struct {
	Loan             models.LoanCase
	Terms            Terms
	FirstInstallment Date
	LastInstallment  Date
	Contractual      []ScheduleRow // Step A
	Solution         Solution
	Effective        []ScheduleRow // Step B
	Income           []IncomeRow   // Step C
	Monthly          []MonthlyRow  // Step D
}

// Calculate runs the four-stage pipeline for one loan. It has no side effects:
// the same loan always yields the same projection.
func Calculate(loan models.LoanCase) (*Projection, error) {
	terms, err := NewTerms(loan)
	if err != nil {
		return nil, err
	}

	contractual := ContractualSchedule(terms)
	sol := SolveEffectiveRate(terms.RevisedLoanValue(), Installments(contractual))
	effective := EffectiveSchedule(terms, sol.Rate, contractual)
	income := IncomeDifference(contractual, effective)

	return &Projection{
		Loan:             loan,
		Terms:            terms,
		FirstInstallment: FirstInstallmentDate(terms.Disbursed, terms.Product),
		LastInstallment:  contractual[len(contractual)-1].EMIDate,
		Contractual:      contractual,
		Solution:         sol,
		Effective:        effective,
		Income:           income,
		Monthly:          MonthlySplit(terms, income),
	}, nil
}

// Records flattens the monthly split into output rows. Amounts are rounded
// to 4 places and non-finite values are reported as 0.
func (p *Projection) Records() []models.ProjectionRecord {
	records := make([]models.ProjectionRecord, 0, len(p.Monthly))
	for _, m := range p.Monthly {
		rec := models.ProjectionRecord{
			AgreementID:          p.Loan.AgreementID,
			ProductType:          p.Terms.Product,
			AmountFinanced:       p.Loan.AmountFinanced,
			TenureMonths:         p.Loan.TenureMonths,
			RepaymentFrequency:   p.Terms.Frequency,
			NumberOfInstallments: p.Terms.Installments,
			Disbursement:         p.Terms.Disbursed.String(),
			FirstEMI:             p.FirstInstallment.String(),
			LastEMI:              p.LastInstallment.String(),
			AmortIRR:             finite(p.Terms.AmortIRR),
			AdvanceEMI:           p.Loan.AdvanceEMI,
			UpfrontIncome:        p.Loan.UpfrontIncome,
			UpfrontExpense:       p.Loan.UpfrontExpense,
			Month:                m.Month.MonthLabel(),
			EIRIncome:            round4(m.ColC),
		}
		if m.HasStepCIncome {
			rec.StepCEIRIncome = decimal.NewNullDecimal(round4(m.StepCIncome))
		}
		records = append(records, rec)
	}
	return records
}

func finite(v float64) decimal.Decimal {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return decimal.Zero
	}
	return decimal.NewFromFloat(v)
}

func round4(v float64) decimal.Decimal {
	return finite(v).Round(4)
}
