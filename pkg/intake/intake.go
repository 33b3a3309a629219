// Package intake turns loosely named tabular rows into loan cases.
package intake

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/mcclellann/fredEIR/pkg/eir"
	"github.com/mcclellann/fredEIR/pkg/models"
	"github.com/shopspring/decimal"
)

// Row is one input record keyed by its header text.
type Row map[string]string

// Header aliases accepted for each input column, in lookup order.
var (
	AgreementAliases  = []string{"Agreement Number", "agreement_number", "AgreementNumber"}
	ProductAliases    = []string{"Product Type", "product_type", "ProductType"}
	FrequencyAliases  = []string{"Repayment Frequency", "repayment_frequency", "RepaymentFrequency"}
	AmountAliases     = []string{"Amount Financed", "amount_financed", "AmountFinanced"}
	TenureAliases     = []string{"Tenure", "tenure"}
	DisbursedAliases  = []string{"Disbursement Date", "disbursement_date", "DisbursementDate", "Disbursement"}
	AmortIRRAliases   = []string{"Amort IRR", "amort_irr", "AmortIRR", "Amort IRR (%)"}
	AdvanceAliases    = []string{"Advance EMI", "advance_emi", "AdvanceEMI"}
	UpfrontIncAliases = []string{"Upfront Income", "upfront_income", "UpfrontIncome"}
	UpfrontExpAliases = []string{"Upfront Expense", "upfront_expense", "UpfrontExpense"}
)

// TemplateHeader is the header row of the input template.
var TemplateHeader = []string{
	"Agreement Number", "Product Type", "Repayment Frequency", "Amount Financed", "Tenure",
	"Disbursement Date", "Amort IRR", "Advance EMI", "Upfront Income", "Upfront Expense",
}

// excelEpoch is day zero of spreadsheet serial dates.
var excelEpoch = time.Date(1899, time.December, 30, 0, 0, 0, 0, time.UTC)

var dateLayouts = []string{"2006-01-02", "02/01/2006", "02-01-2006", "2/1/2006", "2-1-2006"}

// Lookup returns the first non-blank value among the aliases.
func Lookup(row Row, aliases ...string) string {
	for _, a := range aliases {
		if v := strings.TrimSpace(row[a]); v != "" {
			return v
		}
	}
	return ""
}

// ParseDate accepts spreadsheet serial numbers, ISO dates and day-first
// dd/mm/yyyy or dd-mm-yyyy dates.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, errors.New("empty date")
	}
	if serial, err := strconv.ParseFloat(s, 64); err == nil {
		if serial <= 0 || math.IsInf(serial, 0) || math.IsNaN(serial) {
			return time.Time{}, fmt.Errorf("invalid serial date %q", s)
		}
		return excelEpoch.AddDate(0, 0, int(math.Floor(serial))), nil
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	// ISO timestamps with a time part.
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), nil
	}
	return time.Time{}, fmt.Errorf("unrecognized date %q", s)
}

// ParseAmortIRR reads the annual rate; an empty cell is 0. Fraction scaling
// is left to the pipeline.
func ParseAmortIRR(s string) (decimal.Decimal, error) {
	return parseAmount(s)
}

func parseAmount(s string) (decimal.Decimal, error) {
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", "")
	if s == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(s)
}

// ToLoanCase normalizes one row. index is the zero-based row position and
// names the loan when the agreement number is missing.
func ToLoanCase(row Row, index int, defaultProduct models.ProductType) (models.LoanCase, error) {
	loan := models.LoanCase{AgreementID: Lookup(row, AgreementAliases...)}
	if loan.AgreementID == "" {
		loan.AgreementID = fmt.Sprintf("LOAN_%d", index+1)
	}
	fail := func(field, reason string) (models.LoanCase, error) {
		return loan, &eir.InputError{AgreementID: loan.AgreementID, Field: field, Reason: reason}
	}

	product, ok := models.ParseProductType(Lookup(row, ProductAliases...), defaultProduct)
	if !ok {
		return fail("product type", fmt.Sprintf("unknown product %q", Lookup(row, ProductAliases...)))
	}
	loan.ProductType = product

	freq, ok := models.ParseFrequency(Lookup(row, FrequencyAliases...))
	if !ok {
		return fail("repayment frequency", fmt.Sprintf("unknown frequency %q", Lookup(row, FrequencyAliases...)))
	}
	loan.RepaymentFrequency = freq

	amount := Lookup(row, AmountAliases...)
	if amount == "" {
		return fail("amount financed", "missing")
	}
	var err error
	if loan.AmountFinanced, err = parseAmount(amount); err != nil {
		return fail("amount financed", fmt.Sprintf("not a number: %q", amount))
	}

	tenure := Lookup(row, TenureAliases...)
	t, err := strconv.ParseFloat(tenure, 64)
	if err != nil {
		return fail("tenure", fmt.Sprintf("not a number: %q", tenure))
	}
	loan.TenureMonths = int(t)

	disbursed := Lookup(row, DisbursedAliases...)
	if disbursed == "" {
		return loan, &eir.InputError{AgreementID: loan.AgreementID, Reason: "invalid disbursement date"}
	}
	if loan.DisbursementDate, err = ParseDate(disbursed); err != nil {
		return loan, &eir.InputError{AgreementID: loan.AgreementID, Reason: "invalid disbursement date"}
	}

	irr := Lookup(row, AmortIRRAliases...)
	if loan.AmortIRR, err = ParseAmortIRR(irr); err != nil {
		return fail("amort IRR", fmt.Sprintf("not a number: %q", irr))
	}

	for _, f := range []struct {
		field   string
		aliases []string
		dst     *decimal.Decimal
	}{
		{"advance EMI", AdvanceAliases, &loan.AdvanceEMI},
		{"upfront income", UpfrontIncAliases, &loan.UpfrontIncome},
		{"upfront expense", UpfrontExpAliases, &loan.UpfrontExpense},
	} {
		v := Lookup(row, f.aliases...)
		if *f.dst, err = parseAmount(v); err != nil {
			return fail(f.field, fmt.Sprintf("not a number: %q", v))
		}
	}
	return loan, nil
}

// Entry is one decoded row: either a loan or the reason it was rejected.
type Entry struct {
	Loan models.LoanCase
	Err  error
}

// Decode normalizes every row, keeping input order.
func Decode(rows []Row, defaultProduct models.ProductType) []Entry {
	entries := make([]Entry, len(rows))
	for i, row := range rows {
		loan, err := ToLoanCase(row, i, defaultProduct)
		entries[i] = Entry{Loan: loan, Err: err}
	}
	return entries
}

// ReadCSV reads a header row followed by data rows. Fully blank lines are skipped.
func ReadCSV(r io.Reader) ([]Row, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	records, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read csv: %w", err)
	}
	if len(records) == 0 {
		return nil, errors.New("csv has no header row")
	}
	return Rows(records[0], records[1:]), nil
}

// Rows zips a header with data records into Rows, dropping blank records.
func Rows(header []string, records [][]string) []Row {
	for i := range header {
		header[i] = strings.TrimSpace(strings.TrimPrefix(header[i], "\ufeff"))
	}
	var rows []Row
	for _, rec := range records {
		row := Row{}
		blank := true
		for i, h := range header {
			if i >= len(rec) || h == "" {
				continue
			}
			row[h] = rec[i]
			if strings.TrimSpace(rec[i]) != "" {
				blank = false
			}
		}
		if !blank {
			rows = append(rows, row)
		}
	}
	return rows
}

// TemplateRows returns the sample loans shipped with the input template.
func TemplateRows() [][]string {
	return [][]string{
		{"AGR001", "Other Products", "Monthly", "100000", "36", "15/01/2025", "12.5", "0", "2500", "500"},
		{"AGR002", "Tractor", "Quarterly", "150000", "36", "20/02/2025", "11.75", "0", "3200", "750"},
		{"AGR003", "Tractor", "Halfyearly", "200000", "36", "10/03/2025", "12.0", "0", "4000", "800"},
	}
}
