// Package workbook reads loan input sheets and writes projection workbooks.
package workbook

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/mcclellann/fredEIR/pkg/intake"
	"github.com/mcclellann/fredEIR/pkg/models"
	"github.com/xuri/excelize/v2"
)

const (
	AllCasesSheet = "All Cases"
	TemplateSheet = "Template"

	maxSheetName = 31
)

// OutputHeader is the column header of every projection sheet.
var OutputHeader = []string{
	"Agreement Number", "Product Type", "Amount Financed", "Tenure (Months)", "Repayment Frequency",
	"No. of Installments", "Disbursement", "First EMI", "Last EMI", "Amort IRR (%)", "Advance EMI",
	"Upfront Income", "Upfront Expense", "Month", "Step C EIR Income", "EIR Income",
}

var (
	outputWidths   = []float64{18, 16, 16, 14, 20, 16, 14, 14, 14, 12, 12, 14, 14, 10, 16, 12}
	templateWidths = []float64{18, 16, 20, 16, 10, 18, 12, 14, 14, 16}
)

// ErrNoData is returned when an input workbook has no data rows.
var ErrNoData = errors.New("no data found in the workbook")

// ReadRows reads the first sheet of an xlsx workbook as a header row followed
// by data rows. Date cells come back as serial numbers.
func ReadRows(r io.Reader) ([]intake.Row, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to open workbook: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, ErrNoData
	}
	records, err := f.GetRows(sheets[0], excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet %q: %w", sheets[0], err)
	}
	if len(records) < 2 {
		return nil, ErrNoData
	}
	rows := intake.Rows(records[0], records[1:])
	if len(rows) == 0 {
		return nil, ErrNoData
	}
	return rows, nil
}

// WriteProjection writes the run as a workbook: an "All Cases" sheet with
// every loan separated by a blank row, then one sheet per loan.
func WriteProjection(w io.Writer, run *models.ProjectionRun) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), AllCasesSheet); err != nil {
		return err
	}
	if err := setWidths(f, AllCasesSheet, outputWidths); err != nil {
		return err
	}

	groups := groupByLoan(run.Records)
	row := 1
	if len(groups) == 0 {
		if err := writeRow(f, AllCasesSheet, row, headerCells()); err != nil {
			return err
		}
	}
	for i, g := range groups {
		if err := writeRow(f, AllCasesSheet, row, headerCells()); err != nil {
			return err
		}
		row++
		for _, rec := range g {
			if err := writeRow(f, AllCasesSheet, row, recordCells(rec)); err != nil {
				return err
			}
			row++
		}
		if i < len(groups)-1 {
			row++
		}
	}

	existing := []string{AllCasesSheet}
	for _, g := range groups {
		name := SafeSheetName(g[0].AgreementID, existing)
		existing = append(existing, name)
		if _, err := f.NewSheet(name); err != nil {
			return fmt.Errorf("failed to add sheet %q: %w", name, err)
		}
		if err := setWidths(f, name, outputWidths); err != nil {
			return err
		}
		if err := writeRow(f, name, 1, headerCells()); err != nil {
			return err
		}
		for j, rec := range g {
			if err := writeRow(f, name, j+2, recordCells(rec)); err != nil {
				return err
			}
		}
	}

	f.SetActiveSheet(0)
	if err := f.Write(w); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}
	return nil
}

// WriteTemplate writes the input template with its sample loans.
func WriteTemplate(w io.Writer) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), TemplateSheet); err != nil {
		return err
	}
	if err := setWidths(f, TemplateSheet, templateWidths); err != nil {
		return err
	}
	header := make([]interface{}, len(intake.TemplateHeader))
	for i, h := range intake.TemplateHeader {
		header[i] = h
	}
	if err := writeRow(f, TemplateSheet, 1, header); err != nil {
		return err
	}
	for i, rec := range intake.TemplateRows() {
		cells := make([]interface{}, len(rec))
		for j, v := range rec {
			cells[j] = v
			// Dates stay text so they read back day-first.
			if intake.TemplateHeader[j] == "Disbursement Date" {
				continue
			}
			if n, err := strconv.ParseFloat(v, 64); err == nil {
				cells[j] = n
			}
		}
		if err := writeRow(f, TemplateSheet, i+2, cells); err != nil {
			return err
		}
	}
	if err := f.Write(w); err != nil {
		return fmt.Errorf("failed to write template: %w", err)
	}
	return nil
}

// SafeSheetName turns name into a valid sheet name not already in existing.
// Characters Excel forbids become underscores and control characters are
// dropped; the result is at most 31 characters.
func SafeSheetName(name string, existing []string) string {
	var b strings.Builder
	for _, r := range name {
		switch {
		case strings.ContainsRune(`\/?*[]:'"`, r):
			b.WriteRune('_')
		case r < 0x20 || r == 0x7f:
		default:
			b.WriteRune(r)
		}
	}
	safe := truncate(strings.TrimSpace(b.String()), maxSheetName)
	if safe == "" {
		safe = "Sheet"
	}

	taken := make(map[string]bool, len(existing))
	for _, e := range existing {
		taken[e] = true
	}
	unique := safe
	for n := 1; taken[unique]; n++ {
		suffix := "_" + strconv.Itoa(n)
		unique = truncate(safe, maxSheetName-utf8.RuneCountInString(suffix)) + suffix
	}
	return unique
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}

// groupByLoan splits records into one group per loan of the run.
func groupByLoan(records []models.ProjectionRecord) [][]models.ProjectionRecord {
	var groups [][]models.ProjectionRecord
	for i, rec := range records {
		if i == 0 || records[i-1].LoanSeq != rec.LoanSeq || records[i-1].AgreementID != rec.AgreementID {
			groups = append(groups, nil)
		}
		groups[len(groups)-1] = append(groups[len(groups)-1], rec)
	}
	return groups
}

func headerCells() []interface{} {
	cells := make([]interface{}, len(OutputHeader))
	for i, h := range OutputHeader {
		cells[i] = h
	}
	return cells
}

func recordCells(r models.ProjectionRecord) []interface{} {
	var stepC interface{}
	if r.StepCEIRIncome.Valid {
		stepC = r.StepCEIRIncome.Decimal.InexactFloat64()
	}
	return []interface{}{
		r.AgreementID,
		string(r.ProductType),
		r.AmountFinanced.InexactFloat64(),
		r.TenureMonths,
		string(r.RepaymentFrequency),
		r.NumberOfInstallments,
		r.Disbursement,
		r.FirstEMI,
		r.LastEMI,
		r.AmortIRR.InexactFloat64(),
		r.AdvanceEMI.InexactFloat64(),
		r.UpfrontIncome.InexactFloat64(),
		r.UpfrontExpense.InexactFloat64(),
		r.Month,
		stepC,
		r.EIRIncome.InexactFloat64(),
	}
}

func writeRow(f *excelize.File, sheet string, row int, cells []interface{}) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	if err := f.SetSheetRow(sheet, cell, &cells); err != nil {
		return fmt.Errorf("failed to write row %d of %q: %w", row, sheet, err)
	}
	return nil
}

func setWidths(f *excelize.File, sheet string, widths []float64) error {
	for i, w := range widths {
		col, err := excelize.ColumnNumberToName(i + 1)
		if err != nil {
			return err
		}
		if err := f.SetColWidth(sheet, col, col, w); err != nil {
			return fmt.Errorf("failed to size column %s of %q: %w", col, sheet, err)
		}
	}
	return nil
}
