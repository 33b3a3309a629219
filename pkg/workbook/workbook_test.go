package workbook

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/mcclellann/fredEIR/pkg/eir"
	"github.com/mcclellann/fredEIR/pkg/intake"
	"github.com/mcclellann/fredEIR/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func TestSafeSheetName(t *testing.T) {
	tests := []struct {
		name     string
		in       string
		existing []string
		want     string
	}{
		{"plain", "AGR001", nil, "AGR001"},
		{"forbidden characters", `A/B\C?D*E[F]G:H'I"J`, nil, "A_B_C_D_E_F_G_H_I_J"},
		{"control characters", "AG\tR\x7f1", nil, "AGR1"},
		{"trimmed", "  AGR  ", nil, "AGR"},
		{"empty", "", nil, "Sheet"},
		{"only controls", "\x01\x02", nil, "Sheet"},
		{"truncated", strings.Repeat("x", 40), nil, strings.Repeat("x", 31)},
		{"duplicate", "AGR001", []string{"AGR001"}, "AGR001_1"},
		{"second duplicate", "AGR001", []string{"AGR001", "AGR001_1"}, "AGR001_2"},
		{"duplicate at limit", strings.Repeat("y", 31), []string{strings.Repeat("y", 31)}, strings.Repeat("y", 29) + "_1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SafeSheetName(tt.in, tt.existing)
			assert.Equal(t, tt.want, got)
			assert.LessOrEqual(t, len([]rune(got)), 31)
		})
	}
}

func projectRun(t *testing.T, loans ...models.LoanCase) *models.ProjectionRun {
	t.Helper()
	run := &models.ProjectionRun{ID: uuid.New(), CreatedAt: time.Now(), Total: len(loans)}
	for i, l := range loans {
		p, err := eir.Calculate(l)
		require.NoError(t, err)
		for _, rec := range p.Records() {
			rec.LoanSeq = i
			run.Records = append(run.Records, rec)
		}
		run.Succeeded++
	}
	return run
}

func templateLoans(t *testing.T) []models.LoanCase {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, WriteTemplate(&buf))

	rows, err := ReadRows(&buf)
	require.NoError(t, err)
	require.Len(t, rows, 3)

	var loans []models.LoanCase
	for _, e := range intake.Decode(rows, models.ProductOther) {
		require.NoError(t, e.Err)
		loans = append(loans, e.Loan)
	}
	return loans
}

func TestTemplate_RoundTrip(t *testing.T) {
	loans := templateLoans(t)
	assert.Equal(t, "AGR001", loans[0].AgreementID)
	assert.Equal(t, time.Date(2025, time.January, 15, 0, 0, 0, 0, time.UTC), loans[0].DisbursementDate)
	assert.Equal(t, models.FrequencyHalfyearly, loans[2].RepaymentFrequency)
	assert.Equal(t, 36, loans[2].TenureMonths)
}

func TestWriteProjection_Layout(t *testing.T) {
	loans := templateLoans(t)
	loans[1].AgreementID = "AGR/002"
	run := projectRun(t, loans...)

	var buf bytes.Buffer
	require.NoError(t, WriteProjection(&buf, run))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{AllCasesSheet, "AGR001", "AGR_002", "AGR003"}, f.GetSheetList())

	all, err := f.GetRows(AllCasesSheet)
	require.NoError(t, err)
	assert.Equal(t, OutputHeader, all[0])

	var headers, blanks, data int
	for _, r := range all {
		switch {
		case len(r) == 0:
			blanks++
		case r[0] == OutputHeader[0]:
			headers++
		default:
			data++
		}
	}
	assert.Equal(t, 3, headers)
	assert.Equal(t, 2, blanks)
	assert.Equal(t, len(run.Records), data)

	sheet, err := f.GetRows("AGR001")
	require.NoError(t, err)
	require.Len(t, sheet, 1+37)
	assert.Equal(t, "Jan-25", sheet[1][13])
	require.Len(t, sheet[1], 16)
	assert.Equal(t, "", sheet[1][14], "absent Step C income leaves the cell empty")
	assert.NotEmpty(t, sheet[2][14])
	assert.Equal(t, "15/01/2025", sheet[1][6])

	width, err := f.GetColWidth("AGR001", "E")
	require.NoError(t, err)
	assert.Equal(t, 20.0, width)
}

func TestWriteProjection_DuplicateAgreementNumbers(t *testing.T) {
	loans := templateLoans(t)[:2]
	loans[0].AgreementID = "DUP"
	loans[1].AgreementID = "DUP"
	run := projectRun(t, loans...)

	var buf bytes.Buffer
	require.NoError(t, WriteProjection(&buf, run))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{AllCasesSheet, "DUP", "DUP_1"}, f.GetSheetList())

	all, err := f.GetRows(AllCasesSheet)
	require.NoError(t, err)
	var headers int
	for _, r := range all {
		if len(r) > 0 && r[0] == OutputHeader[0] {
			headers++
		}
	}
	assert.Equal(t, 2, headers, "one header block per loan")

	perLoan := map[int]int{}
	for _, rec := range run.Records {
		perLoan[rec.LoanSeq]++
	}
	first, err := f.GetRows("DUP")
	require.NoError(t, err)
	assert.Len(t, first, 1+perLoan[0])
	assert.Equal(t, "Other Products", first[1][1])
	second, err := f.GetRows("DUP_1")
	require.NoError(t, err)
	assert.Len(t, second, 1+perLoan[1])
	assert.Equal(t, "Tractor", second[1][1])
}

func TestWriteProjection_EmptyRun(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteProjection(&buf, &models.ProjectionRun{ID: uuid.New()}))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()
	assert.Equal(t, []string{AllCasesSheet}, f.GetSheetList())
}

func TestReadRows_NoData(t *testing.T) {
	f := excelize.NewFile()
	require.NoError(t, f.SetSheetRow("Sheet1", "A1", &[]interface{}{"Agreement Number", "Tenure"}))
	var buf bytes.Buffer
	require.NoError(t, f.Write(&buf))

	_, err := ReadRows(&buf)
	assert.ErrorIs(t, err, ErrNoData)
}

func TestReadRows_NotAWorkbook(t *testing.T) {
	_, err := ReadRows(strings.NewReader("agreement,tenure\n"))
	assert.Error(t, err)
}
