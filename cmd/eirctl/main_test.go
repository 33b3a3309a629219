package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/mcclellann/fredEIR/pkg/workbook"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func TestRun_TemplateThenProject(t *testing.T) {
	dir := t.TempDir()
	tmpl := filepath.Join(dir, "template.xlsx")
	out := filepath.Join(dir, "out.xlsx")
	db := filepath.Join(dir, "eir.db")

	var stdout bytes.Buffer
	require.NoError(t, run(context.Background(), []string{"-template", "-out", tmpl}, &stdout))
	assert.Contains(t, stdout.String(), "Template written to")

	stdout.Reset()
	require.NoError(t, run(context.Background(), []string{"-in", tmpl, "-out", out, "-db", db, "-workers", "2"}, &stdout))
	assert.Contains(t, stdout.String(), "Successfully processed 3 loan cases!")

	f, err := excelize.OpenFile(out)
	require.NoError(t, err)
	defer f.Close()
	assert.Equal(t, []string{workbook.AllCasesSheet, "AGR001", "AGR002", "AGR003"}, f.GetSheetList())
}

func TestRun_ReportsFailedLoans(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "loans.csv")
	csv := "Agreement Number,Amount Financed,Tenure,Disbursement Date,Amort IRR\n" +
		"OK1,100000,36,15/01/2025,12.5\n" +
		"BAD,100000,0,15/01/2025,12.5\n"
	require.NoError(t, os.WriteFile(in, []byte(csv), 0o600))

	var stdout bytes.Buffer
	err := run(context.Background(), []string{"-in", in, "-out", filepath.Join(dir, "out.xlsx"), "-db", filepath.Join(dir, "eir.db")}, &stdout)
	require.NoError(t, err)
	assert.Contains(t, stdout.String(), "Processed 1/2 loans.")
	assert.Contains(t, stdout.String(), "BAD: invalid tenure for agreement BAD: must be positive")
}

func TestRun_Errors(t *testing.T) {
	dir := t.TempDir()
	assert.EqualError(t, run(context.Background(), nil, &bytes.Buffer{}), "-in is required")
	assert.Error(t, run(context.Background(), []string{"-in", filepath.Join(dir, "missing.xlsx")}, &bytes.Buffer{}))
	assert.Error(t, run(context.Background(), []string{"-in", "x.csv", "-product", "Bike"}, &bytes.Buffer{}))
}
