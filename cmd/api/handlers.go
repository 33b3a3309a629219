package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/mcclellann/fredEIR/pkg/eir"
	"github.com/mcclellann/fredEIR/pkg/intake"
	"github.com/mcclellann/fredEIR/pkg/models"
	"github.com/mcclellann/fredEIR/pkg/store"
	"github.com/mcclellann/fredEIR/pkg/workbook"
	"github.com/shopspring/decimal"
)

const (
	maxUploadBytes = 32 << 20
	xlsxMIME       = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

// loanRequest is one loan as posted to the API. Text fields go through the
// same parsing as spreadsheet cells.
type loanRequest struct {
	AgreementID        string          `json:"agreement_id"`
	AmountFinanced     decimal.Decimal `json:"amount_financed"`
	TenureMonths       int             `json:"tenure_months"`
	ProductType        string          `json:"product_type"`
	RepaymentFrequency string          `json:"repayment_frequency"`
	DisbursementDate   string          `json:"disbursement_date"`
	AmortIRR           decimal.Decimal `json:"amort_irr"`
	UpfrontIncome      decimal.Decimal `json:"upfront_income"`
	UpfrontExpense     decimal.Decimal `json:"upfront_expense"`
	AdvanceEMI         decimal.Decimal `json:"advance_emi"`
}

func (lr loanRequest) entry(index int, defaultProduct models.ProductType) intake.Entry {
	loan := models.LoanCase{
		AgreementID:    lr.AgreementID,
		AmountFinanced: lr.AmountFinanced,
		TenureMonths:   lr.TenureMonths,
		AmortIRR:       lr.AmortIRR,
		UpfrontIncome:  lr.UpfrontIncome,
		UpfrontExpense: lr.UpfrontExpense,
		AdvanceEMI:     lr.AdvanceEMI,
	}
	if loan.AgreementID == "" {
		loan.AgreementID = fmt.Sprintf("LOAN_%d", index+1)
	}
	reject := func(field, reason string) intake.Entry {
		return intake.Entry{Loan: loan, Err: &eir.InputError{AgreementID: loan.AgreementID, Field: field, Reason: reason}}
	}

	product, ok := models.ParseProductType(lr.ProductType, defaultProduct)
	if !ok {
		return reject("product type", fmt.Sprintf("unknown product %q", lr.ProductType))
	}
	loan.ProductType = product

	freq, ok := models.ParseFrequency(lr.RepaymentFrequency)
	if !ok {
		return reject("repayment frequency", fmt.Sprintf("unknown frequency %q", lr.RepaymentFrequency))
	}
	loan.RepaymentFrequency = freq

	disbursed, err := intake.ParseDate(lr.DisbursementDate)
	if err != nil {
		return intake.Entry{Loan: loan, Err: &eir.InputError{AgreementID: loan.AgreementID, Reason: "invalid disbursement date"}}
	}
	loan.DisbursementDate = disbursed
	return intake.Entry{Loan: loan}
}

func (s *Server) createProjectionHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ProductType string        `json:"product_type"`
		Loans       []loanRequest `json:"loans"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if len(req.Loans) == 0 {
		http.Error(w, "No loans supplied", http.StatusBadRequest)
		return
	}
	defaultProduct, ok := models.ParseProductType(req.ProductType, s.defaultProduct)
	if !ok {
		http.Error(w, fmt.Sprintf("Unknown product type %q", req.ProductType), http.StatusBadRequest)
		return
	}

	entries := make([]intake.Entry, len(req.Loans))
	for i, lr := range req.Loans {
		entries[i] = lr.entry(i, defaultProduct)
	}
	s.runAndRespond(w, r, entries, false)
}

func (s *Server) uploadProjectionHandler(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		http.Error(w, fmt.Sprintf("Invalid upload: %v", err), http.StatusBadRequest)
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		http.Error(w, "Missing file field", http.StatusBadRequest)
		return
	}
	defer file.Close()

	productField := r.FormValue("product_type")
	defaultProduct, ok := models.ParseProductType(productField, s.defaultProduct)
	if !ok {
		http.Error(w, fmt.Sprintf("Unknown product type %q", productField), http.StatusBadRequest)
		return
	}

	rows, err := readUpload(file, header.Filename)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if len(rows) == 0 {
		http.Error(w, workbook.ErrNoData.Error(), http.StatusBadRequest)
		return
	}

	s.runAndRespond(w, r, intake.Decode(rows, defaultProduct), r.URL.Query().Get("format") == "xlsx")
}

func readUpload(file io.Reader, filename string) ([]intake.Row, error) {
	if strings.EqualFold(filepath.Ext(filename), ".csv") {
		return intake.ReadCSV(file)
	}
	return workbook.ReadRows(file)
}

func (s *Server) runAndRespond(w http.ResponseWriter, r *http.Request, entries []intake.Entry, asWorkbook bool) {
	run, err := s.projector.RunEntries(r.Context(), entries)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			s.log.WithError(err).Warn("Projection request abandoned")
			http.Error(w, "Request cancelled", http.StatusServiceUnavailable)
			return
		}
		s.log.Errorf("Error running projection: %v", err)
		http.Error(w, fmt.Sprintf("Failed to run projection: %v", err), http.StatusInternalServerError)
		return
	}

	if asWorkbook {
		s.writeWorkbook(w, run)
		return
	}
	writeJSON(w, http.StatusCreated, run)
}

func (s *Server) listProjectionsHandler(w http.ResponseWriter, r *http.Request) {
	runs, err := s.projector.ListRuns()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if runs == nil {
		runs = []*models.ProjectionRun{}
	}
	writeJSON(w, http.StatusOK, runs)
}

func (s *Server) getProjectionHandler(w http.ResponseWriter, r *http.Request) {
	run, ok := s.lookupRun(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, run)
}

func (s *Server) projectionWorkbookHandler(w http.ResponseWriter, r *http.Request) {
	run, ok := s.lookupRun(w, r)
	if !ok {
		return
	}
	s.writeWorkbook(w, run)
}

func (s *Server) deleteProjectionHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := runID(w, r)
	if !ok {
		return
	}
	if err := s.projector.DeleteRun(id); err != nil {
		if errors.Is(err, store.ErrRunNotFound) {
			http.Error(w, "Projection not found", http.StatusNotFound)
		} else {
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) templateHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", xlsxMIME)
	w.Header().Set("Content-Disposition", `attachment; filename="EIR_Input_Template.xlsx"`)
	if err := workbook.WriteTemplate(w); err != nil {
		s.log.Errorf("Error writing template: %v", err)
	}
}

func (s *Server) lookupRun(w http.ResponseWriter, r *http.Request) (*models.ProjectionRun, bool) {
	id, ok := runID(w, r)
	if !ok {
		return nil, false
	}
	run, err := s.projector.GetRun(id)
	if err != nil {
		if errors.Is(err, store.ErrRunNotFound) {
			http.Error(w, "Projection not found", http.StatusNotFound)
		} else {
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
		return nil, false
	}
	return run, true
}

func (s *Server) writeWorkbook(w http.ResponseWriter, run *models.ProjectionRun) {
	name := fmt.Sprintf("EIR_Projection_%s.xlsx", run.CreatedAt.Format(time.DateOnly))
	w.Header().Set("Content-Type", xlsxMIME)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	w.Header().Set("X-Projection-Run", run.ID.String())
	if err := workbook.WriteProjection(w, run); err != nil {
		s.log.Errorf("Error writing workbook for run %s: %v", run.ID, err)
	}
}

func runID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		http.Error(w, "Invalid projection ID", http.StatusBadRequest)
		return uuid.Nil, false
	}
	return id, true
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
