package projection

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/mcclellann/fredEIR/pkg/intake"
	"github.com/mcclellann/fredEIR/pkg/models"
	"github.com/mcclellann/fredEIR/pkg/store"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// MockStore is a simple in-memory implementation of the Storage interface for testing.
type MockStore struct {
	mu        sync.Mutex
	runs      map[uuid.UUID]*models.ProjectionRun
	createErr error
}

func NewMockStore() *MockStore {
	return &MockStore{runs: make(map[uuid.UUID]*models.ProjectionRun)}
}

func (m *MockStore) CreateRun(run *models.ProjectionRun) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return m.createErr
	}
	m.runs[run.ID] = run
	return nil
}

func (m *MockStore) GetRun(id uuid.UUID) (*models.ProjectionRun, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	run, ok := m.runs[id]
	if !ok {
		return nil, store.ErrRunNotFound
	}
	return run, nil
}

func (m *MockStore) ListRuns() ([]*models.ProjectionRun, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	runs := []*models.ProjectionRun{}
	for _, r := range m.runs {
		runs = append(runs, r)
	}
	return runs, nil
}

func (m *MockStore) DeleteRun(id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.runs[id]; !ok {
		return store.ErrRunNotFound
	}
	delete(m.runs, id)
	return nil
}

func (m *MockStore) Close() error { return nil }

func loan(id string) models.LoanCase {
	return models.LoanCase{
		AgreementID:        id,
		AmountFinanced:     decimal.NewFromInt(100000),
		TenureMonths:       36,
		ProductType:        models.ProductOther,
		RepaymentFrequency: models.FrequencyMonthly,
		DisbursementDate:   time.Date(2025, time.January, 15, 0, 0, 0, 0, time.UTC),
		AmortIRR:           decimal.NewFromFloat(12.5),
		UpfrontIncome:      decimal.NewFromInt(2500),
		UpfrontExpense:     decimal.NewFromInt(500),
	}
}

func newTestProjector(s store.Storage, workers int) (*Projector, *Metrics, *logtest.Hook) {
	logger, hook := logtest.NewNullLogger()
	m := NewMetrics(prometheus.NewRegistry())
	return NewProjector(s, logger, m, workers), m, hook
}

func TestRun_IsolatesFailures(t *testing.T) {
	s := NewMockStore()
	p, m, hook := newTestProjector(s, 2)

	bad := loan("BAD")
	bad.TenureMonths = 0
	tractor := loan("AGR002")
	tractor.ProductType = models.ProductTractor
	tractor.RepaymentFrequency = models.FrequencyQuarterly

	run, err := p.Run(context.Background(), []models.LoanCase{loan("AGR001"), bad, tractor})
	require.NoError(t, err)

	assert.Equal(t, 3, run.Total)
	assert.Equal(t, 2, run.Succeeded)
	assert.Equal(t, 1, run.Failed)
	require.Len(t, run.Errors, 1)
	assert.Equal(t, "BAD: invalid tenure for agreement BAD: must be positive", run.Errors[0])

	require.NotEmpty(t, run.Records)
	assert.Equal(t, "AGR001", run.Records[0].AgreementID)
	assert.Equal(t, "AGR002", run.Records[len(run.Records)-1].AgreementID)
	for _, r := range run.Records {
		assert.NotEqual(t, "BAD", r.AgreementID)
		if r.AgreementID == "AGR001" {
			assert.Equal(t, 0, r.LoanSeq)
		} else {
			assert.Equal(t, 2, r.LoanSeq, "loan sequence follows input position")
		}
	}

	stored, err := s.GetRun(run.ID)
	require.NoError(t, err)
	assert.Same(t, run, stored)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.LoansProcessed.WithLabelValues(outcomeOK)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.LoansProcessed.WithLabelValues(outcomeFailed)))

	var warned bool
	for _, e := range hook.AllEntries() {
		if e.Level == logrus.WarnLevel && e.Data["agreement"] == "BAD" {
			warned = true
			assert.Equal(t, run.ID, e.Data["run_id"])
		}
	}
	assert.True(t, warned, "failure is logged with the agreement")
}

func TestRun_PreservesInputOrder(t *testing.T) {
	p, _, _ := newTestProjector(NewMockStore(), 3)

	loans := make([]models.LoanCase, 20)
	for i := range loans {
		loans[i] = loan(fmt.Sprintf("L%02d", i))
		loans[i].TenureMonths = 6 + i
	}
	run, err := p.Run(context.Background(), loans)
	require.NoError(t, err)
	assert.Equal(t, 20, run.Succeeded)

	var order []string
	for _, r := range run.Records {
		if len(order) == 0 || order[len(order)-1] != r.AgreementID {
			order = append(order, r.AgreementID)
		}
	}
	require.Len(t, order, 20)
	for i, id := range order {
		assert.Equal(t, fmt.Sprintf("L%02d", i), id)
	}
}

func TestRunEntries_IntakeRejections(t *testing.T) {
	p, m, _ := newTestProjector(NewMockStore(), 1)

	entries := []intake.Entry{
		{Loan: models.LoanCase{AgreementID: "LOAN_1"}, Err: errors.New("invalid disbursement date for agreement LOAN_1")},
		{Loan: loan("AGR001")},
	}
	run, err := p.RunEntries(context.Background(), entries)
	require.NoError(t, err)
	assert.Equal(t, 1, run.Failed)
	assert.Equal(t, []string{"LOAN_1: invalid disbursement date for agreement LOAN_1"}, run.Errors)
	assert.Len(t, run.Records, 37)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.LoansProcessed.WithLabelValues(outcomeFailed)))
}

func TestRun_CancelledIsNotStored(t *testing.T) {
	s := NewMockStore()
	p, _, _ := newTestProjector(s, 1)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	run, err := p.Run(ctx, []models.LoanCase{loan("A"), loan("B")})
	assert.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, run)
	assert.Equal(t, 2, run.Total)
	assert.Zero(t, run.Succeeded+run.Failed)

	runs, _ := s.ListRuns()
	assert.Empty(t, runs)
}

func TestRun_StoreFailure(t *testing.T) {
	s := NewMockStore()
	s.createErr = errors.New("disk full")
	p, _, _ := newTestProjector(s, 1)

	_, err := p.Run(context.Background(), []models.LoanCase{loan("A")})
	assert.ErrorContains(t, err, "failed to store projection run: disk full")
}

func TestProject_UnconvergedIsCounted(t *testing.T) {
	p, m, hook := newTestProjector(NewMockStore(), 1)

	l := loan("LOWRATE")
	l.AmortIRR = decimal.NewFromInt(5)
	l.UpfrontIncome = decimal.Zero
	l.UpfrontExpense = decimal.Zero

	proj, err := p.Project(l)
	require.NoError(t, err)
	assert.False(t, proj.Solution.Converged)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SolverUnconverged))
	require.NotNil(t, hook.LastEntry())
	assert.Equal(t, logrus.WarnLevel, hook.LastEntry().Level)

	var metric dto.Metric
	require.NoError(t, m.SolverIterations.Write(&metric))
	assert.Equal(t, uint64(1), metric.GetHistogram().GetSampleCount())
	assert.Equal(t, 100.0, metric.GetHistogram().GetSampleSum())
}

func TestRunLookups_DelegateToStorage(t *testing.T) {
	s := NewMockStore()
	p, _, _ := newTestProjector(s, 2)

	run, err := p.Run(context.Background(), []models.LoanCase{loan("A")})
	require.NoError(t, err)

	got, err := p.GetRun(run.ID)
	require.NoError(t, err)
	assert.Equal(t, run.ID, got.ID)

	runs, err := p.ListRuns()
	require.NoError(t, err)
	assert.Len(t, runs, 1)

	require.NoError(t, p.DeleteRun(run.ID))
	_, err = p.GetRun(run.ID)
	assert.ErrorIs(t, err, store.ErrRunNotFound)
	assert.ErrorIs(t, p.DeleteRun(run.ID), store.ErrRunNotFound)
}
