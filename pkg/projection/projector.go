package projection

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mcclellann/fredEIR/pkg/eir"
	"github.com/mcclellann/fredEIR/pkg/intake"
	"github.com/mcclellann/fredEIR/pkg/models"
	"github.com/mcclellann/fredEIR/pkg/store"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

const defaultWorkers = 4

// Projector runs batches of loans through the EIR pipeline and keeps the results.
type Projector struct {
	storage store.Storage // Use the Storage interface
	log     *logrus.Logger
	metrics *Metrics
	workers int
	now     func() time.Time
}

// NewProjector creates a new Projector with a given Storage implementation.
// A nil logger uses the logrus standard logger and nil metrics are left unregistered.
func NewProjector(s store.Storage, log *logrus.Logger, m *Metrics, workers int) *Projector {
	if log == nil {
		log = logrus.StandardLogger()
	}
	if m == nil {
		m = NewMetrics(nil)
	}
	if workers <= 0 {
		workers = defaultWorkers
	}
	return &Projector{
		storage: s,
		log:     log,
		metrics: m,
		workers: workers,
		now:     time.Now,
	}
}

// outcome is the result of one loan within a run.
type outcome struct {
	done    bool
	records []models.ProjectionRecord
	err     error
}

// Run projects the loans and stores the run.
func (p *Projector) Run(ctx context.Context, loans []models.LoanCase) (*models.ProjectionRun, error) {
	entries := make([]intake.Entry, len(loans))
	for i, l := range loans {
		entries[i] = intake.Entry{Loan: l}
	}
	return p.RunEntries(ctx, entries)
}

// RunEntries projects decoded input rows. Rows rejected during decoding count
// as failed loans. A failing loan never stops the batch: it is left out of the
// records and its message is added to the run errors, both in input order.
//
// If ctx is cancelled no further loans are started; the loans finished so far
// are returned together with the context error and nothing is stored.
func (p *Projector) RunEntries(ctx context.Context, entries []intake.Entry) (*models.ProjectionRun, error) {
	run := &models.ProjectionRun{
		ID:        uuid.New(),
		CreatedAt: p.now().UTC(),
		Total:     len(entries),
		Errors:    []string{},
	}
	logger := p.log.WithField("run_id", run.ID)

	results := make([]outcome, len(entries))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.workers)
	for i, e := range entries {
		if gctx.Err() != nil {
			break
		}
		i, e := i, e
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			results[i] = p.project(logger, e)
			return nil
		})
	}
	waitErr := g.Wait()

	for i, res := range results {
		if !res.done {
			continue
		}
		if res.err != nil {
			run.Failed++
			run.Errors = append(run.Errors, fmt.Sprintf("%s: %v", entries[i].Loan.AgreementID, res.err))
			continue
		}
		for _, rec := range res.records {
			rec.LoanSeq = i
			run.Records = append(run.Records, rec)
		}
		run.Succeeded++
	}

	if err := ctx.Err(); err != nil {
		logger.WithError(err).Warnf("projection run cancelled after %d/%d loans", run.Succeeded+run.Failed, run.Total)
		return run, err
	}
	if waitErr != nil {
		return run, waitErr
	}

	if err := p.storage.CreateRun(run); err != nil {
		return nil, fmt.Errorf("failed to store projection run: %w", err)
	}
	logger.WithFields(logrus.Fields{
		"total":     run.Total,
		"succeeded": run.Succeeded,
		"failed":    run.Failed,
	}).Info("projection run complete")
	return run, nil
}

// project computes one loan, logging and counting the outcome.
func (p *Projector) project(logger *logrus.Entry, e intake.Entry) outcome {
	logger = logger.WithField("agreement", e.Loan.AgreementID)
	if e.Err != nil {
		p.metrics.LoansProcessed.WithLabelValues(outcomeFailed).Inc()
		logger.WithError(e.Err).Warn("loan rejected at intake")
		return outcome{done: true, err: e.Err}
	}

	proj, err := p.Project(e.Loan)
	if err != nil {
		p.metrics.LoansProcessed.WithLabelValues(outcomeFailed).Inc()
		logger.WithError(err).Warn("loan projection failed")
		return outcome{done: true, err: err}
	}
	p.metrics.LoansProcessed.WithLabelValues(outcomeOK).Inc()
	return outcome{done: true, records: proj.Records()}
}

// Project computes a single loan without storing anything.
func (p *Projector) Project(loan models.LoanCase) (*eir.Projection, error) {
	proj, err := eir.Calculate(loan)
	if err != nil {
		return nil, err
	}

	sol := proj.Solution
	p.metrics.SolverIterations.Observe(float64(sol.Iterations))
	if !sol.Converged {
		p.metrics.SolverUnconverged.Inc()
		p.log.WithFields(logrus.Fields{
			"agreement": loan.AgreementID,
			"rate":      sol.Rate,
			"residual":  sol.Residual,
		}).Warn("effective rate did not converge; using best estimate")
	}
	return proj, nil
}

// GetRun retrieves a stored run with its records.
func (p *Projector) GetRun(id uuid.UUID) (*models.ProjectionRun, error) {
	return p.storage.GetRun(id)
}

// ListRuns retrieves summaries of all stored runs.
func (p *Projector) ListRuns() ([]*models.ProjectionRun, error) {
	return p.storage.ListRuns()
}

// DeleteRun deletes a stored run.
func (p *Projector) DeleteRun(id uuid.UUID) error {
	return p.storage.DeleteRun(id)
}
