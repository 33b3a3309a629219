package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mcclellann/fredEIR/pkg/models"

	_ "github.com/mattn/go-sqlite3"
)

// SQLiteStore manages the database connection and operations for SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLiteStore and initializes the database.
func NewSQLiteStore(dataSourceName string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dataSourceName)
	if err != nil {
		return nil, fmt.Errorf("could not open database: %w", err)
	}

	// Manually enable foreign keys and WAL mode
	_, err = db.Exec("PRAGMA foreign_keys = ON;")
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}
	_, err = db.Exec("PRAGMA journal_mode = WAL;")
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("could not connect to database: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("could not initialize schema: %w", err)
	}
	return s, nil
}

// initSchema creates the database tables if they don't already exist.
// Decimal fields are TEXT so no precision is lost; a NULL step_c_eir_income
// marks a month without an installment.
func (s *SQLiteStore) initSchema() error {
	const schema = `
	CREATE TABLE IF NOT EXISTS projection_runs (
		id TEXT PRIMARY KEY,
		created_at DATETIME NOT NULL,
		total INTEGER NOT NULL,
		succeeded INTEGER NOT NULL,
		failed INTEGER NOT NULL,
		errors TEXT NOT NULL DEFAULT '[]'
	);
	CREATE TABLE IF NOT EXISTS projection_records (
		run_id TEXT NOT NULL,
		seq INTEGER NOT NULL,
		loan_seq INTEGER NOT NULL,
		agreement_id TEXT NOT NULL,
		product_type TEXT NOT NULL,
		amount_financed TEXT NOT NULL,
		tenure_months INTEGER NOT NULL,
		repayment_frequency TEXT NOT NULL,
		number_of_installments INTEGER NOT NULL,
		disbursement TEXT NOT NULL,
		first_emi TEXT NOT NULL,
		last_emi TEXT NOT NULL,
		amort_irr TEXT NOT NULL,
		advance_emi TEXT NOT NULL,
		upfront_income TEXT NOT NULL,
		upfront_expense TEXT NOT NULL,
		month TEXT NOT NULL,
		step_c_eir_income TEXT,
		eir_income TEXT NOT NULL,
		PRIMARY KEY (run_id, seq),
		FOREIGN KEY(run_id) REFERENCES projection_runs(id) ON DELETE CASCADE
	);
	CREATE INDEX IF NOT EXISTS idx_projection_records_agreement ON projection_records(run_id, agreement_id);
	`
	_, err := s.db.Exec(schema)
	return err
}

// CreateRun inserts a run and all of its records in one transaction.
func (s *SQLiteStore) CreateRun(run *models.ProjectionRun) error {
	errs, err := json.Marshal(run.Errors)
	if err != nil {
		return fmt.Errorf("failed to encode run errors: %w", err)
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(
		`INSERT INTO projection_runs (id, created_at, total, succeeded, failed, errors) VALUES (?, ?, ?, ?, ?, ?)`,
		run.ID.String(), run.CreatedAt, run.Total, run.Succeeded, run.Failed, string(errs),
	)
	if err != nil {
		return fmt.Errorf("failed to create run: %w", err)
	}

	stmt, err := tx.Prepare(
		`INSERT INTO projection_records (run_id, seq, loan_seq, agreement_id, product_type, amount_financed, tenure_months, repayment_frequency, number_of_installments, disbursement, first_emi, last_emi, amort_irr, advance_emi, upfront_income, upfront_expense, month, step_c_eir_income, eir_income)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
	)
	if err != nil {
		return fmt.Errorf("failed to prepare record insert: %w", err)
	}
	defer stmt.Close()

	for i, r := range run.Records {
		_, err = stmt.Exec(
			run.ID.String(), i, r.LoanSeq, r.AgreementID, r.ProductType, r.AmountFinanced, r.TenureMonths, r.RepaymentFrequency, r.NumberOfInstallments, r.Disbursement, r.FirstEMI, r.LastEMI, r.AmortIRR, r.AdvanceEMI, r.UpfrontIncome, r.UpfrontExpense, r.Month, r.StepCEIRIncome, r.EIRIncome,
		)
		if err != nil {
			return fmt.Errorf("failed to insert record %d of run %s: %w", i, run.ID, err)
		}
	}

	return tx.Commit()
}

// GetRun retrieves a run with its records in output order.
func (s *SQLiteStore) GetRun(id uuid.UUID) (*models.ProjectionRun, error) {
	row := s.db.QueryRow(`SELECT id, created_at, total, succeeded, failed, errors FROM projection_runs WHERE id = ?`, id.String())
	run, err := scanRun(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRunNotFound
		}
		return nil, fmt.Errorf("failed to get run: %w", err)
	}

	rows, err := s.db.Query(
		`SELECT loan_seq, agreement_id, product_type, amount_financed, tenure_months, repayment_frequency, number_of_installments, disbursement, first_emi, last_emi, amort_irr, advance_emi, upfront_income, upfront_expense, month, step_c_eir_income, eir_income
		FROM projection_records WHERE run_id = ? ORDER BY seq ASC`, id.String())
	if err != nil {
		return nil, fmt.Errorf("failed to get records for run %s: %w", id, err)
	}
	defer rows.Close()

	for rows.Next() {
		var r models.ProjectionRecord
		if err := rows.Scan(&r.LoanSeq, &r.AgreementID, &r.ProductType, &r.AmountFinanced, &r.TenureMonths, &r.RepaymentFrequency, &r.NumberOfInstallments, &r.Disbursement, &r.FirstEMI, &r.LastEMI, &r.AmortIRR, &r.AdvanceEMI, &r.UpfrontIncome, &r.UpfrontExpense, &r.Month, &r.StepCEIRIncome, &r.EIRIncome); err != nil {
			return nil, fmt.Errorf("failed to scan record row: %w", err)
		}
		run.Records = append(run.Records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during rows iteration for run records: %w", err)
	}
	return run, nil
}

// ListRuns retrieves all runs, newest first, without their records.
func (s *SQLiteStore) ListRuns() ([]*models.ProjectionRun, error) {
	rows, err := s.db.Query(`SELECT id, created_at, total, succeeded, failed, errors FROM projection_runs ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var runs []*models.ProjectionRun
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run row: %w", err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during rows iteration: %w", err)
	}
	return runs, nil
}

// DeleteRun removes a run; its records go with it through the cascade.
func (s *SQLiteStore) DeleteRun(id uuid.UUID) error {
	result, err := s.db.Exec(`DELETE FROM projection_runs WHERE id = ?`, id.String())
	if err != nil {
		return fmt.Errorf("failed to delete run: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrRunNotFound
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (*models.ProjectionRun, error) {
	var (
		run     models.ProjectionRun
		idStr   string
		created time.Time
		errs    string
	)
	if err := row.Scan(&idStr, &created, &run.Total, &run.Succeeded, &run.Failed, &errs); err != nil {
		return nil, err
	}
	id, err := uuid.Parse(idStr)
	if err != nil {
		return nil, fmt.Errorf("corrupt run id %q: %w", idStr, err)
	}
	run.ID = id
	run.CreatedAt = created
	if err := json.Unmarshal([]byte(errs), &run.Errors); err != nil {
		return nil, fmt.Errorf("corrupt errors for run %s: %w", idStr, err)
	}
	return &run, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
