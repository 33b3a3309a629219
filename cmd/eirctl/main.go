/*
eirctl projects EIR income for a spreadsheet of loans from the command line.

FLAGS:
  -in        input loans, .xlsx or .csv
  -out       output workbook (default EIR_Projection_<date>.xlsx)
  -product   product type for rows that leave it blank
  -workers   loans computed in parallel
  -db        SQLite database the run is stored in
  -template  write the input template to -out and exit

EXAMPLES:
  ./eirctl -template -out EIR_Input_Template.xlsx
  ./eirctl -in loans.xlsx -product Tractor
*/
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/mcclellann/fredEIR/pkg/config"
	"github.com/mcclellann/fredEIR/pkg/intake"
	"github.com/mcclellann/fredEIR/pkg/models"
	"github.com/mcclellann/fredEIR/pkg/projection"
	"github.com/mcclellann/fredEIR/pkg/store"
	"github.com/mcclellann/fredEIR/pkg/workbook"
	"github.com/sirupsen/logrus"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdout io.Writer) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	fs := flag.NewFlagSet("eirctl", flag.ContinueOnError)
	in := fs.String("in", "", "input loans (.xlsx or .csv)")
	out := fs.String("out", "", "output workbook path")
	product := fs.String("product", string(cfg.DefaultProductType), "product type for rows without one")
	workers := fs.Int("workers", cfg.Workers, "loans computed in parallel")
	dbPath := fs.String("db", cfg.DBPath, "SQLite database path")
	template := fs.Bool("template", false, "write the input template and exit")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if *template {
		path := *out
		if path == "" {
			path = "EIR_Input_Template.xlsx"
		}
		if err := writeFile(path, workbook.WriteTemplate); err != nil {
			return err
		}
		fmt.Fprintf(stdout, "Template written to %s\n", path)
		return nil
	}

	if *in == "" {
		return errors.New("-in is required")
	}
	defaultProduct, ok := models.ParseProductType(*product, cfg.DefaultProductType)
	if !ok {
		return fmt.Errorf("unknown product type %q", *product)
	}

	rows, err := readRows(*in)
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		return workbook.ErrNoData
	}

	log := logrus.New()
	log.SetOutput(os.Stderr)
	log.SetLevel(cfg.LogLevel)

	s, err := store.NewSQLiteStore(*dbPath)
	if err != nil {
		return err
	}
	defer s.Close()

	p := projection.NewProjector(s, log, nil, *workers)
	result, err := p.RunEntries(ctx, intake.Decode(rows, defaultProduct))
	if err != nil {
		return err
	}

	path := *out
	if path == "" {
		path = fmt.Sprintf("EIR_Projection_%s.xlsx", time.Now().Format(time.DateOnly))
	}
	if err := writeFile(path, func(w io.Writer) error { return workbook.WriteProjection(w, result) }); err != nil {
		return err
	}

	if result.Failed > 0 {
		fmt.Fprintf(stdout, "Processed %d/%d loans.\n\nErrors:\n%s\n", result.Succeeded, result.Total, strings.Join(result.Errors, "\n"))
	} else {
		fmt.Fprintf(stdout, "Successfully processed %d loan cases!\n", result.Total)
	}
	fmt.Fprintf(stdout, "Run %s written to %s\n", result.ID, path)
	return nil
}

func readRows(path string) ([]intake.Row, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	if strings.EqualFold(filepath.Ext(path), ".csv") {
		return intake.ReadCSV(f)
	}
	return workbook.ReadRows(f)
}

func writeFile(path string, write func(io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := write(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
