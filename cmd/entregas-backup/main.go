// Command entregas-backup exports and restores the ledger from the command line.
//
//	entregas-backup export [-file backup.json]
//	entregas-backup import -file backup.json
//	entregas-backup csv|xlsx [-file entries.csv] [-from 2025-01-01] [-to 2025-01-31] [-company id]
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"entregas/internal/cli"
	"entregas/internal/core"
	"entregas/internal/log"
	"entregas/internal/report"
	"entregas/internal/services"
)

func usage() {
	fmt.Fprintln(os.Stderr, "usage: entregas-backup export|import|csv|xlsx [flags]")
	os.Exit(2)
}

func main() {
	if len(os.Args) < 2 {
		usage()
	}
	cmd := os.Args[1]

	fs := flag.NewFlagSet(cmd, flag.ExitOnError)
	file := fs.String("file", "", "file to read or write; stdin/stdout when empty")
	from := fs.String("from", "", "first day, YYYY-MM-DD (csv, xlsx)")
	to := fs.String("to", "", "last day, YYYY-MM-DD (csv, xlsx)")
	company := fs.String("company", "", "company id (csv, xlsx)")
	_ = fs.Parse(os.Args[2:])

	cli.LoadEnvFile()
	cfg := cli.LoadAndValidateConfig()
	// logs go to stderr so exports can be piped
	logger := log.New(log.Config{
		Level:     log.ParseLevel(cfg.LogLevel),
		Format:    cfg.LogFormat,
		Component: log.ComponentBackup,
		Output:    os.Stderr,
	})
	log.SetDefault(logger)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	be := cli.InitBackend(ctx, logger, cfg, nil)
	defer func() {
		if err := be.Cleanup(); err != nil {
			logger.Error("Backend cleanup error", log.FieldError, err.Error())
		}
	}()

	opts := []services.Option{}
	if be.Notifier != nil {
		opts = append(opts, services.WithNotifier(be.Notifier))
	}
	svc := services.NewLedgerService(be.Store,
		core.DefaultVehicleSettings(cfg.DefaultAverageEfficiency, cfg.DefaultFuelPrice),
		logger, opts...)

	var err error
	switch cmd {
	case "export":
		err = withOutput(*file, func(w io.Writer) error { return svc.WriteExport(ctx, w) })
	case "import":
		err = runImport(ctx, svc, logger, *file)
	case "csv", "xlsx":
		var f report.EntryFilter
		if f, err = entryFilter(*from, *to, *company); err != nil {
			break
		}
		err = withOutput(*file, func(w io.Writer) error {
			if cmd == "csv" {
				return svc.ExportEntriesCSV(ctx, w, f)
			}
			return svc.ExportEntriesXLSX(ctx, w, f)
		})
	default:
		usage()
	}

	if err != nil {
		logger.Error("Backup command failed", log.FieldOperation, cmd, log.FieldError, err.Error())
		_ = be.Cleanup()
		os.Exit(1)
	}
}

func runImport(ctx context.Context, svc *services.LedgerService, logger *log.Logger, path string) error {
	in := io.Reader(os.Stdin)
	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			return fmt.Errorf("open import file: %w", err)
		}
		defer f.Close()
		in = f
	}

	res, err := svc.ImportAll(ctx, in)
	if err != nil {
		return err
	}
	for _, w := range res.Warnings {
		logger.Warn("Record skipped", log.FieldCollection, string(w.Collection), log.FieldRecordID, w.ID, "reason", w.Reason)
	}
	for c, n := range res.Imported {
		logger.Info("Imported", log.FieldCollection, string(c), log.FieldCount, n)
	}
	return nil
}

// withOutput writes to path, or stdout when path is empty. A failed write
// removes the partial file.
func withOutput(path string, write func(io.Writer) error) error {
	if path == "" {
		return write(os.Stdout)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create output file: %w", err)
	}
	if err := write(f); err != nil {
		f.Close()
		os.Remove(path)
		return err
	}
	return f.Close()
}

func entryFilter(from, to, company string) (report.EntryFilter, error) {
	f := report.EntryFilter{CompanyID: company}
	var err error
	if from != "" {
		if f.From, err = core.ParseDate(from); err != nil {
			return f, fmt.Errorf("-from: %w", err)
		}
	}
	if to != "" {
		if f.To, err = core.ParseDate(to); err != nil {
			return f, fmt.Errorf("-to: %w", err)
		}
	}
	return f, nil
}
