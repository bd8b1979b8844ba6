// kajovoexport writes processed documents to an XLSX workbook.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/peterbourgon/ff/v4"
	"github.com/peterbourgon/ff/v4/ffhelp"

	"github.com/karelmartinek-a11y/kajovospend/internal/common"
	"github.com/karelmartinek-a11y/kajovospend/internal/export"
	"github.com/karelmartinek-a11y/kajovospend/internal/repository"
)

func main() {
	fs := ff.NewFlagSet("kajovoexport")
	var (
		configPath = fs.StringLong("config", "", "path to YAML config")
		dbPath     = fs.StringLong("db", "", "SQLite database path (overrides config)")
		outPath    = fs.StringLong("out", "documents.xlsx", "output XLSX path")
		fromStr    = fs.StringLong("from", "", "start of issue-date window (YYYY-MM-DD)")
		toStr      = fs.StringLong("to", "", "end of issue-date window (YYYY-MM-DD)")
	)
	if err := ff.Parse(fs, os.Args[1:], ff.WithEnvVarPrefix("KAJOVOSPEND")); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", ffhelp.Flags(fs))
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	cfg, err := common.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	if *dbPath != "" {
		cfg.Database.Path = *dbPath
	}
	logger := common.NewLogger(cfg.Log.Level, cfg.Log.Format)

	var from, to *time.Time
	if *fromStr != "" {
		d, err := time.Parse("2006-01-02", *fromStr)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: invalid --from: %v\n", err)
			os.Exit(1)
		}
		from = &d
	}
	if *toStr != "" {
		d, err := time.Parse("2006-01-02", *toStr)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: invalid --to: %v\n", err)
			os.Exit(1)
		}
		to = &d
	}

	ctx := context.Background()
	db, err := repository.Open(ctx, cfg.Database.Path)
	if err != nil {
		logger.Error("failed to open database", "path", cfg.Database.Path, "error", err)
		os.Exit(1)
	}
	defer db.Close()

	svc := export.NewService(repository.NewDocumentRepository(db, logger), logger)
	data, err := svc.ExportDocumentsXLSX(ctx, from, to)
	if err != nil {
		logger.Error("export failed", "error", err)
		os.Exit(1)
	}

	if err := os.WriteFile(*outPath, data, 0o644); err != nil {
		logger.Error("writing workbook failed", "path", *outPath, "error", err)
		os.Exit(1)
	}
	logger.Info("workbook written", "path", *outPath, "bytes", len(data))
}
