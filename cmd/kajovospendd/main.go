package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/peterbourgon/ff/v4"
	"github.com/peterbourgon/ff/v4/ffhelp"
	"golang.org/x/sync/errgroup"

	"github.com/karelmartinek-a11y/kajovospend/internal/ares"
	"github.com/karelmartinek-a11y/kajovospend/internal/common"
	"github.com/karelmartinek-a11y/kajovospend/internal/llm"
	"github.com/karelmartinek-a11y/kajovospend/internal/ocr"
	"github.com/karelmartinek-a11y/kajovospend/internal/pipeline"
	"github.com/karelmartinek-a11y/kajovospend/internal/repository"
	"github.com/karelmartinek-a11y/kajovospend/internal/service"
)

func main() {
	fs := ff.NewFlagSet("kajovospendd")
	var (
		configPath = fs.StringLong("config", "", "path to YAML config")
		inbox      = fs.StringLong("inbox", "", "watched inbox directory (overrides config)")
		dbPath     = fs.StringLong("db", "", "SQLite database path (overrides config)")
		ctlAddr    = fs.StringLong("control-addr", "", "control listener address (overrides config)")
		logLevel   = fs.StringLong("log-level", "", "log level: debug, info, warn, error")
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
	if *inbox != "" {
		cfg.Dirs.Inbox = *inbox
	}
	if *dbPath != "" {
		cfg.Database.Path = *dbPath
	}
	if *ctlAddr != "" {
		cfg.Control.Addr = *ctlAddr
	}
	if *logLevel != "" {
		cfg.Log.Level = *logLevel
	}

	logger := common.NewLogger(cfg.Log.Level, cfg.Log.Format)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := repository.Open(ctx, cfg.Database.Path)
	if err != nil {
		logger.Error("failed to open database", "path", cfg.Database.Path, "error", err)
		os.Exit(1)
	}
	defer db.Close()

	files := repository.NewFileRepository(db, logger)
	documents := repository.NewDocumentRepository(db, logger)
	suppliers := repository.NewSupplierRepository(db, logger)
	jobs := repository.NewJobRepository(db, logger)
	state := repository.NewStateRepository(db, logger)

	var engine *ocr.Engine
	if !cfg.OCR.Disabled {
		engine = ocr.NewEngine(ocr.Config{
			Tesseract:   cfg.OCR.Tesseract,
			Lang:        cfg.OCR.Lang,
			DPI:         cfg.OCR.DPI,
			TessdataDir: cfg.OCR.TessdataDir,
			PSM:         cfg.OCR.PSM,
			OEM:         cfg.OCR.OEM,
		}, logger)
	}
	fuser := pipeline.NewFuser(engine, logger)

	registry := ares.NewClient(ares.Config{
		BaseURL:  cfg.Registry.BaseURL,
		Timeout:  cfg.Registry.Timeout.Std(),
		CacheTTL: cfg.Registry.CacheTTL.Std(),
	}, logger)

	var fallback llm.Extractor = llm.Disabled{}
	if cfg.LLM.APIKey != "" {
		gem, err := llm.NewGemini(ctx, llm.GeminiConfig{
			APIKey: cfg.LLM.APIKey,
			Model:  cfg.LLM.Model,
		}, logger)
		if err != nil {
			logger.Error("failed to init fallback extractor", "error", err)
			os.Exit(1)
		}
		defer gem.Close()
		fallback = gem
		logger.Info("fallback extractor enabled", "model", cfg.LLM.Model)
	}

	proc := pipeline.NewProcessor(pipeline.Config{
		Dirs: pipeline.Dirs{
			Processed:  cfg.Dirs.Processed,
			Quarantine: cfg.Dirs.Quarantine,
			Duplicate:  cfg.Dirs.Duplicate,
		},
		Decide:           pipeline.DecideConfig{OCRConfFloor: cfg.Pipeline.OCRConfFloor},
		FallbackMaxPages: cfg.LLM.MaxPages,
	}, fuser, files, documents, suppliers, registry, fallback, logger)

	app := service.NewApp(cfg, jobs, state, proc, logger)
	control := service.NewControlServer(app, logger)

	logger.Info("service starting",
		"inbox", cfg.Dirs.Inbox, "db", cfg.Database.Path,
		"control_addr", cfg.Control.Addr, "workers", cfg.Pipeline.Workers)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return app.Run(ctx) })
	g.Go(func() error { return control.Serve(ctx, cfg.Control.Addr) })

	if err := g.Wait(); err != nil && ctx.Err() == nil {
		logger.Error("service failed", "error", err)
		os.Exit(1)
	}
	logger.Info("service stopped")
}
