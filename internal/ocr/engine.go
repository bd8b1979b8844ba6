// Package ocr drives the external tesseract binary over deterministically
// preprocessed page images and picks the best result by a confidence-weighted
// score.
package ocr

import (
	"context"
	"image"
	"log/slog"
	"math"
)

type Config struct {
	Tesseract string // binary name or absolute path; if empty -> "tesseract"
	Lang      string // default "ces+eng"
	DPI       int    // rasterization DPI floor for scanned pages, default 300

	TessdataDir string
	PSM         int // 6 works well for receipt blocks
	OEM         int // 1 = LSTM; 0 = engine default
}

// Result is the winning OCR pass for one page.
type Result struct {
	Text       string
	Confidence float64 // mean word confidence 0..1
	Variant    string  // preprocessing variant that won
	Score      float64
}

type Engine struct {
	cfg    Config
	runner Runner
	logger *slog.Logger
}

func NewEngine(cfg Config, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Tesseract == "" {
		cfg.Tesseract = "tesseract"
	}
	if cfg.Lang == "" {
		cfg.Lang = "ces+eng"
	}
	if cfg.DPI <= 0 {
		cfg.DPI = 300
	}
	return &Engine{cfg: cfg, runner: execRunner{}, logger: logger}
}

// NewEngineWithRunner is the test seam.
func NewEngineWithRunner(cfg Config, runner Runner, logger *slog.Logger) *Engine {
	e := NewEngine(cfg, logger)
	e.runner = runner
	return e
}

// MinDPI returns the rasterization DPI to use for OCR passes.
func (e *Engine) MinDPI() float64 {
	if e.cfg.DPI < 300 {
		return 300
	}
	return float64(e.cfg.DPI)
}

// Recognize OCRs one rendered page: each preprocessing variant gets a TSV
// pass, and the candidate with the highest confidence-weighted score wins.
// Longer texts at comparable confidence are preferred, capped so that one
// noisy wall of characters cannot run away with the score.
func (e *Engine) Recognize(ctx context.Context, page image.Image) (Result, error) {
	var best Result
	var lastErr error
	ran := 0
	for _, v := range Variants(page) {
		text, conf, err := e.runTesseractTSV(ctx, v.Image)
		if err != nil {
			e.logger.Warn("ocr variant failed", "variant", v.Name, "error", err)
			lastErr = err
			continue
		}
		ran++
		score := candidateScore(conf, len(text))
		e.logger.Debug("ocr variant done",
			"variant", v.Name, "confidence", conf, "text_len", len(text), "score", score)
		if score > best.Score || best.Variant == "" {
			best = Result{Text: text, Confidence: conf, Variant: v.Name, Score: score}
		}
	}
	if ran == 0 {
		return Result{}, lastErr
	}
	if best.Text == "" {
		// TSV occasionally yields no words where the plain pass still reads
		// something; take that text with a conservative confidence.
		if text, err := e.runTesseract(ctx, page); err == nil && text != "" {
			best = Result{Text: text, Confidence: 0.3, Variant: "plain", Score: candidateScore(0.3, len(text))}
		}
	}
	return best, nil
}

func candidateScore(conf float64, textLen int) float64 {
	lengthBoost := math.Log(1+float64(textLen)) / 3
	if lengthBoost > 2 {
		lengthBoost = 2
	}
	return conf * (1 + lengthBoost)
}
