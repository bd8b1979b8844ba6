// Package pipeline runs one source file end to end: text fusion, extraction,
// canonicalization, merging, decision, enrichment and persistence.
package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/karelmartinek-a11y/kajovospend/internal/entity"
	"github.com/karelmartinek-a11y/kajovospend/internal/ocr"
	"github.com/karelmartinek-a11y/kajovospend/internal/pdf"
	"github.com/karelmartinek-a11y/kajovospend/internal/textquality"
)

const (
	// embedded text below this quality score is a weak page
	weakPageThreshold = 0.35
	// a page with fewer non-whitespace characters is weak regardless of score
	minNonWhitespace = 12
	// OCR text must beat embedded quality by this margin to replace it
	ocrReplaceMargin = 0.02
	// tesseract processes running at once per weak-page run
	maxParallelOCR = 2
)

// PageText is the fused text of one page with its provenance.
type PageText struct {
	No         int // 1-based
	Text       string
	Quality    float64
	Confidence float64 // embedded: derived from quality; ocr: engine confidence
	Audit      entity.PageAudit
}

// FuseResult is the per-file outcome of text fusion.
type FuseResult struct {
	Pages       []PageText
	TextQuality float64 // length-weighted mean of chosen page scores
	Summary     textquality.Summary
}

// Fuser picks the better of embedded PDF text and OCR per page.
type Fuser struct {
	engine *ocr.Engine // nil disables OCR
	logger *slog.Logger
}

func NewFuser(engine *ocr.Engine, logger *slog.Logger) *Fuser {
	if logger == nil {
		logger = slog.Default()
	}
	return &Fuser{engine: engine, logger: logger}
}

// Fuse reads every page of the source. Embedded text is kept where it scores
// well; weak pages are grouped into contiguous runs, each run's pages are
// rendered and OCR'd, and the OCR text wins only when its quality score
// exceeds the embedded one by the replacement margin.
func (f *Fuser) Fuse(ctx context.Context, src pdf.Source) (FuseResult, error) {
	n := src.NumPages()
	pages := make([]PageText, n)
	metrics := make([]textquality.Metrics, n)
	var weak []int

	for i := 0; i < n; i++ {
		embedded, err := src.Text(i)
		if err != nil {
			return FuseResult{}, fmt.Errorf("page %d: %w", i+1, err)
		}
		score, m := textquality.Score(embedded)
		metrics[i] = m

		pages[i] = PageText{
			No:         i + 1,
			Text:       embedded,
			Quality:    score,
			Confidence: embeddedConfidence(score),
			Audit: entity.PageAudit{
				PageNo:        i + 1,
				ChosenMode:    "embedded",
				ChosenScore:   score,
				EmbeddedScore: score,
				EmbeddedLen:   len(embedded),
			},
		}

		if score < weakPageThreshold || m.CharsNonWS < minNonWhitespace {
			weak = append(weak, i)
		}
	}

	if f.engine != nil {
		for _, run := range contiguousRuns(weak) {
			f.ocrRun(ctx, src, run, pages, metrics)
		}
	}

	return FuseResult{
		Pages:       pages,
		TextQuality: weightedQuality(pages),
		Summary:     textquality.Summarize(metrics),
	}, nil
}

// ocrRun renders one contiguous run of weak pages and recognizes them with a
// bounded fan-out. Rendering stays sequential: a fitz document must not be
// used from more than one goroutine.
func (f *Fuser) ocrRun(ctx context.Context, src pdf.Source, run []int,
	pages []PageText, metrics []textquality.Metrics) {
	type task struct {
		idx int
		img image.Image
	}
	tasks := make([]task, 0, len(run))
	for _, idx := range run {
		img, err := src.Render(idx, f.engine.MinDPI())
		if err != nil {
			f.logger.Warn("rendering for ocr failed, keeping embedded text",
				"page", idx+1, "error", err)
			continue
		}
		tasks = append(tasks, task{idx: idx, img: img})
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxParallelOCR)
	for _, tk := range tasks {
		g.Go(func() error {
			f.recognizeInto(gctx, tk.img, &pages[tk.idx], &metrics[tk.idx])
			return nil
		})
	}
	_ = g.Wait()
}

func (f *Fuser) recognizeInto(ctx context.Context, img image.Image,
	p *PageText, m *textquality.Metrics) {
	res, err := f.engine.Recognize(ctx, img)
	if err != nil {
		f.logger.Warn("ocr pass failed, keeping embedded text",
			"page", p.No, "error", err)
		return
	}

	ocrScore, om := textquality.Score(res.Text)
	p.Audit.OCRScore = ocrScore
	p.Audit.OCRLen = len(res.Text)
	p.Audit.OCRConf = res.Confidence

	if ocrScore > p.Audit.EmbeddedScore+ocrReplaceMargin {
		p.Text = res.Text
		p.Quality = ocrScore
		p.Confidence = res.Confidence
		p.Audit.ChosenMode = "ocr"
		p.Audit.ChosenScore = ocrScore
		*m = om
		f.logger.Debug("ocr replaced embedded text",
			"page", p.No, "embedded_score", p.Audit.EmbeddedScore,
			"ocr_score", ocrScore, "variant", res.Variant)
	}
}

// contiguousRuns splits sorted page indexes into runs of adjacent pages.
func contiguousRuns(idx []int) [][]int {
	var runs [][]int
	for i, v := range idx {
		if i > 0 && v == idx[i-1]+1 {
			runs[len(runs)-1] = append(runs[len(runs)-1], v)
			continue
		}
		runs = append(runs, []int{v})
	}
	return runs
}

// embeddedConfidence maps a text quality score onto the confidence scale used
// for OCR, so downstream thresholds apply uniformly.
func embeddedConfidence(score float64) float64 {
	c := 0.5 + 0.45*score
	if c > 0.95 {
		c = 0.95
	}
	return c
}

func weightedQuality(pages []PageText) float64 {
	var sum, weight float64
	for _, p := range pages {
		w := float64(len(p.Text))
		if w == 0 {
			w = 1
		}
		sum += p.Quality * w
		weight += w
	}
	if weight == 0 {
		return 0
	}
	return sum / weight
}

// RenderPNGs rasterizes the file's pages for the fallback extractor.
func RenderPNGs(src pdf.Source, dpi float64, maxPages int) ([][]byte, error) {
	n := src.NumPages()
	if maxPages > 0 && n > maxPages {
		n = maxPages
	}
	out := make([][]byte, 0, n)
	for i := 0; i < n; i++ {
		img, err := src.Render(i, dpi)
		if err != nil {
			return nil, fmt.Errorf("rendering page %d: %w", i+1, err)
		}
		var buf bytes.Buffer
		if err := png.Encode(&buf, img); err != nil {
			return nil, fmt.Errorf("encoding page %d: %w", i+1, err)
		}
		out = append(out, buf.Bytes())
	}
	return out, nil
}
