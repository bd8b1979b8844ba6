package ocr

import (
	"context"
	"fmt"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// runTesseract OCRs one image through the external binary. The image is
// written to a temp PNG because tesseract reads files, not pipes.
func (e *Engine) runTesseract(ctx context.Context, img image.Image) (string, error) {
	tmpDir, err := os.MkdirTemp("", "ks-ocr-*")
	if err != nil {
		return "", fmt.Errorf("creating ocr temp dir: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	in := filepath.Join(tmpDir, "page.png")
	f, err := os.Create(in)
	if err != nil {
		return "", fmt.Errorf("creating ocr temp file: %w", err)
	}
	if err := png.Encode(f, img); err != nil {
		f.Close()
		return "", fmt.Errorf("encoding ocr input: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", err
	}

	args := e.tessArgs(in)
	out, errb, err := e.runner.Run(ctx, e.cfg.Tesseract, args...)
	if err != nil {
		return "", fmt.Errorf("tesseract: %w (%s)", err, truncate(string(errb), 512))
	}
	return string(out), nil
}

// runTesseractTSV returns text and mean word confidence in 0..1 from one TSV
// pass. Words with confidence -1 (layout artifacts) are skipped.
func (e *Engine) runTesseractTSV(ctx context.Context, img image.Image) (string, float64, error) {
	tmpDir, err := os.MkdirTemp("", "ks-ocr-*")
	if err != nil {
		return "", 0, fmt.Errorf("creating ocr temp dir: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	in := filepath.Join(tmpDir, "page.png")
	f, err := os.Create(in)
	if err != nil {
		return "", 0, err
	}
	if err := png.Encode(f, img); err != nil {
		f.Close()
		return "", 0, fmt.Errorf("encoding ocr input: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", 0, err
	}

	args := append(e.tessArgs(in), "tsv")
	out, errb, err := e.runner.Run(ctx, e.cfg.Tesseract, args...)
	if err != nil {
		return "", 0, fmt.Errorf("tesseract tsv: %w (%s)", err, truncate(string(errb), 512))
	}
	text, conf := parseTSV(string(out))
	return text, conf, nil
}

func (e *Engine) tessArgs(in string) []string {
	args := []string{in, "stdout", "-l", e.cfg.Lang}
	if e.cfg.PSM > 0 {
		args = append(args, "--psm", strconv.Itoa(e.cfg.PSM))
	}
	if e.cfg.OEM > 0 {
		args = append(args, "--oem", strconv.Itoa(e.cfg.OEM))
	}
	if e.cfg.TessdataDir != "" {
		args = append(args, "--tessdata-dir", e.cfg.TessdataDir)
	}
	return args
}

// parseTSV reassembles line text from tesseract TSV output and computes the
// mean word confidence.
func parseTSV(tsv string) (string, float64) {
	var (
		b          strings.Builder
		sum        float64
		n          int
		lastLine   = -1
		lastPara   = -1
		wroteFirst bool
	)
	for i, ln := range strings.Split(tsv, "\n") {
		if i == 0 || ln == "" {
			continue
		}
		cols := strings.Split(ln, "\t")
		if len(cols) < 12 {
			continue
		}
		conf, err := strconv.ParseFloat(cols[10], 64)
		if err != nil || conf < 0 {
			continue
		}
		word := strings.TrimSpace(cols[11])
		if word == "" {
			continue
		}
		para, _ := strconv.Atoi(cols[3])
		line, _ := strconv.Atoi(cols[4])
		if wroteFirst {
			switch {
			case para != lastPara:
				b.WriteString("\n\n")
			case line != lastLine:
				b.WriteString("\n")
			default:
				b.WriteString(" ")
			}
		}
		b.WriteString(word)
		wroteFirst = true
		lastPara, lastLine = para, line
		sum += conf
		n++
	}
	if n == 0 {
		return "", 0
	}
	return b.String(), sum / float64(n) / 100.0
}
