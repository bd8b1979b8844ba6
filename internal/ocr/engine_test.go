package ocr

import (
	"context"
	"errors"
	"image"
	"image/color"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const tsvHeader = "level\tpage_num\tblock_num\tpar_num\tline_num\tword_num\tleft\ttop\twidth\theight\tconf\ttext"

func tsvRow(para, line int, conf float64, word string) string {
	return strings.Join([]string{
		"5", "1", "1",
		strconv.Itoa(para), strconv.Itoa(line), "1",
		"0", "0", "10", "10",
		strconv.FormatFloat(conf, 'f', -1, 64), word,
	}, "\t")
}

func TestParseTSVReassemblesLines(t *testing.T) {
	tsv := strings.Join([]string{
		tsvHeader,
		tsvRow(1, 1, 90, "Faktura"),
		tsvRow(1, 1, 80, "č."),
		tsvRow(1, 2, 70, "Celkem"),
		tsvRow(2, 1, 60, "Konec"),
		tsvRow(2, 1, -1, "artefakt"),
		tsvRow(2, 1, 95, " "),
	}, "\n")

	text, conf := parseTSV(tsv)
	assert.Equal(t, "Faktura č.\nCelkem\n\nKonec", text)
	assert.InDelta(t, 0.75, conf, 0.001)
}

func TestParseTSVEmpty(t *testing.T) {
	text, conf := parseTSV(tsvHeader + "\n")
	assert.Equal(t, "", text)
	assert.Equal(t, 0.0, conf)
}

func TestCandidateScore(t *testing.T) {
	assert.InDelta(t, 0.5, candidateScore(0.5, 0), 0.001)
	assert.Greater(t, candidateScore(0.5, 500), candidateScore(0.5, 50),
		"longer text at equal confidence scores higher")
	// the length boost is capped
	assert.InDelta(t, 1.5, candidateScore(0.5, 10_000_000), 0.001)
}

type fakeRunner struct {
	tsvOut   string
	plainOut string
	err      error
	calls    int
}

func (f *fakeRunner) Run(_ context.Context, _ string, args ...string) ([]byte, []byte, error) {
	f.calls++
	if f.err != nil {
		return nil, []byte("boom"), f.err
	}
	if len(args) > 0 && args[len(args)-1] == "tsv" {
		return []byte(f.tsvOut), nil, nil
	}
	return []byte(f.plainOut), nil, nil
}

func whitePage() image.Image {
	img := image.NewGray(image.Rect(0, 0, 16, 16))
	for y := 0; y < 16; y++ {
		for x := 0; x < 16; x++ {
			img.SetGray(x, y, color.Gray{Y: 255})
		}
	}
	return img
}

func TestRecognizePicksBestVariant(t *testing.T) {
	runner := &fakeRunner{tsvOut: strings.Join([]string{
		tsvHeader,
		tsvRow(1, 1, 90, "Účtenka"),
		tsvRow(1, 1, 90, "celkem"),
	}, "\n")}
	eng := NewEngineWithRunner(Config{}, runner, nil)

	res, err := eng.Recognize(context.Background(), whitePage())
	require.NoError(t, err)
	assert.Equal(t, "Účtenka celkem", res.Text)
	assert.InDelta(t, 0.9, res.Confidence, 0.001)
	assert.Equal(t, "original", res.Variant, "equal scores keep the first variant")
	assert.Equal(t, 3, runner.calls, "a fully white page has no autocrop variant")
}

func TestRecognizeFallsBackToPlainPass(t *testing.T) {
	runner := &fakeRunner{
		tsvOut:   tsvHeader + "\n" + tsvRow(1, 1, -1, "šum"),
		plainOut: "Potraviny Krátký\n",
	}
	eng := NewEngineWithRunner(Config{}, runner, nil)

	res, err := eng.Recognize(context.Background(), whitePage())
	require.NoError(t, err)
	assert.Equal(t, "plain", res.Variant)
	assert.Equal(t, "Potraviny Krátký\n", res.Text)
	assert.InDelta(t, 0.3, res.Confidence, 0.001)
}

func TestRecognizeAllVariantsFailed(t *testing.T) {
	runner := &fakeRunner{err: errors.New("no such binary")}
	eng := NewEngineWithRunner(Config{}, runner, nil)

	_, err := eng.Recognize(context.Background(), whitePage())
	assert.Error(t, err)
}

func TestEngineDefaults(t *testing.T) {
	eng := NewEngine(Config{}, nil)
	assert.Equal(t, "tesseract", eng.cfg.Tesseract)
	assert.Equal(t, "ces+eng", eng.cfg.Lang)
	assert.Equal(t, 300.0, eng.MinDPI())

	eng = NewEngine(Config{DPI: 600}, nil)
	assert.Equal(t, 600.0, eng.MinDPI())
}
