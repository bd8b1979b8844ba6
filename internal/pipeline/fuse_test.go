package pipeline

import (
	"context"
	"image"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeSource serves canned page text; rendering yields a blank image.
type fakeSource struct {
	pages []string
}

func (s *fakeSource) NumPages() int { return len(s.pages) }

func (s *fakeSource) Text(page int) (string, error) { return s.pages[page], nil }

func (s *fakeSource) Render(int, float64) (image.Image, error) {
	return image.NewGray(image.Rect(0, 0, 8, 8)), nil
}

func (s *fakeSource) Close() error { return nil }

const goodPageText = `Faktura - daňový doklad č. 2024-0042
Dodavatel: Velkoobchod Novák s.r.o.
IČO: 27082440
Datum vystavení: 15.03.2024
Zboží A 2 ks 100,00
Celkem k úhradě: 150,00 Kč
`

func TestFuseKeepsGoodEmbeddedText(t *testing.T) {
	fuser := NewFuser(nil, nil)
	src := &fakeSource{pages: []string{goodPageText}}

	res, err := fuser.Fuse(context.Background(), src)
	require.NoError(t, err)
	require.Len(t, res.Pages, 1)

	p := res.Pages[0]
	assert.Equal(t, 1, p.No)
	assert.Equal(t, goodPageText, p.Text)
	assert.Equal(t, "embedded", p.Audit.ChosenMode)
	assert.Greater(t, p.Quality, 0.35)
	assert.Greater(t, p.Confidence, 0.5)
	assert.LessOrEqual(t, p.Confidence, 0.95)
	assert.Greater(t, res.TextQuality, 0.0)
}

func TestFuseWithoutEngineKeepsWeakPages(t *testing.T) {
	fuser := NewFuser(nil, nil)
	src := &fakeSource{pages: []string{""}}

	res, err := fuser.Fuse(context.Background(), src)
	require.NoError(t, err)
	require.Len(t, res.Pages, 1)
	assert.Equal(t, "embedded", res.Pages[0].Audit.ChosenMode)
	assert.Equal(t, "", res.Pages[0].Text)
	assert.Equal(t, 0.0, res.Pages[0].Quality)
}

func TestFuseSummarizesPages(t *testing.T) {
	src := &fakeSource{pages: []string{goodPageText, ""}}
	res, err := NewFuser(nil, nil).Fuse(context.Background(), src)
	require.NoError(t, err)

	assert.Equal(t, 2, res.Summary.Pages)
	assert.Equal(t, 1, res.Summary.PagesNonEmpty)
	assert.Positive(t, res.Summary.CharsNonWS)
}

func TestContiguousRuns(t *testing.T) {
	assert.Empty(t, contiguousRuns(nil))
	assert.Equal(t, [][]int{{0}}, contiguousRuns([]int{0}))
	assert.Equal(t, [][]int{{0, 1, 2}}, contiguousRuns([]int{0, 1, 2}))
	assert.Equal(t, [][]int{{0, 1}, {3}, {5, 6}}, contiguousRuns([]int{0, 1, 3, 5, 6}))
}

func TestWeightedQualityWeighsByLength(t *testing.T) {
	pages := []PageText{
		{Text: strings.Repeat("a", 90), Quality: 1.0},
		{Text: strings.Repeat("b", 10), Quality: 0.0},
	}
	assert.InDelta(t, 0.9, weightedQuality(pages), 0.001)

	assert.Equal(t, 0.0, weightedQuality(nil))
}

func TestEmbeddedConfidenceCapped(t *testing.T) {
	assert.InDelta(t, 0.5, embeddedConfidence(0), 0.001)
	assert.InDelta(t, 0.77, embeddedConfidence(0.6), 0.001)
	assert.InDelta(t, 0.95, embeddedConfidence(1.0), 0.001)
}

func TestRenderPNGsHonorsPageCap(t *testing.T) {
	src := &fakeSource{pages: []string{"a", "b", "c"}}

	out, err := RenderPNGs(src, 150, 2)
	require.NoError(t, err)
	assert.Len(t, out, 2)
	for _, b := range out {
		assert.Equal(t, "\x89PNG", string(b[:4]))
	}

	out, err = RenderPNGs(src, 150, 0)
	require.NoError(t, err)
	assert.Len(t, out, 3)
}
