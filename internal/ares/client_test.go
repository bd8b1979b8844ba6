package ares

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/karelmartinek-a11y/kajovospend/internal/extract"
)

const subjectJSON = `{
	"ico": "27082440",
	"obchodniJmeno": "Alza.cz a.s.",
	"dic": "CZ27082440",
	"pravniForma": "121",
	"sidlo": {
		"nazevUlice": "Jankovcova",
		"cisloDomovni": 1522,
		"cisloOrientacni": 53,
		"nazevObce": "Praha",
		"psc": 17000,
		"textovaAdresa": "Jankovcova 1522/53, 17000 Praha"
	}
}`

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(Config{BaseURL: srv.URL, CacheTTL: time.Hour}, nil), srv
}

func TestResolveMapsSubject(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/27082440", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(subjectJSON))
	})

	sup, err := c.Resolve(context.Background(), "27082440")
	require.NoError(t, err)
	assert.Equal(t, "27082440", sup.ICONorm)
	assert.Equal(t, "Alza.cz a.s.", sup.Name)
	assert.Equal(t, "CZ27082440", sup.DIC)
	assert.Equal(t, "Jankovcova", sup.Street)
	assert.Equal(t, "1522/53", sup.StreetNo)
	assert.Equal(t, "17000", sup.ZipCode)
	require.NotNil(t, sup.IsVATPayer)
	assert.True(t, *sup.IsVATPayer)
	require.NotNil(t, sup.RegistrySync)
}

func TestResolveCachesWithinTTL(t *testing.T) {
	var hits atomic.Int32
	c, _ := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		_, _ = w.Write([]byte(subjectJSON))
	})

	now := time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC)
	c.WithClock(func() time.Time { return now })

	_, err := c.Resolve(context.Background(), "27082440")
	require.NoError(t, err)
	_, err = c.Resolve(context.Background(), "27082440")
	require.NoError(t, err)
	assert.Equal(t, int32(1), hits.Load(), "second lookup must come from the cache")

	// past expiry the entry is refreshed
	now = now.Add(2 * time.Hour)
	_, err = c.Resolve(context.Background(), "27082440")
	require.NoError(t, err)
	assert.Equal(t, int32(2), hits.Load())
}

func TestResolveCachesNotFound(t *testing.T) {
	var hits atomic.Int32
	c, _ := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusNotFound)
	})

	_, err := c.Resolve(context.Background(), "99999999")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = c.Resolve(context.Background(), "99999999")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, int32(1), hits.Load(), "negative lookups are cached too")
}

func TestResolveDoesNotCacheServerErrors(t *testing.T) {
	var hits atomic.Int32
	c, _ := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	})

	_, err := c.Resolve(context.Background(), "27082440")
	assert.Error(t, err)
	_, err = c.Resolve(context.Background(), "27082440")
	assert.Error(t, err)
	assert.Equal(t, int32(2), hits.Load())
}

func TestResolveRejectsPseudoICOWithoutNetwork(t *testing.T) {
	var hits atomic.Int32
	c, _ := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
	})

	_, err := c.Resolve(context.Background(), extract.PseudoICO("Kavárna U Mloka"))
	assert.ErrorIs(t, err, ErrInvalidICO)
	assert.Equal(t, int32(0), hits.Load(), "pseudo IDs must never reach the registry")
}

func TestNormalizeICO(t *testing.T) {
	got, ok := NormalizeICO("123456")
	assert.True(t, ok)
	assert.Equal(t, "00123456", got)

	got, ok = NormalizeICO(" 27082440 ")
	assert.True(t, ok)
	assert.Equal(t, "27082440", got)

	_, ok = NormalizeICO("12345")
	assert.False(t, ok)
	_, ok = NormalizeICO("abc12345")
	assert.False(t, ok)
	_, ok = NormalizeICO("NOICO-abcdef0123")
	assert.False(t, ok)
}

func TestCandidateICOs(t *testing.T) {
	text := "Dodavatel s.r.o.\nIČO: 27082440\nPSČ: 17000000\nTel: 12345678\nEAN 87654321\nDIČ CZ27082440\nObjednávka 11223344\n"
	got := CandidateICOs(text)
	assert.Equal(t, []string{"27082440", "11223344"}, got)
}
