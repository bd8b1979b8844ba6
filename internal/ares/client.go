// Package ares resolves supplier identity against the Czech ARES business
// registry.
package ares

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/karelmartinek-a11y/kajovospend/internal/entity"
	"github.com/karelmartinek-a11y/kajovospend/internal/extract"
)

const defaultBaseURL = "https://ares.gov.cz/ekonomicke-subjekty-v-be/rest/ekonomicke-subjekty"

var (
	// ErrNotFound means the registry has no subject under the ICO.
	ErrNotFound = errors.New("ares: subject not found")
	// ErrInvalidICO means the value is not a plausible registry identifier
	// and was never sent upstream.
	ErrInvalidICO = errors.New("ares: invalid ico")

	icoShapeRe = regexp.MustCompile(`^\d{6,10}$`)
)

type Config struct {
	BaseURL string
	Timeout time.Duration // per-lookup bound, default 10s
	CacheTTL time.Duration // default 24h
}

type cacheEntry struct {
	supplier entity.Supplier
	err      error
	expires  time.Time
}

// Client is a TTL-cached ARES lookup client. The clock is injected so cache
// expiry is testable.
type Client struct {
	cfg    Config
	http   *http.Client
	logger *slog.Logger
	now    func() time.Time

	mu    sync.Mutex
	cache map[string]cacheEntry
}

func NewClient(cfg Config, logger *slog.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 24 * time.Hour
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		cfg:    cfg,
		http:   &http.Client{Timeout: cfg.Timeout},
		logger: logger,
		now:    time.Now,
		cache:  map[string]cacheEntry{},
	}
}

// WithClock replaces the cache clock. Test seam.
func (c *Client) WithClock(now func() time.Time) *Client {
	c.now = now
	return c
}

// NormalizeICO pads a plausible ICO to the canonical 8 digits. Returns false
// for pseudo IDs and values that are not 6 to 10 digits.
func NormalizeICO(ico string) (string, bool) {
	ico = strings.TrimSpace(ico)
	if extract.IsPseudoICO(ico) || !icoShapeRe.MatchString(ico) {
		return "", false
	}
	for len(ico) < 8 {
		ico = "0" + ico
	}
	return ico, true
}

// Resolve looks up one supplier. Results, including not-found, are cached for
// the configured TTL. Pseudo IDs fail fast with ErrInvalidICO.
func (c *Client) Resolve(ctx context.Context, ico string) (entity.Supplier, error) {
	norm, ok := NormalizeICO(ico)
	if !ok {
		return entity.Supplier{}, fmt.Errorf("%w: %q", ErrInvalidICO, ico)
	}

	c.mu.Lock()
	if e, hit := c.cache[norm]; hit && c.now().Before(e.expires) {
		c.mu.Unlock()
		return e.supplier, e.err
	}
	c.mu.Unlock()

	sup, err := c.fetch(ctx, norm)
	// transient transport errors are not cached, negative lookups are
	if err == nil || errors.Is(err, ErrNotFound) {
		c.mu.Lock()
		c.cache[norm] = cacheEntry{supplier: sup, err: err, expires: c.now().Add(c.cfg.CacheTTL)}
		c.mu.Unlock()
	}
	return sup, err
}

type aresSubject struct {
	ICO           string `json:"ico"`
	ObchodniJmeno string `json:"obchodniJmeno"`
	DIC           string `json:"dic"`
	PravniForma   string `json:"pravniForma"`
	Sidlo         struct {
		NazevUlice    string `json:"nazevUlice"`
		CisloDomovni  int    `json:"cisloDomovni"`
		CisloOrientacni int  `json:"cisloOrientacni"`
		NazevObce     string `json:"nazevObce"`
		PSC           int    `json:"psc"`
		TextovaAdresa string `json:"textovaAdresa"`
	} `json:"sidlo"`
	SeznamRegistraci struct {
		StavZdrojeDph string `json:"stavZdrojeDph"`
	} `json:"seznamRegistraci"`
}

func (c *Client) fetch(ctx context.Context, ico string) (entity.Supplier, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	url := c.cfg.BaseURL + "/" + ico
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return entity.Supplier{}, fmt.Errorf("building ares request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	start := c.now()
	resp, err := c.http.Do(req)
	if err != nil {
		return entity.Supplier{}, fmt.Errorf("ares lookup %s: %w", ico, err)
	}
	defer resp.Body.Close()

	c.logger.Debug("ares lookup", "ico", ico, "status", resp.StatusCode,
		"duration_ms", c.now().Sub(start).Milliseconds())

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return entity.Supplier{}, fmt.Errorf("ico %s: %w", ico, ErrNotFound)
	case resp.StatusCode != http.StatusOK:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return entity.Supplier{}, fmt.Errorf("ares lookup %s: status %d: %s", ico, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var sub aresSubject
	if err := json.NewDecoder(resp.Body).Decode(&sub); err != nil {
		return entity.Supplier{}, fmt.Errorf("decoding ares response for %s: %w", ico, err)
	}
	return c.toSupplier(ico, sub), nil
}

func (c *Client) toSupplier(ico string, sub aresSubject) entity.Supplier {
	now := c.now().UTC()
	sup := entity.Supplier{
		ICO:          ico,
		ICONorm:      ico,
		Name:         sub.ObchodniJmeno,
		DIC:          sub.DIC,
		LegalForm:    sub.PravniForma,
		Street:       sub.Sidlo.NazevUlice,
		City:         sub.Sidlo.NazevObce,
		Address:      sub.Sidlo.TextovaAdresa,
		RegistrySync: &now,
	}
	if sub.Sidlo.CisloDomovni > 0 {
		sup.StreetNo = fmt.Sprintf("%d", sub.Sidlo.CisloDomovni)
		if sub.Sidlo.CisloOrientacni > 0 {
			sup.StreetNo = fmt.Sprintf("%d/%d", sub.Sidlo.CisloDomovni, sub.Sidlo.CisloOrientacni)
		}
	}
	if sub.Sidlo.PSC > 0 {
		sup.ZipCode = fmt.Sprintf("%05d", sub.Sidlo.PSC)
	}
	if sub.DIC != "" {
		payer := true
		sup.IsVATPayer = &payer
	}
	return sup
}

// CandidateICOs pulls 8-digit ICO candidates out of free text for registry
// self-healing, skipping lines that obviously carry ZIP codes, phone numbers
// or EANs.
func CandidateICOs(text string) []string {
	seen := map[string]bool{}
	var out []string
	lineRe := regexp.MustCompile(`\b\d{8}\b`)
	for _, line := range strings.Split(text, "\n") {
		low := strings.ToLower(line)
		if strings.Contains(low, "psč") || strings.Contains(low, "psc") ||
			strings.Contains(low, "tel") || strings.Contains(low, "ean") ||
			strings.Contains(low, "www") {
			continue
		}
		for _, m := range lineRe.FindAllString(line, -1) {
			if !seen[m] {
				seen[m] = true
				out = append(out, m)
			}
		}
	}
	return out
}
