package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

const extractionPrompt = `You are analyzing a Czech invoice (faktura) or retail receipt (účtenka).
Read the attached text and page images and extract:

1. supplier_ico: the supplier's 8-digit IČO (company registration number). Use the SUPPLIER's (dodavatel), not the customer's.
2. supplier_name: the supplier's business name.
3. doc_number: the invoice/document number (číslo faktury, daňový doklad č., or variabilní symbol).
4. issue_date: the issue date (datum vystavení) in YYYY-MM-DD.
5. total_with_vat: the grand total including VAT (celkem k úhradě) as a number.
6. currency: ISO code, usually CZK.
7. doc_type: "invoice" or "receipt".
8. items: the purchased lines, each with name, quantity, line_gross (line total incl. VAT) and vat_rate (0, 10, 12, 15 or 21).

Return ONLY a valid JSON object with exactly those keys. Use null for anything
you cannot find. Do not use markdown code blocks. Amounts use a dot as the
decimal separator.`

type GeminiConfig struct {
	APIKey  string
	Model   string        // default "gemini-2.5-flash"
	Timeout time.Duration // per-call bound, default 60s
}

// Gemini implements Extractor against the Google Generative AI API.
type Gemini struct {
	cfg    GeminiConfig
	client *genai.Client
	model  *genai.GenerativeModel
	logger *slog.Logger
}

func NewGemini(ctx context.Context, cfg GeminiConfig, logger *slog.Logger) (*Gemini, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini api key is required")
	}
	if cfg.Model == "" {
		cfg.Model = "gemini-2.5-flash"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(cfg.APIKey))
	if err != nil {
		return nil, fmt.Errorf("creating gemini client: %w", err)
	}
	return &Gemini{cfg: cfg, client: client, model: client.GenerativeModel(cfg.Model), logger: logger}, nil
}

func (g *Gemini) Close() error { return g.client.Close() }

// Extract sends the fused text plus rendered page PNGs and returns validated
// fields, or (nil, nil) when the model had nothing usable.
func (g *Gemini) Extract(ctx context.Context, text string, pageImages [][]byte) (*Fields, error) {
	ctx, cancel := context.WithTimeout(ctx, g.cfg.Timeout)
	defer cancel()

	parts := make([]genai.Part, 0, len(pageImages)+2)
	for _, img := range pageImages {
		parts = append(parts, genai.ImageData("png", img))
	}
	if strings.TrimSpace(text) != "" {
		parts = append(parts, genai.Text("Extracted text:\n"+text))
	}
	parts = append(parts, genai.Text(extractionPrompt))

	start := time.Now()
	resp, err := g.model.GenerateContent(ctx, parts...)
	if err != nil {
		return nil, fmt.Errorf("gemini generate: %w", err)
	}
	g.logger.Debug("fallback extraction done",
		"model", g.cfg.Model, "duration_ms", time.Since(start).Milliseconds())

	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return nil, nil
	}
	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if t, ok := part.(genai.Text); ok {
			b.WriteString(string(t))
		}
	}
	return parseFields(b.String())
}

// raw mirrors the wire shape before the issue date is parsed.
type rawFields struct {
	Fields
	IssueDate string `json:"issue_date"`
}

func parseFields(text string) (*Fields, error) {
	obj, err := extractJSONObject(text)
	if err != nil {
		return nil, err
	}

	var generic any
	if err := json.Unmarshal([]byte(obj), &generic); err != nil {
		return nil, fmt.Errorf("unmarshaling fallback response: %w", err)
	}
	if err := validateResponse(generic); err != nil {
		return nil, err
	}

	var raw rawFields
	if err := json.Unmarshal([]byte(obj), &raw); err != nil {
		return nil, fmt.Errorf("unmarshaling fallback fields: %w", err)
	}
	f := raw.Fields
	if raw.IssueDate != "" {
		if d, err := time.Parse("2006-01-02", raw.IssueDate); err == nil {
			f.IssueDate = &d
		}
	}
	if f.SupplierICO == "" && f.DocNumber == "" && f.TotalWithVAT == nil && len(f.Items) == 0 {
		return nil, nil
	}
	return &f, nil
}
