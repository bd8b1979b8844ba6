package pipeline

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/karelmartinek-a11y/kajovospend/constants"
	"github.com/karelmartinek-a11y/kajovospend/internal/ares"
	"github.com/karelmartinek-a11y/kajovospend/internal/entity"
	"github.com/karelmartinek-a11y/kajovospend/internal/extract"
	"github.com/karelmartinek-a11y/kajovospend/internal/ingest"
	"github.com/karelmartinek-a11y/kajovospend/internal/llm"
	"github.com/karelmartinek-a11y/kajovospend/internal/pdf"
	"github.com/karelmartinek-a11y/kajovospend/internal/repository"
	"github.com/karelmartinek-a11y/kajovospend/internal/spayd"
	"github.com/karelmartinek-a11y/kajovospend/internal/vat"
)

// Dirs are the disposition targets. A file is moved exactly once per run.
type Dirs struct {
	Processed  string
	Quarantine string
	Duplicate  string
}

type Config struct {
	Dirs   Dirs
	Decide DecideConfig
	// FallbackDPI is the render resolution for fallback page images.
	FallbackDPI float64
	// FallbackMaxPages caps how many pages are sent to the fallback.
	FallbackMaxPages int
}

// Outcome is what the coordinator needs to update service state.
type Outcome struct {
	Status    constants.JobStatus
	Documents int
	Err       error
}

// Processor drives one file through the whole pipeline.
type Processor struct {
	cfg       Config
	fuser     *Fuser
	files     repository.FileRepository
	documents repository.DocumentRepository
	suppliers repository.SupplierRepository
	registry  *ares.Client
	fallback  llm.Extractor
	logger    *slog.Logger

	// open is the document opener, replaced in tests
	open func(path string) (pdf.Source, error)
	// decodeQR scans a rendered page for a payment QR, replaced in tests
	decodeQR func(image.Image) (string, bool)
}

func NewProcessor(cfg Config, fuser *Fuser,
	files repository.FileRepository, documents repository.DocumentRepository,
	suppliers repository.SupplierRepository, registry *ares.Client,
	fallback llm.Extractor, logger *slog.Logger) *Processor {
	if logger == nil {
		logger = slog.Default()
	}
	if fallback == nil {
		fallback = llm.Disabled{}
	}
	if cfg.FallbackDPI <= 0 {
		cfg.FallbackDPI = 200
	}
	if cfg.FallbackMaxPages <= 0 {
		cfg.FallbackMaxPages = 5
	}
	return &Processor{
		cfg: cfg, fuser: fuser, files: files, documents: documents,
		suppliers: suppliers, registry: registry, fallback: fallback, logger: logger,
		open: pdf.Open, decodeQR: spayd.DecodeImage,
	}
}

// ProcessFile runs one job's file. It never both returns an error and leaves
// the file in place: every exit path has moved the file and settled its row.
func (p *Processor) ProcessFile(ctx context.Context, job *entity.Job) Outcome {
	log := p.logger.With("trace_id", job.TraceID, "path", job.Path)
	start := time.Now()

	sha, err := ingest.HashFile(job.Path)
	if err != nil {
		log.Error("hashing failed", "error", err)
		return Outcome{Status: constants.JobStatusError, Err: err}
	}
	job.SHA256 = sha
	log = log.With("sha256", sha[:12])

	// content-hash gate: a known hash is a duplicate before any parsing
	if _, err := p.files.FindBySHA256(ctx, sha); err == nil {
		dest, mvErr := ingest.SafeMove(job.Path, p.cfg.Dirs.Duplicate)
		if mvErr != nil {
			return Outcome{Status: constants.JobStatusError, Err: mvErr}
		}
		log.Info("duplicate content, skipped", "moved_to", dest)
		return Outcome{Status: constants.JobStatusDuplicate}
	} else if !errors.Is(err, repository.ErrNotFound) {
		return Outcome{Status: constants.JobStatusError, Err: err}
	}

	file := &entity.SourceFile{
		SHA256:       sha,
		OriginalName: filepath.Base(job.Path),
		MimeType:     pdf.DetectMime(job.Path),
		CurrentPath:  job.Path,
		Status:       constants.FileStatusNew,
	}
	if _, err := p.files.Insert(ctx, file); err != nil {
		if errors.Is(err, repository.ErrDuplicateHash) {
			// lost the insert race against a concurrent copy of the same
			// content; treat it exactly like the hash-gate hit above
			dest, mvErr := ingest.SafeMove(job.Path, p.cfg.Dirs.Duplicate)
			if mvErr != nil {
				return Outcome{Status: constants.JobStatusError, Err: mvErr}
			}
			log.Info("duplicate content, skipped", "moved_to", dest)
			return Outcome{Status: constants.JobStatusDuplicate}
		}
		return Outcome{Status: constants.JobStatusError, Err: err}
	}

	src, err := p.open(job.Path)
	if err != nil {
		return p.quarantine(ctx, job, file, fmt.Errorf("unreadable file: %w", err))
	}
	defer src.Close()

	file.Pages = src.NumPages()
	if err := p.files.UpdatePages(ctx, file.ID, file.Pages); err != nil {
		return Outcome{Status: constants.JobStatusError, Err: err}
	}

	fused, err := p.fuser.Fuse(ctx, src)
	if err != nil {
		return p.quarantine(ctx, job, file, fmt.Errorf("text fusion failed: %w", err))
	}
	if fused.Summary.PagesNonEmpty == 0 {
		return p.quarantine(ctx, job, file, errors.New(extract.ReasonEmptyText))
	}
	log.Debug("text fused",
		"pages", fused.Summary.Pages, "pages_nonempty", fused.Summary.PagesNonEmpty,
		"chars", fused.Summary.CharsNonWS, "quality", fused.TextQuality)

	drafts := make([]PageDraft, 0, len(fused.Pages))
	for _, pg := range fused.Pages {
		drafts = append(drafts, PageDraft{
			PageNo:     pg.No,
			Extracted:  extract.FromText(pg.Text),
			Confidence: pg.Confidence,
		})
	}
	groups := MergePages(drafts)

	var persisted, duplicates int
	for _, g := range groups {
		if g.Extracted.BankAccount == "" || g.Extracted.TotalWithVAT == nil {
			p.tryPaymentQR(src, &g, log)
		}
		doc := Decide(g, sha, p.cfg.Decide)
		doc.FileID = file.ID
		doc.TextQuality = fused.TextQuality

		if Incomplete(&doc) {
			p.tryFallback(ctx, src, &doc, log)
		}

		supplierName := p.enrich(ctx, &doc, log)

		if key, ok := doc.Key(); ok {
			if _, err := p.documents.FindByIdentity(ctx, key); err == nil {
				log.Info("business duplicate document, skipped",
					"supplier_ico", key.SupplierICO, "doc_number", key.DocNumber)
				duplicates++
				continue
			} else if !errors.Is(err, repository.ErrNotFound) {
				return Outcome{Status: constants.JobStatusError, Err: err}
			}
		}

		audits := auditsForGroup(fused.Pages, g.PageFrom, g.PageTo)
		if _, err := p.documents.Persist(ctx, &doc, audits, supplierName); err != nil {
			return Outcome{Status: constants.JobStatusError, Err: err}
		}
		persisted++
		log.Info("document persisted",
			"doc_id", doc.ID, "doc_type", string(doc.DocType),
			"doc_number", doc.DocNumber, "pages", fmt.Sprintf("%d-%d", doc.PageFrom, doc.PageTo),
			"requires_review", doc.RequiresReview, "confidence", doc.Confidence,
			"duration_ms", time.Since(start).Milliseconds())
	}

	switch {
	case persisted > 0:
		dest, err := ingest.SafeMove(job.Path, p.cfg.Dirs.Processed)
		if err != nil {
			return Outcome{Status: constants.JobStatusError, Err: err}
		}
		if err := p.files.Finish(ctx, file.ID, constants.FileStatusProcessed, dest, ""); err != nil {
			return Outcome{Status: constants.JobStatusError, Err: err}
		}
		return Outcome{Status: constants.JobStatusDone, Documents: persisted}
	case duplicates > 0:
		dest, err := ingest.SafeMove(job.Path, p.cfg.Dirs.Duplicate)
		if err != nil {
			return Outcome{Status: constants.JobStatusError, Err: err}
		}
		if err := p.files.Finish(ctx, file.ID, constants.FileStatusDuplicate, dest, ""); err != nil {
			return Outcome{Status: constants.JobStatusError, Err: err}
		}
		return Outcome{Status: constants.JobStatusDuplicate}
	default:
		return p.quarantine(ctx, job, file, errors.New("no documents extracted"))
	}
}

func (p *Processor) quarantine(ctx context.Context, job *entity.Job, file *entity.SourceFile, cause error) Outcome {
	dest, err := ingest.SafeMove(job.Path, p.cfg.Dirs.Quarantine)
	if err != nil {
		return Outcome{Status: constants.JobStatusError, Err: err}
	}
	if err := p.files.Finish(ctx, file.ID, constants.FileStatusQuarantine, dest, cause.Error()); err != nil {
		return Outcome{Status: constants.JobStatusError, Err: err}
	}
	p.logger.Warn("file quarantined", "path", job.Path, "moved_to", dest, "cause", cause)
	return Outcome{Status: constants.JobStatusQuarantine, Err: cause}
}

// tryPaymentQR looks for a QR Platba code on the group's pages and backfills
// bank account, total and currency from its SPAYD payload. The augmentation
// is recorded as a reason and nudges confidence up, never down.
func (p *Processor) tryPaymentQR(src pdf.Source, g *Group, log *slog.Logger) {
	for page := g.PageFrom; page <= g.PageTo; page++ {
		img, err := src.Render(page-1, p.cfg.FallbackDPI)
		if err != nil {
			log.Warn("page render for qr scan failed", "page", page, "error", err)
			continue
		}
		payload, ok := p.decodeQR(img)
		if !ok {
			continue
		}
		pay, ok := spayd.Parse(payload)
		if !ok {
			continue
		}

		changed := false
		if g.Extracted.BankAccount == "" && pay.Account != "" {
			g.Extracted.BankAccount = pay.Account
			changed = true
		}
		if g.Extracted.TotalWithVAT == nil && pay.Amount != nil {
			amount := *pay.Amount
			g.Extracted.TotalWithVAT = &amount
			changed = true
		}
		if (g.Extracted.Currency == "" || g.Extracted.Currency == "CZK") && pay.Currency != "" {
			g.Extracted.Currency = pay.Currency
			changed = true
		}
		if changed {
			g.Extracted.ReviewReasons = dedupeReasons(
				append(g.Extracted.ReviewReasons, extract.ReasonQRAugmented))
			g.Confidence = min(1, g.Confidence+0.05)
			g.Extracted.Confidence = min(1, g.Extracted.Confidence+0.05)
			log.Info("payment qr augmented extraction", "page", page,
				"account", pay.Account != "", "amount", pay.Amount != nil)
		}
		return
	}
}

// tryFallback consults the LLM extractor and merges its answer conservatively:
// blanks are filled, items are replaced only when offline extraction found
// none or the fallback found strictly more. Reconciliation is re-run over the
// result; the fallback never bypasses it.
func (p *Processor) tryFallback(ctx context.Context, src pdf.Source, doc *entity.Document, log *slog.Logger) {
	images, err := RenderPNGs(src, p.cfg.FallbackDPI, p.cfg.FallbackMaxPages)
	if err != nil {
		log.Warn("fallback image rendering failed", "error", err)
		images = nil
	}
	fields, err := p.fallback.Extract(ctx, doc.FullText, images)
	if err != nil {
		log.Warn("fallback extraction failed", "error", err)
		return
	}
	if fields == nil {
		return
	}

	changed := false
	if doc.SupplierICO == "" && fields.SupplierICO != "" {
		doc.SupplierICO = fields.SupplierICO
		changed = true
	}
	if doc.DocNumber == "" && fields.DocNumber != "" {
		doc.DocNumber = fields.DocNumber
		changed = true
	}
	if doc.IssueDate == nil && fields.IssueDate != nil {
		doc.IssueDate = fields.IssueDate
		changed = true
	}
	if doc.TotalWithVAT == nil && fields.TotalWithVAT != nil {
		doc.TotalWithVAT = fields.TotalWithVAT
		changed = true
	}
	if doc.Currency == "" && fields.Currency != "" {
		doc.Currency = fields.Currency
	}
	if len(fields.Items) > len(doc.Items) {
		items := make([]entity.LineItem, 0, len(fields.Items))
		for i, it := range fields.Items {
			rate := it.VATRate
			if rate == 0 && it.LineGross != nil {
				rate = 21
			}
			items = append(items, vat.DeriveItem(i+1, extract.Item{
				Name:      it.Name,
				Quantity:  it.Quantity,
				LineGross: it.LineGross,
				VATRate:   rate,
			}))
		}
		doc.Items = items
		changed = true
	}
	if !changed {
		return
	}

	doc.Method = constants.MethodFallback
	totals := vat.ComputeTotals(doc.Items, doc.TotalWithVAT)
	if len(doc.Items) > 0 {
		net, vatAmt := totals.Net, totals.VAT
		doc.TotalWithoutVAT = &net
		doc.TotalVATAmount = &vatAmt
		doc.VATBreakdown = totals.Breakdown
	}
	if !totals.Unverifiable && !totals.Reconciled {
		doc.RequiresReview = true
		doc.ReviewReasons = dedupeReasons(append(doc.ReviewReasons, extract.ReasonSumMismatch))
	}
	log.Info("fallback extraction merged", "items", len(doc.Items))
}

// enrich resolves the supplier against the registry and returns the supplier
// name for the full-text index. Registry failures force review but never stop
// persistence.
func (p *Processor) enrich(ctx context.Context, doc *entity.Document, log *slog.Logger) string {
	// self-healing: no ICO on an invoice, but exactly one text candidate
	// validates against the registry
	if doc.SupplierICO == "" && p.registry != nil && doc.DocType == constants.DocTypeInvoice {
		if ico := p.selfHealICO(ctx, doc.FullText, log); ico != "" {
			doc.SupplierICO = ico
			doc.ReviewReasons = dedupeReasons(append(doc.ReviewReasons, extract.ReasonSelfHealedICO))
		}
	}
	if doc.SupplierICO == "" {
		return ""
	}

	nameGuess := extract.GuessSupplierName(doc.FullText)
	if extract.IsPseudoICO(doc.SupplierICO) {
		id, err := p.suppliers.UpsertLocal(ctx, &entity.Supplier{
			ICO: doc.SupplierICO, ICONorm: doc.SupplierICO, Name: nameGuess,
		})
		if err != nil {
			log.Warn("local supplier upsert failed", "error", err)
			return nameGuess
		}
		doc.SupplierID = &id
		return nameGuess
	}

	if p.registry == nil {
		return nameGuess
	}
	sup, err := p.registry.Resolve(ctx, doc.SupplierICO)
	if err != nil {
		log.Warn("registry lookup failed", "ico", doc.SupplierICO, "error", err)
		doc.RequiresReview = true
		doc.ReviewReasons = dedupeReasons(append(doc.ReviewReasons, extract.ReasonRegistryFailed))
		if norm, ok := ares.NormalizeICO(doc.SupplierICO); ok {
			if id, uerr := p.suppliers.UpsertLocal(ctx, &entity.Supplier{
				ICO: doc.SupplierICO, ICONorm: norm, Name: nameGuess,
			}); uerr == nil {
				doc.SupplierID = &id
			}
		}
		return nameGuess
	}

	id, err := p.suppliers.UpsertFromRegistry(ctx, &sup)
	if err != nil {
		log.Warn("supplier upsert failed", "error", err)
		return sup.Name
	}
	doc.SupplierID = &id
	return sup.Name
}

func (p *Processor) selfHealICO(ctx context.Context, text string, log *slog.Logger) string {
	candidates := ares.CandidateICOs(text)
	if len(candidates) == 0 || len(candidates) > 5 {
		return ""
	}
	var valid []string
	for _, c := range candidates {
		if _, err := p.registry.Resolve(ctx, c); err == nil {
			valid = append(valid, c)
		}
	}
	if len(valid) == 1 {
		log.Info("supplier id recovered from text", "ico", valid[0])
		return valid[0]
	}
	return ""
}

func auditsForGroup(pages []PageText, from, to int) []entity.PageAudit {
	var out []entity.PageAudit
	for _, p := range pages {
		if p.No >= from && p.No <= to {
			out = append(out, p.Audit)
		}
	}
	return out
}

