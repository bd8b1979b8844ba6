package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/karelmartinek-a11y/kajovospend/constants"
	"github.com/karelmartinek-a11y/kajovospend/internal/entity"
)

type DocumentRepository interface {
	// Persist writes the document, its items, its page audit rows and the
	// full-text index entry in one transaction.
	Persist(ctx context.Context, d *entity.Document, audits []entity.PageAudit, supplierName string) (int64, error)
	// FindByIdentity locates an existing document with the same business
	// identity, for duplicate detection across files.
	FindByIdentity(ctx context.Context, key entity.IdentityKey) (*entity.Document, error)
	// ListForExport returns documents with items, optionally date-bounded.
	ListForExport(ctx context.Context, from, to *time.Time) ([]entity.Document, error)
	// Search queries the full-text index and returns matching document ids.
	Search(ctx context.Context, query string) ([]int64, error)
}

type documentRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

func NewDocumentRepository(db *sql.DB, logger *slog.Logger) DocumentRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &documentRepository{db: db, logger: logger}
}

func (r *documentRepository) Persist(ctx context.Context, d *entity.Document, audits []entity.PageAudit, supplierName string) (int64, error) {
	breakdown, err := json.Marshal(d.VATBreakdown)
	if err != nil {
		return 0, fmt.Errorf("marshaling vat breakdown: %w", err)
	}
	reasons, err := json.Marshal(d.ReviewReasons)
	if err != nil {
		return 0, fmt.Errorf("marshaling review reasons: %w", err)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("starting document tx: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		INSERT INTO documents (
			file_id, supplier_id, supplier_ico, doc_number, bank_account, issue_date,
			currency, total_with_vat, total_without_vat, total_vat_amount, vat_breakdown,
			doc_type, page_from, page_to, confidence, method, text_quality,
			requires_review, review_reasons, full_text
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		d.FileID, d.SupplierID, d.SupplierICO, d.DocNumber, d.BankAccount, d.IssueDate,
		d.Currency, d.TotalWithVAT, d.TotalWithoutVAT, d.TotalVATAmount, string(breakdown),
		string(d.DocType), d.PageFrom, d.PageTo, d.Confidence, string(d.Method), d.TextQuality,
		d.RequiresReview, string(reasons), fullTextOf(d))
	if err != nil {
		return 0, fmt.Errorf("inserting document: %w", err)
	}
	docID, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}

	for _, it := range d.Items {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO items (document_id, line_no, name, quantity, unit_net, unit_gross,
			                   line_net, line_gross, vat_rate, vat_amount, vat_code, item_code, ean)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			docID, it.LineNo, it.Name, it.Quantity, it.UnitNet, it.UnitGross,
			it.LineNet, it.LineGross, it.VATRate, it.VATAmount, it.VATCode, it.ItemCode, it.EAN); err != nil {
			return 0, fmt.Errorf("inserting item %d: %w", it.LineNo, err)
		}
	}

	for _, a := range audits {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO document_page_audit (document_id, file_id, page_no, chosen_mode,
			                                 chosen_score, embedded_score, ocr_score,
			                                 embedded_len, ocr_len, ocr_conf)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			docID, d.FileID, a.PageNo, a.ChosenMode, a.ChosenScore,
			a.EmbeddedScore, a.OCRScore, a.EmbeddedLen, a.OCRLen, a.OCRConf); err != nil {
			return 0, fmt.Errorf("inserting page audit %d: %w", a.PageNo, err)
		}
	}

	// full-text entry is rebuilt, never updated in place
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM documents_fts WHERE document_id = ?`, docID); err != nil {
		return 0, fmt.Errorf("clearing fts row: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO documents_fts (document_id, supplier_name, doc_number, content)
		VALUES (?, ?, ?, ?)`,
		docID, supplierName, d.DocNumber, fullTextOf(d)); err != nil {
		return 0, fmt.Errorf("inserting fts row: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("committing document: %w", err)
	}
	d.ID = docID
	return docID, nil
}

// fullTextOf joins item names for the searchable body. The fused page text is
// carried on the document before persisting.
func fullTextOf(d *entity.Document) string {
	text := d.FullText
	for _, it := range d.Items {
		text += "\n" + it.Name
	}
	return text
}

func (r *documentRepository) FindByIdentity(ctx context.Context, key entity.IdentityKey) (*entity.Document, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, file_id, supplier_ico, doc_number, issue_date, doc_type, requires_review
		FROM documents
		WHERE supplier_ico = ? AND doc_number = ? AND issue_date = ?
		LIMIT 1`,
		key.SupplierICO, key.DocNumber, key.IssueDate)
	var d entity.Document
	var docType string
	err := row.Scan(&d.ID, &d.FileID, &d.SupplierICO, &d.DocNumber, &d.IssueDate, &docType, &d.RequiresReview)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning document identity: %w", err)
	}
	d.DocType = constants.DocType(docType)
	return &d, nil
}

func (r *documentRepository) ListForExport(ctx context.Context, from, to *time.Time) ([]entity.Document, error) {
	q := `
		SELECT id, file_id, supplier_ico, doc_number, bank_account, issue_date, currency,
		       total_with_vat, total_without_vat, total_vat_amount, vat_breakdown,
		       doc_type, page_from, page_to, confidence, method, text_quality,
		       requires_review, review_reasons, created_at
		FROM documents WHERE 1=1`
	var args []any
	if from != nil {
		q += ` AND issue_date >= ?`
		args = append(args, *from)
	}
	if to != nil {
		q += ` AND issue_date <= ?`
		args = append(args, *to)
	}
	q += ` ORDER BY issue_date, id`

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("listing documents: %w", err)
	}
	defer rows.Close()

	var docs []entity.Document
	for rows.Next() {
		var d entity.Document
		var docType, method, breakdown, reasons string
		if err := rows.Scan(&d.ID, &d.FileID, &d.SupplierICO, &d.DocNumber, &d.BankAccount,
			&d.IssueDate, &d.Currency, &d.TotalWithVAT, &d.TotalWithoutVAT, &d.TotalVATAmount,
			&breakdown, &docType, &d.PageFrom, &d.PageTo, &d.Confidence, &method,
			&d.TextQuality, &d.RequiresReview, &reasons, &d.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning document: %w", err)
		}
		d.DocType = constants.DocType(docType)
		d.Method = constants.ExtractionMethod(method)
		_ = json.Unmarshal([]byte(breakdown), &d.VATBreakdown)
		_ = json.Unmarshal([]byte(reasons), &d.ReviewReasons)
		docs = append(docs, d)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range docs {
		items, err := r.listItems(ctx, docs[i].ID)
		if err != nil {
			return nil, err
		}
		docs[i].Items = items
	}
	return docs, nil
}

func (r *documentRepository) listItems(ctx context.Context, docID int64) ([]entity.LineItem, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, document_id, line_no, name, quantity, unit_net, unit_gross,
		       line_net, line_gross, vat_rate, vat_amount, vat_code, item_code, ean
		FROM items WHERE document_id = ? ORDER BY line_no`, docID)
	if err != nil {
		return nil, fmt.Errorf("listing items: %w", err)
	}
	defer rows.Close()

	var items []entity.LineItem
	for rows.Next() {
		var it entity.LineItem
		if err := rows.Scan(&it.ID, &it.DocumentID, &it.LineNo, &it.Name, &it.Quantity,
			&it.UnitNet, &it.UnitGross, &it.LineNet, &it.LineGross,
			&it.VATRate, &it.VATAmount, &it.VATCode, &it.ItemCode, &it.EAN); err != nil {
			return nil, fmt.Errorf("scanning item: %w", err)
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

func (r *documentRepository) Search(ctx context.Context, query string) ([]int64, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT document_id FROM documents_fts WHERE documents_fts MATCH ? ORDER BY rank`, query)
	if err != nil {
		return nil, fmt.Errorf("searching documents: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
