package export

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/karelmartinek-a11y/kajovospend/internal/repository"
)

// Service is a tiny façade over the document repository that produces XLSX
// bytes for exports.
type Service struct {
	documents repository.DocumentRepository
	logger    *slog.Logger
}

func NewService(documents repository.DocumentRepository, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{documents: documents, logger: logger}
}

// ExportDocumentsXLSX returns a workbook with one sheet of documents and one
// of line items, for the given issue-date window.
// If only from is provided -> from..today (inclusive).
// If only to is provided   -> beginning..to (inclusive).
// If neither is provided   -> all documents.
func (s *Service) ExportDocumentsXLSX(ctx context.Context, from, to *time.Time) ([]byte, error) {
	start := time.Now()

	var fromDate, toDate *time.Time
	if from != nil {
		f := time.Date(from.Year(), from.Month(), from.Day(), 0, 0, 0, 0, time.UTC)
		fromDate = &f
	}
	if to != nil {
		t := time.Date(to.Year(), to.Month(), to.Day(), 0, 0, 0, 0, time.UTC)
		toDate = &t
	}
	if fromDate != nil && toDate == nil {
		today := time.Now().UTC()
		t := time.Date(today.Year(), today.Month(), today.Day(), 0, 0, 0, 0, time.UTC)
		toDate = &t
	}

	docs, err := s.documents.ListForExport(ctx, fromDate, toDate)
	if err != nil {
		return nil, fmt.Errorf("query documents: %w", err)
	}

	f := excelize.NewFile()
	const docSheet = "Documents"
	const itemSheet = "Items"

	idx, err := f.NewSheet(docSheet)
	if err != nil {
		return nil, err
	}
	if _, err := f.NewSheet(itemSheet); err != nil {
		return nil, err
	}
	_ = f.DeleteSheet("Sheet1")
	f.SetActiveSheet(idx)

	docHeaders := []string{
		"Issue Date", "Doc Type", "Doc Number", "Supplier IČO", "Bank Account",
		"Currency", "Total w/o VAT", "VAT", "Total w/ VAT",
		"Confidence", "Method", "Review", "Review Reasons",
	}
	for i, h := range docHeaders {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(docSheet, cell, h)
	}

	itemHeaders := []string{
		"Doc Number", "Line", "Name", "Quantity",
		"Unit Net", "Unit Gross", "Line Net", "Line Gross",
		"VAT Rate", "VAT Amount", "VAT Code",
	}
	for i, h := range itemHeaders {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(itemSheet, cell, h)
	}

	writeCell := func(sheet string, col, row int, v any) {
		cell, _ := excelize.CoordinatesToCellName(col, row)
		_ = f.SetCellValue(sheet, cell, v)
	}

	docRow, itemRow := 2, 2
	itemCount := 0
	for _, d := range docs {
		if d.IssueDate != nil {
			writeCell(docSheet, 1, docRow, d.IssueDate.Format("2006-01-02"))
		} else {
			writeCell(docSheet, 1, docRow, "")
		}
		writeCell(docSheet, 2, docRow, string(d.DocType))
		writeCell(docSheet, 3, docRow, d.DocNumber)
		writeCell(docSheet, 4, docRow, d.SupplierICO)
		writeCell(docSheet, 5, docRow, d.BankAccount)
		writeCell(docSheet, 6, docRow, d.Currency)
		writeCell(docSheet, 7, docRow, deref(d.TotalWithoutVAT))
		writeCell(docSheet, 8, docRow, deref(d.TotalVATAmount))
		writeCell(docSheet, 9, docRow, deref(d.TotalWithVAT))
		writeCell(docSheet, 10, docRow, d.Confidence)
		writeCell(docSheet, 11, docRow, string(d.Method))
		writeCell(docSheet, 12, docRow, d.RequiresReview)
		writeCell(docSheet, 13, docRow, strings.Join(d.ReviewReasons, ", "))
		docRow++

		for _, it := range d.Items {
			writeCell(itemSheet, 1, itemRow, d.DocNumber)
			writeCell(itemSheet, 2, itemRow, it.LineNo)
			writeCell(itemSheet, 3, itemRow, it.Name)
			writeCell(itemSheet, 4, itemRow, it.Quantity)
			writeCell(itemSheet, 5, itemRow, it.UnitNet)
			writeCell(itemSheet, 6, itemRow, it.UnitGross)
			writeCell(itemSheet, 7, itemRow, it.LineNet)
			writeCell(itemSheet, 8, itemRow, it.LineGross)
			writeCell(itemSheet, 9, itemRow, it.VATRate)
			writeCell(itemSheet, 10, itemRow, it.VATAmount)
			writeCell(itemSheet, 11, itemRow, it.VATCode)
			itemRow++
			itemCount++
		}
	}

	_ = f.SetColWidth(docSheet, "A", "A", 12)
	_ = f.SetColWidth(docSheet, "B", "C", 18)
	_ = f.SetColWidth(docSheet, "D", "E", 16)
	_ = f.SetColWidth(docSheet, "G", "I", 14)
	_ = f.SetColWidth(docSheet, "M", "M", 48)
	_ = f.SetColWidth(itemSheet, "C", "C", 40)

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}

	s.logger.Info("export.xlsx.ok",
		"documents", len(docs),
		"items", itemCount,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return buf.Bytes(), nil
}

func deref(p *float64) any {
	if p == nil {
		return ""
	}
	return *p
}
