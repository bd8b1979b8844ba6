package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/karelmartinek-a11y/kajovospend/internal/entity"
)

type SupplierRepository interface {
	FindByICONorm(ctx context.Context, icoNorm string) (*entity.Supplier, error)
	// UpsertFromRegistry overwrites the record with registry data.
	UpsertFromRegistry(ctx context.Context, s *entity.Supplier) (int64, error)
	// UpsertLocal inserts a best-effort record. An existing row keeps its
	// fields; only an empty name is filled in.
	UpsertLocal(ctx context.Context, s *entity.Supplier) (int64, error)
	// Merge reassigns documents from one supplier to another, then deletes
	// the source row.
	Merge(ctx context.Context, fromID, intoID int64) error
}

type supplierRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

func NewSupplierRepository(db *sql.DB, logger *slog.Logger) SupplierRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &supplierRepository{db: db, logger: logger}
}

func (r *supplierRepository) FindByICONorm(ctx context.Context, icoNorm string) (*entity.Supplier, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, ico, ico_norm, name, dic, legal_form, address, street, street_no,
		       city, zip_code, is_vat_payer, registry_sync
		FROM suppliers WHERE ico_norm = ?`, icoNorm)
	var s entity.Supplier
	err := row.Scan(&s.ID, &s.ICO, &s.ICONorm, &s.Name, &s.DIC, &s.LegalForm,
		&s.Address, &s.Street, &s.StreetNo, &s.City, &s.ZipCode, &s.IsVATPayer, &s.RegistrySync)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning supplier: %w", err)
	}
	return &s, nil
}

func (r *supplierRepository) UpsertFromRegistry(ctx context.Context, s *entity.Supplier) (int64, error) {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO suppliers (ico, ico_norm, name, dic, legal_form, address, street, street_no, city, zip_code, is_vat_payer, registry_sync)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (ico_norm) DO UPDATE SET
			ico = excluded.ico,
			name = excluded.name,
			dic = excluded.dic,
			legal_form = excluded.legal_form,
			address = excluded.address,
			street = excluded.street,
			street_no = excluded.street_no,
			city = excluded.city,
			zip_code = excluded.zip_code,
			is_vat_payer = excluded.is_vat_payer,
			registry_sync = excluded.registry_sync`,
		s.ICO, s.ICONorm, s.Name, s.DIC, s.LegalForm, s.Address, s.Street,
		s.StreetNo, s.City, s.ZipCode, s.IsVATPayer, s.RegistrySync)
	if err != nil {
		return 0, fmt.Errorf("upserting supplier %s: %w", s.ICONorm, err)
	}
	existing, err := r.FindByICONorm(ctx, s.ICONorm)
	if err != nil {
		return 0, err
	}
	return existing.ID, nil
}

func (r *supplierRepository) UpsertLocal(ctx context.Context, s *entity.Supplier) (int64, error) {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO suppliers (ico, ico_norm, name)
		VALUES (?, ?, ?)
		ON CONFLICT (ico_norm) DO UPDATE SET
			name = CASE WHEN suppliers.name = '' THEN excluded.name ELSE suppliers.name END`,
		s.ICO, s.ICONorm, s.Name)
	if err != nil {
		return 0, fmt.Errorf("upserting local supplier %s: %w", s.ICONorm, err)
	}
	existing, err := r.FindByICONorm(ctx, s.ICONorm)
	if err != nil {
		return 0, err
	}
	return existing.ID, nil
}

func (r *supplierRepository) Merge(ctx context.Context, fromID, intoID int64) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting supplier merge: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`UPDATE documents SET supplier_id = ? WHERE supplier_id = ?`, intoID, fromID); err != nil {
		return fmt.Errorf("reassigning documents: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM suppliers WHERE id = ?`, fromID); err != nil {
		return fmt.Errorf("deleting merged supplier: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing supplier merge: %w", err)
	}
	r.logger.Info("suppliers merged", "from_id", fromID, "into_id", intoID)
	return nil
}
