package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"ontohub/internal/platform/models"
)

const packageColumns = `id, code, name, version, is_active, COALESCE(source_path, ''), created_at`

type PackageRepository struct {
	db *sql.DB
}

func NewPackageRepository(db *sql.DB) *PackageRepository {
	return &PackageRepository{db: db}
}

// Create stores a new version of the series pkg.Code. The version number is
// one past the highest existing version.
func (r *PackageRepository) Create(ctx context.Context, pkg *models.Package) error {
	pkg.Code = strings.TrimSpace(pkg.Code)
	pkg.ID = "pkg_" + uuid.New().String()
	pkg.CreatedAt = time.Now().UTC()
	pkg.IsActive = false

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var maxVersion sql.NullInt64
	if err := tx.QueryRowContext(ctx, `SELECT MAX(version) FROM ontology_packages WHERE code = ?`, pkg.Code).Scan(&maxVersion); err != nil {
		return err
	}
	pkg.Version = int(maxVersion.Int64) + 1

	_, err = tx.ExecContext(ctx, `
		INSERT INTO ontology_packages (id, code, name, version, is_active, source_path, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, pkg.ID, pkg.Code, pkg.Name, pkg.Version, pkg.IsActive, nullString(pkg.SourcePath), pkg.CreatedAt.UnixNano())
	if err != nil {
		if isUniqueViolation(err) {
			return ErrConflict
		}
		return fmt.Errorf("insert package: %w", err)
	}
	return tx.Commit()
}

func (r *PackageRepository) GetByID(ctx context.Context, id string) (*models.Package, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+packageColumns+` FROM ontology_packages WHERE id = ?`, id)
	return scanPackage(row)
}

func (r *PackageRepository) ListByCode(ctx context.Context, code string) ([]*models.Package, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+packageColumns+` FROM ontology_packages WHERE code = ? ORDER BY version DESC`, code)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var packages []*models.Package
	for rows.Next() {
		pkg, err := scanPackage(rows)
		if err != nil {
			return nil, err
		}
		packages = append(packages, pkg)
	}
	return packages, rows.Err()
}

// SetActive marks id as the only active version of its series.
func (r *PackageRepository) SetActive(ctx context.Context, code, id string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `UPDATE ontology_packages SET is_active = 0 WHERE code = ?`, code); err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx, `UPDATE ontology_packages SET is_active = 1 WHERE id = ? AND code = ?`, id, code)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return tx.Commit()
}

func (r *PackageRepository) Delete(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM ontology_packages WHERE id = ?`, id)
	return err
}

func (r *PackageRepository) DeleteSeries(ctx context.Context, code string) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM ontology_packages WHERE code = ?`, code)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func scanPackage(s scanner) (*models.Package, error) {
	var pkg models.Package
	var createdAt int64
	err := s.Scan(&pkg.ID, &pkg.Code, &pkg.Name, &pkg.Version, &pkg.IsActive, &pkg.SourcePath, &createdAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	pkg.CreatedAt = time.Unix(0, createdAt).UTC()
	return &pkg, nil
}
