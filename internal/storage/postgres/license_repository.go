package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/keypilot/keypilot-api/internal/domain/license"
	"go.uber.org/zap"
)

type LicenseRepository struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

func NewLicenseRepository(db *pgxpool.Pool, logger *zap.Logger) *LicenseRepository {
	return &LicenseRepository{
		db:     db,
		logger: logger.Named("LicenseRepository"),
	}
}

var _ license.Repository = (*LicenseRepository)(nil)

// duration_days is part of every projection: the activation engine
// needs it on any license it evaluates, trial or not.
const licenseColumns = `id, app_id, license_key, type, duration_days, status, created_at`

func (r *LicenseRepository) Create(ctx context.Context, lic *license.License) (int64, error) {
	query := `
        INSERT INTO licenses (app_id, license_key, type, duration_days, status)
        VALUES ($1, $2, $3, $4, $5)
        RETURNING id
    `
	var insertedID int64

	err := r.db.QueryRow(ctx, query,
		lic.AppID,
		lic.LicenseKey,
		lic.Type,
		lic.DurationDays,
		lic.Status,
	).Scan(&insertedID)

	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			r.logger.Warn("Attempted to create license with duplicate key",
				zap.String("license_key", lic.LicenseKey),
				zap.String("constraint", pgErr.ConstraintName),
			)
			return 0, fmt.Errorf("license key '%s' already exists", lic.LicenseKey)
		}

		r.logger.Error("Failed to create license in database", zap.Error(err))
		return 0, fmt.Errorf("database error on create license: %w", err)
	}

	r.logger.Info("License created successfully", zap.Int64("id", insertedID))
	return insertedID, nil
}

func (r *LicenseRepository) FindByID(ctx context.Context, id int64) (*license.License, error) {
	query := `SELECT ` + licenseColumns + ` FROM licenses WHERE id = $1`
	return r.scanLicense(r.db.QueryRow(ctx, query, id))
}

func (r *LicenseRepository) FindByKey(ctx context.Context, key string) (*license.License, error) {
	query := `SELECT ` + licenseColumns + ` FROM licenses WHERE license_key = $1`
	return r.scanLicense(r.db.QueryRow(ctx, query, key))
}

func (r *LicenseRepository) ListByApp(ctx context.Context, appID int64) ([]*license.License, error) {
	query := `SELECT ` + licenseColumns + ` FROM licenses WHERE app_id = $1 ORDER BY created_at DESC`

	rows, err := r.db.Query(ctx, query, appID)
	if err != nil {
		r.logger.Error("Failed to query licenses by app", zap.Int64("app_id", appID), zap.Error(err))
		return nil, fmt.Errorf("database error on list licenses: %w", err)
	}
	defer rows.Close()

	licenses := make([]*license.License, 0)
	for rows.Next() {
		var lic license.License
		err := rows.Scan(
			&lic.ID,
			&lic.AppID,
			&lic.LicenseKey,
			&lic.Type,
			&lic.DurationDays,
			&lic.Status,
			&lic.CreatedAt,
		)
		if err != nil {
			r.logger.Error("Failed to scan license row during list", zap.Error(err))
			return nil, fmt.Errorf("database scan error during list: %w", err)
		}
		licenses = append(licenses, &lic)
	}

	if err = rows.Err(); err != nil {
		r.logger.Error("Error iterating license rows", zap.Error(err))
		return nil, fmt.Errorf("database iteration error on list licenses: %w", err)
	}

	return licenses, nil
}

// TransitionStatus is the compare-and-set primitive: the UPDATE only
// matches while the license still holds the expected status, so a
// concurrent transition makes this a no-op rather than an overwrite.
func (r *LicenseRepository) TransitionStatus(ctx context.Context, id int64, from, to license.LicenseStatus) (bool, error) {
	query := `UPDATE licenses SET status = $1 WHERE id = $2 AND status = $3`

	cmdTag, err := r.db.Exec(ctx, query, to, id, from)
	if err != nil {
		r.logger.Error("Failed to transition license status",
			zap.Int64("id", id),
			zap.String("from", string(from)),
			zap.String("to", string(to)),
			zap.Error(err),
		)
		return false, fmt.Errorf("database error on status transition: %w", err)
	}

	applied := cmdTag.RowsAffected() > 0
	if applied {
		r.logger.Info("License status transitioned",
			zap.Int64("id", id),
			zap.String("from", string(from)),
			zap.String("to", string(to)),
		)
	}
	return applied, nil
}

func (r *LicenseRepository) scanLicense(row pgx.Row) (*license.License, error) {
	var lic license.License
	err := row.Scan(
		&lic.ID,
		&lic.AppID,
		&lic.LicenseKey,
		&lic.Type,
		&lic.DurationDays,
		&lic.Status,
		&lic.CreatedAt,
	)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, license.ErrNotFound
		}

		r.logger.Error("Failed to scan license row", zap.Error(err))
		return nil, fmt.Errorf("database scan error: %w", err)
	}

	return &lic, nil
}
