package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/keypilot/keypilot-api/internal/domain/license"
	"github.com/keypilot/keypilot-api/internal/domain/machine"
	"go.uber.org/zap"
)

type MachineRepository struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

func NewMachineRepository(db *pgxpool.Pool, logger *zap.Logger) *MachineRepository {
	return &MachineRepository{
		db:     db,
		logger: logger.Named("MachineRepository"),
	}
}

var _ machine.Repository = (*MachineRepository)(nil)

func (r *MachineRepository) FindByLicenseID(ctx context.Context, licenseID int64) (*machine.Machine, error) {
	query := `
        SELECT id, license_id, hwid, activated_at
        FROM machines
        WHERE license_id = $1
    `

	var m machine.Machine
	err := r.db.QueryRow(ctx, query, licenseID).Scan(
		&m.ID,
		&m.LicenseID,
		&m.Fingerprint,
		&m.ActivatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, machine.ErrNotFound
		}
		r.logger.Error("Failed to find machine binding", zap.Int64("license_id", licenseID), zap.Error(err))
		return nil, fmt.Errorf("database error finding machine binding: %w", err)
	}

	return &m, nil
}

// BindAndTransition runs the status CAS and the binding insert in one
// transaction. A zero-row UPDATE means another activation already
// completed the transition; the unique constraint on license_id covers
// the remaining window against a binding inserted without the flip.
// Either way the caller gets ErrBindConflict and must re-read state.
func (r *MachineRepository) BindAndTransition(ctx context.Context, licenseID int64, fingerprint string, from, to license.LicenseStatus) (*machine.Machine, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("database error starting bind transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	cmdTag, err := tx.Exec(ctx,
		`UPDATE licenses SET status = $1 WHERE id = $2 AND status = $3`,
		to, licenseID, from,
	)
	if err != nil {
		r.logger.Error("Failed to transition license status during bind", zap.Int64("license_id", licenseID), zap.Error(err))
		return nil, fmt.Errorf("database error on bind transition: %w", err)
	}
	if cmdTag.RowsAffected() == 0 {
		r.logger.Debug("Bind lost status race", zap.Int64("license_id", licenseID), zap.String("expected_status", string(from)))
		return nil, machine.ErrBindConflict
	}

	var m machine.Machine
	err = tx.QueryRow(ctx,
		`INSERT INTO machines (license_id, hwid) VALUES ($1, $2)
         RETURNING id, license_id, hwid, activated_at`,
		licenseID, fingerprint,
	).Scan(&m.ID, &m.LicenseID, &m.Fingerprint, &m.ActivatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			r.logger.Warn("Binding already exists for license",
				zap.Int64("license_id", licenseID),
				zap.String("constraint", pgErr.ConstraintName),
			)
			return nil, machine.ErrBindConflict
		}
		r.logger.Error("Failed to insert machine binding", zap.Int64("license_id", licenseID), zap.Error(err))
		return nil, fmt.Errorf("database error inserting machine binding: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		r.logger.Error("Failed to commit bind transaction", zap.Int64("license_id", licenseID), zap.Error(err))
		return nil, fmt.Errorf("database error committing bind transaction: %w", err)
	}

	r.logger.Info("Machine bound to license", zap.Int64("license_id", licenseID), zap.Int64("machine_id", m.ID))
	return &m, nil
}
