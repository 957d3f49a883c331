package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/keypilot/keypilot-api/internal/domain/tracking"
	"go.uber.org/zap"
)

type TrackingRepository struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

func NewTrackingRepository(db *pgxpool.Pool, logger *zap.Logger) *TrackingRepository {
	return &TrackingRepository{
		db:     db,
		logger: logger.Named("TrackingRepository"),
	}
}

var _ tracking.Repository = (*TrackingRepository)(nil)

func (r *TrackingRepository) InsertActivation(ctx context.Context, rec *tracking.Activation) (int64, error) {
	query := `
        INSERT INTO activations (license_id, ip_address, hwid, user_agent, country, city, activated_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7)
        RETURNING id
    `
	var insertedID int64
	err := r.db.QueryRow(ctx, query,
		rec.LicenseID,
		rec.Meta.IPAddress,
		rec.Meta.Fingerprint,
		rec.Meta.UserAgent,
		rec.Meta.Country,
		rec.Meta.City,
		rec.ActivatedAt,
	).Scan(&insertedID)
	if err != nil {
		r.logger.Error("Failed to insert activation record", zap.Int64("license_id", rec.LicenseID), zap.Error(err))
		return 0, fmt.Errorf("database error inserting activation: %w", err)
	}

	return insertedID, nil
}

func (r *TrackingRepository) InsertFailedAttempt(ctx context.Context, rec *tracking.FailedAttempt) (int64, error) {
	query := `
        INSERT INTO failed_attempts (app_id, attempted_key, ip_address, hwid, user_agent, country, city, reason, attempted_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
        RETURNING id
    `

	// No owning app could be resolved for some rejections.
	var appID sql.NullInt64
	if rec.AppID != 0 {
		appID = sql.NullInt64{Int64: rec.AppID, Valid: true}
	}

	var insertedID int64
	err := r.db.QueryRow(ctx, query,
		appID,
		rec.AttemptedKey,
		rec.Meta.IPAddress,
		rec.Meta.Fingerprint,
		rec.Meta.UserAgent,
		rec.Meta.Country,
		rec.Meta.City,
		rec.Reason,
		rec.AttemptedAt,
	).Scan(&insertedID)
	if err != nil {
		r.logger.Error("Failed to insert failed-attempt record",
			zap.Int64("app_id", rec.AppID),
			zap.String("reason", rec.Reason),
			zap.Error(err),
		)
		return 0, fmt.Errorf("database error inserting failed attempt: %w", err)
	}

	return insertedID, nil
}

func (r *TrackingRepository) ListActivations(ctx context.Context, appID int64) ([]*tracking.Activation, error) {
	query := `
        SELECT a.id, a.license_id, a.ip_address, a.hwid, a.user_agent, a.country, a.city, a.activated_at
        FROM activations a
        JOIN licenses l ON a.license_id = l.id
    `
	args := []interface{}{}
	if appID != 0 {
		query += ` WHERE l.app_id = $1`
		args = append(args, appID)
	}
	query += ` ORDER BY a.activated_at DESC`

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to query activations", zap.Int64("app_id", appID), zap.Error(err))
		return nil, fmt.Errorf("database error on list activations: %w", err)
	}
	defer rows.Close()

	records := make([]*tracking.Activation, 0)
	for rows.Next() {
		var rec tracking.Activation
		err := rows.Scan(
			&rec.ID,
			&rec.LicenseID,
			&rec.Meta.IPAddress,
			&rec.Meta.Fingerprint,
			&rec.Meta.UserAgent,
			&rec.Meta.Country,
			&rec.Meta.City,
			&rec.ActivatedAt,
		)
		if err != nil {
			r.logger.Error("Failed to scan activation row", zap.Error(err))
			return nil, fmt.Errorf("database scan error during list activations: %w", err)
		}
		records = append(records, &rec)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("database iteration error on list activations: %w", err)
	}

	return records, nil
}

func (r *TrackingRepository) ListFailedAttempts(ctx context.Context, appID int64) ([]*tracking.FailedAttempt, error) {
	query := `
        SELECT id, app_id, attempted_key, ip_address, hwid, user_agent, country, city, reason, attempted_at
        FROM failed_attempts
    `
	args := []interface{}{}
	if appID != 0 {
		query += ` WHERE app_id = $1`
		args = append(args, appID)
	}
	query += ` ORDER BY attempted_at DESC`

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to query failed attempts", zap.Int64("app_id", appID), zap.Error(err))
		return nil, fmt.Errorf("database error on list failed attempts: %w", err)
	}
	defer rows.Close()

	records := make([]*tracking.FailedAttempt, 0)
	for rows.Next() {
		var rec tracking.FailedAttempt
		var recAppID sql.NullInt64
		err := rows.Scan(
			&rec.ID,
			&recAppID,
			&rec.AttemptedKey,
			&rec.Meta.IPAddress,
			&rec.Meta.Fingerprint,
			&rec.Meta.UserAgent,
			&rec.Meta.Country,
			&rec.Meta.City,
			&rec.Reason,
			&rec.AttemptedAt,
		)
		if err != nil {
			r.logger.Error("Failed to scan failed-attempt row", zap.Error(err))
			return nil, fmt.Errorf("database scan error during list failed attempts: %w", err)
		}
		if recAppID.Valid {
			rec.AppID = recAppID.Int64
		}
		records = append(records, &rec)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("database iteration error on list failed attempts: %w", err)
	}

	return records, nil
}
