package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/keypilot/keypilot-api/internal/domain/app"
	"go.uber.org/zap"
)

type AppRepository struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

func NewAppRepository(db *pgxpool.Pool, logger *zap.Logger) *AppRepository {
	return &AppRepository{
		db:     db,
		logger: logger.Named("AppRepository"),
	}
}

var _ app.Repository = (*AppRepository)(nil)

func (r *AppRepository) Create(ctx context.Context, a *app.App) (int64, error) {
	query := `
        INSERT INTO apps (name, app_secret)
        VALUES ($1, $2)
        RETURNING id
    `
	var insertedID int64
	if err := r.db.QueryRow(ctx, query, a.Name, a.Secret).Scan(&insertedID); err != nil {
		r.logger.Error("Failed to create app in database", zap.String("name", a.Name), zap.Error(err))
		return 0, fmt.Errorf("database error on create app: %w", err)
	}

	r.logger.Info("App created successfully", zap.Int64("id", insertedID), zap.String("name", a.Name))
	return insertedID, nil
}

func (r *AppRepository) FindByID(ctx context.Context, id int64) (*app.App, error) {
	query := `SELECT id, name, app_secret, created_at FROM apps WHERE id = $1`

	var a app.App
	err := r.db.QueryRow(ctx, query, id).Scan(&a.ID, &a.Name, &a.Secret, &a.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, app.ErrNotFound
		}
		r.logger.Error("Failed to find app by ID", zap.Int64("id", id), zap.Error(err))
		return nil, fmt.Errorf("database error finding app: %w", err)
	}

	return &a, nil
}

func (r *AppRepository) List(ctx context.Context) ([]*app.App, error) {
	query := `SELECT id, name, app_secret, created_at FROM apps ORDER BY created_at DESC`

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		r.logger.Error("Failed to query list of apps", zap.Error(err))
		return nil, fmt.Errorf("database error on list apps: %w", err)
	}
	defer rows.Close()

	apps := make([]*app.App, 0)
	for rows.Next() {
		var a app.App
		if err := rows.Scan(&a.ID, &a.Name, &a.Secret, &a.CreatedAt); err != nil {
			r.logger.Error("Failed to scan app row", zap.Error(err))
			return nil, fmt.Errorf("database scan error during list apps: %w", err)
		}
		apps = append(apps, &a)
	}

	if err = rows.Err(); err != nil {
		r.logger.Error("Error iterating app rows", zap.Error(err))
		return nil, fmt.Errorf("database iteration error on list apps: %w", err)
	}

	return apps, nil
}
