package app

import (
	"context"
	"errors"
)

var ErrNotFound = errors.New("app not found")

type Repository interface {
	Create(ctx context.Context, a *App) (int64, error)
	FindByID(ctx context.Context, id int64) (*App, error)
	List(ctx context.Context) ([]*App, error)
}
