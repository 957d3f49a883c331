package tracking

import "context"

type Repository interface {
	InsertActivation(ctx context.Context, rec *Activation) (int64, error)
	InsertFailedAttempt(ctx context.Context, rec *FailedAttempt) (int64, error)

	// appID == 0 means no filter.
	ListActivations(ctx context.Context, appID int64) ([]*Activation, error)
	ListFailedAttempts(ctx context.Context, appID int64) ([]*FailedAttempt, error)
}
