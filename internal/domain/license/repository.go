package license

import (
	"context"
	"errors"
)

var ErrNotFound = errors.New("license not found")

type Repository interface {
	Create(ctx context.Context, lic *License) (int64, error)
	FindByID(ctx context.Context, id int64) (*License, error)
	FindByKey(ctx context.Context, key string) (*License, error)
	ListByApp(ctx context.Context, appID int64) ([]*License, error)

	// TransitionStatus performs a compare-and-set on the license status.
	// It reports whether the transition was applied; false means the
	// license was not in the expected status (or does not exist).
	TransitionStatus(ctx context.Context, id int64, from, to LicenseStatus) (bool, error)
}
