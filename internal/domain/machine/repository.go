package machine

import (
	"context"
	"errors"

	"github.com/keypilot/keypilot-api/internal/domain/license"
)

var (
	ErrNotFound = errors.New("machine binding not found")

	// ErrBindConflict means the license was not in the expected status
	// when BindAndTransition ran, or a binding already exists. The
	// caller lost the first-activation race and must re-read state.
	ErrBindConflict = errors.New("license bind conflict")
)

type Repository interface {
	FindByLicenseID(ctx context.Context, licenseID int64) (*Machine, error)

	// BindAndTransition creates the binding and flips the license
	// status in a single atomic step. Exactly one caller can win this
	// for a given license; every other concurrent caller gets
	// ErrBindConflict.
	BindAndTransition(ctx context.Context, licenseID int64, fingerprint string, from, to license.LicenseStatus) (*Machine, error)
}
