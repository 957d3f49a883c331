// Package activation holds the license activation engine: the status
// state machine, the atomic bind-on-first-use step and the lazy trial
// expiration check. The engine is stateless and safe for concurrent
// use; all shared state lives behind the repository interfaces.
package activation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/keypilot/keypilot-api/internal/domain/license"
	"github.com/keypilot/keypilot-api/internal/domain/machine"
	"github.com/keypilot/keypilot-api/internal/domain/tracking"
	"github.com/keypilot/keypilot-api/internal/fingerprint"
	"github.com/keypilot/keypilot-api/internal/ierr"
	"github.com/keypilot/keypilot-api/internal/metrics"
	"github.com/keypilot/keypilot-api/internal/telemetry"
	"go.uber.org/zap"
)

// IdentityAssertion is the structured result of a successful
// activation, later signed into a transport token. ExpiresAt is set
// only for trial licenses and refers to the license term, not the
// token lifetime.
type IdentityAssertion struct {
	LicenseID   int64
	AppID       int64
	LicenseType license.LicenseType
	ExpiresAt   *time.Time
	Fingerprint string
}

// Request carries one activation attempt. Meta.Fingerprint is filled
// in by the engine after normalization; callers must not set it.
type Request struct {
	AppID          int64
	LicenseKey     string
	RawFingerprint string
	Meta           tracking.ClientMeta
}

type Engine struct {
	licenses license.Repository
	machines machine.Repository
	recorder telemetry.Recorder
	logger   *zap.Logger
	now      func() time.Time
}

func NewEngine(licenses license.Repository, machines machine.Repository, recorder telemetry.Recorder, logger *zap.Logger) *Engine {
	return &Engine{
		licenses: licenses,
		machines: machines,
		recorder: recorder,
		logger:   logger.Named("ActivationEngine"),
		now:      time.Now,
	}
}

// Activate runs the decision procedure for one license key and
// fingerprint. Expected rejections come back as *Error; storage
// problems come back wrapped in ierr.ErrStorageUnavailable.
func (e *Engine) Activate(ctx context.Context, req Request) (*IdentityAssertion, error) {
	hash, err := fingerprint.Normalize(req.RawFingerprint)
	if err != nil {
		// Not attributable to any app: no telemetry, no storage access.
		return nil, e.rejectSilent(KindInvalidFingerprint)
	}

	if req.LicenseKey == "" || req.AppID <= 0 {
		return nil, e.rejectSilent(KindMissingFields)
	}

	meta := req.Meta
	meta.Fingerprint = hash

	lic, err := e.licenses.FindByKey(ctx, req.LicenseKey)
	if errors.Is(err, license.ErrNotFound) {
		return nil, e.reject(ctx, req.AppID, req.LicenseKey, meta, KindNotFound, tracking.ReasonNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: finding license by key: %v", ierr.ErrStorageUnavailable, err)
	}

	if lic.AppID != req.AppID {
		e.logger.Warn("Activation attempt against foreign app",
			zap.Int64("license_id", lic.ID),
			zap.Int64("owning_app_id", lic.AppID),
			zap.Int64("requesting_app_id", req.AppID),
		)
		return nil, e.reject(ctx, lic.AppID, req.LicenseKey, meta, KindAppMismatch, tracking.ReasonAppMismatch)
	}

	// Lazy trial expiration: evaluated only while the license is still
	// active. An already-expired license short-circuits in the status
	// dispatch below without recomputing the window.
	if lic.Type == license.TypeTrial && lic.Status == license.StatusActive {
		if expiresAt, ok := lic.TrialExpiresAt(); ok && e.now().After(expiresAt) {
			applied, err := e.licenses.TransitionStatus(ctx, lic.ID, license.StatusActive, license.StatusExpired)
			if err != nil {
				return nil, fmt.Errorf("%w: expiring trial license: %v", ierr.ErrStorageUnavailable, err)
			}
			if applied {
				e.logger.Info("Trial license expired lazily",
					zap.Int64("license_id", lic.ID),
					zap.Time("expired_at", expiresAt),
				)
			}
			return nil, e.reject(ctx, lic.AppID, req.LicenseKey, meta, KindExpired, tracking.ReasonExpired)
		}
	}

	switch lic.Status {
	case license.StatusActive:
		return e.activateFresh(ctx, lic, hash, req.LicenseKey, meta)

	case license.StatusUsed:
		return e.settleBound(ctx, lic, hash, req.LicenseKey, meta)

	case license.StatusExpired:
		return nil, e.reject(ctx, lic.AppID, req.LicenseKey, meta, KindExpired, tracking.ReasonExpired)

	case license.StatusRevoked:
		return nil, e.reject(ctx, lic.AppID, req.LicenseKey, meta, KindRevoked, tracking.ReasonRevoked)

	default:
		return nil, fmt.Errorf("%w: license %d has unknown status %q", ierr.ErrInternalServer, lic.ID, lic.Status)
	}
}

// activateFresh handles the active branch: bind on first use, or judge
// an existing binding.
func (e *Engine) activateFresh(ctx context.Context, lic *license.License, hash, attemptedKey string, meta tracking.ClientMeta) (*IdentityAssertion, error) {
	bound, err := e.machines.FindByLicenseID(ctx, lic.ID)
	switch {
	case errors.Is(err, machine.ErrNotFound):
		_, err := e.machines.BindAndTransition(ctx, lic.ID, hash, license.StatusActive, license.StatusUsed)
		if errors.Is(err, machine.ErrBindConflict) {
			// Lost the first-activation race. The winner has completed
			// active->used; settle against the post-transition state.
			return e.settleBound(ctx, lic, hash, attemptedKey, meta)
		}
		if err != nil {
			return nil, fmt.Errorf("%w: binding license to machine: %v", ierr.ErrStorageUnavailable, err)
		}
		e.logger.Info("License bound to machine on first activation",
			zap.Int64("license_id", lic.ID),
			zap.String("fingerprint", hash),
		)
		return e.succeed(ctx, lic, hash, meta), nil

	case err != nil:
		return nil, fmt.Errorf("%w: fetching machine binding: %v", ierr.ErrStorageUnavailable, err)

	case bound.Fingerprint == hash:
		// Defensive idempotency: a binding exists for this fingerprint
		// but the status flip was not observed. Make sure the license
		// ends up used and treat the call as a repeat activation.
		if _, err := e.licenses.TransitionStatus(ctx, lic.ID, license.StatusActive, license.StatusUsed); err != nil {
			return nil, fmt.Errorf("%w: settling license status: %v", ierr.ErrStorageUnavailable, err)
		}
		return e.succeed(ctx, lic, hash, meta), nil

	default:
		return nil, e.reject(ctx, lic.AppID, attemptedKey, meta, KindHwidMismatch, tracking.ReasonHwidMismatch)
	}
}

// settleBound handles the used branch: repeat activations from the
// bound machine succeed, everything else is rejected.
func (e *Engine) settleBound(ctx context.Context, lic *license.License, hash, attemptedKey string, meta tracking.ClientMeta) (*IdentityAssertion, error) {
	bound, err := e.machines.FindByLicenseID(ctx, lic.ID)
	if errors.Is(err, machine.ErrNotFound) {
		return nil, e.reject(ctx, lic.AppID, attemptedKey, meta, KindAlreadyBound, tracking.ReasonAlreadyUsed)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: fetching machine binding: %v", ierr.ErrStorageUnavailable, err)
	}

	if bound.Fingerprint == hash {
		return e.succeed(ctx, lic, hash, meta), nil
	}
	return nil, e.reject(ctx, lic.AppID, attemptedKey, meta, KindAlreadyBound, tracking.ReasonAlreadyUsed)
}

func (e *Engine) succeed(ctx context.Context, lic *license.License, hash string, meta tracking.ClientMeta) *IdentityAssertion {
	assertion := &IdentityAssertion{
		LicenseID:   lic.ID,
		AppID:       lic.AppID,
		LicenseType: lic.Type,
		Fingerprint: hash,
	}
	if expiresAt, ok := lic.TrialExpiresAt(); ok {
		assertion.ExpiresAt = &expiresAt
	}

	e.recorder.RecordActivation(ctx, &tracking.Activation{
		LicenseID:   lic.ID,
		Meta:        meta,
		ActivatedAt: e.now().UTC(),
	})
	metrics.ActivationsTotal.WithLabelValues("success").Inc()

	e.logger.Info("License activated",
		zap.Int64("license_id", lic.ID),
		zap.Int64("app_id", lic.AppID),
		zap.String("type", string(lic.Type)),
	)
	return assertion
}

// reject records the failed attempt attributed to appID and returns
// the tagged rejection.
func (e *Engine) reject(ctx context.Context, appID int64, attemptedKey string, meta tracking.ClientMeta, kind Kind, reason string) error {
	e.recorder.RecordFailedAttempt(ctx, &tracking.FailedAttempt{
		AppID:        appID,
		AttemptedKey: attemptedKey,
		Meta:         meta,
		Reason:       reason,
		AttemptedAt:  e.now().UTC(),
	})
	metrics.ActivationsTotal.WithLabelValues(reason).Inc()

	e.logger.Info("Activation rejected",
		zap.Int64("app_id", appID),
		zap.String("reason", reason),
	)
	return &Error{Kind: kind, Reason: reason}
}

// rejectSilent covers rejections with insufficient data to attribute:
// no telemetry, no storage writes.
func (e *Engine) rejectSilent(kind Kind) error {
	metrics.ActivationsTotal.WithLabelValues(kind.String()).Inc()
	return &Error{Kind: kind}
}
