package memstorage

import (
	"context"
	"time"

	"github.com/keypilot/keypilot-api/internal/domain/app"
	"github.com/keypilot/keypilot-api/internal/domain/license"
	"github.com/keypilot/keypilot-api/internal/domain/machine"
	"github.com/keypilot/keypilot-api/internal/domain/tracking"
)

type AppRepo struct{ s *Store }

var _ app.Repository = (*AppRepo)(nil)

func (r *AppRepo) Create(ctx context.Context, a *app.App) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	cp := *a
	cp.ID = r.s.allocID()
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now().UTC()
	}
	r.s.apps[cp.ID] = &cp
	return cp.ID, nil
}

func (r *AppRepo) FindByID(ctx context.Context, id int64) (*app.App, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	a, ok := r.s.apps[id]
	if !ok {
		return nil, app.ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (r *AppRepo) List(ctx context.Context) ([]*app.App, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	out := make([]*app.App, 0, len(r.s.apps))
	for _, a := range r.s.apps {
		cp := *a
		out = append(out, &cp)
	}
	return out, nil
}

type LicenseRepo struct{ s *Store }

var _ license.Repository = (*LicenseRepo)(nil)

func (r *LicenseRepo) Create(ctx context.Context, lic *license.License) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	cp := *lic
	cp.ID = r.s.allocID()
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now().UTC()
	}
	r.s.licenses[cp.ID] = &cp
	r.s.licenseKeys[cp.LicenseKey] = cp.ID
	return cp.ID, nil
}

func (r *LicenseRepo) FindByID(ctx context.Context, id int64) (*license.License, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	lic, ok := r.s.licenses[id]
	if !ok {
		return nil, license.ErrNotFound
	}
	cp := *lic
	return &cp, nil
}

func (r *LicenseRepo) FindByKey(ctx context.Context, key string) (*license.License, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	id, ok := r.s.licenseKeys[key]
	if !ok {
		return nil, license.ErrNotFound
	}
	cp := *r.s.licenses[id]
	return &cp, nil
}

func (r *LicenseRepo) ListByApp(ctx context.Context, appID int64) ([]*license.License, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	out := make([]*license.License, 0)
	for _, lic := range r.s.licenses {
		if lic.AppID == appID {
			cp := *lic
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *LicenseRepo) TransitionStatus(ctx context.Context, id int64, from, to license.LicenseStatus) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	lic, ok := r.s.licenses[id]
	if !ok || lic.Status != from {
		return false, nil
	}
	lic.Status = to
	return true, nil
}

type MachineRepo struct{ s *Store }

var _ machine.Repository = (*MachineRepo)(nil)

func (r *MachineRepo) FindByLicenseID(ctx context.Context, licenseID int64) (*machine.Machine, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	m, ok := r.s.machines[licenseID]
	if !ok {
		return nil, machine.ErrNotFound
	}
	cp := *m
	return &cp, nil
}

func (r *MachineRepo) BindAndTransition(ctx context.Context, licenseID int64, fingerprint string, from, to license.LicenseStatus) (*machine.Machine, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	lic, ok := r.s.licenses[licenseID]
	if !ok || lic.Status != from {
		return nil, machine.ErrBindConflict
	}
	if _, exists := r.s.machines[licenseID]; exists {
		return nil, machine.ErrBindConflict
	}

	lic.Status = to
	m := &machine.Machine{
		ID:          r.s.allocID(),
		LicenseID:   licenseID,
		Fingerprint: fingerprint,
		ActivatedAt: time.Now().UTC(),
	}
	r.s.machines[licenseID] = m

	cp := *m
	return &cp, nil
}

type TrackingRepo struct{ s *Store }

var _ tracking.Repository = (*TrackingRepo)(nil)

func (r *TrackingRepo) InsertActivation(ctx context.Context, rec *tracking.Activation) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	cp := *rec
	cp.ID = r.s.allocID()
	r.s.activations = append(r.s.activations, &cp)
	return cp.ID, nil
}

func (r *TrackingRepo) InsertFailedAttempt(ctx context.Context, rec *tracking.FailedAttempt) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	cp := *rec
	cp.ID = r.s.allocID()
	r.s.failed = append(r.s.failed, &cp)
	return cp.ID, nil
}

func (r *TrackingRepo) ListActivations(ctx context.Context, appID int64) ([]*tracking.Activation, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	out := make([]*tracking.Activation, 0, len(r.s.activations))
	for _, rec := range r.s.activations {
		if appID != 0 {
			lic, ok := r.s.licenses[rec.LicenseID]
			if !ok || lic.AppID != appID {
				continue
			}
		}
		cp := *rec
		out = append(out, &cp)
	}
	return out, nil
}

func (r *TrackingRepo) ListFailedAttempts(ctx context.Context, appID int64) ([]*tracking.FailedAttempt, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	out := make([]*tracking.FailedAttempt, 0, len(r.s.failed))
	for _, rec := range r.s.failed {
		if appID != 0 && rec.AppID != appID {
			continue
		}
		cp := *rec
		out = append(out, &cp)
	}
	return out, nil
}
