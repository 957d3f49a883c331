// Package memstorage is an in-memory implementation of the storage
// contracts. The compare-and-set primitives run under one mutex, which
// makes it a valid (if coarse) model of the linearizable per-license
// transition the engine requires. Used in tests and local development.
package memstorage

import (
	"sync"

	"github.com/keypilot/keypilot-api/internal/domain/app"
	"github.com/keypilot/keypilot-api/internal/domain/license"
	"github.com/keypilot/keypilot-api/internal/domain/machine"
	"github.com/keypilot/keypilot-api/internal/domain/tracking"
)

type Store struct {
	mu sync.RWMutex

	apps        map[int64]*app.App
	licenses    map[int64]*license.License
	licenseKeys map[string]int64
	machines    map[int64]*machine.Machine // keyed by license id
	activations []*tracking.Activation
	failed      []*tracking.FailedAttempt

	nextID int64
}

func NewStore() *Store {
	return &Store{
		apps:        make(map[int64]*app.App),
		licenses:    make(map[int64]*license.License),
		licenseKeys: make(map[string]int64),
		machines:    make(map[int64]*machine.Machine),
	}
}

// Per-domain repository views over the shared state.

func (s *Store) Apps() *AppRepo         { return &AppRepo{s} }
func (s *Store) Licenses() *LicenseRepo { return &LicenseRepo{s} }
func (s *Store) Machines() *MachineRepo { return &MachineRepo{s} }
func (s *Store) Tracking() *TrackingRepo { return &TrackingRepo{s} }

// allocID must be called with mu held.
func (s *Store) allocID() int64 {
	s.nextID++
	return s.nextID
}
