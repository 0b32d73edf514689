package parking

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"
)

var (
	ErrNoSlots       = errors.New("parking: facility has no slots")
	ErrDuplicateSlot = errors.New("parking: duplicate slot id")
	ErrInvalidStatus = errors.New("parking: invalid slot status")
)

// Registry holds the authoritative slot list of one facility.
// Reads take the read lock and return copies; ApplyRandomToggles is the only writer.
type Registry struct {
	facilityID string
	name       string

	mu    sync.RWMutex
	slots []Slot
	seq   uint64
	rng   *rand.Rand
	now   func() time.Time
}

func NewRegistry(facilityID, name string, slots []Slot, rng *rand.Rand) (*Registry, error) {
	if len(slots) == 0 {
		return nil, fmt.Errorf("%s: %w", facilityID, ErrNoSlots)
	}
	seen := make(map[string]struct{}, len(slots))
	own := make([]Slot, len(slots))
	for i, s := range slots {
		if _, dup := seen[s.ID]; dup {
			return nil, fmt.Errorf("%s: %w: %s", facilityID, ErrDuplicateSlot, s.ID)
		}
		if !s.Status.Valid() {
			return nil, fmt.Errorf("%s: %w: %s=%q", facilityID, ErrInvalidStatus, s.ID, s.Status)
		}
		seen[s.ID] = struct{}{}
		own[i] = s
	}
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return &Registry{
		facilityID: facilityID,
		name:       name,
		slots:      own,
		rng:        rng,
		now:        time.Now,
	}, nil
}

func (r *Registry) FacilityID() string { return r.facilityID }
func (r *Registry) Name() string       { return r.name }

// Len is fixed for the registry's lifetime.
func (r *Registry) Len() int { return len(r.slots) }

func (r *Registry) Read() Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.snapshotLocked()
}

// ApplyRandomToggles flips count slots drawn uniformly with replacement, so one
// slot may be flipped twice in a single call and end where it started.
func (r *Registry) ApplyRandomToggles(count int) (Snapshot, []Toggle) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if count <= 0 {
		return r.snapshotLocked(), nil
	}
	toggles := make([]Toggle, 0, count)
	for i := 0; i < count; i++ {
		s := &r.slots[r.rng.IntN(len(r.slots))]
		from := s.Status
		s.Status = from.Flip()
		toggles = append(toggles, Toggle{SlotID: s.ID, From: from, To: s.Status})
	}
	r.seq++
	return r.snapshotLocked(), toggles
}

func (r *Registry) snapshotLocked() Snapshot {
	slots := make([]Slot, len(r.slots))
	copy(slots, r.slots)
	return Snapshot{
		FacilityID: r.facilityID,
		Name:       r.name,
		TotalSlots: len(slots),
		Slots:      slots,
		Seq:        r.seq,
		TakenAt:    r.now(),
	}
}
