package parking

import (
	"fmt"
	"math/rand/v2"
	"time"
)

type Status string

const (
	Available Status = "available"
	Occupied  Status = "occupied"
)

func (s Status) Valid() bool { return s == Available || s == Occupied }

// Flip returns the opposite status.
func (s Status) Flip() Status {
	if s == Occupied {
		return Available
	}
	return Occupied
}

type Slot struct {
	ID     string `json:"id"`
	Status Status `json:"status"`
}

// Initial selects how a facility's slots are seeded at startup.
type Initial string

const (
	InitialRandom    Initial = "random"
	InitialAvailable Initial = "available"
	InitialOccupied  Initial = "occupied"
)

func ParseInitial(s string) (Initial, error) {
	switch Initial(s) {
	case "", InitialRandom:
		return InitialRandom, nil
	case InitialAvailable, InitialOccupied:
		return Initial(s), nil
	}
	return "", fmt.Errorf("unknown initial state %q (use random|available|occupied)", s)
}

// GenerateSlots builds n slots with ids prefix+1 .. prefix+n.
func GenerateSlots(prefix string, n int, initial Initial, rng *rand.Rand) []Slot {
	out := make([]Slot, n)
	for i := range out {
		st := Available
		switch initial {
		case InitialOccupied:
			st = Occupied
		case InitialRandom:
			if rng.IntN(2) == 1 {
				st = Occupied
			}
		}
		out[i] = Slot{ID: fmt.Sprintf("%s%d", prefix, i+1), Status: st}
	}
	return out
}

// Snapshot is a complete capture of one facility at one instant.
// Slots must be treated as read-only; a snapshot is shared by every subscriber.
type Snapshot struct {
	FacilityID string    `json:"facilityId"`
	Name       string    `json:"name"`
	TotalSlots int       `json:"totalSlots"`
	Slots      []Slot    `json:"slots"`
	Seq        uint64    `json:"seq"`
	TakenAt    time.Time `json:"takenAt"`
}

func (s Snapshot) Counts() (available, occupied int) {
	for _, sl := range s.Slots {
		if sl.Status == Occupied {
			occupied++
		} else {
			available++
		}
	}
	return available, occupied
}

// Toggle records one flip applied during a tick.
type Toggle struct {
	SlotID string
	From   Status
	To     Status
}
