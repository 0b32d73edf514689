package parking

import (
	"math/rand/v2"
	"strconv"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRNG(seed uint64) *rand.Rand { return rand.New(rand.NewPCG(seed, seed^0x9e3779b9)) }

func newTestRegistry(t *testing.T, id, prefix string, n int) *Registry {
	t.Helper()
	rng := testRNG(42)
	reg, err := NewRegistry(id, id, GenerateSlots(prefix, n, InitialRandom, rng), rng)
	require.NoError(t, err)
	return reg
}

func TestGenerateSlotsIDs(t *testing.T) {
	slots := GenerateSlots("COEX-", 300, InitialRandom, testRNG(1))
	require.Len(t, slots, 300)
	seen := map[string]bool{}
	for i, s := range slots {
		assert.Equal(t, "COEX-"+strconv.Itoa(i+1), s.ID)
		assert.True(t, s.Status.Valid())
		assert.False(t, seen[s.ID])
		seen[s.ID] = true
	}

	dash := GenerateSlots("A", 10, InitialAvailable, nil)
	assert.Equal(t, "A1", dash[0].ID)
	assert.Equal(t, "A10", dash[9].ID)
	for _, s := range dash {
		assert.Equal(t, Available, s.Status)
	}
}

func TestNewRegistryRejectsBadInput(t *testing.T) {
	_, err := NewRegistry("x", "X", nil, nil)
	require.ErrorIs(t, err, ErrNoSlots)

	_, err = NewRegistry("x", "X", []Slot{{ID: "a", Status: Available}, {ID: "a", Status: Occupied}}, nil)
	require.ErrorIs(t, err, ErrDuplicateSlot)

	_, err = NewRegistry("x", "X", []Slot{{ID: "a", Status: "unknown"}}, nil)
	require.ErrorIs(t, err, ErrInvalidStatus)
}

func TestReadReturnsIndependentCopy(t *testing.T) {
	reg := newTestRegistry(t, "jakarta", "JAKARTA-", 180)
	snap := reg.Read()
	orig := snap.Slots[0].Status
	snap.Slots[0].Status = orig.Flip()

	again := reg.Read()
	assert.Equal(t, orig, again.Slots[0].Status)
	assert.Equal(t, 180, again.TotalSlots)
	assert.Equal(t, uint64(0), again.Seq)
}

func TestApplyRandomTogglesPaskal(t *testing.T) {
	reg := newTestRegistry(t, "paskal", "PASKAL-", 150)
	before := reg.Read()

	after, toggles := reg.ApplyRandomToggles(2)
	require.Len(t, toggles, 2)
	assert.Equal(t, 150, after.TotalSlots)
	assert.Len(t, after.Slots, 150)
	assert.Equal(t, before.Seq+1, after.Seq)

	// net flips per slot: a slot drawn twice ends where it started
	flips := map[string]int{}
	for _, tg := range toggles {
		flips[tg.SlotID]++
	}
	wantAvail, _ := before.Counts()
	for i, s := range before.Slots {
		if flips[s.ID]%2 == 1 {
			assert.NotEqual(t, s.Status, after.Slots[i].Status, s.ID)
			if s.Status == Available {
				wantAvail--
			} else {
				wantAvail++
			}
		} else {
			assert.Equal(t, s.Status, after.Slots[i].Status, s.ID)
		}
	}
	avail, occ := after.Counts()
	assert.Equal(t, wantAvail, avail)
	assert.Equal(t, 150, avail+occ)
}

func TestApplyRandomTogglesZeroCount(t *testing.T) {
	reg := newTestRegistry(t, "coex", "COEX-", 300)
	snap, toggles := reg.ApplyRandomToggles(0)
	assert.Nil(t, toggles)
	assert.Equal(t, uint64(0), snap.Seq)
}

func TestInvariantsHoldUnderConcurrentReads(t *testing.T) {
	reg := newTestRegistry(t, "lotteworld", "LOTTEWORLD-", 250)

	var wg sync.WaitGroup
	stop := make(chan struct{})
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				snap := reg.Read()
				avail, occ := snap.Counts()
				if avail+occ != 250 {
					t.Errorf("count invariant broken: %d+%d", avail, occ)
					return
				}
				for _, s := range snap.Slots {
					if !s.Status.Valid() {
						t.Errorf("invalid status %q on %s", s.Status, s.ID)
						return
					}
				}
			}
		}()
	}
	for i := 0; i < 500; i++ {
		reg.ApplyRandomToggles(1 + i%3)
	}
	close(stop)
	wg.Wait()

	assert.Equal(t, uint64(500), reg.Read().Seq)
}

func TestParseInitial(t *testing.T) {
	for in, want := range map[string]Initial{"": InitialRandom, "random": InitialRandom, "available": InitialAvailable, "occupied": InitialOccupied} {
		got, err := ParseInitial(in)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err := ParseInitial("unknown")
	assert.Error(t, err)
}
