package simulator

import (
	"context"
	"math/rand/v2"
	"sync"
	"testing"
	"time"

	"github.com/jsherman999/parknow/internal/parking"
	"github.com/jsherman999/parknow/internal/watchhub"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type recorder struct {
	mu    sync.Mutex
	snaps []parking.Snapshot
}

func (r *recorder) Publish(s parking.Snapshot) {
	r.mu.Lock()
	r.snaps = append(r.snaps, s)
	r.mu.Unlock()
}

func (r *recorder) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.snaps)
}

type panicky struct{ calls int }

func (p *panicky) Publish(parking.Snapshot) {
	p.calls++
	panic("subscriber blew up")
}

func newRegistry(t *testing.T, n int) *parking.Registry {
	t.Helper()
	rng := rand.New(rand.NewPCG(7, 11))
	reg, err := parking.NewRegistry("paskal", "PASKAL", parking.GenerateSlots("PASKAL-", n, parking.InitialRandom, rng), rng)
	require.NoError(t, err)
	return reg
}

func TestTickPublishesOneSnapshotPerTick(t *testing.T) {
	reg := newRegistry(t, 150)
	rec := &recorder{}
	d := New(reg, rec, Config{MinToggles: 1, MaxToggles: 3, RNG: rand.New(rand.NewPCG(1, 2))}, nil, zaptest.NewLogger(t))

	for i := 1; i <= 50; i++ {
		s := d.Tick()
		assert.Equal(t, uint64(i), s.Seq)
		avail, occ := s.Counts()
		assert.Equal(t, 150, avail+occ)
	}
	require.Equal(t, 50, rec.len())
	for i, s := range rec.snaps {
		assert.Equal(t, uint64(i+1), s.Seq)
		assert.Equal(t, "paskal", s.FacilityID)
	}
}

func TestTickFlipsBetweenMinAndMaxSlots(t *testing.T) {
	reg := newRegistry(t, 1000)
	d := New(reg, &recorder{}, Config{MinToggles: 2, MaxToggles: 2}, nil, nil)

	before := reg.Read()
	after := d.Tick()
	changed := 0
	for i := range before.Slots {
		if before.Slots[i].Status != after.Slots[i].Status {
			changed++
		}
	}
	// two draws with replacement: either two distinct flips or the same slot twice
	assert.Contains(t, []int{0, 2}, changed)
}

func TestDefaults(t *testing.T) {
	d := New(newRegistry(t, 5), &recorder{}, Config{}, nil, nil)
	assert.Equal(t, DefaultInterval, d.Interval())
	assert.Equal(t, DefaultMinToggles, d.cfg.MinToggles)
	assert.Equal(t, DefaultMinToggles, d.cfg.MaxToggles)
}

func TestRunDeliversWithinTwoIntervals(t *testing.T) {
	reg := newRegistry(t, 150)
	hub := watchhub.New("paskal", watchhub.Options{})
	d := New(reg, hub, Config{Interval: 20 * time.Millisecond, MinToggles: 1, MaxToggles: 3}, nil, zaptest.NewLogger(t))
	sub := hub.Attach()
	defer sub.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		d.Run(ctx)
	}()

	select {
	case s := <-sub.C:
		assert.Equal(t, "paskal", s.FacilityID)
		assert.Len(t, s.Slots, 150)
	case <-time.After(2 * d.Interval() * 5):
		t.Fatal("no snapshot within two intervals")
	}

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("driver did not stop on cancel")
	}
}

func TestRunSurvivesPanickingPublisher(t *testing.T) {
	p := &panicky{}
	d := New(newRegistry(t, 10), p, Config{Interval: 5 * time.Millisecond}, nil, zaptest.NewLogger(t))

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Millisecond)
	defer cancel()
	d.Run(ctx)

	assert.Greater(t, p.calls, 1)
}
