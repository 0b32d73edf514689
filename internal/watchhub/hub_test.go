package watchhub

import (
	"sync"
	"testing"
	"time"

	"github.com/jsherman999/parknow/internal/parking"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func snap(facility string, seq uint64) parking.Snapshot {
	return parking.Snapshot{FacilityID: facility, Name: facility, TotalSlots: 1,
		Slots: []parking.Slot{{ID: "A1", Status: parking.Available}}, Seq: seq}
}

func drain(ch <-chan parking.Snapshot) []uint64 {
	var out []uint64
	for {
		select {
		case s, ok := <-ch:
			if !ok {
				return out
			}
			out = append(out, s.Seq)
		default:
			return out
		}
	}
}

func TestPublishReachesEverySubscriber(t *testing.T) {
	h := New("coex", Options{Buffer: 8, Logger: zaptest.NewLogger(t)})
	a, b := h.Attach(), h.Attach()
	require.NotEqual(t, a.ID, b.ID)
	assert.Equal(t, 2, h.SubscriberCount())

	for i := uint64(1); i <= 3; i++ {
		h.Publish(snap("coex", i))
	}
	assert.Equal(t, []uint64{1, 2, 3}, drain(a.C))
	assert.Equal(t, []uint64{1, 2, 3}, drain(b.C))

	st := h.Stats()
	assert.Equal(t, uint64(3), st.Published)
	assert.Equal(t, uint64(6), st.Delivered)
	assert.Zero(t, st.Dropped)
}

func TestPublishWithNoSubscribersIsNoop(t *testing.T) {
	h := New("paskal", Options{})
	h.Publish(snap("paskal", 1))
	assert.Equal(t, uint64(1), h.Stats().Published)
	assert.Zero(t, h.Stats().Delivered)
}

func TestDetachIsIdempotent(t *testing.T) {
	h := New("jakarta", Options{})
	sub := h.Attach()
	h.Detach(sub)
	h.Detach(sub)
	sub.Close()
	h.Detach(nil)

	_, open := <-sub.C
	assert.False(t, open)
	assert.Zero(t, h.SubscriberCount())
	assert.False(t, h.Attached(sub))

	other := New("coex", Options{})
	foreign := other.Attach()
	h.Detach(foreign)
	assert.True(t, other.Attached(foreign))

	h.Publish(snap("jakarta", 1))
	assert.Zero(t, h.Stats().Delivered)
}

func TestFullBufferDropsOldestAndKeepsOrder(t *testing.T) {
	h := New("lotteworld", Options{Buffer: 2})
	sub := h.Attach()
	for i := uint64(1); i <= 5; i++ {
		h.Publish(snap("lotteworld", i))
	}
	assert.Equal(t, []uint64{4, 5}, drain(sub.C))

	st, ok := h.SubscriberStats(sub)
	require.True(t, ok)
	assert.Equal(t, uint64(5), st.Sent)
	assert.Equal(t, uint64(3), st.Dropped)
	assert.Equal(t, uint64(3), h.Stats().Dropped)
}

func TestStalledSubscriberIsEvicted(t *testing.T) {
	h := New("coex", Options{Buffer: 1, MaxDrops: 2, Logger: zaptest.NewLogger(t)})
	stalled := h.Attach()
	live := h.Attach()

	for i := uint64(1); i <= 4; i++ {
		h.Publish(snap("coex", i))
		<-live.C
	}
	// publish 1 fills the buffer, 2..3 are strikes within the limit, 4 exceeds it
	assert.False(t, h.Attached(stalled))
	assert.True(t, h.Attached(live))
	assert.Equal(t, uint64(1), h.Stats().Evicted)

	got := drain(stalled.C)
	assert.Equal(t, []uint64{4}, got)
	_, open := <-stalled.C
	assert.False(t, open)

	h.Publish(snap("coex", 5))
	assert.Equal(t, []uint64{5}, drain(live.C))
}

func TestDrainingResetsStrikes(t *testing.T) {
	h := New("coex", Options{Buffer: 1, MaxDrops: 1})
	sub := h.Attach()
	for i := uint64(1); i <= 20; i++ {
		h.Publish(snap("coex", i))
		if i%2 == 0 {
			<-sub.C
		}
	}
	assert.True(t, h.Attached(sub))
}

func TestCloseDetachesEveryone(t *testing.T) {
	h := New("dashboard", Options{})
	a := h.Attach()
	h.Close()
	h.Close()

	_, open := <-a.C
	assert.False(t, open)

	late := h.Attach()
	_, open = <-late.C
	assert.False(t, open)
	late.Close()

	h.Publish(snap("dashboard", 1))
	assert.Zero(t, h.Stats().Published)
}

func TestConcurrentAttachDetachPublish(t *testing.T) {
	h := New("coex", Options{Buffer: 2, MaxDrops: 3})
	done := make(chan struct{})

	go func() {
		defer close(done)
		for i := uint64(1); i <= 2000; i++ {
			h.Publish(snap("coex", i))
		}
	}()

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				sub := h.Attach()
				var last uint64
				deadline := time.After(time.Millisecond)
			read:
				for {
					select {
					case s, ok := <-sub.C:
						if !ok {
							break read
						}
						if s.Seq <= last {
							t.Errorf("out of order: %d after %d", s.Seq, last)
						}
						last = s.Seq
					case <-deadline:
						break read
					}
				}
				sub.Close()
			}
		}()
	}
	wg.Wait()
	<-done
	assert.Zero(t, h.SubscriberCount())
}
