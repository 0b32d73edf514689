package watchhub

import (
	"sync"

	"github.com/google/uuid"
	"github.com/jsherman999/parknow/internal/metrics"
	"github.com/jsherman999/parknow/internal/parking"
	"go.uber.org/zap"
)

// Hub is an in-process pubsub fanning one facility's snapshots out to its viewers.
// Delivery is best-effort with bounded per-subscriber buffers: a full buffer loses its
// oldest snapshot to make room, and a subscriber that overflows more than MaxDrops
// publishes in a row is evicted.

const (
	DefaultBuffer   = 4
	DefaultMaxDrops = 10
)

type Options struct {
	Buffer   int
	MaxDrops int // <= 0 disables eviction
	Metrics  *metrics.Metrics
	Logger   *zap.Logger
}

type Subscription struct {
	ID string
	// C is closed when the subscription is detached or evicted.
	C <-chan parking.Snapshot

	ch  chan parking.Snapshot
	hub *Hub

	// guarded by hub.mu
	strikes int
	sent    uint64
	dropped uint64
}

// Close detaches the subscription. Safe to call more than once.
func (s *Subscription) Close() { s.hub.Detach(s) }

type Stats struct {
	Facility    string `json:"facility"`
	Subscribers int    `json:"subscribers"`
	Published   uint64 `json:"published"`
	Delivered   uint64 `json:"delivered"`
	Dropped     uint64 `json:"dropped"`
	Evicted     uint64 `json:"evicted"`
}

type SubscriberStats struct {
	ID      string `json:"id"`
	Sent    uint64 `json:"sent"`
	Dropped uint64 `json:"dropped"`
}

type Hub struct {
	facility string
	buffer   int
	maxDrops int
	metrics  *metrics.Metrics
	logger   *zap.Logger

	mu        sync.Mutex
	subs      map[*Subscription]struct{}
	closed    bool
	published uint64
	delivered uint64
	dropped   uint64
	evicted   uint64
}

func New(facility string, opts Options) *Hub {
	if opts.Buffer <= 0 {
		opts.Buffer = DefaultBuffer
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Hub{
		facility: facility,
		buffer:   opts.Buffer,
		maxDrops: opts.MaxDrops,
		metrics:  opts.Metrics,
		logger:   opts.Logger.With(zap.String("facility", facility)),
		subs:     make(map[*Subscription]struct{}),
	}
}

func (h *Hub) Facility() string { return h.facility }

// Attach registers a new subscriber. After Close it returns an already-closed subscription.
func (h *Hub) Attach() *Subscription {
	ch := make(chan parking.Snapshot, h.buffer)
	sub := &Subscription{ID: uuid.NewString(), C: ch, ch: ch, hub: h}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		close(ch)
		return sub
	}
	h.subs[sub] = struct{}{}
	h.metrics.Subscribers(h.facility, len(h.subs))
	return sub
}

// Detach removes sub and closes its channel. Unknown or already-detached subscriptions are ignored.
func (h *Hub) Detach(sub *Subscription) {
	if sub == nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(sub)
}

func (h *Hub) removeLocked(sub *Subscription) bool {
	if _, ok := h.subs[sub]; !ok {
		return false
	}
	delete(h.subs, sub)
	close(sub.ch)
	h.metrics.Subscribers(h.facility, len(h.subs))
	return true
}

// Attached reports whether sub is still registered.
func (h *Hub) Attached(sub *Subscription) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	_, ok := h.subs[sub]
	return ok
}

func (h *Hub) Publish(snap parking.Snapshot) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.published++

	for sub := range h.subs {
		if !h.offerLocked(sub, snap) {
			sub.strikes = 0
			continue
		}
		sub.strikes++
		if h.maxDrops > 0 && sub.strikes > h.maxDrops {
			h.removeLocked(sub)
			h.evicted++
			h.metrics.Evicted(h.facility)
			h.logger.Info("evicted stalled subscriber",
				zap.String("subscriber", sub.ID),
				zap.Uint64("dropped", sub.dropped),
			)
		}
	}
}

// offerLocked enqueues snap, discarding the oldest queued snapshot when the buffer is
// full. It reports whether a snapshot was discarded. Every send happens under h.mu,
// so after freeing a slot the final send cannot block.
func (h *Hub) offerLocked(sub *Subscription, snap parking.Snapshot) bool {
	sub.sent++
	h.delivered++
	h.metrics.Delivered(h.facility)

	select {
	case sub.ch <- snap:
		return false
	default:
	}

	discarded := false
	select {
	case <-sub.ch:
		discarded = true
		sub.dropped++
		h.dropped++
		h.metrics.Dropped(h.facility)
	default:
	}
	sub.ch <- snap
	return discarded
}

func (h *Hub) SubscriberCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

func (h *Hub) Stats() Stats {
	h.mu.Lock()
	defer h.mu.Unlock()
	return Stats{
		Facility:    h.facility,
		Subscribers: len(h.subs),
		Published:   h.published,
		Delivered:   h.delivered,
		Dropped:     h.dropped,
		Evicted:     h.evicted,
	}
}

func (h *Hub) SubscriberStats(sub *Subscription) (SubscriberStats, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.subs[sub]; !ok {
		return SubscriberStats{}, false
	}
	return SubscriberStats{ID: sub.ID, Sent: sub.sent, Dropped: sub.dropped}, true
}

// Close detaches every subscriber. Later Publish calls are no-ops.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for sub := range h.subs {
		h.removeLocked(sub)
	}
}
