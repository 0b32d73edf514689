package simulator

import (
	"context"
	"math/rand/v2"
	"time"

	"github.com/jsherman999/parknow/internal/metrics"
	"github.com/jsherman999/parknow/internal/parking"
	"go.uber.org/zap"
)

// Driver perturbs one facility's registry on a fixed interval and publishes each result.
// It is the registry's only writer. The loop runs whether or not anyone is listening,
// so the polling endpoints also see live values.

const (
	DefaultInterval   = 3 * time.Second
	DefaultMinToggles = 1
	DefaultMaxToggles = 3
)

type Publisher interface {
	Publish(parking.Snapshot)
}

type Config struct {
	Interval   time.Duration
	MinToggles int
	MaxToggles int
	// RNG draws the per-tick toggle count. Nil means a randomly seeded source.
	RNG *rand.Rand
}

type Driver struct {
	reg     *parking.Registry
	pub     Publisher
	cfg     Config
	metrics *metrics.Metrics
	logger  *zap.Logger
}

func New(reg *parking.Registry, pub Publisher, cfg Config, m *metrics.Metrics, logger *zap.Logger) *Driver {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.MinToggles <= 0 {
		cfg.MinToggles = DefaultMinToggles
	}
	if cfg.MaxToggles < cfg.MinToggles {
		cfg.MaxToggles = cfg.MinToggles
	}
	if cfg.RNG == nil {
		cfg.RNG = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Driver{
		reg:     reg,
		pub:     pub,
		cfg:     cfg,
		metrics: m,
		logger:  logger.With(zap.String("facility", reg.FacilityID())),
	}
}

func (d *Driver) Interval() time.Duration { return d.cfg.Interval }

// Run ticks until ctx is cancelled.
func (d *Driver) Run(ctx context.Context) {
	d.logger.Debug("simulation started", zap.Duration("interval", d.cfg.Interval))
	ticker := time.NewTicker(d.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			d.logger.Debug("simulation stopped")
			return
		case <-ticker.C:
			d.Tick()
		}
	}
}

// Tick applies one round of toggles and publishes the resulting snapshot.
func (d *Driver) Tick() parking.Snapshot {
	count := d.cfg.MinToggles
	if span := d.cfg.MaxToggles - d.cfg.MinToggles; span > 0 {
		count += d.cfg.RNG.IntN(span + 1)
	}
	snap, toggles := d.reg.ApplyRandomToggles(count)
	if d.logger.Core().Enabled(zap.DebugLevel) {
		for _, tg := range toggles {
			d.logger.Debug("slot toggled",
				zap.String("slot", tg.SlotID),
				zap.String("from", string(tg.From)),
				zap.String("to", string(tg.To)),
			)
		}
	}
	avail, occ := snap.Counts()
	d.metrics.Tick(d.reg.FacilityID(), len(toggles), avail, occ)
	d.publish(snap)
	return snap
}

func (d *Driver) publish(snap parking.Snapshot) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("publish panicked", zap.Any("panic", r), zap.Uint64("seq", snap.Seq))
		}
	}()
	d.pub.Publish(snap)
}
