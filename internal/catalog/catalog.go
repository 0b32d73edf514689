// Package catalog holds the fixed table of facilities served by the process.
// The table is built once from configuration and never changes afterwards.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"

	"github.com/jsherman999/parknow/internal/config"
	"github.com/jsherman999/parknow/internal/metrics"
	"github.com/jsherman999/parknow/internal/parking"
	"github.com/jsherman999/parknow/internal/simulator"
	"github.com/jsherman999/parknow/internal/watchhub"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var ErrNotFound = errors.New("location not found")

type Facility struct {
	ID           string
	Name         string
	Address      string
	PricePerHour int
	OpeningHours string

	Registry *parking.Registry
	Hub      *watchhub.Hub
	Driver   *simulator.Driver
}

func (f *Facility) TotalSlots() int { return f.Registry.Len() }

// Summary is the per-facility entry of the locations listing.
type Summary struct {
	Name         string `json:"name"`
	TotalSlots   int    `json:"totalSlots"`
	Available    int    `json:"available"`
	Occupied     int    `json:"occupied"`
	Address      string `json:"address,omitempty"`
	PricePerHour int    `json:"pricePerHour,omitempty"`
	OpeningHours string `json:"openingHours,omitempty"`
}

func (f *Facility) Summary() Summary {
	avail, occ := f.Registry.Read().Counts()
	return Summary{
		Name:         f.Name,
		TotalSlots:   f.TotalSlots(),
		Available:    avail,
		Occupied:     occ,
		Address:      f.Address,
		PricePerHour: f.PricePerHour,
		OpeningHours: f.OpeningHours,
	}
}

type Catalog struct {
	byID   map[string]*Facility
	order  []*Facility
	logger *zap.Logger
}

func New(cfg *config.Config, m *metrics.Metrics, logger *zap.Logger) (*Catalog, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Catalog{byID: make(map[string]*Facility, len(cfg.Facilities)), logger: logger}

	for i, fc := range cfg.Facilities {
		if fc.ID == "" {
			return nil, fmt.Errorf("facility %d: id is required", i)
		}
		if _, dup := c.byID[fc.ID]; dup {
			return nil, fmt.Errorf("duplicate facility id %q", fc.ID)
		}
		initial, err := parking.ParseInitial(fc.Initial)
		if err != nil {
			return nil, fmt.Errorf("facility %q: %w", fc.ID, err)
		}

		rng := newRNG(cfg.Simulation.Seed, uint64(i))
		reg, err := parking.NewRegistry(fc.ID, fc.Name, parking.GenerateSlots(fc.SlotPrefix(), fc.Slots, initial, rng), rng)
		if err != nil {
			return nil, err
		}
		hub := watchhub.New(fc.ID, watchhub.Options{
			Buffer:   cfg.Stream.Buffer,
			MaxDrops: cfg.Stream.MaxDrops,
			Metrics:  m,
			Logger:   logger,
		})
		drv := simulator.New(reg, hub, simulator.Config{
			Interval:   cfg.Simulation.Interval,
			MinToggles: cfg.Simulation.MinToggles,
			MaxToggles: cfg.Simulation.MaxToggles,
			RNG:        newRNG(cfg.Simulation.Seed, uint64(i)+1000),
		}, m, logger)

		f := &Facility{
			ID:           fc.ID,
			Name:         fc.Name,
			Address:      fc.Address,
			PricePerHour: fc.PricePerHour,
			OpeningHours: fc.OpeningHours,
			Registry:     reg,
			Hub:          hub,
			Driver:       drv,
		}
		c.byID[f.ID] = f
		c.order = append(c.order, f)
	}
	return c, nil
}

// newRNG returns a deterministic source when seed is set and a random one otherwise.
func newRNG(seed, stream uint64) *rand.Rand {
	if seed == 0 {
		return rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return rand.New(rand.NewPCG(seed, stream))
}

func (c *Catalog) Lookup(id string) (*Facility, error) {
	f, ok := c.byID[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return f, nil
}

// Facilities returns the facilities in configured order.
func (c *Catalog) Facilities() []*Facility {
	out := make([]*Facility, len(c.order))
	copy(out, c.order)
	return out
}

func (c *Catalog) IDs() []string {
	out := make([]string, len(c.order))
	for i, f := range c.order {
		out[i] = f.ID
	}
	return out
}

func (c *Catalog) Summaries() map[string]Summary {
	out := make(map[string]Summary, len(c.order))
	for _, f := range c.order {
		out[f.ID] = f.Summary()
	}
	return out
}

func (c *Catalog) Stats() []watchhub.Stats {
	out := make([]watchhub.Stats, len(c.order))
	for i, f := range c.order {
		out[i] = f.Hub.Stats()
	}
	return out
}

// Run drives every facility's simulation until ctx is cancelled.
func (c *Catalog) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, f := range c.order {
		f := f
		g.Go(func() error {
			f.Driver.Run(gctx)
			return nil
		})
	}
	c.logger.Info("simulation running", zap.Strings("facilities", c.IDs()))
	return g.Wait()
}

// Close detaches every viewer from every hub.
func (c *Catalog) Close() {
	for _, f := range c.order {
		f.Hub.Close()
	}
}
