package acquisition

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"stream-tracker/models"
	"stream-tracker/services"
	"stream-tracker/utils"
)

var (
	// ErrAcquisition wraps any tier failure: network, selector timeout,
	// blocked request.
	ErrAcquisition = errors.New("acquisition failed")
	// ErrValidation means a tier produced a value that failed the
	// plausibility check.
	ErrValidation = errors.New("implausible count")
	// ErrNoHistory is returned by the estimate tier when a track has no
	// real ledger entries at all.
	ErrNoHistory = errors.New("no history to estimate from")
)

// Observation is what a tier reads for one track.
type Observation struct {
	Count      int64
	Confidence float64
}

// Tier is one way of obtaining a track's current total.
type Tier interface {
	Method() models.Method
	Attempt(ctx context.Context, track *models.Track) (Observation, error)
}

// Counters tallies accepted acquisitions by method for one run.
type Counters struct {
	mu     sync.Mutex
	counts map[models.Method]int
}

// NewCounters creates an empty tally.
func NewCounters() *Counters {
	return &Counters{counts: make(map[models.Method]int)}
}

func (c *Counters) Inc(m models.Method) {
	c.mu.Lock()
	c.counts[m]++
	c.mu.Unlock()
}

// Snapshot returns a copy of the current tally.
func (c *Counters) Snapshot() map[models.Method]int {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[models.Method]int, len(c.counts))
	for m, n := range c.counts {
		out[m] = n
	}
	return out
}

// Pipeline tries its tiers in order and stops at the first acceptable
// result.
type Pipeline struct {
	tiers  []Tier
	logger *utils.Logger
}

// NewPipeline builds a pipeline over tiers, consulted in the given order.
func NewPipeline(logger *utils.Logger, tiers ...Tier) *Pipeline {
	return &Pipeline{tiers: tiers, logger: logger}
}

// Acquire returns the first acceptable observation for track. Direct reads
// must pass services.IsPlausible; estimates are taken as-is. When every
// tier fails the result is (0, failed, 0). counters may be nil.
func (p *Pipeline) Acquire(ctx context.Context, track *models.Track, counters *Counters) models.Acquisition {
	result := models.Acquisition{Method: models.MethodFailed}

	for _, tier := range p.tiers {
		if ctx.Err() != nil {
			break
		}
		obs, err := p.attempt(ctx, tier, track)
		if err != nil {
			p.logger.Debug("[acquire] %s: %s: %v", track.Name, tier.Method(), err)
			continue
		}
		result = models.Acquisition{Count: obs.Count, Method: tier.Method(), Confidence: obs.Confidence}
		break
	}

	if result.Method == models.MethodFailed {
		p.logger.Warn("[acquire] %s: all tiers failed", track.Name)
	}
	if counters != nil {
		counters.Inc(result.Method)
	}
	return result
}

func (p *Pipeline) attempt(ctx context.Context, tier Tier, track *models.Track) (Observation, error) {
	obs, err := tier.Attempt(ctx, track)
	if err != nil {
		return Observation{}, err
	}
	if tier.Method() != models.MethodSimulated && !services.IsPlausible(obs.Count) {
		return Observation{}, fmt.Errorf("%w: %d", ErrValidation, obs.Count)
	}
	return obs, nil
}
