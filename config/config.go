// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package config defines the immutable configuration record consumed by
// every Alpenglow component (spec §4.1). Build validates the record, and
// the driver's New validates it again before using it.
package config

import (
	"github.com/ayushshrivastv/SuperteamIN-Alpenglow-sub002/errs"
	"github.com/ayushshrivastv/SuperteamIN-Alpenglow-sub002/types"
)

// LeaderWindowSize is the number of slots per leader window (spec §4.4,
// fixed at 4 by the protocol).
const LeaderWindowSize = 4

// Config is the immutable, validated configuration for an Alpenglow run.
type Config struct {
	ValidatorCount     int
	StakeDistribution  map[types.ValidatorId]types.StakeAmount
	TotalStake         types.StakeAmount
	FastPathThreshold  types.StakeAmount
	SlowPathThreshold  types.StakeAmount
	ByzantineThreshold int
	MaxNetworkDelay    types.TimeValue // Delta
	GST                types.TimeValue
	BandwidthLimit     uint64
	K                  uint32 // data shreds
	N                  uint32 // total shreds
	MaxView            types.ViewNumber
	MaxSlot            types.SlotNumber
	TimeoutDelta       types.TimeValue
	LeaderWindowSize   int
	PartitionTimeout   types.TimeValue
}

// Validate checks the predicates of spec §4.1. It is called once by
// Builder.Build (or directly by callers constructing a Config literal).
func (c Config) Validate() error {
	if c.ValidatorCount == 0 {
		return errs.NewInvalidConfig("validator_count must be positive")
	}
	if c.ByzantineThreshold >= c.ValidatorCount {
		return errs.NewInvalidConfig("byzantine_threshold (%d) must be < validator_count (%d)", c.ByzantineThreshold, c.ValidatorCount)
	}
	if len(c.StakeDistribution) != c.ValidatorCount {
		return errs.NewInvalidConfig("stake_distribution has %d entries, want %d", len(c.StakeDistribution), c.ValidatorCount)
	}
	var sum types.StakeAmount
	for id := types.ValidatorId(0); id < types.ValidatorId(c.ValidatorCount); id++ {
		stake, ok := c.StakeDistribution[id]
		if !ok {
			return errs.NewInvalidConfig("stake_distribution missing validator %d", id)
		}
		sum += stake
	}
	if sum != c.TotalStake {
		return errs.NewInvalidConfig("total_stake (%d) does not equal sum of stake_distribution (%d)", c.TotalStake, sum)
	}
	if c.FastPathThreshold <= c.SlowPathThreshold {
		return errs.NewInvalidConfig("fast_path_threshold (%d) must be > slow_path_threshold (%d)", c.FastPathThreshold, c.SlowPathThreshold)
	}
	if c.TotalStake > 0 && c.SlowPathThreshold <= (c.TotalStake*50)/100 {
		return errs.NewInvalidConfig("slow_path_threshold (%d) must be > 50%% of total_stake (%d)", c.SlowPathThreshold, c.TotalStake)
	}
	if c.N <= c.K {
		return errs.NewInvalidConfig("n (%d) must be > k (%d)", c.N, c.K)
	}
	if c.LeaderWindowSize <= 0 {
		return errs.NewInvalidConfig("leader_window_size must be positive")
	}
	return nil
}

// Builder constructs a Config through a fluent chain, mirroring the
// teacher's config.Builder: each With* method mutates the draft in place
// and returns the same *Builder, with Build() validating at the end.
type Builder struct {
	cfg Config
}

// NewBuilder returns a Builder seeded with the spec's default values
// (§4.1 / §4.3): K=2, N=4, 80%/60% thresholds computed once stakes are
// set, max_view=max_slot=10, timeout_delta=100, GST=1000, Delta=100.
func NewBuilder() *Builder {
	return &Builder{cfg: Config{
		StakeDistribution: make(map[types.ValidatorId]types.StakeAmount),
		MaxNetworkDelay:   100,
		GST:               1000,
		BandwidthLimit:    10_000_000,
		K:                 2,
		N:                 4,
		MaxView:           10,
		MaxSlot:           10,
		TimeoutDelta:      100,
		LeaderWindowSize:  LeaderWindowSize,
		PartitionTimeout:  100,
	}}
}

// WithEqualStake configures count validators with equal stake (1000
// each) and derives byzantine_threshold = floor((count-1)/3) and the
// 80%/60% thresholds, matching Config::with_validators in the original.
func (b *Builder) WithEqualStake(count int) *Builder {
	b.cfg.ValidatorCount = count
	if count > 0 {
		b.cfg.ByzantineThreshold = (count - 1) / 3
	}
	const perValidator = types.StakeAmount(1000)
	b.cfg.StakeDistribution = make(map[types.ValidatorId]types.StakeAmount, count)
	for i := 0; i < count; i++ {
		b.cfg.StakeDistribution[types.ValidatorId(i)] = perValidator
	}
	b.cfg.TotalStake = types.StakeAmount(count) * perValidator
	b.cfg.FastPathThreshold = (b.cfg.TotalStake * 80) / 100
	b.cfg.SlowPathThreshold = (b.cfg.TotalStake * 60) / 100
	return b
}

// WithStakeDistribution sets a custom stake table and re-derives
// total/fast/slow thresholds from it.
func (b *Builder) WithStakeDistribution(stakes map[types.ValidatorId]types.StakeAmount) *Builder {
	b.cfg.StakeDistribution = make(map[types.ValidatorId]types.StakeAmount, len(stakes))
	var total types.StakeAmount
	for id, s := range stakes {
		b.cfg.StakeDistribution[id] = s
		total += s
	}
	b.cfg.ValidatorCount = len(stakes)
	b.cfg.TotalStake = total
	b.cfg.FastPathThreshold = (total * 80) / 100
	b.cfg.SlowPathThreshold = (total * 60) / 100
	return b
}

// WithByzantineThreshold overrides the default Byzantine tolerance.
func (b *Builder) WithByzantineThreshold(threshold int) *Builder {
	b.cfg.ByzantineThreshold = threshold
	return b
}

// WithNetworkTiming sets Delta and GST.
func (b *Builder) WithNetworkTiming(delta, gst types.TimeValue) *Builder {
	b.cfg.MaxNetworkDelay = delta
	b.cfg.GST = gst
	return b
}

// WithErasureParams sets the (K, N) erasure coding shape.
func (b *Builder) WithErasureParams(k, n uint32) *Builder {
	b.cfg.K = k
	b.cfg.N = n
	return b
}

// WithBandwidthLimit sets the per-validator cap on cumulative bytes sent.
func (b *Builder) WithBandwidthLimit(limit uint64) *Builder {
	b.cfg.BandwidthLimit = limit
	return b
}

// WithBounds sets the exploration bounds max_view/max_slot.
func (b *Builder) WithBounds(maxView types.ViewNumber, maxSlot types.SlotNumber) *Builder {
	b.cfg.MaxView = maxView
	b.cfg.MaxSlot = maxSlot
	return b
}

// WithTimeoutDelta sets the base Votor timeout.
func (b *Builder) WithTimeoutDelta(delta types.TimeValue) *Builder {
	b.cfg.TimeoutDelta = delta
	return b
}

// Build validates the accumulated draft and returns the finished Config.
func (b *Builder) Build() (Config, error) {
	if err := b.cfg.Validate(); err != nil {
		return Config{}, err
	}
	return b.cfg, nil
}
