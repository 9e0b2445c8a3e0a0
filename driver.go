// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package alpenglow composes votor, rotor, and network into the
// integration driver of spec §4.5: a single (state, action) -> state
// transition function over the combined protocol state, one action at a
// time, with no internal concurrency.
package alpenglow

import (
	"encoding/binary"
	"hash/fnv"

	"github.com/ayushshrivastv/SuperteamIN-Alpenglow-sub002/config"
	"github.com/ayushshrivastv/SuperteamIN-Alpenglow-sub002/errs"
	golog "github.com/ayushshrivastv/SuperteamIN-Alpenglow-sub002/log"
	"github.com/ayushshrivastv/SuperteamIN-Alpenglow-sub002/metrics"
	"github.com/ayushshrivastv/SuperteamIN-Alpenglow-sub002/network"
	"github.com/ayushshrivastv/SuperteamIN-Alpenglow-sub002/rotor"
	"github.com/ayushshrivastv/SuperteamIN-Alpenglow-sub002/types"
	"github.com/ayushshrivastv/SuperteamIN-Alpenglow-sub002/votor"
)

// GlobalState is the complete state of one exploration point: clock,
// current slot/leader window, and the three components' substates (spec
// §3 "GlobalState").
type GlobalState struct {
	Clock       types.TimeValue
	CurrentSlot types.SlotNumber
	CurrentLead types.ValidatorId
	Failure     map[types.ValidatorId]types.Status

	Votor   *votor.State
	Rotor   *rotor.State
	Network *network.State

	// KnownBlocks catalogs every block a proposal has produced, keyed by
	// hash. Votor/Rotor substates track only block hashes once a block
	// has been voted on or reconstructed; Actions needs the full Block
	// (slot, view, proposer, payload) to enumerate CastVote and
	// ShredAndDistribute, so the driver keeps this small side table
	// rather than widening either substate for the harness's benefit.
	KnownBlocks map[types.BlockHash]types.Block
}

// Clone returns a deep copy of the global state.
func (g *GlobalState) Clone() *GlobalState {
	failure := make(map[types.ValidatorId]types.Status, len(g.Failure))
	for v, st := range g.Failure {
		failure[v] = st
	}
	known := make(map[types.BlockHash]types.Block, len(g.KnownBlocks))
	for h, b := range g.KnownBlocks {
		known[h] = types.CloneBlock(b)
	}
	return &GlobalState{
		Clock:       g.Clock,
		CurrentSlot: g.CurrentSlot,
		CurrentLead: g.CurrentLead,
		Failure:     failure,
		Votor:       g.Votor.Clone(),
		Rotor:       g.Rotor.Clone(),
		Network:     g.Network.Clone(),
		KnownBlocks: known,
	}
}

// Driver composes votor, rotor, and network against the shared Config
// (spec §4.5).
type Driver struct {
	cfg     config.Config
	votor   *votor.Votor
	rotor   *rotor.Rotor
	network *network.Network
	metrics *metrics.Metrics
	log     golog.Logger
}

// New builds a Driver from a validated Config. A nil logger/metrics
// default to no-ops.
func New(cfg config.Config, byzantineSet map[types.ValidatorId]struct{}, logger golog.Logger, m *metrics.Metrics) (*Driver, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = golog.NewNoOpLogger()
	}

	vt := votor.New(votor.Params{
		ValidatorCount:    cfg.ValidatorCount,
		StakeDistribution: cfg.StakeDistribution,
		TotalStake:        cfg.TotalStake,
		FastPathThreshold: cfg.FastPathThreshold,
		SlowPathThreshold: cfg.SlowPathThreshold,
		MaxView:           cfg.MaxView,
		MaxSlot:           cfg.MaxSlot,
		TimeoutDelta:      cfg.TimeoutDelta,
		LeaderWindowSize:  cfg.LeaderWindowSize,
	}, logger)

	rt := rotor.New(rotor.Params{
		ValidatorCount:   cfg.ValidatorCount,
		StakeByValidator: cfg.StakeDistribution,
		TotalStake:       cfg.TotalStake,
		K:                cfg.K,
		N:                cfg.N,
		BandwidthLimit:   cfg.BandwidthLimit,
	}, logger)

	nt := network.New(network.Params{
		ValidatorCount:   cfg.ValidatorCount,
		Delta:            cfg.MaxNetworkDelay,
		GST:              cfg.GST,
		PartitionTimeout: cfg.PartitionTimeout,
		ByzantineSet:     byzantineSet,
	}, logger)

	return &Driver{cfg: cfg, votor: vt, rotor: rt, network: nt, metrics: m, log: logger}, nil
}

// Init returns the initial global state (spec §4.5 Init): clock 0, slot
// 1, leader 0, every validator honest.
func (d *Driver) Init() *GlobalState {
	failure := make(map[types.ValidatorId]types.Status, d.cfg.ValidatorCount)
	for i := 0; i < d.cfg.ValidatorCount; i++ {
		failure[types.ValidatorId(i)] = types.Honest
	}
	vs := votor.NewState(d.cfg.ValidatorCount)
	for v := range vs.TimeoutExpiry {
		vs.TimeoutExpiry[v] = d.cfg.TimeoutDelta
	}
	return &GlobalState{
		Clock:       0,
		CurrentSlot: 1,
		CurrentLead: 0,
		Failure:     failure,
		Votor:       vs,
		Rotor:       rotor.NewState(d.cfg.ValidatorCount),
		Network:     network.NewState(d.cfg.ValidatorCount),
		KnownBlocks: make(map[types.BlockHash]types.Block),
	}
}

// synthesizeBlockHash deterministically derives a block's hash from its
// slot, view, and proposer, so repeated exploration runs that reach the
// same proposal point produce byte-identical blocks (R2) without any
// wall-clock or random input.
func synthesizeBlockHash(slot types.SlotNumber, view types.ViewNumber, proposer types.ValidatorId) types.BlockHash {
	h := fnv.New64a()
	var buf [20]byte
	binary.BigEndian.PutUint64(buf[0:8], uint64(slot))
	binary.BigEndian.PutUint64(buf[8:16], uint64(view))
	binary.BigEndian.PutUint32(buf[16:20], uint32(proposer))
	h.Write(buf[:])
	return types.BlockHash(h.Sum64())
}

// ActionKind tags the variant carried by Action, mirroring the
// Votor/Rotor/Network/Byzantine tagged union of spec §4.5 rather than a
// class hierarchy (spec §9 Design Notes).
type ActionKind int

const (
	ActionAdvanceClock ActionKind = iota
	ActionAdvanceSlot
	ActionVotorPropose
	ActionVotorCastVote
	ActionVotorCollectVotes
	ActionVotorFinalize
	ActionVotorSubmitSkip
	ActionVotorCollectSkip
	ActionVotorTimeout
	ActionRotorShredDistribute
	ActionRotorRelay
	ActionRotorReconstruct
	ActionRotorRequestRepair
	ActionRotorRespondRepair
	ActionNetworkDeliver
	ActionNetworkDrop
	ActionNetworkHealPartition
	ActionByzantineDoubleVote
	ActionByzantineInvalidBlock
	ActionByzantineWithholdShreds
	ActionByzantineEquivocate
	ActionByzantineDuplicateMessage
	ActionByzantineAdversarialDelay
)

// byzantineAdversarialDelayMultiplier scales Delta into the extra delay an
// AdversarialDelay action imposes on a Byzantine validator's own queued
// message (spec §4.2's adversarial-delay operation).
const byzantineAdversarialDelayMultiplier = 4

// Action is one enabled transition, carrying only the fields its Kind
// needs (spec's polymorphism-as-capability-sets guidance: a flat tagged
// struct rather than an interface hierarchy, since every action is data,
// not behavior).
type Action struct {
	Kind ActionKind

	Validator   types.ValidatorId
	View        types.ViewNumber
	Block       types.Block
	BlockHash   types.BlockHash
	Certificate types.Certificate
	VoteKind    types.VoteKind
	MessageID   uint64
	RepairReq   types.RepairRequest
	OtherBlock  types.BlockHash // second block for Byzantine double-vote/equivocate
	Delay       types.TimeValue // extra delay for ActionByzantineAdversarialDelay
}

// Actions enumerates every action enabled in state (spec §4.5 Actions,
// complete and duplicate-free). The order is not fixed: several groups of
// actions are collected by iterating maps.
func (d *Driver) Actions(g *GlobalState) []Action {
	var actions []Action

	actions = append(actions, Action{Kind: ActionAdvanceClock})

	if _, finalized := g.Votor.FinalizedSlots[g.CurrentSlot]; finalized && g.CurrentSlot < d.cfg.MaxSlot {
		actions = append(actions, Action{Kind: ActionAdvanceSlot})
	}

	for i := 0; i < d.cfg.ValidatorCount; i++ {
		v := types.ValidatorId(i)
		if g.Failure[v] == types.Offline {
			continue
		}

		view := g.Votor.CurrentView[v]
		leader := d.votor.LeaderForView(g.CurrentSlot, view)

		// A proposal's hash is deterministic in (slot, view, proposer), so
		// the same not-yet-proposed block is only ever offered once.
		proposalHash := synthesizeBlockHash(g.CurrentSlot, view, leader)
		proposed, alreadyProposed := g.KnownBlocks[proposalHash]

		if v == leader && !alreadyProposed {
			var parent types.BlockHash
			if n := len(g.Votor.FinalizedChain); n > 0 {
				parent = g.Votor.FinalizedChain[n-1].Hash
			}
			block := types.Block{
				Slot:     g.CurrentSlot,
				View:     view,
				Hash:     proposalHash,
				Parent:   parent,
				Proposer: leader,
			}
			actions = append(actions, Action{Kind: ActionVotorPropose, Validator: v, View: view, Block: block})
		}

		if alreadyProposed {
			for _, kind := range []types.VoteKind{types.VoteEcho, types.VoteCommit} {
				already := false
				for _, cast := range g.Votor.ReceivedVotes[v][view] {
					if cast.Voter == v && cast.Kind == kind {
						already = true
						break
					}
				}
				if !already {
					actions = append(actions, Action{Kind: ActionVotorCastVote, Validator: v, View: view, Block: proposed, VoteKind: kind})
				}
			}
			if v == leader {
				if _, distributed := g.Rotor.Shreds[proposed.Hash]; !distributed {
					actions = append(actions, Action{Kind: ActionRotorShredDistribute, Validator: v, View: view, Block: proposed})
				}
			}
		}

		actions = append(actions, Action{Kind: ActionVotorCollectVotes, Validator: v, View: view})
		actions = append(actions, Action{Kind: ActionVotorCollectSkip, Validator: v, View: view})

		if g.Clock >= g.Votor.TimeoutExpiry[v] {
			actions = append(actions, Action{Kind: ActionVotorTimeout, Validator: v})
			actions = append(actions, Action{Kind: ActionVotorSubmitSkip, Validator: v, View: view})
		}

		for blockHash := range g.Rotor.Shreds {
			if d.rotor.CanReconstruct(g.Rotor, v, blockHash) {
				if _, delivered := g.Rotor.Delivered[v][blockHash]; !delivered {
					actions = append(actions, Action{Kind: ActionRotorReconstruct, Validator: v, BlockHash: blockHash})
				}
			} else if _, delivered := g.Rotor.Delivered[v][blockHash]; !delivered {
				actions = append(actions, Action{Kind: ActionRotorRequestRepair, Validator: v, BlockHash: blockHash})
			}
			if len(g.Rotor.Shreds[blockHash][v]) > 0 {
				actions = append(actions, Action{Kind: ActionRotorRelay, Validator: v, BlockHash: blockHash})
			}
		}
		for key, req := range g.Rotor.RepairRequests {
			if len(g.Rotor.Shreds[key.BlockHash][v]) > 0 && v != key.Requester {
				actions = append(actions, Action{Kind: ActionRotorRespondRepair, Validator: v, RepairReq: req})
			}
		}

		if g.Failure[v] == types.Byzantine {
			// A double vote/equivocation needs two distinct block hashes for
			// the same (slot, view): the honest proposal (if any) and a
			// second, independently synthesized one that never equals it.
			blockA := proposalHash
			blockB := synthesizeBlockHash(g.CurrentSlot, view, v)
			if blockB == blockA {
				blockB = types.InvalidBlockHash
			}
			actions = append(actions, Action{Kind: ActionByzantineDoubleVote, Validator: v, View: view, BlockHash: blockA, OtherBlock: blockB, VoteKind: types.VoteCommit})
			actions = append(actions, Action{Kind: ActionByzantineInvalidBlock, Validator: v, View: view})
			actions = append(actions, Action{Kind: ActionByzantineWithholdShreds, Validator: v})
			actions = append(actions, Action{Kind: ActionByzantineEquivocate, Validator: v, View: view, BlockHash: blockA, OtherBlock: blockB})

			// A Byzantine validator may duplicate or adversarially delay any
			// message it is itself the sender of (spec §4.2's network-level
			// Byzantine operations).
			for id, msg := range g.Network.Queue {
				if msg.Sender != v {
					continue
				}
				actions = append(actions, Action{Kind: ActionByzantineDuplicateMessage, Validator: v, MessageID: id})
				if g.Clock < d.cfg.GST {
					actions = append(actions, Action{Kind: ActionByzantineAdversarialDelay, Validator: v, MessageID: id, Delay: d.cfg.MaxNetworkDelay * byzantineAdversarialDelayMultiplier})
				}
			}
		}
	}

	// FinalizeBlock is enumerated directly from already-generated
	// certificates: a certificate for a not-yet-finalized slot enables
	// finalizing the block it names (the block's own view/proposer are
	// not recoverable from the certificate alone, which is sufficient
	// since FinalizeBlock only checks (slot, hash) identity).
	for _, certs := range g.Votor.GeneratedCerts {
		for _, cert := range certs {
			if _, already := g.Votor.FinalizedSlots[cert.Slot]; already {
				continue
			}
			block := types.Block{Slot: cert.Slot, View: cert.View, Hash: cert.Block}
			actions = append(actions, Action{Kind: ActionVotorFinalize, Certificate: cert, Block: block})
		}
	}

	for _, id := range d.network.Deliverable(g.Network, g.Clock) {
		actions = append(actions, Action{Kind: ActionNetworkDeliver, MessageID: id})
	}
	for _, id := range d.network.Droppable(g.Network, g.Clock) {
		actions = append(actions, Action{Kind: ActionNetworkDrop, MessageID: id})
	}
	if len(d.network.HealableIndices(g.Network, g.Clock)) > 0 {
		actions = append(actions, Action{Kind: ActionNetworkHealPartition})
	}

	return actions
}

// Next executes action against g and returns the resulting state (spec
// §4.5 Next). g is never mutated; the receiver clones first.
func (d *Driver) Next(g *GlobalState, action Action) (*GlobalState, error) {
	ng := g.Clone()

	switch action.Kind {
	case ActionAdvanceClock:
		ng.Clock++

	case ActionAdvanceSlot:
		if ng.CurrentSlot >= d.cfg.MaxSlot {
			return nil, errs.ErrActionNotEnabled
		}
		ng.CurrentSlot++
		ng.CurrentLead = d.votor.LeaderForView(ng.CurrentSlot, ng.Votor.CurrentView[ng.CurrentLead])

	case ActionVotorPropose:
		if err := d.votor.ProposeBlock(ng.Votor, action.Validator, action.Block); err != nil {
			return nil, err
		}
		ng.KnownBlocks[action.Block.Hash] = types.CloneBlock(action.Block)
		d.gossipVote(ng, action.Validator, action.Block, types.VoteProposal, ng.Clock)

	case ActionVotorCastVote:
		if err := d.votor.CastVote(ng.Votor, action.Validator, action.Block, action.VoteKind, ng.Clock); err != nil {
			return nil, err
		}
		d.gossipVote(ng, action.Validator, action.Block, action.VoteKind, ng.Clock)

	case ActionVotorCollectVotes:
		cert, err := d.votor.CollectVotes(ng.Votor, action.Validator, action.View, action.BlockHash)
		if err != nil {
			return nil, err
		}
		if cert != nil {
			d.metrics.ObserveCertificate(cert.Type.String())
		}

	case ActionVotorFinalize:
		if err := d.votor.FinalizeBlock(ng.Votor, action.Certificate, action.Block); err != nil {
			return nil, err
		}
		d.metrics.ObserveFinalized()

	case ActionVotorSubmitSkip:
		if _, err := d.votor.SubmitSkipVote(ng.Votor, action.Validator, action.View, ng.Clock); err != nil {
			return nil, err
		}

	case ActionVotorCollectSkip:
		if _, err := d.votor.CollectSkipVotes(ng.Votor, action.Validator, action.View, ng.Clock); err != nil {
			return nil, err
		}

	case ActionVotorTimeout:
		if err := d.votor.Timeout(ng.Votor, action.Validator, ng.Clock); err != nil {
			return nil, err
		}

	case ActionRotorShredDistribute:
		if err := d.rotor.ShredAndDistribute(ng.Rotor, action.Validator, action.Block, d.allValidators()); err != nil {
			return nil, err
		}

	case ActionRotorRelay:
		if err := d.rotor.RelayShreds(ng.Rotor, action.Validator, action.BlockHash); err != nil {
			return nil, err
		}

	case ActionRotorReconstruct:
		if _, err := d.rotor.AttemptReconstruction(ng.Rotor, action.Validator, action.BlockHash); err != nil {
			return nil, err
		}

	case ActionRotorRequestRepair:
		if err := d.rotor.RequestRepair(ng.Rotor, action.Validator, action.BlockHash, ng.Clock); err != nil {
			return nil, err
		}

	case ActionRotorRespondRepair:
		if err := d.rotor.RespondToRepair(ng.Rotor, action.Validator, action.RepairReq); err != nil {
			return nil, err
		}

	case ActionNetworkDeliver:
		if err := d.network.Deliver(ng.Network, ng.Clock, action.MessageID); err != nil {
			return nil, err
		}

	case ActionNetworkDrop:
		if err := d.network.Drop(ng.Network, ng.Clock, action.MessageID); err != nil {
			return nil, err
		}
		d.metrics.ObserveDrop()

	case ActionNetworkHealPartition:
		if err := d.network.HealPartition(ng.Network, ng.Clock); err != nil {
			return nil, err
		}

	case ActionByzantineDoubleVote:
		d.votor.DoubleVote(ng.Votor, action.Validator, action.View, ng.CurrentSlot, action.BlockHash, action.OtherBlock, action.VoteKind, ng.Clock)

	case ActionByzantineInvalidBlock:
		d.votor.InvalidBlockVote(ng.Votor, action.Validator, action.View, ng.CurrentSlot, ng.Clock)

	case ActionByzantineWithholdShreds:
		d.votor.WithholdShreds()

	case ActionByzantineEquivocate:
		d.votor.Equivocate(ng.Votor, action.Validator, action.View, ng.CurrentSlot, action.BlockHash, action.OtherBlock, ng.Clock)

	case ActionByzantineDuplicateMessage:
		if _, err := d.network.DuplicateMessage(ng.Network, ng.Clock, action.MessageID); err != nil {
			return nil, err
		}

	case ActionByzantineAdversarialDelay:
		if err := d.network.AdversarialDelay(ng.Network, ng.Clock, action.MessageID, action.Delay); err != nil {
			return nil, err
		}

	default:
		return nil, errs.ErrActionNotEnabled
	}

	var before, after uint64
	for _, b := range g.Rotor.Bandwidth {
		before += b
	}
	for _, b := range ng.Rotor.Bandwidth {
		after += b
	}
	if after > before {
		d.metrics.ObserveBandwidth(after - before)
	}

	return ng, nil
}

// gossipVote fans a just-cast vote out to every other validator's
// ReceivedVotes, standing in for the network-message propagation the
// votor package itself doesn't model (it only knows about votes once
// they reach a validator's own state). Votes reach every validator in
// this one step rather than being threaded through NetworkMessage queues
// (Network's Broadcast only enqueues messages for later delivery), which
// would add delivery-order nondeterminism the vote-tallying model doesn't
// need.
func (d *Driver) gossipVote(g *GlobalState, voter types.ValidatorId, block types.Block, kind types.VoteKind, now types.TimeValue) {
	vote := types.Vote{Voter: voter, Slot: block.Slot, View: block.View, Block: block.Hash, Kind: kind, Timestamp: now}
	for i := 0; i < d.cfg.ValidatorCount; i++ {
		observer := types.ValidatorId(i)
		if observer == voter {
			continue
		}
		d.votor.RecordIncomingVote(g.Votor, observer, vote)
	}
}

func (d *Driver) allValidators() []types.ValidatorId {
	ids := make([]types.ValidatorId, d.cfg.ValidatorCount)
	for i := range ids {
		ids[i] = types.ValidatorId(i)
	}
	return ids
}

// ByzantineCount reports how many validators in g are marked Byzantine.
func (g *GlobalState) ByzantineCount() int {
	n := 0
	for _, st := range g.Failure {
		if st == types.Byzantine {
			n++
		}
	}
	return n
}
