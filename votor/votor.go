// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package votor implements the dual-threshold voting state machine of spec
// §4.4: view tracking, leader selection, adaptive timeouts, certificate
// generation, finalization, and the Byzantine vote actions.
package votor

import (
	"hash/fnv"
	"sort"

	golog "github.com/ayushshrivastv/SuperteamIN-Alpenglow-sub002/log"
	"github.com/ayushshrivastv/SuperteamIN-Alpenglow-sub002/errs"
	"github.com/ayushshrivastv/SuperteamIN-Alpenglow-sub002/types"
)

// baseTimeout is the view-1 timeout duration in logical time units
// (spec §4.4).
const baseTimeout = types.TimeValue(100)

// skipCollectStakeNum/Den is the bare 2/3 threshold CollectSkipVotes uses
// to advance a view directly from accumulated skip votes, distinct from
// the slow-path threshold ValidateCertificate applies to a Skip
// certificate.
const skipCollectStakeNum, skipCollectStakeDen = 2, 3

// State is votor's contribution to the global state (spec §3 "Votor, per
// validator:").
type State struct {
	CurrentView        map[types.ValidatorId]types.ViewNumber
	TimeoutExpiry      map[types.ValidatorId]types.TimeValue
	VotedBlocks        map[types.ValidatorId]map[types.ViewNumber]map[types.BlockHash]struct{}
	ReceivedVotes      map[types.ValidatorId]map[types.ViewNumber][]types.Vote
	SkipVotes          map[types.ValidatorId]map[types.ViewNumber][]types.Vote
	GeneratedCerts     map[types.ViewNumber][]types.Certificate
	FinalizedChain     []types.Block
	FinalizedSlots     map[types.SlotNumber]struct{}
}

// NewState returns an empty votor state for validatorCount validators, with
// every validator's view initialized to 1 (spec §4.4 Init) and its first
// timeout armed from the base timeout.
func NewState(validatorCount int) *State {
	s := &State{
		CurrentView:    make(map[types.ValidatorId]types.ViewNumber, validatorCount),
		TimeoutExpiry:  make(map[types.ValidatorId]types.TimeValue, validatorCount),
		VotedBlocks:    make(map[types.ValidatorId]map[types.ViewNumber]map[types.BlockHash]struct{}, validatorCount),
		ReceivedVotes:  make(map[types.ValidatorId]map[types.ViewNumber][]types.Vote, validatorCount),
		SkipVotes:      make(map[types.ValidatorId]map[types.ViewNumber][]types.Vote, validatorCount),
		GeneratedCerts: make(map[types.ViewNumber][]types.Certificate),
		FinalizedSlots: make(map[types.SlotNumber]struct{}),
	}
	for i := 0; i < validatorCount; i++ {
		v := types.ValidatorId(i)
		s.CurrentView[v] = 1
		s.TimeoutExpiry[v] = baseTimeout
		s.VotedBlocks[v] = make(map[types.ViewNumber]map[types.BlockHash]struct{})
		s.ReceivedVotes[v] = make(map[types.ViewNumber][]types.Vote)
		s.SkipVotes[v] = make(map[types.ViewNumber][]types.Vote)
	}
	return s
}

// Clone returns a deep copy of the votor state.
func (s *State) Clone() *State {
	ns := &State{
		CurrentView:    make(map[types.ValidatorId]types.ViewNumber, len(s.CurrentView)),
		TimeoutExpiry:  make(map[types.ValidatorId]types.TimeValue, len(s.TimeoutExpiry)),
		VotedBlocks:    make(map[types.ValidatorId]map[types.ViewNumber]map[types.BlockHash]struct{}, len(s.VotedBlocks)),
		ReceivedVotes:  make(map[types.ValidatorId]map[types.ViewNumber][]types.Vote, len(s.ReceivedVotes)),
		SkipVotes:      make(map[types.ValidatorId]map[types.ViewNumber][]types.Vote, len(s.SkipVotes)),
		GeneratedCerts: make(map[types.ViewNumber][]types.Certificate, len(s.GeneratedCerts)),
		FinalizedChain: make([]types.Block, len(s.FinalizedChain)),
		FinalizedSlots: make(map[types.SlotNumber]struct{}, len(s.FinalizedSlots)),
	}
	for v, view := range s.CurrentView {
		ns.CurrentView[v] = view
	}
	for v, t := range s.TimeoutExpiry {
		ns.TimeoutExpiry[v] = t
	}
	for v, byView := range s.VotedBlocks {
		nbyView := make(map[types.ViewNumber]map[types.BlockHash]struct{}, len(byView))
		for view, blocks := range byView {
			nb := make(map[types.BlockHash]struct{}, len(blocks))
			for h := range blocks {
				nb[h] = struct{}{}
			}
			nbyView[view] = nb
		}
		ns.VotedBlocks[v] = nbyView
	}
	for v, byView := range s.ReceivedVotes {
		nbyView := make(map[types.ViewNumber][]types.Vote, len(byView))
		for view, votes := range byView {
			nbyView[view] = append([]types.Vote(nil), votes...)
		}
		ns.ReceivedVotes[v] = nbyView
	}
	for v, byView := range s.SkipVotes {
		nbyView := make(map[types.ViewNumber][]types.Vote, len(byView))
		for view, votes := range byView {
			nbyView[view] = append([]types.Vote(nil), votes...)
		}
		ns.SkipVotes[v] = nbyView
	}
	for view, certs := range s.GeneratedCerts {
		ns.GeneratedCerts[view] = append([]types.Certificate(nil), certs...)
	}
	copy(ns.FinalizedChain, s.FinalizedChain)
	for slot := range s.FinalizedSlots {
		ns.FinalizedSlots[slot] = struct{}{}
	}
	return ns
}

// Params carries the subset of config.Config votor needs.
type Params struct {
	ValidatorCount     int
	StakeDistribution  map[types.ValidatorId]types.StakeAmount
	TotalStake         types.StakeAmount
	FastPathThreshold  types.StakeAmount
	SlowPathThreshold  types.StakeAmount
	MaxView            types.ViewNumber
	MaxSlot            types.SlotNumber
	TimeoutDelta       types.TimeValue
	LeaderWindowSize   int
}

// Votor drives the operations of spec §4.4 against a *State.
type Votor struct {
	params Params
	log    golog.Logger
}

// New returns a Votor bound to params. A nil logger defaults to a no-op.
func New(params Params, logger golog.Logger) *Votor {
	if logger == nil {
		logger = golog.NewNoOpLogger()
	}
	return &Votor{params: params, log: logger}
}

// AdaptiveTimeout is base_timeout * 2^(view/leader_window_size), spec §4.4.
func (vt *Votor) AdaptiveTimeout(view types.ViewNumber) types.TimeValue {
	exp := uint(view) / uint(vt.params.LeaderWindowSize)
	return types.TimeValue(uint64(vt.params.TimeoutDelta) << exp)
}

// vrfMix is a deterministic, non-cryptographic stand-in for VRF output:
// an FNV-1a hash over the window index, giving a stable but
// unpredictable-looking per-window leader choice (DESIGN.md Open Question
// decision: cryptographic unpredictability is not exercised by this model).
func vrfMix(windowIndex uint64) uint64 {
	h := fnv.New64a()
	var buf [8]byte
	for i := 0; i < 8; i++ {
		buf[i] = byte(windowIndex >> (8 * i))
	}
	h.Write(buf[:])
	return h.Sum64()
}

// WindowLeader picks the stake-weighted leader for a 4-slot window: the
// validator minimizing vrfMix(windowIndex, validator)/stake, the standard
// "smallest weighted hash wins" VRF leader-election construction.
func (vt *Votor) WindowLeader(windowIndex uint64) types.ValidatorId {
	if vt.params.ValidatorCount == 0 {
		return 0
	}
	var best types.ValidatorId
	var bestWeighted uint64 = ^uint64(0)
	ids := make([]types.ValidatorId, vt.params.ValidatorCount)
	for i := range ids {
		ids[i] = types.ValidatorId(i)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	for _, v := range ids {
		mix := vrfMix(windowIndex*1000 + uint64(v))
		stake := vt.params.StakeDistribution[v]
		var weighted uint64
		if stake == 0 {
			weighted = ^uint64(0)
		} else {
			weighted = (mix / uint64(stake)) + 1
		}
		if weighted < bestWeighted {
			bestWeighted = weighted
			best = v
		}
	}
	return best
}

// LeaderForView rotates the window leader through `view mod
// LeaderWindowSize` over the canonical ascending validator ordering
// (spec §4.4 "leader windows ... rotate within the window").
func (vt *Votor) LeaderForView(slot types.SlotNumber, view types.ViewNumber) types.ValidatorId {
	if vt.params.ValidatorCount == 0 {
		return 0
	}
	windowIndex := uint64(slot) / uint64(vt.params.LeaderWindowSize)
	windowLeader := vt.WindowLeader(windowIndex)
	rotation := uint64(view) % uint64(vt.params.LeaderWindowSize)
	return types.ValidatorId((uint64(windowLeader) + rotation) % uint64(vt.params.ValidatorCount))
}

// validateVote applies spec §4.4's ValidateVoteMessage predicate.
func (vt *Votor) validateVote(v types.ValidatorId, view types.ViewNumber, slot types.SlotNumber) error {
	if v >= types.ValidatorId(vt.params.ValidatorCount) {
		return errs.NewProtocolViolation("validator %d does not exist", v)
	}
	if view < 1 || view > vt.params.MaxView {
		return errs.NewProtocolViolation("view %d out of bounds [1, %d]", view, vt.params.MaxView)
	}
	if slot < 1 || slot > vt.params.MaxSlot {
		return errs.NewProtocolViolation("slot %d out of bounds [1, %d]", slot, vt.params.MaxSlot)
	}
	return nil
}

// ProposeBlock implements spec §4.4: enabled when validator is the leader
// of (slot, view) and has not yet proposed in this view.
func (vt *Votor) ProposeBlock(s *State, proposer types.ValidatorId, block types.Block) error {
	if vt.LeaderForView(block.Slot, block.View) != proposer {
		return errs.NewProtocolViolation("validator %d is not the leader for (slot %d, view %d)", proposer, block.Slot, block.View)
	}
	if err := vt.validateVote(proposer, block.View, block.Slot); err != nil {
		return err
	}
	if block.View != s.CurrentView[proposer] {
		return errs.NewProtocolViolation("block view %d does not match validator %d's current view %d", block.View, proposer, s.CurrentView[proposer])
	}
	if _, voted := s.VotedBlocks[proposer][block.View][block.Hash]; voted {
		return errs.NewProtocolViolation("validator %d already proposed/voted block %d in view %d", proposer, block.Hash, block.View)
	}
	for _, v := range s.ReceivedVotes[proposer][block.View] {
		if v.Voter == proposer && v.Kind == types.VoteProposal {
			return errs.NewProtocolViolation("validator %d already proposed block %d in view %d", proposer, v.Block, block.View)
		}
	}

	vote := types.Vote{Voter: proposer, Slot: block.Slot, View: block.View, Block: block.Hash, Kind: types.VoteProposal}
	vt.recordVote(s, proposer, vote)
	vt.log.Debug("votor propose", "proposer", proposer, "slot", block.Slot, "view", block.View)
	return nil
}

// CastVote implements spec §4.4: a validator casts an Echo/Commit vote for
// a block in its current view, at most once per (view, kind).
func (vt *Votor) CastVote(s *State, voter types.ValidatorId, block types.Block, kind types.VoteKind, now types.TimeValue) error {
	if err := vt.validateVote(voter, block.View, block.Slot); err != nil {
		return err
	}
	if block.View != s.CurrentView[voter] {
		return errs.NewProtocolViolation("vote view %d does not match validator %d's current view %d", block.View, voter, s.CurrentView[voter])
	}
	for _, v := range s.ReceivedVotes[voter][block.View] {
		if v.Voter == voter && v.Kind == kind {
			return errs.NewProtocolViolation("validator %d already cast a %s vote in view %d", voter, kind, block.View)
		}
	}

	vote := types.Vote{Voter: voter, Slot: block.Slot, View: block.View, Block: block.Hash, Kind: kind, Timestamp: now}
	vt.recordVote(s, voter, vote)
	return nil
}

func (vt *Votor) recordVote(s *State, observer types.ValidatorId, vote types.Vote) {
	if s.VotedBlocks[observer][vote.View] == nil {
		s.VotedBlocks[observer][vote.View] = make(map[types.BlockHash]struct{})
	}
	s.VotedBlocks[observer][vote.View][vote.Block] = struct{}{}
	s.ReceivedVotes[observer][vote.View] = append(s.ReceivedVotes[observer][vote.View], vote)
}

// RecordIncomingVote lets validator observer ingest a vote it received
// over the network, independent of casting its own.
func (vt *Votor) RecordIncomingVote(s *State, observer types.ValidatorId, vote types.Vote) {
	s.ReceivedVotes[observer][vote.View] = append(s.ReceivedVotes[observer][vote.View], vote)
}

// CollectVotes implements spec §4.4: tallies observer's received votes for
// (view, block) and, if stake crosses the slow threshold, emits a
// certificate (Fast if it also crosses the fast threshold).
func (vt *Votor) CollectVotes(s *State, observer types.ValidatorId, view types.ViewNumber, block types.BlockHash) (*types.Certificate, error) {
	if view != s.CurrentView[observer] {
		return nil, errs.NewProtocolViolation("collect votes view %d does not match validator %d's current view %d", view, observer, s.CurrentView[observer])
	}

	var signers []types.ValidatorId
	seen := make(map[types.ValidatorId]struct{})
	for _, v := range s.ReceivedVotes[observer][view] {
		if v.Block != block || v.Kind == types.VoteSkip {
			continue
		}
		if _, dup := seen[v.Voter]; dup {
			continue
		}
		seen[v.Voter] = struct{}{}
		signers = append(signers, v.Voter)
	}
	if len(signers) == 0 {
		return nil, nil
	}

	stake := types.StakeOf(signers, vt.params.StakeDistribution)
	var kind types.CertKind
	switch {
	case stake >= vt.params.FastPathThreshold:
		kind = types.CertFast
	case stake >= vt.params.SlowPathThreshold:
		kind = types.CertSlow
	default:
		return nil, nil
	}

	var slot types.SlotNumber
	for _, v := range s.ReceivedVotes[observer][view] {
		if v.Block == block {
			slot = v.Slot
			break
		}
	}

	cert := types.Certificate{
		Slot: slot, View: view, Block: block, Type: kind,
		Signers: signers, Stake: stake,
		Signatures: types.AggregatedSignature{Signers: signers, Message: types.MessageHash(block), Valid: true},
	}
	s.GeneratedCerts[view] = append(s.GeneratedCerts[view], cert)
	vt.log.Debug("votor certificate", "view", view, "block", block, "type", kind, "stake", stake)
	return &cert, nil
}

// ValidateCertificate recomputes the signer-set stake and rejects a
// certificate whose claimed stake does not match (spec I8/P2).
func (vt *Votor) ValidateCertificate(cert types.Certificate) error {
	recomputed := types.StakeOf(cert.Signers, vt.params.StakeDistribution)
	if recomputed != cert.Stake {
		return errs.NewProtocolViolation("certificate claims stake %d but signer set has stake %d", cert.Stake, recomputed)
	}
	switch cert.Type {
	case types.CertFast:
		if cert.Stake < vt.params.FastPathThreshold {
			return errs.NewProtocolViolation("fast certificate stake %d below fast threshold %d", cert.Stake, vt.params.FastPathThreshold)
		}
	case types.CertSlow, types.CertSkip:
		if cert.Stake < vt.params.SlowPathThreshold {
			return errs.NewProtocolViolation("certificate stake %d below slow threshold %d", cert.Stake, vt.params.SlowPathThreshold)
		}
	}
	return nil
}

// FinalizeBlock implements spec §4.4: a valid certificate finalizes its
// block, rejecting a slot that already has a finalized block (I1).
func (vt *Votor) FinalizeBlock(s *State, cert types.Certificate, block types.Block) error {
	if err := vt.ValidateCertificate(cert); err != nil {
		return err
	}
	if cert.Block != block.Hash || cert.Slot != block.Slot {
		return errs.NewProtocolViolation("certificate does not match block %d at slot %d", block.Hash, block.Slot)
	}
	if _, already := s.FinalizedSlots[block.Slot]; already {
		return errs.NewProtocolViolation("slot %d already has a finalized block", block.Slot)
	}
	if len(s.FinalizedChain) > 0 && block.Slot <= s.FinalizedChain[len(s.FinalizedChain)-1].Slot {
		return errs.NewProtocolViolation("finalized chain must be slot-monotone: slot %d is not after %d", block.Slot, s.FinalizedChain[len(s.FinalizedChain)-1].Slot)
	}

	s.FinalizedChain = append(s.FinalizedChain, types.CloneBlock(block))
	s.FinalizedSlots[block.Slot] = struct{}{}
	vt.log.Debug("votor finalize", "slot", block.Slot, "block", block.Hash, "cert", cert.Type)
	return nil
}

// Timeout implements spec §4.4: enabled once current_time has reached
// validator's armed timeout_expiry; submits an implicit skip vote and
// advances the view with the next adaptive timeout armed.
func (vt *Votor) Timeout(s *State, validator types.ValidatorId, now types.TimeValue) error {
	if now < s.TimeoutExpiry[validator] {
		return errs.NewProtocolViolation("validator %d's timeout has not expired yet", validator)
	}

	currentView := s.CurrentView[validator]
	skip := types.Vote{Voter: validator, Slot: types.SlotNumber(currentView), View: currentView, Block: types.ZeroBlockHash, Kind: types.VoteSkip, Timestamp: now}
	s.SkipVotes[validator][currentView] = append(s.SkipVotes[validator][currentView], skip)

	newView := currentView + 1
	s.CurrentView[validator] = newView
	s.TimeoutExpiry[validator] = now + vt.AdaptiveTimeout(newView)
	return nil
}

// SubmitSkipVote implements spec §4.4: a validator explicitly submits a
// skip vote for its current view once its timeout has expired.
func (vt *Votor) SubmitSkipVote(s *State, validator types.ValidatorId, view types.ViewNumber, now types.TimeValue) (types.Vote, error) {
	if now < s.TimeoutExpiry[validator] {
		return types.Vote{}, errs.NewProtocolViolation("validator %d's timeout has not expired yet", validator)
	}
	if view != s.CurrentView[validator] {
		return types.Vote{}, errs.NewProtocolViolation("skip vote view %d does not match validator %d's current view %d", view, validator, s.CurrentView[validator])
	}

	skip := types.Vote{Voter: validator, Slot: types.SlotNumber(view), View: view, Block: types.ZeroBlockHash, Kind: types.VoteSkip, Timestamp: now}
	s.SkipVotes[validator][view] = append(s.SkipVotes[validator][view], skip)

	newView := view + 1
	s.CurrentView[validator] = newView
	s.TimeoutExpiry[validator] = now + vt.AdaptiveTimeout(newView)
	return skip, nil
}

// CollectSkipVotes implements spec §4.4's CollectSkipVotes action: if
// observer's accumulated skip-vote stake for view reaches the bare 2/3
// threshold, observer's view advances too. This is a separate threshold
// from the 60%-stake check ValidateCertificate applies to a Skip
// certificate; CollectVotes ignores skip votes and never emits a Skip
// certificate (DESIGN.md Open Question decision).
func (vt *Votor) CollectSkipVotes(s *State, observer types.ValidatorId, view types.ViewNumber, now types.TimeValue) (bool, error) {
	if view != s.CurrentView[observer] {
		return false, errs.NewProtocolViolation("collect skip votes view %d does not match validator %d's current view %d", view, observer, s.CurrentView[observer])
	}

	seen := make(map[types.ValidatorId]struct{})
	var voters []types.ValidatorId
	for _, v := range s.SkipVotes[observer][view] {
		if _, dup := seen[v.Voter]; dup {
			continue
		}
		seen[v.Voter] = struct{}{}
		voters = append(voters, v.Voter)
	}
	stake := types.StakeOf(voters, vt.params.StakeDistribution)
	if stake*skipCollectStakeDen < vt.params.TotalStake*skipCollectStakeNum {
		return false, nil
	}

	newView := view + 1
	s.CurrentView[observer] = newView
	s.TimeoutExpiry[observer] = now + vt.AdaptiveTimeout(newView)
	return true, nil
}

// DoubleVote is the Byzantine action of spec §4.4: an equivocating
// validator casts two conflicting votes for the same (view, kind).
func (vt *Votor) DoubleVote(s *State, validator types.ValidatorId, view types.ViewNumber, slot types.SlotNumber, blockA, blockB types.BlockHash, kind types.VoteKind, now types.TimeValue) (types.Vote, types.Vote) {
	voteA := types.Vote{Voter: validator, Slot: slot, View: view, Block: blockA, Kind: kind, Timestamp: now}
	voteB := types.Vote{Voter: validator, Slot: slot, View: view, Block: blockB, Kind: kind, Timestamp: now}
	s.ReceivedVotes[validator][view] = append(s.ReceivedVotes[validator][view], voteA, voteB)
	return voteA, voteB
}

// InvalidBlockVote is the Byzantine action of proposing/voting for the
// sentinel invalid block hash.
func (vt *Votor) InvalidBlockVote(s *State, validator types.ValidatorId, view types.ViewNumber, slot types.SlotNumber, now types.TimeValue) types.Vote {
	vote := types.Vote{Voter: validator, Slot: slot, View: view, Block: types.InvalidBlockHash, Kind: types.VoteCommit, Timestamp: now}
	s.ReceivedVotes[validator][view] = append(s.ReceivedVotes[validator][view], vote)
	return vote
}

// WithholdShreds is the Byzantine no-op of spec §4.4: a proposer that
// never invokes rotor's ShredAndDistribute for its own block. Nothing to
// mutate here; the absence of a rotor call is the action.
func (vt *Votor) WithholdShreds() {}

// Equivocate is the Byzantine action of proposing two different blocks
// for the same (slot, view).
func (vt *Votor) Equivocate(s *State, validator types.ValidatorId, view types.ViewNumber, slot types.SlotNumber, blockA, blockB types.BlockHash, now types.TimeValue) (types.Vote, types.Vote) {
	return vt.DoubleVote(s, validator, view, slot, blockA, blockB, types.VoteProposal, now)
}
