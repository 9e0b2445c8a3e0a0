// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package rotor implements the erasure-coded block dissemination engine of
// spec §4.3: shredding, stake-weighted relay assignment and target
// selection, reconstruction, the repair round-trip, bandwidth accounting,
// and non-equivocation tracking.
package rotor

import (
	"sort"

	"github.com/ayushshrivastv/SuperteamIN-Alpenglow-sub002/errs"
	golog "github.com/ayushshrivastv/SuperteamIN-Alpenglow-sub002/log"
	"github.com/ayushshrivastv/SuperteamIN-Alpenglow-sub002/metric"
	"github.com/ayushshrivastv/SuperteamIN-Alpenglow-sub002/types"
)

// repairBandwidthCost is the nominal per-request repair bandwidth charge
// (spec §4.3: "nominal 50 bytes per request").
const repairBandwidthCost = 50

// maxRepairRetries bounds a repair request before it surfaces as a
// liveness-violation Timeout (spec §4.3 failure semantics).
const maxRepairRetries = 5

// shredOverheadBytes models the fixed framing cost (hash + slot + index +
// signature) added to every shred's payload when computing its wire size.
const shredOverheadBytes = 32 + 8 + 4 + 64

// shredKey identifies a shred emission for non-equivocation tracking (I4):
// the pair (slot, index).
type shredKey struct {
	Slot  types.SlotNumber
	Index uint32
}

// Holdings is the set of shreds a single validator holds for a single
// block, keyed by index for O(1) membership and reconstruction checks.
type Holdings map[uint32]types.Shred

// State is rotor's contribution to the global state (spec §3 "Rotor, per
// block:").
type State struct {
	// Shreds[blockHash][validator] = the shreds that validator holds.
	Shreds map[types.BlockHash]map[types.ValidatorId]Holdings
	// RelayAssignments[blockHash][validator] = indices assigned at
	// ShredAndDistribute time.
	RelayAssignments map[types.BlockHash]map[types.ValidatorId][]uint32
	// Delivered[validator] = set of block hashes validator has
	// reconstructed and delivered to Votor.
	Delivered map[types.ValidatorId]map[types.BlockHash]struct{}
	// RepairRequests is the global repair-request set, keyed so a
	// requester can have at most one outstanding request per block.
	RepairRequests map[types.RepairKey]types.RepairRequest
	// Bandwidth[validator] = cumulative bytes sent this run.
	Bandwidth map[types.ValidatorId]uint64
	// History[validator][slot,index] = the shred validator has already
	// emitted for that (slot, index), for non-equivocation checks (I4).
	History map[types.ValidatorId]map[shredKey]types.Shred
	// BlockMeta[blockHash] holds the slot + original payload length so
	// AttemptReconstruction can recover (slot, hash) identity without
	// needing the full Block (spec §9 reconstruction-metadata note).
	BlockMeta map[types.BlockHash]BlockMeta
}

// BlockMeta is the slice of block metadata rotor needs independent of
// Votor's copy of the block (spec's "identity by (slot, hash)" pattern).
type BlockMeta struct {
	Slot        types.SlotNumber
	OriginalLen int
}

// NewState returns an empty rotor state for validatorCount validators.
func NewState(validatorCount int) *State {
	bw := make(map[types.ValidatorId]uint64, validatorCount)
	delivered := make(map[types.ValidatorId]map[types.BlockHash]struct{}, validatorCount)
	history := make(map[types.ValidatorId]map[shredKey]types.Shred, validatorCount)
	for i := 0; i < validatorCount; i++ {
		v := types.ValidatorId(i)
		bw[v] = 0
		delivered[v] = make(map[types.BlockHash]struct{})
		history[v] = make(map[shredKey]types.Shred)
	}
	return &State{
		Shreds:           make(map[types.BlockHash]map[types.ValidatorId]Holdings),
		RelayAssignments: make(map[types.BlockHash]map[types.ValidatorId][]uint32),
		Delivered:        delivered,
		RepairRequests:   make(map[types.RepairKey]types.RepairRequest),
		Bandwidth:        bw,
		History:          history,
		BlockMeta:        make(map[types.BlockHash]BlockMeta),
	}
}

// Clone returns a deep copy of the rotor state.
func (s *State) Clone() *State {
	ns := &State{
		Shreds:           make(map[types.BlockHash]map[types.ValidatorId]Holdings, len(s.Shreds)),
		RelayAssignments: make(map[types.BlockHash]map[types.ValidatorId][]uint32, len(s.RelayAssignments)),
		Delivered:        make(map[types.ValidatorId]map[types.BlockHash]struct{}, len(s.Delivered)),
		RepairRequests:   make(map[types.RepairKey]types.RepairRequest, len(s.RepairRequests)),
		Bandwidth:        make(map[types.ValidatorId]uint64, len(s.Bandwidth)),
		History:          make(map[types.ValidatorId]map[shredKey]types.Shred, len(s.History)),
		BlockMeta:        make(map[types.BlockHash]BlockMeta, len(s.BlockMeta)),
	}
	for h, byVal := range s.Shreds {
		nbyVal := make(map[types.ValidatorId]Holdings, len(byVal))
		for v, holdings := range byVal {
			nh := make(Holdings, len(holdings))
			for idx, sh := range holdings {
				nh[idx] = types.CloneShred(sh)
			}
			nbyVal[v] = nh
		}
		ns.Shreds[h] = nbyVal
	}
	for h, byVal := range s.RelayAssignments {
		nbyVal := make(map[types.ValidatorId][]uint32, len(byVal))
		for v, idxs := range byVal {
			nbyVal[v] = append([]uint32(nil), idxs...)
		}
		ns.RelayAssignments[h] = nbyVal
	}
	for v, set := range s.Delivered {
		ns2 := make(map[types.BlockHash]struct{}, len(set))
		for h := range set {
			ns2[h] = struct{}{}
		}
		ns.Delivered[v] = ns2
	}
	for k, r := range s.RepairRequests {
		nr := r
		nr.MissingIndices = append([]uint32(nil), r.MissingIndices...)
		ns.RepairRequests[k] = nr
	}
	for v, bw := range s.Bandwidth {
		ns.Bandwidth[v] = bw
	}
	for v, hist := range s.History {
		nhist := make(map[shredKey]types.Shred, len(hist))
		for k, sh := range hist {
			nhist[k] = types.CloneShred(sh)
		}
		ns.History[v] = nhist
	}
	for h, m := range s.BlockMeta {
		ns.BlockMeta[h] = m
	}
	return ns
}

// Params carries the subset of config.Config rotor needs.
type Params struct {
	ValidatorCount int
	StakeByValidator map[types.ValidatorId]types.StakeAmount
	TotalStake     types.StakeAmount
	K, N           uint32
	BandwidthLimit uint64
}

// Rotor drives the operations of spec §4.3 against a *State.
type Rotor struct {
	params Params
	log    golog.Logger
	// relayCost tracks the running average bytes charged per relay/repair
	// operation, independent of any single validator's Bandwidth entry.
	relayCost metric.Averager
}

// New returns a Rotor bound to params. A nil logger defaults to a no-op.
func New(params Params, logger golog.Logger) *Rotor {
	if logger == nil {
		logger = golog.NewNoOpLogger()
	}
	return &Rotor{params: params, log: logger, relayCost: metric.NewAverager()}
}

// AverageRelayCost reports the running average bytes charged per
// encode/relay/repair operation observed so far.
func (r *Rotor) AverageRelayCost() float64 {
	return r.relayCost.Read()
}

// Encode splits a block's payload into K data shreds and N-K parity
// shreds (spec §4.3's "shred partitioning contract", I6). Data chunks are
// zero-padded to equal size; every parity shred carries the plain XOR of
// all K data chunks (spec's "simpler XOR parity is an acceptable fallback"),
// so any one of them can recover a single missing data chunk but, absent a
// real Reed-Solomon matrix, more than one missing data chunk cannot be
// recovered from parity alone.
func (r *Rotor) Encode(blockHash types.BlockHash, slot types.SlotNumber, payload []byte) []types.Shred {
	k, n := r.params.K, r.params.N
	chunkSize := (len(payload) + int(k) - 1) / int(k)
	if chunkSize == 0 {
		chunkSize = 1
	}
	padded := make([]byte, chunkSize*int(k))
	copy(padded, payload)

	chunks := make([][]byte, k)
	for i := uint32(0); i < k; i++ {
		chunks[i] = padded[int(i)*chunkSize : int(i+1)*chunkSize]
	}

	shreds := make([]types.Shred, 0, n)
	for i := uint32(1); i <= k; i++ {
		data := append([]byte(nil), chunks[i-1]...)
		shreds = append(shreds, types.Shred{
			BlockHash: blockHash,
			Slot:      slot,
			Index:     i,
			Total:     n,
			Payload:   data,
			Parity:    false,
			Size:      len(data) + shredOverheadBytes,
		})
	}

	numParity := n - k
	if numParity > 0 {
		parity := make([]byte, chunkSize)
		for i := uint32(0); i < k; i++ {
			for b := range parity {
				parity[b] ^= chunks[i][b]
			}
		}
		for p := uint32(1); p <= numParity; p++ {
			shreds = append(shreds, types.Shred{
				BlockHash: blockHash,
				Slot:      slot,
				Index:     k + p,
				Total:     n,
				Payload:   append([]byte(nil), parity...),
				Parity:    true,
				Size:      len(parity) + shredOverheadBytes,
			})
		}
	}
	return shreds
}

// AssignRelays distributes N shred indices across validators proportional
// to stake (spec §4.3 "Relay assignment"): floor(S_v*N/S)+1 each,
// first-fit from the remaining budget of N. Falls back to round-robin over
// ceil(N/count) indices each when total stake is zero.
func (r *Rotor) AssignRelays(validators []types.ValidatorId) map[types.ValidatorId][]uint32 {
	n := r.params.N
	assignments := make(map[types.ValidatorId][]uint32, len(validators))

	if r.params.TotalStake == 0 {
		per := (n + uint32(len(validators)) - 1) / uint32(len(validators))
		next := uint32(1)
		for _, v := range validators {
			var idxs []uint32
			for c := uint32(0); c < per && next <= n; c++ {
				idxs = append(idxs, next)
				next++
			}
			assignments[v] = idxs
		}
		return assignments
	}

	var assigned uint32
	for _, v := range validators {
		if assigned >= n {
			assignments[v] = nil
			continue
		}
		stake := r.params.StakeByValidator[v]
		count := uint32((uint64(stake)*uint64(n))/uint64(r.params.TotalStake)) + 1
		if remaining := n - assigned; count > remaining {
			count = remaining
		}
		idxs := make([]uint32, 0, count)
		for c := uint32(0); c < count; c++ {
			idxs = append(idxs, assigned+c+1)
		}
		assigned += count
		assignments[v] = idxs
	}
	return assignments
}

// checkNonEquivocation rejects a shred if the validator already emitted a
// different shred for the same (slot, index) (spec I4).
func (r *Rotor) checkNonEquivocation(s *State, sender types.ValidatorId, sh types.Shred) error {
	key := shredKey{Slot: sh.Slot, Index: sh.Index}
	if existing, ok := s.History[sender][key]; ok {
		if existing.BlockHash != sh.BlockHash || string(existing.Payload) != string(sh.Payload) || existing.Parity != sh.Parity {
			return errs.NewProtocolViolation("non-equivocation violated: validator %d already sent a different shred for (slot %d, index %d)", sender, sh.Slot, sh.Index)
		}
	}
	return nil
}

func (r *Rotor) recordShredSent(s *State, sender types.ValidatorId, sh types.Shred) {
	key := shredKey{Slot: sh.Slot, Index: sh.Index}
	if s.History[sender] == nil {
		s.History[sender] = make(map[shredKey]types.Shred)
	}
	s.History[sender][key] = types.CloneShred(sh)
}

// RestoreHistory resets s.History to the given per-validator emission
// records. It exists so callers outside this package (the export/import
// round-trip) can rebuild non-equivocation history without reaching into
// the unexported shredKey type.
func RestoreHistory(s *State, entries []HistoryEntry) {
	s.History = make(map[types.ValidatorId]map[shredKey]types.Shred, len(entries))
	for _, e := range entries {
		if s.History[e.Validator] == nil {
			s.History[e.Validator] = make(map[shredKey]types.Shred)
		}
		s.History[e.Validator][shredKey{Slot: e.Slot, Index: e.Index}] = e.Shred
	}
}

// HistoryEntry is the flattened form of a single s.History record, used
// by RestoreHistory.
type HistoryEntry struct {
	Validator types.ValidatorId
	Slot      types.SlotNumber
	Index     uint32
	Shred     types.Shred
}

// ShredAndDistribute implements spec §4.3's action of the same name:
// enabled when leader == block.Proposer and the block has no shred map
// yet. It encodes, assigns, seeds each validator's initial holdings from
// its assignment, charges the leader's encoding bandwidth, and records
// non-equivocation history for every shred the leader emits.
func (r *Rotor) ShredAndDistribute(s *State, leader types.ValidatorId, block types.Block, allValidators []types.ValidatorId) error {
	if leader != block.Proposer {
		return errs.NewProtocolViolation("validator %d is not the proposer of block %d", leader, block.Hash)
	}
	if _, exists := s.Shreds[block.Hash]; exists {
		return errs.NewProtocolViolation("block %d already has a shred map", block.Hash)
	}

	shreds := r.Encode(block.Hash, block.Slot, block.Payload)
	for _, sh := range shreds {
		if err := r.checkNonEquivocation(s, leader, sh); err != nil {
			return err
		}
	}

	assignments := r.AssignRelays(allValidators)
	byValidator := make(map[types.ValidatorId]Holdings, len(allValidators))
	for _, v := range allValidators {
		holdings := make(Holdings)
		for _, idx := range assignments[v] {
			for _, sh := range shreds {
				if sh.Index == idx {
					holdings[idx] = sh
				}
			}
		}
		byValidator[v] = holdings
	}

	var encodingCost uint64
	for _, sh := range shreds {
		encodingCost += uint64(sh.Size)
		r.recordShredSent(s, leader, sh)
	}
	if s.Bandwidth[leader]+encodingCost > r.params.BandwidthLimit {
		return errs.NewProtocolViolation("encoding block %d would exceed validator %d's bandwidth limit", block.Hash, leader)
	}
	s.Bandwidth[leader] += encodingCost
	r.relayCost.Observe(float64(encodingCost))

	s.Shreds[block.Hash] = byValidator
	s.RelayAssignments[block.Hash] = assignments
	s.BlockMeta[block.Hash] = BlockMeta{Slot: block.Slot, OriginalLen: len(block.Payload)}

	r.log.Debug("rotor shred+distribute", "block", block.Hash, "shreds", len(shreds))
	return nil
}

// SelectRelayTargets implements the PS-P stake-weighted ranking of spec
// §4.3: top min(count/3, 10) validators by stake (excluding self, staked
// only) whose normalized weight*1000/total > 100, backfilled from the
// remaining high-stake tail if under-sized.
func (r *Rotor) SelectRelayTargets(self types.ValidatorId) []types.ValidatorId {
	relayCount := r.params.ValidatorCount / 3
	if relayCount > 10 {
		relayCount = 10
	}

	type ranked struct {
		id    types.ValidatorId
		stake types.StakeAmount
	}
	var byStake []ranked
	for v, stake := range r.params.StakeByValidator {
		if v == self || stake == 0 {
			continue
		}
		byStake = append(byStake, ranked{id: v, stake: stake})
	}
	sort.Slice(byStake, func(i, j int) bool {
		if byStake[i].stake != byStake[j].stake {
			return byStake[i].stake > byStake[j].stake
		}
		return byStake[i].id < byStake[j].id
	})

	var targets []types.ValidatorId
	limit := relayCount
	if limit > len(byStake) {
		limit = len(byStake)
	}
	inTargets := make(map[types.ValidatorId]struct{})
	if r.params.TotalStake > 0 {
		for _, rk := range byStake[:limit] {
			weight := (uint64(rk.stake) * 1000) / uint64(r.params.TotalStake)
			if weight > 100 {
				targets = append(targets, rk.id)
				inTargets[rk.id] = struct{}{}
			}
		}
	}

	if len(targets) < relayCount && len(byStake) >= relayCount {
		for _, rk := range byStake[:relayCount] {
			if _, already := inTargets[rk.id]; already {
				continue
			}
			targets = append(targets, rk.id)
			if len(targets) >= relayCount {
				break
			}
		}
	}
	return targets
}

// RelayShreds implements spec §4.3: validator relays every shred it holds
// for block to its PS-P-selected targets, charging its bandwidth and
// checking each shred it sends against its own send history
// (non-equivocation).
func (r *Rotor) RelayShreds(s *State, validator types.ValidatorId, blockHash types.BlockHash) error {
	holdings, ok := s.Shreds[blockHash][validator]
	if !ok || len(holdings) == 0 {
		return errs.NewProtocolViolation("validator %d holds no shreds for block %d", validator, blockHash)
	}

	var totalCost uint64
	for _, sh := range holdings {
		totalCost += uint64(sh.Size)
	}
	targets := r.SelectRelayTargets(validator)
	cost := totalCost * uint64(len(targets))
	if s.Bandwidth[validator]+cost > r.params.BandwidthLimit {
		return errs.NewProtocolViolation("relaying block %d would exceed validator %d's bandwidth limit", blockHash, validator)
	}

	for _, target := range targets {
		if s.Shreds[blockHash][target] == nil {
			s.Shreds[blockHash][target] = make(Holdings)
		}
		for idx, sh := range holdings {
			if err := r.checkNonEquivocation(s, validator, sh); err != nil {
				return err
			}
			s.Shreds[blockHash][target][idx] = sh
			r.recordShredSent(s, validator, sh)
		}
	}
	s.Bandwidth[validator] += cost
	r.relayCost.Observe(float64(cost))

	r.log.Debug("rotor relay", "validator", validator, "block", blockHash, "targets", len(targets))
	return nil
}

// missingDataIndices returns the data indices (1..k) absent from holdings,
// in ascending order.
func missingDataIndices(holdings Holdings, k uint32) []uint32 {
	var missing []uint32
	for i := uint32(1); i <= k; i++ {
		if _, ok := holdings[i]; !ok {
			missing = append(missing, i)
		}
	}
	return missing
}

// firstParityShred returns the lowest-indexed parity shred (index > k) held,
// if any.
func firstParityShred(holdings Holdings, k uint32) (types.Shred, bool) {
	var idxs []uint32
	for idx := range holdings {
		if idx > k {
			idxs = append(idxs, idx)
		}
	}
	if len(idxs) == 0 {
		return types.Shred{}, false
	}
	sort.Slice(idxs, func(i, j int) bool { return idxs[i] < idxs[j] })
	return holdings[idxs[0]], true
}

// CanReconstruct reports whether validator holds a set of shreds for block
// from which the original payload is actually decodable: either all K data
// shreds, or exactly one missing data shred covered by at least one held
// parity shred (spec §4.3 enablement for AttemptReconstruction/
// RequestRepair). Holding K or more shreds that are mostly or entirely
// parity is not enough without a real Reed-Solomon decode, matching
// original_source/stateright/src/rotor.rs's "Cannot reconstruct without
// Reed-Solomon" fallback.
func (r *Rotor) CanReconstruct(s *State, validator types.ValidatorId, blockHash types.BlockHash) bool {
	holdings := s.Shreds[blockHash][validator]
	switch missing := missingDataIndices(holdings, r.params.K); len(missing) {
	case 0:
		return true
	case 1:
		_, ok := firstParityShred(holdings, r.params.K)
		return ok
	default:
		return false
	}
}

// AttemptReconstruction reassembles block's payload from whatever shreds
// validator holds and marks the block delivered for that validator. Per
// spec §9, only (slot, hash) identity and opaque payload are recoverable
// from shreds; view/proposer/transactions are not.
func (r *Rotor) AttemptReconstruction(s *State, validator types.ValidatorId, blockHash types.BlockHash) (types.Block, error) {
	if !r.CanReconstruct(s, validator, blockHash) {
		return types.Block{}, errs.NewProtocolViolation("validator %d cannot reconstruct block %d: held shreds are not decodable without Reed-Solomon", validator, blockHash)
	}
	if _, already := s.Delivered[validator][blockHash]; already {
		return types.Block{}, errs.NewProtocolViolation("validator %d already delivered block %d", validator, blockHash)
	}

	holdings := s.Shreds[blockHash][validator]
	payload, err := reassemblePayload(holdings, r.params.K, s.BlockMeta[blockHash].OriginalLen)
	if err != nil {
		return types.Block{}, err
	}

	meta := s.BlockMeta[blockHash]
	block := types.Block{
		Slot:    meta.Slot,
		Hash:    blockHash,
		Payload: payload,
	}

	if s.Delivered[validator] == nil {
		s.Delivered[validator] = make(map[types.BlockHash]struct{})
	}
	s.Delivered[validator][blockHash] = struct{}{}

	r.log.Debug("rotor reconstruct", "validator", validator, "block", blockHash)
	return block, nil
}

// reassemblePayload recovers the original payload from held. If all K data
// shreds (indices 1..K) are present it concatenates them directly. If
// exactly one data shred is missing and a parity shred is held, it recovers
// the missing chunk by XORing the parity payload against every present data
// chunk (sound because Encode makes every parity shred the plain XOR of all
// K data chunks). Any other gap cannot be decoded without a real
// Reed-Solomon matrix and is reported as a ProtocolViolation rather than a
// fabricated payload, mirroring
// original_source/stateright/src/rotor.rs:489-520.
func reassemblePayload(holdings Holdings, k uint32, originalLen int) ([]byte, error) {
	missing := missingDataIndices(holdings, k)
	switch len(missing) {
	case 0:
		out := make([]byte, 0, k)
		for i := uint32(1); i <= k; i++ {
			out = append(out, holdings[i].Payload...)
		}
		return trimPayload(out, originalLen), nil
	case 1:
		parity, ok := firstParityShred(holdings, k)
		if !ok {
			return nil, errs.NewProtocolViolation("cannot reconstruct: data shred %d missing and no parity shred held", missing[0])
		}
		recovered := append([]byte(nil), parity.Payload...)
		for i := uint32(1); i <= k; i++ {
			sh, ok := holdings[i]
			if !ok {
				continue
			}
			for b, v := range sh.Payload {
				if b < len(recovered) {
					recovered[b] ^= v
				}
			}
		}
		out := make([]byte, 0, int(k)*len(recovered))
		for i := uint32(1); i <= k; i++ {
			if sh, ok := holdings[i]; ok {
				out = append(out, sh.Payload...)
			} else {
				out = append(out, recovered...)
			}
		}
		return trimPayload(out, originalLen), nil
	default:
		return nil, errs.NewProtocolViolation("cannot reconstruct without Reed-Solomon: %d data shreds missing", len(missing))
	}
}

func trimPayload(out []byte, originalLen int) []byte {
	if originalLen >= 0 && originalLen <= len(out) {
		return out[:originalLen]
	}
	return out
}

// RequestRepair implements spec §4.3: enabled when validator cannot
// reconstruct and has not delivered the block. Computes the missing data
// indices, charges repair bandwidth, and records the request.
func (r *Rotor) RequestRepair(s *State, validator types.ValidatorId, blockHash types.BlockHash, now types.TimeValue) error {
	if r.CanReconstruct(s, validator, blockHash) {
		return errs.NewProtocolViolation("validator %d can already reconstruct block %d", validator, blockHash)
	}
	if _, delivered := s.Delivered[validator][blockHash]; delivered {
		return errs.NewProtocolViolation("validator %d already delivered block %d", validator, blockHash)
	}

	held := s.Shreds[blockHash][validator]
	var missing []uint32
	for i := uint32(1); i <= r.params.K; i++ {
		if _, ok := held[i]; !ok {
			missing = append(missing, i)
		}
	}
	if len(missing) == 0 {
		return errs.NewProtocolViolation("validator %d has no missing data indices for block %d", validator, blockHash)
	}

	if s.Bandwidth[validator]+repairBandwidthCost > r.params.BandwidthLimit {
		return errs.NewProtocolViolation("repair request for block %d would exceed validator %d's bandwidth limit", blockHash, validator)
	}
	s.Bandwidth[validator] += repairBandwidthCost
	r.relayCost.Observe(float64(repairBandwidthCost))

	key := types.RepairKey{Requester: validator, BlockHash: blockHash}
	retries := 0
	if existing, ok := s.RepairRequests[key]; ok {
		retries = existing.Retries + 1
	}
	if retries > maxRepairRetries {
		return errs.NewTimeout("repair request for block %d by validator %d exceeded retry budget", blockHash, validator)
	}
	s.RepairRequests[key] = types.RepairRequest{
		Requester:      validator,
		BlockHash:      blockHash,
		MissingIndices: missing,
		Timestamp:      now,
		Retries:        retries,
	}
	r.log.Debug("rotor repair request", "validator", validator, "block", blockHash, "missing", len(missing))
	return nil
}

// RespondToRepair implements spec §4.3: any validator holding a requested
// shred replies, transferring it into the requester's holdings, removing
// the satisfied request, and charging bandwidth.
func (r *Rotor) RespondToRepair(s *State, responder types.ValidatorId, req types.RepairRequest) error {
	key := req.Key()
	if _, ok := s.RepairRequests[key]; !ok {
		return errs.NewProtocolViolation("repair request %+v is not outstanding", key)
	}
	holdings := s.Shreds[req.BlockHash][responder]
	if len(holdings) == 0 {
		return errs.NewProtocolViolation("validator %d holds no shreds for block %d", responder, req.BlockHash)
	}

	missing := make(map[uint32]struct{}, len(req.MissingIndices))
	for _, idx := range req.MissingIndices {
		missing[idx] = struct{}{}
	}
	var toSend []types.Shred
	for idx, sh := range holdings {
		if _, want := missing[idx]; want {
			toSend = append(toSend, sh)
		}
	}
	if len(toSend) == 0 {
		return errs.NewProtocolViolation("validator %d has none of the shreds requester %d is missing for block %d", responder, req.Requester, req.BlockHash)
	}

	var cost uint64
	for _, sh := range toSend {
		cost += uint64(sh.Size)
	}
	if s.Bandwidth[responder]+cost > r.params.BandwidthLimit {
		return errs.NewProtocolViolation("repair response for block %d would exceed validator %d's bandwidth limit", req.BlockHash, responder)
	}
	s.Bandwidth[responder] += cost
	r.relayCost.Observe(float64(cost))

	if s.Shreds[req.BlockHash][req.Requester] == nil {
		s.Shreds[req.BlockHash][req.Requester] = make(Holdings)
	}
	for _, sh := range toSend {
		if err := r.checkNonEquivocation(s, responder, sh); err != nil {
			return err
		}
		s.Shreds[req.BlockHash][req.Requester][sh.Index] = sh
		r.recordShredSent(s, responder, sh)
	}
	delete(s.RepairRequests, key)

	r.log.Debug("rotor repair response", "responder", responder, "requester", req.Requester, "block", req.BlockHash, "sent", len(toSend))
	return nil
}
