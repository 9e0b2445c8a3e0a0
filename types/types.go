// Copyright (C) 2019-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package types defines the Alpenglow data model: the scalar identifier
// types and value structs shared by every component (votor, rotor,
// network, and the integration driver). Fields mirror the external TLA+
// specification's state variables so that exported snapshots round-trip.
package types

import "fmt"

// ValidatorId identifies a validator. IDs are dense: 0..count-1.
type ValidatorId uint32

// SlotNumber identifies a consensus slot.
type SlotNumber uint64

// ViewNumber identifies a Votor view within a slot's leader window.
type ViewNumber uint64

// StakeAmount is a validator's (or aggregate) stake weight.
type StakeAmount uint64

// BlockHash is an opaque block identifier. It carries no cryptographic
// meaning; only equality and the sentinel zero value are significant.
type BlockHash uint64

// Signature is an opaque signature value. Validity is tracked out of band
// (see NetworkMessage.SigValid / Certificate.Signatures.Valid) rather than derived
// from the integer itself.
type Signature uint64

// MessageHash identifies a network message payload for aggregation.
type MessageHash uint64

// TimeValue is a logical clock reading.
type TimeValue uint64

// ZeroBlockHash is the sentinel hash carried by Skip votes.
const ZeroBlockHash BlockHash = 0

// InvalidBlockHash is the sentinel hash a Byzantine validator proposes
// under the InvalidBlock action (§4.4).
const InvalidBlockHash BlockHash = 999999

// Transaction is an opaque, client-supplied payload carried by a block.
type Transaction struct {
	ID        uint64
	Sender    ValidatorId
	Data      []byte
	Signature Signature
}

// Block is immutable once created; it is referenced elsewhere by Hash only
// (see DESIGN.md "Cyclic references").
type Block struct {
	Slot         SlotNumber
	View         ViewNumber
	Hash         BlockHash
	Parent       BlockHash
	Proposer     ValidatorId
	Transactions []Transaction
	Timestamp    TimeValue
	Signature    Signature
	Payload      []byte
}

// VoteKind enumerates the Votor vote variants of spec §3.
type VoteKind int

const (
	VoteProposal VoteKind = iota
	VoteEcho
	VoteCommit
	VoteSkip
)

func (k VoteKind) String() string {
	switch k {
	case VoteProposal:
		return "Proposal"
	case VoteEcho:
		return "Echo"
	case VoteCommit:
		return "Commit"
	case VoteSkip:
		return "Skip"
	default:
		return fmt.Sprintf("VoteKind(%d)", int(k))
	}
}

// Vote is a single validator's ballot for a (slot, view). Skip votes carry
// ZeroBlockHash. Honest validators cast at most one non-Skip vote per
// (view, kind); enforced by votor, not by this type.
type Vote struct {
	Voter     ValidatorId
	Slot      SlotNumber
	View      ViewNumber
	Block     BlockHash
	Kind      VoteKind
	Signature Signature
	Timestamp TimeValue
}

// CertKind enumerates the certificate tiers of spec §3/§4.4.
type CertKind int

const (
	CertFast CertKind = iota
	CertSlow
	CertSkip
)

func (k CertKind) String() string {
	switch k {
	case CertFast:
		return "Fast"
	case CertSlow:
		return "Slow"
	case CertSkip:
		return "Skip"
	default:
		return fmt.Sprintf("CertKind(%d)", int(k))
	}
}

// AggregatedSignature stands in for a real threshold signature: a signer
// set, the message it covers, and a validity bit.
type AggregatedSignature struct {
	Signers    []ValidatorId
	Message    MessageHash
	Signatures []Signature
	Valid      bool
}

// Certificate aggregates votes for a (slot, view, block) once enough stake
// has accumulated. Invariants I8/P2 are checked by votor.ValidateCertificate,
// not by this type.
type Certificate struct {
	Slot       SlotNumber
	View       ViewNumber
	Block      BlockHash
	Type       CertKind
	Signers    []ValidatorId
	Stake      StakeAmount
	Signatures AggregatedSignature
}

// Shred is one erasure-coded piece of a block. The pair (Slot, Index)
// uniquely identifies a shred emission for non-equivocation (I4).
type Shred struct {
	BlockHash BlockHash
	Slot      SlotNumber
	Index     uint32 // 1..N
	Total     uint32 // N
	Payload   []byte
	Parity    bool
	Signature Signature
	Size      int // bytes, for bandwidth accounting
}

// RepairRequest asks peers for the shreds a validator is missing for a
// block it cannot yet reconstruct.
type RepairRequest struct {
	Requester      ValidatorId
	BlockHash      BlockHash
	MissingIndices []uint32
	Timestamp      TimeValue
	Retries        int
}

// Key identifies a repair request uniquely within the global repair set.
func (r RepairRequest) Key() RepairKey {
	return RepairKey{Requester: r.Requester, BlockHash: r.BlockHash}
}

// RepairKey is the map key for the global repair-request set.
type RepairKey struct {
	Requester ValidatorId
	BlockHash BlockHash
}

// MsgKind enumerates the network message variants of spec §3.
type MsgKind int

const (
	MsgBlock MsgKind = iota
	MsgVote
	MsgCertificate
	MsgShred
	MsgRepair
)

func (k MsgKind) String() string {
	switch k {
	case MsgBlock:
		return "Block"
	case MsgVote:
		return "Vote"
	case MsgCertificate:
		return "Certificate"
	case MsgShred:
		return "Shred"
	case MsgRepair:
		return "Repair"
	default:
		return fmt.Sprintf("MsgKind(%d)", int(k))
	}
}

// Recipient is either a single validator or a broadcast to all validators.
type Recipient struct {
	Broadcast bool
	Validator ValidatorId // meaningful iff !Broadcast
}

// ValidatorRecipient builds a unicast Recipient.
func ValidatorRecipient(v ValidatorId) Recipient { return Recipient{Validator: v} }

// BroadcastRecipient is the shared broadcast recipient value.
var BroadcastRecipient = Recipient{Broadcast: true}

// NetworkMessage is a single envelope moving through the network layer.
// Payload is opaque; callers encode/decode it according to Kind.
type NetworkMessage struct {
	ID        uint64
	Sender    ValidatorId
	Recipient Recipient
	Kind      MsgKind
	Payload   []byte
	Timestamp TimeValue
	Signature Signature
	SigValid  bool
}

// Partition records a network split. Exactly one of the two validator sets
// contains any given validator for the partition's lifetime.
type Partition struct {
	P1        map[ValidatorId]struct{}
	P2        map[ValidatorId]struct{}
	Start     TimeValue
	Healed    bool
}

// Isolates reports whether the partition (if unhealed) prevents delivery
// between sender and recipient.
func (p Partition) Isolates(sender, recipient ValidatorId) bool {
	if p.Healed {
		return false
	}
	_, senderInP1 := p.P1[sender]
	_, recipientInP1 := p.P1[recipient]
	return senderInP1 != recipientInP1
}

// Clone returns a deep copy of the partition.
func (p Partition) Clone() Partition {
	np := Partition{P1: make(map[ValidatorId]struct{}, len(p.P1)), P2: make(map[ValidatorId]struct{}, len(p.P2)), Start: p.Start, Healed: p.Healed}
	for v := range p.P1 {
		np.P1[v] = struct{}{}
	}
	for v := range p.P2 {
		np.P2[v] = struct{}{}
	}
	return np
}

// Status is a validator's fixed-for-the-run failure mode.
type Status int

const (
	Honest Status = iota
	Byzantine
	Offline
)

func (s Status) String() string {
	switch s {
	case Honest:
		return "Honest"
	case Byzantine:
		return "Byzantine"
	case Offline:
		return "Offline"
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}

// CloneBlock returns a deep copy of b (transactions and payload are
// copied so callers may not observe in-place mutation of shared state).
func CloneBlock(b Block) Block {
	nb := b
	if b.Transactions != nil {
		nb.Transactions = append([]Transaction(nil), b.Transactions...)
	}
	if b.Payload != nil {
		nb.Payload = append([]byte(nil), b.Payload...)
	}
	return nb
}

// CloneShred returns a deep copy of sh.
func CloneShred(sh Shred) Shred {
	nsh := sh
	if sh.Payload != nil {
		nsh.Payload = append([]byte(nil), sh.Payload...)
	}
	return nsh
}

// StakeOf sums the stake of a signer set against the given distribution.
func StakeOf(signers []ValidatorId, dist map[ValidatorId]StakeAmount) StakeAmount {
	seen := make(map[ValidatorId]struct{}, len(signers))
	var total StakeAmount
	for _, v := range signers {
		if _, dup := seen[v]; dup {
			continue
		}
		seen[v] = struct{}{}
		total += dist[v]
	}
	return total
}
