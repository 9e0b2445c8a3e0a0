// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package network implements the partial-synchrony transport of spec §4.2:
// a logical message queue with GST/Delta-bounded delivery, partitions, and
// the adversarial operations the Byzantine action union needs.
package network

import (
	golog "github.com/ayushshrivastv/SuperteamIN-Alpenglow-sub002/log"
	"github.com/ayushshrivastv/SuperteamIN-Alpenglow-sub002/errs"
	"github.com/ayushshrivastv/SuperteamIN-Alpenglow-sub002/types"
)

// State is the network layer's contribution to the global state (spec §3
// "Network:"). It owns the undelivered-message set, per-validator inboxes,
// partitions, the dropped-message counter, and delivery-time bookkeeping.
type State struct {
	Queue        map[uint64]types.NetworkMessage
	Inbox        map[types.ValidatorId]map[uint64]types.NetworkMessage
	Partitions   []types.Partition
	Dropped      uint64
	DeliveryTime map[uint64]types.TimeValue
	NextID       uint64
}

// NewState returns an empty network state for validatorCount validators.
func NewState(validatorCount int) *State {
	inbox := make(map[types.ValidatorId]map[uint64]types.NetworkMessage, validatorCount)
	for i := 0; i < validatorCount; i++ {
		inbox[types.ValidatorId(i)] = make(map[uint64]types.NetworkMessage)
	}
	return &State{
		Queue:        make(map[uint64]types.NetworkMessage),
		Inbox:        inbox,
		DeliveryTime: make(map[uint64]types.TimeValue),
	}
}

// Clone returns a deep copy of the network state.
func (s *State) Clone() *State {
	ns := &State{
		Queue:        make(map[uint64]types.NetworkMessage, len(s.Queue)),
		Inbox:        make(map[types.ValidatorId]map[uint64]types.NetworkMessage, len(s.Inbox)),
		Partitions:   make([]types.Partition, len(s.Partitions)),
		Dropped:      s.Dropped,
		DeliveryTime: make(map[uint64]types.TimeValue, len(s.DeliveryTime)),
		NextID:       s.NextID,
	}
	for id, m := range s.Queue {
		ns.Queue[id] = m
	}
	for v, box := range s.Inbox {
		nb := make(map[uint64]types.NetworkMessage, len(box))
		for id, m := range box {
			nb[id] = m
		}
		ns.Inbox[v] = nb
	}
	for i, p := range s.Partitions {
		ns.Partitions[i] = p.Clone()
	}
	for id, t := range s.DeliveryTime {
		ns.DeliveryTime[id] = t
	}
	return ns
}

// Params carries the subset of config.Config the network layer needs,
// kept narrow so this package doesn't import config (which would create
// an import cycle once config needs network-level defaults).
type Params struct {
	ValidatorCount int
	Delta          types.TimeValue // max_network_delay
	GST            types.TimeValue
	PartitionTimeout types.TimeValue
	ByzantineSet   map[types.ValidatorId]struct{}
}

// Network drives the operations of spec §4.2 against a *State.
type Network struct {
	params Params
	log    golog.Logger
}

// New returns a Network bound to params. A nil logger defaults to a no-op.
func New(params Params, logger golog.Logger) *Network {
	if logger == nil {
		logger = golog.NewNoOpLogger()
	}
	return &Network{params: params, log: logger}
}

// preGSTDelayMultiplier is the adversarial-delay proxy for "unbounded"
// pre-GST delivery (spec §4.2: "delay = 10·Delta as an upper proxy for
// unbounded").
const preGSTDelayMultiplier = 10

func (n *Network) delay(now types.TimeValue) types.TimeValue {
	if now < n.params.GST {
		return n.params.Delta * preGSTDelayMultiplier
	}
	return n.params.Delta
}

func (n *Network) nextMessageID(s *State, now types.TimeValue, sender types.ValidatorId) uint64 {
	id := s.NextID
	s.NextID++
	_ = now
	_ = sender
	return id
}

// Send enqueues a unicast message. Never fails (spec §4.2 "Does not fail").
func (n *Network) Send(s *State, now types.TimeValue, sender types.ValidatorId, recipient types.ValidatorId, kind types.MsgKind, payload []byte) types.NetworkMessage {
	msg := types.NetworkMessage{
		ID:        n.nextMessageID(s, now, sender),
		Sender:    sender,
		Recipient: types.ValidatorRecipient(recipient),
		Kind:      kind,
		Payload:   payload,
		Timestamp: now,
		SigValid:  true,
	}
	s.Queue[msg.ID] = msg
	s.DeliveryTime[msg.ID] = now + n.delay(now)
	n.log.Debug("network send", "id", msg.ID, "sender", sender, "recipient", recipient)
	return msg
}

// Broadcast enqueues one message per other validator.
func (n *Network) Broadcast(s *State, now types.TimeValue, sender types.ValidatorId, kind types.MsgKind, payload []byte) []types.NetworkMessage {
	msgs := make([]types.NetworkMessage, 0, n.params.ValidatorCount-1)
	for i := 0; i < n.params.ValidatorCount; i++ {
		target := types.ValidatorId(i)
		if target == sender {
			continue
		}
		msg := types.NetworkMessage{
			ID:        n.nextMessageID(s, now, sender),
			Sender:    sender,
			Recipient: types.ValidatorRecipient(target),
			Kind:      kind,
			Payload:   payload,
			Timestamp: now,
			SigValid:  true,
		}
		s.Queue[msg.ID] = msg
		s.DeliveryTime[msg.ID] = now + n.delay(now)
		msgs = append(msgs, msg)
	}
	n.log.Debug("network broadcast", "sender", sender, "count", len(msgs))
	return msgs
}

// isolated reports whether any unhealed partition separates sender from
// recipient.
func isolated(partitions []types.Partition, sender, recipient types.ValidatorId) bool {
	for _, p := range partitions {
		if p.Isolates(sender, recipient) {
			return true
		}
	}
	return false
}

// deliverable implements the predicate of spec §4.2: time reached,
// no isolating partition, and (post-GST, honest sender) within Delta of
// the message's own timestamp.
func (n *Network) deliverable(s *State, now types.TimeValue, msg types.NetworkMessage) bool {
	if dt, ok := s.DeliveryTime[msg.ID]; ok && now < dt {
		return false
	}
	if !msg.Recipient.Broadcast {
		if isolated(s.Partitions, msg.Sender, msg.Recipient.Validator) {
			return false
		}
	}
	if now >= n.params.GST && msg.Timestamp >= n.params.GST {
		if _, byz := n.params.ByzantineSet[msg.Sender]; !byz {
			if s.DeliveryTime[msg.ID] > msg.Timestamp+n.params.Delta {
				return false
			}
		}
	}
	return true
}

// Deliverable returns the IDs of every message currently deliverable, used
// by the driver to enumerate the Network(Deliver) action once per message.
func (n *Network) Deliverable(s *State, now types.TimeValue) []uint64 {
	var ids []uint64
	for id, msg := range s.Queue {
		if n.deliverable(s, now, msg) {
			ids = append(ids, id)
		}
	}
	return ids
}

// Deliver removes message id from the queue and inserts it into the
// recipient inbox(es). Returns ErrNoDeliverableMessage if id isn't queued
// or isn't yet deliverable.
func (n *Network) Deliver(s *State, now types.TimeValue, id uint64) error {
	msg, ok := s.Queue[id]
	if !ok || !n.deliverable(s, now, msg) {
		return errs.ErrNoDeliverableMessage
	}
	delete(s.Queue, id)
	delete(s.DeliveryTime, id)
	if msg.Recipient.Broadcast {
		for i := 0; i < n.params.ValidatorCount; i++ {
			v := types.ValidatorId(i)
			if v == msg.Sender {
				continue
			}
			if isolated(s.Partitions, msg.Sender, v) {
				continue
			}
			s.Inbox[v][msg.ID] = msg
		}
	} else {
		s.Inbox[msg.Recipient.Validator][msg.ID] = msg
	}
	n.log.Debug("network deliver", "id", id)
	return nil
}

// Droppable returns the IDs of queued pre-GST messages eligible for
// Drop (Byzantine sender or invalid signature).
func (n *Network) Droppable(s *State, now types.TimeValue) []uint64 {
	if now >= n.params.GST {
		return nil
	}
	var ids []uint64
	for id, msg := range s.Queue {
		if _, byz := n.params.ByzantineSet[msg.Sender]; byz || !msg.SigValid {
			ids = append(ids, id)
		}
	}
	return ids
}

// Drop removes a droppable pre-GST message and increments the dropped
// counter (spec §4.2).
func (n *Network) Drop(s *State, now types.TimeValue, id uint64) error {
	if now >= n.params.GST {
		return errs.NewNetworkError("cannot drop after GST")
	}
	msg, ok := s.Queue[id]
	if !ok {
		return errs.NewNetworkError("message %d not queued", id)
	}
	_, byz := n.params.ByzantineSet[msg.Sender]
	if !byz && msg.SigValid {
		return errs.NewNetworkError("message %d is not droppable (honest sender, valid signature)", id)
	}
	delete(s.Queue, id)
	delete(s.DeliveryTime, id)
	s.Dropped++
	n.log.Debug("network drop", "id", id)
	return nil
}

// CreatePartition splits the validator set into two halves, pre-GST only.
// Both halves must be non-empty, disjoint, cover every validator, and each
// contain at least one honest validator (spec §4.2).
func (n *Network) CreatePartition(s *State, now types.TimeValue, p1, p2 map[types.ValidatorId]struct{}) error {
	if now >= n.params.GST {
		return errs.NewNetworkError("cannot create partition after GST")
	}
	if len(p1) == 0 || len(p2) == 0 {
		return errs.NewNetworkError("partition groups cannot be empty")
	}
	for v := range p1 {
		if _, in2 := p2[v]; in2 {
			return errs.NewNetworkError("partition groups must be disjoint")
		}
	}
	if len(p1)+len(p2) != n.params.ValidatorCount {
		return errs.NewNetworkError("partition must cover all validators")
	}
	honestIn := func(p map[types.ValidatorId]struct{}) int {
		count := 0
		for v := range p {
			if _, byz := n.params.ByzantineSet[v]; !byz {
				count++
			}
		}
		return count
	}
	if honestIn(p1) == 0 || honestIn(p2) == 0 {
		return errs.NewNetworkError("partition would isolate all honest validators")
	}
	s.Partitions = append(s.Partitions, types.Partition{P1: p1, P2: p2, Start: now})
	n.log.Info("network partition created", "size1", len(p1), "size2", len(p2))
	return nil
}

// HealableIndices returns the indices into s.Partitions eligible to heal:
// unhealed, and either now >= GST or now >= start + PartitionTimeout.
func (n *Network) HealableIndices(s *State, now types.TimeValue) []int {
	var idx []int
	for i, p := range s.Partitions {
		if p.Healed {
			continue
		}
		if now >= n.params.GST || now >= p.Start+n.params.PartitionTimeout {
			idx = append(idx, i)
		}
	}
	return idx
}

// HealPartition marks one eligible partition healed (spec I10).
func (n *Network) HealPartition(s *State, now types.TimeValue) error {
	idx := n.HealableIndices(s, now)
	if len(idx) == 0 {
		return errs.ErrNothingToHeal
	}
	s.Partitions[idx[0]].Healed = true
	n.log.Info("network partition healed", "index", idx[0])
	return nil
}

// InjectByzantine enqueues a message with an invalid signature on behalf
// of a Byzantine sender (spec §4.2). Callers must confirm the sender is
// Byzantine before calling; this function doesn't know validator status.
func (n *Network) InjectByzantine(s *State, now types.TimeValue, sender types.ValidatorId, recipient types.Recipient, kind types.MsgKind, payload []byte) types.NetworkMessage {
	msg := types.NetworkMessage{
		ID:        n.nextMessageID(s, now, sender),
		Sender:    sender,
		Recipient: recipient,
		Kind:      kind,
		Payload:   payload,
		Timestamp: now,
		SigValid:  false,
	}
	s.Queue[msg.ID] = msg
	s.DeliveryTime[msg.ID] = now + n.delay(now)
	n.log.Warn("network byzantine inject", "sender", sender)
	return msg
}

// DuplicateMessage re-enqueues a copy of an already-queued message under a
// fresh ID. Byzantine-sender only per spec §4.2; callers enforce that.
func (n *Network) DuplicateMessage(s *State, now types.TimeValue, id uint64) (types.NetworkMessage, error) {
	orig, ok := s.Queue[id]
	if !ok {
		return types.NetworkMessage{}, errs.NewNetworkError("message %d not queued", id)
	}
	dup := orig
	dup.ID = n.nextMessageID(s, now, orig.Sender)
	s.Queue[dup.ID] = dup
	s.DeliveryTime[dup.ID] = s.DeliveryTime[id]
	return dup, nil
}

// AdversarialDelay overrides a queued message's delivery time. Pre-GST,
// Byzantine-sender only per spec §4.2; callers enforce that.
func (n *Network) AdversarialDelay(s *State, now types.TimeValue, id uint64, newDelay types.TimeValue) error {
	if now >= n.params.GST {
		return errs.NewNetworkError("adversarial delay only permitted pre-GST")
	}
	if _, ok := s.Queue[id]; !ok {
		return errs.NewNetworkError("message %d not queued", id)
	}
	s.DeliveryTime[id] = now + newDelay
	return nil
}
