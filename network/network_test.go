// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package network

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ayushshrivastv/SuperteamIN-Alpenglow-sub002/errs"
	"github.com/ayushshrivastv/SuperteamIN-Alpenglow-sub002/types"
)

func testParams() Params {
	return Params{
		ValidatorCount:   4,
		Delta:            50,
		GST:              1000,
		PartitionTimeout: 100,
		ByzantineSet:     map[types.ValidatorId]struct{}{},
	}
}

func TestSendPreGSTUsesTenXDelay(t *testing.T) {
	require := require.New(t)
	s := NewState(4)
	n := New(testParams(), nil)

	msg := n.Send(s, 0, 0, 1, types.MsgVote, nil)
	require.Equal(types.TimeValue(500), s.DeliveryTime[msg.ID])
}

func TestSendPostGSTUsesDelta(t *testing.T) {
	require := require.New(t)
	s := NewState(4)
	n := New(testParams(), nil)

	msg := n.Send(s, 1000, 0, 1, types.MsgVote, nil)
	require.Equal(types.TimeValue(1050), s.DeliveryTime[msg.ID])
}

func TestDeliverRespectsTime(t *testing.T) {
	require := require.New(t)
	s := NewState(4)
	n := New(testParams(), nil)

	msg := n.Send(s, 0, 0, 1, types.MsgVote, nil)
	require.Empty(n.Deliverable(s, 10))
	require.ErrorIs(n.Deliver(s, 10, msg.ID), errs.ErrNoDeliverableMessage)
	require.NotEmpty(n.Deliverable(s, 500))
	require.NoError(n.Deliver(s, 500, msg.ID))
	require.Contains(s.Inbox[1], msg.ID)
	require.NotContains(s.Queue, msg.ID)
}

func TestPartitionBlocksDeliveryUntilHealed(t *testing.T) {
	require := require.New(t)
	s := NewState(4)
	n := New(testParams(), nil)

	require.NoError(n.CreatePartition(s, 100,
		map[types.ValidatorId]struct{}{0: {}, 1: {}},
		map[types.ValidatorId]struct{}{2: {}, 3: {}}))

	msg := n.Send(s, 100, 0, 2, types.MsgVote, nil)
	require.Empty(n.Deliverable(s, 2000), "isolated pair must not be deliverable even well past delivery time")

	require.NoError(n.HealPartition(s, 1000))
	require.NotEmpty(n.Deliverable(s, 2000))
	require.NoError(n.Deliver(s, 2000, msg.ID))
}

func TestCreatePartitionRejectsIsolatingAllHonest(t *testing.T) {
	require := require.New(t)
	s := NewState(4)
	p := testParams()
	p.ByzantineSet = map[types.ValidatorId]struct{}{2: {}, 3: {}}
	n := New(p, nil)

	err := n.CreatePartition(s, 100,
		map[types.ValidatorId]struct{}{0: {}, 1: {}},
		map[types.ValidatorId]struct{}{2: {}, 3: {}})
	require.Error(err, "the P2 side has no honest validator, so the partition is rejected")

	s2 := NewState(4)
	err = n.CreatePartition(s2, 100,
		map[types.ValidatorId]struct{}{0: {}, 1: {}, 2: {}, 3: {}},
		map[types.ValidatorId]struct{}{})
	require.Error(err)
}

func TestDropOnlyPreGSTAndOnlyByzantineOrInvalid(t *testing.T) {
	require := require.New(t)
	s := NewState(4)
	p := testParams()
	p.ByzantineSet = map[types.ValidatorId]struct{}{0: {}}
	n := New(p, nil)

	honestMsg := n.Send(s, 10, 1, 2, types.MsgVote, nil)
	require.Error(n.Drop(s, 10, honestMsg.ID))

	byzMsg := n.InjectByzantine(s, 10, 0, types.ValidatorRecipient(1), types.MsgVote, nil)
	require.NoError(n.Drop(s, 10, byzMsg.ID))
	require.Equal(uint64(1), s.Dropped)

	require.Error(n.Drop(s, 2000, honestMsg.ID), "cannot drop post-GST")
}

func TestDuplicateMessageEnqueuesCopyUnderFreshID(t *testing.T) {
	require := require.New(t)
	s := NewState(4)
	n := New(testParams(), nil)

	msg := n.Send(s, 10, 0, 1, types.MsgVote, []byte("payload"))
	dup, err := n.DuplicateMessage(s, 10, msg.ID)
	require.NoError(err)

	require.NotEqual(msg.ID, dup.ID)
	require.Equal(msg.Sender, dup.Sender)
	require.Equal(msg.Recipient, dup.Recipient)
	require.Equal(msg.Payload, dup.Payload)
	require.Contains(s.Queue, dup.ID)
	require.Equal(s.DeliveryTime[msg.ID], s.DeliveryTime[dup.ID])
}

func TestDuplicateMessageRejectsUnqueuedID(t *testing.T) {
	require := require.New(t)
	s := NewState(4)
	n := New(testParams(), nil)

	_, err := n.DuplicateMessage(s, 10, 999)
	require.Error(err)
}

func TestAdversarialDelayOverridesDeliveryTimePreGST(t *testing.T) {
	require := require.New(t)
	s := NewState(4)
	n := New(testParams(), nil)

	msg := n.Send(s, 10, 0, 1, types.MsgVote, nil)
	require.NoError(n.AdversarialDelay(s, 10, msg.ID, 5000))
	require.Equal(types.TimeValue(5010), s.DeliveryTime[msg.ID])
	require.Empty(n.Deliverable(s, 2000), "the overridden delay must push delivery out well past the original")
}

func TestAdversarialDelayRejectsPostGSTAndUnqueued(t *testing.T) {
	require := require.New(t)
	s := NewState(4)
	n := New(testParams(), nil)

	msg := n.Send(s, 10, 0, 1, types.MsgVote, nil)
	require.Error(n.AdversarialDelay(s, 1000, msg.ID, 5000), "adversarial delay is pre-GST only")
	require.Error(n.AdversarialDelay(s, 10, 999, 5000))
}

func TestHealPartitionTimesOutWithoutGST(t *testing.T) {
	require := require.New(t)
	s := NewState(4)
	n := New(testParams(), nil)

	require.NoError(n.CreatePartition(s, 100,
		map[types.ValidatorId]struct{}{0: {}, 1: {}},
		map[types.ValidatorId]struct{}{2: {}, 3: {}}))

	require.Error(n.HealPartition(s, 150), "partition_timeout is 100, so 150 < 100+100 is too soon")
	require.NoError(n.HealPartition(s, 201))
}
