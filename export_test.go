// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package alpenglow

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/types/known/timestamppb"

	"github.com/ayushshrivastv/SuperteamIN-Alpenglow-sub002/types"
)

// TestExportImportRoundTrip checks R1: exporting a state that has
// exercised every §3 substate (votor voting/certs/finalization, rotor
// shredding/relay assignment/bandwidth/history, network queueing and
// partitioning, plus Byzantine/offline bookkeeping) and importing the
// resulting Snapshot into a fresh GlobalState reproduces that state
// exactly, not just its four original scalar fields.
func TestExportImportRoundTrip(t *testing.T) {
	require := require.New(t)
	byzantine := map[types.ValidatorId]struct{}{3: {}}
	d, _ := newTestDriver(t, byzantine)
	g := d.Init()
	g.Failure[3] = types.Byzantine
	g.Failure[2] = types.Offline

	leader := d.votor.LeaderForView(1, 1)
	block := types.Block{Slot: 1, View: 1, Hash: synthesizeBlockHash(1, 1, leader), Proposer: leader, Payload: []byte("round-trip")}
	g, err := d.Next(g, Action{Kind: ActionVotorPropose, Validator: leader, View: 1, Block: block})
	require.NoError(err)
	g, err = d.Next(g, Action{Kind: ActionRotorShredDistribute, Validator: leader, View: 1, Block: block})
	require.NoError(err)

	for v := types.ValidatorId(0); v < 4; v++ {
		if v == 2 {
			continue // offline, does not vote
		}
		g, err = d.Next(g, Action{Kind: ActionVotorCastVote, Validator: v, View: 1, Block: block, VoteKind: types.VoteCommit})
		require.NoError(err)
	}
	g, err = d.Next(g, Action{Kind: ActionVotorCollectVotes, Validator: leader, View: 1, BlockHash: block.Hash})
	require.NoError(err)
	require.NotEmpty(g.Votor.GeneratedCerts[1])
	cert := g.Votor.GeneratedCerts[1][0]
	g, err = d.Next(g, Action{Kind: ActionVotorFinalize, Certificate: cert, Block: block})
	require.NoError(err)
	require.NotEmpty(g.Votor.FinalizedChain)

	require.NoError(d.network.CreatePartition(g.Network, g.Clock,
		map[types.ValidatorId]struct{}{0: {}, 1: {}},
		map[types.ValidatorId]struct{}{2: {}, 3: {}}))
	require.NotEmpty(g.Rotor.Shreds[block.Hash])
	require.NotEmpty(g.Rotor.RelayAssignments[block.Hash])
	require.NotZero(g.Rotor.Bandwidth[leader])

	stamp := timestamppb.New(time.Unix(0, 0))
	snap := Export(g, stamp)
	require.Equal(uint64(g.Clock), snap.Clock)
	require.Equal(uint64(g.CurrentSlot), snap.CurrentSlot)
	require.ElementsMatch([]uint32{3}, snap.ByzantineValidators)
	require.ElementsMatch([]uint32{2}, snap.OfflineValidators)
	require.NotEmpty(snap.KnownBlocks)
	require.NotEmpty(snap.GeneratedCerts)
	require.NotEmpty(snap.ShredHoldings)
	require.NotEmpty(snap.RelayAssignments)
	require.NotEmpty(snap.ShredHistory)
	require.NotEmpty(snap.BlockMeta)
	require.NotEmpty(snap.Partitions)

	fresh := d.Init()
	require.NoError(Import(fresh, snap))

	require.Equal(g.Clock, fresh.Clock)
	require.Equal(g.CurrentSlot, fresh.CurrentSlot)
	require.Equal(g.CurrentLead, fresh.CurrentLead)
	require.Equal(g.Network.Dropped, fresh.Network.Dropped)
	require.Equal(g.Failure, fresh.Failure, "byzantine/offline validator sets must round-trip")
	require.Equal(g.KnownBlocks, fresh.KnownBlocks)

	require.Equal(g.Votor.CurrentView, fresh.Votor.CurrentView)
	require.Equal(g.Votor.VotedBlocks, fresh.Votor.VotedBlocks)
	require.Equal(g.Votor.ReceivedVotes, fresh.Votor.ReceivedVotes)
	require.Equal(g.Votor.GeneratedCerts, fresh.Votor.GeneratedCerts)
	require.Equal(g.Votor.FinalizedSlots, fresh.Votor.FinalizedSlots)
	require.Len(fresh.Votor.FinalizedChain, len(g.Votor.FinalizedChain))
	for i, b := range g.Votor.FinalizedChain {
		require.Equal(b.Slot, fresh.Votor.FinalizedChain[i].Slot)
		require.Equal(b.Hash, fresh.Votor.FinalizedChain[i].Hash)
	}

	require.Equal(g.Rotor.Shreds, fresh.Rotor.Shreds)
	require.Equal(g.Rotor.RelayAssignments, fresh.Rotor.RelayAssignments)
	require.Equal(g.Rotor.Delivered, fresh.Rotor.Delivered)
	require.Equal(g.Rotor.Bandwidth, fresh.Rotor.Bandwidth)
	require.Equal(g.Rotor.BlockMeta, fresh.Rotor.BlockMeta)
	require.Equal(g.Rotor.History, fresh.Rotor.History, "non-equivocation history must round-trip")

	require.Len(fresh.Network.Partitions, len(g.Network.Partitions))
	require.Equal(g.Network.Partitions[0].P1, fresh.Network.Partitions[0].P1)
	require.Equal(g.Network.Partitions[0].P2, fresh.Network.Partitions[0].P2)

	snap2 := Export(g, stamp)
	require.Equal(snap, snap2, "re-exporting the same state with the same timestamp must be byte-identical")
}

// TestNextDeterminism checks R2: applying the same action to two clones of
// the same state produces equal resulting states.
func TestNextDeterminism(t *testing.T) {
	require := require.New(t)
	d, _ := newTestDriver(t, nil)
	g := d.Init()

	actions := d.Actions(g)
	idx := findAction(actions, ActionVotorPropose)
	require.GreaterOrEqual(idx, 0)
	action := actions[idx]

	g1, err := d.Next(g.Clone(), action)
	require.NoError(err)
	g2, err := d.Next(g.Clone(), action)
	require.NoError(err)

	require.Equal(g1.KnownBlocks, g2.KnownBlocks)
	require.Equal(g1.Votor.ReceivedVotes, g2.Votor.ReceivedVotes)
	require.Equal(g1.Clock, g2.Clock)
}

// TestVerifyCertificatesAndBandwidth exercises the invariant checkers
// against a state that should pass all of them.
func TestVerifyCertificatesAndBandwidth(t *testing.T) {
	require := require.New(t)
	d, cfg := newTestDriver(t, nil)
	g := d.Init()

	actions := d.Actions(g)
	g, err := d.Next(g, actions[findAction(actions, ActionVotorPropose)])
	require.NoError(err)
	var block types.Block
	for _, b := range g.KnownBlocks {
		block = b
	}
	for v := types.ValidatorId(0); v < 4; v++ {
		g, err = d.Next(g, Action{Kind: ActionVotorCastVote, Validator: v, View: 1, Block: block, VoteKind: types.VoteCommit})
		require.NoError(err)
	}
	g, err = d.Next(g, Action{Kind: ActionVotorCollectVotes, Validator: 0, View: 1, BlockHash: block.Hash})
	require.NoError(err)

	require.NoError(g.VerifyCertificates(cfg.FastPathThreshold, cfg.SlowPathThreshold))
	require.NoError(g.VerifyBandwidth(cfg.BandwidthLimit))
}
