// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package votor

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ayushshrivastv/SuperteamIN-Alpenglow-sub002/types"
)

func equalStakeParams(n int) Params {
	stakes := make(map[types.ValidatorId]types.StakeAmount, n)
	var total types.StakeAmount
	for i := 0; i < n; i++ {
		stakes[types.ValidatorId(i)] = 1000
		total += 1000
	}
	return Params{
		ValidatorCount:    n,
		StakeDistribution: stakes,
		TotalStake:        total,
		FastPathThreshold: (total * 80) / 100,
		SlowPathThreshold: (total * 60) / 100,
		MaxView:           10,
		MaxSlot:           10,
		TimeoutDelta:      100,
		LeaderWindowSize:  4,
	}
}

// TestScenarioS1FastPath: 4 validators x 1000 stake, all 4 vote Commit for
// the same block in view 1 -> stake 4000 clears the 80% fast threshold.
func TestScenarioS1FastPath(t *testing.T) {
	require := require.New(t)
	vt := New(equalStakeParams(4), nil)
	s := NewState(4)

	block := types.Block{Slot: 1, View: 1, Hash: 55, Proposer: vt.LeaderForView(1, 1)}
	for i := types.ValidatorId(0); i < 4; i++ {
		require.NoError(vt.CastVote(s, i, block, types.VoteCommit, 10))
		if i > 0 {
			vt.RecordIncomingVote(s, 0, s.ReceivedVotes[i][1][0])
		}
	}

	cert, err := vt.CollectVotes(s, 0, 1, block.Hash)
	require.NoError(err)
	require.NotNil(cert)
	require.Equal(types.CertFast, cert.Type)
	require.Equal(types.StakeAmount(4000), cert.Stake)

	require.NoError(vt.FinalizeBlock(s, *cert, block))
	require.Len(s.FinalizedChain, 1)
}

// TestScenarioS2SlowPath: only 3 of 4 validators vote -> stake 3000 clears
// the 60% slow threshold but not the 80% fast threshold.
func TestScenarioS2SlowPath(t *testing.T) {
	require := require.New(t)
	vt := New(equalStakeParams(4), nil)
	s := NewState(4)

	block := types.Block{Slot: 1, View: 1, Hash: 55}
	for _, v := range []types.ValidatorId{0, 1, 2} {
		vote := types.Vote{Voter: v, Slot: block.Slot, View: block.View, Block: block.Hash, Kind: types.VoteCommit}
		vt.RecordIncomingVote(s, 0, vote)
	}

	cert, err := vt.CollectVotes(s, 0, 1, block.Hash)
	require.NoError(err)
	require.NotNil(cert)
	require.Equal(types.CertSlow, cert.Type)
	require.Equal(types.StakeAmount(3000), cert.Stake)
}

// TestScenarioS3SkipRound: skip-vote stake reaches the bare 2/3 threshold
// and observer's view advances.
func TestScenarioS3SkipRound(t *testing.T) {
	require := require.New(t)
	vt := New(equalStakeParams(4), nil)
	s := NewState(4)

	for _, v := range []types.ValidatorId{0, 1, 2} {
		s.SkipVotes[3][1] = append(s.SkipVotes[3][1], types.Vote{Voter: v, Slot: 1, View: 1, Block: types.ZeroBlockHash, Kind: types.VoteSkip, Timestamp: 200})
	}

	advanced, err := vt.CollectSkipVotes(s, 3, 1, 200)
	require.NoError(err)
	require.True(advanced)
	require.Equal(types.ViewNumber(2), s.CurrentView[3])
}

func TestCollectSkipVotesBelowThresholdDoesNotAdvance(t *testing.T) {
	require := require.New(t)
	vt := New(equalStakeParams(4), nil)
	s := NewState(4)

	s.SkipVotes[1][1] = []types.Vote{{Voter: 0, View: 1, Kind: types.VoteSkip}}
	advanced, err := vt.CollectSkipVotes(s, 1, 1, 50)
	require.NoError(err)
	require.False(advanced, "1000 of 4000 stake is below the bare 2/3 threshold")
	require.Equal(types.ViewNumber(1), s.CurrentView[1])
}

// TestScenarioS4ByzantineDoubleVoteBounded: a Byzantine validator double
// votes for two conflicting blocks in the same view. With only one other
// honest vote behind each block, neither crosses the 2400 slow threshold,
// so the Byzantine equivocation cannot force a certificate (I1/P1).
func TestScenarioS4ByzantineDoubleVoteBounded(t *testing.T) {
	require := require.New(t)
	vt := New(equalStakeParams(4), nil)
	s := NewState(4)

	voteA, voteB := vt.DoubleVote(s, 3, 1, 1, 10, 20, types.VoteCommit, 5)
	require.NotEqual(voteA.Block, voteB.Block)

	vt.RecordIncomingVote(s, 3, types.Vote{Voter: 0, Slot: 1, View: 1, Block: 10, Kind: types.VoteCommit})
	vt.RecordIncomingVote(s, 3, types.Vote{Voter: 1, Slot: 1, View: 1, Block: 20, Kind: types.VoteCommit})

	certA, err := vt.CollectVotes(s, 3, 1, 10)
	require.NoError(err)
	require.Nil(certA, "block 10 has only validators {0,3} = 2000 stake, below the 2400 slow threshold")

	certB, err := vt.CollectVotes(s, 3, 1, 20)
	require.NoError(err)
	require.Nil(certB, "block 20 has only validators {1,3} = 2000 stake, below the 2400 slow threshold")
}

func TestDoubleVoteCannotProduceTwoCertificatesForDifferentBlocksSameView(t *testing.T) {
	require := require.New(t)
	vt := New(equalStakeParams(4), nil)
	s := NewState(4)

	block1 := types.Block{Slot: 1, View: 1, Hash: 10}
	block2 := types.Block{Slot: 1, View: 1, Hash: 20}

	vt.RecordIncomingVote(s, 0, types.Vote{Voter: 3, Slot: 1, View: 1, Block: block1.Hash, Kind: types.VoteCommit})
	vt.RecordIncomingVote(s, 0, types.Vote{Voter: 0, Slot: 1, View: 1, Block: block1.Hash, Kind: types.VoteCommit})
	vt.RecordIncomingVote(s, 0, types.Vote{Voter: 1, Slot: 1, View: 1, Block: block1.Hash, Kind: types.VoteCommit})
	vt.RecordIncomingVote(s, 0, types.Vote{Voter: 3, Slot: 1, View: 1, Block: block2.Hash, Kind: types.VoteCommit})

	cert1, err := vt.CollectVotes(s, 0, 1, block1.Hash)
	require.NoError(err)
	require.NotNil(cert1)
	require.Equal(types.CertSlow, cert1.Type)

	cert2, err := vt.CollectVotes(s, 0, 1, block2.Hash)
	require.NoError(err)
	require.Nil(cert2, "block2 only has the Byzantine validator's vote: 1000 stake, below threshold")
}

func TestFinalizeBlockRejectsDuplicateSlot(t *testing.T) {
	require := require.New(t)
	vt := New(equalStakeParams(4), nil)
	s := NewState(4)

	block := types.Block{Slot: 1, View: 1, Hash: 10}
	cert := types.Certificate{Slot: 1, View: 1, Block: 10, Type: types.CertSlow, Signers: []types.ValidatorId{0, 1, 2}, Stake: 3000}
	require.NoError(vt.FinalizeBlock(s, cert, block))

	otherBlock := types.Block{Slot: 1, View: 1, Hash: 99}
	otherCert := types.Certificate{Slot: 1, View: 1, Block: 99, Type: types.CertSlow, Signers: []types.ValidatorId{0, 1, 2}, Stake: 3000}
	require.Error(vt.FinalizeBlock(s, otherCert, otherBlock), "slot 1 is already finalized (I1)")
}

func TestFinalizeBlockRejectsNonMonotoneSlot(t *testing.T) {
	require := require.New(t)
	vt := New(equalStakeParams(4), nil)
	s := NewState(4)

	block2 := types.Block{Slot: 2, View: 1, Hash: 10}
	cert2 := types.Certificate{Slot: 2, View: 1, Block: 10, Type: types.CertSlow, Signers: []types.ValidatorId{0, 1, 2}, Stake: 3000}
	require.NoError(vt.FinalizeBlock(s, cert2, block2))

	block1 := types.Block{Slot: 1, View: 1, Hash: 20}
	cert1 := types.Certificate{Slot: 1, View: 1, Block: 20, Type: types.CertSlow, Signers: []types.ValidatorId{0, 1, 2}, Stake: 3000}
	require.Error(vt.FinalizeBlock(s, cert1, block1), "finalized chain must be slot-monotone")
}

func TestValidateCertificateRejectsStakeMismatch(t *testing.T) {
	require := require.New(t)
	vt := New(equalStakeParams(4), nil)

	cert := types.Certificate{Type: types.CertSlow, Signers: []types.ValidatorId{0, 1}, Stake: 3000}
	require.Error(vt.ValidateCertificate(cert), "claimed stake 3000 does not match 2x1000 signer stake")
}

// TestSingleValidatorTrivialFinalization: with one validator holding all
// the stake, a single vote crosses both thresholds.
func TestSingleValidatorTrivialFinalization(t *testing.T) {
	require := require.New(t)
	vt := New(equalStakeParams(1), nil)
	s := NewState(1)

	block := types.Block{Slot: 1, View: 1, Hash: 1}
	require.NoError(vt.CastVote(s, 0, block, types.VoteCommit, 1))
	cert, err := vt.CollectVotes(s, 0, 1, block.Hash)
	require.NoError(err)
	require.NotNil(cert)
	require.Equal(types.CertFast, cert.Type)
	require.NoError(vt.FinalizeBlock(s, *cert, block))
}

// TestByzantineCountAtFloorThirdPreservesSafety: with n=10 (byzantine
// threshold floor((10-1)/3)=3), 3 Byzantine validators double voting
// cannot produce two certificates for conflicting blocks in one view.
func TestByzantineCountAtFloorThirdPreservesSafety(t *testing.T) {
	require := require.New(t)
	vt := New(equalStakeParams(10), nil)
	s := NewState(10)

	blockA := types.BlockHash(1)
	blockB := types.BlockHash(2)
	for _, v := range []types.ValidatorId{7, 8, 9} {
		vt.RecordIncomingVote(s, 0, types.Vote{Voter: v, Slot: 1, View: 1, Block: blockA, Kind: types.VoteCommit})
		vt.RecordIncomingVote(s, 0, types.Vote{Voter: v, Slot: 1, View: 1, Block: blockB, Kind: types.VoteCommit})
	}
	for _, v := range []types.ValidatorId{0, 1, 2, 3} {
		vt.RecordIncomingVote(s, 0, types.Vote{Voter: v, Slot: 1, View: 1, Block: blockA, Kind: types.VoteCommit})
	}

	certA, err := vt.CollectVotes(s, 0, 1, blockA)
	require.NoError(err)
	require.NotNil(certA, "7 honest+byzantine voters for A = 7000 stake, above slow threshold")

	certB, err := vt.CollectVotes(s, 0, 1, blockB)
	require.NoError(err)
	require.Nil(certB, "only the 3 byzantine validators voted for B = 3000 stake, below the 6000 slow threshold")
}

func TestAdaptiveTimeoutDoublesPerWindow(t *testing.T) {
	require := require.New(t)
	vt := New(equalStakeParams(4), nil)

	require.Equal(types.TimeValue(100), vt.AdaptiveTimeout(0))
	require.Equal(types.TimeValue(100), vt.AdaptiveTimeout(3))
	require.Equal(types.TimeValue(200), vt.AdaptiveTimeout(4))
	require.Equal(types.TimeValue(400), vt.AdaptiveTimeout(8))
}

func TestLeaderForViewRotatesWithinWindow(t *testing.T) {
	require := require.New(t)
	vt := New(equalStakeParams(4), nil)

	windowLeader := vt.WindowLeader(0)
	for view := types.ViewNumber(0); view < 4; view++ {
		want := types.ValidatorId((uint64(windowLeader) + uint64(view)) % 4)
		require.Equal(want, vt.LeaderForView(1, view))
	}
}

func TestCastVoteRejectsConflictingVoteSameKindSameView(t *testing.T) {
	require := require.New(t)
	vt := New(equalStakeParams(4), nil)
	s := NewState(4)

	block1 := types.Block{Slot: 1, View: 1, Hash: 10}
	block2 := types.Block{Slot: 1, View: 1, Hash: 20}
	require.NoError(vt.CastVote(s, 0, block1, types.VoteCommit, 1))
	require.Error(vt.CastVote(s, 0, block2, types.VoteCommit, 1))
}
