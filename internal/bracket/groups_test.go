package bracket

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func groupSeeds(b *Bracket, g Group) []int {
	var out []int
	for _, s := range g.Standings {
		out = append(out, b.Participant(s.ParticipantID).Seed)
	}
	return out
}

func TestRoundRobinSingleGroupCompletes(t *testing.T) {
	b := playOut(t, generate(t, RoundRobin, 5, Options{}), higherSeed)

	require.True(t, b.Archived())
	assert.Equal(t, []int{1, 2, 3, 4, 5}, groupSeeds(b, b.Groups[0]))
	assert.True(t, b.Groups[0].Completed)
	assert.Equal(t, 4, b.Groups[0].Standings[0].Wins)
	assert.Equal(t, 1, b.Participant(*b.ChampionID).Seed)
}

func TestRoundRobinPlayoff(t *testing.T) {
	b := generate(t, RoundRobin, 8, Options{GroupCount: 2, AdvancePerGroup: 2})
	assert.Equal(t, SingleElimination, b.Options.PlayoffFormat)

	// Only group matches exist until the groups are done.
	for _, m := range b.Matches {
		assert.Equal(t, MainStage, m.Stage)
	}

	var err error
	for m := nextReady(b); m != nil && m.Stage == MainStage; m = nextReady(b) {
		b, err = ApplyMatchResult(b, m.ID, *m.ParticipantID(higherSeed(b, m)))
		require.NoError(t, err)
	}
	require.True(t, b.PlayoffGenerated)
	assert.Equal(t, []int{1, 4, 5, 8}, groupSeeds(b, b.Groups[0]))
	assert.Equal(t, []int{2, 3, 6, 7}, groupSeeds(b, b.Groups[1]))

	playoff := b.Rounds(PlayoffStage, UpperSide)
	require.Len(t, playoff, 2)
	var openers [][2]int
	for _, m := range playoff[0].Matches {
		openers = append(openers, [2]int{seedOf(b, m.Participant1ID), seedOf(b, m.Participant2ID)})
	}
	// A1 v B2, B1 v A2.
	assert.Equal(t, [][2]int{{1, 3}, {2, 4}}, openers)
	assert.True(t, b.Participant(b.Groups[0].Standings[2].ParticipantID).Eliminated)

	b = playOut(t, b, higherSeed)
	require.True(t, b.Archived())
	assert.Equal(t, 1, b.Participant(*b.ChampionID).Seed)
}

func TestGSLGroupsIntoDoubleEliminationPlayoff(t *testing.T) {
	b := generate(t, GSL, 8, Options{AdvancePerGroup: 2, PlayoffFormat: DoubleElimination})

	var err error
	for m := nextReady(b); m != nil && m.Stage == MainStage; m = nextReady(b) {
		b, err = ApplyMatchResult(b, m.ID, *m.ParticipantID(higherSeed(b, m)))
		require.NoError(t, err)
	}

	a := b.Groups[0]
	require.True(t, a.Completed)
	assert.Equal(t, []int{1, 4, 5, 8}, groupSeeds(b, a))
	assert.Equal(t, 2, a.Standings[0].Wins)
	assert.Equal(t, 0, a.Standings[0].Losses)
	assert.Equal(t, 2, a.Standings[1].Wins)
	assert.Equal(t, 1, a.Standings[1].Losses)
	assert.True(t, b.Participant(a.Standings[2].ParticipantID).Eliminated)
	assert.True(t, b.Participant(a.Standings[3].ParticipantID).Eliminated)
	assert.False(t, b.Participant(a.Standings[1].ParticipantID).Eliminated)

	require.True(t, b.PlayoffGenerated)
	assert.NotEmpty(t, b.Rounds(PlayoffStage, LowerSide))

	b = playOut(t, b, higherSeed)
	require.True(t, b.Archived())
	assert.Equal(t, 1, b.Participant(*b.ChampionID).Seed)
}

func TestGroupForfeitCountsAsWin(t *testing.T) {
	b := generate(t, RoundRobin, 4, Options{})
	last := b.Participants[3].ID

	b, err := DropParticipant(b, last)
	require.NoError(t, err)

	for _, s := range b.Groups[0].Standings {
		if s.ParticipantID == last {
			assert.Equal(t, 3, s.Losses)
		} else {
			assert.Equal(t, 1, s.Wins)
		}
	}
}
