package bracket

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pairKey(a, b uuid.UUID) [2]uuid.UUID {
	if b.String() < a.String() {
		a, b = b, a
	}
	return [2]uuid.UUID{a, b}
}

func TestGenerateNextSwissRoundAvoidsRematches(t *testing.T) {
	b := generate(t, Swiss, 16, Options{})

	_, err := GenerateNextSwissRound(b, nil)
	assert.ErrorIs(t, err, ErrInvalidStateTransition, "round 1 is still open")

	b = playOut(t, b, higherSeed)
	assert.False(t, b.Archived())
	assert.Len(t, b.Rounds(MainStage, SwissSide), 1, "completing a round never pairs the next one")

	next, err := GenerateNextSwissRound(b, b.Standings)
	require.NoError(t, err)
	assert.Equal(t, 2, next.SwissRound)

	rounds := next.Rounds(MainStage, SwissSide)
	require.Len(t, rounds, 2)
	require.Len(t, rounds[1].Matches, 8)

	played := map[[2]uuid.UUID]bool{}
	for _, m := range rounds[0].Matches {
		played[pairKey(*m.Participant1ID, *m.Participant2ID)] = true
	}
	for _, m := range rounds[1].Matches {
		assert.False(t, played[pairKey(*m.Participant1ID, *m.Participant2ID)])
		// Pairs share a record.
		w1, w2 := 0, 0
		for _, s := range next.Standings {
			if s.ParticipantID == *m.Participant1ID {
				w1 = s.Wins
			}
			if s.ParticipantID == *m.Participant2ID {
				w2 = s.Wins
			}
		}
		assert.Equal(t, w1, w2)
	}

	// The input bracket still has one round.
	assert.Len(t, b.Rounds(MainStage, SwissSide), 1)
}

func TestSwissRunsToCompletion(t *testing.T) {
	b := generate(t, Swiss, 16, Options{})

	for round := 0; round < 10 && !b.Archived(); round++ {
		b = playOut(t, b, higherSeed)
		if b.Archived() {
			break
		}
		var err error
		b, err = GenerateNextSwissRound(b, nil)
		require.NoError(t, err)
	}

	require.True(t, b.Archived())
	assert.LessOrEqual(t, b.SwissRound, 5)
	require.NotNil(t, b.ChampionID)
	assert.Equal(t, b.Standings[0].ParticipantID, *b.ChampionID)

	advanced, eliminated := 0, 0
	for _, s := range b.Standings {
		switch {
		case s.Advanced:
			advanced++
			assert.Equal(t, 3, s.Wins)
		case s.Eliminated:
			eliminated++
			assert.Equal(t, 3, s.Losses)
		}
	}
	assert.Equal(t, 16, advanced+eliminated)

	_, err := GenerateNextSwissRound(b, nil)
	assert.ErrorIs(t, err, ErrBracketArchived)
}

func TestSwissStandingsTiebreaks(t *testing.T) {
	b := playOut(t, generate(t, Swiss, 8, Options{}), higherSeed)

	top := b.Standings[0]
	assert.Equal(t, 1, top.Seed)
	assert.Equal(t, 1, top.Rank)
	assert.Equal(t, 1, top.Wins)

	// Losers from round 1 carry Buchholz 1, their opponents won.
	for _, s := range b.Standings {
		if s.Losses == 1 {
			assert.Equal(t, 1, s.Buchholz)
		} else {
			assert.Equal(t, 0, s.Buchholz)
		}
	}
}

func TestSwissOddFieldRotatesBye(t *testing.T) {
	b := playOut(t, generate(t, Swiss, 5, Options{}), higherSeed)

	next, err := GenerateNextSwissRound(b, nil)
	require.NoError(t, err)

	var byes []uuid.UUID
	for _, m := range next.Matches {
		if m.IsBye {
			byes = append(byes, *m.WinnerID())
		}
	}
	require.Len(t, byes, 2)
	assert.NotEqual(t, byes[0], byes[1], "nobody gets a second bye while others have none")
}

func TestSwissDroppedParticipantIsNotPaired(t *testing.T) {
	b := playOut(t, generate(t, Swiss, 8, Options{}), higherSeed)
	gone := b.Standings[0].ParticipantID

	b, err := DropParticipant(b, gone)
	require.NoError(t, err)

	next, err := GenerateNextSwissRound(b, nil)
	require.NoError(t, err)
	for _, m := range next.Rounds(MainStage, SwissSide)[1].Matches {
		assert.NotEqual(t, gone, *m.Participant1ID)
		if m.Participant2ID != nil {
			assert.NotEqual(t, gone, *m.Participant2ID)
		}
	}
}
