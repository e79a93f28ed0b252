package bracket

import (
	"math"

	"github.com/AdamBeresnev/op-tournament-engine/internal/utils"
	"github.com/google/uuid"
)

// builder accumulates the matches of one stage. Match ids are derived from the
// tournament id and the match position, so generating twice yields the same ids.
type builder struct {
	tournamentID uuid.UUID
	stage        Stage
	series       SeriesFormat
	matches      []Match
}

func (g *builder) match(side BracketSide, group *int, round, order int) Match {
	gi := -1
	if group != nil {
		gi = *group
	}
	return Match{
		ID:           matchID(g.tournamentID, g.stage, side, gi, round, order),
		TournamentID: g.tournamentID,
		Stage:        g.stage,
		BracketSide:  side,
		GroupIndex:   utils.ClonePtr(group),
		RoundNumber:  round,
		MatchOrder:   order,
		Series:       g.series,
		Status:       MatchUpcoming,
	}
}

func (g *builder) add(rounds ...[]Match) {
	for _, r := range rounds {
		g.matches = append(g.matches, r...)
	}
}

func linkWinner(from *Match, to *Match, slot int) {
	from.WinnerNextMatchID = utils.Ptr(to.ID)
	from.WinnerNextSlot = utils.Ptr(slot)
}

func linkLoser(from *Match, to *Match, slot int) {
	from.LoserNextMatchID = utils.Ptr(to.ID)
	from.LoserNextSlot = utils.Ptr(slot)
}

// upper builds the winners side of an elimination bracket and seeds round 1.
// Missing participants become bye slots, which always land against the top seeds.
func (g *builder) upper(seeded []Participant) [][]Match {
	bracketSize := calcBracketSize(len(seeded))
	totalRounds := int(math.Log2(float64(bracketSize)))
	rounds := make([][]Match, totalRounds)

	// Significantly easier to start from the last round and work backwards
	for r := totalRounds; r >= 1; r-- {
		matchesInCurrentRound := bracketSize >> r
		rounds[r-1] = make([]Match, matchesInCurrentRound)

		for i := 0; i < matchesInCurrentRound; i++ {
			m := g.match(UpperSide, nil, r, i+1)
			if r < totalRounds {
				linkWinner(&m, &rounds[r][i/2], i%2+1)
			}
			rounds[r-1][i] = m
		}
	}

	for i, pair := range generateRound1Pairs(bracketSize) {
		m := &rounds[0][i]
		for s, seedIdx := range pair {
			if seedIdx < len(seeded) {
				m.setSlot(s+1, utils.Ptr(seeded[seedIdx].ID), false)
			} else {
				m.setSlot(s+1, nil, true)
			}
		}
	}

	return rounds
}

func (g *builder) singleElimination(seeded []Participant, thirdPlace bool) {
	rounds := g.upper(seeded)
	total := len(rounds)

	if thirdPlace && total >= 2 {
		tp := g.match(ThirdPlaceSide, nil, total, 1)
		for i := range rounds[total-2] {
			linkLoser(&rounds[total-2][i], &tp, i+1)
		}
		g.add([]Match{tp})
	}
	g.add(rounds...)
}

// lowerRoundSize is the match count of lower round r for a bracket of size.
// Rounds come in pairs: an odd round thins the field, the following even round
// takes in the losers dropping from the upper side.
func lowerRoundSize(size, r int) int {
	j := (r + 1) / 2
	return size >> (j + 1)
}

func (g *builder) doubleElimination(seeded []Participant) {
	upper := g.upper(seeded)
	k := len(upper)

	gf := g.match(FinalsSide, nil, 1, 1)
	linkWinner(&upper[k-1][0], &gf, 1)

	if k == 1 {
		linkLoser(&upper[0][0], &gf, 2)
		g.add(upper...)
		g.add([]Match{gf})
		return
	}

	size := 1 << k
	lower := make([][]Match, 2*(k-1))
	for r := len(lower); r >= 1; r-- {
		count := lowerRoundSize(size, r)
		lower[r-1] = make([]Match, count)
		for i := 0; i < count; i++ {
			m := g.match(LowerSide, nil, r, i+1)
			switch {
			case r == len(lower):
				linkWinner(&m, &gf, 2)
			case r%2 == 1:
				linkWinner(&m, &lower[r][i], 1)
			default:
				linkWinner(&m, &lower[r][i/2], i%2+1)
			}
			lower[r-1][i] = m
		}
	}

	for i := range upper[0] {
		linkLoser(&upper[0][i], &lower[0][i/2], i%2+1)
	}
	// Upper round j losers drop into lower round 2(j-1). Every other drop
	// round is mirrored so a dropped team does not meet the lower side of its
	// own upper half straight away.
	for j := 2; j <= k; j++ {
		target := lower[2*(j-1)-1]
		n := len(upper[j-1])
		for i := range upper[j-1] {
			slot := i
			if j%2 == 0 {
				slot = n - 1 - i
			}
			linkLoser(&upper[j-1][i], &target[slot], 2)
		}
	}

	g.add(upper...)
	g.add(lower...)
	g.add([]Match{gf})
}

// grandFinalReset builds the second grand final played when the lower side
// representative wins the first one.
func grandFinalReset(gf *Match) Match {
	return Match{
		ID:             matchID(gf.TournamentID, gf.Stage, FinalsSide, -1, 2, 1),
		TournamentID:   gf.TournamentID,
		Stage:          gf.Stage,
		BracketSide:    FinalsSide,
		RoundNumber:    2,
		MatchOrder:     1,
		Participant1ID: utils.ClonePtr(gf.Participant1ID),
		Participant2ID: utils.ClonePtr(gf.Participant2ID),
		Series:         gf.Series,
		Status:         MatchUpcoming,
		IsReset:        true,
	}
}
