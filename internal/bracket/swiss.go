package bracket

import (
	"fmt"
	"sort"

	"github.com/AdamBeresnev/op-tournament-engine/internal/utils"
)

// pairingBudget caps the backtracking search. Past it the pairing falls back
// to adjacent records and accepts rematches.
const pairingBudget = 100000

// swissRound1 pairs the top half of the seeds against the bottom half (1 vs n/2+1, ...).
// An odd field gives the lowest seed the bye.
func (g *builder) swissRound1(seeded []Participant) {
	field := seeded
	var bye *Participant
	if len(field)%2 == 1 {
		bye = &field[len(field)-1]
		field = field[:len(field)-1]
	}

	half := len(field) / 2
	for i := 0; i < half; i++ {
		m := g.match(SwissSide, nil, 1, i+1)
		m.setSlot(1, utils.Ptr(field[i].ID), false)
		m.setSlot(2, utils.Ptr(field[i+half].ID), false)
		g.matches = append(g.matches, m)
	}
	if bye != nil {
		g.matches = append(g.matches, g.swissBye(1, half+1, *bye))
	}
}

func (g *builder) swissBye(round, order int, p Participant) Match {
	m := g.match(SwissSide, nil, round, order)
	m.setSlot(1, utils.Ptr(p.ID), false)
	m.setSlot(2, nil, true)
	return m
}

// GenerateNextSwissRound pairs the next Swiss round from standings, which
// defaults to the bracket's own when nil. The current round must be complete.
// Participants are paired down the standings and never meet twice while a
// rematch-free pairing exists.
func GenerateNextSwissRound(b *Bracket, standings []Standing) (*Bracket, error) {
	if b.Format != Swiss {
		return nil, fmt.Errorf("%w: %s tournaments have no swiss rounds", ErrConfiguration, b.Format)
	}
	if b.Archived() {
		return nil, ErrBracketArchived
	}
	if !b.roundComplete(SwissSide, b.SwissRound) {
		return nil, fmt.Errorf("%w: round %d is not complete", ErrInvalidStateTransition, b.SwissRound)
	}
	if b.swissFinished() {
		return nil, fmt.Errorf("%w: swiss stage is finished", ErrInvalidStateTransition)
	}
	if standings == nil {
		standings = b.Standings
	}

	active := make([]Standing, 0, len(standings))
	for _, s := range standings {
		p := b.Participant(s.ParticipantID)
		if p == nil || p.Dropped || s.Advanced || s.Eliminated {
			continue
		}
		active = append(active, s)
	}
	sort.SliceStable(active, func(i, j int) bool { return swissLess(active[i], active[j]) })

	out := b.Clone()
	round := out.SwissRound + 1
	g := &builder{tournamentID: out.ID, stage: MainStage, series: out.Options.Series}

	var bye *Standing
	if len(active)%2 == 1 {
		pick := len(active) - 1
		for i := len(active) - 1; i >= 0; i-- {
			if !active[i].ByeReceived {
				pick = i
				break
			}
		}
		s := active[pick]
		bye = &s
		active = append(active[:pick], active[pick+1:]...)
	}

	budget := pairingBudget
	pairs, ok := pairSwiss(active, &budget)
	if !ok {
		pairs = pairAdjacent(active)
	}

	for i, pair := range pairs {
		m := g.match(SwissSide, nil, round, i+1)
		m.setSlot(1, utils.Ptr(pair[0].ParticipantID), false)
		m.setSlot(2, utils.Ptr(pair[1].ParticipantID), false)
		g.matches = append(g.matches, m)
	}
	if bye != nil {
		g.matches = append(g.matches, g.swissBye(round, len(pairs)+1, *out.Participant(bye.ParticipantID)))
	}

	out.SwissRound = round
	out.Matches = append(out.Matches, g.matches...)
	if err := out.settle(); err != nil {
		return nil, err
	}
	return out, nil
}

// pairSwiss pairs the first unpaired entry with the nearest one it has not met,
// backtracking when the rest of the field cannot be completed.
func pairSwiss(field []Standing, budget *int) ([][2]Standing, bool) {
	if len(field) == 0 {
		return nil, true
	}
	first := field[0]
	for j := 1; j < len(field); j++ {
		*budget--
		if *budget <= 0 {
			return nil, false
		}
		if first.hasMet(field[j].ParticipantID) {
			continue
		}
		rest := make([]Standing, 0, len(field)-2)
		rest = append(rest, field[1:j]...)
		rest = append(rest, field[j+1:]...)
		if pairs, ok := pairSwiss(rest, budget); ok {
			return append([][2]Standing{{first, field[j]}}, pairs...), true
		}
	}
	return nil, false
}

func pairAdjacent(field []Standing) [][2]Standing {
	pairs := make([][2]Standing, 0, len(field)/2)
	for i := 0; i+1 < len(field); i += 2 {
		pairs = append(pairs, [2]Standing{field[i], field[i+1]})
	}
	return pairs
}

func (b *Bracket) roundComplete(side BracketSide, round int) bool {
	found := false
	for _, m := range b.Matches {
		if m.BracketSide != side || m.RoundNumber != round {
			continue
		}
		if !m.Status.Terminal() {
			return false
		}
		found = true
	}
	return found
}

// swissFinished reports whether no further round should be paired: the round
// limit is reached or fewer than two participants are still in contention.
func (b *Bracket) swissFinished() bool {
	if !b.roundComplete(SwissSide, b.SwissRound) {
		return false
	}
	if b.Options.SwissRounds > 0 && b.SwissRound >= b.Options.SwissRounds {
		return true
	}
	active := 0
	for _, s := range b.Standings {
		if !s.Advanced && !s.Eliminated {
			active++
		}
	}
	return active < 2
}
