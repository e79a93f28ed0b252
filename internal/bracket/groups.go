package bracket

import (
	"fmt"

	"github.com/AdamBeresnev/op-tournament-engine/internal/utils"
	"github.com/google/uuid"
)

// roundRobin schedules every pair of the group exactly once using the circle
// method. Odd groups get a phantom entry and whoever meets it sits the round out.
func (g *builder) roundRobin(index int, members []Participant) {
	ids := make([]*uuid.UUID, 0, len(members)+1)
	for _, p := range members {
		ids = append(ids, utils.Ptr(p.ID))
	}
	if len(ids)%2 == 1 {
		ids = append(ids, nil)
	}

	n := len(ids)
	for r := 0; r < n-1; r++ {
		order := 0
		for i := 0; i < n/2; i++ {
			a, b := ids[i], ids[n-1-i]
			if a == nil || b == nil {
				continue
			}
			order++
			m := g.match(GroupSide, &index, r+1, order)
			m.setSlot(1, utils.ClonePtr(a), false)
			m.setSlot(2, utils.ClonePtr(b), false)
			g.matches = append(g.matches, m)
		}

		// Position 0 stays fixed, everyone else rotates one place.
		last := ids[n-1]
		copy(ids[2:], ids[1:n-1])
		ids[1] = last
	}
}

// gslGroup builds the four-player double elimination mini bracket:
// openings 1v4 and 2v3, then winners and elimination matches, then the decider.
// Winners of the winners match and of the decider leave the group on top.
func (g *builder) gslGroup(index int, members []Participant) {
	openA := g.match(GroupSide, &index, 1, 1)
	openB := g.match(GroupSide, &index, 1, 2)
	winners := g.match(GroupSide, &index, 2, 1)
	elimination := g.match(GroupSide, &index, 2, 2)
	decider := g.match(GroupSide, &index, 3, 1)

	openA.setSlot(1, utils.Ptr(members[0].ID), false)
	openA.setSlot(2, utils.Ptr(members[3].ID), false)
	openB.setSlot(1, utils.Ptr(members[1].ID), false)
	openB.setSlot(2, utils.Ptr(members[2].ID), false)

	linkWinner(&openA, &winners, 1)
	linkLoser(&openA, &elimination, 1)
	linkWinner(&openB, &winners, 2)
	linkLoser(&openB, &elimination, 2)
	linkLoser(&winners, &decider, 1)
	linkWinner(&elimination, &decider, 2)

	g.matches = append(g.matches, openA, openB, winners, elimination, decider)
}

// groupStage deals the seeded participants into groups and schedules them.
// GroupIndex is set on seeded in place.
func (g *builder) groupStage(format Format, seeded []Participant, groupCount int) {
	index := make(map[uuid.UUID]int, len(seeded))
	for i, p := range seeded {
		index[p.ID] = i
	}

	for gi, members := range snakeGroups(seeded, groupCount) {
		for _, p := range members {
			seeded[index[p.ID]].GroupIndex = utils.Ptr(gi)
		}
		if format == GSL {
			g.gslGroup(gi, members)
		} else {
			g.roundRobin(gi, members)
		}
	}
}

// qualifiers lists the playoff entrants in placement-major order (A1, B1, A2, B2, ...)
// so that standard seeding keeps group mates apart in the first playoff round.
func (b *Bracket) qualifiers() []uuid.UUID {
	var out []uuid.UUID
	for place := 0; place < b.Options.AdvancePerGroup; place++ {
		for _, gr := range b.Groups {
			if place < len(gr.Standings) {
				out = append(out, gr.Standings[place].ParticipantID)
			}
		}
	}
	return out
}

func (b *Bracket) groupsCompleted() bool {
	if len(b.Groups) == 0 {
		return false
	}
	for _, gr := range b.Groups {
		if !gr.Completed {
			return false
		}
	}
	return true
}

// generatePlayoff creates the follow-up elimination stage once every group is done.
func (b *Bracket) generatePlayoff() error {
	ids := b.qualifiers()
	if len(ids) < 2 {
		return fmt.Errorf("%w: playoff needs at least 2 qualifiers, got %d", ErrConfiguration, len(ids))
	}

	qualified := make(map[uuid.UUID]bool, len(ids))
	seeded := make([]Participant, 0, len(ids))
	for _, id := range ids {
		p := b.Participant(id)
		if p == nil {
			return fmt.Errorf("%w: qualifier %s is not registered", ErrConfiguration, id)
		}
		qualified[id] = true
		seeded = append(seeded, *p)
	}

	g := &builder{tournamentID: b.ID, stage: PlayoffStage, series: b.Options.Series}
	if b.Options.PlayoffFormat == DoubleElimination {
		g.doubleElimination(seeded)
	} else {
		g.singleElimination(seeded, b.Options.ThirdPlacePlayoff && len(seeded) >= 4)
	}

	for i := range b.Participants {
		if !qualified[b.Participants[i].ID] {
			b.Participants[i].Eliminated = true
		}
	}
	b.Matches = append(b.Matches, g.matches...)
	b.PlayoffGenerated = true
	return nil
}
