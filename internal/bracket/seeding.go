package bracket

import (
	"fmt"
	"math"
	"sort"

	"github.com/google/uuid"
)

// Gets the nearest power of 2 while rounding up, so with input 5 it returns 8 and so on
func calcBracketSize(count int) int {
	if count <= 0 {
		return 0
	}

	// Log2 -> Ceil -> 2^^log2 to round up
	log2 := math.Ceil(math.Log2(float64(count)))
	return int(math.Pow(2, log2))
}

// generateRound1Pairs returns 0-based seed index pairs for round 1 of a bracket
// of bracketSize, ordered so that the top seeds can only meet in the last rounds.
// Indexes >= the participant count are byes.
func generateRound1Pairs(bracketSize int) [][2]int {
	if bracketSize == 0 {
		return [][2]int{}
	}

	rounds := []int{0}
	for len(rounds) < bracketSize {
		var nextRound []int
		currentCount := len(rounds) * 2

		for _, seed := range rounds {
			nextRound = append(nextRound, seed)
			nextRound = append(nextRound, (currentCount-1)-seed)
		}
		rounds = nextRound
	}

	pairs := make([][2]int, 0, bracketSize/2)
	for i := 0; i < len(rounds); i += 2 {
		pairs = append(pairs, [2]int{rounds[i], rounds[i+1]})
	}

	return pairs
}

// orderParticipants returns a copy of participants in seeding order with seeds
// renumbered 1..n. An explicit order must be a permutation of the participant ids,
// otherwise submitted seeds are used and must be unique.
func orderParticipants(tournamentID uuid.UUID, participants []Participant, order []uuid.UUID) ([]Participant, error) {
	out := make([]Participant, len(participants))
	copy(out, participants)

	byID := make(map[uuid.UUID]int, len(out))
	for i := range out {
		if out[i].ID == uuid.Nil {
			out[i].ID = uuid.NewSHA1(tournamentID, []byte(fmt.Sprintf("participant/%d", i)))
		}
		if _, dup := byID[out[i].ID]; dup {
			return nil, fmt.Errorf("%w: duplicate participant %s", ErrConfiguration, out[i].ID)
		}
		byID[out[i].ID] = i
		out[i].TournamentID = tournamentID
		out[i].GroupIndex = nil
		out[i].Eliminated = false
	}

	if len(order) > 0 {
		if len(order) != len(out) {
			return nil, fmt.Errorf("%w: seeding order has %d entries for %d participants", ErrConfiguration, len(order), len(out))
		}
		ordered := make([]Participant, 0, len(out))
		seen := make(map[uuid.UUID]bool, len(order))
		for _, id := range order {
			i, ok := byID[id]
			if !ok || seen[id] {
				return nil, fmt.Errorf("%w: seeding order entry %s is unknown or repeated", ErrConfiguration, id)
			}
			seen[id] = true
			ordered = append(ordered, out[i])
		}
		out = ordered
	} else {
		seeds := make(map[int]bool, len(out))
		for _, p := range out {
			if p.Seed < 1 {
				return nil, fmt.Errorf("%w: participant %q has no seed", ErrConfiguration, p.Name)
			}
			if seeds[p.Seed] {
				return nil, fmt.Errorf("%w: seed %d is used twice", ErrConfiguration, p.Seed)
			}
			seeds[p.Seed] = true
		}
		sort.SliceStable(out, func(i, j int) bool { return out[i].Seed < out[j].Seed })
	}

	for i := range out {
		out[i].Seed = i + 1
	}
	return out, nil
}

// snakeGroups deals seeded participants into groups A, B, ..., then back, so
// group strength stays balanced.
func snakeGroups(seeded []Participant, groupCount int) [][]Participant {
	groups := make([][]Participant, groupCount)
	for i, p := range seeded {
		row, col := i/groupCount, i%groupCount
		if row%2 == 1 {
			col = groupCount - 1 - col
		}
		groups[col] = append(groups[col], p)
	}
	return groups
}

func matchID(tournamentID uuid.UUID, stage Stage, side BracketSide, group, round, order int) uuid.UUID {
	key := fmt.Sprintf("%s/%s/%d/%d/%d", stage, side, group, round, order)
	return uuid.NewSHA1(tournamentID, []byte(key))
}
