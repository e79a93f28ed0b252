package service

import (
	"fmt"
	"strconv"
	"strings"
)

// ParseParticipantList reads one participant per line. A line may end with
// ";<seed>" to submit a seed. Blank lines are skipped.
func ParseParticipantList(text string) ([]ParticipantInput, error) {
	var inputs []ParticipantInput

	lines := strings.Split(text, "\n")
	for i, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		p, err := parseParticipantLine(line)
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: %v", ErrInvalidInput, i+1, err)
		}
		inputs = append(inputs, p)
	}

	return inputs, nil
}

func parseParticipantLine(line string) (ParticipantInput, error) {
	name, seedText, hasSeed := strings.Cut(line, ";")
	p := ParticipantInput{Name: strings.TrimSpace(name)}
	if p.Name == "" {
		return p, fmt.Errorf("missing name")
	}
	if !hasSeed {
		return p, nil
	}

	seed, err := strconv.Atoi(strings.TrimSpace(seedText))
	if err != nil || seed < 1 {
		return p, fmt.Errorf("seed %q is not a positive number", strings.TrimSpace(seedText))
	}
	p.Seed = seed
	return p, nil
}
