package bracket

import (
	"fmt"
	"math"

	"github.com/google/uuid"
)

// DefaultSeries is used when a tournament does not pick a series length.
const DefaultSeries = BO3

type GenerateParams struct {
	TournamentID uuid.UUID
	OwnerID      uuid.UUID
	Name         string
	Format       Format
	Options      Options
	Participants []Participant
	// SeedingOrder overrides submitted seeds when set. It must list every participant once.
	SeedingOrder []uuid.UUID
	// MaxTeams is the operator-wide cap, 0 for none.
	MaxTeams int
}

// Generate builds the initial bracket. It is deterministic: the same params
// always produce the same match ids and pairings. Byes present at generation
// are resolved before returning.
func Generate(p GenerateParams) (*Bracket, error) {
	opts, err := prepareOptions(p)
	if err != nil {
		return nil, err
	}

	seeded, err := orderParticipants(p.TournamentID, p.Participants, p.SeedingOrder)
	if err != nil {
		return nil, err
	}

	b := &Bracket{
		Tournament: Tournament{
			ID:      p.TournamentID,
			OwnerID: p.OwnerID,
			Name:    p.Name,
			Status:  TournamentActive,
			Format:  p.Format,
			Options: opts,
		},
	}

	g := &builder{tournamentID: p.TournamentID, stage: MainStage, series: opts.Series}
	switch p.Format {
	case SingleElimination:
		g.singleElimination(seeded, opts.ThirdPlacePlayoff)
	case DoubleElimination:
		g.doubleElimination(seeded)
	case Swiss:
		g.swissRound1(seeded)
		b.SwissRound = 1
	case RoundRobin, GSL:
		g.groupStage(p.Format, seeded, opts.GroupCount)
	}

	b.Participants = seeded
	b.Matches = g.matches
	if err := b.settle(); err != nil {
		return nil, err
	}
	return b, nil
}

// prepareOptions validates the generation input and fills in defaults.
func prepareOptions(p GenerateParams) (Options, error) {
	opts := p.Options
	n := len(p.Participants)

	if !p.Format.Valid() {
		return opts, fmt.Errorf("%w: unsupported format %q", ErrConfiguration, p.Format)
	}
	if p.TournamentID == uuid.Nil {
		return opts, fmt.Errorf("%w: tournament id is required", ErrConfiguration)
	}
	if need := p.Format.MinParticipants(); n < need {
		return opts, fmt.Errorf("%w: %s needs at least %d participants, got %d", ErrConfiguration, p.Format, need, n)
	}
	if p.MaxTeams > 0 && n > p.MaxTeams {
		return opts, fmt.Errorf("%w: %d participants exceed the limit of %d", ErrConfiguration, n, p.MaxTeams)
	}
	if opts.MaxTeams < 0 {
		return opts, fmt.Errorf("%w: max_teams cannot be negative", ErrConfiguration)
	}
	if opts.MaxTeams > 0 && n > opts.MaxTeams {
		return opts, fmt.Errorf("%w: %d participants exceed max_teams %d", ErrConfiguration, n, opts.MaxTeams)
	}

	if opts.Series == "" {
		opts.Series = DefaultSeries
	}
	if !opts.Series.Valid() {
		return opts, fmt.Errorf("%w: unsupported series %q", ErrConfiguration, opts.Series)
	}

	switch p.Format {
	case GSL:
		if n%4 != 0 {
			return opts, fmt.Errorf("%w: gsl groups need a multiple of 4 participants, got %d", ErrConfiguration, n)
		}
		if opts.GroupCount != 0 && opts.GroupCount != n/4 {
			return opts, fmt.Errorf("%w: %d participants make %d gsl groups, not %d", ErrConfiguration, n, n/4, opts.GroupCount)
		}
		opts.GroupCount = n / 4
	case RoundRobin:
		if opts.GroupCount == 0 {
			opts.GroupCount = 1
		}
		if opts.GroupCount < 1 || n < 2*opts.GroupCount {
			return opts, fmt.Errorf("%w: %d participants cannot fill %d groups", ErrConfiguration, n, opts.GroupCount)
		}
	case Swiss:
		if opts.SwissRounds < 0 || opts.SwissWinsToAdvance < 0 || opts.SwissLossesToEliminate < 0 {
			return opts, fmt.Errorf("%w: swiss limits cannot be negative", ErrConfiguration)
		}
		if opts.SwissRounds == 0 && opts.SwissWinsToAdvance == 0 && opts.SwissLossesToEliminate == 0 {
			if n >= 16 {
				opts.SwissWinsToAdvance, opts.SwissLossesToEliminate = 3, 3
			} else {
				opts.SwissRounds = int(math.Ceil(math.Log2(float64(n))))
			}
		}
	}

	if opts.AdvancePerGroup > 0 || opts.PlayoffFormat != "" {
		if !p.Format.grouped() {
			return opts, fmt.Errorf("%w: %s has no group stage to advance from", ErrConfiguration, p.Format)
		}
		if opts.PlayoffFormat == "" {
			opts.PlayoffFormat = SingleElimination
		}
		if !opts.PlayoffFormat.elimination() {
			return opts, fmt.Errorf("%w: playoff format must be an elimination format, got %q", ErrConfiguration, opts.PlayoffFormat)
		}
		if opts.AdvancePerGroup < 1 {
			return opts, fmt.Errorf("%w: advance_per_group is required for a playoff", ErrConfiguration)
		}
		smallest := n / opts.GroupCount
		if p.Format == GSL {
			smallest = 2
		}
		if opts.AdvancePerGroup > smallest {
			return opts, fmt.Errorf("%w: at most %d per group can advance", ErrConfiguration, smallest)
		}
		if opts.AdvancePerGroup*opts.GroupCount < 2 {
			return opts, fmt.Errorf("%w: playoff needs at least 2 qualifiers", ErrConfiguration)
		}
	}

	if opts.ThirdPlacePlayoff {
		switch {
		case p.Format == SingleElimination:
			if n < 4 {
				return opts, fmt.Errorf("%w: third place playoff needs at least 4 participants", ErrConfiguration)
			}
		case opts.HasPlayoff() && opts.PlayoffFormat == SingleElimination:
			if opts.AdvancePerGroup*opts.GroupCount < 4 {
				return opts, fmt.Errorf("%w: third place playoff needs at least 4 qualifiers", ErrConfiguration)
			}
		default:
			return opts, fmt.Errorf("%w: third place playoff is only available for single elimination", ErrConfiguration)
		}
	}

	return opts, nil
}
