package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"reflect"

	"github.com/AdamBeresnev/op-tournament-engine/internal/bracket"
	"github.com/AdamBeresnev/op-tournament-engine/internal/livesync"
	"github.com/AdamBeresnev/op-tournament-engine/internal/store"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"golang.org/x/sync/errgroup"
)

// Publisher is the live side of a match write. *livesync.Manager implements it.
type Publisher interface {
	Publish(matchID uuid.UUID, delta livesync.Delta, version int64, source string) error
	Prime(s livesync.State) (bool, error)
	GetSnapshot(matchID uuid.UUID) (livesync.State, bool)
}

type matchChange struct {
	before *bracket.Match
	after  bracket.Match
}

// loadBracket reads a tournament sequentially, for use inside a transaction.
func loadBracket(ctx context.Context, st *store.TournamentStore, id uuid.UUID) (*bracket.Bracket, error) {
	tournament, err := st.GetTournament(ctx, id)
	if err != nil {
		return nil, err
	}
	participants, err := st.GetParticipants(ctx, id)
	if err != nil {
		return nil, err
	}
	matches, err := st.GetMatches(ctx, id)
	if err != nil {
		return nil, err
	}
	maps, err := st.GetMaps(ctx, id)
	if err != nil {
		return nil, err
	}
	return assembleBracket(tournament, participants, matches, maps), nil
}

// loadBracketConcurrently reads the parts of a tournament in parallel.
func loadBracketConcurrently(ctx context.Context, st *store.TournamentStore, id uuid.UUID) (*bracket.Bracket, error) {
	var (
		tournament   *bracket.Tournament
		participants []bracket.Participant
		matches      []bracket.Match
		maps         map[uuid.UUID][]bracket.Map
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		tournament, err = st.GetTournament(gctx, id)
		return err
	})
	g.Go(func() error {
		var err error
		participants, err = st.GetParticipants(gctx, id)
		return err
	})
	g.Go(func() error {
		var err error
		matches, err = st.GetMatches(gctx, id)
		return err
	})
	g.Go(func() error {
		var err error
		maps, err = st.GetMaps(gctx, id)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return assembleBracket(tournament, participants, matches, maps), nil
}

func assembleBracket(t *bracket.Tournament, participants []bracket.Participant, matches []bracket.Match, maps map[uuid.UUID][]bracket.Map) *bracket.Bracket {
	b := &bracket.Bracket{Tournament: *t, Participants: participants, Matches: matches}
	for i := range b.Matches {
		b.Matches[i].Maps = maps[b.Matches[i].ID]
	}
	b.RecomputeStandings()
	return b
}

// saveChanges writes the difference between two versions of a bracket. Every
// changed match gets its version bumped, in after as well as in storage.
func saveChanges(ctx context.Context, st *store.TournamentStore, tx *sqlx.Tx, before, after *bracket.Bracket) ([]matchChange, error) {
	changed := bracket.ChangedMatches(before, after)
	changes := make([]matchChange, 0, len(changed))
	for i := range changed {
		prev := before.Match(changed[i].ID)
		changed[i].Version = 1
		if prev != nil {
			changed[i].Version = prev.Version + 1
		}
		after.Match(changed[i].ID).Version = changed[i].Version
		changes = append(changes, matchChange{before: prev, after: changed[i]})
	}
	if err := st.SaveMatches(ctx, tx, changed); err != nil {
		return nil, fmt.Errorf("failed to save matches: %w", err)
	}

	var removed []uuid.UUID
	for _, m := range before.Matches {
		if after.Match(m.ID) == nil {
			removed = append(removed, m.ID)
		}
	}
	if err := st.DeleteMatches(ctx, tx, removed); err != nil {
		return nil, fmt.Errorf("failed to delete matches: %w", err)
	}

	var participants []bracket.Participant
	for _, p := range after.Participants {
		if prev := before.Participant(p.ID); prev == nil || !reflect.DeepEqual(*prev, p) {
			participants = append(participants, p)
		}
	}
	if err := st.UpdateParticipants(ctx, tx, participants); err != nil {
		return nil, fmt.Errorf("failed to update participants: %w", err)
	}

	if !reflect.DeepEqual(before.Tournament, after.Tournament) {
		if err := st.UpdateTournament(ctx, tx, &after.Tournament); err != nil {
			return nil, fmt.Errorf("failed to update tournament: %w", err)
		}
	}
	return changes, nil
}

// publishChanges pushes committed match changes to live viewers. A match the
// live side has never seen is primed with its full state instead of a delta.
func publishChanges(pub Publisher, changes []matchChange, source string) {
	if pub == nil {
		return
	}
	for _, c := range changes {
		if _, ok := pub.GetSnapshot(c.after.ID); !ok || c.before == nil {
			state := livesync.StateFromMatch(&c.after)
			state.Source = source
			if _, err := pub.Prime(state); err != nil {
				slog.Warn("failed to prime live state", "match_id", c.after.ID, "error", err)
			}
			continue
		}

		delta := livesync.Diff(c.before, &c.after)
		if delta.Empty() {
			continue
		}
		err := pub.Publish(c.after.ID, delta, c.after.Version, source)
		if err != nil && !errors.Is(err, livesync.ErrStaleUpdate) {
			slog.Warn("failed to publish live update", "match_id", c.after.ID, "version", c.after.Version, "error", err)
		}
	}
}
