package service

import (
	"context"
	"fmt"

	"github.com/AdamBeresnev/op-tournament-engine/internal/bracket"
	"github.com/AdamBeresnev/op-tournament-engine/internal/livesync"
	"github.com/AdamBeresnev/op-tournament-engine/internal/matchstate"
	"github.com/AdamBeresnev/op-tournament-engine/internal/store"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

type MatchService struct {
	db    *sqlx.DB
	store *store.TournamentStore
	live  Publisher
}

func NewMatchService(db *sqlx.DB, store *store.TournamentStore, live Publisher) *MatchService {
	return &MatchService{db: db, store: store, live: live}
}

// UpdateMatchResult runs patch through the match state machine, advances the
// bracket when the match completes, stores every touched match and then
// publishes the deltas. Nothing is written when any step fails.
func (s *MatchService) UpdateMatchResult(ctx context.Context, matchID uuid.UUID, patch matchstate.Patch, source string) (*bracket.Match, error) {
	if patch.Empty() {
		return nil, fmt.Errorf("%w: empty match update", ErrInvalidInput)
	}
	return s.mutate(ctx, matchID, source, func(b *bracket.Bracket, cur *bracket.Match) (*bracket.Bracket, error) {
		next, err := matchstate.Apply(*cur, patch)
		if err != nil {
			return nil, err
		}
		return bracket.RecordMatch(b, next)
	})
}

// AdvanceWinner decides a match by operator order. It also re-routes a match
// that was cancelled or decided the other way, as long as nothing downstream
// has started.
func (s *MatchService) AdvanceWinner(ctx context.Context, matchID, winnerID uuid.UUID, source string) (*bracket.Match, error) {
	return s.mutate(ctx, matchID, source, func(b *bracket.Bracket, _ *bracket.Match) (*bracket.Bracket, error) {
		return bracket.ReadvanceMatch(b, matchID, winnerID)
	})
}

func (s *MatchService) mutate(ctx context.Context, matchID uuid.UUID, source string, fn func(*bracket.Bracket, *bracket.Match) (*bracket.Bracket, error)) (*bracket.Match, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	st := s.store.WithTx(tx)
	match, err := st.GetMatch(ctx, matchID)
	if err != nil {
		return nil, fmt.Errorf("failed to get match: %w", err)
	}
	before, err := loadBracket(ctx, st, match.TournamentID)
	if err != nil {
		return nil, fmt.Errorf("failed to load bracket: %w", err)
	}
	if err := checkOwner(ctx, &before.Tournament); err != nil {
		return nil, err
	}
	cur := before.Match(matchID)
	if cur == nil {
		return nil, fmt.Errorf("%w: %s", bracket.ErrMatchNotFound, matchID)
	}

	after, err := fn(before, cur)
	if err != nil {
		return nil, err
	}
	changes, err := saveChanges(ctx, st, tx, before, after)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}

	publishChanges(s.live, changes, source)

	out := after.Match(matchID).Clone()
	return &out, nil
}

// Snapshot returns the live state of a match, rebuilding it from storage when
// the live cache does not hold it.
func (s *MatchService) Snapshot(ctx context.Context, matchID uuid.UUID) (livesync.State, error) {
	if s.live != nil {
		if state, ok := s.live.GetSnapshot(matchID); ok {
			return state, nil
		}
	}

	match, err := s.store.GetMatch(ctx, matchID)
	if err != nil {
		return livesync.State{}, err
	}
	state := livesync.StateFromMatch(match)
	if s.live != nil {
		if _, err := s.live.Prime(state); err != nil {
			return state, nil
		}
		if cached, ok := s.live.GetSnapshot(matchID); ok {
			return cached, nil
		}
	}
	return state, nil
}
