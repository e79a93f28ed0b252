package service

import (
	"context"
	"fmt"
	"time"

	"github.com/AdamBeresnev/op-tournament-engine/internal/bracket"
	"github.com/AdamBeresnev/op-tournament-engine/internal/middleware"
	"github.com/AdamBeresnev/op-tournament-engine/internal/store"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

type TournamentService struct {
	db       *sqlx.DB
	store    *store.TournamentStore
	live     Publisher
	maxTeams int
}

func NewTournamentService(db *sqlx.DB, store *store.TournamentStore, live Publisher, maxTeams int) *TournamentService {
	return &TournamentService{db: db, store: store, live: live, maxTeams: maxTeams}
}

type ParticipantInput struct {
	Name string `json:"name"`
	Seed int    `json:"seed,omitempty"`
}

type CreateTournamentInput struct {
	Name         string             `json:"name"`
	Format       bracket.Format     `json:"format"`
	Options      bracket.Options    `json:"options"`
	Participants []ParticipantInput `json:"participants"`
	// ParticipantList is the newline separated alternative to Participants.
	ParticipantList string      `json:"participant_list,omitempty"`
	SeedingOrder    []uuid.UUID `json:"seeding_order,omitempty"`
}

// CreateTournament generates the bracket and stores it in one transaction.
func (s *TournamentService) CreateTournament(ctx context.Context, in CreateTournamentInput) (*bracket.Bracket, error) {
	ownerID, ok := middleware.GetUserIDFromContext(ctx)
	if !ok {
		return nil, fmt.Errorf("user ID not found in the context")
	}

	inputs := in.Participants
	if len(inputs) == 0 && in.ParticipantList != "" {
		parsed, err := ParseParticipantList(in.ParticipantList)
		if err != nil {
			return nil, err
		}
		inputs = parsed
	}
	// Without any submitted seed the list order is the seeding.
	seeded := false
	for _, p := range inputs {
		seeded = seeded || p.Seed > 0
	}
	participants := make([]bracket.Participant, len(inputs))
	for i, p := range inputs {
		participants[i] = bracket.Participant{Name: p.Name, Seed: p.Seed}
		if !seeded && len(in.SeedingOrder) == 0 {
			participants[i].Seed = i + 1
		}
	}

	b, err := bracket.Generate(bracket.GenerateParams{
		TournamentID: uuid.New(),
		OwnerID:      ownerID,
		Name:         in.Name,
		Format:       in.Format,
		Options:      in.Options,
		Participants: participants,
		SeedingOrder: in.SeedingOrder,
		MaxTeams:     s.maxTeams,
	})
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	b.CreatedAt = now
	for i := range b.Matches {
		b.Matches[i].CreatedAt = now
		b.Matches[i].Version = 1
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	if err := s.store.CreateTournament(ctx, tx, &b.Tournament); err != nil {
		return nil, fmt.Errorf("failed to create tournament: %w", err)
	}
	if err := s.store.CreateParticipants(ctx, tx, b.Participants); err != nil {
		return nil, fmt.Errorf("failed to create participants: %w", err)
	}
	if err := s.store.SaveMatches(ctx, tx, b.Matches); err != nil {
		return nil, fmt.Errorf("failed to create matches: %w", err)
	}

	return b, tx.Commit()
}

// GetBracket returns the stored bracket with its derived groups and standings.
func (s *TournamentService) GetBracket(ctx context.Context, id uuid.UUID) (*bracket.Bracket, error) {
	return loadBracketConcurrently(ctx, s.store, id)
}

func (s *TournamentService) GetTournamentsForUser(ctx context.Context) ([]bracket.Tournament, error) {
	userID, ok := middleware.GetUserIDFromContext(ctx)
	if !ok {
		return nil, fmt.Errorf("user ID not found in the context")
	}
	return s.store.GetTournamentsByOwner(ctx, userID)
}

// GenerateNextSwissRound pairs the next Swiss round from the stored standings.
func (s *TournamentService) GenerateNextSwissRound(ctx context.Context, id uuid.UUID, source string) (*bracket.Bracket, error) {
	return s.mutate(ctx, id, source, func(b *bracket.Bracket) (*bracket.Bracket, error) {
		return bracket.GenerateNextSwissRound(b, b.Standings)
	})
}

// DropParticipant withdraws a participant; its open matches are forfeited.
func (s *TournamentService) DropParticipant(ctx context.Context, id, participantID uuid.UUID, source string) (*bracket.Bracket, error) {
	return s.mutate(ctx, id, source, func(b *bracket.Bracket) (*bracket.Bracket, error) {
		return bracket.DropParticipant(b, participantID)
	})
}

// mutate loads the bracket, applies fn and stores the outcome in one
// transaction, then publishes the changed matches.
func (s *TournamentService) mutate(ctx context.Context, id uuid.UUID, source string, fn func(*bracket.Bracket) (*bracket.Bracket, error)) (*bracket.Bracket, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	st := s.store.WithTx(tx)
	before, err := loadBracket(ctx, st, id)
	if err != nil {
		return nil, err
	}
	if err := checkOwner(ctx, &before.Tournament); err != nil {
		return nil, err
	}
	after, err := fn(before)
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
	return after, nil
}
