package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/AdamBeresnev/op-tournament-engine/internal/bracket"
	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

var (
	ErrNotFound = errors.New("record not found")
	// ErrVersionConflict is returned when a match row moved on since it was read.
	ErrVersionConflict = errors.New("match was changed concurrently")
)

const (
	createTournamentQuery = `INSERT INTO tournaments (id, owner_id, name, status, format, options, swiss_round, playoff_generated, champion_id, created_at)
		VALUES (:id, :owner_id, :name, :status, :format, :options, :swiss_round, :playoff_generated, :champion_id, :created_at)`
	updateTournamentQuery = `UPDATE tournaments SET
		name = :name,
		status = :status,
		options = :options,
		swiss_round = :swiss_round,
		playoff_generated = :playoff_generated,
		champion_id = :champion_id
		WHERE id = :id`
	createParticipantQuery = `INSERT INTO participants (id, tournament_id, name, seed, group_index, dropped, eliminated)
		VALUES (:id, :tournament_id, :name, :seed, :group_index, :dropped, :eliminated)`
	updateParticipantQuery = `UPDATE participants SET
		group_index = :group_index,
		dropped = :dropped,
		eliminated = :eliminated
		WHERE id = :id`
	upsertMatchQuery = `INSERT INTO matches (id, tournament_id, stage, bracket_side, group_index, round_number, match_order,
			participant_1_id, participant_2_id, bye_1, bye_2, series, score_1, score_2, status, current_map, winner_slot,
			winner_next_match_id, winner_next_slot, loser_next_match_id, loser_next_slot, is_bye, is_reset, version, created_at)
		VALUES (:id, :tournament_id, :stage, :bracket_side, :group_index, :round_number, :match_order,
			:participant_1_id, :participant_2_id, :bye_1, :bye_2, :series, :score_1, :score_2, :status, :current_map, :winner_slot,
			:winner_next_match_id, :winner_next_slot, :loser_next_match_id, :loser_next_slot, :is_bye, :is_reset, :version, :created_at)
		ON CONFLICT (id) DO UPDATE SET
			participant_1_id = excluded.participant_1_id,
			participant_2_id = excluded.participant_2_id,
			bye_1 = excluded.bye_1,
			bye_2 = excluded.bye_2,
			score_1 = excluded.score_1,
			score_2 = excluded.score_2,
			status = excluded.status,
			current_map = excluded.current_map,
			winner_slot = excluded.winner_slot,
			winner_next_match_id = excluded.winner_next_match_id,
			winner_next_slot = excluded.winner_next_slot,
			loser_next_match_id = excluded.loser_next_match_id,
			loser_next_slot = excluded.loser_next_slot,
			version = excluded.version
		WHERE matches.version = excluded.version - 1`
	deleteMapsQuery = `DELETE FROM match_maps WHERE match_id = ?`
	createMapQuery  = `INSERT INTO match_maps (match_id, map_number, name, mode, score_1, score_2, status, winner_slot, stats)
		VALUES (:match_id, :map_number, :name, :mode, :score_1, :score_2, :status, :winner_slot, :stats)`
	deleteMatchQuery = `DELETE FROM matches WHERE id = ?`
)

var matchColumns = []string{
	"id", "tournament_id", "stage", "bracket_side", "group_index", "round_number", "match_order",
	"participant_1_id", "participant_2_id", "bye_1", "bye_2", "series", "score_1", "score_2", "status",
	"current_map", "winner_slot", "winner_next_match_id", "winner_next_slot", "loser_next_match_id",
	"loser_next_slot", "is_bye", "is_reset", "version", "created_at",
}

// mapRow is a match_maps row; player stats travel as a JSON column.
type mapRow struct {
	bracket.Map
	StatsJSON string `db:"stats"`
}

func newMapRow(m bracket.Map) (mapRow, error) {
	stats := m.Stats
	if stats == nil {
		stats = []bracket.PlayerStat{}
	}
	raw, err := json.Marshal(stats)
	if err != nil {
		return mapRow{}, err
	}
	return mapRow{Map: m, StatsJSON: string(raw)}, nil
}

func (r mapRow) decode() (bracket.Map, error) {
	m := r.Map
	m.Stats = nil
	if r.StatsJSON != "" && r.StatsJSON != "[]" {
		if err := json.Unmarshal([]byte(r.StatsJSON), &m.Stats); err != nil {
			return m, fmt.Errorf("map %d of match %s: %w", m.Number, m.MatchID, err)
		}
	}
	return m, nil
}

// MatchFilter narrows ListMatches. Zero fields do not filter.
type MatchFilter struct {
	TournamentID *uuid.UUID
	Stage        bracket.Stage
	Side         bracket.BracketSide
	Round        int
	Statuses     []bracket.MatchStatus
}

type TournamentStore struct {
	db sqlx.ExtContext
}

func NewTournamentStore(db sqlx.ExtContext) *TournamentStore {
	return &TournamentStore{db: db}
}

// WithTx returns a store whose reads run inside tx.
func (s *TournamentStore) WithTx(tx *sqlx.Tx) *TournamentStore {
	return &TournamentStore{db: tx}
}

func (s *TournamentStore) builder() sq.StatementBuilderType {
	if s.db.DriverName() == "postgres" {
		return sq.StatementBuilder.PlaceholderFormat(sq.Dollar)
	}
	return sq.StatementBuilder.PlaceholderFormat(sq.Question)
}

func (s *TournamentStore) CreateTournament(ctx context.Context, tx *sqlx.Tx, tournament *bracket.Tournament) error {
	_, err := tx.NamedExecContext(ctx, createTournamentQuery, tournament)
	return err
}

func (s *TournamentStore) UpdateTournament(ctx context.Context, tx *sqlx.Tx, tournament *bracket.Tournament) error {
	res, err := tx.NamedExecContext(ctx, updateTournamentQuery, tournament)
	if err != nil {
		return err
	}
	return expectRow(res, "tournament", tournament.ID)
}

func (s *TournamentStore) CreateParticipants(ctx context.Context, tx *sqlx.Tx, participants []bracket.Participant) error {
	if len(participants) == 0 {
		return nil
	}
	_, err := tx.NamedExecContext(ctx, createParticipantQuery, participants)
	return err
}

func (s *TournamentStore) UpdateParticipants(ctx context.Context, tx *sqlx.Tx, participants []bracket.Participant) error {
	for i := range participants {
		if _, err := tx.NamedExecContext(ctx, updateParticipantQuery, &participants[i]); err != nil {
			return fmt.Errorf("participant %s: %w", participants[i].ID, err)
		}
	}
	return nil
}

// SaveMatches inserts or updates matches and replaces their map records. An
// update must carry the stored version plus one, otherwise ErrVersionConflict
// is returned.
func (s *TournamentStore) SaveMatches(ctx context.Context, tx *sqlx.Tx, matches []bracket.Match) error {
	for i := range matches {
		m := &matches[i]
		res, err := tx.NamedExecContext(ctx, upsertMatchQuery, m)
		if err != nil {
			return fmt.Errorf("match %s: %w", m.ID, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return fmt.Errorf("match %s at version %d: %w", m.ID, m.Version, ErrVersionConflict)
		}
		if _, err := tx.ExecContext(ctx, tx.Rebind(deleteMapsQuery), m.ID); err != nil {
			return fmt.Errorf("maps of match %s: %w", m.ID, err)
		}
		for _, mp := range m.Maps {
			mp.MatchID = m.ID
			row, err := newMapRow(mp)
			if err != nil {
				return err
			}
			if _, err := tx.NamedExecContext(ctx, createMapQuery, row); err != nil {
				return fmt.Errorf("map %d of match %s: %w", mp.Number, m.ID, err)
			}
		}
	}
	return nil
}

// DeleteMatches removes matches that no longer exist in the bracket, such as
// a withdrawn grand-final reset.
func (s *TournamentStore) DeleteMatches(ctx context.Context, tx *sqlx.Tx, ids []uuid.UUID) error {
	for _, id := range ids {
		if _, err := tx.ExecContext(ctx, tx.Rebind(deleteMatchQuery), id); err != nil {
			return fmt.Errorf("match %s: %w", id, err)
		}
	}
	return nil
}

func (s *TournamentStore) GetTournament(ctx context.Context, id uuid.UUID) (*bracket.Tournament, error) {
	var tournament bracket.Tournament
	err := sqlx.GetContext(ctx, s.db, &tournament, s.db.Rebind("SELECT * FROM tournaments WHERE id = ?"), id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("tournament %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &tournament, nil
}

func (s *TournamentStore) GetTournamentsByOwner(ctx context.Context, ownerID uuid.UUID) ([]bracket.Tournament, error) {
	var tournaments []bracket.Tournament
	err := sqlx.SelectContext(ctx, s.db, &tournaments, s.db.Rebind("SELECT * FROM tournaments WHERE owner_id = ? ORDER BY created_at DESC"), ownerID)
	return tournaments, err
}

func (s *TournamentStore) GetParticipants(ctx context.Context, tournamentID uuid.UUID) ([]bracket.Participant, error) {
	var participants []bracket.Participant
	err := sqlx.SelectContext(ctx, s.db, &participants, s.db.Rebind("SELECT * FROM participants WHERE tournament_id = ? ORDER BY seed ASC"), tournamentID)
	return participants, err
}

// GetMatches returns the tournament's matches without their maps.
func (s *TournamentStore) GetMatches(ctx context.Context, tournamentID uuid.UUID) ([]bracket.Match, error) {
	return s.ListMatches(ctx, MatchFilter{TournamentID: &tournamentID})
}

// GetMaps returns every map of the tournament keyed by match.
func (s *TournamentStore) GetMaps(ctx context.Context, tournamentID uuid.UUID) (map[uuid.UUID][]bracket.Map, error) {
	query, args, err := s.builder().
		Select("mm.*").
		From("match_maps mm").
		Join("matches m ON m.id = mm.match_id").
		Where(sq.Eq{"m.tournament_id": tournamentID}).
		OrderBy("mm.match_id", "mm.map_number").
		ToSql()
	if err != nil {
		return nil, err
	}
	return s.selectMaps(ctx, query, args...)
}

func (s *TournamentStore) selectMaps(ctx context.Context, query string, args ...any) (map[uuid.UUID][]bracket.Map, error) {
	var rows []mapRow
	if err := sqlx.SelectContext(ctx, s.db, &rows, query, args...); err != nil {
		return nil, err
	}
	out := make(map[uuid.UUID][]bracket.Map)
	for _, r := range rows {
		m, err := r.decode()
		if err != nil {
			return nil, err
		}
		out[m.MatchID] = append(out[m.MatchID], m)
	}
	return out, nil
}

// GetMatch returns one match with its maps.
func (s *TournamentStore) GetMatch(ctx context.Context, id uuid.UUID) (*bracket.Match, error) {
	var match bracket.Match
	query, args, err := s.builder().Select(matchColumns...).From("matches").Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return nil, err
	}
	err = sqlx.GetContext(ctx, s.db, &match, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("match %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}

	maps, err := s.selectMaps(ctx, s.db.Rebind("SELECT * FROM match_maps WHERE match_id = ? ORDER BY map_number"), id)
	if err != nil {
		return nil, err
	}
	match.Maps = maps[id]
	return &match, nil
}

// ListMatches returns matches in bracket order.
func (s *TournamentStore) ListMatches(ctx context.Context, f MatchFilter) ([]bracket.Match, error) {
	q := s.builder().Select(matchColumns...).From("matches")
	if f.TournamentID != nil {
		q = q.Where(sq.Eq{"tournament_id": *f.TournamentID})
	}
	if f.Stage != "" {
		q = q.Where(sq.Eq{"stage": f.Stage})
	}
	if f.Side != "" {
		q = q.Where(sq.Eq{"bracket_side": f.Side})
	}
	if f.Round > 0 {
		q = q.Where(sq.Eq{"round_number": f.Round})
	}
	if len(f.Statuses) > 0 {
		statuses := make([]string, len(f.Statuses))
		for i, st := range f.Statuses {
			statuses[i] = string(st)
		}
		q = q.Where(sq.Eq{"status": statuses})
	}
	query, args, err := q.OrderBy("stage", "bracket_side", "group_index", "round_number", "match_order").ToSql()
	if err != nil {
		return nil, err
	}

	var matches []bracket.Match
	err = sqlx.SelectContext(ctx, s.db, &matches, query, args...)
	return matches, err
}

func expectRow(res sql.Result, kind string, id uuid.UUID) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%s %s: %w", kind, id, ErrNotFound)
	}
	return nil
}
