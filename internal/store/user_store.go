package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	users "github.com/AdamBeresnev/op-tournament-engine/internal/user"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

type UserStore struct {
	db sqlx.ExtContext
}

const (
	getUserQuery           = "SELECT * FROM users WHERE id = ?"
	getUserByProviderQuery = `
        SELECT * FROM users
        WHERE provider = ?
        AND provider_id = ?
    `
	createUserQuery = `
		INSERT INTO users (id, email, username, provider, provider_id, avatar_url) VALUES
		(:id, :email, :username, :provider, :provider_id, :avatar_url)
	`
	updateUserNameAndAvatarQuery = `
		UPDATE users SET
		username = :username,
		avatar_url = :avatar_url
		WHERE id = :id
	`
)

func NewUserStore(db sqlx.ExtContext) *UserStore {
	return &UserStore{db: db}
}

func (s *UserStore) GetUserByProvider(ctx context.Context, provider string, providerID string) (*users.User, error) {
	var user users.User
	err := sqlx.GetContext(ctx, s.db, &user, s.db.Rebind(getUserByProviderQuery), provider, providerID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("user %s/%s: %w", provider, providerID, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}

	return &user, nil
}

func (s *UserStore) GetUser(ctx context.Context, id uuid.UUID) (*users.User, error) {
	var user users.User
	err := sqlx.GetContext(ctx, s.db, &user, s.db.Rebind(getUserQuery), id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("user %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (s *UserStore) CreateUser(ctx context.Context, user *users.User) error {
	_, err := sqlx.NamedExecContext(ctx, s.db, createUserQuery, user)
	return err
}

func (s *UserStore) UpdateUserNameAndAvatar(ctx context.Context, user *users.User) error {
	_, err := sqlx.NamedExecContext(ctx, s.db, updateUserNameAndAvatarQuery, user)
	return err
}
