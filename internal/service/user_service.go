package service

import (
	"context"
	"errors"
	"log/slog"

	"github.com/AdamBeresnev/op-tournament-engine/internal/middleware"
	"github.com/AdamBeresnev/op-tournament-engine/internal/store"
	users "github.com/AdamBeresnev/op-tournament-engine/internal/user"
	"github.com/AdamBeresnev/op-tournament-engine/internal/utils"
	"github.com/google/uuid"
	"github.com/markbates/goth"
)

type UserService struct {
	store *store.UserStore
}

func NewUserService(store *store.UserStore) *UserService {
	return &UserService{store: store}
}

func (s *UserService) FindOrCreateUserByProvider(ctx context.Context, gothUser goth.User) (*users.User, error) {
	user, err := s.store.GetUserByProvider(ctx, gothUser.Provider, gothUser.UserID)

	if err == nil {
		if utils.OrZero(user.AvatarURL) != gothUser.AvatarURL || user.Username != displayName(gothUser) {
			user.AvatarURL = utils.StringOrNil(gothUser.AvatarURL)
			user.Username = displayName(gothUser)
			if err := s.store.UpdateUserNameAndAvatar(ctx, user); err != nil {
				slog.Warn("failed to refresh user profile", "user_id", user.ID, "error", err)
			}
		}
		return user, nil
	}

	if errors.Is(err, store.ErrNotFound) {
		newUser := &users.User{
			ID:         uuid.New(),
			Email:      gothUser.Email,
			Username:   displayName(gothUser),
			Provider:   utils.Ptr(gothUser.Provider),
			ProviderID: utils.Ptr(gothUser.UserID),
			AvatarURL:  utils.StringOrNil(gothUser.AvatarURL),
		}
		err := s.store.CreateUser(ctx, newUser)
		return newUser, err
	}

	return nil, err
}

// EnsureGuestUser returns the shared guest account, creating it on first use.
func (s *UserService) EnsureGuestUser(ctx context.Context) (*users.User, error) {
	guestID := uuid.MustParse(middleware.GuestUserID)
	user, err := s.store.GetUser(ctx, guestID)
	if err == nil {
		return user, nil
	}

	if errors.Is(err, store.ErrNotFound) {
		guestUser := &users.User{
			ID:       guestID,
			Email:    "guest@op-tournament.app",
			Username: "Guest User",
			Provider: utils.Ptr(users.GuestProvider),
		}
		err := s.store.CreateUser(ctx, guestUser)
		return guestUser, err
	}
	return nil, err
}

func displayName(u goth.User) string {
	if u.NickName != "" {
		return u.NickName
	}
	if u.Name != "" {
		return u.Name
	}
	return u.Email
}
