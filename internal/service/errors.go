package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/AdamBeresnev/op-tournament-engine/internal/bracket"
	"github.com/AdamBeresnev/op-tournament-engine/internal/middleware"
)

var (
	ErrForbidden    = errors.New("not allowed to manage this tournament")
	ErrInvalidInput = errors.New("invalid input")
)

// checkOwner lets the owner and the super user change a tournament. Calls
// without a user in the context are internal and pass.
func checkOwner(ctx context.Context, t *bracket.Tournament) error {
	userID, ok := middleware.GetUserIDFromContext(ctx)
	if !ok {
		return nil
	}
	if t.OwnerID != userID && userID.String() != middleware.SuperUserID {
		return fmt.Errorf("tournament %s: %w", t.ID, ErrForbidden)
	}
	return nil
}
