package interfaces

import (
	"context"

	"github.com/levelbot/levelbot/internal/models"
)

// IdentityResolver turns a user id into a display identity.
type IdentityResolver interface {
	Resolve(ctx context.Context, userID string) (models.Identity, error)
}
