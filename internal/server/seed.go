package server

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/avasek/storefront/internal/store"
)

// SeedEmail is the placeholder account created on an empty store.
const SeedEmail = "dev@example.com"

// EnsureSeedUser inserts a placeholder user when the store holds none, so a
// fresh installation has an account to attach carts to. The seed user has no
// usable password and no pending notification.
func EnsureSeedUser(ctx context.Context, users store.Users, logger *slog.Logger) error {
	n, err := users.Count(ctx)
	if err != nil {
		return fmt.Errorf("count users: %w", err)
	}
	if n > 0 {
		return nil
	}

	u := &store.User{Email: SeedEmail}
	if err := users.Insert(ctx, u); err != nil {
		return fmt.Errorf("insert seed user: %w", err)
	}
	logger.Info("seeded initial user", "email", SeedEmail, "id", u.ID.Hex())
	return nil
}
