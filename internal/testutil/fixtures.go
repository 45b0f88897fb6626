package testutil

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/mcoot/noughts/internal/model"
	"github.com/mcoot/noughts/internal/storage"
)

// SeedUsers saves a user per id, named after the id, and panics on failure
func SeedUsers(ctx context.Context, store storage.Storage, ids ...model.UserID) {
	for _, id := range ids {
		user := &model.User{
			ID:        id,
			FullName:  strings.ToUpper(string(id[:1])) + string(id[1:]),
			Email:     fmt.Sprintf("%s@example.com", id),
			CreatedAt: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		}
		if err := store.SaveUser(ctx, user); err != nil {
			panic(err)
		}
	}
}
