package database

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/nfrund/gobychat/internal/config"
	"github.com/nfrund/gobychat/internal/domain"
	"github.com/nfrund/gobychat/internal/testutils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/surrealdb/surrealdb.go"
)

// setupTestDB connects to the SurrealDB named by .env.test or the
// environment, and skips the test when none is configured.
func setupTestDB(t *testing.T) *surrealdb.DB {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	if testutils.EnvTest(t, "SURREAL_URL") == "" {
		t.Skip("SURREAL_URL not set")
	}

	overrides := map[string]string{"STORAGE_BACKEND": config.BackendSurreal}
	for _, key := range []string{"SURREAL_URL", "SURREAL_NS", "SURREAL_DB", "SURREAL_USER", "SURREAL_PASS"} {
		overrides[key] = testutils.EnvTest(t, key)
	}
	cfg := testutils.ConfigForTests(t, overrides)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	db, err := NewDB(ctx, cfg)
	require.NoError(t, err, "failed to connect to test database")
	require.NoError(t, Migrate(ctx, db))

	t.Cleanup(func() {
		_ = Execute(context.Background(), db, "DELETE user; DELETE message;", nil)
		db.Close(context.Background())
	})
	return db
}

func TestSurrealStores(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	users := NewSurrealUserStore(db)
	messages := NewSurrealMessageStore(db)

	ada := &domain.User{ID: uuid.NewString(), Name: "Ada", Email: "ada@example.com", PasswordHash: "h", CreatedAt: time.Now()}
	require.NoError(t, users.Create(ctx, ada))

	err := users.Create(ctx, &domain.User{ID: uuid.NewString(), Name: "Other", Email: "ada@example.com", PasswordHash: "h"})
	assert.ErrorIs(t, err, domain.ErrUserAlreadyExists)

	found, err := users.FindByEmail(ctx, "ada@example.com")
	require.NoError(t, err)
	assert.Equal(t, ada.ID, found.ID)
	assert.Equal(t, "h", found.PasswordHash)

	_, err = users.FindByID(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	base := time.Now().UTC()
	for i, text := range []string{"one", "two", "three"} {
		require.NoError(t, messages.Append(ctx, domain.Message{
			ID:          uuid.NewString(),
			SenderID:    ada.ID,
			RecipientID: "bob",
			Payload:     text,
			CreatedAt:   base.Add(time.Duration(i) * time.Millisecond),
		}))
	}

	conv, err := messages.Conversation(ctx, "bob", ada.ID, 2)
	require.NoError(t, err)
	require.Len(t, conv, 2)
	assert.Equal(t, "two", conv[0].Payload)
	assert.Equal(t, "three", conv[1].Payload)
}
