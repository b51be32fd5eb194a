package app

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nfrund/gobychat/internal/config"
)

func TestBuild_MemoryBackend(t *testing.T) {
	cfg, err := config.FromMap(map[string]string{"STORAGE_BACKEND": config.BackendMemory})
	require.NoError(t, err)

	a, err := Build(context.Background(), cfg)
	require.NoError(t, err)

	assert.NotNil(t, a.Accounts)
	assert.NotNil(t, a.Dispatcher)
	assert.NotNil(t, a.Bridge)
	assert.Nil(t, a.Mirror, "no redis configured")
	assert.Empty(t, a.Health)

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, a.Run(ctx))
	cancel()

	closeCtx, closeCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer closeCancel()
	assert.NoError(t, a.Close(closeCtx))
}

func TestBuild_BadgerBackend(t *testing.T) {
	cfg, err := config.FromMap(map[string]string{
		"STORAGE_BACKEND": config.BackendBadger,
		"BADGER_PATH":     t.TempDir(),
	})
	require.NoError(t, err)

	a, err := Build(context.Background(), cfg)
	require.NoError(t, err)

	_, err = a.Accounts.SignUp(context.Background(), "Ada", "ada@example.com", "correct-horse")
	require.NoError(t, err)

	closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	assert.NoError(t, a.Close(closeCtx))
}

func TestBuild_UnreachableRedisFails(t *testing.T) {
	cfg, err := config.FromMap(map[string]string{
		"STORAGE_BACKEND": config.BackendMemory,
		"REDIS_ADDR":      "127.0.0.1:1",
	})
	require.NoError(t, err)

	_, err = Build(context.Background(), cfg)
	assert.ErrorContains(t, err, "redis")
}
