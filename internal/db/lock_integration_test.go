package db_test

import (
	"context"
	"os"
	"testing"

	"procurement-recon/internal/core"
	"procurement-recon/internal/db"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func setupLocker(t *testing.T) db.OrderLocker {
	t.Helper()
	_ = godotenv.Load("../../.env")

	addr := os.Getenv("TEST_REDIS_ADDRESS")
	if addr == "" {
		t.Skip("TEST_REDIS_ADDRESS not set, skipping redis lock test")
	}
	client, err := db.NewRedisClient(context.Background(), addr, "", 0)
	if err != nil {
		t.Fatalf("Failed to connect to test redis: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })
	return db.NewOrderLocker(client, zap.NewNop())
}

func TestOrderLocker_ExclusivePerOrder(t *testing.T) {
	locker := setupLocker(t)
	ctx := context.Background()
	po := "PO-" + uuid.NewString()

	unlock, err := locker.Lock(ctx, po)
	require.NoError(t, err)

	// a different order is independent
	unlockOther, err := locker.Lock(ctx, po+"-other")
	require.NoError(t, err)
	unlockOther()

	_, err = locker.Lock(ctx, po)
	assert.ErrorIs(t, err, core.ErrOrderBusy)

	unlock()
	unlock, err = locker.Lock(ctx, po)
	require.NoError(t, err)
	unlock()
}

func TestNoopLocker(t *testing.T) {
	unlock, err := db.NoopLocker().Lock(context.Background(), "PO-1")
	require.NoError(t, err)
	unlock()
	unlock, err = db.NoopLocker().Lock(context.Background(), "PO-1")
	require.NoError(t, err)
	unlock()
}
