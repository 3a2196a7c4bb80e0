package snapshot

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dhanbg/traditionalalley-sub002/internal/domain"
	apperrors "github.com/dhanbg/traditionalalley-sub002/pkg/errors"
)

func setupTestRedis(t *testing.T) (*Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewStore(client, 24*time.Hour), mr
}

func sampleSnapshot() *domain.CartSnapshot {
	return &domain.CartSnapshot{
		UserID: "user-1",
		Items: []domain.LineItem{
			{
				LocalID:              "l1",
				RemoteLineID:         101,
				RemoteLineDocumentID: "line-doc-101",
				ProductID:            7,
				ProductDocumentID:    "prod-doc-7",
				VariantID:            "red",
				Size:                 "M",
				Title:                "Linen Shirt",
				UnitPrice:            4500,
				Quantity:             2,
				State:                domain.SyncStateLinked,
			},
			{
				LocalID:   "l2",
				ProductID: 8,
				Title:     "Wool Coat",
				UnitPrice: 12000,
				Quantity:  1,
				State:     domain.SyncStateLocalOnly,
			},
		},
		Selected: map[string]bool{"l1": true, "l2": false},
	}
}

func TestStore_SaveAndLoad(t *testing.T) {
	store, _ := setupTestRedis(t)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, sampleSnapshot()))

	got, err := store.Load(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, got.Items, 2)
	// Remote identifiers survive the round trip, so relinking works on resume.
	assert.Equal(t, int64(101), got.Items[0].RemoteLineID)
	assert.Equal(t, "line-doc-101", got.Items[0].RemoteLineDocumentID)
	assert.Equal(t, domain.SyncStateLocalOnly, got.Items[1].State)
	assert.True(t, got.Selected["l1"])
	assert.False(t, got.Selected["l2"])
}

func TestStore_Load_Missing(t *testing.T) {
	store, _ := setupTestRedis(t)

	_, err := store.Load(context.Background(), "nobody")

	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrNotFound))
}

func TestStore_Load_CorruptPayload(t *testing.T) {
	store, mr := setupTestRedis(t)
	mr.Set("cartsync:user-1", "{not json")

	_, err := store.Load(context.Background(), "user-1")

	require.Error(t, err)
}

func TestStore_Save_SetsTTL(t *testing.T) {
	store, mr := setupTestRedis(t)

	require.NoError(t, store.Save(context.Background(), sampleSnapshot()))

	assert.Greater(t, mr.TTL("cartsync:user-1"), time.Duration(0))
}

func TestStore_Delete(t *testing.T) {
	store, mr := setupTestRedis(t)
	data, _ := json.Marshal(sampleSnapshot())
	mr.Set("cartsync:user-1", string(data))

	require.NoError(t, store.Delete(context.Background(), "user-1"))

	assert.False(t, mr.Exists("cartsync:user-1"))
}

func TestStore_Ping(t *testing.T) {
	store, _ := setupTestRedis(t)

	assert.NoError(t, store.Ping(context.Background()))
}
