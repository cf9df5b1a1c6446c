package gormrepo

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	cfgpkg "github.com/taoyao-code/meshcore-bridge/internal/config"
	"github.com/taoyao-code/meshcore-bridge/internal/migrate"
	"github.com/taoyao-code/meshcore-bridge/internal/storage"
	"github.com/taoyao-code/meshcore-bridge/internal/storage/migrations"
	"github.com/taoyao-code/meshcore-bridge/internal/storage/models"
	"github.com/taoyao-code/meshcore-bridge/internal/storage/pg"
)

// openTestDB 需要 TEST_DATABASE_URL，否则跳过
func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("测试数据库不可用，跳过测试")
	}
	ctx := context.Background()
	pool, err := pg.NewPool(ctx, cfgpkg.DatabaseConfig{DSN: dsn}, nil)
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	require.NoError(t, migrate.Runner{FS: migrations.FS}.Up(ctx, pool))

	db, err := pg.OpenGorm(pool, nil)
	require.NoError(t, err)
	return db
}

func TestSaveMessageIsIdempotent(t *testing.T) {
	repo := New(openTestDB(t))
	ctx := context.Background()

	ch := int16(3)
	msg := &models.Message{
		EventID:    uuid.NewString(),
		ConnID:     "conn",
		Kind:       "channel_msg_recv",
		ChannelIdx: &ch,
		Text:       "alice: hi",
		ReceivedAt: time.Now(),
	}
	require.NoError(t, repo.SaveMessage(ctx, msg))
	dup := *msg
	dup.ID = 0
	require.NoError(t, repo.SaveMessage(ctx, &dup))

	got, err := repo.ListMessages(ctx, storage.MessageQuery{Channel: &ch, Since: msg.ReceivedAt.Add(-time.Second)})
	require.NoError(t, err)
	n := 0
	for _, m := range got {
		if m.EventID == msg.EventID {
			n++
		}
	}
	assert.Equal(t, 1, n)
}

func TestUpsertContactKeepsNewestAdvert(t *testing.T) {
	repo := New(openTestDB(t))
	ctx := context.Background()
	key := "ab" + uuid.New().String()[:8]

	require.NoError(t, repo.UpsertContact(ctx, &models.Contact{PublicKey: key, AdvName: "old", LastAdvert: 200}))
	require.NoError(t, repo.UpsertContact(ctx, &models.Contact{PublicKey: key, AdvName: "new", LastAdvert: 100}))

	c, err := repo.GetContactByPrefix(ctx, key[:10])
	require.NoError(t, err)
	assert.Equal(t, "new", c.AdvName)
	assert.Equal(t, int64(200), c.LastAdvert)

	_, err = repo.GetContactByPrefix(ctx, "ffffffffffffffffffff")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestWithTxRollsBack(t *testing.T) {
	repo := New(openTestDB(t))
	ctx := context.Background()
	key := "cd" + uuid.New().String()[:8]

	err := repo.WithTx(ctx, func(a storage.Archive) error {
		require.NoError(t, a.UpsertContact(ctx, &models.Contact{PublicKey: key, AdvName: "tx"}))
		return assert.AnError
	})
	assert.ErrorIs(t, err, assert.AnError)

	_, err = repo.GetContactByPrefix(ctx, key)
	assert.ErrorIs(t, err, ErrNotFound)
}
