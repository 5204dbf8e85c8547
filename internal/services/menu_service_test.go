package services

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"restodash/server/internal/models"
	"restodash/server/internal/utils"
)

func TestStaticCatalog(t *testing.T) {
	c := NewStaticCatalog(DefaultMenu()...)
	item, err := c.GetMenuItem(context.Background(), 3)
	require.NoError(t, err)
	assert.Equal(t, "Margherita Pizza", item.Name)
	assert.Equal(t, "oven", item.Station)

	_, err = c.GetMenuItem(context.Background(), 100)
	assert.ErrorIs(t, err, ErrNotFound)

	c.Put(models.MenuItem{ID: 100, Name: "Special", IsAvailable: true})
	_, err = c.GetMenuItem(context.Background(), 100)
	assert.NoError(t, err)
}

func TestDefaultMenuHasUniqueIDsAndStations(t *testing.T) {
	seen := map[int64]bool{}
	for _, it := range DefaultMenu() {
		assert.False(t, seen[it.ID], "duplicate id %d", it.ID)
		seen[it.ID] = true
		assert.NotEmpty(t, it.Station)
		assert.True(t, it.IsAvailable)
		assert.Positive(t, it.PreparationTime)
	}
}

// unreachableDB - gorm поверх Postgres, к которому нельзя подключиться
func unreachableDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(postgres.New(postgres.Config{
		DSN: "host=127.0.0.1 port=1 user=test dbname=test sslmode=disable connect_timeout=1",
	}), &gorm.Config{DisableAutomaticPing: true, Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	return db
}

func TestLoadMenuFallsBackToRedisCache(t *testing.T) {
	mr := miniredis.RunT(t)
	rc := utils.NewRedisClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	ctx := context.Background()
	require.NoError(t, rc.SetJSON(ctx, menuCacheKey, DefaultMenu()[:2], time.Minute))

	ms := NewMenuService(unreachableDB(t), rc)
	require.NoError(t, ms.LoadMenu(ctx))

	assert.Len(t, ms.Items(), 2)
	item, err := ms.GetMenuItem(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, "Caesar Salad", item.Name)
	assert.False(t, ms.GetLastUpdate().IsZero())

	_, err = ms.GetMenuItem(ctx, 5)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLoadMenuFailsWithoutDBAndCache(t *testing.T) {
	ms := NewMenuService(unreachableDB(t), nil)
	assert.Error(t, ms.LoadMenu(context.Background()))

	mr := miniredis.RunT(t)
	rc := utils.NewRedisClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	ms = NewMenuService(unreachableDB(t), rc)
	err := ms.LoadMenu(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cache is empty")
}

func TestMenuReloadsOnPubSub(t *testing.T) {
	mr := miniredis.RunT(t)
	rc := utils.NewRedisClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, rc.SetJSON(ctx, menuCacheKey, DefaultMenu()[:1], time.Minute))

	ms := NewMenuService(unreachableDB(t), rc)
	ms.StartAutoReload(ctx)

	// ждем подписку, затем меняем кэш и публикуем событие
	assert.Eventually(t, func() bool {
		return len(mr.PubSubChannels("")) > 0
	}, 2*time.Second, 10*time.Millisecond)
	require.NoError(t, rc.SetJSON(ctx, menuCacheKey, DefaultMenu(), time.Minute))
	require.NoError(t, ms.PublishUpdate(ctx))

	assert.Eventually(t, func() bool { return len(ms.Items()) == len(DefaultMenu()) }, 3*time.Second, 20*time.Millisecond)
}
