package services

import (
	"context"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"restodash/server/internal/models"
	"restodash/server/internal/utils"
)

const (
	MenuUpdateChannel = "menu:update" // Канал для Pub/Sub обновлений меню
	menuCacheKey      = "menu:items"
	menuCacheTTL      = 10 * time.Minute
)

// MenuCatalog - источник цены, времени готовки и станции для позиций заказа
type MenuCatalog interface {
	GetMenuItem(ctx context.Context, id int64) (models.MenuItem, error)
}

// StaticCatalog - меню, заданное в коде (memory режим, тесты)
type StaticCatalog struct {
	mu    sync.RWMutex
	items map[int64]models.MenuItem
}

func NewStaticCatalog(items ...models.MenuItem) *StaticCatalog {
	c := &StaticCatalog{items: make(map[int64]models.MenuItem, len(items))}
	for _, it := range items {
		c.items[it.ID] = it
	}
	return c
}

func (c *StaticCatalog) Put(item models.MenuItem) {
	c.mu.Lock()
	c.items[item.ID] = item
	c.mu.Unlock()
}

func (c *StaticCatalog) GetMenuItem(_ context.Context, id int64) (models.MenuItem, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	item, ok := c.items[id]
	if !ok {
		return models.MenuItem{}, fmt.Errorf("menu item %d: %w", id, ErrNotFound)
	}
	return item, nil
}

// MenuService держит меню в памяти: загрузка из БД, кэш в Redis,
// мгновенная перезагрузка по Pub/Sub и таймер как fallback
type MenuService struct {
	db             *gorm.DB
	redisUtil      *utils.RedisClient
	mu             sync.RWMutex
	items          map[int64]models.MenuItem
	lastUpdate     time.Time
	updateInterval time.Duration
}

func NewMenuService(db *gorm.DB, redisUtil *utils.RedisClient) *MenuService {
	return &MenuService{
		db:             db,
		redisUtil:      redisUtil,
		items:          make(map[int64]models.MenuItem),
		updateInterval: 5 * time.Minute,
	}
}

// LoadMenu загружает меню из БД. Если БД недоступна - берет снимок из Redis.
// Новая мапа собирается без блокировки и подменяется атомарно.
func (ms *MenuService) LoadMenu(ctx context.Context) error {
	var rows []models.MenuItem
	err := ms.db.WithContext(ctx).Order("id").Find(&rows).Error
	if err != nil {
		if ms.redisUtil == nil {
			return err
		}
		if cacheErr := ms.redisUtil.GetJSON(ctx, menuCacheKey, &rows); cacheErr != nil {
			if utils.IsNil(cacheErr) {
				return fmt.Errorf("load menu: %w (cache is empty)", err)
			}
			return fmt.Errorf("load menu: %w (cache: %v)", err, cacheErr)
		}
		log.Printf("⚠️ Меню загружено из кэша Redis, БД недоступна: %v", err)
	} else if ms.redisUtil != nil {
		if err := ms.redisUtil.SetJSON(ctx, menuCacheKey, rows, menuCacheTTL); err != nil {
			log.Printf("⚠️ Не удалось обновить кэш меню: %v", err)
		}
	}

	items := make(map[int64]models.MenuItem, len(rows))
	for _, r := range rows {
		items[r.ID] = r
	}

	ms.mu.Lock()
	ms.items = items
	ms.lastUpdate = time.Now()
	ms.mu.Unlock()

	log.Printf("✅ Меню обновлено: %d позиций", len(items))
	return nil
}

func (ms *MenuService) GetMenuItem(_ context.Context, id int64) (models.MenuItem, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()
	item, ok := ms.items[id]
	if !ok {
		return models.MenuItem{}, fmt.Errorf("menu item %d: %w", id, ErrNotFound)
	}
	return item, nil
}

// Items возвращает снимок меню, отсортированный по id
func (ms *MenuService) Items() []models.MenuItem {
	ms.mu.RLock()
	defer ms.mu.RUnlock()
	out := make([]models.MenuItem, 0, len(ms.items))
	for _, it := range ms.items {
		out = append(out, it)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (ms *MenuService) GetLastUpdate() time.Time {
	ms.mu.RLock()
	defer ms.mu.RUnlock()
	return ms.lastUpdate
}

// StartAutoReload запускает Pub/Sub слушатель и таймер; останавливается по ctx
func (ms *MenuService) StartAutoReload(ctx context.Context) {
	if ms.redisUtil != nil {
		go ms.listenUpdates(ctx)
	}

	go func() {
		ticker := time.NewTicker(ms.updateInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if err := ms.LoadMenu(ctx); err != nil {
					log.Printf("⚠️ Ошибка автообновления меню: %v", err)
				}
			case <-ctx.Done():
				return
			}
		}
	}()
	log.Printf("🔄 Fallback автообновление меню запущено (каждые %v)", ms.updateInterval)
}

func (ms *MenuService) listenUpdates(ctx context.Context) {
	for ctx.Err() == nil {
		ch, closeFn, err := ms.redisUtil.Subscribe(ctx, MenuUpdateChannel)
		if err != nil {
			log.Printf("⚠️ Подписка на %s не удалась: %v", MenuUpdateChannel, err)
			select {
			case <-time.After(5 * time.Second):
				continue
			case <-ctx.Done():
				return
			}
		}
		log.Printf("👂 Слушаем канал Redis: %s", MenuUpdateChannel)
		ms.consumeUpdates(ctx, ch)
		_ = closeFn()
	}
}

func (ms *MenuService) consumeUpdates(ctx context.Context, ch <-chan *redis.Message) {
	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				log.Println("⚠️ Pub/Sub канал закрыт, переподписываемся...")
				return
			}
			log.Printf("🔔 Получено событие обновления меню: %s", msg.Payload)
			if err := ms.LoadMenu(ctx); err != nil {
				log.Printf("⚠️ Ошибка обновления меню по Pub/Sub: %v", err)
			}
		case <-ctx.Done():
			return
		}
	}
}

// PublishUpdate просит все экземпляры перечитать меню
func (ms *MenuService) PublishUpdate(ctx context.Context) error {
	if ms.redisUtil == nil {
		return ms.LoadMenu(ctx)
	}
	return ms.redisUtil.Publish(ctx, MenuUpdateChannel, time.Now().UTC().Format(time.RFC3339))
}

// SeedMenu заполняет пустую таблицу демо-меню
func SeedMenu(ctx context.Context, db *gorm.DB) error {
	var count int64
	if err := db.WithContext(ctx).Model(&models.MenuItem{}).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return nil
	}
	items := DefaultMenu()
	if err := db.WithContext(ctx).Create(&items).Error; err != nil {
		return err
	}
	log.Printf("✅ Меню заполнено демо-данными: %d позиций", len(items))
	return nil
}

// DefaultMenu - демо-меню для пустой БД и memory режима
func DefaultMenu() []models.MenuItem {
	return []models.MenuItem{
		{ID: 1, Name: "Classic Burger", Category: "mains", Price: 12.5, PreparationTime: 12, Station: "grill", Allergens: models.StringList{"gluten", "dairy"}, IsAvailable: true},
		{ID: 2, Name: "Caesar Salad", Category: "starters", Price: 8, PreparationTime: 6, Station: "cold", Allergens: models.StringList{"egg", "fish"}, IsAvailable: true},
		{ID: 3, Name: "Margherita Pizza", Category: "mains", Price: 11, PreparationTime: 15, Station: "oven", Allergens: models.StringList{"gluten", "dairy"}, IsAvailable: true},
		{ID: 4, Name: "French Fries", Category: "sides", Price: 4, PreparationTime: 5, Station: "fryer", IsAvailable: true},
		{ID: 5, Name: "Tomato Soup", Category: "starters", Price: 6, PreparationTime: 4, Station: "stove", IsAvailable: true},
		{ID: 6, Name: "Grilled Salmon", Category: "mains", Price: 19, PreparationTime: 18, Station: "grill", Allergens: models.StringList{"fish"}, IsAvailable: true},
		{ID: 7, Name: "Lemonade", Category: "drinks", Price: 3, PreparationTime: 1, Station: "bar", IsAvailable: true},
	}
}
