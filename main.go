package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"gorm.io/gorm"

	"restodash/server/internal/api"
	"restodash/server/internal/config"
	"restodash/server/internal/database"
	"restodash/server/internal/models"
	"restodash/server/internal/queue"
	"restodash/server/internal/services"
	"restodash/server/internal/store"
	"restodash/server/internal/utils"
)

func main() {
	// .env может отсутствовать в production окружениях
	if err := godotenv.Load(); err != nil {
		log.Printf("ℹ️ .env файл не найден, используем переменные окружения системы")
	} else {
		log.Printf("✅ Переменные окружения загружены из .env файла")
	}

	cfg := config.Load()
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Redis (опционально): шина изменений и кеш меню
	var redisUtil *utils.RedisClient
	if cfg.RedisURL != "" || len(cfg.RedisSentinelAddrs) > 0 {
		redisClient, err := database.ConnectRedis(cfg.RedisURL, cfg.RedisSentinelAddrs, cfg.RedisMasterName)
		if err != nil {
			log.Printf("⚠️ Redis connection failed: %v (continuing without Redis)", err)
		} else {
			redisUtil = utils.NewRedisClient(redisClient)
			defer database.CloseRedis(redisClient)
		}
	}

	feed := openFeed(ctx, cfg, redisUtil)
	defer feed.Close()

	// PostgreSQL; без БД работаем в памяти
	var db *gorm.DB
	if cfg.StoreBackend == config.StoreBackendPostgres {
		log.Printf("📋 DATABASE_URL: %s", maskURL(cfg.DatabaseURL))
		conn, err := database.ConnectPostgres(cfg.DatabaseURL, database.PostgresOptions{
			MaxOpenConns:    cfg.DBMaxOpenConns,
			MaxIdleConns:    cfg.DBMaxIdleConns,
			ConnMaxLifetime: cfg.DBConnMaxLifetime,
		})
		if err != nil {
			log.Printf("❌ PostgreSQL connection failed: %v", err)
			log.Printf("⚠️ Продолжаем с хранилищем в памяти (данные не переживут рестарт)")
		} else if err := models.AutoMigrate(conn); err != nil {
			log.Printf("❌ Migration failed: %v", err)
			log.Printf("⚠️ Продолжаем с хранилищем в памяти")
			database.ClosePostgres(conn)
		} else {
			log.Println("✅ Database migrations completed")
			db = conn
			defer database.ClosePostgres(db)
		}
	}

	var (
		gateway store.Gateway
		catalog services.MenuCatalog
		repo    services.ReportRepository
	)
	if db != nil {
		pg, err := store.NewPostgresGateway(db, feed, &models.OrderRecord{}, &models.KitchenOrderRecord{})
		if err != nil {
			log.Fatalf("❌ Store gateway: %v", err)
		}
		gateway = pg

		if err := services.SeedMenu(ctx, db); err != nil {
			log.Printf("⚠️ Failed to seed menu: %v", err)
		}
		menuService := services.NewMenuService(db, redisUtil)
		if err := menuService.LoadMenu(ctx); err != nil {
			log.Printf("⚠️ Failed to load menu: %v", err)
		}
		menuService.StartAutoReload(ctx)
		catalog = menuService
		repo = services.NewGormReportRepository(db)
	} else {
		gateway = store.NewMemoryGateway(feed, models.TableOrders, models.TableKitchenOrders)
		catalog = services.NewStaticCatalog(services.DefaultMenu()...)
		repo = services.NewMemoryReportRepository()
		log.Println("⚠️ Store backend: memory")
	}

	hub := api.NewHub()
	go hub.Run(ctx)

	orderService := services.NewOrderService(gateway, catalog)
	kitchenService := services.NewKitchenService(gateway, catalog, orderService)
	alertService := services.NewAlertService(services.AlertConfig{
		HistorySize:     cfg.AlertHistorySize,
		NearDelayWindow: cfg.AlertNearDelayWindow,
		Bucket:          cfg.AlertBucket,
		Muted:           cfg.AlertSoundMuted,
	}, api.NewSoundPlayer(hub))
	reportService := services.NewReportService(repo, orderService)

	notifier := startNotifier(ctx, cfg)

	orderService.AddObserver(kitchenService.HandleOrderStatus)
	orderService.AddObserver(func(ch services.StatusChange) {
		hub.Broadcast(api.MessageOrderStatus, ch)
		if notifier != nil {
			notifier.NotifyTransition("order", ch.OrderID, ch.OrderID, string(ch.To), ch.At)
		}
	})
	kitchenService.AddObserver(alertService.HandleTickets)
	kitchenService.AddObserver(func(ev services.TicketEvent) {
		for _, t := range ev.Changed {
			hub.Broadcast(api.MessageTicketUpdate, t)
			if notifier != nil {
				notifier.NotifyTransition("ticket", t.ID, t.OrderID, string(t.Status), t.UpdatedAt)
			}
		}
	})
	alertService.AddObserver(func(alerts []models.Alert) {
		hub.Broadcast(api.MessageAlert, alerts)
	})

	if err := kitchenService.Start(ctx, orderService); err != nil {
		log.Printf("⚠️ Kitchen start failed: %v", err)
	}

	// Алерты зависят от времени, а не только от изменений тикетов
	go func() {
		ticker := time.NewTicker(cfg.AlertBucket)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				alertService.Evaluate(kitchenService.Tickets(), time.Now().UTC())
			case <-ctx.Done():
				return
			}
		}
	}()

	// Сверка заказов и тикетов на случай потерянных событий
	go func() {
		ticker := time.NewTicker(5 * time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if err := kitchenService.Reconcile(ctx, orderService); err != nil {
					log.Printf("⚠️ Reconcile failed: %v", err)
				}
				logMemoryStats()
			case <-ctx.Done():
				return
			}
		}
	}()

	r := api.SetupRouter(api.Controllers{
		Orders:    api.NewOrderController(orderService, kitchenService),
		Kitchen:   api.NewKitchenController(kitchenService),
		Alerts:    api.NewAlertsController(alertService),
		Analytics: api.NewAnalyticsController(kitchenService, reportService),
		Hub:       hub,
	})

	srv := &http.Server{
		Addr:    "0.0.0.0:" + cfg.ServerPort,
		Handler: r,
	}
	go func() {
		log.Printf("🚀 Server starting on port %s", cfg.ServerPort)
		log.Printf("📡 API доступен на http://0.0.0.0:%s/api/v1", cfg.ServerPort)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	<-ctx.Done()
	log.Println("🛑 Остановка сервера...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("⚠️ Server shutdown: %v", err)
	}
}

// openFeed выбирает шину изменений: Kafka, затем Redis, иначе локальная
func openFeed(ctx context.Context, cfg *config.Config, redisUtil *utils.RedisClient) store.ChangeFeed {
	if brokers := store.ParseKafkaBrokers(cfg.KafkaBrokers); len(brokers) > 0 {
		feed, err := store.NewKafkaFeed(ctx, store.KafkaFeedConfig{
			Brokers:  brokers,
			Topic:    cfg.KafkaChangesTopic,
			Username: cfg.KafkaUsername,
			Password: cfg.KafkaPassword,
			CACert:   cfg.KafkaCACert,
		})
		if err == nil {
			log.Printf("📡 Change feed: Kafka %v (topic %s)", brokers, cfg.KafkaChangesTopic)
			return feed
		}
		log.Printf("⚠️ Kafka change feed failed: %v", err)
	}
	if redisUtil != nil {
		feed, err := store.NewRedisFeed(ctx, redisUtil)
		if err == nil {
			log.Printf("📡 Change feed: Redis Pub/Sub %s*", store.RedisChannelPrefix)
			return feed
		}
		log.Printf("⚠️ Redis change feed failed: %v", err)
	}
	log.Println("📡 Change feed: local (single instance)")
	return store.NewLocalFeed()
}

// startNotifier подключает RabbitMQ; без него уведомления не публикуются
func startNotifier(ctx context.Context, cfg *config.Config) *queue.Notifier {
	if cfg.RabbitMQURL == "" {
		log.Println("ℹ️ RABBITMQ_URL не задан, AMQP уведомления выключены")
		return nil
	}
	client, err := queue.Dial(cfg.RabbitMQURL)
	if err != nil {
		log.Printf("⚠️ RabbitMQ connection failed: %v (continuing without notifications)", err)
		return nil
	}
	go func() {
		<-ctx.Done()
		client.Close()
	}()
	notifier := queue.NewNotifier(client, 256)
	go notifier.Run(ctx)
	log.Printf("✅ AMQP уведомления: exchange %s", queue.NotificationsExchange)
	return notifier
}

func maskURL(raw string) string {
	if idx := strings.Index(raw, "@"); idx > 0 {
		if schemeIdx := strings.Index(raw, "://"); schemeIdx > 0 {
			return raw[:schemeIdx+3] + "***@" + raw[idx+1:]
		}
	}
	return raw
}

// logMemoryStats логирует использование памяти и число горутин
func logMemoryStats() {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	heapAllocMB := float64(m.HeapAlloc) / 1024 / 1024
	numGoroutines := runtime.NumGoroutine()
	log.Printf("💾 Memory Stats: HeapAlloc=%.2f MB, GC=%d, Goroutines=%d", heapAllocMB, m.NumGC, numGoroutines)
	if numGoroutines > 200 {
		log.Printf("⚠️ WARNING: High number of goroutines detected: %d", numGoroutines)
	}
}
