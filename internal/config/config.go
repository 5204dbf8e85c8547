package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Бэкенды хранилища заказов и тикетов
const (
	StoreBackendPostgres = "postgres"
	StoreBackendMemory   = "memory"
)

type Config struct {
	DatabaseURL        string
	RedisURL           string
	RedisSentinelAddrs []string // Адреса Sentinel (через запятую)
	RedisMasterName    string   // Имя мастера в Sentinel
	KafkaBrokers       string
	KafkaUsername      string
	KafkaPassword      string
	KafkaCACert        string
	KafkaChangesTopic  string // Топик для событий изменения таблиц
	RabbitMQURL        string
	ServerPort         string
	Environment        string
	StoreBackend       string // postgres | memory

	// Пул PostgreSQL
	DBMaxOpenConns    int
	DBMaxIdleConns    int
	DBConnMaxLifetime time.Duration

	// Движок алертов кухни
	AlertHistorySize     int
	AlertNearDelayWindow time.Duration
	AlertBucket          time.Duration // Гранулярность дедупликации алертов
	AlertSoundMuted      bool
}

func Load() *Config {
	// Проверяем в порядке приоритета: DATABASE_URL, POSTGRES_URL, PGDATABASE_URL, PGHOST (сборка из частей)
	databaseURL := getEnv("DATABASE_URL", "")
	if databaseURL == "" {
		databaseURL = getEnv("POSTGRES_URL", "")
	}
	if databaseURL == "" {
		databaseURL = getEnv("PGDATABASE_URL", "")
	}
	if databaseURL == "" {
		pgHost := getEnv("PGHOST", "")
		pgPort := getEnv("PGPORT", "5432")
		pgUser := getEnv("PGUSER", "postgres")
		pgPassword := getEnv("PGPASSWORD", "")
		pgDatabase := getEnv("PGDATABASE", "restodash")

		if pgHost != "" {
			if pgPassword != "" {
				databaseURL = fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable",
					pgUser, pgPassword, pgHost, pgPort, pgDatabase)
			} else {
				databaseURL = fmt.Sprintf("postgres://%s@%s:%s/%s?sslmode=disable",
					pgUser, pgHost, pgPort, pgDatabase)
			}
		}
	}

	// Пустой REDIS_URL = работаем без Redis (локальная шина изменений)
	redisURL := getEnv("REDIS_URL", "")
	if redisURL == "" {
		redisHost := getEnv("REDISHOST", "")
		redisPort := getEnv("REDISPORT", "6379")
		redisPassword := getEnv("REDISPASSWORD", "")
		redisDB := getEnv("REDISDB", "0")

		if redisHost != "" {
			if redisPassword != "" {
				redisURL = fmt.Sprintf("redis://:%s@%s:%s/%s", redisPassword, redisHost, redisPort, redisDB)
			} else {
				redisURL = fmt.Sprintf("redis://%s:%s/%s", redisHost, redisPort, redisDB)
			}
		}
	}

	masterName := getEnv("REDIS_MASTER_NAME", "")
	if masterName == "" {
		masterName = "mymaster"
	}

	storeBackend := strings.ToLower(getEnv("STORE_BACKEND", StoreBackendPostgres))
	if storeBackend != StoreBackendMemory {
		storeBackend = StoreBackendPostgres
	}

	return &Config{
		DatabaseURL:          databaseURL,
		RedisURL:             redisURL,
		RedisSentinelAddrs:   splitList(getEnv("REDIS_SENTINEL_ADDRS", "")),
		RedisMasterName:      masterName,
		KafkaBrokers:         getEnv("KAFKA_BROKERS", ""),
		KafkaUsername:        getEnv("KAFKA_USERNAME", ""),
		KafkaPassword:        getEnv("KAFKA_PASSWORD", ""),
		KafkaCACert:          getEnv("KAFKA_CA_CERT", ""),
		KafkaChangesTopic:    getEnv("KAFKA_CHANGES_TOPIC", "restodash-store-changes"),
		RabbitMQURL:          getEnv("RABBITMQ_URL", ""),
		ServerPort:           getEnv("PORT", "8080"),
		Environment:          getEnv("ENV", "development"),
		StoreBackend:         storeBackend,
		DBMaxOpenConns:       getEnvInt("DB_MAX_OPEN_CONNS", 10),
		DBMaxIdleConns:       getEnvInt("DB_MAX_IDLE_CONNS", 5),
		DBConnMaxLifetime:    getEnvDuration("DB_CONN_MAX_LIFETIME", 30*time.Minute),
		AlertHistorySize:     getEnvInt("ALERT_HISTORY_SIZE", 20),
		AlertNearDelayWindow: getEnvDuration("ALERT_NEAR_DELAY", 5*time.Minute),
		AlertBucket:          getEnvDuration("ALERT_BUCKET", time.Minute),
		AlertSoundMuted:      getEnvBool("ALERT_SOUND_MUTED", false),
	}
}

// IsProduction нужен для переключения gin в release режим
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

func splitList(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

// getEnvDuration принимает "5m", "90s" или число секунд
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil && d > 0 {
		return d
	}
	if secs, err := strconv.Atoi(value); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	return defaultValue
}
