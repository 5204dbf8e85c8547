package database

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
)

// ConnectRedis подключается к Redis.
// Если указаны sentinelAddrs и masterName, используется Sentinel,
// иначе прямое подключение через redisURL.
func ConnectRedis(redisURL string, sentinelAddrs []string, masterName string) (*redis.Client, error) {
	if len(sentinelAddrs) > 0 && masterName != "" {
		return connectRedisSentinel(sentinelAddrs, masterName)
	}
	if redisURL == "" {
		return nil, errors.New("REDIS_URL is empty")
	}

	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}
	opt.PoolSize = 50
	opt.MinIdleConns = 5
	opt.MaxRetries = 3

	client := redis.NewClient(opt)
	if err := ping(client, 5*time.Second); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	log.Println("✅ Redis connected successfully (direct connection)")
	return client, nil
}

func connectRedisSentinel(addrs []string, masterName string) (*redis.Client, error) {
	client := redis.NewFailoverClient(&redis.FailoverOptions{
		MasterName:    masterName,
		SentinelAddrs: addrs,
		PoolSize:      50,
		MinIdleConns:  5,
		MaxRetries:    3,
		DialTimeout:   5 * time.Second,
		ReadTimeout:   3 * time.Second,
		WriteTimeout:  3 * time.Second,
	})

	// Sentinel отвечает дольше, даём больше времени
	if err := ping(client, 10*time.Second); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis Sentinel: %w", err)
	}

	log.Printf("✅ Redis Sentinel connected successfully (master: %s, sentinels: %v)", masterName, addrs)
	return client, nil
}

func ping(client *redis.Client, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return client.Ping(ctx).Err()
}

// CloseRedis закрывает подключение к Redis
func CloseRedis(client *redis.Client) error {
	if client != nil {
		return client.Close()
	}
	return nil
}
