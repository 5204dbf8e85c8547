package utils

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisClient обертка над Redis клиентом для удобной работы
type RedisClient struct {
	client *redis.Client
}

// NewRedisClient создает новый Redis клиент
func NewRedisClient(client *redis.Client) *RedisClient {
	return &RedisClient{client: client}
}

// SetJSON сохраняет значение как JSON с TTL (0 = без TTL)
func (r *RedisClient) SetJSON(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return r.client.Set(ctx, key, data, ttl).Err()
}

// GetJSON получает и парсит JSON значение
func (r *RedisClient) GetJSON(ctx context.Context, key string, dest interface{}) error {
	data, err := r.client.Get(ctx, key).Bytes()
	if err != nil {
		return err
	}
	return json.Unmarshal(data, dest)
}

// Publish публикует сообщение в канал (Pub/Sub)
func (r *RedisClient) Publish(ctx context.Context, channel string, message string) error {
	return r.client.Publish(ctx, channel, message).Err()
}

// Subscribe подписывается на канал и возвращает канал сообщений.
// Подписка подтверждается до возврата, чтобы не потерять первые сообщения.
func (r *RedisClient) Subscribe(ctx context.Context, channel string) (<-chan *redis.Message, func() error, error) {
	pubsub := r.client.Subscribe(ctx, channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, nil, err
	}
	return pubsub.Channel(), pubsub.Close, nil
}

// PSubscribe подписывается на каналы по шаблону (store:changes:*)
func (r *RedisClient) PSubscribe(ctx context.Context, pattern string) (<-chan *redis.Message, func() error, error) {
	pubsub := r.client.PSubscribe(ctx, pattern)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, nil, err
	}
	return pubsub.Channel(), pubsub.Close, nil
}

// IsNil сообщает, что ключ отсутствует
func IsNil(err error) bool {
	return err == redis.Nil
}
