package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"

	"github.com/redis/go-redis/v9"

	"restodash/server/internal/utils"
)

// RedisChannelPrefix - события публикуются в store:changes:<table>
const RedisChannelPrefix = "store:changes:"

// RedisFeed раздает изменения между экземплярами через Redis Pub/Sub
type RedisFeed struct {
	redis   *utils.RedisClient
	d       *dispatcher
	closeFn func() error
	cancel  context.CancelFunc
}

// NewRedisFeed подписывается на store:changes:* и запускает слушателя
func NewRedisFeed(ctx context.Context, rc *utils.RedisClient) (*RedisFeed, error) {
	ch, closeFn, err := rc.PSubscribe(ctx, RedisChannelPrefix+"*")
	if err != nil {
		return nil, fmt.Errorf("redis feed subscribe: %w", err)
	}
	ctx, cancel := context.WithCancel(ctx)
	f := &RedisFeed{redis: rc, d: newDispatcher(), closeFn: closeFn, cancel: cancel}
	go f.listen(ctx, ch)
	log.Printf("📡 Redis feed: слушаем %s*", RedisChannelPrefix)
	return f, nil
}

func (f *RedisFeed) listen(ctx context.Context, ch <-chan *redis.Message) {
	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				log.Println("⚠️ Redis feed: канал Pub/Sub закрыт")
				return
			}
			ev, err := decodeChangeEvent([]byte(msg.Payload))
			if err != nil {
				log.Printf("⚠️ Redis feed: битое событие в %s: %v", msg.Channel, err)
				continue
			}
			if ev.Table == "" {
				ev.Table = strings.TrimPrefix(msg.Channel, RedisChannelPrefix)
			}
			f.d.dispatch(ev)
		case <-ctx.Done():
			return
		}
	}
}

func (f *RedisFeed) Publish(ctx context.Context, ev ChangeEvent) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return f.redis.Publish(ctx, RedisChannelPrefix+ev.Table, string(payload))
}

func (f *RedisFeed) Subscribe(table string, fn func(ChangeEvent)) func() {
	return f.d.subscribe(table, fn)
}

func (f *RedisFeed) Close() error {
	f.cancel()
	f.d.closeAll()
	return f.closeFn()
}

func decodeChangeEvent(data []byte) (ChangeEvent, error) {
	var ev ChangeEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return ChangeEvent{}, err
	}
	return ev, nil
}
