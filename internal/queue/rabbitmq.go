// Package queue публикует смены статусов заказов и тикетов в RabbitMQ
// (fanout exchange, publisher confirms).
package queue

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

const NotificationsExchange = "notifications_fanout"

// StatusMessage - тело уведомления о смене статуса
type StatusMessage struct {
	Entity    string    `json:"entity"` // order | ticket
	ID        int64     `json:"id"`
	OrderID   int64     `json:"order_id"`
	OldStatus string    `json:"old_status"`
	NewStatus string    `json:"new_status"`
	ChangedAt time.Time `json:"changed_at"`
}

type Client struct {
	conn *amqp.Connection
	ch   *amqp.Channel

	acks <-chan amqp.Confirmation // для publisher confirms
	mu   sync.Mutex               // сериализуем Publish при использовании confirms
}

// Dial подключается по URL (amqp:// или amqps://), включает confirms
// и объявляет fanout exchange уведомлений
func Dial(url string) (*Client, error) {
	if url == "" {
		return nil, errors.New("RABBITMQ_URL is empty")
	}
	var (
		conn *amqp.Connection
		err  error
	)
	if strings.HasPrefix(url, "amqps://") {
		conn, err = amqp.DialTLS(url, &tls.Config{MinVersion: tls.VersionTLS12})
	} else {
		conn, err = amqp.Dial(url)
	}
	if err != nil {
		return nil, fmt.Errorf("rabbitmq dial: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	if err := ch.ExchangeDeclare(NotificationsExchange, "fanout", true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("declare %s: %w", NotificationsExchange, err)
	}
	if err := ch.Confirm(false); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, err
	}
	acks := ch.NotifyPublish(make(chan amqp.Confirmation, 8))

	return &Client{conn: conn, ch: ch, acks: acks}, nil
}

func (c *Client) Close() {
	if c.ch != nil {
		_ = c.ch.Close()
	}
	if c.conn != nil {
		_ = c.conn.Close()
	}
}

// PublishStatus публикует уведомление и ждет ack/nack именно для этой публикации
func (c *Client) PublishStatus(ctx context.Context, msg StatusMessage) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	tag := c.ch.GetNextPublishSeqNo()
	if err := c.ch.PublishWithContext(ctx, NotificationsExchange, "", false, false, amqp.Publishing{
		DeliveryMode: amqp.Persistent,
		ContentType:  "application/json",
		MessageId:    uuid.NewString(),
		Timestamp:    time.Now().UTC(),
		Type:         msg.Entity + ".status",
		Body:         body,
	}); err != nil {
		return err
	}
	return awaitConfirm(ctx, c.acks, tag)
}

// awaitConfirm ждет подтверждение с DeliveryTag == tag. Подтверждения прошлых
// публикаций, которые пришли после их таймаута, пропускаются.
func awaitConfirm(ctx context.Context, acks <-chan amqp.Confirmation, tag uint64) error {
	for {
		select {
		case conf, ok := <-acks:
			if !ok {
				return errors.New("confirm channel closed")
			}
			if conf.DeliveryTag < tag {
				continue
			}
			if conf.Ack {
				return nil
			}
			return fmt.Errorf("publish NACK from broker (tag %d)", conf.DeliveryTag)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
