package queue

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"
)

// StatusPublisher - то, куда Notifier отправляет сообщения (Client или заглушка в тестах)
type StatusPublisher interface {
	PublishStatus(ctx context.Context, msg StatusMessage) error
}

// Notifier отвязывает публикацию от сервисов: Notify не блокирует,
// отправка идет из одной горутины с таймаутом на сообщение
type Notifier struct {
	pub     StatusPublisher
	queue   chan StatusMessage
	timeout time.Duration

	mu   sync.Mutex
	last map[string]string // entity:id -> последний отправленный статус (до терминального)
}

func NewNotifier(pub StatusPublisher, buffer int) *Notifier {
	if buffer <= 0 {
		buffer = 256
	}
	return &Notifier{
		pub:     pub,
		queue:   make(chan StatusMessage, buffer),
		timeout: 5 * time.Second,
		last:    make(map[string]string),
	}
}

// Notify ставит сообщение в очередь; при переполнении сообщение теряется
func (n *Notifier) Notify(msg StatusMessage) bool {
	select {
	case n.queue <- msg:
		return true
	default:
		log.Printf("⚠️ AMQP очередь уведомлений переполнена, %s #%d пропущен", msg.Entity, msg.ID)
		return false
	}
}

// NotifyTransition ставит сообщение, только если статус сущности изменился
// с прошлого вызова; OldStatus берется из запомненного
func (n *Notifier) NotifyTransition(entity string, id, orderID int64, status string, at time.Time) bool {
	key := fmt.Sprintf("%s:%d", entity, id)
	n.mu.Lock()
	prev, seen := n.last[key]
	if seen && prev == status {
		n.mu.Unlock()
		return false
	}
	if isTerminalStatus(status) {
		// после delivered/cancelled переходов больше не будет
		delete(n.last, key)
	} else {
		n.last[key] = status
	}
	n.mu.Unlock()
	return n.Notify(StatusMessage{
		Entity:    entity,
		ID:        id,
		OrderID:   orderID,
		OldStatus: prev,
		NewStatus: status,
		ChangedAt: at,
	})
}

func isTerminalStatus(status string) bool {
	return status == "delivered" || status == "cancelled"
}

func (n *Notifier) tracked() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.last)
}

// Run отправляет сообщения до отмены ctx
func (n *Notifier) Run(ctx context.Context) {
	for {
		select {
		case msg := <-n.queue:
			sendCtx, cancel := context.WithTimeout(ctx, n.timeout)
			if err := n.pub.PublishStatus(sendCtx, msg); err != nil {
				log.Printf("⚠️ AMQP публикация %s #%d (%s -> %s) не удалась: %v",
					msg.Entity, msg.ID, msg.OldStatus, msg.NewStatus, err)
			}
			cancel()
		case <-ctx.Done():
			return
		}
	}
}
