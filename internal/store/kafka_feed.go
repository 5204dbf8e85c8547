package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
)

type KafkaFeedConfig struct {
	Brokers  []string
	Topic    string
	Username string
	Password string
	CACert   string
}

// KafkaFeed раздает изменения через топик Kafka.
// У каждого экземпляра своя consumer group, чтобы событие получили все.
type KafkaFeed struct {
	writer *kafka.Writer
	reader *kafka.Reader
	d      *dispatcher
	cancel context.CancelFunc
	done   chan struct{}
}

func NewKafkaFeed(ctx context.Context, cfg KafkaFeedConfig) (*KafkaFeed, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("kafka feed: no brokers")
	}
	if cfg.Topic == "" {
		return nil, errors.New("kafka feed: empty topic")
	}

	groupID := "restodash-changes-" + uuid.NewString()
	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{}, // ключ = таблица, порядок внутри таблицы сохраняется
		RequiredAcks: kafka.RequireOne,
		BatchTimeout: 10 * time.Millisecond,
		Transport:    createKafkaTransport(cfg.Username, cfg.Password, cfg.CACert),
	}
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     cfg.Brokers,
		Topic:       cfg.Topic,
		GroupID:     groupID,
		StartOffset: kafka.LastOffset,
		MinBytes:    1,
		MaxBytes:    10e6,
		MaxWait:     1 * time.Second,
		Dialer:      CreateKafkaDialer(cfg.Username, cfg.Password, cfg.CACert),
	})

	ctx, cancel := context.WithCancel(ctx)
	f := &KafkaFeed{
		writer: writer,
		reader: reader,
		d:      newDispatcher(),
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go f.consume(ctx)
	log.Printf("📡 Kafka feed запущен: topic=%s, groupID=%s", cfg.Topic, groupID)
	return f, nil
}

func (f *KafkaFeed) consume(ctx context.Context) {
	defer close(f.done)
	for {
		msg, err := f.reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				log.Println("🛑 Kafka feed остановлен")
				return
			}
			log.Printf("⚠️ Kafka feed ошибка чтения: %v", err)
			select {
			case <-time.After(time.Second):
			case <-ctx.Done():
				return
			}
			continue
		}
		ev, err := decodeChangeEvent(msg.Value)
		if err != nil {
			log.Printf("⚠️ Kafka feed: битое событие offset=%d: %v", msg.Offset, err)
			continue
		}
		if ev.Table == "" {
			ev.Table = string(msg.Key)
		}
		f.d.dispatch(ev)
	}
}

func (f *KafkaFeed) Publish(ctx context.Context, ev ChangeEvent) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	if err := f.writer.WriteMessages(ctx, kafka.Message{Key: []byte(ev.Table), Value: payload}); err != nil {
		return fmt.Errorf("kafka feed publish: %w", err)
	}
	return nil
}

func (f *KafkaFeed) Subscribe(table string, fn func(ChangeEvent)) func() {
	return f.d.subscribe(table, fn)
}

func (f *KafkaFeed) Close() error {
	f.cancel()
	<-f.done
	f.d.closeAll()
	return errors.Join(f.reader.Close(), f.writer.Close())
}
