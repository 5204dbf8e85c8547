package store

import (
	"context"
	"log"
	"sync"
)

const subscriberBuffer = 64

type subscriber struct {
	ch   chan ChangeEvent
	done chan struct{}
	once sync.Once
}

func (s *subscriber) stop() {
	s.once.Do(func() { close(s.done) })
}

// dispatcher раздает события подписчикам таблицы.
// У каждого подписчика своя горутина и буфер, при переполнении событие теряется:
// подписчик все равно перечитает таблицу по следующему событию.
type dispatcher struct {
	mu   sync.RWMutex
	subs map[string]map[int]*subscriber
	next int
}

func newDispatcher() *dispatcher {
	return &dispatcher{subs: make(map[string]map[int]*subscriber)}
}

func (d *dispatcher) subscribe(table string, fn func(ChangeEvent)) func() {
	s := &subscriber{ch: make(chan ChangeEvent, subscriberBuffer), done: make(chan struct{})}

	d.mu.Lock()
	id := d.next
	d.next++
	if d.subs[table] == nil {
		d.subs[table] = make(map[int]*subscriber)
	}
	d.subs[table][id] = s
	d.mu.Unlock()

	go func() {
		for {
			select {
			case ev := <-s.ch:
				fn(ev)
			case <-s.done:
				return
			}
		}
	}()

	return func() {
		d.mu.Lock()
		delete(d.subs[table], id)
		d.mu.Unlock()
		s.stop()
	}
}

func (d *dispatcher) dispatch(ev ChangeEvent) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	for _, s := range d.subs[ev.Table] {
		select {
		case s.ch <- ev:
		default:
			log.Printf("⚠️ store: очередь подписчика %s переполнена, событие %s пропущено", ev.Table, ev.ID)
		}
	}
}

func (d *dispatcher) closeAll() {
	d.mu.Lock()
	defer d.mu.Unlock()
	for table, subs := range d.subs {
		for _, s := range subs {
			s.stop()
		}
		delete(d.subs, table)
	}
}

// LocalFeed - шина изменений внутри одного процесса
type LocalFeed struct {
	d *dispatcher
}

func NewLocalFeed() *LocalFeed {
	return &LocalFeed{d: newDispatcher()}
}

func (f *LocalFeed) Publish(_ context.Context, ev ChangeEvent) error {
	f.d.dispatch(ev)
	return nil
}

func (f *LocalFeed) Subscribe(table string, fn func(ChangeEvent)) func() {
	return f.d.subscribe(table, fn)
}

func (f *LocalFeed) Close() error {
	f.d.closeAll()
	return nil
}
