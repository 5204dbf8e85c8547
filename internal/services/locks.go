package services

import "sync"

// rowLocks сериализует записи в одну строку: следующая правка начинается
// только после того, как предыдущая записана или откатена
type rowLocks struct {
	mu    sync.Mutex
	locks map[int64]*rowLock
}

type rowLock struct {
	mu   sync.Mutex
	refs int
}

// lock блокирует строку id и возвращает функцию разблокировки
func (l *rowLocks) lock(id int64) func() {
	l.mu.Lock()
	if l.locks == nil {
		l.locks = make(map[int64]*rowLock)
	}
	rl, ok := l.locks[id]
	if !ok {
		rl = &rowLock{}
		l.locks[id] = rl
	}
	rl.refs++
	l.mu.Unlock()

	rl.mu.Lock()
	return func() {
		rl.mu.Unlock()
		l.mu.Lock()
		rl.refs--
		if rl.refs == 0 {
			delete(l.locks, id)
		}
		l.mu.Unlock()
	}
}

func (l *rowLocks) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
