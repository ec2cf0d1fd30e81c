//go:build !tinygo

package ametal

import "sync"

var defaultLocker Locker = &mutexLocker{}

// mutexLocker emulates the global interrupt mask on hosted Go with a single
// mutex. It is not reentrant.
type mutexLocker struct {
	mu sync.Mutex
}

func (l *mutexLocker) Lock() State {
	l.mu.Lock()
	return 0
}

func (l *mutexLocker) Unlock(State) {
	l.mu.Unlock()
}
