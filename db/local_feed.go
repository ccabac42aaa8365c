package db

import (
	"sync"

	"noticeboard/models"
)

// localFeed fans committed SQLite changes out to in-process listeners
type localFeed struct {
	mu       sync.Mutex
	nextKey  int
	handlers map[int]func(models.ChangeEvent)
}

func newLocalFeed() *localFeed {
	return &localFeed{handlers: make(map[int]func(models.ChangeEvent))}
}

func (f *localFeed) subscribe(fn func(models.ChangeEvent)) func() {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := f.nextKey
	f.nextKey++
	f.handlers[key] = fn
	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		delete(f.handlers, key)
	}
}

// publish runs handlers under the lock so every listener sees commit order
func (f *localFeed) publish(evt models.ChangeEvent) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, fn := range f.handlers {
		fn(evt)
	}
}
