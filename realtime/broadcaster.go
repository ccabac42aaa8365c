package realtime

import (
	"sync"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"noticeboard/models"
)

// clientBuffer is how far a subscriber may fall behind before it is dropped
const clientBuffer = 256

type client struct {
	scope  models.Scope
	events chan models.ChangeEvent
}

// Broadcaster fans change events out to every subscription whose scope matches
type Broadcaster struct {
	sync.RWMutex
	clients map[string]*client
}

func NewBroadcaster() *Broadcaster {
	return &Broadcaster{
		clients: make(map[string]*client),
	}
}

// Broadcast never blocks. A subscriber with a full buffer is removed, which
// closes its channel so the session can report the subscription as failed
// instead of silently skipping events.
func (b *Broadcaster) Broadcast(evt models.ChangeEvent) {
	var overflowed []string

	b.RLock()
	for key, c := range b.clients {
		if !c.scope.Matches(evt) {
			continue
		}
		select {
		case c.events <- evt: // Non-blocking send
			eventsBroadcast.Inc()
		default:
			eventsDropped.Inc()
			overflowed = append(overflowed, key)
		}
	}
	b.RUnlock()

	for _, key := range overflowed {
		log.WithFields(log.Fields{"key": key}).Warn("Client channel full, dropping subscription")
		b.RemoveClient(key)
	}
}

// AddClient registers a subscription and returns its key and event channel
func (b *Broadcaster) AddClient(scope models.Scope) (string, <-chan models.ChangeEvent) {
	b.Lock()
	defer b.Unlock()

	key := uuid.New().String()
	c := &client{scope: scope, events: make(chan models.ChangeEvent, clientBuffer)}
	b.clients[key] = c
	activeSubscriptions.Inc()

	log.WithFields(log.Fields{
		"key":   key,
		"topic": scope.Topic(),
		"count": len(b.clients),
	}).Info("Adding client to broadcaster")
	return key, c.events
}

// RemoveClient closes the client's channel, unknown keys are ignored
func (b *Broadcaster) RemoveClient(key string) {
	b.Lock()
	defer b.Unlock()

	c, ok := b.clients[key]
	if !ok {
		return
	}
	close(c.events)
	delete(b.clients, key)
	activeSubscriptions.Dec()

	log.WithFields(log.Fields{
		"key":   key,
		"count": len(b.clients),
	}).Info("Removed client from broadcaster")
}

func (b *Broadcaster) Count() int {
	b.RLock()
	defer b.RUnlock()
	return len(b.clients)
}

func (b *Broadcaster) Shutdown() {
	log.Info("Shutting down broadcaster")
	b.Lock()
	defer b.Unlock()
	for key, c := range b.clients {
		close(c.events)
		delete(b.clients, key)
		activeSubscriptions.Dec()
	}
}
