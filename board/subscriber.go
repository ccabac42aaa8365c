package board

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	log "github.com/sirupsen/logrus"

	"noticeboard/models"
)

// Subscriber opens change feed subscriptions for views and keeps track of
// their connectivity state.
type Subscriber struct {
	feed  ChangeFeed
	notes *Notifications
}

func NewSubscriber(feed ChangeFeed, notes *Notifications) *Subscriber {
	return &Subscriber{feed: feed, notes: notes}
}

// EventFunc receives change events in the order the feed delivered them
type EventFunc func(evt models.ChangeEvent)

// StateFunc is called on every connectivity transition
type StateFunc func(prev, next models.ConnectivityState)

// Handle is an open subscription. Close it exactly once when the owning view
// goes away; extra calls are no-ops.
type Handle struct {
	scope   models.Scope
	sub     Subscription
	notes   *Notifications
	onEvent EventFunc
	onState StateFunc

	mu    sync.Mutex
	state models.ConnectivityState

	closed    atomic.Bool
	closeOnce sync.Once
	closeErr  error
	stop      chan struct{}
	done      chan struct{}
}

// Open subscribes to the scope and starts delivering its events. The handle
// starts in the connecting state.
func (s *Subscriber) Open(ctx context.Context, scope models.Scope, onEvent EventFunc, onState StateFunc) (*Handle, error) {
	logger := log.WithFields(log.Fields{
		"topic":  scope.Topic(),
		"filter": scope.Filter(),
	})
	logger.Info("Opening subscription")

	sub, err := s.feed.Subscribe(ctx, scope)
	if err != nil {
		subErr := &SubscriptionError{Topic: scope.Topic(), Status: models.StatusChannelError, Err: err}
		logger.WithError(err).Warn("Subscription failed to open")
		if onState != nil {
			onState(models.Connecting, models.Disconnected)
		}
		s.notes.Push(describe("Live updates unavailable", subErr), models.SeverityWarning)
		return nil, subErr
	}

	h := &Handle{
		scope:   scope,
		sub:     sub,
		notes:   s.notes,
		onEvent: onEvent,
		onState: onState,
		state:   models.Connecting,
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	go h.run()
	return h, nil
}

func (h *Handle) Scope() models.Scope {
	return h.scope
}

func (h *Handle) State() models.ConnectivityState {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

// Done is closed once the delivery goroutine has exited
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Close releases the subscription. No event is delivered after Close returns,
// except one that was already being handled when Close was called.
func (h *Handle) Close() error {
	h.closeOnce.Do(func() {
		h.closed.Store(true)
		close(h.stop)
		h.closeErr = h.sub.Close()
		log.WithFields(log.Fields{
			"topic": h.scope.Topic(),
		}).Info("Closed subscription")
	})
	return h.closeErr
}

func (h *Handle) run() {
	defer close(h.done)

	events := h.sub.Events()
	status := h.sub.Status()

	for events != nil || status != nil {
		select {
		case <-h.stop:
			return
		case evt, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			if h.closed.Load() || !h.scope.Matches(evt) {
				continue
			}
			log.WithFields(log.Fields{
				"topic": h.scope.Topic(),
				"type":  evt.Type,
				"id":    evt.Post.Id,
			}).Debug("Change event")
			if h.onEvent != nil {
				h.onEvent(evt)
			}
		case st, ok := <-status:
			if !ok {
				status = nil
				continue
			}
			if h.closed.Load() {
				continue
			}
			h.handleStatus(st)
		}
	}

	// Both channels closed without Close being called: the feed went away
	if !h.closed.Load() {
		h.handleStatus(models.StatusClosed)
	}
}

func (h *Handle) handleStatus(st models.SubscriptionStatus) {
	next := models.Disconnected
	if st == models.StatusSubscribed {
		next = models.Connected
	}

	h.mu.Lock()
	prev := h.state
	h.state = next
	h.mu.Unlock()

	if prev == next {
		return
	}

	logger := log.WithFields(log.Fields{
		"topic":  h.scope.Topic(),
		"status": st,
		"state":  next,
	})

	if next == models.Connected {
		logger.Info("Subscription established")
		h.notes.Push(fmt.Sprintf("Live updates connected (%s)", h.scope.Topic()), models.SeveritySuccess)
	} else {
		subErr := &SubscriptionError{Topic: h.scope.Topic(), Status: st}
		logger.Warn(subErr.Error())
		h.notes.Push("Live updates disconnected, showing the last loaded data", models.SeverityWarning)
	}

	if h.onState != nil {
		h.onState(prev, next)
	}
}
