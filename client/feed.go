package client

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"

	"noticeboard/board"
	"noticeboard/models"
	"noticeboard/realtime"
)

const (
	wsWriteTimeout = 10 * time.Second
	wsReadTimeout  = 90 * time.Second
	eventBuffer    = 256
	statusBuffer   = 16
)

// Feed opens change subscriptions against the realtime server
type Feed struct {
	endpoint string
	apikey   string
	dialer   *websocket.Dialer

	newBackOff func() backoff.BackOff
}

func NewFeed(endpoint, apikey string) *Feed {
	return &Feed{
		endpoint: strings.TrimRight(endpoint, "/"),
		apikey:   apikey,
		dialer: &websocket.Dialer{
			HandshakeTimeout: 45 * time.Second,
			NetDialContext: (&net.Dialer{
				Timeout:   45 * time.Second,
				KeepAlive: 45 * time.Second,
			}).DialContext,
		},
		newBackOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 100 * time.Millisecond
			b.MaxInterval = 30 * time.Second
			b.Multiplier = 1.5
			b.MaxElapsedTime = 0 // Never stop retrying
			return b
		},
	}
}

func (f *Feed) socketURL() (string, error) {
	u, err := url.Parse(f.endpoint + realtime.WebsocketPath)
	if err != nil {
		return "", fmt.Errorf("failed to parse URL: %w", err)
	}
	switch u.Scheme {
	case "ws", "wss":
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported realtime scheme %q", u.Scheme)
	}
	if f.apikey != "" {
		q := u.Query()
		q.Set("apikey", f.apikey)
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

// Subscribe starts a subscription that reconnects until closed or ctx is done
func (f *Feed) Subscribe(ctx context.Context, scope models.Scope) (board.Subscription, error) {
	u, err := f.socketURL()
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(ctx)
	sub := &subscription{
		scope:  scope,
		events: make(chan models.ChangeEvent, eventBuffer),
		status: make(chan models.SubscriptionStatus, statusBuffer),
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go sub.run(ctx, f, u)
	return sub, nil
}

type subscription struct {
	scope  models.Scope
	events chan models.ChangeEvent
	status chan models.SubscriptionStatus

	cancel    context.CancelFunc
	closeOnce sync.Once
	done      chan struct{}
}

func (s *subscription) Events() <-chan models.ChangeEvent       { return s.events }
func (s *subscription) Status() <-chan models.SubscriptionStatus { return s.status }

func (s *subscription) Close() error {
	s.closeOnce.Do(func() {
		s.cancel()
		<-s.done
	})
	return nil
}

func (s *subscription) run(ctx context.Context, f *Feed, u string) {
	defer close(s.done)
	defer close(s.status)
	defer close(s.events)

	topic := s.scope.Topic()
	b := f.newBackOff()
	for {
		err := s.connect(ctx, f, u, b)
		if ctx.Err() != nil {
			return
		}

		s.report(ctx, models.StatusChannelError)
		wait := b.NextBackOff()
		log.WithFields(log.Fields{
			"topic": topic,
			"error": err,
			"retry": wait,
		}).Warn("Realtime subscription lost, reconnecting")

		select {
		case <-ctx.Done():
			return
		case <-time.After(wait):
		}
	}
}

// connect runs one websocket connection until it fails or ctx is done
func (s *subscription) connect(ctx context.Context, f *Feed, u string, b backoff.BackOff) error {
	feedConnectionAttempts.Inc()
	conn, resp, err := f.dialer.DialContext(ctx, u, nil)
	if err != nil {
		feedConnectionErrors.Inc()
		if resp != nil {
			return fmt.Errorf("dial: %w (status %d)", err, resp.StatusCode)
		}
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close()

	feedCurrentConnections.Inc()
	connStart := time.Now()
	defer func() {
		feedConnectionDuration.Observe(time.Since(connStart).Seconds())
		feedCurrentConnections.Dec()
	}()

	// Unblock the read loop once the subscription is closed
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-stop:
		}
	}()

	conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
	conn.SetPingHandler(func(appData string) error {
		conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
		return conn.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(wsWriteTimeout))
	})

	conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	if err := conn.WriteJSON(realtime.SubscribeMessage(s.scope)); err != nil {
		feedConnectionErrors.Inc()
		return fmt.Errorf("subscribe: %w", err)
	}

	for {
		var msg realtime.Message
		if err := conn.ReadJSON(&msg); err != nil {
			if ctx.Err() == nil {
				feedConnectionErrors.Inc()
			}
			return err
		}
		conn.SetReadDeadline(time.Now().Add(wsReadTimeout))

		switch msg.Type {
		case realtime.MessageStatus:
			if msg.Status == models.StatusSubscribed {
				b.Reset()
				log.WithFields(log.Fields{"topic": msg.Topic}).Info("Realtime subscription active")
				s.report(ctx, models.StatusSubscribed)
				continue
			}
			// The server gave up on this subscription, start over
			return fmt.Errorf("subscription %s: %s %s", msg.Topic, msg.Status, msg.Message)
		case realtime.MessageChange:
			if msg.Change == nil {
				continue
			}
			feedEventsReceived.WithLabelValues(string(msg.Change.Type)).Inc()
			select {
			case s.events <- *msg.Change:
			case <-ctx.Done():
				return ctx.Err()
			}
		default:
			log.WithFields(log.Fields{"type": msg.Type}).Debug("Ignoring realtime message")
		}
	}
}

func (s *subscription) report(ctx context.Context, status models.SubscriptionStatus) {
	select {
	case s.status <- status:
	case <-ctx.Done():
	}
}

var _ board.ChangeFeed = (*Feed)(nil)
var _ board.DataService = (*Client)(nil)
