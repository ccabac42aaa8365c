package db

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jackc/pgx/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	log "github.com/sirupsen/logrus"

	"noticeboard/models"
)

// NotifyChannel is the channel the board_posts trigger notifies on
const NotifyChannel = "board_posts_changes"

var (
	listenConnectionAttempts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "noticeboard_listen_connection_attempts_total",
		Help: "The total number of attempts to open the LISTEN connection",
	})

	listenConnectionErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "noticeboard_listen_connection_errors_total",
		Help: "The total number of LISTEN connection failures",
	})

	listenNotifications = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "noticeboard_listen_notifications_total",
		Help: "Notifications received from PostgreSQL by change type",
	}, []string{"type"})
)

// notification is the payload written by board_posts_notify()
type notification struct {
	Type      models.EventType `json:"type"`
	Record    models.Post      `json:"record"`
	Truncated bool             `json:"truncated"`
}

// Listener follows board_posts changes over PostgreSQL LISTEN/NOTIFY
type Listener struct {
	dsn   string
	fetch func(ctx context.Context, id int64) (models.Post, error)
}

func NewListener(dsn string, fetch func(ctx context.Context, id int64) (models.Post, error)) *Listener {
	return &Listener{dsn: dsn, fetch: fetch}
}

// Listen reconnects with backoff until ctx is done
func (l *Listener) Listen(ctx context.Context, fn func(models.ChangeEvent)) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 100 * time.Millisecond
	b.MaxInterval = 30 * time.Second
	b.Multiplier = 1.5
	b.MaxElapsedTime = 0 // Never stop retrying

	for {
		err := l.listenOnce(ctx, fn, b)
		if ctx.Err() != nil {
			return ctx.Err()
		}

		wait := b.NextBackOff()
		log.WithFields(log.Fields{
			"error": err,
			"retry": wait,
		}).Warn("LISTEN connection lost, reconnecting")

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}

func (l *Listener) listenOnce(ctx context.Context, fn func(models.ChangeEvent), b backoff.BackOff) error {
	listenConnectionAttempts.Inc()

	conn, err := pgx.Connect(ctx, l.dsn)
	if err != nil {
		listenConnectionErrors.Inc()
		return fmt.Errorf("connect: %w", err)
	}
	defer conn.Close(context.Background())

	if _, err := conn.Exec(ctx, "LISTEN "+NotifyChannel); err != nil {
		listenConnectionErrors.Inc()
		return fmt.Errorf("listen: %w", err)
	}

	b.Reset()
	log.WithFields(log.Fields{"channel": NotifyChannel}).Info("Listening for board changes")

	for {
		n, err := conn.WaitForNotification(ctx)
		if err != nil {
			return err
		}

		evt, err := l.decode(ctx, []byte(n.Payload))
		if err != nil {
			log.WithFields(log.Fields{"error": err, "payload": n.Payload}).Warn("Skipping malformed notification")
			continue
		}
		listenNotifications.WithLabelValues(string(evt.Type)).Inc()
		fn(evt)
	}
}

func (l *Listener) decode(ctx context.Context, payload []byte) (models.ChangeEvent, error) {
	var n notification
	if err := json.Unmarshal(payload, &n); err != nil {
		return models.ChangeEvent{}, err
	}
	switch n.Type {
	case models.EventInsert, models.EventUpdate, models.EventDelete:
	default:
		return models.ChangeEvent{}, fmt.Errorf("unknown change type %q", n.Type)
	}
	if n.Record.Id <= 0 {
		return models.ChangeEvent{}, fmt.Errorf("notification without a post id")
	}

	// Oversized rows only carry their id
	if n.Truncated && n.Type != models.EventDelete {
		post, err := l.fetch(ctx, n.Record.Id)
		if err != nil {
			return models.ChangeEvent{}, fmt.Errorf("fetch post %d: %w", n.Record.Id, err)
		}
		n.Record = post
	}
	return models.ChangeEvent{Type: n.Type, Post: n.Record}, nil
}
