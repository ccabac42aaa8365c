package realtime

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"

	"noticeboard/auth"
	"noticeboard/models"
)

const (
	wsReadBufferSize  = 4096
	wsWriteBufferSize = 4096
	wsReadLimit       = 64 * 1024
	wsWriteTimeout    = 10 * time.Second
	wsPingInterval    = 30 * time.Second
	wsReadTimeout     = 2 * wsPingInterval
	sessionBuffer     = 64
)

// Source delivers committed changes, the database store implements it
type Source interface {
	Listen(ctx context.Context, fn func(models.ChangeEvent)) error
}

// Pump feeds every change from src into the broadcaster until ctx is done
func Pump(ctx context.Context, src Source, bc *Broadcaster) error {
	log.Info("Starting change pump")
	return src.Listen(ctx, func(evt models.ChangeEvent) {
		log.WithFields(log.Fields{
			"type": evt.Type,
			"id":   evt.Post.Id,
		}).Debug("Broadcasting change")
		bc.Broadcast(evt)
	})
}

type Server struct {
	bc       *Broadcaster
	secret   []byte
	upgrader websocket.Upgrader
}

// NewServer serves the realtime websocket, an empty secret disables key checks
func NewServer(bc *Broadcaster, secret []byte) *Server {
	return &Server{
		bc:     bc,
		secret: secret,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  wsReadBufferSize,
			WriteBufferSize: wsWriteBufferSize,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// Handler routes the websocket path, for use with net/http servers
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle(WebsocketPath, s)
	return mux
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if len(s.secret) > 0 {
		key := r.URL.Query().Get("apikey")
		if key == "" {
			key = auth.KeyFromHeaders(r.Header.Get("apikey"), r.Header.Get("Authorization"))
		}
		if _, err := auth.Verify(key, s.secret); err != nil {
			rejectedConnections.WithLabelValues("unauthorized").Inc()
			http.Error(w, err.Error(), http.StatusUnauthorized)
			return
		}
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		rejectedConnections.WithLabelValues("upgrade").Inc()
		log.WithFields(log.Fields{"error": err}).Warn("Websocket upgrade failed")
		return
	}

	activeConnections.Inc()
	defer activeConnections.Dec()

	sess := newSession(conn, s.bc)
	log.WithFields(log.Fields{"remote": r.RemoteAddr}).Info("Realtime client connected")
	sess.run()
	log.WithFields(log.Fields{"remote": r.RemoteAddr}).Info("Realtime client disconnected")
}

// session is one websocket, it may hold several topic subscriptions
type session struct {
	conn *websocket.Conn
	bc   *Broadcaster
	out  chan Message

	done     chan struct{}
	doneOnce sync.Once

	mu   sync.Mutex
	subs map[string]string // topic -> broadcaster key
}

func newSession(conn *websocket.Conn, bc *Broadcaster) *session {
	return &session{
		conn: conn,
		bc:   bc,
		out:  make(chan Message, sessionBuffer),
		done: make(chan struct{}),
		subs: make(map[string]string),
	}
}

func (s *session) run() {
	go s.writeLoop()
	s.readLoop()

	s.stop()
	s.mu.Lock()
	keys := make([]string, 0, len(s.subs))
	for topic, key := range s.subs {
		keys = append(keys, key)
		delete(s.subs, topic)
	}
	s.mu.Unlock()
	for _, key := range keys {
		s.bc.RemoveClient(key)
	}
	s.conn.Close()
}

func (s *session) stop() {
	s.doneOnce.Do(func() { close(s.done) })
}

func (s *session) readLoop() {
	s.conn.SetReadLimit(wsReadLimit)
	s.conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
	})

	for {
		var msg Message
		if err := s.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.WithFields(log.Fields{"error": err}).Warn("Realtime read failed")
			}
			return
		}
		s.conn.SetReadDeadline(time.Now().Add(wsReadTimeout))

		switch msg.Type {
		case MessageSubscribe:
			s.subscribe(msg)
		case MessageUnsubscribe:
			s.unsubscribe(msg.Topic)
		default:
			s.send(Message{Type: MessageStatus, Topic: msg.Topic, Status: models.StatusChannelError, Message: "unknown message type " + msg.Type})
		}
	}
}

func (s *session) writeLoop() {
	ticker := time.NewTicker(wsPingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case msg := <-s.out:
			s.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := s.conn.WriteJSON(msg); err != nil {
				log.WithFields(log.Fields{"error": err}).Warn("Realtime write failed, closing socket")
				s.stop()
				s.conn.Close()
				return
			}
		case <-ticker.C:
			if err := s.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteTimeout)); err != nil {
				log.WithFields(log.Fields{"error": err}).Warn("Ping failed, closing socket")
				s.stop()
				s.conn.Close()
				return
			}
		}
	}
}

// send queues msg for the writer, it gives up once the session is over
func (s *session) send(msg Message) bool {
	select {
	case s.out <- msg:
		return true
	case <-s.done:
		return false
	}
}

func (s *session) subscribe(msg Message) {
	scope, err := msg.Scope()
	if err != nil {
		s.send(Message{Type: MessageStatus, Topic: msg.Topic, Status: models.StatusChannelError, Message: err.Error()})
		return
	}

	// Subscribing twice to a topic replaces the earlier subscription
	s.unsubscribe(msg.Topic)

	key, events := s.bc.AddClient(scope)
	s.mu.Lock()
	s.subs[msg.Topic] = key
	s.mu.Unlock()

	s.send(Message{Type: MessageStatus, Topic: msg.Topic, Status: models.StatusSubscribed})
	go s.forward(msg.Topic, key, events)
}

func (s *session) unsubscribe(topic string) {
	s.mu.Lock()
	key, ok := s.subs[topic]
	delete(s.subs, topic)
	s.mu.Unlock()

	if ok {
		s.bc.RemoveClient(key)
	}
}

func (s *session) forward(topic, key string, events <-chan models.ChangeEvent) {
	for evt := range events {
		evt := evt
		if !s.send(Message{Type: MessageChange, Topic: topic, Change: &evt}) {
			return
		}
	}

	// The channel was closed without an unsubscribe, the broadcaster dropped us
	s.mu.Lock()
	evicted := s.subs[topic] == key
	if evicted {
		delete(s.subs, topic)
	}
	s.mu.Unlock()

	if evicted {
		s.send(Message{Type: MessageStatus, Topic: topic, Status: models.StatusChannelError, Message: "subscription dropped, resubscribe to continue"})
	}
}
