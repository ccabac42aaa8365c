package client

import (
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"noticeboard/models"
	"noticeboard/realtime"
)

// flakyRealtime drops the first connection right after subscribing and
// sends one change on the second
func flakyRealtime(conns *int) http.Handler {
	var mu sync.Mutex
	upgrader := websocket.Upgrader{}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		mu.Lock()
		*conns++
		n := *conns
		mu.Unlock()

		var sub realtime.Message
		if err := conn.ReadJSON(&sub); err != nil {
			return
		}
		conn.WriteJSON(realtime.Message{Type: realtime.MessageStatus, Topic: sub.Topic, Status: models.StatusSubscribed})
		if n == 1 {
			return
		}

		conn.WriteJSON(realtime.Message{
			Type:   realtime.MessageChange,
			Topic:  sub.Topic,
			Change: &models.ChangeEvent{Type: models.EventInsert, Post: models.Post{Id: 7}},
		})
		// Hold the socket until the client goes away
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})
}
