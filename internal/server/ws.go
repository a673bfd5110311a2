package server

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/websocket"

	"scheda/internal/character"
	"scheda/internal/docstore"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// changeMessage is one document change on the wire.
type changeMessage struct {
	Kind       string         `json:"kind"`
	Collection string         `json:"collection"`
	ID         string         `json:"id"`
	Data       map[string]any `json:"data,omitempty"`
}

func kindLabel(k docstore.EventKind) string {
	switch k {
	case docstore.EventCreate:
		return "create"
	case docstore.EventDelete:
		return "delete"
	default:
		return "update"
	}
}

// RegisterLiveRoutes adds the websocket endpoint streaming a sheet's
// committed changes. The UI uses it the way a store-native subscription
// would be used: an initial snapshot, then one message per write.
func RegisterLiveRoutes(mux *http.ServeMux, rr *RouteRegistry, app *App) {
	Handle(mux, rr, "GET /api/users/{id}/live", "Subscribe to sheet changes (websocket)", "", func(w http.ResponseWriter, r *http.Request) {
		userID := r.PathValue("id")

		snap, err := app.Store.Get(r.Context(), character.Collection, userID)
		if err != nil {
			http.Error(w, err.Error(), 500)
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			app.Logger.Printf("server: ws upgrade for %s: %v", userID, err)
			return
		}

		events, cancel := app.Store.Watch(character.Collection, userID)
		send := make(chan []byte, 16)

		// Read pump, only to detect the client going away.
		go func() {
			defer cancel()
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()

		// Fan events into the send channel until the watch is cancelled.
		go func() {
			defer close(send)
			if snap.Exists() {
				if b, err := json.Marshal(changeMessage{
					Kind:       "snapshot",
					Collection: character.Collection,
					ID:         userID,
					Data:       snap.Data(),
				}); err == nil {
					send <- b
				}
			}
			for ev := range events {
				msg := changeMessage{
					Kind:       kindLabel(ev.Kind),
					Collection: ev.Collection,
					ID:         ev.ID,
				}
				if ev.After != nil && ev.After.Exists() {
					msg.Data = ev.After.Data()
				}
				b, err := json.Marshal(msg)
				if err != nil {
					continue
				}
				send <- b
			}
		}()

		// Write pump. After a write failure it keeps draining so the
		// fan-in goroutine never blocks on a full channel.
		go func() {
			defer conn.Close()
			failed := false
			for b := range send {
				if failed {
					continue
				}
				if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
					cancel()
					failed = true
				}
			}
			if !failed {
				_ = conn.WriteMessage(websocket.CloseMessage, []byte{})
			}
		}()
	})
}
