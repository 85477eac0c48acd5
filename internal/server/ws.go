package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ayusman/mudra/internal/events"
	"github.com/ayusman/mudra/internal/server/api"
)

const writeWait = 5 * time.Second

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow local connections
	},
}

// EventsSocket streams gesture events to WebSocket clients, one JSON message
// per event, in log order.
//
// With ?since=N the client first receives every event after N, then follows
// the log live. Without it only events appended after the connection are sent.
type EventsSocket struct {
	log    *events.Log
	logger *slog.Logger
}

// NewEventsSocket creates a new EventsSocket over the given log.
func NewEventsSocket(log *events.Log, logger *slog.Logger) *EventsSocket {
	return &EventsSocket{log: log, logger: logger}
}

// ServeHTTP handles WebSocket upgrade requests.
func (h *EventsSocket) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	since, err := api.ParseUint(r, "since", api.MaxSince)
	if err != nil {
		api.WriteError(w, http.StatusBadRequest, "Invalid since")
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade", "error", err)
		return
	}
	defer conn.Close()

	var sub *events.Subscription
	if r.URL.Query().Has("since") {
		sub = h.log.Subscribe(since)
	} else {
		sub = h.log.SubscribeNow()
	}
	defer sub.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// The read side only detects the client going away.
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	h.logger.Debug("event subscriber connected", "remote", r.RemoteAddr, "cursor", sub.Cursor())

	for {
		ev, err := sub.Next(ctx)
		if err != nil {
			if errors.Is(err, events.ErrClosed) {
				msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "event log closed")
				conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
			}
			h.logger.Debug("event subscriber done", "remote", r.RemoteAddr, "cursor", sub.Cursor())
			return
		}

		conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteJSON(ev); err != nil {
			h.logger.Debug("event subscriber write", "remote", r.RemoteAddr, "error", err)
			return
		}
	}
}
