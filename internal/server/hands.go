package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ayusman/mudra/internal/detector"
	"github.com/ayusman/mudra/internal/events"
)

// handsInterval caps the hand feed at ~15 messages per second per client.
const handsInterval = 66 * time.Millisecond

type handsMessage struct {
	FrameSeq  uint64          `json:"frame_seq"`
	Timestamp int64           `json:"timestamp"`
	Count     int             `json:"count"`
	Hands     []detector.Hand `json:"hands"`
}

// HandsSocket sends the filtered hands of the latest processed frame to
// WebSocket clients. Frames published while a client is being written to are
// skipped, so each message is the newest state rather than a history.
type HandsSocket struct {
	feed     *events.HandFeed
	interval time.Duration
	logger   *slog.Logger
}

// NewHandsSocket creates a new HandsSocket over the given feed.
func NewHandsSocket(feed *events.HandFeed, logger *slog.Logger) *HandsSocket {
	return &HandsSocket{feed: feed, interval: handsInterval, logger: logger}
}

// ServeHTTP handles WebSocket upgrade requests.
func (h *HandsSocket) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade", "error", err)
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	h.logger.Debug("hands subscriber connected", "remote", r.RemoteAddr)

	var version uint64
	for {
		frame, v, err := h.feed.Next(ctx, version)
		if err != nil {
			if errors.Is(err, events.ErrClosed) {
				msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "pipeline stopped")
				conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
			}
			h.logger.Debug("hands subscriber done", "remote", r.RemoteAddr)
			return
		}
		version = v

		hands := frame.Hands
		if hands == nil {
			hands = []detector.Hand{}
		}
		conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteJSON(handsMessage{
			FrameSeq:  frame.FrameSeq,
			Timestamp: frame.Timestamp.UnixMilli(),
			Count:     len(hands),
			Hands:     hands,
		}); err != nil {
			h.logger.Debug("hands subscriber write", "remote", r.RemoteAddr, "error", err)
			return
		}

		if h.interval > 0 {
			select {
			case <-ctx.Done():
				return
			case <-time.After(h.interval):
			}
		}
	}
}
