package server

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"gocv.io/x/gocv"

	"github.com/ayusman/mudra/internal/capture"
)

// streamInterval paces the preview at about 15 FPS.
const streamInterval = 66 * time.Millisecond

// StreamHandler serves MJPEG frames from the frame source.
type StreamHandler struct {
	source capture.Source
	logger *slog.Logger
}

// NewStreamHandler creates a new StreamHandler with the given source.
func NewStreamHandler(source capture.Source, logger *slog.Logger) *StreamHandler {
	return &StreamHandler{source: source, logger: logger}
}

// ServeHTTP streams MJPEG frames to connected clients. Each part is a frame
// newer than the previous one.
func (h *StreamHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	w.Header().Set("Content-Type", "multipart/x-mixed-replace; boundary=frame")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ticker := time.NewTicker(streamInterval)
	defer ticker.Stop()

	var lastSeq uint64
	for {
		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
		}

		frame, err := h.source.Grab(lastSeq)
		if err != nil {
			if !errors.Is(err, capture.ErrNoFrame) && !errors.Is(err, capture.ErrCameraNotOpen) {
				h.logger.Debug("stream grab", "error", err)
			}
			continue
		}
		lastSeq = frame.Seq

		if frame.Mat == nil || frame.Mat.Empty() {
			frame.Close()
			continue
		}

		buf, err := gocv.IMEncode(gocv.JPEGFileExt, *frame.Mat)
		frame.Close()
		if err != nil {
			h.logger.Debug("stream encode", "error", err)
			continue
		}

		fmt.Fprintf(w, "--frame\r\n")
		fmt.Fprintf(w, "Content-Type: image/jpeg\r\n")
		fmt.Fprintf(w, "Content-Length: %d\r\n\r\n", buf.Len())
		_, werr := w.Write(buf.GetBytes())
		fmt.Fprintf(w, "\r\n")
		buf.Close()
		if werr != nil {
			return
		}

		if f, ok := w.(http.Flusher); ok {
			f.Flush()
		}
	}
}
