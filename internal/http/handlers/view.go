package handlers

import (
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/jmylchreest/camrelay/internal/stream"
)

// ViewHandler serves MJPEG fan-outs to viewers.
type ViewHandler struct {
	streams *stream.Manager
	logger  *slog.Logger
}

// NewViewHandler creates the viewer handler.
func NewViewHandler(streams *stream.Manager, logger *slog.Logger) *ViewHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &ViewHandler{streams: streams, logger: logger}
}

// RegisterRoutes mounts the stream route on the router. Like publish,
// this bypasses huma: the response is an open-ended multipart stream.
func (h *ViewHandler) RegisterRoutes(r chi.Router) {
	r.Get("/stream/{name}", h.Stream)
}

// Stream handles GET /stream/{name}, holding the connection open and
// delivering multipart JPEG chunks until the viewer disconnects or the
// stream is deleted.
func (h *ViewHandler) Stream(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	fanout, err := h.streams.OpenFanout(name)
	if err != nil {
		writeError(w, http.StatusNotFound, "stream not found")
		return
	}

	w.Header().Set("Content-Type", stream.ContentType)
	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
	w.Header().Set("Pragma", "no-cache")
	w.Header().Set("Connection", "close")
	w.WriteHeader(http.StatusOK)

	fw := &flushWriter{w: w, rc: http.NewResponseController(w)}
	if err := fanout.Serve(r.Context(), fw); err != nil {
		// Almost always the viewer going away mid-write.
		h.logger.Debug("viewer disconnected",
			slog.String("stream", name),
			slog.String("error", err.Error()))
	}
}

// flushWriter pushes each chunk to the client immediately. Buffered
// MJPEG is frozen MJPEG.
type flushWriter struct {
	w  io.Writer
	rc *http.ResponseController
}

func (fw *flushWriter) Write(p []byte) (int, error) {
	n, err := fw.w.Write(p)
	if err != nil {
		return n, err
	}
	if err := fw.rc.Flush(); err != nil && !errors.Is(err, http.ErrNotSupported) {
		return n, err
	}
	return n, nil
}
