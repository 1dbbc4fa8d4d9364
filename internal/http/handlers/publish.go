package handlers

import (
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/jmylchreest/camrelay/internal/stream"
)

// RecordingController is the recording surface the publish and stream
// lifecycle handlers need. A nil controller means recording is off.
type RecordingController interface {
	Start(streamName string)
	Stop(streamName string)
	AddFrame(streamName string, frame []byte)
}

// PublishHandler accepts JPEG frames from publishers.
type PublishHandler struct {
	streams      *stream.Manager
	recorder     RecordingController
	maxFrameSize int64
	logger       *slog.Logger
}

// NewPublishHandler creates the publish handler. recorder may be nil
// when recording is disabled.
func NewPublishHandler(streams *stream.Manager, recorder RecordingController, maxFrameSize int64, logger *slog.Logger) *PublishHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &PublishHandler{
		streams:      streams,
		recorder:     recorder,
		maxFrameSize: maxFrameSize,
		logger:       logger,
	}
}

// RegisterRoutes mounts the publish route on the router. This route
// bypasses huma: the body is a multipart upload, not a JSON document.
func (h *PublishHandler) RegisterRoutes(r chi.Router) {
	r.Post("/publish/{name}", h.Publish)
}

// Publish handles POST /publish/{name}. The frame arrives as the
// multipart field "frame". The stream is auto-created on first publish.
func (h *PublishHandler) Publish(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if !stream.ValidName(name) {
		writeError(w, http.StatusBadRequest, "invalid stream name")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxFrameSize)
	if err := r.ParseMultipartForm(h.maxFrameSize); err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			writeError(w, http.StatusBadRequest, "frame exceeds maximum size")
			return
		}
		writeError(w, http.StatusBadRequest, "invalid multipart body")
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, _, err := r.FormFile("frame")
	if err != nil {
		writeError(w, http.StatusBadRequest, "missing frame field")
		return
	}
	defer file.Close()

	frame, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, "reading frame")
		return
	}
	if len(frame) == 0 {
		writeError(w, http.StatusBadRequest, "empty frame")
		return
	}

	created, err := h.streams.Create(name)
	if err != nil {
		switch {
		case errors.Is(err, stream.ErrInvalidName):
			writeError(w, http.StatusBadRequest, "invalid stream name")
		case errors.Is(err, stream.ErrCapacityExceeded):
			writeError(w, http.StatusServiceUnavailable, "maximum number of streams reached")
		default:
			writeError(w, http.StatusInternalServerError, "creating stream")
		}
		return
	}
	if created && h.recorder != nil {
		h.recorder.Start(name)
	}

	if err := h.streams.Publish(name, frame); err != nil {
		// The stream can vanish between Create and Publish if the
		// sweep fires; treat it like any other transient race.
		writeError(w, http.StatusServiceUnavailable, "stream unavailable")
		return
	}
	if h.recorder != nil {
		h.recorder.AddFrame(name, frame)
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":     "success",
		"stream":     name,
		"frame_size": len(frame),
	})
}
