package handlers

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/danielgtaylor/huma/v2"

	"github.com/jmylchreest/camrelay/internal/stream"
)

// StreamAPIHandler exposes the stream inventory over the JSON API.
type StreamAPIHandler struct {
	streams  *stream.Manager
	recorder RecordingController
	logger   *slog.Logger
}

// NewStreamAPIHandler creates the handler. recorder may be nil when
// recording is disabled.
func NewStreamAPIHandler(streams *stream.Manager, recorder RecordingController, logger *slog.Logger) *StreamAPIHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &StreamAPIHandler{streams: streams, recorder: recorder, logger: logger}
}

// ListStreamsOutput is the output for the stream listing endpoint.
type ListStreamsOutput struct {
	Body ListStreamsResponse
}

// ListStreamsResponse describes all live streams.
type ListStreamsResponse struct {
	Count   int            `json:"count" doc:"Number of live streams"`
	Streams []stream.Stats `json:"streams" doc:"Per-stream statistics"`
}

// StreamStatsInput identifies one stream.
type StreamStatsInput struct {
	Name string `path:"name" doc:"Stream name"`
}

// StreamStatsOutput is the output for the per-stream stats endpoint.
type StreamStatsOutput struct {
	Body stream.Stats
}

// DeleteStreamInput identifies the stream to delete.
type DeleteStreamInput struct {
	Name string `path:"name" doc:"Stream name"`
}

// DeleteStreamOutput confirms a deletion.
type DeleteStreamOutput struct {
	Body DeleteStreamResponse
}

// DeleteStreamResponse is the deletion confirmation body.
type DeleteStreamResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// Register registers the stream API routes.
func (h *StreamAPIHandler) Register(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "listStreams",
		Method:      "GET",
		Path:        "/api/streams",
		Summary:     "List streams",
		Description: "Returns statistics for every live stream",
		Tags:        []string{"Streams"},
	}, h.ListStreams)

	huma.Register(api, huma.Operation{
		OperationID: "getStreamStats",
		Method:      "GET",
		Path:        "/api/streams/{name}/stats",
		Summary:     "Stream statistics",
		Tags:        []string{"Streams"},
	}, h.GetStreamStats)

	huma.Register(api, huma.Operation{
		OperationID: "deleteStream",
		Method:      "DELETE",
		Path:        "/api/streams/{name}",
		Summary:     "Delete a stream",
		Description: "Stops any recording and removes the stream; viewers are disconnected",
		Tags:        []string{"Streams"},
	}, h.DeleteStream)
}

// ListStreams returns statistics for every live stream.
func (h *StreamAPIHandler) ListStreams(ctx context.Context, _ *struct{}) (*ListStreamsOutput, error) {
	stats := h.streams.AllStats()
	return &ListStreamsOutput{
		Body: ListStreamsResponse{
			Count:   len(stats),
			Streams: stats,
		},
	}, nil
}

// GetStreamStats returns statistics for one stream.
func (h *StreamAPIHandler) GetStreamStats(ctx context.Context, input *StreamStatsInput) (*StreamStatsOutput, error) {
	stats, ok := h.streams.Stats(input.Name)
	if !ok {
		return nil, huma.Error404NotFound("stream not found")
	}
	return &StreamStatsOutput{Body: stats}, nil
}

// DeleteStream stops recording and removes the stream. Fan-outs notice
// the stream is gone and terminate on their next tick.
func (h *StreamAPIHandler) DeleteStream(ctx context.Context, input *DeleteStreamInput) (*DeleteStreamOutput, error) {
	if !h.streams.Exists(input.Name) {
		return nil, huma.Error404NotFound("stream not found")
	}

	if h.recorder != nil {
		h.recorder.Stop(input.Name)
	}
	h.streams.Delete(input.Name)

	h.logger.Info("stream deleted via API", slog.String("stream", input.Name))
	return &DeleteStreamOutput{
		Body: DeleteStreamResponse{
			Status:  "success",
			Message: fmt.Sprintf("stream %q deleted", input.Name),
		},
	}, nil
}
