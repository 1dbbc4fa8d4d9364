package handlers

import (
	"context"

	"github.com/danielgtaylor/huma/v2"

	"github.com/jmylchreest/camrelay/internal/database"
)

// RecordingLister is the index surface the recordings endpoint needs.
type RecordingLister interface {
	List(streamName string) ([]database.Recording, error)
}

// RecordingsHandler exposes the recording index. It is only registered
// when recording is enabled.
type RecordingsHandler struct {
	repo RecordingLister
}

// NewRecordingsHandler creates the recordings handler.
func NewRecordingsHandler(repo RecordingLister) *RecordingsHandler {
	return &RecordingsHandler{repo: repo}
}

// ListRecordingsInput holds the optional stream filter.
type ListRecordingsInput struct {
	Stream string `query:"stream" doc:"Only return recordings for this stream" required:"false"`
}

// ListRecordingsOutput is the output for the recordings listing.
type ListRecordingsOutput struct {
	Body ListRecordingsResponse
}

// ListRecordingsResponse lists indexed recordings newest-first.
type ListRecordingsResponse struct {
	Count      int                  `json:"count"`
	Recordings []database.Recording `json:"recordings"`
}

// Register registers the recordings route with the API.
func (h *RecordingsHandler) Register(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "listRecordings",
		Method:      "GET",
		Path:        "/api/recordings",
		Summary:     "List recordings",
		Description: "Returns indexed recordings, newest first, optionally filtered by stream",
		Tags:        []string{"Recordings"},
	}, h.ListRecordings)
}

// ListRecordings returns the recording index contents.
func (h *RecordingsHandler) ListRecordings(ctx context.Context, input *ListRecordingsInput) (*ListRecordingsOutput, error) {
	recs, err := h.repo.List(input.Stream)
	if err != nil {
		return nil, huma.Error500InternalServerError("listing recordings")
	}
	if recs == nil {
		recs = []database.Recording{}
	}
	return &ListRecordingsOutput{
		Body: ListRecordingsResponse{
			Count:      len(recs),
			Recordings: recs,
		},
	}, nil
}
