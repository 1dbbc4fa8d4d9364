package handlers

import (
	"bufio"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmylchreest/camrelay/internal/stream"
)

func viewRouter(streams *stream.Manager) *chi.Mux {
	r := chi.NewRouter()
	NewViewHandler(streams, testLogger()).RegisterRoutes(r)
	return r
}

func TestStream_NotFound(t *testing.T) {
	streams := stream.NewManager(50, 30, testLogger())
	router := viewRouter(streams)

	req := httptest.NewRequest(http.MethodGet, "/stream/nope", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.JSONEq(t, `{"error":"stream not found"}`, rec.Body.String())
}

func TestStream_DeliversMultipartChunks(t *testing.T) {
	streams := stream.NewManager(50, 30, testLogger())
	_, err := streams.Create("cam1")
	require.NoError(t, err)
	require.NoError(t, streams.Publish("cam1", []byte("JPEG-BYTES")))

	srv := httptest.NewServer(viewRouter(streams))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/stream/cam1")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, stream.ContentType, resp.Header.Get("Content-Type"))
	assert.Contains(t, resp.Header.Get("Cache-Control"), "no-cache")

	reader := bufio.NewReader(resp.Body)
	line, err := reader.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "--frame\r\n", line)

	line, err = reader.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "Content-Type: image/jpeg\r\n", line)

	line, err = reader.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "\r\n", line)

	payload := make([]byte, len("JPEG-BYTES"))
	_, err = io.ReadFull(reader, payload)
	require.NoError(t, err)
	assert.Equal(t, "JPEG-BYTES", string(payload))

	// Ending the stream server-side terminates the response.
	streams.Delete("cam1")
	assert.Eventually(t, func() bool {
		_, err := reader.ReadByte()
		return err != nil
	}, 2*time.Second, 50*time.Millisecond)

	// Viewer accounting drains back to zero.
	assert.Eventually(t, func() bool {
		return streams.Count() == 0
	}, 2*time.Second, 50*time.Millisecond)
}

func TestStream_ViewerCountReleasedOnDisconnect(t *testing.T) {
	streams := stream.NewManager(50, 30, testLogger())
	_, err := streams.Create("cam1")
	require.NoError(t, err)
	require.NoError(t, streams.Publish("cam1", []byte("frame")))

	srv := httptest.NewServer(viewRouter(streams))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/stream/cam1")
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		stats, ok := streams.Stats("cam1")
		return ok && stats.ViewerCount == 1
	}, 2*time.Second, 20*time.Millisecond)

	resp.Body.Close()

	assert.Eventually(t, func() bool {
		stats, ok := streams.Stats("cam1")
		return ok && stats.ViewerCount == 0
	}, 2*time.Second, 20*time.Millisecond)
}
