package ticket_api

import (
	"bufio"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ms-speakers/internal/logger"
	"ms-speakers/internal/models"
	"ms-speakers/internal/sse"
)

func newStreamServer(t *testing.T, emitter *sse.CheckinEmitter, scanner func(http.Handler) http.Handler) *httptest.Server {
	t.Helper()
	r := chi.NewRouter()
	NewStreamHandler(emitter, logger.NewNop()).RegisterRoutes(r, scanner)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

func TestHandleEventCheckins_StreamsScans(t *testing.T) {
	emitter := sse.NewCheckinEmitter()
	srv := newStreamServer(t, emitter, allow)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/events/"+eventID+"/checkins", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, strings.HasPrefix(resp.Header.Get("Content-Type"), "text/event-stream"))

	reader := bufio.NewReader(resp.Body)
	readEvent := func() string {
		var lines []string
		for {
			line, err := reader.ReadString('\n')
			require.NoError(t, err)
			line = strings.TrimRight(line, "\n")
			if line == "" {
				return strings.Join(lines, "\n")
			}
			lines = append(lines, line)
		}
	}

	assert.Contains(t, readEvent(), "event: connected")
	require.Eventually(t, func() bool { return emitter.ClientCount(eventID) == 1 }, time.Second, 10*time.Millisecond)

	emitter.EmitCheckin(models.Ticket{ID: "t-1", EventID: eventID, Scanned: true})
	got := readEvent()
	assert.Contains(t, got, "event: checkin")
	assert.Contains(t, got, `"id":"t-1"`)
}

func TestHandleEventCheckins_Rejects(t *testing.T) {
	emitter := sse.NewCheckinEmitter()

	resp, err := http.Get(newStreamServer(t, emitter, allow).URL + "/events/not-a-uuid/checkins")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	forbid := func(http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusForbidden) })
	}
	resp, err = http.Get(newStreamServer(t, emitter, forbid).URL + "/events/" + eventID + "/checkins")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Zero(t, emitter.ClientCount(eventID))
}
