// internal/journal/handler_test.go
package journal

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventFeed(t *testing.T) {
	ctx := context.Background()
	j := New()
	for i := 0; i < 4; i++ {
		require.NoError(t, j.Record(ctx, fmt.Sprintf("copy-%d", i%2), "copy", "TestEvent", TestEvent{Message: fmt.Sprint(i)}))
	}

	r := chi.NewRouter()
	NewHandler(j).Routes(r)
	srv := httptest.NewServer(r)
	defer srv.Close()

	get := func(path string) (*http.Response, []Event) {
		t.Helper()
		resp, err := http.Get(srv.URL + path)
		require.NoError(t, err)
		defer resp.Body.Close()
		var events []Event
		if resp.StatusCode == http.StatusOK {
			require.NoError(t, json.NewDecoder(resp.Body).Decode(&events))
		}
		return resp, events
	}

	resp, events := get("/events?from=1&limit=2")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, events, 2)
	assert.Equal(t, int64(2), events[0].ID)
	assert.Equal(t, int64(3), events[1].ID)

	var payload TestEvent
	require.NoError(t, events[0].Decode(&payload))
	assert.Equal(t, "1", payload.Message)

	_, events = get("/events?from=10")
	assert.Empty(t, events)

	_, events = get("/events/copy-1")
	require.Len(t, events, 2)
	assert.Equal(t, 2, events[1].Version)

	resp, _ = get("/events?limit=0")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = get("/events?from=abc")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
