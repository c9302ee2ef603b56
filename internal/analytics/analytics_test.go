package analytics

import (
	"compress/gzip"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type batchBody struct {
	APIKey string `json:"api_key"`
	Batch  []struct {
		Event      string         `json:"event"`
		DistinctID string         `json:"distinct_id"`
		Properties map[string]any `json:"properties"`
		Timestamp  time.Time      `json:"timestamp"`
	} `json:"batch"`
}

func TestPostHog_Capture(t *testing.T) {
	var (
		mu   sync.Mutex
		got  batchBody
		path string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body io.Reader = r.Body
		if r.Header.Get("Content-Encoding") == "gzip" {
			zr, err := gzip.NewReader(r.Body)
			require.NoError(t, err)
			body = zr
		}
		mu.Lock()
		defer mu.Unlock()
		path = r.URL.Path
		require.NoError(t, json.NewDecoder(body).Decode(&got))
		w.Write([]byte(`{"status":1}`))
	}))
	defer srv.Close()

	ph, err := NewPostHog(srv.URL+"/", "phc_test")
	require.NoError(t, err)

	ts := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	err = ph.Capture(context.Background(), Event{
		Name:       "question_answered",
		DistinctID: "203.0.113.7",
		Properties: map[string]any{"model": "gpt-4.1-nano"},
		Timestamp:  ts,
	})
	require.NoError(t, err)
	require.NoError(t, ph.Close())

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, "/batch/", path)
	assert.Equal(t, "phc_test", got.APIKey)
	require.Len(t, got.Batch, 1)
	assert.Equal(t, "question_answered", got.Batch[0].Event)
	assert.Equal(t, "203.0.113.7", got.Batch[0].DistinctID)
	assert.Equal(t, "gpt-4.1-nano", got.Batch[0].Properties["model"])
	assert.True(t, ts.Equal(got.Batch[0].Timestamp))
}

func TestPostHog_RejectsInvalidEvent(t *testing.T) {
	_, err := NewPostHog("", "")
	require.Error(t, err)

	ph, err := NewPostHog("http://127.0.0.1:1", "phc_test")
	require.NoError(t, err)
	defer ph.Close()
	require.Error(t, ph.Capture(context.Background(), Event{Name: "question_answered"}))
}

func TestStreamValues(t *testing.T) {
	v, err := streamValues(Event{
		Name:       "question_asked",
		DistinctID: "id",
		Properties: map[string]any{"length": 12},
		Timestamp:  time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	assert.Equal(t, "question_asked", v["event"])
	assert.Equal(t, `{"length":12}`, v["properties"])
	assert.Equal(t, "2026-01-01T00:00:00Z", v["timestamp"])
}

type recordingSink struct {
	mu     sync.Mutex
	events []Event
	err    error
	block  chan struct{}
	closed bool
}

func (s *recordingSink) Capture(_ context.Context, e Event) error {
	if s.block != nil {
		<-s.block
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
	return s.err
}

func (s *recordingSink) Close() error {
	s.closed = true
	return nil
}

func TestAsync_DeliversAndDrainsOnClose(t *testing.T) {
	sink := &recordingSink{err: errors.New("ignored")}
	a := NewAsync(sink, 8)

	for range 3 {
		require.NoError(t, a.Capture(context.Background(), Event{Name: "q"}))
	}
	require.NoError(t, a.Close())

	assert.Len(t, sink.events, 3)
	assert.True(t, sink.closed)
	assert.False(t, sink.events[0].Timestamp.IsZero())

	require.NoError(t, a.Capture(context.Background(), Event{Name: "late"}))
	require.NoError(t, a.Close())
}

func TestAsync_DropsWhenFull(t *testing.T) {
	sink := &recordingSink{block: make(chan struct{})}
	a := NewAsync(sink, 1)

	done := make(chan struct{})
	go func() {
		for range 10 {
			a.Capture(context.Background(), Event{Name: "q"})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Capture blocked on a full queue")
	}

	close(sink.block)
	require.NoError(t, a.Close())
	assert.Less(t, len(sink.events), 10)
}

func TestNop(t *testing.T) {
	var s Sink = Nop{}
	assert.NoError(t, s.Capture(context.Background(), Event{}))
	assert.NoError(t, s.Close())
}
