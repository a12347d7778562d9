package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/lifetrack/slawatch/internal/models"
	"github.com/lifetrack/slawatch/internal/repo"
	"github.com/lifetrack/slawatch/internal/utils"
	"github.com/lifetrack/slawatch/internal/watch"
)

type feedDispatch struct {
	occurrenceErr error
	history       atomic.Int32
}

func (f *feedDispatch) FetchTimer(ctx context.Context, session models.Session, occurrenceID string) (models.Snapshot, error) {
	return models.Snapshot{
		OccurrenceID:              occurrenceID,
		SLAMinutes:                models.Float(30),
		ElapsedSLAMinutes:         15,
		WasDispatched:             true,
		RemainingToArrivalMinutes: models.Float(9),
	}, nil
}

func (f *feedDispatch) FetchHistory(ctx context.Context, session models.Session, occurrenceID string) ([]models.HistoryEvent, error) {
	f.history.Add(1)
	return []models.HistoryEvent{{ID: "1", OccurrenceID: occurrenceID, Action: models.ActionOpened}}, nil
}

func (f *feedDispatch) FetchOccurrence(ctx context.Context, session models.Session, occurrenceID string) (models.Occurrence, error) {
	if f.occurrenceErr != nil {
		return models.Occurrence{}, f.occurrenceErr
	}
	return models.Occurrence{ID: occurrenceID, Phase: models.PhaseDispatched}, nil
}

func newFeedServer(t *testing.T, f *feedDispatch) *httptest.Server {
	t.Helper()
	logger := utils.DiscardLogger()
	registry := watch.NewRegistry(context.Background(), func(key watch.Key, viewer models.Session) *watch.Session {
		return watch.NewSession(watch.Sources{Timers: f, History: f, Occurrences: f}, watch.Options{
			OccurrenceID:    key.OccurrenceID,
			Session:         viewer,
			Live:            key.Live,
			TimerInterval:   20 * time.Millisecond,
			HistoryInterval: 20 * time.Millisecond,
			Logger:          logger,
		})
	})
	t.Cleanup(registry.Close)

	mux := http.NewServeMux()
	mux.Handle("GET /ws/occurrences/{id}", NewFeedHandler(registry, FeedOptions{DefaultLive: true, AckTimeout: time.Second}, logger))
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func wsURL(srv *httptest.Server, path string) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http") + path
}

func TestFeedStreamsEvents(t *testing.T) {
	srv := newFeedServer(t, &feedDispatch{})

	header := http.Header{}
	header.Set(repo.HeaderUserID, "dispatcher-1")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL(srv, "/ws/occurrences/42"), header)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	if err := conn.WriteJSON(map[string]interface{}{"type": "scroll", "offset": 120}); err != nil {
		t.Fatalf("write: %v", err)
	}

	seen := map[string]bool{}
	_ = conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	for !(seen["phase"] && seen["progress"] && seen["history"]) {
		_, data, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("read: %v (seen %v)", err, seen)
		}
		var msg map[string]interface{}
		if err := json.Unmarshal(data, &msg); err != nil {
			t.Fatalf("decode: %v", err)
		}
		kind, _ := msg["type"].(string)
		seen[kind] = true
		if msg["occurrenceId"] != "42" && kind != "scroll" {
			t.Fatalf("unexpected occurrence in %v", msg)
		}
		if kind == "progress" {
			progress := msg["progress"].(map[string]interface{})
			if progress["usedPercent"].(float64) != 50 {
				t.Fatalf("unexpected progress %v", progress)
			}
		}
	}
}

func TestFeedRejectsUnknownOccurrence(t *testing.T) {
	srv := newFeedServer(t, &feedDispatch{occurrenceErr: &repo.FetchError{Kind: repo.KindOccurrence, Status: http.StatusNotFound}})

	_, resp, err := websocket.DefaultDialer.Dial(wsURL(srv, "/ws/occurrences/404"), nil)
	if err == nil {
		t.Fatalf("expected handshake failure")
	}
	if resp == nil || resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %+v", resp)
	}
}

func TestFeedCheckOrigin(t *testing.T) {
	h := NewFeedHandler(nil, FeedOptions{AllowedOrigins: []string{"https://console.example"}}, utils.DiscardLogger())
	req := httptest.NewRequest(http.MethodGet, "/ws/occurrences/1", nil)
	req.Header.Set("Origin", "https://console.example")
	if !h.checkOrigin(req) {
		t.Fatalf("allowed origin rejected")
	}
	req.Header.Set("Origin", "https://evil.example")
	if h.checkOrigin(req) {
		t.Fatalf("foreign origin accepted")
	}
}

func readUntil(t *testing.T, conn *websocket.Conn, kind string) map[string]interface{} {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("read while waiting for %s: %v", kind, err)
		}
		var msg map[string]interface{}
		if err := json.Unmarshal(data, &msg); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if msg["type"] == kind {
			return msg
		}
	}
}

// The browser reports the shifted offset only after laying out the refreshed
// list, several frames after the message left the server.
func TestFeedRestoresScrollAfterRenderAck(t *testing.T) {
	srv := newFeedServer(t, &feedDispatch{})
	conn, _, err := websocket.DefaultDialer.Dial(wsURL(srv, "/ws/occurrences/42"), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	readUntil(t, conn, "history")
	time.Sleep(60 * time.Millisecond)

	if err := conn.WriteJSON(map[string]interface{}{"type": "rendered", "offset": 40}); err != nil {
		t.Fatalf("write: %v", err)
	}
	msg := readUntil(t, conn, "scroll")
	if msg["offset"].(float64) != 0 {
		t.Fatalf("expected a restore to the captured offset, got %v", msg)
	}
}

func TestFeedHonoursLiveQuery(t *testing.T) {
	f := &feedDispatch{}
	srv := newFeedServer(t, f)
	conn, _, err := websocket.DefaultDialer.Dial(wsURL(srv, "/ws/occurrences/42?live=false"), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	readUntil(t, conn, "history")
	time.Sleep(100 * time.Millisecond)
	if got := f.history.Load(); got != 1 {
		t.Fatalf("non-live view must fetch history once, got %d", got)
	}
}

func TestFeedRejectsBadLiveQuery(t *testing.T) {
	srv := newFeedServer(t, &feedDispatch{})
	_, resp, err := websocket.DefaultDialer.Dial(wsURL(srv, "/ws/occurrences/42?live=maybe"), nil)
	if err == nil {
		t.Fatalf("expected handshake failure")
	}
	if resp == nil || resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %+v", resp)
	}
}
