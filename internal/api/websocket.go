package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/lifetrack/slawatch/internal/models"
	"github.com/lifetrack/slawatch/internal/repo"
	"github.com/lifetrack/slawatch/internal/viewguard"
	"github.com/lifetrack/slawatch/internal/watch"
)

const writeTimeout = 5 * time.Second

// SessionSource hands out shared watch sessions.
type SessionSource interface {
	Acquire(ctx context.Context, key watch.Key, viewer models.Session) (*watch.Session, func(), error)
}

// FeedOptions configure the websocket feed.
type FeedOptions struct {
	AllowedOrigins []string
	DefaultUserID  string
	// DefaultLive applies when the client does not pass ?live=.
	DefaultLive    bool
	Tolerance      float64
	AckTimeout     time.Duration
}

// FeedHandler streams watch events of one occurrence over a websocket:
// GET /ws/occurrences/{id}[?live=false]. Clients send
// {"type":"scroll","offset":N} as their list moves and
// {"type":"rendered","offset":N} once a history message has been laid out;
// the server answers with a scroll message when that render moved the list.
type FeedHandler struct {
	sessions SessionSource
	opts     FeedOptions
	upgrader websocket.Upgrader
	logger   *slog.Logger
}

// NewFeedHandler builds the websocket feed.
func NewFeedHandler(sessions SessionSource, opts FeedOptions, logger *slog.Logger) *FeedHandler {
	if logger == nil {
		logger = slog.Default()
	}
	h := &FeedHandler{sessions: sessions, opts: opts, logger: logger}
	h.upgrader = websocket.Upgrader{CheckOrigin: h.checkOrigin}
	return h
}

// ServeHTTP upgrades the request and streams events until the client leaves.
func (h *FeedHandler) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	occurrenceID := strings.TrimSpace(req.PathValue("id"))
	if occurrenceID == "" {
		http.Error(w, "occurrence id required", http.StatusBadRequest)
		return
	}
	live, err := parseLive(req.URL.Query().Get("live"), h.opts.DefaultLive)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	viewer := models.Session{
		UserID:    firstNonEmpty(req.Header.Get(repo.HeaderUserID), req.URL.Query().Get("user"), h.opts.DefaultUserID),
		RequestID: firstNonEmpty(req.Header.Get(repo.HeaderRequestID), uuid.NewString()),
	}

	session, release, err := h.sessions.Acquire(req.Context(), watch.Key{OccurrenceID: occurrenceID, ViewerID: viewer.UserID, Live: live}, viewer)
	if err != nil {
		status := http.StatusBadGateway
		if repo.IsNotFound(err) {
			status = http.StatusNotFound
		}
		h.logger.Warn("websocket session unavailable", slog.String("occurrence_id", occurrenceID), slog.Any("error", err))
		http.Error(w, "occurrence unavailable", status)
		return
	}
	defer release()

	conn, err := h.upgrader.Upgrade(w, req, nil)
	if err != nil {
		h.logger.Error("websocket upgrade failed", slog.Any("error", err))
		return
	}
	client := newFeedClient(conn, h.logger)
	defer client.Close()

	ctx, cancel := context.WithCancel(req.Context())
	defer cancel()

	view := viewguard.NewRemoteViewport(func(offset float64) {
		_ = client.SendJSON(map[string]interface{}{"type": "scroll", "offset": offset})
	}, h.opts.AckTimeout)
	guard := viewguard.New(view, view, h.opts.Tolerance)

	go h.readLoop(conn, view, cancel)

	events, unsubscribe := session.Subscribe()
	defer unsubscribe()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if err := h.deliver(client, guard, ev); err != nil {
				return
			}
		}
	}
}

func (h *FeedHandler) deliver(client *feedClient, guard *viewguard.Guard, ev watch.Event) error {
	payload := EventView(ev)
	if ev.Kind != watch.EventHistory {
		return client.SendJSON(payload)
	}
	var err error
	guard.Apply(func() { err = client.SendJSON(payload) })
	return err
}

func (h *FeedHandler) readLoop(conn *websocket.Conn, view *viewguard.RemoteViewport, cancel context.CancelFunc) {
	defer cancel()
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var msg struct {
			Type   string   `json:"type"`
			Offset *float64 `json:"offset"`
		}
		if err := json.Unmarshal(data, &msg); err != nil {
			continue
		}
		if msg.Offset == nil {
			continue
		}
		switch msg.Type {
		case "scroll":
			view.Report(*msg.Offset)
		case "rendered":
			view.Rendered(*msg.Offset)
		}
	}
}

func (h *FeedHandler) checkOrigin(req *http.Request) bool {
	if len(h.opts.AllowedOrigins) == 0 {
		return true
	}
	origin := req.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, allowed := range h.opts.AllowedOrigins {
		if allowed == "*" || strings.EqualFold(allowed, origin) {
			return true
		}
	}
	return false
}

// feedClient serialises writes to one websocket connection.
type feedClient struct {
	mu   sync.Mutex
	conn *websocket.Conn
	log  *slog.Logger
}

func newFeedClient(conn *websocket.Conn, logger *slog.Logger) *feedClient {
	return &feedClient{conn: conn, log: logger}
}

// SendJSON writes one text message.
func (c *feedClient) SendJSON(v interface{}) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		if !errors.Is(err, websocket.ErrCloseSent) {
			c.log.Warn("websocket send failed", slog.Any("error", err))
		}
		_ = c.conn.Close()
		return err
	}
	return nil
}

// Close terminates the connection.
func (c *feedClient) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	_ = c.conn.Close()
}

// parseLive reads the per-view live flag; an empty value keeps fallback.
func parseLive(value string, fallback bool) (bool, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return fallback, nil
	}
	live, err := strconv.ParseBool(value)
	if err != nil {
		return false, fmt.Errorf("invalid live flag %q", value)
	}
	return live, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
