package repo

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/lifetrack/slawatch/internal/lifecycle"
	"github.com/lifetrack/slawatch/internal/models"
)

// Request kinds, also used as metric labels.
const (
	KindTimer      = "timer"
	KindHistory    = "history"
	KindOccurrence = "occurrence"
)

// Default paths on the dispatch API. "{id}" is replaced with the occurrence id.
const (
	DefaultTimerPath      = "/api/ocorrencias/{id}/timer"
	DefaultHistoryPath    = "/api/historico-ocorrencias/ocorrencia/{id}"
	DefaultOccurrencePath = "/api/ocorrencias/{id}"
)

// Session headers sent with every request.
const (
	HeaderUserID    = "X-User-Id"
	HeaderRequestID = "X-Request-Id"
)

const maxErrorBody = 4 << 10

// DispatchOptions configures a DispatchClient.
type DispatchOptions struct {
	BaseURL        string
	TimerPath      string
	HistoryPath    string
	OccurrencePath string
	Timeout        time.Duration
	// Location interprets upstream timestamps that carry no offset.
	Location *time.Location
}

// DispatchClient reads occurrence timers, history and status from the dispatch API.
type DispatchClient struct {
	baseURL        string
	timerPath      string
	historyPath    string
	occurrencePath string
	loc            *time.Location
	httpClient     *http.Client
	tracer         trace.Tracer
}

// NewDispatchClient constructs a client targeting the configured dispatch API.
func NewDispatchClient(opts DispatchOptions) *DispatchClient {
	loc := opts.Location
	if loc == nil {
		loc = time.Local
	}
	return &DispatchClient{
		baseURL:        strings.TrimRight(opts.BaseURL, "/"),
		timerPath:      firstNonEmpty(opts.TimerPath, DefaultTimerPath),
		historyPath:    firstNonEmpty(opts.HistoryPath, DefaultHistoryPath),
		occurrencePath: firstNonEmpty(opts.OccurrencePath, DefaultOccurrencePath),
		loc:            loc,
		httpClient: &http.Client{
			Timeout: opts.Timeout,
		},
		tracer: otel.Tracer("slawatch.repo"),
	}
}

// FetchTimer reads the SLA timer snapshot of an occurrence.
func (c *DispatchClient) FetchTimer(ctx context.Context, session models.Session, occurrenceID string) (models.Snapshot, error) {
	if err := c.ready(); err != nil {
		return models.Snapshot{}, err
	}

	var payload timerPayload
	if err := c.getJSON(ctx, KindTimer, session, c.resolvePath(c.timerPath, occurrenceID), &payload); err != nil {
		return models.Snapshot{}, err
	}
	snap := payload.snapshot(c.loc)
	if snap.OccurrenceID == "" {
		snap.OccurrenceID = occurrenceID
	}
	snap.FetchedAt = time.Now()
	return snap, nil
}

// FetchHistory reads the audit history of an occurrence in the order produced.
func (c *DispatchClient) FetchHistory(ctx context.Context, session models.Session, occurrenceID string) ([]models.HistoryEvent, error) {
	if err := c.ready(); err != nil {
		return nil, err
	}

	var payload []historyPayload
	if err := c.getJSON(ctx, KindHistory, session, c.resolvePath(c.historyPath, occurrenceID), &payload); err != nil {
		return nil, err
	}
	events := make([]models.HistoryEvent, 0, len(payload))
	for _, p := range payload {
		event := p.event(c.loc)
		if event.OccurrenceID == "" {
			event.OccurrenceID = occurrenceID
		}
		events = append(events, event)
	}
	return events, nil
}

// FetchOccurrence reads the occurrence record to learn its current phase.
func (c *DispatchClient) FetchOccurrence(ctx context.Context, session models.Session, occurrenceID string) (models.Occurrence, error) {
	if err := c.ready(); err != nil {
		return models.Occurrence{}, err
	}

	var payload occurrencePayload
	if err := c.getJSON(ctx, KindOccurrence, session, c.resolvePath(c.occurrencePath, occurrenceID), &payload); err != nil {
		return models.Occurrence{}, err
	}
	phase, err := lifecycle.ParsePhase(upstreamStatus(payload.Status))
	if err != nil {
		return models.Occurrence{}, &FetchError{Kind: KindOccurrence, Err: err}
	}
	return models.Occurrence{
		ID:       firstNonEmpty(string(payload.ID), occurrenceID),
		Phase:    phase,
		Type:     payload.Type,
		Severity: payload.Severity,
	}, nil
}

func (c *DispatchClient) ready() error {
	if c == nil {
		return fmt.Errorf("dispatch client not initialised")
	}
	if c.baseURL == "" {
		return fmt.Errorf("dispatch base URL not configured")
	}
	return nil
}

func (c *DispatchClient) resolvePath(p, occurrenceID string) string {
	if c.baseURL == "" {
		return ""
	}
	p = strings.ReplaceAll(p, "{id}", occurrenceID)
	p = strings.ReplaceAll(p, "%s", occurrenceID)
	cleaned := "/" + strings.TrimLeft(p, "/")
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return c.baseURL + cleaned
	}
	u.Path = path.Join(u.Path, cleaned)
	return u.String()
}

func (c *DispatchClient) getJSON(ctx context.Context, kind string, session models.Session, endpoint string, out any) (err error) {
	ctx, span := c.tracer.Start(ctx, "dispatch."+kind,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("http.method", http.MethodGet),
			attribute.String("http.url", endpoint),
		))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	if endpoint == "" {
		return &FetchError{Kind: kind, Err: fmt.Errorf("empty endpoint")}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return &FetchError{Kind: kind, Err: err}
	}
	req.Header.Set("Accept", "application/json")
	if session.UserID != "" {
		req.Header.Set(HeaderUserID, session.UserID)
	}
	requestID := session.RequestID
	if requestID == "" {
		requestID = uuid.NewString()
	}
	req.Header.Set(HeaderRequestID, requestID)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return transportError(kind, err)
	}
	defer resp.Body.Close()
	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxErrorBody))
		return statusError(kind, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &FetchError{Kind: kind, Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
