package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/lifetrack/slawatch/internal/api"
	slawatchv1 "github.com/lifetrack/slawatch/internal/grpc/slawatchv1"
	"github.com/lifetrack/slawatch/internal/models"
	"github.com/lifetrack/slawatch/internal/progress"
	"github.com/lifetrack/slawatch/internal/repo"
	"github.com/lifetrack/slawatch/internal/scheduler"
	"github.com/lifetrack/slawatch/internal/utils"
	"github.com/lifetrack/slawatch/internal/watch"
)

// WatchService implements the gRPC SLAWatch service.
type WatchService struct {
	slawatchv1.UnimplementedSLAWatchServer

	logger        *slog.Logger
	timers        scheduler.TimerSource
	sessions      api.SessionSource
	defaultUserID string
	defaultLive   bool
	latencies     *utils.LatencyTracker
}

// NewWatchService constructs the service facade. defaultLive applies to
// streams that do not send MetadataHistoryLive.
func NewWatchService(logger *slog.Logger, timers scheduler.TimerSource, sessions api.SessionSource, defaultUserID string, defaultLive bool) *WatchService {
	if logger == nil {
		logger = slog.Default()
	}
	return &WatchService{
		logger:        logger,
		timers:        timers,
		sessions:      sessions,
		defaultUserID: defaultUserID,
		defaultLive:   defaultLive,
		latencies:     utils.NewLatencyTracker(1024),
	}
}

// GetProgress reads the timer once and returns the computed progress.
func (s *WatchService) GetProgress(ctx context.Context, req *wrapperspb.StringValue) (*structpb.Struct, error) {
	occurrenceID, err := api.FromProtoOccurrenceID(req)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	if s.timers == nil {
		return nil, status.Error(codes.FailedPrecondition, "timer source not configured")
	}

	start := time.Now()
	snap, err := s.timers.FetchTimer(ctx, s.viewer(ctx), occurrenceID)
	s.latencies.Observe(time.Since(start))
	if err != nil {
		s.logger.Warn("GetProgress fetch failed", slog.String("occurrence_id", occurrenceID), slog.Any("error", err))
		return nil, toStatus(err)
	}
	if snap.OccurrenceID == "" {
		snap.OccurrenceID = occurrenceID
	}
	if count := s.latencies.Count(); count >= 20 && count%20 == 0 {
		s.logger.Debug("GetProgress latency", slog.Duration("p95", s.latencies.Percentile(95)), slog.Int("samples", count))
	}

	resp, err := api.ToProtoProgress(progress.Calculate(snap))
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encode progress: %v", err)
	}
	return resp, nil
}

// WatchProgress streams progress updates until the unit is back at base, the
// occurrence is cancelled or the client leaves.
func (s *WatchService) WatchProgress(req *wrapperspb.StringValue, stream slawatchv1.SLAWatch_WatchProgressServer) error {
	return s.stream(req, stream, func(ev watch.Event) (bool, bool) {
		switch ev.Kind {
		case watch.EventTerminated:
			return true, true
		case watch.EventPhase:
			return true, ev.Phase == models.PhaseCancelled
		case watch.EventProgress:
			return true, false
		case watch.EventError:
			return ev.Source == watch.SourceTimer, false
		default:
			return false, false
		}
	})
}

// WatchHistory streams history refreshes until the client leaves.
func (s *WatchService) WatchHistory(req *wrapperspb.StringValue, stream slawatchv1.SLAWatch_WatchHistoryServer) error {
	return s.stream(req, stream, func(ev watch.Event) (bool, bool) {
		switch ev.Kind {
		case watch.EventHistory, watch.EventPhase:
			return true, false
		case watch.EventError:
			return ev.Source == watch.SourceHistory, false
		default:
			return false, false
		}
	})
}

type structSender interface {
	Context() context.Context
	Send(*structpb.Struct) error
}

// stream forwards session events; filter reports whether to send an event
// and whether the stream ends after it.
func (s *WatchService) stream(req *wrapperspb.StringValue, out structSender, filter func(watch.Event) (send, last bool)) error {
	occurrenceID, err := api.FromProtoOccurrenceID(req)
	if err != nil {
		return status.Error(codes.InvalidArgument, err.Error())
	}
	if s.sessions == nil {
		return status.Error(codes.FailedPrecondition, "sessions not configured")
	}

	ctx := out.Context()
	live, err := s.live(ctx)
	if err != nil {
		return status.Error(codes.InvalidArgument, err.Error())
	}
	viewer := s.viewer(ctx)
	session, release, err := s.sessions.Acquire(ctx, watch.Key{OccurrenceID: occurrenceID, ViewerID: viewer.UserID, Live: live}, viewer)
	if err != nil {
		s.logger.Warn("watch session unavailable", slog.String("occurrence_id", occurrenceID), slog.Any("error", err))
		return toStatus(err)
	}
	defer release()

	events, unsubscribe := session.Subscribe()
	defer unsubscribe()
	for {
		select {
		case <-ctx.Done():
			return status.FromContextError(ctx.Err()).Err()
		case ev, ok := <-events:
			if !ok {
				return status.Error(codes.Unavailable, "watch session closed")
			}
			send, last := filter(ev)
			if !send {
				continue
			}
			msg, err := api.ToProtoEvent(ev)
			if err != nil {
				return status.Errorf(codes.Internal, "encode event: %v", err)
			}
			if err := out.Send(msg); err != nil {
				return err
			}
			if last {
				return nil
			}
		}
	}
}

func (s *WatchService) viewer(ctx context.Context) models.Session {
	session := models.Session{UserID: s.defaultUserID}
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		if v := md.Get(slawatchv1.MetadataUserID); len(v) > 0 && v[0] != "" {
			session.UserID = v[0]
		}
		if v := md.Get(slawatchv1.MetadataRequestID); len(v) > 0 && v[0] != "" {
			session.RequestID = v[0]
		}
	}
	if session.RequestID == "" {
		session.RequestID = uuid.NewString()
	}
	return session
}

func (s *WatchService) live(ctx context.Context) (bool, error) {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return s.defaultLive, nil
	}
	v := md.Get(slawatchv1.MetadataHistoryLive)
	if len(v) == 0 || strings.TrimSpace(v[0]) == "" {
		return s.defaultLive, nil
	}
	live, err := strconv.ParseBool(strings.TrimSpace(v[0]))
	if err != nil {
		return false, fmt.Errorf("invalid %s value %q", slawatchv1.MetadataHistoryLive, v[0])
	}
	return live, nil
}

func toStatus(err error) error {
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return status.FromContextError(err).Err()
	case repo.IsNotFound(err):
		return status.Error(codes.NotFound, utils.DisplayMessage(err))
	case errors.Is(err, watch.ErrClosed):
		return status.Error(codes.Unavailable, err.Error())
	default:
		return status.Error(codes.Unavailable, utils.DisplayMessage(err))
	}
}
