package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/incident-sync/internal/domain"
	"github.com/spec-kit/incident-sync/internal/events"
	"github.com/spec-kit/incident-sync/internal/incidents"
	"github.com/spec-kit/incident-sync/internal/observability"
	"github.com/spec-kit/incident-sync/internal/repository"
)

const (
	journalQueueSize    = 256
	journalWriteTimeout = 5 * time.Second
)

// JournalService records every inbound frame seen on the catch-all channel.
// Frames are queued and written by Run; when the queue is full the frame is
// dropped and counted.
type JournalService struct {
	repo       repository.FrameRepository
	dispatcher events.Dispatcher
	logger     *zap.Logger
	metrics    *observability.Metrics

	queue   chan domain.JournalEntry
	handler events.Handler
}

func NewJournalService(repo repository.FrameRepository, dispatcher events.Dispatcher, logger *zap.Logger, metrics *observability.Metrics) *JournalService {
	j := &JournalService{
		repo:       repo,
		dispatcher: dispatcher,
		logger:     observability.OrNop(logger).Named("journal"),
		metrics:    metrics,
		queue:      make(chan domain.JournalEntry, journalQueueSize),
	}
	j.handler = events.NewHandler(j.handle)
	return j
}

// RegisterHandlers subscribes to the catch-all channel.
func (j *JournalService) RegisterHandlers() {
	if j.dispatcher == nil {
		return
	}
	j.dispatcher.Subscribe(events.EventMessage, j.handler)
}

func (j *JournalService) handle(_ context.Context, event events.Event) error {
	entry := Entry(event)
	select {
	case j.queue <- entry:
	default:
		j.metrics.Inc(observability.JournalDropped)
		j.logger.Warn("journal queue full; frame dropped", zap.String("event_name", entry.EventName))
	}
	return nil
}

// Entry describes a catch-all event as a journal row.
func Entry(event events.Event) domain.JournalEntry {
	frame := event.Frame
	if len(frame) == 0 {
		frame = event.Payload
	}
	entry := domain.JournalEntry{
		EventName:  string(events.EventMessage),
		Payload:    append([]byte(nil), frame...),
		ReceivedAt: event.ReceivedAt,
	}
	if entry.ReceivedAt.IsZero() {
		entry.ReceivedAt = time.Now()
	}

	parsed, err := events.ParseFrame(frame, entry.ReceivedAt)
	if err != nil {
		return entry
	}
	entry.EventName = string(parsed.Type)
	if raw, err := incidents.ExtractIncident(parsed.Payload); err == nil {
		entry.IncidentUUID = incidents.Normalize(raw, entry.ReceivedAt).UUID
	}
	return entry
}

// Run writes queued frames until ctx is done.
func (j *JournalService) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case entry := <-j.queue:
			j.write(ctx, entry)
		}
	}
}

func (j *JournalService) write(ctx context.Context, entry domain.JournalEntry) {
	writeCtx, cancel := context.WithTimeout(ctx, journalWriteTimeout)
	defer cancel()
	if err := j.repo.Append(writeCtx, &entry); err != nil {
		j.logger.Error("failed to journal frame", zap.String("event_name", entry.EventName), zap.Error(err))
		return
	}
	j.metrics.Inc(observability.JournalWritten)
}
