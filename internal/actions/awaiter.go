package actions

import (
	"context"
	"sync"
	"time"

	json "github.com/goccy/go-json"

	"github.com/spec-kit/incident-sync/internal/domain"
	"github.com/spec-kit/incident-sync/internal/events"
	"github.com/spec-kit/incident-sync/internal/incidents"
	"github.com/spec-kit/incident-sync/pkg/util/errorutil"
)

// DefaultConfirmTimeout bounds how long a caller waits for a command's event.
const DefaultConfirmTimeout = 10 * time.Second

// ErrNoResponse is returned when no confirming event arrives in time. The
// protocol carries no correlation id, so a dropped command is only visible this way.
var ErrNoResponse = errorutil.NewNoResponse(nil)

// Match selects the incident a pending command is waiting for.
type Match func(domain.RawIncident) bool

// ByUUID matches incidents with uuid under any field spelling.
func ByUUID(uuid string) Match {
	return func(raw domain.RawIncident) bool {
		return incidents.Normalize(raw, time.Time{}).UUID == uuid
	}
}

// ByTitle matches incidents by exact title, for publish where no UUID exists yet.
func ByTitle(title string) Match {
	return func(raw domain.RawIncident) bool {
		return incidents.Normalize(raw, time.Time{}).Title == title
	}
}

// MatchFor builds the Match for a command body: by title for publish, by UUID otherwise.
func MatchFor(command events.EventType, body []byte) (Match, error) {
	var target struct {
		UUID  string `json:"uuid"`
		Title string `json:"Title"`
	}
	if err := json.Unmarshal(body, &target); err != nil {
		return nil, errorutil.NewValidationError("invalid request body", map[string]any{"error": err.Error()})
	}
	if command == CommandPublish {
		return ByTitle(target.Title), nil
	}
	return ByUUID(target.UUID), nil
}

// Awaiter waits for inbound events that confirm a sent command.
type Awaiter struct {
	bus     events.Dispatcher
	timeout time.Duration
}

func NewAwaiter(bus events.Dispatcher, timeout time.Duration) *Awaiter {
	if timeout <= 0 {
		timeout = DefaultConfirmTimeout
	}
	return &Awaiter{bus: bus, timeout: timeout}
}

// Pending is one registered expectation. Its subscriptions are released by
// Wait or Cancel, whichever comes first.
type Pending struct {
	bus     events.Dispatcher
	names   []events.EventType
	handler events.Handler
	timeout time.Duration
	result  chan events.Event
	once    sync.Once
}

// Expect subscribes before the command is sent so the confirmation cannot be missed.
func (a *Awaiter) Expect(match Match, names ...events.EventType) *Pending {
	p := &Pending{
		bus:     a.bus,
		names:   names,
		timeout: a.timeout,
		result:  make(chan events.Event, 1),
	}
	p.handler = events.NewHandler(func(_ context.Context, evt events.Event) error {
		raw, err := incidents.ExtractIncident(evt.Payload)
		if err != nil || !match(raw) {
			return nil
		}
		select {
		case p.result <- evt:
		default:
		}
		return nil
	})
	for _, name := range names {
		a.bus.Subscribe(name, p.handler)
	}
	return p
}

// Wait blocks until a matching event, the timeout or ctx cancellation.
func (p *Pending) Wait(ctx context.Context) (events.Event, error) {
	defer p.Cancel()

	timer := time.NewTimer(p.timeout)
	defer timer.Stop()

	select {
	case evt := <-p.result:
		return evt, nil
	case <-timer.C:
		return events.Event{}, errorutil.NewNoResponse(map[string]any{
			"timeout": p.timeout.String(),
			"events":  p.names,
		})
	case <-ctx.Done():
		return events.Event{}, ctx.Err()
	}
}

// Cancel drops the subscriptions. It is safe to call more than once.
func (p *Pending) Cancel() {
	p.once.Do(func() {
		for _, name := range p.names {
			p.bus.Unsubscribe(name, p.handler)
		}
	})
}

// Do registers the expectation, runs send and waits for confirmation.
func (a *Awaiter) Do(ctx context.Context, command events.EventType, match Match, send func() error) (events.Event, error) {
	pending := a.Expect(match, ConfirmationEvents[command]...)
	if err := send(); err != nil {
		pending.Cancel()
		return events.Event{}, err
	}
	return pending.Wait(ctx)
}
