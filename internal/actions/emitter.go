package actions

import (
	"fmt"

	json "github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/spec-kit/incident-sync/internal/events"
	"github.com/spec-kit/incident-sync/internal/observability"
	"github.com/spec-kit/incident-sync/pkg/util/errorutil"
)

// ErrNotConnected is returned when a command is emitted without an open connection.
var ErrNotConnected = errorutil.NewNotConnected("realtime connection is not open")

// Sender is the transport side an Emitter writes to.
type Sender interface {
	IsConnected() bool
	Send(msg any) error
}

// Emitter sends one command per call. It only reports whether the command was
// written; the outcome arrives later as an inbound event.
type Emitter struct {
	sender  Sender
	logger  *zap.Logger
	metrics *observability.Metrics
}

func NewEmitter(sender Sender, logger *zap.Logger, metrics *observability.Metrics) *Emitter {
	return &Emitter{
		sender:  sender,
		logger:  observability.OrNop(logger).Named("actions"),
		metrics: metrics,
	}
}

func (e *Emitter) Publish(req PublishRequest) error {
	if err := req.Validate(); err != nil {
		return err
	}
	return e.emit(CommandPublish, "", publishMessage{Action: CommandPublish, PublishRequest: req})
}

func (e *Emitter) EditContent(req EditRequest) error {
	if err := req.Validate(); err != nil {
		return err
	}
	return e.emit(CommandEditContent, req.UUID, editMessage{Action: CommandEditContent, EditRequest: req})
}

func (e *Emitter) Choose(req ChooseRequest) error {
	if err := req.Validate(); err != nil {
		return err
	}
	return e.emit(CommandStaffChoose, req.UUID, chooseMessage{Action: CommandStaffChoose, ChooseRequest: req})
}

// Assign covers both coordinator operations, assign and comment.
func (e *Emitter) Assign(req AssignRequest) error {
	if err := req.Validate(); err != nil {
		return err
	}
	return e.emit(CommandCoordinatorAssign, req.UUID, assignMessage{Action: CommandCoordinatorAssign, AssignRequest: req})
}

func (e *Emitter) Solve(req SolveRequest) error {
	if err := req.Validate(); err != nil {
		return err
	}
	return e.emit(CommandSolved, req.UUID, solveMessage{Action: CommandSolved, SolveRequest: req})
}

func (e *Emitter) Manage(req ManageRequest) error {
	if err := req.Validate(); err != nil {
		return err
	}
	return e.emit(CommandAuthorityManage, req.UUID, manageMessage{Action: CommandAuthorityManage, ManageRequest: req})
}

// Execute decodes body as the request for command and emits it. It returns the
// incident UUID the command targets, empty for publish.
func (e *Emitter) Execute(command events.EventType, body []byte) (string, error) {
	decode := func(v any) error {
		if err := json.Unmarshal(body, v); err != nil {
			return errorutil.NewValidationError("invalid request body", map[string]any{"error": err.Error()})
		}
		return nil
	}

	switch command {
	case CommandPublish:
		var req PublishRequest
		if err := decode(&req); err != nil {
			return "", err
		}
		return "", e.Publish(req)
	case CommandEditContent:
		var req EditRequest
		if err := decode(&req); err != nil {
			return "", err
		}
		return req.UUID, e.EditContent(req)
	case CommandStaffChoose:
		var req ChooseRequest
		if err := decode(&req); err != nil {
			return "", err
		}
		return req.UUID, e.Choose(req)
	case CommandCoordinatorAssign:
		var req AssignRequest
		if err := decode(&req); err != nil {
			return "", err
		}
		return req.UUID, e.Assign(req)
	case CommandSolved:
		var req SolveRequest
		if err := decode(&req); err != nil {
			return "", err
		}
		return req.UUID, e.Solve(req)
	case CommandAuthorityManage:
		var req ManageRequest
		if err := decode(&req); err != nil {
			return "", err
		}
		return req.UUID, e.Manage(req)
	default:
		return "", errorutil.NewNotFound("command", map[string]any{"command": string(command)})
	}
}

func (e *Emitter) emit(command events.EventType, uuid string, msg any) error {
	if !e.sender.IsConnected() {
		e.logger.Warn("command rejected: not connected", zap.String("command", string(command)))
		return ErrNotConnected
	}
	if err := e.sender.Send(msg); err != nil {
		return fmt.Errorf("send %s: %w", command, err)
	}
	e.metrics.Inc(observability.CommandsSent)
	e.logger.Info("command sent", zap.String("command", string(command)), zap.String("uuid", uuid))
	return nil
}
