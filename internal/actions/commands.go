// Package actions builds the outbound realtime commands and sends them over a
// connected transport.
package actions

import (
	"strings"

	"github.com/spec-kit/incident-sync/internal/domain"
	"github.com/spec-kit/incident-sync/internal/events"
	"github.com/spec-kit/incident-sync/pkg/util/errorutil"
)

// Command names accepted by the realtime backend.
const (
	CommandPublish           = events.EventPublishIncident
	CommandEditContent       = events.EventEditIncidentContent
	CommandStaffChoose       = events.EventStaffChooseIncident
	CommandCoordinatorAssign = events.EventCoordinatorAssign
	CommandSolved            = events.EventSolvedIncident
	CommandAuthorityManage   = events.EventAuthorityManage
)

// Commands lists every command name in the order the CLI documents them.
var Commands = []events.EventType{
	CommandPublish,
	CommandEditContent,
	CommandStaffChoose,
	CommandCoordinatorAssign,
	CommandSolved,
	CommandAuthorityManage,
}

var commandAliases = map[string]events.EventType{
	"publish": CommandPublish,
	"edit":    CommandEditContent,
	"choose":  CommandStaffChoose,
	"assign":  CommandCoordinatorAssign,
	"resolve": CommandSolved,
	"manage":  CommandAuthorityManage,
}

// ParseCommand accepts a wire command name or its short alias.
func ParseCommand(name string) (events.EventType, bool) {
	if c, ok := commandAliases[strings.ToLower(strings.TrimSpace(name))]; ok {
		return c, true
	}
	for _, c := range Commands {
		if string(c) == name {
			return c, true
		}
	}
	return "", false
}

// ConfirmationEvents are the inbound events that show a command took effect.
var ConfirmationEvents = map[events.EventType][]events.EventType{
	CommandPublish:           {events.EventPublishIncident, events.EventNewIncident},
	CommandEditContent:       {events.EventEditIncidentContent},
	CommandStaffChoose:       {events.EventStaffChooseIncident},
	CommandCoordinatorAssign: {events.EventCoordinatorAssign},
	CommandSolved:            {events.EventSolvedIncident},
	CommandAuthorityManage:   {events.EventAuthorityManage, events.EventIncidentDeleted},
}

// AssignOp selects what a coordinator command does.
type AssignOp string

const (
	AssignOpAssign  AssignOp = "assign"
	AssignOpComment AssignOp = "comment"
)

// ManageOp selects what an authority command does.
type ManageOp string

const (
	ManageOpClose    ManageOp = "close"
	ManageOpReassign ManageOp = "reassign"
	ManageOpDelete   ManageOp = "delete"
)

// PublishRequest creates an incident. The server assigns the UUID.
type PublishRequest struct {
	TenantID        string                  `json:"tenant_id"`
	Title           string                  `json:"Title"`
	Description     string                  `json:"Description"`
	Priority        domain.IncidentPriority `json:"Priority,omitempty"`
	ResponsibleArea []string                `json:"ResponsibleArea"`
	IsGlobal        bool                    `json:"IsGlobal"`
	LocationTower   string                  `json:"LocationTower,omitempty"`
	LocationFloor   string                  `json:"LocationFloor,omitempty"`
	LocationArea    string                  `json:"LocationArea,omitempty"`
	Reference       string                  `json:"Reference,omitempty"`
	Subtype         string                  `json:"Subtype,omitempty"`
}

func (r PublishRequest) Validate() error {
	details := map[string]any{}
	if strings.TrimSpace(r.TenantID) == "" {
		details["tenant_id"] = "required"
	}
	if strings.TrimSpace(r.Title) == "" {
		details["Title"] = "required"
	}
	if len(r.ResponsibleArea) == 0 {
		details["ResponsibleArea"] = "at least one area"
	}
	return invalid("invalid publish request", details)
}

// EditRequest adjusts the title, description or priority of an incident.
type EditRequest struct {
	TenantID    string                  `json:"tenant_id"`
	UUID        string                  `json:"uuid"`
	Title       string                  `json:"Title,omitempty"`
	Description string                  `json:"Description,omitempty"`
	Priority    domain.IncidentPriority `json:"Priority,omitempty"`
}

func (r EditRequest) Validate() error {
	details := keyDetails(r.TenantID, r.UUID)
	if r.Title == "" && r.Description == "" && r.Priority == "" {
		details["fields"] = "nothing to edit"
	}
	return invalid("invalid edit request", details)
}

// ChooseRequest lets personnel take an incident for themselves.
type ChooseRequest struct {
	TenantID string `json:"tenant_id"`
	UUID     string `json:"uuid"`
}

func (r ChooseRequest) Validate() error {
	return invalid("invalid choose request", keyDetails(r.TenantID, r.UUID))
}

// AssignRequest assigns personnel to an incident or comments on it.
type AssignRequest struct {
	TenantID   string                  `json:"tenant_id"`
	UUID       string                  `json:"uuid"`
	Operation  AssignOp                `json:"operation"`
	PersonalID string                  `json:"AssignedToPersonalId,omitempty"`
	Comment    string                  `json:"Comment,omitempty"`
	Priority   domain.IncidentPriority `json:"Priority,omitempty"`
}

func (r AssignRequest) Validate() error {
	details := keyDetails(r.TenantID, r.UUID)
	switch r.Operation {
	case AssignOpAssign:
		if strings.TrimSpace(r.PersonalID) == "" {
			details["AssignedToPersonalId"] = "required to assign"
		}
	case AssignOpComment:
		if strings.TrimSpace(r.Comment) == "" {
			details["Comment"] = "required to comment"
		}
	default:
		details["operation"] = "must be assign or comment"
	}
	return invalid("invalid assign request", details)
}

// SolveRequest marks an incident resolved.
type SolveRequest struct {
	TenantID string `json:"tenant_id"`
	UUID     string `json:"uuid"`
	Comment  string `json:"Comment,omitempty"`
}

func (r SolveRequest) Validate() error {
	return invalid("invalid solve request", keyDetails(r.TenantID, r.UUID))
}

// ManageRequest closes, flags for reassignment or deletes an incident.
type ManageRequest struct {
	TenantID  string   `json:"tenant_id"`
	UUID      string   `json:"uuid"`
	Operation ManageOp `json:"operation"`
	Reason    string   `json:"Comment,omitempty"`
}

func (r ManageRequest) Validate() error {
	details := keyDetails(r.TenantID, r.UUID)
	switch r.Operation {
	case ManageOpClose, ManageOpReassign, ManageOpDelete:
	default:
		details["operation"] = "must be close, reassign or delete"
	}
	return invalid("invalid manage request", details)
}

func keyDetails(tenantID, uuid string) map[string]any {
	details := map[string]any{}
	if strings.TrimSpace(tenantID) == "" {
		details["tenant_id"] = "required"
	}
	if strings.TrimSpace(uuid) == "" {
		details["uuid"] = "required"
	}
	return details
}

func invalid(message string, details map[string]any) error {
	if len(details) == 0 {
		return nil
	}
	return errorutil.NewValidationError(message, details)
}

// The wire envelopes put the command name next to the request fields.
type (
	publishMessage struct {
		Action events.EventType `json:"action"`
		PublishRequest
	}
	editMessage struct {
		Action events.EventType `json:"action"`
		EditRequest
	}
	chooseMessage struct {
		Action events.EventType `json:"action"`
		ChooseRequest
	}
	assignMessage struct {
		Action events.EventType `json:"action"`
		AssignRequest
	}
	solveMessage struct {
		Action events.EventType `json:"action"`
		SolveRequest
	}
	manageMessage struct {
		Action events.EventType `json:"action"`
		ManageRequest
	}
)
