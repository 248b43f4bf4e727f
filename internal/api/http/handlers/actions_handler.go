package handlers

import (
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/incident-sync/internal/actions"
	"github.com/spec-kit/incident-sync/internal/api/dto"
	"github.com/spec-kit/incident-sync/internal/service"
	apperrors "github.com/spec-kit/incident-sync/pkg/util/errorutil"
)

// ActionsHandler forwards commands to the realtime connection.
type ActionsHandler struct {
	service *service.IncidentService
}

func NewActionsHandler(incidentService *service.IncidentService) *ActionsHandler {
	return &ActionsHandler{service: incidentService}
}

// Execute POST /actions/:command[?wait=true]. The body is the command request.
func (h *ActionsHandler) Execute(c *fiber.Ctx) error {
	command, ok := actions.ParseCommand(c.Params("command"))
	if !ok {
		return apperrors.NewNotFound("command", map[string]any{"command": c.Params("command")})
	}
	wait := false
	if v := c.Query("wait"); v != "" {
		parsed, err := strconv.ParseBool(v)
		if err != nil {
			return apperrors.NewValidationError("invalid query", map[string]any{"wait": v})
		}
		wait = parsed
	}

	inc, err := h.service.Execute(c.UserContext(), command, c.Body(), wait)
	if err != nil {
		return err
	}
	resp := dto.ActionResponse{Command: string(command), Status: dto.ActionSent}
	if wait {
		resp.Status = dto.ActionConfirmed
		resp.Incident = inc
		return c.JSON(resp)
	}
	return c.Status(fiber.StatusAccepted).JSON(resp)
}
