package cli

import (
	"context"
	"fmt"

	json "github.com/goccy/go-json"
	"github.com/urfave/cli/v3"

	"github.com/spec-kit/incident-sync/internal/actions"
	"github.com/spec-kit/incident-sync/internal/events"
	"github.com/spec-kit/incident-sync/internal/incidents"
)

// target holds the flags every incident command takes.
type target struct {
	tenantID string
	uuid     string
	noWait   bool
}

func (t *target) flags(withUUID bool) []cli.Flag {
	flags := []cli.Flag{
		&cli.StringFlag{Name: "tenant", Usage: "Tenant identifier", Required: true, Destination: &t.tenantID},
		&cli.BoolFlag{Name: "no-wait", Usage: "Return once sent instead of waiting for the server event", Destination: &t.noWait},
	}
	if withUUID {
		flags = append(flags, &cli.StringFlag{Name: "uuid", Usage: "Incident UUID", Required: true, Destination: &t.uuid})
	}
	return flags
}

// send connects, emits req as command and prints the confirmed incident.
func (a *app) send(ctx context.Context, c *cli.Command, command events.EventType, req any, wait bool) error {
	body, err := json.Marshal(req)
	if err != nil {
		return err
	}
	client, err := a.rt.connect(ctx)
	if err != nil {
		return err
	}
	defer client.Disconnect()

	inc, err := a.rt.incidentService(nil, client).Execute(ctx, command, body, wait)
	if err != nil {
		return err
	}
	if inc == nil {
		_, err = fmt.Fprintf(c.Root().Writer, "%s sent\n", command)
		return err
	}
	return printJSON(c.Root().Writer, inc)
}

func (a *app) cmdPublish() *cli.Command {
	var (
		t        target
		req      actions.PublishRequest
		priority string
	)
	flags := append(t.flags(false),
		&cli.StringFlag{Name: "title", Required: true, Destination: &req.Title},
		&cli.StringFlag{Name: "description", Destination: &req.Description},
		&cli.StringFlag{Name: "priority", Usage: "BAJO, MEDIA, ALTA or CRÍTICO", Destination: &priority},
		&cli.StringSliceFlag{Name: "area", Usage: "Responsible area, repeatable", Required: true, Destination: &req.ResponsibleArea},
		&cli.BoolFlag{Name: "global", Usage: "Visible to the whole community", Destination: &req.IsGlobal},
		&cli.StringFlag{Name: "tower", Destination: &req.LocationTower},
		&cli.StringFlag{Name: "floor", Destination: &req.LocationFloor},
		&cli.StringFlag{Name: "location", Destination: &req.LocationArea},
		&cli.StringFlag{Name: "reference", Destination: &req.Reference},
		&cli.StringFlag{Name: "subtype", Destination: &req.Subtype},
	)

	return &cli.Command{
		Name:  "publish",
		Usage: "Report a new incident",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			req.TenantID = t.tenantID
			if priority != "" {
				req.Priority = incidents.NormalizePriority(priority)
			}
			return a.send(ctx, c, actions.CommandPublish, req, !t.noWait)
		},
	}
}

func (a *app) cmdEdit() *cli.Command {
	var (
		t        target
		req      actions.EditRequest
		priority string
	)
	flags := append(t.flags(true),
		&cli.StringFlag{Name: "title", Destination: &req.Title},
		&cli.StringFlag{Name: "description", Destination: &req.Description},
		&cli.StringFlag{Name: "priority", Destination: &priority},
	)

	return &cli.Command{
		Name:  "edit",
		Usage: "Change the title, description or priority of an incident",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			req.TenantID, req.UUID = t.tenantID, t.uuid
			if priority != "" {
				req.Priority = incidents.NormalizePriority(priority)
			}
			return a.send(ctx, c, actions.CommandEditContent, req, !t.noWait)
		},
	}
}

func (a *app) cmdChoose() *cli.Command {
	var t target

	return &cli.Command{
		Name:  "choose",
		Usage: "Take an incident as personnel",
		Flags: t.flags(true),
		Action: func(ctx context.Context, c *cli.Command) error {
			req := actions.ChooseRequest{TenantID: t.tenantID, UUID: t.uuid}
			return a.send(ctx, c, actions.CommandStaffChoose, req, !t.noWait)
		},
	}
}

func (a *app) cmdAssign() *cli.Command {
	var (
		t          target
		personalID string
		priority   string
	)
	flags := append(t.flags(true),
		&cli.StringFlag{Name: "personal", Usage: "Personnel id to assign", Required: true, Destination: &personalID},
		&cli.StringFlag{Name: "priority", Destination: &priority},
	)

	return &cli.Command{
		Name:  "assign",
		Usage: "Assign personnel to an incident",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			req := actions.AssignRequest{
				TenantID:   t.tenantID,
				UUID:       t.uuid,
				Operation:  actions.AssignOpAssign,
				PersonalID: personalID,
			}
			if priority != "" {
				req.Priority = incidents.NormalizePriority(priority)
			}
			return a.send(ctx, c, actions.CommandCoordinatorAssign, req, !t.noWait)
		},
	}
}

func (a *app) cmdComment() *cli.Command {
	var (
		t       target
		message string
	)
	flags := append(t.flags(true),
		&cli.StringFlag{Name: "message", Aliases: []string{"m"}, Required: true, Destination: &message},
	)

	return &cli.Command{
		Name:  "comment",
		Usage: "Add a coordinator comment to an incident",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			req := actions.AssignRequest{
				TenantID:  t.tenantID,
				UUID:      t.uuid,
				Operation: actions.AssignOpComment,
				Comment:   message,
			}
			return a.send(ctx, c, actions.CommandCoordinatorAssign, req, !t.noWait)
		},
	}
}

func (a *app) cmdResolve() *cli.Command {
	var (
		t       target
		comment string
	)
	flags := append(t.flags(true),
		&cli.StringFlag{Name: "comment", Destination: &comment},
	)

	return &cli.Command{
		Name:  "resolve",
		Usage: "Mark an incident resolved",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			req := actions.SolveRequest{TenantID: t.tenantID, UUID: t.uuid, Comment: comment}
			return a.send(ctx, c, actions.CommandSolved, req, !t.noWait)
		},
	}
}

func (a *app) cmdManage() *cli.Command {
	var (
		t      target
		op     string
		reason string
	)
	flags := append(t.flags(true),
		&cli.StringFlag{Name: "op", Usage: "close, reassign or delete", Required: true, Destination: &op},
		&cli.StringFlag{Name: "reason", Destination: &reason},
	)

	return &cli.Command{
		Name:  "manage",
		Usage: "Close, flag for reassignment or delete an incident",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			req := actions.ManageRequest{
				TenantID:  t.tenantID,
				UUID:      t.uuid,
				Operation: actions.ManageOp(op),
				Reason:    reason,
			}
			return a.send(ctx, c, actions.CommandAuthorityManage, req, !t.noWait)
		},
	}
}
