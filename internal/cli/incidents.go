package cli

import (
	"context"
	"fmt"
	"strconv"

	"github.com/urfave/cli/v3"

	"github.com/spec-kit/incident-sync/internal/domain"
	"github.com/spec-kit/incident-sync/internal/incidents"
)

type listFlags struct {
	statuses   []string
	priorities []string
	area       string
	global     string
	tenantID   string
	subtype    string
	minWait    string
	maxWait    string
}

func (f *listFlags) flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringSliceFlag{Name: "status", Usage: "Status filter, repeatable", Destination: &f.statuses},
		&cli.StringSliceFlag{Name: "priority", Usage: "Priority filter, repeatable", Destination: &f.priorities},
		&cli.StringFlag{Name: "area", Usage: "Responsible area", Destination: &f.area},
		&cli.StringFlag{Name: "global", Usage: "Only global (true) or local (false) incidents", Destination: &f.global},
		&cli.StringFlag{Name: "tenant", Usage: "Tenant identifier", Destination: &f.tenantID},
		&cli.StringFlag{Name: "type", Usage: "Incident subtype", Destination: &f.subtype},
		&cli.StringFlag{Name: "min-wait", Usage: "Minimum waiting minutes", Destination: &f.minWait},
		&cli.StringFlag{Name: "max-wait", Usage: "Maximum waiting minutes", Destination: &f.maxWait},
	}
}

func (f *listFlags) filter() (domain.IncidentFilter, error) {
	filter := domain.IncidentFilter{Area: f.area, TenantID: f.tenantID, Type: f.subtype}
	for _, s := range f.statuses {
		filter.Statuses = append(filter.Statuses, incidents.NormalizeStatus(s))
	}
	for _, p := range f.priorities {
		filter.Priorities = append(filter.Priorities, incidents.NormalizePriority(p))
	}
	if f.global != "" {
		global, err := strconv.ParseBool(f.global)
		if err != nil {
			return filter, fmt.Errorf("invalid --global %q", f.global)
		}
		filter.Global = &global
	}
	var err error
	if filter.MinWaitMinutes, err = minutes("min-wait", f.minWait); err != nil {
		return filter, err
	}
	if filter.MaxWaitMinutes, err = minutes("max-wait", f.maxWait); err != nil {
		return filter, err
	}
	return filter, nil
}

func minutes(name, val string) (*int, error) {
	if val == "" {
		return nil, nil
	}
	n, err := strconv.Atoi(val)
	if err != nil || n < 0 {
		return nil, fmt.Errorf("invalid --%s %q", name, val)
	}
	return &n, nil
}

func (a *app) cmdList() *cli.Command {
	var lf listFlags

	return &cli.Command{
		Name:    "list",
		Aliases: []string{"ls"},
		Usage:   "Load incidents visible to the current user",
		Flags:   lf.flags(),
		Action: func(ctx context.Context, c *cli.Command) error {
			filter, err := lf.filter()
			if err != nil {
				return err
			}
			viewer, err := a.rt.viewer(ctx)
			if err != nil {
				return err
			}
			cache := incidents.NewCache(a.rt.backend, viewer, a.rt.logger, a.rt.metrics)
			if err := cache.Load(ctx, filter); err != nil {
				return err
			}
			return printJSON(c.Root().Writer, cache.Items())
		},
	}
}

func (a *app) cmdNotifications() *cli.Command {
	var markAll bool
	var markID string

	return &cli.Command{
		Name:  "notifications",
		Usage: "Show the stored notification log",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "read-all", Usage: "Mark every notification as read", Destination: &markAll},
			&cli.StringFlag{Name: "read", Usage: "Mark one notification as read", Destination: &markID},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			n := a.rt.notifications
			if markID != "" {
				if err := n.MarkRead(ctx, markID); err != nil {
					return err
				}
			}
			if markAll {
				if err := n.MarkAllRead(ctx); err != nil {
					return err
				}
			}
			items, err := n.List(ctx)
			if err != nil {
				return err
			}
			unread, err := n.UnreadCount(ctx)
			if err != nil {
				return err
			}
			return printJSON(c.Root().Writer, map[string]any{"data": items, "unread": unread})
		},
	}
}

func (a *app) cmdJournal() *cli.Command {
	var (
		incidentUUID string
		limit        string
		keep         string
	)

	return &cli.Command{
		Name:  "journal",
		Usage: "Inspect realtime frames recorded in Postgres",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "incident", Usage: "Only frames for this incident UUID", Destination: &incidentUUID},
			&cli.StringFlag{Name: "limit", Usage: "Maximum frames to show", Value: "50", Destination: &limit},
			&cli.StringFlag{Name: "prune-keep", Usage: "Delete all but the newest N frames", Destination: &keep},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			repo, err := a.rt.frames(ctx)
			if err != nil {
				return err
			}
			if repo == nil {
				return fmt.Errorf("frame journal disabled: POSTGRES_DSN is not set")
			}

			if keep != "" {
				n, err := strconv.Atoi(keep)
				if err != nil || n < 0 {
					return fmt.Errorf("invalid --prune-keep %q", keep)
				}
				removed, err := repo.Prune(ctx, n)
				if err != nil {
					return err
				}
				return printJSON(c.Root().Writer, map[string]any{"pruned": removed})
			}

			n, err := strconv.Atoi(limit)
			if err != nil {
				return fmt.Errorf("invalid --limit %q", limit)
			}
			var entries []domain.JournalEntry
			if incidentUUID != "" {
				entries, err = repo.ListByIncident(ctx, incidentUUID, n)
			} else {
				entries, err = repo.Recent(ctx, n)
			}
			if err != nil {
				return err
			}
			return printJSON(c.Root().Writer, entries)
		},
	}
}
