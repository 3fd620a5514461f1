package main

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"fieldline/internal/app"
	"fieldline/internal/domain"
	"fieldline/internal/gateway"
	"fieldline/internal/selectors"
)

func agentCmd() *cobra.Command {
	a := &cobra.Command{
		Use:   "agent",
		Short: "Agent profile and roster",
	}
	a.AddCommand(agentProfileCmd())
	a.AddCommand(agentAvailabilityCmd())
	a.AddCommand(agentLocationCmd())
	a.AddCommand(agentListCmd())
	return a
}

func agentProfileCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "profile",
		Short: "Show the signed-in agent",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				a, ok := rt.Repos.Agents.Profile()
				if !ok {
					return fmt.Errorf("no agent profile cached for this session; run fl sync load")
				}
				return printAgents([]domain.Agent{a}, a)
			})
		},
	}
}

func agentAvailabilityCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "availability <available|busy|offline|on_break|on_mission>",
		Short: "Set the signed-in agent's availability",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				a, ok := rt.Repos.Agents.SetAvailability(ctx, domain.Availability(args[0]))
				if err := rt.Check(ok); err != nil {
					return err
				}
				return printAgents([]domain.Agent{a}, a)
			})
		},
	}
}

func agentLocationCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "location <lat> <lon>",
		Short: "Report the device position",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			lat, err := strconv.ParseFloat(args[0], 64)
			if err != nil {
				return fmt.Errorf("latitude: %w", err)
			}
			lon, err := strconv.ParseFloat(args[1], 64)
			if err != nil {
				return fmt.Errorf("longitude: %w", err)
			}
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				a, ok := rt.Repos.Agents.UpdateLocation(ctx, lat, lon)
				if err := rt.Check(ok); err != nil {
					return err
				}
				return printAgents([]domain.Agent{a}, a)
			})
		},
	}
}

func agentListCmd() *cobra.Command {
	var f selectors.AgentFilter
	var types, avail []string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List cached agents",
		RunE: func(cmd *cobra.Command, args []string) error {
			f.Types = castAll[domain.AgentType](types)
			f.Availability = castAll[domain.Availability](avail)
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				items := selectors.FilterAgents(rt.Repos.Agents.List(), f)
				return printAgents(items, items)
			})
		},
	}
	cmd.Flags().StringSliceVar(&types, "type", nil, "agent type filter")
	cmd.Flags().StringSliceVar(&avail, "availability", nil, "availability filter")
	cmd.Flags().BoolVar(&f.ActiveOnly, "active", false, "active agents only")
	cmd.Flags().StringVarP(&f.Query, "query", "q", "", "match name, email or user id")
	return cmd
}

func printAgents(items []domain.Agent, v any) error {
	return printJSONOrTable(v, func(tw table.Writer) {
		tw.AppendHeader(table.Row{"ID", "Name", "Type", "Availability", "Active", "Completed", "Rating"})
		for _, a := range items {
			tw.AppendRow(table.Row{a.ID, a.DisplayName(), a.AgentType, a.Availability, a.IsActive, a.CompletedTasks, a.AverageRating})
		}
	})
}

func specialtyCmd() *cobra.Command {
	s := &cobra.Command{
		Use:   "specialty",
		Short: "Manage agent specialties",
	}
	s.AddCommand(specialtyListCmd())
	s.AddCommand(specialtyAddCmd())
	s.AddCommand(specialtyRemoveCmd())
	return s
}

func specialtyListCmd() *cobra.Command {
	var agentID string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List specialties",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				items := rt.Repos.Specialties.List()
				if agentID != "" {
					items = rt.Repos.Specialties.ForAgent(agentID)
				}
				return printSpecialties(items, items)
			})
		},
	}
	cmd.Flags().StringVar(&agentID, "agent", "", "agent id filter")
	return cmd
}

func specialtyAddCmd() *cobra.Command {
	var in gateway.SpecialtyInput
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add a specialty",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				if in.AgentID == "" {
					id, _ := rt.Identity()
					in.AgentID = id.AgentID
				}
				s, ok := rt.Repos.Specialties.Create(ctx, in)
				if err := rt.Check(ok); err != nil {
					return err
				}
				return printSpecialties([]domain.AgentSpecialty{s}, s)
			})
		},
	}
	cmd.Flags().StringVar(&in.AgentID, "agent", "", "agent id (defaults to the signed-in agent)")
	cmd.Flags().StringVar(&in.Name, "name", "", "specialty name")
	cmd.Flags().StringVar(&in.Level, "level", "", "skill level")
	cmd.Flags().BoolVar(&in.Certified, "certified", false, "holds a certification")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func specialtyRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove <id>",
		Short: "Remove a specialty",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				if err := rt.Check(rt.Repos.Specialties.Delete(ctx, args[0])); err != nil {
					return err
				}
				fmt.Println("removed", args[0])
				return nil
			})
		},
	}
}

func printSpecialties(items []domain.AgentSpecialty, v any) error {
	return printJSONOrTable(v, func(tw table.Writer) {
		tw.AppendHeader(table.Row{"ID", "Agent", "Name", "Level", "Certified"})
		for _, s := range items {
			tw.AppendRow(table.Row{s.ID, s.AgentID, s.Name, s.Level, s.Certified})
		}
	})
}

func taskCmd() *cobra.Command {
	t := &cobra.Command{
		Use:   "task",
		Short: "Work on task assignments",
		Long:  "Tasks move assigned -> in_progress -> completed; in_progress tasks can be paused and resumed, and open tasks cancelled.",
	}
	t.AddCommand(taskListCmd())
	t.AddCommand(taskTransitionCmd("start", "Start a task", func(rt *app.Runtime) taskOp { return rt.Repos.Tasks.Start }))
	t.AddCommand(taskTransitionCmd("complete", "Complete a task", func(rt *app.Runtime) taskOp { return rt.Repos.Tasks.Complete }))
	t.AddCommand(taskTransitionCmd("pause", "Pause a task", func(rt *app.Runtime) taskOp { return rt.Repos.Tasks.Pause }))
	t.AddCommand(taskTransitionCmd("resume", "Resume a paused task", func(rt *app.Runtime) taskOp { return rt.Repos.Tasks.Resume }))
	t.AddCommand(taskTransitionCmd("cancel", "Cancel a task", func(rt *app.Runtime) taskOp { return rt.Repos.Tasks.Cancel }))
	return t
}

func taskListCmd() *cobra.Command {
	var f selectors.TaskFilter
	var statuses, priorities []string
	var overdue bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List cached tasks",
		RunE: func(cmd *cobra.Command, args []string) error {
			f.Statuses = castAll[domain.Status](statuses)
			f.Priorities = castAll[domain.Priority](priorities)
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				items := selectors.FilterTasks(rt.Repos.Tasks.List(), f)
				if overdue {
					items = selectors.Overdue(items, rt.Clock.Now())
				}
				return printTasks(items, items)
			})
		},
	}
	cmd.Flags().StringSliceVar(&statuses, "status", nil, "status filter")
	cmd.Flags().StringSliceVar(&priorities, "priority", nil, "priority filter")
	cmd.Flags().StringVar(&f.AgentID, "agent", "", "agent id filter")
	cmd.Flags().StringVar(&f.PropertyID, "property", "", "property id filter")
	cmd.Flags().StringVarP(&f.Query, "query", "q", "", "match title, description or notes")
	cmd.Flags().BoolVar(&overdue, "overdue", false, "only tasks past their due date")
	return cmd
}

type taskOp = func(context.Context, string) (domain.TaskAssignment, bool)

func taskTransitionCmd(use, short string, op func(*app.Runtime) taskOp) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <task-id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				t, ok := op(rt)(ctx, args[0])
				if err := rt.Check(ok); err != nil {
					return err
				}
				return printTasks([]domain.TaskAssignment{t}, t)
			})
		},
	}
}

func printTasks(items []domain.TaskAssignment, v any) error {
	return printJSONOrTable(v, func(tw table.Writer) {
		tw.AppendHeader(table.Row{"ID", "Title", "Type", "Priority", "Status", "Due", "Property"})
		for _, t := range items {
			tw.AppendRow(table.Row{t.ID, t.Title, t.Type, t.Priority, t.Status, formatTime(t.DueDate), deref(t.PropertyID)})
		}
	})
}

func sessionCmd() *cobra.Command {
	s := &cobra.Command{
		Use:   "session",
		Short: "Work on cleaning and maintenance sessions",
		Long:  "Sessions move planned -> in_progress -> completed; planned or running sessions can be cancelled.",
	}
	cleaning := &cobra.Command{Use: "cleaning", Short: "Cleaning sessions"}
	cleaning.AddCommand(cleaningListCmd())
	cleaning.AddCommand(sessionTransitionCmd("start", "Start a cleaning session", func(rt *app.Runtime) sessionOp[domain.CleaningSession] { return rt.Repos.Cleaning.Start }))
	cleaning.AddCommand(sessionTransitionCmd("complete", "Complete a cleaning session", func(rt *app.Runtime) sessionOp[domain.CleaningSession] { return rt.Repos.Cleaning.Complete }))
	cleaning.AddCommand(sessionTransitionCmd("cancel", "Cancel a cleaning session", func(rt *app.Runtime) sessionOp[domain.CleaningSession] { return rt.Repos.Cleaning.Cancel }))
	maintenance := &cobra.Command{Use: "maintenance", Short: "Maintenance sessions"}
	maintenance.AddCommand(maintenanceListCmd())
	maintenance.AddCommand(sessionTransitionCmd("start", "Start a maintenance session", func(rt *app.Runtime) sessionOp[domain.MaintenanceSession] { return rt.Repos.Maintenance.Start }))
	maintenance.AddCommand(sessionTransitionCmd("complete", "Complete a maintenance session", func(rt *app.Runtime) sessionOp[domain.MaintenanceSession] { return rt.Repos.Maintenance.Complete }))
	maintenance.AddCommand(sessionTransitionCmd("cancel", "Cancel a maintenance session", func(rt *app.Runtime) sessionOp[domain.MaintenanceSession] { return rt.Repos.Maintenance.Cancel }))
	s.AddCommand(cleaning, maintenance)
	return s
}

func sessionFilterFlags(cmd *cobra.Command, f *selectors.SessionFilter, statuses *[]string, day *string) {
	cmd.Flags().StringSliceVar(statuses, "status", nil, "status filter")
	cmd.Flags().StringVar(&f.AgentID, "agent", "", "agent id filter")
	cmd.Flags().StringVar(&f.PropertyID, "property", "", "property id filter")
	cmd.Flags().StringVarP(&f.Query, "query", "q", "", "match notes")
	cmd.Flags().StringVar(day, "date", "", "scheduled day (YYYY-MM-DD)")
}

func applyDay(f *selectors.SessionFilter, day string) error {
	if day == "" {
		return nil
	}
	d, err := time.ParseInLocation(time.DateOnly, day, time.Local)
	if err != nil {
		return fmt.Errorf("--date: %w", err)
	}
	f.From, f.To = d, d.AddDate(0, 0, 1)
	return nil
}

func cleaningListCmd() *cobra.Command {
	var f selectors.SessionFilter
	var statuses []string
	var day string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List cached cleaning sessions",
		RunE: func(cmd *cobra.Command, args []string) error {
			f.Statuses = castAll[domain.Status](statuses)
			if err := applyDay(&f, day); err != nil {
				return err
			}
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				items := selectors.FilterCleaning(rt.Repos.Cleaning.List(), f)
				now := rt.Clock.Now()
				return printJSONOrTable(items, func(tw table.Writer) {
					tw.AppendHeader(table.Row{"ID", "Property", "Scheduled", "Status", "Progress"})
					for _, s := range items {
						p, _ := rt.Repos.Cleaning.Progress(s.ID, now)
						tw.AppendRow(table.Row{s.ID, s.PropertyID, formatTime(&s.ScheduledDate), s.Status, fmt.Sprintf("%d%%", p)})
					}
				})
			})
		},
	}
	sessionFilterFlags(cmd, &f, &statuses, &day)
	return cmd
}

func maintenanceListCmd() *cobra.Command {
	var f selectors.SessionFilter
	var statuses []string
	var day string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List cached maintenance sessions",
		RunE: func(cmd *cobra.Command, args []string) error {
			f.Statuses = castAll[domain.Status](statuses)
			if err := applyDay(&f, day); err != nil {
				return err
			}
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				items := selectors.FilterMaintenance(rt.Repos.Maintenance.List(), f)
				now := rt.Clock.Now()
				return printJSONOrTable(items, func(tw table.Writer) {
					tw.AppendHeader(table.Row{"ID", "Property", "Ticket", "Scheduled", "Status", "Progress"})
					for _, s := range items {
						p, _ := rt.Repos.Maintenance.Progress(s.ID, now)
						tw.AppendRow(table.Row{s.ID, s.PropertyID, s.TicketID, formatTime(&s.ScheduledDate), s.Status, fmt.Sprintf("%d%%", p)})
					}
				})
			})
		},
	}
	sessionFilterFlags(cmd, &f, &statuses, &day)
	return cmd
}

type sessionOp[T any] func(context.Context, string) (T, bool)

func sessionTransitionCmd[T any](use, short string, op func(*app.Runtime) sessionOp[T]) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <session-id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				s, ok := op(rt)(ctx, args[0])
				if err := rt.Check(ok); err != nil {
					return err
				}
				return printJSON(s)
			})
		},
	}
}

func ticketCmd() *cobra.Command {
	t := &cobra.Command{
		Use:   "ticket",
		Short: "Work on maintenance tickets",
		Long:  "Tickets move open -> assigned -> in_progress -> resolved -> closed; unresolved tickets can be cancelled.",
	}
	t.AddCommand(ticketListCmd())
	t.AddCommand(ticketAcceptCmd())
	t.AddCommand(ticketResolveCmd())
	t.AddCommand(ticketCancelCmd())
	return t
}

func ticketListCmd() *cobra.Command {
	var f selectors.TicketFilter
	var statuses, priorities []string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List cached tickets",
		RunE: func(cmd *cobra.Command, args []string) error {
			f.Statuses = castAll[domain.Status](statuses)
			f.Priorities = castAll[domain.Priority](priorities)
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				items := selectors.FilterTickets(rt.Repos.Tickets.List(), f)
				return printTickets(items, items)
			})
		},
	}
	cmd.Flags().StringSliceVar(&statuses, "status", nil, "status filter")
	cmd.Flags().StringSliceVar(&priorities, "priority", nil, "priority filter")
	cmd.Flags().StringVar(&f.AgentID, "agent", "", "agent id filter")
	cmd.Flags().StringVar(&f.PropertyID, "property", "", "property id filter")
	cmd.Flags().StringVarP(&f.Query, "query", "q", "", "match title, description or category")
	return cmd
}

func ticketAcceptCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "accept <ticket-id>",
		Short: "Take an assigned ticket into work",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				t, ok := rt.Repos.Tickets.Accept(ctx, args[0])
				if err := rt.Check(ok); err != nil {
					return err
				}
				return printTickets([]domain.Ticket{t}, t)
			})
		},
	}
}

func ticketResolveCmd() *cobra.Command {
	var resolution string
	cmd := &cobra.Command{
		Use:   "resolve <ticket-id>",
		Short: "Resolve a ticket",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				t, ok := rt.Repos.Tickets.Resolve(ctx, args[0], resolution)
				if err := rt.Check(ok); err != nil {
					return err
				}
				return printTickets([]domain.Ticket{t}, t)
			})
		},
	}
	cmd.Flags().StringVar(&resolution, "resolution", "", "what was done")
	return cmd
}

func ticketCancelCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <ticket-id>",
		Short: "Cancel a ticket",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				t, ok := rt.Repos.Tickets.Cancel(ctx, args[0])
				if err := rt.Check(ok); err != nil {
					return err
				}
				return printTickets([]domain.Ticket{t}, t)
			})
		},
	}
}

func printTickets(items []domain.Ticket, v any) error {
	return printJSONOrTable(v, func(tw table.Writer) {
		tw.AppendHeader(table.Row{"ID", "Title", "Property", "Priority", "Status", "Agent", "Reported"})
		for _, t := range items {
			tw.AppendRow(table.Row{t.ID, t.Title, t.PropertyID, t.Priority, t.Status, deref(t.AgentID), formatTime(&t.ReportedAt)})
		}
	})
}

func statsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Counts over the cached collections",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				now := rt.Clock.Now()
				agents := selectors.AgentStats(rt.Repos.Agents.List())
				tasks := selectors.TaskStats(rt.Repos.Tasks.List(), now)
				tickets := selectors.TicketStats(rt.Repos.Tickets.List())
				sessions := selectors.SessionStats(rt.Repos.Cleaning.List(), rt.Repos.Maintenance.List())
				out := map[string]any{"agents": agents, "tasks": tasks, "tickets": tickets, "sessions": sessions}
				return printJSONOrTable(out, func(tw table.Writer) {
					tw.AppendHeader(table.Row{"Metric", "Value"})
					tw.AppendRow(table.Row{"agents", agents.Total})
					tw.AppendRow(table.Row{"agents active", agents.Active})
					tw.AppendRow(table.Row{"tasks", tasks.Total})
					tw.AppendRow(table.Row{"tasks overdue", tasks.Overdue})
					tw.AppendRow(table.Row{"task completion", fmt.Sprintf("%d%%", tasks.CompletionRate)})
					tw.AppendRow(table.Row{"tickets", tickets.Total})
					tw.AppendRow(table.Row{"tickets open", tickets.Open})
					tw.AppendRow(table.Row{"tickets unassigned", tickets.Unassigned})
					tw.AppendRow(table.Row{"cleaning sessions", sessions.Cleaning.Total})
					tw.AppendRow(table.Row{"maintenance sessions", sessions.Maintenance.Total})
				})
			})
		},
	}
}

func agendaCmd() *cobra.Command {
	var all bool
	cmd := &cobra.Command{
		Use:   "agenda",
		Short: "Today's work across tasks, sessions and tickets",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				items := selectors.WorkItems(rt.Repos.Tasks.List(), rt.Repos.Cleaning.List(), rt.Repos.Maintenance.List(), rt.Repos.Tickets.List())
				if !all {
					items = selectors.Today(items, rt.Clock.Now().Local())
				}
				return printJSONOrTable(items, func(tw table.Writer) {
					tw.AppendHeader(table.Row{"When", "Kind", "ID", "Title", "Status"})
					for _, w := range items {
						at := w.ScheduledFor()
						tw.AppendRow(table.Row{formatTime(&at), w.Kind(), w.EntityID(), w.DisplayTitle(), w.CurrentStatus()})
					}
				})
			})
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "include every day")
	return cmd
}

func castAll[T ~string](in []string) []T {
	if len(in) == 0 {
		return nil
	}
	out := make([]T, len(in))
	for i, s := range in {
		out[i] = T(s)
	}
	return out
}
