package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"fieldline/internal/app"
	"fieldline/internal/config"
	"fieldline/internal/db"
	"fieldline/internal/domain"
)

var rootCmd = &cobra.Command{
	Use:   "fl",
	Short: "Fieldline agent console",
	Long: `Fieldline keeps a field agent's work on the device and in step with the operations service.
Core concepts:
- Workspace: the .fieldline directory holding the device cache and the transition journal.
- Session: a signed token (--session or FIELDLINE_SESSION) naming the user, agent profile and role.
- Sync: 'fl sync load' reads the cache and refreshes from the service; last sync only moves when every kind refreshed.
- Work: tasks, cleaning and maintenance sessions, and tickets move through fixed lifecycles; illegal moves never reach the service.
- Guided cleaning: 'fl clean <task-id>' walks instructions, before photos, a timed cleaning phase and after photos.
- Journal: every observed status change is recorded locally, view with 'fl log tail'.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		_, err := db.EnsureWorkspace(viper.GetString("workspace"))
		return err
	},
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	if err := rootCmd.Execute(); err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("FIELDLINE")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().String("session", "", "session token")
	rootCmd.PersistentFlags().String("base-url", "", "service base URL (overrides fieldline.yml)")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("log-level", "warn", "log level (debug, info, warn, error)")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("session", rootCmd.PersistentFlags().Lookup("session"))
	_ = viper.BindPFlag("base-url", rootCmd.PersistentFlags().Lookup("base-url"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("log-level", rootCmd.PersistentFlags().Lookup("log-level"))
}

func registerCommands() {
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(syncCmd())
	rootCmd.AddCommand(agentCmd())
	rootCmd.AddCommand(specialtyCmd())
	rootCmd.AddCommand(taskCmd())
	rootCmd.AddCommand(sessionCmd())
	rootCmd.AddCommand(ticketCmd())
	rootCmd.AddCommand(statsCmd())
	rootCmd.AddCommand(agendaCmd())
	rootCmd.AddCommand(cleanCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(devserverCmd())
}

func configCmd() *cobra.Command {
	cfg := &cobra.Command{
		Use:   "config",
		Short: "Manage fieldline.yml",
		Long:  "fieldline.yml sets the service URL and timeout, the guided-flow photo minimums and sampler interval, and the dev service settings.",
	}
	cfg.AddCommand(configInitCmd())
	cfg.AddCommand(configShowCmd())
	cfg.AddCommand(configValidateCmd())
	return cfg
}

func configInitCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default fieldline.yml",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := config.Path(viper.GetString("workspace"))
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", path)
			}
			if err := os.WriteFile(path, []byte(config.GenerateDefault()), 0o644); err != nil {
				return err
			}
			fmt.Println("wrote", path)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")
	return cmd
}

func configShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show the effective config",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadOptional(viper.GetString("workspace"))
			if err != nil {
				return err
			}
			if u := viper.GetString("base-url"); u != "" {
				cfg.Service.BaseURL = u
			}
			return printJSON(cfg)
		},
	}
}

func configValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate fieldline.yml",
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := config.Load(viper.GetString("workspace")); err != nil {
				return err
			}
			fmt.Println("config OK")
			return nil
		},
	}
}

func syncCmd() *cobra.Command {
	s := &cobra.Command{
		Use:   "sync",
		Short: "Synchronise the device cache",
	}
	s.AddCommand(syncLoadCmd())
	s.AddCommand(syncRefreshCmd())
	s.AddCommand(syncClearCmd())
	s.AddCommand(syncStatusCmd())
	return s
}

func syncLoadCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "load",
		Short: "Hydrate from the cache, then refresh every kind",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				rep, err := rt.Sync.Load(ctx)
				if err != nil && rep.OK() {
					return err
				}
				return printReport(rt, rep.Refreshed, rep.Failed, rep.LastSync)
			})
		},
	}
}

func syncRefreshCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "refresh",
		Short: "Refresh every kind from the service",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				rep, err := rt.Sync.Refresh(ctx)
				if err != nil && rep.OK() {
					return err
				}
				return printReport(rt, rep.Refreshed, rep.Failed, rep.LastSync)
			})
		},
	}
}

func syncClearCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Drop all cached data and the journal",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withWorkspace(cmd.Context(), app.Options{}, func(ctx context.Context, rt *app.Runtime) error {
				if err := rt.Sync.Clear(ctx); err != nil {
					return err
				}
				fmt.Println("cache cleared")
				return nil
			})
		},
	}
}

func syncStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show cached counts and the last successful sync",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withWorkspace(cmd.Context(), app.Options{}, func(ctx context.Context, rt *app.Runtime) error {
				if err := rt.Sync.Hydrate(ctx); err != nil {
					return err
				}
				last, ok, err := rt.Sync.LastSync(ctx)
				if err != nil {
					return err
				}
				counts := map[domain.Kind]int{
					domain.KindAgent:       rt.Store.Agents.Len(),
					domain.KindSpecialty:   rt.Store.Specialties.Len(),
					domain.KindTask:        rt.Store.Tasks.Len(),
					domain.KindCleaning:    rt.Store.Cleaning.Len(),
					domain.KindMaintenance: rt.Store.Maintenance.Len(),
					domain.KindTicket:      rt.Store.Tickets.Len(),
				}
				if viper.GetBool("json") {
					out := map[string]any{"counts": counts}
					if ok {
						out["lastSync"] = last
					}
					return printJSON(out)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Kind", "Cached"})
				for _, k := range domain.Kinds {
					tw.AppendRow(table.Row{k, counts[k]})
				}
				tw.Render()
				if ok {
					fmt.Println("last sync:", last.Local().Format(time.RFC1123))
				} else {
					fmt.Println("last sync: never")
				}
				return nil
			})
		},
	}
}

func printReport(rt *app.Runtime, refreshed []domain.Kind, failed map[domain.Kind]error, last time.Time) error {
	if viper.GetBool("json") {
		errs := map[domain.Kind]string{}
		for k, err := range failed {
			errs[k] = err.Error()
		}
		return printJSON(map[string]any{"refreshed": refreshed, "failed": errs, "lastSync": last})
	}
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.AppendHeader(table.Row{"Kind", "Result"})
	for _, k := range domain.Kinds {
		res := "ok"
		if err, bad := failed[k]; bad {
			res = err.Error()
		}
		tw.AppendRow(table.Row{k, res})
	}
	tw.Render()
	if last.IsZero() {
		fmt.Println("last sync not advanced: refresh incomplete")
		if err := rt.Store.Err(); err != nil {
			return err
		}
		return nil
	}
	fmt.Println("last sync:", last.Local().Format(time.RFC1123))
	return nil
}

func logCmd() *cobra.Command {
	log := &cobra.Command{
		Use:   "log",
		Short: "Transition journal",
		Long:  "The local diary of status changes, identity switches and refreshes seen on this device.",
	}
	log.AddCommand(logTailCmd())
	return log
}

func logTailCmd() *cobra.Command {
	var n int
	var evtType, entityKind, entityID string
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Tail journal events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withWorkspace(cmd.Context(), app.Options{}, func(ctx context.Context, rt *app.Runtime) error {
				events, err := rt.Journal.Latest(ctx, n, evtType, entityKind, entityID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(events)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"TS", "Type", "Kind", "ID", "Actor", "From", "To"})
				for _, e := range events {
					tw.AppendRow(table.Row{e.TS, e.Type, e.EntityKind, e.EntityID, e.ActorID, e.FromStatus, e.ToStatus})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&n, "n", 20, "number of events")
	cmd.Flags().StringVar(&evtType, "type", "", "event type filter")
	cmd.Flags().StringVar(&entityKind, "entity-kind", "", "entity kind")
	cmd.Flags().StringVar(&entityID, "entity-id", "", "entity id")
	return cmd
}

// --- helpers ---

func newLogger() *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(viper.GetString("log-level"))); err != nil {
		level = slog.LevelWarn
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// withWorkspace opens a signed-out runtime over the workspace.
func withWorkspace(ctx context.Context, opts app.Options, fn func(context.Context, *app.Runtime) error) error {
	opts.Workspace = viper.GetString("workspace")
	opts.BaseURL = viper.GetString("base-url")
	opts.Logger = newLogger()
	rt, err := app.Open(opts)
	if err != nil {
		return err
	}
	defer rt.Close()
	return fn(ctx, rt)
}

// withRuntime opens the workspace and signs in with the session token.
func withRuntime(ctx context.Context, fn func(context.Context, *app.Runtime) error) error {
	return withSession(ctx, app.Options{}, fn)
}

func withSession(ctx context.Context, opts app.Options, fn func(context.Context, *app.Runtime) error) error {
	token := strings.TrimSpace(viper.GetString("session"))
	if token == "" {
		return fmt.Errorf("no session; pass --session or set FIELDLINE_SESSION")
	}
	return withWorkspace(ctx, opts, func(ctx context.Context, rt *app.Runtime) error {
		switched, err := rt.Authenticate(ctx, token)
		if err != nil {
			return err
		}
		if switched {
			id, _ := rt.Identity()
			rt.Logger.Info("signed in", "user", id.UserID, "agent", id.AgentID)
		}
		return fn(ctx, rt)
	})
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printJSONOrTable(v any, render func(tw table.Writer)) error {
	if viper.GetBool("json") {
		return printJSON(v)
	}
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	render(tw)
	tw.Render()
	return nil
}

func formatTime(t *time.Time) string {
	if t == nil || t.IsZero() {
		return ""
	}
	return t.Local().Format("2006-01-02 15:04")
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
