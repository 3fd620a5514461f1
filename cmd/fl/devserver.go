package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"fieldline/internal/config"
	"fieldline/internal/devserver"
	"fieldline/internal/session"
)

func devserverCmd() *cobra.Command {
	d := &cobra.Command{
		Use:   "devserver",
		Short: "Local operations service for development",
		Long:  "An in-memory stand-in for the operations service, seeded from a YAML file. Tokens it accepts are issued with 'fl devserver token'.",
	}
	d.AddCommand(devserverServeCmd())
	d.AddCommand(devserverTokenCmd())
	return d
}

func devserverServeCmd() *cobra.Command {
	var addr, secret, seedPath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the dev service",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadOptional(viper.GetString("workspace"))
			if err != nil {
				return err
			}
			if addr == "" {
				addr = cfg.DevServer.Addr
			}
			if secret == "" {
				secret = cfg.DevServer.Secret
			}
			if seedPath == "" {
				seedPath = cfg.DevServer.Seed
			}
			logger := newLogger()
			srv := devserver.New(devserver.Config{Secret: secret, Logger: logger})
			if seedPath != "" {
				seed, err := devserver.LoadSeed(seedPath)
				if err != nil {
					return err
				}
				srv.Seed(seed)
				logger.Info("seed loaded", "path", seedPath, "agents", len(seed.Agents), "tasks", len(seed.Tasks))
			}
			hs := &http.Server{Addr: addr, Handler: srv.Handler(), ReadHeaderTimeout: 10 * time.Second}
			go func() {
				<-cmd.Context().Done()
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				hs.Shutdown(ctx)
			}()
			fmt.Printf("Serving Fieldline dev service on http://%s (OpenAPI at /openapi.json)\n", addr)
			if err := hs.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (defaults to devserver.addr)")
	cmd.Flags().StringVar(&secret, "secret", "", "token signing secret (defaults to devserver.secret)")
	cmd.Flags().StringVar(&seedPath, "seed", "", "YAML seed file (defaults to devserver.seed)")
	return cmd
}

func devserverTokenCmd() *cobra.Command {
	var id session.Identity
	var role string
	var ttl time.Duration
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a session token the dev service accepts",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadOptional(viper.GetString("workspace"))
			if err != nil {
				return err
			}
			id.Role = session.Role(role)
			if id.Role != session.RoleAgent && id.Role != session.RoleManager {
				return fmt.Errorf("--role must be agent or manager")
			}
			tok, err := devserver.IssueToken(cfg.DevServer.Secret, id, ttl, time.Now())
			if err != nil {
				return err
			}
			fmt.Println(tok)
			return nil
		},
	}
	cmd.Flags().StringVar(&id.UserID, "user", "", "user id")
	cmd.Flags().StringVar(&id.AgentID, "agent", "", "agent profile id")
	cmd.Flags().StringVar(&id.Name, "name", "", "display name")
	cmd.Flags().StringVar(&role, "role", string(session.RoleAgent), "agent or manager")
	cmd.Flags().DurationVar(&ttl, "ttl", 12*time.Hour, "token lifetime")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}
