package main

import (
	"context"
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"fieldline/internal/app"
	"fieldline/internal/domain"
	"fieldline/internal/tui"
)

func cleanCmd() *cobra.Command {
	var session bool
	cmd := &cobra.Command{
		Use:   "clean <id>",
		Short: "Run the guided cleaning flow",
		Long: `Walks through instructions, before photos, a timed cleaning phase and after photos.
Starting the cleaning starts the task (or cleaning session with --cleaning-session); completing the flow completes it.
Closing the flow early leaves the entity in whatever status it reached.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			feed := tui.NewSampleFeed()
			opts := app.Options{OnSample: feed.Push}
			return withSession(cmd.Context(), opts, func(ctx context.Context, rt *app.Runtime) error {
				ref, title, err := cleanTarget(rt, args[0], session)
				if err != nil {
					return err
				}
				flow, err := rt.Flows.Open(ref, rt.Target())
				if err != nil {
					return err
				}
				model := tui.NewCleaning(ctx, flow, title, feed, rt.Clock.Now)
				final, err := tea.NewProgram(model, tea.WithContext(ctx)).Run()
				// The sampler must not outlive the program.
				flow.Abandon()
				if err != nil {
					return err
				}
				res := final.(tui.Cleaning)
				switch {
				case res.Completed():
					fmt.Printf("%s %s completed in %s\n", ref.Kind, ref.ID, flow.Elapsed().Round(time.Second))
				case res.Abandoned():
					fmt.Printf("flow closed; %s %s left as is\n", ref.Kind, ref.ID)
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&session, "cleaning-session", false, "treat the id as a cleaning session instead of a task")
	return cmd
}

func cleanTarget(rt *app.Runtime, id string, session bool) (domain.WorkRef, string, error) {
	if session {
		s, ok := rt.Repos.Cleaning.GetByID(id)
		if !ok {
			return domain.WorkRef{}, "", fmt.Errorf("cleaning session %s not cached; run fl sync load", id)
		}
		return domain.RefOf(&s), s.DisplayTitle(), nil
	}
	t, ok := rt.Repos.Tasks.GetByID(id)
	if !ok {
		return domain.WorkRef{}, "", fmt.Errorf("task %s not cached; run fl sync load", id)
	}
	return domain.RefOf(&t), t.Title, nil
}
