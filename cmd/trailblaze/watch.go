package main

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ChamsBouzaiene/trailblaze/internal/engine"
	"github.com/ChamsBouzaiene/trailblaze/internal/rpc"
	"github.com/ChamsBouzaiene/trailblaze/internal/session"
	"github.com/ChamsBouzaiene/trailblaze/internal/tools/builtin"
	"github.com/ChamsBouzaiene/trailblaze/internal/watch"
)

func (a *app) watchCmd() *cobra.Command {
	var runOnChange bool
	cmd := &cobra.Command{
		Use:   "watch [directory]",
		Short: "Validate trail files as they change, optionally re-running them",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := a.cfg.Trails.Dir
			if len(args) == 1 {
				dir = args[0]
			}
			return a.watch(cmd, dir, runOnChange)
		},
	}
	cmd.Flags().BoolVar(&runOnChange, "run", false, "run each valid trail after it changes")
	return cmd
}

func (a *app) watch(cmd *cobra.Command, dir string, runOnChange bool) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	var (
		env *runtimeEnv
		job *rpc.Job
	)
	codecRepo, err := builtin.NewRepo(builtin.DefaultToolSet())
	if err != nil {
		return err
	}
	if runOnChange {
		env, err = prepareRuntimeEnv(ctx, a.cfg, a.log)
		if err != nil {
			return err
		}
		defer env.Close()
		codecRepo = env.Repo
		job = rpc.NewJob(a.cfg.Server.JoinTimeout, a.log)
		defer job.Close(context.Background())
	}

	w, err := watch.New(dir, codecRepo.Codec(), watch.WithLogger(a.log))
	if err != nil {
		return err
	}
	w.OnChange(func(changes []watch.Change) {
		for _, c := range changes {
			switch {
			case c.Removed:
				fmt.Fprintf(out, "removed  %s\n", c.Path)
			case c.Err != nil:
				fmt.Fprintf(out, "invalid  %s: %v\n", c.Path, c.Err)
			default:
				fmt.Fprintf(out, "valid    %s (%d items)\n", c.Path, len(c.Items))
				if job != nil {
					a.rerun(job, env, c)
				}
			}
		}
	})
	if err := w.Start(ctx); err != nil {
		return err
	}
	defer w.Stop()

	<-ctx.Done()
	return nil
}

// rerun starts c on the job slot, cancelling the run of an earlier change.
func (a *app) rerun(job *rpc.Job, env *runtimeEnv, c watch.Change) {
	id := uuid.NewString()
	job.Start(id, func(ctx context.Context) {
		res := env.Trails.Run(ctx, c.Items, engine.RunOptions{SessionID: id})
		a.log.Info("trail finished",
			zap.String("path", c.Path),
			zap.String("session", res.SessionID),
			zap.String("status", res.Status.String()))
	}, func(sup rpc.Superseded) {
		env.Events.EndSession(context.Background(), sup.Task.ID, session.Cancelled(time.Since(sup.Task.Started), "superseded by a file change"))
		env.Sessions.EndSessionIf(sup.Task.ID)
	})
}
