package main

import (
	"context"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ChamsBouzaiene/trailblaze/internal/rpc"
)

const shutdownTimeout = 15 * time.Second

func (a *app) serveCmd() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the run, cancel and session APIs over HTTP",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if addr == "" {
				addr = a.cfg.Server.Addr
			}
			return a.serve(cmd.Context(), addr)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default server.addr)")
	return cmd
}

func (a *app) serve(ctx context.Context, addr string) error {
	env, err := prepareRuntimeEnv(ctx, a.cfg, a.log)
	if err != nil {
		return err
	}
	defer env.Close()

	jobs := rpc.NewJobs(a.cfg.Server.JoinTimeout, a.log)
	opts := rpc.Options{
		Executor: env.Trails,
		Repo:     env.Repo,
		Sessions: env.Sessions,
		Events:   env.Events,
		Hub:      env.Hub,
		Metrics:  env.Metrics.Handler(),
		Job:      jobs.For(env.Info.ID),
		Logger:   a.log,
	}
	if env.Store != nil {
		opts.History = env.Store
	}
	srv := rpc.NewServer(opts)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Start(addr)
	})
	g.Go(func() error {
		<-gctx.Done()
		a.log.Info("shutting down", zap.String("addr", addr))
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(sctx); err != nil {
			return err
		}
		return jobs.Close(sctx)
	})
	return g.Wait()
}
