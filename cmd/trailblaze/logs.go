package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"text/tabwriter"
	"time"

	"github.com/hpcloud/tail"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ChamsBouzaiene/trailblaze/internal/session"
)

func (a *app) logsCmd() *cobra.Command {
	var (
		follow bool
		limit  int
	)
	cmd := &cobra.Command{
		Use:   "logs [session-id]",
		Short: "List recorded sessions or print one session's events",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			switch {
			case follow:
				id := ""
				if len(args) == 1 {
					id = args[0]
				}
				return a.followEvents(cmd.Context(), out, id)
			case len(args) == 1:
				return a.printSession(cmd.Context(), out, args[0])
			default:
				return a.listSessions(cmd.Context(), out, limit)
			}
		},
	}
	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "follow the JSONL event log, optionally for one session")
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of sessions to list")
	return cmd
}

func (a *app) openHistory(ctx context.Context) (*session.Store, error) {
	if a.cfg.Session.StorePath == "" {
		return nil, errors.New("session.store_path is not configured")
	}
	return openStore(ctx, a.cfg.Session.StorePath)
}

func (a *app) listSessions(ctx context.Context, out io.Writer, limit int) error {
	store, err := a.openHistory(ctx)
	if err != nil {
		return err
	}
	defer store.Close()

	sessions, err := store.List(ctx, limit)
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SESSION\tDEVICE\tTITLE\tSTATUS\tSTARTED")
	for _, s := range sessions {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", s.ID, s.Device.ID, s.Title, s.Status.Kind, s.StartedAt.Local().Format(time.DateTime))
	}
	return tw.Flush()
}

func (a *app) printSession(ctx context.Context, out io.Writer, id string) error {
	store, err := a.openHistory(ctx)
	if err != nil {
		return err
	}
	defer store.Close()

	events, err := store.Events(ctx, id)
	if err != nil {
		return err
	}
	if len(events) == 0 {
		return fmt.Errorf("no events recorded for session %s", id)
	}
	printEvents(out, events)
	return nil
}

// followEvents tails the JSONL log until ctx ends. A non-empty id filters
// to that session.
func (a *app) followEvents(ctx context.Context, out io.Writer, id string) error {
	if a.cfg.Session.LogDir == "" {
		return errors.New("session.log_dir is not configured")
	}
	path := filepath.Join(a.cfg.Session.LogDir, eventsFileName)
	t, err := tail.TailFile(path, tail.Config{
		Follow:    true,
		ReOpen:    true,
		MustExist: false,
		Logger:    tail.DiscardingLogger,
	})
	if err != nil {
		return fmt.Errorf("failed to tail %s: %w", path, err)
	}
	defer t.Cleanup()
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-t.Lines:
			if !ok {
				return t.Err()
			}
			if line.Err != nil {
				a.log.Warn("tail error", zap.Error(line.Err))
				continue
			}
			e, err := session.DecodeEvent([]byte(line.Text))
			if err != nil {
				a.log.Debug("skipping malformed event line", zap.Error(err))
				continue
			}
			if id != "" && e.SessionID != id {
				continue
			}
			fmt.Fprintln(out, formatEvent(e))
		}
	}
}
