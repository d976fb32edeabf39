package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ChamsBouzaiene/trailblaze/internal/engine"
	"github.com/ChamsBouzaiene/trailblaze/internal/session"
	"github.com/ChamsBouzaiene/trailblaze/internal/tools"
	"github.com/ChamsBouzaiene/trailblaze/internal/trail"
)

type runFlags struct {
	recorded  bool
	recordOut string
	testClass string
	quiet     bool
}

func (a *app) runCmd() *cobra.Command {
	var f runFlags
	cmd := &cobra.Command{
		Use:   "run [trail file or directory]",
		Short: "Run one trail, or the best variant of every trail under a directory",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := a.cfg.Trails.Dir
			if len(args) == 1 {
				path = args[0]
			}
			return a.run(cmd, path, f)
		},
	}
	cmd.Flags().BoolVar(&f.recorded, "recorded", false, "replay recorded tools instead of asking the model")
	cmd.Flags().StringVarP(&f.recordOut, "record", "o", "", "write the executed trail with its recordings to this file")
	cmd.Flags().StringVar(&f.testClass, "class", "", "test class reported in the session status")
	cmd.Flags().BoolVarP(&f.quiet, "quiet", "q", false, "do not print session events")
	return cmd
}

// trailTarget is one trail file to execute.
type trailTarget struct {
	path   string
	method string
}

func (a *app) run(cmd *cobra.Command, path string, f runFlags) error {
	ctx := cmd.Context()
	env, err := prepareRuntimeEnv(ctx, a.cfg, a.log)
	if err != nil {
		return err
	}
	defer env.Close()

	if !f.quiet {
		out := cmd.OutOrStdout()
		env.Events.AddSink(session.SinkFunc(func(_ context.Context, e session.Event) error {
			fmt.Fprintln(out, formatEvent(e))
			return nil
		}))
	}

	targets, err := resolveTargets(path, env.Info.Classifiers)
	if err != nil {
		return err
	}
	if f.recordOut != "" && len(targets) != 1 {
		return errors.New("--record needs a single trail file")
	}

	failed := 0
	for _, t := range targets {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		items, err := loadTrail(t.path, env.Repo.Codec())
		if err != nil {
			return err
		}
		a.log.Info("running trail", zap.String("path", t.path))
		res := env.Trails.Run(ctx, items, engine.RunOptions{
			TestClass:        f.testClass,
			TestMethod:       t.method,
			UseRecordedSteps: f.recorded,
		})
		fmt.Fprintf(cmd.OutOrStdout(), "%s: %s (session %s)\n", t.path, res.Status, res.SessionID)
		if res.Status.Kind != session.StatusSucceeded {
			failed++
		}
		if f.recordOut != "" {
			if err := writeRecording(f.recordOut, res.Recording, env.Repo.Codec()); err != nil {
				return err
			}
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d trails did not succeed", failed, len(targets))
	}
	return nil
}

// resolveTargets expands path into trail files. A directory yields the
// variant best matching classifiers from each trail directory beneath it.
func resolveTargets(path string, classifiers []string) ([]trailTarget, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return []trailTarget{{path: path}}, nil
	}
	dirs, err := trail.Discover(path)
	if err != nil {
		return nil, fmt.Errorf("failed to discover trails: %w", err)
	}
	var out []trailTarget
	for _, d := range dirs {
		if file, ok := d.Select(classifiers); ok {
			out = append(out, trailTarget{path: file, method: filepath.Base(d.Path)})
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no trail under %s matches classifiers %v", path, classifiers)
	}
	return out, nil
}

func loadTrail(path string, codec *tools.Codec) ([]trail.Item, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	items, err := trail.Decode(f, codec)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return items, nil
}

func writeRecording(path string, items []trail.Item, codec *tools.Codec) error {
	var buf bytes.Buffer
	if err := trail.Encode(&buf, items, codec); err != nil {
		return fmt.Errorf("failed to encode recording: %w", err)
	}
	return os.WriteFile(path, buf.Bytes(), 0o644)
}
