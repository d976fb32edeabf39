package main

import (
	"fmt"
	"path/filepath"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/ChamsBouzaiene/trailblaze/internal/tools/builtin"
	"github.com/ChamsBouzaiene/trailblaze/internal/trail"
)

func (a *app) trailsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "trails",
		Short: "Inspect trail files",
	}

	var classifiers []string
	list := &cobra.Command{
		Use:   "list [directory]",
		Short: "List trail directories and the variant chosen for the classifiers",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := a.cfg.Trails.Dir
			if len(args) == 1 {
				dir = args[0]
			}
			if len(classifiers) == 0 {
				classifiers = a.cfg.Device.Classifiers
			}
			dirs, err := trail.Discover(dir)
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "TRAIL\tVARIANTS\tSELECTED")
			for _, d := range dirs {
				selected := "-"
				if f, ok := d.Select(classifiers); ok {
					selected = filepath.Base(f)
				}
				fmt.Fprintf(tw, "%s\t%d\t%s\n", d.Path, len(d.Files), selected)
			}
			return tw.Flush()
		},
	}
	list.Flags().StringSliceVar(&classifiers, "classifier", nil, "device classifiers, most specific first (default device.classifiers)")

	validate := &cobra.Command{
		Use:   "validate <file>...",
		Short: "Decode trail files and report errors",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			repo, err := builtin.NewRepo(builtin.DefaultToolSet())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			invalid := 0
			for _, path := range args {
				items, err := loadTrail(path, repo.Codec())
				if err != nil {
					invalid++
					fmt.Fprintf(out, "invalid  %v\n", err)
					continue
				}
				fmt.Fprintf(out, "valid    %s (%d items)\n", path, len(items))
			}
			if invalid > 0 {
				return fmt.Errorf("%d of %d trails are invalid", invalid, len(args))
			}
			return nil
		},
	}

	candidates := &cobra.Command{
		Use:   "candidates <classifier>...",
		Short: "Print the trail file names tried for the classifiers, best first",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, name := range trail.CandidateNames(args) {
				fmt.Fprintln(cmd.OutOrStdout(), name)
			}
			return nil
		},
	}

	cmd.AddCommand(list, validate, candidates)
	return cmd
}
