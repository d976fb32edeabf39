package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/ChamsBouzaiene/trailblaze/internal/config"
)

func (a *app) configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage the user configuration file",
	}

	var force bool
	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Write the effective configuration to the user config file",
		RunE: func(cmd *cobra.Command, _ []string) error {
			m, err := config.NewManager()
			if err != nil {
				return err
			}
			if m.Exists() && !force {
				return fmt.Errorf("%s already exists; use --force to overwrite", m.GetConfigPath())
			}
			if err := m.Save(a.cfg); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", m.GetConfigPath())
			return nil
		},
	}
	initCmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")

	show := &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := *a.cfg
			if cfg.LLM.APIKey != "" {
				cfg.LLM.APIKey = "********"
			}
			data, err := yaml.Marshal(&cfg)
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}

	path := &cobra.Command{
		Use:   "path",
		Short: "Print the user config file path",
		RunE: func(cmd *cobra.Command, _ []string) error {
			m, err := config.NewManager()
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), m.GetConfigPath())
			return nil
		},
	}

	cmd.AddCommand(initCmd, show, path)
	return cmd
}
