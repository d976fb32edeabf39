// Command trailblaze runs natural-language UI test trails against a device.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/ChamsBouzaiene/trailblaze/internal/config"
	"github.com/ChamsBouzaiene/trailblaze/internal/observability"
)

type app struct {
	configPath string
	v          *viper.Viper
	cfg        *config.Config
	log        *zap.Logger
}

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a := &app{}
	if err := a.rootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func (a *app) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "trailblaze",
		Short:         "Drive mobile and web UIs from natural-language trails",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.load(cmd)
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			observability.Sync()
		},
	}

	f := root.PersistentFlags()
	f.StringVar(&a.configPath, "config", "", "config file (default ./trailblaze.yaml or the user config dir)")
	f.String("log-level", "", "log level: debug, info, warn, error")
	f.String("provider", "", "LLM provider")
	f.String("model", "", "LLM model")
	f.String("driver", "", "device driver: adb, web, mock")
	f.String("serial", "", "adb device serial")
	f.String("web-url", "", "start URL for the web driver")

	root.AddCommand(
		a.runCmd(),
		a.serveCmd(),
		a.watchCmd(),
		a.logsCmd(),
		a.trailsCmd(),
		a.configCmd(),
	)
	return root
}

var flagKeys = map[string]string{
	"log-level": "logger.level",
	"provider":  "llm.provider",
	"model":     "llm.model",
	"driver":    "device.driver",
	"serial":    "device.serial",
	"web-url":   "device.web_url",
}

// load reads the configuration with flag overrides and starts the logger.
func (a *app) load(cmd *cobra.Command) error {
	a.v = config.New(a.configPath)
	for flag, key := range flagKeys {
		if fl := cmd.Flags().Lookup(flag); fl != nil {
			if err := a.v.BindPFlag(key, fl); err != nil {
				return err
			}
		}
	}
	cfg, err := config.Load(a.v)
	if err != nil {
		return err
	}
	a.cfg = cfg

	observability.InitializeLogger(cfg.Logger, nil)
	a.log = observability.GetLogger()
	if used := a.v.ConfigFileUsed(); used != "" {
		a.log.Debug("config loaded", zap.String("path", used))
	}
	return nil
}
