package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/mattn/go-sqlite3"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/odyssey-erp/odyssey-reports/internal/app"
)

var version = "dev"

// cliState is shared by every subcommand once flags and config are read.
type cliState struct {
	v      *viper.Viper
	logger *slog.Logger
}

func newRootCmd() *cobra.Command {
	state := &cliState{v: viper.New(), logger: slog.Default()}
	var cfgFile string

	root := &cobra.Command{
		Use:           "rollup",
		Short:         "Run catalog reports from the command line",
		Long:          `rollup runs report definitions against SQLite, Postgres or HTTP backends and prints the merged, totalled and ranked tables.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return state.init(cmd, cfgFile)
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (yaml, json or toml)")
	flags.String("catalog", "configs/reports.yaml", "report catalog file")
	flags.String("log-level", "warn", "log level (debug, info, warn, error)")
	flags.String("log-format", "pretty", "log format (pretty, json)")
	flags.String("redis", "127.0.0.1:6379", "Redis address of the job queue")
	_ = state.v.BindPFlag("catalog", flags.Lookup("catalog"))
	_ = state.v.BindPFlag("logging.level", flags.Lookup("log-level"))
	_ = state.v.BindPFlag("logging.format", flags.Lookup("log-format"))
	_ = state.v.BindPFlag("redis", flags.Lookup("redis"))

	root.AddCommand(listCmd(state))
	root.AddCommand(runCmd(state))
	root.AddCommand(warmupCmd(state))
	root.AddCommand(queueCmd(state))
	return root
}

func (s *cliState) init(cmd *cobra.Command, cfgFile string) error {
	if cfgFile != "" {
		s.v.SetConfigFile(cfgFile)
		if err := s.v.ReadInConfig(); err != nil {
			return fmt.Errorf("read config: %w", err)
		}
	}
	s.v.SetEnvPrefix("ROLLUP")
	s.v.AutomaticEnv()
	s.logger = app.NewLoggerTo(cmd.ErrOrStderr(), s.v.GetString("logging.format"), s.v.GetString("logging.level"))
	return nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
