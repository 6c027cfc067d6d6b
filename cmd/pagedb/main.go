package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"pagedb/internal/config"
	"pagedb/internal/engine"
	"pagedb/internal/log"
	"pagedb/internal/server"
	"pagedb/internal/shell"
)

var (
	flagConfig   string
	flagData     string
	flagListen   string
	flagLogLevel string
	flagLogJSON  bool
	flagURL      string
)

func main() {
	root := &cobra.Command{
		Use:           "pagedb",
		Short:         "A disk-backed relational storage and query engine",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&flagConfig, "config", "", "path to pagedb.yaml")
	root.PersistentFlags().StringVar(&flagLogLevel, "log-level", "", "log level (debug, info, warn, error)")
	root.PersistentFlags().BoolVar(&flagLogJSON, "log-json", false, "log JSON instead of console output")

	serverCmd := &cobra.Command{
		Use:   "server",
		Short: "Run the HTTP server",
		RunE:  runServer,
	}
	serverCmd.Flags().StringVar(&flagData, "data", "", "data directory")
	serverCmd.Flags().StringVar(&flagListen, "listen", "", "listen address")

	shellCmd := &cobra.Command{
		Use:   "shell",
		Short: "Start the interactive SQL shell",
		RunE:  runShell,
	}
	shellCmd.Flags().StringVar(&flagURL, "url", "http://127.0.0.1:8080", "server base URL")

	root.AddCommand(serverCmd, shellCmd)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func runServer(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(flagConfig)
	if err != nil {
		return err
	}
	if flagData != "" {
		cfg.DataDir = flagData
	}
	if flagListen != "" {
		cfg.ListenAddr = flagListen
	}
	if flagLogLevel != "" {
		cfg.Log.Level = flagLogLevel
	}
	if flagLogJSON {
		cfg.Log.JSON = true
	}

	log.Init(log.Config{Level: cfg.Log.Level, JSONOutput: cfg.Log.JSON})

	eng, err := engine.Open(engine.Config{
		DataDir:      cfg.DataDir,
		PageSize:     cfg.PageSize,
		BufferFrames: cfg.BufferFrames,
	})
	if err != nil {
		return err
	}
	defer eng.Close()

	srv := server.New(eng, server.Config{
		Addr:          cfg.ListenAddr,
		DeadlockSweep: cfg.DeadlockSweep,
		Checkpoint:    cfg.Checkpoint,
	})
	return srv.Run()
}

func runShell(cmd *cobra.Command, args []string) error {
	log.Init(log.Config{Level: "warn"})

	sh, err := shell.New(flagURL)
	if err != nil {
		return err
	}
	return sh.Run()
}
