// Package cli wires the sunsync commands: sync, watch, and cache
// maintenance.
package cli

import (
	"fmt"
	"os"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	lumberjack "gopkg.in/natefinch/lumberjack.v2"

	"github.com/sunsync/sunsync/internal/config"
)

var (
	// Version, Commit, and Date are set at build time via ldflags.
	Version = "dev"
	Commit  = ""
	Date    = ""
)

var (
	flagConfig  string
	flagVerbose bool
)

var rootCmd = &cobra.Command{
	Use:   "sunsync",
	Short: "Keep a local game catalog and a streaming host in sync",
	Long: `sunsync reconciles a locally edited apps.json game catalog with the
catalog served by a game-streaming host, in either direction, using a
cached snapshot of the last synced state to tell local edits from
remote ones.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf("sunsync version %s\ncommit: %s\ndate: %s\n", Version, Commit, Date))

	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "config file (default ~/.sunsync/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "enable debug logging")

	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(cacheCmd)
	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "sunsync version %s\ncommit: %s\ndate: %s\n", Version, Commit, Date)
		},
	})
}

// configureLogging applies the verbosity flag and, when configured,
// redirects the log to a rotating file so watch mode can run unattended.
func configureLogging(cfg *config.Config) {
	if flagVerbose {
		log.SetLevel(log.DebugLevel)
	}
	if cfg.LogFile != "" {
		log.SetOutput(&lumberjack.Logger{
			Filename:   cfg.LogFile,
			MaxSize:    10, // megabytes
			MaxBackups: 3,
			MaxAge:     28, // days
		})
	}
}
