package cli

import (
	"fmt"
	"os/signal"
	"syscall"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/sunsync/sunsync/internal/baseline"
	"github.com/sunsync/sunsync/internal/watcher"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Sync continuously whenever the local catalog changes",
	Long: `Run an initial sync pass, then watch the local apps file and re-sync
after every change until interrupted.`,
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().StringVar(&flagEndpoint, "endpoint", "", "base URL of the streaming host")
	watchCmd.Flags().StringVar(&flagUsername, "username", "", "host API username")
	watchCmd.Flags().StringVar(&flagPassword, "password", "", "host API password")
	watchCmd.Flags().StringVar(&flagAppsFile, "apps-file", "", "local catalog file to sync")
	watchCmd.Flags().StringVar(&flagCache, "cache", "", "baseline cache DSN (path, memory://, or postgres://)")
	watchCmd.Flags().BoolVar(&flagInsecure, "insecure-tls", true, "skip TLS certificate verification")
	watchCmd.Flags().BoolVar(&flagTwoWay, "two-way", false, "pull remote changes into the local file as well")
	watchCmd.Flags().StringVar(&flagResolution, "conflict-resolution", "", "conflict policy: manual, local-wins, or server-wins")
}

func runWatch(cmd *cobra.Command, args []string) error {
	fs := afero.NewOsFs()
	cfg, err := loadMergedConfig(cmd, fs)
	if err != nil {
		return err
	}
	configureLogging(cfg)
	if err := cfg.Validate(); err != nil {
		return err
	}

	store, err := baseline.BuildStoreFromDSN(fs, cfg.Cache)
	if err != nil {
		return err
	}
	defer baseline.Close(store)

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	w, err := watcher.New(cfg.AppsFile, syncDebounce, log.StandardLogger())
	if err != nil {
		return err
	}
	defer w.Close()

	runOnce := func() {
		s, err := buildSyncer(fs, cfg, store)
		if err != nil {
			log.WithError(err).Error("sync setup failed")
			return
		}
		summary, err := s.Run(ctx)
		if err != nil {
			log.WithError(err).Error("sync pass failed")
			return
		}
		if err := reportSummary(cmd, summary); err != nil {
			log.WithError(err).Warn("sync pass finished with errors")
		}
	}

	runOnce()
	fmt.Fprintf(cmd.OutOrStdout(), "watching %s\n", cfg.AppsFile)
	for {
		select {
		case <-ctx.Done():
			log.Info("shutting down")
			return nil
		case <-w.Events():
			// A sync that rewrites the apps file retriggers the watcher;
			// the pass is idempotent, so the extra run is a no-op.
			runOnce()
		}
	}
}
