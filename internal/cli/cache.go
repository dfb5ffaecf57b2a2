package cli

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/sunsync/sunsync/internal/baseline"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect or reset the baseline cache",
}

var cacheShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the cached snapshot of the last successful sync",
	RunE:  runCacheShow,
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Discard the baseline cache",
	Long: `Discard the cached snapshot. The next sync runs without an ancestor,
so entries present on both sides are compared directly and any
difference becomes an update rather than a tracked edit.`,
	RunE: runCacheClear,
}

func init() {
	cacheCmd.PersistentFlags().StringVar(&flagCache, "cache", "", "baseline cache DSN (path, memory://, or postgres://)")
	cacheCmd.AddCommand(cacheShowCmd)
	cacheCmd.AddCommand(cacheClearCmd)
}

func openBaselineStore(cmd *cobra.Command, fs afero.Fs) (baseline.Store, error) {
	cfg, err := loadMergedConfig(cmd, fs)
	if err != nil {
		return nil, err
	}
	configureLogging(cfg)
	return baseline.BuildStoreFromDSN(fs, cfg.Cache)
}

func runCacheShow(cmd *cobra.Command, args []string) error {
	store, err := openBaselineStore(cmd, afero.NewOsFs())
	if err != nil {
		return err
	}
	defer baseline.Close(store)

	snap, err := store.Load()
	if err != nil {
		return err
	}
	if snap == nil {
		fmt.Fprintln(cmd.OutOrStdout(), "no baseline cache")
		return nil
	}
	if err := snap.Verify(); err != nil {
		fmt.Fprintf(cmd.OutOrStdout(), "baseline cache is corrupt: %v\n", err)
		return nil
	}
	data, err := json.MarshalIndent(snap, "", "    ")
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "synced %s\n%s\n",
		time.UnixMilli(snap.Timestamp).Format(time.RFC3339), data)
	return nil
}

func runCacheClear(cmd *cobra.Command, args []string) error {
	store, err := openBaselineStore(cmd, afero.NewOsFs())
	if err != nil {
		return err
	}
	defer baseline.Close(store)

	if err := store.Clear(); err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), "baseline cache cleared")
	return nil
}
