package cli

import (
	"fmt"
	"time"

	"github.com/charmbracelet/huh"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/sunsync/sunsync/internal/baseline"
	"github.com/sunsync/sunsync/internal/catalog"
	"github.com/sunsync/sunsync/internal/config"
	"github.com/sunsync/sunsync/internal/engine"
	"github.com/sunsync/sunsync/internal/remote"
	"github.com/sunsync/sunsync/internal/syncer"
)

var (
	flagEndpoint    string
	flagUsername    string
	flagPassword    string
	flagAppsFile    string
	flagCache       string
	flagInsecure    bool
	flagDryRun      bool
	flagTwoWay      bool
	flagResolution  string
	flagInteractive bool
	flagClearCache  bool
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Run one synchronization pass",
	Long: `Fetch the host's catalog, compare it against the local apps file and
the cached snapshot of the last sync, and apply the resulting plan in
both directions. Without --two-way only local entries are pushed.`,
	RunE: runSync,
}

func init() {
	syncCmd.Flags().StringVar(&flagEndpoint, "endpoint", "", "base URL of the streaming host")
	syncCmd.Flags().StringVar(&flagUsername, "username", "", "host API username")
	syncCmd.Flags().StringVar(&flagPassword, "password", "", "host API password")
	syncCmd.Flags().StringVar(&flagAppsFile, "apps-file", "", "local catalog file to sync")
	syncCmd.Flags().StringVar(&flagCache, "cache", "", "baseline cache DSN (path, memory://, or postgres://)")
	syncCmd.Flags().BoolVar(&flagInsecure, "insecure-tls", true, "skip TLS certificate verification")
	syncCmd.Flags().BoolVarP(&flagDryRun, "dry-run", "n", false, "compute and print the plan without writing anything")
	syncCmd.Flags().BoolVar(&flagTwoWay, "two-way", false, "pull remote changes into the local file as well")
	syncCmd.Flags().StringVar(&flagResolution, "conflict-resolution", "", "conflict policy: manual, local-wins, or server-wins")
	syncCmd.Flags().BoolVarP(&flagInteractive, "interactive", "i", false, "prompt for each unresolved conflict")
	syncCmd.Flags().BoolVar(&flagClearCache, "clear-cache", false, "discard the baseline cache before syncing")
}

func runSync(cmd *cobra.Command, args []string) error {
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

	if flagClearCache && !flagDryRun {
		// A dry run writes nothing, the baseline included.
		if err := store.Clear(); err != nil {
			return fmt.Errorf("clear baseline cache: %w", err)
		}
		log.Info("baseline cache cleared")
	}

	s, err := buildSyncer(fs, cfg, store)
	if err != nil {
		return err
	}
	summary, err := s.Run(cmd.Context())
	if err != nil {
		return err
	}
	return reportSummary(cmd, summary)
}

// loadMergedConfig reads the config file and layers any explicitly set
// flags on top.
func loadMergedConfig(cmd *cobra.Command, fs afero.Fs) (*config.Config, error) {
	cfg, err := config.Load(fs, flagConfig)
	if err != nil {
		return nil, err
	}
	if cmd.Flags().Changed("endpoint") {
		cfg.Endpoint = flagEndpoint
	}
	if cmd.Flags().Changed("username") {
		cfg.Username = flagUsername
	}
	if cmd.Flags().Changed("password") {
		cfg.Password = flagPassword
	}
	if cmd.Flags().Changed("apps-file") {
		cfg.AppsFile = flagAppsFile
	}
	if cmd.Flags().Changed("cache") {
		cfg.Cache = flagCache
	}
	if cmd.Flags().Changed("insecure-tls") {
		cfg.InsecureTLS = &flagInsecure
	}
	if cmd.Flags().Changed("two-way") {
		cfg.TwoWay = flagTwoWay
	}
	if cmd.Flags().Changed("conflict-resolution") {
		cfg.ConflictResolution = flagResolution
	}
	return cfg, nil
}

func buildSyncer(fs afero.Fs, cfg *config.Config, store baseline.Store) (*syncer.Syncer, error) {
	policy, err := engine.ParsePolicy(cfg.ConflictResolution)
	if err != nil {
		return nil, err
	}
	client := remote.NewHTTPClient(remote.Options{
		BaseURL:     cfg.Endpoint,
		Username:    cfg.Username,
		Password:    cfg.Password,
		InsecureTLS: cfg.Insecure(),
		Timeout:     cfg.Timeout.Std(),
		MaxAttempts: cfg.MaxAttempts,
		BaseDelay:   cfg.RetryBase.Std(),
		MaxDelay:    cfg.RetryMax.Std(),
	})
	opts := syncer.Options{
		Catalog:  catalog.NewStore(fs, cfg.AppsFile),
		Remote:   client,
		Baseline: store,
		Policy:   policy,
		TwoWay:   cfg.TwoWay,
		DryRun:   flagDryRun,
	}
	if flagInteractive {
		opts.ResolvePrompt = huhResolvePrompt
	}
	return syncer.New(opts)
}

// huhResolvePrompt walks the user through one conflict. Choosing "skip"
// leaves the conflict unresolved for this run.
func huhResolvePrompt(conflict engine.Conflict) (engine.Policy, error) {
	var lines string
	for _, f := range conflict.Fields {
		lines += fmt.Sprintf("  %s: local=%s remote=%s\n", f.Field, f.Local, f.Remote)
	}
	var choice string
	err := huh.NewSelect[string]().
		Title(fmt.Sprintf("Conflict on %q", conflict.Name)).
		Description(lines).
		Options(
			huh.NewOption("Keep local version", "local-wins"),
			huh.NewOption("Keep server version", "server-wins"),
			huh.NewOption("Skip", "manual"),
		).
		Value(&choice).
		Run()
	if err != nil {
		return engine.PolicyManual, err
	}
	return engine.ParsePolicy(choice)
}

func reportSummary(cmd *cobra.Command, summary *syncer.Summary) error {
	out := cmd.OutOrStdout()
	fmt.Fprint(out, summary.Plan.Render())
	if summary.DryRun {
		fmt.Fprintln(out, "dry run: nothing was written")
	} else {
		fmt.Fprintf(out, "applied: %d to remote, %d to local", summary.RemoteApplied, summary.LocalApplied)
		if summary.Unresolved > 0 {
			fmt.Fprintf(out, ", %d conflicts left unresolved", summary.Unresolved)
		}
		fmt.Fprintln(out)
	}
	if len(summary.Errors) > 0 {
		for _, msg := range summary.ErrorMessages() {
			fmt.Fprintf(cmd.ErrOrStderr(), "error: %s\n", msg)
		}
		return fmt.Errorf("sync finished with %d errors", len(summary.Errors))
	}
	return nil
}

// syncDebounce is how long watch mode waits after the last file event
// before kicking off a pass.
const syncDebounce = 500 * time.Millisecond
