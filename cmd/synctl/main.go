package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"quantity-sync-service/internal/clients/shopify"
	"quantity-sync-service/internal/config"
	"quantity-sync-service/internal/models"
	"quantity-sync-service/internal/report"
	"quantity-sync-service/internal/repository"
	"quantity-sync-service/internal/secrets"
	"quantity-sync-service/internal/services"
	"quantity-sync-service/internal/storage"
)

// app holds what every subcommand needs
type app struct {
	cfg      *config.Config
	registry *config.StoreRegistry
	sync     *services.SyncService
	log      *logrus.Entry
	closers  []func() error
}

func main() {
	_ = godotenv.Load()

	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var (
		a       app
		verbose bool
	)

	root := &cobra.Command{
		Use:          "synctl",
		Short:        "Reconcile catalog stock against quantity files",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.init(cmd, verbose)
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			for _, c := range a.closers {
				_ = c()
			}
		},
	}
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log at debug level")

	root.AddCommand(newStoresCommand(&a), newCheckCommand(&a), newSyncCommand(&a))
	return root
}

func (a *app) init(cmd *cobra.Command, verbose bool) error {
	a.cfg = config.Load()

	logger := logrus.New()
	logger.SetOutput(cmd.ErrOrStderr())
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	logger.SetLevel(logrus.InfoLevel)
	if verbose {
		logger.SetLevel(logrus.DebugLevel)
	}
	a.log = logger.WithField("service", "synctl")

	registry, err := config.LoadStores(a.cfg.StoresConfigPath, a.cfg.ShopifyAPIVersion)
	if err != nil {
		return err
	}
	a.registry = registry

	var secretManager *secrets.Manager
	if a.cfg.GCPProjectID != "" {
		secretManager, err = secrets.NewGCPSecretManager(cmd.Context(), a.cfg.GCPProjectID)
		if err != nil {
			return fmt.Errorf("failed to initialize secret manager: %w", err)
		}
		a.closers = append(a.closers, secretManager.Close)
	}

	files, err := storage.NewLocalStore(a.cfg.ResourcesDir)
	if err != nil {
		return err
	}

	gateways := shopify.NewFactory(registry, secrets.NewTokenResolver(secretManager), shopify.FactoryOptions{
		RateLimit:  a.cfg.ShopifyRateLimit,
		Timeout:    a.cfg.ShopifyTimeout,
		MaxRetries: a.cfg.SyncMaxRetries,
		RetryDelay: a.cfg.SyncRetryDelay,
	}, a.log)

	a.sync = services.NewSyncService(
		files,
		repository.NewMemorySourceFileRepository(),
		repository.NewMemorySyncRunRepository(10),
		gateways,
		services.NewCatalogResolver(a.cfg.SyncLookupConcurrency, a.log),
		services.NewStoreSemaphore(0),
		services.SyncServiceConfig{
			BatchSize:          a.cfg.SyncBatchSize,
			SubmitConcurrency:  a.cfg.SyncSubmitConcurrency,
			BatchTimeout:       a.cfg.SyncBatchTimeout,
			Reason:             a.cfg.AdjustmentReason,
			ReferenceURIPrefix: a.cfg.ReferenceURIPrefix,
		},
		a.log,
	)
	a.sync.SetChangeLogWriter(report.NewChangeLog(a.cfg.LogsDir, a.log))
	return nil
}

func (a *app) store(id string) (models.StoreContext, error) {
	store, ok := a.registry.Get(id)
	if !ok {
		return models.StoreContext{}, fmt.Errorf("%w: %s", models.ErrUnknownStore, id)
	}
	return store.Context(), nil
}

func newStoresCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "stores",
		Short: "List configured stores",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			stores := a.registry.List()
			out := make([]map[string]string, 0, len(stores))
			for _, s := range stores {
				out = append(out, map[string]string{
					"id":         s.ID,
					"title":      s.Title,
					"shopDomain": s.ShopDomain(),
					"apiVersion": s.APIVersion,
				})
			}
			return printJSON(cmd.OutOrStdout(), out)
		},
	}
}

func newCheckCommand(a *app) *cobra.Command {
	var storeID string

	cmd := &cobra.Command{
		Use:     "check <file>",
		Short:   "Report whether a stored file is ready to sync",
		Args:    cobra.ExactArgs(1),
		Example: `  synctl check stock_07-03-2025_14-05-09.csv --store af-milano`,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := a.store(storeID)
			if err != nil {
				return err
			}
			result, err := a.sync.Check(cmd.Context(), store, args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), result)
		},
	}
	cmd.Flags().StringVarP(&storeID, "store", "s", "", "Store ID from the store registry")
	_ = cmd.MarkFlagRequired("store")
	return cmd
}

func newSyncCommand(a *app) *cobra.Command {
	var (
		storeID string
		mode    string
		dryRun  bool
	)

	cmd := &cobra.Command{
		Use:   "sync <file>",
		Short: "Reconcile a store against a stored file",
		Args:  cobra.ExactArgs(1),
		Example: `  synctl sync stock.csv --store af-milano                  # adjust
  synctl sync stock.csv --store af-milano --mode replace --dry-run
  synctl sync stock.csv --store af-milano --mode tabula_rasa`,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := a.store(storeID)
			if err != nil {
				return err
			}
			syncMode, err := models.ParseSyncMode(mode)
			if err != nil {
				return err
			}

			result, err := a.sync.Sync(cmd.Context(), store, args[0], services.SyncOptions{
				Mode:   syncMode,
				DryRun: dryRun,
			})
			if result != nil {
				if printErr := printJSON(cmd.OutOrStdout(), result); printErr != nil {
					return printErr
				}
			}
			if err != nil {
				return err
			}
			if result.HasFailedBatches() {
				return fmt.Errorf("%d of %d batches failed", len(result.FailedBatches), result.Stats.Batches)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&storeID, "store", "s", "", "Store ID from the store registry")
	cmd.Flags().StringVarP(&mode, "mode", "m", string(models.SyncModeAdjust), "Sync mode: tabula_rasa, adjust or replace")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Plan the changes without submitting them")
	_ = cmd.MarkFlagRequired("store")
	return cmd
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
