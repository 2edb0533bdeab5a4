package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/bbmri-cz/custodian-sync/internal/catalog"
	"github.com/bbmri-cz/custodian-sync/internal/config"
	"github.com/bbmri-cz/custodian-sync/internal/migrate"
	"github.com/bbmri-cz/custodian-sync/internal/platform/blaze"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "custodian-sync",
		Short: "Reconcile custodian linkage on FHIR resources in a Blaze store",
	}

	rootCmd.AddCommand(runCmd())
	rootCmd.AddCommand(seedCmd())
	rootCmd.AddCommand(probeCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Probe the store, seed collections, and correct custodian extensions",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := setup()
			if err != nil {
				return err
			}
			ctx := cmd.Context()

			if err := app.probe(ctx); err != nil {
				return err
			}
			if err := app.seed(ctx); err != nil {
				return err
			}
			return app.correct(ctx)
		},
	}
}

func seedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Ensure the collection catalog exists in the store",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := setup()
			if err != nil {
				return err
			}
			ctx := cmd.Context()

			if err := app.probe(ctx); err != nil {
				return err
			}
			return app.seed(ctx)
		},
	}
}

func probeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "probe",
		Short: "Check that the store is reachable",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := setup()
			if err != nil {
				return err
			}
			return app.probe(cmd.Context())
		},
	}
}

// app bundles the pieces every subcommand needs.
type app struct {
	cfg    *config.Config
	cat    catalog.Catalog
	client *blaze.Client
	logger zerolog.Logger
}

func setup() (*app, error) {
	// Logger
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	if os.Getenv("ENV") == "development" {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	logger = logger.With().Str("run_id", uuid.NewString()).Logger()

	// Config
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	// Catalog
	cat, err := catalog.Load(cfg.CatalogFile)
	if err != nil {
		return nil, fmt.Errorf("load catalog: %w", err)
	}
	if err := cat.Validate(); err != nil {
		return nil, fmt.Errorf("invalid catalog: %w", err)
	}

	client, err := blaze.New(blaze.Options{
		BaseURL:  cfg.BlazeURL,
		Username: cfg.BlazeUsername,
		Password: cfg.BlazePassword,
		Token:    cfg.BlazeToken,
		RetryMax: cfg.RetryMax,
		Logger:   logger,
	})
	if err != nil {
		return nil, err
	}

	return &app{cfg: cfg, cat: cat, client: client, logger: logger}, nil
}

func (a *app) probe(ctx context.Context) error {
	wait := time.Duration(a.cfg.ProbeWaitSeconds) * time.Second
	if !a.client.WaitUntilAvailable(ctx, a.cfg.ProbeMaxAttempts, wait) {
		return fmt.Errorf("store at %s is not reachable after %d attempts", a.cfg.BlazeURL, a.cfg.ProbeMaxAttempts)
	}
	a.logger.Info().Str("url", a.cfg.BlazeURL).Msg("store is reachable")
	return nil
}

func (a *app) seed(ctx context.Context) error {
	return migrate.NewSeeder(a.client, a.cat, a.logger).EnsureCollections(ctx)
}

func (a *app) correct(ctx context.Context) error {
	index, err := migrate.BuildOrgIndex(ctx, a.client, a.cfg.PagePathMarker, a.logger)
	if err != nil {
		return err
	}

	corrector := migrate.NewCorrector(migrate.CorrectorOptions{
		Client:             a.client,
		Catalog:            a.cat,
		Index:              index,
		Policy:             migrate.UnmappedPolicy(a.cfg.UnmappedPolicy),
		FallbackCollection: a.cfg.FallbackCollection,
		PathMarker:         a.cfg.PagePathMarker,
		Logger:             a.logger,
	})

	for _, resourceType := range a.cfg.ResourceTypes {
		log := a.logger.With().Str("resource_type", resourceType).Logger()
		log.Info().Msg("correcting custodian references")
		stats, err := corrector.Run(ctx, resourceType)
		if err != nil {
			return fmt.Errorf("correct %s: %w", resourceType, err)
		}
		log.Info().
			Int("pages", stats.Pages).
			Int("records", stats.Records).
			Int("updated", stats.Updated).
			Int("already_correct", stats.AlreadyCorrect).
			Int("conflicts", stats.Conflicts).
			Int("skipped", stats.Skipped).
			Msg("correction finished")
	}
	return nil
}
