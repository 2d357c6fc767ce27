package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/iho/chainledger/internal/adapter/price"
	postgresRepo "github.com/iho/chainledger/internal/adapter/repository/postgres"
	redisRepo "github.com/iho/chainledger/internal/adapter/repository/redis"
	"github.com/iho/chainledger/internal/adapter/source"
	"github.com/iho/chainledger/internal/domain"
	"github.com/iho/chainledger/internal/infrastructure/config"
	"github.com/iho/chainledger/internal/infrastructure/logger"
	"github.com/iho/chainledger/internal/infrastructure/metrics"
	"github.com/iho/chainledger/internal/infrastructure/postgres"
	"github.com/iho/chainledger/internal/infrastructure/redis"
	"github.com/iho/chainledger/internal/usecase"
)

var (
	fixturePath string
	pricesPath  string
	tablesPath  string
	sourceName  string
	fromFlag    string
	toFlag      string
	outputPath  string
	persist     bool
)

func main() {
	// Optional .env for local runs.
	_ = godotenv.Load()

	rootCmd := &cobra.Command{
		Use:   "chainledger-cli",
		Short: "ChainLedger CLI tool",
		Long:  `A command line interface for running offline ledger exports and managing the database.`,
	}

	exportCmd := &cobra.Command{
		Use:   "export <wallet>",
		Short: "Reconcile a wallet's ledger from a raw-entry fixture",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExport(cmd.Context(), args[0])
		},
	}
	exportCmd.Flags().StringVar(&fixturePath, "fixture", "", "JSON file with raw ledger entries (required)")
	exportCmd.Flags().StringVar(&pricesPath, "prices", "", "JSON file with date-keyed unit prices per currency")
	exportCmd.Flags().StringVar(&tablesPath, "tables", "", "YAML overlay for the classification tables")
	exportCmd.Flags().StringVar(&sourceName, "source", "fixture", "source name recorded on fetched entries")
	exportCmd.Flags().StringVar(&fromFlag, "from", "", "start of the export window (RFC 3339)")
	exportCmd.Flags().StringVar(&toFlag, "to", "", "end of the export window (RFC 3339)")
	exportCmd.Flags().StringVarP(&outputPath, "output", "o", "", "write the result to a file instead of stdout")
	exportCmd.Flags().BoolVar(&persist, "persist", false, "save the reconciled ledger to the database")
	_ = exportCmd.MarkFlagRequired("fixture")
	rootCmd.AddCommand(exportCmd)

	ledgerCmd := &cobra.Command{
		Use:   "ledger",
		Short: "Saved ledger operations",
	}
	ledgerCmd.AddCommand(&cobra.Command{
		Use:   "latest <wallet>",
		Short: "Show the wallet's most recent export run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLatest(cmd.Context(), args[0])
		},
	})
	ledgerCmd.AddCommand(&cobra.Command{
		Use:   "verify <wallet>",
		Short: "Check the saved ledger's ordering and validity",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runVerify(cmd.Context(), args[0])
		},
	})
	rootCmd.AddCommand(ledgerCmd)

	tablesCmd := &cobra.Command{
		Use:   "tables",
		Short: "Classification table operations",
	}
	tablesCmd.AddCommand(&cobra.Command{
		Use:   "validate <file>",
		Short: "Validate a YAML table overlay",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := usecase.LoadTablesFile(args[0]); err != nil {
				return err
			}
			fmt.Println("tables OK")
			return nil
		},
	})
	rootCmd.AddCommand(tablesCmd)

	migrateCmd := &cobra.Command{
		Use:   "migrate",
		Short: "Database migration operations",
	}
	migrateCmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			return postgres.RunMigrations(cfg.DatabaseURL, cfg.MigrationsPath)
		},
	})
	migrateCmd.AddCommand(&cobra.Command{
		Use:   "down",
		Short: "Roll back the last migration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			return postgres.RunMigrationsDown(cfg.DatabaseURL, cfg.MigrationsPath)
		},
	})
	rootCmd.AddCommand(migrateCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runExport(ctx context.Context, wallet string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	log := logger.New(logger.Config{Level: cfg.LogLevel, Format: "console"})

	fetcher, err := source.LoadFixtureFile(fixturePath, sourceName)
	if err != nil {
		return err
	}

	var prices usecase.PriceSource
	if pricesPath != "" {
		static, err := price.LoadStaticFile(pricesPath)
		if err != nil {
			return err
		}
		prices = static
	}

	tables := usecase.DefaultTables()
	if tablesPath != "" {
		if tables, err = usecase.LoadTablesFile(tablesPath); err != nil {
			return err
		}
	}

	from, err := parseTimeFlag(fromFlag)
	if err != nil {
		return fmt.Errorf("invalid --from: %w", err)
	}
	to, err := parseTimeFlag(toFlag)
	if err != nil {
		return fmt.Errorf("invalid --to: %w", err)
	}

	m := metrics.New()

	budget := source.NewFixedDelayBudget(cfg.FetchDelay, cfg.FetchCooldown)
	adapter := source.NewOrchestrator(fetcher, budget, log,
		source.WithMaxAttempts(cfg.FetchMaxAttempts),
		source.WithMaxPages(cfg.FetchMaxPages),
		source.WithMetrics(m),
	)

	detector := usecase.NewAmbiguityDetector()
	detector.RewardRateMultiple = cfg.RewardRateMultiple

	var (
		repo  usecase.LedgerRepository
		idGen usecase.IDGenerator
	)
	if persist {
		if err := postgres.RunMigrations(cfg.DatabaseURL, cfg.MigrationsPath); err != nil {
			return err
		}
		pool, err := postgres.NewPool(ctx, cfg.DatabaseURL, cfg.DatabaseMaxConns, cfg.DatabaseMinConns)
		if err != nil {
			return err
		}
		defer pool.Close()

		repo = postgresRepo.NewLedgerRepository(pool, postgresRepo.NewRetrier(log))
		idGen = postgresRepo.NewULIDGenerator()

		// Redis is optional; without it price lookups just go uncached.
		if client, err := redis.NewClient(ctx, cfg.RedisURL); err == nil && prices != nil {
			defer client.Close()
			prices = price.NewCachedPriceSource(prices, redisRepo.NewCache(client), cfg.PriceCacheTTL, log).WithMetrics(m)
		}
	}

	uc := usecase.NewExportUseCase(
		[]usecase.SourceAdapter{adapter},
		prices,
		usecase.NewClassifier(tables),
		detector,
		repo,
		idGen,
		log,
		cfg.ExportTimeout,
	).WithMetrics(m)

	result, err := uc.Export(ctx, wallet, from, to)
	if err != nil {
		var se *domain.SourceError
		if !errors.As(err, &se) || se.Kind != domain.KindPartialResult {
			return err
		}
		fmt.Fprintf(os.Stderr, "warning: %s\n", se.Error())
		for category, cerr := range result.CategoryErrors {
			fmt.Fprintf(os.Stderr, "  %s: %s\n", category, cerr)
		}
	}

	return writeResult(result)
}

func runLatest(ctx context.Context, wallet string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	log := logger.New(logger.Config{Level: cfg.LogLevel, Format: "console"})

	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL, cfg.DatabaseMaxConns, cfg.DatabaseMinConns)
	if err != nil {
		return err
	}
	defer pool.Close()

	repo := postgresRepo.NewLedgerRepository(pool, postgresRepo.NewRetrier(log))

	run, err := repo.GetLatestRun(ctx, wallet)
	if err != nil {
		if errors.Is(err, domain.ErrWalletNotFound) {
			return fmt.Errorf("no saved exports for %s", wallet)
		}
		return err
	}

	fmt.Printf("Run:          %s\n", run.ID)
	fmt.Printf("Finished:     %s\n", run.FinishedAt.Format(time.RFC3339))
	fmt.Printf("Transactions: %d\n", run.Transactions)
	fmt.Printf("Partial:      %v\n", run.Partial)
	return nil
}

func runVerify(ctx context.Context, wallet string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	log := logger.New(logger.Config{Level: cfg.LogLevel, Format: "console"})

	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL, cfg.DatabaseMaxConns, cfg.DatabaseMinConns)
	if err != nil {
		return err
	}
	defer pool.Close()

	repo := postgresRepo.NewLedgerRepository(pool, postgresRepo.NewRetrier(log))

	const pageSize = 1000
	var (
		total    int
		problems int
		prev     *domain.CanonicalTransaction
	)
	for offset := 0; ; offset += pageSize {
		page, err := repo.GetLedger(ctx, wallet, pageSize, offset)
		if err != nil {
			return err
		}
		for _, tx := range page {
			total++
			if prev != nil {
				if tx.Timestamp.Before(prev.Timestamp) ||
					(tx.Timestamp.Equal(prev.Timestamp) && tx.ID < prev.ID) {
					fmt.Printf("out of order: %s after %s\n", tx.ID, prev.ID)
					problems++
				}
			}
			if !domain.ValidTxType(tx.Type) {
				fmt.Printf("unknown type %q on %s\n", tx.Type, tx.ID)
				problems++
			}
			if tx.Tag != "" && !domain.ValidTaxTag(tx.Tag) {
				fmt.Printf("unknown tag %q on %s\n", tx.Tag, tx.ID)
				problems++
			}
			if tx.IsAmbiguous != (len(tx.AmbiguousReasons) > 0) {
				fmt.Printf("ambiguity flag disagrees with reasons on %s\n", tx.ID)
				problems++
			}
			prev = tx
		}
		if len(page) < pageSize {
			break
		}
	}

	if total == 0 {
		return fmt.Errorf("no saved ledger for %s", wallet)
	}
	if problems > 0 {
		return fmt.Errorf("%d problems in %d transactions", problems, total)
	}
	fmt.Printf("%d transactions OK\n", total)
	return nil
}

func parseTimeFlag(v string) (*time.Time, error) {
	if v == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func writeResult(result *usecase.ExportResult) error {
	out := os.Stdout
	if outputPath != "" {
		file, err := os.Create(outputPath)
		if err != nil {
			return err
		}
		defer file.Close()
		out = file
	}

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}
