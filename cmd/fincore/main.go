package main

import (
	"context"
	"database/sql"
	"log/slog"
	"os"
	"time"

	portsrepo "github.com/crestfx/fincore/internal/core/ports/repositories"
	portssvc "github.com/crestfx/fincore/internal/core/ports/services"
	"github.com/crestfx/fincore/internal/core/services"
	"github.com/crestfx/fincore/internal/platform/config"
	"github.com/crestfx/fincore/internal/platform/logging"
	"github.com/crestfx/fincore/internal/repositories/database/pgsql"
	"github.com/crestfx/fincore/pkg/database"
	"github.com/shopspring/decimal"

	migrate "github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/jackc/pgx/v5/stdlib"
)

func main() {
	// Initialize structured logger
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Error("Failed to load config", slog.String("error", err.Error()))
		os.Exit(1)
	}

	dbPool, err := database.NewPgxPool(context.Background(), cfg.DatabaseURL)
	if err != nil {
		logger.Error("Failed to initialize database pool", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer database.ClosePgxPool(dbPool)
	logger.Info("Database connection pool established.")

	if err := runMigrations(logger, cfg.DatabaseURL); err != nil {
		os.Exit(1)
	}

	repos := pgsql.NewRepositoryContainer(dbPool)
	svcs := services.NewServiceContainer(repos, cfg, nil, nil)
	defer svcs.Audit.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()
	ctx = logging.WithLogger(ctx, logger)

	if err := runConsistencySweep(ctx, logger, repos, svcs); err != nil {
		logger.Error("Consistency sweep failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
	logger.Info("Consistency sweep completed.")
}

func runMigrations(logger *slog.Logger, databaseURL string) error {
	logger.Info("Running database migrations...")

	migrationDB, err := sql.Open("pgx", databaseURL)
	if err != nil {
		logger.Error("Failed to open database connection for migrations", slog.String("error", err.Error()))
		return err
	}
	defer func() {
		if cerr := migrationDB.Close(); cerr != nil {
			logger.Error("Error closing migration DB connection", slog.String("error", cerr.Error()))
		}
	}()
	if err := migrationDB.Ping(); err != nil {
		logger.Error("Failed to ping database for migrations", slog.String("error", err.Error()))
		return err
	}

	driver, err := postgres.WithInstance(migrationDB, &postgres.Config{})
	if err != nil {
		logger.Error("Could not create postgres driver instance for migrations", slog.String("error", err.Error()))
		return err
	}

	m, err := migrate.NewWithDatabaseInstance("file://migrations", "postgres", driver)
	if err != nil {
		logger.Error("Could not create migrate instance", slog.String("error", err.Error()))
		return err
	}

	err = m.Up()
	if err != nil && err != migrate.ErrNoChange {
		logger.Error("Failed to apply migrations", slog.String("error", err.Error()))
		return err
	}
	if err == migrate.ErrNoChange {
		logger.Info("No new migrations to apply.")
	} else {
		logger.Info("Database migrations applied successfully.")
	}

	sourceErr, dbErr := m.Close()
	if sourceErr != nil {
		logger.Error("Migration source error", slog.String("error", sourceErr.Error()))
		return sourceErr
	}
	if dbErr != nil {
		logger.Error("Migration database error", slog.String("error", dbErr.Error()))
		return dbErr
	}
	return nil
}

// runConsistencySweep cross-checks every tenant's books: the trial balance
// must balance per currency, and each account's persisted balance must match
// the entry-derived net. Findings are logged, not repaired.
func runConsistencySweep(ctx context.Context, logger *slog.Logger, repos *portsrepo.Container, svcs *portssvc.Container) error {
	tenants, err := repos.Tenants.ListTenants(ctx)
	if err != nil {
		return err
	}
	asOf := time.Now().UTC()

	findings := 0
	for _, tenant := range tenants {
		rows, err := svcs.Ledger.TrialBalance(ctx, tenant.TenantID, asOf)
		if err != nil {
			return err
		}

		debitsByCurrency := map[string]decimal.Decimal{}
		creditsByCurrency := map[string]decimal.Decimal{}
		for _, row := range rows {
			debitsByCurrency[row.CurrencyCode] = debitsByCurrency[row.CurrencyCode].Add(row.DebitSum)
			creditsByCurrency[row.CurrencyCode] = creditsByCurrency[row.CurrencyCode].Add(row.CreditSum)

			account, err := repos.Accounts.FindAccountByID(ctx, row.AccountID)
			if err != nil {
				return err
			}
			if !account.Balance.Equal(row.Net) {
				findings++
				logger.Warn("account balance drifted from ledger",
					slog.String("tenantID", tenant.TenantID),
					slog.String("accountID", row.AccountID),
					slog.String("persisted", account.Balance.String()),
					slog.String("derived", row.Net.String()))
			}
		}
		for currency, debits := range debitsByCurrency {
			if !debits.Equal(creditsByCurrency[currency]) {
				findings++
				logger.Warn("trial balance does not balance",
					slog.String("tenantID", tenant.TenantID),
					slog.String("currency", currency),
					slog.String("debits", debits.String()),
					slog.String("credits", creditsByCurrency[currency].String()))
			}
		}
	}

	logger.Info("Consistency sweep results",
		slog.Int("tenants", len(tenants)), slog.Int("findings", findings))
	return nil
}
