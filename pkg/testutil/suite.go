package testutil

import (
	"context"
	"sync"
	"testing"

	"github.com/stockscan/stockscan-backend/pkg/database"
	"github.com/stockscan/stockscan-backend/pkg/logger"
)

var (
	// Global test container (shared across all integration tests in a package)
	globalSuite   *IntegrationSuite
	containerOnce sync.Once
	containerErr  error
)

// IntegrationSuite provides a base for integration tests with real PostgreSQL
type IntegrationSuite struct {
	Container *PostgresContainer
	DB        *database.DB
	Logger    *logger.Logger
}

// Migrator creates the schema a test package needs
type Migrator func(ctx context.Context, db *database.DB) error

// RequireIntegrationSuite returns the shared suite, starting the container on
// first use and running migrate against it. The test is skipped in -short mode
// or when no container runtime is available.
//
// Usage:
//
//	func TestApplyBatch_Integration(t *testing.T) {
//	    suite := testutil.RequireIntegrationSuite(t, repository.Migrate)
//	    repo := repository.NewInventoryRepository(suite.DB)
//	    ...
//	}
func RequireIntegrationSuite(t *testing.T, migrate Migrator) *IntegrationSuite {
	t.Helper()
	SkipIfShort(t)

	containerOnce.Do(func() {
		ctx := context.Background()
		container, err := NewPostgresContainer(ctx, DefaultPostgresConfig())
		if err != nil {
			containerErr = err
			return
		}

		log := logger.Nop()
		db, err := database.NewWithDSN(container.DSN, log)
		if err != nil {
			containerErr = err
			return
		}

		if migrate != nil {
			if err := migrate(ctx, db); err != nil {
				containerErr = err
				return
			}
		}

		globalSuite = &IntegrationSuite{Container: container, DB: db, Logger: log}
	})

	if containerErr != nil {
		t.Skipf("integration database unavailable: %v", containerErr)
	}
	return globalSuite
}

// TerminateContainer terminates the shared container.
// Only call this in TestMain after all tests have completed.
func TerminateContainer(ctx context.Context) {
	if globalSuite != nil {
		globalSuite.DB.Close()
		globalSuite.Container.Terminate(ctx)
	}
}
