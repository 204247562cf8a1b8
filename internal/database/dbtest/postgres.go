//go:build integration

package dbtest

import (
	"context"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/uptrace/bun"

	"ms-speakers/internal/config"
	"ms-speakers/internal/database"
	"ms-speakers/internal/database/migrations"
	"ms-speakers/internal/logger"
)

// NewPostgres starts a throwaway Postgres container and applies the SQL
// migrations found in migrationsDir.
func NewPostgres(t *testing.T, migrationsDir string) *bun.DB {
	t.Helper()
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "postgres:16-alpine",
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     "speakers",
				"POSTGRES_PASSWORD": "speakers",
				"POSTGRES_DB":       "speakers",
			},
			WaitingFor: wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		t.Fatalf("Failed to start Postgres container: %v", err)
	}
	t.Cleanup(func() { container.Terminate(ctx) })

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("Failed to get container host: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		t.Fatalf("Failed to get mapped port: %v", err)
	}

	log := logger.NewNop()
	bunDB, err := database.Connect(ctx, config.DatabaseConfig{
		Host:           host,
		Port:           port.Port(),
		Username:       "speakers",
		Password:       "speakers",
		Database:       "speakers",
		SSLMode:        "disable",
		MaxOpenConns:   10,
		MaxIdleConns:   10,
		MaxLifetime:    time.Minute,
		ConnectRetries: 5,
	}, log)
	if err != nil {
		t.Fatalf("Failed to connect to Postgres: %v", err)
	}
	t.Cleanup(func() { bunDB.Close() })

	if err := migrations.NewRunner(bunDB, migrationsDir, log).Up(); err != nil {
		t.Fatalf("Failed to run migrations: %v", err)
	}
	return bunDB
}
