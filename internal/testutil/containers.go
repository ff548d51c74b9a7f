// Package testutil starts the backing services used by integration and e2e
// tests: pgvector Postgres, Redis and an S3-compatible RustFS.
package testutil

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/docker/go-connections/nat"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/cloo-solutions/docsage/internal/database"
)

const (
	postgresImage = "pgvector/pgvector:0.8.1-pg18"
	redisImage    = "redis:7-alpine"
	rustFSImage   = "rustfs/rustfs:latest"

	postgresCredential = "docsage"

	// RustFSAccessKey and RustFSSecretKey are the static credentials of the
	// RustFS test container.
	RustFSAccessKey = "rustfsadmin"
	RustFSSecretKey = "rustfsadmin"
)

// service is a started container and its mapped address. Terminate is
// registered with t.Cleanup; calling it earlier is safe.
type service struct {
	Container testcontainers.Container
	Host      string
	Port      string
}

func startService(ctx context.Context, t *testing.T, name string, req testcontainers.ContainerRequest) service {
	t.Helper()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("failed to start %s container: %v", name, err)
	}
	t.Cleanup(func() { _ = testcontainers.TerminateContainer(container) })

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("failed to get %s host: %v", name, err)
	}
	port, err := container.MappedPort(ctx, nat.Port(req.ExposedPorts[0]))
	if err != nil {
		t.Fatalf("failed to get %s port: %v", name, err)
	}

	return service{Container: container, Host: host, Port: port.Port()}
}

// Terminate stops and removes the container.
func (s service) Terminate(ctx context.Context) error {
	return testcontainers.TerminateContainer(s.Container)
}

// PostgresContainer is Postgres with the pgvector extension available.
type PostgresContainer struct {
	service
}

// NewPostgresContainer starts a pgvector Postgres container.
func NewPostgresContainer(ctx context.Context, t *testing.T) *PostgresContainer {
	s := startService(ctx, t, "postgres", testcontainers.ContainerRequest{
		Image:        postgresImage,
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     postgresCredential,
			"POSTGRES_PASSWORD": postgresCredential,
			"POSTGRES_DB":       postgresCredential,
		},
		// the entrypoint restarts the server once after init
		WaitingFor: wait.ForAll(
			wait.ForLog("database system is ready to accept connections").WithOccurrence(2),
			wait.ForListeningPort("5432/tcp"),
		).WithStartupTimeout(60 * time.Second),
	})
	return &PostgresContainer{service: s}
}

// ConnectionString returns a DOCSAGE_DATABASE_URL for the container.
func (pc *PostgresContainer) ConnectionString() string {
	return fmt.Sprintf("postgres://%[1]s:%[1]s@%s:%s/%[1]s?sslmode=disable",
		postgresCredential, pc.Host, pc.Port)
}

// RedisContainer backs the shared dedup store.
type RedisContainer struct {
	service
}

// NewRedisContainer starts a Redis container.
func NewRedisContainer(ctx context.Context, t *testing.T) *RedisContainer {
	s := startService(ctx, t, "redis", testcontainers.ContainerRequest{
		Image:        redisImage,
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor: wait.ForAll(
			wait.ForLog("Ready to accept connections"),
			wait.ForListeningPort("6379/tcp"),
		).WithStartupTimeout(30 * time.Second),
	})
	return &RedisContainer{service: s}
}

// Addr returns host:port for DOCSAGE_REDIS_ADDR.
func (rc *RedisContainer) Addr() string {
	return fmt.Sprintf("%s:%s", rc.Host, rc.Port)
}

// RustFSContainer is the S3-compatible raw page archive.
type RustFSContainer struct {
	service
}

// NewRustFSContainer starts a RustFS container.
func NewRustFSContainer(ctx context.Context, t *testing.T) *RustFSContainer {
	s := startService(ctx, t, "rustfs", testcontainers.ContainerRequest{
		Image:        rustFSImage,
		ExposedPorts: []string{"9000/tcp"},
		Env: map[string]string{
			"RUSTFS_ACCESS_KEY": RustFSAccessKey,
			"RUSTFS_SECRET_KEY": RustFSSecretKey,
		},
		WaitingFor: wait.ForListeningPort("9000/tcp").WithStartupTimeout(30 * time.Second),
	})
	return &RustFSContainer{service: s}
}

// Endpoint returns the S3 endpoint URL.
func (rc *RustFSContainer) Endpoint() string {
	return fmt.Sprintf("http://%s:%s", rc.Host, rc.Port)
}

// NewTestPool applies the migrations in migrationsDir with the same
// migrator serve uses, then returns a pool closed on test cleanup.
func NewTestPool(ctx context.Context, t *testing.T, pc *PostgresContainer, migrationsDir string) *pgxpool.Pool {
	t.Helper()

	if _, _, err := database.MigrateUp(pc.ConnectionString(), migrationsDir); err != nil {
		t.Fatalf("failed to run migrations: %v", err)
	}

	pool, err := database.NewPool(ctx, database.Config{URL: pc.ConnectionString(), MaxConns: 4, MinConns: 1})
	if err != nil {
		t.Fatalf("failed to create pool: %v", err)
	}
	t.Cleanup(pool.Close)

	return pool
}
