// Package testpg provides a PostgreSQL pool for integration tests.
//
// TEST_DATABASE_URL (optionally loaded from a .env file next to the test) is
// used when set; otherwise a throwaway postgres container is started with
// testcontainers. Tests are skipped under -short or when neither is
// available.
package testpg

import (
	"context"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

var loadEnvOnce sync.Once

// Pool returns a pool connected to a test database. The pool (and container,
// when one was started) is released through t.Cleanup.
func Pool(t testing.TB) *pgxpool.Pool {
	t.Helper()
	if testing.Short() {
		t.Skip("跳过集成测试")
	}

	loadEnvOnce.Do(func() {
		// .env 不存在时忽略
		_ = godotenv.Load()
	})

	ctx := context.Background()
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		var err error
		dsn, err = startContainer(ctx, t)
		if err != nil {
			t.Skipf("跳过集成测试：无法启动 postgres 容器 (%v)", err)
		}
	}

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Skipf("跳过集成测试：无法连接数据库 (%v)", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		t.Skipf("跳过集成测试：数据库不可用 (%v)", err)
	}
	t.Cleanup(pool.Close)
	return pool
}

func startContainer(ctx context.Context, t testing.TB) (string, error) {
	req := testcontainers.ContainerRequest{
		Image:        "postgres:16-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "postgres",
			"POSTGRES_PASSWORD": "postgres",
			"POSTGRES_DB":       "sqlmapper_test",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		return "", err
	}
	t.Cleanup(func() {
		if err := container.Terminate(context.Background()); err != nil {
			t.Logf("terminate postgres container: %v", err)
		}
	})

	host, err := container.Host(ctx)
	if err != nil {
		return "", err
	}
	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("postgres://postgres:postgres@%s:%s/sqlmapper_test?sslmode=disable", host, port.Port()), nil
}
