//go:build integration

package integration

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
)

const (
	postgresImage = "postgres:16-alpine"
	containerUser = "appointments"
	containerPass = "appointments"
	containerDB   = "appointments"
)

// startPostgresContainer starts a throwaway Postgres with the Docker CLI on
// a port Docker chooses. The returned cleanup removes the container.
func startPostgresContainer(ctx context.Context) (string, func(), error) {
	name := fmt.Sprintf("appointments-it-%d", time.Now().UnixNano())
	out, err := docker(ctx, "run", "-d", "--rm",
		"--name", name,
		"-p", "127.0.0.1::5432",
		"-e", "POSTGRES_USER="+containerUser,
		"-e", "POSTGRES_PASSWORD="+containerPass,
		"-e", "POSTGRES_DB="+containerDB,
		postgresImage,
	)
	if err != nil {
		return "", nil, err
	}
	id := out
	cleanup := func() { docker(context.Background(), "rm", "-f", id) }

	// "127.0.0.1:49154"
	addr, err := docker(ctx, "port", id, "5432/tcp")
	if err != nil {
		cleanup()
		return "", nil, err
	}
	addr = strings.SplitN(addr, "\n", 2)[0]

	connStr := fmt.Sprintf("postgres://%s:%s@%s/%s?sslmode=disable", containerUser, containerPass, addr, containerDB)
	if err := awaitPostgres(ctx, connStr, 30*time.Second); err != nil {
		cleanup()
		return "", nil, err
	}
	return connStr, cleanup, nil
}

func docker(ctx context.Context, args ...string) (string, error) {
	out, err := exec.CommandContext(ctx, "docker", args...).CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("docker %s: %w: %s", args[0], err, out)
	}
	return strings.TrimSpace(string(out)), nil
}

// awaitPostgres retries connect-and-SELECT until it succeeds or timeout
// passes.
func awaitPostgres(ctx context.Context, connStr string, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	tick := time.NewTicker(500 * time.Millisecond)
	defer tick.Stop()

	var lastErr error
	for {
		conn, err := pgx.Connect(ctx, connStr)
		if err == nil {
			var one int
			err = conn.QueryRow(ctx, "SELECT 1").Scan(&one)
			conn.Close(context.Background())
			if err == nil {
				return nil
			}
		}
		lastErr = err

		select {
		case <-ctx.Done():
			return fmt.Errorf("postgres not ready after %v: %w", timeout, lastErr)
		case <-tick.C:
		}
	}
}
