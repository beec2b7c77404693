package testinfra

import (
	"context"
	"os"
	"sync"
	"testing"
)

// ConnEnvVar overrides the auto-started container with an existing server.
const ConnEnvVar = "TABLEKIT_TEST_CONN"

var (
	containerOnce sync.Once
	containerConn string
	containerErr  error
)

func getOrStartContainer() (string, error) {
	containerOnce.Do(func() {
		ctr, err := StartPostgres(context.Background())
		if err != nil {
			containerErr = err
			return
		}
		containerConn = ctr.ConnString
	})
	return containerConn, containerErr
}

// ConnectionString returns the test database connection string.
// Priority: TABLEKIT_TEST_CONN env var > auto-started testcontainer > skip test.
func ConnectionString(t *testing.T) string {
	t.Helper()

	if connString := os.Getenv(ConnEnvVar); connString != "" {
		return connString
	}

	connString, err := getOrStartContainer()
	if err != nil {
		t.Skipf("%s not set and Docker unavailable: %v", ConnEnvVar, err)
	}
	return connString
}

// RequireDatabase skips the test in short mode and otherwise returns a
// connection string for a live server.
func RequireDatabase(t *testing.T) string {
	t.Helper()

	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}
	return ConnectionString(t)
}
