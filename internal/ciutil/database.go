package ciutil

import (
	"log/slog"
	"testing"
)

// GetTestDatabaseURL returns the database URL for integration tests, checking
// TASKFLOW_TEST_DB_URL, DATABASE_URL and TASKFLOW_DATABASE_URL in that order.
// It returns an empty string when none is set.
func GetTestDatabaseURL(logger *slog.Logger) string {
	return GetEnvWithFallbacks(
		[]string{EnvTestDatabaseURL, EnvDatabaseURL, EnvTaskflowDatabaseURL},
		"",
		logger,
	)
}

// RequireTestDatabaseURL returns the integration database URL. Without one
// the test is skipped locally and fails in CI, where a database is expected.
func RequireTestDatabaseURL(tb testing.TB) string {
	tb.Helper()
	dbURL := GetTestDatabaseURL(nil)
	if dbURL != "" {
		return dbURL
	}
	if IsCI() {
		tb.Fatalf("no database URL in CI; set %s", EnvTestDatabaseURL)
	}
	tb.Skipf("%s not set, skipping integration test", EnvTestDatabaseURL)
	return ""
}
