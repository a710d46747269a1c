package ciutil

import (
	"os"
	"testing"

	"log/slog"

	"github.com/phrazzld/jobpipe/internal/redact"
)

// Common environment variable names used across the codebase.
const (
	// CI environment detection variables
	EnvCI            = "CI"
	EnvGitHubActions = "GITHUB_ACTIONS"
	EnvGitLabCI      = "GITLAB_CI"
	EnvJenkinsURL    = "JENKINS_URL"
	EnvCircleCI      = "CIRCLECI"

	// EnvRequireBackends makes missing integration backends fatal in CI.
	EnvRequireBackends = "JOBPIPE_REQUIRE_BACKENDS"

	// Integration backend endpoints
	EnvTestRedisAddr      = "JOBPIPE_TEST_REDIS_ADDR"
	EnvTestMinioEndpoint  = "JOBPIPE_TEST_MINIO_ENDPOINT"
	EnvTestMinioAccessKey = "JOBPIPE_TEST_MINIO_ACCESS_KEY"
	EnvTestMinioSecretKey = "JOBPIPE_TEST_MINIO_SECRET_KEY"
	EnvTestDatabaseURL    = "JOBPIPE_TEST_DATABASE_URL"
)

// IsCI returns true if the current environment is a CI environment.
func IsCI() bool {
	return os.Getenv(EnvCI) != "" ||
		os.Getenv(EnvGitHubActions) != "" ||
		os.Getenv(EnvGitLabCI) != "" ||
		os.Getenv(EnvJenkinsURL) != "" ||
		os.Getenv(EnvCircleCI) != ""
}

// BackendsRequired reports whether missing integration backends should fail
// tests rather than skip them.
func BackendsRequired() bool {
	return IsCI() && os.Getenv(EnvRequireBackends) != ""
}

// GetEnvWithFallbacks returns the value of the first non-empty environment
// variable from envVars, or defaultValue.
func GetEnvWithFallbacks(envVars []string, defaultValue string, logger *slog.Logger) string {
	for i, envVar := range envVars {
		if val := os.Getenv(envVar); val != "" {
			if i > 0 && logger != nil {
				logger.Warn("using fallback environment variable",
					"used_var", envVar,
					"preferred_var", envVars[0],
					"value", redact.String(val))
			}
			return val
		}
	}
	return defaultValue
}

// RequireBackend returns the value of envVar. When it is unset the test is
// skipped, or failed when BackendsRequired.
func RequireBackend(t testing.TB, envVar string) string {
	t.Helper()

	val := os.Getenv(envVar)
	if val != "" {
		return val
	}
	if BackendsRequired() {
		t.Fatalf("%s must be set when %s is enabled in CI", envVar, EnvRequireBackends)
	}
	t.Skipf("%s not set", envVar)
	return ""
}
