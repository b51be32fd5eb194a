package testutils

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/joho/godotenv"

	"github.com/nfrund/gobychat/internal/config"
)

// ConfigForTests builds a config from the project's optional .env.test file
// with overrides applied on top. The process environment is not consulted,
// so tests behave the same on every machine.
func ConfigForTests(t *testing.T, overrides map[string]string) *config.Config {
	t.Helper()

	vars := map[string]string{}
	if root := projectRoot(t); root != "" {
		if env, err := godotenv.Read(filepath.Join(root, ".env.test")); err == nil {
			vars = env
		}
	}
	for k, v := range overrides {
		vars[k] = v
	}

	cfg, err := config.FromMap(vars)
	if err != nil {
		t.Fatalf("invalid test configuration: %v", err)
	}
	return cfg
}

// EnvTest returns the value of key from .env.test, falling back to the
// process environment.
func EnvTest(t *testing.T, key string) string {
	t.Helper()
	if root := projectRoot(t); root != "" {
		if env, err := godotenv.Read(filepath.Join(root, ".env.test")); err == nil && env[key] != "" {
			return env[key]
		}
	}
	return os.Getenv(key)
}

// projectRoot walks up from the working directory to the go.mod.
func projectRoot(t *testing.T) string {
	t.Helper()
	path, err := os.Getwd()
	if err != nil {
		return ""
	}
	for {
		if _, err := os.Stat(filepath.Join(path, "go.mod")); err == nil {
			return path
		}
		if path == filepath.Dir(path) {
			return ""
		}
		path = filepath.Dir(path)
	}
}
