package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

const (
	EnvUserID        = "THREADS_USER_ID"
	EnvAccessToken   = "ACCESS_TOKEN"
	EnvAPIVersion    = "GRAPH_API_VERSION"
	EnvTelegramToken = "TELEGRAM_TOKEN"
	EnvDryRun        = "THREADPOST_DRY_RUN"
)

// LoadEnvFiles loads .env then .env.local from dir into the process
// environment, later files overriding earlier ones. Missing files are skipped.
// It returns the files that were loaded.
func LoadEnvFiles(dir string) ([]string, error) {
	var loaded []string
	for _, name := range []string{".env", ".env.local"} {
		file := filepath.Join(dir, name)
		if _, err := os.Stat(file); err != nil {
			continue
		}
		if err := godotenv.Overload(file); err != nil {
			return loaded, err
		}
		loaded = append(loaded, file)
	}
	return loaded, nil
}

// ApplyEnv overlays environment values on cfg. Empty variables are ignored.
func ApplyEnv(cfg *Config, getenv func(string) string) {
	if getenv == nil {
		getenv = os.Getenv
	}
	set := func(p *string, key string) {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			*p = v
		}
	}
	set(&cfg.Threads.UserID, EnvUserID)
	set(&cfg.Threads.AccessToken, EnvAccessToken)
	set(&cfg.Threads.APIVersion, EnvAPIVersion)
	set(&cfg.Notifier.Token, EnvTelegramToken)

	if v := strings.TrimSpace(getenv(EnvDryRun)); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Dev.DryRun = b
		}
	}
}
