package config

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Environment variables controlling where configuration comes from.
const (
	EnvPrefix     = "RSVP_"
	EnvConfigFile = "RSVP_CONFIG"
	EnvDotEnvFile = "RSVP_ENV_FILE"
	defaultDotEnv = ".env"
)

// Load builds a Config by layering defaults, optional file, .env and env vars.
// Order of precedence (low -> high):
//  1. defaults (New())
//  2. file (YAML) if RSVP_CONFIG is set
//  3. env (prefix RSVP_), including values from the .env file that are not
//     already set in the real environment
func Load(_ context.Context) (*Config, error) {
	base := New()

	if err := loadDotEnv(); err != nil {
		return nil, err
	}

	k := koanf.New(".")

	if path := os.Getenv(EnvConfigFile); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrLoadConfig, path, err)
		}
	}

	// RSVP_DB_MAX_CONNS -> db_max_conns (flat keys, underscores preserved)
	envProvider := env.ProviderWithValue(EnvPrefix, ".", func(k, v string) (string, interface{}) {
		key := strings.TrimPrefix(strings.ToLower(k), strings.ToLower(EnvPrefix))
		if _, ok := listKeys[key]; ok {
			return key, strings.Split(v, ",")
		}
		return key, v
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("%w: env: %w", ErrLoadConfig, err)
	}

	cfg := *base
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoadConfig, err)
	}

	cfg.CORSAllowedOrigins = trimAll(cfg.CORSAllowedOrigins)
	cfg.AdminEmails = trimAll(cfg.AdminEmails)
	cfg.AdminUsers = trimAll(cfg.AdminUsers)

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// listKeys are comma separated when given through the environment.
var listKeys = map[string]struct{}{
	"admin_users":          {},
	"admin_emails":         {},
	"cors_allowed_origins": {},
}

// loadDotEnv reads RSVP_ENV_FILE (default .env) into the process environment.
// A missing default file is not an error; a missing explicit file is.
func loadDotEnv() error {
	path, explicit := os.LookupEnv(EnvDotEnvFile)
	if !explicit || path == "" {
		path = defaultDotEnv
	}
	if err := godotenv.Load(path); err != nil {
		if !explicit && errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("%w: %s: %w", ErrLoadConfig, path, err)
	}
	return nil
}

// trimAll drops blank entries and surrounding spaces from comma lists.
func trimAll(in []string) []string {
	out := in[:0]
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
