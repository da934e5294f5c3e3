package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
)

// Environment variables that override the file configuration.
const (
	EnvDBPath   = "GLUCOSE_DB_PATH"
	EnvModelDir = "GLUCOSE_MODEL_DIR"
	EnvListen   = "GLUCOSE_LISTEN"
	EnvUnits    = "GLUCOSE_UNITS"
	EnvTimezone = "GLUCOSE_TIMEZONE"
)

// ReadDotEnv parses a .env file without touching the process environment.
// A missing file yields an empty map.
func ReadDotEnv(path string) (map[string]string, error) {
	vars, err := godotenv.Read(path)
	if errors.Is(err, fs.ErrNotExist) {
		return map[string]string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return vars, nil
}

// ApplyEnv overrides fields from the process environment, then from
// dotenv for variables the environment does not set. The result is
// validated.
func (c *Config) ApplyEnv(dotenv map[string]string) error {
	lookup := func(key string) (string, bool) {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			return v, true
		}
		v, ok := dotenv[key]
		return v, ok && v != ""
	}
	for key, field := range map[string]**string{
		EnvDBPath:   &c.DBPath,
		EnvModelDir: &c.ModelDir,
		EnvListen:   &c.Listen,
		EnvUnits:    &c.Units,
		EnvTimezone: &c.Timezone,
	} {
		if v, ok := lookup(key); ok {
			*field = ptrString(v)
		}
	}
	if err := c.Validate(); err != nil {
		return fmt.Errorf("invalid environment override: %w", err)
	}
	return nil
}

// Resolve loads the configuration file at path (empty for built-in
// defaults) and applies environment overrides, reading dotenvPath when it
// is set.
func Resolve(path, dotenvPath string) (*Config, error) {
	cfg, err := LoadOrDefault(path)
	if err != nil {
		return nil, err
	}
	dotenv := map[string]string{}
	if dotenvPath != "" {
		if dotenv, err = ReadDotEnv(dotenvPath); err != nil {
			return nil, err
		}
	}
	if err := cfg.ApplyEnv(dotenv); err != nil {
		return nil, err
	}
	return cfg, nil
}
