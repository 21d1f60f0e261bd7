// Package config resolves the wires CLI defaults from the environment.
//
// Values come from WIRES_* environment variables, falling back to the
// same keys in .env files, falling back to built-in defaults. Command-line
// flags override all of them.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Environment keys.
const (
	EnvFormat  = "WIRES_FORMAT"
	EnvDB      = "WIRES_DB"
	EnvVerbose = "WIRES_VERBOSE"
)

// Output formats.
const (
	FormatText = "text"
	FormatJSON = "json"
)

// Config holds the CLI defaults.
type Config struct {
	// Format is the output format, text or json.
	Format string

	// DB is the journal path. Empty means no journal.
	DB string

	// Verbose enables debug logging.
	Verbose bool
}

// Default returns the built-in defaults.
func Default() Config {
	return Config{Format: FormatText}
}

// Load resolves the configuration from the process environment and the
// given .env files (".env" when none is given). Missing files are skipped.
// Files never override variables already set in the environment, and an
// earlier file wins over a later one.
func Load(files ...string) (Config, error) {
	if len(files) == 0 {
		files = []string{".env"}
	}

	fileEnv := make(map[string]string)
	for _, f := range files {
		vals, err := godotenv.Read(f)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return Config{}, fmt.Errorf("read %s: %w", f, err)
		}
		for k, v := range vals {
			if _, seen := fileEnv[k]; !seen {
				fileEnv[k] = v
			}
		}
	}

	return FromLookup(func(key string) (string, bool) {
		if v, ok := os.LookupEnv(key); ok {
			return v, true
		}
		v, ok := fileEnv[key]
		return v, ok
	})
}

// FromLookup resolves the configuration from lookup, which reports the
// value of an environment key. Empty values fall back to the default.
func FromLookup(lookup func(string) (string, bool)) (Config, error) {
	cfg := Default()

	if v, ok := lookup(EnvFormat); ok && v != "" {
		format := strings.ToLower(strings.TrimSpace(v))
		if format != FormatText && format != FormatJSON {
			return Config{}, fmt.Errorf("%s: invalid format %q (must be text or json)", EnvFormat, v)
		}
		cfg.Format = format
	}
	if v, ok := lookup(EnvDB); ok && v != "" {
		cfg.DB = v
	}
	if v, ok := lookup(EnvVerbose); ok && v != "" {
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return Config{}, fmt.Errorf("%s: %w", EnvVerbose, err)
		}
		cfg.Verbose = b
	}
	return cfg, nil
}
