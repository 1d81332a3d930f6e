package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Recognized environment keys.
const (
	KeyAppEnv       = "APP_ENV"
	KeyDBEngine     = "DB_ENGINE"
	KeyDBName       = "DB_NAME"
	KeyDBUser       = "DB_USER"
	KeyDBPassword   = "DB_PASSWORD"
	KeyDBHost       = "DB_HOST"
	KeyDBPort       = "DB_PORT"
	KeyServerHost   = "SERVER_HOST"
	KeyServerPort   = "SERVER_PORT"
	KeyAllowedHosts = "ALLOWED_HOSTS"
	KeySecretKey    = "SECRET_KEY"
	KeyDebug        = "DEBUG"
)

// ValidationError reports a configuration value that is missing or malformed.
type ValidationError struct {
	Key    string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config %s: %s", e.Key, e.Reason)
}

func newValidationError(key, format string, args ...any) *ValidationError {
	return &ValidationError{Key: key, Reason: fmt.Sprintf(format, args...)}
}

// Loader reads typed configuration values from the process environment,
// optionally seeded from a .env file. Existing environment variables take
// precedence over values in the file.
type Loader struct{}

// NewLoader loads the given .env file if it exists and returns a Loader.
func NewLoader(envFile string) (*Loader, error) {
	if err := loadDotEnvIfPresent(envFile); err != nil {
		return nil, err
	}
	return &Loader{}, nil
}

func loadDotEnvIfPresent(path string) error {
	if path == "" {
		return nil
	}
	err := godotenv.Load(path)
	if err == nil {
		return nil
	}

	var pathErr *os.PathError
	if errors.As(err, &pathErr) && errors.Is(pathErr.Err, os.ErrNotExist) {
		return nil
	}
	return err
}

// GetString returns the named variable, or def when unset. A required
// variable that is absent or empty fails with a ValidationError.
func (l *Loader) GetString(key, def string, required bool) (string, error) {
	value, ok := lookupTrimmed(key)
	if !ok || value == "" {
		if required {
			return "", newValidationError(key, "required value is missing")
		}
		return def, nil
	}
	return value, nil
}

// GetInt returns the named variable parsed as an integer.
func (l *Loader) GetInt(key string, def int, required bool) (int, error) {
	value, ok := lookupTrimmed(key)
	if !ok || value == "" {
		if required {
			return 0, newValidationError(key, "required value is missing")
		}
		return def, nil
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return 0, newValidationError(key, "not an integer: %q", value)
	}
	return parsed, nil
}

// GetBool returns the named variable parsed as a boolean. Accepted values
// are true/false, 1/0, yes/no and on/off, case-insensitive.
func (l *Loader) GetBool(key string, def bool, required bool) (bool, error) {
	value, ok := lookupTrimmed(key)
	if !ok || value == "" {
		if required {
			return false, newValidationError(key, "required value is missing")
		}
		return def, nil
	}
	switch strings.ToLower(value) {
	case "true", "1", "yes", "on":
		return true, nil
	case "false", "0", "no", "off":
		return false, nil
	}
	return false, newValidationError(key, "not a boolean: %q", value)
}

// GetList returns the named variable split on commas, with surrounding
// whitespace trimmed and empty items dropped.
func (l *Loader) GetList(key string, def []string, required bool) ([]string, error) {
	value, ok := lookupTrimmed(key)
	if !ok || value == "" {
		if required {
			return nil, newValidationError(key, "required value is missing")
		}
		return def, nil
	}
	parts := strings.Split(value, ",")
	items := make([]string, 0, len(parts))
	for _, part := range parts {
		item := strings.TrimSpace(part)
		if item != "" {
			items = append(items, item)
		}
	}
	if required && len(items) == 0 {
		return nil, newValidationError(key, "required list is empty")
	}
	return items, nil
}

func lookupTrimmed(key string) (string, bool) {
	value, ok := os.LookupEnv(key)
	if !ok {
		return "", false
	}
	return strings.TrimSpace(value), true
}
