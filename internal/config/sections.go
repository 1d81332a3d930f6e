package config

import (
	"errors"

	"github.com/go-playground/validator/v10"
)

// Environment names accepted for APP_ENV.
const (
	EnvDevelopment = "development"
	EnvStaging     = "staging"
	EnvProduction  = "production"
)

const minSecretKeyLength = 32

var validate = validator.New(validator.WithRequiredStructEnabled())

// DatabaseConfig is the validated database section of the environment.
type DatabaseConfig struct {
	Engine   string `validate:"required"`
	Name     string `validate:"required"`
	User     string
	Password string
	Host     string
	Port     int `validate:"min=1,max=65535"`
}

// EmbeddedEngine reports whether the engine is a file-backed embedded
// database that needs no credentials.
func (c DatabaseConfig) EmbeddedEngine() bool {
	switch c.Engine {
	case "sqlite3", "django.db.backends.sqlite3":
		return true
	}
	return false
}

// Validate checks the database section invariants. Server-backed engines
// require user, password and host.
func (c DatabaseConfig) Validate() error {
	if err := validate.Struct(c); err != nil {
		return sectionError("DB", err)
	}
	if c.EmbeddedEngine() {
		return nil
	}
	if c.User == "" {
		return newValidationError(KeyDBUser, "required for engine %q", c.Engine)
	}
	if c.Password == "" {
		return newValidationError(KeyDBPassword, "required for engine %q", c.Engine)
	}
	if c.Host == "" {
		return newValidationError(KeyDBHost, "required for engine %q", c.Engine)
	}
	return nil
}

// ServerConfig is the validated web server section of the environment.
type ServerConfig struct {
	Host         string `validate:"required"`
	Port         int    `validate:"min=1,max=65535"`
	AllowedHosts []string
}

// Validate checks the server section invariants.
func (c ServerConfig) Validate() error {
	if err := validate.Struct(c); err != nil {
		return sectionError("SERVER", err)
	}
	return nil
}

// SecurityConfig is the validated security section of the environment.
type SecurityConfig struct {
	SecretKey   string `validate:"required"`
	Debug       bool
	Environment string `validate:"required,oneof=development staging production"`
}

// Validate checks the security section invariants: the secret must be long
// enough and DEBUG must be off in production.
func (c SecurityConfig) Validate() error {
	if err := validate.Struct(c); err != nil {
		return sectionError("SECURITY", err)
	}
	if len(c.SecretKey) < minSecretKeyLength {
		return newValidationError(KeySecretKey, "must be at least %d characters", minSecretKeyLength)
	}
	if c.Environment == EnvProduction && c.Debug {
		return newValidationError(KeyDebug, "must be false when APP_ENV is production")
	}
	return nil
}

func sectionError(section string, err error) error {
	var invalid validator.ValidationErrors
	if errors.As(err, &invalid) && len(invalid) > 0 {
		first := invalid[0]
		return newValidationError(section+"_"+first.Field(), "failed %q validation", first.Tag())
	}
	return &ValidationError{Key: section, Reason: err.Error()}
}

// DatabaseConfig assembles and validates the database section.
func (l *Loader) DatabaseConfig() (DatabaseConfig, error) {
	engine, err := l.GetString(KeyDBEngine, "django.db.backends.postgresql", false)
	if err != nil {
		return DatabaseConfig{}, err
	}
	name, err := l.GetString(KeyDBName, "jaston", false)
	if err != nil {
		return DatabaseConfig{}, err
	}
	user, err := l.GetString(KeyDBUser, "", false)
	if err != nil {
		return DatabaseConfig{}, err
	}
	password, err := l.GetString(KeyDBPassword, "", false)
	if err != nil {
		return DatabaseConfig{}, err
	}
	host, err := l.GetString(KeyDBHost, "", false)
	if err != nil {
		return DatabaseConfig{}, err
	}
	port, err := l.GetInt(KeyDBPort, 5432, false)
	if err != nil {
		return DatabaseConfig{}, err
	}

	cfg := DatabaseConfig{
		Engine:   engine,
		Name:     name,
		User:     user,
		Password: password,
		Host:     host,
		Port:     port,
	}
	if err := cfg.Validate(); err != nil {
		return DatabaseConfig{}, err
	}
	return cfg, nil
}

// ServerConfig assembles and validates the server section.
func (l *Loader) ServerConfig() (ServerConfig, error) {
	host, err := l.GetString(KeyServerHost, "127.0.0.1", false)
	if err != nil {
		return ServerConfig{}, err
	}
	port, err := l.GetInt(KeyServerPort, 8000, false)
	if err != nil {
		return ServerConfig{}, err
	}
	allowed, err := l.GetList(KeyAllowedHosts, []string{"localhost", "127.0.0.1"}, false)
	if err != nil {
		return ServerConfig{}, err
	}

	cfg := ServerConfig{Host: host, Port: port, AllowedHosts: allowed}
	if err := cfg.Validate(); err != nil {
		return ServerConfig{}, err
	}
	return cfg, nil
}

// SecurityConfig assembles and validates the security section.
func (l *Loader) SecurityConfig() (SecurityConfig, error) {
	secret, err := l.GetString(KeySecretKey, "", true)
	if err != nil {
		return SecurityConfig{}, err
	}
	debug, err := l.GetBool(KeyDebug, false, false)
	if err != nil {
		return SecurityConfig{}, err
	}
	environment, err := l.GetString(KeyAppEnv, EnvDevelopment, false)
	if err != nil {
		return SecurityConfig{}, err
	}

	cfg := SecurityConfig{SecretKey: secret, Debug: debug, Environment: environment}
	if err := cfg.Validate(); err != nil {
		return SecurityConfig{}, err
	}
	return cfg, nil
}

// ValidateAll constructs and validates every configuration section. It is the
// composed precondition run once at startup, before anything touches the
// database or the network.
func (l *Loader) ValidateAll() error {
	if _, err := l.DatabaseConfig(); err != nil {
		return err
	}
	if _, err := l.ServerConfig(); err != nil {
		return err
	}
	if _, err := l.SecurityConfig(); err != nil {
		return err
	}
	return nil
}
