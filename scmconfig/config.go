// Package scmconfig loads configuration from prefixed environment
// variables and validates it, the same shape used across this codebase's
// env-driven services.
package scmconfig

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// EnvConfig reads prefixed environment variables.
type EnvConfig struct {
	prefix string
}

// NewEnvConfig creates a loader scoped to prefix (e.g. "DBSTORE").
func NewEnvConfig(prefix string) *EnvConfig {
	return &EnvConfig{prefix: prefix}
}

func (ec *EnvConfig) buildKey(key string) string {
	if ec.prefix == "" {
		return key
	}
	return ec.prefix + "_" + key
}

func (ec *EnvConfig) GetString(key, def string) string {
	if v := os.Getenv(ec.buildKey(key)); v != "" {
		return v
	}
	return def
}

func (ec *EnvConfig) MustGetString(key string) (string, error) {
	full := ec.buildKey(key)
	v := os.Getenv(full)
	if v == "" {
		return "", fmt.Errorf("required environment variable %s not set", full)
	}
	return v, nil
}

func (ec *EnvConfig) GetBool(key string, def bool) bool {
	if v := os.Getenv(ec.buildKey(key)); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

func (ec *EnvConfig) GetInt(key string, def int) int {
	if v := os.Getenv(ec.buildKey(key)); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func (ec *EnvConfig) GetDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(ec.buildKey(key)); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

// Validator accumulates validation failures into one aggregate error,
// mirroring the config validation pattern used across this codebase.
type Validator struct {
	errors []string
}

func NewValidator() *Validator { return &Validator{} }

func (v *Validator) RequireString(field, value string) {
	if value == "" {
		v.errors = append(v.errors, fmt.Sprintf("%s is required", field))
	}
}

func (v *Validator) RequireOneOf(field, value string, allowed []string) {
	if value == "" {
		v.errors = append(v.errors, fmt.Sprintf("%s is required", field))
		return
	}
	for _, a := range allowed {
		if value == a {
			return
		}
	}
	v.errors = append(v.errors, fmt.Sprintf("%s must be one of: %s", field, strings.Join(allowed, ", ")))
}

func (v *Validator) IsValid() bool { return len(v.errors) == 0 }

func (v *Validator) ErrorString() string { return strings.Join(v.errors, "; ") }

func (v *Validator) Validate() error {
	if !v.IsValid() {
		return fmt.Errorf("configuration validation failed: %s", v.ErrorString())
	}
	return nil
}

// DBStoreConfig is the dbstore plugin's configuration, keyed per spec §6.
type DBStoreConfig struct {
	Driver             string
	Write              string
	Read               string
	Proxy              bool
	StrictVersionMatch bool
	DeleteTree         bool
}

// LoadDBStoreConfig reads a DBStoreConfig from environment variables under
// prefix, applying the spec's documented defaults (StrictVersionMatch and
// DeleteTree both default true; Proxy defaults false; Read is optional).
func LoadDBStoreConfig(prefix string) (DBStoreConfig, error) {
	env := NewEnvConfig(prefix)

	driver, err := env.MustGetString("DRIVER")
	if err != nil {
		return DBStoreConfig{}, err
	}
	write, err := env.MustGetString("WRITE")
	if err != nil {
		return DBStoreConfig{}, err
	}

	cfg := DBStoreConfig{
		Driver:             driver,
		Write:              write,
		Read:               env.GetString("READ", ""),
		Proxy:              env.GetBool("PROXY", false),
		StrictVersionMatch: env.GetBool("STRICT_VERSION_MATCH", true),
		DeleteTree:         env.GetBool("DELETE_TREE", true),
	}

	v := NewValidator()
	v.RequireString("driver", cfg.Driver)
	v.RequireString("write", cfg.Write)
	v.RequireOneOf("driver", cfg.Driver, []string{"postgres", "postgres-pooled"})
	if err := v.Validate(); err != nil {
		return DBStoreConfig{}, err
	}

	return cfg, nil
}
