package datasource

import (
	"errors"
	"strings"
	"time"
)

const (
	defaultHealthCheckTimeout = 5 * time.Second
	defaultMeterName          = "lingo-sqlmapper/datasource"
)

var defaultSearchPath = []string{"public"}

// Config captures PostgreSQL connection pool settings applied during component
// initialization. All fields are optional except DSN.
type Config struct {
	DSN                string        `json:"dsn" yaml:"dsn"`
	MaxConns           int32         `json:"maxConns" yaml:"maxConns"`
	MinConns           int32         `json:"minConns" yaml:"minConns"`
	MaxConnLifetime    time.Duration `json:"maxConnLifetime" yaml:"maxConnLifetime"`
	MaxConnIdleTime    time.Duration `json:"maxConnIdleTime" yaml:"maxConnIdleTime"`
	HealthCheckPeriod  time.Duration `json:"healthCheckPeriod" yaml:"healthCheckPeriod"`
	HealthCheckTimeout time.Duration `json:"healthCheckTimeout" yaml:"healthCheckTimeout"`
	Schema             string        `json:"schema" yaml:"schema"`
	SearchPath         []string      `json:"searchPath" yaml:"searchPath"`
	EnablePreparedStmt *bool         `json:"enablePreparedStmt" yaml:"enablePreparedStmt"`
	MetricsEnabled     *bool         `json:"metricsEnabled" yaml:"metricsEnabled"`
	// DatabaseIDs maps a product-name fragment reported by `select version()`
	// to the database id used for statement selection in mapper files.
	DatabaseIDs map[string]string `json:"databaseIds" yaml:"databaseIds"`
}

// Sanitize validates mandatory fields and applies default values. It returns a
// new Config instance, leaving the original untouched.
func (c Config) Sanitize() (Config, error) {
	if strings.TrimSpace(c.DSN) == "" {
		return Config{}, errors.New("datasource: dsn is required")
	}

	s := c
	s.DSN = strings.TrimSpace(c.DSN)

	if s.HealthCheckTimeout <= 0 {
		s.HealthCheckTimeout = defaultHealthCheckTimeout
	}

	if len(s.SearchPath) == 0 {
		if schema := strings.TrimSpace(s.Schema); schema != "" {
			s.SearchPath = []string{schema, defaultSearchPath[0]}
		} else {
			s.SearchPath = append([]string{}, defaultSearchPath...)
		}
	}

	if s.EnablePreparedStmt == nil {
		s.EnablePreparedStmt = boolPtr(false)
	}

	if s.MetricsEnabled == nil {
		s.MetricsEnabled = boolPtr(false)
	}

	return s, nil
}

func (c Config) PreparedStatementsEnabled() bool {
	if c.EnablePreparedStmt == nil {
		return false
	}
	return *c.EnablePreparedStmt
}

func (c Config) MetricsEnabledValue() bool {
	if c.MetricsEnabled == nil {
		return false
	}
	return *c.MetricsEnabled
}

func boolPtr(v bool) *bool {
	b := v
	return &b
}
