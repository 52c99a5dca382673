package config

import (
	"errors"
	"fmt"
	"strings"
)

func oneOf(value string, allowed ...string) bool {
	for _, a := range allowed {
		if value == a {
			return true
		}
	}
	return false
}

// Validate validates server configuration
func (s *ServerConfig) Validate() error {
	var errs []string

	if s.Address == "" {
		errs = append(errs, "address cannot be empty")
	}
	if s.ReadTimeout <= 0 {
		errs = append(errs, "read_timeout must be positive")
	}
	if s.WriteTimeout <= 0 {
		errs = append(errs, "write_timeout must be positive")
	}
	if s.IdleTimeout <= 0 {
		errs = append(errs, "idle_timeout must be positive")
	}
	if s.ReadHeaderTimeout <= 0 {
		errs = append(errs, "read_header_timeout must be positive")
	}
	if s.ShutdownTimeout <= 0 {
		errs = append(errs, "shutdown_timeout must be positive")
	}

	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
}

// Validate validates storage configuration
func (s *StorageConfig) Validate() error {
	var errs []string

	if !oneOf(s.Adapter, "memory", "sql") {
		errs = append(errs, "adapter must be one of: memory, sql")
	}
	if s.Adapter == "sql" && s.SQL.DSN == "" {
		errs = append(errs, "sql config: dsn cannot be empty")
	}
	if s.Adapter == "sql" && !oneOf(string(s.SQL.Driver), "postgres", "mysql") {
		errs = append(errs, "sql config: driver must be one of: postgres, mysql")
	}

	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
}

// Validate validates ledger configuration
func (l *LedgerConfig) Validate() error {
	if !oneOf(l.Backend, "storage", "redis", "none") {
		return errors.New("backend must be one of: storage, redis, none")
	}
	if l.Backend == "redis" && l.TTL <= 0 {
		return errors.New("ttl must be positive for the redis backend")
	}
	return nil
}

// Validate validates logging configuration
func (l *LoggingConfig) Validate() error {
	var errs []string

	if !oneOf(l.Level, "debug", "info", "warn", "error") {
		errs = append(errs, "level must be one of: debug, info, warn, error")
	}
	if !oneOf(l.Format, "json", "text") {
		errs = append(errs, "format must be one of: json, text")
	}
	if !oneOf(l.Output, "stdout", "stderr") {
		errs = append(errs, "output must be one of: stdout, stderr")
	}

	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
}

// Validate validates event bus configuration
func (e *EventsConfig) Validate() error {
	if !oneOf(e.Dispatch, "sync", "async") {
		return errors.New("dispatch must be one of: sync, async")
	}
	return nil
}

// Validate validates webhook configuration
func (w *WebhookConfig) Validate() error {
	var errs []string
	for i, ep := range w.Endpoints {
		if strings.TrimSpace(ep) == "" {
			errs = append(errs, fmt.Sprintf("endpoints[%d] is empty", i))
		}
	}
	if len(w.Endpoints) > 0 && w.Timeout <= 0 {
		errs = append(errs, "timeout must be positive when endpoints are configured")
	}
	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
}

// Validate validates security settings.
func (s SecurityConfig) Validate() error {
	var errs []string
	if s.EnableRateLimit {
		if s.RateLimit.RequestsPerMinute <= 0 {
			errs = append(errs, "rate_limit.requests_per_minute must be > 0 when rate limiting is enabled")
		}
		if s.RateLimit.BurstSize <= 0 {
			errs = append(errs, "rate_limit.burst_size must be > 0 when rate limiting is enabled")
		}
	}
	for i, key := range s.APIKeys {
		if strings.TrimSpace(key) == "" {
			errs = append(errs, fmt.Sprintf("api_keys[%d] is empty", i))
		}
	}
	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
}
