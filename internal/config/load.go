// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "VODS_"

// Load builds the configuration from defaults, the optional file at path and
// the environment, then validates it.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := decodeStrict(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	applyEnv(&cfg)
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// decodeStrict overlays the YAML document onto cfg, rejecting unknown keys.
func decodeStrict(raw []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func applyEnv(cfg *Config) {
	cfg.Server.ListenAddr = ParseString(EnvPrefix+"LISTEN_ADDR", cfg.Server.ListenAddr)
	cfg.Server.RateLimitPerMinute = ParseInt(EnvPrefix+"RATE_LIMIT_PER_MINUTE", cfg.Server.RateLimitPerMinute)
	cfg.Server.ShutdownTimeout = ParseDuration(EnvPrefix+"SHUTDOWN_TIMEOUT", cfg.Server.ShutdownTimeout)
	cfg.Logging.Level = ParseString(EnvPrefix+"LOG_LEVEL", cfg.Logging.Level)

	cfg.Store.Backend = ParseString(EnvPrefix+"STORE_BACKEND", cfg.Store.Backend)
	cfg.Store.Redis.Addr = ParseString(EnvPrefix+"REDIS_ADDR", cfg.Store.Redis.Addr)
	cfg.Store.Redis.Password = ParseString(EnvPrefix+"REDIS_PASSWORD", cfg.Store.Redis.Password)
	cfg.Store.Redis.DB = ParseInt(EnvPrefix+"REDIS_DB", cfg.Store.Redis.DB)
	cfg.Store.BadgerPath = ParseString(EnvPrefix+"BADGER_PATH", cfg.Store.BadgerPath)
	cfg.Store.OpTimeout = ParseDuration(EnvPrefix+"STORE_OP_TIMEOUT", cfg.Store.OpTimeout)

	cfg.Session.MaxDuration = ParseDuration(EnvPrefix+"SESSION_MAX_DURATION", cfg.Session.MaxDuration)
	cfg.Session.Timeout = ParseDuration(EnvPrefix+"SESSION_TIMEOUT", cfg.Session.Timeout)
	cfg.Session.IdleTimeout = ParseDuration(EnvPrefix+"SESSION_IDLE_TIMEOUT", cfg.Session.IdleTimeout)
	cfg.Session.TokenExpiry = ParseDuration(EnvPrefix+"TOKEN_EXPIRY", cfg.Session.TokenExpiry)
	cfg.Session.TokenSecret = ParseString(EnvPrefix+"TOKEN_SECRET", cfg.Session.TokenSecret)
	cfg.Session.DefaultQuality = ParseString(EnvPrefix+"DEFAULT_QUALITY", cfg.Session.DefaultQuality)
	cfg.Session.MaxConcurrent = ParseInt(EnvPrefix+"MAX_CONCURRENT_SESSIONS", cfg.Session.MaxConcurrent)
	cfg.Session.Policy.Watermark.Enabled = ParseBool(EnvPrefix+"WATERMARK_ENABLED", cfg.Session.Policy.Watermark.Enabled)

	cfg.ABR.LowBuffer = ParseFloat(EnvPrefix+"ABR_LOW_BUFFER", cfg.ABR.LowBuffer)
	cfg.ABR.HighBuffer = ParseFloat(EnvPrefix+"ABR_HIGH_BUFFER", cfg.ABR.HighBuffer)

	cfg.Analytics.Retention = ParseDuration(EnvPrefix+"ANALYTICS_RETENTION", cfg.Analytics.Retention)

	cfg.Catalog.Path = ParseString(EnvPrefix+"CATALOG_PATH", cfg.Catalog.Path)
	cfg.Catalog.Watch = ParseBool(EnvPrefix+"CATALOG_WATCH", cfg.Catalog.Watch)

	cfg.Tracing.Enabled = ParseBool(EnvPrefix+"TRACING_ENABLED", cfg.Tracing.Enabled)
	cfg.Tracing.Exporter = ParseString(EnvPrefix+"TRACING_EXPORTER", cfg.Tracing.Exporter)
	cfg.Tracing.Endpoint = ParseString(EnvPrefix+"TRACING_ENDPOINT", cfg.Tracing.Endpoint)
	cfg.Tracing.SamplingRate = ParseFloat(EnvPrefix+"TRACING_SAMPLING_RATE", cfg.Tracing.SamplingRate)
}
