// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package config loads the daemon configuration.
//
// Precedence: defaults < YAML file < VODS_* environment variables.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/ManuGH/vodsession/internal/analytics"
	"github.com/ManuGH/vodsession/internal/domain/session/abr"
	"github.com/ManuGH/vodsession/internal/domain/session/manager"
	"github.com/ManuGH/vodsession/internal/domain/session/model"
	"github.com/ManuGH/vodsession/internal/domain/session/store"
	"github.com/ManuGH/vodsession/internal/security"
	"github.com/ManuGH/vodsession/internal/telemetry"
)

// Config is the root of the configuration file.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Logging   LoggingConfig   `yaml:"logging"`
	Store     StoreConfig     `yaml:"store"`
	Session   SessionConfig   `yaml:"session"`
	ABR       ABRConfig       `yaml:"abr"`
	Analytics AnalyticsConfig `yaml:"analytics"`
	Security  SecurityConfig  `yaml:"security"`
	Catalog   CatalogConfig   `yaml:"catalog"`
	Tracing   TracingConfig   `yaml:"tracing"`
}

type ServerConfig struct {
	ListenAddr         string        `yaml:"listen_addr"`
	ReadTimeout        time.Duration `yaml:"read_timeout"`
	WriteTimeout       time.Duration `yaml:"write_timeout"`
	ShutdownTimeout    time.Duration `yaml:"shutdown_timeout"`
	RateLimitPerMinute int           `yaml:"rate_limit_per_minute"` // per user; 0 disables
}

type LoggingConfig struct {
	Level string `yaml:"level"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type StoreConfig struct {
	Backend    string        `yaml:"backend"` // redis | badger
	Redis      RedisConfig   `yaml:"redis"`
	BadgerPath string        `yaml:"badger_path"` // empty runs badger in memory
	OpTimeout  time.Duration `yaml:"op_timeout"`
}

type WatermarkConfig struct {
	Enabled     bool    `yaml:"enabled"`
	PlatformTag string  `yaml:"platform_tag"`
	Position    string  `yaml:"position"`
	Opacity     float64 `yaml:"opacity"`
}

type PolicyConfig struct {
	DisableDownload bool            `yaml:"disable_download"`
	DisableSeeking  bool            `yaml:"disable_seeking"`
	Watermark       WatermarkConfig `yaml:"watermark"`
}

type SessionConfig struct {
	MaxDuration         time.Duration `yaml:"max_duration"`
	Timeout             time.Duration `yaml:"timeout"`
	IdleTimeout         time.Duration `yaml:"idle_timeout"`
	TokenExpiry         time.Duration `yaml:"token_expiry"`
	TokenSecret         string        `yaml:"token_secret"`
	DefaultQuality      string        `yaml:"default_quality"`
	MaxConcurrent       int           `yaml:"max_concurrent"`
	CompletionTolerance float64       `yaml:"completion_tolerance"`
	Policy              PolicyConfig  `yaml:"policy"`
}

type ABRConfig struct {
	LowBuffer  float64 `yaml:"low_buffer"`
	HighBuffer float64 `yaml:"high_buffer"`
}

type AnalyticsConfig struct {
	Retention    time.Duration `yaml:"retention"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	QueueSize    int           `yaml:"queue_size"`
	Workers      int           `yaml:"workers"`
}

type SecurityConfig struct {
	QueueSize     int           `yaml:"queue_size"`
	Workers       int           `yaml:"workers"`
	RatePerSecond float64       `yaml:"rate_per_second"`
	Burst         int           `yaml:"burst"`
	Timeout       time.Duration `yaml:"timeout"`
}

type CatalogConfig struct {
	Path     string        `yaml:"path"`
	CacheTTL time.Duration `yaml:"cache_ttl"`
	Watch    bool          `yaml:"watch"`
}

type TracingConfig struct {
	Enabled      bool    `yaml:"enabled"`
	Exporter     string  `yaml:"exporter"` // grpc | http
	Endpoint     string  `yaml:"endpoint"`
	SamplingRate float64 `yaml:"sampling_rate"`
	Environment  string  `yaml:"environment"`
}

// Default returns the stock configuration.
func Default() Config {
	mgr := manager.DefaultConfig()
	an := analytics.DefaultConfig()
	return Config{
		Server: ServerConfig{
			ListenAddr:         ":8080",
			ReadTimeout:        10 * time.Second,
			WriteTimeout:       10 * time.Second,
			ShutdownTimeout:    15 * time.Second,
			RateLimitPerMinute: 600,
		},
		Logging: LoggingConfig{Level: "info"},
		Store: StoreConfig{
			Backend:   store.BackendRedis,
			Redis:     RedisConfig{Addr: "localhost:6379"},
			OpTimeout: mgr.StoreTimeout,
		},
		Session: SessionConfig{
			MaxDuration:         mgr.MaxSessionDuration,
			Timeout:             mgr.SessionTimeout,
			IdleTimeout:         mgr.IdleTimeout,
			TokenExpiry:         mgr.TokenExpiry,
			DefaultQuality:      string(mgr.DefaultQuality),
			MaxConcurrent:       mgr.MaxConcurrent,
			CompletionTolerance: mgr.CompletionTolerance,
			Policy: PolicyConfig{
				DisableDownload: mgr.Policy.DisableDownload,
				DisableSeeking:  mgr.Policy.DisableSeeking,
				Watermark: WatermarkConfig{
					Enabled:     mgr.Policy.Watermark.Enabled,
					PlatformTag: mgr.Policy.Watermark.PlatformTag,
					Position:    mgr.Policy.Watermark.Position,
					Opacity:     mgr.Policy.Watermark.Opacity,
				},
			},
		},
		ABR: ABRConfig{LowBuffer: abr.DefaultLowBuffer, HighBuffer: abr.DefaultHighBuffer},
		Analytics: AnalyticsConfig{
			Retention:    an.Retention,
			WriteTimeout: an.WriteTimeout,
			QueueSize:    an.QueueSize,
			Workers:      an.Workers,
		},
		Security: SecurityConfig{
			QueueSize:     256,
			Workers:       1,
			RatePerSecond: 10,
			Burst:         20,
			Timeout:       2 * time.Second,
		},
		Catalog: CatalogConfig{
			Path:     "catalog.yaml",
			CacheTTL: 5 * time.Minute,
			Watch:    true,
		},
		Tracing: TracingConfig{
			Exporter:     telemetry.ExporterGRPC,
			Endpoint:     "localhost:4317",
			SamplingRate: 0.1,
			Environment:  "production",
		},
	}
}

// Validate checks field ranges and cross-field invariants.
func (c Config) Validate() error {
	var errs []error
	if c.Server.ListenAddr == "" {
		errs = append(errs, errors.New("server.listen_addr is required"))
	}
	if c.Server.RateLimitPerMinute < 0 {
		errs = append(errs, fmt.Errorf("server.rate_limit_per_minute must be >= 0, got %d", c.Server.RateLimitPerMinute))
	}
	switch c.Store.Backend {
	case store.BackendRedis:
		if c.Store.Redis.Addr == "" {
			errs = append(errs, errors.New("store.redis.addr is required for the redis backend"))
		}
	case store.BackendBadger:
	default:
		errs = append(errs, fmt.Errorf("store.backend must be %q or %q, got %q", store.BackendRedis, store.BackendBadger, c.Store.Backend))
	}
	if _, err := model.ParseQuality(c.Session.DefaultQuality); err != nil {
		errs = append(errs, fmt.Errorf("session.default_quality: %w", err))
	} else if err := c.ManagerConfig().Validate(); err != nil {
		errs = append(errs, fmt.Errorf("session: %w", err))
	}
	if c.Session.MaxConcurrent <= 0 {
		errs = append(errs, fmt.Errorf("session.max_concurrent must be > 0, got %d", c.Session.MaxConcurrent))
	}
	if err := c.ABRConfig().Validate(); err != nil {
		errs = append(errs, err)
	}
	if c.Analytics.Retention <= 0 {
		errs = append(errs, fmt.Errorf("analytics.retention must be > 0, got %v", c.Analytics.Retention))
	}
	if c.Analytics.QueueSize <= 0 || c.Analytics.Workers <= 0 {
		errs = append(errs, errors.New("analytics.queue_size and analytics.workers must be > 0"))
	}
	if c.Security.QueueSize <= 0 || c.Security.Workers <= 0 {
		errs = append(errs, errors.New("security.queue_size and security.workers must be > 0"))
	}
	if c.Catalog.Path == "" {
		errs = append(errs, errors.New("catalog.path is required"))
	}
	if err := c.TelemetryConfig("", "").Validate(); err != nil {
		errs = append(errs, fmt.Errorf("tracing: %w", err))
	}
	return errors.Join(errs...)
}

// ManagerConfig projects the session section onto the lifecycle manager.
func (c Config) ManagerConfig() manager.Config {
	s := c.Session
	return manager.Config{
		MaxSessionDuration:  s.MaxDuration,
		SessionTimeout:      s.Timeout,
		IdleTimeout:         s.IdleTimeout,
		TokenExpiry:         s.TokenExpiry,
		StoreTimeout:        c.Store.OpTimeout,
		CompletionTolerance: s.CompletionTolerance,
		DefaultQuality:      model.Quality(s.DefaultQuality),
		MaxConcurrent:       s.MaxConcurrent,
		Policy: manager.Policy{
			DisableDownload: s.Policy.DisableDownload,
			DisableSeeking:  s.Policy.DisableSeeking,
			Watermark: manager.WatermarkPolicy{
				Enabled:     s.Policy.Watermark.Enabled,
				PlatformTag: s.Policy.Watermark.PlatformTag,
				Position:    s.Policy.Watermark.Position,
				Opacity:     s.Policy.Watermark.Opacity,
			},
		},
	}
}

func (c Config) ABRConfig() abr.Config {
	return abr.Config{LowBufferSeconds: c.ABR.LowBuffer, HighBufferSeconds: c.ABR.HighBuffer}
}

func (c Config) AnalyticsConfig() analytics.Config {
	return analytics.Config{
		Retention:    c.Analytics.Retention,
		WriteTimeout: c.Analytics.WriteTimeout,
		QueueSize:    c.Analytics.QueueSize,
		Workers:      c.Analytics.Workers,
	}
}

func (c Config) SecurityConfig() security.Config {
	return security.Config{
		QueueSize:     c.Security.QueueSize,
		Workers:       c.Security.Workers,
		RatePerSecond: c.Security.RatePerSecond,
		Burst:         c.Security.Burst,
		Timeout:       c.Security.Timeout,
	}
}

func (c Config) StoreOptions() store.Options {
	return store.Options{
		Backend: c.Store.Backend,
		Redis: store.RedisConfig{
			Addr:     c.Store.Redis.Addr,
			Password: c.Store.Redis.Password,
			DB:       c.Store.Redis.DB,
		},
		BadgerPath: c.Store.BadgerPath,
	}
}

// TelemetryConfig projects the tracing section for the named service.
func (c Config) TelemetryConfig(service, version string) telemetry.Config {
	return telemetry.Config{
		Enabled:        c.Tracing.Enabled,
		ServiceName:    service,
		ServiceVersion: version,
		Environment:    c.Tracing.Environment,
		Exporter:       c.Tracing.Exporter,
		Endpoint:       c.Tracing.Endpoint,
		SamplingRate:   c.Tracing.SamplingRate,
	}
}
