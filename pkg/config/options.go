// Package config holds the attach-time option set for one catalog
// connection: pool sizing, bulk-load and pushdown behavior, and catalog
// cache tuning.
package config

import (
	"time"

	"github.com/mssqlext/mssql-extension/pkg/errx"
)

// Defaults, mirroring the CLI's flag-default constants.
const (
	DefaultPort              = 1433
	DefaultConnectionLimit   = 10
	DefaultConnectionCache   = true
	DefaultConnectionTimeout = 30 * time.Second
	DefaultIdleTimeout       = 0
	DefaultMinConnections    = 0
	DefaultAcquireTimeout    = 10 * time.Second
	DefaultCatalogCacheTTL   = 0
	DefaultCopyTablock       = false
	DefaultOrderPushdown     = false
	DefaultDebugVerbosity    = 0
)

// Options is the validated, field-by-field attach configuration for one
// catalog. Defaults returns a fully populated Options; Validate checks the
// fields as given and does not fill in zero values.
type Options struct {
	// Connection.
	Host                   string
	Port                   int
	Database               string
	User                   string
	Password               string
	Encrypt                bool
	TrustServerCertificate bool
	AzureSecretName        string
	AppName                string
	ConnectionTimeout      time.Duration

	// Pool.
	ConnectionLimit int
	ConnectionCache bool
	IdleTimeout     time.Duration
	MinConnections  int
	AcquireTimeout  time.Duration

	// Bulk writer.
	CopyTablock bool

	// Pushdown + catalog.
	OrderPushdown   bool
	CatalogCacheTTL time.Duration
	SchemaFilter    string
	TableFilter     string

	// Diagnostics.
	DebugVerbosity int
}

// Defaults returns an Options populated with every documented default.
func Defaults() Options {
	return Options{
		Port:              DefaultPort,
		Encrypt:           false,
		ConnectionTimeout: DefaultConnectionTimeout,
		ConnectionLimit:   DefaultConnectionLimit,
		ConnectionCache:   DefaultConnectionCache,
		IdleTimeout:       DefaultIdleTimeout,
		MinConnections:    DefaultMinConnections,
		AcquireTimeout:    DefaultAcquireTimeout,
		CopyTablock:       DefaultCopyTablock,
		OrderPushdown:     DefaultOrderPushdown,
		CatalogCacheTTL:   DefaultCatalogCacheTTL,
		DebugVerbosity:    DefaultDebugVerbosity,
	}
}

// Validate checks every field for range/consistency before dialing,
// returning the first violation found.
func (o Options) Validate() error {
	if o.Host == "" {
		return errx.New(errx.KindUsage, "config: host is required")
	}
	if o.Port <= 0 || o.Port > 65535 {
		return errx.Newf(errx.KindUsage, "config: port %d out of range", o.Port)
	}
	if o.Database == "" {
		return errx.New(errx.KindUsage, "config: database is required")
	}
	if o.ConnectionLimit < 1 {
		return errx.Newf(errx.KindUsage, "config: connection_limit must be >= 1, got %d", o.ConnectionLimit)
	}
	if o.ConnectionTimeout < 0 {
		return errx.New(errx.KindUsage, "config: connection_timeout must be >= 0")
	}
	if o.IdleTimeout < 0 {
		return errx.New(errx.KindUsage, "config: idle_timeout must be >= 0")
	}
	if o.MinConnections < 0 {
		return errx.New(errx.KindUsage, "config: min_connections must be >= 0")
	}
	if o.MinConnections > o.ConnectionLimit {
		return errx.New(errx.KindUsage, "config: min_connections cannot exceed connection_limit")
	}
	if o.AcquireTimeout < 0 {
		return errx.New(errx.KindUsage, "config: acquire_timeout must be >= 0")
	}
	if o.CatalogCacheTTL < 0 {
		return errx.New(errx.KindUsage, "config: catalog_cache_ttl must be >= 0")
	}
	if o.DebugVerbosity < 0 || o.DebugVerbosity > 3 {
		return errx.Newf(errx.KindUsage, "config: debug_verbosity must be 0-3, got %d", o.DebugVerbosity)
	}
	return nil
}
