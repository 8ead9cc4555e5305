// Package extension is the collaborator boundary a host query engine
// attaches through: a connection string in, a Catalog (schemas, tables,
// scans, writes, DDL translation) out. Every exported operation returns
// (T, error); nothing here panics across the boundary.
package extension

import (
	"context"

	"github.com/mssqlext/mssql-extension/pkg/catalog"
	"github.com/mssqlext/mssql-extension/pkg/config"
	"github.com/mssqlext/mssql-extension/pkg/connstring"
	"github.com/mssqlext/mssql-extension/pkg/fedauth"
	"github.com/mssqlext/mssql-extension/pkg/logx"
	"github.com/mssqlext/mssql-extension/pkg/pool"
)

// Extension is an attached catalog: a live connection pool plus the
// metadata cache layered on top of it.
type Extension struct {
	opts    config.Options
	pool    *pool.Pool
	catalog *catalog.Cache
	log     *logx.Logger
}

// AttachOption customizes Attach beyond what the connection string
// carries, currently limited to supplying a TokenProvider for Azure AD
// authentication (acquiring the token itself is out of scope here; the
// caller wires whatever MSAL/azidentity client it already uses).
type AttachOption func(*attachSettings)

type attachSettings struct {
	tokens fedauth.TokenProvider
}

// WithTokenProvider switches Attach from SQL auth to the FEDAUTH feature
// extension, using provider to mint and refresh Azure AD access tokens.
func WithTokenProvider(provider fedauth.TokenProvider) AttachOption {
	return func(s *attachSettings) { s.tokens = provider }
}

// Attach parses dsn, validates the resulting options, and opens a
// connection pool against the target server. The metadata cache is
// populated lazily on first Schema/Table lookup.
func Attach(ctx context.Context, dsn string, opts ...AttachOption) (*Extension, error) {
	parsed, err := connstring.Parse(dsn)
	if err != nil {
		return nil, err
	}
	return AttachOptions(ctx, parsed, opts...)
}

// AttachOptions is Attach for callers that already hold a config.Options
// (e.g. assembled from a host engine's own configuration surface rather
// than a connection string).
func AttachOptions(ctx context.Context, opts config.Options, options ...AttachOption) (*Extension, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	settings := &attachSettings{}
	for _, o := range options {
		o(settings)
	}
	var tokens *fedauth.Cache
	if settings.tokens != nil {
		tokens = fedauth.NewCache(settings.tokens)
	}

	log := logx.New(logx.FromVerbosity(opts.DebugVerbosity), nil)
	log.Info(logx.CategoryPool, "attaching to %s:%d/%s", opts.Host, opts.Port, opts.Database)

	p := pool.New(poolConfig(opts), newFactory(opts, tokens, log))

	if opts.MinConnections > 0 {
		if err := warmPool(ctx, p, opts.MinConnections); err != nil {
			p.Close()
			return nil, err
		}
	}

	catCfg, err := catalog.NewConfig(opts.CatalogCacheTTL, opts.SchemaFilter, opts.TableFilter)
	if err != nil {
		p.Close()
		return nil, err
	}

	return &Extension{
		opts:    opts,
		pool:    p,
		catalog: catalog.New(catCfg, newPoolQuerier(p)),
		log:     log,
	}, nil
}

func poolConfig(opts config.Options) pool.Config {
	return pool.Config{
		MaxConnections: opts.ConnectionLimit,
		MinIdle:        opts.MinConnections,
		IdleTTL:        opts.IdleTimeout,
		AcquireTimeout: opts.AcquireTimeout,
	}
}

// warmPool acquires and immediately releases n connections so the pool
// starts with min_connections already idle rather than dialing lazily.
func warmPool(ctx context.Context, p *pool.Pool, n int) error {
	handles := make([]*pool.Handle, 0, n)
	for i := 0; i < n; i++ {
		h, err := p.Acquire(ctx)
		if err != nil {
			for _, h := range handles {
				h.Release()
			}
			return err
		}
		handles = append(handles, h)
	}
	for _, h := range handles {
		h.Release()
	}
	return nil
}

// Close releases every pooled connection. The Extension must not be used
// afterward.
func (e *Extension) Close() {
	e.pool.Close()
}

// Schemas lists the schemas visible under the configured schema filter.
func (e *Extension) Schemas(ctx context.Context) ([]string, error) {
	return e.catalog.Schemas(ctx)
}

// Schema returns the named schema, discovering and caching its table
// list on first use.
func (e *Extension) Schema(ctx context.Context, name string) (*catalog.Schema, error) {
	return e.catalog.Schema(ctx, name)
}

// Table returns the named table's metadata (columns, types, primary
// key), discovering and caching it on first use.
func (e *Extension) Table(ctx context.Context, schemaName, tableName string) (*catalog.Table, error) {
	return e.catalog.Table(ctx, schemaName, tableName)
}

// InvalidateTableCreated and InvalidateTableDropped let a host engine
// tell the cache about DDL it issued through TranslateDDL, without
// forcing a full schema reload.
func (e *Extension) InvalidateTableCreated(schemaName, tableName string) {
	e.catalog.InvalidateTableCreated(schemaName, tableName)
}

func (e *Extension) InvalidateTableDropped(schemaName, tableName string) {
	e.catalog.InvalidateTableDropped(schemaName, tableName)
}
