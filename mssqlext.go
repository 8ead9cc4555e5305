// Package mssqlext re-exports the attach entrypoint a host query engine
// needs, so importing github.com/mssqlext/mssql-extension alone is
// enough to attach a catalog without reaching into pkg/extension
// directly. Everything else (pushdown expression builders, config
// options, catalog types) is still reached through its own subpackage.
package mssqlext

import (
	"context"

	"github.com/mssqlext/mssql-extension/pkg/config"
	"github.com/mssqlext/mssql-extension/pkg/extension"
)

// Extension is an attached catalog: a live connection pool plus the
// metadata cache layered on top of it.
type Extension = extension.Extension

// AttachOption customizes Attach beyond what the connection string
// carries.
type AttachOption = extension.AttachOption

// WithTokenProvider switches Attach from SQL auth to the FEDAUTH feature
// extension, using provider to mint and refresh Azure AD access tokens.
var WithTokenProvider = extension.WithTokenProvider

// Attach parses dsn, validates the resulting options, and opens a
// connection pool against the target server.
func Attach(ctx context.Context, dsn string, opts ...AttachOption) (*Extension, error) {
	return extension.Attach(ctx, dsn, opts...)
}

// AttachOptions is Attach for callers that already hold a config.Options.
func AttachOptions(ctx context.Context, opts config.Options, options ...AttachOption) (*Extension, error) {
	return extension.AttachOptions(ctx, opts, options...)
}
