// Package catalog discovers and caches SQL Server schema/table/column
// metadata via sys.* system views, three levels deep with independent TTL
// expiry and DDL-point invalidation.
package catalog

import (
	"context"
	"regexp"
	"sync"
	"time"

	"github.com/mssqlext/mssql-extension/pkg/errx"
)

// Config controls cache TTL and visibility filtering.
type Config struct {
	TTL time.Duration // 0 disables expiry; levels are reloaded only on explicit Refresh

	// SchemaFilter/TableFilter, when non-nil, are case-insensitive regexes;
	// a name that does not match is treated as not found.
	SchemaFilter *regexp.Regexp
	TableFilter  *regexp.Regexp
}

// NewConfig validates and compiles the optional visibility patterns,
// failing fast on invalid regex.
func NewConfig(ttl time.Duration, schemaPattern, tablePattern string) (Config, error) {
	cfg := Config{TTL: ttl}
	if schemaPattern != "" {
		re, err := regexp.Compile("(?i)" + schemaPattern)
		if err != nil {
			return Config{}, errx.Wrap(err, errx.KindUsage, "catalog: invalid schema visibility pattern")
		}
		cfg.SchemaFilter = re
	}
	if tablePattern != "" {
		re, err := regexp.Compile("(?i)" + tablePattern)
		if err != nil {
			return Config{}, errx.Wrap(err, errx.KindUsage, "catalog: invalid table visibility pattern")
		}
		cfg.TableFilter = re
	}
	return cfg, nil
}

// Cache is the lazy, multi-level schemas→tables→columns metadata cache for
// one attached catalog.
type Cache struct {
	cfg Config
	q   Querier

	mu          sync.RWMutex
	schemas     map[string]*Schema
	schemasAt   time.Time
	schemaNames []string // preserves discovery order
}

// New creates a cache bound to q, the query executor used for all
// discovery round trips.
func New(cfg Config, q Querier) *Cache {
	return &Cache{cfg: cfg, q: q, schemas: make(map[string]*Schema)}
}

func (c *Cache) schemasStale() bool {
	return c.schemasAt.IsZero() || (c.cfg.TTL > 0 && time.Since(c.schemasAt) >= c.cfg.TTL)
}

// visible reports whether name passes the configured filter, if any.
func visible(filter *regexp.Regexp, name string) bool {
	return filter == nil || filter.MatchString(name)
}

// Schema returns the named schema, discovering or refreshing the schema
// list first if it is empty or stale. Returns a not-found error if name is
// unknown or filtered out.
func (c *Cache) Schema(ctx context.Context, name string) (*Schema, error) {
	if !visible(c.cfg.SchemaFilter, name) {
		return nil, errx.Newf(errx.KindUsage, "catalog: schema %q not found", name)
	}

	c.mu.RLock()
	stale := c.schemasStale() || len(c.schemas) == 0
	s, ok := c.schemas[lowerASCII(name)]
	c.mu.RUnlock()
	if ok && !stale {
		return s, nil
	}

	if err := c.loadSchemas(ctx); err != nil {
		return nil, err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	s, ok = c.schemas[lowerASCII(name)]
	if !ok {
		return nil, errx.Newf(errx.KindUsage, "catalog: schema %q not found", name)
	}
	return s, nil
}

// Schemas returns the names of all visible schemas, discovering them first
// if necessary.
func (c *Cache) Schemas(ctx context.Context) ([]string, error) {
	c.mu.RLock()
	stale := c.schemasStale() || len(c.schemas) == 0
	names := append([]string(nil), c.schemaNames...)
	c.mu.RUnlock()
	if !stale {
		return names, nil
	}
	if err := c.loadSchemas(ctx); err != nil {
		return nil, err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]string(nil), c.schemaNames...), nil
}

func (c *Cache) loadSchemas(ctx context.Context) error {
	names, err := discoverSchemas(ctx, c.q)
	if err != nil {
		return errx.Wrap(err, errx.KindTransport, "catalog: schema discovery failed")
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	fresh := make(map[string]*Schema, len(names))
	var visibleNames []string
	for _, name := range names {
		if !visible(c.cfg.SchemaFilter, name) {
			continue
		}
		key := lowerASCII(name)
		if existing, ok := c.schemas[key]; ok {
			fresh[key] = existing
		} else {
			fresh[key] = newSchema(name)
		}
		visibleNames = append(visibleNames, name)
	}
	c.schemas = fresh
	c.schemaNames = visibleNames
	c.schemasAt = time.Now()
	return nil
}

// Table returns schema.table, discovering its column metadata on first
// access (or if its column cache has expired). Returns a not-found error
// if the table is unknown or filtered out.
func (c *Cache) Table(ctx context.Context, schemaName, tableName string) (*Table, error) {
	if !visible(c.cfg.TableFilter, tableName) {
		return nil, errx.Newf(errx.KindUsage, "catalog: table %q not found", tableName)
	}
	s, err := c.Schema(ctx, schemaName)
	if err != nil {
		return nil, err
	}

	if s.tableNamesStale(c.cfg.TTL) || len(s.tableNames) == 0 {
		if err := c.loadTableNames(ctx, s); err != nil {
			return nil, err
		}
	}
	if !s.HasTable(tableName) {
		return nil, errx.Newf(errx.KindUsage, "catalog: table %q not found in schema %q", tableName, schemaName)
	}

	if t, ok := s.cachedTable(tableName); ok && !t.stale(c.cfg.TTL) {
		return t, nil
	}
	return c.loadTable(ctx, s, tableName)
}

func (c *Cache) loadTableNames(ctx context.Context, s *Schema) error {
	refs, err := discoverTables(ctx, c.q, s.Name)
	if err != nil {
		return errx.Wrap(err, errx.KindTransport, "catalog: table discovery failed")
	}
	var filtered []tableRef
	for _, r := range refs {
		if visible(c.cfg.TableFilter, r.name) {
			filtered = append(filtered, r)
		}
	}
	s.setTableNames(filtered)
	return nil
}

func (c *Cache) loadTable(ctx context.Context, s *Schema, tableName string) (*Table, error) {
	cols, err := discoverColumns(ctx, c.q, s.Name, tableName)
	if err != nil {
		return nil, errx.Wrap(err, errx.KindTransport, "catalog: column discovery failed")
	}
	pk, err := discoverPrimaryKey(ctx, c.q, s.Name, tableName)
	if err != nil {
		return nil, errx.Wrap(err, errx.KindTransport, "catalog: primary key discovery failed")
	}
	t := &Table{Schema: s.Name, Name: tableName, IsView: s.isView(tableName), Columns: cols, PrimaryKey: pk}
	s.storeTable(t)
	return t, nil
}

// Refresh forces a full reload of the schema list and every cached
// table's columns on next access.
func (c *Cache) Refresh() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.schemas = make(map[string]*Schema)
	c.schemaNames = nil
	c.schemasAt = time.Time{}
}

// InvalidateTable drops one table's column cache, per an ALTER TABLE
// DDL-point invalidation.
func (c *Cache) InvalidateTable(schemaName, tableName string) {
	c.mu.RLock()
	s, ok := c.schemas[lowerASCII(schemaName)]
	c.mu.RUnlock()
	if ok {
		s.invalidateTable(tableName)
	}
}

// InvalidateTableCreated records a newly created table without a full
// table-list reload, per a CREATE TABLE DDL-point invalidation.
func (c *Cache) InvalidateTableCreated(schemaName, tableName string) {
	c.mu.RLock()
	s, ok := c.schemas[lowerASCII(schemaName)]
	c.mu.RUnlock()
	if ok {
		s.addTableName(tableName)
	}
}

// InvalidateTableDropped removes a table from its schema entirely, per a
// DROP TABLE DDL-point invalidation.
func (c *Cache) InvalidateTableDropped(schemaName, tableName string) {
	c.mu.RLock()
	s, ok := c.schemas[lowerASCII(schemaName)]
	c.mu.RUnlock()
	if ok {
		s.dropTable(tableName)
	}
}

// InvalidateSchema forces the schema list to be reloaded on next access,
// per a CREATE/DROP SCHEMA DDL-point invalidation.
func (c *Cache) InvalidateSchema() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.schemasAt = time.Time{}
}
