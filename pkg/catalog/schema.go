package catalog

import (
	"sync"
	"time"
)

// Schema is one discovered schema (sys.schemas entry) and the set of user
// tables/views known to exist in it. Column metadata for an individual
// table is loaded separately, only when that table is touched, per the
// three-level lazy map.
type Schema struct {
	Name string

	mu         sync.RWMutex
	tableNames map[string]string // lower-cased name -> as-discovered name
	views      map[string]bool   // subset of tableNames that are views
	tables     map[string]*Table // populated lazily as tables are touched
	loadedAt   time.Time
}

func newSchema(name string) *Schema {
	return &Schema{
		Name:       name,
		tableNames: make(map[string]string),
		views:      make(map[string]bool),
		tables:     make(map[string]*Table),
	}
}

// HasTable reports whether name is a known table or view in this schema,
// without requiring a column-metadata round trip.
func (s *Schema) HasTable(name string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.tableNames[lowerASCII(name)]
	return ok
}

// TableNames lists every known table or view name in this schema, in no
// particular order, in the case they were discovered in.
func (s *Schema) TableNames() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.tableNames))
	for _, n := range s.tableNames {
		names = append(names, n)
	}
	return names
}

// isView reports whether name was discovered as a view rather than a
// table.
func (s *Schema) isView(name string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.views[lowerASCII(name)]
}

// cachedTable returns a previously loaded table's columns, if present.
func (s *Schema) cachedTable(name string) (*Table, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tables[lowerASCII(name)]
	return t, ok
}

func (s *Schema) storeTable(t *Table) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t.loadedAt = time.Now()
	s.tables[lowerASCII(t.Name)] = t
	s.tableNames[lowerASCII(t.Name)] = t.Name
}

func (s *Schema) setTableNames(names []tableRef) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tableNames = make(map[string]string, len(names))
	s.views = make(map[string]bool, len(names))
	for _, n := range names {
		s.tableNames[lowerASCII(n.name)] = n.name
		if n.isView {
			s.views[lowerASCII(n.name)] = true
		}
	}
	s.loadedAt = time.Now()
}

// invalidateTable drops one table's column cache, forcing rediscovery on
// next access, per an ALTER TABLE DDL invalidation point.
func (s *Schema) invalidateTable(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tables, lowerASCII(name))
}

// dropTable removes a table from both the name index and the column cache,
// per a DROP TABLE DDL invalidation point.
func (s *Schema) dropTable(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tables, lowerASCII(name))
	delete(s.tableNames, lowerASCII(name))
	delete(s.views, lowerASCII(name))
}

// addTableName records a newly created table without forcing a full
// table-list reload, per a CREATE TABLE DDL invalidation point.
func (s *Schema) addTableName(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tableNames[lowerASCII(name)] = name
}

func (s *Schema) tableNamesStale(ttl time.Duration) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return ttl > 0 && time.Since(s.loadedAt) >= ttl
}

func (t *Table) stale(ttl time.Duration) bool {
	return ttl > 0 && time.Since(t.loadedAt) >= ttl
}

type tableRef struct {
	name   string
	isView bool
}

func lowerASCII(s string) string {
	b := []byte(s)
	for i, c := range b {
		if 'A' <= c && c <= 'Z' {
			b[i] = c + 'a' - 'A'
		}
	}
	return string(b)
}
