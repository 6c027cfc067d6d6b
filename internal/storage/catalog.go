package storage

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"pagedb/pkg/types"
)

var (
	ErrTableExists   = errors.New("table already exists")
	ErrTableNotFound = errors.New("table not found")
)

// ColumnInfo describes one column of a table.
type ColumnInfo struct {
	Name string          `yaml:"name"`
	Type types.ValueType `yaml:"type"`
}

// TableInfo describes a table. Records is the authoritative row
// directory: every live row's RID appears here exactly once, in insert
// order. Name preserves the case the user wrote; lookups are
// case-insensitive.
type TableInfo struct {
	Name    string       `yaml:"name"`
	Columns []ColumnInfo `yaml:"columns"`
	Records []types.RID  `yaml:"records"`
}

// ColumnIndex returns the ordinal of a column, matched case-insensitively.
func (t *TableInfo) ColumnIndex(name string) (int, bool) {
	for i, c := range t.Columns {
		if strings.EqualFold(c.Name, name) {
			return i, true
		}
	}
	return 0, false
}

// IndexInfo describes a secondary index over a single column.
type IndexInfo struct {
	Name     string       `yaml:"name"`
	Table    string       `yaml:"table"`
	Column   string       `yaml:"column"`
	Order    int          `yaml:"order"`
	RootPage types.PageID `yaml:"root_page"`
}

// Catalog maps table names to schemas and indexes. Keys are lowercased;
// TableInfo.Name keeps the display case.
type Catalog struct {
	tables  map[string]*TableInfo
	indexes map[string][]*IndexInfo
}

// NewCatalog returns an empty catalog.
func NewCatalog() *Catalog {
	return &Catalog{
		tables:  make(map[string]*TableInfo),
		indexes: make(map[string][]*IndexInfo),
	}
}

// GetTable resolves a table name case-insensitively.
func (c *Catalog) GetTable(name string) (*TableInfo, bool) {
	t, ok := c.tables[strings.ToLower(name)]
	return t, ok
}

// CreateTable registers a new table. Fails if the name is taken under
// case-insensitive comparison.
func (c *Catalog) CreateTable(name string, cols []ColumnInfo) error {
	key := strings.ToLower(name)
	if _, ok := c.tables[key]; ok {
		return fmt.Errorf("%w: %s", ErrTableExists, name)
	}
	c.tables[key] = &TableInfo{Name: name, Columns: cols}
	return nil
}

// AddIndex registers an index for its table.
func (c *Catalog) AddIndex(info *IndexInfo) error {
	key := strings.ToLower(info.Table)
	if _, ok := c.tables[key]; !ok {
		return fmt.Errorf("%w: %s", ErrTableNotFound, info.Table)
	}
	c.indexes[key] = append(c.indexes[key], info)
	return nil
}

// Indexes returns the indexes registered for a table.
func (c *Catalog) Indexes(table string) []*IndexInfo {
	return c.indexes[strings.ToLower(table)]
}

// FindIndex returns the single-column index covering table.column, if any.
func (c *Catalog) FindIndex(table, column string) (*IndexInfo, bool) {
	for _, idx := range c.indexes[strings.ToLower(table)] {
		if strings.EqualFold(idx.Column, column) {
			return idx, true
		}
	}
	return nil, false
}

// TableNames returns all display names, sorted.
func (c *Catalog) TableNames() []string {
	names := make([]string, 0, len(c.tables))
	for _, t := range c.tables {
		names = append(names, t.Name)
	}
	sort.Strings(names)
	return names
}

// catalogDoc is the sidecar file layout.
type catalogDoc struct {
	Tables  []*TableInfo `yaml:"tables"`
	Indexes []*IndexInfo `yaml:"indexes"`
}

func (c *Catalog) toDoc() *catalogDoc {
	doc := &catalogDoc{}
	for _, name := range c.TableNames() {
		t, _ := c.GetTable(name)
		doc.Tables = append(doc.Tables, t)
		doc.Indexes = append(doc.Indexes, c.Indexes(name)...)
	}
	return doc
}

func catalogFromDoc(doc *catalogDoc) (*Catalog, error) {
	c := NewCatalog()
	for _, t := range doc.Tables {
		key := strings.ToLower(t.Name)
		if _, ok := c.tables[key]; ok {
			return nil, fmt.Errorf("%w: %s", ErrTableExists, t.Name)
		}
		c.tables[key] = t
	}
	for _, idx := range doc.Indexes {
		if err := c.AddIndex(idx); err != nil {
			return nil, err
		}
	}
	return c, nil
}
