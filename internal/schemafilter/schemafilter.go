// Package schemafilter applies allow/deny filters to inspected tables.
package schemafilter

import (
	"path"
	"slices"
	"strings"

	"tidb-charts/internal/introspection"
)

// Config controls allow/deny filters for tables and columns.
type Config struct {
	AllowTables      []string            `mapstructure:"allow_tables"`
	DenyTables       []string            `mapstructure:"deny_tables"`
	ScanViewsEnabled bool                `mapstructure:"scan_views_enabled"`
	AllowColumns     map[string][]string `mapstructure:"allow_columns"`
	DenyColumns      map[string][]string `mapstructure:"deny_columns"`
}

// TableAllowed reports whether a table name passes the table filters.
// View exclusion needs the inspected schema and is handled by Apply.
func TableAllowed(table string, cfg Config) bool {
	return tableAllowed(table, cfg.AllowTables, cfg.DenyTables)
}

// Apply returns a copy of table holding only the exposed columns.
// It returns false when the table itself is hidden or no column survives.
// Missing allow lists default to allow-all; deny rules always win.
func Apply(table *introspection.TableSchema, cfg Config) (*introspection.TableSchema, bool) {
	if table == nil {
		return nil, false
	}
	if table.IsView && !cfg.ScanViewsEnabled {
		return nil, false
	}
	if !tableAllowed(table.Name, cfg.AllowTables, cfg.DenyTables) {
		return nil, false
	}

	filtered := &introspection.TableSchema{
		Name:    table.Name,
		IsView:  table.IsView,
		Columns: make([]introspection.Column, 0, len(table.Columns)),
	}
	for _, column := range table.Columns {
		if !columnAllowed(table.Name, column.Name, cfg.AllowColumns, cfg.DenyColumns) {
			continue
		}
		filtered.Columns = append(filtered.Columns, column)
	}

	if len(filtered.Columns) == 0 {
		return nil, false
	}
	return filtered, true
}

func tableAllowed(table string, allow, deny []string) bool {
	if matchesAny(table, deny) {
		return false
	}
	if len(allow) == 0 {
		return true
	}
	return matchesAny(table, allow)
}

func columnAllowed(table, column string, allow, deny map[string][]string) bool {
	if matchesAny(column, mergePatterns(deny, table)) {
		return false
	}
	allowPatterns := mergePatterns(allow, table)
	if len(allowPatterns) == 0 {
		return true
	}
	return matchesAny(column, allowPatterns)
}

func mergePatterns(patterns map[string][]string, table string) []string {
	if patterns == nil {
		return nil
	}
	combined := append([]string{}, patterns["*"]...)
	combined = append(combined, patterns[table]...)
	return slices.Compact(combined)
}

// MatchesAny reports whether value matches one of the glob patterns,
// case-insensitively. Malformed patterns never match.
func MatchesAny(value string, patterns []string) bool {
	return matchesAny(value, patterns)
}

func matchesAny(value string, patterns []string) bool {
	value = strings.ToLower(value)
	for _, pattern := range patterns {
		if pattern == "" {
			continue
		}
		ok, err := path.Match(strings.ToLower(pattern), value)
		if err != nil {
			continue
		}
		if ok {
			return true
		}
	}
	return false
}
