package planner

import (
	"sort"

	"tidb-charts/internal/introspection"
	"tidb-charts/internal/schemafilter"
)

// TableProfile is per-table chart configuration resolved once per request.
type TableProfile struct {
	// BucketColumn is the temporal column that charts group by calendar day.
	// Empty means the table has none and every request takes the raw path.
	BucketColumn string
}

// ResolveProfile picks the bucket column for table from a glob-keyed map.
// An exact key wins over patterns; among patterns, the longest (then
// lexically smallest) match wins so resolution is stable. A configured
// column that the live table does not have is ignored.
func ResolveProfile(table introspection.TableSchema, bucketColumns map[string]string) TableProfile {
	column, ok := lookupBucketColumn(table.Name, bucketColumns)
	if !ok {
		return TableProfile{}
	}
	if _, exists := introspection.FindColumn(table, column); !exists {
		return TableProfile{}
	}
	return TableProfile{BucketColumn: column}
}

func lookupBucketColumn(tableName string, bucketColumns map[string]string) (string, bool) {
	if len(bucketColumns) == 0 {
		return "", false
	}
	if column, ok := bucketColumns[tableName]; ok {
		return column, column != ""
	}

	patterns := make([]string, 0, len(bucketColumns))
	for pattern := range bucketColumns {
		patterns = append(patterns, pattern)
	}
	sort.Slice(patterns, func(i, j int) bool {
		if len(patterns[i]) != len(patterns[j]) {
			return len(patterns[i]) > len(patterns[j])
		}
		return patterns[i] < patterns[j]
	})

	for _, pattern := range patterns {
		if !schemafilter.MatchesAny(tableName, []string{pattern}) {
			continue
		}
		column := bucketColumns[pattern]
		return column, column != ""
	}
	return "", false
}
