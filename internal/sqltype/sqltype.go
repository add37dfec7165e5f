// Package sqltype classifies SQL data types into the value kinds the chart
// pipeline cares about: numbers, temporal values, and everything else.
package sqltype

import "strings"

// Kind is the chart-facing category of a SQL column.
type Kind int

const (
	// KindText is the default for character, binary, enum, and unknown types.
	KindText Kind = iota
	// KindNumeric covers integer, fixed-point, and floating-point types.
	KindNumeric
	// KindTemporal covers DATE, DATETIME, TIMESTAMP, TIME, and YEAR.
	KindTemporal
	// KindBoolean covers BOOL/BOOLEAN aliases.
	KindBoolean
	// KindJSON covers JSON documents.
	KindJSON
)

// Classify converts a SQL data type string to its Kind.
// The input is case-insensitive. Size specifiers like (10,2) and modifiers
// such as "unsigned" are stripped, so both INFORMATION_SCHEMA.COLUMNS.DATA_TYPE
// and SHOW COLUMNS "Type" values are accepted.
func Classify(sqlType string) Kind {
	sqlType = BaseType(sqlType)
	switch strings.ToUpper(sqlType) {
	case "TINYINT", "SMALLINT", "MEDIUMINT", "INT",
		"INTEGER", "BIGINT", "SERIAL", "BIT",
		"FLOAT", "DOUBLE", "REAL", "DECIMAL", "NUMERIC", "DEC", "FIXED":
		return KindNumeric
	case "DATE", "DATETIME", "TIMESTAMP", "TIME", "YEAR":
		return KindTemporal
	case "BOOL", "BOOLEAN":
		return KindBoolean
	case "JSON":
		return KindJSON
	default:
		return KindText
	}
}

// BaseType strips size specifiers and trailing modifiers from a column type,
// e.g. "decimal(10,2) unsigned" -> "decimal".
func BaseType(sqlType string) string {
	sqlType = strings.TrimSpace(sqlType)
	if idx := strings.Index(sqlType, "("); idx != -1 {
		sqlType = sqlType[:idx]
	}
	if idx := strings.Index(sqlType, " "); idx != -1 {
		sqlType = sqlType[:idx]
	}
	return strings.ToLower(sqlType)
}

// IsNumeric reports whether values of this kind can be aggregated without a cast.
func (k Kind) IsNumeric() bool {
	return k == KindNumeric || k == KindBoolean
}

// String returns the lowercase kind name used in API responses.
func (k Kind) String() string {
	switch k {
	case KindNumeric:
		return "numeric"
	case KindTemporal:
		return "temporal"
	case KindBoolean:
		return "boolean"
	case KindJSON:
		return "json"
	default:
		return "text"
	}
}
