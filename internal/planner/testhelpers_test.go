package planner

import (
	"tidb-charts/internal/introspection"
	"tidb-charts/internal/sqltype"
)

func readingsTable() introspection.TableSchema {
	return introspection.TableSchema{
		Name: "readings",
		Columns: []introspection.Column{
			{Name: "id", DataType: "bigint", Kind: sqltype.KindNumeric, IsPrimaryKey: true},
			{Name: "day", DataType: "datetime", Kind: sqltype.KindTemporal},
			{Name: "sensor", DataType: "varchar", Kind: sqltype.KindText},
			{Name: "value", DataType: "decimal", Kind: sqltype.KindNumeric},
			{Name: "recorded_at", DataType: "timestamp", Kind: sqltype.KindTemporal},
		},
	}
}

func readingsProfile() TableProfile {
	return TableProfile{BucketColumn: "day"}
}

func strPtr(s string) *string { return &s }

func intPtr(i int) *int { return &i }
