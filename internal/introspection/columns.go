package introspection

// ColumnNames returns the table's column names in ordinal order.
func ColumnNames(table TableSchema) []string {
	names := make([]string, len(table.Columns))
	for i, col := range table.Columns {
		names[i] = col.Name
	}
	return names
}

// FindColumn returns the named column, if present. Matching is exact:
// identifiers reach SQL text only after passing this lookup.
func FindColumn(table TableSchema, name string) (Column, bool) {
	for _, col := range table.Columns {
		if col.Name == name {
			return col, true
		}
	}
	return Column{}, false
}

// PrimaryKeyColumns returns primary key column names in column order.
// Views report no primary key.
func PrimaryKeyColumns(table TableSchema) []string {
	if table.IsView {
		return nil
	}
	var cols []string
	for _, col := range table.Columns {
		if col.IsPrimaryKey {
			cols = append(cols, col.Name)
		}
	}
	return cols
}
