package batchsql

import "sort"

// RecordUpdate is a row-oriented update of one record, keyed by column name.
type RecordUpdate struct {
	RecordID string         `json:"recordId"`
	Values   map[string]any `json:"values"`
}

// Pivot turns row-oriented updates into the column-oriented map Build
// expects. Records keep their relative order inside every column.
func Pivot(updates []RecordUpdate) map[string][]Cell {
	out := make(map[string][]Cell)
	for _, u := range updates {
		cols := make([]string, 0, len(u.Values))
		for col := range u.Values {
			cols = append(cols, col)
		}
		sort.Strings(cols)
		for _, col := range cols {
			out[col] = append(out[col], Cell{RecordID: u.RecordID, Value: u.Values[col]})
		}
	}
	return out
}
