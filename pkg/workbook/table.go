package workbook

import (
	"fmt"
	"strconv"
)

// Table is the display projection of a record set.
type Table struct {
	Columns []string   `json:"columns"`
	Rows    [][]string `json:"rows"`
}

// NewTable takes its columns from the first record. Every row looks each
// column up in its own record; missing or nil values render as "".
func NewTable(records []Record) Table {
	t := Table{Columns: []string{}, Rows: [][]string{}}
	if len(records) == 0 {
		return t
	}
	t.Columns = records[0].Keys()
	for _, rec := range records {
		row := make([]string, len(t.Columns))
		for i, col := range t.Columns {
			if v, ok := rec.Get(col); ok {
				row[i] = FormatValue(v)
			}
		}
		t.Rows = append(t.Rows, row)
	}
	return t
}

// Empty reports whether there is nothing to show.
func (t Table) Empty() bool {
	return len(t.Rows) == 0
}

// FormatValue renders a cell value for display.
func FormatValue(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(x)
	default:
		return fmt.Sprint(x)
	}
}
