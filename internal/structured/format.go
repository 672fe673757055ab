package structured

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/kalambet/uniguide/internal/storage"
)

// FormatTable renders a result set as answer text. A single value is
// returned bare; otherwise each row becomes "col: val, col: val" on its own
// line.
func FormatTable(t storage.Table) string {
	if len(t.Rows) == 1 && len(t.Rows[0]) == 1 {
		return formatValue(t.Rows[0][0])
	}
	lines := make([]string, 0, len(t.Rows))
	for _, row := range t.Rows {
		parts := make([]string, 0, len(row))
		for i, v := range row {
			col := fmt.Sprintf("column%d", i+1)
			if i < len(t.Columns) {
				col = t.Columns[i]
			}
			parts = append(parts, col+": "+formatValue(v))
		}
		lines = append(lines, strings.Join(parts, ", "))
	}
	return strings.Join(lines, "\n")
}

func formatValue(v any) string {
	switch x := v.(type) {
	case nil:
		return "NULL"
	case string:
		return x
	case []byte:
		return string(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(x)
	case time.Time:
		return x.Format(time.RFC3339)
	default:
		return fmt.Sprint(x)
	}
}
