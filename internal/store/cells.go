package store

import (
	"strconv"
	"strings"
)

// Raw sheet cells arrive as whatever the JSON decoder produced for an
// unformatted value: string, float64, bool, or nil. These helpers degrade
// anything malformed instead of failing.

func cellStr(row []any, index int) string {
	if index >= len(row) {
		return ""
	}
	switch v := row[index].(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		if v {
			return "TRUE"
		}
		return "FALSE"
	case int:
		return strconv.Itoa(v)
	default:
		return ""
	}
}

func cellInt(row []any, index int) int {
	s := cellStr(row, index)
	if s == "" {
		return 0
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return int(f)
}

// cellBool parses the fixed truthy token case-insensitively.
func cellBool(row []any, index int) bool {
	return strings.EqualFold(cellStr(row, index), "TRUE")
}
