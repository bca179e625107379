package rsge

import (
	"fmt"
	"strings"
)

// Waybill is one waybill-like record from the service: canonical
// UPPER_SNAKE keys mapped to decoded values.
type Waybill map[string]any

var amountKeys = []string{
	"FULL_AMOUNT", "TOTAL_AMOUNT", "GROSS_AMOUNT", "NET_AMOUNT",
	"AMOUNT_LARI", "AMOUNT", "SUM", "SUMA", "VALUE", "VALUE_LARI",
}

var dateKeys = []string{"CREATE_DATE", "WAYBILL_DATE", "DATE"}

var idKeys = []string{"ID", "WAYBILL_ID"}

// collectWaybills walks the decoded response tree and gathers every
// waybill-like node. The same waybill id can appear at several depths with
// varying completeness; the richer record wins. The decoder produces a
// strict tree, so a plain recursive descent visits each node exactly once.
func collectWaybills(root map[string]any) []Waybill {
	unwrapped := any(root)
	if inner, ok := root["RESULT"].(map[string]any); ok {
		unwrapped = inner
	}

	byID := map[string]Waybill{}
	var order []string
	var walk func(v any)
	walk = func(v any) {
		switch t := v.(type) {
		case []any:
			for _, item := range t {
				walk(item)
			}
		case map[string]any:
			if id, ok := waybillID(t); ok {
				existing, seen := byID[id]
				if !seen {
					byID[id] = Waybill(t)
					order = append(order, id)
				} else {
					byID[id] = richerWaybill(existing, Waybill(t))
				}
			}
			for _, k := range sortedKeys(t) {
				walk(t[k])
			}
		}
	}
	walk(unwrapped)

	out := make([]Waybill, 0, len(order))
	for _, id := range order {
		out = append(out, byID[id])
	}
	return out
}

// waybillID reports whether the map looks like a waybill: it carries an id
// plus at least one of a tin, status, creation date or amount field.
func waybillID(m map[string]any) (string, bool) {
	id := firstNonBlank(m, idKeys...)
	if id == "" {
		return "", false
	}
	markers := []string{"BUYER_TIN", "SELLER_TIN", "STATUS", "CREATE_DATE", "FULL_AMOUNT", "TOTAL_AMOUNT"}
	for _, k := range markers {
		if _, ok := m[k]; ok {
			return id, true
		}
	}
	return "", false
}

func richerWaybill(a, b Waybill) Waybill {
	sa, sb := completenessScore(a), completenessScore(b)
	if sa != sb {
		if sa > sb {
			return a
		}
		return b
	}
	if len(a) >= len(b) {
		return a
	}
	return b
}

// completenessScore measures how informative a partial record is: amount
// fields weigh most, then a date, then tins and status, plus one point per
// five fields capped at ten.
func completenessScore(m Waybill) int {
	score := 0
	for _, k := range amountKeys {
		if _, ok := m[k]; ok {
			score += 20
			break
		}
	}
	for _, k := range dateKeys {
		if _, ok := m[k]; ok {
			score += 8
			break
		}
	}
	if _, ok := m["BUYER_TIN"]; ok {
		score += 3
	}
	if _, ok := m["SELLER_TIN"]; ok {
		score += 3
	}
	if _, ok := m["STATUS"]; ok {
		score++
	}
	n := len(m)
	if n > 50 {
		n = 50
	}
	return score + n/5
}

func firstNonBlank(m map[string]any, keys ...string) string {
	for _, k := range keys {
		if s := scalarString(m[k]); s != "" {
			return s
		}
	}
	return ""
}

// scalarString renders a leaf value; nested nodes yield "".
func scalarString(v any) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case float64, int, int64, bool:
		return fmt.Sprint(t)
	default:
		return ""
	}
}
