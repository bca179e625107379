package rsge

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"sort"
	"strings"
	"unicode"

	"github.com/phenrril/orderdesk/internal/domain"
)

// The service answers with a deeply nested, loosely typed tree whose
// element names show up in several spellings (BUYER_TIN, buyer_tin,
// BuyerTin). Element names are canonicalized to UPPER_SNAKE once, here at
// the decode boundary, so everything downstream matches a single spelling.
//
// A decoded value is one of: string (text-only element), map[string]any
// (element with children) or []any (repeated sibling elements).

const maxDepth = 100

// canonicalKey rewrites an element name as UPPER_SNAKE, splitting on
// underscores, hyphens and camel humps: buyerTin, BUYER_TIN and BuyerTin
// all become BUYER_TIN.
func canonicalKey(name string) string {
	var b strings.Builder
	runes := []rune(name)
	for i, r := range runes {
		if r == '_' || r == '-' || r == ' ' {
			if b.Len() > 0 && b.String()[b.Len()-1] != '_' {
				b.WriteByte('_')
			}
			continue
		}
		if i > 0 && unicode.IsUpper(r) && b.Len() > 0 && b.String()[b.Len()-1] != '_' {
			prev := runes[i-1]
			next := i+1 < len(runes) && unicode.IsLower(runes[i+1])
			if unicode.IsLower(prev) || unicode.IsDigit(prev) || (unicode.IsUpper(prev) && next) {
				b.WriteByte('_')
			}
		}
		b.WriteRune(unicode.ToUpper(r))
	}
	return strings.Trim(b.String(), "_")
}

// parseResponse decodes a SOAP response body and returns the content of
// the {operation}Result element as a canonical-keyed map. A faultstring
// anywhere in the document is a transport-level failure. A missing result
// node degrades to an empty map.
func parseResponse(body []byte, operation string) (map[string]any, error) {
	root, err := decodeTree(bytes.NewReader(body))
	if err != nil {
		return nil, domain.NewExternal("rs.ge", "malformed SOAP response", err)
	}
	if fault := findString(root, "FAULTSTRING"); fault != "" {
		return nil, domain.NewExternal("rs.ge", fault, nil)
	}
	resultKey := canonicalKey(operation) + "_RESULT"
	if m, ok := findValue(root, resultKey).(map[string]any); ok {
		return m, nil
	}
	return map[string]any{}, nil
}

func decodeTree(r io.Reader) (map[string]any, error) {
	d := xml.NewDecoder(r)
	for {
		tok, err := d.Token()
		if err != nil {
			return nil, err
		}
		if start, ok := tok.(xml.StartElement); ok {
			v, err := decodeElement(d, start, 0)
			if err != nil {
				return nil, err
			}
			m, ok := v.(map[string]any)
			if !ok {
				m = map[string]any{canonicalKey(start.Name.Local): v}
			}
			return m, nil
		}
	}
}

func decodeElement(d *xml.Decoder, start xml.StartElement, depth int) (any, error) {
	if depth > maxDepth {
		return nil, fmt.Errorf("element %s nested deeper than %d levels", start.Name.Local, maxDepth)
	}
	children := map[string]any{}
	var text strings.Builder
	for {
		tok, err := d.Token()
		if err != nil {
			return nil, err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			v, err := decodeElement(d, t, depth+1)
			if err != nil {
				return nil, err
			}
			key := canonicalKey(t.Name.Local)
			switch existing := children[key].(type) {
			case nil:
				children[key] = v
			case []any:
				children[key] = append(existing, v)
			default:
				children[key] = []any{existing, v}
			}
		case xml.CharData:
			text.Write(t)
		case xml.EndElement:
			if len(children) == 0 {
				return strings.TrimSpace(text.String()), nil
			}
			return children, nil
		}
	}
}

// findValue walks the tree and returns the first value stored under the
// given canonical key.
func findValue(v any, key string) any {
	switch t := v.(type) {
	case map[string]any:
		if got, ok := t[key]; ok {
			return got
		}
		for _, k := range sortedKeys(t) {
			if got := findValue(t[k], key); got != nil {
				return got
			}
		}
	case []any:
		for _, item := range t {
			if got := findValue(item, key); got != nil {
				return got
			}
		}
	}
	return nil
}

func findString(v any, key string) string {
	s, _ := findValue(v, key).(string)
	return s
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
