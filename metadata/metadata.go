// Package metadata implements the escaped `k=v;k2=v2` codec shared by the
// snapshot writer and the CLI's CSV ingestion path. It is a deliberately
// trivial collaborator: the core never interprets metadata values, only
// stores and compares them.
package metadata

import (
	"fmt"
	"sort"
	"strings"
)

// Encode renders a metadata record as `k=v;k2=v2`, escaping `\`, `;`, and
// `=` with a backslash. Keys are sorted so the encoded line is stable
// across runs. An empty map encodes to the empty string.
func Encode(meta map[string]string) string {
	if len(meta) == 0 {
		return ""
	}
	keys := make([]string, 0, len(meta))
	for k := range meta {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for i, k := range keys {
		if i > 0 {
			b.WriteByte(';')
		}
		b.WriteString(escape(k))
		b.WriteByte('=')
		b.WriteString(escape(meta[k]))
	}
	return b.String()
}

func escape(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch r {
		case '\\', ';', '=':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Decode parses a `k=v;k2=v2` line back into a map. An empty line decodes
// to an empty map. A dangling or trailing escape is an error.
func Decode(line string) (map[string]string, error) {
	meta := map[string]string{}
	if line == "" {
		return meta, nil
	}

	var key, val strings.Builder
	inKey := true
	esc := false
	for _, r := range line {
		if esc {
			dst := &val
			if inKey {
				dst = &key
			}
			dst.WriteRune(r)
			esc = false
			continue
		}
		switch r {
		case '\\':
			esc = true
		case '=':
			if !inKey {
				return nil, fmt.Errorf("metadata: unescaped '=' inside value")
			}
			inKey = false
		case ';':
			meta[key.String()] = val.String()
			key.Reset()
			val.Reset()
			inKey = true
		default:
			if inKey {
				key.WriteRune(r)
			} else {
				val.WriteRune(r)
			}
		}
	}
	if esc {
		return nil, fmt.Errorf("metadata: dangling escape at end of line")
	}
	if !inKey {
		meta[key.String()] = val.String()
	} else if key.Len() > 0 {
		return nil, fmt.Errorf("metadata: trailing key %q without value", key.String())
	}
	return meta, nil
}
