package textage

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

var (
	constDefRE   = regexp.MustCompile(`([A-Z_][A-Z0-9_]*)\s*=\s*([0-9]+)\s*;`)
	titleEntryRE = regexp.MustCompile(`(?s)"((?:\\.|[^"\\])*)"\s*:\s*(\[[^\]]*\])`)
)

// ExtractTable locates `varname = {...}` in JS source text and parses the
// object literal into a map of rows.
//
// The Textage tables are not JSON: they use single-quoted keys, `//`
// comments, `.fontcolor(...)` decorations on strings, bare A-F hex digit
// tokens, named version constants (`SS=35;`), and the occasional raw control
// character inside a string. sanitizeObjectText rewrites all of that into
// strict JSON before decoding. Named constants are replaced with the negated
// value, the project-wide convention for "version referenced by name".
//
// titletbl gets per-entry tolerant parsing: rows that still fail to decode
// after sanitizing are dropped instead of failing the whole table.
func ExtractTable(jsText, varname string) (map[string][]any, error) {
	objText, err := sliceObjectLiteral(jsText, varname)
	if err != nil {
		return nil, err
	}

	consts := map[string]string{}
	for _, m := range constDefRE.FindAllStringSubmatch(jsText, -1) {
		consts[m[1]] = m[2]
	}

	clean := sanitizeObjectText(objText, consts)

	if varname == "titletbl" {
		return parseTitleEntries(clean), nil
	}

	table := map[string][]any{}
	if err := json.Unmarshal([]byte(clean), &table); err != nil {
		return nil, fmt.Errorf("json parse failed for %s: %w", varname, err)
	}
	return table, nil
}

// sliceObjectLiteral returns the balanced `{...}` text assigned to varname.
// Braces inside string literals do not count toward nesting.
func sliceObjectLiteral(jsText, varname string) (string, error) {
	assignRE, err := regexp.Compile(regexp.QuoteMeta(varname) + `\s*=\s*\{`)
	if err != nil {
		return "", err
	}
	loc := assignRE.FindStringIndex(jsText)
	if loc == nil {
		return "", fmt.Errorf("%s not found in JS", varname)
	}

	start := strings.Index(jsText[loc[0]:], "{") + loc[0]
	depth := 0
	inStr := false
	escaped := false
	var quote byte

	for i := start; i < len(jsText); i++ {
		ch := jsText[i]
		if inStr {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == quote:
				inStr = false
			}
			continue
		}
		switch ch {
		case '"', '\'':
			inStr = true
			quote = ch
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return jsText[start : i+1], nil
			}
		}
	}
	return "", fmt.Errorf("closing brace for %s not found", varname)
}

// sanitizeObjectText rewrites a Textage object literal into strict JSON.
// One pass with string-literal awareness:
//
//   - `//` comments are dropped
//   - `.fontcolor(...)` decorations are dropped
//   - single-quoted strings become double-quoted JSON strings
//   - raw control characters inside strings are \u-escaped
//   - bare identifiers matching a named constant become the negated value
//   - remaining bare single-letter A-F tokens are quoted as hex digit strings
func sanitizeObjectText(objText string, consts map[string]string) string {
	var out strings.Builder
	out.Grow(len(objText))

	i := 0
	for i < len(objText) {
		ch := objText[i]

		switch {
		case ch == '"' || ch == '\'':
			str, next := readStringLiteral(objText, i)
			out.WriteString(str)
			i = next

		case ch == '/' && i+1 < len(objText) && objText[i+1] == '/':
			for i < len(objText) && objText[i] != '\n' {
				i++
			}

		case ch == '.' && strings.HasPrefix(objText[i:], ".fontcolor("):
			end := strings.IndexByte(objText[i:], ')')
			if end == -1 {
				i = len(objText)
				break
			}
			i += end + 1

		case isIdentStart(ch):
			j := i
			for j < len(objText) && isIdentPart(objText[j]) {
				j++
			}
			ident := objText[i:j]
			switch {
			case consts[ident] != "":
				out.WriteString("-")
				out.WriteString(consts[ident])
			case len(ident) == 1 && ident[0] >= 'A' && ident[0] <= 'F':
				out.WriteByte('"')
				out.WriteString(ident)
				out.WriteByte('"')
			default:
				out.WriteString(ident)
			}
			i = j

		default:
			out.WriteByte(ch)
			i++
		}
	}
	return out.String()
}

// readStringLiteral consumes the string literal starting at objText[start]
// and returns it re-emitted as a JSON double-quoted string plus the index of
// the first byte after the literal.
func readStringLiteral(objText string, start int) (string, int) {
	quote := objText[start]
	var out strings.Builder
	out.WriteByte('"')

	i := start + 1
	for i < len(objText) {
		ch := objText[i]
		switch {
		case ch == '\\' && i+1 < len(objText):
			next := objText[i+1]
			if quote == '\'' && next == '\'' {
				// \' is not a JSON escape; emit the apostrophe bare.
				out.WriteByte('\'')
			} else {
				out.WriteByte('\\')
				out.WriteByte(next)
			}
			i += 2
		case ch == quote:
			out.WriteByte('"')
			return out.String(), i + 1
		case ch == '"' && quote == '\'':
			out.WriteString(`\"`)
			i++
		case ch < 0x20:
			out.WriteString(fmt.Sprintf(`\u%04x`, ch))
			i++
		default:
			out.WriteByte(ch)
			i++
		}
	}
	// Unterminated string; close it so the JSON error points at content.
	out.WriteByte('"')
	return out.String(), i
}

// parseTitleEntries decodes titletbl entry-by-entry, skipping rows that do
// not survive sanitizing. The version cell is coerced to a string.
func parseTitleEntries(clean string) map[string][]any {
	result := map[string][]any{}
	for _, m := range titleEntryRE.FindAllStringSubmatch(clean, -1) {
		var key string
		if err := json.Unmarshal([]byte(`"`+m[1]+`"`), &key); err != nil {
			continue
		}
		var row []any
		if err := json.Unmarshal([]byte(m[2]), &row); err != nil {
			continue
		}
		if len(row) > 0 {
			row[0] = cellString(row[0])
		}
		result[key] = row
	}
	return result
}

func isIdentStart(ch byte) bool {
	return ch == '_' || (ch >= 'A' && ch <= 'Z') || (ch >= 'a' && ch <= 'z')
}

func isIdentPart(ch byte) bool {
	return isIdentStart(ch) || (ch >= '0' && ch <= '9')
}
