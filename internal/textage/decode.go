package textage

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/japanese"
	"golang.org/x/text/transform"
)

var charsetRE = regexp.MustCompile(`(?i)charset\s*=\s*([A-Za-z0-9._-]+)`)

// decodeCandidates is the fixed fallback order for Textage documents. The
// endpoints usually omit charset and the payloads are historically CP932.
var decodeCandidates = []string{"cp932", "shift_jis", "utf-8", "euc-jp"}

// DecodeDocument converts raw Textage bytes to a string. The Content-Type
// charset, when present, is tried first, then the fixed candidate list. A
// candidate is accepted only when it decodes without replacement characters;
// if none does, the bytes are decoded as CP932 with replacements.
//
// Returns the decoded text and the name of the encoding that was used.
func DecodeDocument(raw []byte, contentType string) (string, string) {
	var candidates []string
	if cs := charsetFromContentType(contentType); cs != "" {
		candidates = append(candidates, cs)
	}
	candidates = append(candidates, decodeCandidates...)

	seen := map[string]bool{}
	for _, name := range candidates {
		key := strings.ToLower(name)
		if seen[key] {
			continue
		}
		seen[key] = true

		text, ok := decodeStrict(raw, key)
		if ok {
			return text, key
		}
	}

	text, _, err := transform.String(japanese.ShiftJIS.NewDecoder(), string(raw))
	if err != nil {
		return string(raw), "raw"
	}
	return text, "cp932"
}

// decodeStrict decodes raw with the named encoding, rejecting the result if
// the encoding is unknown or any byte had to be replaced.
func decodeStrict(raw []byte, name string) (string, bool) {
	enc := encodingByName(name)
	if name == "utf-8" || name == "utf8" {
		if utf8.Valid(raw) {
			return string(raw), true
		}
		return "", false
	}
	if enc == nil {
		return "", false
	}

	text, _, err := transform.String(enc.NewDecoder(), string(raw))
	if err != nil {
		return "", false
	}
	if strings.ContainsRune(text, utf8.RuneError) {
		return "", false
	}
	return text, true
}

func encodingByName(name string) encoding.Encoding {
	switch name {
	case "cp932", "shift_jis", "shift-jis", "sjis", "windows-31j", "ms932":
		return japanese.ShiftJIS
	case "euc-jp", "euc_jp", "eucjp":
		return japanese.EUCJP
	case "iso-2022-jp":
		return japanese.ISO2022JP
	default:
		return nil
	}
}

func charsetFromContentType(contentType string) string {
	m := charsetRE.FindStringSubmatch(contentType)
	if m == nil {
		return ""
	}
	return strings.TrimSpace(m[1])
}
