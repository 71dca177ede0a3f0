package textage

import (
	"strings"
	"testing"

	"golang.org/x/text/encoding/japanese"
	"golang.org/x/text/transform"
)

func encodeShiftJIS(t *testing.T, s string) []byte {
	t.Helper()
	out, _, err := transform.String(japanese.ShiftJIS.NewEncoder(), s)
	if err != nil {
		t.Fatalf("encode fixture: %v", err)
	}
	return []byte(out)
}

func TestDecodeDocument_HeaderCharsetFirst(t *testing.T) {
	raw := encodeShiftJIS(t, "titletbl={'k':['冥']};")
	text, enc := DecodeDocument(raw, "application/javascript; charset=Shift_JIS")
	if enc != "shift_jis" {
		t.Errorf("encoding = %q, want shift_jis", enc)
	}
	if !strings.Contains(text, "冥") {
		t.Errorf("decoded text lost Japanese content: %q", text)
	}
}

func TestDecodeDocument_FallsBackWithoutCharset(t *testing.T) {
	raw := encodeShiftJIS(t, "titletbl={'k':['交差する宿命']};")
	text, _ := DecodeDocument(raw, "application/javascript")
	if !strings.Contains(text, "交差する宿命") {
		t.Errorf("decoded text lost Japanese content: %q", text)
	}
}

func TestDecodeDocument_PlainASCII(t *testing.T) {
	raw := []byte("datatbl={};")
	text, _ := DecodeDocument(raw, "")
	if text != "datatbl={};" {
		t.Errorf("decoded = %q", text)
	}
}

func TestDecodeDocument_ValidUTF8(t *testing.T) {
	raw := []byte("titletbl={'k':['日本語']};")
	text, _ := DecodeDocument(raw, "text/javascript; charset=utf-8")
	if !strings.Contains(text, "日本語") {
		t.Errorf("decoded = %q", text)
	}
}

func TestCharsetFromContentType(t *testing.T) {
	if got := charsetFromContentType("application/javascript; charset=Shift_JIS"); got != "Shift_JIS" {
		t.Errorf("charset = %q, want Shift_JIS", got)
	}
	if got := charsetFromContentType("application/javascript"); got != "" {
		t.Errorf("charset = %q, want empty", got)
	}
}
