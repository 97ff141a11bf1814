package gemini

import (
	"bytes"
	"errors"
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"
)

const (
	// DefaultCharset applies when a text response names no charset.
	DefaultCharset = "utf-8"

	// DefaultMeta is assumed for a success response with an empty meta.
	DefaultMeta = "text/gemini; charset=utf-8"
)

var (
	errInvalidUTF8  = errors.New("invalid utf-8 byte sequence")
	errInvalidBytes = errors.New("byte sequence not valid in charset")
)

// asciiCharsets are labels that must be strict 7-bit. htmlindex maps them to
// windows-1252, which would accept any byte.
var asciiCharsets = map[string]bool{
	"us-ascii":       true,
	"ascii":          true,
	"ansi_x3.4-1968": true,
	"iso646-us":      true,
}

// MIME describes the media type of a success response body.
type MIME struct {
	// ContentType is the lowercased type/subtype, e.g. "text/gemini".
	ContentType string

	// Charset is the lowercased charset name, "utf-8" when absent.
	Charset string

	// Attributes holds every other parameter, keys lowercased.
	Attributes map[string]string
}

// ParseMIME parses a ';' delimited meta string. Unknown parameters are kept
// verbatim in Attributes.
func ParseMIME(meta string) MIME {
	meta = strings.TrimSpace(meta)
	if meta == "" {
		meta = DefaultMeta
	}

	parts := strings.Split(meta, ";")
	m := MIME{
		ContentType: strings.ToLower(strings.TrimSpace(parts[0])),
		Charset:     DefaultCharset,
	}

	for _, part := range parts[1:] {
		key, value, _ := strings.Cut(part, "=")
		key = strings.ToLower(strings.TrimSpace(key))
		if key == "" {
			continue
		}
		value = strings.Trim(strings.TrimSpace(value), `"`)
		if key == "charset" {
			if value != "" {
				m.Charset = strings.ToLower(value)
			}
			continue
		}
		if m.Attributes == nil {
			m.Attributes = make(map[string]string)
		}
		m.Attributes[key] = value
	}
	return m
}

// IsText reports whether the body is textual and must be decoded.
func (m MIME) IsText() bool {
	return strings.HasPrefix(m.ContentType, "text/")
}

// Lang returns the lang parameter, if any.
func (m MIME) Lang() string {
	return m.Attributes["lang"]
}

// Encoding resolves Charset to a text decoder.
func (m MIME) Encoding() (encoding.Encoding, error) {
	return htmlindex.Get(m.Charset)
}

// Decode converts body to a Go string using the declared charset.
func (m MIME) Decode(body []byte) (string, error) {
	charset := m.Charset
	if charset == "" {
		charset = DefaultCharset
	}
	if charset == "utf-8" || charset == "utf8" {
		if !utf8.Valid(body) {
			return "", &DecodeError{Charset: charset, Err: errInvalidUTF8}
		}
		return string(body), nil
	}
	if asciiCharsets[charset] {
		for i, c := range body {
			if c >= utf8.RuneSelf {
				return "", &DecodeError{Charset: charset, Err: fmt.Errorf("non-ascii byte 0x%02x at offset %d", c, i)}
			}
		}
		return string(body), nil
	}

	enc, err := m.Encoding()
	if err != nil {
		return "", &DecodeError{Charset: charset, Err: err}
	}
	out, err := enc.NewDecoder().Bytes(body)
	if err != nil {
		return "", &DecodeError{Charset: charset, Err: err}
	}
	// x/text decoders substitute U+FFFD for malformed input instead of
	// failing. A replacement character is genuine only if it encodes back to
	// the original bytes.
	if bytes.ContainsRune(out, utf8.RuneError) {
		back, err := enc.NewEncoder().Bytes(out)
		if err != nil || !bytes.Equal(back, body) {
			return "", &DecodeError{Charset: charset, Err: errInvalidBytes}
		}
	}
	return string(out), nil
}

// String renders the descriptor back into meta form. Attributes are written
// in key order so the output is stable.
func (m MIME) String() string {
	var b strings.Builder
	b.WriteString(m.ContentType)
	if m.Charset != "" {
		b.WriteString("; charset=")
		b.WriteString(m.Charset)
	}

	keys := make([]string, 0, len(m.Attributes))
	for k := range m.Attributes {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		b.WriteString("; ")
		b.WriteString(k)
		b.WriteString("=")
		b.WriteString(m.Attributes[k])
	}
	return b.String()
}
