package merge

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/htmlindex"
)

// DefaultEncodings is the order in which delimited files are decoded.
var DefaultEncodings = []string{"utf-8", "utf-8-sig", "latin-1", "windows-1256"}

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

var errInvalidUTF8 = errors.New("invalid utf-8 byte sequence")

func canonicalEncodingName(name string) string {
	n := strings.ToLower(strings.TrimSpace(name))
	n = strings.ReplaceAll(n, "_", "-")
	switch n {
	case "utf8", "utf-8":
		return "utf-8"
	case "utf8-sig", "utf-8-sig", "utf-8-bom":
		return "utf-8-sig"
	case "latin1", "latin-1", "iso-8859-1", "iso8859-1", "l1":
		return "latin-1"
	case "cp1256", "windows-1256":
		return "windows-1256"
	case "cp1252", "windows-1252":
		return "windows-1252"
	}
	return n
}

func lookupEncoding(name string) (encoding.Encoding, error) {
	switch canonicalEncodingName(name) {
	case "latin-1":
		return charmap.ISO8859_1, nil
	case "windows-1256":
		return charmap.Windows1256, nil
	case "windows-1252":
		return charmap.Windows1252, nil
	}
	enc, err := htmlindex.Get(name)
	if err != nil {
		return nil, fmt.Errorf("unknown encoding %q", name)
	}
	return enc, nil
}

// decodeBytes decodes data strictly: bytes that have no mapping in the
// encoding are an error rather than a replacement character.
func decodeBytes(data []byte, name string) (string, error) {
	switch canonicalEncodingName(name) {
	case "utf-8":
		if !utf8.Valid(data) {
			return "", errInvalidUTF8
		}
		return string(data), nil
	case "utf-8-sig":
		data = bytes.TrimPrefix(data, utf8BOM)
		if !utf8.Valid(data) {
			return "", errInvalidUTF8
		}
		return string(data), nil
	}
	enc, err := lookupEncoding(name)
	if err != nil {
		return "", err
	}
	out, err := enc.NewDecoder().Bytes(data)
	if err != nil {
		return "", err
	}
	if bytes.ContainsRune(out, utf8.RuneError) {
		return "", fmt.Errorf("bytes undefined in %s", name)
	}
	return string(out), nil
}

// encodeString encodes s strictly; runes the encoding cannot represent are an error.
func encodeString(s, name string) ([]byte, error) {
	switch canonicalEncodingName(name) {
	case "utf-8", "utf-8-sig":
		return []byte(s), nil
	}
	enc, err := lookupEncoding(name)
	if err != nil {
		return nil, err
	}
	return enc.NewEncoder().Bytes([]byte(s))
}
