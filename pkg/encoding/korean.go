// Package encoding handles the EUC-KR names found in Ragnarok Online archives
// and model files.
package encoding

import (
	"bytes"
	"strconv"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/korean"
	"golang.org/x/text/transform"
)

// LowerASCII lowercases ASCII letters only. EUC-KR bytes pass through
// untouched, where strings.ToLower would replace them with U+FFFD.
func LowerASCII(s string) string {
	i := 0
	for ; i < len(s); i++ {
		if c := s[i]; 'A' <= c && c <= 'Z' {
			break
		}
	}
	if i == len(s) {
		return s
	}
	b := []byte(s)
	for ; i < len(b); i++ {
		if c := b[i]; 'A' <= c && c <= 'Z' {
			b[i] = c + 'a' - 'A'
		}
	}
	return string(b)
}

// NormalizePath converts backslashes to slashes and lowercases the ASCII
// letters of an archive path.
func NormalizePath(path string) string {
	return LowerASCII(strings.ReplaceAll(path, "\\", "/"))
}

// CString returns the bytes of data up to the first NUL.
func CString(data []byte) string {
	if i := bytes.IndexByte(data, 0); i >= 0 {
		data = data[:i]
	}
	return string(data)
}

// IsASCII reports whether s holds 7-bit characters only.
func IsASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= utf8.RuneSelf {
			return false
		}
	}
	return true
}

// DecodeEUCKR converts EUC-KR bytes to UTF-8.
func DecodeEUCKR(data []byte) (string, error) {
	out, _, err := transform.Bytes(korean.EUCKR.NewDecoder(), data)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

// EncodeEUCKR converts a UTF-8 string to EUC-KR.
func EncodeEUCKR(s string) (string, error) {
	out, _, err := transform.Bytes(korean.EUCKR.NewEncoder(), []byte(s))
	if err != nil {
		return "", err
	}
	return string(out), nil
}

// Display returns a printable form of a name read from game data. Valid
// UTF-8 is returned as is; anything else is decoded as EUC-KR, falling back
// to a quoted form.
func Display(s string) string {
	if utf8.ValidString(s) {
		return s
	}
	if d, err := DecodeEUCKR([]byte(s)); err == nil && utf8.ValidString(d) {
		return d
	}
	q := strconv.Quote(s)
	return q[1 : len(q)-1]
}
