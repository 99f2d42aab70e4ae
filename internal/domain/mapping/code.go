package mapping

import (
	"encoding/base64"
	"strings"
	"unicode/utf8"
)

// DecodeCode returns the program text of a stored code field. Code is normally
// base64 encoded; text that is not valid base64 is returned as is.
func DecodeCode(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	raw, err := base64.StdEncoding.DecodeString(s)
	if err != nil || !utf8.Valid(raw) {
		return s
	}
	return string(raw)
}

// EncodeCode base64 encodes program text for storage.
func EncodeCode(code string) string {
	return base64.StdEncoding.EncodeToString([]byte(code))
}
