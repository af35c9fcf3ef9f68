package host

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"unicode"
)

var ErrEmptyPayload = errors.New("executable payload must be a non-empty base64 string")

// DecodeBase64Executable decodes standard base64 text, ignoring any
// whitespace inside it.
func DecodeBase64Executable(payload string) ([]byte, error) {
	normalized := strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, payload)
	if normalized == "" {
		return nil, ErrEmptyPayload
	}
	data, err := base64.StdEncoding.DecodeString(normalized)
	if err != nil {
		return nil, fmt.Errorf("executable payload is not valid base64 data: %w", err)
	}
	return data, nil
}
