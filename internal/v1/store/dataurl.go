package store

import (
	"encoding/base64"
	"fmt"
	"strings"
)

// decodeDataURL turns `data:<mime>;base64,<payload>` into raw bytes. It
// tolerates a missing scheme by treating the whole string as base64 payload,
// since some clients omit the header for already-known mime types.
func decodeDataURL(s string) ([]byte, error) {
	if idx := strings.Index(s, ","); idx != -1 && strings.HasPrefix(s, "data:") {
		s = s[idx+1:]
	}
	data, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("store: decode attachment data: %w", err)
	}
	return data, nil
}

// encodeDataURL renders raw bytes back into the wire's inline data URL form.
func encodeDataURL(mimeType string, data []byte) string {
	return fmt.Sprintf("data:%s;base64,%s", mimeType, base64.StdEncoding.EncodeToString(data))
}
