package simpleimage

import (
	"encoding/base64"
	"encoding/json"
	"strings"
	"time"
)

const cursorVersion = "v1"

type cursorPayload struct {
	T  int64  `json:"t"`
	ID string `json:"id"`
}

// EncodeCursor renders a sort key as an opaque, versioned token.
func EncodeCursor(k SortKey) string {
	b, _ := json.Marshal(cursorPayload{T: k.CreatedAt.UnixNano(), ID: k.ImageID})
	return cursorVersion + "." + base64.RawURLEncoding.EncodeToString(b)
}

// DecodeCursor parses a token produced by EncodeCursor.
func DecodeCursor(s string) (SortKey, error) {
	invalid := &ValidationError{Field: "cursor", Reason: "is malformed"}

	version, body, ok := strings.Cut(s, ".")
	if !ok {
		return SortKey{}, invalid
	}
	if version != cursorVersion {
		return SortKey{}, &ValidationError{Field: "cursor", Reason: "unsupported version " + version}
	}
	raw, err := base64.RawURLEncoding.DecodeString(body)
	if err != nil {
		return SortKey{}, invalid
	}
	var p cursorPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return SortKey{}, invalid
	}
	if p.ID == "" {
		return SortKey{}, invalid
	}
	return SortKey{CreatedAt: time.Unix(0, p.T).UTC(), ImageID: p.ID}, nil
}
