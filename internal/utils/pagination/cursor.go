package pagination

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrInvalidToken is returned for tokens that were not produced by Encode.
var ErrInvalidToken = errors.New("invalid pagination token")

// Cursor is the opaque pagination state of a score-ordered match listing.
// (Score DESC, EventID ASC, MatchedUserID ASC) is the listing order, so the
// last row of a page fully determines where the next page starts.
type Cursor struct {
	Score         int    `json:"s"`
	EventID       uint64 `json:"e"`
	MatchedUserID uint64 `json:"m"`
}

// Encode converts a Cursor into a Base64 string.
func Encode(c Cursor) (string, error) {
	b, err := json.Marshal(c)
	if err != nil {
		return "", fmt.Errorf("failed to marshal cursor: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// Decode parses a Base64 string into a Cursor.
// Empty token → nil cursor (first page).
func Decode(token string) (*Cursor, error) {
	if token == "" {
		return nil, nil
	}

	b, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return nil, ErrInvalidToken
	}

	var c Cursor
	if err := json.Unmarshal(b, &c); err != nil {
		return nil, ErrInvalidToken
	}
	return &c, nil
}
