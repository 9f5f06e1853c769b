// Package pagination implements opaque keyset cursors for newest-first lists.
package pagination

import (
	"encoding/base64"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	DefaultLimit = 25
	MaxLimit     = 100
)

var ErrInvalidCursor = errors.New("invalid cursor")

// Params holds cursor pagination inputs from controllers or services.
type Params struct {
	Limit  int
	Cursor string
}

// Cursor points just past the last (created_at, id) pair of a page.
type Cursor struct {
	CreatedAt time.Time
	ID        uuid.UUID
}

func NormalizeLimit(limit int) int {
	switch {
	case limit <= 0:
		return DefaultLimit
	case limit > MaxLimit:
		return MaxLimit
	default:
		return limit
	}
}

// LimitWithBuffer is the row count to fetch so Trim can tell whether another
// page exists.
func LimitWithBuffer(limit int) int {
	return NormalizeLimit(limit) + 1
}

// Trim cuts rows fetched with LimitWithBuffer down to one page and returns the
// last kept row when more rows follow.
func Trim[T any](rows []T, limit int) ([]T, *T) {
	limit = NormalizeLimit(limit)
	if len(rows) <= limit {
		return rows, nil
	}
	page := rows[:limit]
	return page, &page[limit-1]
}

// Cursors travel in query strings, so they use the URL-safe alphabet.
var encoding = base64.RawURLEncoding

const (
	kindTime     = "t"
	kindSequence = "s"
)

func encode(kind string, fields ...string) string {
	return encoding.EncodeToString([]byte(kind + "|" + strings.Join(fields, "|")))
}

func decode(value, kind string, want int) ([]string, error) {
	raw, err := encoding.DecodeString(strings.TrimSpace(value))
	if err != nil {
		return nil, ErrInvalidCursor
	}
	parts := strings.Split(string(raw), "|")
	if len(parts) != want+1 || parts[0] != kind {
		return nil, ErrInvalidCursor
	}
	return parts[1:], nil
}

func EncodeCursor(cursor Cursor) string {
	return encode(kindTime, cursor.CreatedAt.UTC().Format(time.RFC3339Nano), cursor.ID.String())
}

// ParseCursor returns nil for a blank value.
func ParseCursor(value string) (*Cursor, error) {
	if strings.TrimSpace(value) == "" {
		return nil, nil
	}
	fields, err := decode(value, kindTime, 2)
	if err != nil {
		return nil, err
	}
	createdAt, err := time.Parse(time.RFC3339Nano, fields[0])
	if err != nil {
		return nil, ErrInvalidCursor
	}
	id, err := uuid.Parse(fields[1])
	if err != nil {
		return nil, ErrInvalidCursor
	}
	return &Cursor{CreatedAt: createdAt, ID: id}, nil
}

// EncodeSequence builds a cursor for ledgers ordered by a per-owner sequence.
func EncodeSequence(seq int64) string {
	return encode(kindSequence, strconv.FormatInt(seq, 10))
}

// ParseSequence returns 0 for a blank value.
func ParseSequence(value string) (int64, error) {
	if strings.TrimSpace(value) == "" {
		return 0, nil
	}
	fields, err := decode(value, kindSequence, 1)
	if err != nil {
		return 0, err
	}
	seq, err := strconv.ParseInt(fields[0], 10, 64)
	if err != nil || seq <= 0 {
		return 0, ErrInvalidCursor
	}
	return seq, nil
}
