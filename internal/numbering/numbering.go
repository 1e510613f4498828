// Package numbering allocates gapless, per-day document numbers of the form
// PREFIX-YYYYMMDD-NNNN.
package numbering

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/angelmondragon/gobd-ledger/pkg/enums"
	pkgerrors "github.com/angelmondragon/gobd-ledger/pkg/errors"
)

const dayLayout = "20060102"

const nextSQL = `INSERT INTO document_sequences (prefix, day, last_value) VALUES (?, ?, 1)
ON CONFLICT (prefix, day) DO UPDATE SET last_value = document_sequences.last_value + 1
RETURNING last_value`

// Allocator hands out document numbers inside a caller's transaction.
type Allocator interface {
	Next(ctx context.Context, tx *gorm.DB, prefix enums.DocumentPrefix, day time.Time) (string, error)
}

// Sequencer is the Postgres/sqlite backed Allocator. The upsert takes a row
// lock on (prefix, day) until commit, so concurrent creators queue instead of
// colliding, and a rolled back transaction gives its number back.
type Sequencer struct{}

func NewSequencer() *Sequencer {
	return &Sequencer{}
}

func (s *Sequencer) Next(ctx context.Context, tx *gorm.DB, prefix enums.DocumentPrefix, day time.Time) (string, error) {
	if tx == nil {
		return "", errors.New("transaction required")
	}
	if !prefix.IsValid() {
		return "", pkgerrors.Validationf("unknown document prefix %q", prefix)
	}
	if day.IsZero() {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "document day is required")
	}

	key := day.Format(dayLayout)
	var value int64
	if err := tx.WithContext(ctx).Raw(nextSQL, string(prefix), key).Scan(&value).Error; err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "allocate document number")
	}
	if value <= 0 {
		return "", pkgerrors.New(pkgerrors.CodeInternal, "document sequence returned no value")
	}
	return Format(prefix, day, value), nil
}

// Format renders a document number.
func Format(prefix enums.DocumentPrefix, day time.Time, seq int64) string {
	return fmt.Sprintf("%s-%s-%04d", prefix, day.Format(dayLayout), seq)
}

// Number is a parsed document number.
type Number struct {
	Prefix   enums.DocumentPrefix
	Day      time.Time
	Sequence int64
}

// Parse splits a document number into its parts.
func Parse(raw string) (Number, error) {
	parts := strings.Split(raw, "-")
	if len(parts) != 3 {
		return Number{}, fmt.Errorf("malformed document number %q", raw)
	}
	prefix, err := enums.ParseDocumentPrefix(parts[0])
	if err != nil {
		return Number{}, err
	}
	day, err := time.Parse(dayLayout, parts[1])
	if err != nil {
		return Number{}, fmt.Errorf("malformed document day in %q: %w", raw, err)
	}
	seq, err := strconv.ParseInt(parts[2], 10, 64)
	if err != nil || seq <= 0 {
		return Number{}, fmt.Errorf("malformed document sequence in %q", raw)
	}
	return Number{Prefix: prefix, Day: day, Sequence: seq}, nil
}

// Day returns the calendar day of t in loc as UTC midnight, the form every
// document date is stored and fingerprinted in.
func Day(t time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
