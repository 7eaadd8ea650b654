// Package ranking orders user records into the leaderboard.
//
// Records are sorted by count descending; equal counts are ordered by name
// using locale-aware collation. Records equal on both keys keep their input
// order. Ranking never mutates its input.
package ranking

import (
	"sort"
	"strconv"
	"strings"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"github.com/okian/snackboard/internal/domain/types"
)

// Option applies a configuration option to the Ranker.
type Option func(*Ranker)

// WithLocale sets the collation locale used for name tie-breaks.
func WithLocale(tag language.Tag) Option {
	return func(r *Ranker) {
		r.tag = tag
	}
}

// Ranker sorts records for display. The zero value is not usable; use New.
type Ranker struct {
	tag language.Tag
}

// New creates a Ranker using the root collation unless a locale is given.
func New(opts ...Option) *Ranker {
	r := &Ranker{tag: language.Und}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// NewForLocale parses a BCP 47 tag and returns a Ranker for it.
func NewForLocale(locale string) (*Ranker, error) {
	tag, err := language.Parse(locale)
	if err != nil {
		return nil, err
	}
	return New(WithLocale(tag)), nil
}

// Locale returns the collation locale.
func (r *Ranker) Locale() language.Tag {
	return r.tag
}

// Rank returns a sorted copy of records. A positive limit truncates the
// result to its first limit entries; zero or negative means no limit.
func (r *Ranker) Rank(records []types.UserRecord, limit int) []types.UserRecord {
	out := types.CloneRecords(records)

	// Collators keep internal buffers, so each call gets its own.
	col := collate.New(r.tag)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return col.CompareString(out[i].Name, out[j].Name) < 0
	})

	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out
}

// Rank sorts records with the root collation.
func Rank(records []types.UserRecord, limit int) []types.UserRecord {
	return New().Rank(records, limit)
}

// ParseLimit interprets a ?limit= query value the way the web client always
// has: leading whitespace is skipped and the longest signed integer prefix is
// read, so "10abc" is 10 and "2.5" is 2. Values with no leading digits,
// non-positive values and values too large to represent mean "no limit" and
// yield 0.
func ParseLimit(raw string) int {
	raw = strings.TrimLeft(raw, " \t\n\r\f\v")
	end := 0
	if end < len(raw) && (raw[end] == '+' || raw[end] == '-') {
		end++
	}
	digits := end
	for end < len(raw) && raw[end] >= '0' && raw[end] <= '9' {
		end++
	}
	if end == digits {
		return 0
	}
	n, err := strconv.Atoi(raw[:end])
	if err != nil || n < 1 {
		return 0
	}
	return n
}
