package mapping

import (
	"strings"
	"time"
	"unicode"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"
)

// DefaultCurrency is used when no currency column is mapped and the resolver
// was built without one.
const DefaultCurrency = "PLN"

// dateLayouts are tried in order. Slash dates read month first and dash or
// dot dates read day first, which is how bank exports in the wild are laid out.
var dateLayouts = []string{
	"2006-01-02",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006/01/02",
	"2006.01.02",
	"02-01-2006",
	"02.01.2006",
	"02.01.2006 15:04:05",
	"01/02/2006",
	"1/2/2006",
	"01/02/06",
	"2-1-2006",
	"2.1.2006",
	"20060102",
	"2 Jan 2006",
	"02 Jan 2006",
	"2 January 2006",
	"Jan 2, 2006",
	"January 2, 2006",
	"Mon, 2 Jan 2006",
}

// Values holds the typed fields resolved from one row.
type Values struct {
	Date        civil.Date
	Amount      decimal.Decimal
	Currency    string
	Description string
	Recipient   *string
	Type        *string
}

// Resolver coerces mapped cells into typed values.
type Resolver struct {
	DefaultCurrency string
}

// NewResolver returns a Resolver that falls back to defaultCurrency. An empty
// or malformed defaultCurrency falls back to DefaultCurrency.
func NewResolver(defaultCurrency string) *Resolver {
	c := strings.ToUpper(strings.TrimSpace(defaultCurrency))
	if !isCurrencyCode(c) {
		c = DefaultCurrency
	}
	return &Resolver{DefaultCurrency: c}
}

// Lookup returns the raw cell of the first header mapped to f. It reports
// false when f is unmapped or the row has no such header.
func Lookup(row RawRow, m ColumnMapping, f Field) (string, bool) {
	header, ok := m.HeaderFor(f)
	if !ok {
		return "", false
	}
	return row.Get(header)
}

// Resolve coerces every semantic field of row. Only the date can fail.
func (r *Resolver) Resolve(row RawRow, m ColumnMapping) (Values, error) {
	date, err := r.Date(row, m)
	if err != nil {
		return Values{}, err
	}

	return Values{
		Date:        date,
		Amount:      r.Amount(row, m),
		Currency:    r.Currency(row, m),
		Description: r.Description(row, m),
		Recipient:   r.Optional(row, m, FieldRecipient),
		Type:        r.Optional(row, m, FieldType),
	}, nil
}

// Date parses the date cell. An unmapped, empty or unrecognised value is
// ErrUnparsableDate.
func (r *Resolver) Date(row RawRow, m ColumnMapping) (civil.Date, error) {
	raw, _ := Lookup(row, m, FieldDate)
	return ParseDate(raw)
}

// ParseDate parses s with the permissive layout list.
func ParseDate(s string) (civil.Date, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return civil.Date{}, ErrUnparsableDate
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return civil.DateOf(t), nil
		}
	}
	return civil.Date{}, ErrUnparsableDate
}

// Amount parses the amount cell. Everything except digits, '-' and '.' is
// dropped first; whatever still fails to parse becomes zero.
func (r *Resolver) Amount(row RawRow, m ColumnMapping) decimal.Decimal {
	raw, _ := Lookup(row, m, FieldAmount)
	return ParseAmount(raw)
}

// ParseAmount applies the amount coercion to s.
func ParseAmount(s string) decimal.Decimal {
	cleaned := strings.Map(func(r rune) rune {
		if (r >= '0' && r <= '9') || r == '-' || r == '.' {
			return r
		}
		return -1
	}, s)

	d, err := decimal.NewFromString(cleaned)
	if err != nil {
		return decimal.Zero
	}
	return d.Round(2)
}

// Currency returns the trimmed, upper-cased currency cell, or the default.
func (r *Resolver) Currency(row RawRow, m ColumnMapping) string {
	raw, _ := Lookup(row, m, FieldCurrency)
	c := strings.ToUpper(strings.TrimSpace(raw))
	if isCurrencyCode(c) {
		return c
	}
	if r.DefaultCurrency == "" {
		return DefaultCurrency
	}
	return r.DefaultCurrency
}

// Description returns the trimmed description cell.
func (r *Resolver) Description(row RawRow, m ColumnMapping) string {
	raw, _ := Lookup(row, m, FieldDescription)
	return strings.TrimSpace(raw)
}

// Optional returns the trimmed cell for f, or nil when it is unmapped or blank.
func (r *Resolver) Optional(row RawRow, m ColumnMapping, f Field) *string {
	raw, ok := Lookup(row, m, f)
	if !ok {
		return nil
	}
	v := strings.TrimSpace(raw)
	if v == "" {
		return nil
	}
	return &v
}

func isCurrencyCode(s string) bool {
	if len(s) != 3 {
		return false
	}
	for _, r := range s {
		if !unicode.IsUpper(r) || r > unicode.MaxASCII {
			return false
		}
	}
	return true
}
