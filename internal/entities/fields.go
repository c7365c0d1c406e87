package entities

// fields.go describes entity columns and converts raw upload cells into the
// normalized strings stored on an entity.
//
// Cells arrive in whatever shape a spreadsheet produced them:
//   - dates in US, EU or ISO layouts, sometimes with 2-digit years
//   - numbers with currency symbols, thousands separators or accounting
//     parentheses for negatives
//   - booleans as yes/no, true/false, y/n or 1/0
//   - Excel formula wrappers (="value") and stray quotes
//
// Every accepted value is rewritten into one canonical form so exports and
// filters compare like with like.

import (
	"fmt"
	"net/mail"
	"regexp"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
)

// FieldType identifies how a column is validated and normalized.
type FieldType int

const (
	FieldText FieldType = iota
	FieldEnum
	FieldDate
	FieldNumeric
	FieldBool
	FieldEmail
)

func (t FieldType) String() string {
	switch t {
	case FieldEnum:
		return "enum"
	case FieldDate:
		return "date"
	case FieldNumeric:
		return "numeric"
	case FieldBool:
		return "bool"
	case FieldEmail:
		return "email"
	default:
		return "text"
	}
}

// FieldSpec describes one column of an entity.
type FieldSpec struct {
	Name       string
	Type       FieldType
	Required   bool
	EnumValues []string
	// Normalizer runs on non-empty cells before type validation.
	Normalizer func(string) string
	// Mutable columns are overwritten when a duplicate row is applied with
	// the update strategy. Natural key columns are never mutable.
	Mutable bool
}

func field(name string, t FieldType) FieldSpec {
	return FieldSpec{Name: name, Type: t, Mutable: true}
}

func text(name string) FieldSpec    { return field(name, FieldText) }
func date(name string) FieldSpec    { return field(name, FieldDate) }
func numeric(name string) FieldSpec { return field(name, FieldNumeric) }
func flag(name string) FieldSpec    { return field(name, FieldBool) }
func email(name string) FieldSpec   { return field(name, FieldEmail) }

func enum(name string, values ...string) FieldSpec {
	f := field(name, FieldEnum)
	f.EnumValues = values
	return f
}

func (f FieldSpec) required() FieldSpec {
	f.Required = true
	return f
}

// key marks the column as part of the natural key.
func (f FieldSpec) key() FieldSpec {
	f.Required = true
	f.Mutable = false
	return f
}

func (f FieldSpec) normalized(fn func(string) string) FieldSpec {
	f.Normalizer = fn
	return f
}

// DateLayout is the canonical stored form of date columns.
const DateLayout = "2006-01-02"

// numericPattern validates a number after currency and separator cleanup.
var numericPattern = regexp.MustCompile(`^[+-]?(\d+(\.\d*)?|\.\d+)([eE][+-]?\d+)?$`)

// TwoDigitYearPivot controls how 2-digit years are read. Years that would
// land more than this many years in the future go back a century.
var TwoDigitYearPivot = 20

var (
	twoDigitYearLayouts = []string{
		"1/2/06", "01/02/06", "1-2-06", "1.2.06", "01.02.06",
	}
	fourDigitYearLayouts = []string{
		"2006-01-02", "2006/01/02", "2006.01.02",
		"1/2/2006", "01/02/2006", "1-2-2006", "01-02-2006", "1.2.2006", "01.02.2006",
		"Jan 2, 2006", "2 Jan 2006",
		"20060102",
		time.RFC3339,
	}
)

// cleanCell strips Excel formula wrappers and surrounding quotes.
func cleanCell(s string) string {
	s = strings.TrimSpace(s)

	if strings.HasPrefix(s, "=\"") && strings.HasSuffix(s, "\"") {
		s = s[2 : len(s)-1]
	} else if strings.HasPrefix(s, "=") {
		s = s[1:]
	}

	return strings.TrimSpace(strings.Trim(s, `"'`))
}

// parseDate accepts the common spreadsheet date layouts.
func parseDate(s string) (time.Time, bool) {
	for _, layout := range fourDigitYearLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}

	pivotYear := time.Now().Year() + TwoDigitYearPivot
	for _, layout := range twoDigitYearLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			if t.Year() > pivotYear {
				t = t.AddDate(-100, 0, 0)
			}
			return t, true
		}
	}
	return time.Time{}, false
}

// parseNumeric strips currency formatting and returns the plain decimal.
func parseNumeric(s string) (string, bool) {
	negative := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		negative = true
		s = strings.TrimSpace(s[1 : len(s)-1])
	}

	s = strings.NewReplacer("$", "", "€", "", "£", "", ",", "", " ", "").Replace(s)
	s = strings.TrimPrefix(s, "+")
	if negative {
		s = "-" + s
	}
	if !numericPattern.MatchString(s) {
		return "", false
	}

	var n pgtype.Numeric
	if err := n.Scan(s); err != nil || !n.Valid {
		return "", false
	}
	return s, true
}

func parseBool(s string) (bool, bool) {
	switch strings.ToLower(s) {
	case "true", "t", "yes", "y", "1":
		return true, true
	case "false", "f", "no", "n", "0":
		return false, true
	default:
		return false, false
	}
}

func formatBool(b bool) string {
	if b {
		return "true"
	}
	return "false"
}

// normalizeCell validates a non-empty cell against spec and returns its
// canonical form.
func normalizeCell(value string, spec FieldSpec) (string, error) {
	if spec.Normalizer != nil {
		value = spec.Normalizer(value)
	}

	switch spec.Type {
	case FieldNumeric:
		n, ok := parseNumeric(value)
		if !ok {
			return "", fmt.Errorf("invalid number format")
		}
		return n, nil
	case FieldDate:
		t, ok := parseDate(value)
		if !ok {
			return "", fmt.Errorf("invalid date format (use YYYY-MM-DD or similar)")
		}
		return t.Format(DateLayout), nil
	case FieldBool:
		b, ok := parseBool(value)
		if !ok {
			return "", fmt.Errorf("must be yes/no, true/false, or 1/0")
		}
		return formatBool(b), nil
	case FieldEnum:
		for _, ev := range spec.EnumValues {
			if strings.EqualFold(ev, value) {
				return ev, nil
			}
		}
		return "", fmt.Errorf("value must be one of: %s", strings.Join(spec.EnumValues, ", "))
	case FieldEmail:
		addr, err := mail.ParseAddress(value)
		if err != nil || addr.Address != value {
			return "", fmt.Errorf("invalid email address")
		}
		return strings.ToLower(value), nil
	default:
		return value, nil
	}
}
