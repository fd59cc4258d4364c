package currency

import (
	"encoding/json"
	"html/template"
	"math"
	"math/big"
	"reflect"
	"strings"

	"github.com/shopspring/decimal"
)

const (
	decimalPlaces  = 2
	decimalMark    = ","
	groupSeparator = " "
	groupSize      = 3

	// MaxIntegerDigits and MaxFractionDigits bound the amounts accepted from
	// text. Larger exponents make rounding cost grow with the exponent.
	MaxIntegerDigits  = 30
	MaxFractionDigits = 30
)

// Formatter renders a value for display. Non-numeric values are returned unchanged.
type Formatter func(value any) any

// Format renders numeric values as a two-place decimal string using a comma
// decimal mark and spaces between thousands groups, e.g. 1234.5 -> "1 234,50".
// Any value that is not of a numeric type is returned as is.
func Format(value any) any {
	d, ok := toDecimal(value)
	if !ok {
		if s, special := nonFinite(value); special {
			return s
		}
		return value
	}
	return FormatDecimal(d)
}

// FormatDecimal formats d rounded half away from zero to two places.
func FormatDecimal(d decimal.Decimal) string {
	fixed := d.StringFixed(decimalPlaces)

	sign := ""
	if strings.HasPrefix(fixed, "-") {
		sign, fixed = "-", fixed[1:]
	}

	integer, fraction, _ := strings.Cut(fixed, ".")
	if strings.Trim(integer+fraction, "0") == "" {
		sign = ""
	}
	return sign + groupThousands(integer) + decimalMark + fraction
}

// FormatFloat formats f. NaN and infinities are rendered as "NaN", "Infinity"
// and "-Infinity".
func FormatFloat(f float64) string {
	if s, special := nonFinite(f); special {
		return s
	}
	return FormatDecimal(decimal.NewFromFloat(f))
}

// FormatInt formats n with two zero decimals.
func FormatInt(n int64) string {
	return FormatDecimal(decimal.NewFromInt(n))
}

// Parse converts raw text into a decimal. Both "." and "," are accepted as the
// decimal mark and grouping spaces are ignored, so Parse(Format(x)) round trips.
// Text outside WithinLimits is rejected.
func Parse(raw string) (decimal.Decimal, bool) {
	s := strings.TrimSpace(raw)
	s = strings.ReplaceAll(s, groupSeparator, "")
	s = strings.ReplaceAll(s, "\u00a0", "")
	s = strings.Replace(s, decimalMark, ".", 1)
	if s == "" {
		return decimal.Zero, false
	}
	d, err := decimal.NewFromString(s)
	if err != nil || !WithinLimits(d) {
		return decimal.Zero, false
	}
	return d, true
}

// WithinLimits reports whether d has at most MaxIntegerDigits integer digits
// and its exponent keeps at most MaxFractionDigits fractional digits.
func WithinLimits(d decimal.Decimal) bool {
	exp := int(d.Exponent())
	if exp < -MaxFractionDigits || exp > MaxIntegerDigits {
		return false
	}
	coef := d.Coefficient()
	// log2(10) < 4, so this rejects oversized coefficients before printing them.
	if coef.BitLen() > 4*(MaxIntegerDigits+MaxFractionDigits) {
		return false
	}
	return len(coef.Abs(coef).String())+exp <= MaxIntegerDigits
}

// TemplateFuncs exposes Format as "toCurrency" for html/template callers.
func TemplateFuncs() template.FuncMap {
	return template.FuncMap{"toCurrency": Format}
}

func groupThousands(digits string) string {
	if len(digits) <= groupSize {
		return digits
	}

	var b strings.Builder
	b.Grow(len(digits) + len(digits)/groupSize)

	head := len(digits) % groupSize
	if head == 0 {
		head = groupSize
	}
	b.WriteString(digits[:head])
	for i := head; i < len(digits); i += groupSize {
		b.WriteString(groupSeparator)
		b.WriteString(digits[i : i+groupSize])
	}
	return b.String()
}

func toDecimal(value any) (decimal.Decimal, bool) {
	switch v := value.(type) {
	case nil:
		return decimal.Zero, false
	case decimal.Decimal:
		return v, true
	case *decimal.Decimal:
		if v == nil {
			return decimal.Zero, false
		}
		return *v, true
	case json.Number:
		d, err := decimal.NewFromString(v.String())
		if err != nil {
			return decimal.Zero, false
		}
		return d, true
	case int:
		return decimal.NewFromInt(int64(v)), true
	case int64:
		return decimal.NewFromInt(v), true
	case float64:
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return decimal.Zero, false
		}
		return decimal.NewFromFloat(v), true
	}

	// Remaining sized and named numeric types.
	rv := reflect.ValueOf(value)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return decimal.NewFromInt(rv.Int()), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return decimal.NewFromBigInt(new(big.Int).SetUint64(rv.Uint()), 0), true
	case reflect.Float32:
		f := rv.Float()
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return decimal.Zero, false
		}
		return decimal.NewFromFloat32(float32(f)), true
	case reflect.Float64:
		f := rv.Float()
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return decimal.Zero, false
		}
		return decimal.NewFromFloat(f), true
	}
	return decimal.Zero, false
}

func nonFinite(value any) (string, bool) {
	if value == nil {
		return "", false
	}
	rv := reflect.ValueOf(value)
	if rv.Kind() != reflect.Float32 && rv.Kind() != reflect.Float64 {
		return "", false
	}
	f := rv.Float()
	switch {
	case math.IsNaN(f):
		return "NaN", true
	case math.IsInf(f, 1):
		return "Infinity", true
	case math.IsInf(f, -1):
		return "-Infinity", true
	}
	return "", false
}
