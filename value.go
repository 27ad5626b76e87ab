package mysqlwire

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// ValueKind tags the variant held by a Value, replacing a duck-typed
// escaper dispatch with an explicit sum type (spec.md §9, "Duck-typed
// value escaping -> tagged dispatch").
type ValueKind int

const (
	KindNull ValueKind = iota
	KindBool
	KindInt
	KindFloat
	KindStr
	KindBytes
	KindDate
	KindDateTime
	KindTime
	KindDuration
	KindDecimal
	KindSeq
	KindMap
)

// Value is the tagged union the escaper and the cursor layer exchange
// with the session, per spec.md §9.
type Value struct {
	kind ValueKind

	b     bool
	i     int64
	f     float64
	s     string
	by    []byte
	t     time.Time
	d     time.Duration
	dec   decimal.Decimal
	seq   []Value
	m     map[string]Value
}

func NullValue() Value                { return Value{kind: KindNull} }
func BoolValue(v bool) Value          { return Value{kind: KindBool, b: v} }
func IntValue(v int64) Value          { return Value{kind: KindInt, i: v} }
func FloatValue(v float64) Value      { return Value{kind: KindFloat, f: v} }
func StrValue(v string) Value         { return Value{kind: KindStr, s: v} }
func BytesValue(v []byte) Value       { return Value{kind: KindBytes, by: v} }
func DateValue(v time.Time) Value     { return Value{kind: KindDate, t: v} }
func DateTimeValue(v time.Time) Value { return Value{kind: KindDateTime, t: v} }
func TimeValue(v time.Duration) Value { return Value{kind: KindTime, d: v} }
func DurationValue(v time.Duration) Value { return Value{kind: KindDuration, d: v} }
func DecimalValue(v decimal.Decimal) Value { return Value{kind: KindDecimal, dec: v} }
func SeqValue(v []Value) Value        { return Value{kind: KindSeq, seq: v} }
func MapValue(v map[string]Value) Value { return Value{kind: KindMap, m: v} }

func (v Value) Kind() ValueKind { return v.kind }

// escapeStringBytes implements the backslash-escaping table from
// spec.md §4.6; noBackslashEscapes narrows it to doubling quotes only
// (server status NO_BACKSLASH_ESCAPES).
func escapeStringBytes(s string, noBackslashEscapes bool) string {
	var b strings.Builder
	b.Grow(len(s) + 8)
	for _, r := range s {
		if noBackslashEscapes {
			if r == '\'' {
				b.WriteString("''")
			} else {
				b.WriteRune(r)
			}
			continue
		}
		switch r {
		case 0:
			b.WriteString(`\0`)
		case '\\':
			b.WriteString(`\\`)
		case '\n':
			b.WriteString(`\n`)
		case '\r':
			b.WriteString(`\r`)
		case 0x1a:
			b.WriteString(`\Z`)
		case '"':
			b.WriteString(`\"`)
		case '\'':
			b.WriteString(`\'`)
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Escape renders v as a SQL literal per spec.md §4.6 and §9's per-variant
// escape functions. noBackslashEscapes mirrors the session's current
// NO_BACKSLASH_ESCAPES server status.
func Escape(v Value, noBackslashEscapes bool) (string, error) {
	switch v.kind {
	case KindNull:
		return "NULL", nil
	case KindBool:
		if v.b {
			return "1", nil
		}
		return "0", nil
	case KindInt:
		return strconv.FormatInt(v.i, 10), nil
	case KindFloat:
		if math.IsInf(v.f, 0) || math.IsNaN(v.f) {
			return "", newLocalError(0, fmt.Sprintf("cannot escape non-finite float %v", v.f)).withKind(KindProgrammingError)
		}
		s := strconv.FormatFloat(v.f, 'g', -1, 64)
		if !strings.ContainsAny(s, "eE.") {
			s += "e0"
		}
		return s, nil
	case KindStr:
		return "'" + escapeStringBytes(v.s, noBackslashEscapes) + "'", nil
	case KindBytes:
		return "_binary'" + escapeStringBytes(string(v.by), noBackslashEscapes) + "'", nil
	case KindDate:
		return "'" + v.t.Format("2006-01-02") + "'", nil
	case KindDateTime:
		return "'" + formatDateTime(v.t) + "'", nil
	case KindTime, KindDuration:
		return "'" + formatDuration(v.d) + "'", nil
	case KindDecimal:
		return v.dec.String(), nil
	case KindSeq:
		parts := make([]string, len(v.seq))
		for i, elem := range v.seq {
			s, err := Escape(elem, noBackslashEscapes)
			if err != nil {
				return "", err
			}
			parts[i] = s
		}
		return "(" + strings.Join(parts, ",") + ")", nil
	case KindMap:
		parts := make([]string, 0, len(v.m))
		for k, elem := range v.m {
			s, err := Escape(elem, noBackslashEscapes)
			if err != nil {
				return "", err
			}
			parts = append(parts, k+"="+s)
		}
		return strings.Join(parts, ", "), nil
	default:
		return "", newLocalError(0, "unknown value kind").withKind(KindProgrammingError)
	}
}

func formatDateTime(t time.Time) string {
	base := t.Format("2006-01-02 15:04:05")
	if ns := t.Nanosecond(); ns != 0 {
		base += fmt.Sprintf(".%06d", ns/1000)
	}
	return base
}

// formatDuration renders a signed TIME value in MySQL's canonical
// HH:MM:SS[.ffffff] form, hours unbounded (unlike clock time).
func formatDuration(d time.Duration) string {
	sign := ""
	if d < 0 {
		sign = "-"
		d = -d
	}
	totalSec := int64(d / time.Second)
	hours := totalSec / 3600
	mins := (totalSec % 3600) / 60
	secs := totalSec % 60
	base := fmt.Sprintf("%s%02d:%02d:%02d", sign, hours, mins, secs)
	if us := int64(d%time.Second) / int64(time.Microsecond); us != 0 {
		base += fmt.Sprintf(".%06d", us)
	}
	return base
}

func (e *MySQLError) withKind(k Kind) *MySQLError {
	e.kind = k
	return e
}

// decodeColumn applies the type-keyed converter table from spec.md §4.6
// to the raw column bytes (no charset transcoding). raw == nil signals SQL
// NULL and short-circuits to KindNull regardless of fd.Type.
func decodeColumn(raw []byte, fd *FieldDescriptor, loc *time.Location) (Value, error) {
	if raw == nil {
		return NullValue(), nil
	}
	switch fd.Type {
	case fieldTypeTiny, fieldTypeShort, fieldTypeLong, fieldTypeLongLong, fieldTypeInt24, fieldTypeYear:
		if fd.Flags&flagUnsigned != 0 {
			n, err := strconv.ParseUint(string(raw), 10, 64)
			if err != nil {
				return BytesValue(raw), nil
			}
			return IntValue(int64(n)), nil
		}
		n, err := strconv.ParseInt(string(raw), 10, 64)
		if err != nil {
			return BytesValue(raw), nil
		}
		return IntValue(n), nil
	case fieldTypeFloat, fieldTypeDouble:
		f, err := strconv.ParseFloat(string(raw), 64)
		if err != nil {
			return BytesValue(raw), nil
		}
		return FloatValue(f), nil
	case fieldTypeDecimal, fieldTypeNewDecimal:
		dec, err := decimal.NewFromString(string(raw))
		if err != nil {
			return BytesValue(raw), nil
		}
		return DecimalValue(dec), nil
	case fieldTypeDate, fieldTypeNewDate:
		t, err := time.ParseInLocation("2006-01-02", string(raw), loc)
		if err != nil {
			return StrValue(string(raw)), nil
		}
		return DateValue(t), nil
	case fieldTypeTimestamp, fieldTypeDateTime:
		t, err := parseDateTime(string(raw), loc)
		if err != nil {
			return StrValue(string(raw)), nil
		}
		return DateTimeValue(t), nil
	case fieldTypeTime:
		d, err := parseTimeDuration(string(raw))
		if err != nil {
			return StrValue(string(raw)), nil
		}
		return TimeValue(d), nil
	case fieldTypeJSON:
		return Value{kind: KindBytes, by: append(json.RawMessage{}, raw...)}, nil
	default:
		return BytesValue(raw), nil
	}
}

func parseDateTime(s string, loc *time.Location) (time.Time, error) {
	layouts := []string{
		"2006-01-02 15:04:05.999999",
		"2006-01-02 15:04:05",
	}
	var lastErr error
	for _, layout := range layouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, nil
		} else {
			lastErr = err
		}
	}
	return time.Time{}, lastErr
}

// parseTimeDuration parses a MySQL TIME literal as a signed duration;
// hours may exceed 23 (spec.md §4.6, "signed duration").
func parseTimeDuration(s string) (time.Duration, error) {
	neg := false
	if strings.HasPrefix(s, "-") {
		neg = true
		s = s[1:]
	}
	var frac string
	if i := strings.IndexByte(s, '.'); i >= 0 {
		frac = s[i+1:]
		s = s[:i]
	}
	parts := strings.Split(s, ":")
	if len(parts) != 3 {
		return 0, newLocalError(0, "malformed TIME value")
	}
	h, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return 0, err
	}
	m, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return 0, err
	}
	sec, err := strconv.ParseInt(parts[2], 10, 64)
	if err != nil {
		return 0, err
	}
	d := time.Duration(h)*time.Hour + time.Duration(m)*time.Minute + time.Duration(sec)*time.Second
	if frac != "" {
		for len(frac) < 6 {
			frac += "0"
		}
		us, err := strconv.ParseInt(frac[:6], 10, 64)
		if err != nil {
			return 0, err
		}
		d += time.Duration(us) * time.Microsecond
	}
	if neg {
		d = -d
	}
	return d, nil
}
