package mysqlwire

import (
	"math"
	"testing"
	"time"
)

// TestEscapeStringIdentityOutsideSpecialChars covers spec.md §8:
// "escape_string is the identity on any string consisting only of
// characters outside {NUL, \, LF, CR, 0x1A, ", '}."
func TestEscapeStringIdentityOutsideSpecialChars(t *testing.T) {
	s := "the quick brown fox jumps over 42 lazy dogs"
	if got := escapeStringBytes(s, false); got != s {
		t.Fatalf("escapeStringBytes(%q) = %q, want identity", s, got)
	}
}

func TestEscapeStringBackslashEscaping(t *testing.T) {
	got := escapeStringBytes("a\x00b\\c\nd\re\x1af\"g'h", false)
	want := `a\0b\\c\nd\re\Zf\"g\'h`
	if got != want {
		t.Fatalf("escapeStringBytes = %q, want %q", got, want)
	}
}

func TestEscapeStringNoBackslashEscapesOnlyDoublesQuote(t *testing.T) {
	got := escapeStringBytes("it's\\fine", true)
	want := "it''s\\fine"
	if got != want {
		t.Fatalf("escapeStringBytes(noBackslash) = %q, want %q", got, want)
	}
}

func TestEscapeNonFiniteFloatIsProgrammingError(t *testing.T) {
	_, err := Escape(FloatValue(math.Inf(1)), false)
	if err == nil {
		t.Fatal("expected an error escaping +Inf")
	}
	me, ok := err.(*MySQLError)
	if !ok || me.Kind() != KindProgrammingError {
		t.Fatalf("err = %v, want a ProgrammingError", err)
	}
}

func TestEscapeNull(t *testing.T) {
	got, err := Escape(NullValue(), false)
	if err != nil || got != "NULL" {
		t.Fatalf("Escape(Null) = %q, %v", got, err)
	}
}

func TestEscapeSeq(t *testing.T) {
	got, err := Escape(SeqValue([]Value{IntValue(1), IntValue(2), StrValue("x")}), false)
	if err != nil {
		t.Fatalf("Escape: %v", err)
	}
	want := "(1,2,'x')"
	if got != want {
		t.Fatalf("Escape(Seq) = %q, want %q", got, want)
	}
}

func TestFormatDurationNegativeAndLargeHours(t *testing.T) {
	d := -(100*time.Hour + 30*time.Minute + 15*time.Second)
	got := formatDuration(d)
	want := "-100:30:15"
	if got != want {
		t.Fatalf("formatDuration = %q, want %q", got, want)
	}
}

func TestParseTimeDurationRoundTrip(t *testing.T) {
	d, err := parseTimeDuration("-100:30:15.500000")
	if err != nil {
		t.Fatalf("parseTimeDuration: %v", err)
	}
	if got := formatDuration(d); got != "-100:30:15.500000" {
		t.Fatalf("round trip = %q", got)
	}
}

func TestDecodeColumnNullBypassesType(t *testing.T) {
	fd := &FieldDescriptor{Type: fieldTypeLong}
	v, err := decodeColumn(nil, fd, time.UTC)
	if err != nil {
		t.Fatalf("decodeColumn: %v", err)
	}
	if v.Kind() != KindNull {
		t.Fatalf("Kind() = %v, want KindNull", v.Kind())
	}
}

func TestDecodeColumnInteger(t *testing.T) {
	fd := &FieldDescriptor{Type: fieldTypeLongLong}
	v, err := decodeColumn([]byte("12345"), fd, time.UTC)
	if err != nil {
		t.Fatalf("decodeColumn: %v", err)
	}
	if v.Kind() != KindInt || v.i != 12345 {
		t.Fatalf("decodeColumn = %+v, want Int(12345)", v)
	}
}

func TestDecodeColumnDecimal(t *testing.T) {
	fd := &FieldDescriptor{Type: fieldTypeNewDecimal}
	v, err := decodeColumn([]byte("12.50"), fd, time.UTC)
	if err != nil {
		t.Fatalf("decodeColumn: %v", err)
	}
	if v.Kind() != KindDecimal {
		t.Fatalf("Kind() = %v, want KindDecimal", v.Kind())
	}
	// decimal.Decimal.String trims trailing fractional zeros.
	if got := v.dec.String(); got != "12.5" {
		t.Fatalf("decimal = %q, want 12.5", got)
	}
}
