package mysqlwire

import "testing"

func TestLengthEncodedIntegerRoundTrip(t *testing.T) {
	cases := []uint64{0, 1, 250, 251, 0xfb, 0xff, 0xffff, 0xffffff, 0x1000000, 1<<64 - 1}
	for _, n := range cases {
		enc := appendLengthEncodedInteger(nil, n)
		got, isNull, used := readLengthEncodedInteger(enc)
		if isNull {
			t.Fatalf("encode(%d): decoded as NULL", n)
		}
		if used != len(enc) {
			t.Fatalf("encode(%d): consumed %d bytes, encoding is %d bytes", n, used, len(enc))
		}
		if got != n {
			t.Fatalf("decode(encode(%d)) = %d", n, got)
		}
	}
}

func TestLengthEncodedIntegerChoosesShortestPrefix(t *testing.T) {
	cases := []struct {
		n      uint64
		wantN  int
		marker byte
	}{
		{0, 1, 0},
		{250, 1, 0},
		{251, 3, 0xfc},
		{0xffff, 3, 0xfc},
		{0x10000, 4, 0xfd},
		{0xffffff, 4, 0xfd},
		{0x1000000, 9, 0xfe},
	}
	for _, c := range cases {
		enc := appendLengthEncodedInteger(nil, c.n)
		if len(enc) != c.wantN {
			t.Fatalf("encode(%d) length = %d, want %d", c.n, len(enc), c.wantN)
		}
		if c.wantN > 1 && enc[0] != c.marker {
			t.Fatalf("encode(%d) marker = %#x, want %#x", c.n, enc[0], c.marker)
		}
	}
}

func TestLengthEncodedIntegerNullMarker(t *testing.T) {
	_, isNull, n := readLengthEncodedInteger([]byte{0xfb})
	if !isNull || n != 1 {
		t.Fatalf("0xFB should decode as NULL with n=1, got isNull=%v n=%d", isNull, n)
	}
}

func TestPacketKindPredicates(t *testing.T) {
	ok := append([]byte{iOK}, make([]byte, 6)...)
	if !isOK(ok) {
		t.Error("expected isOK true for 7-byte OK-marked packet")
	}

	shortEOF := []byte{iEOF, 0, 0, 0}
	if !isEOFMarker(shortEOF) {
		t.Error("expected isEOFMarker true for a <9 byte 0xFE packet")
	}
	if isAuthSwitchRequest(shortEOF) {
		t.Error("expected isAuthSwitchRequest false for a <9 byte 0xFE packet")
	}

	longFE := append([]byte{iEOF}, make([]byte, 9)...)
	if isEOFMarker(longFE) {
		t.Error("expected isEOFMarker false for a >=9 byte 0xFE packet")
	}
	if !isAuthSwitchRequest(longFE) {
		t.Error("expected isAuthSwitchRequest true for a >=9 byte 0xFE packet")
	}

	if !isErrPacket([]byte{iERR, 1, 2}) {
		t.Error("expected isErrPacket true")
	}
	if !isLocalInfileRequest([]byte{iLocalInFile, 'f'}) {
		t.Error("expected isLocalInfileRequest true")
	}
	if !isResultSetHeader([]byte{0x02}) {
		t.Error("expected isResultSetHeader true for byte 0x02")
	}
	if isResultSetHeader([]byte{0xfb}) {
		t.Error("expected isResultSetHeader false for the LOCAL INFILE marker")
	}
}

func TestReadNulString(t *testing.T) {
	str, n, ok := readNulString([]byte("hello\x00world"))
	if !ok || string(str) != "hello" || n != 6 {
		t.Fatalf("readNulString = %q, %d, %v", str, n, ok)
	}
	if _, _, ok := readNulString([]byte("noterm")); ok {
		t.Fatal("expected ok=false when no NUL is present")
	}
}
