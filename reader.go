package mysqlwire

import (
	"bytes"
	"encoding/binary"
)

// This file implements the typed packet-body accessors of spec.md §4.2
// (C2): fixed-width little-endian integers, length-encoded integers and
// strings, NUL-terminated strings, and the packet-kind predicates.

func readUint8(data []byte) byte { return data[0] }

func readUint16(data []byte) uint16 { return binary.LittleEndian.Uint16(data) }

func readUint24(data []byte) uint32 {
	return uint32(data[0]) | uint32(data[1])<<8 | uint32(data[2])<<16
}

func readUint32(data []byte) uint32 { return binary.LittleEndian.Uint32(data) }

func readUint64(data []byte) uint64 { return binary.LittleEndian.Uint64(data) }

// readNulString reads a NUL-terminated byte run, returning the bytes
// before the terminator, its length including the terminator, and
// false if no NUL byte was found in data.
func readNulString(data []byte) (str []byte, n int, ok bool) {
	idx := bytes.IndexByte(data, 0x00)
	if idx < 0 {
		return nil, 0, false
	}
	return data[:idx], idx + 1, true
}

// readLengthEncodedInteger decodes a length-encoded integer per
// spec.md §4.2: < 0xFB is a literal byte, 0xFB is NULL, 0xFC/0xFD/0xFE
// introduce a 2/3/8-byte little-endian value.
func readLengthEncodedInteger(data []byte) (value uint64, isNull bool, n int) {
	if len(data) == 0 {
		return 0, true, 0
	}
	switch data[0] {
	case 0xfb:
		return 0, true, 1
	case 0xfc:
		return uint64(data[1]) | uint64(data[2])<<8, false, 3
	case 0xfd:
		return uint64(data[1]) | uint64(data[2])<<8 | uint64(data[3])<<16, false, 4
	case 0xfe:
		return binary.LittleEndian.Uint64(data[1:9]), false, 9
	default:
		return uint64(data[0]), false, 1
	}
}

// appendLengthEncodedInteger encodes n choosing the shortest prefix,
// the inverse of readLengthEncodedInteger; decode(encode(n)) == n for
// every n in [0, 2^64) per spec.md §8.
func appendLengthEncodedInteger(buf []byte, n uint64) []byte {
	switch {
	case n <= 250:
		return append(buf, byte(n))
	case n <= 0xffff:
		return append(buf, 0xfc, byte(n), byte(n>>8))
	case n <= 0xffffff:
		return append(buf, 0xfd, byte(n), byte(n>>8), byte(n>>16))
	default:
		return append(buf, 0xfe,
			byte(n), byte(n>>8), byte(n>>16), byte(n>>24),
			byte(n>>32), byte(n>>40), byte(n>>48), byte(n>>56))
	}
}

// readLengthEncodedString reads a length-encoded integer followed by
// that many raw bytes; isNull is set when the length itself was NULL.
func readLengthEncodedString(data []byte) (str []byte, isNull bool, n int, err error) {
	length, isNull, n := readLengthEncodedInteger(data)
	if isNull {
		return nil, true, n, nil
	}
	if length == 0 {
		return []byte{}, false, n, nil
	}
	end := n + int(length)
	if end > len(data) {
		return nil, false, n, ErrMalformedPacket
	}
	return data[n:end], false, end, nil
}

// skipLengthEncodedString returns only the number of bytes the value
// occupies, for callers that don't need the content.
func skipLengthEncodedString(data []byte) (n int, err error) {
	length, isNull, n := readLengthEncodedInteger(data)
	if isNull {
		return n, nil
	}
	end := n + int(length)
	if end > len(data) {
		return 0, ErrMalformedPacket
	}
	return end, nil
}

// Packet-kind predicates, see spec.md §3 "Packet".
//
// is_auth_switch_request is identical to is_eof on the first byte;
// disambiguation is by packet length — len>=9 is AuthSwitchRequest,
// len<9 is a plain EOF (spec.md §9, Open Questions).

func isOK(data []byte) bool { return len(data) > 0 && data[0] == iOK && len(data) >= 7 }

func isEOFMarker(data []byte) bool { return len(data) > 0 && data[0] == iEOF && len(data) < 9 }

func isAuthSwitchRequest(data []byte) bool {
	return len(data) > 0 && data[0] == iEOF && len(data) >= 9
}

func isErrPacket(data []byte) bool { return len(data) > 0 && data[0] == iERR }

func isLocalInfileRequest(data []byte) bool { return len(data) > 0 && data[0] == iLocalInFile }

func isExtraAuthData(data []byte) bool { return len(data) > 0 && data[0] == iAuthMoreData }

func isResultSetHeader(data []byte) bool {
	return len(data) > 0 && data[0] >= 0x01 && data[0] <= 0xfa
}

func readStatus(b []byte) statusFlag {
	return statusFlag(b[0]) | statusFlag(b[1])<<8
}
