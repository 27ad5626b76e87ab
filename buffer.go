package mysqlwire

const defaultBufSize = 4 * 1024

// netBuf is a reusable scratch buffer for constructing outgoing
// packets (handshake responses, auth-switch replies, command packets
// with a known small body) without an allocation per call. Only one
// buffer may be checked out at a time; callers take it, fill it, and
// hand it to writeFrame in the same call chain.
type netBuf struct {
	buf []byte
}

func newNetBuf() netBuf {
	return netBuf{buf: make([]byte, defaultBufSize)}
}

// takeBuffer returns a buffer of the requested length, growing the
// backing array if needed.
func (b *netBuf) takeBuffer(length int) []byte {
	if length <= cap(b.buf) {
		return b.buf[:length]
	}
	if length < maxPacketSize {
		b.buf = make([]byte, length)
		return b.buf
	}
	return make([]byte, length)
}

// takeSmallBuffer is a shortcut for lengths known to be under
// defaultBufSize.
func (b *netBuf) takeSmallBuffer(length int) []byte {
	if length <= cap(b.buf) {
		return b.buf[:length]
	}
	return b.takeBuffer(length)
}
