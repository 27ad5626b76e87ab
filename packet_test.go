package mysqlwire

import (
	"bytes"
	"net"
	"testing"
	"time"
)

func newTestSession(t *testing.T) (*Session, net.Conn) {
	t.Helper()
	client, server := net.Pipe()
	t.Cleanup(func() { client.Close(); server.Close() })
	s := &Session{
		cfg:              &Config{Loc: time.UTC, Logger: defaultLogger{}},
		conn:             client,
		buf:              newNetBuf(),
		maxAllowedPacket: defaultMaxAllowedPacket,
	}
	s.connected.Store(true)
	return s, server
}

func TestWriteFrameSingleChunk(t *testing.T) {
	s, server := newTestSession(t)
	payload := []byte("SELECT 1")

	errCh := make(chan error, 1)
	go func() { errCh <- s.writeFrame(payload) }()

	buf := make([]byte, 4+len(payload))
	if _, err := readFull(server, buf); err != nil {
		t.Fatalf("server read: %v", err)
	}
	if err := <-errCh; err != nil {
		t.Fatalf("writeFrame: %v", err)
	}

	gotLen := int(buf[0]) | int(buf[1])<<8 | int(buf[2])<<16
	if gotLen != len(payload) {
		t.Fatalf("length header = %d, want %d", gotLen, len(payload))
	}
	if buf[3] != 0 {
		t.Fatalf("seq = %d, want 0", buf[3])
	}
	if !bytes.Equal(buf[4:], payload) {
		t.Fatalf("payload = %q, want %q", buf[4:], payload)
	}
}

// TestWriteFrameExactBoundary covers spec.md §8's boundary case: a
// payload of exactly 2^24-1 bytes must be followed by a trailing
// zero-length frame.
func TestWriteFrameExactBoundary(t *testing.T) {
	s, server := newTestSession(t)
	payload := bytes.Repeat([]byte{'x'}, maxPacketSize)

	errCh := make(chan error, 1)
	go func() { errCh <- s.writeFrame(payload) }()

	first := make([]byte, 4+maxPacketSize)
	if _, err := readFull(server, first); err != nil {
		t.Fatalf("server read first frame: %v", err)
	}
	second := make([]byte, 4)
	if _, err := readFull(server, second); err != nil {
		t.Fatalf("server read trailing frame: %v", err)
	}
	if err := <-errCh; err != nil {
		t.Fatalf("writeFrame: %v", err)
	}

	if second[0] != 0 || second[1] != 0 || second[2] != 0 {
		t.Fatalf("trailing frame length = %d, want 0", int(second[0])|int(second[1])<<8|int(second[2])<<16)
	}
	if second[3] != 1 {
		t.Fatalf("trailing frame seq = %d, want 1", second[3])
	}
}

func TestReadFrameStitchesOversizedPackets(t *testing.T) {
	s, server := newTestSession(t)

	go func() {
		server.Write([]byte{0xff, 0xff, 0xff, 0})
		server.Write(bytes.Repeat([]byte{'a'}, maxPacketSize))
		server.Write([]byte{0x03, 0x00, 0x00, 1})
		server.Write([]byte("bcd"))
	}()

	got, err := s.readFrame()
	if err != nil {
		t.Fatalf("readFrame: %v", err)
	}
	if len(got) != maxPacketSize+3 {
		t.Fatalf("stitched length = %d, want %d", len(got), maxPacketSize+3)
	}
	if !bytes.HasSuffix(got, []byte("bcd")) {
		t.Fatalf("stitched payload did not end with the final frame's bytes")
	}
}

func TestReadFrameSequenceMismatchIsFatal(t *testing.T) {
	s, server := newTestSession(t)
	go func() {
		server.Write([]byte{0x01, 0x00, 0x00, 5}) // expected seq 0
		server.Write([]byte{'x'})
	}()

	_, err := s.readFrame()
	if err != ErrPktSync {
		t.Fatalf("err = %v, want ErrPktSync", err)
	}
}

// readFull reads exactly len(buf) bytes, working around net.Pipe's lack
// of internal buffering in test helpers.
func readFull(c net.Conn, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := c.Read(buf[total:])
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}
