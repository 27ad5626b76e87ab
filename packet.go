package mysqlwire

import (
	"io"
	"time"
)

// readFrame implements spec.md §4.1 "Read contract": read one logical
// packet, transparently stitching together frames that were split at
// the 16 MiB boundary, and enforcing the sequence-id discipline.
func (s *Session) readFrame() ([]byte, error) {
	var stitched []byte
	for {
		header, err := s.readBytes(4)
		if err != nil {
			return nil, s.fatalIO(err)
		}
		s.sessionLogf("readFrame: header=% x", header)

		pktLen := int(uint32(header[0]) | uint32(header[1])<<8 | uint32(header[2])<<16)
		gotSeq := header[3]

		if gotSeq != s.seq {
			// A mismatched first frame with seq==0 right after a
			// drained command is treated as a server-initiated
			// disconnect: some servers send a final ERR with a reset
			// sequence id on shutdown (spec.md §4.1).
			if stitched == nil && gotSeq == 0 {
				s.poison(ErrServerLost)
				return nil, ErrServerLost
			}
			s.poison(ErrPktSync)
			return nil, ErrPktSync
		}
		s.seq++

		if pktLen == 0 {
			if stitched == nil {
				s.poison(ErrMalformedPacket)
				return nil, ErrMalformedPacket
			}
			return stitched, nil
		}

		payload, err := s.readBytes(pktLen)
		if err != nil {
			return nil, s.fatalIO(err)
		}

		if pktLen < maxPacketSize {
			if stitched == nil {
				return payload, nil
			}
			return append(stitched, payload...), nil
		}
		stitched = append(stitched, payload...)
	}
}

func (s *Session) readBytes(n int) ([]byte, error) {
	if s.cfg.ReadTimeout > 0 {
		if err := s.conn.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout)); err != nil {
			return nil, err
		}
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(s.conn, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

func (s *Session) fatalIO(err error) error {
	if cerr := s.Canceled(); cerr != nil {
		return cerr
	}
	s.poison(ErrServerLost)
	return ErrServerLost
}

// writeFrame implements spec.md §4.1 "Write contract": split payload
// into 16 MiB-1 chunks, stamping each with the current sequence id, and
// append a trailing empty frame exactly when the final chunk was itself
// exactly the maximum size. maxAllowedPacket bounds LOAD LOCAL chunk
// size on the read side (result.go); it does not cap outgoing command
// payloads, which fragment without bound per spec.md §4.1/§8.
func (s *Session) writeFrame(payload []byte) error {
	s.sessionLogf("writeFrame: %d bytes", len(payload))

	header := make([]byte, 4)
	for {
		chunkLen := len(payload)
		if chunkLen > maxPacketSize {
			chunkLen = maxPacketSize
		}
		header[0] = byte(chunkLen)
		header[1] = byte(chunkLen >> 8)
		header[2] = byte(chunkLen >> 16)
		header[3] = s.seq

		if s.cfg.WriteTimeout > 0 {
			if err := s.conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout)); err != nil {
				return err
			}
		}
		if _, err := s.conn.Write(header); err != nil {
			return s.fatalIO(err)
		}
		if chunkLen > 0 {
			if _, err := s.conn.Write(payload[:chunkLen]); err != nil {
				return s.fatalIO(err)
			}
		}
		s.seq++

		payload = payload[chunkLen:]
		if chunkLen < maxPacketSize {
			return nil
		}
		if len(payload) == 0 {
			// the final chunk was exactly maxPacketSize: a trailing
			// zero-length frame is mandatory so the reader knows the
			// logical packet ended here.
			header[0], header[1], header[2] = 0, 0, 0
			header[3] = s.seq
			if _, err := s.conn.Write(header); err != nil {
				return s.fatalIO(err)
			}
			s.seq++
			return nil
		}
	}
}

// writeCommandPacket sends [opcode ‖ body], resetting the sequence id
// to 0 first, per spec.md §4.4 "Command dispatch". For SQL-bearing
// commands the first frame carries the opcode followed by as much of
// body as fits in maxPacketSize-1; writeFrame's loop handles the rest.
func (s *Session) writeCommandPacket(op commandOpcode, body []byte) error {
	s.seq = 0
	payload := make([]byte, 1+len(body))
	payload[0] = byte(op)
	copy(payload[1:], body)
	return s.writeFrame(payload)
}

func (s *Session) writeCommandPacketStr(op commandOpcode, arg string) error {
	return s.writeCommandPacket(op, []byte(arg))
}

func (s *Session) writeCommandPacketUint32(op commandOpcode, arg uint32) error {
	body := []byte{byte(arg), byte(arg >> 8), byte(arg >> 16), byte(arg >> 24)}
	return s.writeCommandPacket(op, body)
}

// readUntilEOF reads and drops frames until an EOF packet ends the
// current section of a response, or returns the server's error if an
// ERR packet arrives first. execSimple uses it to skip a result set it
// did not expect.
func (s *Session) readUntilEOF() error {
	for {
		data, err := s.readFrame()
		if err != nil {
			return err
		}
		switch data[0] {
		case iERR:
			return s.handleErrorPacket(data)
		case iEOF:
			if len(data) < 9 {
				if len(data) == 5 {
					s.status = readStatus(data[3:5])
				}
				return nil
			}
		}
	}
}
