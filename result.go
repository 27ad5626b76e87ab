package mysqlwire

import (
	"context"
	"io"
	"os"
	"time"
)

// FieldDescriptor describes one result-set column, per spec.md §4.5
// "Field-descriptor parsing".
type FieldDescriptor struct {
	Catalog  string
	Db       string
	Table    string
	OrgTable string
	Name     string
	OrgName  string

	CharsetNr uint16
	Length    uint32
	Type      fieldType
	Flags     fieldFlag
	Decimals  byte
}

// Nullable reports whether the column may hold SQL NULL.
func (fd *FieldDescriptor) Nullable() bool { return fd.Flags&flagNotNULL == 0 }

// Rows is a materialized (buffered) result set, per spec.md §3 "Result
// set".
type Rows struct {
	Fields       []FieldDescriptor
	Values       [][]Value
	AffectedRows uint64
	InsertID     uint64
	WarningCount uint16
	Message      string
	HasNext      bool
}

// UnbufferedRows streams rows one at a time without materializing the
// whole set, per spec.md §4.5 "Unbuffered mode". It is pinned to the
// session until drained or Close is called.
type UnbufferedRows struct {
	sess    *Session
	fields  []FieldDescriptor
	done    bool
	hasNext bool
}

func (u *UnbufferedRows) Fields() []FieldDescriptor { return u.fields }

// Next reads exactly one row frame; io.EOF signals the stream is
// exhausted (the session is released back to IDLE at that point).
func (u *UnbufferedRows) Next() ([]Value, error) {
	if u.done {
		return nil, io.EOF
	}
	pkt, err := u.sess.readFrame()
	if err != nil {
		u.done = true
		u.sess.unbuffered = nil
		return nil, err
	}
	if isEOFMarker(pkt) {
		u.sess.status = readStatus(pkt[3:5])
		u.hasNext = u.sess.status&statusMoreResultsExists != 0
		u.sess.result.hasNext = u.hasNext
		u.done = true
		u.sess.unbuffered = nil
		return nil, io.EOF
	}
	if isErrPacket(pkt) {
		u.done = true
		u.sess.unbuffered = nil
		return nil, u.sess.handleErrorPacket(pkt)
	}
	return decodeRow(pkt, u.fields, u.sess.cfg.Loc)
}

// Close drains any remaining rows so the session becomes reusable,
// implementing the "drop guard" of spec.md §9 ("Unbuffered
// finalization via destructor").
func (u *UnbufferedRows) Close() error {
	for !u.done {
		if _, err := u.Next(); err != nil {
			if err == io.EOF {
				return nil
			}
			return err
		}
	}
	return nil
}

// Query implements the cursor contract's query(sql, unbuffered) entry
// point from spec.md §6. For a buffered query it returns a materialized
// Rows; for unbuffered it returns Rows with Values == nil and a live
// *UnbufferedRows obtainable via Session.Unbuffered after the call.
func (s *Session) Query(ctx context.Context, sql string, unbuffered bool) (*Rows, error) {
	done, err := s.enter()
	if err != nil {
		return nil, err
	}
	defer done()

	stop, err := s.watchCancel(ctx)
	if err != nil {
		return nil, err
	}
	defer stop()

	if !s.connected.Load() {
		return nil, ErrInvalidConn
	}
	if s.unbuffered != nil {
		s.cfg.Logger.Print("mysqlwire: draining unbuffered result before sending a new command")
		if err := s.unbuffered.Close(); err != nil {
			return nil, err
		}
	}

	if err := s.writeCommandPacketStr(comQuery, sql); err != nil {
		return nil, err
	}

	return s.readResultResponse(unbuffered)
}

// Unbuffered returns the streaming handle left pinned to the session by
// the most recent unbuffered Query call, or nil if none is active.
func (s *Session) Unbuffered() *UnbufferedRows { return s.unbuffered }

// NextResult advances to the next result set in a multi-statement
// response, per spec.md §4.5 "Multi-resultset".
func (s *Session) NextResult(ctx context.Context, unbuffered bool) (*Rows, error) {
	done, err := s.enter()
	if err != nil {
		return nil, err
	}
	defer done()

	stop, err := s.watchCancel(ctx)
	if err != nil {
		return nil, err
	}
	defer stop()

	if !s.result.hasNext {
		return nil, newLocalError(0, "no further result set").withKind(KindProgrammingError)
	}
	return s.readResultResponse(unbuffered)
}

// readResultResponse implements spec.md §4.5 "Buffered read" steps 1-4,
// including the LOAD LOCAL and unbuffered branches.
func (s *Session) readResultResponse(unbuffered bool) (*Rows, error) {
	pkt, err := s.readFrame()
	if err != nil {
		return nil, err
	}

	switch {
	case isErrPacket(pkt):
		return nil, s.handleErrorPacket(pkt)

	case isOK(pkt):
		if err := s.handleOkPacket(pkt); err != nil {
			return nil, err
		}
		return &Rows{
			AffectedRows: s.result.affectedRows,
			InsertID:     s.result.insertID,
			WarningCount: s.result.warningCount,
			Message:      s.result.message,
			HasNext:      s.result.hasNext,
		}, nil

	case isLocalInfileRequest(pkt):
		if err := s.handleLocalInfile(pkt); err != nil {
			return nil, err
		}
		return &Rows{
			AffectedRows: s.result.affectedRows,
			InsertID:     s.result.insertID,
			WarningCount: s.result.warningCount,
			Message:      s.result.message,
			HasNext:      s.result.hasNext,
		}, nil

	default:
		return s.readFieldListAndRows(pkt, unbuffered)
	}
}

func (s *Session) readFieldListAndRows(header []byte, unbuffered bool) (*Rows, error) {
	fieldCount, isNull, _ := readLengthEncodedInteger(header)
	if isNull || fieldCount == 0 {
		return nil, ErrMalformedPacket
	}

	fields := make([]FieldDescriptor, fieldCount)
	for i := range fields {
		pkt, err := s.readFrame()
		if err != nil {
			return nil, err
		}
		fd, err := parseFieldDescriptor(pkt)
		if err != nil {
			return nil, err
		}
		fields[i] = fd
	}

	eofPkt, err := s.readFrame()
	if err != nil {
		return nil, err
	}
	if !isEOFMarker(eofPkt) {
		return nil, ErrMalformedPacket
	}

	if unbuffered {
		s.unbuffered = &UnbufferedRows{sess: s, fields: fields}
		s.result.affectedRows = ^uint64(0) // MySQLdb convention, spec.md §4.5
		return &Rows{Fields: fields, AffectedRows: s.result.affectedRows}, nil
	}

	var rows [][]Value
	for {
		pkt, err := s.readFrame()
		if err != nil {
			return nil, err
		}
		if isEOFMarker(pkt) {
			s.status = readStatus(pkt[3:5])
			s.result.hasNext = s.status&statusMoreResultsExists != 0
			if len(pkt) >= 5 {
				s.result.warningCount = readUint16(pkt[1:3])
			}
			break
		}
		if isErrPacket(pkt) {
			return nil, s.handleErrorPacket(pkt)
		}
		row, err := decodeRow(pkt, fields, s.cfg.Loc)
		if err != nil {
			return nil, err
		}
		rows = append(rows, row)
	}

	s.result.affectedRows = uint64(len(rows))
	return &Rows{
		Fields:       fields,
		Values:       rows,
		AffectedRows: s.result.affectedRows,
		WarningCount: s.result.warningCount,
		HasNext:      s.result.hasNext,
	}, nil
}

// parseFieldDescriptor implements spec.md §4.5 "Field-descriptor
// parsing": six length-coded strings then a fixed block.
func parseFieldDescriptor(pkt []byte) (FieldDescriptor, error) {
	var fd FieldDescriptor
	pos := 0

	fields := []*string{&fd.Catalog, &fd.Db, &fd.Table, &fd.OrgTable, &fd.Name, &fd.OrgName}
	for _, dst := range fields {
		str, isNull, n, err := readLengthEncodedString(pkt[pos:])
		if err != nil {
			return fd, err
		}
		if !isNull {
			*dst = string(str)
		}
		pos += n
	}

	pos++ // filler
	fd.CharsetNr = readUint16(pkt[pos : pos+2])
	pos += 2
	fd.Length = readUint32(pkt[pos : pos+4])
	pos += 4
	fd.Type = fieldType(pkt[pos])
	pos++
	fd.Flags = fieldFlag(readUint16(pkt[pos : pos+2]))
	pos += 2
	fd.Decimals = pkt[pos]

	return fd, nil
}

// decodeRow implements spec.md §4.5 "Row decoding": a length-coded
// string per column, NULL signalled by a NULL length. Only the
// type-keyed converter of spec.md §4.6's decode table is applied, to
// the raw bytes; no charset transcoding is performed by decodeRow or
// its callers, so TEXT-like columns keep the connection's encoding.
func decodeRow(pkt []byte, fields []FieldDescriptor, loc *time.Location) ([]Value, error) {
	row := make([]Value, len(fields))
	pos := 0
	for i := range fields {
		raw, isNull, n, err := readLengthEncodedString(pkt[pos:])
		if err != nil {
			return nil, err
		}
		pos += n
		if isNull {
			row[i] = NullValue()
			continue
		}
		v, err := decodeColumn(raw, &fields[i], loc)
		if err != nil {
			return nil, err
		}
		row[i] = v
	}
	return row, nil
}

// handleLocalInfile implements spec.md §4.5.1 "LOAD LOCAL": stream the
// named file back to the server in chunks, then read the concluding OK
// even if the local read failed.
func (s *Session) handleLocalInfile(pkt []byte) error {
	filename := string(pkt[1:])

	var sendErr error
	if !s.cfg.AllowLocalInfile {
		_ = s.writeFrame(nil)
		sendErr = ErrLocalInfileDisabled
	} else {
		sendErr = s.streamLocalFile(filename)
	}

	// Any local failure still requires draining the server's concluding
	// response, per spec.md §4.5.1.
	final, err := s.readFrame()
	if err != nil {
		return err
	}
	if sendErr != nil {
		return sendErr
	}
	if isErrPacket(final) {
		return s.handleErrorPacket(final)
	}
	return s.handleOkPacket(final)
}

func (s *Session) streamLocalFile(filename string) error {
	f, err := os.Open(filename)
	if err != nil {
		_ = s.writeFrame(nil)
		return err
	}
	defer f.Close()

	chunkSize := localInfileChunkSize
	if s.maxAllowedPacket < chunkSize {
		chunkSize = s.maxAllowedPacket
	}
	buf := make([]byte, chunkSize)
	for {
		n, rerr := f.Read(buf)
		if n > 0 {
			if werr := s.writeFrame(buf[:n]); werr != nil {
				return werr
			}
		}
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			_ = s.writeFrame(nil)
			return rerr
		}
	}
	return s.writeFrame(nil)
}

// AffectedRows reports the affected-row count of the most recent
// command response (spec.md §6).
func (s *Session) AffectedRows() uint64 { return s.result.affectedRows }

// InsertID reports the last insert id (spec.md §6).
func (s *Session) InsertID() uint64 { return s.result.insertID }

// GetTransactionStatus reports whether the session currently has an
// open transaction (spec.md §6).
func (s *Session) GetTransactionStatus() bool { return s.status&statusInTrans != 0 }

// ShowWarnings issues SHOW WARNINGS and returns the buffered result,
// per spec.md §6.
func (s *Session) ShowWarnings(ctx context.Context) (*Rows, error) {
	return s.Query(ctx, "SHOW WARNINGS", false)
}

// EscapeValue renders v as a SQL literal using the session's current
// NO_BACKSLASH_ESCAPES status, per spec.md §6 "escape(obj)".
func (s *Session) EscapeValue(v Value) (string, error) {
	return Escape(v, s.status&statusNoBackslashEscapes != 0)
}

// Ping implements COM_PING (spec.md §6 command opcodes table).
func (s *Session) Ping(ctx context.Context) error {
	done, err := s.enter()
	if err != nil {
		return err
	}
	defer done()
	stop, err := s.watchCancel(ctx)
	if err != nil {
		return err
	}
	defer stop()

	if err := s.writeCommandPacket(comPing, nil); err != nil {
		return err
	}
	pkt, err := s.readFrame()
	if err != nil {
		return err
	}
	if isErrPacket(pkt) {
		return s.handleErrorPacket(pkt)
	}
	return s.handleOkPacket(pkt)
}

// InitDB implements COM_INIT_DB, switching the session's default
// database.
func (s *Session) InitDB(ctx context.Context, name string) error {
	done, err := s.enter()
	if err != nil {
		return err
	}
	defer done()
	stop, err := s.watchCancel(ctx)
	if err != nil {
		return err
	}
	defer stop()

	if err := s.writeCommandPacketStr(comInitDB, name); err != nil {
		return err
	}
	pkt, err := s.readFrame()
	if err != nil {
		return err
	}
	if isErrPacket(pkt) {
		return s.handleErrorPacket(pkt)
	}
	return s.handleOkPacket(pkt)
}

// KillConnection implements COM_PROCESS_KILL.
func (s *Session) KillConnection(ctx context.Context, threadID uint32) error {
	done, err := s.enter()
	if err != nil {
		return err
	}
	defer done()
	stop, err := s.watchCancel(ctx)
	if err != nil {
		return err
	}
	defer stop()

	if err := s.writeCommandPacketUint32(comProcessKill, threadID); err != nil {
		return err
	}
	pkt, err := s.readFrame()
	if err != nil {
		return err
	}
	if isErrPacket(pkt) {
		return s.handleErrorPacket(pkt)
	}
	return s.handleOkPacket(pkt)
}
