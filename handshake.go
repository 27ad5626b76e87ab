package mysqlwire

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/binary"
	"fmt"
)

// handshake drives spec.md §4.4: read the v10 greeting, optionally
// upgrade to TLS, send the handshake response, and run the auth-switch
// loop to completion.
func (s *Session) handshake(ctx context.Context) error {
	done, err := s.watchCancel(ctx)
	if err != nil {
		return err
	}
	defer done()

	salt, plugin, err := s.readHandshakeV10()
	if err != nil {
		return err
	}
	s.salt = salt
	s.authPlugin = plugin

	if s.cfg.TLSConfig != nil {
		if s.serverCapabilities&clientSSL == 0 {
			return ErrNoTLS
		}
		if err := s.upgradeTLS(); err != nil {
			return err
		}
		s.secure = true
	}

	authPlugin, err := s.authPluginFor(plugin)
	if err != nil {
		return err
	}
	authResp, err := authPlugin.Compute(s.cfg.Password, salt, s.secure)
	if err != nil {
		return err
	}

	if err := s.writeHandshakeResponse(authResp, plugin); err != nil {
		return err
	}

	if err := s.runAuthLoop(authPlugin, plugin); err != nil {
		return err
	}

	return s.postConnect()
}

// readHandshakeV10 parses the initial handshake packet laid out in
// spec.md §4.4 "Connect".
func (s *Session) readHandshakeV10() (salt []byte, plugin string, err error) {
	data, err := s.readFrame()
	if err != nil {
		return nil, "", err
	}
	if isErrPacket(data) {
		return nil, "", s.handleErrorPacket(data)
	}
	if data[0] < minProtocolVersion {
		return nil, "", ErrOldProtocol
	}

	verEnd := bytes.IndexByte(data[1:], 0x00)
	if verEnd < 0 {
		return nil, "", ErrMalformedPacket
	}
	s.serverVersion = string(data[1 : 1+verEnd])
	pos := 1 + verEnd + 1

	s.threadID = readUint32(data[pos : pos+4])
	pos += 4

	authData := append([]byte{}, data[pos:pos+8]...)
	pos += 8 + 1 // salt part 1, filler

	capsLow := readUint16(data[pos : pos+2])
	pos += 2
	s.serverCapabilities = capabilityFlag(capsLow)

	if len(data) <= pos {
		var b [8]byte
		copy(b[:], authData)
		return b[:], "", nil
	}

	s.charsetID = data[pos]
	pos++
	s.status = readStatus(data[pos : pos+2])
	pos += 2
	capsHigh := readUint16(data[pos : pos+2])
	pos += 2
	s.serverCapabilities |= capabilityFlag(capsHigh) << 16

	saltLen := int(data[pos])
	pos++
	pos += 10 // reserved

	saltPart2Len := saltLen - 9
	if saltPart2Len < 12 {
		saltPart2Len = 12
	}
	authData = append(authData, data[pos:pos+saltPart2Len]...)
	pos += saltPart2Len + 1 // trailing NUL

	if end := bytes.IndexByte(data[pos:], 0x00); end >= 0 {
		plugin = string(data[pos : pos+end])
	} else {
		plugin = string(data[pos:])
	}

	var b [20]byte
	copy(b[:], authData)
	return b[:], plugin, nil
}

// upgradeTLS sends a capabilities-only handshake response and takes
// the raw socket over for a TLS handshake, per spec.md §4.4
// "TLS upgrade". The read buffer holds no residual bytes at this point
// because readHandshakeV10 consumed exactly one complete frame and
// nothing has been written since.
func (s *Session) upgradeTLS() error {
	buf := s.buf.takeSmallBuffer(4 + 4 + 4 + 1 + 23)
	clientFlags := clientProtocol41 | clientSSL | s.cfg.ClientFlag
	binary.LittleEndian.PutUint32(buf[4:8], uint32(clientFlags))
	binary.LittleEndian.PutUint32(buf[8:12], 1<<24-1)
	buf[12] = s.collationID()
	for i := 13; i < len(buf); i++ {
		buf[i] = 0
	}
	if err := s.writeFrame(buf[4:]); err != nil {
		return err
	}

	host := splitHost(s.cfg.Addr)
	tlsCfg := cloneTLSConfigForHost(s.cfg.TLSConfig, host)
	s.rawConn = s.conn
	tlsConn := tls.Client(s.conn, tlsCfg)
	if err := tlsConn.HandshakeContext(context.Background()); err != nil {
		return err
	}
	s.conn = tlsConn
	return nil
}

// writeHandshakeResponse builds and sends the Protocol::HandshakeResponse41
// packet described in spec.md §4.4.
func (s *Session) writeHandshakeResponse(authResp []byte, plugin string) error {
	clientFlags := clientProtocol41 | clientSecureConn | clientLongPassword |
		clientTransactions | clientPluginAuth | clientMultiResults |
		clientConnectAttrs | s.cfg.ClientFlag

	if s.cfg.ClientFoundRows {
		clientFlags |= clientFoundRows
	}
	if s.cfg.AllowLocalInfile {
		clientFlags |= clientLocalFiles
	}
	if s.cfg.TLSConfig != nil {
		clientFlags |= clientSSL
	}
	if s.cfg.MultiStatements {
		clientFlags |= clientMultiStatements
	}

	var authRespLEIBuf [9]byte
	authRespLEI := appendLengthEncodedInteger(authRespLEIBuf[:0], uint64(len(authResp)))
	if len(authRespLEI) > 1 {
		clientFlags |= clientPluginAuthLenEncClientData
	}

	attrs := encodeConnAttrs(s.cfg.ConnAttrs)
	var attrsLenBuf [9]byte
	attrsLenLEI := appendLengthEncodedInteger(attrsLenBuf[:0], uint64(len(attrs)))

	pktLen := 4 + 4 + 1 + 23 + len(s.cfg.User) + 1 + len(authRespLEI) + len(authResp) + len(plugin) + 1
	if n := len(s.cfg.DBName); n > 0 {
		clientFlags |= clientConnectWithDB
		pktLen += n + 1
	}
	pktLen += len(attrsLenLEI) + len(attrs)

	data := s.buf.takeBuffer(pktLen + 4)

	binary.LittleEndian.PutUint32(data[4:8], uint32(clientFlags))
	binary.LittleEndian.PutUint32(data[8:12], 1<<24-1)
	data[12] = s.collationID()
	for i := 13; i < 13+23; i++ {
		data[i] = 0
	}
	pos := 13 + 23

	pos += copy(data[pos:], s.cfg.User)
	data[pos] = 0
	pos++

	pos += copy(data[pos:], authRespLEI)
	pos += copy(data[pos:], authResp)

	if n := len(s.cfg.DBName); n > 0 {
		pos += copy(data[pos:], s.cfg.DBName)
		data[pos] = 0
		pos++
	}

	pos += copy(data[pos:], plugin)
	data[pos] = 0
	pos++

	pos += copy(data[pos:], attrsLenLEI)
	pos += copy(data[pos:], attrs)

	return s.writeFrame(data[4:pos])
}

func (s *Session) collationID() byte {
	if id, ok := collations[s.cfg.Collation]; ok {
		return id
	}
	return defaultCollationID
}

// encodeConnAttrs encodes connection attributes as a sequence of
// (u8-length key, u8-length value) pairs, per spec.md §4.4.
func encodeConnAttrs(attrs map[string]string) []byte {
	if len(attrs) == 0 {
		return nil
	}
	var buf []byte
	for k, v := range attrs {
		buf = append(buf, byte(len(k)))
		buf = append(buf, k...)
		buf = append(buf, byte(len(v)))
		buf = append(buf, v...)
	}
	return buf
}

// runAuthLoop drives auth-switch and extra-auth-data exchanges until
// the server returns OK or an error, per spec.md §4.4.
func (s *Session) runAuthLoop(plugin AuthPlugin, pluginName string) error {
	for {
		data, newPlugin, err := s.readAuthResult()
		if err != nil {
			return err
		}
		switch {
		case data == nil && newPlugin == "":
			// OK packet: authentication succeeded.
			return nil
		case newPlugin != "":
			// AuthSwitchRequest: re-scramble with the newly named
			// plug-in and its fresh salt.
			s.cfg.Logger.Print(fmt.Sprintf("mysqlwire: server requested auth switch from %s to %s", pluginName, newPlugin))
			pluginName = newPlugin
			s.salt = data
			plugin, err = s.authPluginFor(pluginName)
			if err != nil {
				return err
			}
			resp, err := plugin.Compute(s.cfg.Password, data, s.secure)
			if err != nil {
				return err
			}
			if err := s.writeAuthSwitchResponse(resp); err != nil {
				return err
			}
		default:
			action, err := plugin.Next(data, s.cfg.Password, s.salt, s.secure)
			if err != nil {
				return err
			}
			switch action.Kind {
			case ActionDone:
				return s.readFinalAuthOK()
			case ActionFail:
				if action.Err != nil {
					return action.Err
				}
				return newLocalError(0, "authentication failed")
			case ActionSend:
				if err := s.writeAuthSwitchResponse(action.Data); err != nil {
					return err
				}
			case ActionPrompt:
				return newLocalError(0, "interactive prompt requires an AuthPlugin.Next implementation")
			}
		}
	}
}

// readAuthResult reads one packet during authentication and classifies
// it as OK, extra-auth-data, or AuthSwitchRequest, per spec.md §4.4 and
// §3's packet-kind rules ("AuthSwitchRequest" len>=9 vs "EOF" len<9 does
// not apply before auth completes — the initial auth-switch control
// byte is 0xFE regardless of length during this phase).
func (s *Session) readAuthResult() (data []byte, plugin string, err error) {
	pkt, err := s.readFrame()
	if err != nil {
		return nil, "", err
	}
	switch pkt[0] {
	case iOK:
		return nil, "", s.handleOkPacket(pkt)
	case iAuthMoreData:
		return pkt[1:], "", nil
	case iEOF:
		if len(pkt) == 1 {
			// OldAuthSwitchRequest: no plugin name, no salt.
			return nil, "mysql_old_password", nil
		}
		name, n, ok := readNulString(pkt[1:])
		if !ok {
			return nil, "", ErrMalformedPacket
		}
		return pkt[1+n:], string(name), nil
	default:
		return nil, "", s.handleErrorPacket(pkt)
	}
}

func (s *Session) writeAuthSwitchResponse(data []byte) error {
	buf := s.buf.takeSmallBuffer(4 + len(data))
	copy(buf[4:], data)
	return s.writeFrame(buf[4:])
}

// readFinalAuthOK reads the packet that concludes a full-auth exchange
// (e.g. caching_sha2_password after RSA-encrypted password delivery).
func (s *Session) readFinalAuthOK() error {
	pkt, err := s.readFrame()
	if err != nil {
		return err
	}
	if pkt[0] == iOK {
		return s.handleOkPacket(pkt)
	}
	return s.handleErrorPacket(pkt)
}

// postConnect applies sql_mode, init_command, and autocommit per
// spec.md §4.4 "Post-connect".
func (s *Session) postConnect() error {
	if s.cfg.SQLMode != "" {
		if err := s.execSimple(fmt.Sprintf("SET sql_mode='%s'", s.cfg.SQLMode)); err != nil {
			return err
		}
	}
	if s.cfg.InitCommand != "" {
		if err := s.execSimple(s.cfg.InitCommand); err != nil {
			return err
		}
		if err := s.execSimple("COMMIT"); err != nil {
			return err
		}
	}
	if s.cfg.Autocommit != nil {
		val := "0"
		if *s.cfg.Autocommit {
			val = "1"
		}
		if err := s.execSimple("SET AUTOCOMMIT = " + val); err != nil {
			return err
		}
	}
	return nil
}

// execSimple runs a statement that is expected to yield a single OK
// packet, used only for the post-connect SQL above.
func (s *Session) execSimple(sql string) error {
	if err := s.writeCommandPacketStr(comQuery, sql); err != nil {
		return err
	}
	pkt, err := s.readFrame()
	if err != nil {
		return err
	}
	if isErrPacket(pkt) {
		return s.handleErrorPacket(pkt)
	}
	if isOK(pkt) {
		return s.handleOkPacket(pkt)
	}
	// A result set came back (unexpected for these statements); drain
	// its field list and then its rows so the session stays in sync.
	if err := s.readUntilEOF(); err != nil {
		return err
	}
	return s.readUntilEOF()
}

func (s *Session) handleErrorPacket(data []byte) error {
	if len(data) == 0 || data[0] != iERR {
		return ErrMalformedPacket
	}
	errno := readUint16(data[1:3])
	me := &MySQLError{Number: errno, kind: kindForErrno(errno)}
	pos := 3
	if len(data) > 3 && data[3] == 0x23 {
		copy(me.SQLState[:], data[4:9])
		pos = 9
	}
	me.Message = string(data[pos:])
	return me
}

func (s *Session) handleOkPacket(data []byte) error {
	affected, _, n := readLengthEncodedInteger(data[1:])
	insertID, _, m := readLengthEncodedInteger(data[1+n:])
	s.result.affectedRows = affected
	s.result.insertID = insertID

	pos := 1 + n + m
	s.status = readStatus(data[pos : pos+2])
	pos += 2
	s.result.hasNext = s.status&statusMoreResultsExists != 0

	// CLIENT_PROTOCOL_41 is always negotiated, so warning_count is a
	// fixed 2-byte field here rather than length-encoded.
	if pos+2 <= len(data) {
		s.result.warningCount = readUint16(data[pos : pos+2])
		pos += 2
	}
	if pos < len(data) {
		msg, _, _, err := readLengthEncodedString(data[pos:])
		if err == nil {
			s.result.message = string(msg)
		}
	}
	return nil
}
