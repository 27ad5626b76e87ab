// Package mysqlwire implements the MySQL/MariaDB client/server wire
// protocol: packet framing, handshake and authentication plug-in
// dispatch, the text command/result-set protocol, and a session pool.
package mysqlwire

// capabilityFlag is a bit in the 32-bit capability bitset negotiated at
// handshake time.
type capabilityFlag uint32

const (
	clientLongPassword capabilityFlag = 1 << iota
	clientFoundRows
	clientLongFlag
	clientConnectWithDB
	clientNoSchema
	clientCompress
	clientODBC
	clientLocalFiles
	clientIgnoreSpace
	clientProtocol41
	clientInteractive
	clientSSL
	clientIgnoreSIGPIPE
	clientTransactions
	clientReserved
	clientSecureConn
	clientMultiStatements
	clientMultiResults
	clientPSMultiResults
	clientPluginAuth
	clientConnectAttrs
	clientPluginAuthLenEncClientData
)

// commandOpcode is the first byte of the payload of a client command
// packet (COM_*).
type commandOpcode byte

const (
	comQuit       commandOpcode = 0x01
	comInitDB     commandOpcode = 0x02
	comQuery      commandOpcode = 0x03
	comProcessKill commandOpcode = 0x0c
	comPing       commandOpcode = 0x0e
)

// packet header byte markers, see spec.md §3 "Packet".
const (
	iOK          byte = 0x00
	iLocalInFile byte = 0xfb
	iAuthMoreData byte = 0x01
	iEOF         byte = 0xfe
	iERR         byte = 0xff
)

// statusFlag is the 2-byte SERVER_STATUS_* bitset carried by OK/EOF
// packets.
type statusFlag uint16

const (
	statusInTrans statusFlag = 1 << iota
	statusAutocommit
	_
	statusMoreResultsExists
	statusNoGoodIndexUsed
	statusNoIndexUsed
	statusCursorExists
	statusLastRowSent
	statusDBDropped
	statusNoBackslashEscapes
	statusMetadataChanged
	statusQueryWasSlow
	statusPSOutParams
	statusInTransReadonly
	statusSessionStateChanged
)

// fieldType is the server column type code carried in a field
// descriptor, see spec.md §4.5 "Field-descriptor parsing".
type fieldType byte

const (
	fieldTypeDecimal fieldType = iota
	fieldTypeTiny
	fieldTypeShort
	fieldTypeLong
	fieldTypeFloat
	fieldTypeDouble
	fieldTypeNULL
	fieldTypeTimestamp
	fieldTypeLongLong
	fieldTypeInt24
	fieldTypeDate
	fieldTypeTime
	fieldTypeDateTime
	fieldTypeYear
	fieldTypeNewDate
	fieldTypeVarChar
	fieldTypeBit
)

const (
	fieldTypeJSON fieldType = iota + 0xf5
	fieldTypeNewDecimal
	fieldTypeEnum
	fieldTypeSet
	fieldTypeTinyBLOB
	fieldTypeMediumBLOB
	fieldTypeLongBLOB
	fieldTypeBLOB
	fieldTypeVarString
	fieldTypeString
	fieldTypeGeometry
)

// fieldFlag is the 2-byte flag bitset carried in a field descriptor.
type fieldFlag uint16

const (
	flagNotNULL fieldFlag = 1 << iota
	flagPriKey
	flagUniqueKey
	flagMultipleKey
	flagBLOB
	flagUnsigned
	flagZeroFill
	flagBinary
	flagEnum
	flagAutoIncrement
	flagTimestamp
	flagSet
)

// maxPacketSize is the 16 MiB - 1 fragmentation threshold from spec.md
// §4.1.
const maxPacketSize = 1<<24 - 1

const defaultCollationID byte = 45 // utf8mb4_general_ci

const binaryCollationID byte = 63 // binary

// collations maps the handful of collation names Config.Collation is
// documented to accept to their wire IDs. Unrecognized names fall back
// to defaultCollationID in Session.collationID.
var collations = map[string]byte{
	"big5_chinese_ci":     1,
	"latin1_swedish_ci":   8,
	"ascii_general_ci":    11,
	"utf8_general_ci":     33,
	"utf8mb4_general_ci":  45,
	"utf8mb4_unicode_ci":  224,
	"utf8mb4_bin":         46,
	"binary":              63,
	"utf8_bin":            83,
}

const minProtocolVersion = 10

// defaultMaxAllowedPacket is the client-side LOAD LOCAL chunk-size cap,
// see spec.md §6, "max_allowed_packet".
const defaultMaxAllowedPacket = 16 * 1024 * 1024

// localInfileChunkSize is the frame size used to stream a LOAD LOCAL
// file back to the server, see spec.md §4.5 "LOAD LOCAL".
const localInfileChunkSize = 16 * 1024
