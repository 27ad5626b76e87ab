package mysqlwire

import (
	"errors"
	"fmt"
)

// Kind classifies an error along the taxonomy in spec.md §7, ordered by
// specificity: Warning, Error, InterfaceError, DatabaseError and its
// subkinds DataError, OperationalError, IntegrityError, InternalError,
// ProgrammingError, NotSupportedError.
type Kind int

const (
	KindError Kind = iota
	KindWarning
	KindInterfaceError
	KindDatabaseError
	KindDataError
	KindOperationalError
	KindIntegrityError
	KindInternalError
	KindProgrammingError
	KindNotSupportedError
)

func (k Kind) String() string {
	switch k {
	case KindWarning:
		return "Warning"
	case KindInterfaceError:
		return "InterfaceError"
	case KindDatabaseError:
		return "DatabaseError"
	case KindDataError:
		return "DataError"
	case KindOperationalError:
		return "OperationalError"
	case KindIntegrityError:
		return "IntegrityError"
	case KindInternalError:
		return "InternalError"
	case KindProgrammingError:
		return "ProgrammingError"
	case KindNotSupportedError:
		return "NotSupportedError"
	default:
		return "Error"
	}
}

// CR_SERVER_LOST is the synthetic errno used for transport-level loss,
// mirroring the client library constant named in spec.md §4.1.
const crServerLost = 2013

// errnoKind maps known server errno values to the taxonomy kind they
// represent. Unknown errnos fall back to InternalError (<1000) or
// OperationalError (>=1000), per spec.md §7.
var errnoKind = map[uint16]Kind{
	1022: KindIntegrityError, // ER_DUP_KEY
	1062: KindIntegrityError, // ER_DUP_ENTRY
	1048: KindIntegrityError, // ER_BAD_NULL_ERROR
	1169: KindIntegrityError, // ER_DUP_UNIQUE
	1216: KindIntegrityError, // ER_NO_REFERENCED_ROW
	1217: KindIntegrityError, // ER_ROW_IS_REFERENCED
	1451: KindIntegrityError, // ER_ROW_IS_REFERENCED_2
	1452: KindIntegrityError, // ER_NO_REFERENCED_ROW_2

	1064: KindProgrammingError, // ER_PARSE_ERROR
	1146: KindProgrammingError, // ER_NO_SUCH_TABLE
	1054: KindProgrammingError, // ER_BAD_FIELD_ERROR
	1136: KindProgrammingError, // ER_WRONG_VALUE_COUNT_ON_ROW
	1166: KindProgrammingError, // ER_WRONG_COLUMN_NAME

	1044: KindOperationalError, // ER_DBACCESS_DENIED_ERROR
	1045: KindOperationalError, // ER_ACCESS_DENIED_ERROR
	1205: KindOperationalError, // ER_LOCK_WAIT_TIMEOUT
	1213: KindOperationalError, // ER_LOCK_DEADLOCK
	1040: KindOperationalError, // ER_CON_COUNT_ERROR
	2006: KindOperationalError, // CR_SERVER_GONE_ERROR
	2013: KindOperationalError, // CR_SERVER_LOST

	1264: KindDataError, // ER_WARN_DATA_OUT_OF_RANGE
	1265: KindDataError, // ER_WARN_DATA_TRUNCATED
	1292: KindDataError, // ER_TRUNCATED_WRONG_VALUE

	1235: KindNotSupportedError, // ER_NOT_SUPPORTED_YET
	1289: KindNotSupportedError, // ER_FEATURE_DISABLED
}

func kindForErrno(errno uint16) Kind {
	if k, ok := errnoKind[errno]; ok {
		return k
	}
	if errno < 1000 {
		return KindInternalError
	}
	return KindOperationalError
}

// MySQLError represents either a server-sent ERR packet or a
// driver-local protocol/transport failure classified into the same
// taxonomy, so callers can use errors.As uniformly.
type MySQLError struct {
	Number  uint16
	SQLState [5]byte
	Message string
	kind    Kind
}

func (e *MySQLError) Error() string {
	if e.SQLState != ([5]byte{}) {
		return fmt.Sprintf("mysqlwire: [%d] %s (sqlstate %s)", e.Number, e.Message, e.SQLState)
	}
	return fmt.Sprintf("mysqlwire: [%d] %s", e.Number, e.Message)
}

// Kind reports the taxonomy kind this error belongs to.
func (e *MySQLError) Kind() Kind { return e.kind }

func newLocalError(errno uint16, msg string) *MySQLError {
	return &MySQLError{Number: errno, Message: msg, kind: kindForErrno(errno)}
}

// Sentinel driver-local errors. These are fatal-to-session framing and
// protocol-violation conditions from spec.md §4.1 and §7.
var (
	// ErrServerLost is returned when a short read, write failure, or a
	// mismatched first frame after a drained command indicates the
	// server went away mid-exchange.
	ErrServerLost = newLocalError(crServerLost, "server closed the connection")

	// ErrPktSync is an InternalError: the received sequence id did not
	// match the client's expectation.
	ErrPktSync = &MySQLError{Number: 0, Message: "packets out of sync", kind: KindInternalError}

	// ErrMalformedPacket is an InternalError: an expected EOF/OK shape
	// was not observed.
	ErrMalformedPacket = &MySQLError{Number: 0, Message: "malformed packet", kind: KindInternalError}

	// ErrInvalidConn is raised when a command is sent with no live
	// connection (InterfaceError per spec.md §7).
	ErrInvalidConn = &MySQLError{Number: 0, Message: "invalid connection", kind: KindInterfaceError}

	// ErrBusyBuffer indicates the shared write buffer is already
	// checked out; a driver-internal invariant violation.
	ErrBusyBuffer = errors.New("mysqlwire: busy buffer")

	// ErrPktTooLarge reports a payload over MaxAllowedPacket. No code
	// path returns it: writeFrame fragments outgoing payloads of any
	// size instead of capping them.
	ErrPktTooLarge = &MySQLError{Number: 0, Message: "packet too large", kind: KindInterfaceError}

	// ErrLocalInfileDisabled is returned when the server requests
	// LOAD LOCAL but the session was not configured to allow it.
	ErrLocalInfileDisabled = &MySQLError{Number: 0, Message: "local infile request rejected; local_infile is disabled", kind: KindNotSupportedError}

	// ErrNoTLS is returned when TLS was requested but the server does
	// not advertise CLIENT_SSL.
	ErrNoTLS = &MySQLError{Number: 0, Message: "server does not support TLS", kind: KindNotSupportedError}

	// ErrOldProtocol is returned for pre-4.1 handshakes (non-goal,
	// spec.md §1).
	ErrOldProtocol = &MySQLError{Number: 0, Message: "server does not support protocol 41, pre-4.1 servers are not supported", kind: KindNotSupportedError}

	// ErrUnbufferedActive is reported by Session.Err while an
	// unbuffered result on the session has not been drained. Query does
	// not return it: it drains such a result before sending.
	ErrUnbufferedActive = &MySQLError{Number: 0, Message: "unbuffered result set still active", kind: KindProgrammingError}
)

// poolMisuseError is a RuntimeError-equivalent for programmer errors
// (spec.md §7 "The pool surfaces RuntimeError for misuse"). The pool
// package reports its own misuse (acquire after close, wait_closed
// before close) with its own misuseError type, not this one.
type poolMisuseError struct{ msg string }

func (e *poolMisuseError) Error() string { return "mysqlwire: pool: " + e.msg }

func newPoolMisuseError(msg string) error { return &poolMisuseError{msg: msg} }
