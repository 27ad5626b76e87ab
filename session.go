package mysqlwire

import (
	"context"
	"crypto/tls"
	"net"
	"sync/atomic"
	"time"
)

// Session owns exactly one transport and the mutable protocol state
// described in spec.md §3 "Session". It is single-consumer: callers
// must not issue two logical operations concurrently (spec.md §5).
type Session struct {
	cfg *Config

	conn    net.Conn
	rawConn net.Conn // saved underlying socket during the TLS upgrade
	buf     netBuf

	seq byte // next_seq_id, byte modulo 256

	capabilities       capabilityFlag
	serverCapabilities capabilityFlag
	status             statusFlag
	charsetID          byte

	serverVersion string
	threadID      uint32
	salt          []byte
	authPlugin    string

	secure bool // TLS or Unix domain socket

	lastUsed time.Time

	connected atomic.Bool
	canceled  atomic.Value // stores error, set by watchCancel on ctx cancellation

	busy atomic.Bool // guards the single-consumer invariant

	result     resultInfo
	unbuffered *UnbufferedRows

	maxAllowedPacket int
}

// resultInfo mirrors the OK/EOF bookkeeping a command response leaves
// behind (spec.md §3 "Result set").
type resultInfo struct {
	affectedRows  uint64
	insertID      uint64
	warningCount  uint16
	message       string
	hasNext       bool
}

// Dial opens a transport and drives the handshake/auth exchange
// described in spec.md §4.4, returning a connected Session.
func Dial(ctx context.Context, cfg *Config) (*Session, error) {
	if cfg.Net == "" {
		cfg.Net = "tcp"
	}

	dialer := &net.Dialer{Timeout: cfg.ConnectTimeout}
	nc, err := dialContext(ctx, dialer, cfg.Net, cfg.Addr)
	if err != nil {
		return nil, newLocalError(crServerLost, err.Error())
	}

	if cfg.Net == "tcp" {
		if tc, ok := nc.(*net.TCPConn); ok {
			_ = tc.SetKeepAlive(true)
			_ = tc.SetNoDelay(true)
		}
	}

	s := &Session{
		cfg:              cfg,
		conn:             nc,
		buf:              newNetBuf(),
		maxAllowedPacket: cfg.MaxAllowedPacket,
		secure:           cfg.Net == "unix",
	}

	if err := s.handshake(ctx); err != nil {
		_ = nc.Close()
		return nil, err
	}

	s.connected.Store(true)
	s.lastUsed = time.Now()
	return s, nil
}

// dialContext retries only on an interrupted-syscall condition, per
// spec.md §4.4 "Connect".
func dialContext(ctx context.Context, d *net.Dialer, network, addr string) (net.Conn, error) {
	for {
		nc, err := d.DialContext(ctx, network, addr)
		if err == nil {
			return nc, nil
		}
		if !isEINTR(err) {
			return nil, err
		}
	}
}

// Connected reports whether the session is usable: authentication has
// succeeded and neither Close nor an unrecoverable error has occurred.
func (s *Session) Connected() bool { return s.connected.Load() }

// Canceled reports the error set by a context cancellation that
// interrupted an in-flight I/O call, or nil.
func (s *Session) Canceled() error {
	if v := s.canceled.Load(); v != nil {
		return v.(error)
	}
	return nil
}

// Err reports the error that makes this session unfit for reuse — a
// cancellation, a poisoned transport, or nil if the session is healthy.
// The pool consults this on release to decide whether to return the
// session to free or close it (spec.md §5 "Cancellation").
func (s *Session) Err() error {
	if err := s.Canceled(); err != nil {
		return err
	}
	if !s.connected.Load() {
		return ErrInvalidConn
	}
	if s.unbuffered != nil {
		return ErrUnbufferedActive
	}
	return nil
}

// LastUsed reports the monotonic timestamp of the session's last
// release back to a pool, used for pool_recycle aging.
func (s *Session) LastUsed() time.Time { return s.lastUsed }

// Touch stamps the session as used now; called by the pool on release.
func (s *Session) Touch() { s.lastUsed = time.Now() }

func (s *Session) poison(err error) {
	s.canceled.Store(err)
	s.connected.Store(false)
	_ = s.conn.Close()
}

// watchCancel arms a goroutine that poisons the session if ctx is
// canceled before the returned stop func runs. Poisoning closes the
// transport, which unblocks any in-flight Read/Write immediately
// (spec.md §5 "Cancellation": the protocol position after a cancel is
// unknown, so the session must not be reused).
func (s *Session) watchCancel(ctx context.Context) (func(), error) {
	if ctx == nil || ctx.Done() == nil {
		return func() {}, nil
	}
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}
	stop := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			s.poison(ctx.Err())
		case <-stop:
		}
	}()
	return func() { close(stop) }, nil
}

// enter marks the session busy for the duration of one logical
// operation, enforcing the single-consumer invariant from spec.md §3.
func (s *Session) enter() (func(), error) {
	if !s.busy.CompareAndSwap(false, true) {
		return nil, newLocalError(0, "session is already in use by another operation")
	}
	return func() { s.busy.Store(false) }, nil
}

// Close drops the transport immediately without a farewell command,
// per spec.md §3 "Lifecycles".
func (s *Session) Close() error {
	s.connected.Store(false)
	return s.conn.Close()
}

// EnsureClosed sends COM_QUIT, drains, then closes — the graceful
// shutdown path from spec.md §4.4 "Quit".
func (s *Session) EnsureClosed(ctx context.Context) error {
	if !s.connected.Load() {
		return s.Close()
	}
	done, err := s.watchCancel(ctx)
	if err != nil {
		return err
	}
	defer done()

	s.seq = 0
	_ = s.writeCommandPacket(comQuit, nil)
	return s.Close()
}

// cloneTLSConfigForHost returns a copy of base with ServerName set to
// host when the caller did not set one explicitly (used by the TLS
// upgrade in handshake.go).
func cloneTLSConfigForHost(base *tls.Config, host string) *tls.Config {
	cfg := base.Clone()
	if cfg.ServerName == "" {
		cfg.ServerName = host
	}
	return cfg
}
