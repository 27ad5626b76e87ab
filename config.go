package mysqlwire

import (
	"crypto/rsa"
	"crypto/tls"
	"time"
)

// Logger is the structured sink used for session and pool diagnostics
// (SPEC_FULL.md §4.10). The default implementation routes through
// logrus; callers may substitute any implementation, including one
// backed by the standard library's log.Logger.
type Logger interface {
	Print(v ...any)
}

// Config holds the options enumerated in spec.md §6. It is immutable
// once passed to Dial: copy and mutate a fresh Config per session if
// options differ across sessions in a pool.
type Config struct {
	// Transport selection.
	Net  string // "tcp" (default) or "unix"
	Addr string // host:port for tcp, socket path for unix

	// Handshake credentials.
	User     string
	Password []byte // accepts UTF-8 text or raw latin1 bytes, per spec.md §6
	DBName   string

	Collation string // default "utf8mb4_general_ci"

	// Loc is used when decoding DATETIME/TIMESTAMP into local-vs-UTC
	// values; defaults to time.UTC.
	Loc *time.Location

	// Post-handshake SQL.
	SQLMode     string
	InitCommand string
	Autocommit  *bool

	// Extra capability bits to OR into the negotiated set.
	ClientFlag capabilityFlag

	// Per-I/O deadlines.
	ConnectTimeout time.Duration
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration

	// LOAD LOCAL servicing.
	AllowLocalInfile bool

	// Client-side cap used to bound LOAD LOCAL chunk size.
	MaxAllowedPacket int

	// TLS forces a mid-handshake upgrade when non-nil.
	TLSConfig *tls.Config

	// AuthPluginMap overrides the name->plugin lookup table.
	AuthPluginMap map[string]AuthPlugin

	// ServerPubKey preloads a key for sha256_password, avoiding a
	// round trip to request one.
	ServerPubKey *rsa.PublicKey

	// ConnAttrs are sent as connection attributes; program_name (if
	// set) is merged in automatically under the "program_name" key.
	ConnAttrs map[string]string

	ClientFoundRows bool
	MultiStatements bool

	// ColumnsWithAlias is stored but not read by this package; field
	// names are reported unqualified in FieldDescriptor.Name.
	ColumnsWithAlias bool

	// Logger receives the driver's warnings (auth switch, draining an
	// unbuffered result before a new command, TLS set alongside a unix
	// socket). Debug enables per-packet tracing, which is written
	// through logrus directly rather than through Logger.
	Logger Logger
	Debug  bool

	// Echo is stored but not read by the pool, which takes its echo
	// setting from pool.Options.Echo.
	Echo bool
}

// Option configures a Config.
type Option func(*Config)

// NewConfig builds a Config with the documented defaults applied, then
// applies opts in order.
func NewConfig(addr string, opts ...Option) (*Config, error) {
	cfg := &Config{
		Net:              "tcp",
		Addr:             addr,
		Collation:        "utf8mb4_general_ci",
		Loc:              time.UTC,
		ConnectTimeout:   10 * time.Second,
		MaxAllowedPacket: defaultMaxAllowedPacket,
		Logger:           defaultLogger{},
	}
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.ConnectTimeout < time.Second || cfg.ConnectTimeout > 31536000*time.Second {
		return nil, newLocalError(0, "connect_timeout must be within [1s, 365d]")
	}
	if cfg.MaxAllowedPacket <= 0 {
		cfg.MaxAllowedPacket = defaultMaxAllowedPacket
	}
	if cfg.Loc == nil {
		cfg.Loc = time.UTC
	}
	if cfg.Net == "unix" && cfg.TLSConfig != nil {
		cfg.Logger.Print("mysqlwire: TLSConfig set alongside a unix socket; the socket is already local, TLS is redundant")
	}
	return cfg, nil
}

func WithUnixSocket(path string) Option {
	return func(c *Config) { c.Net = "unix"; c.Addr = path }
}

func WithUser(user string) Option { return func(c *Config) { c.User = user } }

func WithPassword(password []byte) Option { return func(c *Config) { c.Password = password } }

func WithDB(name string) Option { return func(c *Config) { c.DBName = name } }

func WithCollation(collation string) Option { return func(c *Config) { c.Collation = collation } }

func WithTLS(tlsCfg *tls.Config) Option { return func(c *Config) { c.TLSConfig = tlsCfg } }

func WithConnectTimeout(d time.Duration) Option { return func(c *Config) { c.ConnectTimeout = d } }

func WithReadTimeout(d time.Duration) Option { return func(c *Config) { c.ReadTimeout = d } }

func WithWriteTimeout(d time.Duration) Option { return func(c *Config) { c.WriteTimeout = d } }

func WithLocalInfile(allow bool) Option { return func(c *Config) { c.AllowLocalInfile = allow } }

func WithMaxAllowedPacket(n int) Option { return func(c *Config) { c.MaxAllowedPacket = n } }

func WithAuthPluginMap(m map[string]AuthPlugin) Option {
	return func(c *Config) { c.AuthPluginMap = m }
}

func WithServerPubKey(key *rsa.PublicKey) Option { return func(c *Config) { c.ServerPubKey = key } }

func WithConnAttrs(attrs map[string]string) Option {
	return func(c *Config) { c.ConnAttrs = attrs }
}

func WithProgramName(name string) Option {
	return func(c *Config) {
		if c.ConnAttrs == nil {
			c.ConnAttrs = map[string]string{}
		}
		c.ConnAttrs["program_name"] = name
	}
}

func WithLogger(l Logger) Option { return func(c *Config) { c.Logger = l } }

func WithDebug(debug bool) Option { return func(c *Config) { c.Debug = debug } }

func WithEcho(echo bool) Option { return func(c *Config) { c.Echo = echo } }

func WithSQLMode(mode string) Option { return func(c *Config) { c.SQLMode = mode } }

func WithInitCommand(cmd string) Option { return func(c *Config) { c.InitCommand = cmd } }

func WithAutocommit(on bool) Option { return func(c *Config) { c.Autocommit = &on } }

func WithClientFlag(flag uint32) Option {
	return func(c *Config) { c.ClientFlag |= capabilityFlag(flag) }
}

func WithClientFoundRows(on bool) Option { return func(c *Config) { c.ClientFoundRows = on } }

func WithMultiStatements(on bool) Option { return func(c *Config) { c.MultiStatements = on } }

func WithLoc(loc *time.Location) Option { return func(c *Config) { c.Loc = loc } }
