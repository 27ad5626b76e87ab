package mysqlwire

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/x509"
	"encoding/pem"
	"fmt"
)

// ActionKind is the control-flow directive an AuthPlugin hands back to
// the session's auth-switch loop, per spec.md §9 "Auth plug-in
// polymorphism": Send(bytes) | Done | Fail | Prompt{echo, text}.
type ActionKind int

const (
	ActionSend ActionKind = iota
	ActionDone
	ActionFail
	ActionPrompt
)

// Action is the result of AuthPlugin.Next: what the session should do
// with the extra-auth-data frame it just received.
type Action struct {
	Kind   ActionKind
	Data   []byte // for ActionSend
	Prompt string // for ActionPrompt
	Echo   bool   // for ActionPrompt
	Err    error  // for ActionFail
}

// AuthPlugin computes the initial challenge response for a named
// plug-in and drives any secondary exchange the plug-in requires
// (full-auth for caching_sha2_password, RSA key exchange for
// sha256_password, the dialog prompt loop), per spec.md §4.3.
type AuthPlugin interface {
	Name() string
	// Compute returns the response bytes sent in the handshake
	// response packet for the given password and server salt.
	Compute(password []byte, salt []byte, secure bool) ([]byte, error)
	// Next is invoked for each subsequent extra-auth-data (0x01)
	// packet the server sends during this plug-in's exchange.
	Next(extra []byte, password []byte, salt []byte, secure bool) (Action, error)
}

// defaultAuthPlugins is the built-in name->plugin table, overridable
// via Config.AuthPluginMap (spec.md §6).
func defaultAuthPlugins() map[string]AuthPlugin {
	return map[string]AuthPlugin{
		"mysql_native_password": nativePasswordPlugin{},
		"caching_sha2_password": cachingSHA2Plugin{},
		"sha256_password":       sha256PasswordPlugin{},
		"mysql_old_password":    oldPasswordPlugin{},
		"mysql_clear_password":  clearPasswordPlugin{},
		"client_ed25519":        ed25519Plugin{},
		"dialog":                dialogPlugin{},
	}
}

func (s *Session) authPluginFor(name string) (AuthPlugin, error) {
	if s.cfg.AuthPluginMap != nil {
		if p, ok := s.cfg.AuthPluginMap[name]; ok {
			return p, nil
		}
	}
	if name == "sha256_password" && s.cfg.ServerPubKey != nil {
		return sha256PasswordPlugin{serverPubKey: s.cfg.ServerPubKey}, nil
	}
	if p, ok := defaultAuthPlugins()[name]; ok {
		return p, nil
	}
	return nil, newLocalError(0, fmt.Sprintf("unknown auth plugin %q", name))
}

// scrambleSHA1 implements the mysql_native_password response:
// SHA1(pw) XOR SHA1(salt || SHA1(SHA1(pw))).
func scrambleSHA1(password, salt []byte) []byte {
	if len(password) == 0 {
		return nil
	}
	crypt := sha1.New()
	crypt.Write(password)
	stage1 := crypt.Sum(nil)

	crypt.Reset()
	crypt.Write(stage1)
	stage2 := crypt.Sum(nil)

	crypt.Reset()
	crypt.Write(salt)
	crypt.Write(stage2)
	scramble := crypt.Sum(nil)

	for i := range scramble {
		scramble[i] ^= stage1[i]
	}
	return scramble
}

type nativePasswordPlugin struct{}

func (nativePasswordPlugin) Name() string { return "mysql_native_password" }

func (nativePasswordPlugin) Compute(password, salt []byte, secure bool) ([]byte, error) {
	return scrambleSHA1(password, salt), nil
}

func (nativePasswordPlugin) Next(extra, password, salt []byte, secure bool) (Action, error) {
	return Action{Kind: ActionFail, Err: newLocalError(0, "mysql_native_password does not expect extra auth data")}, nil
}

// scrambleSHA256 implements the caching_sha2_password fast-auth
// response: SHA256(pw) XOR SHA256(SHA256(SHA256(pw)) || salt).
func scrambleSHA256(password, salt []byte) []byte {
	if len(password) == 0 {
		return nil
	}
	crypt := sha256.New()
	crypt.Write(password)
	stage1 := crypt.Sum(nil)

	crypt.Reset()
	crypt.Write(stage1)
	stage2 := crypt.Sum(nil)

	crypt.Reset()
	crypt.Write(stage2)
	crypt.Write(salt)
	scramble := crypt.Sum(nil)

	for i := range scramble {
		scramble[i] ^= stage1[i]
	}
	return scramble
}

// xorRepeat XORs src with salt repeated to match src's length, used by
// the RSA-wrapped full-auth paths.
func xorRepeat(src, salt []byte) []byte {
	out := make([]byte, len(src))
	for i := range out {
		out[i] = src[i] ^ salt[i%len(salt)]
	}
	return out
}

func encryptPasswordRSA(pub *rsa.PublicKey, password, salt []byte) ([]byte, error) {
	plain := xorRepeat(append(append([]byte{}, password...), 0), salt)
	return rsa.EncryptOAEP(sha1.New(), rand.Reader, pub, plain, nil)
}

func parseRSAPublicKey(pemBytes []byte) (*rsa.PublicKey, error) {
	block, _ := pem.Decode(pemBytes)
	if block == nil {
		return nil, newLocalError(0, "no PEM data found for RSA public key")
	}
	pub, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, err
	}
	rsaKey, ok := pub.(*rsa.PublicKey)
	if !ok {
		return nil, newLocalError(0, "RSA public key expected")
	}
	return rsaKey, nil
}

// cachingSHA2Plugin implements caching_sha2_password, spec.md §4.3.
type cachingSHA2Plugin struct{}

func (cachingSHA2Plugin) Name() string { return "caching_sha2_password" }

func (cachingSHA2Plugin) Compute(password, salt []byte, secure bool) ([]byte, error) {
	return scrambleSHA256(password, salt), nil
}

// cachingSHA2 extra-data bytes, per the MySQL 8 protocol.
const (
	cachingSHA2FastAuthOK   = 0x03
	cachingSHA2FullAuth     = 0x04
	cachingSHA2RequestPubKey = 0x02
)

func (cachingSHA2Plugin) Next(extra, password, salt []byte, secure bool) (Action, error) {
	if len(extra) == 0 {
		return Action{Kind: ActionFail, Err: ErrMalformedPacket}, nil
	}
	switch extra[0] {
	case cachingSHA2FastAuthOK:
		return Action{Kind: ActionDone}, nil
	case cachingSHA2FullAuth:
		if secure {
			return Action{Kind: ActionSend, Data: append(append([]byte{}, password...), 0)}, nil
		}
		// Not secure: request the server's RSA public key first; the
		// server answers with a second extra-auth-data packet carrying
		// the key, which the default branch below encrypts against.
		return Action{Kind: ActionSend, Data: []byte{cachingSHA2RequestPubKey}}, nil
	default:
		// Treat as a received RSA public key (PEM) for the pending
		// full-auth exchange: encrypt and send.
		pub, err := parseRSAPublicKey(extra)
		if err != nil {
			return Action{}, err
		}
		enc, err := encryptPasswordRSA(pub, password, salt)
		if err != nil {
			return Action{}, err
		}
		return Action{Kind: ActionSend, Data: enc}, nil
	}
}

// sha256PasswordPlugin implements sha256_password, spec.md §4.3.
type sha256PasswordPlugin struct {
	serverPubKey *rsa.PublicKey
}

func (sha256PasswordPlugin) Name() string { return "sha256_password" }

func (p sha256PasswordPlugin) Compute(password, salt []byte, secure bool) ([]byte, error) {
	if len(password) == 0 {
		return []byte{0}, nil
	}
	if secure {
		return append(append([]byte{}, password...), 0), nil
	}
	if p.serverPubKey != nil {
		return encryptPasswordRSA(p.serverPubKey, password, salt)
	}
	// request the public key; 0x01 triggers an extra-auth-data round
	// trip carrying the PEM-encoded key.
	return []byte{0x01}, nil
}

func (p sha256PasswordPlugin) Next(extra, password, salt []byte, secure bool) (Action, error) {
	pub, err := parseRSAPublicKey(extra)
	if err != nil {
		return Action{}, err
	}
	enc, err := encryptPasswordRSA(pub, password, salt)
	if err != nil {
		return Action{}, err
	}
	return Action{Kind: ActionSend, Data: enc}, nil
}

// oldPasswordPlugin implements the pre-4.1 mysql_old_password scramble,
// kept for legacy auth-switch targets (spec.md §4.3).
type oldPasswordPlugin struct{}

func (oldPasswordPlugin) Name() string { return "mysql_old_password" }

func (oldPasswordPlugin) Compute(password, salt []byte, secure bool) ([]byte, error) {
	if len(password) == 0 {
		return []byte{0}, nil
	}
	return append(scrambleOldPassword(password, salt), 0), nil
}

func (oldPasswordPlugin) Next(extra, password, salt []byte, secure bool) (Action, error) {
	return Action{Kind: ActionFail, Err: newLocalError(0, "mysql_old_password does not expect extra auth data")}, nil
}

// scrambleOldPassword is the legacy 8-byte hash-based scramble used by
// pre-4.1 auth. Provided only for auth-switch compatibility; the
// handshake itself requires protocol 41 (spec.md §1 Non-goals).
func scrambleOldPassword(password, salt []byte) []byte {
	hashPw := oldHash(password)
	hashMsg := oldHash(salt[:8])
	var seed1 = hashPw[0] ^ hashMsg[0]
	var seed2 = hashPw[1] ^ hashMsg[1]
	max := uint32(0x3fffffff)
	s1 := seed1 % max
	s2 := seed2 % max
	out := make([]byte, 8)
	for i := range out {
		s1 = (s1*3 + s2) % max
		s2 = (s1 + s2 + 33) % max
		out[i] = byte(uint32(s1)/(max/31)) + 64
	}
	extra := byte(uint32(s1) / (max / 31))
	for i := range out {
		out[i] ^= extra
	}
	return out
}

func oldHash(buf []byte) [2]uint32 {
	var nr, nr2 uint32 = 1345345333, 0x12345671
	add := uint32(7)
	for _, c := range buf {
		if c == ' ' || c == '\t' {
			continue
		}
		tmp := uint32(c)
		nr ^= (((nr & 63) + add) * tmp) + (nr << 8)
		nr2 += (nr2 << 8) ^ nr
		add += tmp
	}
	return [2]uint32{nr & 0x7fffffff, nr2 & 0x7fffffff}
}

// clearPasswordPlugin implements mysql_clear_password, spec.md §4.3.
type clearPasswordPlugin struct{}

func (clearPasswordPlugin) Name() string { return "mysql_clear_password" }

func (clearPasswordPlugin) Compute(password, salt []byte, secure bool) ([]byte, error) {
	return append(append([]byte{}, password...), 0), nil
}

func (clearPasswordPlugin) Next(extra, password, salt []byte, secure bool) (Action, error) {
	return Action{Kind: ActionFail, Err: newLocalError(0, "mysql_clear_password does not expect extra auth data")}, nil
}

// dialogPlugin implements the interactive PAM-style prompt loop,
// spec.md §4.3/§4.4 "dialog flow": read prompt frames and write
// responses + NUL until the server sends OK or sets the last bit.
//
// The built-in table holds the zero value, whose nil Prompt fails any
// prompt it receives, matching a non-interactive session. The type is
// unexported, so an interactive front end registers its own AuthPlugin
// under "dialog" in Config.AuthPluginMap.
type dialogPlugin struct {
	Prompt func(echo bool, text string) (string, error)
}

func (dialogPlugin) Name() string { return "dialog" }

func (p dialogPlugin) Compute(password, salt []byte, secure bool) ([]byte, error) {
	return append(append([]byte{}, password...), 0), nil
}

func (p dialogPlugin) Next(extra, password, salt []byte, secure bool) (Action, error) {
	if len(extra) == 0 {
		return Action{Kind: ActionFail, Err: ErrMalformedPacket}, nil
	}
	last := extra[0]&0x01 != 0
	text := string(extra[1:])
	if p.Prompt == nil {
		return Action{Kind: ActionFail, Err: newLocalError(0, "dialog auth requires an interactive prompt callback")}, nil
	}
	echo := extra[0]&0x02 == 0
	answer, err := p.Prompt(echo, text)
	if err != nil {
		return Action{}, err
	}
	if last {
		return Action{Kind: ActionSend, Data: append([]byte(answer), 0)}, nil
	}
	return Action{Kind: ActionSend, Data: append([]byte(answer), 0)}, nil
}
