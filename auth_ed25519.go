package mysqlwire

import (
	"crypto/sha512"

	"filippo.io/edwards25519"
)

// ed25519Plugin implements MariaDB's client_ed25519 plugin (spec.md
// §4.3). Unlike the standard library's crypto/ed25519, MariaDB derives
// the signing scalar directly from SHA-512(password) reduced modulo
// the curve order, with no clamping step — so the low-level scalar and
// point arithmetic from filippo.io/edwards25519 is used instead of
// crypto/ed25519's key-from-seed API, which always re-hashes and clamps
// internally and cannot express this derivation.
type ed25519Plugin struct{}

func (ed25519Plugin) Name() string { return "client_ed25519" }

func (ed25519Plugin) Compute(password, salt []byte, secure bool) ([]byte, error) {
	if len(password) == 0 {
		return []byte{}, nil
	}
	return signEd25519(password, salt)
}

func (ed25519Plugin) Next(extra, password, salt []byte, secure bool) (Action, error) {
	return Action{Kind: ActionFail, Err: newLocalError(0, "client_ed25519 does not expect extra auth data")}, nil
}

func ed25519ScalarFromPassword(password []byte) (*edwards25519.Scalar, error) {
	h := sha512.Sum512(password)
	return edwards25519.NewScalar().SetUniformBytes(h[:])
}

// signEd25519 produces a 64-byte EdDSA-shaped signature (R || S) over
// message using the scalar derived from password, following the
// standard EdDSA construction but with MariaDB's password-derived
// scalar standing in for the usual clamped private scalar.
func signEd25519(password, message []byte) ([]byte, error) {
	a, err := ed25519ScalarFromPassword(password)
	if err != nil {
		return nil, err
	}
	A := edwards25519.NewIdentityPoint().ScalarBaseMult(a)
	aBytes := a.Bytes()
	aEnc := A.Bytes()

	nonceDigest := sha512.New()
	nonceDigest.Write(aBytes)
	nonceDigest.Write(message)
	r, err := edwards25519.NewScalar().SetUniformBytes(nonceDigest.Sum(nil))
	if err != nil {
		return nil, err
	}

	R := edwards25519.NewIdentityPoint().ScalarBaseMult(r)
	rEnc := R.Bytes()

	challengeDigest := sha512.New()
	challengeDigest.Write(rEnc)
	challengeDigest.Write(aEnc)
	challengeDigest.Write(message)
	k, err := edwards25519.NewScalar().SetUniformBytes(challengeDigest.Sum(nil))
	if err != nil {
		return nil, err
	}

	s := edwards25519.NewScalar().MultiplyAdd(k, a, r)

	sig := make([]byte, 64)
	copy(sig[:32], rEnc)
	copy(sig[32:], s.Bytes())
	return sig, nil
}
