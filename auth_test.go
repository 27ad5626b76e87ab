package mysqlwire

import (
	"bytes"
	"testing"
)

func TestScrambleSHA1EmptyPassword(t *testing.T) {
	if got := scrambleSHA1(nil, []byte("01234567890123456789")); got != nil {
		t.Fatalf("empty password should yield a nil scramble, got %x", got)
	}
}

func TestScrambleSHA1IsDeterministic(t *testing.T) {
	salt := []byte("01234567890123456789")
	a := scrambleSHA1([]byte("s3cret"), salt)
	b := scrambleSHA1([]byte("s3cret"), salt)
	if !bytes.Equal(a, b) {
		t.Fatal("scrambleSHA1 is not deterministic for identical inputs")
	}
	if len(a) != 20 {
		t.Fatalf("scramble length = %d, want 20 (SHA1 digest size)", len(a))
	}
}

func TestScrambleSHA1DiffersByPassword(t *testing.T) {
	salt := []byte("01234567890123456789")
	a := scrambleSHA1([]byte("s3cret"), salt)
	b := scrambleSHA1([]byte("different"), salt)
	if bytes.Equal(a, b) {
		t.Fatal("different passwords produced the same scramble")
	}
}

func TestNativePasswordPluginRejectsExtraAuthData(t *testing.T) {
	p := nativePasswordPlugin{}
	action, err := p.Next([]byte{0x01}, nil, nil, false)
	if err != nil {
		t.Fatalf("Next returned an error instead of an ActionFail: %v", err)
	}
	if action.Kind != ActionFail {
		t.Fatalf("action.Kind = %v, want ActionFail", action.Kind)
	}
}

func TestCachingSHA2FastAuthOK(t *testing.T) {
	p := cachingSHA2Plugin{}
	action, err := p.Next([]byte{cachingSHA2FastAuthOK}, []byte("pw"), []byte("salt"), false)
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if action.Kind != ActionDone {
		t.Fatalf("action.Kind = %v, want ActionDone", action.Kind)
	}
}

func TestCachingSHA2FullAuthOverSecureChannel(t *testing.T) {
	p := cachingSHA2Plugin{}
	action, err := p.Next([]byte{cachingSHA2FullAuth}, []byte("pw"), []byte("salt"), true)
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if action.Kind != ActionSend {
		t.Fatalf("action.Kind = %v, want ActionSend", action.Kind)
	}
	want := append([]byte("pw"), 0)
	if !bytes.Equal(action.Data, want) {
		t.Fatalf("full-auth-over-secure payload = %q, want %q", action.Data, want)
	}
}

func TestCachingSHA2FullAuthInsecureRequestsPubKey(t *testing.T) {
	p := cachingSHA2Plugin{}
	action, err := p.Next([]byte{cachingSHA2FullAuth}, []byte("pw"), []byte("salt"), false)
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if action.Kind != ActionSend || len(action.Data) != 1 || action.Data[0] != cachingSHA2RequestPubKey {
		t.Fatalf("expected a single-byte public-key request, got %v", action)
	}
}

func TestClearPasswordPluginAppendsNUL(t *testing.T) {
	p := clearPasswordPlugin{}
	resp, err := p.Compute([]byte("hunter2"), nil, true)
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	if !bytes.Equal(resp, []byte("hunter2\x00")) {
		t.Fatalf("resp = %q, want \"hunter2\\x00\"", resp)
	}
}

func TestEd25519SignatureIsDeterministicPerPassword(t *testing.T) {
	msg := []byte("0123456789012345678901234567890123456789")
	a, err := signEd25519([]byte("s3cret"), msg)
	if err != nil {
		t.Fatalf("signEd25519: %v", err)
	}
	b, err := signEd25519([]byte("s3cret"), msg)
	if err != nil {
		t.Fatalf("signEd25519: %v", err)
	}
	if !bytes.Equal(a, b) {
		t.Fatal("signEd25519 is not deterministic for identical inputs")
	}
	if len(a) != 64 {
		t.Fatalf("signature length = %d, want 64", len(a))
	}

	c, err := signEd25519([]byte("other"), msg)
	if err != nil {
		t.Fatalf("signEd25519: %v", err)
	}
	if bytes.Equal(a, c) {
		t.Fatal("different passwords produced the same signature")
	}
}
