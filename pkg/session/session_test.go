package session

import (
	"strings"
	"testing"

	"github.com/nbd-wtf/go-nostr"
	"github.com/nbd-wtf/go-nostr/nip19"
)

func TestSignUpDerivesIdentity(t *testing.T) {
	m := NewManager()
	s, err := m.SignUp()
	if err != nil {
		t.Fatal(err)
	}
	if !s.Authenticated {
		t.Fatal("expected authenticated session")
	}
	pub, err := nostr.GetPublicKey(s.SecretKey)
	if err != nil {
		t.Fatal(err)
	}
	if pub != s.Pubkey {
		t.Fatalf("pubkey %s does not match secret key derivation %s", s.Pubkey, pub)
	}
	if !strings.HasPrefix(s.Npub, "npub1") {
		t.Fatalf("bad npub %s", s.Npub)
	}
}

func TestSignInWithNsec(t *testing.T) {
	sk := nostr.GeneratePrivateKey()
	nsec, err := nip19.EncodePrivateKey(sk)
	if err != nil {
		t.Fatal(err)
	}
	m := NewManager()
	s, err := m.SignInWithSecret(nsec)
	if err != nil {
		t.Fatal(err)
	}
	if s.SecretKey != sk {
		t.Fatal("nsec did not decode to the original secret key")
	}
}

func TestSignInRejectsGarbage(t *testing.T) {
	m := NewManager()
	if _, err := m.SignInWithSecret("not-a-key"); err == nil {
		t.Fatal("expected error for malformed secret")
	}
	if m.Snapshot().Authenticated {
		t.Fatal("failed sign-in must not authenticate the session")
	}
}

func TestSignOutClearsKeyMaterial(t *testing.T) {
	m := NewManager()
	if _, err := m.SignUp(); err != nil {
		t.Fatal(err)
	}
	var notified Session
	m.Subscribe(func(s Session) { notified = s })
	m.SignOut()
	s := m.Snapshot()
	if s.Authenticated || s.SecretKey != "" || s.Pubkey != "" {
		t.Fatal("sign-out must clear all session fields")
	}
	if notified.Authenticated {
		t.Fatal("subscriber saw stale state")
	}
}
