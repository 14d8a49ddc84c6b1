package signer

import (
	"context"
	"errors"
	"testing"

	"github.com/culturebridge/nomadstr/pkg/session"
	"github.com/nbd-wtf/go-nostr"
)

func TestResolveLocalSigner(t *testing.T) {
	m := session.NewManager()
	r := NewResolver(m)
	s, err := m.SignUp()
	if err != nil {
		t.Fatal(err)
	}
	sgn, err := r.GetSigner(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	pk, err := sgn.GetPublicKey(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if pk != s.Pubkey {
		t.Fatalf("signer pubkey %s, session pubkey %s", pk, s.Pubkey)
	}
}

func TestSignerCachedForSessionLifetime(t *testing.T) {
	m := session.NewManager()
	r := NewResolver(m)
	if _, err := m.SignUp(); err != nil {
		t.Fatal(err)
	}
	a, err := r.GetSigner(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	b, err := r.GetSigner(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if a != b {
		t.Fatal("expected cached signer instance")
	}
}

func TestCacheInvalidatedOnKeyChange(t *testing.T) {
	m := session.NewManager()
	r := NewResolver(m)
	if _, err := m.SignUp(); err != nil {
		t.Fatal(err)
	}
	a, _ := r.GetSigner(context.Background())
	if _, err := m.SignInWithSecret(nostr.GeneratePrivateKey()); err != nil {
		t.Fatal(err)
	}
	b, err := r.GetSigner(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if a == b {
		t.Fatal("signer must be rebuilt after the secret key changes")
	}
}

func TestUnauthenticatedHasNoSigner(t *testing.T) {
	m := session.NewManager()
	r := NewResolver(m)
	if _, err := r.GetSigner(context.Background()); !errors.Is(err, ErrSignerNotAvailable) {
		t.Fatalf("want ErrSignerNotAvailable, got %v", err)
	}
	if r.Available() {
		t.Fatal("Available must be false before sign-in")
	}
}

func TestCorruptedAuthStateForcesSignOut(t *testing.T) {
	m := session.NewManager()
	r := NewResolver(m)
	pk, _ := nostr.GetPublicKey(nostr.GeneratePrivateKey())
	// authenticated, but no secret and no bunker address
	if _, err := m.SignInWithBunker("", pk); err != nil {
		t.Fatal(err)
	}
	if _, err := r.GetSigner(context.Background()); !errors.Is(err, ErrCorruptedAuthState) {
		t.Fatalf("want ErrCorruptedAuthState, got %v", err)
	}
	if m.Snapshot().Authenticated {
		t.Fatal("corrupted auth state must force a sign-out")
	}
}

func TestVerifyIdentityMismatch(t *testing.T) {
	sgn, err := NewLocalSigner(nostr.GeneratePrivateKey())
	if err != nil {
		t.Fatal(err)
	}
	other, _ := nostr.GetPublicKey(nostr.GeneratePrivateKey())
	if err = VerifyIdentity(context.Background(), other, sgn); !errors.Is(err, ErrIdentityMismatch) {
		t.Fatalf("want ErrIdentityMismatch, got %v", err)
	}
}

func TestNIP44RoundTrip(t *testing.T) {
	alice, err := NewLocalSigner(nostr.GeneratePrivateKey())
	if err != nil {
		t.Fatal(err)
	}
	bobSK := nostr.GeneratePrivateKey()
	bob, err := NewLocalSigner(bobSK)
	if err != nil {
		t.Fatal(err)
	}
	alicePub, _ := alice.GetPublicKey(context.Background())
	bobPub, _ := bob.GetPublicKey(context.Background())
	cipher, err := alice.NIP44Encrypt(context.Background(), bobPub, "olá from lisbon")
	if err != nil {
		t.Fatal(err)
	}
	plain, err := bob.NIP44Decrypt(context.Background(), alicePub, cipher)
	if err != nil {
		t.Fatal(err)
	}
	if plain != "olá from lisbon" {
		t.Fatalf("decrypted %q", plain)
	}
}

func TestBunkerURLSyntax(t *testing.T) {
	for _, ok := range []string{
		"bunker://79be667ef9dcbbac55a06295ce870b07029bfcdb2dce28d959f2815b16f81798?relay=wss://r.example.com",
		"nomad@signer.example.com",
	} {
		if !IsBunkerURL(ok) {
			t.Errorf("%s should be a valid bunker address", ok)
		}
	}
	for _, bad := range []string{"", "bunker://", "plainword", "name@nodot"} {
		if IsBunkerURL(bad) {
			t.Errorf("%s should not be a valid bunker address", bad)
		}
	}
}
