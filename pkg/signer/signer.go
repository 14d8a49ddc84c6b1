// Package signer resolves a signing capability for the authenticated session
// and enforces that it is never used on behalf of any other identity.
package signer

import (
	"context"
	"errors"
	"os"

	"github.com/culturebridge/nomadstr/pkg/slog"
	"github.com/nbd-wtf/go-nostr"
	"github.com/nbd-wtf/go-nostr/nip44"
)

var log, chk = slog.New(os.Stderr)

var (
	// ErrSignerNotAvailable means no credential source could produce a signer.
	ErrSignerNotAvailable = errors.New("signer: not available")
	// ErrIdentityMismatch means the resolved signer answers for a different
	// pubkey than the session authenticated as. Signing must not proceed.
	ErrIdentityMismatch = errors.New("signer: identity mismatch")
	// ErrCorruptedAuthState means the session claims to be authenticated but
	// holds neither key material nor a remote signer. The only safe exit is a
	// forced sign-out.
	ErrCorruptedAuthState = errors.New("signer: corrupted auth state")
)

// Signer can produce a public key and sign or encrypt on behalf of exactly
// one identity.
type Signer interface {
	GetPublicKey(ctx context.Context) (string, error)
	SignEvent(ctx context.Context, ev *nostr.Event) error
	NIP44Encrypt(ctx context.Context, peerPubkey, plaintext string) (string, error)
	NIP44Decrypt(ctx context.Context, peerPubkey, ciphertext string) (string, error)
}

// LocalSigner wraps in-process secret key material.
type LocalSigner struct {
	sk  string
	pub string
}

func NewLocalSigner(sk string) (s *LocalSigner, err error) {
	var pub string
	if pub, err = nostr.GetPublicKey(sk); chk.E(err) {
		return nil, err
	}
	return &LocalSigner{sk: sk, pub: pub}, nil
}

func (s *LocalSigner) GetPublicKey(_ context.Context) (string, error) {
	return s.pub, nil
}

func (s *LocalSigner) SignEvent(_ context.Context, ev *nostr.Event) error {
	return ev.Sign(s.sk)
}

func (s *LocalSigner) NIP44Encrypt(_ context.Context, peer, plaintext string) (cipher string, err error) {
	var ck []byte
	if ck, err = nip44.GenerateConversationKey(peer, s.sk); chk.E(err) {
		return
	}
	return nip44.Encrypt(plaintext, ck)
}

func (s *LocalSigner) NIP44Decrypt(_ context.Context, peer, ciphertext string) (plain string, err error) {
	var ck []byte
	if ck, err = nip44.GenerateConversationKey(peer, s.sk); chk.E(err) {
		return
	}
	return nip44.Decrypt(ciphertext, ck)
}

// VerifyIdentity asks the signer for its public key and compares it to the
// pubkey the session authenticated as. This runs before every signed send so
// that a remote signer switching identities underneath us cannot leak one
// identity's signing capability to another.
func VerifyIdentity(ctx context.Context, expectedPubkey string, sgn Signer) (err error) {
	var pk string
	if pk, err = sgn.GetPublicKey(ctx); chk.E(err) {
		return
	}
	if pk != expectedPubkey {
		log.E.F("signer answers for %s but session is %s", pk, expectedPubkey)
		return ErrIdentityMismatch
	}
	return nil
}
