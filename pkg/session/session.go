// Package session holds the authenticated identity for the running client.
//
// There is exactly one writer, the Manager. Everything else reads the state
// through Snapshot so async callbacks always observe fresh values instead of
// closing over stale ones.
package session

import (
	"errors"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/culturebridge/nomadstr/pkg/slog"
	"github.com/nbd-wtf/go-nostr"
	"github.com/nbd-wtf/go-nostr/nip19"
)

var log, chk = slog.New(os.Stderr)

var (
	ErrNotAuthenticated = errors.New("session: not authenticated")
	ErrBadSecretKey     = errors.New("session: secret key is not nsec or 64 character hex")
)

// Session is an immutable snapshot of the auth state. SecretKey is hex and
// empty when the identity is backed by a remote signer.
type Session struct {
	Authenticated bool
	Pubkey        string
	Npub          string
	SecretKey     string
	BunkerURL     string
	SignedInAt    time.Time
}

// Manager is the single writer of session state.
type Manager struct {
	mu      sync.RWMutex
	current Session
	subs    []func(Session)
}

func NewManager() *Manager { return &Manager{} }

// Snapshot returns the current session state. Callers inside async work must
// call this at use time rather than captured values from when they started.
func (m *Manager) Snapshot() Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// Subscribe registers a change listener. Listeners run synchronously under
// the writer, so they must not call back into the Manager.
func (m *Manager) Subscribe(fn func(Session)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subs = append(m.subs, fn)
}

func (m *Manager) set(s Session) {
	m.mu.Lock()
	m.current = s
	subs := m.subs
	m.mu.Unlock()
	for _, fn := range subs {
		fn(s)
	}
}

// SignUp generates a fresh keypair and signs the session in with it.
func (m *Manager) SignUp() (s Session, err error) {
	sk := nostr.GeneratePrivateKey()
	return m.SignInWithSecret(sk)
}

// SignInWithSecret authenticates with an nsec or hex secret key. The pubkey
// is always derived from the key, never taken from elsewhere.
func (m *Manager) SignInWithSecret(sec string) (s Session, err error) {
	var sk string
	if strings.HasPrefix(sec, "nsec") {
		var v any
		if _, v, err = nip19.Decode(sec); chk.D(err) {
			return s, ErrBadSecretKey
		}
		sk = v.(string)
	} else if len(sec) == 64 {
		sk = sec
	} else {
		return s, ErrBadSecretKey
	}
	var pub string
	if pub, err = nostr.GetPublicKey(sk); chk.E(err) {
		return s, ErrBadSecretKey
	}
	npub, _ := nip19.EncodePublicKey(pub)
	s = Session{
		Authenticated: true,
		Pubkey:        pub,
		Npub:          npub,
		SecretKey:     sk,
		SignedInAt:    time.Now(),
	}
	m.set(s)
	log.D.F("signed in as %s", npub)
	return s, nil
}

// SignInWithBunker authenticates against a NIP-46 remote signer. The pubkey
// recorded here is the one the remote signer reported during the explicit
// sign-in flow; the resolver will refuse to sign if the signer later reports
// a different key.
func (m *Manager) SignInWithBunker(bunkerURL, pubkey string) (s Session, err error) {
	if pubkey == "" || len(pubkey) != 64 {
		return s, errors.New("session: bunker sign-in requires the signer pubkey")
	}
	npub, _ := nip19.EncodePublicKey(pubkey)
	s = Session{
		Authenticated: true,
		Pubkey:        pubkey,
		Npub:          npub,
		BunkerURL:     bunkerURL,
		SignedInAt:    time.Now(),
	}
	m.set(s)
	return s, nil
}

// SignOut clears the session, including key material.
func (m *Manager) SignOut() {
	log.D.Ln("signing out")
	m.set(Session{})
}
