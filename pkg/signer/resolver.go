package signer

import (
	"context"
	"sync"

	"github.com/culturebridge/nomadstr/pkg/session"
)

// Resolver produces the signer for the current session from exactly one of
// two credential sources, in strict priority order: persisted key material
// first, then a configured remote signer. An authenticated session with
// neither is corrupted and gets signed out rather than silently degraded.
type Resolver struct {
	sessions *session.Manager

	mu           sync.Mutex
	cached       Signer
	cachedSecret string
	cachedBunker string
}

func NewResolver(m *session.Manager) *Resolver {
	r := &Resolver{sessions: m}
	m.Subscribe(func(s session.Session) {
		// Any auth state change invalidates the cached signer. The next
		// GetSigner rebuilds it from the fresh snapshot.
		r.mu.Lock()
		if !s.Authenticated || s.SecretKey != r.cachedSecret || s.BunkerURL != r.cachedBunker {
			r.cached = nil
			r.cachedSecret = ""
			r.cachedBunker = ""
		}
		r.mu.Unlock()
	})
	return r
}

// GetSigner resolves the signing capability for the authenticated session.
func (r *Resolver) GetSigner(ctx context.Context) (sgn Signer, err error) {
	snap := r.sessions.Snapshot()
	if !snap.Authenticated {
		return nil, ErrSignerNotAvailable
	}
	r.mu.Lock()
	if r.cached != nil && r.cachedSecret == snap.SecretKey && r.cachedBunker == snap.BunkerURL {
		sgn = r.cached
		r.mu.Unlock()
		return sgn, nil
	}
	r.mu.Unlock()

	switch {
	case snap.SecretKey != "":
		var ls *LocalSigner
		if ls, err = NewLocalSigner(snap.SecretKey); chk.E(err) {
			return nil, ErrSignerNotAvailable
		}
		sgn = ls
	case snap.BunkerURL != "":
		var bs *BunkerSigner
		if bs, err = ConnectBunker(ctx, snap.BunkerURL); chk.E(err) {
			return nil, ErrSignerNotAvailable
		}
		// The remote signer is only trusted for the pubkey recorded at
		// sign-in, never implicitly for whatever key it now reports.
		if err = VerifyIdentity(ctx, snap.Pubkey, bs); err != nil {
			return nil, err
		}
		sgn = bs
	default:
		log.E.Ln("authenticated session with no credential source, forcing sign-out")
		r.sessions.SignOut()
		return nil, ErrCorruptedAuthState
	}

	r.mu.Lock()
	r.cached = sgn
	r.cachedSecret = snap.SecretKey
	r.cachedBunker = snap.BunkerURL
	r.mu.Unlock()
	return sgn, nil
}

// Available reports whether GetSigner would succeed without doing any remote
// work. Used reactively by UI.
func (r *Resolver) Available() bool {
	snap := r.sessions.Snapshot()
	return snap.Authenticated && (snap.SecretKey != "" || snap.BunkerURL != "")
}

// BunkerAvailable reports whether a remote signer address is configured and
// plausible, for display on a sign-in affordance. It must not contact the
// signer or request a public key before the user explicitly signs in.
func (r *Resolver) BunkerAvailable(bunkerURL string) bool {
	return IsBunkerURL(bunkerURL)
}
