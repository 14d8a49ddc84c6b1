package signer

import (
	"context"
	"net/url"
	"strings"

	"github.com/nbd-wtf/go-nostr"
	"github.com/nbd-wtf/go-nostr/nip46"
)

// BunkerSigner is a NIP-46 remote signer. It fills the role a browser
// extension plays in web clients: a signing capability the application never
// holds key material for.
type BunkerSigner struct {
	client *nip46.BunkerClient
}

// ConnectBunker dials the remote signer. This is only called from an explicit
// sign-in flow; availability probing never reaches the network.
func ConnectBunker(ctx context.Context, bunkerURL string) (s *BunkerSigner, err error) {
	clientKey := nostr.GeneratePrivateKey()
	pool := nostr.NewSimplePool(ctx)
	var bc *nip46.BunkerClient
	bc, err = nip46.ConnectBunker(ctx, clientKey, bunkerURL, pool, func(authURL string) {
		log.I.F("bunker requests auth at %s", authURL)
	})
	if chk.E(err) {
		return nil, err
	}
	return &BunkerSigner{client: bc}, nil
}

func (s *BunkerSigner) GetPublicKey(ctx context.Context) (string, error) {
	return s.client.GetPublicKey(ctx)
}

func (s *BunkerSigner) SignEvent(ctx context.Context, ev *nostr.Event) error {
	return s.client.SignEvent(ctx, ev)
}

func (s *BunkerSigner) NIP44Encrypt(ctx context.Context, peer, plaintext string) (string, error) {
	return s.client.RPC(ctx, "nip44_encrypt", []string{peer, plaintext})
}

func (s *BunkerSigner) NIP44Decrypt(ctx context.Context, peer, ciphertext string) (string, error) {
	return s.client.RPC(ctx, "nip44_decrypt", []string{peer, ciphertext})
}

// IsBunkerURL reports whether the string looks like a remote signer address.
// It is a pure syntax check so that pre-sign-in UI can show availability
// without triggering a permission prompt on the signer side.
func IsBunkerURL(s string) bool {
	if strings.HasPrefix(s, "bunker://") {
		u, err := url.Parse(s)
		return err == nil && u.Host != ""
	}
	// nip-05 style pointer: name@domain
	parts := strings.Split(s, "@")
	return len(parts) == 2 && parts[0] != "" && strings.Contains(parts[1], ".")
}
