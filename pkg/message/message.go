// Package message implements encrypted direct messages between users. The
// wire form is a kind-4 event whose content is a NIP-44 encrypted JSON
// envelope, so a message can carry a reference to the listing or meetup it
// is about without leaking it to relays.
package message

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"sort"
	"time"

	"github.com/culturebridge/nomadstr/pkg/content"
	"github.com/culturebridge/nomadstr/pkg/publish"
	"github.com/culturebridge/nomadstr/pkg/session"
	"github.com/culturebridge/nomadstr/pkg/signer"
	"github.com/culturebridge/nomadstr/pkg/slog"
	"github.com/google/uuid"
	"github.com/nbd-wtf/go-nostr"
)

var log, chk = slog.New(os.Stderr)

var ErrEmptyMessage = errors.New("message: empty message body")

// envelope is the plaintext structure inside the encrypted content.
type envelope struct {
	Content string `json:"content"`
	// Context optionally names the document the conversation is about,
	// as a kind:pubkey:dtag address.
	Context string `json:"context,omitempty"`
}

// Message is one decrypted direct message.
type Message struct {
	// TempID identifies an outgoing message before the relay ack assigns
	// the event id.
	TempID  string
	ID      string
	Peer    string
	Sent    bool
	Content string
	Context string
	At      time.Time
}

// Conversation summarizes the message history with one peer.
type Conversation struct {
	Peer     string
	Last     Message
	Messages int
}

type Queryer interface {
	QueryMany(ctx context.Context, filters []nostr.Filter) ([]*nostr.Event, error)
}

type Publisher interface {
	Publish(ctx context.Context, ev *nostr.Event, sgn signer.Signer, onStatus publish.StatusFunc) (*publish.Receipt, error)
}

// SignerSource yields the signing backend for the active session.
type SignerSource interface {
	GetSigner(ctx context.Context) (signer.Signer, error)
}

// Service sends and reads direct messages for the signed-in user.
type Service struct {
	Sessions  *session.Manager
	Resolver  SignerSource
	Query     Queryer
	Publisher Publisher
}

func NewService(m *session.Manager, r SignerSource, q Queryer, p Publisher) *Service {
	return &Service{Sessions: m, Resolver: r, Query: q, Publisher: p}
}

// Send encrypts and publishes a message to peer. The identity check runs
// before anything touches the network so a signer answering for the wrong
// key cannot leak even an encrypted payload. The returned message carries
// the relay-assigned event id and a temp id minted before publishing.
func (s *Service) Send(ctx context.Context, peer, body, contextRef string) (m Message, err error) {
	if body == "" {
		return m, ErrEmptyMessage
	}
	snap := s.Sessions.Snapshot()
	sgn, err := s.Resolver.GetSigner(ctx)
	if err != nil {
		return m, err
	}
	if err = signer.VerifyIdentity(ctx, snap.Pubkey, sgn); err != nil {
		return m, err
	}
	raw, err := json.Marshal(envelope{Content: body, Context: contextRef})
	if chk.E(err) {
		return m, err
	}
	cipher, err := sgn.NIP44Encrypt(ctx, peer, string(raw))
	if chk.E(err) {
		return m, err
	}
	m = Message{
		TempID:  uuid.NewString(),
		Peer:    peer,
		Sent:    true,
		Content: body,
		Context: contextRef,
		At:      time.Now(),
	}
	ev := &nostr.Event{
		Kind:      content.KindDM,
		CreatedAt: nostr.Now(),
		Tags:      nostr.Tags{{"p", peer}},
		Content:   cipher,
	}
	receipt, err := s.Publisher.Publish(ctx, ev, sgn, nil)
	if err != nil {
		return m, err
	}
	m.ID = receipt.EventID
	return m, nil
}

// History returns the full decrypted conversation with peer, oldest first.
// Messages that fail to decrypt are dropped with a debug log rather than
// failing the whole thread.
func (s *Service) History(ctx context.Context, peer string) (ms []Message, err error) {
	snap := s.Sessions.Snapshot()
	if !snap.Authenticated {
		return nil, session.ErrNotAuthenticated
	}
	sgn, err := s.Resolver.GetSigner(ctx)
	if err != nil {
		return nil, err
	}
	evs, err := s.Query.QueryMany(ctx, []nostr.Filter{
		{Kinds: []int{content.KindDM}, Authors: []string{snap.Pubkey}, Tags: nostr.TagMap{"p": []string{peer}}},
		{Kinds: []int{content.KindDM}, Authors: []string{peer}, Tags: nostr.TagMap{"p": []string{snap.Pubkey}}},
	})
	if err != nil {
		return nil, err
	}
	for _, ev := range evs {
		m, ok := s.decrypt(ctx, sgn, snap.Pubkey, ev)
		if ok && m.Peer == peer {
			ms = append(ms, m)
		}
	}
	sort.Slice(ms, func(i, j int) bool { return ms[i].At.Before(ms[j].At) })
	return ms, nil
}

// Conversations lists every peer the user has exchanged messages with,
// most recently active first.
func (s *Service) Conversations(ctx context.Context) (cs []Conversation, err error) {
	snap := s.Sessions.Snapshot()
	if !snap.Authenticated {
		return nil, session.ErrNotAuthenticated
	}
	sgn, err := s.Resolver.GetSigner(ctx)
	if err != nil {
		return nil, err
	}
	evs, err := s.Query.QueryMany(ctx, []nostr.Filter{
		{Kinds: []int{content.KindDM}, Authors: []string{snap.Pubkey}},
		{Kinds: []int{content.KindDM}, Tags: nostr.TagMap{"p": []string{snap.Pubkey}}},
	})
	if err != nil {
		return nil, err
	}
	byPeer := map[string]*Conversation{}
	for _, ev := range evs {
		m, ok := s.decrypt(ctx, sgn, snap.Pubkey, ev)
		if !ok {
			continue
		}
		c := byPeer[m.Peer]
		if c == nil {
			c = &Conversation{Peer: m.Peer}
			byPeer[m.Peer] = c
		}
		c.Messages++
		if m.At.After(c.Last.At) {
			c.Last = m
		}
	}
	for _, c := range byPeer {
		cs = append(cs, *c)
	}
	sort.Slice(cs, func(i, j int) bool { return cs[i].Last.At.After(cs[j].Last.At) })
	return cs, nil
}

func (s *Service) decrypt(ctx context.Context, sgn signer.Signer, me string, ev *nostr.Event) (m Message, ok bool) {
	if ev.Kind != content.KindDM {
		return
	}
	peer := ev.PubKey
	sent := false
	if ev.PubKey == me {
		pt := ev.Tags.GetFirst([]string{"p"})
		if pt == nil {
			return
		}
		peer = pt.Value()
		sent = true
	}
	plain, err := sgn.NIP44Decrypt(ctx, peer, ev.Content)
	if err != nil {
		log.D.F("undecryptable message %s from %s: %v", ev.ID, ev.PubKey, err)
		return
	}
	var env envelope
	if json.Unmarshal([]byte(plain), &env) != nil || env.Content == "" {
		// older clients send the bare text
		env = envelope{Content: plain}
	}
	return Message{
		ID:      ev.ID,
		Peer:    peer,
		Sent:    sent,
		Content: env.Content,
		Context: env.Context,
		At:      ev.CreatedAt.Time(),
	}, true
}
