package orchestrate

import (
	"context"
	"sort"

	"github.com/culturebridge/nomadstr/pkg/content"
	"github.com/culturebridge/nomadstr/pkg/signer"
	"github.com/nbd-wtf/go-nostr"
)

// ProfileService publishes and fetches kind-0 metadata. Profiles are plain
// replaceable events, so there is no dTag handling and no attachment
// pipeline, but the signer and publish paths are the shared ones.
type ProfileService struct {
	Deps
}

func NewProfileService(d Deps) *ProfileService { return &ProfileService{Deps: d} }

// Publish replaces the signed-in user's profile.
func (s *ProfileService) Publish(ctx context.Context, p content.Profile) Result {
	snap := s.Sessions.Snapshot()
	sgn, err := s.Resolver.GetSigner(ctx)
	if err != nil {
		return failure(StatusAuthFailed, err.Error())
	}
	if err = signer.VerifyIdentity(ctx, snap.Pubkey, sgn); err != nil {
		return failure(StatusAuthFailed, err.Error())
	}
	ev, err := p.ToEvent()
	if err != nil {
		return failure(StatusValidationFailed, err.Error())
	}
	receipt, err := s.Publisher.Publish(ctx, ev, sgn, nil)
	if err != nil {
		return failure(StatusPublishFailed, err.Error())
	}
	if s.Cache != nil {
		s.Cache.Save(context.WithoutCancel(ctx), ev)
	}
	return Result{
		Status:          StatusSuccess,
		EventID:         receipt.EventID,
		PublishedRelays: receipt.Published,
		FailedRelays:    receipt.Failed,
	}
}

// Fetch returns the freshest known profile for a pubkey, falling back to the
// local cache when no relay answers. A user with no profile yet gets a nil
// profile, not an error.
func (s *ProfileService) Fetch(ctx context.Context, pubkey string) (*content.Profile, error) {
	f := nostr.Filter{Kinds: []int{content.KindProfile}, Authors: []string{pubkey}, Limit: 1}
	evs, err := s.Query.QueryMany(ctx, []nostr.Filter{f})
	if err != nil && s.Cache != nil {
		log.W.F("relays unreachable, reading profile cache: %v", err)
		if cached, e := s.Cache.Query(ctx, f); !chk.E(e) {
			evs, err = cached, nil
		}
	}
	if err != nil {
		return nil, err
	}
	var best *nostr.Event
	for _, ev := range evs {
		if ev.Kind != content.KindProfile || ev.PubKey != pubkey {
			continue
		}
		if best == nil || ev.CreatedAt > best.CreatedAt {
			best = ev
		}
	}
	if best == nil {
		return nil, nil
	}
	if s.Cache != nil {
		s.Cache.Save(ctx, best)
	}
	p, err := content.ParseProfile(best)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// FetchMany resolves profiles for a set of pubkeys in one relay round trip,
// keyed by pubkey. Missing profiles are simply absent from the map.
func (s *ProfileService) FetchMany(ctx context.Context, pubkeys []string) (map[string]content.Profile, error) {
	if len(pubkeys) == 0 {
		return map[string]content.Profile{}, nil
	}
	sort.Strings(pubkeys)
	f := nostr.Filter{Kinds: []int{content.KindProfile}, Authors: pubkeys}
	evs, err := s.Query.QueryMany(ctx, []nostr.Filter{f})
	if err != nil {
		return nil, err
	}
	best := map[string]*nostr.Event{}
	for _, ev := range evs {
		if ev.Kind != content.KindProfile {
			continue
		}
		if cur, ok := best[ev.PubKey]; !ok || ev.CreatedAt > cur.CreatedAt {
			best[ev.PubKey] = ev
		}
	}
	out := make(map[string]content.Profile, len(best))
	for pk, ev := range best {
		if p, e := content.ParseProfile(ev); !chk.D(e) {
			out[pk] = p
		}
	}
	return out, nil
}
