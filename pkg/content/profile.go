package content

import (
	"encoding/json"
	"fmt"

	"github.com/nbd-wtf/go-nostr"
	"github.com/nbd-wtf/go-nostr/nip19"
)

// Profile is the kind-0 metadata document, replaceable per pubkey.
type Profile struct {
	PubKey string       `json:"-"`
	Event  *nostr.Event `json:"-"`

	Name        string `json:"name,omitempty"`
	DisplayName string `json:"display_name,omitempty"`
	About       string `json:"about,omitempty"`
	Website     string `json:"website,omitempty"`
	Picture     string `json:"picture,omitempty"`
	Banner      string `json:"banner,omitempty"`
	NIP05       string `json:"nip05,omitempty"`
	LUD06       string `json:"lud06,omitempty"`
	LUD16       string `json:"lud16,omitempty"`
	Bot         bool   `json:"bot,omitempty"`
	Birthday    string `json:"birthday,omitempty"`
}

func (p Profile) Npub() string {
	v, _ := nip19.EncodePublicKey(p.PubKey)
	return v
}

func (p Profile) ShortName() string {
	if p.DisplayName != "" {
		return p.DisplayName
	}
	if p.Name != "" {
		return p.Name
	}
	npub := p.Npub()
	if len(npub) < 64 {
		return npub
	}
	return npub[0:7] + "…" + npub[58:]
}

// ParseProfile reads a kind-0 event into a Profile.
func ParseProfile(ev *nostr.Event) (p Profile, err error) {
	if ev.Kind != KindProfile {
		return p, fmt.Errorf("event %s is kind %d, not %d", ev.ID, ev.Kind, KindProfile)
	}
	if err = json.Unmarshal([]byte(ev.Content), &p); err != nil {
		cont := ev.Content
		if len(cont) > 100 {
			cont = cont[0:99]
		}
		return p, fmt.Errorf("failed to parse metadata (%s) from event %s: %w", cont, ev.ID, err)
	}
	p.PubKey = ev.PubKey
	p.Event = ev
	return p, nil
}

// ToEvent maps the profile onto its unsigned kind-0 event.
func (p Profile) ToEvent() (ev *nostr.Event, err error) {
	var raw []byte
	if raw, err = json.Marshal(p); chk.E(err) {
		return
	}
	return &nostr.Event{
		Kind:      KindProfile,
		CreatedAt: nostr.Now(),
		Tags:      nostr.Tags{},
		Content:   string(raw),
	}, nil
}
