// Package content defines the replaceable document model: typed payloads for
// each content type, their validation rules, and the pure mapping between
// payloads and nostr events. Nothing in here touches the network.
package content

import (
	"os"
	"strconv"
	"time"

	"github.com/culturebridge/nomadstr/pkg/slog"
	"github.com/nbd-wtf/go-nostr"
)

var log, chk = slog.New(os.Stderr)

// Event kinds used by the application. Listings follow NIP-99 classifieds,
// contributions NIP-23 long-form, meetups NIP-52 calendar events; work offers
// live in the app's own parameterized-replaceable slot.
const (
	KindProfile      = 0
	KindDM           = 4
	KindDeletion     = 5
	KindContribution = 30023
	KindWork         = 30043
	KindListing      = 30402
	KindMeetup       = 31923
	KindRSVP         = 31925
)

// Namespace is the internal marker tag value present on every document this
// application publishes. It is how queries find our content among everything
// else on a relay, and it is stripped from user-visible keyword lists.
const Namespace = "culturebridge"

// mediaTag is the tag key attachments are serialized under.
const mediaTag = "media"

// Attachment is an uploaded blob referenced by a document. Immutable once
// created; the hash doubles as its stable identifier across edits.
type Attachment struct {
	ID       string `json:"id"`
	URL      string `json:"url"`
	Type     string `json:"type"`
	Hash     string `json:"hash"`
	Name     string `json:"name"`
	Size     int64  `json:"size"`
	MimeType string `json:"mimeType"`
}

func (a Attachment) key() string {
	if a.Hash != "" {
		return a.Hash
	}
	return a.URL
}

func (a Attachment) toTag() nostr.Tag {
	return nostr.Tag{mediaTag, a.URL, a.Type, a.Hash, a.Name,
		strconv.FormatInt(a.Size, 10), a.MimeType}
}

func attachmentFromTag(t nostr.Tag) (a Attachment, ok bool) {
	if len(t) < 7 || t[0] != mediaTag {
		return a, false
	}
	size, _ := strconv.ParseInt(t[5], 10, 64)
	a = Attachment{
		URL:      t[1],
		Type:     t[2],
		Hash:     t[3],
		Name:     t[4],
		Size:     size,
		MimeType: t[6],
	}
	a.ID = a.key()
	return a, true
}

// Document is the read model for any published content type. ID changes with
// every edit; (Pubkey, Kind, DTag) is the only stable reference.
type Document struct {
	ID          string
	DTag        string
	Pubkey      string
	Kind        int
	CreatedAt   time.Time
	Title       string
	Summary     string
	Keywords    []string
	Attachments []Attachment
	Body        string
	// Fields holds the remaining single-value structured tags (price,
	// location, currency and so on), keyed by tag name.
	Fields map[string]string
	Event  *nostr.Event
}

// Address is the NIP-33 style document address used by RSVP and other
// cross-document references.
func (d *Document) Address() string {
	return strconv.Itoa(d.Kind) + ":" + d.Pubkey + ":" + d.DTag
}
