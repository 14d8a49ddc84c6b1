package content

import (
	"encoding/hex"
	"strings"
	"unicode"

	"github.com/nbd-wtf/go-nostr"
	"lukechampine.com/frand"
)

// NewDTag derives a stable document identifier from the title plus a random
// suffix, so two documents with the same title stay distinct.
func NewDTag(title string) string {
	return slugify(title) + "-" + hex.EncodeToString(frand.Bytes(4))
}

func slugify(s string) string {
	var b strings.Builder
	dash := true
	for _, r := range strings.ToLower(s) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
			dash = false
		case !dash:
			b.WriteByte('-')
			dash = true
		}
		if b.Len() >= 48 {
			break
		}
	}
	out := strings.Trim(b.String(), "-")
	if out == "" {
		out = "doc"
	}
	return out
}

// BuildEvent maps a payload into the unsigned replaceable event for it. An
// empty existingDTag starts a new logical document; a non-empty one replaces
// the prior version of that document verbatim. Attachment metadata must
// already be uploaded; the builder does no I/O.
func BuildEvent(p Payload, media []Attachment, existingDTag string) (ev *nostr.Event) {
	dTag := existingDTag
	if dTag == "" {
		title := ""
		if t := p.MapTags().GetFirst([]string{"title"}); t != nil {
			title = t.Value()
		}
		dTag = NewDTag(title)
	}
	tt := nostr.Tags{{"d", dTag}, {"t", Namespace}}
	tt = append(tt, p.MapTags()...)
	for _, kw := range p.UserKeywords() {
		kw = strings.TrimSpace(strings.ToLower(kw))
		if kw == "" || kw == Namespace {
			continue
		}
		tt = tt.AppendUnique(nostr.Tag{"t", kw})
	}
	for _, a := range media {
		tt = append(tt, a.toTag())
	}
	return &nostr.Event{
		Kind:      p.EventKind(),
		CreatedAt: nostr.Now(),
		Tags:      tt,
		Content:   p.Body(),
	}
}

// SelectiveOps names which existing attachments an update keeps and which it
// removes, by attachment id (the content hash). A nil SelectiveOps keeps
// everything, preserving the behavior of callers that predate selective
// editing.
type SelectiveOps struct {
	Kept    []string
	Removed []string
}

// MergeAttachments applies selective operations to a document's current
// attachments and appends the freshly uploaded ones. Kept attachments retain
// their original relative order; removal wins when an id appears in both
// lists.
func MergeAttachments(existing []Attachment, ops *SelectiveOps, uploaded []Attachment) (out []Attachment) {
	removed := map[string]bool{}
	var kept map[string]bool
	if ops != nil {
		for _, id := range ops.Removed {
			removed[id] = true
		}
		if ops.Kept != nil {
			kept = map[string]bool{}
			for _, id := range ops.Kept {
				kept[id] = true
			}
		}
	}
	for _, a := range existing {
		if removed[a.key()] {
			continue
		}
		if kept != nil && !kept[a.key()] {
			continue
		}
		out = append(out, a)
	}
	out = append(out, uploaded...)
	return
}

// SameAttachments reports whether two attachment lists reference the same
// blobs in the same order.
func SameAttachments(a, b []Attachment) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].key() != b[i].key() {
			return false
		}
	}
	return true
}
