package content

import (
	"fmt"
	"time"

	"github.com/nbd-wtf/go-nostr"
)

// structured single-value tags surfaced in Document.Fields
var fieldTags = []string{
	"title", "summary", "category", "condition", "price", "payrate",
	"location", "contact", "remote", "start", "end", "capacity", "status", "a",
}

// ParseDocument reads any of the application's replaceable events back into
// the Document read model. The namespace marker is stripped from the keyword
// list; an event without a d tag is not a document.
func ParseDocument(ev *nostr.Event) (d *Document, err error) {
	dt := ev.Tags.GetFirst([]string{"d"})
	if dt == nil {
		return nil, fmt.Errorf("event %s has no d tag", ev.ID)
	}
	d = &Document{
		ID:        ev.ID,
		DTag:      dt.Value(),
		Pubkey:    ev.PubKey,
		Kind:      ev.Kind,
		CreatedAt: ev.CreatedAt.Time(),
		Body:      ev.Content,
		Fields:    map[string]string{},
		Event:     ev,
	}
	for _, t := range ev.Tags {
		if len(t) < 2 {
			continue
		}
		switch t[0] {
		case "d":
		case "t":
			if t[1] != Namespace {
				d.Keywords = append(d.Keywords, t[1])
			}
		case mediaTag:
			if a, ok := attachmentFromTag(t); ok {
				d.Attachments = append(d.Attachments, a)
			}
		case "title":
			d.Title = t[1]
			d.Fields["title"] = t[1]
		case "summary":
			d.Summary = t[1]
			d.Fields["summary"] = t[1]
		default:
			for _, k := range fieldTags {
				if t[0] == k {
					d.Fields[k] = t[1]
					break
				}
			}
		}
	}
	return d, nil
}

// HasNamespace reports whether the event carries the application marker.
func HasNamespace(ev *nostr.Event) bool {
	for _, t := range ev.Tags {
		if len(t) >= 2 && t[0] == "t" && t[1] == Namespace {
			return true
		}
	}
	return false
}

// Dedup collapses a pile of relay results into the latest version of each
// logical document. Relays are eventually consistent and stale copies of a
// replaceable event linger; the freshest created_at wins, nothing is merged.
func Dedup(evs []*nostr.Event) (latest []*nostr.Event) {
	byAddr := map[string]*nostr.Event{}
	for _, ev := range evs {
		dt := ev.Tags.GetFirst([]string{"d"})
		if dt == nil {
			continue
		}
		addr := fmt.Sprintf("%d:%s:%s", ev.Kind, ev.PubKey, dt.Value())
		if cur, ok := byAddr[addr]; !ok || ev.CreatedAt > cur.CreatedAt {
			byAddr[addr] = ev
		}
	}
	for _, ev := range byAddr {
		latest = append(latest, ev)
	}
	return
}

// BuildDeletion produces the kind-5 deletion marker for a published event.
// Deletion is itself a signed, published event; whether readers stop seeing
// the target depends on relay-side handling.
func BuildDeletion(eventID, title string) *nostr.Event {
	return &nostr.Event{
		Kind:      KindDeletion,
		CreatedAt: nostr.Now(),
		Tags:      nostr.Tags{{"e", eventID}},
		Content:   "deleted: " + title,
	}
}

// MeetupTimes extracts the start/end times from a parsed meetup document.
func MeetupTimes(d *Document) (start, end time.Time) {
	if v, ok := d.Fields["start"]; ok {
		if n, err := parseUnix(v); err == nil {
			start = n
		}
	}
	if v, ok := d.Fields["end"]; ok {
		if n, err := parseUnix(v); err == nil {
			end = n
		}
	}
	return
}

func parseUnix(s string) (t time.Time, err error) {
	var n int64
	if _, err = fmt.Sscanf(s, "%d", &n); err != nil {
		return
	}
	return time.Unix(n, 0), nil
}
