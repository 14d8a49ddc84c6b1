// Package publish signs an event and broadcasts it to the write relay set
// concurrently. The caller gets a result as soon as the first relay accepts,
// while delivery to the remaining relays carries on in the background; the
// full replication tally stays available through the returned Receipt.
package publish

import (
	"context"
	"errors"
	"os"
	"time"

	"github.com/culturebridge/nomadstr/pkg/signer"
	"github.com/culturebridge/nomadstr/pkg/slog"
	"github.com/nbd-wtf/go-nostr"
)

var log, chk = slog.New(os.Stderr)

// ErrAllRelaysFailed means not a single relay accepted the event.
var ErrAllRelaysFailed = errors.New("publish: all relays rejected the event")

type Status string

const (
	StatusPublishing Status = "publishing"
	StatusSuccess    Status = "success"
	StatusFailed     Status = "failed"
)

// StatusFunc is a best-effort progress sink. It may be called multiple times
// per relay and is never the error channel.
type StatusFunc func(relay string, status Status)

// Transport is the publishing side of the relay pool.
type Transport interface {
	WriteRelays() []string
	PublishTo(ctx context.Context, url string, ev *nostr.Event) error
}

// Tally is the final outcome of a full broadcast.
type Tally struct {
	Published []string
	Failed    []string
}

// Receipt is the result of a publish. Published/Failed reflect what was known
// when the first relay acknowledged; Wait blocks for the full broadcast.
type Receipt struct {
	EventID   string
	Published []string
	Failed    []string

	full *Tally
	// settled is closed once the full broadcast has landed in full, so
	// any number of Wait callers get released. Nil means already settled.
	settled chan struct{}
}

// Wait returns the full replication tally, blocking until every relay has
// settled or the context expires. Safe to call from multiple goroutines.
func (r *Receipt) Wait(ctx context.Context) (Tally, error) {
	if r.settled == nil {
		return Tally{Published: r.Published, Failed: r.Failed}, nil
	}
	select {
	case <-r.settled:
		return *r.full, nil
	case <-ctx.Done():
		return Tally{}, ctx.Err()
	}
}

// SettledReceipt builds a receipt whose broadcast has already completed.
// Used by callers that short-circuit publishing and by test doubles.
func SettledReceipt(eventID string, t Tally) *Receipt {
	return &Receipt{EventID: eventID, Published: t.Published, Failed: t.Failed}
}

type Publisher struct {
	Transport Transport
	// Timeout bounds each individual relay publish. Zero means 10s.
	Timeout time.Duration
}

type relayResult struct {
	url string
	err error
}

// Publish signs ev with the given signer and fans it out to every write
// relay. It returns as soon as one relay acknowledges, with that relay as the
// only entry in Published; it returns ErrAllRelaysFailed only when every
// relay has rejected or timed out. The in-flight broadcast is detached from
// the caller's context so best-effort replication continues after return.
func (p *Publisher) Publish(ctx context.Context, ev *nostr.Event, sgn signer.Signer, onStatus StatusFunc) (r *Receipt, err error) {
	urls := p.Transport.WriteRelays()
	if len(urls) == 0 {
		return nil, errors.New("publish: no write relays configured")
	}
	if err = sgn.SignEvent(ctx, ev); chk.E(err) {
		return nil, err
	}
	timeout := p.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	notify := func(u string, s Status) {
		if onStatus != nil {
			onStatus(u, s)
		}
	}

	bg := context.WithoutCancel(ctx)
	results := make(chan relayResult, len(urls))
	for _, u := range urls {
		go func(u string) {
			notify(u, StatusPublishing)
			c, cancel := context.WithTimeout(bg, timeout)
			defer cancel()
			e := p.Transport.PublishTo(c, u, ev)
			if e != nil {
				log.D.F("relay %s rejected %s: %v", u, ev.ID, e)
				notify(u, StatusFailed)
			} else {
				notify(u, StatusSuccess)
			}
			results <- relayResult{u, e}
		}(u)
	}

	firstCh := make(chan relayResult, 1)
	full := &Tally{}
	settled := make(chan struct{})
	go func() {
		var t Tally
		sent := false
		for range urls {
			res := <-results
			if res.err != nil {
				t.Failed = append(t.Failed, res.url)
				continue
			}
			t.Published = append(t.Published, res.url)
			if !sent {
				sent = true
				firstCh <- res
			}
		}
		log.D.F("broadcast of %s complete: %d published, %d failed",
			ev.ID, len(t.Published), len(t.Failed))
		*full = t
		close(settled)
	}()

	select {
	case first := <-firstCh:
		return &Receipt{
			EventID:   ev.ID,
			Published: []string{first.url},
			full:      full,
			settled:   settled,
		}, nil
	case <-settled:
		if len(full.Published) == 0 {
			return nil, ErrAllRelaysFailed
		}
		// every relay settled before we observed the first ack
		return &Receipt{
			EventID:   ev.ID,
			Published: full.Published,
			Failed:    full.Failed,
			full:      full,
			settled:   settled,
		}, nil
	}
}
