// Package relays maintains connections to the configured relay set and runs
// concurrent query/publish iterations over it. The relay set is treated as an
// unreliable, partially available broadcast medium: callers decide what any
// individual relay failure means.
package relays

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/culturebridge/nomadstr/pkg/slog"
	"github.com/fiatjaf/generic-ristretto/z"
	"github.com/nbd-wtf/go-nostr"
	"github.com/puzpuzpuz/xsync/v2"
)

var log, chk = slog.New(os.Stderr)

const connectTimeout = time.Second * 15

// Perms describes what a relay is used for.
type Perms struct {
	Read   bool `json:"read"`
	Write  bool `json:"write"`
	Search bool `json:"search"`
}

// Config maps relay URLs to their permissions.
type Config map[string]Perms

const maxLocks = 50

var namedMutexPool [maxLocks]sync.Mutex

func namedLock(name string) (unlock func()) {
	idx := z.MemHashString(name) % maxLocks
	namedMutexPool[idx].Lock()
	return namedMutexPool[idx].Unlock
}

// Pool caches live relay connections keyed by normalized URL.
type Pool struct {
	relays Config
	conns  *xsync.MapOf[string, *nostr.Relay]
}

func New(cfg Config) *Pool {
	return &Pool{
		relays: cfg,
		conns:  xsync.NewMapOf[*nostr.Relay](),
	}
}

// EnsureRelay returns a connected relay for the URL, dialing if needed.
func (p *Pool) EnsureRelay(ctx context.Context, url string) (rl *nostr.Relay, err error) {
	nm := nostr.NormalizeURL(url)
	defer namedLock(nm)()
	if rl, ok := p.conns.Load(nm); ok && rl.IsConnected() {
		return rl, nil
	}
	c, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()
	if rl, err = nostr.RelayConnect(c, nm); err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", nm, err)
	}
	p.conns.Store(nm, rl)
	return rl, nil
}

// URLs returns the configured relays matching the wanted permission.
func (p *Pool) URLs(want Perms) (urls []string) {
	for u, perm := range p.relays {
		if want.Write && !perm.Write {
			continue
		}
		if want.Search && !perm.Search {
			continue
		}
		if !want.Write && !perm.Read {
			continue
		}
		urls = append(urls, u)
	}
	return
}

// WriteRelays lists the relays events are broadcast to.
func (p *Pool) WriteRelays() []string { return p.URLs(Perms{Write: true}) }

// ReadRelays lists the relays queried for documents.
func (p *Pool) ReadRelays() []string { return p.URLs(Perms{Read: true}) }

// Do runs the iterator concurrently on every relay matching the permission
// and waits for all of them. Return false from the iterator to note a
// failure; Do reports how many iterations succeeded.
func (p *Pool) Do(ctx context.Context, want Perms, iter func(context.Context, *nostr.Relay) bool) (succeeded int) {
	var wg sync.WaitGroup
	var mu sync.Mutex
	for _, u := range p.URLs(want) {
		wg.Add(1)
		go func(u string) {
			defer wg.Done()
			rl, err := p.EnsureRelay(ctx, u)
			if chk.D(err) {
				return
			}
			if iter(ctx, rl) {
				mu.Lock()
				succeeded++
				mu.Unlock()
			}
		}(u)
	}
	wg.Wait()
	return
}

// QueryMany runs the filters on every read relay and merges the results,
// deduplicated by event id. A relay that fails or times out contributes
// nothing; an empty result with zero reachable relays is reported as an
// error so callers can fall back to their local cache.
func (p *Pool) QueryMany(ctx context.Context, filters []nostr.Filter) (evs []*nostr.Event, err error) {
	seen := xsync.NewMapOf[*nostr.Event]()
	reached := p.Do(ctx, Perms{Read: true}, func(c context.Context, rl *nostr.Relay) bool {
		for _, f := range filters {
			res, err := rl.QuerySync(c, f)
			if chk.D(err) {
				return false
			}
			for _, ev := range res {
				seen.LoadOrStore(ev.ID, ev)
			}
		}
		return true
	})
	seen.Range(func(_ string, ev *nostr.Event) bool {
		evs = append(evs, ev)
		return true
	})
	if reached == 0 {
		return evs, fmt.Errorf("no relay answered the query")
	}
	return evs, nil
}

// PublishTo sends the signed event to a single relay.
func (p *Pool) PublishTo(ctx context.Context, url string, ev *nostr.Event) (err error) {
	var rl *nostr.Relay
	if rl, err = p.EnsureRelay(ctx, url); err != nil {
		return
	}
	return rl.Publish(ctx, *ev)
}

// Close drops every cached connection.
func (p *Pool) Close() {
	p.conns.Range(func(u string, rl *nostr.Relay) bool {
		chk.T(rl.Close())
		p.conns.Delete(u)
		return true
	})
}
