// Package cache mirrors relay query results into a local badger-backed event
// store so fetches survive a fully unreachable relay set and recency dedup
// has a second source to draw from.
package cache

import (
	"context"
	"os"

	"github.com/culturebridge/nomadstr/pkg/slog"
	"github.com/fiatjaf/eventstore/badger"
	"github.com/nbd-wtf/go-nostr"
)

var log, chk = slog.New(os.Stderr)

type Store struct {
	db *badger.BadgerBackend
}

func Open(path string) (s *Store, err error) {
	db := &badger.BadgerBackend{Path: path}
	if err = db.Init(); chk.E(err) {
		return nil, err
	}
	return &Store{db: db}, nil
}

// Save mirrors events into the store. Failures are logged and swallowed: the
// cache is an optimization, never the reason an operation fails.
func (s *Store) Save(ctx context.Context, evs ...*nostr.Event) {
	for _, ev := range evs {
		chk.T(s.db.SaveEvent(ctx, ev))
	}
}

// Query drains the store for a filter.
func (s *Store) Query(ctx context.Context, f nostr.Filter) (evs []*nostr.Event, err error) {
	var ch chan *nostr.Event
	if ch, err = s.db.QueryEvents(ctx, f); chk.E(err) {
		return
	}
	for ev := range ch {
		evs = append(evs, ev)
	}
	return
}

// Delete drops an event from the local mirror.
func (s *Store) Delete(ctx context.Context, ev *nostr.Event) error {
	return s.db.DeleteEvent(ctx, ev)
}

func (s *Store) Close() {
	s.db.Close()
}
