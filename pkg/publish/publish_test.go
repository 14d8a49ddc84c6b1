package publish

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/culturebridge/nomadstr/pkg/signer"
	"github.com/nbd-wtf/go-nostr"
	"github.com/stretchr/testify/require"
)

type fakeTransport struct {
	mu     sync.Mutex
	relays []string
	fail   map[string]bool
	delay  map[string]time.Duration
	got    map[string]*nostr.Event
}

func newFakeTransport(relays ...string) *fakeTransport {
	return &fakeTransport{
		relays: relays,
		fail:   map[string]bool{},
		delay:  map[string]time.Duration{},
		got:    map[string]*nostr.Event{},
	}
}

func (f *fakeTransport) WriteRelays() []string { return f.relays }

func (f *fakeTransport) PublishTo(ctx context.Context, url string, ev *nostr.Event) error {
	if d := f.delay[url]; d > 0 {
		select {
		case <-time.After(d):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail[url] {
		return errors.New("blocked: rejected")
	}
	f.got[url] = ev
	return nil
}

func testSigner(t *testing.T) *signer.LocalSigner {
	t.Helper()
	s, err := signer.NewLocalSigner(nostr.GeneratePrivateKey())
	require.NoError(t, err)
	return s
}

func testEvent() *nostr.Event {
	return &nostr.Event{
		Kind:      1,
		CreatedAt: nostr.Now(),
		Tags:      nostr.Tags{},
		Content:   "hello",
	}
}

func TestAnySingleRelaySuccess(t *testing.T) {
	tr := newFakeTransport("wss://a", "wss://b", "wss://c")
	tr.fail["wss://a"] = true
	tr.fail["wss://b"] = true
	p := &Publisher{Transport: tr}
	r, err := p.Publish(context.Background(), testEvent(), testSigner(t), nil)
	require.NoError(t, err)
	require.NotEmpty(t, r.EventID)
	tally, err := r.Wait(context.Background())
	require.NoError(t, err)
	require.Equal(t, []string{"wss://c"}, tally.Published)
	require.Len(t, tally.Failed, 2)
}

func TestAllRelaysFailed(t *testing.T) {
	tr := newFakeTransport("wss://a", "wss://b")
	tr.fail["wss://a"] = true
	tr.fail["wss://b"] = true
	p := &Publisher{Transport: tr}
	_, err := p.Publish(context.Background(), testEvent(), testSigner(t), nil)
	require.ErrorIs(t, err, ErrAllRelaysFailed)
}

func TestFirstAckReturnsBeforeSlowRelays(t *testing.T) {
	tr := newFakeTransport("wss://fast", "wss://slow")
	tr.delay["wss://slow"] = 300 * time.Millisecond
	p := &Publisher{Transport: tr}
	start := time.Now()
	r, err := p.Publish(context.Background(), testEvent(), testSigner(t), nil)
	require.NoError(t, err)
	require.Less(t, time.Since(start), 250*time.Millisecond,
		"publish must resolve on the first ack, not the full broadcast")
	require.Equal(t, []string{"wss://fast"}, r.Published)
	// the slow relay still gets the event in the background
	tally, err := r.Wait(context.Background())
	require.NoError(t, err)
	require.Len(t, tally.Published, 2)
}

func TestWaitReleasesEveryCaller(t *testing.T) {
	tr := newFakeTransport("wss://fast", "wss://slow")
	tr.delay["wss://slow"] = 50 * time.Millisecond
	p := &Publisher{Transport: tr}
	r, err := p.Publish(context.Background(), testEvent(), testSigner(t), nil)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	var wg sync.WaitGroup
	tallies := make([]Tally, 3)
	errs := make([]error, 3)
	for i := range tallies {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			tallies[i], errs[i] = r.Wait(ctx)
		}(i)
	}
	wg.Wait()
	for i := range tallies {
		require.NoError(t, errs[i])
		require.ElementsMatch(t, []string{"wss://fast", "wss://slow"}, tallies[i].Published)
	}
	// a waiter arriving after settlement gets the same tally
	tally, err := r.Wait(context.Background())
	require.NoError(t, err)
	require.Len(t, tally.Published, 2)
}

func TestStatusCallbackSequence(t *testing.T) {
	tr := newFakeTransport("wss://a")
	p := &Publisher{Transport: tr}
	var mu sync.Mutex
	var seen []Status
	r, err := p.Publish(context.Background(), testEvent(), testSigner(t),
		func(relay string, s Status) {
			mu.Lock()
			seen = append(seen, s)
			mu.Unlock()
		})
	require.NoError(t, err)
	_, err = r.Wait(context.Background())
	require.NoError(t, err)
	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, []Status{StatusPublishing, StatusSuccess}, seen)
}

func TestPublishSignsTheEvent(t *testing.T) {
	tr := newFakeTransport("wss://a")
	p := &Publisher{Transport: tr}
	sgn := testSigner(t)
	ev := testEvent()
	r, err := p.Publish(context.Background(), ev, sgn, nil)
	require.NoError(t, err)
	_, _ = r.Wait(context.Background())
	pub, _ := sgn.GetPublicKey(context.Background())
	require.Equal(t, pub, ev.PubKey)
	require.NotEmpty(t, ev.Sig)
	ok, err := ev.CheckSignature()
	require.NoError(t, err)
	require.True(t, ok)
}
