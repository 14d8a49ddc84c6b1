package orchestrate

import (
	"context"
	"errors"
	"testing"

	"github.com/culturebridge/nomadstr/pkg/blob"
	"github.com/culturebridge/nomadstr/pkg/content"
	"github.com/culturebridge/nomadstr/pkg/publish"
	"github.com/culturebridge/nomadstr/pkg/session"
	"github.com/culturebridge/nomadstr/pkg/signer"
	"github.com/nbd-wtf/go-nostr"
	"github.com/stretchr/testify/require"
)

type fakeQueryer struct {
	events []*nostr.Event
	err    error
	calls  int
}

func (q *fakeQueryer) QueryMany(_ context.Context, _ []nostr.Filter) ([]*nostr.Event, error) {
	q.calls++
	return q.events, q.err
}

type fakePublisher struct {
	published []*nostr.Event
	err       error
}

func (p *fakePublisher) Publish(ctx context.Context, ev *nostr.Event, sgn signer.Signer, _ publish.StatusFunc) (*publish.Receipt, error) {
	if p.err != nil {
		return nil, p.err
	}
	if err := sgn.SignEvent(ctx, ev); err != nil {
		return nil, err
	}
	p.published = append(p.published, ev)
	return publish.SettledReceipt(ev.ID, publish.Tally{
		Published: []string{"wss://relay.test"},
	}), nil
}

type fakeUploader struct {
	result blob.BatchResult
	calls  int
}

func (u *fakeUploader) UploadBatch(_ context.Context, files []blob.FileInput, _ signer.Signer, consent blob.ConsentFunc, onProgress blob.ProgressFunc) blob.BatchResult {
	u.calls++
	if consent != nil && !consent(blob.ConsentRequest{FileCount: len(files)}) {
		return blob.BatchResult{UserCancelled: true}
	}
	if onProgress != nil {
		onProgress(blob.Progress{OverallProgress: 1, TotalFiles: len(files)})
	}
	return u.result
}

type fakeCache struct {
	saved  []*nostr.Event
	events []*nostr.Event
	err    error
}

func (c *fakeCache) Save(_ context.Context, evs ...*nostr.Event) { c.saved = append(c.saved, evs...) }

func (c *fakeCache) Query(_ context.Context, _ nostr.Filter) ([]*nostr.Event, error) {
	return c.events, c.err
}

type fixture struct {
	svc   *Service
	sess  session.Session
	query *fakeQueryer
	pub   *fakePublisher
	up    *fakeUploader
	cache *fakeCache
}

func newFixture(t *testing.T, mk func(Deps) *Service) *fixture {
	t.Helper()
	m := session.NewManager()
	s, err := m.SignUp()
	require.NoError(t, err)
	f := &fixture{
		sess:  s,
		query: &fakeQueryer{},
		pub:   &fakePublisher{},
		up:    &fakeUploader{},
		cache: &fakeCache{},
	}
	f.svc = mk(Deps{
		Sessions:  m,
		Resolver:  signer.NewResolver(m),
		Query:     f.query,
		Publisher: f.pub,
		Uploader:  f.up,
		Cache:     f.cache,
	})
	return f
}

func validListing() content.Listing {
	return content.Listing{
		Title:       "Hand carved walking stick",
		Description: "Oak, made on the road",
		Category:    "crafts",
		Price:       40,
		Currency:    "EUR",
		Keywords:    []string{"wood", "Craft"},
	}
}

// signedExisting builds the relay-side current version of a document the way
// an earlier publish would have left it.
func (f *fixture) seedExisting(t *testing.T, p content.Payload, media []content.Attachment, dTag string) *nostr.Event {
	t.Helper()
	ev := content.BuildEvent(p, media, dTag)
	ev.PubKey = f.sess.Pubkey
	ev.CreatedAt -= 3600
	ev.ID = ev.GetID()
	f.query.events = []*nostr.Event{ev}
	return ev
}

func TestCreateListing(t *testing.T) {
	f := newFixture(t, NewListingService)
	res := f.svc.Create(context.Background(), Input{Payload: validListing()})
	require.True(t, res.Success())
	require.NotEmpty(t, res.DTag)
	require.Equal(t, []string{"wss://relay.test"}, res.PublishedRelays)

	require.Len(t, f.pub.published, 1)
	ev := f.pub.published[0]
	require.Equal(t, content.KindListing, ev.Kind)
	require.Equal(t, f.sess.Pubkey, ev.PubKey)
	require.Equal(t, res.DTag, ev.Tags.GetFirst([]string{"d"}).Value())
	require.True(t, content.HasNamespace(ev))
	ok, err := ev.CheckSignature()
	require.NoError(t, err)
	require.True(t, ok)
	require.Len(t, f.cache.saved, 1)
}

func TestValidationStopsBeforeAnyNetwork(t *testing.T) {
	f := newFixture(t, NewListingService)
	bad := validListing()
	bad.Currency = "euros"
	res := f.svc.Create(context.Background(), Input{Payload: bad})
	require.Equal(t, StatusValidationFailed, res.Status)
	require.Contains(t, res.Err, "currency")
	require.Zero(t, f.query.calls)
	require.Zero(t, f.up.calls)
	require.Empty(t, f.pub.published)
}

func TestPayloadKindMustMatchService(t *testing.T) {
	f := newFixture(t, NewWorkService)
	res := f.svc.Create(context.Background(), Input{Payload: validListing()})
	require.Equal(t, StatusValidationFailed, res.Status)
	require.Empty(t, f.pub.published)
}

func TestSignedOutUserCannotPublish(t *testing.T) {
	f := newFixture(t, NewListingService)
	f.svc.Sessions.SignOut()
	res := f.svc.Create(context.Background(), Input{Payload: validListing()})
	require.Equal(t, StatusAuthFailed, res.Status)
	require.Empty(t, f.pub.published)
	require.Zero(t, f.up.calls)
}

// wrongSigner answers for a key the session never authenticated as.
type wrongSigner struct {
	sgn signer.Signer
}

func (w wrongSigner) GetSigner(context.Context) (signer.Signer, error) { return w.sgn, nil }

func TestMismatchedSignerStopsBeforeNetwork(t *testing.T) {
	f := newFixture(t, NewListingService)
	other, err := signer.NewLocalSigner(nostr.GeneratePrivateKey())
	require.NoError(t, err)
	f.svc.Resolver = wrongSigner{other}

	res := f.svc.Create(context.Background(), Input{
		Payload: validListing(),
		Files:   []blob.FileInput{{Name: "a.jpg", MimeType: "image/jpeg", Data: []byte("z")}},
	})
	require.Equal(t, StatusAuthFailed, res.Status)
	require.Contains(t, res.Err, signer.ErrIdentityMismatch.Error())
	require.Zero(t, f.query.calls)
	require.Zero(t, f.up.calls)
	require.Empty(t, f.pub.published)
}

func TestUpdateKeepsDTag(t *testing.T) {
	f := newFixture(t, NewListingService)
	orig := validListing()
	existing := f.seedExisting(t, orig, nil, content.NewDTag(orig.Title))
	dTag := existing.Tags.GetFirst([]string{"d"}).Value()

	changed := orig
	changed.Price = 35
	res := f.svc.Create(context.Background(), Input{Payload: changed, ExistingDTag: dTag})
	require.True(t, res.Success())
	require.False(t, res.Unchanged)
	require.Equal(t, dTag, res.DTag)
	require.Len(t, f.pub.published, 1)
	require.Equal(t, dTag, f.pub.published[0].Tags.GetFirst([]string{"d"}).Value())
}

func TestUpdateMissingDocument(t *testing.T) {
	f := newFixture(t, NewListingService)
	res := f.svc.Create(context.Background(), Input{
		Payload:      validListing(),
		ExistingDTag: "walking-stick-deadbeef",
	})
	require.Equal(t, StatusNotFound, res.Status)
	require.Empty(t, f.pub.published)
}

func TestUnchangedUpdateSkipsPublish(t *testing.T) {
	f := newFixture(t, NewListingService)
	p := validListing()
	existing := f.seedExisting(t, p, nil, content.NewDTag(p.Title))
	dTag := existing.Tags.GetFirst([]string{"d"}).Value()

	res := f.svc.Create(context.Background(), Input{Payload: p, ExistingDTag: dTag})
	require.True(t, res.Success())
	require.True(t, res.Unchanged)
	require.Equal(t, existing.ID, res.EventID)
	require.Empty(t, f.pub.published)
}

func TestConsentDeclineAbandonsEverything(t *testing.T) {
	f := newFixture(t, NewListingService)
	res := f.svc.Create(context.Background(), Input{
		Payload: validListing(),
		Files:   []blob.FileInput{{Name: "a.jpg", MimeType: "image/jpeg", Data: []byte("x")}},
		Consent: func(blob.ConsentRequest) bool { return false },
	})
	require.Equal(t, StatusUploadFailed, res.Status)
	require.True(t, res.Cancelled)
	require.Empty(t, f.pub.published)
}

func TestPartialUploadStillPublishes(t *testing.T) {
	f := newFixture(t, NewListingService)
	f.up.result = blob.BatchResult{
		SuccessCount: 1,
		FailureCount: 1,
		Uploaded: []blob.UploadedFile{{
			ID: "aaaa", URL: "https://blobs.test/aaaa", Hash: "aaaa",
			Name: "a.jpg", Size: 1, MimeType: "image/jpeg", Type: "image",
		}},
		Failed: []blob.FailedFile{{Name: "b.jpg"}},
	}
	res := f.svc.Create(context.Background(), Input{
		Payload: validListing(),
		Files: []blob.FileInput{
			{Name: "a.jpg", MimeType: "image/jpeg", Data: []byte("x")},
			{Name: "b.jpg", MimeType: "image/jpeg", Data: []byte("y")},
		},
	})
	require.True(t, res.Success())
	doc, err := content.ParseDocument(f.pub.published[0])
	require.NoError(t, err)
	require.Len(t, doc.Attachments, 1)
	require.Equal(t, "https://blobs.test/aaaa", doc.Attachments[0].URL)
}

func TestSelectiveAttachmentUpdate(t *testing.T) {
	f := newFixture(t, NewListingService)
	old := []content.Attachment{
		{ID: "a", Hash: "a", URL: "u/a", Type: "image"},
		{ID: "b", Hash: "b", URL: "u/b", Type: "image"},
		{ID: "c", Hash: "c", URL: "u/c", Type: "image"},
	}
	p := validListing()
	existing := f.seedExisting(t, p, old, content.NewDTag(p.Title))
	dTag := existing.Tags.GetFirst([]string{"d"}).Value()

	f.up.result = blob.BatchResult{
		SuccessCount: 1,
		Uploaded: []blob.UploadedFile{{
			ID: "d", Hash: "d", URL: "u/d", Type: "image",
			Name: "d.jpg", Size: 1, MimeType: "image/jpeg",
		}},
	}
	res := f.svc.Create(context.Background(), Input{
		Payload:      p,
		ExistingDTag: dTag,
		Files:        []blob.FileInput{{Name: "d.jpg", MimeType: "image/jpeg", Data: []byte("z")}},
		Selective:    &content.SelectiveOps{Kept: []string{"a", "c"}, Removed: []string{"b"}},
	})
	require.True(t, res.Success())
	doc, err := content.ParseDocument(f.pub.published[0])
	require.NoError(t, err)
	var urls []string
	for _, a := range doc.Attachments {
		urls = append(urls, a.URL)
	}
	require.Equal(t, []string{"u/a", "u/c", "u/d"}, urls)
}

// seedForeign puts someone else's document with the same dTag on the relay.
func (f *fixture) seedForeign(t *testing.T, p content.Payload, media []content.Attachment, dTag string) *nostr.Event {
	t.Helper()
	ev := content.BuildEvent(p, media, dTag)
	pk, err := nostr.GetPublicKey(nostr.GeneratePrivateKey())
	require.NoError(t, err)
	ev.PubKey = pk
	ev.ID = ev.GetID()
	f.query.events = append(f.query.events, ev)
	return ev
}

func TestUpdateRejectsForeignAuthorDocument(t *testing.T) {
	f := newFixture(t, NewListingService)
	p := validListing()
	dTag := content.NewDTag(p.Title)
	f.seedForeign(t, p, []content.Attachment{
		{ID: "x", Hash: "x", URL: "https://elsewhere.example/their.jpg", Type: "image"},
	}, dTag)

	res := f.svc.Create(context.Background(), Input{Payload: p, ExistingDTag: dTag})
	require.Equal(t, StatusNotFound, res.Status)
	require.Empty(t, f.pub.published)
}

func TestUpdateMergesOnlyOwnAttachments(t *testing.T) {
	f := newFixture(t, NewListingService)
	p := validListing()
	dTag := content.NewDTag(p.Title)
	f.seedExisting(t, p, []content.Attachment{
		{ID: "m", Hash: "m", URL: "https://blobs.test/mine.jpg", Type: "image"},
	}, dTag)
	// a fresher same-dTag event from another pubkey must not become the
	// merge base
	foreign := f.seedForeign(t, p, []content.Attachment{
		{ID: "x", Hash: "x", URL: "https://elsewhere.example/their.jpg", Type: "image"},
	}, dTag)
	foreign.CreatedAt += 600

	upd := validListing()
	upd.Price = 35
	res := f.svc.Create(context.Background(), Input{Payload: upd, ExistingDTag: dTag})
	require.True(t, res.Success())
	require.Len(t, f.pub.published, 1)
	doc, err := content.ParseDocument(f.pub.published[0])
	require.NoError(t, err)
	var urls []string
	for _, a := range doc.Attachments {
		urls = append(urls, a.URL)
	}
	require.Equal(t, []string{"https://blobs.test/mine.jpg"}, urls)
}

func TestPublishFailureSurfaces(t *testing.T) {
	f := newFixture(t, NewListingService)
	f.pub.err = publish.ErrAllRelaysFailed
	res := f.svc.Create(context.Background(), Input{Payload: validListing()})
	require.Equal(t, StatusPublishFailed, res.Status)
	require.Empty(t, f.cache.saved)
}

func TestProgressAdvancesThroughStages(t *testing.T) {
	f := newFixture(t, NewListingService)
	var stages []Stage
	last := -1
	res := f.svc.Create(context.Background(), Input{
		Payload: validListing(),
		OnProgress: func(p Progress) {
			stages = append(stages, p.Stage)
			require.GreaterOrEqual(t, p.Percent, last)
			last = p.Percent
		},
	})
	require.True(t, res.Success())
	require.Equal(t, StageValidating, stages[0])
	require.Equal(t, StageComplete, stages[len(stages)-1])
	require.Equal(t, 100, last)
}

func TestDeletePublishesMarker(t *testing.T) {
	f := newFixture(t, NewListingService)
	res := f.svc.Delete(context.Background(), "deadbeef", "Hand carved walking stick")
	require.True(t, res.Success())
	require.Len(t, f.pub.published, 1)
	ev := f.pub.published[0]
	require.Equal(t, content.KindDeletion, ev.Kind)
	require.Equal(t, "deadbeef", ev.Tags.GetFirst([]string{"e"}).Value())
}

func TestFetchFallsBackToCache(t *testing.T) {
	f := newFixture(t, NewListingService)
	p := validListing()
	ev := content.BuildEvent(p, nil, "walking-stick-cafe0123")
	ev.PubKey = f.sess.Pubkey
	ev.ID = ev.GetID()
	f.query.err = errors.New("no relay reachable")
	f.cache.events = []*nostr.Event{ev}

	doc, err := f.svc.FetchByID(context.Background(), "walking-stick-cafe0123")
	require.NoError(t, err)
	require.NotNil(t, doc)
	require.Equal(t, "walking-stick-cafe0123", doc.DTag)
}

func TestFetchMissIsNilNotError(t *testing.T) {
	f := newFixture(t, NewListingService)
	doc, err := f.svc.FetchByID(context.Background(), "nothing-here")
	require.NoError(t, err)
	require.Nil(t, doc)
}

func TestFetchDedupsByRecency(t *testing.T) {
	f := newFixture(t, NewListingService)
	p := validListing()
	older := content.BuildEvent(p, nil, "stick-01")
	older.PubKey = f.sess.Pubkey
	older.CreatedAt -= 7200
	older.ID = older.GetID()
	newer := content.BuildEvent(p, nil, "stick-01")
	newer.PubKey = f.sess.Pubkey
	newer.Content = "Oak, freshly oiled"
	newer.ID = newer.GetID()
	f.query.events = []*nostr.Event{older, newer}

	doc, err := f.svc.FetchByID(context.Background(), "stick-01")
	require.NoError(t, err)
	require.Equal(t, "Oak, freshly oiled", doc.Body)
}

func TestFetchByAuthorFreshestFirst(t *testing.T) {
	f := newFixture(t, NewListingService)
	p := validListing()
	a := content.BuildEvent(p, nil, "stick-aa")
	a.PubKey = f.sess.Pubkey
	a.CreatedAt -= 60
	a.ID = a.GetID()
	b := content.BuildEvent(p, nil, "stick-bb")
	b.PubKey = f.sess.Pubkey
	b.ID = b.GetID()
	f.query.events = []*nostr.Event{a, b}

	docs, err := f.svc.FetchByAuthor(context.Background(), f.sess.Pubkey)
	require.NoError(t, err)
	require.Len(t, docs, 2)
	require.Equal(t, "stick-bb", docs[0].DTag)
	require.Equal(t, "stick-aa", docs[1].DTag)
}

func TestRSVPRoundTrip(t *testing.T) {
	f := newFixture(t, NewMeetupService)
	meetup := &content.Document{
		Kind:   content.KindMeetup,
		Pubkey: f.sess.Pubkey,
		DTag:   "fire-circle-0a0b",
	}
	res := f.svc.RSVP(context.Background(), meetup, "accepted")
	require.True(t, res.Success())
	ev := f.pub.published[0]
	require.Equal(t, content.KindRSVP, ev.Kind)
	require.Equal(t, meetup.Address(), ev.Tags.GetFirst([]string{"a"}).Value())

	res = f.svc.RSVP(context.Background(), meetup, "maybe")
	require.Equal(t, StatusValidationFailed, res.Status)
}

func TestFetchRSVPsLatestPerAttendee(t *testing.T) {
	f := newFixture(t, NewMeetupService)
	meetup := &content.Document{
		Kind:   content.KindMeetup,
		Pubkey: f.sess.Pubkey,
		DTag:   "fire-circle-0a0b",
	}
	mkReply := func(pk, status string, age nostr.Timestamp) *nostr.Event {
		ev, err := content.BuildRSVP(meetup, status)
		require.NoError(t, err)
		ev.PubKey = pk
		ev.CreatedAt -= age
		return ev
	}
	f.query.events = []*nostr.Event{
		mkReply("attendee1", "tentative", 600),
		mkReply("attendee1", "accepted", 0),
		mkReply("attendee2", "declined", 300),
	}
	replies, err := f.svc.FetchRSVPs(context.Background(), meetup)
	require.NoError(t, err)
	require.Len(t, replies, 2)
	byPk := map[string]string{}
	for _, r := range replies {
		byPk[r.Attendee] = r.Status
	}
	require.Equal(t, "accepted", byPk["attendee1"])
	require.Equal(t, "declined", byPk["attendee2"])
}
