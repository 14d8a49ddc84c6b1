// Package orchestrate runs the shared create/update/delete/fetch pipeline
// every content type goes through. One generic service parameterized by the
// payload type replaces per-type copies so each type is guaranteed to enforce
// the same preconditions in the same order: validate before any network call,
// never upload without consent, never publish without a resolved signer.
package orchestrate

import (
	"context"
	"errors"
	"os"
	"reflect"
	"sort"

	"github.com/culturebridge/nomadstr/pkg/blob"
	"github.com/culturebridge/nomadstr/pkg/content"
	"github.com/culturebridge/nomadstr/pkg/publish"
	"github.com/culturebridge/nomadstr/pkg/session"
	"github.com/culturebridge/nomadstr/pkg/signer"
	"github.com/culturebridge/nomadstr/pkg/slog"
	"github.com/nbd-wtf/go-nostr"
)

var log, chk = slog.New(os.Stderr)

// Queryer is the read side of the relay set.
type Queryer interface {
	QueryMany(ctx context.Context, filters []nostr.Filter) ([]*nostr.Event, error)
}

// Publisher is the write side.
type Publisher interface {
	Publish(ctx context.Context, ev *nostr.Event, sgn signer.Signer, onStatus publish.StatusFunc) (*publish.Receipt, error)
}

// SignerSource yields the signing backend for the active session.
type SignerSource interface {
	GetSigner(ctx context.Context) (signer.Signer, error)
}

// Uploader runs the consent-gated attachment batches.
type Uploader interface {
	UploadBatch(ctx context.Context, files []blob.FileInput, sgn signer.Signer, consent blob.ConsentFunc, onProgress blob.ProgressFunc) blob.BatchResult
}

// Cache is an optional local mirror consulted when no relay answers.
type Cache interface {
	Save(ctx context.Context, evs ...*nostr.Event)
	Query(ctx context.Context, f nostr.Filter) ([]*nostr.Event, error)
}

// Deps collects the collaborators every service shares.
type Deps struct {
	Sessions  *session.Manager
	Resolver  SignerSource
	Query     Queryer
	Publisher Publisher
	Uploader  Uploader
	Cache     Cache
}

// Service orchestrates one content type.
type Service struct {
	Deps
	Kind     int
	TypeName string
}

func NewListingService(d Deps) *Service {
	return &Service{Deps: d, Kind: content.KindListing, TypeName: "listing"}
}

func NewWorkService(d Deps) *Service {
	return &Service{Deps: d, Kind: content.KindWork, TypeName: "work"}
}

func NewContributionService(d Deps) *Service {
	return &Service{Deps: d, Kind: content.KindContribution, TypeName: "contribution"}
}

func NewMeetupService(d Deps) *Service {
	return &Service{Deps: d, Kind: content.KindMeetup, TypeName: "meetup"}
}

// Input is one create or update request. ExistingDTag empty means a new
// document; set, it addresses the document being replaced. Consent is only
// consulted when Files is non-empty.
type Input struct {
	Payload       content.Payload
	Files         []blob.FileInput
	ExistingDTag  string
	Selective     *content.SelectiveOps
	Consent       blob.ConsentFunc
	OnProgress    ProgressFunc
	OnRelayStatus publish.StatusFunc
}

// Create runs the unified pipeline and never panics or leaks an exception:
// every internal failure lands in the Result.
func (s *Service) Create(ctx context.Context, in Input) Result {
	notify := func(p Progress) {
		if in.OnProgress != nil {
			in.OnProgress(p)
		}
	}
	notify(Progress{StageValidating, 0})
	if in.Payload.EventKind() != s.Kind {
		return failure(StatusValidationFailed, "payload is a "+in.Payload.TypeName()+", not a "+s.TypeName)
	}
	if errs := in.Payload.Validate(); len(errs) > 0 {
		return failure(StatusValidationFailed, content.JoinFieldErrors(errs))
	}

	snap := s.Sessions.Snapshot()
	sgn, err := s.Resolver.GetSigner(ctx)
	if err != nil {
		return failure(StatusAuthFailed, err.Error())
	}
	if err = signer.VerifyIdentity(ctx, snap.Pubkey, sgn); err != nil {
		return failure(StatusAuthFailed, err.Error())
	}

	var existing *content.Document
	if in.ExistingDTag != "" {
		// only the signed-in author's version counts as the document
		// being replaced; a same-dTag event from another pubkey is a
		// different document
		if existing, err = s.fetchLatest(ctx, in.ExistingDTag, snap.Pubkey); err != nil {
			return failure(StatusPublishFailed, err.Error())
		}
		if existing == nil {
			return failure(StatusNotFound, s.TypeName+" "+in.ExistingDTag+" not found")
		}
	}

	var uploaded []content.Attachment
	if len(in.Files) > 0 {
		notify(Progress{StageUploading, 20})
		batch := s.Uploader.UploadBatch(ctx, in.Files, sgn, in.Consent,
			func(p blob.Progress) {
				notify(Progress{StageUploading, 20 + int(p.OverallProgress*30)})
			})
		if batch.UserCancelled {
			return Result{Status: StatusUploadFailed, Cancelled: true, Err: "upload cancelled"}
		}
		if batch.SuccessCount == 0 {
			return failure(StatusUploadFailed, "every file upload failed")
		}
		for _, f := range batch.Uploaded {
			uploaded = append(uploaded, content.Attachment{
				ID:       f.ID,
				URL:      f.URL,
				Type:     f.Type,
				Hash:     f.Hash,
				Name:     f.Name,
				Size:     f.Size,
				MimeType: f.MimeType,
			})
		}
	}

	media := uploaded
	if existing != nil {
		media = content.MergeAttachments(existing.Attachments, in.Selective, uploaded)
	}

	notify(Progress{StageBuilding, 50})
	ev := content.BuildEvent(in.Payload, media, in.ExistingDTag)
	dTag := ev.Tags.GetFirst([]string{"d"}).Value()

	if existing != nil && existing.Event != nil &&
		ev.Content == existing.Event.Content &&
		reflect.DeepEqual(ev.Tags, existing.Event.Tags) {
		// nothing changed, skip the relay write entirely
		log.D.F("%s %s unchanged, skipping publish", s.TypeName, dTag)
		notify(Progress{StageComplete, 100})
		return Result{
			Status:    StatusSuccess,
			EventID:   existing.ID,
			DTag:      dTag,
			Unchanged: true,
		}
	}

	notify(Progress{StagePublishing, 70})
	receipt, err := s.Publisher.Publish(ctx, ev, sgn, in.OnRelayStatus)
	if err != nil {
		return failure(StatusPublishFailed, err.Error())
	}
	if s.Cache != nil {
		s.Cache.Save(context.WithoutCancel(ctx), ev)
	}
	notify(Progress{StageComplete, 100})
	return Result{
		Status:          StatusSuccess,
		EventID:         receipt.EventID,
		DTag:            dTag,
		PublishedRelays: receipt.Published,
		FailedRelays:    receipt.Failed,
	}
}

// Delete publishes a deletion marker for a previously published event. The
// marker references the event id, not the dTag, and its publish failures are
// reported exactly like create's.
func (s *Service) Delete(ctx context.Context, eventID, title string) Result {
	snap := s.Sessions.Snapshot()
	sgn, err := s.Resolver.GetSigner(ctx)
	if err != nil {
		return failure(StatusAuthFailed, err.Error())
	}
	if err = signer.VerifyIdentity(ctx, snap.Pubkey, sgn); err != nil {
		return failure(StatusAuthFailed, err.Error())
	}
	ev := content.BuildDeletion(eventID, title)
	receipt, err := s.Publisher.Publish(ctx, ev, sgn, nil)
	if err != nil {
		return failure(StatusPublishFailed, err.Error())
	}
	return Result{
		Status:          StatusSuccess,
		EventID:         receipt.EventID,
		PublishedRelays: receipt.Published,
		FailedRelays:    receipt.Failed,
	}
}

// FetchByID returns the latest version of the document with the given dTag,
// or nil when no relay (and no cached copy) knows it.
func (s *Service) FetchByID(ctx context.Context, dTag string) (*content.Document, error) {
	return s.fetchLatest(ctx, dTag, "")
}

// fetchLatest resolves a dTag to its freshest version. A non-empty author
// restricts the lookup to that pubkey's events, both in the filter and on
// the results, since not every relay honors an Authors filter.
func (s *Service) fetchLatest(ctx context.Context, dTag, author string) (*content.Document, error) {
	f := nostr.Filter{
		Kinds: []int{s.Kind},
		Tags:  nostr.TagMap{"d": []string{dTag}, "t": []string{content.Namespace}},
	}
	if author != "" {
		f.Authors = []string{author}
	}
	var best *nostr.Event
	for _, ev := range content.Dedup(s.query(ctx, f)) {
		if author != "" && ev.PubKey != author {
			continue
		}
		if best == nil || ev.CreatedAt > best.CreatedAt {
			best = ev
		}
	}
	if best == nil {
		return nil, nil
	}
	return content.ParseDocument(best)
}

// FetchByAuthor lists the author's documents of this type, freshest first.
func (s *Service) FetchByAuthor(ctx context.Context, pubkey string) (docs []*content.Document, err error) {
	f := nostr.Filter{
		Kinds:   []int{s.Kind},
		Authors: []string{pubkey},
		Tags:    nostr.TagMap{"t": []string{content.Namespace}},
	}
	for _, ev := range content.Dedup(s.query(ctx, f)) {
		d, e := content.ParseDocument(ev)
		if chk.D(e) {
			continue
		}
		docs = append(docs, d)
	}
	sort.Slice(docs, func(i, j int) bool {
		return docs[i].CreatedAt.After(docs[j].CreatedAt)
	})
	return docs, nil
}

// query asks the relays, mirrors what they returned into the cache, and
// falls back to the cache when no relay answered.
func (s *Service) query(ctx context.Context, f nostr.Filter) (evs []*nostr.Event) {
	evs, err := s.Query.QueryMany(ctx, []nostr.Filter{f})
	if err != nil && s.Cache != nil {
		log.W.F("relays unreachable, reading %s cache: %v", s.TypeName, err)
		cached, e := s.Cache.Query(ctx, f)
		if !chk.E(e) {
			evs = append(evs, cached...)
		}
	}
	if err == nil && s.Cache != nil && len(evs) > 0 {
		s.Cache.Save(ctx, evs...)
	}
	out := evs[:0]
	for _, ev := range evs {
		if content.HasNamespace(ev) && ev.Kind == s.Kind {
			out = append(out, ev)
		}
	}
	return out
}

// RSVP publishes an attendance reply to a meetup. Only meaningful on the
// meetup service.
func (s *Service) RSVP(ctx context.Context, meetup *content.Document, status string) Result {
	snap := s.Sessions.Snapshot()
	sgn, err := s.Resolver.GetSigner(ctx)
	if err != nil {
		return failure(StatusAuthFailed, err.Error())
	}
	if err = signer.VerifyIdentity(ctx, snap.Pubkey, sgn); err != nil {
		return failure(StatusAuthFailed, err.Error())
	}
	ev, err := content.BuildRSVP(meetup, status)
	if err != nil {
		return failure(StatusValidationFailed, err.Error())
	}
	receipt, err := s.Publisher.Publish(ctx, ev, sgn, nil)
	if err != nil {
		return failure(StatusPublishFailed, err.Error())
	}
	return Result{
		Status:          StatusSuccess,
		EventID:         receipt.EventID,
		DTag:            meetup.DTag,
		PublishedRelays: receipt.Published,
		FailedRelays:    receipt.Failed,
	}
}

// FetchRSVPs lists attendance replies for a meetup, one per attendee,
// freshest reply winning.
func (s *Service) FetchRSVPs(ctx context.Context, meetup *content.Document) (replies []content.RSVPReply, err error) {
	f := nostr.Filter{
		Kinds: []int{content.KindRSVP},
		Tags:  nostr.TagMap{"a": []string{meetup.Address()}},
	}
	evs, err := s.Query.QueryMany(ctx, []nostr.Filter{f})
	if err != nil {
		return nil, err
	}
	byAttendee := map[string]*nostr.Event{}
	for _, ev := range evs {
		if cur, ok := byAttendee[ev.PubKey]; !ok || ev.CreatedAt > cur.CreatedAt {
			byAttendee[ev.PubKey] = ev
		}
	}
	for _, ev := range byAttendee {
		if r, ok := content.ParseRSVP(ev); ok {
			replies = append(replies, r)
		}
	}
	sort.Slice(replies, func(i, j int) bool {
		return replies[i].CreatedAt.Before(replies[j].CreatedAt)
	})
	return replies, nil
}

// ErrNotFound is returned by callers that need fetch-miss as an error value.
var ErrNotFound = errors.New("orchestrate: document not found")
