package content

import (
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/nbd-wtf/go-nostr"
)

// FieldError is a user-correctable validation failure scoped to one field.
type FieldError struct {
	Field string
	Msg   string
}

func (f FieldError) Error() string { return f.Field + ": " + f.Msg }

// JoinFieldErrors flattens validation failures into the single error string
// the uniform result shape carries.
func JoinFieldErrors(errs []FieldError) string {
	ss := make([]string, len(errs))
	for i, e := range errs {
		ss[i] = e.Error()
	}
	return strings.Join(ss, "; ")
}

// Payload is a typed content-data object that knows how to validate itself
// and how its structured fields map onto event tags. The builder adds the
// identifier, namespace marker, keyword and media tags around it.
type Payload interface {
	TypeName() string
	EventKind() int
	Validate() []FieldError
	// MapTags returns the structured-field tags, title first.
	MapTags() nostr.Tags
	// Body returns the free-text content for the event body.
	Body() string
	// UserKeywords returns the user-visible keyword tags.
	UserKeywords() []string
}

var (
	ListingCategories      = []string{"gear", "crafts", "clothing", "food", "services", "housing", "vehicles", "other"}
	ListingConditions      = []string{"new", "like-new", "used", "worn"}
	WorkCategories         = []string{"hospitality", "farm", "remote", "teaching", "construction", "creative", "other"}
	WorkPayPeriods         = []string{"hour", "day", "week", "month", "project"}
	ContributionCategories = []string{"story", "guide", "recipe", "tradition", "language", "music", "other"}
	RSVPStatuses           = []string{"accepted", "declined", "tentative"}
)

func oneOf(set []string, v string) bool {
	for _, s := range set {
		if s == v {
			return true
		}
	}
	return false
}

func validateCommon(title, description string) (errs []FieldError) {
	if n := utf8.RuneCountInString(title); n < 3 || n > 120 {
		errs = append(errs, FieldError{"title", "must be between 3 and 120 characters"})
	}
	if utf8.RuneCountInString(description) > 5000 {
		errs = append(errs, FieldError{"description", "must be at most 5000 characters"})
	}
	return
}

func validCurrency(c string) bool {
	if len(c) != 3 {
		return false
	}
	for _, r := range c {
		if r < 'A' || r > 'Z' {
			return false
		}
	}
	return true
}

// Listing is a marketplace classified (NIP-99).
type Listing struct {
	Title       string
	Description string
	Category    string
	Condition   string
	Price       float64
	Currency    string
	Location    string
	Contact     string
	Keywords    []string
}

func (l Listing) TypeName() string { return "listing" }
func (l Listing) EventKind() int { return KindListing }
func (l Listing) Body() string { return l.Description }
func (l Listing) UserKeywords() []string { return l.Keywords }

func (l Listing) Validate() (errs []FieldError) {
	errs = validateCommon(l.Title, l.Description)
	if !oneOf(ListingCategories, l.Category) {
		errs = append(errs, FieldError{"category", "unknown category " + l.Category})
	}
	if l.Condition != "" && !oneOf(ListingConditions, l.Condition) {
		errs = append(errs, FieldError{"condition", "unknown condition " + l.Condition})
	}
	if l.Price < 0 {
		errs = append(errs, FieldError{"price", "must not be negative"})
	}
	if !validCurrency(l.Currency) {
		errs = append(errs, FieldError{"currency", "must be a three letter ISO code"})
	}
	return
}

func (l Listing) MapTags() (tt nostr.Tags) {
	tt = nostr.Tags{
		{"title", l.Title},
		{"category", l.Category},
		{"price", strconv.FormatFloat(l.Price, 'f', -1, 64), l.Currency},
	}
	if l.Condition != "" {
		tt = append(tt, nostr.Tag{"condition", l.Condition})
	}
	if l.Location != "" {
		tt = append(tt, nostr.Tag{"location", l.Location})
	}
	if l.Contact != "" {
		tt = append(tt, nostr.Tag{"contact", l.Contact})
	}
	return
}

// WorkOffer is a work opportunity posting.
type WorkOffer struct {
	Title       string
	Description string
	Category    string
	PayRate     float64
	Currency    string
	PayPeriod   string
	Location    string
	Remote      bool
	Contact     string
	Keywords    []string
}

func (w WorkOffer) TypeName() string { return "work" }
func (w WorkOffer) EventKind() int { return KindWork }
func (w WorkOffer) Body() string { return w.Description }
func (w WorkOffer) UserKeywords() []string { return w.Keywords }

func (w WorkOffer) Validate() (errs []FieldError) {
	errs = validateCommon(w.Title, w.Description)
	if !oneOf(WorkCategories, w.Category) {
		errs = append(errs, FieldError{"category", "unknown category " + w.Category})
	}
	if w.PayRate < 0 {
		errs = append(errs, FieldError{"payRate", "must not be negative"})
	}
	if w.PayRate > 0 {
		if !validCurrency(w.Currency) {
			errs = append(errs, FieldError{"currency", "must be a three letter ISO code"})
		}
		if !oneOf(WorkPayPeriods, w.PayPeriod) {
			errs = append(errs, FieldError{"payPeriod", "unknown pay period " + w.PayPeriod})
		}
	}
	return
}

func (w WorkOffer) MapTags() (tt nostr.Tags) {
	tt = nostr.Tags{
		{"title", w.Title},
		{"category", w.Category},
	}
	if w.PayRate > 0 {
		tt = append(tt, nostr.Tag{"payrate",
			strconv.FormatFloat(w.PayRate, 'f', -1, 64), w.Currency, w.PayPeriod})
	}
	if w.Location != "" {
		tt = append(tt, nostr.Tag{"location", w.Location})
	}
	if w.Remote {
		tt = append(tt, nostr.Tag{"remote", "true"})
	}
	if w.Contact != "" {
		tt = append(tt, nostr.Tag{"contact", w.Contact})
	}
	return
}

// Contribution is a cultural or travel long-form piece (NIP-23).
type Contribution struct {
	Title    string
	Markdown string
	Category string
	Location string
	Keywords []string
}

func (c Contribution) TypeName() string { return "contribution" }
func (c Contribution) EventKind() int { return KindContribution }
func (c Contribution) Body() string { return c.Markdown }
func (c Contribution) UserKeywords() []string { return c.Keywords }

func (c Contribution) Validate() (errs []FieldError) {
	errs = validateCommon(c.Title, "")
	if utf8.RuneCountInString(c.Markdown) > 50000 {
		errs = append(errs, FieldError{"body", "must be at most 50000 characters"})
	}
	if c.Markdown == "" {
		errs = append(errs, FieldError{"body", "must not be empty"})
	}
	if !oneOf(ContributionCategories, c.Category) {
		errs = append(errs, FieldError{"category", "unknown category " + c.Category})
	}
	return
}

func (c Contribution) MapTags() (tt nostr.Tags) {
	tt = nostr.Tags{
		{"title", c.Title},
		{"category", c.Category},
	}
	if c.Location != "" {
		tt = append(tt, nostr.Tag{"location", c.Location})
	}
	return
}

// Meetup is a time-based calendar event (NIP-52).
type Meetup struct {
	Title       string
	Description string
	Location    string
	Starts      time.Time
	Ends        time.Time
	Capacity    int
	Keywords    []string
}

func (m Meetup) TypeName() string { return "meetup" }
func (m Meetup) EventKind() int { return KindMeetup }
func (m Meetup) Body() string { return m.Description }
func (m Meetup) UserKeywords() []string { return m.Keywords }

func (m Meetup) Validate() (errs []FieldError) {
	errs = validateCommon(m.Title, m.Description)
	if m.Starts.IsZero() {
		errs = append(errs, FieldError{"starts", "must be set"})
	} else {
		if m.Starts.Before(time.Now()) {
			errs = append(errs, FieldError{"starts", "must be in the future"})
		}
		if !m.Ends.IsZero() && !m.Starts.Before(m.Ends) {
			errs = append(errs, FieldError{"ends", "must be after the start"})
		}
	}
	if m.Capacity < 0 {
		errs = append(errs, FieldError{"capacity", "must not be negative"})
	}
	return
}

func (m Meetup) MapTags() (tt nostr.Tags) {
	tt = nostr.Tags{
		{"title", m.Title},
		{"start", strconv.FormatInt(m.Starts.Unix(), 10)},
	}
	if !m.Ends.IsZero() {
		tt = append(tt, nostr.Tag{"end", strconv.FormatInt(m.Ends.Unix(), 10)})
	}
	if m.Location != "" {
		tt = append(tt, nostr.Tag{"location", m.Location})
	}
	if m.Capacity > 0 {
		tt = append(tt, nostr.Tag{"capacity", strconv.Itoa(m.Capacity)})
	}
	return
}

// BuildRSVP maps an attendance reply onto a NIP-52 RSVP event referencing
// the meetup by address. RSVPs are not replaceable documents of their own
// author beyond the meetup they answer, so the meetup address is the dTag.
func BuildRSVP(meetup *Document, status string) (ev *nostr.Event, err error) {
	if meetup.Kind != KindMeetup {
		return nil, fmt.Errorf("cannot rsvp to a %d event", meetup.Kind)
	}
	if !oneOf(RSVPStatuses, status) {
		return nil, fmt.Errorf("unknown rsvp status %q", status)
	}
	return &nostr.Event{
		Kind:      KindRSVP,
		CreatedAt: nostr.Now(),
		Tags: nostr.Tags{
			{"a", meetup.Address()},
			{"d", meetup.Address()},
			{"status", status},
			{"t", Namespace},
		},
	}, nil
}

// RSVPReply is one attendee's answer to a meetup.
type RSVPReply struct {
	Attendee  string
	Status    string
	CreatedAt time.Time
}

// ParseRSVP reads an attendance reply, rejecting events without a
// recognizable status.
func ParseRSVP(ev *nostr.Event) (r RSVPReply, ok bool) {
	if ev.Kind != KindRSVP {
		return
	}
	st := ev.Tags.GetFirst([]string{"status"})
	if st == nil || !oneOf(RSVPStatuses, st.Value()) {
		return
	}
	return RSVPReply{
		Attendee:  ev.PubKey,
		Status:    st.Value(),
		CreatedAt: ev.CreatedAt.Time(),
	}, true
}
