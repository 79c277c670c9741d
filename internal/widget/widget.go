// Package widget holds the pure rating state machine. It has no knowledge of
// the page document or the network: Transition maps a state and an event to
// the next state plus, for gestures, the request the adapter must send.
package widget

import (
	"errors"
	"fmt"

	"github.com/Clark-Hu/bookrate/internal/domain"
)

// DefaultStars is the number of stars rendered by the site templates.
const DefaultStars = 5

var (
	// ErrStarOutOfRange is returned for a star ordinal outside 1..N.
	ErrStarOutOfRange = errors.New("widget: star index out of range")
	// ErrRemoved is returned for gestures on a widget whose row was removed.
	ErrRemoved = errors.New("widget: widget removed")
	// ErrAffordanceHidden is returned when the delete affordance is clicked
	// while it is not displayed.
	ErrAffordanceHidden = errors.New("widget: delete affordance hidden")
)

// Variant identifies the hosting page.
type Variant int

const (
	// Detail is the book detail page: clearing resets the stars.
	Detail Variant = iota
	// Profile is the profile list: clearing removes the whole entry.
	Profile
)

func (v Variant) String() string {
	switch v {
	case Detail:
		return "detail"
	case Profile:
		return "profile"
	default:
		return fmt.Sprintf("variant(%d)", int(v))
	}
}

// ParseVariant maps a configuration value onto a Variant.
func ParseVariant(raw string) (Variant, error) {
	switch raw {
	case "detail", "":
		return Detail, nil
	case "profile":
		return Profile, nil
	default:
		return Detail, fmt.Errorf("widget: unknown variant %q", raw)
	}
}

// Phase is the observable state of a widget.
type Phase int

const (
	Unrated Phase = iota
	Rated
	Removed
)

func (p Phase) String() string {
	switch p {
	case Unrated:
		return "UNRATED"
	case Rated:
		return "RATED"
	case Removed:
		return "REMOVED"
	default:
		return "UNKNOWN"
	}
}

// State is the full state of one rating widget.
type State struct {
	Book    domain.BookID
	Variant Variant
	// Stars is the number of stars rendered (N).
	Stars int
	// Rating is the displayed rating, optimistic updates included.
	Rating int
	// Acked is the last rating acknowledged by the Rating Service (or the
	// page-embedded initial value).
	Acked int
	// AckedSeq is the sequence number of the request Acked came from, 0 for
	// the initial value.
	AckedSeq          uint64
	AffordanceVisible bool
	Removed           bool
	// Seq is the sequence number of the latest request issued for the widget
	// and Latest its kind.
	Seq    uint64
	Latest RequestKind
	// Settled is set once the latest request has completed.
	Settled bool
}

// New builds the initial state of a widget from its page-embedded rating.
// Out-of-range initial values are clamped; negatives count as unset.
func New(book domain.BookID, variant Variant, stars, initial int) State {
	if stars <= 0 {
		stars = DefaultStars
	}
	if initial < 0 {
		initial = 0
	}
	if initial > stars {
		initial = stars
	}
	return State{
		Book:              book,
		Variant:           variant,
		Stars:             stars,
		Rating:            initial,
		Acked:             initial,
		AffordanceVisible: initial > 0,
		Settled:           true,
	}
}

// Phase reports the observable state.
func (s State) Phase() Phase {
	switch {
	case s.Removed:
		return Removed
	case s.Rating > 0:
		return Rated
	default:
		return Unrated
	}
}

// Filled reports whether the star with the given 1-based ordinal is filled.
func (s State) Filled(ordinal int) bool {
	return !s.Removed && ordinal >= 1 && ordinal <= s.Rating
}

// FilledMask returns the fill state of every star in order.
func (s State) FilledMask() []bool {
	mask := make([]bool, s.Stars)
	for i := range mask {
		mask[i] = s.Filled(i + 1)
	}
	return mask
}

// EventKind enumerates widget events.
type EventKind int

const (
	StarClicked EventKind = iota
	DeleteClicked
	RateSucceeded
	RateFailed
	RemoveSucceeded
	RemoveFailed
)

func (k EventKind) String() string {
	switch k {
	case StarClicked:
		return "star_clicked"
	case DeleteClicked:
		return "delete_clicked"
	case RateSucceeded:
		return "rate_succeeded"
	case RateFailed:
		return "rate_failed"
	case RemoveSucceeded:
		return "remove_succeeded"
	case RemoveFailed:
		return "remove_failed"
	default:
		return "unknown"
	}
}

// Event is a gesture or a request completion.
type Event struct {
	Kind EventKind
	// Index is the clicked star ordinal (StarClicked) or the rating carried
	// by the completed request (RateSucceeded, RateFailed).
	Index int
	// Seq identifies the request a completion belongs to.
	Seq uint64
}

// RequestKind enumerates outbound requests.
type RequestKind int

const (
	RequestRate RequestKind = iota
	RequestRemove
)

func (k RequestKind) String() string {
	if k == RequestRemove {
		return "remove"
	}
	return "rate"
}

// Request describes one outbound call to the Rating Service.
type Request struct {
	Kind   RequestKind
	Book   domain.BookID
	Rating int
	Seq    uint64
}

// Options tunes completion handling.
type Options struct {
	// RollbackOnFailure restores the last acknowledged rating when the
	// latest rate request fails.
	RollbackOnFailure bool
}

// Effect describes what the adapter has to do besides rendering the new state.
type Effect struct {
	// Request is non-nil for gestures.
	Request *Request
	// Stale is set when a completion was superseded by a newer request. A
	// superseded success still updates the acknowledged rating; the displayed
	// rating stays with the newer request.
	Stale bool
}

// Transition applies ev to s. Gesture errors leave the state untouched.
func Transition(s State, ev Event, opts Options) (State, Effect, error) {
	switch ev.Kind {
	case StarClicked:
		if s.Removed {
			return s, Effect{}, ErrRemoved
		}
		if ev.Index < 1 || ev.Index > s.Stars {
			return s, Effect{}, fmt.Errorf("%w: %d not in 1..%d", ErrStarOutOfRange, ev.Index, s.Stars)
		}
		s.Seq++
		s.Latest = RequestRate
		s.Settled = false
		s.Rating = ev.Index
		return s, Effect{Request: &Request{Kind: RequestRate, Book: s.Book, Rating: ev.Index, Seq: s.Seq}}, nil

	case DeleteClicked:
		if s.Removed {
			return s, Effect{}, ErrRemoved
		}
		if s.Variant == Detail && !s.AffordanceVisible {
			return s, Effect{}, ErrAffordanceHidden
		}
		s.Seq++
		s.Latest = RequestRemove
		s.Settled = false
		return s, Effect{Request: &Request{Kind: RequestRemove, Book: s.Book, Seq: s.Seq}}, nil

	case RateSucceeded, RateFailed, RemoveSucceeded, RemoveFailed:
		if s.Removed || ev.Seq > s.Seq {
			return s, Effect{Stale: true}, nil
		}
		if ev.Seq < s.Seq {
			return superseded(s, ev, opts), Effect{Stale: true}, nil
		}
		return complete(s, ev, opts), Effect{}, nil

	default:
		return s, Effect{}, fmt.Errorf("widget: unknown event %d", int(ev.Kind))
	}
}

func complete(s State, ev Event, opts Options) State {
	s.Settled = true
	switch ev.Kind {
	case RateSucceeded:
		s.Acked = ev.Index
		s.AckedSeq = ev.Seq
		if s.Variant == Detail {
			s.AffordanceVisible = true
		}
	case RateFailed:
		if opts.RollbackOnFailure {
			s.rollback()
		}
	case RemoveSucceeded:
		s.Rating = 0
		s.Acked = 0
		s.AckedSeq = ev.Seq
		s.AffordanceVisible = false
		if s.Variant == Profile {
			s.Removed = true
		}
	}
	return s
}

// superseded applies the completion of a request a newer one has overtaken.
// Failures change nothing. A success already happened on the server, so it
// moves Acked unless a newer acknowledgement is known; the displayed rating
// is left to the newer request, or re-synced if that one already failed and
// was rolled back.
func superseded(s State, ev Event, opts Options) State {
	if ev.Seq <= s.AckedSeq {
		return s
	}
	switch ev.Kind {
	case RateSucceeded:
		s.Acked = ev.Index
		s.AckedSeq = ev.Seq
		if s.Variant == Detail {
			s.AffordanceVisible = true
		}
	case RemoveSucceeded:
		s.Acked = 0
		s.AckedSeq = ev.Seq
		if s.Variant == Detail && (s.Settled || s.Latest != RequestRate) {
			s.AffordanceVisible = false
		}
	default:
		return s
	}
	// Settled here means the latest request failed: a success would have
	// advanced AckedSeq past ev.Seq.
	if s.Settled && opts.RollbackOnFailure {
		s.rollback()
	}
	return s
}

// rollback restores the displayed rating to the acknowledged one. A profile
// entry whose acknowledged state is a removal goes away.
func (s *State) rollback() {
	s.Rating = s.Acked
	switch s.Variant {
	case Detail:
		s.AffordanceVisible = s.Acked > 0
	case Profile:
		if s.Acked == 0 && s.AckedSeq > 0 {
			s.Removed = true
		}
	}
}
