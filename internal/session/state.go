// Package session is the translation session controller. It turns raw
// keystrokes into debounced, generation-tagged translation calls, keeps the
// committed text mirrored in the session location, and re-translates right
// away when the language pair changes.
//
// Transitions are computed by the pure Reduce function; Controller owns the
// state on a single event-loop goroutine and carries out the effects Reduce
// asks for.
package session

import (
	"github.com/valpere/legtrans/internal/language"
	"github.com/valpere/legtrans/internal/notify"
	"github.com/valpere/legtrans/internal/validator"
)

const (
	// ConnectFailedMessage is shown once when the client cannot connect.
	ConnectFailedMessage = "Failed to connect to the translation service."
	// PredictFailedMessage is shown when a failed call carries no text.
	PredictFailedMessage = "Translation failed"
)

// Phase is the client lifecycle of a session.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseConnecting
	PhaseReady
	PhaseFailed
	PhaseClosed
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseConnecting:
		return "connecting"
	case PhaseReady:
		return "ready"
	case PhaseFailed:
		return "failed"
	case PhaseClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// State is everything a session knows. It is a value; Reduce returns a new
// one for every event.
type State struct {
	Phase         Phase
	RawText       string
	CommittedText string
	Completion    string
	Pair          language.Pair
	// Generation tags the most recent translation request. Only a response
	// carrying the current generation may set Completion.
	Generation uint64
	// Inflight counts translation calls not yet settled.
	Inflight int
	// Scheduled numbers the latest debounce arming. Any text change or
	// direct translation supersedes it, so a timer that already fired for an
	// older arming cannot translate.
	Scheduled uint64
	// Seeded is true while RawText is still the value read from the
	// location at creation.
	Seeded bool
}

// Policy holds the fixed parameters of Reduce.
type Policy struct {
	Guard validator.Guard
	// TranslateSeed translates a seeded text once the client is ready.
	TranslateSeed bool
}

// Event is an input to Reduce.
type Event interface{ isEvent() }

type (
	ConnectStarted struct{}
	Connected      struct{}
	ConnectFailed  struct{ Err error }
	TextChanged    struct{ Input string }
	PairChanged    struct{ Pair language.Pair }
	Closed         struct{}

	DebounceFired struct {
		Seq  uint64
		Text string
	}
	PredictSucceeded struct {
		Generation uint64
		Text       string
	}
	PredictFailed struct {
		Generation uint64
		Err        error
	}
)

func (ConnectStarted) isEvent()   {}
func (Connected) isEvent()        {}
func (ConnectFailed) isEvent()    {}
func (TextChanged) isEvent()      {}
func (DebounceFired) isEvent()    {}
func (PairChanged) isEvent()      {}
func (Closed) isEvent()           {}
func (PredictSucceeded) isEvent() {}
func (PredictFailed) isEvent()    {}

// Effect is a side effect requested by Reduce.
type Effect interface{ isEffect() }

type (
	// WriteURL mirrors the committed text into the location; Clear removes
	// the key instead.
	WriteURL struct {
		Value string
		Clear bool
	}
	// ScheduleTranslate (re)arms the debounce timer for Text. The fired
	// event must carry Seq back.
	ScheduleTranslate struct {
		Seq  uint64
		Text string
	}
	// CancelTranslate disarms the debounce timer.
	CancelTranslate struct{}
	// Predict issues a translation call tagged with Generation.
	Predict struct {
		Generation uint64
		Text       string
		Pair       language.Pair
	}
	// Notify surfaces Message through the error sink.
	Notify struct{ Message string }
	// DropTranslate records a debounced call dropped before the client was ready.
	DropTranslate struct{ Text string }
	// DiscardStale records a response that lost to a newer request.
	DiscardStale struct{ Generation uint64 }
	// Superseded records a debounce that fired after newer input arrived.
	Superseded struct{ Seq uint64 }
)

func (WriteURL) isEffect()          {}
func (ScheduleTranslate) isEffect() {}
func (CancelTranslate) isEffect()   {}
func (Predict) isEffect()           {}
func (Notify) isEffect()            {}
func (DropTranslate) isEffect()     {}
func (DiscardStale) isEffect()      {}
func (Superseded) isEffect()        {}

// Reduce applies ev to s. It has no side effects; everything outside the
// state is described by the returned effects, in the order they must run.
func Reduce(p Policy, s State, ev Event) (State, []Effect) {
	if s.Phase == PhaseClosed {
		return s, nil
	}

	switch e := ev.(type) {
	case ConnectStarted:
		if s.Phase == PhaseIdle {
			s.Phase = PhaseConnecting
		}
		return s, nil

	case Connected:
		if s.Phase != PhaseIdle && s.Phase != PhaseConnecting {
			return s, nil
		}
		s.Phase = PhaseReady
		if p.TranslateSeed && s.Seeded && p.Guard.Translatable(s.RawText) {
			return issue(s, s.RawText)
		}
		return s, nil

	case ConnectFailed:
		if s.Phase != PhaseIdle && s.Phase != PhaseConnecting {
			return s, nil
		}
		s.Phase = PhaseFailed
		return s, []Effect{Notify{Message: ConnectFailedMessage}}

	case TextChanged:
		if !p.Guard.Accept(e.Input) {
			return s, nil
		}
		s.RawText = e.Input
		s.CommittedText = e.Input
		s.Seeded = false
		s.Scheduled++
		effects := []Effect{WriteURL{Value: e.Input, Clear: validator.Empty(e.Input)}}
		if !p.Guard.Translatable(e.Input) {
			// Invalidate whatever is in flight so it cannot refill the
			// cleared completion.
			s.Completion = ""
			s.Generation++
			return s, append(effects, CancelTranslate{})
		}
		return s, append(effects, ScheduleTranslate{Seq: s.Scheduled, Text: e.Input})

	case DebounceFired:
		if e.Seq != s.Scheduled {
			return s, []Effect{Superseded{Seq: e.Seq}}
		}
		if s.Phase != PhaseReady {
			return s, []Effect{DropTranslate{Text: e.Text}}
		}
		return issue(s, e.Text)

	case PairChanged:
		if e.Pair == s.Pair {
			return s, nil
		}
		s.Pair = e.Pair
		if s.Phase != PhaseReady || !p.Guard.Translatable(s.RawText) {
			return s, nil
		}
		s.Scheduled++
		s, effects := issue(s, s.RawText)
		return s, append([]Effect{CancelTranslate{}}, effects...)

	case PredictSucceeded:
		s = settle(s)
		if e.Generation != s.Generation {
			return s, []Effect{DiscardStale{Generation: e.Generation}}
		}
		s.Completion = e.Text
		return s, nil

	case PredictFailed:
		s = settle(s)
		if e.Generation != s.Generation {
			return s, []Effect{DiscardStale{Generation: e.Generation}}
		}
		return s, []Effect{Notify{Message: notify.Message(e.Err, PredictFailedMessage)}}

	case Closed:
		s.Phase = PhaseClosed
		s.Generation++
		return s, []Effect{CancelTranslate{}}
	}

	return s, nil
}

func issue(s State, text string) (State, []Effect) {
	s.Generation++
	s.Inflight++
	return s, []Effect{Predict{Generation: s.Generation, Text: text, Pair: s.Pair}}
}

func settle(s State) State {
	if s.Inflight > 0 {
		s.Inflight--
	}
	return s
}
