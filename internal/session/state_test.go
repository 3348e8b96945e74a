package session

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/valpere/legtrans/internal/language"
	"github.com/valpere/legtrans/internal/validator"
)

func testPolicy() Policy {
	return Policy{Guard: validator.New(0, 0)}
}

func ready() State {
	return State{Phase: PhaseReady, Pair: language.DefaultPair()}
}

func TestReduce_TextChangedSchedules(t *testing.T) {
	s, effects := Reduce(testPolicy(), ready(), TextChanged{Input: "bonjour "})

	assert.Equal(t, "bonjour ", s.RawText)
	assert.Equal(t, "bonjour ", s.CommittedText)
	assert.Equal(t, []Effect{
		WriteURL{Value: "bonjour "},
		ScheduleTranslate{Seq: 1, Text: "bonjour "},
	}, effects)
}

func TestReduce_OverlongInputIgnored(t *testing.T) {
	start := ready()
	start.RawText = "abc"
	s, effects := Reduce(testPolicy(), start, TextChanged{Input: strings.Repeat("a", validator.DefaultMaxLength+1)})

	assert.Equal(t, start, s)
	assert.Empty(t, effects)
}

func TestReduce_MaxLengthAccepted(t *testing.T) {
	input := strings.Repeat("é", validator.DefaultMaxLength)
	s, effects := Reduce(testPolicy(), ready(), TextChanged{Input: input})

	assert.Equal(t, input, s.RawText)
	assert.Len(t, effects, 2)
}

func TestReduce_ShortInputClearsCompletion(t *testing.T) {
	start := ready()
	start.RawText = "hello"
	start.Completion = "bonjour"
	start.Generation = 4

	s, effects := Reduce(testPolicy(), start, TextChanged{Input: "h"})

	assert.Empty(t, s.Completion)
	assert.Equal(t, uint64(5), s.Generation)
	assert.Equal(t, []Effect{WriteURL{Value: "h"}, CancelTranslate{}}, effects)
}

func TestReduce_EmptyInputDeletesURLKey(t *testing.T) {
	start := ready()
	start.RawText = "a"

	_, effects := Reduce(testPolicy(), start, TextChanged{Input: "  "})

	require.NotEmpty(t, effects)
	assert.Equal(t, WriteURL{Value: "  ", Clear: true}, effects[0])
}

func TestReduce_DebounceBeforeReadyDropped(t *testing.T) {
	for _, phase := range []Phase{PhaseIdle, PhaseConnecting, PhaseFailed} {
		s := State{Phase: phase}
		next, effects := Reduce(testPolicy(), s, DebounceFired{Text: "hello"})
		assert.Equal(t, s, next, phase.String())
		assert.Equal(t, []Effect{DropTranslate{Text: "hello"}}, effects, phase.String())
	}
}

func TestReduce_DebounceIssuesTaggedPredict(t *testing.T) {
	start := ready()
	start.Generation = 2

	s, effects := Reduce(testPolicy(), start, DebounceFired{Text: "hello"})

	assert.Equal(t, uint64(3), s.Generation)
	assert.Equal(t, 1, s.Inflight)
	assert.Equal(t, []Effect{Predict{Generation: 3, Text: "hello", Pair: language.DefaultPair()}}, effects)
}

func TestReduce_SupersededDebounceDropped(t *testing.T) {
	t.Run("newer text", func(t *testing.T) {
		s, _ := Reduce(testPolicy(), ready(), TextChanged{Input: "he"})
		s, effects := Reduce(testPolicy(), s, TextChanged{Input: "hel"})
		require.Equal(t, ScheduleTranslate{Seq: 2, Text: "hel"}, effects[len(effects)-1])

		s, effects = Reduce(testPolicy(), s, DebounceFired{Seq: 1, Text: "he"})
		assert.Equal(t, []Effect{Superseded{Seq: 1}}, effects)
		assert.Zero(t, s.Inflight)

		s, effects = Reduce(testPolicy(), s, DebounceFired{Seq: 2, Text: "hel"})
		assert.Equal(t, []Effect{Predict{Generation: 1, Text: "hel", Pair: language.DefaultPair()}}, effects)
		assert.Equal(t, 1, s.Inflight)
	})

	t.Run("short text", func(t *testing.T) {
		s, _ := Reduce(testPolicy(), ready(), TextChanged{Input: "hello"})
		s, _ = Reduce(testPolicy(), s, TextChanged{Input: "a"})

		s, effects := Reduce(testPolicy(), s, DebounceFired{Seq: 1, Text: "hello"})
		assert.Equal(t, []Effect{Superseded{Seq: 1}}, effects)
		assert.Zero(t, s.Inflight)
		assert.Empty(t, s.Completion)
	})

	t.Run("pair change", func(t *testing.T) {
		s, _ := Reduce(testPolicy(), ready(), TextChanged{Input: "hello"})
		s, _ = Reduce(testPolicy(), s, PairChanged{Pair: language.Pair{From: "ar", To: "fr"}})
		require.Equal(t, 1, s.Inflight)

		s, effects := Reduce(testPolicy(), s, DebounceFired{Seq: 1, Text: "hello"})
		assert.Equal(t, []Effect{Superseded{Seq: 1}}, effects)
		assert.Equal(t, 1, s.Inflight)
	})
}

func TestReduce_StaleResponseDiscarded(t *testing.T) {
	s := ready()
	s, _ = Reduce(testPolicy(), s, DebounceFired{Text: "hello"})
	s, _ = Reduce(testPolicy(), s, DebounceFired{Text: "hello world"})
	require.Equal(t, 2, s.Inflight)

	s, effects := Reduce(testPolicy(), s, PredictSucceeded{Generation: 2, Text: "second"})
	assert.Empty(t, effects)
	assert.Equal(t, "second", s.Completion)

	s, effects = Reduce(testPolicy(), s, PredictSucceeded{Generation: 1, Text: "first"})
	assert.Equal(t, []Effect{DiscardStale{Generation: 1}}, effects)
	assert.Equal(t, "second", s.Completion)
	assert.Zero(t, s.Inflight)
}

func TestReduce_StaleFailureIsSilent(t *testing.T) {
	s := ready()
	s.Generation = 3
	s.Inflight = 1

	s, effects := Reduce(testPolicy(), s, PredictFailed{Generation: 2, Err: errors.New("boom")})

	assert.Equal(t, []Effect{DiscardStale{Generation: 2}}, effects)
	assert.Zero(t, s.Inflight)
}

func TestReduce_CurrentFailureNotifies(t *testing.T) {
	s := ready()
	s.Generation = 3
	s.Inflight = 1
	s.Completion = "kept"

	s, effects := Reduce(testPolicy(), s, PredictFailed{Generation: 3, Err: errors.New(`{"message":"quota exceeded"}`)})

	assert.Equal(t, []Effect{Notify{Message: "quota exceeded"}}, effects)
	assert.Equal(t, "kept", s.Completion)
}

func TestReduce_PairChangeTranslatesImmediately(t *testing.T) {
	start := ready()
	start.RawText = "bonjour"
	next := language.Pair{From: "ar", To: "fr"}

	s, effects := Reduce(testPolicy(), start, PairChanged{Pair: next})

	assert.Equal(t, next, s.Pair)
	assert.Equal(t, []Effect{
		CancelTranslate{},
		Predict{Generation: 1, Text: "bonjour", Pair: next},
	}, effects)
}

func TestReduce_PairChangeWithoutWork(t *testing.T) {
	next := language.Pair{From: "ar", To: "fr"}

	t.Run("same pair", func(t *testing.T) {
		start := ready()
		start.RawText = "bonjour"
		s, effects := Reduce(testPolicy(), start, PairChanged{Pair: start.Pair})
		assert.Equal(t, start, s)
		assert.Empty(t, effects)
	})

	t.Run("short text", func(t *testing.T) {
		start := ready()
		start.RawText = "b"
		s, effects := Reduce(testPolicy(), start, PairChanged{Pair: next})
		assert.Equal(t, next, s.Pair)
		assert.Empty(t, effects)
	})

	t.Run("not ready", func(t *testing.T) {
		start := State{Phase: PhaseConnecting, RawText: "bonjour"}
		s, effects := Reduce(testPolicy(), start, PairChanged{Pair: next})
		assert.Equal(t, next, s.Pair)
		assert.Empty(t, effects)
	})
}

func TestReduce_ConnectLifecycle(t *testing.T) {
	s, _ := Reduce(testPolicy(), State{}, ConnectStarted{})
	require.Equal(t, PhaseConnecting, s.Phase)

	failed, effects := Reduce(testPolicy(), s, ConnectFailed{Err: errors.New("down")})
	assert.Equal(t, PhaseFailed, failed.Phase)
	assert.Equal(t, []Effect{Notify{Message: ConnectFailedMessage}}, effects)

	_, effects = Reduce(testPolicy(), failed, ConnectFailed{Err: errors.New("down")})
	assert.Empty(t, effects)

	ok, effects := Reduce(testPolicy(), s, Connected{})
	assert.Equal(t, PhaseReady, ok.Phase)
	assert.Empty(t, effects)
}

func TestReduce_SeedTranslatedOnConnect(t *testing.T) {
	seeded := State{Phase: PhaseConnecting, RawText: "bonjour", CommittedText: "bonjour", Seeded: true, Pair: language.DefaultPair()}

	_, effects := Reduce(testPolicy(), seeded, Connected{})
	assert.Empty(t, effects)

	policy := testPolicy()
	policy.TranslateSeed = true
	s, effects := Reduce(policy, seeded, Connected{})
	assert.Equal(t, []Effect{Predict{Generation: 1, Text: "bonjour", Pair: language.DefaultPair()}}, effects)
	assert.Equal(t, 1, s.Inflight)
}

func TestReduce_ClosedIgnoresEverything(t *testing.T) {
	s := ready()
	s.Inflight = 1
	s.Generation = 1

	s, effects := Reduce(testPolicy(), s, Closed{})
	require.Equal(t, PhaseClosed, s.Phase)
	assert.Equal(t, []Effect{CancelTranslate{}}, effects)

	for _, ev := range []Event{
		TextChanged{Input: "hello"},
		DebounceFired{Text: "hello"},
		PredictSucceeded{Generation: 1, Text: "late"},
		PredictFailed{Generation: 2, Err: errors.New("late")},
		PairChanged{Pair: language.Pair{From: "ar", To: "fr"}},
		Connected{},
	} {
		next, effects := Reduce(testPolicy(), s, ev)
		assert.Equal(t, s, next)
		assert.Empty(t, effects)
	}
}
