package session

import (
	"context"
	"errors"
	"net/url"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/valpere/legtrans/internal/language"
	"github.com/valpere/legtrans/internal/notify"
	"github.com/valpere/legtrans/internal/translator"
	"github.com/valpere/legtrans/internal/urlstate"
	"github.com/valpere/legtrans/internal/validator"
)

const waitFor = 2 * time.Second

type reply struct {
	text string
	err  error
}

type call struct {
	req   translator.TranslateRequest
	reply chan reply
}

func (c call) respond(text string) { c.reply <- reply{text: text} }
func (c call) fail(err error)      { c.reply <- reply{err: err} }

// fakeClient is both the connector and the handle. Every Predict blocks
// until the test answers the call it publishes.
type fakeClient struct {
	connectErr error
	gate       chan struct{}
	calls      chan call
	closed     atomic.Bool
}

func newFakeClient() *fakeClient {
	return &fakeClient{calls: make(chan call, 16)}
}

func (f *fakeClient) Name() string { return "fake" }

func (f *fakeClient) Connect(ctx context.Context) (translator.Handle, error) {
	if f.gate != nil {
		select {
		case <-f.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.connectErr != nil {
		return nil, f.connectErr
	}
	return f, nil
}

func (f *fakeClient) Predict(ctx context.Context, req translator.TranslateRequest) (*translator.ServiceResult, error) {
	c := call{req: req, reply: make(chan reply, 1)}
	f.calls <- c
	select {
	case r := <-c.reply:
		if r.err != nil {
			return nil, r.err
		}
		return &translator.ServiceResult{ServiceName: "fake", TranslatedText: r.text}, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (f *fakeClient) Close() error {
	f.closed.Store(true)
	return nil
}

func (f *fakeClient) next(t *testing.T) call {
	t.Helper()
	select {
	case c := <-f.calls:
		return c
	case <-time.After(waitFor):
		t.Fatal("expected a translation call")
		return call{}
	}
}

func (f *fakeClient) none(t *testing.T, d time.Duration) {
	t.Helper()
	select {
	case c := <-f.calls:
		t.Fatalf("unexpected translation call for %q", c.req.Text)
	case <-time.After(d):
	}
}

type recorder struct {
	mu   sync.Mutex
	msgs []notify.Notification
}

func (r *recorder) Notify(n notify.Notification) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, n)
}

func (r *recorder) all() []notify.Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]notify.Notification(nil), r.msgs...)
}

func newLocation(t *testing.T, query url.Values) *urlstate.Location {
	t.Helper()
	loc, err := urlstate.NewLocation(context.Background(), urlstate.NewMemoryStore(), "test", "/", query)
	require.NoError(t, err)
	return loc
}

func startController(t *testing.T, client *fakeClient, loc URL, opts ...Option) *Controller {
	t.Helper()
	c := New("test", client, loc, opts...)
	t.Cleanup(c.Close)
	return c
}

func waitPhase(t *testing.T, c *Controller, phase Phase) {
	t.Helper()
	require.Eventually(t, func() bool { return c.Snapshot().Phase == phase },
		waitFor, 5*time.Millisecond, "phase %s", phase)
}

func waitCompletion(t *testing.T, c *Controller, want string) {
	t.Helper()
	require.Eventually(t, func() bool { return c.Snapshot().Completion == want },
		waitFor, 5*time.Millisecond, "completion %q", want)
}

func TestController_DebounceCoalescesKeystrokes(t *testing.T) {
	client := newFakeClient()
	loc := newLocation(t, nil)
	c := startController(t, client, loc, WithDebounce(50*time.Millisecond))
	waitPhase(t, c, PhaseReady)

	for _, input := range []string{"h", "he", "hel"} {
		require.NoError(t, c.HandleChangeTextToTranslate(input))
	}

	got := client.next(t)
	assert.Equal(t, "hel", got.req.Text)
	assert.Equal(t, "fr", got.req.SourceLang)
	assert.Equal(t, "ar", got.req.TargetLang)
	client.none(t, 150*time.Millisecond)

	got.respond("مرحبا")
	waitCompletion(t, c, "مرحبا")

	text, ok := loc.Read(language.KeyText)
	assert.True(t, ok)
	assert.Equal(t, "hel", text)
}

func TestController_PairChangeSkipsDebounce(t *testing.T) {
	client := newFakeClient()
	c := startController(t, client, newLocation(t, nil), WithDebounce(time.Hour))
	waitPhase(t, c, PhaseReady)

	require.NoError(t, c.HandleChangeTextToTranslate("bonjour"))
	client.none(t, 50*time.Millisecond)

	require.NoError(t, c.SetLanguagePair(language.Pair{From: "ar", To: "fr"}))

	got := client.next(t)
	assert.Equal(t, "bonjour", got.req.Text)
	assert.Equal(t, "ar", got.req.SourceLang)
	assert.Equal(t, "fr", got.req.TargetLang)

	got.respond("salut")
	waitCompletion(t, c, "salut")
}

func TestController_LateResponseCannotOverwrite(t *testing.T) {
	client := newFakeClient()
	c := startController(t, client, newLocation(t, nil), WithDebounce(10*time.Millisecond))
	waitPhase(t, c, PhaseReady)

	require.NoError(t, c.HandleChangeTextToTranslate("hello"))
	first := client.next(t)
	require.NoError(t, c.HandleChangeTextToTranslate("hello world"))
	second := client.next(t)

	second.respond("B")
	waitCompletion(t, c, "B")

	first.respond("A")
	require.Eventually(t, func() bool { return c.Snapshot().Inflight == 0 }, waitFor, 5*time.Millisecond)
	assert.Equal(t, "B", c.Snapshot().Completion)
}

func TestController_MinimumLengthBoundary(t *testing.T) {
	tests := []struct {
		input string
		calls bool
	}{
		{"ab", true},
		{"a", false},
		{"  a  ", false},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			client := newFakeClient()
			c := startController(t, client, newLocation(t, nil), WithDebounce(10*time.Millisecond))
			waitPhase(t, c, PhaseReady)

			require.NoError(t, c.HandleChangeTextToTranslate(tt.input))
			if !tt.calls {
				client.none(t, 80*time.Millisecond)
				assert.Empty(t, c.Snapshot().Completion)
				return
			}
			got := client.next(t)
			assert.Equal(t, tt.input, got.req.Text)
			client.none(t, 50*time.Millisecond)
			got.respond("ok")
			waitCompletion(t, c, "ok")
		})
	}
}

func TestController_ShortInputClearsAndInvalidates(t *testing.T) {
	client := newFakeClient()
	loc := newLocation(t, nil)
	c := startController(t, client, loc, WithDebounce(10*time.Millisecond))
	waitPhase(t, c, PhaseReady)

	require.NoError(t, c.HandleChangeTextToTranslate("hello"))
	client.next(t).respond("bonjour")
	waitCompletion(t, c, "bonjour")

	require.NoError(t, c.HandleChangeTextToTranslate("hello!"))
	pending := client.next(t)

	require.NoError(t, c.HandleChangeTextToTranslate("h"))
	assert.Empty(t, c.Snapshot().Completion)

	pending.respond("late")
	require.Eventually(t, func() bool { return c.Snapshot().Inflight == 0 }, waitFor, 5*time.Millisecond)
	assert.Empty(t, c.Snapshot().Completion)
	client.none(t, 50*time.Millisecond)

	text, _ := loc.Read(language.KeyText)
	assert.Equal(t, "h", text)

	require.NoError(t, c.HandleChangeTextToTranslate(""))
	_, ok := loc.Read(language.KeyText)
	assert.False(t, ok)
}

func TestController_FiredDebounceLosesToQueuedShortInput(t *testing.T) {
	client := newFakeClient()
	gate := make(chan struct{})
	var hold sync.Once
	busy := func(s State) {
		if s.RawText == "hello" {
			hold.Do(func() { <-gate })
		}
	}
	c := startController(t, client, newLocation(t, nil), WithDebounce(100*time.Millisecond), WithObserver(busy))
	waitPhase(t, c, PhaseReady)

	typed := make(chan error, 2)
	go func() { typed <- c.HandleChangeTextToTranslate("hello") }()
	require.Eventually(t, func() bool { return c.Snapshot().RawText == "hello" }, waitFor, time.Millisecond)

	// The loop is stuck publishing "hello". Queue the short input first,
	// then let the timer fire behind it.
	go func() { typed <- c.HandleChangeTextToTranslate("a") }()
	time.Sleep(200 * time.Millisecond)
	close(gate)

	for range 2 {
		select {
		case err := <-typed:
			require.NoError(t, err)
		case <-time.After(waitFor):
			t.Fatal("keystroke was never applied")
		}
	}

	client.none(t, 150*time.Millisecond)
	s := c.Snapshot()
	assert.Equal(t, "a", s.RawText)
	assert.Empty(t, s.Completion)
	assert.Zero(t, s.Inflight)
}

func TestController_ConnectFailureNotifiesOnce(t *testing.T) {
	client := newFakeClient()
	client.connectErr = errors.New("space is sleeping")
	sink := &recorder{}
	c := startController(t, client, newLocation(t, nil), WithDebounce(10*time.Millisecond), WithSink(sink))
	waitPhase(t, c, PhaseFailed)

	require.NoError(t, c.HandleChangeTextToTranslate("hello"))
	client.none(t, 100*time.Millisecond)

	msgs := sink.all()
	require.Len(t, msgs, 1)
	assert.Equal(t, ConnectFailedMessage, msgs[0].Description)
	assert.Equal(t, notify.DefaultTitle, msgs[0].Title)
	assert.Equal(t, "hello", c.Snapshot().CommittedText)
}

func TestController_TypingBeforeReadyIsDropped(t *testing.T) {
	client := newFakeClient()
	client.gate = make(chan struct{})
	c := startController(t, client, newLocation(t, nil), WithDebounce(10*time.Millisecond))

	require.NoError(t, c.HandleChangeTextToTranslate("hello"))
	client.none(t, 60*time.Millisecond)

	close(client.gate)
	waitPhase(t, c, PhaseReady)
	client.none(t, 60*time.Millisecond)
	assert.Empty(t, c.Snapshot().Completion)
}

func TestController_PredictFailureNotifies(t *testing.T) {
	client := newFakeClient()
	sink := &recorder{}
	c := startController(t, client, newLocation(t, nil), WithDebounce(10*time.Millisecond), WithSink(sink))
	waitPhase(t, c, PhaseReady)

	require.NoError(t, c.HandleChangeTextToTranslate("hello"))
	client.next(t).fail(errors.New("upstream exploded"))

	require.Eventually(t, func() bool { return len(sink.all()) == 1 }, waitFor, 5*time.Millisecond)
	assert.Equal(t, "upstream exploded", sink.all()[0].Description)
}

func TestController_CloseCancelsPendingWork(t *testing.T) {
	client := newFakeClient()
	c := New("test", client, newLocation(t, nil), WithDebounce(50*time.Millisecond))
	waitPhase(t, c, PhaseReady)

	require.NoError(t, c.HandleChangeTextToTranslate("hello"))
	c.Close()

	client.none(t, 150*time.Millisecond)
	assert.Equal(t, PhaseClosed, c.Snapshot().Phase)
	assert.True(t, client.closed.Load())
	assert.ErrorIs(t, c.HandleChangeTextToTranslate("again"), ErrClosed)

	select {
	case <-c.Done():
	default:
		t.Fatal("Done not closed")
	}
	c.Close()
}

func TestController_CloseIgnoresInflightResponse(t *testing.T) {
	client := newFakeClient()
	c := New("test", client, newLocation(t, nil), WithDebounce(10*time.Millisecond))
	waitPhase(t, c, PhaseReady)

	require.NoError(t, c.HandleChangeTextToTranslate("hello"))
	inflight := client.next(t)
	c.Close()

	inflight.respond("too late")
	time.Sleep(30 * time.Millisecond)
	assert.Empty(t, c.Snapshot().Completion)
}

func TestController_SeedFromLocation(t *testing.T) {
	seed := url.Values{language.KeyText: {"bonjour"}}

	t.Run("kept without translating", func(t *testing.T) {
		client := newFakeClient()
		c := startController(t, client, newLocation(t, seed))
		waitPhase(t, c, PhaseReady)

		assert.Equal(t, "bonjour", c.Snapshot().RawText)
		assert.True(t, c.Snapshot().Seeded)
		client.none(t, 50*time.Millisecond)
	})

	t.Run("translated once ready", func(t *testing.T) {
		client := newFakeClient()
		c := startController(t, client, newLocation(t, seed), WithTranslateSeed(true))

		got := client.next(t)
		assert.Equal(t, "bonjour", got.req.Text)
		got.respond("salam")
		waitCompletion(t, c, "salam")
	})
}

func TestController_ObserverSeesChanges(t *testing.T) {
	client := newFakeClient()
	var mu sync.Mutex
	var phases []Phase
	observe := func(s State) {
		mu.Lock()
		defer mu.Unlock()
		phases = append(phases, s.Phase)
	}
	c := startController(t, client, newLocation(t, nil), WithObserver(observe))
	waitPhase(t, c, PhaseReady)

	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, phases)
	assert.Equal(t, PhaseConnecting, phases[0])
	assert.Equal(t, PhaseReady, phases[len(phases)-1])
}

func TestController_OverlongSeedLeavesLocation(t *testing.T) {
	loc := newLocation(t, url.Values{language.KeyText: {"far too long for this guard"}, language.KeyFrom: {"fr"}})
	c := startController(t, newFakeClient(), loc, WithGuard(validator.New(2, 10)), WithTranslateSeed(true))

	snap := c.Snapshot()
	assert.Empty(t, snap.CommittedText)
	assert.False(t, snap.Seeded)
	_, ok := loc.Read(language.KeyText)
	assert.False(t, ok)
	from, _ := loc.Read(language.KeyFrom)
	assert.Equal(t, "fr", from)
}
