package session

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/valpere/legtrans/internal/debounce"
	"github.com/valpere/legtrans/internal/language"
	"github.com/valpere/legtrans/internal/logging"
	"github.com/valpere/legtrans/internal/metrics"
	"github.com/valpere/legtrans/internal/notify"
	"github.com/valpere/legtrans/internal/translator"
	"github.com/valpere/legtrans/internal/validator"
)

const (
	DefaultDebounce       = 300 * time.Millisecond
	DefaultConnectTimeout = 30 * time.Second
	DefaultPredictTimeout = 60 * time.Second

	debounceKey = "translate"
)

var (
	ErrClosed   = errors.New("session closed")
	ErrNotFound = errors.New("session not found")
)

// URL is the slice of the session location the controller touches.
type URL interface {
	Read(key string) (string, bool)
	Write(key, value string) error
	Delete(key string) error
}

// Observer receives every state change. It runs on the event loop and must
// not block.
type Observer func(State)

type Option func(*Controller)

func WithLogger(logger *slog.Logger) Option {
	return func(c *Controller) { c.logger = logger }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Controller) { c.metrics = m }
}

// WithSink sets where user-facing failures go. The default logs them.
func WithSink(sink notify.Sink) Option {
	return func(c *Controller) { c.sink = sink }
}

func WithGuard(g validator.Guard) Option {
	return func(c *Controller) { c.policy.Guard = g }
}

func WithDebounce(d time.Duration) Option {
	return func(c *Controller) { c.quiet = d }
}

// WithConnectTimeout bounds the connect call. Zero disables the bound.
func WithConnectTimeout(d time.Duration) Option {
	return func(c *Controller) { c.connectTimeout = d }
}

// WithPredictTimeout bounds each translation call. Zero disables the bound.
func WithPredictTimeout(d time.Duration) Option {
	return func(c *Controller) { c.predictTimeout = d }
}

// WithPair sets the initial language pair.
func WithPair(p language.Pair) Option {
	return func(c *Controller) { c.pair = p }
}

// WithTranslateSeed translates a text read from the location as soon as the
// client is ready.
func WithTranslateSeed(enabled bool) Option {
	return func(c *Controller) { c.policy.TranslateSeed = enabled }
}

func WithObserver(o Observer) Option {
	return func(c *Controller) { c.observers = append(c.observers, o) }
}

type message struct {
	ev     Event
	handle translator.Handle
	ack    chan struct{}
}

// Controller drives one session. All state lives on a single goroutine;
// the exported methods are safe for concurrent use.
type Controller struct {
	id        string
	connector translator.Connector
	url       URL
	sink      notify.Sink
	debouncer *debounce.Debouncer
	logger    *slog.Logger
	metrics   *metrics.Metrics
	observers []Observer

	policy         Policy
	pair           language.Pair
	quiet          time.Duration
	connectTimeout time.Duration
	predictTimeout time.Duration

	// Owned by the loop goroutine.
	state  State
	handle translator.Handle

	snapshot atomic.Pointer[State]
	inbox    chan message
	done     chan struct{}
	stopped  chan struct{}
	cancel   context.CancelFunc
	once     sync.Once
}

// New starts a controller and begins connecting in the background. The
// committed text is seeded from the "text" key of url; a seed over the
// maximum length is removed from url instead.
func New(id string, connector translator.Connector, url URL, opts ...Option) *Controller {
	c := &Controller{
		id:             id,
		connector:      connector,
		url:            url,
		debouncer:      debounce.New(),
		policy:         Policy{Guard: validator.New(0, 0)},
		pair:           language.DefaultPair(),
		quiet:          DefaultDebounce,
		connectTimeout: DefaultConnectTimeout,
		predictTimeout: DefaultPredictTimeout,
		inbox:          make(chan message),
		done:           make(chan struct{}),
		stopped:        make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = logging.NewNop()
	}
	c.logger = logging.Component(c.logger, "session").With("session", id)
	if c.sink == nil {
		c.sink = notify.Log(c.logger)
	}

	c.state = State{Phase: PhaseIdle, Pair: c.pair}
	if seed, ok := url.Read(language.KeyText); ok {
		if c.policy.Guard.Accept(seed) {
			c.state.RawText = seed
			c.state.CommittedText = seed
			c.state.Seeded = !validator.Empty(seed)
		} else {
			// An over-long seed is never committed, so it leaves the location too.
			c.logger.Warn("seed text too long, dropped", "length", validator.Length(seed), "max", c.policy.Guard.MaxLength)
			if err := url.Delete(language.KeyText); err != nil {
				c.logger.Warn("location update failed", "error", err)
			}
		}
	}
	c.state, _ = Reduce(c.policy, c.state, ConnectStarted{})
	c.publish()

	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	go c.run()
	go c.connect(ctx)
	return c
}

func (c *Controller) ID() string { return c.id }

// Snapshot returns the latest published state.
func (c *Controller) Snapshot() State {
	return *c.snapshot.Load()
}

// Done is closed once the controller has been torn down.
func (c *Controller) Done() <-chan struct{} { return c.stopped }

// HandleChangeTextToTranslate records a keystroke. Over-long input is
// ignored, short input clears the completion, anything else is mirrored to
// the location and translated once typing pauses.
func (c *Controller) HandleChangeTextToTranslate(input string) error {
	return c.dispatch(TextChanged{Input: input})
}

// SetLanguagePair switches the pair and re-translates the current text
// without waiting for the debounce.
func (c *Controller) SetLanguagePair(p language.Pair) error {
	return c.dispatch(PairChanged{Pair: p})
}

// Close cancels any pending translation, ignores every response still in
// flight and releases the client. It is safe to call more than once.
func (c *Controller) Close() {
	c.once.Do(func() {
		_ = c.dispatch(Closed{})
		close(c.done)
		<-c.stopped
	})
}

// dispatch hands ev to the loop and waits until it has been applied.
func (c *Controller) dispatch(ev Event) error {
	ack := make(chan struct{})
	if !c.post(message{ev: ev, ack: ack}) {
		return ErrClosed
	}
	select {
	case <-ack:
		return nil
	case <-c.done:
		return ErrClosed
	}
}

// post hands m to the loop without waiting for it to be applied.
func (c *Controller) post(m message) bool {
	select {
	case c.inbox <- m:
		return true
	case <-c.done:
		return false
	}
}

func (c *Controller) run() {
	defer c.teardown()
	for {
		select {
		case <-c.done:
			return
		case m := <-c.inbox:
			c.step(m)
			if m.ack != nil {
				close(m.ack)
			}
		}
	}
}

func (c *Controller) step(m message) {
	prev := c.state
	next, effects := Reduce(c.policy, c.state, m.ev)
	c.state = next

	if m.handle != nil {
		if next.Phase == PhaseReady && c.handle == nil {
			c.handle = m.handle
		} else {
			closeHandle(m.handle, c.logger)
		}
	}

	for _, eff := range effects {
		c.apply(eff)
	}

	if next != prev {
		c.publish()
	}
}

func (c *Controller) apply(eff Effect) {
	switch e := eff.(type) {
	case WriteURL:
		var err error
		if e.Clear {
			err = c.url.Delete(language.KeyText)
		} else {
			err = c.url.Write(language.KeyText, e.Value)
		}
		if err != nil {
			c.logger.Warn("location update failed", "error", err)
		}

	case ScheduleTranslate:
		fired := DebounceFired{Seq: e.Seq, Text: e.Text}
		c.debouncer.Schedule(debounceKey, c.quiet, func() {
			c.metrics.Debounce(true)
			c.post(message{ev: fired})
		})

	case CancelTranslate:
		c.debouncer.Cancel(debounceKey)

	case Predict:
		if c.handle == nil {
			return
		}
		c.logger.Debug("translating", "generation", e.Generation, "pair", e.Pair.String(), "length", validator.Length(e.Text))
		go c.predict(c.handle, e)

	case Notify:
		c.sink.Notify(notify.Error(e.Message))

	case DropTranslate:
		c.metrics.Debounce(false)
		c.logger.Debug("translation dropped, client not ready", "phase", c.state.Phase.String())

	case Superseded:
		c.logger.Debug("debounced translation superseded", "seq", e.Seq, "current", c.state.Scheduled)

	case DiscardStale:
		c.metrics.Predict(metrics.OutcomeStale, 0)
		c.logger.Debug("stale response discarded", "generation", e.Generation, "current", c.state.Generation)
	}
}

func (c *Controller) connect(ctx context.Context) {
	if c.connectTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.connectTimeout)
		defer cancel()
	}

	h, err := c.connector.Connect(ctx)
	c.metrics.Connect(c.connector.Name(), err)
	if err != nil {
		c.logger.Error("connect failed", "backend", c.connector.Name(), "error", err)
		c.post(message{ev: ConnectFailed{Err: err}})
		return
	}
	c.logger.Info("client connected", "backend", c.connector.Name())
	if !c.post(message{ev: Connected{}, handle: h}) {
		closeHandle(h, c.logger)
	}
}

// predict runs one translation call. It is not cancelled by Close; its
// response is discarded by the generation check instead.
func (c *Controller) predict(h translator.Handle, p Predict) {
	ctx := context.Background()
	if c.predictTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.predictTimeout)
		defer cancel()
	}

	start := time.Now()
	res, err := h.Predict(ctx, translator.TranslateRequest{
		Text:       p.Text,
		SourceLang: p.Pair.From,
		TargetLang: p.Pair.To,
	})
	latency := time.Since(start)

	if err != nil {
		outcome := metrics.OutcomeError
		if errors.Is(err, context.DeadlineExceeded) {
			outcome = metrics.OutcomeTimeout
		}
		c.metrics.Predict(outcome, latency)
		c.logger.Warn("translation failed", "generation", p.Generation, "error", err)
		c.post(message{ev: PredictFailed{Generation: p.Generation, Err: err}})
		return
	}

	c.metrics.Predict(metrics.OutcomeSuccess, latency)
	var text string
	if res != nil {
		text = res.TranslatedText
	}
	c.post(message{ev: PredictSucceeded{Generation: p.Generation, Text: text}})
}

func (c *Controller) publish() {
	s := c.state
	c.snapshot.Store(&s)
	for _, o := range c.observers {
		o(s)
	}
}

func (c *Controller) teardown() {
	c.debouncer.Stop()
	c.cancel()
	if c.handle != nil {
		closeHandle(c.handle, c.logger)
		c.handle = nil
	}
	close(c.stopped)
}

func closeHandle(h translator.Handle, logger *slog.Logger) {
	if closer, ok := h.(io.Closer); ok {
		if err := closer.Close(); err != nil {
			logger.Warn("closing client failed", "error", err)
		}
	}
}
