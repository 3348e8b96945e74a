package metrics

import (
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetrics_Counters(t *testing.T) {
	m := New()

	m.Connect("gradio", nil)
	m.Connect("gradio", errors.New("down"))
	m.Predict(OutcomeSuccess, 10*time.Millisecond)
	m.Predict(OutcomeStale, 0)
	m.Debounce(true)
	m.Debounce(false)
	m.SessionOpened()
	m.SessionOpened()
	m.SessionClosed()

	if got := testutil.ToFloat64(m.ConnectTotal.WithLabelValues("gradio", OutcomeError)); got != 1 {
		t.Errorf("expected 1 failed connect, got %v", got)
	}
	if got := testutil.ToFloat64(m.PredictTotal.WithLabelValues(OutcomeStale)); got != 1 {
		t.Errorf("expected 1 stale predict, got %v", got)
	}
	if got := testutil.ToFloat64(m.DebounceDropped); got != 1 {
		t.Errorf("expected 1 dropped debounce, got %v", got)
	}
	if got := testutil.ToFloat64(m.SessionsActive); got != 1 {
		t.Errorf("expected 1 active session, got %v", got)
	}
}

func TestMetrics_NilReceiver(t *testing.T) {
	var m *Metrics
	m.Connect("gradio", nil)
	m.Predict(OutcomeError, time.Second)
	m.Debounce(true)
	m.SessionOpened()
	m.SessionClosed()
	m.Image(OutcomeSuccess, time.Second)
}

func TestMetrics_Handler(t *testing.T) {
	m := New()
	m.Image(OutcomeTimeout, 30*time.Second)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	if !strings.Contains(rec.Body.String(), `legtrans_image_requests_total{outcome="timeout"} 1`) {
		t.Errorf("expected image counter in exposition, got:\n%s", rec.Body.String())
	}
}
