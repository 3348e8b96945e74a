package translator

import (
	"context"
	"log/slog"
	"time"

	"github.com/valpere/legtrans/internal"
	"github.com/valpere/legtrans/internal/logging"
)

// Memory is the translation memory consulted before a predict call.
type Memory interface {
	GetCachedTranslation(ctx context.Context, sourceText, sourceLang, targetLang string) (string, bool, error)
	SaveToMemory(ctx context.Context, sourceText, sourceLang, targetLang, finalText, serviceUsed string) error
}

// Journal records every call answered by a memory-wrapped handle. A Memory
// that also implements Journal gets its calls logged.
type Journal interface {
	SaveRequest(ctx context.Context, req internal.TranslationRequest) error
}

// WithMemory wraps conn so that its handles answer from mem when they can
// and record fresh translations in it. Memory failures are logged and
// never fail a prediction.
func WithMemory(conn Connector, mem Memory, logger *slog.Logger) Connector {
	if mem == nil {
		return conn
	}
	return &memoryConnector{next: conn, mem: mem, logger: logging.Component(logger, "memory")}
}

type memoryConnector struct {
	next   Connector
	mem    Memory
	logger *slog.Logger
}

func (c *memoryConnector) Name() string {
	return c.next.Name()
}

func (c *memoryConnector) Connect(ctx context.Context) (Handle, error) {
	h, err := c.next.Connect(ctx)
	if err != nil {
		return nil, err
	}
	journal, _ := c.mem.(Journal)
	return &memoryHandle{next: h, mem: c.mem, journal: journal, logger: c.logger, name: c.next.Name()}, nil
}

type memoryHandle struct {
	next    Handle
	mem     Memory
	journal Journal
	logger  *slog.Logger
	name    string
}

func (h *memoryHandle) Predict(ctx context.Context, req TranslateRequest) (*ServiceResult, error) {
	start := time.Now()
	cached, found, err := h.mem.GetCachedTranslation(ctx, req.Text, req.SourceLang, req.TargetLang)
	if err != nil {
		h.logger.Warn("translation memory lookup failed", "err", err)
	}
	if found {
		res := &ServiceResult{
			ServiceName:    h.name,
			TranslatedText: cached,
			Latency:        time.Since(start),
			Cached:         true,
		}
		h.record(ctx, req, res, nil)
		return res, nil
	}

	res, err := h.next.Predict(ctx, req)
	if res == nil && err == nil {
		res = &ServiceResult{ServiceName: h.name}
	}
	h.record(ctx, req, res, err)
	if err != nil {
		return res, err
	}
	if res.TranslatedText != "" {
		if err := h.mem.SaveToMemory(ctx, req.Text, req.SourceLang, req.TargetLang, res.TranslatedText, res.ServiceName); err != nil {
			h.logger.Warn("translation memory save failed", "err", err)
		}
	}
	return res, nil
}

func (h *memoryHandle) record(ctx context.Context, req TranslateRequest, res *ServiceResult, err error) {
	if h.journal == nil {
		return
	}
	entry := internal.TranslationRequest{
		SourceText:  req.Text,
		SourceLang:  req.SourceLang,
		TargetLang:  req.TargetLang,
		ServiceName: h.name,
		Timestamp:   time.Now(),
	}
	if res != nil {
		entry.TranslatedText = res.TranslatedText
		entry.Cached = res.Cached
		entry.Latency = res.Latency
	}
	if err != nil {
		entry.Error = err.Error()
	}
	if err := h.journal.SaveRequest(context.WithoutCancel(ctx), entry); err != nil {
		h.logger.Warn("request log save failed", "err", err)
	}
}

// Close releases the wrapped handle when it holds resources.
func (h *memoryHandle) Close() error {
	if c, ok := h.next.(interface{ Close() error }); ok {
		return c.Close()
	}
	return nil
}
