// Package ocr forwards images to the text-extraction backend.
package ocr

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/valpere/legtrans/internal/logging"
	"github.com/valpere/legtrans/internal/metrics"
)

const (
	DefaultURL     = "https://backend-ocr-7sm3.onrender.com/"
	DefaultTimeout = 30 * time.Second

	fieldName   = "input"
	fileName    = "upload.jpg"
	contentType = "image/jpeg"
)

// User-facing messages.
const (
	MissingImageMessage  = "Missing image"
	InvalidImageMessage  = "Image is not valid base64 data"
	TimeoutMessage       = "The analysis server did not respond in time"
	InternalMessage      = "Internal server error"
	ExtractFailedMessage = "Failed to extract text"
)

var (
	ErrMissingImage = errors.New("missing image")
	ErrInvalidImage = errors.New("invalid image data")
	ErrUpstream     = errors.New("analysis server error")
	ErrTimeout      = errors.New("analysis server timed out")
)

// UpstreamError carries the detail reported by the backend.
type UpstreamError struct {
	Detail string
}

func (e *UpstreamError) Error() string {
	return "The analysis server returned an error: " + e.Detail
}

func (e *UpstreamError) Unwrap() error { return ErrUpstream }

var dataURLPrefix = regexp.MustCompile(`^data:image/\w+;base64,`)

// Result is the backend's JSON reply, passed through to callers.
type Result struct {
	Success bool   `json:"success"`
	Text    string `json:"text"`
	Message string `json:"message,omitempty"`
}

type Client struct {
	url     string
	timeout time.Duration
	client  *http.Client
	metrics *metrics.Metrics
	logger  *slog.Logger
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.client = hc }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// NewClient returns a client for the backend at url. A non-positive
// timeout means DefaultTimeout.
func NewClient(url string, timeout time.Duration, opts ...Option) *Client {
	if url == "" {
		url = DefaultURL
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	c := &Client{
		url:     url,
		timeout: timeout,
		client:  &http.Client{},
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = logging.NewNop()
	}
	c.logger = logging.Component(c.logger, "ocr")
	return c
}

// Extract sends image, a data URL or bare base64 string, to the backend and
// returns the text it found.
func (c *Client) Extract(ctx context.Context, image string) (string, error) {
	start := time.Now()
	text, err := c.extract(ctx, image)

	outcome := metrics.OutcomeSuccess
	switch {
	case errors.Is(err, ErrTimeout):
		outcome = metrics.OutcomeTimeout
	case err != nil:
		outcome = metrics.OutcomeError
	}
	if !errors.Is(err, ErrMissingImage) && !errors.Is(err, ErrInvalidImage) {
		c.metrics.Image(outcome, time.Since(start))
	}
	if err != nil {
		c.logger.Warn("text extraction failed", "error", err)
	}
	return text, err
}

func (c *Client) extract(ctx context.Context, image string) (string, error) {
	payload, err := Decode(image)
	if err != nil {
		return "", err
	}

	body, formType, err := encodeForm(payload)
	if err != nil {
		return "", err
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, body)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", formType)

	resp, err := c.client.Do(httpReq)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return "", fmt.Errorf("%w after %s", ErrTimeout, c.timeout)
		}
		return "", fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return "", fmt.Errorf("%w after %s", ErrTimeout, c.timeout)
		}
		return "", fmt.Errorf("%w: failed to read response: %v", ErrUpstream, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var failure struct {
			Error string `json:"error"`
		}
		_ = json.Unmarshal(raw, &failure)
		detail := failure.Error
		if detail == "" {
			detail = http.StatusText(resp.StatusCode)
		}
		return "", &UpstreamError{Detail: detail}
	}

	var result Result
	if err := json.Unmarshal(raw, &result); err != nil {
		return "", fmt.Errorf("%w: failed to decode response: %v", ErrUpstream, err)
	}
	if !result.Success {
		detail := result.Message
		if detail == "" {
			detail = ExtractFailedMessage
		}
		return "", &UpstreamError{Detail: detail}
	}
	return result.Text, nil
}

// Decode strips an optional data URL prefix and decodes the base64 payload.
func Decode(image string) ([]byte, error) {
	image = strings.TrimSpace(image)
	if image == "" {
		return nil, ErrMissingImage
	}
	encoded := dataURLPrefix.ReplaceAllString(image, "")
	payload, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		payload, err = base64.RawStdEncoding.DecodeString(strings.TrimRight(encoded, "="))
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidImage, err)
	}
	return payload, nil
}

func encodeForm(payload []byte) (io.Reader, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, fieldName, fileName))
	header.Set("Content-Type", contentType)
	part, err := w.CreatePart(header)
	if err != nil {
		return nil, "", fmt.Errorf("failed to create form part: %w", err)
	}
	if _, err := part.Write(payload); err != nil {
		return nil, "", fmt.Errorf("failed to write form part: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("failed to close form: %w", err)
	}
	return &buf, w.FormDataContentType(), nil
}

// EncodeFile reads an image file and returns it as a data URL.
func EncodeFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read image: %w", err)
	}
	if len(data) == 0 {
		return "", ErrMissingImage
	}
	mediaType := http.DetectContentType(data)
	if !strings.HasPrefix(mediaType, "image/") {
		mediaType = contentType
	}
	return "data:" + mediaType + ";base64," + base64.StdEncoding.EncodeToString(data), nil
}

// Message renders err for the user.
func Message(err error) string {
	var upstream *UpstreamError
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrMissingImage):
		return MissingImageMessage
	case errors.Is(err, ErrInvalidImage):
		return InvalidImageMessage
	case errors.Is(err, ErrTimeout):
		return TimeoutMessage
	case errors.As(err, &upstream):
		return upstream.Error()
	case errors.Is(err, ErrUpstream):
		return ExtractFailedMessage
	default:
		return InternalMessage
	}
}

// Status maps err to the HTTP status the proxy answers with.
func Status(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrMissingImage), errors.Is(err, ErrInvalidImage):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
