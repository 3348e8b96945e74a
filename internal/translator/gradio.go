package translator

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	DefaultSpace    = "3ltranslate/legaltranslator"
	DefaultEndpoint = "/predict"
	DefaultHubURL   = "https://huggingface.co"
)

// fallbackPredictMessage is reported when the Space signals an error
// without a message.
const fallbackPredictMessage = "Hugging Face translation failed"

// GradioService talks to a Gradio app, usually a Hugging Face Space.
type GradioService struct {
	space    string
	endpoint string
	hubURL   string
	token    string
	client   *http.Client
}

func NewGradioService(space, endpoint, hubURL, token string) *GradioService {
	if space == "" {
		space = DefaultSpace
	}
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	if hubURL == "" {
		hubURL = DefaultHubURL
	}
	return &GradioService{
		space:    space,
		endpoint: strings.Trim(endpoint, "/"),
		hubURL:   strings.TrimRight(hubURL, "/"),
		token:    token,
		client:   &http.Client{Timeout: 120 * time.Second},
	}
}

func (s *GradioService) Name() string {
	return "gradio"
}

// Connect resolves the Space host and checks that its config is served.
func (s *GradioService) Connect(ctx context.Context) (Handle, error) {
	root, err := s.resolveRoot(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConnect, err)
	}

	var appConfig struct {
		APIPrefix string `json:"api_prefix"`
		Version   string `json:"version"`
	}
	if err := s.getJSON(ctx, root+"/config", &appConfig); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConnect, err)
	}

	prefix := ""
	if appConfig.APIPrefix != "" {
		prefix = "/" + strings.Trim(appConfig.APIPrefix, "/")
	}

	return &gradioHandle{
		callURL: fmt.Sprintf("%s%s/call/%s", root, prefix, s.endpoint),
		token:   s.token,
		client:  s.client,
		name:    s.Name(),
	}, nil
}

func (s *GradioService) resolveRoot(ctx context.Context) (string, error) {
	if strings.HasPrefix(s.space, "http://") || strings.HasPrefix(s.space, "https://") {
		return strings.TrimRight(s.space, "/"), nil
	}

	parts := strings.Split(s.space, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", fmt.Errorf("invalid space id %q, expected owner/name", s.space)
	}

	var host struct {
		Subdomain string `json:"subdomain"`
		Host      string `json:"host"`
	}
	hostURL := fmt.Sprintf("%s/api/spaces/%s/%s/host", s.hubURL, url.PathEscape(parts[0]), url.PathEscape(parts[1]))
	if err := s.getJSON(ctx, hostURL, &host); err != nil {
		return "", fmt.Errorf("failed to resolve space %s: %w", s.space, err)
	}
	if host.Host == "" {
		return "", fmt.Errorf("space %s has no host", s.space)
	}
	return strings.TrimRight(host.Host, "/"), nil
}

func (s *GradioService) getJSON(ctx context.Context, target string, out any) error {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	setBearer(httpReq, s.token)

	resp, err := s.client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s returned status %d", target, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

type gradioHandle struct {
	callURL string
	token   string
	client  *http.Client
	name    string
}

// Predict submits the text to the endpoint and waits for the completion
// event of the resulting job.
func (h *gradioHandle) Predict(ctx context.Context, req TranslateRequest) (*ServiceResult, error) {
	result := &ServiceResult{ServiceName: h.name}
	start := time.Now()
	defer func() { result.Latency = time.Since(start) }()

	eventID, err := h.submit(ctx, req.Text)
	if err != nil {
		return result, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, h.callURL+"/"+url.PathEscape(eventID), nil)
	if err != nil {
		return result, fmt.Errorf("%w: failed to create request: %v", ErrPredict, err)
	}
	httpReq.Header.Set("Accept", "text/event-stream")
	setBearer(httpReq, h.token)

	resp, err := h.client.Do(httpReq)
	if err != nil {
		return result, fmt.Errorf("%w: %v", ErrPredict, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return result, fmt.Errorf("%w: API returned status %d", ErrPredict, resp.StatusCode)
	}

	data, err := readCompletion(resp.Body)
	if err != nil {
		return result, err
	}

	text, err := DecodeCompletion(data)
	if err != nil {
		return result, err
	}
	result.TranslatedText = text
	return result, nil
}

func (h *gradioHandle) submit(ctx context.Context, text string) (string, error) {
	payload, err := json.Marshal(map[string]any{"data": []any{text}})
	if err != nil {
		return "", fmt.Errorf("%w: failed to marshal request: %v", ErrPredict, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, h.callURL, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("%w: failed to create request: %v", ErrPredict, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	setBearer(httpReq, h.token)

	resp, err := h.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrPredict, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return "", fmt.Errorf("%w: API returned status %d: %s", ErrPredict, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var job struct {
		EventID string `json:"event_id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&job); err != nil {
		return "", fmt.Errorf("%w: %v", ErrDecode, err)
	}
	if job.EventID == "" {
		return "", fmt.Errorf("%w: missing event_id", ErrDecode)
	}
	return job.EventID, nil
}

// readCompletion scans a server-sent event stream until the job completes
// or fails.
func readCompletion(r io.Reader) (json.RawMessage, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 8<<20)

	var event string
	var data []string

	flush := func() (json.RawMessage, bool, error) {
		defer func() { event, data = "", nil }()
		switch event {
		case "complete":
			return json.RawMessage(strings.Join(data, "\n")), true, nil
		case "error":
			return nil, true, fmt.Errorf("%w: %s", ErrPredict, eventMessage(strings.Join(data, "\n")))
		}
		return nil, false, nil
	}

	for sc.Scan() {
		line := sc.Text()
		switch {
		case line == "":
			if out, done, err := flush(); done {
				return out, err
			}
		case strings.HasPrefix(line, "event:"):
			event = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			data = append(data, strings.TrimSpace(strings.TrimPrefix(line, "data:")))
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPredict, err)
	}
	if out, done, err := flush(); done {
		return out, err
	}
	return nil, fmt.Errorf("%w: event stream ended without a result", ErrPredict)
}

func eventMessage(data string) string {
	var msg string
	if err := json.Unmarshal([]byte(data), &msg); err == nil && msg != "" {
		return msg
	}
	var obj struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal([]byte(data), &obj); err == nil {
		if obj.Message != "" {
			return obj.Message
		}
		if obj.Error != "" {
			return obj.Error
		}
	}
	return fallbackPredictMessage
}

func setBearer(req *http.Request, token string) {
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
}
