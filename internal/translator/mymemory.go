package translator

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const DefaultMyMemoryURL = "https://api.mymemory.translated.net"

type MyMemoryService struct {
	baseURL string
	email   string
	client  *http.Client
}

func NewMyMemoryService(baseURL, email string) *MyMemoryService {
	if baseURL == "" {
		baseURL = DefaultMyMemoryURL
	}
	return &MyMemoryService{
		baseURL: strings.TrimRight(baseURL, "/"),
		email:   email,
		client:  &http.Client{Timeout: 30 * time.Second},
	}
}

func (s *MyMemoryService) Name() string {
	return "mymemory"
}

// Connect has nothing to negotiate; the public API is stateless.
func (s *MyMemoryService) Connect(ctx context.Context) (Handle, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConnect, err)
	}
	return s, nil
}

func (s *MyMemoryService) Predict(ctx context.Context, req TranslateRequest) (*ServiceResult, error) {
	result := &ServiceResult{ServiceName: s.Name()}
	start := time.Now()
	defer func() { result.Latency = time.Since(start) }()

	sourceLang := req.SourceLang
	if sourceLang == "" || sourceLang == "auto" {
		sourceLang = "fr"
	}

	query := url.Values{}
	query.Set("q", req.Text)
	query.Set("langpair", fmt.Sprintf("%s|%s", sourceLang, req.TargetLang))
	if s.email != "" {
		query.Set("de", s.email)
	}
	apiURL := s.baseURL + "/get?" + query.Encode()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, apiURL, nil)
	if err != nil {
		return result, fmt.Errorf("%w: failed to create request: %v", ErrPredict, err)
	}

	resp, err := s.client.Do(httpReq)
	if err != nil {
		return result, fmt.Errorf("%w: %v", ErrPredict, err)
	}
	defer resp.Body.Close()

	var mymemResp struct {
		ResponseData struct {
			TranslatedText string `json:"translatedText"`
		} `json:"responseData"`
		ResponseStatus  json.Number `json:"responseStatus"`
		ResponseDetails string      `json:"responseDetails"`
	}

	if err := json.NewDecoder(resp.Body).Decode(&mymemResp); err != nil {
		return result, fmt.Errorf("%w: %v", ErrDecode, err)
	}

	if mymemResp.ResponseStatus.String() != "200" {
		return result, fmt.Errorf("%w: API error: %s (%s)", ErrPredict, mymemResp.ResponseDetails, mymemResp.ResponseStatus)
	}

	result.TranslatedText = mymemResp.ResponseData.TranslatedText
	return result, nil
}
