package translator

import (
	"context"
	"fmt"
	"time"

	translate "cloud.google.com/go/translate"
	"golang.org/x/text/language"
	"google.golang.org/api/option"
)

type GoogleService struct {
	credentials string
}

func NewGoogleService(credentials string) *GoogleService {
	return &GoogleService{credentials: credentials}
}

func (s *GoogleService) Name() string {
	return "google"
}

// Connect creates the Cloud Translation client used for the whole session.
func (s *GoogleService) Connect(ctx context.Context) (Handle, error) {
	opts := []option.ClientOption{}
	if s.credentials != "" {
		opts = append(opts, option.WithCredentialsFile(s.credentials))
	}

	client, err := translate.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create client: %v", ErrConnect, err)
	}
	return &googleHandle{client: client, name: s.Name()}, nil
}

type googleHandle struct {
	client *translate.Client
	name   string
}

func (h *googleHandle) Predict(ctx context.Context, req TranslateRequest) (*ServiceResult, error) {
	result := &ServiceResult{ServiceName: h.name}
	start := time.Now()
	defer func() { result.Latency = time.Since(start) }()

	targetLangTag, err := language.Parse(req.TargetLang)
	if err != nil {
		return result, fmt.Errorf("%w: invalid target language: %v", ErrPredict, err)
	}

	var opts *translate.Options
	if req.SourceLang != "" && req.SourceLang != "auto" {
		sourceLangTag, err := language.Parse(req.SourceLang)
		if err != nil {
			return result, fmt.Errorf("%w: invalid source language: %v", ErrPredict, err)
		}
		opts = &translate.Options{Source: sourceLangTag, Format: translate.Text}
	}

	translations, err := h.client.Translate(ctx, []string{req.Text}, targetLangTag, opts)
	if err != nil {
		return result, fmt.Errorf("%w: %v", ErrPredict, err)
	}
	if len(translations) == 0 {
		return result, fmt.Errorf("%w: no translation returned", ErrPredict)
	}

	result.TranslatedText = translations[0].Text
	return result, nil
}

func (h *googleHandle) Close() error {
	return h.client.Close()
}
