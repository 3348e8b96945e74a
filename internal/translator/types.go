package translator

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrConnect marks a failed one-time connect.
	ErrConnect = errors.New("translation client connect failed")
	// ErrPredict marks a failed translation call.
	ErrPredict = errors.New("translation request failed")
	// ErrDecode marks a response whose payload could not be read.
	ErrDecode = errors.New("malformed translation response")
)

type ServiceConfig struct {
	Backend        string        `mapstructure:"backend" json:"backend"`
	Space          string        `mapstructure:"space" json:"space"`
	Endpoint       string        `mapstructure:"endpoint" json:"endpoint"`
	HubURL         string        `mapstructure:"hub_url" json:"hub_url"`
	Token          string        `mapstructure:"token" json:"-"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout" json:"connect_timeout"`
	PredictTimeout time.Duration `mapstructure:"predict_timeout" json:"predict_timeout"`
	Credentials    string        `mapstructure:"google_credentials" json:"google_credentials"`
	MyMemoryEmail  string        `mapstructure:"mymemory_email" json:"mymemory_email"`
}

type TranslateRequest struct {
	Text       string `json:"text"`
	SourceLang string `json:"source_lang"`
	TargetLang string `json:"target_lang"`
}

type ServiceResult struct {
	ServiceName    string        `json:"service_name"`
	TranslatedText string        `json:"translated_text"`
	Latency        time.Duration `json:"latency"`
	Cached         bool          `json:"cached,omitempty"`
}

// Connector establishes a Handle. Connect is called once per session and
// may take arbitrarily long; callers bound it with ctx.
type Connector interface {
	Name() string
	Connect(ctx context.Context) (Handle, error)
}

// Handle is a connected client. Predict is a single-shot call with no
// internal retry.
type Handle interface {
	Predict(ctx context.Context, req TranslateRequest) (*ServiceResult, error)
}

// ConnectorFunc adapts a function to Connector.
type ConnectorFunc func(ctx context.Context) (Handle, error)

func (f ConnectorFunc) Name() string { return "func" }

func (f ConnectorFunc) Connect(ctx context.Context) (Handle, error) { return f(ctx) }

// HandleFunc adapts a function to Handle.
type HandleFunc func(ctx context.Context, req TranslateRequest) (*ServiceResult, error)

func (f HandleFunc) Predict(ctx context.Context, req TranslateRequest) (*ServiceResult, error) {
	return f(ctx, req)
}
