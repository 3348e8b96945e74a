package internal

import "time"

// TranslationRequest is one completed translation call as recorded in the
// request log.
type TranslationRequest struct {
	ID             string        `json:"id"`
	SourceText     string        `json:"source_text"`
	SourceLang     string        `json:"source_lang"`
	TargetLang     string        `json:"target_lang"`
	ServiceName    string        `json:"service_name"`
	TranslatedText string        `json:"translated_text"`
	Cached         bool          `json:"cached"`
	Latency        time.Duration `json:"latency"`
	Error          string        `json:"error,omitempty"`
	Timestamp      time.Time     `json:"timestamp"`
}
