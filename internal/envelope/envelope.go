// Package envelope defines the request and response shapes exchanged over
// the parse endpoint.
package envelope

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/aiparsehub/psgateway/internal/gwerr"
)

// Mode enumerates the supported parse modes as a tagged enum rather than a
// loose string, so dispatch never falls back to reflection.
type Mode string

const (
	ModeAuto     Mode = "auto"
	ModeJSON     Mode = "json"
	ModeQuery    Mode = "query"
	ModeKV       Mode = "kv"
	ModeCSV      Mode = "csv"
	ModeDeepseek Mode = "deepseek"
	ModeEcom     Mode = "ecom"
	ModeNews     Mode = "news"
	ModeSocial   Mode = "social"
)

// ParseModes lists every recognized mode, in the order contract/cascade
// tables key off of.
var ParseModes = []Mode{ModeAuto, ModeJSON, ModeQuery, ModeKV, ModeCSV, ModeDeepseek, ModeEcom, ModeNews, ModeSocial}

// IsValid reports whether m is one of the recognized modes.
func (m Mode) IsValid() bool {
	for _, candidate := range ParseModes {
		if candidate == m {
			return true
		}
	}
	return false
}

// TargetLang is the normalized target language, either empty or "zh".
type TargetLang string

const (
	TargetLangNone TargetLang = ""
	TargetLangZH   TargetLang = "zh"
)

// targetLangAliases maps every accepted spelling to its normalized form.
var targetLangAliases = map[string]TargetLang{
	"":        TargetLangNone,
	"zh":      TargetLangZH,
	"zh-cn":   TargetLangZH,
	"zh-hans": TargetLangZH,
	"cn":      TargetLangZH,
}

// NormalizeTargetLang resolves a caller-supplied target_lang string to its
// canonical form, returning an error for anything not in the alias table.
func NormalizeTargetLang(raw string) (TargetLang, error) {
	if lang, ok := targetLangAliases[raw]; ok {
		return lang, nil
	}
	return "", gwerr.New(gwerr.CodeInvalidTargetLang, 400, "unsupported target_lang: "+raw)
}

// Request is the decoded parse request.
type Request struct {
	Mode        Mode
	TargetLang  TargetLang
	Instruction string
	Data        string
	URL         string
	AuthToken   string
}

// DeepseekMeta describes the upstream call made to satisfy a parse request,
// named "deepseek" in the wire contract for historical reasons.
type DeepseekMeta struct {
	Provider     string `json:"provider"`
	Tier         string `json:"tier"`
	InputTokens  int    `json:"input_tokens"`
	OutputTokens int    `json:"output_tokens"`
	Model        string `json:"model"`
}

// Meta is the response envelope's meta block.
type Meta struct {
	Mode       string        `json:"mode"`
	InputBytes int           `json:"input_bytes"`
	URL        string        `json:"url,omitempty"`
	Deepseek   *DeepseekMeta `json:"deepseek,omitempty"`
	TargetLang string        `json:"target_lang,omitempty"`
	Limit      int           `json:"limit_per_minute,omitempty"`
}

// ErrorBody is the {code, message} pair carried in a failed response.
type ErrorBody struct {
	Code    gwerr.Code `json:"code"`
	Message string     `json:"message"`
}

// Response is the wire shape returned from /v1/parse.
type Response struct {
	OK        bool            `json:"ok"`
	RequestID string          `json:"request_id"`
	TS        string          `json:"ts"`
	Data      json.RawMessage `json:"data,omitempty"`
	Error     *ErrorBody      `json:"error,omitempty"`
	Meta      *Meta           `json:"meta,omitempty"`
}

// NewRequestID returns a fresh request identifier.
func NewRequestID() string { return uuid.New().String() }

// Now returns the current timestamp formatted the way envelopes expect.
func Now() string { return time.Now().UTC().Format(time.RFC3339Nano) }

// Success builds a successful response envelope.
func Success(requestID string, data any, meta *Meta) (*Response, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, gwerr.New(gwerr.CodeJSONEncodeFailed, 500, "failed to encode response data").WithCause(err)
	}
	return &Response{
		OK:        true,
		RequestID: requestID,
		TS:        Now(),
		Data:      raw,
		Meta:      meta,
	}, nil
}

// Failure builds a failed response envelope from a gwerr.Error.
func Failure(requestID string, err *gwerr.Error, meta *Meta) *Response {
	return &Response{
		OK:        false,
		RequestID: requestID,
		TS:        Now(),
		Error:     &ErrorBody{Code: err.Code, Message: err.Message},
		Meta:      meta,
	}
}
