// Package upstream implements the single OpenAI-compatible chat-completions
// call shared by every provider: free pool and premium alike.
package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/aiparsehub/psgateway/internal/httpclient"
)

const (
	connectTimeout = 8 * time.Second
	totalTimeout   = 20 * time.Second
)

type chatRequest struct {
	Model          string         `json:"model"`
	Temperature    float64        `json:"temperature"`
	ResponseFormat responseFormat `json:"response_format"`
	Messages       []message      `json:"messages"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
	Model string `json:"model"`
}

// Usage mirrors the upstream token accounting for a single call.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// Result is the outcome of a completed or failed upstream call.
type Result struct {
	OK           bool
	Model        string
	Usage        Usage
	JSONObject   any
	ErrorMessage string
}

// Client issues OpenAI-compatible chat-completions requests against a
// configurable endpoint.
type Client struct {
	httpClient *http.Client
}

// New constructs a Client with the connect/total timeout budget mandated for
// non-streaming upstream calls.
func New() *Client {
	return &Client{httpClient: httpclient.New(connectTimeout, totalTimeout)}
}

// NewWithHTTPClient allows tests to substitute an http.Client (e.g. pointed
// at an httptest.Server).
func NewWithHTTPClient(hc *http.Client) *Client {
	return &Client{httpClient: hc}
}

// Call performs a single non-streaming completion request and re-parses the
// model's content as JSON. Any JSON value is accepted here; whether it is an
// object is left to the caller's contract check.
func (c *Client) Call(ctx context.Context, endpoint, apiKey, model, systemText, userText string) Result {
	body := chatRequest{
		Model:          model,
		Temperature:    0.2,
		ResponseFormat: responseFormat{Type: "json_object"},
		Messages: []message{
			{Role: "system", Content: systemText},
			{Role: "user", Content: userText},
		},
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return Result{ErrorMessage: fmt.Sprintf("marshal_request_failed:%v", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return Result{ErrorMessage: fmt.Sprintf("build_request_failed:%v", err)}
	}
	req.Header.Set("Authorization", "Bearer "+apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Result{ErrorMessage: fmt.Sprintf("http_request_failed:%v", err)}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return Result{ErrorMessage: fmt.Sprintf("http_%d:read_failed", resp.StatusCode)}
	}

	if resp.StatusCode >= 400 {
		msg := extractUpstreamMessage(respBody)
		if msg != "" {
			return Result{ErrorMessage: fmt.Sprintf("http_%d:%s", resp.StatusCode, msg)}
		}
		return Result{ErrorMessage: fmt.Sprintf("http_%d", resp.StatusCode)}
	}

	var oa chatResponse
	if err := json.Unmarshal(respBody, &oa); err != nil {
		return Result{ErrorMessage: "model_content_not_json_object"}
	}
	if len(oa.Choices) == 0 {
		return Result{ErrorMessage: "model_content_not_json_object"}
	}

	content := strings.TrimSpace(oa.Choices[0].Message.Content)
	var parsed any
	if err := json.Unmarshal([]byte(content), &parsed); err != nil {
		return Result{ErrorMessage: "model_content_not_json_object"}
	}

	return Result{
		OK:    true,
		Model: oa.Model,
		Usage: Usage{
			PromptTokens:     oa.Usage.PromptTokens,
			CompletionTokens: oa.Usage.CompletionTokens,
			TotalTokens:      oa.Usage.TotalTokens,
		},
		JSONObject: parsed,
	}
}

func extractUpstreamMessage(body []byte) string {
	var wrapped struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &wrapped); err == nil && wrapped.Error.Message != "" {
		return wrapped.Error.Message
	}
	trimmed := strings.TrimSpace(string(body))
	if len(trimmed) > 200 {
		trimmed = trimmed[:200]
	}
	return trimmed
}
