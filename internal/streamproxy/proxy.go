// Package streamproxy relays an upstream SSE chat-completions stream to the
// client byte-for-byte on success, and synthesizes a single SSE error event
// when the upstream responds with a failing status.
package streamproxy

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/aiparsehub/psgateway/internal/telemetry"
)

// Request describes the upstream call to open and stream from.
type Request struct {
	Endpoint string
	APIKey   string
	Body     []byte
	Provider string
}

// Record is the access-log-worthy outcome of one streamed request.
type Record struct {
	Status      int
	FirstByteMs int64
	TotalMs     int64
	Provider    string
}

const readChunkSize = 4096

// Stream opens the upstream connection, emits SSE headers immediately, and
// relays the body to w. The client always receives HTTP 200 with SSE
// framing; upstream failures are surfaced as an in-band SSE error event
// rather than a non-2xx status, since the headers are already committed by
// the time the upstream status is known.
func Stream(ctx context.Context, w http.ResponseWriter, client *http.Client, req Request, metrics *telemetry.Collector) Record {
	start := time.Now()

	w.Header().Set("Content-Type", "text/event-stream; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache, no-transform")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher, _ := w.(http.Flusher)
	flush(flusher)

	upstreamReq, err := http.NewRequestWithContext(ctx, http.MethodPost, req.Endpoint, bytes.NewReader(req.Body))
	if err != nil {
		writeSSEError(w, flusher, "")
		return Record{Status: 502, TotalMs: time.Since(start).Milliseconds(), Provider: req.Provider}
	}
	upstreamReq.Header.Set("Authorization", "Bearer "+req.APIKey)
	upstreamReq.Header.Set("Content-Type", "application/json")
	upstreamReq.Header.Set("Accept", "text/event-stream")

	resp, err := client.Do(upstreamReq)
	if err != nil {
		writeSSEError(w, flusher, "")
		return Record{Status: 502, TotalMs: time.Since(start).Milliseconds(), Provider: req.Provider}
	}
	defer resp.Body.Close()

	upstreamStatus := resp.StatusCode
	var errBuf bytes.Buffer
	var firstByteMs int64 = -1
	buf := make([]byte, readChunkSize)

	for {
		n, readErr := resp.Body.Read(buf)
		if n > 0 {
			if firstByteMs < 0 {
				firstByteMs = time.Since(start).Milliseconds()
				if metrics != nil {
					metrics.RecordStreamFirstByte(req.Provider, time.Since(start))
				}
			}
			if upstreamStatus < 400 {
				w.Write(buf[:n])
				flush(flusher)
			} else {
				errBuf.Write(buf[:n])
			}
		}
		if readErr != nil {
			break
		}
	}

	if upstreamStatus >= 400 {
		writeSSEError(w, flusher, extractErrorMessage(errBuf.Bytes()))
	}

	finalStatus := upstreamStatus
	if finalStatus == 0 {
		finalStatus = 200
	}
	return Record{
		Status:      finalStatus,
		FirstByteMs: firstByteMs,
		TotalMs:     time.Since(start).Milliseconds(),
		Provider:    req.Provider,
	}
}

func flush(f http.Flusher) {
	if f != nil {
		f.Flush()
	}
}

// sseErrorBody is declared field-by-field (rather than a map) so
// encoding/json preserves the message/type/code wire order.
type sseErrorBody struct {
	Error sseErrorDetail `json:"error"`
}

type sseErrorDetail struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    string `json:"code"`
}

func writeSSEError(w http.ResponseWriter, flusher http.Flusher, message string) {
	if message == "" {
		message = "Upstream error"
	}
	body, _ := json.Marshal(sseErrorBody{
		Error: sseErrorDetail{
			Message: message,
			Type:    "server_error",
			Code:    "upstream_error",
		},
	})
	w.Write([]byte("data: "))
	w.Write(body)
	w.Write([]byte("\n\n"))
	w.Write([]byte("data: [DONE]\n\n"))
	flush(flusher)
}

func extractErrorMessage(body []byte) string {
	var wrapped struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &wrapped); err == nil && wrapped.Error.Message != "" {
		return wrapped.Error.Message
	}
	return ""
}
