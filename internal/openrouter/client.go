// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package openrouter provides the HTTP client for the OpenRouter
// chat-completions API.
//
// The client enforces single-flight at the request layer: issuing a new
// completion aborts any previous one still pending (last caller wins).
// Queuing of user submissions happens one layer up, in the submission
// coordinator.
package openrouter

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Configuration constants for the OpenRouter API.
const (
	// DefaultBaseURL is the OpenRouter API root.
	DefaultBaseURL = "https://openrouter.ai/api/v1"

	// DefaultTimeout bounds a single completion request.
	DefaultTimeout = 60 * time.Second

	// DefaultMaxTokens is sent when the caller does not specify one.
	DefaultMaxTokens = 2000

	// maxResponseSize caps the response body read to keep a misbehaving
	// endpoint from exhausting memory.
	maxResponseSize = 10 * 1024 * 1024

	// maxAttempts is the retry budget for transient (5xx/transport)
	// failures, with exponential backoff between attempts.
	maxAttempts = 3
)

// DefaultSystemPrompt seeds every outbound conversation window.
const DefaultSystemPrompt = "You are a helpful assistant. Please respond to questions " +
	"as concisely as possible but make sure to be descriptive in some cases. Aim for " +
	"direct answers that most people will be able to understand."

// FallbackReply is returned when a 2xx response decodes as JSON but
// matches none of the known reply shapes. Shape drift degrades to this
// sentinel instead of failing the whole exchange.
const FallbackReply = "Sorry, I couldn't understand the response."

// =============================================================================
// ERROR TYPES
// =============================================================================

// ErrorType categorizes client errors for handling.
type ErrorType int

const (
	ErrTypeUnknown ErrorType = iota
	ErrTypeAuth
	ErrTypeRateLimit
	ErrTypeNetwork
	ErrTypeMalformedResponse
	ErrTypeAborted
)

// ClientError represents an error from the OpenRouter client.
type ClientError struct {
	Type    ErrorType
	Message string
	Cause   error
}

func (e *ClientError) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

func (e *ClientError) Unwrap() error {
	return e.Cause
}

// Sentinel errors for easy checking.
var (
	ErrMissingKey        = &ClientError{Type: ErrTypeAuth, Message: "API key is missing"}
	ErrAuthFailed        = &ClientError{Type: ErrTypeAuth, Message: "authentication failed"}
	ErrRateLimited       = &ClientError{Type: ErrTypeRateLimit, Message: "rate limited"}
	ErrMalformedResponse = &ClientError{Type: ErrTypeMalformedResponse, Message: "could not parse API response"}
	ErrAborted           = &ClientError{Type: ErrTypeAborted, Message: "request aborted"}
)

// TypeOf returns the taxonomy type for err, or ErrTypeUnknown.
func TypeOf(err error) ErrorType {
	var ce *ClientError
	if errors.As(err, &ce) {
		return ce.Type
	}
	return ErrTypeUnknown
}

// =============================================================================
// WIRE TYPES
// =============================================================================

// ChatMessage is a single message in the outbound window.
type ChatMessage struct {
	Role    string `json:"role"` // "user", "assistant", or "system"
	Content string `json:"content"`
}

// NewUserMessage creates a user message.
func NewUserMessage(content string) ChatMessage {
	return ChatMessage{Role: "user", Content: content}
}

// NewAssistantMessage creates an assistant message.
func NewAssistantMessage(content string) ChatMessage {
	return ChatMessage{Role: "assistant", Content: content}
}

// NewSystemMessage creates a system message.
func NewSystemMessage(content string) ChatMessage {
	return ChatMessage{Role: "system", Content: content}
}

// chatRequest is the request body for /chat/completions.
type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []ChatMessage `json:"messages"`
	Temperature float64       `json:"temperature,omitempty"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
}

// apiErrorResponse is the error body shape for non-2xx statuses.
type apiErrorResponse struct {
	Error struct {
		Code    json.RawMessage `json:"code"`
		Message string          `json:"message"`
	} `json:"error"`
	Message string `json:"message"`
}

// Options are per-request knobs.
type Options struct {
	Temperature float64
	MaxTokens   int
}

// =============================================================================
// RESPONSE SHAPE DECODING
// =============================================================================

// replyShapes models the accepted provider response shapes as one
// struct decoded leniently; extraction walks the shapes in priority
// order instead of probing ad hoc properties.
type replyShapes struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		Text string `json:"text"`
	} `json:"choices"`
	Text    string `json:"text"`
	Output  string `json:"output"`
	Content string `json:"content"`
}

// extractReply pulls the reply text out of a 2xx body.
// Ordered matching: choices[0].message.content, then choices[0].text,
// then top-level text/output/content. An unknown-but-valid JSON shape
// yields FallbackReply and ok=true; invalid JSON yields ok=false.
func extractReply(body []byte) (string, bool) {
	var r replyShapes
	if err := json.Unmarshal(body, &r); err != nil {
		return "", false
	}

	if len(r.Choices) > 0 {
		if c := r.Choices[0].Message.Content; c != "" {
			return c, true
		}
		if c := r.Choices[0].Text; c != "" {
			return c, true
		}
	}
	for _, c := range []string{r.Text, r.Output, r.Content} {
		if c != "" {
			return c, true
		}
	}
	return FallbackReply, true
}

// =============================================================================
// CLIENT
// =============================================================================

// Client talks to the OpenRouter chat-completions endpoint. At most one
// request is in flight per Client; a new Complete call aborts the
// previous one.
type Client struct {
	apiKey       string
	baseURL      string
	model        string
	systemPrompt string
	httpClient   *http.Client
	limiter      *rate.Limiter
	siteURL      string
	siteName     string

	// Single-flight state: cancel function of the in-flight request,
	// plus a generation counter so a finished request only clears its
	// own slot.
	mu           sync.Mutex
	cancelActive context.CancelFunc
	generation   uint64
}

// New creates a client with the given API key and model. An empty key
// is allowed: Complete will short-circuit with ErrMissingKey before
// touching the network.
func New(apiKey, model string) *Client {
	return &Client{
		apiKey:       strings.TrimSpace(apiKey),
		baseURL:      DefaultBaseURL,
		model:        model,
		systemPrompt: DefaultSystemPrompt,
		httpClient:   &http.Client{Timeout: DefaultTimeout},
		// OpenRouter free-tier models throttle aggressively; pacing
		// outbound calls avoids tripping 429s on queued drains.
		limiter:  rate.NewLimiter(rate.Every(time.Second), 2),
		siteURL:  "https://orchat.local",
		siteName: "orchat",
	}
}

// WithBaseURL sets a custom API root (used by tests).
func (c *Client) WithBaseURL(url string) *Client {
	c.baseURL = strings.TrimSuffix(url, "/")
	return c
}

// WithSystemPrompt replaces the default instruction message.
func (c *Client) WithSystemPrompt(prompt string) *Client {
	c.systemPrompt = prompt
	return c
}

// SetModel changes the model for subsequent requests.
func (c *Client) SetModel(model string) {
	c.model = model
}

// SetAPIKey replaces the stored key.
func (c *Client) SetAPIKey(key string) {
	c.apiKey = strings.TrimSpace(key)
}

// IsConfigured reports whether an API key is present.
func (c *Client) IsConfigured() bool {
	return c.apiKey != ""
}

// KeyFingerprint returns a short hash of the API key for logging.
// The key itself is never logged, not even a fragment.
func (c *Client) KeyFingerprint() string {
	if c.apiKey == "" {
		return "none"
	}
	h := sha256.Sum256([]byte(c.apiKey))
	return hex.EncodeToString(h[:4])
}

// =============================================================================
// WINDOW BUILDING
// =============================================================================

// BuildMessages assembles the outbound message list: exactly one
// leading system message, the caller's bounded recent-history window
// (system entries stripped), and the new user message unless an
// identical role+content entry already ends the window.
func (c *Client) BuildMessages(window []ChatMessage, newMessage string) []ChatMessage {
	out := make([]ChatMessage, 0, len(window)+2)
	out = append(out, NewSystemMessage(c.systemPrompt))

	for _, m := range window {
		if m.Role == "system" || m.Content == "" {
			continue
		}
		out = append(out, m)
	}

	userMsg := NewUserMessage(newMessage)
	if len(out) == 0 || out[len(out)-1] != userMsg {
		out = append(out, userMsg)
	}
	return out
}

// =============================================================================
// COMPLETION
// =============================================================================

// Complete performs a chat completion and returns the reply text.
//
// The conversation window and new message are combined via
// BuildMessages. Errors use the ClientError taxonomy; a missing API key
// fails locally without a network call, and an aborted request (a newer
// call superseded this one) returns ErrAborted.
func (c *Client) Complete(ctx context.Context, window []ChatMessage, newMessage string, opts Options) (string, error) {
	if !c.IsConfigured() {
		return "", ErrMissingKey
	}

	// Last caller wins: abort whatever is still pending.
	reqCtx, cancel := context.WithCancel(ctx)
	c.mu.Lock()
	if c.cancelActive != nil {
		c.cancelActive()
	}
	c.generation++
	gen := c.generation
	c.cancelActive = cancel
	c.mu.Unlock()

	defer func() {
		cancel()
		c.mu.Lock()
		if c.generation == gen {
			c.cancelActive = nil
		}
		c.mu.Unlock()
	}()

	if opts.MaxTokens == 0 {
		opts.MaxTokens = DefaultMaxTokens
	}

	body, err := json.Marshal(chatRequest{
		Model:       c.model,
		Messages:    c.BuildMessages(window, newMessage),
		Temperature: opts.Temperature,
		MaxTokens:   opts.MaxTokens,
	})
	if err != nil {
		return "", &ClientError{Type: ErrTypeUnknown, Message: "failed to encode request", Cause: err}
	}

	if err := c.limiter.Wait(reqCtx); err != nil {
		return "", c.mapTransportError(err)
	}

	resp, respBody, err := c.doWithRetry(reqCtx, body)
	if err != nil {
		return "", err
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", c.mapHTTPError(resp.StatusCode, respBody)
	}

	reply, ok := extractReply(respBody)
	if !ok {
		return "", &ClientError{
			Type:    ErrTypeMalformedResponse,
			Message: "could not parse API response",
		}
	}
	return reply, nil
}

// doWithRetry performs the request with backoff on transport errors and
// 5xx statuses. 4xx statuses return immediately for taxonomy mapping.
func (c *Client) doWithRetry(ctx context.Context, body []byte) (*http.Response, []byte, error) {
	var lastErr error

	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, nil, c.mapTransportError(ctx.Err())
			case <-time.After(time.Duration(1<<(attempt-1)) * time.Second):
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost,
			c.baseURL+"/chat/completions", bytes.NewReader(body))
		if err != nil {
			return nil, nil, &ClientError{Type: ErrTypeUnknown, Message: "failed to build request", Cause: err}
		}
		c.setHeaders(req)

		start := time.Now()
		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = c.mapTransportError(err)
			if TypeOf(lastErr) == ErrTypeAborted {
				return nil, nil, lastErr
			}
			continue
		}

		respBody, readErr := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
		resp.Body.Close()
		log.Printf("openrouter: %d %s (%v, key=%s)", resp.StatusCode, resp.Status, time.Since(start).Round(time.Millisecond), c.KeyFingerprint())
		if readErr != nil {
			lastErr = &ClientError{Type: ErrTypeNetwork, Message: "failed to read response", Cause: readErr}
			continue
		}

		if resp.StatusCode >= 500 {
			lastErr = c.mapHTTPError(resp.StatusCode, respBody)
			continue
		}
		return resp, respBody, nil
	}
	return nil, nil, lastErr
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "orchat/0.1")
	if c.siteURL != "" {
		req.Header.Set("HTTP-Referer", c.siteURL)
	}
	if c.siteName != "" {
		req.Header.Set("X-Title", c.siteName)
	}
}

// mapTransportError converts transport-level failures to the taxonomy.
func (c *Client) mapTransportError(err error) error {
	if errors.Is(err, context.Canceled) {
		return ErrAborted
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &ClientError{Type: ErrTypeNetwork, Message: "request timed out", Cause: err}
	}
	return &ClientError{Type: ErrTypeNetwork, Message: "network error", Cause: err}
}

// mapHTTPError converts a non-success status to the taxonomy, reading
// the structured error body when one is present and falling back to the
// raw response text.
func (c *Client) mapHTTPError(status int, body []byte) error {
	message := ""
	var parsed apiErrorResponse
	if err := json.Unmarshal(body, &parsed); err == nil {
		if parsed.Error.Message != "" {
			message = parsed.Error.Message
		} else if parsed.Message != "" {
			message = parsed.Message
		}
	}
	if message == "" {
		message = strings.TrimSpace(string(body))
	}
	if message == "" {
		message = http.StatusText(status)
	}

	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return &ClientError{Type: ErrTypeAuth, Message: message}
	case status == http.StatusTooManyRequests:
		return &ClientError{Type: ErrTypeRateLimit, Message: message}
	default:
		return &ClientError{
			Type:    ErrTypeNetwork,
			Message: fmt.Sprintf("HTTP %d: %s", status, message),
		}
	}
}

// Abort cancels the in-flight request, if any.
func (c *Client) Abort() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancelActive != nil {
		c.cancelActive()
		c.cancelActive = nil
	}
}
