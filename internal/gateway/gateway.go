// Package gateway relays assembled conversations to an OpenAI-compatible
// completion API (OpenRouter by default) and classifies what goes wrong.
package gateway

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"

	"github.com/iliyamo/chat-gateway/internal/apperr"
	"github.com/iliyamo/chat-gateway/internal/metrics"
)

// Roles accepted in a Message.
const (
	RoleSystem    = openai.ChatMessageRoleSystem
	RoleUser      = openai.ChatMessageRoleUser
	RoleAssistant = openai.ChatMessageRoleAssistant
)

// DefaultTimeout bounds one completion when Config.Timeout is zero.
const DefaultTimeout = 45 * time.Second

// Message is one entry of the model input.
type Message struct {
	Role    string
	Content string
}

// Reason says why a completion failed.
type Reason string

const (
	ReasonCredential Reason = "credential"
	ReasonQuota      Reason = "quota"
	ReasonRateLimit  Reason = "rate_limit"
	ReasonNetwork    Reason = "network"
	ReasonTimeout    Reason = "timeout"
	ReasonMalformed  Reason = "malformed"
)

// Failure is the cause carried inside a KindGateway error.
type Failure struct {
	Reason    Reason
	Retryable bool
	Status    int // upstream HTTP status, 0 when none was received
	Err       error
}

func (f *Failure) Error() string {
	if f.Err != nil {
		return "model " + string(f.Reason) + ": " + f.Err.Error()
	}
	return "model " + string(f.Reason)
}

func (f *Failure) Unwrap() error { return f.Err }

// FailureOf extracts the *Failure from err's chain.
func FailureOf(err error) (*Failure, bool) {
	var f *Failure
	ok := errors.As(err, &f)
	return f, ok
}

type Config struct {
	APIKey  string
	BaseURL string
	Model   string
	Timeout time.Duration
	// HTTPClient overrides the transport; nil uses a plain http.Client.
	HTTPClient *http.Client
}

// OpenRouter sends the full message list on every call and returns a single
// completion. It keeps no state between calls.
type OpenRouter struct {
	client  *openai.Client
	model   string
	timeout time.Duration
	hasKey  bool
}

func NewOpenRouter(cfg Config) *OpenRouter {
	oc := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		oc.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}
	if cfg.HTTPClient != nil {
		oc.HTTPClient = cfg.HTTPClient
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &OpenRouter{
		client:  openai.NewClientWithConfig(oc),
		model:   cfg.Model,
		timeout: timeout,
		hasKey:  cfg.APIKey != "",
	}
}

// Complete returns the assistant reply for msgs. Every failure is an
// apperr KindGateway error wrapping a *Failure.
func (g *OpenRouter) Complete(ctx context.Context, msgs []Message) (string, error) {
	start := time.Now()
	reply, err := g.complete(ctx, msgs)
	metrics.ModelCallDurationSeconds.Observe(time.Since(start).Seconds())
	if err != nil {
		f, _ := FailureOf(err)
		metrics.ModelCallsTotal.WithLabelValues(string(f.Reason)).Inc()
		return "", apperr.E(apperr.KindGateway, "gateway.complete", "the assistant is unavailable right now", err)
	}
	metrics.ModelCallsTotal.WithLabelValues("ok").Inc()
	return reply, nil
}

func (g *OpenRouter) complete(ctx context.Context, msgs []Message) (string, error) {
	if !g.hasKey {
		return "", &Failure{Reason: ReasonCredential, Err: errors.New("OPENROUTER_API_KEY is not set")}
	}
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	req := openai.ChatCompletionRequest{
		Model:    g.model,
		Messages: make([]openai.ChatCompletionMessage, 0, len(msgs)),
	}
	for _, m := range msgs {
		req.Messages = append(req.Messages, openai.ChatCompletionMessage{Role: m.Role, Content: m.Content})
	}

	resp, err := g.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", classify(ctx, err)
	}
	if len(resp.Choices) == 0 {
		return "", &Failure{Reason: ReasonMalformed, Err: errors.New("no choices in completion")}
	}
	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	if content == "" {
		return "", &Failure{Reason: ReasonMalformed, Err: errors.New("empty completion content")}
	}
	return content, nil
}

// classify maps a client error to a Failure. Deadline checks come first
// because a timed out request surfaces as a transport error too.
func classify(ctx context.Context, err error) *Failure {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return &Failure{Reason: ReasonTimeout, Retryable: true, Err: err}
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return fromStatus(apiErr.HTTPStatusCode, err)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return fromStatus(reqErr.HTTPStatusCode, err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &Failure{Reason: ReasonTimeout, Retryable: true, Err: err}
	}
	if errors.As(err, &netErr) || errors.Is(err, context.Canceled) {
		return &Failure{Reason: ReasonNetwork, Retryable: true, Err: err}
	}
	// Anything else came back but could not be decoded.
	return &Failure{Reason: ReasonMalformed, Err: err}
}

func fromStatus(status int, err error) *Failure {
	f := &Failure{Status: status, Err: err}
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		f.Reason = ReasonCredential
	case status == http.StatusPaymentRequired:
		f.Reason = ReasonQuota
	case status == http.StatusTooManyRequests:
		f.Reason, f.Retryable = ReasonRateLimit, true
	case status == http.StatusRequestTimeout || status == http.StatusGatewayTimeout:
		f.Reason, f.Retryable = ReasonTimeout, true
	case status >= 500:
		f.Reason, f.Retryable = ReasonNetwork, true
	default:
		f.Reason = ReasonMalformed
	}
	return f
}
