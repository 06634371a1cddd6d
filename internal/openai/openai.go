package openai

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/grovestreet/grovebot/internal/prompt"
)

// ErrMalformedResponse marks completion responses that could not be used:
// unparseable bodies, missing choices, or blank content.
var ErrMalformedResponse = errors.New("malformed completion response")

// APIError is a non-2xx response from the completions endpoint.
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("openai non-success status=%d body=%s", e.Status, e.Body)
}

// Client is a minimal Azure OpenAI chat completions client.
type Client struct {
	endpoint   string
	apiKey     string
	httpClient *http.Client
}

// NewClient creates a client for one Azure OpenAI deployment. apiBase is
// the resource endpoint (e.g. "https://myresource.openai.azure.com").
func NewClient(apiBase, apiKey, apiVersion, deployment string, timeout time.Duration) *Client {
	endpoint := strings.TrimRight(apiBase, "/") +
		"/openai/deployments/" + url.PathEscape(deployment) +
		"/chat/completions?api-version=" + url.QueryEscape(apiVersion)
	return &Client{
		endpoint: endpoint,
		apiKey:   apiKey,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// CompletionResponse is the usable result of one completion call.
type CompletionResponse struct {
	Content      string
	InputTokens  int
	OutputTokens int
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Messages []chatMessage `json:"messages"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage *usage `json:"usage"`
}

type usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
}

// ChatCompletion sends one chat completion request. The returned content is
// trimmed and non-empty; every unusable outcome is an error.
func (c *Client) ChatCompletion(messages []prompt.Message) (CompletionResponse, error) {
	reqBody := chatRequest{Messages: make([]chatMessage, 0, len(messages))}
	for _, m := range messages {
		reqBody.Messages = append(reqBody.Messages, chatMessage{Role: m.Role, Content: m.Content})
	}
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return CompletionResponse{}, fmt.Errorf("failed to marshal openai request: %w", err)
	}

	req, err := http.NewRequest(http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return CompletionResponse{}, fmt.Errorf("failed to create openai request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("api-key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return CompletionResponse{}, fmt.Errorf("openai request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return CompletionResponse{}, fmt.Errorf("failed reading openai response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return CompletionResponse{}, &APIError{Status: resp.StatusCode, Body: truncate(string(body), 400)}
	}

	var parsed chatResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return CompletionResponse{}, fmt.Errorf("%w: %s", ErrMalformedResponse, truncate(string(body), 400))
	}

	result := CompletionResponse{}
	if parsed.Usage != nil {
		result.InputTokens = parsed.Usage.PromptTokens
		result.OutputTokens = parsed.Usage.CompletionTokens
	}

	if len(parsed.Choices) == 0 {
		return CompletionResponse{}, fmt.Errorf("%w: no choices", ErrMalformedResponse)
	}
	content := strings.TrimSpace(parsed.Choices[0].Message.Content)
	if content == "" {
		return CompletionResponse{}, fmt.Errorf("%w: empty content", ErrMalformedResponse)
	}
	result.Content = content
	return result, nil
}

// FailureClass maps a completion error to a coarse class used for logs,
// metrics, and the circuit breaker. The reply path treats all classes the
// same.
func FailureClass(err error) string {
	if err == nil {
		return "none"
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.Status == http.StatusUnauthorized || apiErr.Status == http.StatusForbidden:
			return "auth"
		case apiErr.Status == http.StatusTooManyRequests:
			return "rate_limit"
		default:
			return "api"
		}
	}
	if errors.Is(err, ErrMalformedResponse) {
		return "malformed"
	}
	return "network"
}

func truncate(s string, maxChars int) string {
	runes := []rune(s)
	if len(runes) <= maxChars {
		return s
	}
	return string(runes[:maxChars])
}
