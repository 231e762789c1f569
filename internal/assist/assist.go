// Package assist calls an OpenAI-compatible chat-completions endpoint to
// generate text from a prompt. The outbound call sits behind a circuit
// breaker so a slow or dead provider degrades this feature without
// touching anything else.
package assist

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/sony/gobreaker"

	"taskboard/api/internal/logging"
)

// ErrUnavailable is returned for every degraded condition: missing API
// key, open breaker, timeout, provider error. Callers map it to one
// "assistant unavailable" response.
var ErrUnavailable = errors.New("assistant unavailable")

// ErrEmptyPrompt rejects blank input before any outbound call.
var ErrEmptyPrompt = errors.New("prompt is empty")

const maxPromptLength = 4000

type Service struct {
	apiKey  string
	baseURL string
	model   string
	client  *http.Client
	breaker *gobreaker.CircuitBreaker
}

func NewService(apiKey, baseURL, model string) *Service {
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "assist",
		MaxRequests: 1,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Component("assist").WithField("breaker", name).
				Infof("circuit breaker %s -> %s", from.String(), to.String())
		},
	})

	return &Service{
		apiKey:  apiKey,
		baseURL: strings.TrimSuffix(baseURL, "/"),
		model:   model,
		client:  &http.Client{Timeout: 15 * time.Second},
		breaker: breaker,
	}
}

// Configured reports whether an API key is present.
func (s *Service) Configured() bool {
	return s.apiKey != ""
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// Generate produces text for the prompt. Every failure past input
// validation collapses to ErrUnavailable; the underlying cause is logged,
// not surfaced.
func (s *Service) Generate(ctx context.Context, prompt string) (string, error) {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return "", ErrEmptyPrompt
	}
	if len(prompt) > maxPromptLength {
		// Cut on a rune boundary so the clamp never ships broken UTF-8.
		cut := maxPromptLength
		for cut > 0 && !utf8.RuneStart(prompt[cut]) {
			cut--
		}
		prompt = prompt[:cut]
	}
	if !s.Configured() {
		return "", ErrUnavailable
	}

	result, err := s.breaker.Execute(func() (any, error) {
		return s.complete(ctx, prompt)
	})
	if err != nil {
		logging.Component("assist").Warnf("generate failed: %v", err)
		return "", ErrUnavailable
	}
	return result.(string), nil
}

func (s *Service) complete(ctx context.Context, prompt string) (string, error) {
	payload, err := json.Marshal(chatRequest{
		Model: s.model,
		Messages: []chatMessage{
			{Role: "system", Content: "You help write concise project and task descriptions."},
			{Role: "user", Content: prompt},
		},
	})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		s.baseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.apiKey)

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("call provider: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("provider status %d", resp.StatusCode)
	}

	var parsed chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("provider returned no choices")
	}
	return strings.TrimSpace(parsed.Choices[0].Message.Content), nil
}
