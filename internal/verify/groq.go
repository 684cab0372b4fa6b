package verify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/voidlabs/voidbot/internal/config"
	"github.com/voidlabs/voidbot/internal/domain"
	"github.com/voidlabs/voidbot/internal/strategy"
)

// GroqOracle asks a Groq-hosted LLM whether the predicted outcome of a signal
// matches what actually happened. The API is OpenAI-compatible, so any
// compatible base URL works.
type GroqOracle struct {
	baseURL     string
	apiKey      string
	model       string
	temperature float64
	httpc       *http.Client
	logger      *slog.Logger
}

// NewGroqOracle creates a GroqOracle from config.
func NewGroqOracle(cfg config.VerifierConfig, logger *slog.Logger) *GroqOracle {
	return &GroqOracle{
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:      cfg.APIKey,
		model:       cfg.Model,
		temperature: cfg.Temperature,
		httpc:       &http.Client{Timeout: cfg.Timeout.Duration},
		logger:      logger.With(slog.String("component", "verify.groq")),
	}
}

const systemPrompt = `You are a fact-checker for prediction markets. The market's underlying event has already ended. Given the market question and a predicted outcome, estimate the probability that the predicted outcome is the true result. Respond with ONLY a JSON object: {"confidence": <0.0-1.0>, "reasoning": "<one sentence>"}.`

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
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

type verdictPayload struct {
	Confidence float64 `json:"confidence"`
	Reasoning  string  `json:"reasoning"`
}

// Assess queries the model for the probability that the signal's predicted
// outcome is correct.
func (g *GroqOracle) Assess(ctx context.Context, m domain.MarketSnapshot, s *domain.Signal) (strategy.Verdict, error) {
	start := time.Now()

	reqBody, err := json.Marshal(chatRequest{
		Model:       g.model,
		Temperature: g.temperature,
		MaxTokens:   200,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: g.userPrompt(m, s)},
		},
	})
	if err != nil {
		return strategy.Verdict{}, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/chat/completions", bytes.NewReader(reqBody))
	if err != nil {
		return strategy.Verdict{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+g.apiKey)

	resp, err := g.httpc.Do(req)
	if err != nil {
		return strategy.Verdict{}, fmt.Errorf("oracle request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return strategy.Verdict{}, fmt.Errorf("read oracle response: %w", err)
	}
	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return strategy.Verdict{}, fmt.Errorf("oracle: %w", domain.ErrRateLimited)
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return strategy.Verdict{}, fmt.Errorf("oracle: %w", domain.ErrUnauthorized)
	case resp.StatusCode != http.StatusOK:
		return strategy.Verdict{}, fmt.Errorf("oracle: unexpected status %d: %s", resp.StatusCode, truncate(string(body), 200))
	}

	var parsed chatResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return strategy.Verdict{}, fmt.Errorf("decode oracle response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return strategy.Verdict{}, fmt.Errorf("oracle returned no choices")
	}

	verdict, err := parseVerdict(parsed.Choices[0].Message.Content)
	if err != nil {
		return strategy.Verdict{}, err
	}

	g.logger.Debug("oracle assessment",
		slog.String("market_id", m.ID),
		slog.Float64("confidence", verdict.Confidence),
		slog.Duration("elapsed", time.Since(start)))
	return strategy.Verdict{
		Confidence: verdict.Confidence,
		Reasoning:  verdict.Reasoning,
		Source:     g.model,
	}, nil
}

func (g *GroqOracle) userPrompt(m domain.MarketSnapshot, s *domain.Signal) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Market question: %s\n", m.Question)
	if m.Category != "" {
		fmt.Fprintf(&b, "Category: %s\n", m.Category)
	}
	if m.EndTime != nil {
		fmt.Fprintf(&b, "Event ended: %s\n", m.EndTime.UTC().Format(time.RFC3339))
	}
	fmt.Fprintf(&b, "Current %s price: %.3f\n", s.PredictedOutcome, s.EntryPrice)
	fmt.Fprintf(&b, "Predicted outcome: %s\n", s.PredictedOutcome)
	return b.String()
}

// parseVerdict extracts the verdict JSON from the model reply. Models
// occasionally wrap the object in prose or a code fence, so scan for the
// outermost braces before decoding.
func parseVerdict(content string) (verdictPayload, error) {
	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start < 0 || end <= start {
		return verdictPayload{}, fmt.Errorf("oracle reply contains no JSON object: %s", truncate(content, 200))
	}
	var v verdictPayload
	if err := json.Unmarshal([]byte(content[start:end+1]), &v); err != nil {
		return verdictPayload{}, fmt.Errorf("decode verdict: %w", err)
	}
	if v.Confidence < 0 || v.Confidence > 1 {
		return verdictPayload{}, fmt.Errorf("verdict confidence %.3f out of range", v.Confidence)
	}
	return v, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
