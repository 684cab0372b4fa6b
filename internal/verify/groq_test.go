package verify

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voidlabs/voidbot/internal/config"
	"github.com/voidlabs/voidbot/internal/domain"
)

func testSignal() *domain.Signal {
	return &domain.Signal{
		ID:               "sig-1",
		MarketID:         "mkt-1",
		PredictedOutcome: domain.OutcomeYes,
		EntryPrice:       0.92,
	}
}

func testMarket() domain.MarketSnapshot {
	end := time.Date(2025, 6, 15, 0, 0, 0, 0, time.UTC)
	return domain.MarketSnapshot{
		ID:       "mkt-1",
		Question: "Did team A win the final?",
		EndTime:  &end,
	}
}

func chatReply(content string) string {
	resp := map[string]any{
		"choices": []map[string]any{
			{"message": map[string]any{"role": "assistant", "content": content}},
		},
	}
	b, _ := json.Marshal(resp)
	return string(b)
}

func newOracle(t *testing.T, handler http.HandlerFunc) *GroqOracle {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	cfg := config.Defaults().Verifier
	cfg.BaseURL = srv.URL
	cfg.APIKey = "test-key"
	return NewGroqOracle(cfg, slog.New(slog.DiscardHandler))
}

func TestGroqAssess(t *testing.T) {
	t.Run("parses a clean verdict", func(t *testing.T) {
		oracle := newOracle(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/chat/completions", r.URL.Path)
			assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

			var req chatRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			require.Len(t, req.Messages, 2)
			assert.Contains(t, req.Messages[1].Content, "Did team A win the final?")
			assert.Contains(t, req.Messages[1].Content, "Predicted outcome: YES")

			w.Write([]byte(chatReply(`{"confidence": 0.87, "reasoning": "Team A won 2-1."}`)))
		})

		v, err := oracle.Assess(context.Background(), testMarket(), testSignal())
		require.NoError(t, err)
		assert.Equal(t, 0.87, v.Confidence)
		assert.Equal(t, "Team A won 2-1.", v.Reasoning)
		assert.Equal(t, "llama-3.3-70b-versatile", v.Source)
	})

	t.Run("extracts verdict wrapped in prose", func(t *testing.T) {
		oracle := newOracle(t, func(w http.ResponseWriter, _ *http.Request) {
			w.Write([]byte(chatReply("Here is my assessment:\n```json\n{\"confidence\": 0.62, \"reasoning\": \"Sources conflict.\"}\n```")))
		})
		v, err := oracle.Assess(context.Background(), testMarket(), testSignal())
		require.NoError(t, err)
		assert.Equal(t, 0.62, v.Confidence)
	})

	t.Run("rate limit maps to sentinel", func(t *testing.T) {
		oracle := newOracle(t, func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusTooManyRequests)
		})
		_, err := oracle.Assess(context.Background(), testMarket(), testSignal())
		assert.ErrorIs(t, err, domain.ErrRateLimited)
	})

	t.Run("out of range confidence fails", func(t *testing.T) {
		oracle := newOracle(t, func(w http.ResponseWriter, _ *http.Request) {
			w.Write([]byte(chatReply(`{"confidence": 1.4, "reasoning": "sure"}`)))
		})
		_, err := oracle.Assess(context.Background(), testMarket(), testSignal())
		assert.ErrorContains(t, err, "out of range")
	})

	t.Run("reply without JSON fails", func(t *testing.T) {
		oracle := newOracle(t, func(w http.ResponseWriter, _ *http.Request) {
			w.Write([]byte(chatReply("I cannot determine the outcome.")))
		})
		_, err := oracle.Assess(context.Background(), testMarket(), testSignal())
		assert.ErrorContains(t, err, "no JSON object")
	})
}
