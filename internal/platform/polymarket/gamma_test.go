package polymarket

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voidlabs/voidbot/internal/domain"
)

const gammaMarketJSON = `{
	"id": "512329",
	"question": "Did team A win the final?",
	"slug": "did-team-a-win",
	"category": "Sports",
	"active": "true",
	"closed": false,
	"outcomes": "[\"Yes\", \"No\"]",
	"outcomePrices": "[\"0.92\", \"0.08\"]",
	"clobTokenIds": "[\"1111\", \"2222\"]",
	"liquidityNum": 54321.5,
	"volume24hr": "12000",
	"endDateIso": "2025-06-15T00:00:00Z"
}`

func TestGammaListMarkets(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/markets", r.URL.Path)
		assert.Equal(t, "50", r.URL.Query().Get("limit"))
		assert.Equal(t, "false", r.URL.Query().Get("closed"))
		w.Write([]byte("[" + gammaMarketJSON + `,{"id":"bad","outcomePrices":"[\"0.5\",\"0.3\",\"0.2\"]"}]`))
	}))
	defer srv.Close()

	client := NewGammaClient(srv.URL)
	snaps, err := client.ListMarkets(context.Background(), domain.MarketFilter{ActiveOnly: true, Limit: 50})
	require.NoError(t, err)
	// The three-outcome market is dropped.
	require.Len(t, snaps, 1)

	m := snaps[0]
	assert.Equal(t, "512329", m.ID)
	assert.Equal(t, "Did team A win the final?", m.Question)
	assert.Equal(t, "1111", m.YesTokenID)
	assert.Equal(t, "2222", m.NoTokenID)
	assert.Equal(t, 0.92, m.YesPrice)
	assert.Equal(t, 0.08, m.NoPrice)
	assert.Equal(t, 54321.5, m.LiquidityUSD)
	assert.Equal(t, 12000.0, m.Volume24hUSD)
	assert.Equal(t, domain.MarketStatusActive, m.Status)
	require.NotNil(t, m.EndTime)
	assert.Equal(t, time.Date(2025, 6, 15, 0, 0, 0, 0, time.UTC), *m.EndTime)
}

func TestGammaGetMarketNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := NewGammaClient(srv.URL).GetMarket(context.Background(), "nope")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestMarketStatusMapping(t *testing.T) {
	tests := []struct {
		name   string
		m      apiMarket
		expect domain.MarketStatus
	}{
		{"active", apiMarket{Active: true}, domain.MarketStatusActive},
		{"inactive awaiting resolution", apiMarket{Active: false}, domain.MarketStatusResolutionPending},
		{"closed", apiMarket{Active: true, Closed: true}, domain.MarketStatusClosed},
		{"resolved", apiMarket{Closed: true, UMAResolution: "resolved"}, domain.MarketStatusResolved},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expect, tt.m.status())
		})
	}
}
