package polymarket

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/voidlabs/voidbot/internal/domain"
)

// flexBool unmarshals from JSON bool or string ("true"/"false") so Gamma API
// responses work whether "active" is sent as bool or string.
type flexBool bool

func (f *flexBool) UnmarshalJSON(data []byte) error {
	var b bool
	if err := json.Unmarshal(data, &b); err == nil {
		*f = flexBool(b)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	*f = flexBool(strings.EqualFold(s, "true") || s == "1")
	return nil
}

// flexFloat unmarshals from JSON number or numeric string.
type flexFloat float64

func (f *flexFloat) UnmarshalJSON(data []byte) error {
	var n float64
	if err := json.Unmarshal(data, &n); err == nil {
		*f = flexFloat(n)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if s == "" {
		*f = 0
		return nil
	}
	n, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return err
	}
	*f = flexFloat(n)
	return nil
}

// apiMarket represents a market as returned by the Gamma API.
type apiMarket struct {
	ID            string    `json:"id"`
	Question      string    `json:"question"`
	Slug          string    `json:"slug"`
	Category      string    `json:"category"`
	Active        flexBool  `json:"active"`
	Closed        flexBool  `json:"closed"`
	Outcomes      string    `json:"outcomes"`      // JSON-encoded, e.g. "[\"Yes\",\"No\"]"
	OutcomePrices string    `json:"outcomePrices"` // JSON-encoded, e.g. "[\"0.92\",\"0.08\"]"
	ClobTokenIDs  string    `json:"clobTokenIds"`  // JSON-encoded, e.g. "[\"123\",\"456\"]"
	Liquidity     flexFloat `json:"liquidityNum"`
	Volume24h     flexFloat `json:"volume24hr"`
	EndDateISO    string    `json:"endDateIso"`
	EndDate       string    `json:"endDate"`
	UMAResolution string    `json:"umaResolutionStatus"`
}

// toSnapshot converts the Gamma DTO to a domain snapshot. Markets that are
// not binary YES/NO come back ok=false.
func (m *apiMarket) toSnapshot(fetchedAt time.Time) (domain.MarketSnapshot, bool) {
	prices, err := decodeStringArray(m.OutcomePrices)
	if err != nil || len(prices) != 2 {
		return domain.MarketSnapshot{}, false
	}
	yesPrice, err1 := strconv.ParseFloat(prices[0], 64)
	noPrice, err2 := strconv.ParseFloat(prices[1], 64)
	if err1 != nil || err2 != nil {
		return domain.MarketSnapshot{}, false
	}

	tokens, err := decodeStringArray(m.ClobTokenIDs)
	if err != nil || len(tokens) != 2 {
		return domain.MarketSnapshot{}, false
	}

	snap := domain.MarketSnapshot{
		ID:           m.ID,
		Question:     m.Question,
		Slug:         m.Slug,
		Category:     m.Category,
		YesTokenID:   tokens[0],
		NoTokenID:    tokens[1],
		YesPrice:     yesPrice,
		NoPrice:      noPrice,
		LiquidityUSD: float64(m.Liquidity),
		Volume24hUSD: float64(m.Volume24h),
		Status:       m.status(),
		FetchedAt:    fetchedAt,
	}
	if t, ok := parseEndTime(m.EndDateISO, m.EndDate); ok {
		snap.EndTime = &t
	}
	return snap, true
}

func (m *apiMarket) status() domain.MarketStatus {
	switch {
	case strings.EqualFold(m.UMAResolution, "resolved"):
		return domain.MarketStatusResolved
	case bool(m.Closed):
		return domain.MarketStatusClosed
	case !bool(m.Active):
		return domain.MarketStatusResolutionPending
	default:
		return domain.MarketStatusActive
	}
}

// decodeStringArray parses Gamma's JSON-encoded-string array fields.
func decodeStringArray(raw string) ([]string, error) {
	if raw == "" {
		return nil, nil
	}
	var out []string
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, err
	}
	return out, nil
}

func parseEndTime(candidates ...string) (time.Time, bool) {
	for _, c := range candidates {
		if c == "" {
			continue
		}
		for _, layout := range []string{time.RFC3339, "2006-01-02"} {
			if t, err := time.Parse(layout, c); err == nil {
				return t.UTC(), true
			}
		}
	}
	return time.Time{}, false
}

// apiOrderResult is the CLOB response to an order submission.
type apiOrderResult struct {
	Success     bool   `json:"success"`
	ErrorMsg    string `json:"errorMsg,omitempty"`
	OrderID     string `json:"orderID,omitempty"`
	Status      string `json:"status,omitempty"`
	ShouldRetry bool   `json:"shouldRetry,omitempty"`
}
