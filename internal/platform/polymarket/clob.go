package polymarket

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"math/big"
	"math/rand"
	"net/http"
	"strings"
	"time"

	"github.com/voidlabs/voidbot/internal/crypto"
	"github.com/voidlabs/voidbot/internal/domain"
)

// usdcScale converts decimal USDC/share amounts to the 6-decimal integer
// representation the exchange contract uses.
const usdcScale = 1_000_000

// zeroAddress is the open taker.
const zeroAddress = "0x0000000000000000000000000000000000000000"

// ClobClient submits and cancels orders against the Polymarket CLOB for one
// wallet. It implements domain.OrderTransport.
type ClobClient struct {
	baseURL       string
	httpClient    *http.Client
	signer        *crypto.Signer
	hmacAuth      *crypto.HMACAuth
	signatureType int
}

// NewClobClient creates a CLOB client.
//
// baseURL is the API root, e.g. "https://clob.polymarket.com". signer holds
// the wallet key; hmac may be nil until DeriveAPIKey runs.
func NewClobClient(baseURL string, signer *crypto.Signer, hmac *crypto.HMACAuth, signatureType int) *ClobClient {
	return &ClobClient{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		signer:        signer,
		hmacAuth:      hmac,
		signatureType: signatureType,
	}
}

// Submit signs and posts one order. Exchange rejections are mapped onto the
// sentinel errors the executor's retry loop classifies.
func (c *ClobClient) Submit(ctx context.Context, spec domain.OrderSpec) (domain.Submission, error) {
	payload, err := c.buildPayload(spec)
	if err != nil {
		return domain.Submission{}, err
	}
	sig, err := c.signer.SignOrder(payload)
	if err != nil {
		return domain.Submission{}, fmt.Errorf("polymarket/clob: sign order: %w", err)
	}

	wallet := c.signer.Address().Hex()
	body := map[string]any{
		"order": map[string]any{
			"salt":          payload.Salt,
			"tokenID":       payload.TokenID,
			"makerAmount":   payload.MakerAmount,
			"takerAmount":   payload.TakerAmount,
			"side":          strings.ToUpper(string(spec.Side)),
			"feeRateBps":    payload.FeeRateBps,
			"nonce":         payload.Nonce,
			"expiration":    payload.Expiration,
			"signatureType": payload.SignatureType,
			"signature":     sig,
			"maker":         wallet,
			"signer":        wallet,
			"taker":         zeroAddress,
		},
		"owner":     wallet,
		"orderType": string(spec.OrderType),
	}

	respBody, err := c.doAuthenticatedRequest(ctx, http.MethodPost, "/order", body)
	if err != nil {
		return domain.Submission{}, fmt.Errorf("polymarket/clob: post order: %w", err)
	}

	var result apiOrderResult
	if err := json.Unmarshal(respBody, &result); err != nil {
		return domain.Submission{}, fmt.Errorf("polymarket/clob: decode order result: %w", err)
	}
	if !result.Success {
		return domain.Submission{}, classifyRejection(result)
	}
	return domain.Submission{
		ExternalOrderID: result.OrderID,
		AcceptedPrice:   spec.Price,
	}, nil
}

// classifyRejection maps CLOB rejection messages onto sentinel errors.
func classifyRejection(res apiOrderResult) error {
	msg := strings.ToLower(res.ErrorMsg)
	switch {
	case strings.Contains(msg, "not enough balance") || strings.Contains(msg, "insufficient"):
		return fmt.Errorf("polymarket/clob: %w: %s", domain.ErrInsufficientFunds, res.ErrorMsg)
	case strings.Contains(msg, "invalid"):
		return fmt.Errorf("polymarket/clob: %w: %s", domain.ErrInvalidOrder, res.ErrorMsg)
	case res.ShouldRetry:
		return fmt.Errorf("polymarket/clob: order rejected, retryable: %s", res.ErrorMsg)
	default:
		return fmt.Errorf("polymarket/clob: order rejected: %s", res.ErrorMsg)
	}
}

// buildPayload converts the spec's decimal price/size into the contract's
// integer amounts. For a BUY the maker pays USDC (price*size) for shares;
// a SELL is the reverse.
func (c *ClobClient) buildPayload(spec domain.OrderSpec) (crypto.OrderPayload, error) {
	if spec.Price <= 0 || spec.Size <= 0 {
		return crypto.OrderPayload{}, fmt.Errorf("%w: price=%f size=%f", domain.ErrInvalidOrder, spec.Price, spec.Size)
	}
	shares := big.NewInt(int64(math.Round(spec.Size * usdcScale)))
	usdc := big.NewInt(int64(math.Round(spec.Price * spec.Size * usdcScale)))

	makerAmount, takerAmount := usdc, shares
	side := 0
	if spec.Side == domain.OrderSideSell {
		makerAmount, takerAmount = shares, usdc
		side = 1
	}

	wallet := c.signer.Address().Hex()
	return crypto.OrderPayload{
		Salt:          fmt.Sprintf("%d", rand.Int63()),
		Maker:         wallet,
		Signer:        wallet,
		Taker:         zeroAddress,
		TokenID:       spec.TokenID,
		MakerAmount:   makerAmount.String(),
		TakerAmount:   takerAmount.String(),
		Expiration:    "0",
		Nonce:         "0",
		FeeRateBps:    "0",
		Side:          side,
		SignatureType: c.signatureType,
	}, nil
}

// Cancel cancels a single order by its exchange ID.
func (c *ClobClient) Cancel(ctx context.Context, externalOrderID string) error {
	respBody, err := c.doAuthenticatedRequest(ctx, http.MethodDelete, "/order", map[string]any{
		"orderID": externalOrderID,
	})
	if err != nil {
		return fmt.Errorf("polymarket/clob: cancel order %s: %w", externalOrderID, err)
	}

	var result struct {
		Success  bool   `json:"success"`
		ErrorMsg string `json:"errorMsg"`
	}
	if err := json.Unmarshal(respBody, &result); err != nil {
		return fmt.Errorf("polymarket/clob: decode cancel response: %w", err)
	}
	if !result.Success {
		return fmt.Errorf("polymarket/clob: cancel failed: %s", result.ErrorMsg)
	}
	return nil
}

// CancelAll cancels every open order of the wallet and returns how many the
// exchange reports cancelled.
func (c *ClobClient) CancelAll(ctx context.Context) (int, error) {
	respBody, err := c.doAuthenticatedRequest(ctx, http.MethodDelete, "/cancel-all", nil)
	if err != nil {
		return 0, fmt.Errorf("polymarket/clob: cancel all: %w", err)
	}

	var result struct {
		Success  bool     `json:"success"`
		Canceled []string `json:"canceled"`
		ErrorMsg string   `json:"errorMsg"`
	}
	if err := json.Unmarshal(respBody, &result); err != nil {
		return 0, fmt.Errorf("polymarket/clob: decode cancel-all response: %w", err)
	}
	if !result.Success {
		return 0, fmt.Errorf("polymarket/clob: cancel-all failed: %s", result.ErrorMsg)
	}
	return len(result.Canceled), nil
}

// DeriveAPIKey runs the L1 auth flow to obtain the HMAC credentials used on
// every later request. It signs a ClobAuth message and exchanges it at the
// derive-api-key endpoint.
func (c *ClobClient) DeriveAPIKey(ctx context.Context) error {
	timestamp := time.Now().Unix()
	sig, err := c.signer.SignAuthMessage(timestamp, 0)
	if err != nil {
		return fmt.Errorf("polymarket/clob: sign auth message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/auth/derive-api-key", nil)
	if err != nil {
		return fmt.Errorf("polymarket/clob: create auth request: %w", err)
	}
	req.Header.Set("POLY_ADDRESS", c.signer.Address().Hex())
	req.Header.Set("POLY_SIGNATURE", sig)
	req.Header.Set("POLY_TIMESTAMP", fmt.Sprintf("%d", timestamp))
	req.Header.Set("POLY_NONCE", "0")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("polymarket/clob: auth request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("polymarket/clob: read auth response: %w", err)
	}
	if err := checkHTTPStatus(resp.StatusCode, respBody); err != nil {
		return fmt.Errorf("polymarket/clob: auth: %w", err)
	}

	var authResp struct {
		APIKey     string `json:"apiKey"`
		Secret     string `json:"secret"`
		Passphrase string `json:"passphrase"`
	}
	if err := json.Unmarshal(respBody, &authResp); err != nil {
		return fmt.Errorf("polymarket/clob: decode auth response: %w", err)
	}

	c.hmacAuth = &crypto.HMACAuth{
		Key:        authResp.APIKey,
		Secret:     authResp.Secret,
		Passphrase: authResp.Passphrase,
	}
	return nil
}

// Credentials returns the active HMAC credentials, or nil before
// DeriveAPIKey has run.
func (c *ClobClient) Credentials() *crypto.HMACAuth { return c.hmacAuth }

// doAuthenticatedRequest builds, HMAC-signs, sends and reads one CLOB
// request, returning the raw response body.
func (c *ClobClient) doAuthenticatedRequest(ctx context.Context, method, path string, body any) ([]byte, error) {
	var bodyReader io.Reader
	var bodyStr string
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request body: %w", err)
		}
		bodyStr = string(jsonBody)
		bodyReader = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.hmacAuth != nil {
		for k, v := range c.hmacAuth.L2Headers(c.signer.Address().Hex(), method, path, bodyStr) {
			req.Header.Set(k, v)
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if err := checkHTTPStatus(resp.StatusCode, respBody); err != nil {
		return nil, err
	}
	return respBody, nil
}
