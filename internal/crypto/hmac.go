package crypto

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"strconv"
	"time"
)

// HMACAuth holds the L2 credentials for CLOB API requests.
type HMACAuth struct {
	Key        string // API key
	Secret     string // base64-encoded API secret
	Passphrase string
}

// L2Headers returns the authentication headers for one CLOB request. The
// signature covers timestamp+method+path+body with the base64-decoded secret.
func (h *HMACAuth) L2Headers(address, method, path, body string) map[string]string {
	return h.L2HeadersAt(address, method, path, body, time.Now().Unix())
}

// L2HeadersAt is L2Headers with a caller-supplied timestamp, for
// deterministic tests.
func (h *HMACAuth) L2HeadersAt(address, method, path, body string, unixTS int64) map[string]string {
	ts := strconv.FormatInt(unixTS, 10)

	secret, err := base64.StdEncoding.DecodeString(h.Secret)
	if err != nil {
		// A bad secret yields an obviously-wrong signature instead of a panic.
		secret = []byte(h.Secret)
	}
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(ts + method + path + body))

	return map[string]string{
		"POLY_ADDRESS":    address,
		"POLY_API_KEY":    h.Key,
		"POLY_TIMESTAMP":  ts,
		"POLY_PASSPHRASE": h.Passphrase,
		"POLY_SIGNATURE":  base64.StdEncoding.EncodeToString(mac.Sum(nil)),
	}
}
