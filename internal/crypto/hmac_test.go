package crypto

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestL2HeadersAt(t *testing.T) {
	auth := &HMACAuth{
		Key:        "key-1",
		Secret:     base64.StdEncoding.EncodeToString([]byte("shhh")),
		Passphrase: "phrase",
	}

	h := auth.L2HeadersAt("0xabc", "POST", "/order", `{"x":1}`, 1_700_000_000)

	assert.Equal(t, "0xabc", h["POLY_ADDRESS"])
	assert.Equal(t, "key-1", h["POLY_API_KEY"])
	assert.Equal(t, "1700000000", h["POLY_TIMESTAMP"])
	assert.Equal(t, "phrase", h["POLY_PASSPHRASE"])
	assert.NotEmpty(t, h["POLY_SIGNATURE"])

	// Same inputs sign identically; any tweak changes the signature.
	again := auth.L2HeadersAt("0xabc", "POST", "/order", `{"x":1}`, 1_700_000_000)
	assert.Equal(t, h["POLY_SIGNATURE"], again["POLY_SIGNATURE"])
	other := auth.L2HeadersAt("0xabc", "POST", "/order", `{"x":2}`, 1_700_000_000)
	assert.NotEqual(t, h["POLY_SIGNATURE"], other["POLY_SIGNATURE"])
}
