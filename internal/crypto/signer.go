// Package crypto provides EIP-712 order signing, HMAC request auth, and
// at-rest encryption for account private keys.
package crypto

import (
	"crypto/ecdsa"
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// Pre-computed keccak256 hashes of the canonical EIP-712 type strings used
// by the Polymarket CLOB. These are fixed by the protocol.
var (
	domainTypeHash = ethcrypto.Keccak256(
		[]byte("EIP712Domain(string name,string version,uint256 chainId)"))
	authTypeHash = ethcrypto.Keccak256(
		[]byte("ClobAuth(address address,uint256 timestamp,uint256 nonce)"))
	orderTypeHash = ethcrypto.Keccak256(
		[]byte("Order(uint256 salt,address maker,address signer,address taker,uint256 tokenId,uint256 makerAmount,uint256 takerAmount,uint256 expiration,uint256 nonce,uint256 feeRateBps,uint8 side,uint8 signatureType)"))
)

// OrderPayload is the signable order struct. Large numbers travel as decimal
// strings to survive JSON round trips without precision loss.
type OrderPayload struct {
	Salt          string `json:"salt"`
	Maker         string `json:"maker"`
	Signer        string `json:"signer"`
	Taker         string `json:"taker"`
	TokenID       string `json:"tokenId"`
	MakerAmount   string `json:"makerAmount"`
	TakerAmount   string `json:"takerAmount"`
	Expiration    string `json:"expiration"`
	Nonce         string `json:"nonce"`
	FeeRateBps    string `json:"feeRateBps"`
	Side          int    `json:"side"`          // 0 = BUY, 1 = SELL
	SignatureType int    `json:"signatureType"` // 0 = EOA, 1 = POLY_PROXY, 2 = POLY_GNOSIS_SAFE
}

// Signer signs CLOB auth messages and orders with a secp256k1 key.
type Signer struct {
	key       *ecdsa.PrivateKey
	address   common.Address
	chainID   int
	domainSep []byte
}

// NewSigner creates a Signer from a hex-encoded private key and chain ID
// (137 for Polygon mainnet).
func NewSigner(privateKeyHex string, chainID int) (*Signer, error) {
	key, err := ethcrypto.HexToECDSA(strings.TrimPrefix(privateKeyHex, "0x"))
	if err != nil {
		return nil, fmt.Errorf("crypto/signer: invalid private key: %w", err)
	}
	s := &Signer{
		key:     key,
		address: ethcrypto.PubkeyToAddress(key.PublicKey),
		chainID: chainID,
	}
	s.domainSep = ethcrypto.Keccak256(concat(
		domainTypeHash,
		ethcrypto.Keccak256([]byte("ClobAuthDomain")),
		ethcrypto.Keccak256([]byte("1")),
		uint256(big.NewInt(int64(chainID))),
	))
	return s, nil
}

// Address returns the wallet address derived from the private key.
func (s *Signer) Address() common.Address { return s.address }

// SignAuthMessage signs the ClobAuth message used to derive an API key.
func (s *Signer) SignAuthMessage(timestamp, nonce int64) (string, error) {
	structHash := ethcrypto.Keccak256(concat(
		authTypeHash,
		common.LeftPadBytes(s.address.Bytes(), 32),
		uint256(big.NewInt(timestamp)),
		uint256(big.NewInt(nonce)),
	))
	return s.sign(structHash)
}

// SignOrder signs an order payload for submission to the CLOB.
func (s *Signer) SignOrder(o OrderPayload) (string, error) {
	fields := [][]byte{orderTypeHash}
	for _, dec := range []struct {
		name, val string
	}{
		{"salt", o.Salt},
		{"tokenId", o.TokenID},
		{"makerAmount", o.MakerAmount},
		{"takerAmount", o.TakerAmount},
		{"expiration", o.Expiration},
		{"nonce", o.Nonce},
		{"feeRateBps", o.FeeRateBps},
	} {
		n, ok := new(big.Int).SetString(dec.val, 10)
		if !ok {
			return "", fmt.Errorf("crypto/signer: invalid %s %q", dec.name, dec.val)
		}
		fields = append(fields, uint256(n))
	}
	// EIP-712 field order: salt, maker, signer, taker, tokenId, ...
	encoded := concat(
		fields[0], // type hash
		fields[1], // salt
		common.LeftPadBytes(common.HexToAddress(o.Maker).Bytes(), 32),
		common.LeftPadBytes(common.HexToAddress(o.Signer).Bytes(), 32),
		common.LeftPadBytes(common.HexToAddress(o.Taker).Bytes(), 32),
		fields[2], // tokenId
		fields[3], // makerAmount
		fields[4], // takerAmount
		fields[5], // expiration
		fields[6], // nonce
		fields[7], // feeRateBps
		uint256(big.NewInt(int64(o.Side))),
		uint256(big.NewInt(int64(o.SignatureType))),
	)
	return s.sign(ethcrypto.Keccak256(encoded))
}

// sign produces the hex-encoded 65-byte signature over the EIP-712 digest
// "\x19\x01" || domainSeparator || structHash.
func (s *Signer) sign(structHash []byte) (string, error) {
	digest := ethcrypto.Keccak256(concat([]byte{0x19, 0x01}, s.domainSep, structHash))
	sig, err := ethcrypto.Sign(digest, s.key)
	if err != nil {
		return "", fmt.Errorf("crypto/signer: sign: %w", err)
	}
	// go-ethereum yields v in {0,1}; the CLOB expects {27,28}.
	if sig[64] < 27 {
		sig[64] += 27
	}
	return "0x" + hex.EncodeToString(sig), nil
}

// uint256 encodes n as a 32-byte big-endian word.
func uint256(n *big.Int) []byte {
	b := n.Bytes()
	if len(b) >= 32 {
		return b[:32]
	}
	out := make([]byte, 32)
	copy(out[32-len(b):], b)
	return out
}

func concat(parts ...[]byte) []byte {
	var total int
	for _, p := range parts {
		total += len(p)
	}
	out := make([]byte, 0, total)
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}
