package crypto

import (
	"crypto/ecdsa"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// --------------------------------------------------------------------------
// EIP-712 type hashes (pre-computed keccak256 of the canonical type strings).
// --------------------------------------------------------------------------

var (
	// EIP712Domain(string name,string version,uint256 chainId)
	eip712DomainTypeHash = ethcrypto.Keccak256(
		[]byte("EIP712Domain(string name,string version,uint256 chainId)"),
	)

	// PayoutAuth(string payoutId,address recipient,uint256 amountMinor,string currency,uint256 timestamp)
	payoutAuthTypeHash = ethcrypto.Keccak256(
		[]byte("PayoutAuth(string payoutId,address recipient,uint256 amountMinor,string currency,uint256 timestamp)"),
	)
)

// PayoutAuthPayload captures the fields bound by a payout authorization
// signature. AmountMinor is the payout amount in minor units (cents or fils)
// so no decimal encoding crosses the signing boundary.
type PayoutAuthPayload struct {
	PayoutID    string `json:"payoutId"`
	Recipient   string `json:"recipient"`
	AmountMinor int64  `json:"amountMinor"`
	Currency    string `json:"currency"`
	Timestamp   int64  `json:"timestamp"`
}

// Treasury signs payout authorizations with the platform hot wallet and
// validates recipient wallet addresses. Every crypto payout carries a
// Treasury signature that downstream settlement can verify against the hot
// wallet address.
type Treasury struct {
	privateKey *ecdsa.PrivateKey
	address    common.Address
	chainID    int
	domainSep  []byte // cached EIP-712 domain separator hash
}

// NewTreasury creates a Treasury from a hex-encoded secp256k1 private key and
// the target chain ID (137 for Polygon mainnet, 80002 for Amoy testnet).
func NewTreasury(privateKeyHex string, chainID int) (*Treasury, error) {
	keyHex := strings.TrimPrefix(privateKeyHex, "0x")
	pk, err := ethcrypto.HexToECDSA(keyHex)
	if err != nil {
		return nil, fmt.Errorf("crypto/treasury: invalid private key: %w", err)
	}

	addr := ethcrypto.PubkeyToAddress(pk.PublicKey)

	t := &Treasury{
		privateKey: pk,
		address:    addr,
		chainID:    chainID,
	}

	// Pre-compute the domain separator once; it only depends on the chain.
	t.domainSep = buildDomainSeparator("DecodeTreasury", "1", chainID)

	return t, nil
}

// Address returns the hot wallet address derived from the treasury key.
func (t *Treasury) Address() common.Address {
	return t.address
}

// SignPayoutAuth signs a PayoutAuth EIP-712 message authorizing a single
// crypto payout. The returned string is a hex-encoded signature with recovery
// byte (65 bytes total).
func (t *Treasury) SignPayoutAuth(p PayoutAuthPayload) (string, error) {
	if p.PayoutID == "" {
		return "", errors.New("crypto/treasury: payout id must not be empty")
	}
	if p.AmountMinor <= 0 {
		return "", fmt.Errorf("crypto/treasury: amount must be positive, got %d", p.AmountMinor)
	}
	if !t.ValidAddress(p.Recipient) {
		return "", fmt.Errorf("crypto/treasury: invalid recipient address %q", p.Recipient)
	}

	recipient := common.HexToAddress(p.Recipient)

	structHash := ethcrypto.Keccak256(
		concatBytes(
			payoutAuthTypeHash,
			ethcrypto.Keccak256([]byte(p.PayoutID)),
			common.LeftPadBytes(recipient.Bytes(), 32),
			bigIntTo32Bytes(big.NewInt(p.AmountMinor)),
			ethcrypto.Keccak256([]byte(p.Currency)),
			bigIntTo32Bytes(big.NewInt(p.Timestamp)),
		),
	)

	digest := eip712Hash(t.domainSep, structHash)
	return t.signDigest(digest)
}

// ValidAddress reports whether addr is a well-formed 0x-prefixed Ethereum
// address. Mixed-case addresses must carry a correct EIP-55 checksum;
// all-lowercase and all-uppercase forms are accepted as unchecksummed.
func (t *Treasury) ValidAddress(addr string) bool {
	if !strings.HasPrefix(addr, "0x") || !common.IsHexAddress(addr) {
		return false
	}
	body := addr[2:]
	if body == strings.ToLower(body) || body == strings.ToUpper(body) {
		return true
	}
	return common.HexToAddress(addr).Hex() == addr
}

// ChecksumAddress returns the EIP-55 checksummed form of addr.
func (t *Treasury) ChecksumAddress(addr string) (string, error) {
	if !t.ValidAddress(addr) {
		return "", fmt.Errorf("crypto/treasury: invalid address %q", addr)
	}
	return common.HexToAddress(addr).Hex(), nil
}

// --------------------------------------------------------------------------
// Internal helpers
// --------------------------------------------------------------------------

// buildDomainSeparator returns keccak256(abi.encode(typeHash, nameHash, versionHash, chainId)).
func buildDomainSeparator(name, version string, chainID int) []byte {
	return ethcrypto.Keccak256(
		concatBytes(
			eip712DomainTypeHash,
			ethcrypto.Keccak256([]byte(name)),
			ethcrypto.Keccak256([]byte(version)),
			bigIntTo32Bytes(big.NewInt(int64(chainID))),
		),
	)
}

// eip712Hash computes the final EIP-712 digest:
//
//	keccak256("\x19\x01" || domainSeparator || structHash)
func eip712Hash(domainSep, structHash []byte) []byte {
	return ethcrypto.Keccak256(
		concatBytes(
			[]byte{0x19, 0x01},
			domainSep,
			structHash,
		),
	)
}

// signDigest signs a 32-byte digest using secp256k1 and returns the
// hex-encoded signature (r || s || v, 65 bytes).
func (t *Treasury) signDigest(digest []byte) (string, error) {
	sig, err := ethcrypto.Sign(digest, t.privateKey)
	if err != nil {
		return "", fmt.Errorf("crypto/treasury: signing: %w", err)
	}

	// go-ethereum returns v in {0,1}; EIP-712 expects v in {27,28}.
	if sig[64] < 27 {
		sig[64] += 27
	}

	return "0x" + hex.EncodeToString(sig), nil
}

// bigIntTo32Bytes returns a 32-byte big-endian representation of n.
func bigIntTo32Bytes(n *big.Int) []byte {
	b := n.Bytes()
	if len(b) >= 32 {
		return b[:32]
	}
	padded := make([]byte, 32)
	copy(padded[32-len(b):], b)
	return padded
}

// concatBytes concatenates multiple byte slices into one.
func concatBytes(slices ...[]byte) []byte {
	total := 0
	for _, s := range slices {
		total += len(s)
	}
	buf := make([]byte, 0, total)
	for _, s := range slices {
		buf = append(buf, s...)
	}
	return buf
}
