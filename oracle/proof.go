package oracle

import (
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// DefaultIssuer names the oracle in proofs when none is configured.
const DefaultIssuer = "sealedcourt-oracle"

type proofClaims struct {
	Digest string `json:"ctd"`
	jwt.RegisteredClaims
}

// ProofSigner issues EdDSA-signed proofs binding a request id to its cleartexts.
type ProofSigner struct {
	key    ed25519.PrivateKey
	issuer string
	now    func() time.Time
}

func NewProofSigner(key ed25519.PrivateKey, issuer string) *ProofSigner {
	if issuer == "" {
		issuer = DefaultIssuer
	}
	return &ProofSigner{key: key, issuer: issuer, now: time.Now}
}

// Sign returns the compact token for (id, cleartexts).
func (s *ProofSigner) Sign(id RequestID, cleartexts []byte) ([]byte, error) {
	if id == "" {
		return nil, errors.New("oracle: sign: empty request id")
	}
	claims := proofClaims{
		Digest: digest(cleartexts),
		RegisteredClaims: jwt.RegisteredClaims{
			ID:       string(id),
			Issuer:   s.issuer,
			IssuedAt: jwt.NewNumericDate(s.now()),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodEdDSA, claims).SignedString(s.key)
	if err != nil {
		return nil, fmt.Errorf("oracle: sign: %w", err)
	}
	return []byte(token), nil
}

// ProofVerifier checks proofs produced by a ProofSigner holding the paired key.
type ProofVerifier struct {
	key    ed25519.PublicKey
	issuer string
}

func NewProofVerifier(key ed25519.PublicKey, issuer string) *ProofVerifier {
	if issuer == "" {
		issuer = DefaultIssuer
	}
	return &ProofVerifier{key: key, issuer: issuer}
}

// Verify is a pure check: signature, issuer, request id and cleartext digest
// must all match.
func (v *ProofVerifier) Verify(id RequestID, cleartexts, proof []byte) bool {
	if len(proof) == 0 || id == "" {
		return false
	}
	var claims proofClaims
	token, err := jwt.ParseWithClaims(string(proof), &claims, func(*jwt.Token) (any, error) {
		return v.key, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodEdDSA.Alg()}),
		jwt.WithIssuer(v.issuer),
	)
	if err != nil || !token.Valid {
		return false
	}
	return claims.ID == string(id) && claims.Digest == digest(cleartexts)
}

// ParseKeys decodes hex-encoded ed25519 keys. Either may be empty.
func ParseKeys(privateHex, publicHex string) (ed25519.PrivateKey, ed25519.PublicKey, error) {
	var (
		priv ed25519.PrivateKey
		pub  ed25519.PublicKey
	)
	if privateHex != "" {
		raw, err := hex.DecodeString(privateHex)
		if err != nil {
			return nil, nil, fmt.Errorf("oracle: decode private key: %w", err)
		}
		switch len(raw) {
		case ed25519.SeedSize:
			priv = ed25519.NewKeyFromSeed(raw)
		case ed25519.PrivateKeySize:
			priv = ed25519.PrivateKey(raw)
		default:
			return nil, nil, fmt.Errorf("oracle: private key has length %d", len(raw))
		}
		pub = priv.Public().(ed25519.PublicKey)
	}
	if publicHex != "" {
		raw, err := hex.DecodeString(publicHex)
		if err != nil {
			return nil, nil, fmt.Errorf("oracle: decode public key: %w", err)
		}
		if len(raw) != ed25519.PublicKeySize {
			return nil, nil, fmt.Errorf("oracle: public key has length %d", len(raw))
		}
		pub = ed25519.PublicKey(raw)
	}
	return priv, pub, nil
}

func digest(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}
