// Package receipt issues signed statements about ledger entries.
//
// A receipt is an HS256 JWT whose claims repeat what the ledger holds for a
// digest. A client that keeps the receipt can later prove what the service
// recorded without trusting a fresh lookup.
package receipt

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/jmerrifield20/genledger/internal/ledger"
)

// ErrInvalidReceipt is returned by Verify for any receipt that fails
// signature, issuer or claim validation.
var ErrInvalidReceipt = errors.New("invalid receipt")

// Claims are the JWT claims of a generation receipt.
// Subject carries the digest.
type Claims struct {
	jwt.RegisteredClaims
	Kind       string    `json:"kind"`
	RecordedAt time.Time `json:"recorded_at"`
}

// Issuer signs and verifies receipts with a shared secret.
type Issuer struct {
	secret []byte
	issuer string
}

// NewIssuer creates an Issuer. issuer becomes the "iss" claim.
func NewIssuer(secret, issuer string) (*Issuer, error) {
	if len(secret) < 16 {
		return nil, fmt.Errorf("receipt secret must be at least 16 bytes, got %d", len(secret))
	}
	if issuer == "" {
		issuer = "genledger"
	}
	return &Issuer{secret: []byte(secret), issuer: issuer}, nil
}

// Issue returns a signed receipt for entry. Receipts do not expire, but they
// attest the entry as it stood when issued: re-recording the same digest
// stamps a new RecordedAt and supersedes earlier receipts.
func (i *Issuer) Issue(entry *ledger.Entry) (string, error) {
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:   i.issuer,
			Subject:  entry.Digest,
			IssuedAt: jwt.NewNumericDate(time.Now().UTC()),
			ID:       uuid.New().String(),
		},
		Kind:       string(entry.Kind),
		RecordedAt: entry.RecordedAt.UTC(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(i.secret)
	if err != nil {
		return "", fmt.Errorf("sign receipt: %w", err)
	}
	return signed, nil
}

// Verify parses and validates a receipt, returning its claims on success.
func (i *Issuer) Verify(tokenStr string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(
		tokenStr,
		&Claims{},
		func(tok *jwt.Token) (any, error) {
			if _, ok := tok.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", tok.Header["alg"])
			}
			return i.secret, nil
		},
		jwt.WithIssuer(i.issuer),
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidReceipt, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.Subject == "" {
		return nil, ErrInvalidReceipt
	}
	return claims, nil
}
