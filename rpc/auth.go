package rpc

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"gildchain/crypto"
)

// Capabilities carried in write tokens. Every write needs a valid token;
// privileged methods additionally need the matching capability claim. The
// ledger engine still checks the on-state role for the resolved caller, so a
// stolen capability claim alone cannot mint.
const (
	CapabilitySupply = "supply"
	CapabilityRate   = "rate"
)

var (
	errMissingToken   = errors.New("rpc: bearer token required")
	errInvalidToken   = errors.New("rpc: invalid bearer token")
	errMissingSubject = errors.New("rpc: token subject required")
	errMissingCap     = errors.New("rpc: token lacks required capability")
	errAuthDisabled   = errors.New("rpc: write methods disabled, no auth secret configured")
)

// Authenticator validates HS256 bearer tokens and resolves the caller address
// from the token subject.
type Authenticator struct {
	secret []byte
}

// NewAuthenticator constructs an authenticator over the shared secret. An
// empty secret fails closed: every write is refused.
func NewAuthenticator(secret []byte) *Authenticator {
	return &Authenticator{secret: secret}
}

type ledgerClaims struct {
	Capabilities []string `json:"caps"`
	jwt.RegisteredClaims
}

// Authenticate checks the request's bearer token and, when capability is
// non-empty, requires the claim to be present. It returns the caller address
// the token is bound to.
func (a *Authenticator) Authenticate(r *http.Request, capability string) ([]byte, error) {
	if a == nil || len(a.secret) == 0 {
		return nil, errAuthDisabled
	}
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if header == "" {
		return nil, errMissingToken
	}
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return nil, errMissingToken
	}
	raw := strings.TrimSpace(header[len(prefix):])

	claims := &ledgerClaims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
		}
		return a.secret, nil
	})
	if err != nil || !token.Valid {
		return nil, errInvalidToken
	}

	subject := strings.TrimSpace(claims.Subject)
	if subject == "" {
		return nil, errMissingSubject
	}
	addr, err := crypto.DecodeAddress(subject)
	if err != nil {
		return nil, fmt.Errorf("rpc: token subject: %w", err)
	}

	if capability != "" {
		found := false
		for _, granted := range claims.Capabilities {
			if strings.EqualFold(strings.TrimSpace(granted), capability) {
				found = true
				break
			}
		}
		if !found {
			return nil, errMissingCap
		}
	}
	return addr.Bytes(), nil
}
