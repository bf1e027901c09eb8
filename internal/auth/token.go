package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// TokenManager issues and verifies bearer tokens. A token is
// base64url("userID.expiry.signature") where the signature is HMAC-SHA256
// over "userID.expiry" with the service secret.
type TokenManager struct {
	secret []byte
	ttl    time.Duration
}

func NewTokenManager(secret string, ttl time.Duration) *TokenManager {
	return &TokenManager{secret: []byte(secret), ttl: ttl}
}

// Issue creates a token for userID valid for the configured TTL.
func (tm *TokenManager) Issue(userID string) string {
	expiry := time.Now().Add(tm.ttl).Unix()
	payload := fmt.Sprintf("%s.%d", userID, expiry)
	return base64.RawURLEncoding.EncodeToString([]byte(payload + "." + tm.sign(payload)))
}

// Verify checks the token's signature and expiry and returns the user ID.
func (tm *TokenManager) Verify(token string) (string, error) {
	decoded, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return "", ErrTokenFormat
	}

	parts := strings.Split(string(decoded), ".")
	if len(parts) != 3 {
		return "", ErrTokenFormat
	}
	userID, expiryPart, signature := parts[0], parts[1], parts[2]

	payload := userID + "." + expiryPart
	if !hmac.Equal([]byte(signature), []byte(tm.sign(payload))) {
		return "", ErrTokenSignature
	}

	expiry, err := strconv.ParseInt(expiryPart, 10, 64)
	if err != nil {
		return "", ErrTokenFormat
	}
	if time.Now().Unix() > expiry {
		return "", ErrTokenExpired
	}

	return userID, nil
}

func (tm *TokenManager) sign(payload string) string {
	mac := hmac.New(sha256.New, tm.secret)
	mac.Write([]byte(payload))
	return hex.EncodeToString(mac.Sum(nil))
}
